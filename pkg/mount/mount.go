// Package mount provides the mount plan executed inside the child before
// execve. Mounts are pre-marshaled into syscall-ready byte pointers since
// the child cannot allocate after clone.
package mount

import (
	"fmt"
	"syscall"
)

// Mount defines one mount syscall
type Mount struct {
	Source, Target, FsType, Data string
	Flags                        uintptr
}

// SyscallParams defines the raw syscall arguments to mount
type SyscallParams struct {
	Source, Target, FsType, Data *byte
	Flags                        uintptr
}

// ToSyscall convert Mount to SyscallParams
func (m *Mount) ToSyscall() (*SyscallParams, error) {
	var source, fsType, data *byte
	var err error
	if m.Source != "" {
		source, err = syscall.BytePtrFromString(m.Source)
		if err != nil {
			return nil, err
		}
	}
	target, err := syscall.BytePtrFromString(m.Target)
	if err != nil {
		return nil, err
	}
	if m.FsType != "" {
		fsType, err = syscall.BytePtrFromString(m.FsType)
		if err != nil {
			return nil, err
		}
	}
	if m.Data != "" {
		data, err = syscall.BytePtrFromString(m.Data)
		if err != nil {
			return nil, err
		}
	}
	return &SyscallParams{
		Source: source,
		Target: target,
		FsType: fsType,
		Data:   data,
		Flags:  m.Flags,
	}, nil
}

func (m Mount) String() string {
	switch {
	case m.Flags&syscall.MS_REMOUNT == syscall.MS_REMOUNT:
		return fmt.Sprintf("remount[%s:ro]", m.Target)

	case m.Flags&syscall.MS_BIND == syscall.MS_BIND:
		flag := "rw"
		if m.Flags&syscall.MS_RDONLY == syscall.MS_RDONLY {
			flag = "ro"
		}
		return fmt.Sprintf("bind[%s:%s:%s]", m.Source, m.Target, flag)

	case m.FsType == "tmpfs":
		return fmt.Sprintf("tmpfs[%s,%s]", m.Target, m.Data)

	case m.FsType == "proc":
		return "proc[]"

	default:
		return fmt.Sprintf("mount[%s,%s:%s:%x,%s]", m.FsType, m.Source, m.Target, m.Flags, m.Data)
	}
}
