package mount

import (
	"strconv"
	"strings"
	"syscall"
)

const (
	bindFlags   = syscall.MS_BIND | syscall.MS_REC
	roBindFlags = bindFlags | syscall.MS_RDONLY
	// a read-only bind does not honor MS_RDONLY on the initial call and
	// needs a remount pass
	remountRoFlags = bindFlags | syscall.MS_REMOUNT | syscall.MS_RDONLY

	tmpfsFlags = syscall.MS_NOSUID
)

// Builder accumulates an ordered mount plan
type Builder struct {
	Mounts []Mount
}

// NewBuilder creates new mount builder instance
func NewBuilder() *Builder {
	return &Builder{}
}

// WithBind adds a recursive bind mount; read-only binds get a remount
// entry right after so the flag takes effect
func (b *Builder) WithBind(source, target string, readonly bool) *Builder {
	flags := uintptr(bindFlags)
	if readonly {
		flags = roBindFlags
	}
	b.Mounts = append(b.Mounts, Mount{
		Source: source,
		Target: target,
		Flags:  flags,
	})
	if readonly {
		b.Mounts = append(b.Mounts, Mount{
			Target: target,
			Flags:  remountRoFlags,
		})
	}
	return b
}

// WithRemountRo adds a standalone read-only remount of an earlier bind
func (b *Builder) WithRemountRo(target string) *Builder {
	b.Mounts = append(b.Mounts, Mount{
		Target: target,
		Flags:  remountRoFlags,
	})
	return b
}

// WithTmpfs adds a tmpfs mount limited to the given bytes; zero bytes
// mounts the tmpfs read-only to hide the subtree underneath
func (b *Builder) WithTmpfs(target string, bytes uint64) *Builder {
	m := Mount{
		Source: "tmpfs",
		Target: target,
		FsType: "tmpfs",
		Flags:  tmpfsFlags,
	}
	if bytes == 0 {
		m.Flags |= syscall.MS_RDONLY
	} else {
		m.Data = "size=" + strconv.FormatUint(bytes, 10)
	}
	b.Mounts = append(b.Mounts, m)
	return b
}

// WithProc add proc file system
func (b *Builder) WithProc() *Builder {
	b.Mounts = append(b.Mounts, Mount{
		Source: "proc",
		Target: "/proc",
		FsType: "proc",
		Flags:  syscall.MS_NOSUID,
	})
	return b
}

// Build creates the sequence of syscall parameters for the child
func (b *Builder) Build() ([]SyscallParams, error) {
	ret := make([]SyscallParams, 0, len(b.Mounts))
	for _, m := range b.Mounts {
		sp, err := m.ToSyscall()
		if err != nil {
			return nil, err
		}
		ret = append(ret, *sp)
	}
	return ret, nil
}

func (b Builder) String() string {
	var sb strings.Builder
	sb.WriteString("Mounts: ")
	for i, m := range b.Mounts {
		sb.WriteString(m.String())
		if i != len(b.Mounts)-1 {
			sb.WriteString(", ")
		}
	}
	return sb.String()
}
