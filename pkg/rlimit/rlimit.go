// Package rlimit provides data structure for resource limits applied to the
// supervised process by the prlimit64 syscall on linux.
package rlimit

import (
	"fmt"
	"strings"
	"syscall"

	"github.com/lrun-project/lrun/runner"
)

// RLimits defines the rlimit settings prepared for the child process
type RLimits struct {
	CPU         uint64 // in s, hard wall behind the cgroup accounting
	FileSize    uint64 // in bytes, tied to the output limit
	Stack       uint64 // in bytes
	NoFile      uint64 // count of open file descriptors
	NProc       uint64 // count of processes for the target uid
	RTPrio      uint64 // max realtime priority
	DisableCore bool   // set core to 0

	// set* tracks fields explicitly configured so a zero value is still
	// applied (e.g. --max-rtprio 0)
	setNoFile, setNProc, setRTPrio, setStack bool
}

// RLimit is one resource limit ready for prlimit64
type RLimit struct {
	// Res is the resource type (e.g. syscall.RLIMIT_CPU)
	Res int
	// Rlim is the limit applied to that resource
	Rlim syscall.Rlimit
}

func getRlimit(cur, max uint64) syscall.Rlimit {
	return syscall.Rlimit{Cur: cur, Max: max}
}

// SetNoFile records an explicit RLIMIT_NOFILE value
func (r *RLimits) SetNoFile(v uint64) { r.NoFile, r.setNoFile = v, true }

// SetNProc records an explicit RLIMIT_NPROC value
func (r *RLimits) SetNProc(v uint64) { r.NProc, r.setNProc = v, true }

// SetRTPrio records an explicit RLIMIT_RTPRIO value
func (r *RLimits) SetRTPrio(v uint64) { r.RTPrio, r.setRTPrio = v, true }

// SetStack records an explicit RLIMIT_STACK value
func (r *RLimits) SetStack(v uint64) { r.Stack, r.setStack = v, true }

// PrepareRLimit creates rlimit structures for the child process
func (r *RLimits) PrepareRLimit() []RLimit {
	var ret []RLimit
	if r.CPU > 0 {
		ret = append(ret, RLimit{
			Res:  syscall.RLIMIT_CPU,
			Rlim: getRlimit(r.CPU, r.CPU),
		})
	}
	if r.FileSize > 0 {
		ret = append(ret, RLimit{
			Res:  syscall.RLIMIT_FSIZE,
			Rlim: getRlimit(r.FileSize, r.FileSize),
		})
	}
	if r.setStack {
		ret = append(ret, RLimit{
			Res:  syscall.RLIMIT_STACK,
			Rlim: getRlimit(r.Stack, r.Stack),
		})
	}
	if r.setNoFile {
		ret = append(ret, RLimit{
			Res:  syscall.RLIMIT_NOFILE,
			Rlim: getRlimit(r.NoFile, r.NoFile),
		})
	}
	if r.setNProc {
		ret = append(ret, RLimit{
			Res:  rlimitNProc,
			Rlim: getRlimit(r.NProc, r.NProc),
		})
	}
	if r.setRTPrio {
		ret = append(ret, RLimit{
			Res:  rlimitRTPrio,
			Rlim: getRlimit(r.RTPrio, r.RTPrio),
		})
	}
	if r.DisableCore {
		ret = append(ret, RLimit{
			Res:  syscall.RLIMIT_CORE,
			Rlim: getRlimit(0, 0),
		})
	}
	return ret
}

func (r RLimit) String() string {
	t := ""
	switch r.Res {
	case syscall.RLIMIT_CPU:
		return fmt.Sprintf("CPU[%d s:%d s]", r.Rlim.Cur, r.Rlim.Max)
	case syscall.RLIMIT_FSIZE:
		t = "File"
	case syscall.RLIMIT_STACK:
		t = "Stack"
	case syscall.RLIMIT_NOFILE:
		return fmt.Sprintf("NoFile[%d:%d]", r.Rlim.Cur, r.Rlim.Max)
	case rlimitNProc:
		return fmt.Sprintf("NProc[%d:%d]", r.Rlim.Cur, r.Rlim.Max)
	case rlimitRTPrio:
		return fmt.Sprintf("RTPrio[%d:%d]", r.Rlim.Cur, r.Rlim.Max)
	case syscall.RLIMIT_CORE:
		t = "Core"
	}
	return fmt.Sprintf("%s[%v:%v]", t, runner.Size(r.Rlim.Cur), runner.Size(r.Rlim.Max))
}

func (r RLimits) String() string {
	var sb strings.Builder
	sb.WriteString("RLimits[")
	for i, rl := range r.PrepareRLimit() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(rl.String())
	}
	sb.WriteString("]")
	return sb.String()
}
