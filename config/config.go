// Package config holds the immutable policy bundle for one supervised
// invocation. The option parser builds a Config, Validate freezes it,
// and everything downstream treats it as read-only.
package config

import (
	"time"

	"github.com/lrun-project/lrun/pkg/rlimit"
	"github.com/lrun-project/lrun/pkg/seccomp"
)

// MinMemoryLimit is the smallest enforceable memory limit; anything
// positive below it is snapped up so the kernel accounting stays sane
const MinMemoryLimit = 500000

// BindMount is one ordered --bindfs/--bindfs-ro entry
type BindMount struct {
	Dest, Src string
	ReadOnly  bool
}

// TmpfsMount is one ordered --tmpfs entry; zero bytes mounts read-only
type TmpfsMount struct {
	Path  string
	Bytes uint64
}

// EnvPair is one ordered --env entry
type EnvPair struct {
	Key, Value string
}

// CgroupOption is one raw --cgroup-option write
type CgroupOption struct {
	Subsys, Key, Value string
}

// UTS carries the names applied inside a fresh UTS namespace. Sysname,
// Release and Version are accepted for compatibility but the kernel
// offers no syscall to change them.
type UTS struct {
	Nodename   string
	Domainname string
	Sysname    string
	Release    string
	Version    string
}

// Empty reports whether no UTS field is set
func (u UTS) Empty() bool {
	return u == UTS{}
}

// Config is the full policy for one invocation
type Config struct {
	// time limits in seconds, fractional; <= 0 means unlimited
	CPUTimeLimit  float64
	RealTimeLimit float64

	// space limits in bytes; <= 0 means unlimited
	MemoryLimit int64
	OutputLimit int64

	RLimits rlimit.RLimits

	UID    uint32
	GID    uint32
	Groups []uint32
	Umask  int
	Nice   int

	IsolateProcess bool
	EnableNetwork  bool
	BasicDevices   bool
	RemountDev     bool
	ResetEnv       bool
	NoNewPrivs     bool

	Binds     []BindMount
	RemountRO []string
	Tmpfs     []TmpfsMount

	ChrootPath string
	ChdirPath  string

	UTS UTS

	Args    []string
	Env     []EnvPair
	KeepFds []int
	Cmds    []string

	SyscallMode seccomp.Mode
	SyscallList string
	// set when --syscalls was given, so an empty blacklist is
	// distinguishable from no filter at all
	SyscallsSet bool

	CgroupName    string
	CgroupOptions []CgroupOption

	Interval time.Duration

	PassExitcode bool

	Debug  bool
	Status bool
}

// Default returns the configuration lrun starts from before options are
// applied
func Default(uid, gid uint32) *Config {
	c := &Config{
		CPUTimeLimit:   -1,
		RealTimeLimit:  -1,
		MemoryLimit:    -1,
		OutputLimit:    -1,
		UID:            uid,
		GID:            gid,
		Umask:          0022,
		IsolateProcess: true,
		EnableNetwork:  true,
		NoNewPrivs:     true,
		SyscallMode:    seccomp.ModeBlacklist,
		Interval:       20 * time.Millisecond,
	}
	c.RLimits.SetNoFile(256)
	c.RLimits.SetNProc(2048)
	c.RLimits.SetRTPrio(0)
	c.RLimits.DisableCore = true
	return c
}
