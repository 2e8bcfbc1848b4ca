package forkexec

import (
	"syscall"

	"github.com/lrun-project/lrun/pkg/mount"
	"github.com/lrun-project/lrun/pkg/rlimit"
)

// Runner describes one child process to clone, initialize and exec.
// Field order mirrors the in-child option processing order.
type Runner struct {
	// argv and env for execve; Args[0] must already be path-resolved
	Args []string
	Env  []string

	// UTS names applied when CLONE_NEWUTS is part of CloneFlags; empty
	// fields are skipped
	HostName, DomainName string

	// fds exempt from the close sweep besides 0, 1, 2 and the sync pipe
	KeepFds []int

	// mounts performed before chroot, in order (binds and ro remounts)
	Binds []mount.SyscallParams

	// new root; empty keeps the current one
	ChrootPath string

	// mounts performed after chroot, in order (proc, tmpfs), with
	// targets resolved inside the new root
	Mounts []mount.SyscallParams

	// replace /dev with a fresh tmpfs carrying only the basic nodes
	RemountDev bool

	// working directory, entered after all mounts
	WorkDir string

	// shell commands run through /bin/sh -c before the credential
	// drop; any non-zero exit aborts the child
	Commands []string

	Umask int

	// Groups is the supplementary group list; when empty the child
	// keeps only GID so host groups do not leak through
	Groups []uint32

	GID uint32
	UID uint32

	// resource limits applied via prlimit64
	RLimits []rlimit.RLimit

	Nice int

	// no_new_privs prctl, required for seccomp without CAP_SYS_ADMIN
	NoNewPrivs bool

	// compiled seccomp program, installed last; nil disables filtering
	Seccomp *syscall.SockFprog

	// namespace selection for clone; SIGCHLD is added automatically
	CloneFlags uintptr

	// SyncFunc is invoked with the child pid after clone while the
	// child is still blocked on the pipe; the supervisor uses it to
	// move the child into the cgroup. A non-nil error aborts the child.
	SyncFunc func(pid int) error
}
