package forkexec

import (
	"syscall"
	"unsafe" // required for go:linkname.

	"golang.org/x/sys/unix"

	"github.com/lrun-project/lrun/pkg/mount"
	"github.com/lrun-project/lrun/pkg/rlimit"
)

//go:linkname beforeFork syscall.runtime_BeforeFork
func beforeFork()

//go:linkname afterFork syscall.runtime_AfterFork
func afterFork()

//go:linkname afterForkInChild syscall.runtime_AfterForkInChild
func afterForkInChild()

// childArgs carries everything the child touches after the address
// space diverges; all of it is allocated before clone
type childArgs struct {
	argv0 *byte
	argv  []*byte
	env   []*byte

	hostname, domainname       *byte
	hostnameLen, domainnameLen int

	keepFds []int
	maxFd   int

	binds  []mount.SyscallParams
	chroot *byte
	mounts []mount.SyscallParams

	remountDev bool

	workdir *byte

	sh     *byte
	cmds   [][]*byte
	cmdEnv []*byte

	umask  int
	groups []uint32
	gid    uint32
	uid    uint32

	rlimits []rlimit.RLimit

	nice int

	noNewPrivs bool
	seccomp    *syscall.SockFprog

	cloneFlags uintptr
}

// Start clones the child with the configured namespace flags, blocks it
// until SyncFunc has run, and returns its pid once it is on its way to
// execve. Any pre-execve failure is returned as a ChildError.
func (r *Runner) Start() (int, error) {
	c, err := r.prepare()
	if err != nil {
		return 0, err
	}

	// socketpair p is used to block the child until it has been moved
	// into the cgroup and to report pre-execve failures back.
	// p[0] is used by parent and p[1] is used by child
	p, err := syscall.Socketpair(syscall.AF_LOCAL, syscall.SOCK_STREAM|syscall.SOCK_CLOEXEC, 0)
	if err != nil {
		return 0, err
	}

	// fork in child
	pid, err1 := forkAndExecInChild(c, p)

	// restore all signals
	afterFork()
	syscall.ForkLock.Unlock()

	return syncWithChild(r, p, int(pid), err1)
}

func (r *Runner) prepare() (*childArgs, error) {
	c := &childArgs{
		remountDev: r.RemountDev,
		umask:      r.Umask,
		gid:        r.GID,
		uid:        r.UID,
		nice:       r.Nice,
		noNewPrivs: r.NoNewPrivs,
		seccomp:    r.Seccomp,
		cloneFlags: r.CloneFlags,
		binds:      r.Binds,
		mounts:     r.Mounts,
	}

	var err error
	if c.argv0, c.argv, c.env, err = prepareExec(r.Args, r.Env); err != nil {
		return nil, err
	}
	if c.hostname, err = syscallStringFromString(r.HostName); err != nil {
		return nil, err
	}
	c.hostnameLen = len(r.HostName)
	if c.domainname, err = syscallStringFromString(r.DomainName); err != nil {
		return nil, err
	}
	c.domainnameLen = len(r.DomainName)
	if c.chroot, err = syscallStringFromString(r.ChrootPath); err != nil {
		return nil, err
	}
	if c.workdir, err = syscallStringFromString(r.WorkDir); err != nil {
		return nil, err
	}
	if c.sh, c.cmds, c.cmdEnv, err = prepareCommands(r.Commands); err != nil {
		return nil, err
	}
	c.keepFds, c.maxFd = prepareKeepFds(r.KeepFds)

	// the credential drop always resets supplementary groups: the
	// configured list, or just the target gid
	if len(r.Groups) > 0 {
		c.groups = append([]uint32(nil), r.Groups...)
	} else {
		c.groups = []uint32{r.GID}
	}

	// rlimits are applied via prlimit64 inside the child
	c.rlimits = r.RLimits
	return c, nil
}

func syncWithChild(r *Runner, p [2]int, pid int, err1 syscall.Errno) (int, error) {
	var (
		r1         uintptr
		err2       syscall.Errno
		childError ChildError
	)

	// sync with child
	unix.Close(p[1])

	// clone syscall failed
	if err1 != 0 {
		unix.Close(p[0])
		return 0, ChildError{Err: err1, Location: LocClone}
	}

	// the child waits on the pipe until the cgroup membership is in
	// place; SyncFunc failure aborts it before any setup ran
	if r.SyncFunc != nil {
		if err := r.SyncFunc(pid); err != nil {
			err2 = syscall.ECANCELED
			if errno, ok := err.(syscall.Errno); ok {
				err2 = errno
			}
			syscall.RawSyscall(syscall.SYS_WRITE, uintptr(p[0]), uintptr(unsafe.Pointer(&err2)), uintptr(unsafe.Sizeof(err2)))
			unix.Close(p[0])
			handleChildFailed(pid)
			return 0, err
		}
	}
	// release the child (err2 == 0)
	syscall.RawSyscall(syscall.SYS_WRITE, uintptr(p[0]), uintptr(unsafe.Pointer(&err2)), uintptr(unsafe.Sizeof(err2)))

	// The pipe is close-on-exec: zero bytes mean the child reached
	// execve, a ChildError means it failed at that setup stage.
	r1, _, err1 = syscall.RawSyscall(syscall.SYS_READ, uintptr(p[0]), uintptr(unsafe.Pointer(&childError)), uintptr(unsafe.Sizeof(childError)))
	unix.Close(p[0])
	if r1 == 0 && err1 == 0 {
		return pid, nil
	}

	handleChildFailed(pid)
	if r1 != uintptr(unsafe.Sizeof(childError)) || err1 != 0 {
		return 0, ChildError{Err: syscall.EPIPE, Location: LocSyncRead}
	}
	return 0, childError
}

func handleChildFailed(pid int) {
	var wstatus syscall.WaitStatus
	// make sure not blocked
	syscall.Kill(pid, syscall.SIGKILL)
	// child failed; wait for it to exit, to make sure the zombies don't accumulate
	_, err := syscall.Wait4(pid, &wstatus, 0, nil)
	for err == syscall.EINTR {
		_, err = syscall.Wait4(pid, &wstatus, 0, nil)
	}
}
