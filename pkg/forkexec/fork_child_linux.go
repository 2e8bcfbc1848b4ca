package forkexec

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Reference to src/syscall/exec_linux.go
//
//go:norace
func forkAndExecInChild(c *childArgs, p [2]int) (r1 uintptr, err1 syscall.Errno) {
	// Acquire the fork lock so that no other threads
	// create new fds that are not yet close-on-exec
	// before we fork.
	syscall.ForkLock.Lock()

	// About to call fork.
	// No more allocation or calls of non-assembly functions.
	beforeFork()

	// namespaces are activated by the clone syscall
	r1, _, err1 = syscall.RawSyscall6(syscall.SYS_CLONE, uintptr(syscall.SIGCHLD)|c.cloneFlags, 0, 0, 0, 0, 0)
	if err1 != 0 || r1 != 0 {
		// in parent process, immediate return
		return
	}

	// In child process
	afterForkInChild()
	// Notice: cannot call any GO functions beyond this point

	pipe := p[1]
	var (
		err2    syscall.Errno
		wstatus uint32
	)

	// Close read end of pipe
	if _, _, err1 = syscall.RawSyscall(syscall.SYS_CLOSE, uintptr(p[0]), 0, 0); err1 != 0 {
		childExitError(pipe, LocCloseWrite, err1)
	}

	// Block until the parent has moved us into the cgroup, so no user
	// instruction runs outside the accounting
	r1, _, err1 = syscall.RawSyscall(syscall.SYS_READ, uintptr(pipe), uintptr(unsafe.Pointer(&err2)), unsafe.Sizeof(err2))
	if err1 != 0 {
		childExitError(pipe, LocSyncRead, err1)
	}
	if r1 != unsafe.Sizeof(err2) {
		childExitError(pipe, LocSyncRead, syscall.EINVAL)
	}
	if err2 != 0 {
		// parent failed to place us, give up quietly
		childExitError(pipe, LocSyncRead, err2)
	}

	// Apply UTS names inside the fresh UTS namespace
	if c.hostname != nil {
		_, _, err1 = syscall.RawSyscall(syscall.SYS_SETHOSTNAME,
			uintptr(unsafe.Pointer(c.hostname)), uintptr(c.hostnameLen), 0)
		if err1 != 0 {
			childExitError(pipe, LocSetHostname, err1)
		}
	}
	if c.domainname != nil {
		_, _, err1 = syscall.RawSyscall(syscall.SYS_SETDOMAINNAME,
			uintptr(unsafe.Pointer(c.domainname)), uintptr(c.domainnameLen), 0)
		if err1 != 0 {
			childExitError(pipe, LocSetDomainname, err1)
		}
	}

	// Close every fd except stdio, the sync pipe and the keep list.
	// Close errors are ignored: most fds in the range simply do not
	// exist.
	{
		ki := 0
		for fd := 3; fd < c.maxFd; fd++ {
			if fd == pipe {
				continue
			}
			for ki < len(c.keepFds) && c.keepFds[ki] < fd {
				ki++
			}
			if ki < len(c.keepFds) && c.keepFds[ki] == fd {
				continue
			}
			syscall.RawSyscall(syscall.SYS_CLOSE, uintptr(fd), 0, 0)
		}
	}

	// Mount namespace is always unshared: mark root as private to avoid
	// propagating outside to the original mount namespace
	_, _, err1 = syscall.RawSyscall6(syscall.SYS_MOUNT, uintptr(unsafe.Pointer(&none[0])),
		uintptr(unsafe.Pointer(&slash[0])), 0, syscall.MS_REC|syscall.MS_PRIVATE, 0, 0)
	if err1 != 0 {
		childExitError(pipe, LocMountRoot, err1)
	}

	// Bind mounts and read-only remounts, in the configured order
	for i, m := range c.binds {
		_, _, err1 = syscall.RawSyscall6(syscall.SYS_MOUNT, uintptr(unsafe.Pointer(m.Source)),
			uintptr(unsafe.Pointer(m.Target)), uintptr(unsafe.Pointer(m.FsType)), m.Flags,
			uintptr(unsafe.Pointer(m.Data)), 0)
		if err1 != 0 {
			childExitErrorWithIndex(pipe, LocBindMount, i, err1)
		}
	}

	// Enter the new root, then normalize the working directory
	if c.chroot != nil {
		_, _, err1 = syscall.RawSyscall(syscall.SYS_CHROOT, uintptr(unsafe.Pointer(c.chroot)), 0, 0)
		if err1 != 0 {
			childExitError(pipe, LocChroot, err1)
		}
		_, _, err1 = syscall.RawSyscall(syscall.SYS_CHDIR, uintptr(unsafe.Pointer(&slash[0])), 0, 0)
		if err1 != 0 {
			childExitError(pipe, LocChroot, err1)
		}
	}

	// proc and tmpfs mounts, targets inside the new root
	for i, m := range c.mounts {
		_, _, err1 = syscall.RawSyscall6(syscall.SYS_MOUNT, uintptr(unsafe.Pointer(m.Source)),
			uintptr(unsafe.Pointer(m.Target)), uintptr(unsafe.Pointer(m.FsType)), m.Flags,
			uintptr(unsafe.Pointer(m.Data)), 0)
		if err1 != 0 {
			childExitErrorWithIndex(pipe, LocMount, i, err1)
		}
	}

	// Replace /dev with a fresh tmpfs carrying the basic nodes only
	if c.remountDev {
		// /dev may not be a mount point, so the unmount result is not
		// checked; the tmpfs goes over whatever is there
		syscall.RawSyscall(syscall.SYS_UMOUNT2, uintptr(unsafe.Pointer(&dev[0])), syscall.MNT_DETACH, 0)
		_, _, err1 = syscall.RawSyscall6(syscall.SYS_MOUNT, uintptr(unsafe.Pointer(&tmpfs[0])),
			uintptr(unsafe.Pointer(&dev[0])), uintptr(unsafe.Pointer(&tmpfs[0])),
			syscall.MS_NOSUID, uintptr(unsafe.Pointer(&devMode[0])), 0)
		if err1 != 0 {
			childExitError(pipe, LocRemountDev, err1)
		}
		for i, n := range devNodes {
			_, _, err1 = syscall.RawSyscall6(unix.SYS_MKNODAT, uintptr(_AT_FDCWD),
				uintptr(unsafe.Pointer(n.path)), syscall.S_IFCHR|0666, n.num, 0, 0)
			if err1 != 0 {
				childExitErrorWithIndex(pipe, LocRemountDev, i, err1)
			}
			// mknod honors umask, fix the mode up
			_, _, err1 = syscall.RawSyscall6(unix.SYS_FCHMODAT, uintptr(_AT_FDCWD),
				uintptr(unsafe.Pointer(n.path)), 0666, 0, 0, 0)
			if err1 != 0 {
				childExitErrorWithIndex(pipe, LocRemountDev, i, err1)
			}
		}
	}

	// chdir for child
	if c.workdir != nil {
		_, _, err1 = syscall.RawSyscall(syscall.SYS_CHDIR, uintptr(unsafe.Pointer(c.workdir)), 0, 0)
		if err1 != 0 {
			childExitError(pipe, LocChdir, err1)
		}
	}

	// Run the setup commands through /bin/sh -c while still privileged;
	// any non-zero exit aborts the launch
	for i := range c.cmds {
		r1, _, err1 = syscall.RawSyscall6(syscall.SYS_CLONE, uintptr(syscall.SIGCHLD), 0, 0, 0, 0, 0)
		if err1 != 0 {
			childExitErrorWithIndex(pipe, LocCommand, i, err1)
		}
		if r1 == 0 {
			// in grandchild
			syscall.RawSyscall(unix.SYS_EXECVE, uintptr(unsafe.Pointer(c.sh)),
				uintptr(unsafe.Pointer(&c.cmds[i][0])), uintptr(unsafe.Pointer(&c.cmdEnv[0])))
			for {
				syscall.RawSyscall(syscall.SYS_EXIT, 127, 0, 0)
			}
		}
		wstatus = 0
		_, _, err1 = syscall.RawSyscall6(syscall.SYS_WAIT4, r1,
			uintptr(unsafe.Pointer(&wstatus)), 0, 0, 0, 0)
		for err1 == syscall.EINTR {
			_, _, err1 = syscall.RawSyscall6(syscall.SYS_WAIT4, r1,
				uintptr(unsafe.Pointer(&wstatus)), 0, 0, 0, 0)
		}
		if err1 != 0 {
			childExitErrorWithIndex(pipe, LocCommand, i, err1)
		}
		if wstatus != 0 {
			childExitErrorWithIndex(pipe, LocCommand, i, syscall.EINVAL)
		}
	}

	_, _, err1 = syscall.RawSyscall(unix.SYS_UMASK, uintptr(c.umask), 0, 0)
	if err1 != 0 {
		childExitError(pipe, LocUmask, err1)
	}

	// Drop credentials; this exact order is mandatory since setuid
	// removes the capability to call the other two
	_, _, err1 = syscall.RawSyscall(unix.SYS_SETGROUPS, uintptr(len(c.groups)),
		uintptr(unsafe.Pointer(&c.groups[0])), 0)
	if err1 != 0 {
		childExitError(pipe, LocSetGroups, err1)
	}
	_, _, err1 = syscall.RawSyscall(unix.SYS_SETGID, uintptr(c.gid), 0, 0)
	if err1 != 0 {
		childExitError(pipe, LocSetGid, err1)
	}
	_, _, err1 = syscall.RawSyscall(unix.SYS_SETUID, uintptr(c.uid), 0, 0)
	if err1 != 0 {
		childExitError(pipe, LocSetUid, err1)
	}

	// Set limit
	for i, rlim := range c.rlimits {
		// prlimit instead of setrlimit to avoid 32-bit limitation (linux > 3.2)
		_, _, err1 = syscall.RawSyscall6(syscall.SYS_PRLIMIT64, 0, uintptr(rlim.Res), uintptr(unsafe.Pointer(&rlim.Rlim)), 0, 0, 0)
		if err1 != 0 {
			childExitErrorWithIndex(pipe, LocSetRlimit, i, err1)
		}
	}

	if c.nice != 0 {
		// nice is an increment: the raw getpriority returns 20 - nice,
		// setpriority takes the absolute value
		r1, _, err1 = syscall.RawSyscall(syscall.SYS_GETPRIORITY, 0 /* PRIO_PROCESS */, 0, 0)
		if err1 != 0 {
			childExitError(pipe, LocSetPriority, err1)
		}
		_, _, err1 = syscall.RawSyscall(syscall.SYS_SETPRIORITY, 0 /* PRIO_PROCESS */, 0, uintptr(20-int(r1)+c.nice))
		if err1 != 0 {
			childExitError(pipe, LocSetPriority, err1)
		}
	}

	// No new privs
	if c.noNewPrivs {
		_, _, err1 = syscall.RawSyscall6(syscall.SYS_PRCTL, unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0, 0)
		if err1 != 0 {
			childExitError(pipe, LocSetNoNewPrivs, err1)
		}
	}

	// Load seccomp; must be last so the filter does not constrain the
	// setup syscalls above
	if c.seccomp != nil {
		_, _, err1 = syscall.RawSyscall(unix.SYS_SECCOMP, _SECCOMP_SET_MODE_FILTER,
			_SECCOMP_FILTER_FLAG_TSYNC, uintptr(unsafe.Pointer(c.seccomp)))
		if err1 != 0 {
			childExitError(pipe, LocSeccomp, err1)
		}
	}

	// time to exec; the pipe is close-on-exec so success is signaled by
	// its silent close
	_, _, err1 = syscall.RawSyscall(unix.SYS_EXECVE, uintptr(unsafe.Pointer(c.argv0)),
		uintptr(unsafe.Pointer(&c.argv[0])), uintptr(unsafe.Pointer(&c.env[0])))
	childExitError(pipe, LocExecve, err1)
	return
}

//go:nosplit
func childExitError(pipe int, loc ErrorLocation, err syscall.Errno) {
	// send error code on pipe
	childError := ChildError{
		Err:      err,
		Location: loc,
	}

	// send error code on pipe
	syscall.RawSyscall(unix.SYS_WRITE, uintptr(pipe), uintptr(unsafe.Pointer(&childError)), unsafe.Sizeof(childError))
	for {
		syscall.RawSyscall(syscall.SYS_EXIT, uintptr(err), 0, 0)
	}
}

//go:nosplit
func childExitErrorWithIndex(pipe int, loc ErrorLocation, idx int, err syscall.Errno) {
	// send error code on pipe
	childError := ChildError{
		Err:      err,
		Location: loc,
		Index:    idx,
	}

	// send error code on pipe
	syscall.RawSyscall(unix.SYS_WRITE, uintptr(pipe), uintptr(unsafe.Pointer(&childError)), unsafe.Sizeof(childError))
	for {
		syscall.RawSyscall(syscall.SYS_EXIT, uintptr(err), 0, 0)
	}
}
