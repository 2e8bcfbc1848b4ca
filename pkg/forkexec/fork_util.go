package forkexec

import (
	"os"
	"sort"
	"syscall"
)

// prepareExec prepares execve parameters
func prepareExec(args, env []string) (*byte, []*byte, []*byte, error) {
	// make exec args0
	argv0, err := syscall.BytePtrFromString(args[0])
	if err != nil {
		return nil, nil, nil, err
	}
	// make exec args
	argv, err := syscall.SlicePtrFromStrings(args)
	if err != nil {
		return nil, nil, nil, err
	}
	// make env
	envv, err := syscall.SlicePtrFromStrings(env)
	if err != nil {
		return nil, nil, nil, err
	}
	return argv0, argv, envv, nil
}

// syscallStringFromString prepares *byte if string is not empty, otherwise nil
func syscallStringFromString(str string) (*byte, error) {
	if str != "" {
		return syscall.BytePtrFromString(str)
	}
	return nil, nil
}

// prepareCommands marshals the setup commands into /bin/sh -c argv
// arrays together with the supervisor's environment
func prepareCommands(commands []string) (*byte, [][]*byte, []*byte, error) {
	if len(commands) == 0 {
		return nil, nil, nil, nil
	}
	sh, err := syscall.BytePtrFromString("/bin/sh")
	if err != nil {
		return nil, nil, nil, err
	}
	cmds := make([][]*byte, 0, len(commands))
	for _, c := range commands {
		argv, err := syscall.SlicePtrFromStrings([]string{"/bin/sh", "-c", c})
		if err != nil {
			return nil, nil, nil, err
		}
		cmds = append(cmds, argv)
	}
	envv, err := syscall.SlicePtrFromStrings(os.Environ())
	if err != nil {
		return nil, nil, nil, err
	}
	return sh, cmds, envv, nil
}

// prepareKeepFds sorts a private copy of the keep list and computes the
// close sweep upper bound from the current RLIMIT_NOFILE
func prepareKeepFds(keep []int) ([]int, int) {
	fds := make([]int, len(keep))
	copy(fds, keep)
	sort.Ints(fds)

	var lim syscall.Rlimit
	maxFd := 1 << 12
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &lim); err == nil && lim.Cur > 0 {
		maxFd = int(lim.Cur)
	}
	if maxFd > 1<<16 {
		maxFd = 1 << 16
	}
	for _, fd := range fds {
		if fd >= maxFd {
			maxFd = fd + 1
		}
	}
	return fds, maxFd
}
