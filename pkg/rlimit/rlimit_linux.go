package rlimit

import "golang.org/x/sys/unix"

// syscall package does not export these two resources
const (
	rlimitNProc  = unix.RLIMIT_NPROC
	rlimitRTPrio = unix.RLIMIT_RTPRIO
)
