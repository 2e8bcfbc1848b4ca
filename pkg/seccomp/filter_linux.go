package seccomp

import (
	"syscall"
)

// Filter is the assembled seccomp BPF program
type Filter []syscall.SockFilter

// SockFprog converts Filter to SockFprog for the seccomp syscall
func (f Filter) SockFprog() *syscall.SockFprog {
	b := []syscall.SockFilter(f)
	return &syscall.SockFprog{
		Len:    uint16(len(b)),
		Filter: &b[0],
	}
}
