// Package flock provides an exclusive advisory lock over a directory,
// used to serialize invocations that share a named cgroup.
package flock

import (
	"os"

	"golang.org/x/sys/unix"
)

// Lock holds an open directory fd with an exclusive flock on it
type Lock struct {
	f *os.File
}

// Acquire opens the path and blocks until the exclusive lock is held
func Acquire(path string) (*Lock, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	err = unix.Flock(int(f.Fd()), unix.LOCK_EX)
	for err == unix.EINTR {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX)
	}
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Lock{f: f}, nil
}

// Release unlocks and closes the underlying fd
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	err := l.f.Close()
	l.f = nil
	return err
}
