// Package forkexec clones the supervised child into its namespaces and
// runs the in-child initialization sequence up to execve: UTS names, fd
// sweep, bind mounts, chroot, proc and tmpfs mounts, /dev rebuild,
// working directory, setup commands, umask, credential drop, rlimits,
// niceness, no-new-privs and the seccomp program.
//
// After the address space diverges the child may not call into the Go
// runtime, so everything it touches is preallocated before clone and the
// child body is written in raw syscalls only. The parent and child share
// a close-on-exec socketpair: the child blocks on it until the parent has
// moved it into the cgroup, and any pre-execve failure is reported back
// through it as a ChildError.
//
// seccomp and unshare pid namespaces require kernel >= 3.8,
// PR_SET_NO_NEW_PRIVS requires kernel >= 3.5.
package forkexec
