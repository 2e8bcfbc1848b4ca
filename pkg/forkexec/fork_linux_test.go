package forkexec

import (
	"os"
	"syscall"
	"testing"
)

func TestErrorLocationExitCodes(t *testing.T) {
	for _, c := range []struct {
		loc  ErrorLocation
		code int
	}{
		{LocClone, 10},
		{LocSyncRead, 10},
		{LocSetHostname, 11},
		{LocCloseFds, 12},
		{LocBindMount, 13},
		{LocChroot, 14},
		{LocMount, 15},
		{LocRemountDev, 15},
		{LocChdir, 16},
		{LocCommand, 17},
		{LocSetUid, 18},
		{LocSetRlimit, 19},
		{LocSeccomp, 20},
		{LocExecve, 20},
	} {
		if got := c.loc.ExitCode(); got != c.code {
			t.Errorf("%v: exit code = %d, want %d", c.loc, got, c.code)
		}
	}
}

func TestChildErrorString(t *testing.T) {
	e := ChildError{Err: syscall.ENOENT, Location: LocExecve}
	if e.Error() != "execve: no such file or directory" {
		t.Errorf("unexpected error string: %q", e.Error())
	}
	ei := ChildError{Err: syscall.EACCES, Location: LocBindMount, Index: 2}
	if ei.Error() != "mount(bind)(2): permission denied" {
		t.Errorf("unexpected error string: %q", ei.Error())
	}
}

func TestPrepareKeepFds(t *testing.T) {
	fds, maxFd := prepareKeepFds([]int{7, 4})
	if fds[0] != 4 || fds[1] != 7 {
		t.Errorf("keep fds not sorted: %v", fds)
	}
	if maxFd <= 7 {
		t.Errorf("maxFd too small: %d", maxFd)
	}
}

// TestStartTrue requires root to set up namespaces and drop credentials
func TestStartTrue(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("test requires root")
	}
	if _, err := os.Stat("/bin/true"); err != nil {
		t.Skip("/bin/true not available")
	}
	r := Runner{
		Args:       []string{"/bin/true"},
		Env:        []string{"PATH=/bin:/usr/bin"},
		GID:        65534,
		UID:        65534,
		Umask:      0022,
		NoNewPrivs: true,
		CloneFlags: syscall.CLONE_NEWNS,
	}
	pid, err := r.Start()
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	var ws syscall.WaitStatus
	if _, err := syscall.Wait4(pid, &ws, 0, nil); err != nil {
		t.Fatalf("wait4: %v", err)
	}
	if !ws.Exited() || ws.ExitStatus() != 0 {
		t.Errorf("unexpected wait status: %v", ws)
	}
}

// TestStartExecFailure verifies the error pipe carries the stage back
func TestStartExecFailure(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("test requires root")
	}
	r := Runner{
		Args:       []string{"/nonexistent-binary"},
		Env:        []string{},
		GID:        65534,
		UID:        65534,
		Umask:      0022,
		NoNewPrivs: true,
		CloneFlags: syscall.CLONE_NEWNS,
	}
	_, err := r.Start()
	ce, ok := err.(ChildError)
	if !ok {
		t.Fatalf("expected ChildError, got %v", err)
	}
	if ce.Location != LocExecve {
		t.Errorf("expected execve failure, got %v", ce.Location)
	}
}
