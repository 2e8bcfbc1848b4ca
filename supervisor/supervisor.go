// Package supervisor owns the parent side of one sandboxed invocation:
// it programs the cgroup, clones the child through forkexec, polls the
// accounting until the child exits or trips a limit, writes the status
// report to fd 3 and tears the cgroup down.
package supervisor

import (
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/lrun-project/lrun/config"
	"github.com/lrun-project/lrun/pkg/cgroup"
	"github.com/lrun-project/lrun/pkg/flock"
)

// Supervisor drives one invocation from cgroup creation to cleanup
type Supervisor struct {
	conf *config.Config
	cg   *cgroup.Cgroup
	log  *zap.SugaredLogger

	// autoName cgroups are destroyed on exit; user-named ones are
	// only emptied and left in place
	autoName bool

	lock *flock.Lock
}

// EnsureRoot verifies the process holds root credentials and normalizes
// uid/gid/groups before any privileged operation
func EnsureRoot(conf *config.Config) error {
	if os.Geteuid() != 0 {
		return fmt.Errorf("root required (current euid = %d, uid = %d)", os.Geteuid(), os.Getuid())
	}
	if err := unix.Setuid(0); err != nil {
		return fmt.Errorf("setuid(0): %w", err)
	}
	if err := unix.Setgid(0); err != nil {
		return fmt.Errorf("setgid(0): %w", err)
	}
	groups := make([]int, 0, len(conf.Groups))
	for _, g := range conf.Groups {
		groups = append(groups, int(g))
	}
	if err := unix.Setgroups(groups); err != nil {
		return fmt.Errorf("setgroups: %w", err)
	}
	return nil
}

// New picks the cgroup name and creates the controllers. An empty
// configured name auto-generates one from the supervisor pid.
func New(conf *config.Config, log *zap.SugaredLogger) (*Supervisor, error) {
	name := conf.CgroupName
	autoName := name == ""
	if autoName {
		name = "lrun" + strconv.Itoa(os.Getpid())
	}
	log.Debugf("cgname = %q", name)

	cg, err := cgroup.Create(name)
	if err != nil {
		return nil, fmt.Errorf("can not create cgroup %q: %w", name, err)
	}
	return &Supervisor{
		conf:     conf,
		cg:       cg,
		log:      log,
		autoName: autoName,
	}, nil
}

// AcquireLock serializes invocations sharing a named cgroup through an
// exclusive flock on the memory controller directory
func (s *Supervisor) AcquireLock() error {
	p, err := s.cg.SubsysPath(cgroup.Memory)
	if err != nil {
		return err
	}
	l, err := flock.Acquire(p)
	if err != nil {
		return fmt.Errorf("can not lock cgroup %q: %w", s.cg.Name(), err)
	}
	s.lock = l
	return nil
}

// Setup programs the cgroup before the child exists. The returned code
// is the supervisor exit code when err is non-nil.
func (s *Supervisor) Setup() (int, error) {
	conf, cg := s.conf, s.cg

	// device limits
	if conf.BasicDevices {
		if err := cg.LimitDevices(); err != nil {
			return 1, fmt.Errorf("can not enable devices whitelist: %w", err)
		}
	}

	// memory limits
	if conf.MemoryLimit > 0 {
		if err := cg.SetMemoryLimit(uint64(conf.MemoryLimit)); err != nil {
			return 2, fmt.Errorf("can not set memory limit: %w", err)
		}
	}

	// some cgroup options, fail quietly
	cg.Set(cgroup.Memory, "memory.swappiness", "0\n")

	// enable oom killer so a hard memory hit does not freeze the
	// child; the supervisor detects the kill through the counters
	cg.Set(cgroup.Memory, "memory.oom_control", "0\n")

	// other cgroup options
	for _, o := range conf.CgroupOptions {
		if err := cg.Set(o.Subsys, o.Key, o.Value); err != nil {
			return 7, fmt.Errorf("can not set cgroup option %q/%q to %q: %w", o.Subsys, o.Key, o.Value, err)
		}
	}

	// reset cpu / memory usage and killall existing processes, in case
	// the named cgroup is reused
	cg.KillAll()

	if err := cg.ResetUsages(); err != nil {
		return 4, fmt.Errorf("can not reset cpu time / memory usage counter: %w", err)
	}
	return 0, nil
}

// CleanExit guarantees no process is left in the cgroup, removes it
// when auto-named and terminates the supervisor
func (s *Supervisor) CleanExit(code int) {
	s.log.Debugf("cleaning and exiting with code = %d", code)

	if s.autoName {
		if err := s.cg.Destroy(); err != nil {
			s.log.Warnf("can not destroy cgroup: %v", err)
		}
	} else {
		s.cg.KillAll()
	}
	s.lock.Release()
	_ = s.log.Sync()
	os.Exit(code)
}
