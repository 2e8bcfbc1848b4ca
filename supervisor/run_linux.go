package supervisor

import (
	"fmt"
	"math"
	"os"
	"os/exec"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/lrun-project/lrun/config"
	"github.com/lrun-project/lrun/pkg/forkexec"
	"github.com/lrun-project/lrun/pkg/mount"
	"github.com/lrun-project/lrun/pkg/seccomp"
	"github.com/lrun-project/lrun/runner"
)

// Run spawns the child and supervises it until exit or limit violation.
// When supervision completes the status report is written before
// returning; the early error returns (fd 3 setup, spawn failure, external
// signal, zombie reap failure) write no report. The returned value is the
// supervisor exit code (possibly the child's, with --pass-exitcode).
func (s *Supervisor) Run() int {
	conf := s.conf

	// fd 3 carries the report and should not be inherited by the child
	if err := setCloexec(3); err != nil {
		s.log.Errorf("can not set FD_CLOEXEC on fd 3: %v", err)
		return 5
	}

	r, err := s.buildRunner()
	if err != nil {
		s.log.Errorf("can not prepare child: %v", err)
		return launchExitCode(err)
	}

	pid, err := r.Start()
	if err != nil {
		s.log.Errorf("can not spawn child: %v", err)
		return launchExitCode(err)
	}

	// external termination requests are latched by the handler and
	// sampled once per loop iteration; PIPE is ignored so an fd-3
	// reader closing early does not kill the cleanup, ALRM so nothing
	// disturbs the poll pacing
	var sigFlag atomic.Int32
	signal.Ignore(syscall.SIGPIPE, syscall.SIGALRM)
	sigCh := make(chan os.Signal, 8)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM,
		syscall.SIGABRT, syscall.SIGQUIT, syscall.SIGFPE, syscall.SIGILL, syscall.SIGTRAP)
	go func() {
		for sg := range sigCh {
			if ss, ok := sg.(syscall.Signal); ok {
				sigFlag.Store(int32(ss))
			}
		}
	}()

	// make the supervisor harder to starve than its subject
	if err := unix.Setpriority(unix.PRIO_PROCESS, 0, -5); err != nil {
		s.log.Errorf("can not renice: %v", err)
	}

	s.log.Debugf("entering main loop, watching pid %d", pid)

	startTime := time.Now()
	var deadline time.Time
	if conf.RealTimeLimit > 0 {
		deadline = startTime.Add(secondsToDuration(conf.RealTimeLimit))
	}

	var ws unix.WaitStatus
	exceeded := runner.ExceedNone

loop:
	for running := true; running; {
		// check signal
		if sg := sigFlag.Load(); sg != 0 {
			fmt.Fprintf(os.Stderr, "Receive signal %d, exiting...\n", sg)
			return 4
		}

		// check stat
		ws = 0
		np, werr := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
		if np == pid && (ws.Exited() || ws.Signaled()) {
			s.log.Debug("child exited")
			break loop
		}
		if werr == unix.ECHILD {
			// the child has not registered yet, try again later
			time.Sleep(conf.Interval)
		}

		// clean stat
		ws = 0

		// check time limit exceed
		if conf.CPUTimeLimit > 0 {
			if cpu, err := s.cg.CPUUsage(); err == nil && cpu >= secondsToDuration(conf.CPUTimeLimit) {
				exceeded = runner.ExceedCPUTime
				break loop
			}
		}

		// check realtime exceed
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			exceeded = runner.ExceedRealTime
			break loop
		}

		// check memory limit
		if conf.MemoryLimit > 0 {
			if peak, err := s.cg.MemoryPeak(); err == nil && peak >= uint64(conf.MemoryLimit) {
				exceeded = runner.ExceedMemory
				break loop
			}
		}

		// in case SIGCHLD is unreliable (pid namespace reparenting),
		// check zombie manually instead of waiting for the signal
		if processState(pid) == 'Z' {
			s.log.Debug("child becomes zombie")
			running = false
			if _, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil); err != nil {
				// something goes wrong, give up
				return 6
			}
		}

		if conf.OutputLimit > 0 {
			s.cg.UpdateOutputCount()
			if s.cg.OutputUsage() > uint64(conf.OutputLimit) {
				exceeded = runner.ExceedOutput
				break loop
			}
		}

		if conf.Status {
			s.logProgress(startTime)
		}

		// check empty
		if s.cg.Empty() {
			s.log.Debug("no process remaining")
			running = false
		}

		// sleep for a while
		time.Sleep(conf.Interval)
	}

	memPeak, _ := s.cg.MemoryPeak()
	cpuUsage, _ := s.cg.CPUUsage()
	res := normalize(conf, ws, memPeak, cpuUsage, time.Since(startTime), exceeded)
	s.log.Debugf("results: %v", res)

	// write the report and close fd 3 promptly so a downstream reader
	// can proceed before the cleanup finishes; write errors are ignored
	f := os.NewFile(3, "stat")
	if f != nil {
		res.WriteReport(f)
		f.Close()
	}

	if conf.PassExitcode {
		return res.ExitCode
	}
	return 0
}

// launchExitCode maps a spawn error into the deterministic 10..20 range
func launchExitCode(err error) int {
	if ce, ok := err.(forkexec.ChildError); ok {
		return ce.Location.ExitCode()
	}
	return 10
}

func (s *Supervisor) logProgress(startTime time.Time) {
	cpu, _ := s.cg.CPUUsage()
	cur, _ := s.cg.MemoryCurrent()
	peak, _ := s.cg.MemoryPeak()
	if s.conf.OutputLimit > 0 {
		s.log.Debugf("CPU %4.2f | REAL %4.1f | MEM %4.2f / %4.2fM | OUT %dB",
			cpu.Seconds(), time.Since(startTime).Seconds(), float64(cur)/1e6, float64(peak)/1e6, s.cg.OutputUsage())
	} else {
		s.log.Debugf("CPU %4.2f | REAL %4.1f | MEM %4.2f / %4.2fM",
			cpu.Seconds(), time.Since(startTime).Seconds(), float64(cur)/1e6, float64(peak)/1e6)
	}
}

// buildRunner translates the validated config into the child runner
func (s *Supervisor) buildRunner() (*forkexec.Runner, error) {
	conf := s.conf

	// execvp semantics: resolve argv[0] through PATH before the clone
	argv0, err := exec.LookPath(conf.Args[0])
	if err != nil {
		return nil, forkexec.ChildError{Err: syscall.ENOENT, Location: forkexec.LocExecve}
	}
	args := append([]string{argv0}, conf.Args[1:]...)

	// bind mounts and read-only remounts, order preserved
	bindBuilder := mount.NewBuilder()
	for _, b := range conf.Binds {
		bindBuilder.WithBind(b.Src, b.Dest, b.ReadOnly)
	}
	for _, d := range conf.RemountRO {
		bindBuilder.WithRemountRo(d)
	}
	binds, err := bindBuilder.Build()
	if err != nil {
		return nil, err
	}

	// post-chroot mounts: /proc inside a fresh pid namespace, then the
	// tmpfs overlays
	postBuilder := mount.NewBuilder()
	if conf.IsolateProcess {
		postBuilder.WithProc()
	}
	for _, tm := range conf.Tmpfs {
		postBuilder.WithTmpfs(tm.Path, tm.Bytes)
	}
	post, err := postBuilder.Build()
	if err != nil {
		return nil, err
	}

	// the cpu rlimit is a second wall behind the cgroup accounting for
	// seccomp-free runaways; fsize backs the output limit
	rlimits := conf.RLimits
	if conf.CPUTimeLimit > 0 {
		rlimits.CPU = uint64(math.Ceil(conf.CPUTimeLimit))
	}
	if conf.OutputLimit > 0 {
		rlimits.FileSize = uint64(conf.OutputLimit)
	}

	var fprog *syscall.SockFprog
	if conf.SyscallsSet {
		var rules []seccomp.Rule
		if conf.SyscallList != "" {
			if rules, err = seccomp.ParseRules(conf.SyscallList); err != nil {
				return nil, err
			}
		}
		filter, err := (&seccomp.Builder{Mode: conf.SyscallMode, Rules: rules}).Build()
		if err != nil {
			return nil, err
		}
		if len(filter) > 0 {
			fprog = filter.SockFprog()
		}
	}

	return &forkexec.Runner{
		Args:       args,
		Env:        buildEnv(conf),
		HostName:   conf.UTS.Nodename,
		DomainName: conf.UTS.Domainname,
		KeepFds:    conf.KeepFds,
		Binds:      binds,
		ChrootPath: conf.ChrootPath,
		Mounts:     post,
		RemountDev: conf.RemountDev,
		WorkDir:    conf.ChdirPath,
		Commands:   conf.Cmds,
		Umask:      conf.Umask,
		Groups:     conf.Groups,
		GID:        conf.GID,
		UID:        conf.UID,
		RLimits:    rlimits.PrepareRLimit(),
		Nice:       conf.Nice,
		NoNewPrivs: conf.NoNewPrivs,
		Seccomp:    fprog,
		CloneFlags: cloneFlags(conf),
		SyncFunc: func(pid int) error {
			return s.cg.AddProc(pid)
		},
	}, nil
}

// cloneFlags computes the namespace selection: the mount namespace is
// always unshared, the others follow the isolation toggles
func cloneFlags(conf *config.Config) uintptr {
	flags := uintptr(unix.CLONE_NEWNS)
	if !conf.EnableNetwork {
		flags |= unix.CLONE_NEWNET
	}
	if conf.IsolateProcess {
		flags |= unix.CLONE_NEWPID | unix.CLONE_NEWIPC
	}
	if !conf.UTS.Empty() {
		flags |= unix.CLONE_NEWUTS
	}
	return flags
}

// buildEnv composes the execve environment: the supervisor's own
// environment unless reset, then the configured pairs with setenv
// override semantics
func buildEnv(conf *config.Config) []string {
	var base []string
	if !conf.ResetEnv {
		base = os.Environ()
	}
	for _, kv := range conf.Env {
		entry := kv.Key + "=" + kv.Value
		replaced := false
		for i, e := range base {
			if len(e) > len(kv.Key) && e[len(kv.Key)] == '=' && e[:len(kv.Key)] == kv.Key {
				base[i] = entry
				replaced = true
				break
			}
		}
		if !replaced {
			base = append(base, entry)
		}
	}
	return base
}

func setCloexec(fd int) error {
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC); err != nil {
		// ignore bad fd error: nothing reads the report then
		if err != unix.EBADF {
			return err
		}
	}
	return nil
}

// processState reads the single-letter state from /proc/<pid>/status,
// 'Z' marking a zombie waiting to be reaped
func processState(pid int) byte {
	content, err := os.ReadFile(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		return 0
	}
	return parseProcState(content)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
