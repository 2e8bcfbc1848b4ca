package supervisor

import (
	"bufio"
	"bytes"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/lrun-project/lrun/config"
	"github.com/lrun-project/lrun/runner"
)

// normalize renormalizes the raw measurements into the reported result.
// The overwrite order is load-bearing: memory, then cpu, then output,
// then realtime, each later clamp replacing the exceeded cause. The
// signal-derived causes (SIGXCPU, SIGXFSZ) override the loop's finding and
// the memory clamp; the realtime clamp, coming last, overrides them too.
func normalize(conf *config.Config, ws unix.WaitStatus, memPeak uint64,
	cpu, real time.Duration, exceeded runner.Exceed) runner.Result {

	res := runner.Result{
		Memory:   runner.Size(memPeak),
		CPUTime:  cpu,
		RealTime: real,
		Signaled: ws.Signaled(),
		// raw WEXITSTATUS / WTERMSIG, present even when not meaningful
		ExitCode: int(ws>>8) & 0xff,
		TermSig:  int(ws) & 0x7f,
		Exceed:   exceeded,
	}

	if conf.MemoryLimit > 0 && memPeak >= uint64(conf.MemoryLimit) {
		res.Memory = runner.Size(conf.MemoryLimit)
		res.Exceed = runner.ExceedMemory
	}

	cpuLimit := secondsToDuration(conf.CPUTimeLimit)
	if (res.Signaled && res.TermSig == int(unix.SIGXCPU)) ||
		(conf.CPUTimeLimit > 0 && cpu >= cpuLimit) {
		if conf.CPUTimeLimit > 0 {
			res.CPUTime = cpuLimit
		}
		res.Exceed = runner.ExceedCPUTime
	}

	if res.Signaled && res.TermSig == int(unix.SIGXFSZ) {
		res.Exceed = runner.ExceedOutput
	}

	realLimit := secondsToDuration(conf.RealTimeLimit)
	if conf.RealTimeLimit > 0 && real >= realLimit {
		res.RealTime = realLimit
		res.Exceed = runner.ExceedRealTime
	}

	return res
}

// parseProcState extracts the state letter from /proc/<pid>/status
// content
func parseProcState(content []byte) byte {
	s := bufio.NewScanner(bytes.NewReader(content))
	for s.Scan() {
		line := s.Text()
		if !strings.HasPrefix(line, "State:") {
			continue
		}
		rest := strings.TrimSpace(line[len("State:"):])
		if len(rest) > 0 {
			return rest[0]
		}
		return 0
	}
	return 0
}
