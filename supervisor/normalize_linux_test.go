package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"

	"github.com/lrun-project/lrun/config"
	"github.com/lrun-project/lrun/runner"
)

// exitedStatus builds the raw wait status word of a normal exit
func exitedStatus(code int) unix.WaitStatus {
	return unix.WaitStatus(code << 8)
}

func signaledStatus(sig unix.Signal) unix.WaitStatus {
	return unix.WaitStatus(sig)
}

func testConf() *config.Config {
	c := config.Default(1000, 1000)
	c.Args = []string{"/bin/true"}
	return c
}

func TestNormalizeCleanExit(t *testing.T) {
	res := normalize(testConf(), exitedStatus(3), 1<<20, 100*time.Millisecond, 200*time.Millisecond, runner.ExceedNone)
	assert.Equal(t, runner.ExceedNone, res.Exceed)
	assert.False(t, res.Signaled)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, 0, res.TermSig)
	assert.Equal(t, runner.Size(1<<20), res.Memory)
}

func TestNormalizeMemoryClamped(t *testing.T) {
	c := testConf()
	c.MemoryLimit = 64 << 20
	res := normalize(c, signaledStatus(unix.SIGKILL), 200<<20, 0, 0, runner.ExceedMemory)
	assert.Equal(t, runner.ExceedMemory, res.Exceed)
	assert.Equal(t, runner.Size(64<<20), res.Memory)
	assert.True(t, res.Signaled)
	assert.Equal(t, int(unix.SIGKILL), res.TermSig)
}

func TestNormalizeCPUClampOnUsage(t *testing.T) {
	c := testConf()
	c.CPUTimeLimit = 0.1
	res := normalize(c, exitedStatus(0), 0, 150*time.Millisecond, 200*time.Millisecond, runner.ExceedCPUTime)
	assert.Equal(t, runner.ExceedCPUTime, res.Exceed)
	assert.Equal(t, 100*time.Millisecond, res.CPUTime)
}

func TestNormalizeXCPUOverrides(t *testing.T) {
	c := testConf()
	c.CPUTimeLimit = 1
	// usage below the limit, but the kernel already delivered SIGXCPU
	res := normalize(c, signaledStatus(unix.SIGXCPU), 0, 500*time.Millisecond, time.Second, runner.ExceedNone)
	assert.Equal(t, runner.ExceedCPUTime, res.Exceed)
	assert.Equal(t, time.Second, res.CPUTime)
}

func TestNormalizeXFSZOverridesCPU(t *testing.T) {
	c := testConf()
	c.CPUTimeLimit = 1
	res := normalize(c, signaledStatus(unix.SIGXFSZ), 0, 2*time.Second, 3*time.Second, runner.ExceedNone)
	// fixed overwrite order: cpu clamp happens first, output wins
	assert.Equal(t, runner.ExceedOutput, res.Exceed)
	assert.Equal(t, time.Second, res.CPUTime)
}

func TestNormalizeRealTimeWinsLast(t *testing.T) {
	c := testConf()
	c.RealTimeLimit = 0.5
	c.MemoryLimit = 64 << 20
	res := normalize(c, signaledStatus(unix.SIGKILL), 128<<20, 0, time.Second, runner.ExceedNone)
	// both tripped; realtime is the last clamp in the order
	assert.Equal(t, runner.ExceedRealTime, res.Exceed)
	assert.Equal(t, 500*time.Millisecond, res.RealTime)
	assert.Equal(t, runner.Size(64<<20), res.Memory)
}

func TestNormalizeLoopExceedPreserved(t *testing.T) {
	res := normalize(testConf(), 0, 0, 0, 0, runner.ExceedOutput)
	assert.Equal(t, runner.ExceedOutput, res.Exceed)
}

func TestNormalizeMemoryEqualTrips(t *testing.T) {
	c := testConf()
	c.MemoryLimit = 1 << 20
	res := normalize(c, exitedStatus(0), 1<<20, 0, 0, runner.ExceedNone)
	assert.Equal(t, runner.ExceedMemory, res.Exceed)
}

func TestParseProcState(t *testing.T) {
	content := "Name:\tcat\nUmask:\t0022\nState:\tZ (zombie)\nTgid:\t123\n"
	assert.Equal(t, byte('Z'), parseProcState([]byte(content)))

	content = "Name:\tcat\nState:\tR (running)\n"
	assert.Equal(t, byte('R'), parseProcState([]byte(content)))

	assert.Equal(t, byte(0), parseProcState([]byte("Name:\tcat\n")))
}

func TestBuildEnv(t *testing.T) {
	c := testConf()
	c.ResetEnv = true
	c.Env = []config.EnvPair{{Key: "A", Value: "1"}, {Key: "B", Value: "2"}, {Key: "A", Value: "3"}}
	env := buildEnv(c)
	assert.Equal(t, []string{"A=3", "B=2"}, env)
}

func TestBuildEnvKeepsParent(t *testing.T) {
	t.Setenv("LRUN_TEST_VAR", "parent")
	c := testConf()
	c.Env = []config.EnvPair{{Key: "LRUN_TEST_VAR", Value: "child"}}
	env := buildEnv(c)
	assert.Contains(t, env, "LRUN_TEST_VAR=child")
	assert.NotContains(t, env, "LRUN_TEST_VAR=parent")
}

func TestCloneFlags(t *testing.T) {
	c := testConf()
	flags := cloneFlags(c)
	assert.NotZero(t, flags&unix.CLONE_NEWNS)
	assert.NotZero(t, flags&unix.CLONE_NEWPID)
	assert.NotZero(t, flags&unix.CLONE_NEWIPC)
	assert.Zero(t, flags&unix.CLONE_NEWNET)
	assert.Zero(t, flags&unix.CLONE_NEWUTS)

	c.EnableNetwork = false
	c.IsolateProcess = false
	c.UTS.Nodename = "sandbox"
	flags = cloneFlags(c)
	assert.NotZero(t, flags&unix.CLONE_NEWNET)
	assert.Zero(t, flags&unix.CLONE_NEWPID)
	assert.NotZero(t, flags&unix.CLONE_NEWUTS)
}
