package runner

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReport(t *testing.T) {
	r := Result{
		Memory:   67108864,
		CPUTime:  1500 * time.Millisecond,
		RealTime: 2 * time.Second,
		Signaled: true,
		ExitCode: 0,
		TermSig:  9,
		Exceed:   ExceedMemory,
	}
	var b bytes.Buffer
	require.NoError(t, r.WriteReport(&b))
	assert.Equal(t,
		"MEMORY   67108864\n"+
			"CPUTIME  1.500\n"+
			"REALTIME 2.000\n"+
			"SIGNALED 1\n"+
			"EXITCODE 0\n"+
			"TERMSIG  9\n"+
			"EXCEED   MEMORY\n",
		b.String())
}

func TestWriteReportNone(t *testing.T) {
	var b bytes.Buffer
	require.NoError(t, Result{ExitCode: 3}.WriteReport(&b))
	assert.Contains(t, b.String(), "EXCEED   none\n")
	assert.Contains(t, b.String(), "EXITCODE 3\n")
	assert.Contains(t, b.String(), "SIGNALED 0\n")
}

func TestExceedString(t *testing.T) {
	assert.Equal(t, "none", ExceedNone.String())
	assert.Equal(t, "CPU_TIME", ExceedCPUTime.String())
	assert.Equal(t, "REAL_TIME", ExceedRealTime.String())
	assert.Equal(t, "MEMORY", ExceedMemory.String())
	assert.Equal(t, "OUTPUT", ExceedOutput.String())
	assert.Equal(t, "none", Exceed(99).String())
}
