package rlimit

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrepareRLimitDefaultEmpty(t *testing.T) {
	var r RLimits
	assert.Empty(t, r.PrepareRLimit())
}

func TestPrepareRLimit(t *testing.T) {
	r := RLimits{
		CPU:         2,
		FileSize:    1 << 20,
		DisableCore: true,
	}
	r.SetNoFile(256)
	r.SetNProc(2048)
	r.SetRTPrio(0)

	prepared := r.PrepareRLimit()
	assert.Len(t, prepared, 6)

	byRes := map[int]syscall.Rlimit{}
	for _, l := range prepared {
		byRes[l.Res] = l.Rlim
	}
	assert.Equal(t, syscall.Rlimit{Cur: 2, Max: 2}, byRes[syscall.RLIMIT_CPU])
	assert.Equal(t, syscall.Rlimit{Cur: 1 << 20, Max: 1 << 20}, byRes[syscall.RLIMIT_FSIZE])
	assert.Equal(t, syscall.Rlimit{Cur: 256, Max: 256}, byRes[syscall.RLIMIT_NOFILE])
	assert.Equal(t, syscall.Rlimit{Cur: 2048, Max: 2048}, byRes[rlimitNProc])
	assert.Equal(t, syscall.Rlimit{Cur: 0, Max: 0}, byRes[rlimitRTPrio])
	assert.Equal(t, syscall.Rlimit{Cur: 0, Max: 0}, byRes[syscall.RLIMIT_CORE])
}

func TestExplicitZeroApplied(t *testing.T) {
	var r RLimits
	r.SetRTPrio(0)
	prepared := r.PrepareRLimit()
	assert.Len(t, prepared, 1)
	assert.Equal(t, rlimitRTPrio, prepared[0].Res)
}

func TestString(t *testing.T) {
	r := RLimits{CPU: 1}
	assert.Equal(t, "RLimits[CPU[1 s:1 s]]", r.String())
}
