package seccomp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildWhitelist(t *testing.T) {
	rules, err := ParseRules("read,write,exit_group,rt_sigreturn")
	require.NoError(t, err)
	f, err := (&Builder{Mode: ModeWhitelist, Rules: rules}).Build()
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.NotEmpty(t, f)
	prog := f.SockFprog()
	assert.Equal(t, uint16(len(f)), prog.Len)
	assert.NotNil(t, prog.Filter)
}

func TestBuildBlacklist(t *testing.T) {
	rules, err := ParseRules("sethostname:k")
	require.NoError(t, err)
	f, err := (&Builder{Mode: ModeBlacklist, Rules: rules}).Build()
	require.NoError(t, err)
	assert.NotEmpty(t, f)
}

func TestBuildEmptyBlacklistNoFilter(t *testing.T) {
	f, err := (&Builder{Mode: ModeBlacklist}).Build()
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestBuildEmptyWhitelistRejected(t *testing.T) {
	_, err := (&Builder{Mode: ModeWhitelist}).Build()
	assert.Error(t, err)
}

func TestBuildConditions(t *testing.T) {
	rules, err := ParseRules("write[a=2],clone[a&268435456==268435456]")
	require.NoError(t, err)
	f, err := (&Builder{Mode: ModeBlacklist, Rules: rules}).Build()
	require.NoError(t, err)
	assert.NotEmpty(t, f)
}

func TestBuildUnknownSyscall(t *testing.T) {
	rules, err := ParseRules("definitely_not_a_syscall")
	require.NoError(t, err)
	_, err = (&Builder{Mode: ModeBlacklist, Rules: rules}).Build()
	assert.Error(t, err)
}

func TestBuildInexpressibleMask(t *testing.T) {
	// multi-bit mask with partial value has no bit-test encoding
	rules, err := ParseRules("open[a&3=1]")
	require.NoError(t, err)
	_, err = (&Builder{Mode: ModeBlacklist, Rules: rules}).Build()
	assert.Error(t, err)
}
