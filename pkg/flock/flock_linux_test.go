package flock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	dir := t.TempDir()
	l, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, l.Release())
	// releasing twice is harmless
	assert.NoError(t, l.Release())
}

func TestAcquireMissing(t *testing.T) {
	_, err := Acquire("/nonexistent/lrun-lock-target")
	assert.Error(t, err)
}
