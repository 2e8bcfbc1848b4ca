package cgroup

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const procIOSample = `rchar: 323934931
wchar: 323929600
syscr: 632687
syscw: 632675
read_bytes: 0
write_bytes: 323932160
cancelled_write_bytes: 0
`

func TestParseProcIOField(t *testing.T) {
	v, ok := parseProcIOField([]byte(procIOSample), "wchar")
	require.True(t, ok)
	assert.Equal(t, uint64(323929600), v)

	v, ok = parseProcIOField([]byte(procIOSample), "write_bytes")
	require.True(t, ok)
	assert.Equal(t, uint64(323932160), v)

	_, ok = parseProcIOField([]byte(procIOSample), "nonexistent")
	assert.False(t, ok)

	_, ok = parseProcIOField([]byte("wchar: abc\n"), "wchar")
	assert.False(t, ok)
}

func TestReadProcesses(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, cgroupProcs)
	require.NoError(t, os.WriteFile(p, []byte("1\n23\n456\n"), 0644))
	pids, err := ReadProcesses(p)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 23, 456}, pids)

	require.NoError(t, os.WriteFile(p, []byte(""), 0644))
	pids, err = ReadProcesses(p)
	require.NoError(t, err)
	assert.Empty(t, pids)
}

func TestOutputUsage(t *testing.T) {
	c := &Cgroup{output: map[int]uint64{10: 100, 11: 50}}
	assert.Equal(t, uint64(150), c.OutputUsage())
}

// TestCreateDestroy requires root and mounted v1 controllers
func TestCreateDestroy(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("test requires root")
	}
	if _, err := os.Stat(filepath.Join(basePath, Memory)); err != nil {
		t.Skip("cgroup v1 memory controller not mounted")
	}
	cg, err := Create("lruntest" + strconv.Itoa(os.Getpid()))
	require.NoError(t, err)
	assert.False(t, cg.Existing())
	assert.True(t, cg.Empty())
	require.NoError(t, cg.ResetUsages())
	require.NoError(t, cg.Destroy())
}
