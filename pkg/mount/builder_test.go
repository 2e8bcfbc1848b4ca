package mount

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithBindReadonlyAddsRemount(t *testing.T) {
	b := NewBuilder().WithBind("/usr", "/tmp/root/usr", true)
	require.Len(t, b.Mounts, 2)
	assert.Equal(t, uintptr(syscall.MS_BIND|syscall.MS_REC|syscall.MS_RDONLY), b.Mounts[0].Flags)
	assert.Equal(t, "/tmp/root/usr", b.Mounts[1].Target)
	assert.NotZero(t, b.Mounts[1].Flags&syscall.MS_REMOUNT)
}

func TestWithBindWritable(t *testing.T) {
	b := NewBuilder().WithBind("/home/x", "/tmp/root/x", false)
	require.Len(t, b.Mounts, 1)
	assert.Zero(t, b.Mounts[0].Flags&syscall.MS_RDONLY)
}

func TestWithTmpfs(t *testing.T) {
	b := NewBuilder().WithTmpfs("/w", 8<<20).WithTmpfs("/hidden", 0)
	require.Len(t, b.Mounts, 2)
	assert.Equal(t, "size=8388608", b.Mounts[0].Data)
	assert.Zero(t, b.Mounts[0].Flags&syscall.MS_RDONLY)
	assert.Empty(t, b.Mounts[1].Data)
	assert.NotZero(t, b.Mounts[1].Flags&syscall.MS_RDONLY)
}

func TestBuildOrderPreserved(t *testing.T) {
	b := NewBuilder().
		WithBind("/a", "/ra", false).
		WithBind("/b", "/rb", true).
		WithRemountRo("/ra")
	sp, err := b.Build()
	require.NoError(t, err)
	require.Len(t, sp, 4)
	// bind /a, bind /b, remount /rb, remount /ra
	assert.NotNil(t, sp[0].Source)
	assert.Nil(t, sp[3].Source)
}

func TestWithProc(t *testing.T) {
	b := NewBuilder().WithProc()
	require.Len(t, b.Mounts, 1)
	assert.Equal(t, "proc", b.Mounts[0].FsType)
	assert.Equal(t, "/proc", b.Mounts[0].Target)
}

func TestString(t *testing.T) {
	b := NewBuilder().WithBind("/usr", "/r/usr", true).WithTmpfs("/w", 1024).WithProc()
	s := b.String()
	assert.Contains(t, s, "bind[/usr:/r/usr:ro]")
	assert.Contains(t, s, "tmpfs[/w,size=1024]")
	assert.Contains(t, s, "proc[]")
}
