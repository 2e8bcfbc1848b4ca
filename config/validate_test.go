package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lrun-project/lrun/pkg/seccomp"
)

func validConfig() *Config {
	c := Default(1000, 1000)
	c.Args = []string{"/bin/true"}
	return c
}

func TestValidateOK(t *testing.T) {
	assert.Empty(t, Validate(validConfig(), 1000, 1000))
}

func TestValidateRejectsRootTarget(t *testing.T) {
	c := validConfig()
	c.UID = 0
	c.GID = 0
	msgs := Validate(c, 0, 0)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0], "uid = 0")
	assert.Contains(t, msgs[1], "gid = 0")
}

func TestValidateNonRootCannotSwitchIdentity(t *testing.T) {
	c := validConfig()
	c.UID = 1234
	c.GID = 1234
	msgs := Validate(c, 1000, 1000)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0], "requires root")
}

func TestValidateEmptyArgs(t *testing.T) {
	c := validConfig()
	c.Args = nil
	msgs := Validate(c, 1000, 1000)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "command_args can not be empty")
}

func TestValidateAccumulatesAllErrors(t *testing.T) {
	c := validConfig()
	c.UID = 0
	c.Args = nil
	c.Nice = -5
	c.NoNewPrivs = false
	msgs := Validate(c, 1000, 1000)
	assert.Len(t, msgs, 4)
}

func TestValidateRootPrivileges(t *testing.T) {
	c := validConfig()
	c.UID = 1234
	c.GID = 1234
	c.Cmds = []string{"id"}
	c.Groups = []uint32{7}
	c.Nice = -5
	assert.Empty(t, Validate(c, 0, 0))
}

func TestValidateNonRootRestrictions(t *testing.T) {
	c := validConfig()
	c.Cmds = []string{"id"}
	c.Groups = []uint32{7}
	msgs := Validate(c, 1000, 1000)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0], "--cmd")
	assert.Contains(t, msgs[1], "--group")
}

func TestValidateRelativePath(t *testing.T) {
	c := validConfig()
	c.Binds = []BindMount{{Dest: "/tmp/x", Src: "relative/path"}}
	msgs := Validate(c, 1000, 1000)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Relative paths are forbidden")
}

func TestValidateInaccessiblePath(t *testing.T) {
	c := validConfig()
	c.ChrootPath = "/nonexistent/sandbox/root"
	msgs := Validate(c, 1000, 1000)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "permission on /nonexistent/sandbox/root")
}

func TestValidateRemountRoRequiresBind(t *testing.T) {
	c := validConfig()
	c.RemountRO = []string{"/tmp/target"}
	msgs := Validate(c, 1000, 1000)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "--remount-ro")

	c.Binds = []BindMount{{Dest: "/tmp/target", Src: os.TempDir()}}
	assert.Empty(t, Validate(c, 1000, 1000))
}

func TestValidateWhitelistNeedsRules(t *testing.T) {
	c := validConfig()
	c.SyscallMode = seccomp.ModeWhitelist
	c.SyscallList = ""
	msgs := Validate(c, 1000, 1000)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "forbids all syscalls")

	c.SyscallList = "read,write"
	assert.Empty(t, Validate(c, 1000, 1000))
}

func TestValidateChdirUnderChroot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "work"), 0755))

	c := validConfig()
	c.ChrootPath = root
	c.ChdirPath = "/work"
	assert.Empty(t, Validate(c, 1000, 1000))

	c.ChdirPath = "/missing"
	msgs := Validate(c, 1000, 1000)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], filepath.Join(root, "missing"))
}

func TestValidatePathRewriteThroughBinds(t *testing.T) {
	// /probe resolves through the bind to a real directory
	real := t.TempDir()
	sub := filepath.Join(real, "sub")
	require.NoError(t, os.MkdirAll(sub, 0755))

	c := validConfig()
	c.Binds = []BindMount{
		{Dest: "/sandbox", Src: real},
	}
	c.ChrootPath = "/sandbox/sub"
	assert.Empty(t, Validate(c, 1000, 1000))

	c.ChrootPath = "/sandbox/other"
	msgs := Validate(c, 1000, 1000)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], filepath.Join(real, "other"))
}

func TestFollowBinds(t *testing.T) {
	binds := [][2]string{
		{"/a", "/x"},
		{"/a/b", "/y"},
	}
	// later binds take precedence
	assert.Equal(t, "/y/c", followBinds(binds, "/a/b/c"))
	assert.Equal(t, "/x/z", followBinds(binds, "/a/z"))
	// untouched paths pass through
	assert.Equal(t, "/other", followBinds(binds, "/other"))
	// relative paths are left for the permission check to reject
	assert.Equal(t, "rel", followBinds(binds, "rel"))
}

func TestJoinUnderRoot(t *testing.T) {
	assert.Equal(t, "/w", joinUnderRoot("", "/w"))
	assert.Equal(t, "/root/w", joinUnderRoot("/root", "/w"))
	assert.Equal(t, "/root/w", joinUnderRoot("/root", "w"))
}

func TestDefault(t *testing.T) {
	c := Default(1000, 100)
	assert.Equal(t, uint32(1000), c.UID)
	assert.Equal(t, uint32(100), c.GID)
	assert.True(t, c.EnableNetwork)
	assert.True(t, c.IsolateProcess)
	assert.True(t, c.NoNewPrivs)
	assert.False(t, c.BasicDevices)
	assert.Equal(t, int64(-1), c.MemoryLimit)
	assert.Equal(t, seccomp.ModeBlacklist, c.SyscallMode)
	assert.Equal(t, 0022, c.Umask)
}
