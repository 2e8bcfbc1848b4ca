package config

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/lrun-project/lrun/pkg/seccomp"
)

// Validate checks every invariant and returns the full list of
// violations instead of stopping at the first, so one run shows
// everything that needs fixing. An empty slice means the config is
// frozen and safe to launch.
func Validate(c *Config, invokerUID, invokerGID uint32) []string {
	isRoot := invokerUID == 0
	var messages []string

	if c.UID == 0 {
		messages = append(messages,
			"For security reason, running commands with uid = 0 is not allowed.\n"+
				"Please specify a user ID using `--uid`.")
	} else if !isRoot && c.UID != invokerUID {
		messages = append(messages,
			"For security reason, setting uid to other user requires root.")
	}

	if c.GID == 0 {
		messages = append(messages,
			"For security reason, running commands with gid = 0 is not allowed.\n"+
				"Please specify a group ID using `--gid`.")
	} else if !isRoot && c.GID != invokerGID {
		messages = append(messages,
			"For security reason, setting gid to other group requires root.")
	}

	if len(c.Args) == 0 {
		messages = append(messages,
			"command_args can not be empty.\n"+
				"Use `--help` to see full options.")
	}

	if !isRoot {
		if len(c.Cmds) > 0 {
			messages = append(messages,
				"For security reason, `--cmd` requires root.")
		}
		if len(c.Groups) > 0 {
			messages = append(messages,
				"For security reason, `--group` requires root.")
		}

		// check paths, require absolute paths and read permissions.
		// binds installed earlier rewrite the paths probed later
		var binds [][2]string
		for _, b := range c.Binds {
			messages = checkPathPermission(followBinds(binds, b.Src), messages)
			binds = append(binds, [2]string{expand(b.Dest), followBinds(binds, expand(b.Src))})
		}

		if c.ChrootPath != "" {
			messages = checkPathPermission(followBinds(binds, c.ChrootPath), messages)
		}

		if c.ChdirPath != "" {
			chdir := joinUnderRoot(c.ChrootPath, c.ChdirPath)
			messages = checkPathPermission(followBinds(binds, chdir), messages)
		}

		// restrict --remount-ro, only allows dest in --bindfs
		// because something like `--remount-ro /` affects outside world
		dests := make(map[string]bool, len(c.Binds))
		for _, b := range c.Binds {
			dests[b.Dest] = true
		}
		for _, d := range c.RemountRO {
			if !dests[d] {
				messages = append(messages,
					"For security reason, `--remount-ro A` is only allowed "+
						"if there is a `--bindfs A B`.")
			}
		}

		if !c.NoNewPrivs {
			messages = append(messages,
				"For security reason, `--no-new-privs false` is forbidden "+
					"for non-root users.")
		}

		if c.Nice < 0 {
			messages = append(messages,
				"Non-root users cannot set a negative value of `--nice`")
		}
	}

	if c.SyscallList == "" && c.SyscallMode == seccomp.ModeWhitelist {
		messages = append(messages,
			"Syscall filter forbids all syscalls, which is not allowed.")
	}

	return messages
}

// followBinds rewrites path through the binds installed so far, last
// match wins; binds[i].src already followed the binds before it so one
// rewrite is enough
func followBinds(binds [][2]string, p string) string {
	if !path.IsAbs(p) {
		return p
	}
	result := expand(p)
	for i := len(binds) - 1; i >= 0; i-- {
		prefix := binds[i][0] + "/"
		if strings.HasPrefix(result, prefix) {
			return binds[i][1] + result[len(prefix)-1:]
		}
	}
	return result
}

// expand normalizes a path without resolving symlinks
func expand(p string) string {
	return filepath.Clean(p)
}

// joinUnderRoot composes the chdir target as seen from outside the
// chroot
func joinUnderRoot(root, p string) string {
	if root == "" {
		return p
	}
	return filepath.Join(root, strings.TrimPrefix(p, "/"))
}

func accessModeToStr(mode uint32) string {
	var s string
	if mode&unix.R_OK != 0 {
		s += "r"
	}
	if mode&unix.W_OK != 0 {
		s += "w"
	}
	if mode&unix.X_OK != 0 {
		s += "x"
	}
	return s
}

// checkPathPermission requires the path to be absolute and accessible
// with R_OK, plus X_OK when it is a directory
func checkPathPermission(p string, messages []string) []string {
	if !path.IsAbs(p) {
		return append(messages,
			"Relative paths are forbidden for non-root users.\n"+
				"Please change: "+p)
	}
	mode := uint32(unix.R_OK)
	if st, err := os.Stat(p); err == nil && st.IsDir() {
		mode |= unix.X_OK
	}
	if err := unix.Access(p, mode); err != nil {
		return append(messages,
			"You do not have `"+accessModeToStr(mode)+"` permission on "+p)
	}
	return messages
}
