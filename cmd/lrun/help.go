package main

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

const version = "1.0.0"

func terminalWidth() int {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return -1
	}
	w, _, err := term.GetSize(int(os.Stdin.Fd()))
	if err != nil {
		return -1
	}
	return w - 1
}

// lineWrap re-flows text to the given width, breaking at spaces and
// indenting continuation lines
func lineWrap(content string, width, indent int, join string) string {
	if width <= 0 {
		return content
	}

	var result strings.Builder
	lineSize := 0
	for i := 0; i < len(content); i++ {
		c := content[i]
		if c == ' ' {
			// look ahead for the next space to decide whether the
			// following word still fits
			shouldBreak := true
			for j := i + 1; j <= len(content); j++ {
				d := byte(' ')
				if j < len(content) {
					d = content[j]
				}
				if d == ' ' && j-i+len(join)+lineSize < width {
					shouldBreak = false
					break
				}
			}
			if shouldBreak {
				result.WriteString(join)
				result.WriteByte('\n')
				for k := 0; k < indent; k++ {
					result.WriteByte(' ')
				}
				lineSize = indent
			} else {
				result.WriteByte(c)
				lineSize++
			}
		} else {
			result.WriteByte(c)
			if c == '\n' {
				lineSize = 0
			} else {
				lineSize++
			}
		}
	}
	return result.String()
}

func printHelp(submodule string) {
	width := terminalWidth()
	const minWidth = 60
	if width < minWidth && width >= 0 {
		width = minWidth
	}
	var content string

	if submodule == "syscalls" {
		content = lineWrap(
			"--syscalls FILTER_STRING\n"+
				"  Default action for unlisted syscalls is to return EPERM.\n"+
				"\n"+
				"--syscalls !FILTER_STRING\n"+
				"  Default action for unlisted syscalls is to allow.\n"+
				"\n", width, 2, "")
		content += lineWrap(
			"Format:\n"+
				"  FILTER_STRING  := SYSCALL_RULE | FILTER_STRING + ',' + SYSCALL_RULE\n"+
				"  SYSCALL_RULE   := SYSCALL_NAME + EXTRA_ARG_RULE + EXTRA_ACTION\n"+
				"  EXTRA_ARG_RULE := '' | '[' + ARG_RULES + ']'\n"+
				"  ARG_RULES      := ARG_RULE | ARG_RULES + ',' + ARG_RULE\n"+
				"  ARG_RULE       := ARG_NAME + ARG_OP1 + NUMBER | ARG_NAME + ARG_OP2 + NUMBER + '==' + NUMBER\n"+
				"  ARG_NAME       := 'a' | 'b' | 'c' | 'd' | 'e' | 'f'\n"+
				"  ARG_OP1        := '==' | '=' | '!=' | '!' | '>' | '<' | '>=' | '<='\n"+
				"  ARG_OP2        := '&'\n"+
				"  EXTRA_ACTION   := '' | ':k' | ':e' | ':a'\n"+
				"\n", width, 20, "")
		content += lineWrap(
			"Notes:\n"+
				"  ARG_NAME:     `a` for the first arg, `b` for the second, ...\n"+
				"  ARG_OP1:      `=` is short for `==`, `!` is short for `!=`\n"+
				"  ARG_OP2:      `&`: bitwise and, the masked value is compared with `==` (or `=`)\n"+
				"  EXTRA_ACTION: `k` is to kill, `e` is to return EPERM, `a` is to allow\n"+
				"  SYSCALL_NAME: syscall name, ex: `read`, `write`, ...\n"+
				"  NUMBER:       a decimal number containing only `0` to `9`\n"+
				"\n", width, 16, "")
		content += lineWrap(
			"Examples:\n"+
				"  --syscalls 'read,write,open,exit'\n"+
				"    Only read, write, open, exit are allowed\n"+
				"  --syscalls '!write[a=2]'\n"+
				"    Disallow write to fd 2 (stderr)\n"+
				"  --syscalls '!sethostname:k'\n"+
				"    Whoever calls sethostname will get killed\n"+
				"  --syscalls '!clone[a&268435456==268435456]'\n"+
				"    Do not allow a new user namespace to be created (CLONE_NEWUSER = 0x10000000)\n",
			width, 4, "")
	} else {
		content = "Run program with resources limited.\n" +
			"\n" +
			"Usage: lrun [options] [--] command-args [3>stat]\n" +
			"\n"
		options := "Options:\n" +
			"  --max-cpu-time    seconds     Limit cpu time. `seconds` can be a floating-point number\n" +
			"  --max-real-time   seconds     Limit physical time\n" +
			"  --max-memory      bytes       Limit memory (+swap) usage. `bytes` supports common suffix like `k`, `m`, `g`\n" +
			"  --max-output      bytes       Limit output. Note: lrun will make a \"best effort\" to enforce the limit but it is NOT accurate\n" +
			"  --max-rtprio      n           Set max realtime priority\n" +
			"  --max-nfile       n           Set max number of file descriptors\n" +
			"  --max-stack       bytes       Set max stack size per process\n" +
			"  --max-nprocess    n           Set RLIMIT_NPROC. Note: user namespace is not separated, current processes are counted\n" +
			"  --isolate-process bool        Isolate PID, IPC namespace\n" +
			"  --basic-devices   bool        Enable device whitelist: null, zero, full, random, urandom\n" +
			"  --remount-dev     bool        Remount /dev and create only basic device files in it (see --basic-devices)\n" +
			"  --reset-env       bool        Clean environment variables\n" +
			"  --network         bool        Whether network access is permitted\n" +
			"  --pass-exitcode   bool        Discard lrun exit code, pass child process's exit code\n" +
			"  --chroot          path        Chroot to specified `path` before exec\n" +
			"  --chdir           path        Chdir to specified `path` after chroot\n" +
			"  --nice            value       Add nice with specified `value`. Only root can use a negative value\n" +
			"  --umask           int         Set umask\n" +
			"  --uid             uid         Set uid (`uid` must > 0). Only root can use this\n" +
			"  --gid             gid         Set gid (`gid` must > 0). Only root can use this\n" +
			"  --no-new-privs    bool        Do not allow getting higher privileges using exec. This disables things like sudo, ping, etc. Only root can set it to false. Require Linux >= 3.5\n" +
			"  --syscalls        syscalls    Apply a syscall filter. `syscalls` is basically a list of syscall names separated by ',' with an optional prefix '!'. If prefix '!' exists, it's a blacklist otherwise a whitelist. For full syntax of `syscalls`, see `--help-syscalls`. Conflicts with `--no-new-privs false`\n" +
			"  --cgname          string      Specify cgroup name to use. The specified cgroup will be created on demand, and will not be deleted. If this option is not set, lrun will pick an unique cgroup name and destroy it upon exit.\n" +
			"  --hostname        string      Specify a new hostname\n" +
			"  --interval        seconds     Set status update interval\n" +
			"  --debug                       Print debug messages\n" +
			"  --status                      Show realtime resource usage status\n" +
			"  --help                        Show this help\n" +
			"  --help-syscalls               Show full syntax of `syscalls`\n" +
			"  --version                     Show version information\n" +
			"\n" +
			"Options that could be used multiple times:\n" +
			"  --bindfs          dest src    Bind `src` to `dest`. This is performed before chroot. You should have read permission on `src`\n" +
			"  --bindfs-ro       dest src    Like `--bindfs` but also make `dest` read-only\n" +
			"  --tmpfs           path bytes  Mount writable tmpfs to specified `path` to hide filesystem subtree. `size` is in bytes. If it is 0, mount read-only. This is performed after chroot. You should have write permission on `path`\n" +
			"  --env             key value   Set environment variable before exec\n" +
			"  --cgroup-option   subsys k v  Apply cgroup setting before exec\n" +
			"  --fd              n           Do not close fd `n`\n" +
			"  --cmd             cmd         Execute system command after tmpfs mounted. Only root can use this\n" +
			"  --group           gid         Set additional groups. Applied to lrun itself. Only root can use this\n" +
			"\n"
		content += lineWrap(options, width, 32, "")
		content += lineWrap(
			"Return value:\n"+
				"  - If lrun is unable to execute specified command, non-zero is returned and nothing will be written to fd 3\n"+
				"  - Otherwise, lrun will return 0 and output time, memory usage, exit status of executed command to fd 3\n"+
				"  - If `--pass-exitcode` is set to true, lrun will just pass exit code of the child process\n"+
				"\n", width, 4, "")
		content += lineWrap(
			"Option processing order:\n"+
				"  --hostname, --fd, --bindfs, --bindfs-ro, --chroot, (mount /proc), --tmpfs,"+
				" --remount-dev, --chdir, --cmd, --umask, --gid, --uid, (rlimit options), --env, --nice,"+
				" (cgroup limits), --syscalls\n"+
				"\n", width, 2, "")
		content += lineWrap(
			"Default options:\n"+
				"  lrun --network true --basic-devices false --isolate-process true"+
				" --remount-dev false --reset-env false --interval 0.02"+
				" --pass-exitcode false --no-new-privs true"+
				" --max-nprocess 2048 --max-nfile 256"+
				" --max-rtprio 0 --nice 0\n",
			width, 7, " \\")
	}

	fmt.Fprintf(os.Stderr, "%s\n", content)
}

func printVersion() {
	fmt.Printf("lrun %s\n", version)
}
