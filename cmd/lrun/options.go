package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/lrun-project/lrun/config"
	"github.com/lrun-project/lrun/pkg/cgroup"
	"github.com/lrun-project/lrun/pkg/seccomp"
	"github.com/lrun-project/lrun/runner"
)

// option is one table entry: flag name, number of value operands and
// the setter applying them to the config
type option struct {
	name  string
	nargs int
	apply func(c *config.Config, args []string) error
}

// options are matched in declaration order; the processing order the
// child observes is fixed by the initializer, not by this table
var options = []option{
	{"max-cpu-time", 1, func(c *config.Config, a []string) error {
		return parseFloat(a[0], &c.CPUTimeLimit)
	}},
	{"max-real-time", 1, func(c *config.Config, a []string) error {
		return parseFloat(a[0], &c.RealTimeLimit)
	}},
	{"max-memory", 1, func(c *config.Config, a []string) error {
		var s runner.Size
		if err := s.Set(a[0]); err != nil {
			return err
		}
		limit := int64(s)
		if limit > 0 && limit < config.MinMemoryLimit {
			fmt.Fprintf(os.Stderr, "max-memory too small, changed to %d.\n", int64(config.MinMemoryLimit))
			limit = config.MinMemoryLimit
		}
		c.MemoryLimit = limit
		return nil
	}},
	{"max-output", 1, func(c *config.Config, a []string) error {
		var s runner.Size
		if err := s.Set(a[0]); err != nil {
			return err
		}
		c.OutputLimit = int64(s)
		return nil
	}},
	{"max-nprocess", 1, func(c *config.Config, a []string) error {
		v, err := parseUint(a[0])
		if err != nil {
			return err
		}
		c.RLimits.SetNProc(v)
		return nil
	}},
	{"max-rtprio", 1, func(c *config.Config, a []string) error {
		v, err := parseUint(a[0])
		if err != nil {
			return err
		}
		c.RLimits.SetRTPrio(v)
		return nil
	}},
	{"max-nfile", 1, func(c *config.Config, a []string) error {
		v, err := parseUint(a[0])
		if err != nil {
			return err
		}
		c.RLimits.SetNoFile(v)
		return nil
	}},
	{"max-stack", 1, func(c *config.Config, a []string) error {
		var s runner.Size
		if err := s.Set(a[0]); err != nil {
			return err
		}
		c.RLimits.SetStack(uint64(s))
		return nil
	}},
	{"isolate-process", 1, func(c *config.Config, a []string) error {
		return parseBool(a[0], &c.IsolateProcess)
	}},
	{"basic-devices", 1, func(c *config.Config, a []string) error {
		return parseBool(a[0], &c.BasicDevices)
	}},
	{"remount-dev", 1, func(c *config.Config, a []string) error {
		return parseBool(a[0], &c.RemountDev)
	}},
	{"reset-env", 1, func(c *config.Config, a []string) error {
		return parseBool(a[0], &c.ResetEnv)
	}},
	{"network", 1, func(c *config.Config, a []string) error {
		return parseBool(a[0], &c.EnableNetwork)
	}},
	{"pass-exitcode", 1, func(c *config.Config, a []string) error {
		return parseBool(a[0], &c.PassExitcode)
	}},
	{"chroot", 1, func(c *config.Config, a []string) error {
		c.ChrootPath = a[0]
		return nil
	}},
	{"chdir", 1, func(c *config.Config, a []string) error {
		c.ChdirPath = a[0]
		return nil
	}},
	{"nice", 1, func(c *config.Config, a []string) error {
		return parseInt(a[0], &c.Nice)
	}},
	{"umask", 1, func(c *config.Config, a []string) error {
		v, err := strconv.ParseInt(a[0], 8, 32)
		if err != nil {
			return fmt.Errorf("invalid umask %q", a[0])
		}
		c.Umask = int(v)
		return nil
	}},
	{"uid", 1, func(c *config.Config, a []string) error {
		v, err := parseUint(a[0])
		if err != nil {
			return err
		}
		c.UID = uint32(v)
		return nil
	}},
	{"gid", 1, func(c *config.Config, a []string) error {
		v, err := parseUint(a[0])
		if err != nil {
			return err
		}
		c.GID = uint32(v)
		return nil
	}},
	{"no-new-privs", 1, func(c *config.Config, a []string) error {
		return parseBool(a[0], &c.NoNewPrivs)
	}},
	{"syscalls", 1, func(c *config.Config, a []string) error {
		s := a[0]
		c.SyscallsSet = true
		c.SyscallMode = seccomp.ModeWhitelist
		if len(s) > 0 {
			switch s[0] {
			case '!', '-':
				c.SyscallMode = seccomp.ModeBlacklist
				s = s[1:]
			case '=', '+':
				s = s[1:]
			}
		}
		c.SyscallList = s
		return nil
	}},
	{"group", 1, func(c *config.Config, a []string) error {
		v, err := parseUint(a[0])
		if err != nil {
			return err
		}
		if v != 0 {
			c.Groups = append(c.Groups, uint32(v))
		}
		return nil
	}},
	{"interval", 1, func(c *config.Config, a []string) error {
		var sec float64
		if err := parseFloat(a[0], &sec); err != nil {
			return err
		}
		if d := time.Duration(sec * float64(time.Second)); d > 0 {
			c.Interval = d
		}
		return nil
	}},
	{"cgname", 1, func(c *config.Config, a []string) error {
		c.CgroupName = a[0]
		return nil
	}},
	{"hostname", 1, func(c *config.Config, a []string) error {
		c.UTS.Nodename = a[0]
		return nil
	}},
	{"domainname", 1, func(c *config.Config, a []string) error {
		c.UTS.Domainname = a[0]
		return nil
	}},
	{"ostype", 1, func(c *config.Config, a []string) error {
		c.UTS.Sysname = a[0]
		return nil
	}},
	{"osrelease", 1, func(c *config.Config, a []string) error {
		c.UTS.Release = a[0]
		return nil
	}},
	{"osversion", 1, func(c *config.Config, a []string) error {
		c.UTS.Version = a[0]
		return nil
	}},
	{"remount-ro", 1, func(c *config.Config, a []string) error {
		c.RemountRO = append(c.RemountRO, a[0])
		return nil
	}},
	{"bindfs", 2, func(c *config.Config, a []string) error {
		c.Binds = append(c.Binds, config.BindMount{Dest: a[0], Src: a[1]})
		return nil
	}},
	{"bindfs-ro", 2, func(c *config.Config, a []string) error {
		c.Binds = append(c.Binds, config.BindMount{Dest: a[0], Src: a[1], ReadOnly: true})
		c.RemountRO = append(c.RemountRO, a[0])
		return nil
	}},
	{"tmpfs", 2, func(c *config.Config, a []string) error {
		var s runner.Size
		if err := s.Set(a[1]); err != nil {
			return err
		}
		c.Tmpfs = append(c.Tmpfs, config.TmpfsMount{Path: a[0], Bytes: uint64(s)})
		return nil
	}},
	{"cgroup-option", 3, func(c *config.Config, a []string) error {
		if !knownSubsys(a[0]) {
			fmt.Fprintf(os.Stderr, "cgroup option '%s' = '%s' ignored: subsystem '%s' not found\n", a[1], a[2], a[0])
			return nil
		}
		c.CgroupOptions = append(c.CgroupOptions, config.CgroupOption{Subsys: a[0], Key: a[1], Value: a[2]})
		return nil
	}},
	{"env", 2, func(c *config.Config, a []string) error {
		c.Env = append(c.Env, config.EnvPair{Key: a[0], Value: a[1]})
		return nil
	}},
	{"fd", 1, func(c *config.Config, a []string) error {
		var fd int
		if err := parseInt(a[0], &fd); err != nil {
			return err
		}
		c.KeepFds = append(c.KeepFds, fd)
		return nil
	}},
	{"cmd", 1, func(c *config.Config, a []string) error {
		c.Cmds = append(c.Cmds, a[0])
		return nil
	}},
	{"debug", 0, func(c *config.Config, a []string) error {
		c.Debug = true
		return nil
	}},
	{"status", 0, func(c *config.Config, a []string) error {
		c.Status = true
		return nil
	}},
}

func knownSubsys(name string) bool {
	switch name {
	case cgroup.Memory, cgroup.CPUAcct, cgroup.Devices, cgroup.Freezer:
		return true
	}
	return false
}

func findOption(name string) *option {
	for i := range options {
		if options[i].name == name {
			return &options[i]
		}
	}
	return nil
}

// parseOptions consumes flags until the first non-option or `--`;
// everything after is the command
func parseOptions(c *config.Config, argv []string) ([]string, error) {
	i := 0
	for ; i < len(argv); i++ {
		arg := argv[i]
		if len(arg) < 2 || arg[:2] != "--" {
			break
		}
		name := arg[2:]
		if name == "" {
			// meet --
			i++
			break
		}

		switch name {
		case "help":
			printHelp("")
			os.Exit(0)
		case "help-syscalls":
			printHelp("syscalls")
			os.Exit(0)
		case "version":
			printVersion()
			os.Exit(0)
		}

		o := findOption(name)
		if o == nil {
			return nil, fmt.Errorf("Unknown option: `--%s`\nUse --help for information.", name)
		}
		if i+o.nargs >= len(argv) {
			plural := ""
			if o.nargs > 1 {
				plural = "s"
			}
			return nil, fmt.Errorf("Option '--%s' requires %d argument%s.", name, o.nargs, plural)
		}
		if err := o.apply(c, argv[i+1:i+1+o.nargs]); err != nil {
			return nil, fmt.Errorf("Invalid value for option '--%s': %v", name, err)
		}
		i += o.nargs
	}
	return argv[i:], nil
}

func parseBool(s string, out *bool) error {
	switch s {
	case "true", "1", "yes", "on":
		*out = true
	case "false", "0", "no", "off":
		*out = false
	default:
		return fmt.Errorf("invalid boolean %q", s)
	}
	return nil
}

func parseFloat(s string, out *float64) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q", s)
	}
	*out = v
	return nil
}

func parseInt(s string, out *int) error {
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid integer %q", s)
	}
	*out = v
	return nil
}

func parseUint(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	return v, nil
}
