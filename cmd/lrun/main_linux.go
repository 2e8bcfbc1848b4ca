// Command lrun executes a program inside a freshly created cgroup and a
// configured set of namespaces, enforces resource limits, and reports
// usage statistics on fd 3.
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lrun-project/lrun/config"
	"github.com/lrun-project/lrun/supervisor"
)

func main() {
	if len(os.Args) <= 1 {
		printHelp("")
		os.Exit(0)
	}

	invokerUID := uint32(os.Getuid())
	invokerGID := uint32(os.Getgid())

	conf := config.Default(invokerUID, invokerGID)
	args, err := parseOptions(conf, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	conf.Args = args

	if messages := config.Validate(conf, invokerUID, invokerGID); len(messages) > 0 {
		for _, m := range messages {
			fmt.Fprintf(os.Stderr, "%s\n\n", m)
		}
		fmt.Fprintln(os.Stderr, "Please fix these errors and try again.")
		os.Exit(1)
	}

	log := newLogger(conf)
	defer log.Sync()

	if err := supervisor.EnsureRoot(conf); err != nil {
		log.Errorf("lrun: %v", err)
		os.Exit(1)
	}

	log.Debugf("lrun %s pid = %d", version, os.Getpid())

	s, err := supervisor.New(conf, log)
	if err != nil {
		log.Errorf("lrun: %v", err)
		os.Exit(1)
	}

	// serialize invocations sharing the same named cgroup; the lock is
	// held for the entire supervision
	if err := s.AcquireLock(); err != nil {
		log.Errorf("lrun: %v", err)
		s.CleanExit(1)
	}

	if code, err := s.Setup(); err != nil {
		log.Errorf("lrun: %v", err)
		s.CleanExit(code)
	}

	s.CleanExit(s.Run())
}

// newLogger builds the stderr logger; --debug and --status raise the
// level the way the debug build switches did
func newLogger(conf *config.Config) *zap.SugaredLogger {
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if conf.Debug || conf.Status {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return log.Sugar()
}
