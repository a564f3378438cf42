package config

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
)

// Command names accepted by --command.
var commandNames = []string{"start", "stop", "exit", "hup", "int"}

// Config is the supervisor's immutable startup configuration, built once
// from the CLI and passed to the components that need it.
type Config struct {
	Daemon       bool
	ClearEnv     bool
	Env          EnvList
	Email        string // accepted, not implemented
	ChildLogName string
	LogName      string
	LogFile      string
	MinWait      time.Duration
	MaxWait      time.Duration
	PidFile      string
	Dir          string
	StartupHook  string
	Cred         *Cred // nil when no --user given
	CommandPipe  string
	Command      string // non-empty selects sender mode
	ReleaseAllFD bool
	ShowVersion  bool

	// Program and Args are the child program path and its full argv
	// (Args[0] == Program).
	Program string
	Args    []string

	// MaxWaitRaised records that --max-wait-time was below --min-wait-time
	// and was silently raised; the caller logs it once a logger exists.
	MaxWaitRaised bool
}

// Parse builds a Config from the command line. Usage and parse errors are
// reported on w. pflag.ErrHelp is returned unchanged when help was
// requested and printed.
func Parse(progName string, args []string, w io.Writer) (*Config, error) {
	cfg := &Config{}

	fs := pflag.NewFlagSet(progName, pflag.ContinueOnError)
	fs.SetOutput(w)
	fs.SetInterspersed(false)
	fs.Usage = func() {
		fmt.Fprintf(w, "usage: %s [options] [--] program [args...]\n", progName)
		fmt.Fprintf(w, "       %s --command-pipe path --command cmd\n\n", progName)
		fs.PrintDefaults()
	}

	var (
		envSpecs []string
		userSpec string
		minWait  int
		maxWait  int
	)
	fs.BoolVarP(&cfg.Daemon, "daemon", "d", false, "detach from the terminal and run in the background")
	fs.BoolVarP(&cfg.ClearEnv, "clear-env", "C", false, "empty the child environment before applying --env")
	fs.StringArrayVarP(&envSpecs, "env", "E", nil, "set VAR=VAL in (or unset bare VAR from) the child environment")
	fs.StringVarP(&cfg.Email, "email", "e", "", "accepted for compatibility; not implemented")
	fs.StringVarP(&cfg.ChildLogName, "child-log-name", "L", "", "log identifier for child output")
	fs.StringVarP(&cfg.LogName, "log-name", "l", "", "log identifier for supervisor messages")
	fs.StringVar(&cfg.LogFile, "log-file", "", "append logs to this rotating file instead of stderr/syslog")
	fs.IntVarP(&maxWait, "max-wait-time", "M", 300, "upper bound on the restart backoff, in seconds")
	fs.IntVarP(&minWait, "min-wait-time", "m", 2, "lower bound and initial restart backoff, in seconds")
	fs.StringVarP(&cfg.PidFile, "pid-file", "p", "", "write the supervisor pid here and unlink it at exit")
	fs.StringVarP(&cfg.Dir, "dir", "D", "", "chdir in the child before exec")
	fs.StringVarP(&cfg.StartupHook, "startup-script", "S", "", "shell script run before each spawn")
	fs.StringVarP(&userSpec, "user", "u", "", "run the child as user[:group] or :group")
	fs.StringVarP(&cfg.CommandPipe, "command-pipe", "P", "", "named pipe for control commands")
	fs.StringVarP(&cfg.Command, "command", "c", "", "send start/stop/exit/hup/int to a running instance")
	fs.BoolVarP(&cfg.ReleaseAllFD, "release-allfd", "z", false, "close file descriptors >= 3 at startup")
	fs.BoolVarP(&cfg.ShowVersion, "version", "V", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.ShowVersion {
		return cfg, nil
	}

	for _, spec := range envSpecs {
		if err := cfg.Env.Add(spec); err != nil {
			return nil, err
		}
	}

	if minWait < 0 {
		return nil, fmt.Errorf("strange min wait time: %d", minWait)
	}
	if maxWait < 0 {
		return nil, fmt.Errorf("strange max wait time: %d", maxWait)
	}
	if maxWait < minWait {
		maxWait = minWait
		cfg.MaxWaitRaised = true
	}
	cfg.MinWait = time.Duration(minWait) * time.Second
	cfg.MaxWait = time.Duration(maxWait) * time.Second

	if userSpec != "" {
		userName, groupName, err := parseUserSpec(userSpec)
		if err != nil {
			return nil, err
		}
		cred, err := resolveCred(userName, groupName)
		if err != nil {
			return nil, err
		}
		cfg.Cred = cred
	}

	if cfg.Command != "" {
		if !validCommand(cfg.Command) {
			return nil, fmt.Errorf("unknown command: %s (expected one of %v)", cfg.Command, commandNames)
		}
		if cfg.CommandPipe == "" {
			return nil, fmt.Errorf("--command requires --command-pipe")
		}
		return cfg, nil
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return nil, fmt.Errorf("no program to monitor")
	}
	cfg.Program = rest[0]
	cfg.Args = rest

	if cfg.LogName == "" {
		cfg.LogName = progName
	}
	if cfg.ChildLogName == "" {
		cfg.ChildLogName = filepath.Base(cfg.Program)
	}
	return cfg, nil
}

func validCommand(name string) bool {
	for _, n := range commandNames {
		if n == name {
			return true
		}
	}
	return false
}
