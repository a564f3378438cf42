package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects where supervisor and child messages go. Exactly one sink
// is active: a rotating log file when LogFile is set, syslog when Daemon is
// set, the stderr console otherwise.
type Options struct {
	Name      string // supervisor log ident
	ChildName string // child log ident
	Daemon    bool
	LogFile   string
}

// Logs owns the configured sink and mints the per-spawn child loggers.
type Logs struct {
	opts Options

	// Parent carries supervisor messages.
	Parent *zap.Logger

	// shared core for the console and file sinks; nil in daemon mode,
	// where every ident gets its own syslog connection.
	core zapcore.Core
}

// New builds the logging sinks from opts.
func New(opts Options) (*Logs, error) {
	l := &Logs{opts: opts}

	switch {
	case opts.LogFile != "":
		enc := zapcore.NewConsoleEncoder(fileEncoderConfig())
		w := zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		})
		l.core = zapcore.NewCore(enc, w, zap.DebugLevel)
		l.Parent = zap.New(l.core).Named(opts.Name)

	case opts.Daemon:
		core, err := newSyslogCore(fmt.Sprintf("%s[%d]", opts.Name, os.Getpid()))
		if err != nil {
			return nil, fmt.Errorf("cannot open syslog: %w", err)
		}
		l.Parent = zap.New(core)

	default:
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = ""
		if term.IsTerminal(int(os.Stderr.Fd())) {
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		cfg.DisableStacktrace = true
		cfg.DisableCaller = true
		log, err := cfg.Build()
		if err != nil {
			return nil, err
		}
		l.core = log.Core()
		l.Parent = log.Named(opts.Name)
	}

	return l, nil
}

// Child builds the sink for one spawned child. The ident carries the
// child's pid the way syslog's LOG_PID would; spawnID correlates output
// with the lifecycle records for the same spawn. The returned closer
// releases any per-spawn syslog connection.
func (l *Logs) Child(pid int, spawnID string) (*zap.Logger, func()) {
	if l.core != nil {
		log := zap.New(l.core).
			Named(l.opts.ChildName).
			With(zap.Int("pid", pid), zap.String("spawn_id", spawnID))
		return log, func() {}
	}

	core, err := newSyslogCore(fmt.Sprintf("%s[%d]", l.opts.ChildName, pid))
	if err != nil {
		// Fall back to the parent's connection rather than dropping output.
		l.Parent.Warn("cannot open child syslog", zap.Error(err))
		log := l.Parent.With(zap.Int("pid", pid), zap.String("spawn_id", spawnID))
		return log, func() {}
	}
	log := zap.New(core).With(zap.String("spawn_id", spawnID))
	return log, func() { _ = core.close() }
}

// Close flushes the sinks.
func (l *Logs) Close() {
	_ = l.Parent.Sync()
}

func fileEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg
}
