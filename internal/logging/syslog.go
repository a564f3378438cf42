package logging

import (
	"log/syslog"
	"strings"

	"go.uber.org/zap/zapcore"
)

// syslogCore routes zap entries to syslog(3) on the daemon facility. The
// severity map is INFO→LOG_INFO, WARN→LOG_WARNING, ERROR and above→LOG_ERR;
// debug entries go out at LOG_DEBUG. Timestamps and level tags are left to
// syslog itself, so the encoder only renders the message and its fields.
type syslogCore struct {
	zapcore.LevelEnabler
	enc zapcore.Encoder
	w   *syslog.Writer
}

func newSyslogCore(ident string) (*syslogCore, error) {
	w, err := syslog.New(syslog.LOG_DAEMON|syslog.LOG_INFO, ident)
	if err != nil {
		return nil, err
	}
	encCfg := zapcore.EncoderConfig{
		MessageKey:       "msg",
		ConsoleSeparator: " ",
		EncodeDuration:   zapcore.StringDurationEncoder,
	}
	return &syslogCore{
		LevelEnabler: zapcore.DebugLevel,
		enc:          zapcore.NewConsoleEncoder(encCfg),
		w:            w,
	}, nil
}

func (c *syslogCore) With(fields []zapcore.Field) zapcore.Core {
	clone := &syslogCore{
		LevelEnabler: c.LevelEnabler,
		enc:          c.enc.Clone(),
		w:            c.w,
	}
	for i := range fields {
		fields[i].AddTo(clone.enc)
	}
	return clone
}

func (c *syslogCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *syslogCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	buf, err := c.enc.EncodeEntry(ent, fields)
	if err != nil {
		return err
	}
	msg := strings.TrimRight(buf.String(), "\n")
	buf.Free()

	switch {
	case ent.Level >= zapcore.ErrorLevel:
		return c.w.Err(msg)
	case ent.Level == zapcore.WarnLevel:
		return c.w.Warning(msg)
	case ent.Level == zapcore.DebugLevel:
		return c.w.Debug(msg)
	default:
		return c.w.Info(msg)
	}
}

func (c *syslogCore) Sync() error { return nil }

func (c *syslogCore) close() error { return c.w.Close() }
