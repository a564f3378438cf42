//go:build linux

package supervisor

import (
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	sddaemon "github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/edirooss/procmon/internal/config"
	"github.com/edirooss/procmon/internal/control"
	"github.com/edirooss/procmon/internal/logging"
)

const (
	// spawnFailureDelay is the respawn delay pinned after the child could
	// not be created at all, so persistent failure cannot fast-loop.
	spawnFailureDelay = 60 * time.Second

	// shutdownGrace is how long an orderly shutdown waits after SIGTERM
	// before escalating to SIGKILL.
	shutdownGrace = 6 * time.Second
)

// Supervisor owns the whole run: one monitored child at a time, the
// restart policy, and the event loop multiplexing child output, signals,
// control commands and the restart timer.
//
// Everything runs on the loop goroutine. The only concurrent parts are the
// per-spawn PTY reader and waiter, which communicate exclusively through
// the child's channels.
type Supervisor struct {
	cfg      *config.Config
	log      *zap.Logger
	logs     *logging.Logs
	commands <-chan control.Command
	isDaemon bool

	sigs  chan os.Signal
	child *child
	delay *restartDelay
	timer *time.Timer
	tail  tailBuffer

	// lines is the loop's view of the current child's output channel;
	// nil once the reader has closed it (or no child is running). The
	// child's own reference stays untouched.
	lines chan string

	// monitor: respawn the child when it dies. exitOnDeath: once set it
	// stays set; the next child death (or the timer, if the child is
	// already gone) ends the run with exitCode.
	monitor     bool
	exitOnDeath bool
	exitCode    int
	stopped     bool

	ready bool // sd_notify READY sent
}

// New builds a Supervisor. commands may be nil when no command pipe is
// configured.
func New(cfg *config.Config, logs *logging.Logs, commands <-chan control.Command, isDaemon bool) *Supervisor {
	return &Supervisor{
		cfg:      cfg,
		log:      logs.Parent,
		logs:     logs,
		commands: commands,
		isDaemon: isDaemon,
		sigs:     make(chan os.Signal, 16),
		delay:    newRestartDelay(cfg.MinWait, cfg.MaxWait),
		monitor:  true,
	}
}

// Run spawns the child and services events until a terminal condition.
// The return value is the process exit code.
func (s *Supervisor) Run() int {
	signal.Notify(s.sigs, unix.SIGHUP, unix.SIGINT, unix.SIGTERM, unix.SIGUSR1, unix.SIGUSR2)
	defer signal.Stop(s.sigs)

	s.timer = time.NewTimer(time.Hour)
	if !s.timer.Stop() {
		<-s.timer.C
	}
	defer s.timer.Stop()

	s.startChild()

	for !s.stopped {
		// Nil channels park their cases while no child is running.
		var done chan waitResult
		if s.child != nil {
			done = s.child.done
		}

		select {
		case line, ok := <-s.lines:
			if !ok {
				s.lines = nil
				continue
			}
			s.emitLine(line)

		case res := <-done:
			s.onChildExit(res)

		case sig := <-s.sigs:
			// Output produced just before a signal is flushed first.
			s.drainLines()
			s.handleSignal(sig)

		case cmd := <-s.commands:
			s.drainLines()
			s.handleCommand(cmd)

		case <-s.timer.C:
			s.onTimer()
		}
	}
	return s.exitCode
}

func (s *Supervisor) emitLine(line string) {
	s.tail.Append(line)
	s.child.log.Info(line)
}

// drainLines consumes whatever output is already assembled, without
// blocking.
func (s *Supervisor) drainLines() {
	for s.lines != nil {
		select {
		case line, ok := <-s.lines:
			if !ok {
				s.lines = nil
				return
			}
			s.emitLine(line)
		default:
			return
		}
	}
}

// drainUntilClosed consumes output until the reader closes the line
// channel (it does so once the PTY reports end-of-stream) or the bound
// expires. Run before the exit is recorded and the PTY closed so trailing
// output is not lost.
func (s *Supervisor) drainUntilClosed(bound time.Duration) {
	if s.lines == nil {
		return
	}
	deadline := time.NewTimer(bound)
	defer deadline.Stop()
	for {
		select {
		case line, ok := <-s.lines:
			if !ok {
				s.lines = nil
				return
			}
			s.emitLine(line)
		case <-deadline.C:
			return
		}
	}
}

func (s *Supervisor) startChild() {
	if s.cfg.StartupHook != "" {
		if err := runStartupHook(s.cfg, s.log); err != nil {
			// Already logged; back off the way an exec failure does.
			s.armRespawn()
			return
		}
	}

	s.log.Info("starting", zap.String("program", s.cfg.Program))
	c, err := spawn(s.cfg, s.log, s.logs.Child)
	if err != nil {
		if errors.Is(err, errExecFailure) {
			s.log.Warn("cannot exec",
				zap.String("program", s.cfg.Program), zap.Error(err))
			s.armRespawn()
			return
		}
		s.log.Warn("cannot start child", zap.Error(err))
		s.delay.Pin(spawnFailureDelay)
		s.timer.Reset(spawnFailureDelay)
		return
	}

	s.child = c
	s.lines = c.lines
	s.tail.Reset()
	s.log.Info("child started",
		zap.Int("pid", c.pid), zap.String("spawn_id", c.spawnID))

	if !s.ready {
		_, _ = sddaemon.SdNotify(false, sddaemon.SdNotifyReady)
		s.ready = true
	}
}

// armRespawn schedules the next spawn attempt and advances the backoff.
func (s *Supervisor) armRespawn() {
	if !s.monitor {
		return
	}
	wait := s.delay.Next()
	s.log.Info("waiting before respawn", zap.Duration("wait", wait))
	s.timer.Reset(wait)
}

func (s *Supervisor) onChildExit(res waitResult) {
	s.drainUntilClosed(500 * time.Millisecond)

	c := s.child
	if ws, ok := waitStatus(res); !ok {
		s.log.Warn("cannot wait for child", zap.Error(res.err))
	} else if ws.Signaled() {
		s.log.Info("child exited due to signal",
			zap.String("program", s.cfg.Program),
			zap.Int("pid", c.pid),
			zap.String("signal", ws.Signal().String()),
			zap.Int("status", ws.ExitStatus()))
		if tail := s.tail.Tail(10); len(tail) > 0 {
			s.log.Warn("last output before exit", zap.Strings("tail", tail))
		}
	} else if code := ws.ExitStatus(); code != execFailExit {
		// 99 means the child never reached its program and the failure
		// is already logged; anything else is worth a record.
		s.log.Info("child exited",
			zap.String("program", s.cfg.Program),
			zap.Int("pid", c.pid),
			zap.Int("status", code))
	}

	s.child = nil
	s.lines = nil
	c.close()

	if s.exitOnDeath {
		s.log.Info("exiting")
		s.exit(s.exitCode)
		return
	}
	s.armRespawn()
}

func (s *Supervisor) onTimer() {
	if s.child != nil {
		return
	}
	if s.exitOnDeath {
		s.exit(s.exitCode)
		return
	}
	if s.monitor {
		s.startChild()
	}
}

func (s *Supervisor) handleSignal(sig os.Signal) {
	switch sig {
	case unix.SIGHUP:
		s.onHup()
	case unix.SIGINT:
		s.onInt()
	case unix.SIGTERM:
		s.onTerm()
	case unix.SIGUSR1:
		s.stopMonitoring()
	case unix.SIGUSR2:
		s.resumeMonitoring()
	default:
		s.log.Warn("unexpected signal", zap.String("signal", sig.String()))
	}
}

// onHup forwards SIGHUP. A daemon keeps its policy; in the foreground the
// operator's hangup means exit once the child is gone — and right away if
// there is no child.
func (s *Supervisor) onHup() {
	if s.isDaemon {
		s.forward(unix.SIGHUP, "SIGHUP")
		return
	}
	if s.child == nil {
		s.log.Info("exiting on SIGHUP")
		s.exit(1)
		return
	}
	s.forward(unix.SIGHUP, "SIGHUP")
	s.latchExit(1)
}

// onInt mirrors ^C semantics: in the foreground the interrupt is for the
// whole session, so the supervisor follows the child out; a daemon just
// forwards and keeps its policy.
func (s *Supervisor) onInt() {
	if s.child == nil {
		if s.isDaemon {
			s.log.Info("SIGINT but no child")
			return
		}
		s.log.Info("exiting on SIGINT")
		s.exit(1)
		return
	}
	s.forward(unix.SIGINT, "SIGINT")
	if !s.isDaemon {
		s.latchExit(1)
	}
}

func (s *Supervisor) onTerm() {
	if s.child == nil {
		s.log.Info("exiting on SIGTERM")
		s.exit(1)
		return
	}
	s.forward(unix.SIGTERM, "SIGTERM")
	s.latchExit(0)
}

func (s *Supervisor) stopMonitoring() {
	s.log.Info("no longer monitoring", zap.String("program", s.cfg.Program))
	s.monitor = false
}

func (s *Supervisor) resumeMonitoring() {
	s.log.Info("monitoring again", zap.String("program", s.cfg.Program))
	s.monitor = true
	s.delay.Reset()
	if s.child == nil {
		s.startChild()
	}
}

func (s *Supervisor) handleCommand(cmd control.Command) {
	switch cmd {
	case control.CmdStart:
		s.resumeMonitoring()
	case control.CmdStop:
		s.stopMonitoring()
	case control.CmdHup:
		s.forward(unix.SIGHUP, "SIGHUP")
	case control.CmdInt:
		s.forward(unix.SIGINT, "SIGINT")
	case control.CmdExit:
		s.orderlyShutdown()
	}
}

// orderlyShutdown terminates the child (SIGTERM, bounded grace, SIGKILL)
// and ends the run with exit code 0. Child output keeps flowing to the
// sink while the grace period runs.
func (s *Supervisor) orderlyShutdown() {
	s.log.Info("shutdown requested")
	s.monitor = false
	s.exitOnDeath = true
	s.exitCode = 0

	if s.child == nil {
		s.exit(0)
		return
	}

	s.forward(unix.SIGTERM, "SIGTERM")
	deadline := time.NewTimer(shutdownGrace)
	defer deadline.Stop()

	for {
		select {
		case line, ok := <-s.lines:
			if !ok {
				s.lines = nil
				continue
			}
			s.emitLine(line)

		case res := <-s.child.done:
			s.onChildExit(res)
			return

		case <-deadline.C:
			s.log.Warn("grace period expired, sending SIGKILL",
				zap.Int("pid", s.child.pid))
			s.child.killGroup()
			select {
			case res := <-s.child.done:
				s.onChildExit(res)
			case <-time.After(time.Second):
				s.log.Warn("child did not exit after SIGKILL")
				s.exit(0)
			}
			return
		}
	}
}

func (s *Supervisor) forward(sig unix.Signal, name string) {
	if s.child == nil {
		s.log.Info("no child to signal", zap.String("signal", name))
		return
	}
	s.log.Info("passing signal to child",
		zap.String("signal", name), zap.Int("pid", s.child.pid))
	if err := s.child.signal(sig); err != nil {
		s.log.Warn("cannot signal child",
			zap.String("signal", name), zap.Int("pid", s.child.pid), zap.Error(err))
	}
}

// latchExit stops monitoring and records the status the supervisor will
// exit with once the child is reaped.
func (s *Supervisor) latchExit(code int) {
	s.monitor = false
	s.exitOnDeath = true
	s.exitCode = code
}

func (s *Supervisor) exit(code int) {
	if s.ready {
		_, _ = sddaemon.SdNotify(false, sddaemon.SdNotifyStopping)
	}
	s.exitCode = code
	s.stopped = true
}

func waitStatus(res waitResult) (syscall.WaitStatus, bool) {
	if res.state == nil {
		return 0, false
	}
	ws, ok := res.state.Sys().(syscall.WaitStatus)
	return ws, ok
}
