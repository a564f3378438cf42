//go:build linux

package supervisor

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/edirooss/procmon/internal/config"
)

// execFailExit is the status a child reports when it never reached its
// program; the supervisor treats a reaped 99 as already-logged (no
// duplicate exit record). Startup-hook aborts do not produce it: they are
// logged and backed off before any child is spawned.
const execFailExit = 99

// child is one spawned instance of the monitored program, attached to a
// controlling PTY.
type child struct {
	pid     int
	spawnID string
	cmd     *exec.Cmd
	ptmx    *os.File

	// lines carries assembled output lines; the reader closes it after
	// the PTY reports end-of-stream (EIO once the child is gone).
	lines chan string

	// done receives the single Wait result.
	done chan waitResult

	// readers joins the PTY reader and the waiter before the PTY master
	// is closed.
	readers errgroup.Group

	log      *zap.Logger // child output sink
	closeLog func()
	parent   *zap.Logger
}

type waitResult struct {
	state *os.ProcessState
	err   error
}

// errExecFailure marks spawn errors meaning the program itself could not
// be executed (as opposed to failure to create the child at all).
var errExecFailure = errors.New("cannot exec")

// spawn starts cfg's program on a fresh controlling PTY. The child becomes
// a session leader with the PTY slave as its standard descriptors and
// controlling terminal; group then user credentials are dropped before
// exec when configured.
func spawn(cfg *config.Config, parent *zap.Logger, childLog func(pid int, spawnID string) (*zap.Logger, func())) (*child, error) {
	cmd := exec.Command(cfg.Args[0], cfg.Args[1:]...)
	cmd.Env = cfg.Env.Apply(os.Environ(), cfg.ClearEnv)
	cmd.Dir = cfg.Dir

	attr := &syscall.SysProcAttr{Setsid: true, Setctty: true}
	if cfg.Cred != nil {
		cred := &syscall.Credential{}
		if cfg.Cred.SetGID {
			cred.Gid = cfg.Cred.GID
		}
		if cfg.Cred.SetUID {
			cred.Uid = cfg.Cred.UID
		}
		attr.Credential = cred
	}

	ptmx, err := pty.StartWithAttrs(cmd, nil, attr)
	if err != nil {
		if isExecFailure(err) {
			return nil, errors.Join(errExecFailure, err)
		}
		return nil, err
	}

	c := &child{
		pid:     cmd.Process.Pid,
		spawnID: uuid.New().String(),
		cmd:     cmd,
		ptmx:    ptmx,
		lines:   make(chan string, 64),
		done:    make(chan waitResult, 1),
		parent:  parent,
	}
	c.log, c.closeLog = childLog(c.pid, c.spawnID)

	c.readers.Go(c.readPTY)
	c.readers.Go(func() error {
		err := cmd.Wait()
		c.done <- waitResult{state: cmd.ProcessState, err: err}
		return nil
	})
	return c, nil
}

// readPTY streams the master side into the line assembler until the PTY
// reports end-of-stream. EIO is the normal way a Linux PTY signals that
// the child is gone and is not reported.
func (c *child) readPTY() error {
	lb := &lineBuffer{emit: func(line string) { c.lines <- line }}
	buf := make([]byte, 1024)
	for {
		n, err := c.ptmx.Read(buf)
		if n > 0 {
			lb.Write(buf[:n])
		}
		if err != nil {
			if !errors.Is(err, unix.EIO) && !errors.Is(err, io.EOF) {
				c.parent.Warn("cannot read from pty", zap.Error(err))
			}
			lb.Flush()
			close(c.lines)
			return nil
		}
	}
}

// signal forwards sig to the child process.
func (c *child) signal(sig unix.Signal) error {
	return unix.Kill(c.pid, sig)
}

// killGroup sends SIGKILL to the child's whole session. The child is a
// session leader, so its pgid equals its pid.
func (c *child) killGroup() {
	_ = unix.Kill(-c.pid, unix.SIGKILL)
}

// close joins the reader and waiter, then releases the PTY master and the
// per-spawn log sink. Any lines the loop stopped consuming are discarded
// so the reader can finish.
func (c *child) close() {
	go func() {
		for range c.lines {
		}
	}()
	_ = c.readers.Wait()
	_ = c.ptmx.Close()
	c.closeLog()
}

// isExecFailure reports whether a spawn error means the target program
// could not be executed, rather than the child not being creatable.
func isExecFailure(err error) bool {
	return errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, exec.ErrNotFound) ||
		errors.Is(err, unix.ENOTDIR) ||
		errors.Is(err, unix.EACCES) ||
		errors.Is(err, unix.ENOEXEC)
}

// runStartupHook runs the configured shell hook with the child's
// environment, directory and credentials. Only a hook killed by SIGINT or
// SIGQUIT aborts the spawn; any other outcome is noted and ignored.
func runStartupHook(cfg *config.Config, log *zap.Logger) error {
	cmd := exec.Command("/bin/sh", cfg.StartupHook)
	cmd.Env = cfg.Env.Apply(os.Environ(), cfg.ClearEnv)
	cmd.Dir = cfg.Dir
	if cfg.Cred != nil {
		attr := &syscall.SysProcAttr{Credential: &syscall.Credential{}}
		if cfg.Cred.SetGID {
			attr.Credential.Gid = cfg.Cred.GID
		}
		if cfg.Cred.SetUID {
			attr.Credential.Uid = cfg.Cred.UID
		}
		cmd.SysProcAttr = attr
	}

	err := cmd.Run()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		ws, ok := exitErr.Sys().(syscall.WaitStatus)
		if ok && ws.Signaled() && (ws.Signal() == unix.SIGINT || ws.Signal() == unix.SIGQUIT) {
			log.Warn("startup script aborted by signal",
				zap.String("script", cfg.StartupHook),
				zap.String("signal", ws.Signal().String()))
			return err
		}
		// Other hook failures are tolerated.
		log.Debug("startup script failed, ignored",
			zap.String("script", cfg.StartupHook), zap.Error(err))
		return nil
	}
	log.Debug("cannot run startup script, ignored",
		zap.String("script", cfg.StartupHook), zap.Error(err))
	return nil
}
