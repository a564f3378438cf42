package control

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Command is a single-byte control instruction read from the command pipe.
type Command byte

const (
	CmdStart Command = '+' // resume monitoring
	CmdStop  Command = '-' // cease monitoring
	CmdHup   Command = 'h' // forward SIGHUP to the child
	CmdInt   Command = 'i' // forward SIGINT to the child
	CmdExit  Command = 'x' // orderly shutdown
)

// CommandFromName maps the --command names onto the wire bytes.
func CommandFromName(name string) (Command, error) {
	switch name {
	case "start":
		return CmdStart, nil
	case "stop":
		return CmdStop, nil
	case "hup":
		return CmdHup, nil
	case "int":
		return CmdInt, nil
	case "exit":
		return CmdExit, nil
	}
	return 0, fmt.Errorf("unknown command: %s", name)
}

// ErrNotFIFO reports that the configured pipe path exists but is not a
// named pipe. The supervisor refuses to start rather than clobber it.
var ErrNotFIFO = errors.New("not a named pipe")

const fifoMode = 0o610

// Pipe is the supervisor side of the command FIFO. The path is created if
// absent and opened twice: a non-blocking reader the event loop consumes
// from, and a writer the supervisor holds so the reader never sees
// end-of-stream while other writers come and go.
type Pipe struct {
	path string
	log  *zap.Logger
	r    *os.File
	w    *os.File
	cmds chan Command
}

// OpenPipe sets up the command FIFO at path and starts decoding commands.
func OpenPipe(path string, log *zap.Logger) (*Pipe, error) {
	p := &Pipe{
		path: path,
		log:  log,
		cmds: make(chan Command, 16),
	}
	if err := p.open(); err != nil {
		return nil, err
	}
	go p.serve()
	return p, nil
}

// Commands returns the stream of decoded commands.
func (p *Pipe) Commands() <-chan Command { return p.cmds }

func (p *Pipe) open() error {
	fi, err := os.Stat(p.path)
	switch {
	case err == nil:
		if fi.Mode()&fs.ModeNamedPipe == 0 {
			return fmt.Errorf("%s: %w", p.path, ErrNotFIFO)
		}
	case os.IsNotExist(err):
		if err := unix.Mkfifo(p.path, fifoMode); err != nil {
			return fmt.Errorf("cannot make fifo %s: %w", p.path, err)
		}
	default:
		return fmt.Errorf("cannot stat %s: %w", p.path, err)
	}

	// The non-blocking open succeeds with no writer present; the write
	// side then opens without blocking because our own reader exists.
	r, err := os.OpenFile(p.path, os.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return fmt.Errorf("cannot open %s for reading: %w", p.path, err)
	}
	w, err := os.OpenFile(p.path, os.O_WRONLY, 0)
	if err != nil {
		_ = r.Close()
		return fmt.Errorf("cannot open %s for writing: %w", p.path, err)
	}
	p.r, p.w = r, w
	return nil
}

func (p *Pipe) serve() {
	buf := make([]byte, 1)
	for {
		n, err := p.r.Read(buf)
		if err != nil {
			if errors.Is(err, os.ErrClosed) {
				return
			}
			// The held write end should make end-of-stream impossible;
			// if the pipe breaks anyway, rebuild it and keep serving.
			p.log.Warn("command pipe read failed, reopening", zap.Error(err))
			_ = p.r.Close()
			_ = p.w.Close()
			if err := p.open(); err != nil {
				p.log.Error("cannot reopen command pipe", zap.Error(err))
				return
			}
			continue
		}
		if n == 0 {
			continue
		}

		switch c := Command(buf[0]); c {
		case CmdStart, CmdStop, CmdHup, CmdInt, CmdExit:
			p.cmds <- c
		default:
			p.log.Warn("unknown command byte, discarded",
				zap.String("byte", fmt.Sprintf("0x%02x", buf[0])))
		}
	}
}

// Close releases both descriptors. The FIFO itself is left in place for
// the next supervisor run.
func (p *Pipe) Close() {
	_ = p.r.Close()
	_ = p.w.Close()
}
