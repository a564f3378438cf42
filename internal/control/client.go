package control

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sys/unix"
)

// Send delivers one command byte to the supervisor listening on the FIFO at
// path, then closes the pipe. Opening write-only and non-blocking fails with
// ENXIO until a reader exists, so the open is retried briefly; anything
// else is surfaced at once.
func Send(path string, cmd Command) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot stat %s: %w", path, err)
	}
	if fi.Mode()&fs.ModeNamedPipe == 0 {
		return fmt.Errorf("%s: %w", path, ErrNotFIFO)
	}

	var f *os.File
	open := func() error {
		f, err = os.OpenFile(path, os.O_WRONLY|unix.O_NONBLOCK, 0)
		if errors.Is(err, unix.ENXIO) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = 250 * time.Millisecond
	bo.MaxElapsedTime = 2 * time.Second
	if err := backoff.Retry(open, bo); err != nil {
		return fmt.Errorf("no supervisor listening on %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write([]byte{byte(cmd)}); err != nil {
		return fmt.Errorf("cannot write command: %w", err)
	}
	return nil
}
