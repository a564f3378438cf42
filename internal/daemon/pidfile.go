//go:build linux

package daemon

import (
	"fmt"
	"os"
	"strconv"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

// PIDFile is a written, flock-held pid file. The lock makes a second
// supervisor pointed at the same path fail fast instead of silently
// overwriting the pid of the first.
type PIDFile struct {
	path string
	lock *flock.Flock
}

// WritePIDFile locks path, writes the current pid and a newline, and
// returns the handle whose Remove must run on every normal exit.
func WritePIDFile(path string) (*PIDFile, error) {
	l := flock.New(path)
	ok, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("cannot lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s is locked by another instance", path)
	}

	pid := []byte(strconv.Itoa(os.Getpid()) + "\n")
	if err := os.WriteFile(path, pid, 0o644); err != nil {
		_ = l.Unlock()
		return nil, fmt.Errorf("cannot write to %s: %w", path, err)
	}
	return &PIDFile{path: path, lock: l}, nil
}

// Remove unlinks the pid file and drops the lock.
func (p *PIDFile) Remove(log *zap.Logger) {
	if err := os.Remove(p.path); err != nil {
		log.Warn("cannot unlink pid file", zap.String("path", p.path), zap.Error(err))
	}
	_ = p.lock.Unlock()
}
