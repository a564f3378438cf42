package control

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

func pipePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "cmd.pipe")
}

func TestCommandFromName(t *testing.T) {
	for name, want := range map[string]Command{
		"start": CmdStart,
		"stop":  CmdStop,
		"hup":   CmdHup,
		"int":   CmdInt,
		"exit":  CmdExit,
	} {
		got, err := CommandFromName(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := CommandFromName("bogus")
	require.Error(t, err)
}

func TestOpenPipeCreatesFIFO(t *testing.T) {
	path := pipePath(t)

	p, err := OpenPipe(path, zap.NewNop())
	require.NoError(t, err)
	defer p.Close()

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, fi.Mode()&fs.ModeNamedPipe)
}

func TestOpenPipeReusesFIFO(t *testing.T) {
	path := pipePath(t)
	require.NoError(t, unix.Mkfifo(path, fifoMode))

	p, err := OpenPipe(path, zap.NewNop())
	require.NoError(t, err)
	p.Close()
}

func TestOpenPipeRefusesNonFIFO(t *testing.T) {
	path := pipePath(t)
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, err := OpenPipe(path, zap.NewNop())
	require.ErrorIs(t, err, ErrNotFIFO)
}

func TestSendRoundTrip(t *testing.T) {
	path := pipePath(t)

	p, err := OpenPipe(path, zap.NewNop())
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, Send(path, CmdExit))

	select {
	case got := <-p.Commands():
		assert.Equal(t, CmdExit, got)
	case <-time.After(2 * time.Second):
		t.Fatal("command not received")
	}
}

func TestUnknownBytesDiscarded(t *testing.T) {
	path := pipePath(t)

	p, err := OpenPipe(path, zap.NewNop())
	require.NoError(t, err)
	defer p.Close()

	w, err := os.OpenFile(path, os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = w.Write([]byte{'z'})
	require.NoError(t, err)
	w.Close()

	require.NoError(t, Send(path, CmdStart))

	select {
	case got := <-p.Commands():
		assert.Equal(t, CmdStart, got, "the unknown byte must not surface")
	case <-time.After(2 * time.Second):
		t.Fatal("command not received")
	}
}

func TestSendWithoutReader(t *testing.T) {
	path := pipePath(t)
	require.NoError(t, unix.Mkfifo(path, fifoMode))

	err := Send(path, CmdStart)
	require.Error(t, err)
}

func TestSendMissingPipe(t *testing.T) {
	err := Send(filepath.Join(t.TempDir(), "nope"), CmdStart)
	require.Error(t, err)
}
