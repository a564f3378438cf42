//go:build linux

package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWritePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "procmon.pid")

	pf, err := WritePIDFile(path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid())+"\n", string(data))

	pf.Remove(zap.NewNop())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestWritePIDFileConflict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "procmon.pid")

	pf, err := WritePIDFile(path)
	require.NoError(t, err)
	defer pf.Remove(zap.NewNop())

	_, err = WritePIDFile(path)
	require.Error(t, err, "a second instance must not take the same pid file")
}

func TestDetachedDefault(t *testing.T) {
	t.Setenv("PROCMON_DAEMONIZED", "")
	assert.False(t, Detached())
}
