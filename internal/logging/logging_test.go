package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "procmon.log")

	logs, err := New(Options{Name: "procmon", ChildName: "child", LogFile: path})
	require.NoError(t, err)

	logs.Parent.Info("supervisor message")

	childLog, closeLog := logs.Child(1234, "spawn-1")
	childLog.Info("child line")
	closeLog()
	logs.Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "supervisor message")
	assert.Contains(t, string(data), "child line")
	assert.Contains(t, string(data), "spawn-1")
}

func TestNewConsole(t *testing.T) {
	logs, err := New(Options{Name: "procmon", ChildName: "child"})
	require.NoError(t, err)

	childLog, closeLog := logs.Child(1, "spawn-2")
	assert.NotNil(t, childLog)
	closeLog()
}
