package config

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	return Parse("procmon", args, io.Discard)
}

func TestParseProgramAndArgs(t *testing.T) {
	cfg, err := parse(t, "-m", "1", "-M", "8", "--", "/bin/true", "-x", "y")
	require.NoError(t, err)

	assert.Equal(t, "/bin/true", cfg.Program)
	assert.Equal(t, []string{"/bin/true", "-x", "y"}, cfg.Args)
	assert.Equal(t, time.Second, cfg.MinWait)
	assert.Equal(t, 8*time.Second, cfg.MaxWait)
	assert.Equal(t, "procmon", cfg.LogName)
	assert.Equal(t, "true", cfg.ChildLogName)
}

func TestParseStopsAtProgram(t *testing.T) {
	// Flags after the program belong to the child, even without "--".
	cfg, err := parse(t, "-m", "1", "/bin/sleep", "30", "-d")
	require.NoError(t, err)

	assert.Equal(t, "/bin/sleep", cfg.Program)
	assert.Equal(t, []string{"/bin/sleep", "30", "-d"}, cfg.Args)
	assert.False(t, cfg.Daemon)
}

func TestParseNoProgram(t *testing.T) {
	_, err := parse(t, "-m", "1")
	require.Error(t, err)
}

func TestParseUnknownFlag(t *testing.T) {
	_, err := parse(t, "--no-such-flag", "/bin/true")
	require.Error(t, err)
}

func TestEnvClassification(t *testing.T) {
	cfg, err := parse(t, "-E", "FOO=bar", "-E", "BAR", "/bin/true")
	require.NoError(t, err)

	env := cfg.Env.Apply([]string{"BAR=1", "BAZ=2", "FOO=old"}, false)
	assert.Contains(t, env, "FOO=bar")
	assert.Contains(t, env, "BAZ=2")
	assert.NotContains(t, env, "BAR=1")
	assert.NotContains(t, env, "FOO=old")
}

func TestEnvLeadingEquals(t *testing.T) {
	_, err := parse(t, "-E", "=VAL", "/bin/true")
	require.Error(t, err)
}

func TestEnvClear(t *testing.T) {
	cfg, err := parse(t, "-C", "-E", "ONLY=this", "/bin/true")
	require.NoError(t, err)

	env := cfg.Env.Apply([]string{"HOME=/root", "PATH=/bin"}, cfg.ClearEnv)
	assert.Equal(t, []string{"ONLY=this"}, env)
}

func TestMaxWaitRaised(t *testing.T) {
	cfg, err := parse(t, "-m", "10", "-M", "5", "/bin/true")
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.MaxWait)
	assert.True(t, cfg.MaxWaitRaised)
}

func TestNegativeWaitRejected(t *testing.T) {
	_, err := parse(t, "--min-wait-time", "-1", "/bin/true")
	require.Error(t, err)

	_, err = parse(t, "--max-wait-time", "-1", "/bin/true")
	require.Error(t, err)
}

func TestCommandValidation(t *testing.T) {
	_, err := parse(t, "-c", "exit")
	require.Error(t, err, "--command without --command-pipe")

	_, err = parse(t, "-c", "bogus", "-P", "/tmp/pipe")
	require.Error(t, err)

	cfg, err := parse(t, "-c", "exit", "-P", "/tmp/pipe")
	require.NoError(t, err)
	assert.Equal(t, "exit", cfg.Command)
	assert.Equal(t, "/tmp/pipe", cfg.CommandPipe)
}

func TestParseUserSpec(t *testing.T) {
	userName, groupName, err := parseUserSpec("alice:staff")
	require.NoError(t, err)
	assert.Equal(t, "alice", userName)
	assert.Equal(t, "staff", groupName)

	userName, groupName, err = parseUserSpec(":staff")
	require.NoError(t, err)
	assert.Empty(t, userName)
	assert.Equal(t, "staff", groupName)

	userName, groupName, err = parseUserSpec("alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", userName)
	assert.Empty(t, groupName)

	_, _, err = parseUserSpec("alice:")
	require.Error(t, err)

	_, _, err = parseUserSpec("")
	require.Error(t, err)
}

func TestResolveCredNumericFallback(t *testing.T) {
	cred, err := resolveCred("12345", "")
	require.NoError(t, err)
	assert.True(t, cred.SetUID)
	assert.False(t, cred.SetGID)
	assert.Equal(t, uint32(12345), cred.UID)
}

func TestResolveCredRejectsNegative(t *testing.T) {
	// A negative id must be rejected on the signed value, never wrapped
	// into an unsigned id.
	_, err := resolveCred("-5", "")
	require.Error(t, err)

	_, err = resolveCred("", "-5")
	require.Error(t, err)
}

func TestResolveCredUnknownName(t *testing.T) {
	_, err := resolveCred("no-such-user-procmon-test", "")
	require.Error(t, err)
}
