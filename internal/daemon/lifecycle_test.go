package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLifecycleManager(t *testing.T) {
	cfg := testConfig(t)
	daemon := createTestDaemon(t, cfg, Options{})

	lm := NewLifecycleManager(daemon)
	assert.NotNil(t, lm)
	assert.Equal(t, daemon, lm.daemon)
	assert.Equal(t, filepath.Join(cfg.DataDir, "twinself.pid"), lm.PIDFile())
}

func TestLifecycleManagerStartStop(t *testing.T) {
	daemon := createTestDaemon(t, testConfig(t), Options{})
	lm := NewLifecycleManager(daemon)

	require.NoError(t, lm.Start())

	_, err := os.Stat(lm.PIDFile())
	assert.NoError(t, err)
	assert.True(t, lm.IsRunning())

	require.NoError(t, lm.Stop())

	_, err = os.Stat(lm.PIDFile())
	assert.True(t, os.IsNotExist(err))
	assert.False(t, lm.IsRunning())
}

func TestLifecycleManagerGetPID(t *testing.T) {
	daemon := createTestDaemon(t, testConfig(t), Options{})
	lm := NewLifecycleManager(daemon)

	require.NoError(t, lm.Start())
	defer lm.Stop()

	pid, err := lm.GetPID()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestLifecycleManager_RefusesLiveDaemon(t *testing.T) {
	daemon := createTestDaemon(t, testConfig(t), Options{})
	lm := NewLifecycleManager(daemon)

	// the test runner's parent process stands in for another daemon
	other := strconv.Itoa(os.Getppid())
	require.NoError(t, os.WriteFile(lm.PIDFile(), []byte(other), 0644))

	err := lm.Start()
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	// Stop leaves a PID file that is not ours alone
	require.NoError(t, lm.Stop())
	data, err := os.ReadFile(lm.PIDFile())
	require.NoError(t, err)
	assert.Equal(t, other, string(data))
}

func TestLifecycleManager_ReplacesStalePIDFile(t *testing.T) {
	daemon := createTestDaemon(t, testConfig(t), Options{})
	lm := NewLifecycleManager(daemon)

	require.NoError(t, os.WriteFile(lm.PIDFile(), []byte("2147483640"), 0644))
	require.NoError(t, lm.Start())
	defer lm.Stop()

	pid, err := lm.GetPID()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestProcessAlive(t *testing.T) {
	dir := t.TempDir()

	t.Run("no pid file", func(t *testing.T) {
		assert.False(t, ProcessAlive(filepath.Join(dir, "missing.pid")))
	})

	t.Run("invalid pid file", func(t *testing.T) {
		path := filepath.Join(dir, "invalid.pid")
		require.NoError(t, os.WriteFile(path, []byte("invalid"), 0644))
		assert.False(t, ProcessAlive(path))
	})

	t.Run("current process", func(t *testing.T) {
		path := filepath.Join(dir, "self.pid")
		require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644))
		assert.True(t, ProcessAlive(path))
	})
}
