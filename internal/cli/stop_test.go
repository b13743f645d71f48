package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopCommand(t *testing.T) {
	t.Run("help text", func(t *testing.T) {
		out, err := execute(t, "", "stop", "--help")
		require.NoError(t, err)

		assert.Contains(t, out, "Stop a running serve or watch process")
		assert.Contains(t, out, "timeout")
	})

	t.Run("daemon not running", func(t *testing.T) {
		cfgPath, _ := testConfigFile(t)

		_, err := execute(t, "", "--config", cfgPath, "stop")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not running")
	})
}

func TestIsRunning(t *testing.T) {
	t.Run("no pid file", func(t *testing.T) {
		pidFile := filepath.Join(t.TempDir(), "nonexistent.pid")
		assert.False(t, isRunning(pidFile))
	})

	t.Run("invalid pid file", func(t *testing.T) {
		pidFile := filepath.Join(t.TempDir(), "invalid.pid")
		require.NoError(t, os.WriteFile(pidFile, []byte("invalid"), 0644))
		assert.False(t, isRunning(pidFile))
	})

	t.Run("stopDaemon refuses a stale pid", func(t *testing.T) {
		pidFile := filepath.Join(t.TempDir(), "stale.pid")
		require.NoError(t, os.WriteFile(pidFile, []byte("2147483640"), 0644))
		assert.Error(t, stopDaemon(pidFile))
	})
}
