package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCommand(t *testing.T) {
	t.Run("command exists", func(t *testing.T) {
		found := false
		for _, c := range GetRootCmd().Commands() {
			if c.Name() == "status" {
				found = true
				break
			}
		}
		assert.True(t, found, "status command should exist")
	})

	t.Run("before and after a build", func(t *testing.T) {
		cfgPath, cfg := testConfigFile(t)
		seedData(t, cfg)

		out, err := execute(t, "", "--config", cfgPath, "status")
		require.NoError(t, err)
		assert.Contains(t, out, "Daemon: stopped")
		assert.Contains(t, out, "Active version: none")
		assert.Contains(t, out, "semantic       +1 ~0 -0")

		id := rebuild(t, cfgPath)

		out, err = execute(t, "", "--config", cfgPath, "status")
		require.NoError(t, err)
		assert.Contains(t, out, "Active version: "+id)
		assert.Contains(t, out, "Versions: 1, snapshots: 1")
		assert.Contains(t, out, "user_semantic_memory_hg")
		assert.Contains(t, out, "semantic       +0 ~0 -0")
	})
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{"seconds only", 45 * time.Second, "45s"},
		{"minutes and seconds", 2*time.Minute + 30*time.Second, "2m30s"},
		{"hours minutes seconds", 3*time.Hour + 15*time.Minute + 20*time.Second, "3h15m20s"},
		{"zero", 0, "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatDuration(tt.duration)
			assert.Equal(t, tt.expected, result)
		})
	}
}
