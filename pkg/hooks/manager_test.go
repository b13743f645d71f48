package hooks

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrigger_RunsScriptWithEventData(t *testing.T) {
	out := filepath.Join(t.TempDir(), "hook.txt")
	manager, err := NewManager(Config{
		Enabled: true,
		Logger:  zerolog.Nop(),
		Hooks: []Hook{{
			ID:      "notify",
			Event:   EventVersionCreated,
			Script:  `echo "$TWINSELF_HOOK_EVENT $TWINSELF_HOOK_VERSION_ID $TWINSELF_HOOK_TRIGGER" > ` + out,
			Enabled: true,
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, manager.Count(EventVersionCreated))

	err = manager.Trigger(context.Background(), EventVersionCreated, map[string]interface{}{
		"version_id": "v3_20240601_120000",
		"trigger":    "cli",
	})
	require.NoError(t, err)

	content, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "version:created v3_20240601_120000 cli\n", string(content))
}

func TestTrigger_OnlyMatchingEvent(t *testing.T) {
	out := filepath.Join(t.TempDir(), "rollback.txt")
	manager, err := NewManager(Config{
		Enabled: true,
		Hooks:   []Hook{{Event: EventRollback, Script: "touch " + out, Enabled: true}},
	})
	require.NoError(t, err)

	require.NoError(t, manager.Trigger(context.Background(), EventVersionCreated, nil))
	assert.NoFileExists(t, out)

	require.NoError(t, manager.Trigger(context.Background(), EventRollback, nil))
	assert.FileExists(t, out)
}

func TestTrigger_JoinsErrors(t *testing.T) {
	manager, err := NewManager(Config{
		Enabled: true,
		Hooks: []Hook{
			{ID: "fail-1", Event: EventRebuildFailed, Script: "exit 2", Enabled: true},
			{ID: "fail-2", Event: EventRebuildFailed, Script: "echo boom; exit 3", Enabled: true},
		},
	})
	require.NoError(t, err)

	err = manager.Trigger(context.Background(), EventRebuildFailed, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hook fail-1 failed")
	assert.Contains(t, err.Error(), "hook fail-2 failed")
	assert.Contains(t, err.Error(), "boom")
}

func TestTrigger_Timeout(t *testing.T) {
	manager, err := NewManager(Config{
		Enabled: true,
		Hooks: []Hook{{
			ID:      "slow",
			Event:   EventRollback,
			Script:  "sleep 1",
			Enabled: true,
			Timeout: 30 * time.Millisecond,
		}},
	})
	require.NoError(t, err)

	err = manager.Trigger(context.Background(), EventRollback, nil)
	require.Error(t, err)
	assert.True(t,
		strings.Contains(err.Error(), "deadline exceeded") || strings.Contains(err.Error(), "signal: killed"),
		"expected timeout-related error, got: %v", err)
}

func TestNewManager(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
		count   int
	}{
		{
			name:  "disabled ignores hooks",
			cfg:   Config{Hooks: []Hook{{Event: "bogus", Enabled: true}}},
			count: 0,
		},
		{
			name:    "unknown event",
			cfg:     Config{Enabled: true, Hooks: []Hook{{Event: "daemon:startup", Script: "true", Enabled: true}}},
			wantErr: "unknown event",
		},
		{
			name:    "missing script",
			cfg:     Config{Enabled: true, Hooks: []Hook{{Event: EventRollback, Enabled: true}}},
			wantErr: "script is required",
		},
		{
			name: "disabled hook skipped",
			cfg: Config{Enabled: true, Hooks: []Hook{
				{Event: EventRollback, Script: "true", Enabled: true},
				{Event: EventRollback, Script: "true"},
			}},
			count: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewManager(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.count, m.Count(EventRollback))
		})
	}
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "VERSION_ID", envKey("version_id"))
	assert.Equal(t, "DATA_RESTORED", envKey("data-restored"))
	assert.Equal(t, "UNKNOWN", envKey(" "))
}

func TestNilManager(t *testing.T) {
	var m *Manager
	assert.NoError(t, m.Trigger(context.Background(), EventRollback, nil))
	assert.Equal(t, 0, m.Count(EventRollback))
}
