package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Paths, cfg.Paths)
	assert.Equal(t, 5, cfg.Snapshots.KeepLast)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twinself.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"data_dir": "/srv/twin",
		"collections": {"user_prefix": "alice"},
		"snapshots": {"keep_last": 3},
		"embedding": {"provider": "mock", "dimension": 32}
	}`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/twin", cfg.DataDir)
	assert.Equal(t, "alice", cfg.Collections.UserPrefix)
	assert.Equal(t, "hg", cfg.Collections.Suffix, "unset keys keep defaults")
	assert.Equal(t, 3, cfg.Snapshots.KeepLast)
	assert.Equal(t, "mock", cfg.Embedding.Provider)
	assert.Equal(t, 32, cfg.Embedding.Dimension)
	assert.Equal(t, 1000, cfg.Chunking.Size)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("TWINSELF_COLLECTIONS_USER_PREFIX", "bob")
	t.Setenv("TWINSELF_SNAPSHOTS_KEEP_LAST", "9")
	t.Setenv("TWINSELF_EMBEDDING_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, "bob", cfg.Collections.UserPrefix)
	assert.Equal(t, 9, cfg.Snapshots.KeepLast)
	assert.Equal(t, "sk-from-env", cfg.Embedding.APIKey)
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twinself.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "twinself.json")
	loader := NewLoader(path)

	cfg := DefaultConfig()
	cfg.Collections.UserPrefix = "carol"
	cfg.Schedule.Enabled = true
	cfg.Schedule.Cron = "@daily"
	require.NoError(t, loader.Save(cfg))

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "carol", loaded.Collections.UserPrefix)
	assert.True(t, loaded.Schedule.Enabled)
	assert.Equal(t, "@daily", loaded.Schedule.Cron)
	assert.Equal(t, path, loader.GetConfigPath())
}

func TestGetConfigPath_Default(t *testing.T) {
	assert.Equal(t, DefaultConfigFile, NewLoader("").GetConfigPath())
}
