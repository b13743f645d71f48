package cli

import (
	"encoding/json"
	"testing"

	"github.com/harun/twinself/pkg/changetracker"
	memversion "github.com/harun/twinself/pkg/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionsCommands(t *testing.T) {
	cfgPath, cfg := testConfigFile(t)
	seedData(t, cfg)

	out, err := execute(t, "", "--config", cfgPath, "versions", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No versions recorded yet")

	first := rebuild(t, cfgPath)
	writeData(t, cfg, changetracker.CategoryEpisodic, "more.json",
		`[{"user_query": "favourite tool?", "your_response": "A logic analyser."}]`)
	second := rebuild(t, cfgPath)

	t.Run("list", func(t *testing.T) {
		out, err := execute(t, "", "--config", cfgPath, "versions", "list")
		require.NoError(t, err)
		assert.Contains(t, out, "* "+second)
		assert.Contains(t, out, "  "+first)
	})

	t.Run("list json", func(t *testing.T) {
		out, err := execute(t, "", "--config", cfgPath, "versions", "list", "--json")
		require.NoError(t, err)
		var versions []memversion.MemoryVersion
		require.NoError(t, json.Unmarshal([]byte(out), &versions))
		assert.Len(t, versions, 2)
	})

	t.Run("active", func(t *testing.T) {
		out, err := execute(t, "", "--config", cfgPath, "versions", "active")
		require.NoError(t, err)
		assert.Contains(t, out, "Version:  "+second)
		assert.Contains(t, out, "Active:   true")
		assert.Contains(t, out, "default_prompt.md")
	})

	t.Run("show", func(t *testing.T) {
		out, err := execute(t, "", "--config", cfgPath, "versions", "show", first)
		require.NoError(t, err)
		assert.Contains(t, out, "Active:   false")
		assert.Contains(t, out, "user_episodic_memory_hg")
	})

	t.Run("show unknown", func(t *testing.T) {
		_, err := execute(t, "", "--config", cfgPath, "versions", "show", "v_missing")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "v_missing")
	})

	t.Run("diff", func(t *testing.T) {
		out, err := execute(t, "", "--config", cfgPath, "versions", "diff", first, second)
		require.NoError(t, err)
		assert.Contains(t, out, first+" -> "+second)
		assert.Contains(t, out, "1 -> 2 (+1)")
		assert.Contains(t, out, "data changed")
	})
}

func TestRollbackCommand(t *testing.T) {
	cfgPath, cfg := testConfigFile(t)
	seedData(t, cfg)
	first := rebuild(t, cfgPath)
	writeData(t, cfg, changetracker.CategorySemantic, "extra.md", "I also restore old radios.")
	second := rebuild(t, cfgPath)

	t.Run("declined", func(t *testing.T) {
		out, err := execute(t, "no\n", "--config", cfgPath, "rollback", first)
		require.NoError(t, err)
		assert.Contains(t, out, "Rollback cancelled.")

		out, err = execute(t, "", "--config", cfgPath, "versions", "active")
		require.NoError(t, err)
		assert.Contains(t, out, second)
	})

	t.Run("confirmed", func(t *testing.T) {
		out, err := execute(t, "yes\n", "--config", cfgPath, "rollback", first)
		require.NoError(t, err)
		assert.Contains(t, out, "Rollback successful.")

		out, err = execute(t, "", "--config", cfgPath, "versions", "active")
		require.NoError(t, err)
		assert.Contains(t, out, "Version:  "+first)
	})

	t.Run("metadata only", func(t *testing.T) {
		out, err := execute(t, "", "--config", cfgPath, "rollback", second, "--metadata-only", "--yes")
		require.NoError(t, err)
		assert.Contains(t, out, "only update the active version pointer")
		assert.Contains(t, out, "Rollback successful.")
	})

	t.Run("unknown version", func(t *testing.T) {
		_, err := execute(t, "", "--config", cfgPath, "rollback", "v_missing", "--yes")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("missing snapshot declined", func(t *testing.T) {
		_, err := execute(t, "", "--config", cfgPath, "snapshots", "delete", first)
		require.NoError(t, err)

		out, err := execute(t, "no\n", "--config", cfgPath, "rollback", first)
		require.NoError(t, err)
		assert.Contains(t, out, "Warning: no snapshot found")
		assert.Contains(t, out, "Rollback cancelled.")
	})

	t.Run("missing snapshot falls back to metadata only", func(t *testing.T) {
		out, err := execute(t, "yes\nyes\n", "--config", cfgPath, "rollback", first)
		require.NoError(t, err, out)
		assert.Contains(t, out, "Only the active version pointer will be updated.")
		assert.Contains(t, out, "Rollback successful.")
		assert.NotContains(t, out, "Previous data kept at")

		out, err = execute(t, "", "--config", cfgPath, "versions", "active")
		require.NoError(t, err)
		assert.Contains(t, out, "Version:  "+first)
	})

	t.Run("missing snapshot with yes", func(t *testing.T) {
		out, err := execute(t, "", "--config", cfgPath, "rollback", first, "--yes")
		require.NoError(t, err, out)
		assert.Contains(t, out, "Rollback successful.")
	})
}

func TestSnapshotsCommands(t *testing.T) {
	cfgPath, cfg := testConfigFile(t)
	seedData(t, cfg)
	first := rebuild(t, cfgPath)
	second := rebuild(t, cfgPath, "--create-version")

	t.Run("list", func(t *testing.T) {
		out, err := execute(t, "", "--config", cfgPath, "snapshots", "list")
		require.NoError(t, err)
		assert.Contains(t, out, first)
		assert.Contains(t, out, second)
		assert.Contains(t, out, "+prompt")
		assert.Contains(t, out, "Total: 2 snapshots")
	})

	t.Run("cleanup nothing to do", func(t *testing.T) {
		out, err := execute(t, "", "--config", cfgPath, "snapshots", "cleanup")
		require.NoError(t, err)
		assert.Contains(t, out, "Only 2 snapshots exist")
	})

	t.Run("cleanup declined", func(t *testing.T) {
		out, err := execute(t, "n\n", "--config", cfgPath, "snapshots", "cleanup", "--keep", "1")
		require.NoError(t, err)
		assert.Contains(t, out, "Cleanup cancelled.")
	})

	t.Run("cleanup keeps newest", func(t *testing.T) {
		out, err := execute(t, "", "--config", cfgPath, "snapshots", "cleanup", "--keep", "1", "--yes")
		require.NoError(t, err)
		assert.Contains(t, out, "Deleted 1 old snapshots")

		out, err = execute(t, "", "--config", cfgPath, "snapshots", "list")
		require.NoError(t, err)
		assert.Contains(t, out, second)
		assert.NotContains(t, out, first)
	})

	t.Run("delete", func(t *testing.T) {
		_, err := execute(t, "", "--config", cfgPath, "snapshots", "delete", first)
		require.Error(t, err)

		out, err := execute(t, "", "--config", cfgPath, "snapshots", "delete", second)
		require.NoError(t, err)
		assert.Contains(t, out, "Deleted snapshot "+second)
	})
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "2.00 KB", formatBytes(2048))
	assert.Equal(t, "1.50 MB", formatBytes(3*512*1024))
}
