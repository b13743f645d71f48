package cli

import (
	"testing"

	"github.com/harun/twinself/pkg/changetracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebuildCommand(t *testing.T) {
	cfgPath, cfg := testConfigFile(t)
	seedData(t, cfg)

	t.Run("dry run", func(t *testing.T) {
		out, err := execute(t, "", "--config", cfgPath, "rebuild", "--dry-run")
		require.NoError(t, err)
		assert.Contains(t, out, "Dry run: nothing was changed")
		assert.Contains(t, out, "* semantic")
		assert.NotContains(t, out, "Created version")
	})

	t.Run("first build", func(t *testing.T) {
		out, err := execute(t, "", "--config", cfgPath, "rebuild")
		require.NoError(t, err)
		assert.Contains(t, out, "Rebuilt semantic")
		assert.Contains(t, out, "Rebuilt episodic")
		assert.Contains(t, out, "Rebuilt procedural")
		assert.Contains(t, out, "(snapshot saved)")
		assert.Contains(t, out, "Outcome: success")
	})

	t.Run("nothing changed", func(t *testing.T) {
		out, err := execute(t, "", "--config", cfgPath, "rebuild")
		require.NoError(t, err)
		assert.Contains(t, out, "Memory is up to date")
		assert.Contains(t, out, "Outcome: noop")
	})

	t.Run("create version without changes", func(t *testing.T) {
		id := rebuild(t, cfgPath, "--create-version")
		assert.NotEmpty(t, id)
	})
}

func TestRebuildCommand_ValidationAborts(t *testing.T) {
	cfgPath, cfg := testConfigFile(t)
	seedData(t, cfg)
	writeData(t, cfg, changetracker.CategoryEpisodic, "broken.json", `[{"user_query": "no response"}]`)

	out, err := execute(t, "", "--config", cfgPath, "rebuild", "--validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rebuild aborted")
	assert.Contains(t, out, "Validation errors:")
	assert.Contains(t, out, "broken.json")
}

func TestValidateCommand(t *testing.T) {
	t.Run("valid data", func(t *testing.T) {
		cfgPath, cfg := testConfigFile(t)
		seedData(t, cfg)

		out, err := execute(t, "", "--config", cfgPath, "validate")
		require.NoError(t, err)
		assert.Contains(t, out, "episodic:   1 files, 1 examples")
		assert.Contains(t, out, "All data is valid")
	})

	t.Run("no semantic data", func(t *testing.T) {
		cfgPath, _ := testConfigFile(t)

		out, err := execute(t, "", "--config", cfgPath, "validate")
		require.Error(t, err)
		assert.Contains(t, out, "ERROR")
	})
}
