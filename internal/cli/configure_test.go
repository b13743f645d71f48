package cli

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/harun/twinself/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureCommand(t *testing.T) {
	t.Run("help text", func(t *testing.T) {
		out, err := execute(t, "", "configure", "--help")
		require.NoError(t, err)
		assert.Contains(t, out, "interactive configuration wizard")
	})

	t.Run("saves answers", func(t *testing.T) {
		cfgPath := filepath.Join(t.TempDir(), "twinself.json")
		answers := strings.Join([]string{
			"bob",     // prefix
			"chromem", // backend
			"mock",    // provider
			"n",       // rule generation
			"debug",   // log level
		}, "\n") + "\n"

		out, err := execute(t, answers, "--config", cfgPath, "configure")
		require.NoError(t, err)
		assert.Contains(t, out, "Configuration saved to: "+cfgPath)

		cfg, err := config.Load(cfgPath)
		require.NoError(t, err)
		assert.Equal(t, "bob", cfg.Collections.UserPrefix)
		assert.Equal(t, "chromem", cfg.VectorStore.Backend)
		assert.Equal(t, "mock", cfg.Embedding.Provider)
		assert.False(t, cfg.RuleGeneration.Enabled)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})
}
