package config

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAPIKey(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateAPIKey("sk-ant-abc", "anthropic"))
	assert.Error(t, v.ValidateAPIKey("sk-abc", "anthropic"))
	assert.NoError(t, v.ValidateAPIKey("sk-proj-abc", "openai"))
	assert.Error(t, v.ValidateAPIKey("key", "openai"))
	assert.Error(t, v.ValidateAPIKey("", "openai"))
}

func TestValidateCron(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateCron("0 3 * * *", ""))
	assert.NoError(t, v.ValidateCron("@weekly", "Asia/Jakarta"))
	assert.Error(t, v.ValidateCron("0 3 * *", ""))
	assert.Error(t, v.ValidateCron("0 3 * * *", "Nowhere/City"))
}

func TestValidateConfig(t *testing.T) {
	v := NewValidator()

	cfg := validConfig()
	assert.Empty(t, v.ValidateConfig(cfg))

	cfg.RuleGeneration.APIKey = "not-anthropic"
	cfg.Schedule.Enabled = true
	cfg.Schedule.Cron = "never"
	cfg.Admin.SharedSecret = "short"
	cfg.Logging.Level = "trace"
	cfg.Watch.DebounceMs = -1

	errs := v.ValidateConfig(cfg)
	assert.Len(t, errs, 5)
}

func TestWizard(t *testing.T) {
	in := strings.NewReader(strings.Join([]string{
		"alice",      // prefix
		"chromem",    // backend
		"openai",     // provider
		"bad-key",    // rejected
		"sk-good",    // accepted
		"y",          // rule generation
		"sk-ant-key", // anthropic
		"",           // log level default
	}, "\n") + "\n")
	var out bytes.Buffer

	cfg, err := NewWizard(in, &out).Run()
	require.NoError(t, err)
	assert.Equal(t, "alice", cfg.Collections.UserPrefix)
	assert.Equal(t, "chromem", cfg.VectorStore.Backend)
	assert.Equal(t, "sk-good", cfg.Embedding.APIKey)
	assert.True(t, cfg.RuleGeneration.Enabled)
	assert.Equal(t, "sk-ant-key", cfg.RuleGeneration.APIKey)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Contains(t, out.String(), "invalid OpenAI API key format")
}

func TestWizard_EOFUsesDefaults(t *testing.T) {
	cfg, err := NewWizard(strings.NewReader(""), &bytes.Buffer{}).Run()
	require.NoError(t, err)
	assert.Equal(t, "user", cfg.Collections.UserPrefix)
	assert.Equal(t, "sqlite", cfg.VectorStore.Backend)
}
