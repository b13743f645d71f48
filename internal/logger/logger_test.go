package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harun/twinself/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ConsoleJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "warn", Console: true, Out: &buf})
	require.NoError(t, err)
	defer l.Close()

	log := l.Component("lifecycle")
	log.Info().Msg("hidden")
	log.Warn().Str("version_id", "v1_20240101_000000").Msg("visible")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "visible", entry["message"])
	assert.Equal(t, "lifecycle", entry["component"])
	assert.Equal(t, "warn", entry["level"])
	assert.Contains(t, entry, "time")
}

func TestNew_FileAndRedaction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "twinself.log")
	l, err := New(Config{Level: "debug", File: path, Redaction: true})
	require.NoError(t, err)

	zl := l.Zerolog()
	zl.Debug().Msg("using Bearer abc.def.ghi")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[REDACTED]")
	assert.NotContains(t, string(data), "abc.def.ghi")
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	l, err := New(Config{Level: "loud", Console: true, Out: &bytes.Buffer{}})
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, l.Zerolog().GetLevel())
}

func TestFromSettings(t *testing.T) {
	s := config.DefaultConfig().Logging
	s.File = "data/twinself.log"

	cfg := FromSettings(s, "")
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "data/twinself.log", cfg.File)
	assert.True(t, cfg.Redaction)

	assert.Equal(t, "debug", FromSettings(s, "debug").Level)
}
