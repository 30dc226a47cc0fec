package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/san-kum/acmsim/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	log := New(config.LoggingConfig{Level: "debug", Format: "console"}, zapcore.AddSync(&buf))

	log.Debug("advancing", zap.Int("steps", 10))
	require.NoError(t, log.Sync())

	out := buf.String()
	assert.Contains(t, out, "DEBUG")
	assert.Contains(t, out, "acmsim.")
	assert.Contains(t, out, "advancing")
	assert.Contains(t, out, `"steps": 10`)
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(config.LoggingConfig{Level: "warn", Format: "json"}, zapcore.AddSync(&buf))

	log.Info("dropped")
	log.Warn("auto-tuning skipped", zap.String("reason", "explicit regulator gains"))
	require.NoError(t, log.Sync())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "auto-tuning skipped", entry["msg"])
	assert.Equal(t, "explicit regulator gains", entry["reason"])
	assert.Equal(t, "acmsim", entry["logger"])
}

func TestNewUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(config.LoggingConfig{Level: "chatty", Format: "json"}, zapcore.AddSync(&buf))

	log.Debug("hidden")
	log.Info("shown")
	require.NoError(t, log.Sync())

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acmsim.log")
	var buf bytes.Buffer
	log := New(config.LoggingConfig{Level: "info", Format: "console", File: path, MaxSize: 1}, zapcore.AddSync(&buf))

	log.Error("numeric divergence", zap.Int("step", 150))
	require.NoError(t, Sync(log))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "numeric divergence", entry["msg"])
	assert.EqualValues(t, 150, entry["step"])
	assert.Contains(t, buf.String(), "numeric divergence")
}
