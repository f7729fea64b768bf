package logger_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"paintball-ticketing/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesTerminalAndJSONFile(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer

	l, err := logger.New(logger.Options{Dir: dir, Service: "test", Output: &buf, NoColor: true})
	require.NoError(t, err)

	l.Warn("cache", "redis unavailable, serving uncached")
	l.Close()

	assert.Contains(t, buf.String(), "WARN")
	assert.Contains(t, buf.String(), "[CACHE")
	assert.Contains(t, buf.String(), "redis unavailable, serving uncached")

	files, err := filepath.Glob(filepath.Join(dir, "test-*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	raw, err := os.ReadFile(files[0])
	require.NoError(t, err)

	var found bool
	for _, line := range strings.Split(strings.TrimSpace(string(raw)), "\n") {
		var entry logger.LogEntry
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry.Category == "CACHE" {
			found = true
			assert.Equal(t, "WARN", entry.Level)
			assert.Equal(t, "logger_test.go", entry.File)
		}
	}
	assert.True(t, found)
}

func TestLoggerMinLevel(t *testing.T) {
	var buf bytes.Buffer
	l, err := logger.New(logger.Options{Output: &buf, MinLevel: logger.WARN, NoColor: true})
	require.NoError(t, err)

	l.Debug("ORDER", "hidden")
	l.Info("ORDER", "hidden too")
	l.Error("ORDER", "visible")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "visible")
}

func TestNopLoggerAndNilLogger(t *testing.T) {
	l := logger.NewNop()
	l.Error("X", "dropped")
	l.Close()

	var nilLogger *logger.Logger
	assert.NotPanics(t, func() { nilLogger.Info("X", "nil receiver") })
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logger.DEBUG, logger.ParseLevel("debug"))
	assert.Equal(t, logger.WARN, logger.ParseLevel("warning"))
	assert.Equal(t, logger.ERROR, logger.ParseLevel("ERROR"))
	assert.Equal(t, logger.INFO, logger.ParseLevel("nonsense"))
}
