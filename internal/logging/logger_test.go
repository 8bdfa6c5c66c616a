package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/kyleking/slidefill/internal/config"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()

	var entries []map[string]interface{}

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		entries = append(entries, entry)
	}

	return entries
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"invalid", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}

func TestNewLoggerOutputs(t *testing.T) {
	for _, output := range []string{"stdout", "stderr"} {
		t.Run(output, func(t *testing.T) {
			logger, err := NewLogger(config.LoggingConfig{Level: "info", Format: "text", Output: output})
			require.NoError(t, err)
			assert.Nil(t, logger.file)
		})
	}
}

func TestNewLoggerFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "nested", "slidefill.log")

	logger, err := NewLogger(config.LoggingConfig{Level: "warn", Format: "json", Output: "file", File: logFile})
	require.NoError(t, err)
	require.NotNil(t, logger.file)

	logger.Info("dropped")
	logger.Warn("kept")
	require.NoError(t, logger.Close())

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "kept")
	assert.NotContains(t, string(content), "dropped")
}

func TestNewLoggerErrors(t *testing.T) {
	_, err := NewLogger(config.LoggingConfig{Level: "info", Output: "file"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log file path is required")

	_, err = NewLogger(config.LoggingConfig{Level: "info", Output: "invalid"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log output")
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithWriter(&buf, "info", "json")
	logger.WithField("record", 3).WithFields(map[string]interface{}{
		"artifact": "abc",
		"shared":   true,
	}).Info("record shared")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "record shared", entries[0]["msg"])
	assert.Equal(t, float64(3), entries[0]["record"])
	assert.Equal(t, "abc", entries[0]["artifact"])
	assert.Equal(t, true, entries[0]["shared"])
}

func TestLoggerWithError(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithWriter(&buf, "info", "json")
	assert.Same(t, logger, logger.WithError(nil))

	logger.WithError(assert.AnError).Info("with error")
	logger.ErrorWithErr("operation failed", assert.AnError)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, assert.AnError.Error(), entries[0]["error"])
	assert.Equal(t, "error", entries[1]["level"])
	assert.Equal(t, assert.AnError.Error(), entries[1]["error"])
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithWriter(&buf, "warn", "json")
	logger.Debug("debug message")
	logger.Infof("info %d", 1)
	logger.Warnf("warn %s", "message")
	logger.Error("error message")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "warn", entries[0]["level"])
	assert.Equal(t, "warn message", entries[0]["msg"])
	assert.Equal(t, "error", entries[1]["level"])
}

func TestLoggerTextFormat(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithWriter(&buf, "info", "text")
	logger.WithField("key", "value").Info("test message")

	output := buf.String()
	assert.Contains(t, output, "INFO")
	assert.Contains(t, output, "test message")
	assert.Contains(t, output, `"key": "value"`)
}

func TestGlobalLogger(t *testing.T) {
	var buf bytes.Buffer

	prev := GetLogger()
	t.Cleanup(func() { SetLogger(prev) })

	SetLogger(NewWithWriter(&buf, "info", "json"))
	Infof("hello %s", "world")
	Warnf("careful")
	ErrorWithErr("boom", assert.AnError)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 3)
	assert.Equal(t, "hello world", entries[0]["msg"])
}

func TestGetLoggerBeforeInitialization(t *testing.T) {
	prev := GetLogger()
	t.Cleanup(func() { SetLogger(prev) })

	SetLogger(nil)
	assert.NotPanics(t, func() {
		GetLogger().Info("nobody listens")
		WithField("k", "v").Debug("still fine")
	})
}

func TestLoggerMiddleware(t *testing.T) {
	var buf bytes.Buffer

	prev := GetLogger()
	t.Cleanup(func() { SetLogger(prev) })
	SetLogger(NewWithWriter(&buf, "debug", "json"))

	require.NoError(t, LoggerMiddleware("load_dataset", func() error { return nil }))

	err := LoggerMiddleware("share_all", func() error { return assert.AnError })
	assert.Equal(t, assert.AnError, err)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 4)
	assert.Equal(t, "load_dataset", entries[0]["operation"])
	assert.Contains(t, entries[1]["msg"], "Operation completed successfully")
	assert.NotNil(t, entries[1]["duration"])
	assert.Equal(t, "error", entries[3]["level"])
	assert.Equal(t, assert.AnError.Error(), entries[3]["error"])
}

func TestNewTestLogger(t *testing.T) {
	logger := NewTestLogger(t)
	logger.WithField("case", t.Name()).Debug("routed through testing.T")
	require.NoError(t, logger.Close())
}
