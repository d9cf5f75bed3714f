package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queryforge/queryforge/internal/config"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"debug", DebugLevel},
		{"DEBUG", DebugLevel},
		{"info", InfoLevel},
		{"INFO", InfoLevel},
		{"warn", WarnLevel},
		{"warning", WarnLevel},
		{"error", ErrorLevel},
		{"ERROR", ErrorLevel},
		{"invalid", InfoLevel}, // default
		{"", InfoLevel},        // default
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
		{LogLevel(999), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.level.String())
		})
	}
}

func TestNewLoggerStdout(t *testing.T) {
	cfg := config.LoggingConfig{
		Level:  "info",
		Format: "text",
		Output: "stdout",
	}

	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	require.NotNil(t, logger)

	assert.Equal(t, InfoLevel, logger.level)
	assert.Equal(t, "text", logger.format)
	assert.Equal(t, os.Stdout, logger.output)
	assert.Nil(t, logger.file)
}

func TestNewLoggerFile(t *testing.T) {
	tempDir := t.TempDir()
	logFile := filepath.Join(tempDir, "logs", "app.log")

	cfg := config.LoggingConfig{
		Level:  "warn",
		Format: "text",
		Output: "file",
		File:   logFile,
	}

	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	require.NotNil(t, logger)

	defer logger.Close()

	assert.Equal(t, WarnLevel, logger.level)
	assert.NotNil(t, logger.file)
	assert.FileExists(t, logFile)
}

func TestNewLoggerFileMissingPath(t *testing.T) {
	cfg := config.LoggingConfig{
		Level:  "info",
		Format: "text",
		Output: "file",
	}

	_, err := NewLogger(cfg)
	assert.Error(t, err)
}

func TestNewLoggerInvalidOutput(t *testing.T) {
	cfg := config.LoggingConfig{
		Level:  "info",
		Format: "text",
		Output: "syslog",
	}

	_, err := NewLogger(cfg)
	assert.Error(t, err)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer

	logger := &Logger{
		level:  WarnLevel,
		format: "text",
		output: &buf,
		fields: make(map[string]interface{}),
	}

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.NotContains(t, out, "info message")
	assert.Contains(t, out, "warn message")
	assert.Contains(t, out, "error message")
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer

	logger := &Logger{
		level:  InfoLevel,
		format: "text",
		output: &buf,
		fields: make(map[string]interface{}),
	}

	logger.WithField("request_id", "abc12345").Info("cache hit")

	line := strings.TrimSpace(buf.String())
	assert.Contains(t, line, "INFO")
	assert.Contains(t, line, "cache hit")
	assert.Contains(t, line, "request_id=abc12345")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer

	logger := &Logger{
		level:  InfoLevel,
		format: "json",
		output: &buf,
		fields: make(map[string]interface{}),
	}

	logger.WithFields(map[string]interface{}{
		"tier":    "semantic",
		"version": "deadbeef",
	}).ErrorWithErr("cache write failed", errors.New("disk full"))

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "ERROR", entry.Level)
	assert.Equal(t, "cache write failed", entry.Message)
	assert.Equal(t, "disk full", entry.Error)
	assert.Equal(t, "semantic", entry.Fields["tier"])
	assert.Equal(t, "deadbeef", entry.Fields["version"])
	assert.NotEmpty(t, entry.Timestamp)
}

func TestWithFieldsDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer

	parent := &Logger{
		level:  InfoLevel,
		format: "text",
		output: &buf,
		fields: map[string]interface{}{"component": "converter"},
	}

	child := parent.WithField("attempt", 2)

	assert.Len(t, parent.fields, 1)
	assert.Len(t, child.fields, 2)
	assert.Equal(t, "converter", child.fields["component"])
}

func TestWithErrorNil(t *testing.T) {
	logger := GetLogger()
	assert.Same(t, logger, logger.WithError(nil))
}
