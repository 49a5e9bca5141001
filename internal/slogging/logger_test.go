package slogging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":     LogLevelDebug,
		"DEBUG":     LogLevelDebug,
		"info":      LogLevelInfo,
		"warn":      LogLevelWarn,
		"warning":   LogLevelWarn,
		"error":     LogLevelError,
		"gibberish": LogLevelInfo,
		"":          LogLevelInfo,
	}

	for input, want := range cases {
		assert.Equal(t, want, ParseLogLevel(input), "input %q", input)
	}
}

func TestLogLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LogLevelDebug.String())
	assert.Equal(t, "INFO", LogLevelInfo.String())
	assert.Equal(t, "WARN", LogLevelWarn.String())
	assert.Equal(t, "ERROR", LogLevelError.String())
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}

func TestNewLoggerCreatesLogDirAndFile(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "logs")

	logger, err := NewLogger(Config{
		Level:            LogLevelInfo,
		IsDev:            true,
		LogDir:           logDir,
		AlsoLogToConsole: false,
	})
	require.NoError(t, err)
	defer func() { _ = logger.Close() }()

	logger.Info("session %s created", "abc")

	data, err := os.ReadFile(filepath.Join(logDir, "collab.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "session abc created")
}

func TestLevelGateSuppressesLowerLevels(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "logs")

	logger, err := NewLogger(Config{
		Level:            LogLevelWarn,
		IsDev:            true,
		LogDir:           logDir,
		AlsoLogToConsole: false,
	})
	require.NoError(t, err)
	defer func() { _ = logger.Close() }()

	logger.Debug("hidden debug line")
	logger.Info("hidden info line")
	logger.Warn("visible warn line")

	data, err := os.ReadFile(filepath.Join(logDir, "collab.log"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "visible warn line")
}

func TestGetFallsBackToConsoleLogger(t *testing.T) {
	// Get must never return nil even before Initialize runs.
	assert.NotNil(t, Get())
}
