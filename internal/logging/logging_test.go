package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		name      string
		verbosity int
		wantLevel zerolog.Level
	}{
		{"default warn level", 0, zerolog.WarnLevel},
		{"info level", 1, zerolog.InfoLevel},
		{"debug level", 2, zerolog.DebugLevel},
		{"trace level", 3, zerolog.TraceLevel},
		{"high verbosity defaults to trace", 5, zerolog.TraceLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tempDir := t.TempDir()
			t.Setenv("XDG_STATE_HOME", tempDir)

			SetupLogger(tt.verbosity)

			assert.Equal(t, tt.wantLevel, zerolog.GlobalLevel())

			logPath := filepath.Join(tempDir, "reqinstall", "reqinstall.log")
			_, err := os.Stat(logPath)
			assert.NoError(t, err, "log file should be created")
		})
	}
}

func TestGetLogger_AddsComponent(t *testing.T) {
	var buf bytes.Buffer
	orig := log.Logger
	origLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = orig
		zerolog.SetGlobalLevel(origLevel)
	})
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log.Logger = zerolog.New(&buf)

	logger := GetLogger("installer")
	logger.Info().Msg("hello")

	assert.Contains(t, buf.String(), `"component":"installer"`)
	assert.Contains(t, buf.String(), `"message":"hello"`)
}

func TestLogOperationStart(t *testing.T) {
	var buf bytes.Buffer
	origLevel := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(origLevel) })
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	logger := zerolog.New(&buf)

	done := LogOperationStart(logger, "plan")
	done()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Operation started")
	assert.Contains(t, lines[1], "Operation completed")
	assert.Contains(t, lines[1], `"duration"`)
}

func TestLogFilePath_RespectsEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", dir)

	assert.Equal(t, filepath.Join(dir, "reqinstall", "reqinstall.log"), LogFilePath())
}

func TestSetupLogger_ReplacesLogFile(t *testing.T) {
	// Arrange
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	SetupLogger(0)
	first := logFile
	require.NotNil(t, first)

	// Act
	SetupLogger(0)
	t.Cleanup(closeLogFile)

	// Assert
	require.NotNil(t, logFile)
	assert.NotSame(t, first, logFile)
	_, err := first.Write([]byte("x"))
	assert.ErrorIs(t, err, os.ErrClosed, "previous handle is closed")
}
