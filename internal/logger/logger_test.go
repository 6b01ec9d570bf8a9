package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreGlobal(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
}

func TestNew(t *testing.T) {
	restoreGlobal(t)

	t.Run("console output", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := New(Config{Level: "info", Console: true, Output: &buf})
		require.NoError(t, err)
		defer l.Close()

		l.Info().Msg("hello")
		l.Debug().Msg("hidden")

		assert.Contains(t, buf.String(), `"message":"hello"`)
		assert.NotContains(t, buf.String(), "hidden")
	})

	t.Run("file output", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "logs", "toolgate.log")

		l, err := New(Config{Level: "debug", File: logFile})
		require.NoError(t, err)
		l.Debug().Msg("to file")
		require.NoError(t, l.Close())

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "to file")
	})

	t.Run("rotating file output", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "toolgate.log")

		l, err := New(Config{Level: "info", File: logFile, MaxSize: 1})
		require.NoError(t, err)
		defer l.Close()

		_, ok := l.closer.(*RotatingWriter)
		assert.True(t, ok)
	})

	t.Run("redaction", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := New(Config{Level: "info", Console: true, Redaction: true, Output: &buf})
		require.NoError(t, err)
		assert.NotNil(t, l.redactor)

		l.Info().Str("api_key", "sk-ant-REDACTED").Msg("provider ready")
		assert.NotContains(t, buf.String(), "abcdefghijklmnopqrstuvwxyz")
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := New(Config{Level: "chatty", Console: true, Output: &buf})
		require.NoError(t, err)
		assert.Equal(t, zerolog.InfoLevel, l.GetZerolog().GetLevel())
	})
}

func TestNew_SetsGlobalLogger(t *testing.T) {
	restoreGlobal(t)

	var buf bytes.Buffer
	_, err := New(Config{Level: "info", Console: true, Output: &buf})
	require.NoError(t, err)

	log.Info().Msg("global")
	assert.Contains(t, buf.String(), "global")
}

func TestComponent(t *testing.T) {
	restoreGlobal(t)

	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Console: true, Output: &buf})
	require.NoError(t, err)

	child := l.Component("dispatcher")
	child.Info().Msg("ready")
	assert.Contains(t, buf.String(), `"component":"dispatcher"`)

	buf.Reset()
	global := Component("tool-registry")
	global.Info().Msg("ready")
	assert.Contains(t, buf.String(), `"component":"tool-registry"`)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Console)
	assert.True(t, cfg.Redaction)
	assert.Equal(t, 100, cfg.MaxSize)
}
