package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAdapter_WritesStructuredFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	adapter := NewAdapter(zap.New(core))

	adapter.Debug("debug", "guard", "web")
	adapter.Info("info", "count", 2)
	adapter.Error("failed", errors.New("boom"), "guard", "admin")

	entries := logs.All()
	require.Len(t, entries, 3)
	require.Equal(t, zapcore.DebugLevel, entries[0].Level)
	require.Equal(t, "web", entries[0].ContextMap()["guard"])
	require.Equal(t, int64(2), entries[1].ContextMap()["count"])
	require.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	require.Equal(t, "boom", entries[2].ContextMap()["error"])
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, zap.DebugLevel, parseLevel("DEBUG"))
	require.Equal(t, zap.InfoLevel, parseLevel(""))
	require.Equal(t, zap.ErrorLevel, parseLevel("error"))
}

func TestNewZapLogger(t *testing.T) {
	logger, err := NewZapLogger(Options{Level: "warn"})
	require.NoError(t, err)
	require.False(t, logger.Core().Enabled(zap.InfoLevel))
	require.True(t, logger.Core().Enabled(zap.WarnLevel))
}

func TestNewAdapter_NilLogger(t *testing.T) {
	NewAdapter(nil).Info("ignored")
}
