package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLoggerLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "panic", "fatal"} {
		l, err := NewLogger("json", level)
		require.NoError(t, err, level)
		require.NotNil(t, l)
	}

	l, err := NewLogger("text", "info")
	require.NoError(t, err)
	require.NotNil(t, l)
}

func TestNewLoggerNoneDisablesOutput(t *testing.T) {
	l, err := NewLogger("json", "none")
	require.NoError(t, err)
	require.NotNil(t, l)
	l.Info("discarded")
}

func TestNewLoggerUnknownLevel(t *testing.T) {
	_, err := NewLogger("json", "verbose")
	require.Error(t, err)
}
