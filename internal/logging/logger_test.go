package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWritesTextToStderrOnly(t *testing.T) {
	var buf bytes.Buffer
	runtime, err := New(Options{Level: "info", Stderr: &buf})
	require.NoError(t, err)
	require.Empty(t, runtime.Path)

	runtime.Logger.Info("hello", "component", "logging")
	runtime.Logger.Debug("hidden")
	require.NoError(t, runtime.Close())

	require.Contains(t, buf.String(), "msg=hello")
	require.Contains(t, buf.String(), "component=logging")
	require.NotContains(t, buf.String(), "hidden")
}

func TestNewFansOutToJSONFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "state", "echo.jsonl")

	runtime, err := New(Options{Level: "debug", File: path, Stderr: &buf})
	require.NoError(t, err)
	require.Equal(t, path, runtime.Path)

	runtime.Logger.Debug("unit-test-log", "component", "logging")
	require.NoError(t, runtime.Close())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(contents), `"msg":"unit-test-log"`)
	require.Contains(t, string(contents), `"component":"logging"`)
	require.Contains(t, buf.String(), "unit-test-log")

	stat, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), stat.Mode().Perm())
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for raw, want := range tests {
		require.Equal(t, want, ParseLevel(raw), raw)
	}
}

func TestOrDiscard(t *testing.T) {
	require.NotNil(t, OrDiscard(nil))
	logger := slog.Default()
	require.Same(t, logger, OrDiscard(logger))
}
