package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewConsoleLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(Options{})
	require.NoError(t, err)
	require.False(t, logger.Core().Enabled(-1), "debug should be disabled without --verbose")
}

func TestNewVerboseJSONLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(Options{Verbose: true, JSON: true})
	require.NoError(t, err)
	require.True(t, logger.Core().Enabled(-1))
}

func TestNewWritesRotatingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "web.log")
	logger, err := New(Options{JSON: true, File: path})
	require.NoError(t, err)

	logger.Info("model ready")
	_ = logger.Sync()

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(content), "model ready")
}
