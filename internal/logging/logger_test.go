package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/config"
)

func TestNewFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "sentry.log")

	logger, err := New("debug", config.LoggingConfig{
		File:       path,
		MaxSizeMB:  10,
		MaxBackups: 1,
		MaxAgeDays: 1,
	})
	require.NoError(t, err)

	WithComponent(logger, "test").Info("started")
	logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"started"`)
	assert.Contains(t, string(data), `"level":"info"`)
}

func TestNewInvalidLevel(t *testing.T) {
	t.Parallel()

	_, err := New("chatty", config.LoggingConfig{Console: true})
	require.Error(t, err)
}

func TestNewConsoleOnly(t *testing.T) {
	logger, err := New("info", config.LoggingConfig{Console: true})
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestWithJob(t *testing.T) {
	logger, err := New("info", config.LoggingConfig{Console: true})
	require.NoError(t, err)

	jobLogger := WithJob(logger, "job-123")
	require.NotNil(t, jobLogger)
}
