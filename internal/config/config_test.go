package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		check   func(t *testing.T, cfg *Config)
		wantErr bool
	}{
		{
			name: "valid config",
			content: `
log_level: debug

detection:
  rules:
    window_size: 500
    rapid_repeat_count: 3
  semantic:
    provider: gemini
    tier: premium
    api_key: test-key
    timeout: 10s

pipeline:
  batch_size: 25
  method: semantic
  persist_threshold: 5.0

api:
  listen_addr: ":9000"

storage:
  database_path: /tmp/test.db
`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.LogLevel)
				assert.Equal(t, 500, cfg.Detection.Rules.WindowSize)
				assert.Equal(t, 3, cfg.Detection.Rules.RapidRepeatCount)
				assert.Equal(t, "gemini", cfg.Detection.Semantic.Provider)
				assert.Equal(t, 10*time.Second, cfg.Detection.Semantic.Timeout)
				assert.Equal(t, 25, cfg.Pipeline.BatchSize)
				assert.Equal(t, "semantic", cfg.Pipeline.Method)
				assert.Equal(t, ":9000", cfg.API.ListenAddr)
				assert.Equal(t, "/tmp/test.db", cfg.Storage.DatabasePath)
			},
		},
		{
			name:    "defaults applied",
			content: "log_level: info\n",
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 1000, cfg.Detection.Rules.WindowSize)
				assert.Equal(t, 3.0, cfg.Detection.Ensemble.ZScoreThreshold)
				assert.Equal(t, 0.7, cfg.Detection.Ensemble.EnsembleThreshold)
				assert.Equal(t, "openai", cfg.Detection.Semantic.Provider)
				assert.Equal(t, 500*time.Millisecond, cfg.Detection.Semantic.InterCallDelay)
				assert.Equal(t, 10, cfg.Pipeline.BatchSize)
				assert.Equal(t, "traditional", cfg.Pipeline.Method)
				assert.Equal(t, 4.0, cfg.Pipeline.PersistThreshold)
				assert.Equal(t, 30*time.Minute, cfg.Pipeline.SmallFileTimeout)
				assert.Equal(t, 10*time.Minute, cfg.Pipeline.LargeFileTimeout)
				assert.True(t, cfg.API.Enabled)
				assert.True(t, cfg.Metrics.Enabled)
			},
		},
		{
			name:    "invalid log level",
			content: "log_level: verbose\n",
			wantErr: true,
		},
		{
			name:    "invalid method",
			content: "log_level: info\npipeline:\n  method: turbo\n",
			wantErr: true,
		},
		{
			name:    "invalid batch size",
			content: "log_level: info\npipeline:\n  batch_size: 0\n",
			wantErr: true,
		},
		{
			name:    "threshold out of range",
			content: "log_level: info\npipeline:\n  persist_threshold: 11\n",
			wantErr: true,
		},
		{
			name:    "unsupported provider",
			content: "log_level: info\ndetection:\n  semantic:\n    provider: anthropic\n",
			wantErr: true,
		},
		{
			name:    "empty database path",
			content: "log_level: info\nstorage:\n  database_path: \"\"\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := Load(writeConfig(t, tt.content))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, validate(cfg))
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 10, cfg.Pipeline.BatchSize)
}

func TestWatcherReload(t *testing.T) {
	path := writeConfig(t, "log_level: info\n")

	w, err := NewWatcher(zaptest.NewLogger(t), path)
	require.NoError(t, err)
	defer w.Stop()
	w.debounce = 50 * time.Millisecond

	var reloads atomic.Int32
	var gotLevel atomic.Value
	require.NoError(t, w.Start(func(cfg *Config) {
		gotLevel.Store(cfg.LogLevel)
		reloads.Add(1)
	}))
	assert.True(t, w.IsRunning())

	require.NoError(t, os.WriteFile(path, []byte("log_level: warn\n"), 0o644))

	require.Eventually(t, func() bool {
		return reloads.Load() >= 1
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, "warn", gotLevel.Load())
}

func TestWatcherIgnoresInvalidReload(t *testing.T) {
	path := writeConfig(t, "log_level: info\n")

	w, err := NewWatcher(zaptest.NewLogger(t), path)
	require.NoError(t, err)
	defer w.Stop()
	w.debounce = 50 * time.Millisecond

	var reloads atomic.Int32
	require.NoError(t, w.Start(func(cfg *Config) { reloads.Add(1) }))

	require.NoError(t, os.WriteFile(path, []byte("log_level: nonsense\n"), 0o644))

	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, int32(0), reloads.Load())
}

func TestWatcherDoubleStart(t *testing.T) {
	path := writeConfig(t, "log_level: info\n")

	w, err := NewWatcher(zaptest.NewLogger(t), path)
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, w.Start(nil))
	require.Error(t, w.Start(nil))
}
