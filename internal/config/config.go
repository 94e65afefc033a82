package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the application-wide configuration.
type Config struct {
	LogLevel string `mapstructure:"log_level"`

	Logging   LoggingConfig   `mapstructure:"logging"`
	Detection DetectionConfig `mapstructure:"detection"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	API       APIConfig       `mapstructure:"api"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// LoggingConfig controls structured log output and rotation.
type LoggingConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Console    bool   `mapstructure:"console"`
}

// DetectionConfig groups the per-detector tuning knobs.
type DetectionConfig struct {
	Rules    RulesConfig    `mapstructure:"rules"`
	Ensemble EnsembleConfig `mapstructure:"ensemble"`
	Semantic SemanticConfig `mapstructure:"semantic"`
}

// RulesConfig tunes the rule-based detector's rolling window.
type RulesConfig struct {
	WindowSize       int `mapstructure:"window_size"`
	RapidRepeatCount int `mapstructure:"rapid_repeat_count"`
}

// EnsembleConfig tunes the multi-pass statistical detector.
type EnsembleConfig struct {
	ZScoreThreshold   float64 `mapstructure:"z_score_threshold"`
	EnsembleThreshold float64 `mapstructure:"ensemble_threshold"`
	ScanDestinations  int     `mapstructure:"scan_destinations"`
	ScanRequests      int     `mapstructure:"scan_requests"`
}

// SemanticConfig selects and tunes the language-model provider.
type SemanticConfig struct {
	Provider       string        `mapstructure:"provider"`
	Tier           string        `mapstructure:"tier"`
	Temperature    float64       `mapstructure:"temperature"`
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	InterCallDelay time.Duration `mapstructure:"inter_call_delay"`
	DelayThreshold int           `mapstructure:"delay_threshold"`
}

// PipelineConfig tunes batch analysis.
type PipelineConfig struct {
	BatchSize        int     `mapstructure:"batch_size"`
	Method           string  `mapstructure:"method"`
	PersistThreshold float64 `mapstructure:"persist_threshold"`

	// Timeout ceilings by input size; larger inputs already cost more
	// upstream, so their analysis window is tighter.
	SmallFileTimeout time.Duration `mapstructure:"small_file_timeout"`
	LargeFileTimeout time.Duration `mapstructure:"large_file_timeout"`
	LargeFileBytes   int64         `mapstructure:"large_file_bytes"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
}

// APIConfig is the HTTP server configuration.
type APIConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
	RateLimit  int    `mapstructure:"rate_limit"`
}

// StorageConfig locates the SQLite database.
type StorageConfig struct {
	DatabasePath string `mapstructure:"database_path"`
	DataDir      string `mapstructure:"data_dir"`
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads and validates a configuration file. Environment variables
// prefixed with SENTRY_ override file values.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("SENTRY")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration with no file applied.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("default config unmarshal: %v", err))
	}
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.console", true)

	v.SetDefault("detection.rules.window_size", 1000)
	v.SetDefault("detection.rules.rapid_repeat_count", 5)

	v.SetDefault("detection.ensemble.z_score_threshold", 3.0)
	v.SetDefault("detection.ensemble.ensemble_threshold", 0.7)
	v.SetDefault("detection.ensemble.scan_destinations", 20)
	v.SetDefault("detection.ensemble.scan_requests", 50)

	v.SetDefault("detection.semantic.provider", "openai")
	v.SetDefault("detection.semantic.tier", "standard")
	v.SetDefault("detection.semantic.temperature", 0.1)
	v.SetDefault("detection.semantic.timeout", "30s")
	v.SetDefault("detection.semantic.inter_call_delay", "500ms")
	v.SetDefault("detection.semantic.delay_threshold", 10)

	v.SetDefault("pipeline.batch_size", 10)
	v.SetDefault("pipeline.method", "traditional")
	v.SetDefault("pipeline.persist_threshold", 4.0)
	v.SetDefault("pipeline.small_file_timeout", "30m")
	v.SetDefault("pipeline.large_file_timeout", "10m")
	v.SetDefault("pipeline.large_file_bytes", 10*1024*1024)
	v.SetDefault("pipeline.sweep_interval", "1m")

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.listen_addr", ":8080")
	v.SetDefault("api.rate_limit", 100)

	v.SetDefault("storage.database_path", "./data/sentry.db")
	v.SetDefault("storage.data_dir", "./data")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

func validate(cfg *Config) error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[cfg.LogLevel] {
		return fmt.Errorf("invalid log_level: %s", cfg.LogLevel)
	}

	validMethods := map[string]bool{
		"traditional": true,
		"advanced":    true,
		"semantic":    true,
		"custom":      true,
	}
	if !validMethods[cfg.Pipeline.Method] {
		return fmt.Errorf("invalid pipeline method: %s", cfg.Pipeline.Method)
	}

	if cfg.Pipeline.BatchSize < 1 {
		return fmt.Errorf("pipeline batch_size must be at least 1")
	}

	if cfg.Pipeline.PersistThreshold < 0 || cfg.Pipeline.PersistThreshold > 10 {
		return fmt.Errorf("persist_threshold must be between 0 and 10")
	}

	if cfg.Detection.Rules.WindowSize < 1 {
		return fmt.Errorf("rules window_size must be at least 1")
	}

	if cfg.Detection.Ensemble.EnsembleThreshold <= 0 || cfg.Detection.Ensemble.EnsembleThreshold > 1 {
		return fmt.Errorf("ensemble_threshold must be in (0, 1]")
	}

	switch cfg.Detection.Semantic.Provider {
	case "openai", "gemini", "":
	default:
		return fmt.Errorf("unsupported semantic provider: %s", cfg.Detection.Semantic.Provider)
	}

	if cfg.API.Enabled && cfg.API.ListenAddr == "" {
		return fmt.Errorf("api.listen_addr is required when API is enabled")
	}

	if cfg.Storage.DatabasePath == "" {
		return fmt.Errorf("storage.database_path is required")
	}

	return nil
}
