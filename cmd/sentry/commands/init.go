package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().String("config-dir", ".", "configuration directory")
	initCmd.Flags().Bool("force", false, "overwrite an existing configuration")
}

// starterConfig is what `sentry init` writes. Keys mirror the
// mapstructure tags in internal/config.
type starterConfig struct {
	LogLevel string `yaml:"log_level"`
	Logging  struct {
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Console    bool   `yaml:"console"`
	} `yaml:"logging"`
	Detection struct {
		Semantic struct {
			Provider string `yaml:"provider"`
			Tier     string `yaml:"tier"`
			APIKey   string `yaml:"api_key"`
		} `yaml:"semantic"`
	} `yaml:"detection"`
	Pipeline struct {
		BatchSize int    `yaml:"batch_size"`
		Method    string `yaml:"method"`
	} `yaml:"pipeline"`
	API struct {
		Enabled    bool   `yaml:"enabled"`
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"api"`
	Storage struct {
		DatabasePath string `yaml:"database_path"`
	} `yaml:"storage"`
}

func runInit(cmd *cobra.Command, args []string) error {
	configDir, _ := cmd.Flags().GetString("config-dir")
	force, _ := cmd.Flags().GetBool("force")

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.yaml")
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	var cfg starterConfig
	cfg.LogLevel = "info"
	cfg.Logging.File = "logs/sentry.log"
	cfg.Logging.MaxSizeMB = 100
	cfg.Logging.MaxBackups = 5
	cfg.Logging.MaxAgeDays = 30
	cfg.Logging.Console = true
	cfg.Detection.Semantic.Provider = "openai"
	cfg.Detection.Semantic.Tier = "standard"
	cfg.Pipeline.BatchSize = 10
	cfg.Pipeline.Method = "traditional"
	cfg.API.Enabled = true
	cfg.API.ListenAddr = ":8080"
	cfg.Storage.DatabasePath = "data/sentry.db"

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Wrote %s\n", path)
	return nil
}
