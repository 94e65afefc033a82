package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/config"
	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/logging"
)

const Version = "1.0.0"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "sentry",
	Short: "Proxy log anomaly detection",
	Long: `Sentry analyzes network proxy logs for anomalous and malicious
activity. It combines rule-based scoring, multi-pass statistical
detection, and optional language-model analysis, with results persisted
for triage over a REST API.`,
	Version: Version,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig resolves the configuration for a command invocation.
// Without a --config flag and with no ./config.yaml present, built-in
// defaults apply.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err != nil {
			cfg := config.Default()
			applyVerbose(cfg)
			return cfg, nil
		}
		path = "config.yaml"
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	applyVerbose(cfg)
	return cfg, nil
}

func applyVerbose(cfg *config.Config) {
	if verbose {
		cfg.LogLevel = "debug"
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.LogLevel, cfg.Logging)
}
