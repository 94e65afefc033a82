package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/detection/semantic"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Show the configured language-model backend and check its availability",
	RunE:  runProviders,
}

func init() {
	rootCmd.AddCommand(providersCmd)
}

func runProviders(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	d, err := semantic.New(logger, semantic.Config{
		Provider: semantic.ProviderConfig{
			Provider: cfg.Detection.Semantic.Provider,
			Tier:     semantic.Tier(cfg.Detection.Semantic.Tier),
			APIKey:   cfg.Detection.Semantic.APIKey,
			BaseURL:  cfg.Detection.Semantic.BaseURL,
			Timeout:  cfg.Detection.Semantic.Timeout,
		},
	}, nil, nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status := d.Diagnostics(ctx)
	fmt.Printf("provider: %s\n", status.Name)
	for tier, model := range status.Models {
		fmt.Printf("  %-8s %s\n", tier, model)
	}
	if status.Available {
		fmt.Println("available: yes")
	} else {
		fmt.Println("available: no (check api_key, base_url, and network reachability)")
	}
	return nil
}
