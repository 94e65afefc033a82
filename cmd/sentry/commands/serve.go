package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/api"
	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/config"
	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/metrics"
	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/pipeline"
	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the analysis service",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", "", "override the API listen address")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.API.ListenAddr = listen
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	st, err := store.Open(logger, cfg.Storage.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	m := metrics.New()
	p := pipeline.New(logger, cfg, st, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go pipeline.NewSweeper(p).Start(ctx)

	var exporter *metrics.Metrics
	if cfg.Metrics.Enabled {
		exporter = m
	}
	server := api.NewServer(logger, cfg.API, p, st, exporter)
	server.Start()

	// hot-reload of detection thresholds on config edits; the pipeline
	// swaps the snapshot atomically, running jobs are not disturbed
	if cfgFile != "" {
		watcher, err := config.NewWatcher(logger, cfgFile)
		if err != nil {
			logger.Warn("config watcher unavailable", zap.Error(err))
		} else {
			defer watcher.Stop()
			if err := watcher.Start(p.Reload); err != nil {
				logger.Warn("config watcher failed to start", zap.Error(err))
			}
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return server.Stop(shutdownCtx)
}
