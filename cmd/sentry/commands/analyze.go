package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/detection"
	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/metrics"
	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/parser"
	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/pipeline"
	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/store"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Analyze a log file and print detected anomalies",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().String("method", "", "detection method: traditional, advanced, or semantic")
	analyzeCmd.Flags().Bool("json", false, "emit results as JSON")
	analyzeCmd.Flags().Bool("persist", false, "record the run in the configured database")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	method, _ := cmd.Flags().GetString("method")
	asJSON, _ := cmd.Flags().GetBool("json")
	persist, _ := cmd.Flags().GetBool("persist")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if method == "" {
		method = cfg.Pipeline.Method
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	content := string(data)
	ctx := context.Background()

	var st *store.Store
	if persist {
		st, err = store.Open(logger, cfg.Storage.DatabasePath)
		if err != nil {
			return err
		}
		defer st.Close()
	}

	p := pipeline.New(logger, cfg, st, metrics.New())

	if report := p.ValidateFormat(content); !report.Valid {
		return fmt.Errorf("unsupported log format: %s", report.Reason)
	}

	entries := parser.New(logger).Parse(content)
	anomalies, err := p.Detect(ctx, entries, pipeline.Options{Method: method})
	if err != nil {
		return err
	}

	if persist {
		job := &store.Job{
			ID:            uuid.NewString(),
			Filename:      args[0],
			FileSizeBytes: int64(len(data)),
			Method:        method,
		}
		if err := st.Jobs().Create(ctx, job); err != nil {
			return err
		}
		if err := st.Jobs().MarkStarted(ctx, job.ID, len(entries)); err != nil {
			return err
		}
		var keep []detection.Anomaly
		for _, a := range anomalies {
			if a.RiskScore >= cfg.Pipeline.PersistThreshold {
				keep = append(keep, a)
			}
		}
		if err := st.Anomalies().InsertBatch(ctx, job.ID, keep); err != nil {
			return err
		}
		if err := st.Jobs().MarkCompleted(ctx, job.ID, len(keep)); err != nil {
			return err
		}
		fmt.Printf("recorded job %s (%d anomalies persisted)\n", job.ID, len(keep))
	}

	if asJSON {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"file":      args[0],
			"entries":   len(entries),
			"anomalies": anomalies,
			"stats":     detection.Stats(anomalies),
		})
	}

	printSummary(args[0], int64(len(data)), entries, anomalies)
	return nil
}

func printSummary(file string, size int64, entries []parser.LogEntry, anomalies []detection.Anomaly) {
	stats := detection.Stats(anomalies)

	fmt.Printf("%s (%s): %d entries, %d anomalies\n",
		file, humanize.Bytes(uint64(size)), len(entries), stats.Total)
	if stats.Total == 0 {
		return
	}

	fmt.Printf("  critical %d  high %d  medium %d  low %d  avg risk %.1f\n",
		stats.CriticalCount, stats.HighCount, stats.MediumCount, stats.LowCount,
		stats.AverageRiskScore)

	for _, tc := range stats.TopAnomalyTypes {
		fmt.Printf("  %-24s %d\n", tc.Type, tc.Count)
	}

	fmt.Println()
	for i, a := range anomalies {
		if i >= 20 {
			fmt.Printf("  ... and %d more\n", len(anomalies)-20)
			break
		}
		fmt.Printf("  [%.1f %s] %s %s %s -> %s\n",
			a.RiskScore, detection.Severity(a.RiskScore), a.AnomalyType,
			a.Entry.User, a.Entry.SourceAddress, a.Entry.URL)
	}
}
