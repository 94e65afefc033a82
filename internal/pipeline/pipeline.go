// Package pipeline orchestrates analysis jobs: parsing, batched
// detection, persistence, and progress tracking.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/config"
	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/detection"
	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/detection/ensemble"
	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/detection/rules"
	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/detection/semantic"
	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/metrics"
	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/parser"
	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/store"
)

// Analysis methods selectable per job.
const (
	MethodTraditional = "traditional"
	MethodAdvanced    = "advanced"
	MethodSemantic    = "semantic"
	MethodCustom      = "custom"
)

// analyzer is the per-batch contract every detector family satisfies.
type analyzer interface {
	AnalyzeBatch(ctx context.Context, entries []parser.LogEntry) []detection.Anomaly
}

// Options carries per-job overrides for a submission.
type Options struct {
	Method string

	// Provider overrides the configured language-model backend for
	// method "custom".
	Provider *semantic.ProviderConfig
}

// Pipeline runs analysis jobs against the store. The configuration is
// held behind an atomic pointer: a reload swaps the whole snapshot, and
// each job reads exactly one snapshot for its lifetime, so in-flight
// work never observes a half-applied config.
type Pipeline struct {
	logger  *zap.Logger
	cfg     atomic.Pointer[config.Config]
	store   *store.Store
	metrics *metrics.Metrics
	parser  *parser.Parser
}

// New creates a pipeline. The metrics set may be nil in library use.
func New(logger *zap.Logger, cfg *config.Config, st *store.Store, m *metrics.Metrics) *Pipeline {
	if m == nil {
		m = metrics.New()
	}
	p := &Pipeline{
		logger:  logger,
		store:   st,
		metrics: m,
		parser:  parser.New(logger),
	}
	p.cfg.Store(cfg)
	return p
}

// Reload swaps the active configuration. The snapshot must not be
// mutated after it is passed in; jobs already running keep the snapshot
// they started with.
func (p *Pipeline) Reload(cfg *config.Config) {
	p.cfg.Store(cfg)
	p.logger.Info("pipeline configuration reloaded")
}

func (p *Pipeline) config() *config.Config {
	return p.cfg.Load()
}

// Submit registers a job and starts analyzing in the background. The
// content is read fully before Submit returns so the caller may close
// the reader.
func (p *Pipeline) Submit(ctx context.Context, filename string, size int64, content io.Reader, opts Options) (string, error) {
	cfg := p.config()
	if opts.Method == "" {
		opts.Method = cfg.Pipeline.Method
	}
	if _, err := p.analyzerFor(cfg, opts); err != nil {
		return "", err
	}

	raw, err := io.ReadAll(content)
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	if size <= 0 {
		size = int64(len(raw))
	}

	job := &store.Job{
		ID:            uuid.NewString(),
		Filename:      filename,
		FileSizeBytes: size,
		Method:        opts.Method,
	}
	if err := p.store.Jobs().Create(ctx, job); err != nil {
		return "", err
	}

	go func() {
		// detached from the request context; the timeout sweep is the
		// backstop for runaway jobs
		runCtx, cancel := context.WithTimeout(context.Background(), timeoutFor(cfg, size))
		defer cancel()
		p.run(runCtx, cfg, job, string(raw), opts)
	}()

	return job.ID, nil
}

// Run analyzes content synchronously under an existing job record.
func (p *Pipeline) Run(ctx context.Context, job *store.Job, content string, opts Options) {
	p.run(ctx, p.config(), job, content, opts)
}

// Detect parses nothing and persists nothing: it scores the given
// entries with the selected method. Used by the CLI and tests.
func (p *Pipeline) Detect(ctx context.Context, entries []parser.LogEntry, opts Options) ([]detection.Anomaly, error) {
	cfg := p.config()
	if opts.Method == "" {
		opts.Method = cfg.Pipeline.Method
	}
	a, err := p.analyzerFor(cfg, opts)
	if err != nil {
		return nil, err
	}
	anomalies := a.AnalyzeBatch(ctx, entries)
	detection.SortByRisk(anomalies)
	return anomalies, nil
}

// ValidateFormat reports whether content parses at an acceptable rate.
func (p *Pipeline) ValidateFormat(content string) parser.FormatReport {
	return p.parser.Validate(content)
}

func (p *Pipeline) run(ctx context.Context, cfg *config.Config, job *store.Job, content string, opts Options) {
	logger := p.logger.With(zap.String("job_id", job.ID), zap.String("method", opts.Method))
	p.metrics.JobsActive.Inc()
	defer p.metrics.JobsActive.Dec()

	fail := func(msg string, err error) {
		logger.Error(msg, zap.Error(err))
		if dbErr := p.store.Jobs().MarkFailed(ctx, job.ID, fmt.Sprintf("%s: %v", msg, err)); dbErr != nil {
			logger.Error("failed to record job failure", zap.Error(dbErr))
		}
		p.metrics.JobsCompleted.WithLabelValues(store.JobStatusFailed).Inc()
	}

	if report := p.parser.Validate(content); !report.Valid {
		fail("log format validation failed", fmt.Errorf("%s", report.Reason))
		return
	}

	entries := p.parser.Parse(content)
	skipped := countLines(content) - len(entries)
	p.metrics.EntriesParsed.Add(float64(len(entries)))
	p.metrics.LinesSkipped.Add(float64(skipped))

	if err := p.store.Jobs().MarkStarted(ctx, job.ID, len(entries)); err != nil {
		logger.Error("failed to mark job started", zap.Error(err))
		return
	}

	a, err := p.analyzerFor(cfg, opts)
	if err != nil {
		fail("analyzer construction failed", err)
		return
	}

	total := 0
	processed := 0
	for _, batch := range batches(cfg, entries, opts.Method) {
		if ctx.Err() != nil {
			fail("analysis aborted", ctx.Err())
			return
		}

		start := time.Now()
		anomalies := a.AnalyzeBatch(ctx, batch)
		p.metrics.BatchDuration.WithLabelValues(opts.Method).Observe(time.Since(start).Seconds())

		persist := filterPersistable(cfg, anomalies)
		for _, anomaly := range persist {
			p.metrics.AnomaliesFound.WithLabelValues(
				string(anomaly.Method), detection.Severity(anomaly.RiskScore)).Inc()
		}
		if err := p.store.Anomalies().InsertBatch(ctx, job.ID, persist); err != nil {
			fail("failed to persist anomalies", err)
			return
		}
		total += len(persist)

		processed += len(batch)
		progress := float64(processed) / float64(len(entries)) * 100
		if err := p.store.Jobs().UpdateProgress(ctx, job.ID, processed, progress); err != nil {
			logger.Warn("failed to update progress", zap.Error(err))
		}
	}

	if err := p.store.Jobs().MarkCompleted(ctx, job.ID, total); err != nil {
		logger.Error("failed to mark job completed", zap.Error(err))
		return
	}
	p.metrics.JobsCompleted.WithLabelValues(store.JobStatusCompleted).Inc()

	logger.Info("analysis completed",
		zap.Int("entries", len(entries)),
		zap.Int("skipped", skipped),
		zap.Int("anomalies", total))
}

// batches splits entries for processing. The advanced method sees the
// whole input at once: its statistical baselines degenerate on small
// slices.
func batches(cfg *config.Config, entries []parser.LogEntry, method string) [][]parser.LogEntry {
	if method == MethodAdvanced {
		if len(entries) == 0 {
			return nil
		}
		return [][]parser.LogEntry{entries}
	}

	size := cfg.Pipeline.BatchSize
	var out [][]parser.LogEntry
	for i := 0; i < len(entries); i += size {
		end := i + size
		if end > len(entries) {
			end = len(entries)
		}
		out = append(out, entries[i:end])
	}
	return out
}

func filterPersistable(cfg *config.Config, anomalies []detection.Anomaly) []detection.Anomaly {
	threshold := cfg.Pipeline.PersistThreshold
	out := make([]detection.Anomaly, 0, len(anomalies))
	for _, a := range anomalies {
		if a.RiskScore >= threshold {
			out = append(out, a)
		}
	}
	return out
}

// timeoutFor picks the processing ceiling. Larger inputs get the
// tighter limit: past a point more wall time means a stuck provider,
// not more work.
func timeoutFor(cfg *config.Config, sizeBytes int64) time.Duration {
	if sizeBytes >= cfg.Pipeline.LargeFileBytes {
		return cfg.Pipeline.LargeFileTimeout
	}
	return cfg.Pipeline.SmallFileTimeout
}

func (p *Pipeline) analyzerFor(cfg *config.Config, opts Options) (analyzer, error) {
	switch opts.Method {
	case MethodTraditional:
		det := rules.New(p.logger, rules.Config{
			WindowSize:       cfg.Detection.Rules.WindowSize,
			RapidRepeatCount: cfg.Detection.Rules.RapidRepeatCount,
		})
		return ruleAnalyzer{det}, nil

	case MethodAdvanced:
		det := ensemble.New(p.logger, ensemble.Config{
			ZScoreThreshold:     cfg.Detection.Ensemble.ZScoreThreshold,
			EnsembleThreshold:   cfg.Detection.Ensemble.EnsembleThreshold,
			ScanMinDestinations: cfg.Detection.Ensemble.ScanDestinations,
			ScanMinRequests:     cfg.Detection.Ensemble.ScanRequests,
		})
		return ensembleAnalyzer{det}, nil

	case MethodSemantic, MethodCustom:
		providerCfg := semantic.ProviderConfig{
			Provider:    cfg.Detection.Semantic.Provider,
			Tier:        semantic.Tier(cfg.Detection.Semantic.Tier),
			Temperature: cfg.Detection.Semantic.Temperature,
			APIKey:      cfg.Detection.Semantic.APIKey,
			BaseURL:     cfg.Detection.Semantic.BaseURL,
			Timeout:     cfg.Detection.Semantic.Timeout,
		}
		if opts.Method == MethodCustom {
			if opts.Provider == nil {
				return nil, fmt.Errorf("custom method requires a provider configuration")
			}
			providerCfg = *opts.Provider
		}
		det, err := semantic.New(p.logger, semantic.Config{
			Provider:       providerCfg,
			InterCallDelay: cfg.Detection.Semantic.InterCallDelay,
			DelayThreshold: cfg.Detection.Semantic.DelayThreshold,
			OnProviderFailure: func(provider string, class semantic.FailureClass) {
				p.metrics.ProviderFailures.WithLabelValues(provider, string(class)).Inc()
			},
		}, nil, nil)
		if err != nil {
			return nil, err
		}
		return det, nil

	default:
		return nil, fmt.Errorf("unknown analysis method: %s", opts.Method)
	}
}

// ruleAnalyzer adapts the rule-based detector to the batch contract.
type ruleAnalyzer struct {
	det *rules.Detector
}

func (r ruleAnalyzer) AnalyzeBatch(ctx context.Context, entries []parser.LogEntry) []detection.Anomaly {
	var out []detection.Anomaly
	for _, entry := range entries {
		verdict := r.det.Score(entry)
		if verdict.IsAnomaly {
			out = append(out, r.det.ToAnomaly(entry, verdict))
		}
	}
	return out
}

type ensembleAnalyzer struct {
	det *ensemble.Detector
}

func (e ensembleAnalyzer) AnalyzeBatch(ctx context.Context, entries []parser.LogEntry) []detection.Anomaly {
	return e.det.Analyze(entries)
}

func countLines(raw string) int {
	n := 0
	for _, line := range strings.Split(raw, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}
