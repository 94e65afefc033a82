package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/store"
)

// Sweeper periodically fails jobs stuck past their processing ceiling.
// It is the backstop for jobs orphaned by a crash as well as runs
// wedged on an unresponsive provider.
type Sweeper struct {
	pipeline *Pipeline
	interval time.Duration
}

// NewSweeper creates a sweeper using the pipeline's timeout policy.
func NewSweeper(p *Pipeline) *Sweeper {
	interval := p.config().Pipeline.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{pipeline: p, interval: interval}
}

// Start runs the sweep loop until the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Sweep runs one pass over running jobs.
func (s *Sweeper) Sweep(ctx context.Context) {
	p := s.pipeline

	jobs, err := p.store.Jobs().ListProcessing(ctx)
	if err != nil {
		p.logger.Error("timeout sweep failed to list jobs", zap.Error(err))
		return
	}

	now := time.Now().UTC()
	cfg := p.config()
	for _, job := range jobs {
		if job.StartedAt == nil {
			continue
		}
		limit := timeoutFor(cfg, job.FileSizeBytes)
		elapsed := now.Sub(*job.StartedAt)
		if elapsed <= limit {
			continue
		}

		msg := fmt.Sprintf("analysis timed out after %.0f minutes (limit %.0f minutes)",
			elapsed.Minutes(), limit.Minutes())
		if err := p.store.Jobs().MarkTimedOut(ctx, job.ID, msg); err != nil {
			p.logger.Error("failed to time out job",
				zap.String("job_id", job.ID),
				zap.Error(err))
			continue
		}

		p.metrics.JobsCompleted.WithLabelValues(store.JobStatusTimedOut).Inc()
		p.logger.Warn("job timed out",
			zap.String("job_id", job.ID),
			zap.Duration("elapsed", elapsed),
			zap.Duration("limit", limit))
	}
}
