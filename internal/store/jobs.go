package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Job status values. A job moves pending -> processing -> one of the
// terminal states.
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
	JobStatusTimedOut   = "timed_out"
)

// Job is one analysis run over an uploaded log file.
type Job struct {
	ID            string
	Filename      string
	FileSizeBytes int64
	Method        string
	Status        string
	Progress      float64
	TotalEntries  int
	Processed     int
	AnomalyCount  int
	Error         string
	CreatedAt     time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
	UpdatedAt     time.Time
}

// JobRepository persists analysis jobs.
type JobRepository struct {
	store *Store
}

// Create inserts a new pending job.
func (r *JobRepository) Create(ctx context.Context, job *Job) error {
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = JobStatusPending
	}

	query := `INSERT INTO analysis_jobs
		(id, filename, file_size_bytes, method, status, progress, total_entries, processed, anomaly_count, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.store.db.ExecContext(ctx, query,
		job.ID, job.Filename, job.FileSizeBytes, job.Method, job.Status,
		job.Progress, job.TotalEntries, job.Processed, job.AnomalyCount,
		job.Error, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// GetByID retrieves a job, or ErrJobNotFound.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*Job, error) {
	query := `SELECT id, filename, file_size_bytes, method, status, progress,
		total_entries, processed, anomaly_count, error, created_at, started_at, completed_at, updated_at
		FROM analysis_jobs WHERE id = ?`

	job := &Job{}
	var startedAt, completedAt sql.NullTime
	err := r.store.db.QueryRowContext(ctx, query, id).Scan(
		&job.ID, &job.Filename, &job.FileSizeBytes, &job.Method, &job.Status,
		&job.Progress, &job.TotalEntries, &job.Processed, &job.AnomalyCount,
		&job.Error, &job.CreatedAt, &startedAt, &completedAt, &job.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return job, nil
}

// MarkStarted transitions a job to processing and stamps started_at.
func (r *JobRepository) MarkStarted(ctx context.Context, id string, totalEntries int) error {
	now := time.Now().UTC()
	query := `UPDATE analysis_jobs
		SET status = ?, total_entries = ?, started_at = ?, updated_at = ?
		WHERE id = ?`

	return r.exec(ctx, id, query, JobStatusProcessing, totalEntries, now, now, id)
}

// UpdateProgress records batch completion for a running job.
func (r *JobRepository) UpdateProgress(ctx context.Context, id string, processed int, progress float64) error {
	query := `UPDATE analysis_jobs SET processed = ?, progress = ?, updated_at = ? WHERE id = ?`
	return r.exec(ctx, id, query, processed, progress, time.Now().UTC(), id)
}

// MarkCompleted finishes a job successfully.
func (r *JobRepository) MarkCompleted(ctx context.Context, id string, anomalyCount int) error {
	now := time.Now().UTC()
	query := `UPDATE analysis_jobs
		SET status = ?, progress = 100, anomaly_count = ?, completed_at = ?, updated_at = ?
		WHERE id = ?`
	return r.exec(ctx, id, query, JobStatusCompleted, anomalyCount, now, now, id)
}

// MarkFailed finishes a job with an error message.
func (r *JobRepository) MarkFailed(ctx context.Context, id, message string) error {
	now := time.Now().UTC()
	query := `UPDATE analysis_jobs
		SET status = ?, error = ?, completed_at = ?, updated_at = ?
		WHERE id = ?`
	return r.exec(ctx, id, query, JobStatusFailed, message, now, now, id)
}

// MarkTimedOut fails a job that exceeded its processing ceiling. The
// update is conditional on the job still running so a job that
// completed between the sweep's read and this write is left alone.
func (r *JobRepository) MarkTimedOut(ctx context.Context, id, message string) error {
	now := time.Now().UTC()
	query := `UPDATE analysis_jobs
		SET status = ?, error = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`

	_, err := r.store.db.ExecContext(ctx, query,
		JobStatusTimedOut, message, now, now, id, JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to time out job: %w", err)
	}
	return nil
}

// ListProcessing returns all jobs currently running, oldest first.
func (r *JobRepository) ListProcessing(ctx context.Context) ([]*Job, error) {
	query := `SELECT id, filename, file_size_bytes, method, status, progress,
		total_entries, processed, anomaly_count, error, created_at, started_at, completed_at, updated_at
		FROM analysis_jobs WHERE status = ? ORDER BY started_at ASC`

	rows, err := r.store.db.QueryContext(ctx, query, JobStatusProcessing)
	if err != nil {
		return nil, fmt.Errorf("failed to list processing jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

// ListRecent returns the most recent jobs, newest first.
func (r *JobRepository) ListRecent(ctx context.Context, limit int) ([]*Job, error) {
	query := `SELECT id, filename, file_size_bytes, method, status, progress,
		total_entries, processed, anomaly_count, error, created_at, started_at, completed_at, updated_at
		FROM analysis_jobs ORDER BY created_at DESC LIMIT ?`

	rows, err := r.store.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

func (r *JobRepository) exec(ctx context.Context, id, query string, args ...any) error {
	result, err := r.store.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", id, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrJobNotFound
	}
	return nil
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		job := &Job{}
		var startedAt, completedAt sql.NullTime
		if err := rows.Scan(
			&job.ID, &job.Filename, &job.FileSizeBytes, &job.Method, &job.Status,
			&job.Progress, &job.TotalEntries, &job.Processed, &job.AnomalyCount,
			&job.Error, &job.CreatedAt, &startedAt, &completedAt, &job.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		if startedAt.Valid {
			job.StartedAt = &startedAt.Time
		}
		if completedAt.Valid {
			job.CompletedAt = &completedAt.Time
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
