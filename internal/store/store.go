package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var (
	// ErrJobNotFound is returned when a job ID has no database row.
	ErrJobNotFound = errors.New("analysis job not found")
)

// Store wraps the SQLite database holding analysis jobs and persisted
// anomalies.
type Store struct {
	logger *zap.Logger
	db     *sql.DB

	jobs      *JobRepository
	anomalies *AnomalyRepository
}

// Open opens (creating if necessary) the database at path and
// initializes the schema.
func Open(logger *zap.Logger, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; a small pool avoids lock churn.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{logger: logger, db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.jobs = &JobRepository{store: s}
	s.anomalies = &AnomalyRepository{store: s}

	logger.Info("database opened", zap.String("path", path))
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Jobs returns the analysis-job repository.
func (s *Store) Jobs() *JobRepository { return s.jobs }

// Anomalies returns the anomaly repository.
func (s *Store) Anomalies() *AnomalyRepository { return s.anomalies }

func (s *Store) initSchema(ctx context.Context) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS analysis_jobs (
			id              TEXT PRIMARY KEY,
			filename        TEXT NOT NULL,
			file_size_bytes INTEGER NOT NULL DEFAULT 0,
			method          TEXT NOT NULL,
			status          TEXT NOT NULL,
			progress        REAL NOT NULL DEFAULT 0,
			total_entries   INTEGER NOT NULL DEFAULT 0,
			processed       INTEGER NOT NULL DEFAULT 0,
			anomaly_count   INTEGER NOT NULL DEFAULT 0,
			error           TEXT NOT NULL DEFAULT '',
			created_at      TIMESTAMP NOT NULL,
			started_at      TIMESTAMP,
			completed_at    TIMESTAMP,
			updated_at      TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status ON analysis_jobs(status)`,
		`CREATE TABLE IF NOT EXISTS anomalies (
			id              TEXT PRIMARY KEY,
			job_id          TEXT NOT NULL REFERENCES analysis_jobs(id) ON DELETE CASCADE,
			entry_timestamp TEXT NOT NULL,
			user            TEXT NOT NULL,
			source_address  TEXT NOT NULL,
			url             TEXT NOT NULL,
			anomaly_type    TEXT NOT NULL,
			risk_score      REAL NOT NULL,
			confidence      REAL NOT NULL,
			method          TEXT NOT NULL,
			description     TEXT NOT NULL DEFAULT '',
			recommendations TEXT NOT NULL DEFAULT '[]',
			metadata        TEXT NOT NULL DEFAULT '{}',
			raw_line        TEXT NOT NULL DEFAULT '',
			detected_at     TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_anomalies_job ON anomalies(job_id)`,
		`CREATE INDEX IF NOT EXISTS idx_anomalies_risk ON anomalies(risk_score)`,
	}

	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}
