package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/detection"
)

// StoredAnomaly is the persisted form of a detection verdict.
type StoredAnomaly struct {
	ID              string         `json:"id"`
	JobID           string         `json:"job_id"`
	EntryTimestamp  string         `json:"entry_timestamp"`
	User            string         `json:"user"`
	SourceAddress   string         `json:"source_address"`
	URL             string         `json:"url"`
	AnomalyType     string         `json:"anomaly_type"`
	RiskScore       float64        `json:"risk_score"`
	Confidence      float64        `json:"confidence"`
	Method          string         `json:"method"`
	Description     string         `json:"description,omitempty"`
	Recommendations []string       `json:"recommendations,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	RawLine         string         `json:"raw_line,omitempty"`
	DetectedAt      time.Time      `json:"detected_at"`
}

// AnomalyRepository persists detection results.
type AnomalyRepository struct {
	store *Store
}

// InsertBatch writes a batch of anomalies for a job in one
// transaction. Recommendations and metadata are stored as JSON.
func (r *AnomalyRepository) InsertBatch(ctx context.Context, jobID string, anomalies []detection.Anomaly) error {
	if len(anomalies) == 0 {
		return nil
	}

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO anomalies
		(id, job_id, entry_timestamp, user, source_address, url, anomaly_type,
		 risk_score, confidence, method, description, recommendations, metadata, raw_line, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range anomalies {
		recs, err := json.Marshal(a.Recommendations)
		if err != nil {
			return fmt.Errorf("failed to marshal recommendations: %w", err)
		}
		meta, err := json.Marshal(a.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}

		if _, err := stmt.ExecContext(ctx,
			a.ID, jobID, a.Entry.Timestamp, a.Entry.User, a.Entry.SourceAddress,
			a.Entry.URL, a.AnomalyType, a.RiskScore, a.Confidence, string(a.Method),
			a.Description, string(recs), string(meta), a.Entry.RawLine,
			a.DetectedAt.UTC()); err != nil {
			return fmt.Errorf("failed to insert anomaly %s: %w", a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit anomaly batch: %w", err)
	}
	return nil
}

// ListByJob returns a job's anomalies ordered by risk score, highest
// first.
func (r *AnomalyRepository) ListByJob(ctx context.Context, jobID string) ([]*StoredAnomaly, error) {
	query := `SELECT id, job_id, entry_timestamp, user, source_address, url,
		anomaly_type, risk_score, confidence, method, description,
		recommendations, metadata, raw_line, detected_at
		FROM anomalies WHERE job_id = ? ORDER BY risk_score DESC, detected_at ASC`

	rows, err := r.store.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list anomalies: %w", err)
	}
	defer rows.Close()

	var out []*StoredAnomaly
	for rows.Next() {
		a := &StoredAnomaly{}
		var recs, meta string
		if err := rows.Scan(
			&a.ID, &a.JobID, &a.EntryTimestamp, &a.User, &a.SourceAddress, &a.URL,
			&a.AnomalyType, &a.RiskScore, &a.Confidence, &a.Method, &a.Description,
			&recs, &meta, &a.RawLine, &a.DetectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan anomaly row: %w", err)
		}
		if err := json.Unmarshal([]byte(recs), &a.Recommendations); err != nil {
			return nil, fmt.Errorf("corrupt recommendations for anomaly %s: %w", a.ID, err)
		}
		if err := json.Unmarshal([]byte(meta), &a.Metadata); err != nil {
			return nil, fmt.Errorf("corrupt metadata for anomaly %s: %w", a.ID, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountByJob returns how many anomalies a job produced.
func (r *AnomalyRepository) CountByJob(ctx context.Context, jobID string) (int, error) {
	var count int
	err := r.store.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM anomalies WHERE job_id = ?`, jobID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count anomalies: %w", err)
	}
	return count, nil
}
