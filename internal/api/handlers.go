package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/detection"
	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/detection/semantic"
	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/pipeline"
	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/store"
)

const maxUploadBytes = 50 << 20

// AnalyzeRequest submits log content for analysis.
type AnalyzeRequest struct {
	Filename string                   `json:"filename"`
	Content  string                   `json:"content"`
	Method   string                   `json:"method,omitempty"`
	Provider *semantic.ProviderConfig `json:"provider,omitempty"`
}

// ValidateRequest checks log content without analyzing it.
type ValidateRequest struct {
	Content string `json:"content"`
}

// jobView is the wire form of a stored job.
type jobView struct {
	ID           string     `json:"id"`
	Filename     string     `json:"filename"`
	FileSize     string     `json:"file_size"`
	Method       string     `json:"method"`
	Status       string     `json:"status"`
	Progress     float64    `json:"progress"`
	TotalEntries int        `json:"total_entries"`
	Processed    int        `json:"processed"`
	AnomalyCount int        `json:"anomaly_count"`
	Error        string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

func toJobView(job *store.Job) jobView {
	return jobView{
		ID:           job.ID,
		Filename:     job.Filename,
		FileSize:     humanize.Bytes(uint64(job.FileSizeBytes)),
		Method:       job.Method,
		Status:       job.Status,
		Progress:     job.Progress,
		TotalEntries: job.TotalEntries,
		Processed:    job.Processed,
		AnomalyCount: job.AnomalyCount,
		Error:        job.Error,
		CreatedAt:    job.CreatedAt,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
	}
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBytes)).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		s.respondError(w, http.StatusBadRequest, "content is required")
		return
	}
	if req.Filename == "" {
		req.Filename = "upload.log"
	}

	jobID, err := s.pipeline.Submit(r.Context(), req.Filename, int64(len(req.Content)),
		strings.NewReader(req.Content), pipeline.Options{
			Method:   req.Method,
			Provider: req.Provider,
		})
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Info("analysis submitted",
		zap.String("job_id", jobID),
		zap.String("filename", req.Filename))
	s.respond(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBytes)).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.respond(w, http.StatusOK, s.pipeline.ValidateFormat(req.Content))
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.Jobs().ListRecent(r.Context(), 50)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	views := make([]jobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, toJobView(job))
	}
	s.respond(w, http.StatusOK, views)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.Jobs().GetByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			s.respondError(w, http.StatusNotFound, "job not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, "failed to load job")
		return
	}

	s.respond(w, http.StatusOK, toJobView(job))
}

func (s *Server) handleJobAnomalies(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.store.Jobs().GetByID(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			s.respondError(w, http.StatusNotFound, "job not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, "failed to load job")
		return
	}

	anomalies, err := s.store.Anomalies().ListByJob(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to load anomalies")
		return
	}
	if anomalies == nil {
		anomalies = []*store.StoredAnomaly{}
	}
	s.respond(w, http.StatusOK, anomalies)
}

func (s *Server) handleJobStats(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.store.Jobs().GetByID(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			s.respondError(w, http.StatusNotFound, "job not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, "failed to load job")
		return
	}

	stored, err := s.store.Anomalies().ListByJob(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to load anomalies")
		return
	}

	anomalies := make([]detection.Anomaly, 0, len(stored))
	for _, a := range stored {
		anomalies = append(anomalies, detection.Anomaly{
			AnomalyType: a.AnomalyType,
			RiskScore:   a.RiskScore,
		})
	}
	s.respond(w, http.StatusOK, detection.Stats(anomalies))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.respondError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}
