// Package api exposes the analysis pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/config"
	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/metrics"
	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/pipeline"
	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/store"
)

// Server serves the REST interface.
type Server struct {
	logger   *zap.Logger
	config   config.APIConfig
	router   *mux.Router
	server   *http.Server
	pipeline *pipeline.Pipeline
	store    *store.Store
	metrics  *metrics.Metrics
}

// Response is the uniform API envelope.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Time    time.Time   `json:"time"`
}

// NewServer wires the routes. The metrics handler is mounted only when
// a metrics set is provided.
func NewServer(logger *zap.Logger, cfg config.APIConfig, p *pipeline.Pipeline, st *store.Store, m *metrics.Metrics) *Server {
	s := &Server{
		logger:   logger,
		config:   cfg,
		pipeline: p,
		store:    st,
		metrics:  m,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := mux.NewRouter()

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/analyze", s.handleAnalyze).Methods(http.MethodPost)
	v1.HandleFunc("/validate", s.handleValidate).Methods(http.MethodPost)
	v1.HandleFunc("/jobs", s.handleListJobs).Methods(http.MethodGet)
	v1.HandleFunc("/jobs/{id}", s.handleGetJob).Methods(http.MethodGet)
	v1.HandleFunc("/jobs/{id}/anomalies", s.handleJobAnomalies).Methods(http.MethodGet)
	v1.HandleFunc("/jobs/{id}/stats", s.handleJobStats).Methods(http.MethodGet)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	s.router = r
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start begins serving in the background.
func (s *Server) Start() {
	s.server = &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting API server", zap.String("listen_addr", s.config.ListenAddr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server error", zap.Error(err))
		}
	}()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) respond(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{
		Success: status < 400,
		Data:    data,
		Time:    time.Now().UTC(),
	})
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{
		Success: false,
		Error:   message,
		Time:    time.Now().UTC(),
	})
}
