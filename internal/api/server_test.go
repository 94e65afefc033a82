package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/config"
	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/metrics"
	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/pipeline"
	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.DatabasePath = filepath.Join(t.TempDir(), "test.db")

	st, err := store.Open(zaptest.NewLogger(t), cfg.Storage.DatabasePath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	m := metrics.New()
	p := pipeline.New(zaptest.NewLogger(t), cfg, st, m)
	return NewServer(zaptest.NewLogger(t), cfg.API, p, st, m), st
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func sampleContent(n int) string {
	var lines []string
	for i := 0; i < n; i++ {
		lines = append(lines, fmt.Sprintf(
			"2024-03-01T10:%02d:00Z|10.0.0.5|93.184.216.34|alice|allowed|https://example.com/p%d|200|5120|Mozilla/5.0|https|news",
			i%60, i))
	}
	return strings.Join(lines, "\n")
}

func TestAnalyzeEndToEnd(t *testing.T) {
	t.Parallel()
	s, st := newTestServer(t)

	content := sampleContent(20) + "\n" +
		"2024-03-01T10:30:00Z|10.0.0.9|203.0.113.7|mallory|blocked|http://malware-test.biz/a|403|150000|curl/8.0|http|malware"

	rec := doJSON(t, s, http.MethodPost, "/api/v1/analyze", AnalyzeRequest{
		Filename: "proxy.log",
		Content:  content,
		Method:   "traditional",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	resp := decodeResponse(t, rec)
	require.True(t, resp.Success)
	jobID := resp.Data.(map[string]any)["job_id"].(string)
	require.NotEmpty(t, jobID)

	require.Eventually(t, func() bool {
		job, err := st.Jobs().GetByID(context.Background(), jobID)
		return err == nil && job.Status == store.JobStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/jobs/"+jobID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	job := decodeResponse(t, rec).Data.(map[string]any)
	assert.Equal(t, "completed", job["status"])
	assert.Equal(t, float64(1), job["anomaly_count"])
	assert.Equal(t, "proxy.log", job["filename"])

	rec = doJSON(t, s, http.MethodGet, "/api/v1/jobs/"+jobID+"/anomalies", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	anomalies := decodeResponse(t, rec).Data.([]any)
	require.Len(t, anomalies, 1)
	first := anomalies[0].(map[string]any)
	assert.Equal(t, "mallory", first["user"])

	rec = doJSON(t, s, http.MethodGet, "/api/v1/jobs/"+jobID+"/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeResponse(t, rec).Data.(map[string]any)
	assert.Equal(t, float64(1), stats["total"])
}

func TestAnalyzeRejectsEmptyContent(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/analyze", AnalyzeRequest{Content: "   "})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, decodeResponse(t, rec).Success)
}

func TestAnalyzeRejectsUnknownMethod(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/analyze", AnalyzeRequest{
		Content: sampleContent(3),
		Method:  "turbo",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidateEndpoint(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/validate", ValidateRequest{Content: sampleContent(5)})
	require.Equal(t, http.StatusOK, rec.Code)
	report := decodeResponse(t, rec).Data.(map[string]any)
	assert.Equal(t, true, report["valid"])

	rec = doJSON(t, s, http.MethodPost, "/api/v1/validate", ValidateRequest{Content: "not a log"})
	require.Equal(t, http.StatusOK, rec.Code)
	report = decodeResponse(t, rec).Data.(map[string]any)
	assert.Equal(t, false, report["valid"])
	assert.NotEmpty(t, report["reason"])
}

func TestGetJobNotFound(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/jobs/nonexistent", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/jobs/nonexistent/anomalies", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListJobs(t *testing.T) {
	t.Parallel()
	s, st := newTestServer(t)

	require.NoError(t, st.Jobs().Create(context.Background(), &store.Job{
		ID:       "job-1",
		Filename: "a.log",
		Method:   "traditional",
	}))

	rec := doJSON(t, s, http.MethodGet, "/api/v1/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	jobs := decodeResponse(t, rec).Data.([]any)
	require.Len(t, jobs, 1)
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeResponse(t, rec).Success)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sentry_pipeline_jobs_active")
}
