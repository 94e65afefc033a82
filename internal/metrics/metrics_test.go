package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsExposition(t *testing.T) {
	t.Parallel()

	m := New()
	m.EntriesParsed.Add(42)
	m.AnomaliesFound.WithLabelValues("rule-based", "high").Inc()
	m.ProviderFailures.WithLabelValues("openai", "rate_limited").Inc()
	m.JobsActive.Set(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "sentry_parser_entries_parsed_total 42")
	assert.Contains(t, body, `sentry_detection_anomalies_total{method="rule-based",severity="high"} 1`)
	assert.Contains(t, body, `sentry_semantic_provider_failures_total{class="rate_limited",provider="openai"} 1`)
	assert.Contains(t, body, "sentry_pipeline_jobs_active 2")
}

func TestIndependentRegistries(t *testing.T) {
	t.Parallel()

	// two instances must not collide on registration
	a := New()
	b := New()
	a.EntriesParsed.Inc()

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "sentry_parser_entries_parsed_total 0")
}