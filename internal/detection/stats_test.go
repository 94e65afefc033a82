package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/parser"
)

func mkAnomaly(typ string, risk float64) Anomaly {
	return NewAnomaly(parser.LogEntry{SourceAddress: "10.0.0.1"}, MethodRuleBased, typ, risk, 0.8)
}

func TestStatsEmpty(t *testing.T) {
	t.Parallel()

	stats := Stats(nil)
	assert.Equal(t, 0, stats.Total)
	assert.Zero(t, stats.AverageRiskScore)
	assert.Empty(t, stats.TopAnomalyTypes)
}

func TestStatsBuckets(t *testing.T) {
	t.Parallel()

	anomalies := []Anomaly{
		mkAnomaly("blocked_traffic", 9.5),
		mkAnomaly("blocked_traffic", 9.0),
		mkAnomaly("suspicious_domain", 8.0),
		mkAnomaly("large_transfer", 5.0),
		mkAnomaly("off_hours_activity", 3.0),
	}

	stats := Stats(anomalies)
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 2, stats.CriticalCount)
	assert.Equal(t, 1, stats.HighCount)
	assert.Equal(t, 1, stats.MediumCount)
	assert.Equal(t, 1, stats.LowCount)
	assert.InDelta(t, 6.9, stats.AverageRiskScore, 1e-9)

	require.NotEmpty(t, stats.TopAnomalyTypes)
	assert.Equal(t, "blocked_traffic", stats.TopAnomalyTypes[0].Type)
	assert.Equal(t, 2, stats.TopAnomalyTypes[0].Count)
}

func TestStatsTopTypesLimit(t *testing.T) {
	t.Parallel()

	var anomalies []Anomaly
	for _, typ := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		anomalies = append(anomalies, mkAnomaly(typ, 5))
	}

	stats := Stats(anomalies)
	assert.Len(t, stats.TopAnomalyTypes, 5)
}

func TestNewAnomalyClampsScores(t *testing.T) {
	t.Parallel()

	a := NewAnomaly(parser.LogEntry{SourceAddress: "10.0.0.1"}, MethodSemantic, "x", 14, 1.4)
	assert.Equal(t, 10.0, a.RiskScore)
	assert.Equal(t, 1.0, a.Confidence)
	assert.NotEmpty(t, a.ID)

	b := NewAnomaly(parser.LogEntry{SourceAddress: "10.0.0.1"}, MethodSemantic, "x", -2, -0.5)
	assert.Zero(t, b.RiskScore)
	assert.Zero(t, b.Confidence)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestSeverityTiers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "critical", Severity(9.0))
	assert.Equal(t, "high", Severity(7.5))
	assert.Equal(t, "medium", Severity(4.0))
	assert.Equal(t, "low", Severity(3.9))
}

func TestSortByRisk(t *testing.T) {
	t.Parallel()

	anomalies := []Anomaly{mkAnomaly("a", 2), mkAnomaly("b", 9), mkAnomaly("c", 5)}
	SortByRisk(anomalies)
	assert.Equal(t, []float64{9, 5, 2}, []float64{anomalies[0].RiskScore, anomalies[1].RiskScore, anomalies[2].RiskScore})
}
