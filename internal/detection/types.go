// Package detection defines the output contract shared by all
// detectors: the Anomaly record, the detection method taxonomy, and
// aggregate statistics over a scored batch.
package detection

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/parser"
)

// Method identifies the detection strategy that produced an anomaly.
// Every anomaly carries exactly one attributable method; the ensemble
// method records its contributing sub-scores in metadata.
type Method string

const (
	MethodRuleBased   Method = "rule-based"
	MethodStatistical Method = "statistical"
	MethodBehavioral  Method = "behavioral"
	MethodSequence    Method = "sequence"
	MethodNetwork     Method = "network"
	MethodTimeSeries  Method = "time-series"
	MethodEnsemble    Method = "ensemble"
	MethodSemantic    Method = "semantic"
)

// Risk score boundaries shared by detectors and reporting.
const (
	MaxRiskScore      = 10.0
	AnomalyThreshold  = 4.0
	CriticalRiskScore = 9.0
	HighRiskScore     = 7.0
)

// Anomaly is a scored, typed finding produced by a detector against one
// LogEntry. Anomalies are created once per detector pass and never
// mutated by the detection core; ownership and triage status live with
// the storage collaborator.
type Anomaly struct {
	ID              string                 `json:"id"`
	Entry           parser.LogEntry        `json:"entry"`
	AnomalyType     string                 `json:"anomaly_type"`
	RiskScore       float64                `json:"risk_score"` // [0,10]
	Confidence      float64                `json:"confidence"` // [0,1]
	Description     string                 `json:"description"`
	Recommendations []string               `json:"recommendations,omitempty"`
	Method          Method                 `json:"detection_method"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	DetectedAt      time.Time              `json:"detected_at"`
}

// NewAnomaly builds an anomaly with a fresh identifier and scores
// clamped to their valid ranges.
func NewAnomaly(entry parser.LogEntry, method Method, anomalyType string, riskScore, confidence float64) Anomaly {
	return Anomaly{
		ID:          uuid.NewString(),
		Entry:       entry,
		AnomalyType: anomalyType,
		RiskScore:   ClampRisk(riskScore),
		Confidence:  clamp(confidence, 0, 1),
		Method:      method,
		Metadata:    make(map[string]interface{}),
		DetectedAt:  time.Now().UTC(),
	}
}

// ClampRisk bounds a risk score to [0,10].
func ClampRisk(score float64) float64 {
	return clamp(score, 0, MaxRiskScore)
}

// Severity maps a risk score onto the reporting tiers.
func Severity(riskScore float64) string {
	switch {
	case riskScore >= CriticalRiskScore:
		return "critical"
	case riskScore >= HighRiskScore:
		return "high"
	case riskScore >= AnomalyThreshold:
		return "medium"
	default:
		return "low"
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
