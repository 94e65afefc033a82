package semantic

import (
	"fmt"
	"strings"

	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/detection"
	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/parser"
)

// minimalIndicators is the reduced embedded rule set used as the last
// fallback when both the provider and the rule-based detector are
// unavailable. Kept deliberately small; it only has to guarantee that
// a verdict always exists.
var minimalIndicators = []string{"malware", "phish", ".ru", "tor-"}

// minimalVerdict scores an entry with the embedded rule set.
func minimalVerdict(entry parser.LogEntry) detection.Anomaly {
	var score float64
	var triggered []string

	if strings.EqualFold(entry.Action, "blocked") {
		score += 4
		triggered = append(triggered, "blocked_action")
	}
	target := strings.ToLower(entry.URL + " " + entry.DestinationAddress + " " + entry.Category)
	for _, indicator := range minimalIndicators {
		if strings.Contains(target, indicator) {
			score += 5
			triggered = append(triggered, "indicator:"+indicator)
			break
		}
	}
	if entry.ByteCount > 100000 {
		score += 2
		triggered = append(triggered, "large_transfer")
	}

	score = detection.ClampRisk(score)
	anomalyType := "normal_traffic"
	if score >= detection.AnomalyThreshold {
		anomalyType = "minimal_rule_match"
	}

	a := detection.NewAnomaly(entry, detection.MethodRuleBased, anomalyType, score, 0.4)
	a.Description = fmt.Sprintf("Minimal fallback verdict (risk %.1f)", score)
	if len(triggered) > 0 {
		a.Description += ": " + strings.Join(triggered, ", ")
		a.Recommendations = []string{"Re-run analysis once the configured provider recovers"}
	}
	a.Metadata["is_anomaly"] = score >= detection.AnomalyThreshold
	a.Metadata["trigger_rules"] = triggered
	a.Metadata["verdict_source"] = "minimal_fallback"
	return a
}
