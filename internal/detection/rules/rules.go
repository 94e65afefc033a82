// Package rules implements the deterministic rule-based detector. It is
// cheap, dependency-free at runtime, and always available, which makes
// it both a first-line scorer and the fallback target for the semantic
// detector.
package rules

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/detection"
	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/parser"
)

// Additive indicator scores. An entry is anomalous when the cumulative
// score reaches detection.AnomalyThreshold; totals are clamped to 10.
const (
	scoreBlocked      = 4.0
	scoreBadIndicator = 5.0
	scoreAutomation   = 3.0
	scoreBadCategory  = 6.0
	scoreLargeBytes   = 2.0
	scoreRapidRepeat  = 2.0
	scoreFirstSeen    = 1.0
	scoreBlockedCombo = 2.0
)

const largeTransferBytes = 100000

// Indicator names reported in verdicts. Tests and recommendation
// lookups key off these.
const (
	IndicatorBlocked       = "blocked_action"
	IndicatorBadDomain     = "suspicious_domain"
	IndicatorAutomationUA  = "automation_user_agent"
	IndicatorBadCategory   = "malicious_category"
	IndicatorLargeTransfer = "large_transfer"
	IndicatorRapidRepeat   = "rapid_repeat_requests"
	IndicatorFirstSeen     = "first_seen_source"
	IndicatorBlockedCombo  = "blocked_with_indicators"
)

// badIndicators is the maintained bad-indicator list matched against
// URL and destination address.
var badIndicators = []string{
	".ru", ".biz", "unknown-", "suspicious-", "tor-", "dark-", "proxy-",
	"malware", "phish",
}

var automationAgents = []string{"curl", "wget", "python", "postman"}

var badCategories = []string{"malware", "proxy", "phish"}

var recommendations = map[string]string{
	IndicatorBlocked:       "Review why the proxy blocked this request and confirm policy coverage",
	IndicatorBadDomain:     "Add the destination domain to the blocklist and check for related traffic",
	IndicatorAutomationUA:  "Verify whether scripted access from this source is sanctioned",
	IndicatorBadCategory:   "Isolate the source host and run an endpoint scan",
	IndicatorLargeTransfer: "Inspect the transfer for possible data exfiltration",
	IndicatorRapidRepeat:   "Throttle the source address and check for automated tooling",
	IndicatorFirstSeen:     "Confirm the source address belongs to a known asset",
	IndicatorBlockedCombo:  "Escalate for analyst review; multiple indicators fired together",
}

// Verdict is the per-entry outcome of the rule-based detector.
type Verdict struct {
	IsAnomaly       bool
	RiskScore       float64
	Confidence      float64
	AnomalyType     string
	Description     string
	Triggered       []string
	Recommendations []string
}

// Config tunes the detector's rolling window.
type Config struct {
	WindowSize       int // bounded recent-entries window, default 1000
	RapidRepeatCount int // repeats within the window that count as rapid, default 5
}

// Detector scores entries against known bad indicators. It keeps a
// bounded window of recently seen entries purely for the first-seen and
// rapid-repeat signals; the window is scoped to the Detector instance,
// so give each analysis job its own Detector to keep jobs independent.
type Detector struct {
	logger *zap.Logger
	config Config

	// ring buffer of recent source addresses
	window  []string
	next    int
	filled  bool
	sources map[string]int // source -> occurrences currently in window
}

// New creates a rule-based detector with its own recent-entries window.
func New(logger *zap.Logger, config Config) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.WindowSize <= 0 {
		config.WindowSize = 1000
	}
	if config.RapidRepeatCount <= 0 {
		config.RapidRepeatCount = 5
	}
	return &Detector{
		logger:  logger,
		config:  config,
		window:  make([]string, config.WindowSize),
		sources: make(map[string]int),
	}
}

// Score evaluates one entry. Deterministic and side-effect free apart
// from advancing the rolling window.
func (d *Detector) Score(entry parser.LogEntry) Verdict {
	var score float64
	var triggered []string

	blocked := strings.EqualFold(entry.Action, "blocked") || strings.EqualFold(entry.Action, "denied")
	if blocked {
		score += scoreBlocked
		triggered = append(triggered, IndicatorBlocked)
	}
	contentIndicators := 0

	target := strings.ToLower(entry.URL + " " + entry.DestinationAddress)
	for _, indicator := range badIndicators {
		if strings.Contains(target, indicator) {
			score += scoreBadIndicator
			triggered = append(triggered, IndicatorBadDomain)
			contentIndicators++
			break
		}
	}

	agent := strings.ToLower(entry.UserAgent)
	for _, a := range automationAgents {
		if strings.Contains(agent, a) {
			score += scoreAutomation
			triggered = append(triggered, IndicatorAutomationUA)
			contentIndicators++
			break
		}
	}

	category := entry.Category + " " + entry.Subcategory
	for _, c := range badCategories {
		if strings.Contains(category, c) {
			score += scoreBadCategory
			triggered = append(triggered, IndicatorBadCategory)
			contentIndicators++
			break
		}
	}

	if entry.ByteCount > largeTransferBytes {
		score += scoreLargeBytes
		triggered = append(triggered, IndicatorLargeTransfer)
		contentIndicators++
	}

	firstSeen, rapid := d.observe(entry.SourceAddress)
	if firstSeen {
		score += scoreFirstSeen
		triggered = append(triggered, IndicatorFirstSeen)
	}
	if rapid {
		score += scoreRapidRepeat
		triggered = append(triggered, IndicatorRapidRepeat)
	}

	// Blocked traffic that also hits a content indicator compounds.
	if blocked && contentIndicators > 0 {
		score += scoreBlockedCombo
		triggered = append(triggered, IndicatorBlockedCombo)
	}

	score = detection.ClampRisk(score)
	verdict := Verdict{
		IsAnomaly: score >= detection.AnomalyThreshold,
		RiskScore: score,
		Triggered: triggered,
	}
	if !verdict.IsAnomaly {
		return verdict
	}

	verdict.AnomalyType = anomalyType(blocked, triggered)
	verdict.Confidence = confidence(score)
	verdict.Description = fmt.Sprintf("Rule match on %s (risk %.1f): %s",
		entry.SourceAddress, score, strings.Join(triggered, ", "))
	for _, name := range triggered {
		if rec, ok := recommendations[name]; ok {
			verdict.Recommendations = append(verdict.Recommendations, rec)
		}
	}
	return verdict
}

// ScoreBatch scores every entry in order and returns anomalies for
// those that clear the threshold.
func (d *Detector) ScoreBatch(entries []parser.LogEntry) []detection.Anomaly {
	var anomalies []detection.Anomaly
	for _, entry := range entries {
		verdict := d.Score(entry)
		if !verdict.IsAnomaly {
			continue
		}
		anomalies = append(anomalies, d.ToAnomaly(entry, verdict))
	}

	if len(anomalies) > 0 {
		d.logger.Debug("rule-based pass complete",
			zap.Int("entries", len(entries)),
			zap.Int("anomalies", len(anomalies)))
	}
	return anomalies
}

// ToAnomaly converts a verdict into the shared anomaly shape.
func (d *Detector) ToAnomaly(entry parser.LogEntry, verdict Verdict) detection.Anomaly {
	a := detection.NewAnomaly(entry, detection.MethodRuleBased, verdict.AnomalyType, verdict.RiskScore, verdict.Confidence)
	a.Description = verdict.Description
	a.Recommendations = verdict.Recommendations
	a.Metadata["trigger_rules"] = verdict.Triggered
	a.Metadata["severity"] = detection.Severity(verdict.RiskScore)
	return a
}

// observe records a source address in the rolling window and reports
// whether it was first-seen and whether it is repeating rapidly.
func (d *Detector) observe(source string) (firstSeen, rapid bool) {
	// Evict the slot being overwritten once the ring has wrapped.
	if d.filled {
		old := d.window[d.next]
		if n := d.sources[old]; n <= 1 {
			delete(d.sources, old)
		} else {
			d.sources[old] = n - 1
		}
	}

	count := d.sources[source]
	firstSeen = count == 0
	rapid = count+1 >= d.config.RapidRepeatCount

	d.window[d.next] = source
	d.sources[source] = count + 1
	d.next++
	if d.next == len(d.window) {
		d.next = 0
		d.filled = true
	}
	return firstSeen, rapid
}

func anomalyType(blocked bool, triggered []string) string {
	if blocked {
		return "blocked_traffic"
	}
	for _, name := range triggered {
		switch name {
		case IndicatorBadCategory:
			return "malicious_category"
		case IndicatorBadDomain:
			return "suspicious_domain"
		}
	}
	for _, name := range triggered {
		switch name {
		case IndicatorAutomationUA:
			return "automation_user_agent"
		case IndicatorLargeTransfer:
			return "large_transfer"
		}
	}
	return "rule_match"
}

// confidence grows with the rule score but stays below certainty; rules
// are indicators, not proof.
func confidence(score float64) float64 {
	c := 0.5 + score/20
	if c > 0.95 {
		c = 0.95
	}
	return c
}
