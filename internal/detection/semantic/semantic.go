package semantic

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/detection"
	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/detection/rules"
	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/parser"
)

// Config tunes the semantic detector.
type Config struct {
	Provider ProviderConfig

	// InterCallDelay is inserted between provider calls when a batch
	// exceeds DelayThreshold entries, to stay under provider rate
	// limits. Ordering beats throughput here; batches are sequential.
	InterCallDelay time.Duration
	DelayThreshold int

	// OnProviderFailure observes every classified provider failure.
	// The pipeline wires it to the metrics counter. May be nil.
	OnProviderFailure func(provider string, class FailureClass)
}

func (c *Config) applyDefaults() {
	if c.InterCallDelay <= 0 {
		c.InterCallDelay = 500 * time.Millisecond
	}
	if c.DelayThreshold <= 0 {
		c.DelayThreshold = 10
	}
}

// Detector scores entries with a language-model provider, guarded by a
// fallback chain: provider verdict first, the rule-based detector on
// provider failure, and an embedded minimal rule set if the rule-based
// detector itself fails. AnalyzeLogEntry and AnalyzeBatch never return
// an error and never panic across their boundary.
type Detector struct {
	logger   *zap.Logger
	config   Config
	provider Provider
	rules    *rules.Detector
}

// New creates a semantic detector. A nil provider selects the
// configured backend; injecting one is the test seam.
func New(logger *zap.Logger, config Config, provider Provider, ruleDetector *rules.Detector) (*Detector, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.applyDefaults()

	if provider == nil {
		var err error
		provider, err = NewProvider(config.Provider)
		if err != nil {
			return nil, err
		}
	}
	if ruleDetector == nil {
		ruleDetector = rules.New(logger, rules.Config{})
	}

	return &Detector{
		logger:   logger,
		config:   config,
		provider: provider,
		rules:    ruleDetector,
	}, nil
}

// AnalyzeLogEntry scores one entry. The result is always a valid
// anomaly-shaped verdict; provider failures degrade confidence, they
// do not surface.
func (d *Detector) AnalyzeLogEntry(ctx context.Context, entry parser.LogEntry) (out detection.Anomaly) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("semantic analysis panic", zap.Any("panic", r))
			out = d.failedAnomaly(entry, r)
		}
	}()

	// The rule-based verdict is cheap and always attempted first; it
	// is both a corroborating signal and the primary fallback.
	ruleVerdict, ruleOK := d.safeRuleVerdict(entry)

	verdict, err := d.provider.Analyze(ctx, systemPrompt, buildUserPrompt(entry), d.config.Provider)
	if err != nil {
		class := ClassifyFailure(err)
		if d.config.OnProviderFailure != nil {
			d.config.OnProviderFailure(d.provider.Name(), class)
		}
		d.logger.Warn("provider call failed, using fallback",
			zap.String("provider", d.provider.Name()),
			zap.String("failure_class", string(class)),
			zap.Error(err))

		if ruleOK {
			a := d.ruleAnomaly(entry, ruleVerdict)
			a.Metadata["provider_failure"] = string(class)
			a.Metadata["verdict_source"] = "rules_fallback"
			return a
		}
		a := minimalVerdict(entry)
		a.Metadata["provider_failure"] = string(class)
		return a
	}

	a := d.providerAnomaly(entry, verdict)

	// When both paths produced an anomalous verdict, prefer the higher
	// risk score and merge recommendations.
	if ruleOK && ruleVerdict.IsAnomaly {
		if ruleVerdict.RiskScore > a.RiskScore {
			merged := d.ruleAnomaly(entry, ruleVerdict)
			merged.Recommendations = mergeRecommendations(merged.Recommendations, a.Recommendations)
			merged.Metadata["verdict_source"] = "merged"
			merged.Metadata["provider_risk_score"] = a.RiskScore
			merged.Metadata["provider_anomaly_type"] = a.AnomalyType
			return merged
		}
		a.Recommendations = mergeRecommendations(a.Recommendations, ruleVerdict.Recommendations)
		a.Metadata["verdict_source"] = "merged"
		a.Metadata["rule_risk_score"] = ruleVerdict.RiskScore
		a.Metadata["trigger_rules"] = ruleVerdict.Triggered
	}

	return a
}

// AnalyzeBatch applies the per-record logic sequentially. Calls are
// never parallelized: ordering and rate-limit avoidance take priority
// over throughput.
func (d *Detector) AnalyzeBatch(ctx context.Context, entries []parser.LogEntry) []detection.Anomaly {
	throttle := len(entries) > d.config.DelayThreshold

	anomalies := make([]detection.Anomaly, 0, len(entries))
	for i, entry := range entries {
		if throttle && i > 0 {
			select {
			case <-time.After(d.config.InterCallDelay):
			case <-ctx.Done():
				// keep producing verdicts; provider calls will fail
				// fast and take the fallback path
			}
		}
		anomalies = append(anomalies, d.AnalyzeLogEntry(ctx, entry))
	}
	return anomalies
}

// Provider exposes the configured backend for diagnostics probes.
func (d *Detector) Provider() Provider { return d.provider }

// ProviderStatus reports a backend's identity and reachability.
type ProviderStatus struct {
	Name      string          `json:"name"`
	Models    map[Tier]string `json:"models"`
	Available bool            `json:"available"`
}

// Diagnostics probes the configured backend. The availability check
// performs a live request; detection itself never keys off it.
func (d *Detector) Diagnostics(ctx context.Context) ProviderStatus {
	p := d.Provider()
	return ProviderStatus{
		Name:      p.Name(),
		Models:    p.Models(),
		Available: p.Available(ctx),
	}
}

// safeRuleVerdict shields the fallback chain from a rule detector
// failure; without a verdict the minimal rule set takes over.
func (d *Detector) safeRuleVerdict(entry parser.LogEntry) (v rules.Verdict, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("rule-based detector panic", zap.Any("panic", r))
			ok = false
		}
	}()
	return d.rules.Score(entry), true
}

func (d *Detector) providerAnomaly(entry parser.LogEntry, v *Verdict) detection.Anomaly {
	anomalyType := v.AnomalyType
	if !v.IsAnomaly && anomalyType == "" {
		anomalyType = "normal_traffic"
	}

	a := detection.NewAnomaly(entry, detection.MethodSemantic, anomalyType, v.RiskScore, v.Confidence)
	a.Description = v.Description
	a.Recommendations = v.Recommendations
	a.Metadata["is_anomaly"] = v.IsAnomaly
	a.Metadata["explanation"] = v.Explanation
	a.Metadata["provider"] = d.provider.Name()
	a.Metadata["model"] = modelFor(d.provider.Models(), d.config.Provider.Tier)
	a.Metadata["tier"] = string(d.config.Provider.Tier)
	a.Metadata["verdict_source"] = "provider"
	a.Metadata["severity"] = detection.Severity(a.RiskScore)
	return a
}

func (d *Detector) ruleAnomaly(entry parser.LogEntry, v rules.Verdict) detection.Anomaly {
	anomalyType := v.AnomalyType
	if anomalyType == "" {
		anomalyType = "normal_traffic"
	}
	confidence := v.Confidence
	if confidence == 0 {
		confidence = 0.5
	}

	a := detection.NewAnomaly(entry, detection.MethodRuleBased, anomalyType, v.RiskScore, confidence)
	a.Description = v.Description
	if a.Description == "" {
		a.Description = fmt.Sprintf("Rule-based verdict (risk %.1f)", v.RiskScore)
	}
	a.Recommendations = v.Recommendations
	a.Metadata["is_anomaly"] = v.IsAnomaly
	a.Metadata["trigger_rules"] = v.Triggered
	a.Metadata["severity"] = detection.Severity(a.RiskScore)
	return a
}

func (d *Detector) failedAnomaly(entry parser.LogEntry, cause any) detection.Anomaly {
	a := detection.NewAnomaly(entry, detection.MethodSemantic, "analysis_failed", 0, 0)
	a.Description = "Analysis failed unexpectedly; record preserved for reprocessing"
	a.Metadata["is_anomaly"] = false
	a.Metadata["failure"] = fmt.Sprint(cause)
	a.Metadata["verdict_source"] = "failed"
	return a
}

func mergeRecommendations(primary, secondary []string) []string {
	seen := make(map[string]bool, len(primary))
	merged := make([]string, 0, len(primary)+len(secondary))
	for _, lists := range [][]string{primary, secondary} {
		for _, rec := range lists {
			if rec == "" || seen[rec] {
				continue
			}
			seen[rec] = true
			merged = append(merged, rec)
		}
	}
	return merged
}
