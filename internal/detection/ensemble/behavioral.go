package ensemble

import (
	"fmt"
	"math"
	"strings"

	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/detection"
	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/parser"
)

// Sub-score weights for the behavioral pass. Reported when their sum
// exceeds Config.BehaviorThreshold.
const (
	weightOffHours        = 0.8
	weightUnusualAgent    = 0.6
	weightUnusualCategory = 0.6
	weightVolumeDeviation = 0.9
)

// behaviorSignals evaluates one entry against its owner's batch-scoped
// baseline and returns the triggered signal names with their summed
// weight.
func (d *Detector) behaviorSignals(b *batchContext, i int) ([]string, float64) {
	entry := &b.entries[i]
	profile := b.profileFor(entry)

	var signals []string
	var total float64

	hour := b.times[i].Hour()
	if hour < d.config.OffHoursStart || hour >= d.config.OffHoursEnd {
		signals = append(signals, "off_hours_activity")
		total += weightOffHours
	}

	// The owner's profile includes this entry, so "unseen" means the
	// agent or category appears nowhere else in the owner's activity.
	if entry.UserAgent != "" && len(profile.UserAgents) > 1 && profile.UserAgents[entry.UserAgent] <= 1 {
		signals = append(signals, "unusual_user_agent")
		total += weightUnusualAgent
	}
	if entry.Category != "" && len(profile.Categories) > 1 && profile.Categories[entry.Category] <= 1 {
		signals = append(signals, "unusual_category_access")
		total += weightUnusualCategory
	}

	if avg := profile.AvgBytes(); avg > 0 && entry.ByteCount > 0 {
		ratio := float64(entry.ByteCount) / avg
		if ratio > d.config.VolumeHighRatio || ratio < d.config.VolumeLowRatio {
			signals = append(signals, "volume_deviation")
			total += weightVolumeDeviation
		}
	}

	return signals, total
}

// behavioralPass compares every entry against its owner's baseline and
// reports entries whose weighted signal sum clears the threshold.
func (d *Detector) behavioralPass(b *batchContext) []detection.Anomaly {
	var anomalies []detection.Anomaly

	for i := range b.entries {
		signals, total := d.behaviorSignals(b, i)
		if total <= d.config.BehaviorThreshold {
			continue
		}

		entry := b.entries[i]
		a := detection.NewAnomaly(entry, detection.MethodBehavioral, "BEHAVIORAL_ANOMALY",
			total*3, math.Min(total/3, 1))
		a.Description = fmt.Sprintf("Behavior of %s deviates from its baseline: %s",
			ownerLabel(&entry), strings.Join(signals, ", "))
		a.Recommendations = []string{
			"Confirm the activity with the account owner",
			"Compare against the owner's historical access patterns",
		}
		a.Metadata["signals"] = signals
		a.Metadata["signal_weight"] = total
		a.Metadata["profile_requests"] = b.profileFor(&entry).RequestCount
		a.Metadata["severity"] = detection.Severity(a.RiskScore)
		anomalies = append(anomalies, a)
	}

	return anomalies
}

func ownerLabel(e *parser.LogEntry) string {
	if e.User != "" {
		return "user " + e.User
	}
	return "source " + e.SourceAddress
}
