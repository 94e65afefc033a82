package ensemble

import (
	"fmt"
	"math"
	"strings"

	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/detection"
)

// subScores are the per-entry normalized [0,1] contributions of the
// four sub-methods recombined by the ensemble pass.
type subScores struct {
	Statistical float64
	Behavioral  float64
	Network     float64
	Temporal    float64
}

// agreement lists the sub-methods whose normalized score exceeds 0.5.
func (s subScores) agreement() []string {
	var methods []string
	if s.Statistical > 0.5 {
		methods = append(methods, string(detection.MethodStatistical))
	}
	if s.Behavioral > 0.5 {
		methods = append(methods, string(detection.MethodBehavioral))
	}
	if s.Network > 0.5 {
		methods = append(methods, string(detection.MethodNetwork))
	}
	if s.Temporal > 0.5 {
		methods = append(methods, string(detection.MethodTimeSeries))
	}
	return methods
}

// subScoresFor recomputes the normalized sub-scores for one entry.
func (d *Detector) subScoresFor(b *batchContext, i int) subScores {
	var s subScores

	z := math.Max(math.Abs(b.zBytes(i)), math.Abs(b.zDuration(i)))
	s.Statistical = math.Min(math.Max(z/6, b.isolationScore(i)), 1)

	_, weight := d.behaviorSignals(b, i)
	s.Behavioral = math.Min(weight/3, 1)

	if g := b.bySource[b.entries[i].SourceAddress]; g != nil {
		if len(g.destinations) > d.config.ScanMinDestinations && g.requests > d.config.ScanMinRequests {
			s.Network = math.Min(float64(len(g.destinations))/40, 1)
		}
	}

	bucket := b.times[i].Unix() / d.config.BucketSeconds
	if z, ok := b.bucketZ[bucket]; ok {
		s.Temporal = math.Min(math.Abs(z)/5, 1)
	}

	return s
}

// ensemblePass combines the four sub-methods with fixed weights and
// emits one consolidated high-confidence anomaly per entry whose
// combined score clears the threshold, naming the agreeing methods.
func (d *Detector) ensemblePass(b *batchContext) []detection.Anomaly {
	var anomalies []detection.Anomaly

	for i := range b.entries {
		s := d.subScoresFor(b, i)
		combined := d.config.WeightStatistical*s.Statistical +
			d.config.WeightBehavioral*s.Behavioral +
			d.config.WeightNetwork*s.Network +
			d.config.WeightTemporal*s.Temporal

		if combined <= d.config.EnsembleThreshold {
			continue
		}

		agreeing := s.agreement()
		a := detection.NewAnomaly(b.entries[i], detection.MethodEnsemble, "ENSEMBLE_ANOMALY",
			combined*10, combined)
		a.Description = fmt.Sprintf("Multiple detection methods agree (%s); combined score %.2f",
			strings.Join(agreeing, ", "), combined)
		a.Recommendations = []string{"Treat as high priority; independent methods corroborate this finding"}
		a.Metadata["combined_score"] = combined
		a.Metadata["agreeing_methods"] = agreeing
		a.Metadata["sub_scores"] = map[string]float64{
			"statistical": s.Statistical,
			"behavioral":  s.Behavioral,
			"network":     s.Network,
			"temporal":    s.Temporal,
		}
		a.Metadata["severity"] = detection.Severity(a.RiskScore)
		anomalies = append(anomalies, a)
	}

	return anomalies
}
