package ensemble

import (
	"fmt"
	"math"

	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/detection"
)

func (b *batchContext) zBytes(i int) float64 {
	if b.bytesStd == 0 {
		return 0
	}
	return (b.bytesVals[i] - b.bytesMean) / b.bytesStd
}

func (b *batchContext) zDuration(i int) float64 {
	if b.durStd == 0 {
		return 0
	}
	return (b.durVals[i] - b.durMean) / b.durStd
}

// statisticalPass flags entries whose transfer size or response time is
// an extreme outlier against the batch distribution, plus generic
// outliers found by the isolation-depth heuristic.
func (d *Detector) statisticalPass(b *batchContext) []detection.Anomaly {
	var anomalies []detection.Anomaly

	for i := range b.entries {
		entry := b.entries[i]
		zb := b.zBytes(i)
		zd := b.zDuration(i)

		if math.Abs(zb) > d.config.ZScoreThreshold {
			a := detection.NewAnomaly(entry, detection.MethodStatistical, "STATISTICAL_ANOMALY",
				math.Abs(zb)*2, math.Min(math.Abs(zb)/6, 1))
			a.Description = fmt.Sprintf("Extreme transfer size: %d bytes is %.1f standard deviations from the batch mean %.0f",
				entry.ByteCount, math.Abs(zb), b.bytesMean)
			a.Recommendations = []string{"Inspect the transfer contents and destination for exfiltration"}
			a.Metadata["feature"] = "byte_count"
			a.Metadata["z_score"] = zb
			a.Metadata["batch_mean"] = b.bytesMean
			a.Metadata["batch_stddev"] = b.bytesStd
			a.Metadata["severity"] = detection.Severity(a.RiskScore)
			anomalies = append(anomalies, a)
		}

		if math.Abs(zd) > d.config.ZScoreThreshold {
			a := detection.NewAnomaly(entry, detection.MethodStatistical, "STATISTICAL_ANOMALY",
				math.Abs(zd)*2, math.Min(math.Abs(zd)/6, 1))
			a.Description = fmt.Sprintf("Extreme response time: %.0fms is %.1f standard deviations from the batch mean %.0fms",
				entry.DurationMS, math.Abs(zd), b.durMean)
			a.Recommendations = []string{"Check the destination service for tunneling or slow-drip transfers"}
			a.Metadata["feature"] = "duration_ms"
			a.Metadata["z_score"] = zd
			a.Metadata["batch_mean"] = b.durMean
			a.Metadata["batch_stddev"] = b.durStd
			a.Metadata["severity"] = detection.Severity(a.RiskScore)
			anomalies = append(anomalies, a)
		}

		if score := b.isolationScore(i); score > d.config.IsolationThreshold {
			a := detection.NewAnomaly(entry, detection.MethodStatistical, "STATISTICAL_ANOMALY",
				score*10, score)
			a.Description = fmt.Sprintf("Isolation outlier: entry separates from the batch with score %.2f", score)
			a.Recommendations = []string{"Review the record; its feature profile does not resemble the rest of the batch"}
			a.Metadata["feature"] = "isolation"
			a.Metadata["isolation_score"] = score
			a.Metadata["severity"] = detection.Severity(a.RiskScore)
			anomalies = append(anomalies, a)
		}
	}

	return anomalies
}

// isolationScore measures how quickly an entry's byte count separates
// from the rest of the batch under repeated midpoint partitioning,
// capped at IsolationMaxDepth splits. Points isolated in few splits
// score close to 1; points that stay in the crowd score close to 0.
func (b *batchContext) isolationScore(i int) float64 {
	maxDepth := b.cfg.IsolationMaxDepth
	value := b.bytesVals[i]

	lo, hi := b.bytesVals[0], b.bytesVals[0]
	for _, v := range b.bytesVals {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi == lo {
		return 0
	}

	depth := 0
	for depth < maxDepth {
		mid := (lo + hi) / 2
		var companions int
		if value <= mid {
			hi = mid
			for _, v := range b.bytesVals {
				if v <= mid && v >= lo {
					companions++
				}
			}
		} else {
			lo = mid
			for _, v := range b.bytesVals {
				if v > mid && v <= hi {
					companions++
				}
			}
		}
		depth++
		if companions <= 1 {
			return 1 - float64(depth)/float64(maxDepth)
		}
	}
	return 0
}
