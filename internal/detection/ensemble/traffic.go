package ensemble

import (
	"fmt"
	"math"
	"sort"

	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/detection"
)

// sequencePass slides a fixed window over the time-ordered batch and
// flags a burst when one source dominates a window whose span is short
// enough to be rapid. One anomaly per offending source.
func (d *Detector) sequencePass(b *batchContext) []detection.Anomaly {
	window := d.config.SequenceWindow
	if len(b.timeOrder) < window {
		return nil
	}

	var anomalies []detection.Anomaly
	flagged := make(map[string]bool)

	for start := 0; start+window <= len(b.timeOrder); start++ {
		idx := b.timeOrder[start : start+window]

		span := b.times[idx[window-1]].Sub(b.times[idx[0]])
		if span.Milliseconds() > d.config.BurstWindowSpanMS {
			continue
		}

		counts := make(map[string]int, window)
		for _, j := range idx {
			counts[b.entries[j].SourceAddress]++
		}

		for source, count := range counts {
			if flagged[source] || float64(count) <= d.config.SequenceShare*float64(window) {
				continue
			}
			flagged[source] = true

			// representative entry: last window entry from the source
			rep := idx[0]
			for _, j := range idx {
				if b.entries[j].SourceAddress == source {
					rep = j
				}
			}

			a := detection.NewAnomaly(b.entries[rep], detection.MethodSequence, "RAPID_BURST",
				4+0.5*float64(count), 0.7)
			a.Description = fmt.Sprintf("Rapid request burst: %s issued %d of %d consecutive requests within %s",
				source, count, window, span)
			a.Recommendations = []string{"Throttle the source and check for scripted or runaway clients"}
			a.Metadata["window_size"] = window
			a.Metadata["source_count"] = count
			a.Metadata["window_span_ms"] = span.Milliseconds()
			a.Metadata["severity"] = detection.Severity(a.RiskScore)
			anomalies = append(anomalies, a)
		}
	}

	return anomalies
}

// networkPass groups the batch by source address and flags sources that
// fan out across many destinations, the signature of a network scan.
// Exactly one anomaly per scanning source.
func (d *Detector) networkPass(b *batchContext) []detection.Anomaly {
	sources := make([]string, 0, len(b.bySource))
	for source := range b.bySource {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	var anomalies []detection.Anomaly
	for _, source := range sources {
		g := b.bySource[source]
		destCount := len(g.destinations)
		if destCount <= d.config.ScanMinDestinations || g.requests <= d.config.ScanMinRequests {
			continue
		}

		a := detection.NewAnomaly(b.entries[g.firstIndex], detection.MethodNetwork, "NETWORK_SCANNING",
			4+0.2*float64(destCount), math.Min(0.5+float64(destCount)/50, 1))
		a.Description = fmt.Sprintf("Possible network scan: %s touched %d unique destinations across %d requests",
			source, destCount, g.requests)
		a.Recommendations = []string{
			"Quarantine the source address pending investigation",
			"Review firewall logs for matching connection attempts",
		}
		a.Metadata["unique_destinations"] = destCount
		a.Metadata["request_count"] = g.requests
		a.Metadata["severity"] = detection.Severity(a.RiskScore)
		anomalies = append(anomalies, a)
	}

	return anomalies
}

// timeSeriesPass buckets the batch into fixed windows and flags buckets
// whose request count spikes against the batch's bucket distribution.
// The anomaly is attached to a representative entry from the bucket.
func (d *Detector) timeSeriesPass(b *batchContext) []detection.Anomaly {
	var keys []int64
	for k := range b.bucketZ {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var anomalies []detection.Anomaly
	for _, k := range keys {
		z := b.bucketZ[k]
		if math.Abs(z) <= d.config.SpikeZThreshold {
			continue
		}

		idx := b.buckets[k]
		rep := idx[0]
		for _, j := range idx {
			if j < rep {
				rep = j
			}
		}

		a := detection.NewAnomaly(b.entries[rep], detection.MethodTimeSeries, "TRAFFIC_SPIKE",
			3+math.Abs(z)*1.5, math.Min(math.Abs(z)/5, 1))
		a.Description = fmt.Sprintf("Traffic spike: %d requests in one %ds window, %.1f standard deviations from the typical %.1f",
			len(idx), d.config.BucketSeconds, math.Abs(z), b.bucketMean)
		a.Recommendations = []string{"Correlate the window with scheduled jobs before treating it as hostile"}
		a.Metadata["bucket_start_unix"] = k * d.config.BucketSeconds
		a.Metadata["bucket_count"] = len(idx)
		a.Metadata["z_score"] = z
		a.Metadata["severity"] = detection.Severity(a.RiskScore)
		anomalies = append(anomalies, a)
	}

	return anomalies
}
