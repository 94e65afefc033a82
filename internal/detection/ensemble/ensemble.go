// Package ensemble implements the multi-model statistical/behavioral
// detector. It operates on full batches only: every pass needs
// population statistics, and behavioral baselines are rebuilt from the
// batch itself and discarded afterwards, keeping concurrent jobs
// independent.
package ensemble

import (
	"go.uber.org/zap"

	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/detection"
	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/parser"
)

// Config tunes the detection passes. Zero values take defaults.
type Config struct {
	// Statistical pass
	ZScoreThreshold    float64 // default 3.0
	IsolationThreshold float64 // default 0.7
	IsolationMaxDepth  int     // default 10

	// Behavioral pass
	BehaviorThreshold float64 // weighted sub-score sum that triggers, default 1.5
	OffHoursStart     int     // inclusive end of the off-hours range, default 6
	OffHoursEnd       int     // exclusive start of the off-hours range, default 22
	VolumeHighRatio   float64 // default 5.0
	VolumeLowRatio    float64 // default 0.1

	// Sequence pass
	SequenceWindow    int     // default 10
	SequenceShare     float64 // fraction of one source that counts as a burst, default 0.7
	BurstWindowSpanMS int64   // max window span in milliseconds to qualify as a burst, default 5 minutes

	// Network pass
	ScanMinDestinations int // default 20
	ScanMinRequests     int // default 50

	// Time-series pass
	BucketSeconds   int64   // default 300
	SpikeZThreshold float64 // default 2.5

	// Ensemble pass
	EnsembleThreshold float64 // default 0.7
	WeightStatistical float64 // default 0.30
	WeightBehavioral  float64 // default 0.25
	WeightNetwork     float64 // default 0.25
	WeightTemporal    float64 // default 0.20
}

func (c *Config) applyDefaults() {
	if c.ZScoreThreshold == 0 {
		c.ZScoreThreshold = 3.0
	}
	if c.IsolationThreshold == 0 {
		c.IsolationThreshold = 0.7
	}
	if c.IsolationMaxDepth == 0 {
		c.IsolationMaxDepth = 10
	}
	if c.BehaviorThreshold == 0 {
		c.BehaviorThreshold = 1.5
	}
	if c.OffHoursStart == 0 {
		c.OffHoursStart = 6
	}
	if c.OffHoursEnd == 0 {
		c.OffHoursEnd = 22
	}
	if c.VolumeHighRatio == 0 {
		c.VolumeHighRatio = 5.0
	}
	if c.VolumeLowRatio == 0 {
		c.VolumeLowRatio = 0.1
	}
	if c.SequenceWindow == 0 {
		c.SequenceWindow = 10
	}
	if c.SequenceShare == 0 {
		c.SequenceShare = 0.7
	}
	if c.BurstWindowSpanMS == 0 {
		c.BurstWindowSpanMS = 5 * 60 * 1000
	}
	if c.ScanMinDestinations == 0 {
		c.ScanMinDestinations = 20
	}
	if c.ScanMinRequests == 0 {
		c.ScanMinRequests = 50
	}
	if c.BucketSeconds == 0 {
		c.BucketSeconds = 300
	}
	if c.SpikeZThreshold == 0 {
		c.SpikeZThreshold = 2.5
	}
	if c.EnsembleThreshold == 0 {
		c.EnsembleThreshold = 0.7
	}
	if c.WeightStatistical == 0 {
		c.WeightStatistical = 0.30
	}
	if c.WeightBehavioral == 0 {
		c.WeightBehavioral = 0.25
	}
	if c.WeightNetwork == 0 {
		c.WeightNetwork = 0.25
	}
	if c.WeightTemporal == 0 {
		c.WeightTemporal = 0.20
	}
}

// Detector runs six independent passes over a batch and merges their
// findings. It holds no state between batches.
type Detector struct {
	logger *zap.Logger
	config Config
}

// New creates an ensemble detector.
func New(logger *zap.Logger, config Config) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.applyDefaults()
	return &Detector{logger: logger, config: config}
}

// Analyze runs all passes over the batch. Passes do not short-circuit
// each other; an entry may appear in several passes' output. Results
// are concatenated and sorted by risk score descending. Given the same
// batch, repeated calls produce the same multiset of anomalies.
func (d *Detector) Analyze(entries []parser.LogEntry) []detection.Anomaly {
	if len(entries) == 0 {
		return nil
	}

	batch := newBatchContext(entries, d.config)

	var anomalies []detection.Anomaly
	anomalies = append(anomalies, d.statisticalPass(batch)...)
	anomalies = append(anomalies, d.behavioralPass(batch)...)
	anomalies = append(anomalies, d.sequencePass(batch)...)
	anomalies = append(anomalies, d.networkPass(batch)...)
	anomalies = append(anomalies, d.timeSeriesPass(batch)...)
	anomalies = append(anomalies, d.ensemblePass(batch)...)

	detection.SortByRisk(anomalies)

	d.logger.Debug("ensemble analysis complete",
		zap.Int("entries", len(entries)),
		zap.Int("anomalies", len(anomalies)))
	return anomalies
}
