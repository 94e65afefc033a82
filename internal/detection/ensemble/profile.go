package ensemble

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/parser"
)

// Profile is the per-owner behavioral baseline, keyed by user when
// present, otherwise by source address. Profiles live for one batch and
// are discarded after scoring; nothing is persisted.
type Profile struct {
	Key           string
	RequestCount  int
	TotalBytes    int64
	TotalDuration float64
	Categories    map[string]int
	UserAgents    map[string]int
	Hours         [24]int
}

// AvgBytes returns the owner's mean transfer size over the batch.
func (p *Profile) AvgBytes() float64 {
	if p.RequestCount == 0 {
		return 0
	}
	return float64(p.TotalBytes) / float64(p.RequestCount)
}

// owner returns the profile key for an entry.
func owner(e *parser.LogEntry) string {
	if e.User != "" {
		return e.User
	}
	return e.SourceAddress
}

// sourceGroup aggregates per-source-address request activity for the
// network pass.
type sourceGroup struct {
	requests     int
	destinations map[string]struct{}
	firstIndex   int
}

// batchContext carries everything the passes derive from one batch:
// profiles, population statistics, per-source groups, time ordering,
// and 5-minute traffic buckets. Built once per Analyze call.
type batchContext struct {
	cfg     Config
	entries []parser.LogEntry
	times   []time.Time

	profiles map[string]*Profile

	bytesVals []float64
	durVals   []float64
	bytesMean float64
	bytesStd  float64
	durMean   float64
	durStd    float64

	bySource map[string]*sourceGroup

	// indices into entries, ordered by timestamp ascending
	timeOrder []int

	buckets    map[int64][]int
	bucketZ    map[int64]float64
	bucketMean float64
	bucketStd  float64
}

func newBatchContext(entries []parser.LogEntry, cfg Config) *batchContext {
	b := &batchContext{
		cfg:      cfg,
		entries:  entries,
		times:    make([]time.Time, len(entries)),
		profiles: make(map[string]*Profile),
		bySource: make(map[string]*sourceGroup),
		buckets:  make(map[int64][]int),
		bucketZ:  make(map[int64]float64),
	}

	b.bytesVals = make([]float64, len(entries))
	b.durVals = make([]float64, len(entries))

	for i := range entries {
		e := &entries[i]
		b.times[i] = e.Time()
		b.bytesVals[i] = float64(e.ByteCount)
		b.durVals[i] = e.DurationMS

		key := owner(e)
		p, ok := b.profiles[key]
		if !ok {
			p = &Profile{
				Key:        key,
				Categories: make(map[string]int),
				UserAgents: make(map[string]int),
			}
			b.profiles[key] = p
		}
		p.RequestCount++
		p.TotalBytes += e.ByteCount
		p.TotalDuration += e.DurationMS
		if e.Category != "" {
			p.Categories[e.Category]++
		}
		if e.UserAgent != "" {
			p.UserAgents[e.UserAgent]++
		}
		p.Hours[b.times[i].Hour()]++

		g, ok := b.bySource[e.SourceAddress]
		if !ok {
			g = &sourceGroup{destinations: make(map[string]struct{}), firstIndex: i}
			b.bySource[e.SourceAddress] = g
		}
		g.requests++
		if dest := destinationOf(e); dest != "" {
			g.destinations[dest] = struct{}{}
		}

		bucket := b.times[i].Unix() / cfg.BucketSeconds
		b.buckets[bucket] = append(b.buckets[bucket], i)
	}

	// stat.MeanStdDev yields NaN for a single sample.
	if len(entries) >= 2 {
		b.bytesMean, b.bytesStd = stat.MeanStdDev(b.bytesVals, nil)
		b.durMean, b.durStd = stat.MeanStdDev(b.durVals, nil)
	} else {
		b.bytesMean = b.bytesVals[0]
		b.durMean = b.durVals[0]
	}

	b.timeOrder = make([]int, len(entries))
	for i := range b.timeOrder {
		b.timeOrder[i] = i
	}
	sort.SliceStable(b.timeOrder, func(x, y int) bool {
		return b.times[b.timeOrder[x]].Before(b.times[b.timeOrder[y]])
	})

	b.computeBucketStats()
	return b
}

// computeBucketStats z-scores every bucket's request count against the
// batch's bucket-count distribution.
func (b *batchContext) computeBucketStats() {
	if len(b.buckets) < 2 {
		return
	}
	counts := make([]float64, 0, len(b.buckets))
	keys := make([]int64, 0, len(b.buckets))
	for k, idx := range b.buckets {
		keys = append(keys, k)
		counts = append(counts, float64(len(idx)))
	}
	b.bucketMean, b.bucketStd = stat.MeanStdDev(counts, nil)
	if b.bucketStd == 0 {
		return
	}
	for i, k := range keys {
		b.bucketZ[k] = (counts[i] - b.bucketMean) / b.bucketStd
	}
}

// profileFor returns the baseline owning the entry. Always non-nil for
// entries in the batch.
func (b *batchContext) profileFor(e *parser.LogEntry) *Profile {
	return b.profiles[owner(e)]
}

func destinationOf(e *parser.LogEntry) string {
	if e.DestinationAddress != "" {
		return e.DestinationAddress
	}
	return e.URL
}
