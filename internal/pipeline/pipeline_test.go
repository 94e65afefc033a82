package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/config"
	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/detection"
	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/parser"
	"github.com/vmuthusamy/sentry-log-analysis-sub000/internal/store"
)

func benignLine(i int) string {
	return fmt.Sprintf("2024-03-01T10:%02d:00Z|10.0.0.5|93.184.216.34|alice|allowed|https://example.com/page%d|200|5120|Mozilla/5.0|https|news", i%60, i)
}

const blockedLine = "2024-03-01T10:30:00Z|10.0.0.9|203.0.113.7|mallory|blocked|http://malware-test.biz/payload|403|150000|curl/8.0|http|malware"

func newTestPipeline(t *testing.T) (*Pipeline, *store.Store) {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.DatabasePath = filepath.Join(t.TempDir(), "test.db")

	st, err := store.Open(zaptest.NewLogger(t), cfg.Storage.DatabasePath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return New(zaptest.NewLogger(t), cfg, st, nil), st
}

func createJob(t *testing.T, st *store.Store, method string, size int64) *store.Job {
	t.Helper()
	job := &store.Job{
		ID:            uuid.NewString(),
		Filename:      "test.log",
		FileSizeBytes: size,
		Method:        method,
	}
	require.NoError(t, st.Jobs().Create(context.Background(), job))
	return job
}

func TestRunTraditional(t *testing.T) {
	t.Parallel()
	p, st := newTestPipeline(t)
	ctx := context.Background()

	var lines []string
	for i := 0; i < 24; i++ {
		lines = append(lines, benignLine(i))
	}
	lines = append(lines, blockedLine)
	content := strings.Join(lines, "\n")

	job := createJob(t, st, MethodTraditional, int64(len(content)))
	p.Run(ctx, job, content, Options{Method: MethodTraditional})

	got, err := st.Jobs().GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, store.JobStatusCompleted, got.Status)
	assert.Equal(t, 25, got.TotalEntries)
	assert.Equal(t, 25, got.Processed)
	assert.Equal(t, 100.0, got.Progress)
	require.Equal(t, 1, got.AnomalyCount)

	stored, err := st.Anomalies().ListByJob(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "mallory", stored[0].User)
	assert.Equal(t, "blocked_traffic", stored[0].AnomalyType)
	assert.GreaterOrEqual(t, stored[0].RiskScore, detection.AnomalyThreshold)
}

func TestRunRejectsUnparseableContent(t *testing.T) {
	t.Parallel()
	p, st := newTestPipeline(t)
	ctx := context.Background()

	job := createJob(t, st, MethodTraditional, 64)
	p.Run(ctx, job, "this is not\na log file\nat all", Options{Method: MethodTraditional})

	got, err := st.Jobs().GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, store.JobStatusFailed, got.Status)
	assert.Contains(t, got.Error, "validation failed")
}

func TestRunAdvancedWholeFile(t *testing.T) {
	t.Parallel()
	p, st := newTestPipeline(t)
	ctx := context.Background()

	// one source hammering many destinations
	var lines []string
	for i := 0; i < 60; i++ {
		lines = append(lines, fmt.Sprintf(
			"2024-03-01T10:00:%02dZ|10.0.0.77|192.168.1.%d|scanner|allowed|http://192.168.1.%d/|200|512|Mozilla/5.0|http|internal",
			i%60, i%25, i%25))
	}
	content := strings.Join(lines, "\n")

	job := createJob(t, st, MethodAdvanced, int64(len(content)))
	p.Run(ctx, job, content, Options{Method: MethodAdvanced})

	got, err := st.Jobs().GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, store.JobStatusCompleted, got.Status)
	assert.GreaterOrEqual(t, got.AnomalyCount, 1)

	stored, err := st.Anomalies().ListByJob(ctx, job.ID)
	require.NoError(t, err)
	found := false
	for _, a := range stored {
		if a.AnomalyType == "NETWORK_SCANNING" {
			found = true
		}
	}
	assert.True(t, found, "expected a network scanning anomaly")
}

func TestDetectUnknownMethod(t *testing.T) {
	t.Parallel()
	p, _ := newTestPipeline(t)

	_, err := p.Detect(context.Background(), nil, Options{Method: "turbo"})
	require.Error(t, err)
}

func TestCustomMethodRequiresProvider(t *testing.T) {
	t.Parallel()
	p, _ := newTestPipeline(t)

	_, err := p.Detect(context.Background(), nil, Options{Method: MethodCustom})
	require.Error(t, err)
}

func TestBatches(t *testing.T) {
	t.Parallel()
	cfg := config.Default()

	entries := make([]parser.LogEntry, 25)

	chunks := batches(cfg, entries, MethodTraditional)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 10)
	assert.Len(t, chunks[2], 5)

	whole := batches(cfg, entries, MethodAdvanced)
	require.Len(t, whole, 1)
	assert.Len(t, whole[0], 25)

	assert.Nil(t, batches(cfg, nil, MethodAdvanced))
}

func TestTimeoutForPenalizesLargeFiles(t *testing.T) {
	t.Parallel()
	cfg := config.Default()

	small := timeoutFor(cfg, 1024)
	large := timeoutFor(cfg, cfg.Pipeline.LargeFileBytes)
	assert.Greater(t, small, large)
}

func TestReloadAppliesToNewJobs(t *testing.T) {
	t.Parallel()
	p, _ := newTestPipeline(t)

	tuned := *p.config()
	tuned.Pipeline.BatchSize = 5
	p.Reload(&tuned)

	chunks := batches(p.config(), make([]parser.LogEntry, 25), MethodTraditional)
	require.Len(t, chunks, 5)
	assert.Len(t, chunks[0], 5)
}

// Reloading while a job is running must neither disturb the job nor
// trip the race detector; the job keeps the snapshot it started with.
func TestReloadSafeDuringAnalysis(t *testing.T) {
	t.Parallel()
	p, st := newTestPipeline(t)
	ctx := context.Background()

	var lines []string
	for i := 0; i < 80; i++ {
		lines = append(lines, benignLine(i))
	}
	content := strings.Join(lines, "\n")

	job := createJob(t, st, MethodTraditional, int64(len(content)))

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx, job, content, Options{Method: MethodTraditional})
	}()

	for i := 0; i < 200; i++ {
		tuned := *p.config()
		tuned.Pipeline.PersistThreshold = float64(i % 10)
		tuned.Detection.Rules.WindowSize = 100 + i
		p.Reload(&tuned)
	}
	<-done

	got, err := st.Jobs().GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, store.JobStatusCompleted, got.Status)
	assert.Equal(t, 80, got.Processed)
}

func TestSweeperTimesOutStuckJobs(t *testing.T) {
	t.Parallel()
	p, st := newTestPipeline(t)
	ctx := context.Background()

	tuned := *p.config()
	tuned.Pipeline.SmallFileTimeout = time.Nanosecond
	tuned.Pipeline.LargeFileTimeout = time.Nanosecond
	p.Reload(&tuned)

	job := createJob(t, st, MethodTraditional, 512)
	require.NoError(t, st.Jobs().MarkStarted(ctx, job.ID, 10))

	time.Sleep(10 * time.Millisecond)
	NewSweeper(p).Sweep(ctx)

	got, err := st.Jobs().GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, store.JobStatusTimedOut, got.Status)
	assert.Contains(t, got.Error, "timed out after")
	assert.Contains(t, got.Error, "limit")
}

func TestSweeperLeavesFreshJobsAlone(t *testing.T) {
	t.Parallel()
	p, st := newTestPipeline(t)
	ctx := context.Background()

	job := createJob(t, st, MethodTraditional, 512)
	require.NoError(t, st.Jobs().MarkStarted(ctx, job.ID, 10))

	NewSweeper(p).Sweep(ctx)

	got, err := st.Jobs().GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, store.JobStatusProcessing, got.Status)
}

func TestValidateFormat(t *testing.T) {
	t.Parallel()
	p, _ := newTestPipeline(t)

	report := p.ValidateFormat(benignLine(1))
	assert.True(t, report.Valid)

	report = p.ValidateFormat("garbage")
	assert.False(t, report.Valid)
	assert.NotEmpty(t, report.Reason)
}

func TestSubmitRunsInBackground(t *testing.T) {
	t.Parallel()
	p, st := newTestPipeline(t)
	ctx := context.Background()

	var lines []string
	for i := 0; i < 12; i++ {
		lines = append(lines, benignLine(i))
	}
	content := strings.Join(lines, "\n")

	jobID, err := p.Submit(ctx, "upload.log", 0, strings.NewReader(content), Options{Method: MethodTraditional})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, err := st.Jobs().GetByID(ctx, jobID)
		return err == nil && job.Status == store.JobStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)
}

func TestSubmitRejectsUnknownMethod(t *testing.T) {
	t.Parallel()
	p, _ := newTestPipeline(t)

	_, err := p.Submit(context.Background(), "x.log", 0, strings.NewReader(""), Options{Method: "bogus"})
	require.Error(t, err)
}
