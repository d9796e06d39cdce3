package operations

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"riskdash/internal/dashboard"
	"riskdash/internal/exporter"
	"riskdash/internal/inputs"
	"riskdash/internal/schema"
	"riskdash/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingSink struct {
	mu      sync.Mutex
	updates []ProgressUpdate
}

func (s *recordingSink) Publish(u ProgressUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, u)
}

func (s *recordingSink) types(jobID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, u := range s.updates {
		if u.JobID == jobID {
			out = append(out, u.Type)
		}
	}
	return out
}

type funcStep struct {
	id string
	fn func(ctx context.Context, state *RunState) error
}

func (s funcStep) ID() string   { return s.id }
func (s funcStep) Name() string { return "step " + s.id }
func (s funcStep) Execute(ctx context.Context, state *RunState) error {
	return s.fn(ctx, state)
}

func stepsPipeline(steps ...Step) Pipeline {
	return func(*Job) []Step { return steps }
}

func ok(ctx context.Context, state *RunState) error {
	state.Report(50, "half way")
	return nil
}

func blockUntilDone(ctx context.Context, state *RunState) error {
	<-ctx.Done()
	return ctx.Err()
}

func waitForStatus(t *testing.T, q *JobQueue, id string, status JobStatus) *Job {
	t.Helper()
	var job *Job
	require.Eventually(t, func() bool {
		var err error
		job, err = q.GetJob(id)
		return err == nil && job.Status == status
	}, 5*time.Second, 5*time.Millisecond, "job %s never reached %s", id, status)
	return job
}

func TestJobQueueCompletesJob(t *testing.T) {
	sink := &recordingSink{}
	q := NewJobQueue(QueueConfig{Workers: 2, QueueSize: 4}, NewMemoryJobStore(),
		stepsPipeline(funcStep{"a", ok}, funcStep{"b", func(ctx context.Context, state *RunState) error {
			state.Files = []string{"out.csv"}
			return nil
		}}), sink, nil, nil)
	q.Start(context.Background())
	defer q.Stop(time.Second)

	job, err := q.Enqueue(context.Background(), &Job{Page: inputs.PageBacktest})
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)
	assert.Equal(t, JobStatusPending, job.Status)

	done := waitForStatus(t, q, job.ID, JobStatusCompleted)
	assert.Equal(t, 100, done.Progress)
	assert.Equal(t, []string{"out.csv"}, done.Files)
	assert.Equal(t, "b", done.Stage)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.CompletedAt)
	assert.True(t, strings.HasPrefix(done.ResultKey, "backtest_"))

	types := sink.types(job.ID)
	require.NotEmpty(t, types)
	assert.Equal(t, EventJobQueued, types[0])
	assert.Equal(t, EventJobCompleted, types[len(types)-1])
	assert.Contains(t, types, EventJobProgress)
}

func TestJobQueueStepFailure(t *testing.T) {
	boom := errors.New("boom")
	q := NewJobQueue(QueueConfig{Workers: 1}, NewMemoryJobStore(),
		stepsPipeline(funcStep{"a", ok}, funcStep{"b", func(context.Context, *RunState) error { return boom }}),
		nil, nil, nil)
	q.Start(context.Background())
	defer q.Stop(time.Second)

	job, err := q.Enqueue(context.Background(), &Job{Page: "p"})
	require.NoError(t, err)

	failed := waitForStatus(t, q, job.ID, JobStatusFailed)
	assert.Equal(t, "b: boom", failed.Error)
	assert.Equal(t, "b", failed.Stage)
	assert.Less(t, failed.Progress, 100)
}

func TestJobQueuePanicRecovery(t *testing.T) {
	q := NewJobQueue(QueueConfig{Workers: 1}, NewMemoryJobStore(),
		stepsPipeline(funcStep{"a", func(context.Context, *RunState) error { panic("bad input") }}),
		nil, nil, nil)
	q.Start(context.Background())
	defer q.Stop(time.Second)

	job, err := q.Enqueue(context.Background(), &Job{Page: "p"})
	require.NoError(t, err)

	failed := waitForStatus(t, q, job.ID, JobStatusFailed)
	assert.Contains(t, failed.Error, "panicked: bad input")
	assert.Equal(t, 0, q.Stats().Active)
}

func TestJobQueueFull(t *testing.T) {
	q := NewJobQueue(QueueConfig{Workers: 1, QueueSize: 1}, NewMemoryJobStore(),
		stepsPipeline(funcStep{"a", ok}), nil, nil, nil)

	_, err := q.Enqueue(context.Background(), &Job{Page: "p"})
	require.NoError(t, err)

	rejected, err := q.Enqueue(context.Background(), &Job{Page: "p"})
	assert.ErrorIs(t, err, ErrQueueFull)
	require.NotNil(t, rejected)
	assert.Equal(t, JobStatusFailed, rejected.Status)

	stored, err := q.GetJob(rejected.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, stored.Status)
	assert.Equal(t, ErrQueueFull.Error(), stored.Error)

	require.NoError(t, q.Stop(time.Second))
}

func TestJobQueueCancelPending(t *testing.T) {
	q := NewJobQueue(QueueConfig{Workers: 1, QueueSize: 2}, NewMemoryJobStore(),
		stepsPipeline(funcStep{"a", ok}), nil, nil, nil)

	job, err := q.Enqueue(context.Background(), &Job{Page: "p"})
	require.NoError(t, err)

	cancelled, err := q.CancelJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCancelled, cancelled.Status)

	_, err = q.CancelJob(job.ID)
	assert.ErrorIs(t, err, ErrNotCancellable)

	_, err = q.CancelJob("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	// a worker started afterwards skips the cancelled job
	q.Start(context.Background())
	require.NoError(t, q.Stop(time.Second))
	stored, err := q.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCancelled, stored.Status)
}

func TestJobQueueCancelRunning(t *testing.T) {
	q := NewJobQueue(QueueConfig{Workers: 1}, NewMemoryJobStore(),
		stepsPipeline(funcStep{"wait", blockUntilDone}), nil, nil, nil)
	q.Start(context.Background())
	defer q.Stop(time.Second)

	job, err := q.Enqueue(context.Background(), &Job{Page: "p"})
	require.NoError(t, err)
	waitForStatus(t, q, job.ID, JobStatusRunning)

	_, err = q.CancelJob(job.ID)
	require.NoError(t, err)

	cancelled := waitForStatus(t, q, job.ID, JobStatusCancelled)
	assert.Equal(t, "Job cancelled", cancelled.Message)
	assert.Empty(t, cancelled.Error)
}

func TestJobQueueTimeout(t *testing.T) {
	q := NewJobQueue(QueueConfig{Workers: 1, Timeout: 20 * time.Millisecond}, NewMemoryJobStore(),
		stepsPipeline(funcStep{"wait", blockUntilDone}), nil, nil, nil)
	q.Start(context.Background())
	defer q.Stop(time.Second)

	job, err := q.Enqueue(context.Background(), &Job{Page: "p"})
	require.NoError(t, err)

	failed := waitForStatus(t, q, job.ID, JobStatusFailed)
	assert.Contains(t, failed.Error, "timed out")
}

func TestJobQueueStop(t *testing.T) {
	release := make(chan struct{})
	q := NewJobQueue(QueueConfig{Workers: 1, QueueSize: 4}, NewMemoryJobStore(),
		stepsPipeline(funcStep{"hold", func(ctx context.Context, state *RunState) error {
			select {
			case <-release:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}}), nil, nil, nil)
	q.Start(context.Background())

	running, err := q.Enqueue(context.Background(), &Job{Page: "p"})
	require.NoError(t, err)
	waitForStatus(t, q, running.ID, JobStatusRunning)
	queued, err := q.Enqueue(context.Background(), &Job{Page: "p"})
	require.NoError(t, err)

	err = q.Stop(20 * time.Millisecond)
	assert.Error(t, err)
	close(release)

	stored, err := q.GetJob(running.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCancelled, stored.Status)

	stored, err = q.GetJob(queued.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCancelled, stored.Status)

	_, err = q.Enqueue(context.Background(), &Job{Page: "p"})
	assert.ErrorIs(t, err, ErrQueueStopped)
	assert.NoError(t, q.Stop(time.Second))
}

func TestJobQueueRetention(t *testing.T) {
	store := NewMemoryJobStore()
	q := NewJobQueue(QueueConfig{Workers: 1, Retention: time.Millisecond}, store,
		stepsPipeline(funcStep{"a", ok}), nil, nil, nil)
	q.Start(context.Background())
	defer q.Stop(time.Second)

	job, err := q.Enqueue(context.Background(), &Job{Page: "p"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := q.GetJob(job.ID)
		return errors.Is(err, ErrJobNotFound)
	}, 5*time.Second, 10*time.Millisecond)
}

type memorySource map[string]*storage.PersistedDataset

func (m memorySource) Bindings(context.Context, string) (map[string]*storage.PersistedDataset, error) {
	return m, nil
}

func TestDashboardPipeline(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		return path
	}
	src := memorySource{
		"reference_current": {
			ID: "ref", Kind: schema.KindInstrumentReference, FileName: "reference.csv",
			Path: write("reference.csv", "instrumentIdentifier,portfolioIdentifier,reportingDate,borrowerState,assetClass\nI-1,CRE,2025-06-30,TX,Commercial Real Estate\n"),
			Columns: []string{"instrumentIdentifier", "portfolioIdentifier", "reportingDate", "borrowerState", "assetClass"},
			RowCount: 1,
		},
		"result_current": {
			ID: "res", Kind: schema.KindInstrumentResult, FileName: "result.csv",
			Path: write("result.csv", "instrumentIdentifier,reportingDate,annualizedPDOneYear,lgdLifetime,amortizedCost\nI-1,2025-06-30,0.02,0.4,1000\n"),
			Columns: []string{"instrumentIdentifier", "reportingDate", "annualizedPDOneYear", "lgdLifetime", "amortizedCost"},
			RowCount: 1,
		},
	}
	engine := dashboard.NewEngine(src, nil, dashboard.DefaultOptions(), nil)
	exports := t.TempDir()

	q := NewJobQueue(QueueConfig{Workers: 1}, NewMemoryJobStore(), DashboardPipeline(engine, exports), nil, nil, nil)
	q.Start(context.Background())
	defer q.Stop(time.Second)

	job, err := q.Enqueue(context.Background(), &Job{
		Page:    inputs.PageRealEstatePD,
		Request: dashboard.DefaultRequest(),
		Format:  exporter.FormatXLSX,
	})
	require.NoError(t, err)

	done := waitForStatus(t, q, job.ID, JobStatusCompleted)
	require.Len(t, done.Files, 1)
	assert.FileExists(t, done.Files[0])
	assert.Equal(t, done.ResultKey+".xlsx", filepath.Base(done.Files[0]))
	require.NotNil(t, done.Result)
	assert.Equal(t, "2025Q2", done.Result.Quarter)
	assert.Equal(t, StepExport, done.Stage)
}

func TestDashboardPipelineNotReady(t *testing.T) {
	engine := dashboard.NewEngine(memorySource{}, nil, dashboard.DefaultOptions(), nil)
	q := NewJobQueue(QueueConfig{Workers: 1}, NewMemoryJobStore(), DashboardPipeline(engine, t.TempDir()), nil, nil, nil)
	q.Start(context.Background())
	defer q.Stop(time.Second)

	job, err := q.Enqueue(context.Background(), &Job{Page: inputs.PageRealEstatePD})
	require.NoError(t, err)

	failed := waitForStatus(t, q, job.ID, JobStatusFailed)
	assert.Equal(t, StepLoad, failed.Stage)
	assert.Contains(t, failed.Error, "missing required files")
}

func TestOverallProgress(t *testing.T) {
	tests := []struct {
		step, steps, p int
		want           int
	}{
		{0, 4, 0, 0},
		{0, 4, 100, 25},
		{1, 4, 50, 37},
		{3, 4, 100, 99},
		{0, 0, 50, 0},
		{2, 4, 150, 75},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, overallProgress(tt.step, tt.steps, tt.p), "%d/%d at %d", tt.step, tt.steps, tt.p)
	}
}

func TestExportName(t *testing.T) {
	job := &Job{ID: "3f2a9c10-1111-2222-3333-444455556666", Page: inputs.PageBacktest}
	assert.Equal(t, "backtest_3f2a9c10", exportName(job))
}
