package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"riskdash/internal/infrastructure"
)

// QueueConfig sizes the worker pool
type QueueConfig struct {
	Workers   int
	QueueSize int
	// Timeout bounds a single job; zero means no limit
	Timeout time.Duration
	// Retention is how long finished jobs are kept; zero keeps them
	Retention time.Duration
}

type activeJob struct {
	cancel    context.CancelFunc
	cancelled bool
}

// JobQueue manages async job execution
type JobQueue struct {
	mu       sync.Mutex
	jobs     chan string
	cfg      QueueConfig
	wg       sync.WaitGroup
	store    JobStore
	pipeline Pipeline
	sink     ProgressSink
	tracer   *JobTracer
	logger   *slog.Logger
	shutdown chan struct{}
	active   map[string]*activeJob
	started  bool
	stopped  bool
	baseCtx  context.Context
	cancel   context.CancelFunc
}

// NewJobQueue creates a new job queue. sink and metrics may be nil.
func NewJobQueue(cfg QueueConfig, store JobStore, pipeline Pipeline, sink ProgressSink, metrics *infrastructure.BusinessMetrics, logger *slog.Logger) *JobQueue {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 2
	}
	if sink == nil {
		sink = nopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &JobQueue{
		jobs:     make(chan string, cfg.QueueSize),
		cfg:      cfg,
		store:    store,
		pipeline: pipeline,
		sink:     sink,
		tracer:   NewJobTracer(metrics),
		logger:   logger.With(slog.String("component", "jobqueue")),
		shutdown: make(chan struct{}),
		active:   make(map[string]*activeJob),
	}
}

// Start begins processing jobs. Jobs run under a context derived from ctx.
func (q *JobQueue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true
	q.baseCtx, q.cancel = context.WithCancel(ctx)

	q.logger.Info("starting job queue",
		slog.Int("workers", q.cfg.Workers),
		slog.Int("queue_size", q.cfg.QueueSize))

	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	if q.cfg.Retention > 0 {
		q.wg.Add(1)
		go q.cleanupLoop()
	}
}

// Stop waits for running jobs to finish. When the timeout passes first,
// running jobs are cancelled. Jobs still queued are marked cancelled.
func (q *JobQueue) Stop(timeout time.Duration) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return nil
	}
	q.stopped = true
	started := q.started
	q.mu.Unlock()

	q.logger.Info("stopping job queue")
	close(q.shutdown)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		q.logger.Info("job queue stopped gracefully")
	case <-time.After(timeout):
		q.logger.Warn("job queue stop timeout exceeded, cancelling running jobs")
		err = fmt.Errorf("timeout waiting for workers to finish after %s", timeout)
		if started {
			q.cancel()
		}
		<-done
	}
	if started {
		q.cancel()
	}
	q.drain()
	return err
}

// drain cancels the jobs left in the buffer
func (q *JobQueue) drain() {
	for {
		select {
		case id := <-q.jobs:
			job, err := q.store.GetJob(id)
			if err != nil || job.Status != JobStatusPending {
				continue
			}
			q.finish(job, JobStatusCancelled, "Job cancelled by shutdown", nil)
		default:
			return
		}
	}
}

// Enqueue stores a job and queues it for execution. A full queue marks the
// job failed and returns it with ErrQueueFull.
func (q *JobQueue) Enqueue(ctx context.Context, job *Job) (*Job, error) {
	job = job.Clone()
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.TraceID == "" {
		job.TraceID = infrastructure.GetTraceID(ctx)
	}
	job.Status = JobStatusPending
	job.Progress = 0
	job.Message = "Job queued"
	job.CreatedAt = time.Now().UTC()

	// the send happens under the lock so Stop never misses a queued job
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return nil, ErrQueueStopped
	}
	if err := q.store.CreateJob(job); err != nil {
		q.mu.Unlock()
		return nil, fmt.Errorf("failed to save job: %w", err)
	}
	var queued bool
	select {
	case q.jobs <- job.ID:
		queued = true
	default:
	}
	q.mu.Unlock()

	if queued {
		q.logger.InfoContext(ctx, "job enqueued",
			slog.String("job_id", job.ID),
			slog.String("page", job.Page))
		q.sink.Publish(updateFor(EventJobQueued, job))
		return job.Clone(), nil
	}
	q.logger.WarnContext(ctx, "job queue is full", slog.String("job_id", job.ID))
	q.finish(job, JobStatusFailed, "Job rejected", ErrQueueFull)
	return job.Clone(), ErrQueueFull
}

// GetJob retrieves a job by ID
func (q *JobQueue) GetJob(id string) (*Job, error) {
	return q.store.GetJob(id)
}

// ListJobs returns jobs matching the filter
func (q *JobQueue) ListJobs(filter JobFilter) ([]*Job, error) {
	return q.store.ListJobs(filter)
}

// CancelJob cancels a pending or running job. A running job stops at its
// next cancellation check and is then reported cancelled.
func (q *JobQueue) CancelJob(id string) (*Job, error) {
	q.mu.Lock()
	if a, ok := q.active[id]; ok {
		a.cancelled = true
		a.cancel()
		q.mu.Unlock()
		q.logger.Info("cancelling running job", slog.String("job_id", id))
		return q.store.GetJob(id)
	}

	job, err := q.store.GetJob(id)
	if err != nil {
		q.mu.Unlock()
		return nil, err
	}
	if job.Status != JobStatusPending {
		q.mu.Unlock()
		return job, fmt.Errorf("%w: job %s is %s", ErrNotCancellable, id, job.Status)
	}
	markFinished(job, JobStatusCancelled, "Job cancelled", nil)
	err = q.store.UpdateJob(job)
	q.mu.Unlock()
	if err != nil {
		return nil, err
	}

	q.logger.Info("cancelled queued job", slog.String("job_id", id))
	q.sink.Publish(updateFor(EventJobCancelled, job))
	return job, nil
}

// Stats reports job counts and queue occupancy
func (q *JobQueue) Stats() QueueStats {
	q.mu.Lock()
	active := len(q.active)
	q.mu.Unlock()
	return QueueStats{
		JobStats: q.store.GetStats(),
		Workers:  q.cfg.Workers,
		Queued:   len(q.jobs),
		Active:   active,
	}
}

func (q *JobQueue) worker(workerID int) {
	defer q.wg.Done()

	logger := q.logger.With(slog.Int("worker_id", workerID))
	logger.Debug("worker started")

	for {
		select {
		case <-q.shutdown:
			logger.Debug("worker stopped by shutdown")
			return
		case <-q.baseCtx.Done():
			logger.Debug("worker stopped by context")
			return
		case id := <-q.jobs:
			q.processJob(id, logger)
		}
	}
}

func (q *JobQueue) cleanupLoop() {
	defer q.wg.Done()

	interval := q.cfg.Retention / 2
	if interval > 10*time.Minute {
		interval = 10 * time.Minute
	}
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-q.shutdown:
			return
		case <-q.baseCtx.Done():
			return
		case <-ticker.C:
			if n := q.store.CleanupOldJobs(q.cfg.Retention); n > 0 {
				q.logger.Info("cleaned up finished jobs", slog.Int("removed", n))
			}
		}
	}
}

// begin claims a queued job for this worker unless it was cancelled while
// waiting
func (q *JobQueue) begin(id string) (*Job, context.Context, context.CancelFunc, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.store.GetJob(id)
	if err != nil {
		return nil, nil, nil, err
	}
	if job.Status != JobStatusPending {
		return nil, nil, nil, nil
	}

	ctx := q.baseCtx
	if job.TraceID != "" {
		ctx = infrastructure.WithTraceID(ctx, job.TraceID)
	}
	var cancel context.CancelFunc
	if q.cfg.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, q.cfg.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	q.active[id] = &activeJob{cancel: cancel}

	now := time.Now().UTC()
	job.Status = JobStatusRunning
	job.StartedAt = &now
	job.Progress = 0
	job.Message = "Job started"
	if err := q.store.UpdateJob(job); err != nil {
		delete(q.active, id)
		cancel()
		return nil, nil, nil, err
	}
	return job, ctx, cancel, nil
}

func (q *JobQueue) processJob(id string, logger *slog.Logger) {
	job, ctx, cancel, err := q.begin(id)
	if err != nil {
		logger.Error("failed to start job", slog.String("job_id", id), slog.String("error", err.Error()))
		return
	}
	if job == nil {
		logger.Debug("skipping job that is no longer pending", slog.String("job_id", id))
		return
	}
	defer cancel()

	logger = logger.With(slog.String("job_id", job.ID), slog.String("page", job.Page))
	logger.InfoContext(ctx, "processing job started")
	q.sink.Publish(updateFor(EventJobProgress, job))

	started := time.Now()
	ctx, span := q.tracer.StartJob(ctx, job)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("job processing panicked", slog.Any("panic", r))
			err := fmt.Errorf("job processing panicked: %v", r)
			q.finish(job, JobStatusFailed, "Internal error occurred", err)
			q.tracer.EndJob(ctx, span, job, time.Since(started), err)
		}

		q.mu.Lock()
		delete(q.active, job.ID)
		q.mu.Unlock()
	}()

	runErr := q.run(ctx, job, logger)

	switch {
	case runErr == nil:
		job.ResultKey = exportName(job)
		q.finish(job, JobStatusCompleted, "Job completed successfully", nil)
		logger.InfoContext(ctx, "processing job completed", slog.Duration("duration", time.Since(started)))
	case q.wasCancelled(job.ID):
		q.finish(job, JobStatusCancelled, "Job cancelled", nil)
		logger.InfoContext(ctx, "job cancelled", slog.String("stage", job.Stage))
	case errors.Is(runErr, context.Canceled):
		q.finish(job, JobStatusCancelled, "Job cancelled by shutdown", nil)
		logger.WarnContext(ctx, "job interrupted by shutdown", slog.String("stage", job.Stage))
	case errors.Is(runErr, context.DeadlineExceeded):
		runErr = fmt.Errorf("job timed out after %s: %w", q.cfg.Timeout, runErr)
		q.finish(job, JobStatusFailed, "Job timed out", runErr)
		logger.WarnContext(ctx, "job timed out", slog.String("stage", job.Stage))
	default:
		q.finish(job, JobStatusFailed, "Job failed", runErr)
		logger.ErrorContext(ctx, "job failed",
			slog.String("stage", job.Stage),
			slog.String("error", runErr.Error()))
	}
	q.tracer.EndJob(ctx, span, job, time.Since(started), runErr)
}

// run executes the pipeline steps in order, recording progress after each
func (q *JobQueue) run(ctx context.Context, job *Job, logger *slog.Logger) error {
	steps := q.pipeline(job)
	n := len(steps)

	var current int
	state := NewRunState(job, func(progress int, message string) {
		job.Progress = overallProgress(current, n, progress)
		job.Message = message
		q.save(job, logger)
		q.sink.Publish(updateFor(EventJobProgress, job))
	})

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		current = i
		job.Stage = step.ID()
		state.Report(0, step.Name())

		stepCtx, span := q.tracer.StartStep(ctx, job, step)
		stepStart := time.Now()
		err := step.Execute(stepCtx, state)
		q.tracer.EndStep(stepCtx, span, job, step, time.Since(stepStart), err)
		if err != nil {
			return &StageError{Stage: step.ID(), Cause: err}
		}
		logger.DebugContext(ctx, "step completed",
			slog.String("stage", step.ID()),
			slog.Duration("duration", time.Since(stepStart)))
	}

	job.Files = state.Files
	job.Result = state.Result
	return nil
}

func (q *JobQueue) wasCancelled(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	a, ok := q.active[id]
	return ok && a.cancelled
}

func (q *JobQueue) save(job *Job, logger *slog.Logger) {
	if err := q.store.UpdateJob(job); err != nil {
		logger.Error("failed to update job", slog.String("job_id", job.ID), slog.String("error", err.Error()))
	}
}

// finish records a terminal status and publishes it
func (q *JobQueue) finish(job *Job, status JobStatus, message string, err error) {
	markFinished(job, status, message, err)
	q.save(job, q.logger)

	eventType := EventJobCompleted
	switch status {
	case JobStatusFailed:
		eventType = EventJobFailed
	case JobStatusCancelled:
		eventType = EventJobCancelled
	}
	q.sink.Publish(updateFor(eventType, job))
}

func markFinished(job *Job, status JobStatus, message string, err error) {
	now := time.Now().UTC()
	job.Status = status
	job.Message = message
	job.CompletedAt = &now
	if status == JobStatusCompleted {
		job.Progress = 100
	}
	if err != nil {
		job.Error = err.Error()
	}
}
