package services

import (
	"context"
	"log/slog"

	"riskdash/internal/dashboard"
	"riskdash/internal/exporter"
	"riskdash/internal/infrastructure"
	"riskdash/internal/inputs"
	"riskdash/internal/operations"
)

// JobService submits page computations to the background queue
type JobService struct {
	queue       *operations.JobQueue
	broadcaster *operations.StatusBroadcaster
	logger      *slog.Logger
}

// NewJobService creates a job service. The broadcaster is optional and
// supplies the latest progress of running jobs.
func NewJobService(queue *operations.JobQueue, broadcaster *operations.StatusBroadcaster, logger *slog.Logger) *JobService {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobService{
		queue:       queue,
		broadcaster: broadcaster,
		logger:      logger.With(slog.String("service", "jobs")),
	}
}

// Submit queues a computation of a page
func (s *JobService) Submit(ctx context.Context, pageKey string, req dashboard.Request, format exporter.Format) (*operations.Job, error) {
	if _, err := inputs.LookupPage(pageKey); err != nil {
		return nil, err
	}
	if err := req.Filters.Validate(); err != nil {
		return nil, toAPIError(ErrInvalidFilters)
	}
	if format == "" {
		format = exporter.FormatXLSX
	}

	job, err := s.queue.Enqueue(ctx, &operations.Job{Page: pageKey, Request: req, Format: format})
	if err != nil {
		infrastructure.LoggerWithContext(ctx).WarnContext(ctx, "job not queued",
			slog.String("page", pageKey),
			slog.String("error", err.Error()))
		return job, toAPIError(err)
	}
	return job, nil
}

// Get returns a job with the freshest progress known
func (s *JobService) Get(ctx context.Context, id string) (*operations.Job, error) {
	job, err := s.queue.GetJob(id)
	if err != nil {
		return nil, toAPIError(err)
	}
	if s.broadcaster != nil && job.Status == operations.JobStatusRunning {
		if snap, ok := s.broadcaster.Snapshot(id); ok && snap.Progress > job.Progress {
			job.Progress = snap.Progress
			job.Stage = snap.Stage
			job.Message = snap.Message
		}
	}
	return job, nil
}

// List returns jobs matching the filter, newest first
func (s *JobService) List(ctx context.Context, filter operations.JobFilter) ([]*operations.Job, error) {
	jobs, err := s.queue.ListJobs(filter)
	if err != nil {
		return nil, err
	}
	if jobs == nil {
		jobs = []*operations.Job{}
	}
	return jobs, nil
}

// Cancel stops a pending or running job
func (s *JobService) Cancel(ctx context.Context, id string) (*operations.Job, error) {
	job, err := s.queue.CancelJob(id)
	if err != nil {
		return nil, toAPIError(err)
	}
	s.logger.InfoContext(ctx, "job cancel requested", slog.String("job_id", id))
	return job, nil
}

// Stats returns queue counters
func (s *JobService) Stats() operations.QueueStats {
	return s.queue.Stats()
}
