package operations

import (
	"time"

	"riskdash/internal/dashboard"
	"riskdash/internal/exporter"
)

// JobStatus represents the status of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether a job in this status will not change again
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Job is one background computation of a dashboard page
type Job struct {
	ID          string            `json:"id"`
	Page        string            `json:"page"`
	Request     dashboard.Request `json:"request"`
	Format      exporter.Format   `json:"format"`
	Status      JobStatus         `json:"status"`
	Progress    int               `json:"progress"`
	Stage       string            `json:"stage,omitempty"`
	Message     string            `json:"message,omitempty"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	ResultKey   string            `json:"result_key,omitempty"`
	Files       []string          `json:"files,omitempty"`
	Result      *dashboard.Result `json:"result,omitempty"`
	TraceID     string            `json:"trace_id,omitempty"`
}

// Clone copies a job. The computed result is shared; it is never modified
// after the compute step.
func (j *Job) Clone() *Job {
	c := *j
	if j.Files != nil {
		c.Files = append([]string(nil), j.Files...)
	}
	return &c
}

// JobFilter for querying jobs
type JobFilter struct {
	Status JobStatus
	Page   string
	Since  time.Time
	Limit  int
}

// JobStats counts jobs by status
type JobStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// QueueStats describes the queue itself
type QueueStats struct {
	JobStats
	Workers int `json:"workers"`
	Queued  int `json:"queued"`
	Active  int `json:"active"`
}

// JobStore persists jobs
type JobStore interface {
	CreateJob(job *Job) error
	GetJob(id string) (*Job, error)
	UpdateJob(job *Job) error
	ListJobs(filter JobFilter) ([]*Job, error)
	DeleteJob(id string) error
	CleanupOldJobs(olderThan time.Duration) int
	GetStats() JobStats
}
