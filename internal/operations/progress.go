package operations

import "time"

// Progress message types
const (
	EventJobQueued    = "job:queued"
	EventJobProgress  = "job:progress"
	EventJobCompleted = "job:completed"
	EventJobFailed    = "job:failed"
	EventJobCancelled = "job:cancelled"
)

// ProgressUpdate is one progress message of a job
type ProgressUpdate struct {
	Type      string    `json:"type"`
	JobID     string    `json:"job_id"`
	Page      string    `json:"page"`
	Stage     string    `json:"stage,omitempty"`
	Progress  int       `json:"progress"`
	Status    JobStatus `json:"status"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ProgressSink receives job progress
type ProgressSink interface {
	Publish(update ProgressUpdate)
}

// SinkFunc adapts a function to ProgressSink
type SinkFunc func(update ProgressUpdate)

// Publish calls f
func (f SinkFunc) Publish(update ProgressUpdate) {
	f(update)
}

type nopSink struct{}

func (nopSink) Publish(ProgressUpdate) {}

// updateFor builds the message describing a job's current state
func updateFor(eventType string, job *Job) ProgressUpdate {
	return ProgressUpdate{
		Type:      eventType,
		JobID:     job.ID,
		Page:      job.Page,
		Stage:     job.Stage,
		Progress:  job.Progress,
		Status:    job.Status,
		Message:   job.Message,
		Error:     job.Error,
		Timestamp: time.Now().UTC(),
	}
}

// overallProgress spreads step progress evenly over the job. The result
// stays below 100 until the job completes.
func overallProgress(step, steps, stepProgress int) int {
	if steps <= 0 {
		return 0
	}
	stepProgress = clamp(stepProgress, 0, 100)
	p := (step*100 + stepProgress) / steps
	return clamp(p, 0, 99)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
