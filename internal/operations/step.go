package operations

import (
	"context"

	"riskdash/internal/dashboard"
)

// Step is one unit of a job's work
type Step interface {
	// ID returns the stable identifier used in progress messages
	ID() string
	// Name returns a human-readable name
	Name() string
	// Execute runs the step, reading and extending the run state
	Execute(ctx context.Context, state *RunState) error
}

// Pipeline returns the steps that run a job, in order
type Pipeline func(job *Job) []Step

// RunState carries the intermediate products of a job between its steps.
// It is owned by the worker running the job.
type RunState struct {
	Job        *Job
	Inputs     *dashboard.Inputs
	Harmonized *dashboard.Harmonized
	Result     *dashboard.Result
	Files      []string

	report func(progress int, message string)
}

// NewRunState creates the state of a job run. report may be nil.
func NewRunState(job *Job, report func(progress int, message string)) *RunState {
	return &RunState{Job: job, report: report}
}

// Report records progress within the current step, 0 to 100
func (s *RunState) Report(progress int, message string) {
	if s.report != nil {
		s.report(progress, message)
	}
}
