package operations

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"riskdash/internal/dashboard"
	"riskdash/internal/exporter"
)

// Step identifiers
const (
	StepLoad      = "load"
	StepHarmonize = "harmonize"
	StepCompute   = "compute"
	StepExport    = "export"
)

var errMissingState = errors.New("previous step produced no output")

// DashboardPipeline runs load, harmonize, compute and export for every job
func DashboardPipeline(engine *dashboard.Engine, exportsDir string) Pipeline {
	return func(job *Job) []Step {
		return []Step{
			&LoadStep{Engine: engine},
			&HarmonizeStep{Engine: engine},
			&ComputeStep{Engine: engine},
			&ExportStep{Dir: exportsDir},
		}
	}
}

// LoadStep reads the datasets bound to the job's page
type LoadStep struct {
	Engine *dashboard.Engine
}

func (s *LoadStep) ID() string   { return StepLoad }
func (s *LoadStep) Name() string { return "Load inputs" }

func (s *LoadStep) Execute(ctx context.Context, state *RunState) error {
	state.Report(0, "Checking page inputs")
	in, err := s.Engine.Load(ctx, state.Job.Page)
	if err != nil {
		return err
	}
	state.Inputs = in
	state.Report(100, fmt.Sprintf("Loaded %d input files", len(in.Files)))
	return nil
}

// HarmonizeStep unions the loaded files into canonical records
type HarmonizeStep struct {
	Engine *dashboard.Engine
}

func (s *HarmonizeStep) ID() string   { return StepHarmonize }
func (s *HarmonizeStep) Name() string { return "Harmonize records" }

func (s *HarmonizeStep) Execute(ctx context.Context, state *RunState) error {
	if state.Inputs == nil {
		return errMissingState
	}
	h, err := s.Engine.Harmonize(ctx, state.Inputs)
	if err != nil {
		return err
	}
	state.Harmonized = h
	rows := 0
	for _, r := range h.Reports {
		if r != nil {
			rows += r.Kept
		}
	}
	state.Report(100, fmt.Sprintf("Harmonized %d rows", rows))
	return nil
}

// ComputeStep builds the page view under the job's filters
type ComputeStep struct {
	Engine *dashboard.Engine
}

func (s *ComputeStep) ID() string   { return StepCompute }
func (s *ComputeStep) Name() string { return "Compute view" }

func (s *ComputeStep) Execute(ctx context.Context, state *RunState) error {
	if state.Harmonized == nil {
		return errMissingState
	}
	result, err := s.Engine.Compute(ctx, state.Harmonized, state.Job.Request)
	if err != nil {
		return err
	}
	state.Result = result
	state.Report(100, "Computed "+result.Title)
	return nil
}

// ExportStep writes the computed view under Dir, named after the job
type ExportStep struct {
	Dir string
}

func (s *ExportStep) ID() string   { return StepExport }
func (s *ExportStep) Name() string { return "Export" }

func (s *ExportStep) Execute(ctx context.Context, state *RunState) error {
	if state.Result == nil {
		return errMissingState
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	format := state.Job.Format
	if format == "" {
		format = exporter.FormatXLSX
	}
	name := exportName(state.Job)
	files, err := dashboard.Export(state.Result, format, s.Dir, name)
	if err != nil {
		return fmt.Errorf("export %s: %w", format, err)
	}
	state.Files = files
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = filepath.Base(f)
	}
	state.Report(100, "Wrote "+strings.Join(names, ", "))
	return nil
}

// exportName is the page followed by the first block of the job ID
func exportName(job *Job) string {
	id := job.ID
	if i := strings.IndexByte(id, '-'); i > 0 {
		id = id[:i]
	}
	return exporter.SafeName(job.Page + "_" + id)
}
