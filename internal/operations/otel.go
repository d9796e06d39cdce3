package operations

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"riskdash/internal/infrastructure"
)

const (
	TracerName = "riskdash.operations"
)

// JobTracer wraps job and step execution in spans and business metrics
type JobTracer struct {
	tracer  trace.Tracer
	metrics *infrastructure.BusinessMetrics
}

// NewJobTracer uses the global tracer provider. metrics may be nil.
func NewJobTracer(metrics *infrastructure.BusinessMetrics) *JobTracer {
	return &JobTracer{
		tracer:  otel.Tracer(TracerName),
		metrics: metrics,
	}
}

// StartJob creates the span covering a whole job
func (t *JobTracer) StartJob(ctx context.Context, job *Job) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "job.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("job.id", job.ID),
			attribute.String("job.page", job.Page),
			attribute.String("job.format", string(job.Format)),
		),
	)
	t.metrics.RecordJobStart(ctx, job.Page)
	return ctx, span
}

// EndJob closes the job span with its final status
func (t *JobTracer) EndJob(ctx context.Context, span trace.Span, job *Job, duration time.Duration, err error) {
	defer span.End()

	span.SetAttributes(
		attribute.String("job.status", string(job.Status)),
		attribute.Int64("job.duration_ms", duration.Milliseconds()),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "job completed")
	}
	t.metrics.RecordJobEnd(ctx, job.Page, duration, err, job.Status == JobStatusCancelled)
}

// StartStep creates a child span for one step
func (t *JobTracer) StartStep(ctx context.Context, job *Job, step Step) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "job.step."+step.ID(),
		trace.WithAttributes(
			attribute.String("job.id", job.ID),
			attribute.String("step.id", step.ID()),
			attribute.String("step.name", step.Name()),
		),
	)
}

// EndStep closes a step span
func (t *JobTracer) EndStep(ctx context.Context, span trace.Span, job *Job, step Step, duration time.Duration, err error) {
	defer span.End()

	span.SetAttributes(attribute.Int64("step.duration_ms", duration.Milliseconds()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	t.metrics.RecordJobStage(ctx, job.Page, step.ID(), err)
}
