package http

import (
	"context"
	"io"

	"riskdash/internal/dashboard"
	"riskdash/internal/exporter"
	"riskdash/internal/filters"
	"riskdash/internal/inputs"
	"riskdash/internal/operations"
	"riskdash/internal/services"
	"riskdash/internal/storage"
)

// DatasetService is what the handlers need from services.DatasetService
type DatasetService interface {
	Upload(ctx context.Context, pageKey, inputKey, fileName string, content []byte) (*inputs.InputStatus, error)
	Detect(ctx context.Context, fileName string, content []byte) (*services.DetectResult, error)
	Panel(ctx context.Context, pageKey string) (*inputs.PanelState, error)
	Unbind(ctx context.Context, pageKey, inputKey string) error
	List(ctx context.Context, filter storage.ListFilter) ([]storage.PersistedDataset, error)
	Get(ctx context.Context, id string) (*storage.PersistedDataset, error)
	Delete(ctx context.Context, id string) error
}

// DashboardService is what the handlers need from services.DashboardService
type DashboardService interface {
	Pages() []inputs.Page
	Filters() filters.Options
	Compute(ctx context.Context, pageKey string, req dashboard.Request) (*dashboard.Result, error)
	Explain(ctx context.Context, pageKey string) (inputs.Explanation, error)
	Export(ctx context.Context, w io.Writer, pageKey string, req dashboard.Request, format exporter.Format, table string) (*dashboard.Result, error)
}

// JobService is what the handlers need from services.JobService
type JobService interface {
	Submit(ctx context.Context, pageKey string, req dashboard.Request, format exporter.Format) (*operations.Job, error)
	Get(ctx context.Context, id string) (*operations.Job, error)
	List(ctx context.Context, filter operations.JobFilter) ([]*operations.Job, error)
	Cancel(ctx context.Context, id string) (*operations.Job, error)
}

// HealthChecker is what the health handler needs from services.HealthService
type HealthChecker interface {
	HealthCheck(ctx context.Context) services.HealthStatus
	ReadinessCheck(ctx context.Context) services.HealthStatus
}

var (
	_ DatasetService   = (*services.DatasetService)(nil)
	_ DashboardService = (*services.DashboardService)(nil)
	_ JobService       = (*services.JobService)(nil)
	_ HealthChecker    = (*services.HealthService)(nil)
)
