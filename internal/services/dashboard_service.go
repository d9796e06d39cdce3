package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"riskdash/internal/analytics"
	"riskdash/internal/dashboard"
	"riskdash/internal/exporter"
	"riskdash/internal/filters"
	"riskdash/internal/infrastructure"
	"riskdash/internal/inputs"
)

// DashboardService computes dashboard pages on request
type DashboardService struct {
	engine  *dashboard.Engine
	metrics *infrastructure.BusinessMetrics
	logger  *slog.Logger
}

// NewDashboardService creates a dashboard service
func NewDashboardService(engine *dashboard.Engine, metrics *infrastructure.BusinessMetrics, logger *slog.Logger) *DashboardService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DashboardService{
		engine:  engine,
		metrics: metrics,
		logger:  logger.With(slog.String("service", "dashboard")),
	}
}

// Pages lists every page with its input slots
func (s *DashboardService) Pages() []inputs.Page {
	return inputs.Pages()
}

// Filters returns the selectable filter values and their defaults
func (s *DashboardService) Filters() filters.Options {
	return filters.AllOptions()
}

// Compute builds a page view. Pages whose required inputs are missing
// fail before any file is read.
func (s *DashboardService) Compute(ctx context.Context, pageKey string, req dashboard.Request) (*dashboard.Result, error) {
	if err := req.Filters.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilters, err)
	}

	start := time.Now()
	result, err := s.engine.Run(ctx, pageKey, req)
	duration := time.Since(start)

	var validation *analytics.ValidationError
	isValidation := errors.As(err, &validation)
	s.metrics.RecordView(ctx, pageKey, duration, err, isValidation)

	logger := infrastructure.LoggerWithContext(ctx).With(
		slog.String("service", "dashboard"),
		slog.String("page", pageKey))
	if err != nil {
		logger.WarnContext(ctx, "view not computed",
			slog.String("error", err.Error()),
			slog.Duration("duration", duration))
		return nil, toAPIError(err)
	}
	logger.InfoContext(ctx, "view computed",
		slog.String("quarter", result.Quarter),
		slog.Duration("duration", duration))
	return result, nil
}

// Explain describes the columns each loaded input contributes
func (s *DashboardService) Explain(ctx context.Context, pageKey string) (inputs.Explanation, error) {
	_, panel, err := s.engine.Panel(ctx, pageKey)
	if err != nil {
		return inputs.Explanation{}, err
	}
	return inputs.Explain(panel), nil
}

// Export computes a page and streams it in the given format. CSV carries
// one table, chosen by name or the first.
func (s *DashboardService) Export(ctx context.Context, w io.Writer, pageKey string, req dashboard.Request, format exporter.Format, table string) (*dashboard.Result, error) {
	result, err := s.Compute(ctx, pageKey, req)
	if err != nil {
		return nil, err
	}
	if err := dashboard.WriteTo(w, result, format, table); err != nil {
		return nil, toAPIError(err)
	}
	return result, nil
}

// ExportFiles computes a page and writes it into dir
func (s *DashboardService) ExportFiles(ctx context.Context, pageKey string, req dashboard.Request, format exporter.Format, dir string) ([]string, error) {
	result, err := s.Compute(ctx, pageKey, req)
	if err != nil {
		return nil, err
	}
	paths, err := dashboard.Export(result, format, dir, dashboard.ExportName(result))
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "view exported",
		slog.String("page", pageKey),
		slog.String("format", string(format)),
		slog.Int("files", len(paths)))
	return paths, nil
}
