package http

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"riskdash/internal/dashboard"
	apierrors "riskdash/internal/errors"
	"riskdash/internal/exporter"
	"riskdash/internal/filters"
	"riskdash/internal/inputs"
	"riskdash/internal/middleware"
)

// PagesHandler serves the dashboard pages: their inputs, views and exports
type PagesHandler struct {
	datasets     DatasetService
	dashboard    DashboardService
	jobs         *JobsHandler
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewPagesHandler creates a pages handler
func NewPagesHandler(datasets DatasetService, dashboard DashboardService, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *PagesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PagesHandler{
		datasets:     datasets,
		dashboard:    dashboard,
		logger:       logger.With(slog.String("handler", "pages")),
		errorHandler: errorHandler,
	}
}

// WithJobs adds POST /{page}/jobs to the page routes
func (h *PagesHandler) WithJobs(jobs *JobsHandler) *PagesHandler {
	h.jobs = jobs
	return h
}

// Routes returns the page routes
func (h *PagesHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListPages)
	r.Route("/{page}", func(r chi.Router) {
		r.Use(h.PageCtx)
		r.Get("/inputs", h.GetInputs)
		r.Post("/inputs/{input}", h.UploadInput)
		r.Delete("/inputs/{input}", h.ClearInput)
		r.Get("/explain", h.Explain)
		r.Get("/view", h.View)
		r.Get("/export", h.Export)
		if h.jobs != nil {
			r.Post("/jobs", h.jobs.SubmitJob)
		}
	})
	return r
}

type pageKey struct{}

// PageCtx resolves the {page} parameter and rejects unknown pages
func (h *PagesHandler) PageCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, err := inputs.LookupPage(chi.URLParam(r, "page"))
		if err != nil {
			h.errorHandler.HandleError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), pageKey{}, page)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func pageFrom(r *http.Request) *inputs.Page {
	page, _ := r.Context().Value(pageKey{}).(*inputs.Page)
	return page
}

// PageSummary is a page with the readiness of its inputs
type PageSummary struct {
	inputs.Page
	Ready bool `json:"ready"`
}

// ListPages handles GET /api/v1/pages
func (h *PagesHandler) ListPages(w http.ResponseWriter, r *http.Request) {
	pages := h.dashboard.Pages()
	out := make([]PageSummary, 0, len(pages))
	for _, page := range pages {
		panel, err := h.datasets.Panel(r.Context(), page.Key)
		if err != nil {
			h.errorHandler.HandleError(w, r, err)
			return
		}
		out = append(out, PageSummary{Page: page, Ready: panel.Ready()})
	}
	respond(w, r, http.StatusOK, out)
}

// GetInputs handles GET /api/v1/pages/{page}/inputs
func (h *PagesHandler) GetInputs(w http.ResponseWriter, r *http.Request) {
	panel, err := h.datasets.Panel(r.Context(), pageFrom(r).Key)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, panel.Summary())
}

// UploadInput handles POST /api/v1/pages/{page}/inputs/{input} with a
// multipart "file" field
func (h *PagesHandler) UploadInput(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page := pageFrom(r)
	input := chi.URLParam(r, "input")

	fileName, content, err := uploadedFile(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	status, err := h.datasets.Upload(ctx, page.Key, input, fileName, content)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	panel, err := h.datasets.Panel(ctx, page.Key)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "input uploaded",
		slog.String("request_id", middleware.GetRequestID(ctx)),
		slog.String("page", page.Key),
		slog.String("input", input),
		slog.String("file", fileName),
		slog.Bool("page_ready", panel.Ready()))

	respond(w, r, http.StatusCreated, map[string]interface{}{
		"input": status,
		"panel": panel.Summary(),
	})
}

// ClearInput handles DELETE /api/v1/pages/{page}/inputs/{input}
func (h *PagesHandler) ClearInput(w http.ResponseWriter, r *http.Request) {
	page := pageFrom(r)
	if err := h.datasets.Unbind(r.Context(), page.Key, chi.URLParam(r, "input")); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Explain handles GET /api/v1/pages/{page}/explain
func (h *PagesHandler) Explain(w http.ResponseWriter, r *http.Request) {
	explanation, err := h.dashboard.Explain(r.Context(), pageFrom(r).Key)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, explanation)
}

// dashboardRequest reads filters and the macro state from the query
func dashboardRequest(r *http.Request) (dashboard.Request, error) {
	query := r.URL.Query()
	g, err := filters.FromQuery(query)
	if err != nil {
		return dashboard.Request{}, middleware.ToAPIError(err)
	}
	return dashboard.Request{Filters: g, State: strings.ToUpper(strings.TrimSpace(query.Get("state")))}, nil
}

// View handles GET /api/v1/pages/{page}/view
func (h *PagesHandler) View(w http.ResponseWriter, r *http.Request) {
	req, err := dashboardRequest(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	result, err := h.dashboard.Compute(r.Context(), pageFrom(r).Key, req)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, result)
}

// Export handles GET /api/v1/pages/{page}/export?format=csv|xlsx. CSV
// carries the table named by ?table, or the first.
func (h *PagesHandler) Export(w http.ResponseWriter, r *http.Request) {
	format, err := exporter.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	req, err := dashboardRequest(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	var buf bytes.Buffer
	result, err := h.dashboard.Export(r.Context(), &buf, pageFrom(r).Key, req, format, r.URL.Query().Get("table"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	contentType := "text/csv; charset=utf-8"
	if format == exporter.FormatXLSX {
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s.%s"`, dashboard.ExportName(result), format))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.WarnContext(r.Context(), "export write failed", slog.String("error", err.Error()))
	}
}

// GetFilters handles GET /api/v1/filters
func (h *PagesHandler) GetFilters(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, h.dashboard.Filters())
}
