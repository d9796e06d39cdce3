package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"riskdash/internal/dashboard"
	apierrors "riskdash/internal/errors"
	"riskdash/internal/exporter"
	"riskdash/internal/filters"
	"riskdash/internal/middleware"
	"riskdash/internal/operations"
)

// JobsHandler serves background page computations
type JobsHandler struct {
	service      JobService
	validator    *middleware.Validator
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewJobsHandler creates a jobs handler
func NewJobsHandler(service JobService, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *JobsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobsHandler{
		service:      service,
		validator:    middleware.NewValidator(),
		logger:       logger.With(slog.String("handler", "jobs")),
		errorHandler: errorHandler,
	}
}

// Routes returns the /api/v1/jobs routes
func (h *JobsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListJobs)
	r.Get("/{id}", h.GetJob)
	r.Delete("/{id}", h.CancelJob)
	return r
}

// SubmitJobRequest is the body of POST /api/v1/pages/{page}/jobs. Filters
// start from the defaults; fields present in the body override them.
type SubmitJobRequest struct {
	Filters filters.Global `json:"filters" validate:"-"`
	State   string         `json:"state" validate:"omitempty,len=2,alpha"`
	Format  string         `json:"format" validate:"omitempty,oneof=csv xlsx"`
}

// SubmitJob handles POST /api/v1/pages/{page}/jobs
func (h *JobsHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body := SubmitJobRequest{Filters: filters.Default()}
	if err := h.validator.DecodeJSON(r, &body); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	var format exporter.Format
	if body.Format != "" {
		format = exporter.Format(body.Format)
	}
	page := chi.URLParam(r, "page")
	job, err := h.service.Submit(ctx, page, dashboard.Request{Filters: body.Filters, State: strings.ToUpper(body.State)}, format)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "job submitted",
		slog.String("request_id", middleware.GetRequestID(ctx)),
		slog.String("job_id", job.ID),
		slog.String("page", page))

	w.Header().Set("Location", "/api/v1/jobs/"+job.ID)
	respond(w, r, http.StatusAccepted, job)
}

// GetJob handles GET /api/v1/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, job)
}

// ListJobs handles GET /api/v1/jobs?status=&page=&since=
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := operations.JobFilter{
		Status: operations.JobStatus(query.Get("status")),
		Page:   query.Get("page"),
	}
	if raw := query.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
			return
		}
		filter.Since = since
	}

	jobs, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, jobs)
}

// CancelJob handles DELETE /api/v1/jobs/{id}
func (h *JobsHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, job)
}
