package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "riskdash/internal/errors"
	"riskdash/internal/middleware"
	"riskdash/internal/schema"
	"riskdash/internal/storage"
)

// maxListLimit caps GET /api/v1/datasets
const maxListLimit = 500

// DatasetsHandler serves the dataset registry and dry-run detection
type DatasetsHandler struct {
	service      DatasetService
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewDatasetsHandler creates a datasets handler
func NewDatasetsHandler(service DatasetService, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *DatasetsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DatasetsHandler{
		service:      service,
		logger:       logger.With(slog.String("handler", "datasets")),
		errorHandler: errorHandler,
	}
}

// Routes returns the dataset routes
func (h *DatasetsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListDatasets)
	r.Get("/{id}", h.GetDataset)
	r.Delete("/{id}", h.DeleteDataset)
	return r
}

// ListDatasets handles GET /api/v1/datasets?page=&kind=&limit=
func (h *DatasetsHandler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := storage.ListFilter{PageKey: query.Get("page")}

	if raw := query.Get("kind"); raw != "" {
		kind := schema.Kind(raw)
		if !kind.Valid() {
			h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(fmt.Errorf("unknown dataset kind %q", raw)))
			return
		}
		filter.Kind = kind
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxListLimit {
			h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(
				fmt.Errorf("limit must be between 1 and %d", maxListLimit)))
			return
		}
		filter.Limit = limit
	}

	datasets, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, datasets)
}

// GetDataset handles GET /api/v1/datasets/{id}
func (h *DatasetsHandler) GetDataset(w http.ResponseWriter, r *http.Request) {
	dataset, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, dataset)
}

// DeleteDataset handles DELETE /api/v1/datasets/{id}. Bindings to the
// dataset go with it.
func (h *DatasetsHandler) DeleteDataset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if err := h.service.Delete(ctx, id); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.logger.InfoContext(ctx, "dataset deleted",
		slog.String("request_id", middleware.GetRequestID(ctx)),
		slog.String("dataset_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// Detect handles POST /api/v1/detect. The file is classified and nothing
// is stored.
func (h *DatasetsHandler) Detect(w http.ResponseWriter, r *http.Request) {
	fileName, content, err := uploadedFile(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	result, err := h.service.Detect(r.Context(), fileName, content)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, result)
}
