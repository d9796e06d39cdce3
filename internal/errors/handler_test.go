package errors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskdash/internal/analytics"
	"riskdash/internal/ingest"
	"riskdash/internal/inputs"
	"riskdash/internal/schema"
	"riskdash/internal/storage"
)

func newTestHandler(includeStack bool) (*ErrorHandler, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewErrorHandler(logger, includeStack), &buf
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestErrorHandler_ErrorToProblem(t *testing.T) {
	h, _ := newTestHandler(false)
	detection := &ingest.DetectionError{
		FileName:  "events.csv",
		BestGuess: schema.MustLookup(schema.KindChargeoff),
		Missing:   []ingest.MissingField{{Field: "instrumentIdentifier", Candidates: []string{"instrumentIdentifier", "instrument_id"}}},
	}

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, TypeTimeout},
		{"api error", NotFoundError("job"), http.StatusNotFound, TypeNotFound},
		{"wrapped api error", fmt.Errorf("compute: %w", InputsNotReady(ReadinessDetails{Page: "backtest"})), http.StatusConflict, TypeInputsNotReady},
		{"analytics validation", fmt.Errorf("view: %w", &analytics.ValidationError{View: "macro_linkage", Problems: []string{"short"}}), http.StatusUnprocessableEntity, TypeCoverageFailed},
		{"detection", detection, http.StatusUnprocessableEntity, TypeDetectionFailed},
		{"unknown page", fmt.Errorf("%w %q", inputs.ErrUnknownPage, "nope"), http.StatusNotFound, TypeUnknownPage},
		{"registry miss", fmt.Errorf("dataset abc: %w", storage.ErrNotFound), http.StatusNotFound, TypeNotFound},
		{"queue full", ErrQueueFull, http.StatusServiceUnavailable, TypeServiceDown},
		{"anything else", fmt.Errorf("disk on fire"), http.StatusInternalServerError, TypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/x", nil)
			problem := h.ErrorToProblem(tt.err, req)
			assert.Equal(t, tt.wantStatus, problem.Status)
			assert.Equal(t, tt.wantType, problem.Type)
			assert.Equal(t, "/api/v1/x", problem.Instance)
		})
	}
}

func TestErrorHandler_HandleError(t *testing.T) {
	h, logs := newTestHandler(false)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/pages/macro_linkage/view", nil)
	h.HandleError(rec, req, &analytics.ValidationError{View: "macro_linkage", Problems: []string{"a", "b"}})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeProblem(t, rec)
	assert.Equal(t, TypeCoverageFailed, body["type"])
	assert.Equal(t, CodeCoverageFailed, body["error_code"])
	assert.Equal(t, []any{"a", "b"}, body["problems"])
	assert.Contains(t, body, "trace_id")
	assert.NotContains(t, body, "stack")
	assert.Contains(t, logs.String(), `"level":"WARN"`)

	rec = httptest.NewRecorder()
	h.HandleError(rec, req, nil)
	assert.Equal(t, 0, rec.Body.Len())
}

func TestErrorHandler_DetectionDetails(t *testing.T) {
	h, _ := newTestHandler(false)
	err := &ingest.DetectionError{
		FileName:  "mystery.csv",
		BestGuess: schema.MustLookup(schema.KindInstrumentResult),
		Missing:   []ingest.MissingField{{Field: "reportingDate", Candidates: []string{"reportingDate"}}},
	}

	rec := httptest.NewRecorder()
	h.HandleError(rec, httptest.NewRequest(http.MethodPost, "/api/v1/detect", nil), err)

	body := decodeProblem(t, rec)
	details := body["details"].(map[string]any)
	assert.Equal(t, "mystery.csv", details["file_name"])
	assert.Equal(t, string(schema.KindInstrumentResult), details["best_guess"])
	assert.Contains(t, details["missing_required"], "reportingDate")
}

func TestErrorHandler_StackOnlyForServerErrors(t *testing.T) {
	h, logs := newTestHandler(true)
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	rec := httptest.NewRecorder()
	h.HandleError(rec, req, NotFoundError("dataset"))
	assert.NotContains(t, decodeProblem(t, rec), "stack")

	rec = httptest.NewRecorder()
	h.HandleError(rec, req, fmt.Errorf("boom"))
	assert.Contains(t, decodeProblem(t, rec), "stack")
	assert.Contains(t, logs.String(), `"level":"ERROR"`)
}

func TestErrorHandler_NotFoundAndMethod(t *testing.T) {
	h, _ := newTestHandler(false)

	rec := httptest.NewRecorder()
	h.NotFound(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.MethodNotAllowed(rec, httptest.NewRequest(http.MethodPatch, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "Method PATCH is not allowed for this endpoint", decodeProblem(t, rec)["detail"])
}

func TestRecoveryMiddleware(t *testing.T) {
	h, logs := newTestHandler(false)
	handler := RecoveryMiddleware(h)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, TypeInternal, decodeProblem(t, rec)["type"])
	assert.Contains(t, logs.String(), "panic recovered")
}
