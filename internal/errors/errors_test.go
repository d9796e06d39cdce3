package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIError_Error(t *testing.T) {
	err := New(http.StatusBadRequest, CodeInvalidRequest, "bad input")
	assert.Equal(t, "bad input", err.Error())
	assert.Nil(t, err.Details)
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *APIError
		wantStatus int
		wantCode   string
	}{
		{"not found", NotFoundError("dataset"), http.StatusNotFound, CodeNotFound},
		{"payload", PayloadTooLarge(10), http.StatusRequestEntityTooLarge, CodePayloadTooLarge},
		{"detection", DetectionFailed("no match", DetectionDetails{FileName: "x.csv"}), http.StatusUnprocessableEntity, CodeDetectionFailed},
		{"inputs", InputsNotReady(ReadinessDetails{Page: "backtest"}), http.StatusConflict, CodeInputsNotReady},
		{"coverage", CoverageFailed("macro_linkage", []string{"short"}), http.StatusUnprocessableEntity, CodeCoverageFailed},
		{"fields", NewValidationErrors([]FieldError{{Field: "format", Message: "oneof"}}), http.StatusBadRequest, CodeValidationFailed},
		{"queue", ErrQueueFull, http.StatusServiceUnavailable, CodeQueueFull},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantStatus, tt.err.StatusCode)
			assert.Equal(t, tt.wantCode, tt.err.ErrorCode)
			assert.NotEmpty(t, tt.err.Message)
		})
	}

	assert.Equal(t, "dataset not found", NotFoundError("dataset").Message)
	assert.Equal(t, "Inputs for page 'backtest' are not ready", InputsNotReady(ReadinessDetails{Page: "backtest"}).Message)
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, NotFoundError("job"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "error", body["status"])
	apiErr := body["error"].(map[string]any)
	assert.Equal(t, CodeNotFound, apiErr["error_code"])
	assert.Equal(t, "job", apiErr["details"])
}

func TestProblemDetails_MarshalJSON(t *testing.T) {
	problem := NewProblemDetails(http.StatusConflict, TypeInputsNotReady, "Conflict", "not ready", "/api/v1/pages/backtest/view").
		WithExtension("trace_id", "abc").
		WithExtension("status", 999)

	data, err := json.Marshal(problem)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, TypeInputsNotReady, body["type"])
	assert.EqualValues(t, http.StatusConflict, body["status"], "standard members win over extensions")
	assert.Equal(t, "abc", body["trace_id"])
	assert.Equal(t, "/api/v1/pages/backtest/view", body["instance"])

	empty, err := json.Marshal(&ProblemDetails{Type: TypeInternal, Status: 500})
	require.NoError(t, err)
	assert.NotContains(t, string(empty), "detail")
}

func TestProblemDetails_WithExtensionNilMap(t *testing.T) {
	problem := &ProblemDetails{}
	problem.WithExtension("a", 1).WithExtension("b", 2)
	assert.Len(t, problem.Extensions, 2)
}

func TestLimitBody(t *testing.T) {
	handler := LimitBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("01234")))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
