package errors

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/render"
)

// APIError represents a structured API error response
type APIError struct {
	StatusCode int         `json:"status_code"`
	ErrorCode  string      `json:"error_code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// Render implements the render.Renderer interface for chi/render
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// FieldError is one failed field of a request
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// New creates a new APIError with the given parameters
func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
	}
}

// NewWithDetails creates a new APIError with additional details
func NewWithDetails(statusCode int, errorCode, message string, details interface{}) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
		Details:    details,
	}
}

// Error codes
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeNotFound         = "NOT_FOUND"
	CodeDetectionFailed  = "DETECTION_FAILED"
	CodeInputsNotReady   = "INPUTS_NOT_READY"
	CodeCoverageFailed   = "COVERAGE_FAILED"
	CodePayloadTooLarge  = "PAYLOAD_TOO_LARGE"
	CodeQueueFull        = "QUEUE_FULL"
	CodeRateLimit        = "RATE_LIMIT_EXCEEDED"
	CodeInternal         = "INTERNAL_SERVER_ERROR"
	CodeUnavailable      = "SERVICE_UNAVAILABLE"
)

var (
	ErrInvalidRequest     = New(http.StatusBadRequest, CodeInvalidRequest, "Invalid request format")
	ErrMissingFile        = New(http.StatusBadRequest, CodeInvalidRequest, "Multipart field 'file' is required")
	ErrNotFound           = New(http.StatusNotFound, CodeNotFound, "Resource not found")
	ErrRateLimitExceeded  = New(http.StatusTooManyRequests, CodeRateLimit, "Rate limit exceeded")
	ErrInternalServer     = New(http.StatusInternalServerError, CodeInternal, "Internal server error")
	ErrServiceUnavailable = New(http.StatusServiceUnavailable, CodeUnavailable, "Service temporarily unavailable")
	ErrQueueFull          = New(http.StatusServiceUnavailable, CodeQueueFull, "Job queue is full, try again later")
)

// InvalidRequestWithError creates an invalid request error with details
func InvalidRequestWithError(err error) *APIError {
	return NewWithDetails(http.StatusBadRequest, CodeInvalidRequest, "Invalid request format", err.Error())
}

// NewValidationErrors reports every failed request field
func NewValidationErrors(fields []FieldError) *APIError {
	return NewWithDetails(http.StatusBadRequest, CodeValidationFailed, "Request validation failed", fields)
}

// NotFoundError creates a not found error naming the resource
func NotFoundError(resource string) *APIError {
	return NewWithDetails(http.StatusNotFound, CodeNotFound, fmt.Sprintf("%s not found", resource), resource)
}

// PayloadTooLarge rejects uploads above the configured limit
func PayloadTooLarge(limit int64) *APIError {
	return NewWithDetails(http.StatusRequestEntityTooLarge, CodePayloadTooLarge,
		fmt.Sprintf("Upload exceeds the %d byte limit", limit), map[string]int64{"limit_bytes": limit})
}

// DetectionDetails explains an upload whose dataset kind could not be determined
type DetectionDetails struct {
	FileName  string              `json:"file_name"`
	BestGuess string              `json:"best_guess,omitempty"`
	Missing   map[string][]string `json:"missing_required"`
}

// DetectionFailed reports a file that matched no dataset kind
func DetectionFailed(message string, details DetectionDetails) *APIError {
	return NewWithDetails(http.StatusUnprocessableEntity, CodeDetectionFailed, message, details)
}

// ReadinessDetails lists what a page still needs before it can compute
type ReadinessDetails struct {
	Page                   string              `json:"page"`
	MissingRequiredFiles   []string            `json:"missing_required_files,omitempty"`
	MissingRequiredHeaders map[string][]string `json:"missing_required_headers,omitempty"`
}

// InputsNotReady rejects a computation whose required inputs are missing
func InputsNotReady(details ReadinessDetails) *APIError {
	return NewWithDetails(http.StatusConflict, CodeInputsNotReady,
		fmt.Sprintf("Inputs for page '%s' are not ready", details.Page), details)
}

// CoverageFailed reports input data that does not cover what a view needs
func CoverageFailed(view string, problems []string) *APIError {
	return NewWithDetails(http.StatusUnprocessableEntity, CodeCoverageFailed,
		fmt.Sprintf("Inputs for '%s' failed validation", view), problems)
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Status string    `json:"status"`
	Error  *APIError `json:"error"`
}

// NewErrorResponse creates a new error response
func NewErrorResponse(err *APIError) *ErrorResponse {
	return &ErrorResponse{Status: "error", Error: err}
}

// Render implements the render.Renderer interface
func (e *ErrorResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return e.Error.Render(w, r)
}

// WriteError writes an error response without chi/render, for code that
// runs outside the router
func WriteError(w http.ResponseWriter, err *APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	json.NewEncoder(w).Encode(NewErrorResponse(err))
}
