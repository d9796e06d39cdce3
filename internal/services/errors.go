package services

import (
	"errors"
	"fmt"
	"net/http"

	"riskdash/internal/dashboard"
	apierrors "riskdash/internal/errors"
	"riskdash/internal/operations"
)

// Service errors
var (
	// Upload errors
	ErrEmptyUpload   = errors.New("uploaded file is empty")
	ErrUnknownInput  = errors.New("unknown input")
	ErrNotADataFile  = errors.New("only CSV files are accepted")
	ErrInvalidFormat = errors.New("unsupported export format")

	// Request errors
	ErrInvalidFilters = errors.New("invalid filters")
)

// toAPIError maps domain errors onto API errors. Errors the central
// handler already understands pass through unchanged.
func toAPIError(err error) error {
	if err == nil {
		return nil
	}

	var notReady *dashboard.NotReadyError
	if errors.As(err, &notReady) {
		return apierrors.InputsNotReady(apierrors.ReadinessDetails{
			Page:                   notReady.Page,
			MissingRequiredFiles:   notReady.MissingRequiredFiles,
			MissingRequiredHeaders: notReady.MissingRequiredHeaders,
		})
	}

	switch {
	case errors.Is(err, ErrEmptyUpload), errors.Is(err, ErrNotADataFile), errors.Is(err, ErrInvalidFormat),
		errors.Is(err, ErrInvalidFilters):
		return apierrors.InvalidRequestWithError(err)
	case errors.Is(err, ErrUnknownInput):
		return apierrors.New(http.StatusNotFound, apierrors.CodeNotFound, err.Error())
	case errors.Is(err, dashboard.ErrNoTable):
		return apierrors.New(http.StatusNotFound, apierrors.CodeNotFound, err.Error())
	case errors.Is(err, operations.ErrJobNotFound):
		return apierrors.New(http.StatusNotFound, apierrors.CodeNotFound, err.Error())
	case errors.Is(err, operations.ErrQueueFull):
		return apierrors.ErrQueueFull
	case errors.Is(err, operations.ErrQueueStopped):
		return apierrors.ErrServiceUnavailable
	case errors.Is(err, operations.ErrNotCancellable):
		return apierrors.New(http.StatusConflict, "JOB_NOT_CANCELLABLE", err.Error())
	}
	return err
}

func unknownInput(page, input string) error {
	return fmt.Errorf("%w %q on page %q", ErrUnknownInput, input, page)
}
