package analytics

import "strings"

// ValidationError lists the reasons a view cannot be computed from its inputs
type ValidationError struct {
	View     string   `json:"view"`
	Problems []string `json:"problems"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return e.View + ": " + strings.Join(e.Problems, "; ")
}

func validationError(view string, problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{View: view, Problems: problems}
}
