package exporter

import (
	"math"
	"strconv"
)

// FormatFloat formats a value for CSV output with the given precision.
// NaN and infinities are written as empty cells.
func FormatFloat(f float64, precision int) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	return strconv.FormatFloat(f, 'f', precision, 64)
}

// FormatInt formats an int for CSV output
func FormatInt(i int) string {
	return strconv.Itoa(i)
}

// FormatBool formats a boolean value for CSV output
func FormatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// FormatOptional writes an optional value, empty when absent
func FormatOptional(v float64, ok bool, precision int) string {
	if !ok {
		return ""
	}
	return FormatFloat(v, precision)
}
