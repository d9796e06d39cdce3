package ingest

import (
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"20060102",
	"2006/01/02",
	"2006-01",
}

// ParseFloat reads a numeric cell. Thousands separators and currency symbols
// are ignored, a trailing percent sign divides by 100, and accounting-style
// parentheses mean negative.
func ParseFloat(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	switch strings.ToLower(s) {
	case "na", "n/a", "nan", "null", "none", "-":
		return 0, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}
	percent := false
	if strings.HasSuffix(s, "%") {
		percent = true
		s = strings.TrimSuffix(s, "%")
	}
	s = strings.NewReplacer(",", "", "$", "", " ", "").Replace(s)

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if percent {
		v /= 100
	}
	if negative {
		v = -v
	}
	return v, true
}

// ParseDate reads a date cell in any of the layouts seen in bank extracts
func ParseDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// ParseDates parses a column and drops cells that are not dates
func ParseDates(values []string) []time.Time {
	out := make([]time.Time, 0, len(values))
	for _, v := range values {
		if t, ok := ParseDate(v); ok {
			out = append(out, t)
		}
	}
	return out
}

// DateRange returns the earliest and latest of a set of dates
func DateRange(dates []time.Time) (min, max time.Time, ok bool) {
	if len(dates) == 0 {
		return time.Time{}, time.Time{}, false
	}
	min, max = dates[0], dates[0]
	for _, d := range dates[1:] {
		if d.Before(min) {
			min = d
		}
		if d.After(max) {
			max = d
		}
	}
	return min, max, true
}

// QuarterLabel formats the calendar quarter of t as "2023Q2"
func QuarterLabel(t time.Time) string {
	return strconv.Itoa(t.Year()) + "Q" + strconv.Itoa((int(t.Month())-1)/3+1)
}

// MonthsBetween counts whole calendar months from a to b, ignoring days
func MonthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}
