package exporter

import (
	"fmt"
	"regexp"
	"strings"
)

// Tabular is anything that can be written as a header row and records
type Tabular interface {
	Headers() []string
	Records() [][]string
}

// Table is a ready-made Tabular
type Table struct {
	Columns []string
	Rows    [][]string
}

// Headers implements Tabular
func (t Table) Headers() []string { return t.Columns }

// Records implements Tabular
func (t Table) Records() [][]string { return t.Rows }

// Sheet is a named table within a bundle
type Sheet struct {
	Name string
	Data Tabular
}

// Bundle groups the tables of one page export
type Bundle struct {
	Name   string
	Sheets []Sheet
}

// Add appends a named table
func (b *Bundle) Add(name string, data Tabular) {
	b.Sheets = append(b.Sheets, Sheet{Name: name, Data: data})
}

// Sheet returns the table whose name or safe name matches; an empty name
// returns the first table
func (b *Bundle) Sheet(name string) (Sheet, bool) {
	if len(b.Sheets) == 0 {
		return Sheet{}, false
	}
	if name == "" {
		return b.Sheets[0], true
	}
	for _, s := range b.Sheets {
		if s.Name == name || SafeName(s.Name) == SafeName(name) {
			return s, true
		}
	}
	return Sheet{}, false
}

// Format identifies an export file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts csv or xlsx, case-insensitively
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatCSV, "":
		return FormatCSV, nil
	case FormatXLSX, "excel":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("unsupported export format %q", raw)
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// SafeName reduces a label to a file and sheet name friendly token
func SafeName(label string) string {
	s := strings.Trim(unsafeName.ReplaceAllString(strings.TrimSpace(label), "_"), "_")
	if s == "" {
		return "table"
	}
	return strings.ToLower(s)
}
