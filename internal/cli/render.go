package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	apierrors "riskdash/internal/errors"
	"riskdash/internal/exporter"
)

// Output formats of the listing commands
const (
	formatTable    = "table"
	formatJSON     = "json"
	formatCSV      = "csv"
	formatMarkdown = "md"
)

func validOutput(format string) error {
	switch format {
	case formatTable, formatJSON, formatCSV, formatMarkdown, "markdown":
		return nil
	}
	return fmt.Errorf("unknown output format %q (table, json, csv, md)", format)
}

// renderTabular writes data in the requested format
func renderTabular(w io.Writer, data exporter.Tabular, format string) error {
	headers := data.Headers()
	records := data.Records()

	switch format {
	case formatJSON:
		rows := make([]map[string]string, 0, len(records))
		for _, rec := range records {
			row := make(map[string]string, len(headers))
			for i, h := range headers {
				if i < len(rec) {
					row[h] = rec[i]
				}
			}
			rows = append(rows, row)
		}
		return writeJSON(w, rows)
	case formatCSV:
		return exporter.WriteCSVTo(w, data, false)
	}

	if len(records) == 0 && format == formatTable {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	t.AppendHeader(header)
	for _, rec := range records {
		row := make(table.Row, len(rec))
		for i, v := range rec {
			row[i] = v
		}
		t.AppendRow(row)
	}

	if format == formatMarkdown || format == "markdown" {
		t.RenderMarkdown()
		return nil
	}
	t.Render()
	_, _ = fmt.Fprintf(w, "(%d rows)\n", len(records))
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describeError adds the details of API errors to their message
func describeError(err error) string {
	var apiErr *apierrors.APIError
	if !errors.As(err, &apiErr) {
		return err.Error()
	}

	switch details := apiErr.Details.(type) {
	case apierrors.ReadinessDetails:
		var parts []string
		if len(details.MissingRequiredFiles) > 0 {
			parts = append(parts, "missing files: "+strings.Join(details.MissingRequiredFiles, ", "))
		}
		inputs := make([]string, 0, len(details.MissingRequiredHeaders))
		for input := range details.MissingRequiredHeaders {
			inputs = append(inputs, input)
		}
		sort.Strings(inputs)
		for _, input := range inputs {
			parts = append(parts, fmt.Sprintf("%s is missing %s", input,
				strings.Join(details.MissingRequiredHeaders[input], ", ")))
		}
		if len(parts) > 0 {
			return apiErr.Message + "; " + strings.Join(parts, "; ")
		}
	case []apierrors.FieldError:
		parts := make([]string, 0, len(details))
		for _, fe := range details {
			parts = append(parts, fe.Field+": "+fe.Message)
		}
		return apiErr.Message + ": " + strings.Join(parts, "; ")
	case string:
		return apiErr.Message + ": " + details
	}
	return apiErr.Message
}
