package dashboard

import (
	"fmt"
	"io"
	"path/filepath"

	"riskdash/internal/config"
	"riskdash/internal/exporter"
)

// ExportName is the base file name of a result export
func ExportName(result *Result) string {
	return exporter.SafeName(result.Page + "_" + result.ComputedAt.Format("20060102T150405Z"))
}

// Export writes a result into dir under name. CSV writes one file per
// table; XLSX writes a single workbook.
func Export(result *Result, format exporter.Format, dir, name string) ([]string, error) {
	bundle := result.Bundle()
	if name != "" {
		bundle.Name = name
	}
	switch format {
	case exporter.FormatXLSX:
		path := filepath.Join(dir, exporter.SafeName(bundle.Name)+".xlsx")
		if err := exporter.WriteWorkbook(path, bundle); err != nil {
			return nil, err
		}
		return []string{path}, nil
	case exporter.FormatCSV:
		writer := exporter.NewCSVWriter(&config.Paths{ExportsDir: dir})
		return writer.WriteBundle(bundle, true)
	}
	return nil, fmt.Errorf("unsupported export format %q", format)
}

// WriteTo streams a result. CSV carries one table, chosen by name or the
// first; XLSX carries every table.
func WriteTo(w io.Writer, result *Result, format exporter.Format, table string) error {
	bundle := result.Bundle()
	switch format {
	case exporter.FormatXLSX:
		return exporter.WriteWorkbookTo(w, bundle)
	case exporter.FormatCSV:
		sheet, ok := bundle.Sheet(table)
		if !ok {
			return fmt.Errorf("%w: table %q", ErrNoTable, table)
		}
		return exporter.WriteCSVTo(w, sheet.Data, true)
	}
	return fmt.Errorf("unsupported export format %q", format)
}
