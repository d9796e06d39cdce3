package exporter

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// maxSheetName is Excel's sheet name limit
const maxSheetName = 31

// BuildWorkbook lays a bundle out as one sheet per table with a bold header
// row. Numeric cells are written as numbers.
func BuildWorkbook(bundle Bundle) (*excelize.File, error) {
	f := excelize.NewFile()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	used := make(map[string]bool)
	for i, sheet := range bundle.Sheets {
		name := sheetName(sheet.Name, used)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to add sheet %s: %w", name, err)
		}

		if err := writeSheet(f, name, sheet.Data, bold); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

func writeSheet(f *excelize.File, name string, data Tabular, headerStyle int) error {
	headers := data.Headers()
	if len(headers) > 0 {
		row := make([]interface{}, len(headers))
		for i, h := range headers {
			row[i] = h
		}
		if err := f.SetSheetRow(name, "A1", &row); err != nil {
			return fmt.Errorf("failed to write header of %s: %w", name, err)
		}
		last, err := excelize.CoordinatesToCellName(len(headers), 1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(name, "A1", last, headerStyle); err != nil {
			return fmt.Errorf("failed to style header of %s: %w", name, err)
		}
	}

	for r, record := range data.Records() {
		row := make([]interface{}, len(record))
		for i, cell := range record {
			if v, err := strconv.ParseFloat(cell, 64); err == nil {
				row[i] = v
			} else {
				row[i] = cell
			}
		}
		cellName, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(name, cellName, &row); err != nil {
			return fmt.Errorf("failed to write row %d of %s: %w", r, name, err)
		}
	}
	return nil
}

func sheetName(label string, used map[string]bool) string {
	base := SafeName(label)
	if len(base) > maxSheetName {
		base = base[:maxSheetName]
	}
	name := base
	for n := 2; used[name]; n++ {
		suffix := "_" + strconv.Itoa(n)
		trimmed := base
		if len(trimmed)+len(suffix) > maxSheetName {
			trimmed = trimmed[:maxSheetName-len(suffix)]
		}
		name = trimmed + suffix
	}
	used[name] = true
	return name
}

// WriteWorkbookTo streams a bundle as XLSX
func WriteWorkbookTo(w io.Writer, bundle Bundle) error {
	f, err := BuildWorkbook(bundle)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// WriteWorkbook saves a bundle as an XLSX file
func WriteWorkbook(path string, bundle Bundle) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := BuildWorkbook(bundle)
	if err != nil {
		return err
	}
	defer f.Close()

	slog.Info("Writing XLSX workbook",
		slog.String("full_path", path),
		slog.Int("sheet_count", len(bundle.Sheets)))

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}
