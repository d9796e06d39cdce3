package ingest

import "strings"

// Table is a CSV held as strings. Values are never coerced on load, so blank
// cells stay blank rather than becoming NaN or zero.
type Table struct {
	Columns []string
	Rows    [][]string
	index   map[string]int
}

// NewTable builds a table and pads or truncates rows to the header width
func NewTable(columns []string, rows [][]string) *Table {
	t := &Table{Columns: columns, Rows: rows}
	for i, row := range t.Rows {
		switch {
		case len(row) < len(columns):
			padded := make([]string, len(columns))
			copy(padded, row)
			t.Rows[i] = padded
		case len(row) > len(columns):
			t.Rows[i] = row[:len(columns)]
		}
	}
	t.reindex()
	return t
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		if _, exists := t.index[c]; !exists {
			t.index[c] = i
		}
	}
}

// Len returns the number of data rows
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Index returns the position of a column, or -1
func (t *Table) Index(column string) int {
	if t == nil || column == "" {
		return -1
	}
	if i, ok := t.index[column]; ok {
		return i
	}
	return -1
}

// Has reports whether the column exists
func (t *Table) Has(column string) bool {
	return t.Index(column) >= 0
}

// Value returns the trimmed cell at row/column, or "" when the column is absent
func (t *Table) Value(row int, column string) string {
	i := t.Index(column)
	if i < 0 || row < 0 || row >= len(t.Rows) {
		return ""
	}
	return strings.TrimSpace(t.Rows[row][i])
}

// Column returns every value of a column
func (t *Table) Column(column string) []string {
	i := t.Index(column)
	if i < 0 {
		return nil
	}
	out := make([]string, len(t.Rows))
	for r, row := range t.Rows {
		out[r] = strings.TrimSpace(row[i])
	}
	return out
}

// Select projects the table onto the named columns, skipping unknown ones
func (t *Table) Select(columns ...string) *Table {
	keep := make([]string, 0, len(columns))
	positions := make([]int, 0, len(columns))
	for _, c := range columns {
		if i := t.Index(c); i >= 0 {
			keep = append(keep, c)
			positions = append(positions, i)
		}
	}
	rows := make([][]string, len(t.Rows))
	for r, row := range t.Rows {
		projected := make([]string, len(positions))
		for j, i := range positions {
			projected[j] = row[i]
		}
		rows[r] = projected
	}
	return NewTable(keep, rows)
}

// Rename returns a copy with columns renamed through mapping (old -> new)
func (t *Table) Rename(mapping map[string]string) *Table {
	columns := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		if renamed, ok := mapping[c]; ok {
			columns[i] = renamed
		} else {
			columns[i] = c
		}
	}
	return NewTable(columns, t.Rows)
}
