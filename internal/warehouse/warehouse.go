// Package warehouse runs ad-hoc SQL over registered datasets with an
// in-process DuckDB. Each dataset is exposed as a view reading its cached
// CSV with every column typed as VARCHAR.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver

	"riskdash/internal/storage"
)

// Warehouse wraps a DuckDB connection
type Warehouse struct {
	db     *sql.DB
	logger *slog.Logger
	views  []string
}

// Result is a fully materialized query result
type Result struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Headers implements exporter.Tabular
func (r *Result) Headers() []string { return r.Columns }

// Records implements exporter.Tabular
func (r *Result) Records() [][]string { return r.Rows }

// Open connects to DuckDB; an empty path or ":memory:" is in-memory
func Open(ctx context.Context, path string, logger *slog.Logger) (*Warehouse, error) {
	if path == "" {
		path = ":memory:"
	}
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping duckdb: %w", err)
	}
	return &Warehouse{db: db, logger: logger}, nil
}

// Close releases the connection
func (w *Warehouse) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

var unsafeIdent = regexp.MustCompile(`[^a-z0-9_]+`)

// ViewName is {page}_{input} for bound datasets and {kind}_{id8} otherwise
func ViewName(d storage.PersistedDataset) string {
	name := string(d.Kind) + "_" + d.ShortID()
	if d.PageKey != "" && d.InputKey != "" {
		name = d.PageKey + "_" + d.InputKey
	}
	name = strings.Trim(unsafeIdent.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		name = "t_" + name
	}
	return name
}

// Attach creates one view per dataset and returns the view names in order.
// Later datasets replace earlier views of the same name.
func (w *Warehouse) Attach(ctx context.Context, datasets []storage.PersistedDataset) ([]string, error) {
	var names []string
	for _, d := range datasets {
		abs, err := filepath.Abs(d.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path: %w", err)
		}
		name := ViewName(d)
		query := fmt.Sprintf(
			"CREATE OR REPLACE VIEW %s AS SELECT * FROM read_csv_auto('%s', header=true, all_varchar=true)",
			name, strings.ReplaceAll(abs, "'", "''"),
		)
		if _, err := w.db.ExecContext(ctx, query); err != nil {
			return nil, fmt.Errorf("attach %s: %w", d.FileName, err)
		}
		w.logger.Debug("dataset attached", slog.String("view", name), slog.String("path", abs))
		names = append(names, name)
	}
	w.views = append(w.views, names...)
	return names, nil
}

// Views lists every attached view
func (w *Warehouse) Views() []string {
	return append([]string(nil), w.views...)
}

// Query runs a statement and renders every value as text; NULL is empty
func (w *Warehouse) Query(ctx context.Context, query string) (*Result, error) {
	res := &Result{}
	err := w.Scan(ctx, query,
		func(columns []string) error {
			res.Columns = columns
			return nil
		},
		func(record []string) error {
			res.Rows = append(res.Rows, record)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Scan runs a statement and hands the column names, then each row as text,
// to the callbacks without holding the result in memory
func (w *Warehouse) Scan(ctx context.Context, query string, onColumns, onRow func([]string) error) error {
	rows, err := w.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("read columns: %w", err)
	}
	if err := onColumns(columns); err != nil {
		return err
	}

	values := make([]interface{}, len(columns))
	ptrs := make([]interface{}, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		record := make([]string, len(columns))
		for i, v := range values {
			record[i] = text(v)
		}
		if err := onRow(record); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating rows: %w", err)
	}
	return nil
}

func text(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
