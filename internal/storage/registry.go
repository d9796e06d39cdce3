package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"riskdash/internal/schema"
)

// ErrNotFound is returned when a dataset or binding does not exist
var ErrNotFound = errors.New("not found")

// PersistedDataset is an uploaded file recorded in the registry
type PersistedDataset struct {
	ID              string            `json:"id"`
	PageKey         string            `json:"page_key,omitempty"`
	InputKey        string            `json:"input_key,omitempty"`
	Kind            schema.Kind       `json:"kind"`
	FileName        string            `json:"file_name"`
	Path            string            `json:"path"`
	SHA256          string            `json:"sha256"`
	RowCount        int               `json:"row_count"`
	Columns         []string          `json:"columns"`
	SelectedColumns map[string]string `json:"selected_columns,omitempty"`
	Diagnostics     []string          `json:"diagnostics,omitempty"`
	Description     string            `json:"description,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// ShortID is the first eight characters of the identifier
func (d *PersistedDataset) ShortID() string {
	if len(d.ID) <= 8 {
		return d.ID
	}
	return d.ID[:8]
}

// ListFilter narrows List; zero values match everything
type ListFilter struct {
	PageKey string
	Kind    schema.Kind
	Limit   int
}

// Registry persists datasets and the page input slots they are bound to
type Registry struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open opens (creating if needed) the registry database and applies
// migrations. The database runs in WAL mode with foreign keys enforced.
func Open(path string, busyTimeout time.Duration, logger *slog.Logger) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}
	cleanPath := filepath.Clean(path)
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)",
		cleanPath, busyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := Migrate(db, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	logger.Info("dataset registry opened", slog.String("path", cleanPath))
	return &Registry{db: db, path: cleanPath, logger: logger}, nil
}

// Close releases the database
func (r *Registry) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Ping checks the database connection
func (r *Registry) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Path is the database file
func (r *Registry) Path() string {
	return r.path
}

// Add records a dataset, assigning an ID and creation time when unset
func (r *Registry) Add(ctx context.Context, d *PersistedDataset) error {
	if d.Kind == "" {
		return fmt.Errorf("dataset kind is required")
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	columns, err := json.Marshal(nonNil(d.Columns))
	if err != nil {
		return fmt.Errorf("encode columns: %w", err)
	}
	selected := d.SelectedColumns
	if selected == nil {
		selected = map[string]string{}
	}
	selectedJSON, err := json.Marshal(selected)
	if err != nil {
		return fmt.Errorf("encode selected columns: %w", err)
	}
	diagnostics, err := json.Marshal(nonNil(d.Diagnostics))
	if err != nil {
		return fmt.Errorf("encode diagnostics: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO datasets (
	id, page_key, input_key, kind, file_name, path, sha256, row_count,
	columns, selected_columns, diagnostics, description, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		d.ID, d.PageKey, d.InputKey, string(d.Kind), d.FileName, d.Path, d.SHA256, d.RowCount,
		string(columns), string(selectedJSON), string(diagnostics), d.Description,
		d.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert dataset: %w", err)
	}
	r.logger.Debug("dataset added",
		slog.String("id", d.ID),
		slog.String("kind", string(d.Kind)),
		slog.String("file", d.FileName))
	return nil
}

const selectDataset = `
SELECT d.id, d.page_key, d.input_key, d.kind, d.file_name, d.path, d.sha256, d.row_count,
	d.columns, d.selected_columns, d.diagnostics, d.description, d.created_at
FROM datasets d`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDataset(row scanner) (*PersistedDataset, error) {
	var d PersistedDataset
	var kind, columns, selected, diagnostics string
	var createdAt int64
	if err := row.Scan(&d.ID, &d.PageKey, &d.InputKey, &kind, &d.FileName, &d.Path, &d.SHA256, &d.RowCount,
		&columns, &selected, &diagnostics, &d.Description, &createdAt); err != nil {
		return nil, err
	}
	d.Kind = schema.Kind(kind)
	d.CreatedAt = time.UnixMilli(createdAt).UTC()
	if err := json.Unmarshal([]byte(columns), &d.Columns); err != nil {
		return nil, fmt.Errorf("decode columns: %w", err)
	}
	if err := json.Unmarshal([]byte(selected), &d.SelectedColumns); err != nil {
		return nil, fmt.Errorf("decode selected columns: %w", err)
	}
	if err := json.Unmarshal([]byte(diagnostics), &d.Diagnostics); err != nil {
		return nil, fmt.Errorf("decode diagnostics: %w", err)
	}
	return &d, nil
}

// Get loads one dataset
func (r *Registry) Get(ctx context.Context, id string) (*PersistedDataset, error) {
	d, err := scanDataset(r.db.QueryRowContext(ctx, selectDataset+` WHERE d.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("dataset %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get dataset: %w", err)
	}
	return d, nil
}

// FindByDigest returns the newest dataset with the given content digest
func (r *Registry) FindByDigest(ctx context.Context, sha string) (*PersistedDataset, error) {
	d, err := scanDataset(r.db.QueryRowContext(ctx,
		selectDataset+` WHERE d.sha256 = ? ORDER BY d.created_at DESC LIMIT 1`, sha))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("dataset with digest %s: %w", sha, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find dataset: %w", err)
	}
	return d, nil
}

// List returns datasets newest first
func (r *Registry) List(ctx context.Context, filter ListFilter) ([]PersistedDataset, error) {
	query := selectDataset + ` WHERE 1 = 1`
	var args []interface{}
	if filter.PageKey != "" {
		query += ` AND d.page_key = ?`
		args = append(args, filter.PageKey)
	}
	if filter.Kind != "" {
		query += ` AND d.kind = ?`
		args = append(args, string(filter.Kind))
	}
	query += ` ORDER BY d.created_at DESC, d.id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer rows.Close()

	var out []PersistedDataset
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dataset: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// Delete removes a dataset and any binding to it
func (r *Registry) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM datasets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete dataset: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete dataset: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("dataset %s: %w", id, ErrNotFound)
	}
	return nil
}

// Bind makes a dataset the current input of a page slot, replacing any
// earlier binding
func (r *Registry) Bind(ctx context.Context, pageKey, inputKey, datasetID string) error {
	if _, err := r.Get(ctx, datasetID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO bindings (page_key, input_key, dataset_id, bound_at) VALUES (?, ?, ?, ?)
ON CONFLICT (page_key, input_key) DO UPDATE SET dataset_id = excluded.dataset_id, bound_at = excluded.bound_at
`, pageKey, inputKey, datasetID, time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("bind dataset: %w", err)
	}
	return nil
}

// Unbind clears a page slot
func (r *Registry) Unbind(ctx context.Context, pageKey, inputKey string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM bindings WHERE page_key = ? AND input_key = ?`, pageKey, inputKey)
	if err != nil {
		return fmt.Errorf("unbind dataset: %w", err)
	}
	return nil
}

// GetBinding returns the dataset bound to a page slot
func (r *Registry) GetBinding(ctx context.Context, pageKey, inputKey string) (*PersistedDataset, error) {
	d, err := scanDataset(r.db.QueryRowContext(ctx,
		selectDataset+` JOIN bindings b ON b.dataset_id = d.id WHERE b.page_key = ? AND b.input_key = ?`,
		pageKey, inputKey))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("binding %s/%s: %w", pageKey, inputKey, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get binding: %w", err)
	}
	return d, nil
}

// Bindings returns every bound dataset of a page keyed by input
func (r *Registry) Bindings(ctx context.Context, pageKey string) (map[string]*PersistedDataset, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT b.input_key, `+strings.TrimPrefix(strings.TrimSpace(selectDataset), "SELECT ")+
			` JOIN bindings b ON b.dataset_id = d.id WHERE b.page_key = ?`, pageKey)
	if err != nil {
		return nil, fmt.Errorf("list bindings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*PersistedDataset)
	for rows.Next() {
		var input string
		d, err := scanDataset(prefixScanner{rows: rows, first: &input})
		if err != nil {
			return nil, fmt.Errorf("scan binding: %w", err)
		}
		out[input] = d
	}
	return out, rows.Err()
}

// prefixScanner scans one leading column before the dataset columns
type prefixScanner struct {
	rows  *sql.Rows
	first interface{}
}

func (p prefixScanner) Scan(dest ...interface{}) error {
	return p.rows.Scan(append([]interface{}{p.first}, dest...)...)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
