package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"riskdash/internal/geo"
	"riskdash/internal/ingest"
	"riskdash/internal/inputs"
	"riskdash/internal/storage"
)

// ErrNoTable is returned when an export names a table the view lacks
var ErrNoTable = errors.New("view has no such table")

// BindingSource returns the datasets bound to the input slots of a page
type BindingSource interface {
	Bindings(ctx context.Context, pageKey string) (map[string]*storage.PersistedDataset, error)
}

// NotReadyError is returned when required inputs are missing or lack
// required headers
type NotReadyError struct {
	Page                   string
	MissingRequiredFiles   []string
	MissingRequiredHeaders map[string][]string
}

func (e *NotReadyError) Error() string {
	var parts []string
	if len(e.MissingRequiredFiles) > 0 {
		parts = append(parts, "missing required files: "+strings.Join(e.MissingRequiredFiles, ", "))
	}
	titles := make([]string, 0, len(e.MissingRequiredHeaders))
	for title := range e.MissingRequiredHeaders {
		titles = append(titles, title)
	}
	sort.Strings(titles)
	for _, title := range titles {
		parts = append(parts, fmt.Sprintf("%s is missing %s", title, strings.Join(e.MissingRequiredHeaders[title], ", ")))
	}
	return fmt.Sprintf("inputs for page %s are not ready: %s", e.Page, strings.Join(parts, "; "))
}

// Inputs are the loaded files of a ready page, keyed by input slot
type Inputs struct {
	Page  *inputs.Page
	Panel *inputs.PanelState
	Files map[string]*ingest.LoadedFile
}

// Slot returns the loaded files of the given slots in argument order,
// skipping empty ones
func (in *Inputs) Slot(keys ...string) []*ingest.LoadedFile {
	var out []*ingest.LoadedFile
	for _, key := range keys {
		if f, ok := in.Files[key]; ok {
			out = append(out, f)
		}
	}
	return out
}

// Engine computes dashboard pages from the datasets bound to them
type Engine struct {
	source   BindingSource
	resolver *geo.Resolver
	options  Options
	logger   *slog.Logger
}

// NewEngine creates an engine. A nil resolver places instruments by state
// only.
func NewEngine(source BindingSource, resolver *geo.Resolver, options Options, logger *slog.Logger) *Engine {
	if resolver == nil {
		resolver = geo.NewResolver(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		source:   source,
		resolver: resolver,
		options:  options,
		logger:   logger.With(slog.String("component", "dashboard")),
	}
}

// Options returns the analytic options in use
func (e *Engine) Options() Options {
	return e.options
}

// Panel evaluates the input slots of a page against its bound datasets
func (e *Engine) Panel(ctx context.Context, pageKey string) (*inputs.Page, *inputs.PanelState, error) {
	page, err := inputs.LookupPage(pageKey)
	if err != nil {
		return nil, nil, err
	}
	bound, err := e.source.Bindings(ctx, page.Key)
	if err != nil {
		return nil, nil, fmt.Errorf("load bindings for %s: %w", page.Key, err)
	}
	uploads := make(map[string]*inputs.Upload, len(bound))
	for key, d := range bound {
		uploads[key] = UploadFromDataset(d)
	}
	return page, inputs.NewPanel(page, uploads), nil
}

// UploadFromDataset describes a registry entry as a slot upload. A file
// that disappeared from disk is reported as an upload error.
func UploadFromDataset(d *storage.PersistedDataset) *inputs.Upload {
	upload := &inputs.Upload{
		FileName:  d.FileName,
		DatasetID: d.ID,
		Path:      d.Path,
		Kind:      d.Kind,
		Columns:   d.Columns,
		RowCount:  d.RowCount,
	}
	if _, err := os.Stat(d.Path); err != nil {
		upload.Err = fmt.Errorf("stored file for '%s' is unavailable: %w", d.FileName, err)
	}
	return upload
}

// Load checks that the page is ready and reads every loaded slot
// concurrently
func (e *Engine) Load(ctx context.Context, pageKey string) (*Inputs, error) {
	page, panel, err := e.Panel(ctx, pageKey)
	if err != nil {
		return nil, err
	}
	if !panel.Ready() {
		return nil, &NotReadyError{
			Page:                   page.Key,
			MissingRequiredFiles:   panel.MissingRequiredFiles(),
			MissingRequiredHeaders: panel.MissingRequiredHeaders(),
		}
	}

	var loaded []*inputs.InputStatus
	for _, s := range panel.Ordered() {
		if s.IsLoaded() {
			loaded = append(loaded, s)
		}
	}

	files := make([]*ingest.LoadedFile, len(loaded))
	g, gctx := errgroup.WithContext(ctx)
	for i, status := range loaded {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			f, err := loadFile(status.Path, status.FileName)
			if err != nil {
				return fmt.Errorf("load %s: %w", status.Config.Title, err)
			}
			files[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	in := &Inputs{Page: page, Panel: panel, Files: make(map[string]*ingest.LoadedFile, len(files))}
	for i, status := range loaded {
		in.Files[status.Config.Key] = files[i]
	}
	e.logger.DebugContext(ctx, "page inputs loaded",
		slog.String("page", page.Key),
		slog.Int("files", len(files)))
	return in, nil
}

func loadFile(path, fileName string) (*ingest.LoadedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if fileName == "" {
		fileName = path
	}
	return ingest.Load(fileName, f)
}
