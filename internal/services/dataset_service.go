package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"riskdash/internal/dashboard"
	apierrors "riskdash/internal/errors"
	"riskdash/internal/files"
	"riskdash/internal/infrastructure"
	"riskdash/internal/ingest"
	"riskdash/internal/inputs"
	"riskdash/internal/schema"
	"riskdash/internal/storage"
)

// DatasetService registers uploaded files and binds them to page inputs
type DatasetService struct {
	registry  *storage.Registry
	cache     *storage.UploadCache
	metrics   *infrastructure.BusinessMetrics
	maxUpload int64
	logger    *slog.Logger
}

// DetectResult is the outcome of a dry-run detection
type DetectResult struct {
	FileName  string            `json:"file_name"`
	Detection *ingest.Detection `json:"detection"`
	Headers   []string          `json:"identifying_headers"`
}

// NewDatasetService creates a dataset service. A maxUpload of zero
// accepts files of any size.
func NewDatasetService(registry *storage.Registry, cache *storage.UploadCache, metrics *infrastructure.BusinessMetrics, maxUpload int64, logger *slog.Logger) *DatasetService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DatasetService{
		registry:  registry,
		cache:     cache,
		metrics:   metrics,
		maxUpload: maxUpload,
		logger:    logger.With(slog.String("service", "datasets")),
	}
}

// Detect classifies content without storing it
func (s *DatasetService) Detect(ctx context.Context, fileName string, content []byte) (*DetectResult, error) {
	detection, err := s.detect(ctx, fileName, content)
	if err != nil {
		return nil, toAPIError(err)
	}
	spec, err := schema.Lookup(detection.Kind)
	if err != nil {
		return nil, err
	}
	return &DetectResult{
		FileName:  fileName,
		Detection: detection,
		Headers:   detection.IdentifyingHeaders(spec),
	}, nil
}

func (s *DatasetService) detect(ctx context.Context, fileName string, content []byte) (*ingest.Detection, error) {
	if !files.IsDataFile(fileName) {
		return nil, fmt.Errorf("%w: %s", ErrNotADataFile, fileName)
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, ErrEmptyUpload
	}
	if s.maxUpload > 0 && int64(len(content)) > s.maxUpload {
		return nil, apierrors.PayloadTooLarge(s.maxUpload)
	}
	headers, err := ingest.ReadHeaders(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("read headers of %s: %w", fileName, err)
	}
	detection, err := ingest.Detect(fileName, headers)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "detected dataset",
		slog.String("dataset", string(detection.Kind)),
		slog.String("file", fileName),
		slog.Int("score", detection.Score),
		slog.Any("header_sample", detection.HeaderSample))
	return detection, nil
}

// Upload stores a file for a page input and binds it. A file detected as
// another dataset kind is still bound; the returned status carries the
// mismatch and the page stays not ready.
func (s *DatasetService) Upload(ctx context.Context, pageKey, inputKey, fileName string, content []byte) (*inputs.InputStatus, error) {
	logger := infrastructure.LoggerWithContext(ctx).With(
		slog.String("service", "datasets"),
		slog.String("page", pageKey),
		slog.String("input", inputKey),
		slog.String("file", fileName))

	page, err := inputs.LookupPage(pageKey)
	if err != nil {
		return nil, err
	}
	slot, ok := page.Input(inputKey)
	if !ok {
		return nil, toAPIError(unknownInput(pageKey, inputKey))
	}

	detection, err := s.detect(ctx, fileName, content)
	if err != nil {
		logger.WarnContext(ctx, "upload rejected", slog.String("error", err.Error()))
		return nil, toAPIError(err)
	}

	d, err := s.register(ctx, pageKey, inputKey, fileName, content, detection)
	if err != nil {
		return nil, err
	}
	if err := s.registry.Bind(ctx, pageKey, inputKey, d.ID); err != nil {
		return nil, err
	}

	status := inputs.Evaluate(*slot, dashboard.UploadFromDataset(d))
	s.metrics.RecordUpload(ctx, string(d.Kind), int64(len(content)))
	logger.InfoContext(ctx, "dataset bound",
		slog.String("dataset_id", d.ID),
		slog.String("kind", string(d.Kind)),
		slog.Int("rows", d.RowCount),
		slog.Bool("ready", status.IsReady()))
	return status, nil
}

// Ingest registers a file without binding it to a page
func (s *DatasetService) Ingest(ctx context.Context, fileName string, content []byte) (*storage.PersistedDataset, error) {
	detection, err := s.detect(ctx, fileName, content)
	if err != nil {
		return nil, toAPIError(err)
	}
	d, err := s.register(ctx, "", "", fileName, content, detection)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordUpload(ctx, string(d.Kind), int64(len(content)))
	s.logger.InfoContext(ctx, "dataset ingested",
		slog.String("dataset_id", d.ID),
		slog.String("kind", string(d.Kind)),
		slog.String("file", fileName))
	return d, nil
}

// IngestFile registers a file from disk without binding it
func (s *DatasetService) IngestFile(ctx context.Context, path string) (*storage.PersistedDataset, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return s.Ingest(ctx, filepath.Base(path), content)
}

// register caches content and records it, reusing an identical dataset
// already recorded for the same slot
func (s *DatasetService) register(ctx context.Context, pageKey, inputKey, fileName string, content []byte, detection *ingest.Detection) (*storage.PersistedDataset, error) {
	digest := storage.Digest(content)
	existing, err := s.registry.FindByDigest(ctx, digest)
	switch {
	case err == nil && existing.PageKey == pageKey && existing.InputKey == inputKey && existing.Kind == detection.Kind:
		if _, statErr := os.Stat(existing.Path); statErr == nil {
			return existing, nil
		}
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}

	path, _, err := s.cache.Store(pageKey, inputKey, fileName, content)
	if err != nil {
		return nil, err
	}
	loaded, err := ingest.LoadBytes(fileName, content)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", fileName, err)
	}

	spec, err := schema.Lookup(detection.Kind)
	if err != nil {
		return nil, err
	}
	d := &storage.PersistedDataset{
		PageKey:     pageKey,
		InputKey:    inputKey,
		Kind:        detection.Kind,
		FileName:    fileName,
		Path:        path,
		SHA256:      digest,
		RowCount:    loaded.RowCount(),
		Columns:     loaded.Table.Columns,
		Description: spec.DisplayName,
		Diagnostics: []string{
			fmt.Sprintf("detection score %d", detection.Score),
			"identifying headers: " + strings.Join(detection.IdentifyingHeaders(spec), ", "),
		},
	}
	if pageKey != "" {
		if page, err := inputs.LookupPage(pageKey); err == nil {
			if slot, ok := page.Input(inputKey); ok {
				d.SelectedColumns = inputs.Evaluate(*slot, dashboard.UploadFromDataset(d)).SelectedColumns
			}
		}
	}
	if err := s.registry.Add(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Panel returns the readiness of every input on a page
func (s *DatasetService) Panel(ctx context.Context, pageKey string) (*inputs.PanelState, error) {
	page, err := inputs.LookupPage(pageKey)
	if err != nil {
		return nil, err
	}
	bound, err := s.registry.Bindings(ctx, page.Key)
	if err != nil {
		return nil, err
	}
	uploads := make(map[string]*inputs.Upload, len(bound))
	for key, d := range bound {
		uploads[key] = dashboard.UploadFromDataset(d)
	}
	return inputs.NewPanel(page, uploads), nil
}

// Unbind clears a page input, keeping the dataset
func (s *DatasetService) Unbind(ctx context.Context, pageKey, inputKey string) error {
	page, err := inputs.LookupPage(pageKey)
	if err != nil {
		return err
	}
	if _, ok := page.Input(inputKey); !ok {
		return toAPIError(unknownInput(pageKey, inputKey))
	}
	return s.registry.Unbind(ctx, pageKey, inputKey)
}

// List returns recorded datasets, newest first
func (s *DatasetService) List(ctx context.Context, filter storage.ListFilter) ([]storage.PersistedDataset, error) {
	datasets, err := s.registry.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if datasets == nil {
		datasets = []storage.PersistedDataset{}
	}
	return datasets, nil
}

// Get returns one dataset
func (s *DatasetService) Get(ctx context.Context, id string) (*storage.PersistedDataset, error) {
	return s.registry.Get(ctx, id)
}

// Delete removes a dataset, its bindings and its cached file
func (s *DatasetService) Delete(ctx context.Context, id string) error {
	d, err := s.registry.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.registry.Delete(ctx, id); err != nil {
		return err
	}

	// the cached file is shared when the same content was registered twice
	if other, err := s.registry.FindByDigest(ctx, d.SHA256); err == nil && other.Path == d.Path {
		return nil
	}
	if err := s.cache.Remove(d.Path); err != nil {
		s.logger.WarnContext(ctx, "cached file not removed",
			slog.String("dataset_id", id),
			slog.String("error", err.Error()))
	}
	s.logger.InfoContext(ctx, "dataset deleted", slog.String("dataset_id", id))
	return nil
}
