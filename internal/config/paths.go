package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// UploadCacheDirName is the folder under the processed directory holding
// uploaded CSVs
const UploadCacheDirName = "uploaded_csvs"

// Paths contains every resolved application path
type Paths struct {
	BaseDir      string
	DataDir      string
	ProcessedDir string
	UploadsDir   string
	ExportsDir   string
	LogsDir      string
	InboxDir     string

	DatabaseFile  string
	WarehouseFile string
}

// NewPaths resolves the configured directories. Relative entries are joined
// to the base directory, which defaults to the working directory.
func NewPaths(cfg PathsConfig, storage StorageConfig) (*Paths, error) {
	base := cfg.BaseDir
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		base = wd
	}
	base, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}

	resolve := func(dir, fallback string) string {
		if dir == "" {
			dir = fallback
		}
		if filepath.IsAbs(dir) {
			return dir
		}
		return filepath.Join(base, dir)
	}

	p := &Paths{
		BaseDir:      base,
		DataDir:      resolve(cfg.DataDir, "data"),
		ProcessedDir: resolve(cfg.ProcessedDir, "processed"),
		ExportsDir:   resolve(cfg.ExportsDir, "exports"),
		LogsDir:      resolve(cfg.LogsDir, "logs"),
		InboxDir:     resolve(cfg.InboxDir, "inbox"),
	}
	p.UploadsDir = filepath.Join(p.ProcessedDir, UploadCacheDirName)

	p.DatabaseFile = storage.DatabaseFile
	if p.DatabaseFile == "" {
		p.DatabaseFile = "riskdash.db"
	}
	if !filepath.IsAbs(p.DatabaseFile) {
		p.DatabaseFile = filepath.Join(p.DataDir, p.DatabaseFile)
	}
	// An empty warehouse file keeps DuckDB in memory
	if storage.WarehouseFile != "" {
		p.WarehouseFile = storage.WarehouseFile
		if !filepath.IsAbs(p.WarehouseFile) {
			p.WarehouseFile = filepath.Join(p.DataDir, p.WarehouseFile)
		}
	}
	return p, nil
}

// GetPaths resolves the default layout under the working directory, or
// under RISKDASH_PATHS_BASE_DIR when it is set
func GetPaths() (*Paths, error) {
	cfg := Default()
	cfg.Paths.BaseDir = os.Getenv(EnvPrefix + "_PATHS_BASE_DIR")
	return NewPaths(cfg.Paths, cfg.Storage)
}

// EnsureDirectories creates all required directories if they don't exist
func (p *Paths) EnsureDirectories() error {
	directories := []string{
		p.DataDir,
		p.ProcessedDir,
		p.UploadsDir,
		p.ExportsDir,
		p.LogsDir,
		p.InboxDir,
	}

	logger := slog.Default()
	for _, dir := range directories {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		logger.Debug("Ensured directory exists", slog.String("directory", dir))
	}
	return nil
}

// GetUploadPath returns a path in the upload cache
func (p *Paths) GetUploadPath(filename string) string {
	return filepath.Join(p.UploadsDir, filename)
}

// GetExportPath returns a path in the exports directory
func (p *Paths) GetExportPath(filename string) string {
	return filepath.Join(p.ExportsDir, filename)
}

// GetLogPath returns a path in the logs directory
func (p *Paths) GetLogPath(filename string) string {
	return filepath.Join(p.LogsDir, filename)
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// LogPathResolution logs detailed path resolution information for debugging
func (p *Paths) LogPathResolution() {
	slog.Default().Info("Path resolution summary",
		slog.Group("directories",
			slog.String("base", p.BaseDir),
			slog.String("data", p.DataDir),
			slog.String("processed", p.ProcessedDir),
			slog.String("uploads", p.UploadsDir),
			slog.String("exports", p.ExportsDir),
			slog.String("logs", p.LogsDir),
			slog.String("inbox", p.InboxDir),
		),
		slog.Group("files",
			slog.String("database", p.DatabaseFile),
			slog.String("warehouse", p.WarehouseFile),
		))
}
