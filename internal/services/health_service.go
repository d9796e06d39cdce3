package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"riskdash/internal/config"
	"riskdash/internal/infrastructure"
	"riskdash/internal/operations"
)

// Health states
const (
	StatusOK       = "ok"
	StatusReady    = "ready"
	StatusNotReady = "not_ready"
)

// Pinger checks a backing store
type Pinger interface {
	Ping(ctx context.Context) error
}

// ClientCounter reports connected push clients
type ClientCounter interface {
	ClientCount() int
}

// QueueStatser reports job queue counters
type QueueStatser interface {
	Stats() operations.QueueStats
}

// HealthDeps are the components the readiness check inspects. Nil fields
// are skipped.
type HealthDeps struct {
	Database Pinger
	Paths    *config.Paths
	Hub      ClientCounter
	Queue    QueueStatser
	Runtime  *infrastructure.RuntimeCollector
}

// HealthService provides health check functionality
type HealthService struct {
	version   string
	deps      HealthDeps
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Runtime   map[string]interface{}   `json:"runtime,omitempty"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// NewHealthService creates a health service
func NewHealthService(version string, deps HealthDeps, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		version:   version,
		deps:      deps,
		startTime: time.Now(),
		logger:    logger.With(slog.String("service", "health")),
	}
}

// HealthCheck reports that the process is up
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    StatusOK,
		Timestamp: time.Now(),
		Version:   hs.version,
		Runtime: map[string]interface{}{
			"uptime_seconds": time.Since(hs.startTime).Seconds(),
			"go_version":     runtime.Version(),
			"goroutines":     runtime.NumGoroutine(),
			"os":             runtime.GOOS,
			"arch":           runtime.GOARCH,
		},
	}
	if hs.deps.Runtime != nil {
		status.Runtime["stats"] = hs.deps.Runtime.Collect(ctx)
	}
	return status
}

// ReadinessCheck inspects the database, directories, websocket hub and job
// queue
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    StatusReady,
		Timestamp: time.Now(),
		Version:   hs.version,
		Services:  make(map[string]ServiceHealth),
	}

	if hs.deps.Database != nil {
		status.Services["database"] = hs.checkDatabase(ctx)
	}
	if hs.deps.Paths != nil {
		status.Services["directories"] = hs.checkDirectories()
	}
	if hs.deps.Hub != nil {
		status.Services["websocket"] = ServiceHealth{
			Status:  StatusReady,
			Details: map[string]interface{}{"clients": hs.deps.Hub.ClientCount()},
		}
	}
	if hs.deps.Queue != nil {
		status.Services["jobs"] = hs.checkQueue()
	}

	for name, service := range status.Services {
		if service.Status != StatusReady {
			status.Status = StatusNotReady
			hs.logger.WarnContext(ctx, "component not ready",
				slog.String("component", name),
				slog.String("message", service.Message))
		}
	}
	return status
}

func (hs *HealthService) checkDatabase(ctx context.Context) ServiceHealth {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := hs.deps.Database.Ping(ctx); err != nil {
		return ServiceHealth{Status: StatusNotReady, Message: fmt.Sprintf("database ping failed: %v", err)}
	}
	return ServiceHealth{Status: StatusReady}
}

// checkDirectories requires every working directory to exist and accept
// writes
func (hs *HealthService) checkDirectories() ServiceHealth {
	p := hs.deps.Paths
	dirs := map[string]string{
		"data":      p.DataDir,
		"processed": p.ProcessedDir,
		"uploads":   p.UploadsDir,
		"exports":   p.ExportsDir,
	}
	details := make(map[string]interface{}, len(dirs))
	for name, dir := range dirs {
		details[name] = dir
		if dir == "" {
			continue
		}
		if err := writable(dir); err != nil {
			return ServiceHealth{
				Status:  StatusNotReady,
				Message: fmt.Sprintf("%s directory unusable: %v", name, err),
				Details: details,
			}
		}
	}
	return ServiceHealth{Status: StatusReady, Details: details}
}

func writable(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	f, err := os.CreateTemp(dir, ".health-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(filepath.Clean(name))
}

func (hs *HealthService) checkQueue() ServiceHealth {
	stats := hs.deps.Queue.Stats()
	details := map[string]interface{}{
		"workers": stats.Workers,
		"queued":  stats.Queued,
		"active":  stats.Active,
		"total":   stats.Total,
	}
	return ServiceHealth{Status: StatusReady, Details: details}
}
