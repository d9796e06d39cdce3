package files

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Subdirectories of a watched directory receiving handled files
const (
	DoneDir   = "done"
	FailedDir = "failed"
)

// Handler processes one settled file
type Handler func(ctx context.Context, path string) error

// WatcherStats tracks watcher activity
type WatcherStats struct {
	Processed int       `json:"processed"`
	Failed    int       `json:"failed"`
	Errors    int       `json:"errors"`
	LastPath  string    `json:"last_path,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	LastEvent time.Time `json:"last_event,omitempty"`
}

// Watcher hands new data files of a directory to a handler once they stop
// changing
type Watcher struct {
	mu      sync.Mutex
	watcher *fsnotify.Watcher
	dir     string
	handler Handler
	logger  *slog.Logger
	settle  time.Duration
	pending map[string]time.Time
	stats   WatcherStats
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewWatcher creates a watcher for dir
func NewWatcher(dir string, handler Handler, logger *slog.Logger) (*Watcher, error) {
	if handler == nil {
		return nil, errors.New("watcher needs a handler")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		watcher: fw,
		dir:     dir,
		handler: handler,
		logger:  logger.With(slog.String("component", "inbox_watcher"), slog.String("dir", dir)),
		settle:  500 * time.Millisecond,
		pending: make(map[string]time.Time),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// SetSettle changes how long a file must stay unchanged before handling.
// Call it before Start.
func (w *Watcher) SetSettle(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.settle = d
}

// Dir returns the watched directory
func (w *Watcher) Dir() string {
	return w.dir
}

// Start watches the directory. Files already present are queued as if
// they had just arrived.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("create watch directory: %w", err)
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	existing, err := FindCSVFiles(w.dir)
	if err != nil {
		return err
	}
	for _, f := range existing {
		w.pending[f.Path] = time.Time{}
	}

	w.logger.Info("watching directory", slog.Int("existing_files", len(existing)))
	w.running = true
	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the file in progress
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.logger.Error("error closing watcher", slog.String("error", err.Error()))
	}
	w.logger.Info("watcher stopped")
}

// Stats returns a copy of the watcher counters
func (w *Watcher) Stats() WatcherStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", slog.String("error", err.Error()))
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		case <-ticker.C:
			w.processSettled(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !IsDataFile(event.Name) || filepath.Dir(event.Name) != filepath.Clean(w.dir) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		w.pending[event.Name] = time.Now()
		w.stats.LastEvent = time.Now()
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		delete(w.pending, event.Name)
	}
}

// processSettled handles files that have not changed for the settle
// period, in name order
func (w *Watcher) processSettled(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var ready []string
	for path, seen := range w.pending {
		if now.Sub(seen) >= w.settle {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()
	sort.Strings(ready)

	for _, path := range ready {
		if ctx.Err() != nil {
			return
		}
		w.process(ctx, path)
	}
}

func (w *Watcher) process(ctx context.Context, path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	logger := w.logger.With(slog.String("file", filepath.Base(path)))

	err := w.handler(ctx, path)
	target := DoneDir
	if err != nil {
		target = FailedDir
		logger.Warn("file rejected", slog.String("error", err.Error()))
	} else {
		logger.Info("file ingested")
	}

	if _, moveErr := MoveFile(path, filepath.Join(w.dir, target)); moveErr != nil {
		logger.Error("failed to move handled file", slog.String("error", moveErr.Error()))
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.LastPath = path
	if err != nil {
		w.stats.Failed++
		w.stats.LastError = err.Error()
	} else {
		w.stats.Processed++
	}
}
