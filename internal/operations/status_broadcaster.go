package operations

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// StatusBroadcaster serializes job progress, keeps the latest snapshot of
// every job and forwards each update to the downstream sink
type StatusBroadcaster struct {
	mu        sync.RWMutex
	snapshots map[string]*ProgressUpdate
	sink      ProgressSink
	logger    *slog.Logger
	updates   chan updateRequest
	stop      chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
}

type updateRequest struct {
	update ProgressUpdate
	done   chan struct{}
}

// NewStatusBroadcaster starts a broadcaster in front of sink. A nil sink
// only records snapshots.
func NewStatusBroadcaster(sink ProgressSink, logger *slog.Logger) *StatusBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = nopSink{}
	}

	sb := &StatusBroadcaster{
		snapshots: make(map[string]*ProgressUpdate),
		sink:      sink,
		logger:    logger.With(slog.String("component", "status_broadcaster")),
		updates:   make(chan updateRequest, 100),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go sb.processUpdates()
	return sb
}

// processUpdates handles all updates sequentially
func (sb *StatusBroadcaster) processUpdates() {
	defer close(sb.done)
	for {
		select {
		case <-sb.stop:
			return
		case req := <-sb.updates:
			sb.handleUpdate(req)
		}
	}
}

func (sb *StatusBroadcaster) handleUpdate(req updateRequest) {
	defer close(req.done)

	update := req.update
	sb.mu.Lock()
	if prev, ok := sb.snapshots[update.JobID]; ok {
		// late progress from a running job never moves the bar backwards
		if update.Status == JobStatusRunning && prev.Status == JobStatusRunning && update.Progress < prev.Progress {
			update.Progress = prev.Progress
		}
		stale := update.Status == JobStatusPending && prev.Status != JobStatusPending
		if stale || (prev.Status.IsTerminal() && !update.Status.IsTerminal()) {
			sb.mu.Unlock()
			return
		}
	}
	snapshot := update
	sb.snapshots[update.JobID] = &snapshot
	sb.mu.Unlock()

	sb.logger.Debug("broadcasting job update",
		slog.String("type", update.Type),
		slog.String("job_id", update.JobID),
		slog.String("status", string(update.Status)),
		slog.Int("progress", update.Progress))
	sb.sink.Publish(update)
}

// Publish records an update and forwards it, returning once it is
// delivered. Updates published after Stop are dropped.
func (sb *StatusBroadcaster) Publish(update ProgressUpdate) {
	req := updateRequest{update: update, done: make(chan struct{})}
	select {
	case sb.updates <- req:
	case <-sb.stop:
		return
	}
	select {
	case <-req.done:
	case <-sb.done:
	}
}

// Snapshot returns the latest update of a job
func (sb *StatusBroadcaster) Snapshot(jobID string) (ProgressUpdate, bool) {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	s, ok := sb.snapshots[jobID]
	if !ok {
		return ProgressUpdate{}, false
	}
	return *s, true
}

// Snapshots returns the latest update of every job, newest first
func (sb *StatusBroadcaster) Snapshots() []ProgressUpdate {
	sb.mu.RLock()
	out := make([]ProgressUpdate, 0, len(sb.snapshots))
	for _, s := range sb.snapshots {
		out = append(out, *s)
	}
	sb.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// Cleanup drops finished snapshots older than maxAge
func (sb *StatusBroadcaster) Cleanup(maxAge time.Duration) int {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, s := range sb.snapshots {
		if s.Status.IsTerminal() && s.Timestamp.Before(cutoff) {
			delete(sb.snapshots, id)
			removed++
		}
	}
	if removed > 0 {
		sb.logger.Info("cleaned up job snapshots", slog.Int("removed", removed))
	}
	return removed
}

// Stop ends the update goroutine and waits for it
func (sb *StatusBroadcaster) Stop() {
	sb.stopOnce.Do(func() { close(sb.stop) })
	<-sb.done
}
