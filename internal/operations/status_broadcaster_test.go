package operations

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func update(jobID string, status JobStatus, progress int) ProgressUpdate {
	return ProgressUpdate{
		Type:      EventJobProgress,
		JobID:     jobID,
		Page:      "backtest",
		Status:    status,
		Progress:  progress,
		Timestamp: time.Now(),
	}
}

func TestStatusBroadcasterForwardsAndSnapshots(t *testing.T) {
	sink := &recordingSink{}
	sb := NewStatusBroadcaster(sink, nil)
	defer sb.Stop()

	sb.Publish(update("j1", JobStatusPending, 0))
	sb.Publish(update("j1", JobStatusRunning, 40))
	sb.Publish(update("j1", JobStatusRunning, 20))

	snap, ok := sb.Snapshot("j1")
	require.True(t, ok)
	assert.Equal(t, JobStatusRunning, snap.Status)
	assert.Equal(t, 40, snap.Progress, "progress never moves backwards")

	sink.mu.Lock()
	require.Len(t, sink.updates, 3)
	assert.Equal(t, 40, sink.updates[2].Progress)
	sink.mu.Unlock()

	_, ok = sb.Snapshot("missing")
	assert.False(t, ok)
}

func TestStatusBroadcasterKeepsTerminalState(t *testing.T) {
	sink := &recordingSink{}
	sb := NewStatusBroadcaster(sink, nil)
	defer sb.Stop()

	done := update("j1", JobStatusCompleted, 100)
	done.Type = EventJobCompleted
	sb.Publish(update("j1", JobStatusRunning, 50))
	sb.Publish(done)
	sb.Publish(update("j1", JobStatusRunning, 60))
	sb.Publish(update("j1", JobStatusPending, 0))

	snap, _ := sb.Snapshot("j1")
	assert.Equal(t, JobStatusCompleted, snap.Status)
	assert.Equal(t, []string{EventJobProgress, EventJobCompleted}, sink.types("j1"))
}

func TestStatusBroadcasterCleanup(t *testing.T) {
	sb := NewStatusBroadcaster(nil, nil)
	defer sb.Stop()

	old := update("old", JobStatusFailed, 10)
	old.Timestamp = time.Now().Add(-time.Hour)
	sb.Publish(old)
	stale := update("running", JobStatusRunning, 10)
	stale.Timestamp = time.Now().Add(-time.Hour)
	sb.Publish(stale)
	sb.Publish(update("fresh", JobStatusCompleted, 100))

	assert.Equal(t, 1, sb.Cleanup(time.Minute))
	assert.Len(t, sb.Snapshots(), 2)
	assert.Equal(t, "fresh", sb.Snapshots()[0].JobID)
}

func TestStatusBroadcasterPublishAfterStop(t *testing.T) {
	sb := NewStatusBroadcaster(nil, nil)
	sb.Stop()
	sb.Stop()

	finished := make(chan struct{})
	go func() {
		sb.Publish(update("j1", JobStatusRunning, 10))
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("publish blocked after stop")
	}
}

func TestStageError(t *testing.T) {
	cause := errors.New("disk full")
	err := error(&StageError{Stage: StepExport, Cause: cause})

	assert.Equal(t, "export: disk full", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, StepExport, FailedStage(err))
	assert.Equal(t, "", FailedStage(cause))
}
