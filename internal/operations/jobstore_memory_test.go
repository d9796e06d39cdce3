package operations

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryJobStoreCRUD(t *testing.T) {
	store := NewMemoryJobStore()
	job := &Job{ID: "j1", Page: "backtest", Status: JobStatusPending, CreatedAt: time.Now(), Files: []string{"a.csv"}}

	require.NoError(t, store.CreateJob(job))
	assert.Error(t, store.CreateJob(job), "duplicate id")

	// the store keeps its own copy
	job.Files[0] = "changed.csv"
	got, err := store.GetJob("j1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.csv"}, got.Files)

	got.Status = JobStatusRunning
	got, _ = store.GetJob("j1")
	assert.Equal(t, JobStatusPending, got.Status)

	got.Status = JobStatusCompleted
	require.NoError(t, store.UpdateJob(got))
	got, _ = store.GetJob("j1")
	assert.Equal(t, JobStatusCompleted, got.Status)

	require.NoError(t, store.DeleteJob("j1"))
	_, err = store.GetJob("j1")
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.ErrorIs(t, store.DeleteJob("j1"), ErrJobNotFound)
	assert.ErrorIs(t, store.UpdateJob(&Job{ID: "j1"}), ErrJobNotFound)
}

func TestMemoryJobStoreList(t *testing.T) {
	store := NewMemoryJobStore()
	base := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)
	jobs := []*Job{
		{ID: "a", Page: "backtest", Status: JobStatusCompleted, CreatedAt: base},
		{ID: "b", Page: "backtest", Status: JobStatusFailed, CreatedAt: base.Add(time.Minute)},
		{ID: "c", Page: "macro_linkage", Status: JobStatusCompleted, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, j := range jobs {
		require.NoError(t, store.CreateJob(j))
	}

	ids := func(list []*Job) []string {
		out := make([]string, len(list))
		for i, j := range list {
			out[i] = j.ID
		}
		return out
	}

	tests := []struct {
		name   string
		filter JobFilter
		want   []string
	}{
		{"all newest first", JobFilter{}, []string{"c", "b", "a"}},
		{"by page", JobFilter{Page: "backtest"}, []string{"b", "a"}},
		{"by status", JobFilter{Status: JobStatusCompleted}, []string{"c", "a"}},
		{"since", JobFilter{Since: base.Add(30 * time.Second)}, []string{"c", "b"}},
		{"limit", JobFilter{Limit: 1}, []string{"c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := store.ListJobs(tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(list))
		})
	}
}

func TestMemoryJobStoreCleanupAndStats(t *testing.T) {
	store := NewMemoryJobStore()
	old := time.Now().Add(-2 * time.Hour)
	recent := time.Now()

	require.NoError(t, store.CreateJob(&Job{ID: "old", Status: JobStatusCompleted, CompletedAt: &old}))
	require.NoError(t, store.CreateJob(&Job{ID: "recent", Status: JobStatusFailed, CompletedAt: &recent}))
	require.NoError(t, store.CreateJob(&Job{ID: "running", Status: JobStatusRunning}))
	require.NoError(t, store.CreateJob(&Job{ID: "pending", Status: JobStatusPending}))

	assert.Equal(t, JobStats{Total: 4, Pending: 1, Running: 1, Completed: 1, Failed: 1}, store.GetStats())

	assert.Equal(t, 1, store.CleanupOldJobs(time.Hour))
	_, err := store.GetJob("old")
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.Equal(t, 3, store.GetStats().Total)
}

func TestJobStatusIsTerminal(t *testing.T) {
	assert.False(t, JobStatusPending.IsTerminal())
	assert.False(t, JobStatusRunning.IsTerminal())
	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
	assert.True(t, JobStatusCancelled.IsTerminal())
}
