package testutil

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogCaptureKeepsDerivedAttrs(t *testing.T) {
	logger, logs := NewTestLogger(nil)

	logger.With(slog.String("component", "inbox_watcher")).
		WithGroup("file").
		Warn("file rejected", slog.String("name", "bad.csv"))
	logger.Info("watching directory", slog.Int("existing_files", 2))

	rejected := logs.Find(slog.LevelWarn, "rejected")
	require.Len(t, rejected, 1)
	assert.Equal(t, "inbox_watcher", rejected[0].Attrs["component"])
	assert.Equal(t, "bad.csv", rejected[0].Attrs["file.name"])

	assert.Len(t, logs.Records(), 2)
	assert.Empty(t, logs.Find(slog.LevelError, ""))
	AssertLogContains(t, logs, slog.LevelInfo, "watching")
	AssertNoErrors(t, logs)
}
