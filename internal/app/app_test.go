package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskdash/internal/config"
	"riskdash/internal/infrastructure"
	"riskdash/internal/shared/testutil"
	"riskdash/internal/storage"
)

func newTestApplication(t *testing.T) *Application {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.BaseDir = t.TempDir()
	cfg.Server.Port = 0
	cfg.Server.ShutdownTimeout = 5 * time.Second
	cfg.Jobs.Workers = 1

	paths, err := cfg.ResolvePaths()
	require.NoError(t, err)

	otelCfg := &infrastructure.OTelConfig{
		ServiceName:    "riskdash-test",
		ServiceVersion: VERSION,
		Environment:    "test",
		TraceExporter:  "none",
		MetricExporter: "none",
	}
	logger := infrastructure.NewConsoleLogger(io.Discard, "error", "json")

	app, err := NewApplication(cfg, paths, logger, otelCfg)
	require.NoError(t, err)
	return app
}

func serve(app *Application, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

func TestNewApplicationWiring(t *testing.T) {
	app := newTestApplication(t)
	defer func() { _ = app.Stop(context.Background()) }()

	assert.NotNil(t, app.Registry)
	assert.NotNil(t, app.Engine)
	assert.NotNil(t, app.JobQueue)
	assert.NotNil(t, app.WebSocketHub)
	assert.NotNil(t, app.Watcher)
	assert.Equal(t, app.Paths.InboxDir, app.Watcher.Dir())
	assert.Equal(t, ":0", app.Server.Addr)
	assert.FileExists(t, app.Paths.DatabaseFile)
}

func TestRoutes(t *testing.T) {
	app := newTestApplication(t)
	defer func() { _ = app.Stop(context.Background()) }()

	tests := []struct {
		name       string
		method     string
		target     string
		wantStatus int
	}{
		{"liveness", http.MethodGet, "/healthz", http.StatusOK},
		{"readiness", http.MethodGet, "/readyz", http.StatusOK},
		{"pages", http.MethodGet, "/api/v1/pages", http.StatusOK},
		{"filters", http.MethodGet, "/api/v1/filters", http.StatusOK},
		{"datasets", http.MethodGet, "/api/v1/datasets", http.StatusOK},
		{"jobs", http.MethodGet, "/api/v1/jobs", http.StatusOK},
		{"view not ready", http.MethodGet, "/api/v1/pages/backtest/view", http.StatusConflict},
		{"unknown page", http.MethodGet, "/api/v1/pages/nope/view", http.StatusNotFound},
		{"unknown route", http.MethodGet, "/api/v2/pages", http.StatusNotFound},
		{"wrong method", http.MethodPut, "/healthz", http.StatusMethodNotAllowed},
		{"detect needs multipart", http.MethodPost, "/api/v1/detect", http.StatusUnsupportedMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(app, httptest.NewRequest(tt.method, tt.target, nil))
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		})
	}
}

func TestSecurityHeadersOnAPI(t *testing.T) {
	app := newTestApplication(t)
	defer func() { _ = app.Stop(context.Background()) }()

	rec := serve(app, httptest.NewRequest(http.MethodGet, "/api/v1/pages", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestUploadTooLarge(t *testing.T) {
	app := newTestApplication(t)
	app.Config.Server.MaxUploadBytes = 64
	app.setupRouter()
	defer func() { _ = app.Stop(context.Background()) }()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "instrumentreference_2025q2.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(testutil.ReferenceCSV))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/pages/real_estate_pd/inputs/reference_current", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := serve(app, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())
}

func TestStartIngestsInbox(t *testing.T) {
	app := newTestApplication(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, app.Start(ctx, cancel))

	inboxFile := filepath.Join(app.Paths.InboxDir, "instrumentreference_2025q2.csv")
	require.NoError(t, os.WriteFile(inboxFile, []byte(testutil.ReferenceCSV), 0644))

	require.Eventually(t, func() bool {
		datasets, err := app.Registry.List(context.Background(), storage.ListFilter{})
		return err == nil && len(datasets) == 1
	}, 10*time.Second, 50*time.Millisecond)

	rec := serve(app, httptest.NewRequest(http.MethodGet, "/api/v1/datasets", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data []storage.PersistedDataset `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 1)
	assert.Equal(t, "instrument_reference", string(envelope.Data[0].Kind))

	require.NoError(t, app.Stop(context.Background()))
}
