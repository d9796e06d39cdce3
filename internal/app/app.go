package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"riskdash/internal/config"
	"riskdash/internal/dashboard"
	apierrors "riskdash/internal/errors"
	"riskdash/internal/files"
	"riskdash/internal/geo"
	"riskdash/internal/infrastructure"
	customMiddleware "riskdash/internal/middleware"
	"riskdash/internal/operations"
	"riskdash/internal/services"
	"riskdash/internal/storage"
	handlers "riskdash/internal/transport/http"
	ws "riskdash/internal/websocket"
	"riskdash/pkg/contracts"
)

const (
	VERSION = contracts.Version
	AppName = "Risk Dashboard"
)

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Paths         *config.Paths
	Router        *chi.Mux
	Server        *http.Server
	Logger        *slog.Logger
	Services      *ServiceContainer
	OTelProviders *infrastructure.OTelProviders

	Registry     *storage.Registry
	Engine       *dashboard.Engine
	WebSocketHub *ws.Hub
	JobQueue     *operations.JobQueue
	Broadcaster  *operations.StatusBroadcaster
	Watcher      *files.Watcher
	Runtime      *infrastructure.RuntimeCollector
	Metrics      *infrastructure.BusinessMetrics

	errorHandler *apierrors.ErrorHandler
}

// ServiceContainer holds all application services
type ServiceContainer struct {
	Datasets  *services.DatasetService
	Dashboard *services.DashboardService
	Jobs      *services.JobService
	Health    *services.HealthService
}

// NewApplication wires every component. paths must already exist; otelCfg
// nil uses infrastructure.DefaultOTelConfig.
func NewApplication(cfg *config.Config, paths *config.Paths, logger *slog.Logger, otelCfg *infrastructure.OTelConfig) (*Application, error) {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	logger.Info("Application starting",
		slog.String("name", AppName),
		slog.String("version", VERSION))

	otelProviders, err := infrastructure.InitializeOTel(otelCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Paths:         paths,
		Logger:        logger,
		OTelProviders: otelProviders,
		errorHandler:  apierrors.NewErrorHandler(logger, cfg.Logging.Development),
	}

	if err := app.initializeServices(); err != nil {
		app.closeStores()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.setupRouter()
	app.createServer()
	return app, nil
}

// initializeServices opens the stores and builds the services on top of them
func (a *Application) initializeServices() error {
	metrics, err := infrastructure.CreateBusinessMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create business metrics: %w", err)
	}
	a.Metrics = metrics

	registry, err := storage.Open(a.Paths.DatabaseFile, a.Config.Storage.BusyTimeout, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to open dataset registry: %w", err)
	}
	a.Registry = registry

	var crosswalk *geo.Crosswalk
	if file := a.Config.Analytics.CrosswalkFile; file != "" {
		crosswalk, err = geo.LoadCrosswalkFile(file)
		if err != nil {
			return fmt.Errorf("failed to load CBSA crosswalk: %w", err)
		}
		a.Logger.Info("CBSA crosswalk loaded",
			slog.String("file", file),
			slog.Int("zips", crosswalk.Len()))
	}
	a.Engine = dashboard.NewEngine(registry, geo.NewResolver(crosswalk),
		dashboard.OptionsFromConfig(a.Config.Analytics), a.Logger)

	hubMetrics, err := ws.NewMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create websocket metrics: %w", err)
	}
	a.WebSocketHub = ws.NewHub(a.Logger, hubMetrics)

	a.Broadcaster = operations.NewStatusBroadcaster(ws.JobSink(a.WebSocketHub), a.Logger)
	a.JobQueue = operations.NewJobQueue(
		operations.QueueConfig{
			Workers:   a.Config.Jobs.Workers,
			QueueSize: a.Config.Jobs.QueueSize,
			Timeout:   a.Config.Jobs.Timeout,
			Retention: a.Config.Jobs.Retention,
		},
		operations.NewMemoryJobStore(),
		operations.DashboardPipeline(a.Engine, a.Paths.ExportsDir),
		a.Broadcaster,
		metrics,
		a.Logger,
	)

	runtimeCollector, err := infrastructure.NewRuntimeCollector(a.OTelProviders.Meter, 30*time.Second)
	if err != nil {
		return fmt.Errorf("failed to create runtime collector: %w", err)
	}
	a.Runtime = runtimeCollector

	cache := storage.NewUploadCache(a.Paths.UploadsDir)
	datasets := services.NewDatasetService(registry, cache, metrics, a.Config.Server.MaxUploadBytes, a.Logger)

	watcher, err := files.NewWatcher(a.Paths.InboxDir, func(ctx context.Context, path string) error {
		_, err := datasets.IngestFile(ctx, path)
		return err
	}, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create inbox watcher: %w", err)
	}
	a.Watcher = watcher

	a.Services = &ServiceContainer{
		Datasets:  datasets,
		Dashboard: services.NewDashboardService(a.Engine, metrics, a.Logger),
		Jobs:      services.NewJobService(a.JobQueue, a.Broadcaster, a.Logger),
		Health: services.NewHealthService(VERSION, services.HealthDeps{
			Database: registry,
			Paths:    a.Paths,
			Hub:      a.WebSocketHub,
			Queue:    a.JobQueue,
			Runtime:  runtimeCollector,
		}, a.Logger),
	}
	return nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()
	r.NotFound(a.errorHandler.NotFound)
	r.MethodNotAllowed(a.errorHandler.MethodNotAllowed)

	// RequestID → RealIP → OTel → Logger → Recoverer
	r.Use(customMiddleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.NewOTelMiddleware(a.OTelProviders.Tracer, a.Metrics).Handler)
	r.Use(customMiddleware.StructuredLogger(a.Logger))
	r.Use(apierrors.RecoveryMiddleware(a.errorHandler))

	healthHandler := handlers.NewHealthHandler(a.Services.Health, a.Logger)
	r.Get("/healthz", healthHandler.HealthCheck)
	r.Get("/readyz", healthHandler.ReadinessCheck)

	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	// The upgrade needs the raw connection, so no timeout or body limit here
	r.Handle("/ws", ws.NewHandler(a.WebSocketHub,
		ws.HandlerConfigFrom(a.Config.WebSocket, a.Config.Security), a.Logger))

	r.Group(func(r chi.Router) {
		r.Use(customMiddleware.SecurityHeaders)
		if a.Config.Security.EnableCORS {
			r.Use(customMiddleware.CORS(a.corsConfig()))
		}
		if a.Config.Security.RateLimit.Enabled {
			r.Use(customMiddleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger,
			).Handler)
		}
		a.setupAPIRoutes(r)
	})

	a.Router = r
}

// setupAPIRoutes mounts the /api/v1 handlers
func (a *Application) setupAPIRoutes(r chi.Router) {
	datasetsHandler := handlers.NewDatasetsHandler(a.Services.Datasets, a.Logger, a.errorHandler)
	jobsHandler := handlers.NewJobsHandler(a.Services.Jobs, a.Logger, a.errorHandler)
	pagesHandler := handlers.NewPagesHandler(a.Services.Datasets, a.Services.Dashboard, a.Logger, a.errorHandler).
		WithJobs(jobsHandler)

	r.Route("/api/"+contracts.APIVersion, func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(middleware.Timeout(a.Config.Server.RequestTimeout))
		r.Use(apierrors.LimitBody(a.Config.Server.MaxUploadBytes))

		r.Mount("/pages", pagesHandler.Routes())
		r.Mount("/datasets", datasetsHandler.Routes())
		r.Mount("/jobs", jobsHandler.Routes())
		r.With(customMiddleware.ContentTypeValidator("multipart/form-data")).
			Post("/detect", datasetsHandler.Detect)
		r.Get("/filters", pagesHandler.GetFilters)
	})
}

// corsConfig allows the configured origins. An empty list allows any.
func (a *Application) corsConfig() customMiddleware.CORSConfig {
	return customMiddleware.CORSConfig{
		AllowedOrigins: a.Config.Security.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept",
			"Content-Type",
			"X-Request-ID",
			"X-Requested-With",
		},
		ExposedHeaders:   []string{"X-Request-ID", "Content-Disposition", "Location"},
		AllowCredentials: false,
		MaxAge:           300,
	}
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Start starts the background components and the HTTP server. A server
// failure calls cancel.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("name", AppName),
		slog.String("version", VERSION),
		slog.String("commit", contracts.GitCommit),
		slog.Int("port", a.Config.Server.Port),
		slog.String("level", a.Config.Logging.Level))
	a.Paths.LogPathResolution()

	a.WebSocketHub.Start()
	a.JobQueue.Start(ctx)
	a.Runtime.Start(ctx)
	if err := a.Watcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start inbox watcher: %w", err)
	}

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	a.Logger.InfoContext(ctx, "Application started",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)),
		slog.String("inbox", a.Paths.InboxDir))
	return nil
}

// Stop gracefully stops the application. In-flight requests finish first,
// then jobs, then the stores close.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
	}

	a.Watcher.Stop()
	if err := a.JobQueue.Stop(a.Config.Server.ShutdownTimeout); err != nil {
		a.Logger.ErrorContext(ctx, "Failed to stop job queue gracefully", slog.String("error", err.Error()))
	}
	a.Broadcaster.Stop()
	a.WebSocketHub.Stop()
	a.Runtime.Stop()
	a.closeStores()

	if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
		a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return errors.Join(errs...)
}

func (a *Application) closeStores() {
	if a.Registry == nil {
		return
	}
	if err := a.Registry.Close(); err != nil {
		a.Logger.Error("Error closing dataset registry", slog.String("error", err.Error()))
	}
}

// Run runs the application until interrupted
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case sig := <-sigChan:
		a.Logger.InfoContext(ctx, "Received signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		a.Logger.WarnContext(ctx, "Server stopped unexpectedly")
	}

	// Shutdown gets its own context; ctx may already be cancelled
	return a.Stop(context.Background())
}
