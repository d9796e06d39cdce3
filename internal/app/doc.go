// Package app wires the risk dashboard server together and owns its
// lifecycle.
//
// # Initialization Flow
//
//  1. Initialize OpenTelemetry and the business metrics
//  2. Open the dataset registry and load the CBSA crosswalk
//  3. Build the dashboard engine, websocket hub and job queue
//  4. Create the services and the inbox watcher
//  5. Set up the chi router and the HTTP server
//
// Configuration, path resolution and the logger are created by the caller,
// usually cmd/riskdash:
//
//	cfg, err := config.Load()
//	paths, err := cfg.ResolvePaths()
//	logger, err := infrastructure.InitializeLogger(cfg.Logging, paths.LogsDir)
//	application, err := app.NewApplication(cfg, paths, logger, nil)
//	err = application.Run()
//
// # Graceful Shutdown
//
// Run blocks until SIGINT or SIGTERM. Stop then drains HTTP requests,
// stops the inbox watcher, lets running jobs finish within the shutdown
// timeout, closes websocket clients and finally the registry.
package app
