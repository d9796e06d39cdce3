// Package operations runs dashboard computations as background jobs.
//
// A JobQueue feeds a fixed pool of workers from a buffered channel. Every
// job walks the same steps: load the page inputs, harmonize them, compute
// the view and export it. Workers record progress in a JobStore and push
// it to a ProgressSink, normally the StatusBroadcaster in front of the
// websocket hub.
//
// Basic usage:
//
//	store := operations.NewMemoryJobStore()
//	pipeline := operations.DashboardPipeline(engine, paths.ExportsDir)
//	queue := operations.NewJobQueue(cfg, store, pipeline, broadcaster, metrics, logger)
//	queue.Start(ctx)
//	defer queue.Stop(30 * time.Second)
//
//	job, err := queue.Enqueue(ctx, &operations.Job{Page: "backtest"})
package operations
