// Package shared holds helpers used across the risk dashboard packages that
// belong to no single layer.
//
// The testutil subpackage provides the CSV fixtures shared by the service,
// transport, application and command line tests, and a slog handler that
// captures records so tests can assert on what was logged:
//
//	logger, logs := testutil.NewTestLogger(t)
//	w, _ := files.NewWatcher(dir, handler, logger)
//	...
//	testutil.AssertLogContains(t, logs, slog.LevelWarn, "file rejected")
//
// Nothing here is imported by production code.
package shared
