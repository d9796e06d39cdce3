// Package storage persists uploaded datasets.
//
// The Registry is a SQLite database (modernc.org/sqlite, no cgo) whose schema
// is managed by goose migrations embedded in the binary. It records every
// uploaded file with its detected kind, selected columns and diagnostics, and
// binds at most one dataset to each page input slot. File contents live in
// an UploadCache directory under content-addressed names so re-uploading the
// same bytes reuses the cached copy.
package storage
