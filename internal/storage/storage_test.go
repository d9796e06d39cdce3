package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskdash/internal/schema"
)

func openRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := Open(filepath.Join(t.TempDir(), "registry.db"), time.Second, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })
	return reg
}

func dataset(kind schema.Kind, name string) *PersistedDataset {
	return &PersistedDataset{
		Kind:            kind,
		FileName:        name,
		Path:            "/tmp/" + name,
		SHA256:          Digest([]byte(name)),
		RowCount:        3,
		Columns:         []string{"instrumentIdentifier", "reportingDate"},
		SelectedColumns: map[string]string{"instrumentIdentifier": "instrumentIdentifier"},
	}
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(" ", 0, nil)
	assert.Error(t, err)
}

func TestRegistryVersion(t *testing.T) {
	reg := openRegistry(t)
	version, err := reg.Version()
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
	require.NoError(t, reg.Ping(context.Background()))
}

func TestRegistryAddGet(t *testing.T) {
	ctx := context.Background()
	reg := openRegistry(t)

	d := dataset(schema.KindInstrumentReference, "reference.csv")
	d.Diagnostics = []string{"matched 2 of 2 required"}
	require.NoError(t, reg.Add(ctx, d))
	assert.NotEmpty(t, d.ID)
	assert.False(t, d.CreatedAt.IsZero())

	got, err := reg.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.Kind, got.Kind)
	assert.Equal(t, d.Columns, got.Columns)
	assert.Equal(t, d.SelectedColumns, got.SelectedColumns)
	assert.Equal(t, d.Diagnostics, got.Diagnostics)
	assert.Equal(t, d.CreatedAt.UnixMilli(), got.CreatedAt.UnixMilli())

	found, err := reg.FindByDigest(ctx, d.SHA256)
	require.NoError(t, err)
	assert.Equal(t, d.ID, found.ID)

	_, err = reg.Get(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.Error(t, reg.Add(ctx, &PersistedDataset{FileName: "x.csv"}))
}

func TestRegistryList(t *testing.T) {
	ctx := context.Background()
	reg := openRegistry(t)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, kind := range []schema.Kind{schema.KindInstrumentReference, schema.KindInstrumentResult, schema.KindInstrumentResult} {
		d := dataset(kind, "file.csv")
		d.PageKey = "real_estate_pd"
		if i == 2 {
			d.PageKey = "rating_migration"
		}
		d.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, reg.Add(ctx, d))
	}

	all, err := reg.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].CreatedAt.After(all[1].CreatedAt))

	results, err := reg.List(ctx, ListFilter{Kind: schema.KindInstrumentResult})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	page, err := reg.List(ctx, ListFilter{PageKey: "real_estate_pd", Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, schema.KindInstrumentResult, page[0].Kind)
}

func TestRegistryBindings(t *testing.T) {
	ctx := context.Background()
	reg := openRegistry(t)

	first := dataset(schema.KindInstrumentResult, "q2_2023.csv")
	second := dataset(schema.KindInstrumentResult, "q2_2023_restated.csv")
	require.NoError(t, reg.Add(ctx, first))
	require.NoError(t, reg.Add(ctx, second))

	_, err := reg.GetBinding(ctx, "rating_migration", "result_q2_2023")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, reg.Bind(ctx, "rating_migration", "result_q2_2023", first.ID))
	require.NoError(t, reg.Bind(ctx, "rating_migration", "result_q2_2023", second.ID))

	bound, err := reg.GetBinding(ctx, "rating_migration", "result_q2_2023")
	require.NoError(t, err)
	assert.Equal(t, second.ID, bound.ID)

	all, err := reg.Bindings(ctx, "rating_migration")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, second.ID, all["result_q2_2023"].ID)

	err = reg.Bind(ctx, "rating_migration", "result_q2_2025", "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, reg.Delete(ctx, second.ID))
	_, err = reg.GetBinding(ctx, "rating_migration", "result_q2_2023")
	assert.True(t, errors.Is(err, ErrNotFound), "binding should cascade with the dataset")

	assert.True(t, errors.Is(reg.Delete(ctx, second.ID), ErrNotFound))

	require.NoError(t, reg.Bind(ctx, "rating_migration", "result_q2_2023", first.ID))
	require.NoError(t, reg.Unbind(ctx, "rating_migration", "result_q2_2023"))
	all, err = reg.Bindings(ctx, "rating_migration")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestUploadCache(t *testing.T) {
	cache := NewUploadCache(filepath.Join(t.TempDir(), "uploaded_csvs"))
	content := []byte("instrumentIdentifier,reportingDate\nI-1,2025-06-30\n\"I-2\",2025-06-30\n")

	path, digest, err := cache.Store("real_estate_pd", "reference_current", "Reference.CSV", content)
	require.NoError(t, err)
	assert.Equal(t, Digest(content), digest)
	assert.Equal(t, "real_estate_pd_reference_current_"+digest[:16]+".csv", filepath.Base(path))

	again, _, err := cache.Store("real_estate_pd", "reference_current", "Reference.CSV", content)
	require.NoError(t, err)
	assert.Equal(t, path, again)

	stored, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, stored)

	rows, err := RowCount(path)
	require.NoError(t, err)
	assert.Equal(t, 2, rows)

	assert.Equal(t, "ingest_file_"+digest[:16]+".csv", filepath.Base(cache.Path("", "", "noext", digest)))

	require.NoError(t, cache.Remove(path))
	require.NoError(t, cache.Remove(path))
	assert.NoFileExists(t, path)
}
