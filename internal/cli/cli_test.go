package cli

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskdash/internal/shared/testutil"
	"riskdash/internal/storage"
)

// run executes riskctl against baseDir and returns its standard output
func run(t *testing.T, baseDir string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--base-dir", baseDir}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestDetect(t *testing.T) {
	base := t.TempDir()
	src := t.TempDir()
	ref := testutil.WriteFile(t, src, testutil.ReferenceFile, testutil.ReferenceCSV)
	junk := testutil.WriteFile(t, src, "notes.csv", "a,b\n1,2\n")

	out, err := run(t, base, "detect", ref, "--format", "csv")
	require.NoError(t, err)
	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "instrument_reference", records[1][1])

	_, err = run(t, base, "detect", ref, junk)
	assert.Error(t, err)

	out, err = run(t, base, "datasets", "--format", "json")
	require.NoError(t, err)
	var listed []storage.PersistedDataset
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	assert.Empty(t, listed, "detect stores nothing")
}

func TestIngestAndDatasets(t *testing.T) {
	base := t.TempDir()
	src := t.TempDir()
	ref := testutil.WriteFile(t, src, testutil.ReferenceFile, testutil.ReferenceCSV)
	res := testutil.WriteFile(t, src, testutil.ResultFile, testutil.ResultCSV)

	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"page without input", []string{"ingest", ref, "--page", "real_estate_pd"}, true},
		{"two files bound", []string{"ingest", ref, res, "--page", "real_estate_pd", "--input", "reference_current"}, true},
		{"unknown output", []string{"ingest", ref, "--format", "yaml"}, true},
		{"missing file", []string{"ingest", filepath.Join(src, "missing.csv")}, true},
		{"bind reference", []string{"ingest", ref, "--page", "real_estate_pd", "--input", "reference_current"}, false},
		{"register result", []string{"ingest", res}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, base, tt.args...)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}

	out, err := run(t, base, "datasets", "--format", "json")
	require.NoError(t, err)
	var listed []storage.PersistedDataset
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 2)

	out, err = run(t, base, "datasets", "--kind", "instrument_result", "--format", "json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 1)

	_, err = run(t, base, "datasets", "--kind", "nope")
	assert.Error(t, err)

	out, err = run(t, base, "datasets", "delete", listed[0].ID)
	require.NoError(t, err)
	assert.Contains(t, out, listed[0].ID)

	_, err = run(t, base, "datasets", "delete", listed[0].ID)
	assert.Error(t, err)
}

func TestViewAndExport(t *testing.T) {
	base := t.TempDir()
	src := t.TempDir()
	ref := testutil.WriteFile(t, src, testutil.ReferenceFile, testutil.ReferenceCSV)
	res := testutil.WriteFile(t, src, testutil.ResultFile, testutil.ResultCSV)

	_, err := run(t, base, "view", "real_estate_pd")
	require.Error(t, err, "page without inputs is not ready")
	assert.NotEmpty(t, describeError(err))

	_, err = run(t, base, "view", "nope")
	assert.Error(t, err)

	_, err = run(t, base, "ingest", ref, "--page", "real_estate_pd", "--input", "reference_current")
	require.NoError(t, err)
	_, err = run(t, base, "ingest", res, "--page", "real_estate_pd", "--input", "result_current")
	require.NoError(t, err)

	out, err := run(t, base, "view", "real_estate_pd", "--format", "json")
	require.NoError(t, err)
	var result struct {
		Page    string `json:"page"`
		Quarter string `json:"quarter"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "real_estate_pd", result.Page)
	assert.Equal(t, "2025Q2", result.Quarter)

	out, err = run(t, base, "view", "real_estate_pd")
	require.NoError(t, err)
	assert.Contains(t, out, "2025Q2")

	_, err = run(t, base, "view", "real_estate_pd", "--geography", "county")
	assert.Error(t, err)

	_, err = run(t, base, "view", "real_estate_pd", "--table", "no such table")
	assert.Error(t, err)

	outDir := filepath.Join(t.TempDir(), "exports")
	out, err = run(t, base, "export", "real_estate_pd", "--out", outDir)
	require.NoError(t, err)
	paths := strings.Fields(out)
	require.Len(t, paths, 1)
	assert.Equal(t, ".xlsx", filepath.Ext(paths[0]))
	assert.FileExists(t, paths[0])

	out, err = run(t, base, "export", "real_estate_pd", "--format", "csv", "--out", outDir)
	require.NoError(t, err)
	for _, p := range strings.Fields(out) {
		assert.Equal(t, ".csv", filepath.Ext(p))
		assert.FileExists(t, p)
	}

	_, err = run(t, base, "export", "real_estate_pd", "--format", "pdf")
	assert.Error(t, err)
}

func TestMigrate(t *testing.T) {
	base := t.TempDir()

	out, err := run(t, base, "migrate", "--format", "csv")
	require.NoError(t, err)
	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"database", "version"}, records[0])
	assert.FileExists(t, records[1][0])
	assert.NotEqual(t, "0", records[1][1])
}

func TestRenderTabular(t *testing.T) {
	data := tabular{
		headers: []string{"kind", "rows"},
		records: [][]string{{"instrument_reference", "2"}},
	}

	tests := []struct {
		format string
		want   string
	}{
		{formatCSV, "kind,rows\ninstrument_reference,2\n"},
		{formatJSON, `"kind": "instrument_reference"`},
		{formatMarkdown, "| instrument_reference |"},
		{formatTable, "(1 rows)"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, renderTabular(&buf, data, tt.format))
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}

type tabular struct {
	headers []string
	records [][]string
}

func (t tabular) Headers() []string   { return t.headers }
func (t tabular) Records() [][]string { return t.records }

func TestQuery(t *testing.T) {
	base := t.TempDir()
	src := t.TempDir()
	ref := testutil.WriteFile(t, src, testutil.ReferenceFile, testutil.ReferenceCSV)

	out, err := run(t, base, "query")
	require.NoError(t, err)
	assert.Contains(t, out, "no datasets registered")

	_, err = run(t, base, "ingest", ref, "--page", "real_estate_pd", "--input", "reference_current")
	require.NoError(t, err)

	out, err = run(t, base, "query", "--format", "csv")
	require.NoError(t, err)
	assert.Equal(t, "view\nreal_estate_pd_reference_current\n", out)

	out, err = run(t, base, "query", "--format", "csv",
		"SELECT instrumentIdentifier, borrowerState FROM real_estate_pd_reference_current ORDER BY 1")
	require.NoError(t, err)
	assert.Equal(t, "instrumentIdentifier,borrowerState\nI-1,TX\nI-2,\n", out)

	target := filepath.Join(t.TempDir(), "ids.csv")
	out, err = run(t, base, "query", "--out", target, "SELECT instrumentIdentifier FROM real_estate_pd_reference_current")
	require.NoError(t, err)
	assert.Contains(t, out, "2 rows written")
	assert.FileExists(t, target)

	_, err = run(t, base, "query", "SELECT * FROM missing_view")
	assert.Error(t, err)
}
