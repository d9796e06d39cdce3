package warehouse

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskdash/internal/schema"
	"riskdash/internal/storage"
)

func TestViewName(t *testing.T) {
	bound := storage.PersistedDataset{ID: "0123456789", Kind: schema.KindInstrumentResult, PageKey: "rating_migration", InputKey: "result_q2_2023"}
	assert.Equal(t, "rating_migration_result_q2_2023", ViewName(bound))

	loose := storage.PersistedDataset{ID: "ABCDEF12-3456", Kind: schema.KindChargeoff}
	assert.Equal(t, string(schema.KindChargeoff)+"_abcdef12", ViewName(loose))
}

func TestAttachAndQuery(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "result.csv")
	require.NoError(t, os.WriteFile(path, []byte("instrumentIdentifier,annualizedPDOneYear\nI-1,0.02\nI-2,\nI-3,0.05\n"), 0644))

	w, err := Open(ctx, "", nil)
	require.NoError(t, err)
	defer w.Close()

	names, err := w.Attach(ctx, []storage.PersistedDataset{{
		ID: "1", Kind: schema.KindInstrumentResult, PageKey: "real_estate_pd", InputKey: "result_current", FileName: "result.csv", Path: path,
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"real_estate_pd_result_current"}, names)
	assert.Equal(t, names, w.Views())

	res, err := w.Query(ctx, "SELECT instrumentIdentifier, annualizedPDOneYear FROM real_estate_pd_result_current ORDER BY 1")
	require.NoError(t, err)
	assert.Equal(t, []string{"instrumentIdentifier", "annualizedPDOneYear"}, res.Headers())
	assert.Equal(t, [][]string{{"I-1", "0.02"}, {"I-2", ""}, {"I-3", "0.05"}}, res.Records())

	var columns []string
	rows := 0
	stop := errors.New("stop")
	err = w.Scan(ctx, "SELECT * FROM real_estate_pd_result_current",
		func(c []string) error {
			columns = c
			return nil
		},
		func([]string) error {
			rows++
			if rows == 2 {
				return stop
			}
			return nil
		})
	assert.ErrorIs(t, err, stop)
	assert.Len(t, columns, 2)
	assert.Equal(t, 2, rows)

	_, err = w.Query(ctx, "SELECT * FROM missing_view")
	assert.Error(t, err)
}
