package ingest

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskdash/internal/schema"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		headers  []string
		expected schema.Kind
		score    int
	}{
		{
			name:     "result file by prefix and rating column",
			file:     "instrumentresult_q2_2023.csv",
			headers:  []string{"instrumentIdentifier", "portfolioIdentifier", "riskClassification", "reportingDate"},
			expected: schema.KindInstrumentResult,
			score:    14,
		},
		{
			name:     "charge-off file",
			file:     "chargeoffs_2024.csv",
			headers:  []string{"instrument_id", "charge_off_date", "net_charge_off_amount"},
			expected: schema.KindChargeoff,
			score:    9,
		},
		{
			name:     "reference wins ties by spec order",
			file:     "positions.csv",
			headers:  []string{"instrumentIdentifier", "portfolioIdentifier"},
			expected: schema.KindInstrumentReference,
			score:    10,
		},
		{
			name:     "filename contains bonus breaks the tie",
			file:     "portfolio_result.csv",
			headers:  []string{"instrumentIdentifier", "portfolioIdentifier"},
			expected: schema.KindInstrumentResult,
			score:    11,
		},
		{
			name:     "risk metric with PD columns",
			file:     "export.csv",
			headers:  []string{"Instrument Identifier", "Reporting Date", "forward_pd", "LGD", "ead"},
			expected: schema.KindInstrumentRiskMetric,
			score:    13,
		},
		{
			name:     "cash flow needs cash flow date",
			file:     "cash_flow_2024.csv",
			headers:  []string{"instrumentIdentifier", "portfolioIdentifier", "cashFlowDate", "defaultAmount"},
			expected: schema.KindInstrumentCashflow,
			score:    18,
		},
		{
			name:     "macro series",
			file:     "macro_unemployment.csv",
			headers:  []string{"date", "unemploymentRate", "hpi"},
			expected: schema.KindMacroSeries,
			score:    7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detection, err := Detect(tt.file, tt.headers)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, detection.Kind)
			assert.Equal(t, tt.score, detection.Score)
		})
	}
}

func TestDetectReportsBestGuess(t *testing.T) {
	_, err := Detect("reference_extract.csv", []string{"portfolioIdentifier", "borrowerState"})
	require.Error(t, err)

	var detectionErr *DetectionError
	require.True(t, errors.As(err, &detectionErr))
	assert.Equal(t, schema.KindInstrumentReference, detectionErr.BestGuess.Kind)
	require.Len(t, detectionErr.Missing, 1)
	assert.Equal(t, schema.FieldInstrumentID, detectionErr.Missing[0].Field)
	assert.Contains(t, err.Error(), "resembles 'Instrument Reference'")
	assert.Contains(t, err.Error(), "instrument_id")
}

func TestDetectHeaderSampleIsCapped(t *testing.T) {
	headers := []string{"instrumentIdentifier", "portfolioIdentifier"}
	for i := 0; i < 20; i++ {
		headers = append(headers, "extra"+string(rune('a'+i)))
	}
	detection, err := Detect("reference.csv", headers)
	require.NoError(t, err)
	assert.Len(t, detection.HeaderSample, 10)
}

func TestLoad(t *testing.T) {
	content := "\xEF\xBB\xBF instrumentIdentifier ,portfolioIdentifier,borrowerState\n" +
		"I-1,P1,TX\n" +
		",,\n" +
		"I-2,P1\n" +
		"I-3,P2,CA,extra\n"

	file, err := Load("instrumentreference.csv", strings.NewReader(content))
	require.NoError(t, err)

	assert.Equal(t, schema.KindInstrumentReference, file.Kind)
	assert.Equal(t, []string{"instrumentIdentifier", "portfolioIdentifier", "borrowerState"}, file.Table.Columns)
	require.Equal(t, 3, file.RowCount())
	assert.Equal(t, "", file.Table.Value(1, "borrowerState"))
	assert.Equal(t, "CA", file.Table.Value(2, "borrowerState"))
	assert.Len(t, file.Table.Rows[2], 3)
}

func TestLoadEmpty(t *testing.T) {
	_, err := LoadBytes("empty.csv", []byte("   \n"))
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = Load("empty.csv", strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestLoadFilesGroupsByKind(t *testing.T) {
	loaded, err := LoadFiles(map[string][]byte{
		"reference_a.csv": []byte("instrumentIdentifier,portfolioIdentifier\nI-1,P1\n"),
		"reference_b.csv": []byte("instrumentIdentifier,portfolioIdentifier\nI-2,P1\n"),
		"chargeoff.csv":   []byte("instrumentIdentifier,chargeOffDate\nI-1,2024-03-31\n"),
		"blank.csv":       nil,
	})
	require.NoError(t, err)

	require.Len(t, loaded[schema.KindInstrumentReference], 2)
	assert.Equal(t, "reference_a.csv", loaded[schema.KindInstrumentReference][0].FileName)
	assert.Len(t, loaded[schema.KindChargeoff], 1)
}

func TestTableSelectAndRename(t *testing.T) {
	table := NewTable([]string{"a", "b", "c"}, [][]string{{"1", "2", "3"}, {"4", "5", "6"}})

	selected := table.Select("c", "missing", "a")
	assert.Equal(t, []string{"c", "a"}, selected.Columns)
	assert.Equal(t, [][]string{{"3", "1"}, {"6", "4"}}, selected.Rows)

	renamed := table.Rename(map[string]string{"b": "beta"})
	assert.True(t, renamed.Has("beta"))
	assert.False(t, renamed.Has("b"))
	assert.Equal(t, []string{"2", "5"}, renamed.Column("beta"))
	assert.Nil(t, renamed.Column("nope"))
}

func TestParseFloat(t *testing.T) {
	tests := []struct {
		raw      string
		expected float64
		ok       bool
	}{
		{"1,234.5", 1234.5, true},
		{"(100)", -100, true},
		{"5%", 0.05, true},
		{"$2,000", 2000, true},
		{" 0.012 ", 0.012, true},
		{"", 0, false},
		{"N/A", 0, false},
		{"abc", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			v, ok := ParseFloat(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.expected, v, 1e-12)
		})
	}
}

func TestParseDate(t *testing.T) {
	expected := time.Date(2023, 6, 30, 0, 0, 0, 0, time.UTC)
	for _, raw := range []string{"2023-06-30", "06/30/2023", "6/30/2023", "20230630", "2023-06-30T00:00:00", "2023-06-30 12:00:00"} {
		got, ok := ParseDate(raw)
		require.True(t, ok, raw)
		assert.True(t, expected.Equal(got), raw)
	}

	month, ok := ParseDate("2023-06")
	require.True(t, ok)
	assert.Equal(t, time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), month)

	_, ok = ParseDate("not a date")
	assert.False(t, ok)
}

func TestDateHelpers(t *testing.T) {
	dates := ParseDates([]string{"2024-01-31", "", "bad", "2023-03-15", "2025-06-30"})
	require.Len(t, dates, 3)

	min, max, ok := DateRange(dates)
	require.True(t, ok)
	assert.Equal(t, "2023Q1", QuarterLabel(min))
	assert.Equal(t, "2025Q2", QuarterLabel(max))

	_, _, ok = DateRange(nil)
	assert.False(t, ok)

	assert.Equal(t, 36, MonthsBetween(
		time.Date(2021, 1, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	))
	assert.Equal(t, -2, MonthsBetween(
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	))
}
