package geo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const crosswalkCSV = `ZIP,CBSA,CBSA Title,State
75701,46340,"Tyler, TX",TX
75201,19100,"Dallas-Fort Worth-Arlington, TX",TX
07030,35620,"New York-Newark-Jersey City, NY-NJ",NJ
`

func loadTestCrosswalk(t *testing.T) *Crosswalk {
	t.Helper()
	cw, err := LoadCrosswalk(strings.NewReader(crosswalkCSV))
	require.NoError(t, err)
	return cw
}

func TestNormalizeState(t *testing.T) {
	tests := map[string]string{
		"TX":                   "TX",
		" tx ":                 "TX",
		"Texas":                "TX",
		"new york":             "NY",
		"district of columbia": "DC",
		"48":                   "TX",
		"6":                    "CA",
		"3":                    "",
		"TX-Dallas":            "TX",
		"":                     "",
	}
	for raw, expected := range tests {
		t.Run(raw, func(t *testing.T) {
			assert.Equal(t, expected, NormalizeState(raw))
		})
	}
}

func TestNormalizeZIP(t *testing.T) {
	tests := map[string]string{
		"75701":      "75701",
		"75701-1234": "75701",
		"757011234":  "75701",
		"7030":       "07030",
		"7030.0":     "07030",
		"ABCDE":      "",
		"12":         "",
		"":           "",
	}
	for raw, expected := range tests {
		t.Run(raw, func(t *testing.T) {
			assert.Equal(t, expected, NormalizeZIP(raw))
		})
	}
}

func TestLoadCrosswalk(t *testing.T) {
	cw := loadTestCrosswalk(t)
	assert.Equal(t, 3, cw.Len())

	_, err := LoadCrosswalk(strings.NewReader("foo,bar\n1,2\n"))
	assert.Error(t, err)
}

func TestLoadCrosswalkFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zip_cbsa.csv")
	require.NoError(t, os.WriteFile(path, []byte(crosswalkCSV), 0644))

	cw, err := LoadCrosswalkFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cw.Len())

	_, err = LoadCrosswalkFile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestResolverPrecedence(t *testing.T) {
	r := NewResolver(loadTestCrosswalk(t))
	require.True(t, r.HasCrosswalk())

	tests := []struct {
		name     string
		record   Record
		expected Resolution
	}{
		{
			name:     "geography code wins",
			record:   Record{GeographyCode: "19100", BorrowerZIP: "75701", State: "TX"},
			expected: Resolution{CBSA: "19100", CBSATitle: "Dallas-Fort Worth-Arlington, TX", State: "TX", Source: SourceGeographyCode},
		},
		{
			name:     "unknown geography code is still a CBSA",
			record:   Record{GeographyCode: "99999"},
			expected: Resolution{CBSA: "99999", Source: SourceGeographyCode},
		},
		{
			name:     "borrower zip before collateral zip",
			record:   Record{GeographyCode: "n/a", BorrowerZIP: "75701-0001", CollateralZIP: "75201"},
			expected: Resolution{CBSA: "46340", CBSATitle: "Tyler, TX", State: "TX", Source: SourceBorrowerZIP},
		},
		{
			name:     "collateral zip when borrower zip unknown",
			record:   Record{BorrowerZIP: "99999", CollateralZIP: "7030", State: "NJ"},
			expected: Resolution{CBSA: "35620", CBSATitle: "New York-Newark-Jersey City, NY-NJ", State: "NJ", Source: SourceCollateralZIP},
		},
		{
			name:     "state fallback",
			record:   Record{BorrowerZIP: "00000", State: "Texas"},
			expected: Resolution{State: "TX", Source: SourceState},
		},
		{
			name:     "nothing resolvable",
			record:   Record{State: "ZZ"},
			expected: Resolution{Source: SourceNone},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, r.Resolve(tt.record))
		})
	}
}

func TestResolverWithoutCrosswalk(t *testing.T) {
	r := NewResolver(nil)
	assert.False(t, r.HasCrosswalk())

	res := r.Resolve(Record{BorrowerZIP: "75701", State: "tx"})
	assert.Equal(t, Resolution{State: "TX", Source: SourceState}, res)
}

func TestStates(t *testing.T) {
	all := States()
	assert.Len(t, all, 52)

	s, ok := LookupState("pr")
	require.True(t, ok)
	assert.Equal(t, "Puerto Rico", s.Name)
}
