package geo

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"riskdash/internal/schema"
)

// Resolution sources, in precedence order
const (
	SourceGeographyCode = "geography_code"
	SourceBorrowerZIP   = "borrower_zip"
	SourceCollateralZIP = "collateral_zip"
	SourceState         = "state"
	SourceNone          = "none"
)

// CBSA is a core-based statistical area
type CBSA struct {
	Code  string `json:"code"`
	Title string `json:"title"`
	State string `json:"state,omitempty"`
}

// Crosswalk maps five-digit ZIP codes to CBSAs
type Crosswalk struct {
	byZIP  map[string]CBSA
	byCode map[string]CBSA
}

// NewCrosswalk returns an empty crosswalk
func NewCrosswalk() *Crosswalk {
	return &Crosswalk{byZIP: make(map[string]CBSA), byCode: make(map[string]CBSA)}
}

// Add registers a ZIP to CBSA mapping
func (c *Crosswalk) Add(zip string, cbsa CBSA) {
	z := NormalizeZIP(zip)
	if z == "" || cbsa.Code == "" {
		return
	}
	c.byZIP[z] = cbsa
	if existing, ok := c.byCode[cbsa.Code]; !ok || existing.Title == "" {
		c.byCode[cbsa.Code] = cbsa
	}
}

// Len returns the number of ZIPs mapped
func (c *Crosswalk) Len() int {
	if c == nil {
		return 0
	}
	return len(c.byZIP)
}

// LoadCrosswalk reads a ZIP to CBSA crosswalk CSV with columns zip, cbsa and
// optionally cbsa_title and state. Column names are matched loosely.
func LoadCrosswalk(r io.Reader) (*Crosswalk, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read crosswalk header: %w", err)
	}
	headers := schema.NormalizeHeaders(header)
	index := func(aliases ...string) int {
		name, ok := schema.MatchAlias(aliases, headers)
		if !ok {
			return -1
		}
		for i, h := range header {
			if strings.TrimSpace(h) == name {
				return i
			}
		}
		return -1
	}

	zipCol := index("zip", "zipcode", "zip_code", "zcta")
	cbsaCol := index("cbsa", "cbsa_code", "cbsacode", "msa", "msa_code")
	titleCol := index("cbsa_title", "cbsatitle", "cbsa_name", "msa_name", "title", "name")
	stateCol := index("state", "usps_zip_pref_state", "state_code")
	if zipCol < 0 || cbsaCol < 0 {
		return nil, fmt.Errorf("crosswalk must contain zip and cbsa columns")
	}

	cw := NewCrosswalk()
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read crosswalk row: %w", err)
		}
		cell := func(i int) string {
			if i < 0 || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}
		cw.Add(cell(zipCol), CBSA{
			Code:  cell(cbsaCol),
			Title: cell(titleCol),
			State: NormalizeState(cell(stateCol)),
		})
	}
	return cw, nil
}

// LoadCrosswalkFile opens and reads a crosswalk CSV
func LoadCrosswalkFile(path string) (*Crosswalk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open crosswalk %s: %w", path, err)
	}
	defer f.Close()
	return LoadCrosswalk(f)
}

// NormalizeZIP reduces a ZIP or ZIP+4 to five digits, restoring leading zeros
// lost by spreadsheet exports. Values that are not ZIP-like give "".
func NormalizeZIP(raw string) string {
	value := strings.TrimSpace(raw)
	if i := strings.IndexAny(value, "- "); i >= 0 {
		value = value[:i]
	}
	value = strings.TrimSuffix(value, ".0")
	if value == "" {
		return ""
	}
	for _, r := range value {
		if !unicode.IsDigit(r) {
			return ""
		}
	}
	switch {
	case len(value) == 9:
		return value[:5]
	case len(value) > 5:
		return ""
	case len(value) < 3:
		return ""
	}
	return strings.Repeat("0", 5-len(value)) + value
}

// Record is the geography of one instrument
type Record struct {
	GeographyCode string
	BorrowerZIP   string
	CollateralZIP string
	State         string
}

// Resolution is where an instrument was placed
type Resolution struct {
	CBSA      string `json:"cbsa,omitempty"`
	CBSATitle string `json:"cbsa_title,omitempty"`
	State     string `json:"state,omitempty"`
	Source    string `json:"source"`
}

// Resolver places instruments in CBSAs and states
type Resolver struct {
	crosswalk *Crosswalk
}

// NewResolver creates a resolver; a nil crosswalk resolves states only
func NewResolver(cw *Crosswalk) *Resolver {
	return &Resolver{crosswalk: cw}
}

// HasCrosswalk reports whether CBSA lookups are possible
func (r *Resolver) HasCrosswalk() bool {
	return r != nil && r.crosswalk.Len() > 0
}

// Resolve applies the precedence geographyCode, borrower ZIP, collateral ZIP,
// then state. The state is always filled when any source yields one.
func (r *Resolver) Resolve(rec Record) Resolution {
	state := NormalizeState(rec.State)

	if code := normalizeCBSACode(rec.GeographyCode); code != "" {
		res := Resolution{CBSA: code, State: state, Source: SourceGeographyCode}
		if r.HasCrosswalk() {
			if cbsa, ok := r.crosswalk.byCode[code]; ok {
				res.CBSATitle = cbsa.Title
				if res.State == "" {
					res.State = cbsa.State
				}
			}
		}
		return res
	}

	if r.HasCrosswalk() {
		for _, candidate := range []struct {
			zip    string
			source string
		}{
			{rec.BorrowerZIP, SourceBorrowerZIP},
			{rec.CollateralZIP, SourceCollateralZIP},
		} {
			zip := NormalizeZIP(candidate.zip)
			if zip == "" {
				continue
			}
			if cbsa, ok := r.crosswalk.byZIP[zip]; ok {
				res := Resolution{CBSA: cbsa.Code, CBSATitle: cbsa.Title, State: state, Source: candidate.source}
				if res.State == "" {
					res.State = cbsa.State
				}
				return res
			}
		}
	}

	if state != "" {
		if _, ok := LookupState(state); ok {
			return Resolution{State: state, Source: SourceState}
		}
	}
	return Resolution{Source: SourceNone}
}

// normalizeCBSACode accepts five-digit CBSA codes only; anything else (state
// names, ZIPs with separators, free text) falls through to the next source.
func normalizeCBSACode(raw string) string {
	value := strings.TrimSuffix(strings.TrimSpace(raw), ".0")
	if len(value) != 5 {
		return ""
	}
	for _, r := range value {
		if !unicode.IsDigit(r) {
			return ""
		}
	}
	return value
}
