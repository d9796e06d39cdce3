package harmonize

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"riskdash/internal/ingest"
	"riskdash/internal/schema"
)

// Num is an optional measurement. Blank or unparsable cells are invalid
// rather than zero.
type Num struct {
	Value float64
	Valid bool
}

// Some wraps a known value
func Some(v float64) Num {
	return Num{Value: v, Valid: true}
}

// ParseNum reads a cell as a Num
func ParseNum(raw string) Num {
	v, ok := ingest.ParseFloat(raw)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return Num{}
	}
	return Some(v)
}

// MarshalJSON writes null for invalid values
func (n Num) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(n.Value, 'g', -1, 64)), nil
}

// UnmarshalJSON accepts a number or null
func (n *Num) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = Num{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = Some(v)
	return nil
}

// Occupancy classifications
const (
	OccupancyOwner    = "Owner-occupied"
	OccupancyNonOwner = "Non-owner-occupied"
	OccupancyUnknown  = "Unknown"
)

// UnclassifiedPropertyGroup is used when no property column has a value
const UnclassifiedPropertyGroup = "Unclassified"

// Position is one instrument at one snapshot, joined from reference and result
type Position struct {
	InstrumentID  string `json:"instrument_id"`
	PortfolioID   string `json:"portfolio_id"`
	Quarter       string `json:"quarter,omitempty"`
	State         string `json:"state"`
	CBSA          string `json:"cbsa,omitempty"`
	CBSATitle     string `json:"cbsa_title,omitempty"`
	GeoSource     string `json:"geo_source"`
	Occupancy     string `json:"occupancy"`
	PropertyGroup string `json:"property_group"`
	RealEstate    bool   `json:"real_estate"`
	PD            Num    `json:"pd"`
	LGD           Num    `json:"lgd"`
	Exposure      Num    `json:"exposure"`
}

// Observation is one risk metric reading
type Observation struct {
	InstrumentID string    `json:"instrument_id"`
	PortfolioID  string    `json:"portfolio_id,omitempty"`
	Date         time.Time `json:"date"`
	PD           Num       `json:"pd"`
	PDField      string    `json:"pd_field,omitempty"`
	LGD          Num       `json:"lgd"`
	EAD          Num       `json:"ead"`
}

// RatingSnapshot is an instrument's rating at one result date
type RatingSnapshot struct {
	InstrumentID string    `json:"instrument_id"`
	PortfolioID  string    `json:"portfolio_id"`
	Date         time.Time `json:"date"`
	Quarter      string    `json:"quarter"`
	Rating       string    `json:"rating"`
	RatingSource string    `json:"rating_source"`
	PD           Num       `json:"pd"`
	Exposure     Num       `json:"exposure"`
}

// Loss event sources
const (
	EventSourceChargeoff = "chargeoff"
	EventSourceCashflow  = "cashflow"
)

// LossEvent is a default or charge-off
type LossEvent struct {
	InstrumentID string    `json:"instrument_id"`
	PortfolioID  string    `json:"portfolio_id,omitempty"`
	Date         time.Time `json:"date"`
	Amount       Num       `json:"amount"`
	Source       string    `json:"source"`
}

// MacroPoint is one observation of a macroeconomic variable
type MacroPoint struct {
	Variable string    `json:"variable"`
	Date     time.Time `json:"date"`
	Value    float64   `json:"value"`
}

// Report summarizes how one dataset kind was unioned
type Report struct {
	Kind         schema.Kind       `json:"kind"`
	Sources      []string          `json:"sources"`
	Rows         int               `json:"rows"`
	Kept         int               `json:"kept"`
	DroppedNoID  int               `json:"dropped_no_id"`
	DroppedOther int               `json:"dropped_other"`
	Conflicts    int               `json:"conflicts"`
	Columns      map[string]string `json:"columns"`
}

func newReport(kind schema.Kind) *Report {
	return &Report{Kind: kind, Columns: make(map[string]string)}
}

func (r *Report) recordColumns(selected map[string]string) {
	for canonical, column := range selected {
		if _, ok := r.Columns[canonical]; !ok {
			r.Columns[canonical] = column
		}
	}
}

// Provenance maps dataset kind to canonical field to source column
type Provenance map[schema.Kind]map[string]string

// Add merges a report's columns
func (p Provenance) Add(r *Report) {
	if r == nil {
		return
	}
	if p[r.Kind] == nil {
		p[r.Kind] = make(map[string]string)
	}
	for canonical, column := range r.Columns {
		if _, ok := p[r.Kind][canonical]; !ok {
			p[r.Kind][canonical] = column
		}
	}
}
