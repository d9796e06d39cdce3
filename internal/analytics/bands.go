package analytics

import (
	"math"
	"time"

	"riskdash/internal/ingest"
)

// Band is a half-open PD interval [Lower, Upper)
type Band struct {
	Label string  `json:"label"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// PDBands partitions PD in ascending order
var PDBands = []Band{
	{Label: "PD <0.25%", Lower: 0, Upper: 0.0025},
	{Label: "PD 0.25-0.50%", Lower: 0.0025, Upper: 0.005},
	{Label: "PD 0.50-1%", Lower: 0.005, Upper: 0.01},
	{Label: "PD 1-2%", Lower: 0.01, Upper: 0.02},
	{Label: "PD 2-5%", Lower: 0.02, Upper: 0.05},
	{Label: "PD 5-10%", Lower: 0.05, Upper: 0.10},
	{Label: "PD 10-20%", Lower: 0.10, Upper: 0.20},
	{Label: "PD >=20%", Lower: 0.20, Upper: math.Inf(1)},
}

// PDBand returns the band containing pd and its index. Negative PDs fall in
// the first band.
func PDBand(pd float64) (Band, int) {
	for i, b := range PDBands {
		if pd < b.Upper {
			return b, i
		}
	}
	last := len(PDBands) - 1
	return PDBands[last], last
}

func bandIndex(label string) (int, bool) {
	for i, b := range PDBands {
		if b.Label == label {
			return i, true
		}
	}
	return 0, false
}

// quarter is a calendar quarter counted from year zero
type quarter int

func quarterOf(t time.Time) quarter {
	return quarter(t.Year()*4 + (int(t.Month())-1)/3)
}

func (q quarter) String() string {
	return ingest.QuarterLabel(time.Date(int(q)/4, time.Month(int(q)%4*3+1), 1, 0, 0, 0, 0, time.UTC))
}

const dateLayout = "2006-01-02"
