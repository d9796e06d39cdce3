package inputs

import (
	"riskdash/internal/schema"
)

// Provenance records where a loaded input's columns came from
type Provenance struct {
	InputKey        string            `json:"input_key"`
	Title           string            `json:"title"`
	FileName        string            `json:"file_name"`
	Kind            schema.Kind       `json:"kind"`
	SelectedColumns map[string]string `json:"selected_columns"`
	MissingHeaders  []string          `json:"missing_headers,omitempty"`
	RowCount        int               `json:"row_count"`
	Path            string            `json:"path"`
}

// Explanation lists the provenance of every loaded input on a page together
// with the priority orders used to pick columns
type Explanation struct {
	PageKey    string              `json:"page_key"`
	Inputs     []Provenance        `json:"inputs"`
	Priorities map[string][]string `json:"priorities"`
}

// Priorities returns the column priority lists applied during harmonization
func Priorities() map[string][]string {
	return map[string][]string{
		"probability_of_default": schema.PDPriority,
		"risk_rating":            schema.RatingPriority,
		"exposure_at_default":    schema.EADPriority,
		"charge_off_amount":      schema.ChargeOffAmountPriority,
		"charge_off_date":        schema.EventDatePriority,
		"snapshot_date":          schema.SnapshotDatePriority,
		"geography":              schema.GeographyPriority,
		"property_group":         schema.PropertyFields,
	}
}

// Explain describes the loaded inputs of a panel
func Explain(panel *PanelState) Explanation {
	out := Explanation{PageKey: panel.PageKey, Priorities: Priorities()}
	for _, s := range panel.Ordered() {
		if !s.IsLoaded() {
			continue
		}
		out.Inputs = append(out.Inputs, Provenance{
			InputKey:        s.Config.Key,
			Title:           s.Config.Title,
			FileName:        s.FileName,
			Kind:            s.Config.Kind,
			SelectedColumns: s.SelectedColumns,
			MissingHeaders:  s.MissingHeaders,
			RowCount:        s.RowCount,
			Path:            s.Path,
		})
	}
	return out
}
