package inputs

import (
	"fmt"
	"sort"
	"strings"

	"riskdash/internal/schema"
)

// MatchColumns resolves an expectation against a file's columns. It returns
// the canonical to actual column selections and the candidates that could
// not be found.
func MatchColumns(spec *schema.DatasetSpec, columns []string, exp HeaderExpectation) (map[string]string, []string) {
	headers := schema.NormalizeHeaders(columns)
	selected := make(map[string]string)
	var missing []string

	if exp.Match == MatchAny {
		for _, candidate := range exp.Candidates {
			if column, ok := schema.MatchAlias(spec.AliasesFor(candidate), headers); ok {
				selected[candidate] = column
				return selected, nil
			}
		}
		if exp.Required {
			missing = append(missing, strings.Join(exp.Candidates, " / "))
		}
		return selected, missing
	}

	for _, candidate := range exp.Candidates {
		if column, ok := schema.MatchAlias(spec.AliasesFor(candidate), headers); ok {
			selected[candidate] = column
		} else {
			missing = append(missing, candidate)
		}
	}
	return selected, missing
}

// Upload describes a file bound to an input slot. Err carries a load or
// detection failure.
type Upload struct {
	FileName  string
	DatasetID string
	Path      string
	Kind      schema.Kind
	Columns   []string
	RowCount  int
	Err       error
}

// InputStatus is the evaluated state of one input slot
type InputStatus struct {
	Config          PageInputConfig   `json:"config"`
	FileName        string            `json:"file_name,omitempty"`
	DatasetID       string            `json:"dataset_id,omitempty"`
	Path            string            `json:"path,omitempty"`
	Columns         []string          `json:"columns,omitempty"`
	RowCount        int               `json:"row_count"`
	Errors          []string          `json:"errors,omitempty"`
	MissingHeaders  []string          `json:"missing_headers,omitempty"`
	SelectedColumns map[string]string `json:"selected_columns,omitempty"`
}

// IsLoaded reports a stored file with no errors
func (s *InputStatus) IsLoaded() bool {
	return s.Path != "" && len(s.Errors) == 0
}

// IsReady reports a loaded file with every required header
func (s *InputStatus) IsReady() bool {
	return s.IsLoaded() && len(s.MissingHeaders) == 0
}

// Evaluate checks an upload against its slot. A nil upload is an empty slot.
func Evaluate(config PageInputConfig, upload *Upload) *InputStatus {
	status := &InputStatus{Config: config, SelectedColumns: make(map[string]string)}
	if upload == nil {
		return status
	}
	status.FileName = upload.FileName
	status.DatasetID = upload.DatasetID
	status.Path = upload.Path

	if upload.Err != nil {
		status.Errors = append(status.Errors, upload.Err.Error())
		return status
	}
	if upload.Kind != config.Kind {
		detected := string(upload.Kind)
		if detected == "" {
			detected = "none"
		}
		status.Errors = append(status.Errors,
			fmt.Sprintf("Detected dataset type(s): %s. Expected '%s'.", detected, config.Kind))
		return status
	}

	status.Columns = upload.Columns
	status.RowCount = upload.RowCount

	spec, err := schema.Lookup(config.Kind)
	if err != nil {
		status.Errors = append(status.Errors, err.Error())
		return status
	}
	for _, exp := range config.Expectations {
		selected, missing := MatchColumns(spec, upload.Columns, exp)
		for canonical, column := range selected {
			status.SelectedColumns[canonical] = column
		}
		if exp.Required {
			for _, m := range missing {
				status.MissingHeaders = append(status.MissingHeaders, exp.Name+": "+m)
			}
		}
	}
	return status
}

// PanelState is the evaluated state of every input on a page
type PanelState struct {
	PageKey  string                  `json:"page_key"`
	Statuses map[string]*InputStatus `json:"statuses"`
	order    []string
}

// NewPanel evaluates every slot of a page. Uploads are keyed by input key.
func NewPanel(page *Page, uploads map[string]*Upload) *PanelState {
	panel := &PanelState{PageKey: page.Key, Statuses: make(map[string]*InputStatus, len(page.Inputs))}
	for _, config := range page.Inputs {
		panel.Statuses[config.Key] = Evaluate(config, uploads[config.Key])
		panel.order = append(panel.order, config.Key)
	}
	return panel
}

// Ordered returns statuses in page order
func (p *PanelState) Ordered() []*InputStatus {
	keys := p.order
	if len(keys) == 0 {
		for key := range p.Statuses {
			keys = append(keys, key)
		}
		sort.Strings(keys)
	}
	out := make([]*InputStatus, 0, len(keys))
	for _, key := range keys {
		out = append(out, p.Statuses[key])
	}
	return out
}

// MissingRequiredFiles lists titles of required inputs that are not loaded
func (p *PanelState) MissingRequiredFiles() []string {
	var out []string
	for _, s := range p.Ordered() {
		if s.Config.Required && !s.IsLoaded() {
			out = append(out, s.Config.Title)
		}
	}
	return out
}

// MissingRequiredHeaders maps required input titles to their missing headers
func (p *PanelState) MissingRequiredHeaders() map[string][]string {
	out := make(map[string][]string)
	for _, s := range p.Ordered() {
		if s.Config.Required && len(s.MissingHeaders) > 0 {
			out[s.Config.Title] = s.MissingHeaders
		}
	}
	return out
}

// Ready reports whether the page can compute
func (p *PanelState) Ready() bool {
	return len(p.MissingRequiredFiles()) == 0 && len(p.MissingRequiredHeaders()) == 0
}

// Loaded returns the status of a slot when it holds a usable file
func (p *PanelState) Loaded(key string) (*InputStatus, bool) {
	s, ok := p.Statuses[key]
	if !ok || !s.IsLoaded() {
		return nil, false
	}
	return s, true
}

// Summary is the JSON form of a panel with the derived fields filled in
type Summary struct {
	PageKey                string              `json:"page_key"`
	Ready                  bool                `json:"ready"`
	MissingRequiredFiles   []string            `json:"missing_required_files"`
	MissingRequiredHeaders map[string][]string `json:"missing_required_headers"`
	Inputs                 []*InputStatus      `json:"inputs"`
}

// Summary renders the panel for clients
func (p *PanelState) Summary() Summary {
	return Summary{
		PageKey:                p.PageKey,
		Ready:                  p.Ready(),
		MissingRequiredFiles:   p.MissingRequiredFiles(),
		MissingRequiredHeaders: p.MissingRequiredHeaders(),
		Inputs:                 p.Ordered(),
	}
}
