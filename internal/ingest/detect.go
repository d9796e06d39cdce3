package ingest

import (
	"fmt"
	"sort"
	"strings"

	"riskdash/internal/schema"
)

// Scores used when ranking candidate dataset kinds
const (
	RequiredFieldWeight = 5
	PrefixBonus         = 2
	ContainsBonus       = 1
	headerSampleSize    = 10
)

// Detection describes why a file was classified as a dataset kind
type Detection struct {
	Kind            schema.Kind       `json:"dataset_key"`
	DisplayName     string            `json:"display_name"`
	MatchedRequired map[string]string `json:"matched_required"`
	MatchedOptional map[string]string `json:"matched_optional"`
	FilenameBonus   int               `json:"filename_bonus"`
	Score           int               `json:"score"`
	HeaderSample    []string          `json:"header_sample"`
}

// IdentifyingHeaders returns the matched source headers, required first
func (d *Detection) IdentifyingHeaders(spec *schema.DatasetSpec) []string {
	headers := make([]string, 0, len(d.MatchedRequired)+len(d.MatchedOptional))
	for _, field := range spec.RequiredFields {
		if h, ok := d.MatchedRequired[field]; ok {
			headers = append(headers, h)
		}
	}
	for _, field := range spec.IdentifyingFields {
		if h, ok := d.MatchedOptional[field]; ok {
			headers = append(headers, h)
		}
	}
	return headers
}

// MissingField is a required field absent from a file, with the spellings tried
type MissingField struct {
	Field      string   `json:"field"`
	Candidates []string `json:"candidates"`
}

// DetectionError is returned when no dataset kind has all its required fields
type DetectionError struct {
	FileName  string
	BestGuess *schema.DatasetSpec
	Missing   []MissingField
}

func (e *DetectionError) Error() string {
	parts := make([]string, 0, len(e.Missing))
	for _, m := range e.Missing {
		parts = append(parts, fmt.Sprintf("%s (candidates: %s)", m.Field, strings.Join(m.Candidates, ", ")))
	}
	missing := strings.Join(parts, ", ")
	if missing == "" {
		missing = "required headers"
	}
	return fmt.Sprintf("file '%s' resembles '%s' but is missing required headers: %s",
		e.FileName, e.BestGuess.DisplayName, missing)
}

type evaluation struct {
	spec            *schema.DatasetSpec
	order           int
	matchedRequired map[string]string
	matchedOptional map[string]string
	missing         []MissingField
	requiredScore   int
	optionalScore   int
	filenameBonus   int
	total           int
}

func (e *evaluation) viable() bool {
	return len(e.matchedRequired) == len(e.spec.RequiredFields)
}

func evaluate(spec *schema.DatasetSpec, order int, fileName string, headers schema.HeaderMap) *evaluation {
	ev := &evaluation{
		spec:            spec,
		order:           order,
		matchedRequired: make(map[string]string),
		matchedOptional: make(map[string]string),
	}

	for _, field := range spec.RequiredFields {
		if match, ok := schema.MatchAlias(spec.AliasesFor(field), headers); ok {
			ev.matchedRequired[field] = match
		} else {
			ev.missing = append(ev.missing, MissingField{Field: field, Candidates: spec.AliasesFor(field)})
		}
	}
	for _, field := range spec.IdentifyingFields {
		if match, ok := schema.MatchAlias(spec.AliasesFor(field), headers); ok {
			ev.matchedOptional[field] = match
		}
	}

	ev.filenameBonus = filenameBonus(fileName, spec.FilenamePrefixes)
	ev.requiredScore = len(ev.matchedRequired) * RequiredFieldWeight
	ev.optionalScore = len(ev.matchedOptional)
	ev.total = ev.requiredScore + ev.optionalScore + ev.filenameBonus
	return ev
}

func filenameBonus(fileName string, prefixes []string) int {
	lower := strings.ToLower(fileName)
	for _, prefix := range prefixes {
		if strings.HasPrefix(lower, prefix) {
			return PrefixBonus
		}
	}
	for _, prefix := range prefixes {
		if strings.Contains(lower, prefix) {
			return ContainsBonus
		}
	}
	return 0
}

// Detect classifies a file by its name and header row
func Detect(fileName string, headers []string) (*Detection, error) {
	headerMap := schema.NormalizeHeaders(headers)
	specs := schema.Specs()

	evaluations := make([]*evaluation, 0, len(specs))
	for i, spec := range specs {
		evaluations = append(evaluations, evaluate(spec, i, fileName, headerMap))
	}

	viable := make([]*evaluation, 0, len(evaluations))
	for _, ev := range evaluations {
		if ev.viable() {
			viable = append(viable, ev)
		}
	}

	if len(viable) == 0 {
		best := evaluations[0]
		for _, ev := range evaluations[1:] {
			if ev.total > best.total {
				best = ev
			}
		}
		return nil, &DetectionError{FileName: fileName, BestGuess: best.spec, Missing: best.missing}
	}

	sort.SliceStable(viable, func(i, j int) bool {
		a, b := viable[i], viable[j]
		if a.total != b.total {
			return a.total > b.total
		}
		if a.requiredScore != b.requiredScore {
			return a.requiredScore > b.requiredScore
		}
		if a.optionalScore != b.optionalScore {
			return a.optionalScore > b.optionalScore
		}
		return a.order < b.order
	})

	best := viable[0]
	sample := headers
	if len(sample) > headerSampleSize {
		sample = sample[:headerSampleSize]
	}
	detection := &Detection{
		Kind:            best.spec.Kind,
		DisplayName:     best.spec.DisplayName,
		MatchedRequired: best.matchedRequired,
		MatchedOptional: best.matchedOptional,
		FilenameBonus:   best.filenameBonus,
		Score:           best.total,
		HeaderSample:    append([]string(nil), sample...),
	}
	return detection, nil
}
