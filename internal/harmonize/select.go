package harmonize

import (
	"strings"
	"time"

	"riskdash/internal/ingest"
	"riskdash/internal/schema"
)

// SelectCanonical resolves canonical fields to the table's actual columns
// using the spec's alias order. Fields with no matching column are omitted.
func SelectCanonical(table *ingest.Table, spec *schema.DatasetSpec, fields []string) map[string]string {
	headers := schema.NormalizeHeaders(table.Columns)
	selected := make(map[string]string, len(fields))
	for _, field := range fields {
		if column, ok := schema.MatchAlias(spec.AliasesFor(field), headers); ok {
			selected[field] = column
		}
	}
	return selected
}

// SelectAll resolves every field the spec knows about
func SelectAll(table *ingest.Table, spec *schema.DatasetSpec, extra ...string) map[string]string {
	fields := make([]string, 0, len(spec.Aliases)+len(extra))
	for field := range spec.Aliases {
		fields = append(fields, field)
	}
	fields = append(fields, extra...)
	return SelectCanonical(table, spec, fields)
}

// FirstAvailable returns the first canonical field in priority order that
// has a column
func FirstAvailable(priority []string, selected map[string]string) (string, bool) {
	for _, field := range priority {
		if _, ok := selected[field]; ok {
			return field, true
		}
	}
	return "", false
}

// row reads canonical fields from one table row
type row struct {
	table    *ingest.Table
	selected map[string]string
	index    int
}

func (r row) text(field string) string {
	column, ok := r.selected[field]
	if !ok {
		return ""
	}
	return r.table.Value(r.index, column)
}

func (r row) num(field string) Num {
	return ParseNum(r.text(field))
}

// firstNum walks a priority list and returns the first parsable value with
// the field it came from
func (r row) firstNum(priority []string) (Num, string) {
	for _, field := range priority {
		if n := r.num(field); n.Valid {
			return n, field
		}
	}
	return Num{}, ""
}

func (r row) firstText(priority []string) (string, string) {
	for _, field := range priority {
		if v := r.text(field); v != "" {
			return v, field
		}
	}
	return "", ""
}

func (r row) firstDate(priority []string) (time.Time, bool) {
	for _, field := range priority {
		if t, ok := ingest.ParseDate(r.text(field)); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func rows(file *ingest.LoadedFile, selected map[string]string) []row {
	out := make([]row, file.Table.Len())
	for i := range out {
		out[i] = row{table: file.Table, selected: selected, index: i}
	}
	return out
}

var occupancyMapping = map[string]string{
	"owner":                   OccupancyOwner,
	"owner occupied":          OccupancyOwner,
	"owner-occupied":          OccupancyOwner,
	"owner occupied property": OccupancyOwner,
	"non-owner":               OccupancyNonOwner,
	"non owner":               OccupancyNonOwner,
	"non-owner-occupied":      OccupancyNonOwner,
	"tenant":                  OccupancyNonOwner,
}

// MapOccupancy classifies a raw occupancy status
func MapOccupancy(raw string) string {
	if mapped, ok := occupancyMapping[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return mapped
	}
	return OccupancyUnknown
}

// nonRealEstateClasses are asset class fragments that mark an instrument as
// not secured by real estate
var nonRealEstateClasses = []string{
	"consumer",
	"credit card",
	"auto",
	"commercial and industrial",
	"c&i",
	"securities",
}

// IsRealEstate decides the real estate flag from the property columns.
// Only an explicit non real estate asset class clears it, so extracts
// without property columns count as real estate.
func IsRealEstate(propertyStatus, propertyGroup, assetClass string) bool {
	class := strings.ToLower(strings.TrimSpace(assetClass))
	for _, fragment := range nonRealEstateClasses {
		if strings.Contains(class, fragment) {
			return false
		}
	}
	return true
}

// ChoosePropertyGroup picks the first non-empty property column
func ChoosePropertyGroup(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return UnclassifiedPropertyGroup
}
