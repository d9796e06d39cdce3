package harmonize

import (
	"sort"

	"riskdash/internal/ingest"
	"riskdash/internal/schema"
)

// MacroPoints reads macroeconomic series in wide layout: one date column and
// one column per variable. Columns with no numeric cell are ignored.
func MacroPoints(files []*ingest.LoadedFile) ([]MacroPoint, *Report) {
	spec := schema.MustLookup(schema.KindMacroSeries)
	report := newReport(schema.KindMacroSeries)
	u := newUnion[MacroPoint]()

	for _, file := range files {
		selected := SelectCanonical(file.Table, spec, []string{schema.FieldObservationDate})
		report.Sources = append(report.Sources, file.FileName)
		report.recordColumns(selected)
		dateColumn := selected[schema.FieldObservationDate]

		var variables []string
		for _, column := range file.Table.Columns {
			if column == dateColumn || column == "" {
				continue
			}
			for _, v := range file.Table.Column(column) {
				if _, ok := ingest.ParseFloat(v); ok {
					variables = append(variables, column)
					break
				}
			}
		}
		for _, v := range variables {
			report.Columns[v] = v
		}

		for i := 0; i < file.Table.Len(); i++ {
			report.Rows++
			date, ok := ingest.ParseDate(file.Table.Value(i, dateColumn))
			if !ok {
				report.DroppedOther++
				continue
			}
			for _, variable := range variables {
				value, ok := ingest.ParseFloat(file.Table.Value(i, variable))
				if !ok {
					continue
				}
				u.put(dateKey(variable, date), MacroPoint{Variable: variable, Date: date, Value: value})
			}
		}
	}
	report.Conflicts = u.conflicts
	values := u.values()
	report.Kept = len(values)
	sort.SliceStable(values, func(i, j int) bool {
		if values[i].Variable != values[j].Variable {
			return values[i].Variable < values[j].Variable
		}
		return values[i].Date.Before(values[j].Date)
	})
	return values, report
}
