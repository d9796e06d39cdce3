package harmonize

import (
	"sort"

	"riskdash/internal/ingest"
	"riskdash/internal/schema"
)

func riskMetricFields() []string {
	fields := []string{
		schema.FieldInstrumentID, schema.FieldPortfolioID,
		schema.FieldReportingDate, schema.FieldAsOfDate,
	}
	fields = append(fields, schema.PDPriority...)
	fields = append(fields, schema.LGDFields...)
	fields = append(fields, schema.EADPriority...)
	return fields
}

// Observations unions risk metric files into one reading per instrument and
// date. PD and EAD are taken per row from the first populated column in
// priority order. Rows without an observation date are dropped.
func Observations(files []*ingest.LoadedFile) ([]Observation, *Report) {
	spec := schema.MustLookup(schema.KindInstrumentRiskMetric)
	report := newReport(schema.KindInstrumentRiskMetric)
	u := newUnion[Observation]()

	for _, file := range files {
		selected := SelectCanonical(file.Table, spec, riskMetricFields())
		report.Sources = append(report.Sources, file.FileName)
		report.recordColumns(selected)

		for _, r := range rows(file, selected) {
			report.Rows++
			id := r.text(schema.FieldInstrumentID)
			if id == "" {
				report.DroppedNoID++
				continue
			}
			date, ok := r.firstDate(schema.SnapshotDatePriority)
			if !ok {
				report.DroppedOther++
				continue
			}
			pd, pdField := r.firstNum(schema.PDPriority)
			lgd, _ := r.firstNum(schema.LGDFields)
			ead, _ := r.firstNum(schema.EADPriority)

			u.put(dateKey(id, date), Observation{
				InstrumentID: id,
				PortfolioID:  r.text(schema.FieldPortfolioID),
				Date:         date,
				PD:           pd,
				PDField:      pdField,
				LGD:          lgd,
				EAD:          ead,
			})
		}
	}

	report.Conflicts = u.conflicts
	values := u.values()
	report.Kept = len(values)
	SortObservations(values)
	return values, report
}

// SortObservations orders by instrument then date
func SortObservations(obs []Observation) {
	sort.SliceStable(obs, func(i, j int) bool {
		if obs[i].InstrumentID != obs[j].InstrumentID {
			return obs[i].InstrumentID < obs[j].InstrumentID
		}
		return obs[i].Date.Before(obs[j].Date)
	})
}

// GroupObservations splits sorted observations by instrument
func GroupObservations(obs []Observation) map[string][]Observation {
	out := make(map[string][]Observation)
	for _, o := range obs {
		out[o.InstrumentID] = append(out[o.InstrumentID], o)
	}
	return out
}
