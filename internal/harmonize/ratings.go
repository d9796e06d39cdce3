package harmonize

import (
	"time"

	"riskdash/internal/ingest"
	"riskdash/internal/schema"
)

var exposurePriority = append(append([]string{}, schema.EADPriority...), schema.FieldAmortizedCost)

func resultRatingFields() []string {
	fields := []string{
		schema.FieldInstrumentID, schema.FieldPortfolioID,
		schema.FieldReportingDate, schema.FieldAsOfDate,
		schema.FieldAmortizedCost, schema.FieldPDOneYear,
	}
	fields = append(fields, schema.RatingPriority...)
	fields = append(fields, schema.EADPriority...)
	return fields
}

// RatingSnapshots unions result files into one rating per instrument and
// snapshot date. The rating is the first populated rating column in priority
// order. PD comes from the result's one-year PD when present, otherwise from
// the latest risk metric observation of the instrument on or before the
// snapshot date.
func RatingSnapshots(results []*ingest.LoadedFile, riskMetrics []*ingest.LoadedFile) ([]RatingSnapshot, []*Report) {
	spec := schema.MustLookup(schema.KindInstrumentResult)
	report := newReport(schema.KindInstrumentResult)
	u := newUnion[RatingSnapshot]()

	var history map[string][]Observation
	reports := []*Report{report}
	if len(riskMetrics) > 0 {
		obs, obsReport := Observations(riskMetrics)
		history = GroupObservations(obs)
		reports = append(reports, obsReport)
	}

	for _, file := range results {
		selected := SelectCanonical(file.Table, spec, resultRatingFields())
		report.Sources = append(report.Sources, file.FileName)
		report.recordColumns(selected)

		for _, r := range rows(file, selected) {
			report.Rows++
			id := r.text(schema.FieldInstrumentID)
			if id == "" {
				report.DroppedNoID++
				continue
			}
			date := snapshotDate(r)
			rating, source := r.firstText(schema.RatingPriority)

			pd := r.num(schema.FieldPDOneYear)
			if !pd.Valid {
				pd = pdAsOf(history[id], date)
			}
			exposure, _ := r.firstNum(exposurePriority)

			snap := RatingSnapshot{
				InstrumentID: id,
				PortfolioID:  r.text(schema.FieldPortfolioID),
				Date:         date,
				Rating:       rating,
				RatingSource: source,
				PD:           pd,
				Exposure:     exposure,
			}
			if !date.IsZero() {
				snap.Quarter = ingest.QuarterLabel(date)
			}
			u.put(dateKey(id, date), snap)
		}
	}

	report.Conflicts = u.conflicts
	values := u.values()
	report.Kept = len(values)
	return values, reports
}

// pdAsOf returns the PD of the latest observation not after date. A zero
// date takes the latest observation overall. History must be date sorted.
func pdAsOf(history []Observation, date time.Time) Num {
	var best Num
	for _, o := range history {
		if !o.PD.Valid {
			continue
		}
		if !date.IsZero() && o.Date.After(date) {
			break
		}
		best = o.PD
	}
	return best
}
