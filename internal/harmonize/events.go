package harmonize

import (
	"math"
	"sort"

	"riskdash/internal/ingest"
	"riskdash/internal/schema"
)

func chargeoffFields() []string {
	fields := []string{
		schema.FieldInstrumentID, schema.FieldPortfolioID,
		schema.FieldChargeOffDate, schema.FieldReportingDate, schema.FieldAsOfDate,
	}
	return append(fields, schema.ChargeOffAmountPriority...)
}

var cashflowEventFields = []string{
	schema.FieldInstrumentID, schema.FieldPortfolioID,
	schema.FieldCashFlowDate, schema.FieldDefaultAmount, schema.FieldRecoveryAmount,
}

// ChargeoffEvents unions charge-off files. The event date is the first of
// chargeOffDate, reportingDate and asOfDate that parses; the amount prefers
// the net charge-off.
func ChargeoffEvents(files []*ingest.LoadedFile) ([]LossEvent, *Report) {
	spec := schema.MustLookup(schema.KindChargeoff)
	report := newReport(schema.KindChargeoff)
	u := newUnion[LossEvent]()

	for _, file := range files {
		selected := SelectCanonical(file.Table, spec, chargeoffFields())
		report.Sources = append(report.Sources, file.FileName)
		report.recordColumns(selected)

		for _, r := range rows(file, selected) {
			report.Rows++
			id := r.text(schema.FieldInstrumentID)
			if id == "" {
				report.DroppedNoID++
				continue
			}
			date, ok := r.firstDate(schema.EventDatePriority)
			if !ok {
				report.DroppedOther++
				continue
			}
			amount, _ := r.firstNum(schema.ChargeOffAmountPriority)
			if amount.Valid {
				amount.Value = math.Abs(amount.Value)
			}
			u.put(dateKey(id, date), LossEvent{
				InstrumentID: id,
				PortfolioID:  r.text(schema.FieldPortfolioID),
				Date:         date,
				Amount:       amount,
				Source:       EventSourceChargeoff,
			})
		}
	}
	report.Conflicts = u.conflicts
	values := u.values()
	report.Kept = len(values)
	sortEvents(values)
	return values, report
}

// CashflowDefaults infers default events from cash flow rows carrying a
// positive defaultAmount. The loss is the default net of principal recovery,
// floored at zero. Files without a defaultAmount column yield no events.
func CashflowDefaults(files []*ingest.LoadedFile) ([]LossEvent, *Report) {
	spec := schema.MustLookup(schema.KindInstrumentCashflow)
	report := newReport(schema.KindInstrumentCashflow)
	u := newUnion[LossEvent]()

	for _, file := range files {
		selected := SelectCanonical(file.Table, spec, cashflowEventFields)
		report.Sources = append(report.Sources, file.FileName)
		report.recordColumns(selected)

		for _, r := range rows(file, selected) {
			report.Rows++
			id := r.text(schema.FieldInstrumentID)
			if id == "" {
				report.DroppedNoID++
				continue
			}
			defaulted := r.num(schema.FieldDefaultAmount)
			date, ok := r.firstDate([]string{schema.FieldCashFlowDate})
			if !ok || !defaulted.Valid || defaulted.Value <= 0 {
				report.DroppedOther++
				continue
			}
			loss := defaulted.Value
			if recovery := r.num(schema.FieldRecoveryAmount); recovery.Valid {
				loss = math.Max(0, loss-recovery.Value)
			}
			u.put(dateKey(id, date), LossEvent{
				InstrumentID: id,
				PortfolioID:  r.text(schema.FieldPortfolioID),
				Date:         date,
				Amount:       Some(loss),
				Source:       EventSourceCashflow,
			})
		}
	}
	report.Conflicts = u.conflicts
	values := u.values()
	report.Kept = len(values)
	sortEvents(values)
	return values, report
}

// LossEvents prefers charge-off events and falls back to cash flow defaults
// when the charge-off files yield none
func LossEvents(chargeoffs, cashflows []*ingest.LoadedFile) ([]LossEvent, []*Report) {
	var reports []*Report
	if len(chargeoffs) > 0 {
		events, report := ChargeoffEvents(chargeoffs)
		reports = append(reports, report)
		if len(events) > 0 {
			return events, reports
		}
	}
	if len(cashflows) > 0 {
		events, report := CashflowDefaults(cashflows)
		reports = append(reports, report)
		return events, reports
	}
	return nil, reports
}

func sortEvents(events []LossEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Date.Equal(events[j].Date) {
			return events[i].Date.Before(events[j].Date)
		}
		return events[i].InstrumentID < events[j].InstrumentID
	})
}

// FirstEvents keeps the earliest event per instrument
func FirstEvents(events []LossEvent) []LossEvent {
	first := make(map[string]int)
	var out []LossEvent
	for _, e := range events {
		if i, ok := first[e.InstrumentID]; ok {
			if e.Date.Before(out[i].Date) {
				out[i] = e
			}
			continue
		}
		first[e.InstrumentID] = len(out)
		out = append(out, e)
	}
	return out
}
