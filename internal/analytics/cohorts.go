package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"riskdash/internal/exporter"
	"riskdash/internal/harmonize"
	"riskdash/internal/ingest"
)

// LeadMonths is how far before a default the event study looks back
const LeadMonths = 36

// CohortOptions configures BuildCohorts
type CohortOptions struct {
	LeadMonths            int
	ControlsPerEvent      int
	AnchorToleranceMonths int
}

// DefaultCohortOptions matches three controls per default anchored within
// three months of the lead date
func DefaultCohortOptions() CohortOptions {
	return CohortOptions{LeadMonths: LeadMonths, ControlsPerEvent: 3, AnchorToleranceMonths: 3}
}

// EventStudyPoint aggregates observations k months relative to the event;
// Month runs from -LeadMonths to 0
type EventStudyPoint struct {
	Month        int           `json:"month"`
	MeanPD       harmonize.Num `json:"mean_pd"`
	MedianPD     harmonize.Num `json:"median_pd"`
	MeanLGD      harmonize.Num `json:"mean_lgd"`
	Observations int           `json:"observations"`
}

// ControlMatch pairs a defaulted instrument with a never-defaulted control
type ControlMatch struct {
	DefaultedID string    `json:"defaulted_id"`
	ControlID   string    `json:"control_id"`
	PortfolioID string    `json:"portfolio_id"`
	EventDate   time.Time `json:"event_date"`
	AnchorPD    float64   `json:"anchor_pd"`
	ControlPD   float64   `json:"control_pd"`
}

// SpreadPoint is the cohort minus control mean PD at one relative month
type SpreadPoint struct {
	Month     int           `json:"month"`
	CohortPD  harmonize.Num `json:"cohort_pd"`
	ControlPD harmonize.Num `json:"control_pd"`
	Spread    harmonize.Num `json:"spread"`
}

// CohortQuarter summarizes defaults by the quarter they occurred in
type CohortQuarter struct {
	Quarter     string  `json:"quarter"`
	Defaults    int     `json:"defaults"`
	TotalAmount float64 `json:"total_amount"`
}

// Cohorts is the default cohort view
type Cohorts struct {
	LeadMonths int                   `json:"lead_months"`
	Events     []harmonize.LossEvent `json:"events"`
	EventStudy []EventStudyPoint     `json:"event_study"`
	Control    []EventStudyPoint     `json:"control"`
	Spread     []SpreadPoint         `json:"spread"`
	Matches    []ControlMatch        `json:"matches"`
	ByQuarter  []CohortQuarter       `json:"by_quarter"`
	// Unmatched counts defaults with no PD near the anchor date
	Unmatched int `json:"unmatched"`
}

// ValidateCohortHistory checks that events exist and that the risk metric
// history reaches lead months before the earliest event and at least to
// the latest one
func ValidateCohortHistory(obs []harmonize.Observation, events []harmonize.LossEvent, lead int) []string {
	if len(events) == 0 {
		return []string{"Provide either a charge-off file or a cash flow file with default events to define the cohort."}
	}
	if len(obs) == 0 {
		return []string{"Risk metric history lacks valid reporting/as-of dates. Supply the full history."}
	}

	earliest, latest := events[0].Date, events[0].Date
	for _, e := range events {
		if e.Date.Before(earliest) {
			earliest = e.Date
		}
		if e.Date.After(latest) {
			latest = e.Date
		}
	}
	first, last := obs[0].Date, obs[0].Date
	for _, o := range obs {
		if o.Date.Before(first) {
			first = o.Date
		}
		if o.Date.After(last) {
			last = o.Date
		}
	}

	var problems []string
	required := earliest.AddDate(0, -lead, 0)
	if first.After(required) {
		problems = append(problems, fmt.Sprintf(
			"Risk metric history begins on %s, but defaults as early as %s require history back to at least %s.",
			first.Format(dateLayout), earliest.Format(dateLayout), required.Format(dateLayout)))
	}
	if last.Before(latest) {
		problems = append(problems, fmt.Sprintf(
			"Risk metric history ends on %s, which predates the latest default event (%s). Extend the history.",
			last.Format(dateLayout), latest.Format(dateLayout)))
	}
	return problems
}

type studyAcc struct {
	pd, lgd []float64
	n       int
}

type study map[int]*studyAcc

func (s study) add(month int, o harmonize.Observation) {
	a, ok := s[month]
	if !ok {
		a = &studyAcc{}
		s[month] = a
	}
	a.n++
	if o.PD.Valid {
		a.pd = append(a.pd, o.PD.Value)
	}
	if o.LGD.Valid {
		a.lgd = append(a.lgd, o.LGD.Value)
	}
}

// trace adds an instrument's observations aligned on eventDate
func (s study) trace(history []harmonize.Observation, eventDate time.Time, lead int) {
	for _, o := range history {
		k := -ingest.MonthsBetween(o.Date, eventDate)
		if k < -lead || k > 0 {
			continue
		}
		s.add(k, o)
	}
}

func (s study) points(lead int) []EventStudyPoint {
	out := make([]EventStudyPoint, 0, lead+1)
	for k := -lead; k <= 0; k++ {
		p := EventStudyPoint{Month: k}
		if a, ok := s[k]; ok {
			p.MeanPD = Mean(a.pd)
			p.MedianPD = Median(a.pd)
			p.MeanLGD = Mean(a.lgd)
			p.Observations = a.n
		}
		out = append(out, p)
	}
	return out
}

// anchorPD is the PD observed closest to anchor within tolerance months.
// Equal distances prefer the earlier observation.
func anchorPD(history []harmonize.Observation, anchor time.Time, tolerance int) (float64, bool) {
	best := -1
	var bestDist time.Duration
	for i, o := range history {
		if !o.PD.Valid {
			continue
		}
		months := ingest.MonthsBetween(o.Date, anchor)
		if months > tolerance || months < -tolerance {
			continue
		}
		dist := o.Date.Sub(anchor)
		if dist < 0 {
			dist = -dist
		}
		if best < 0 || dist < bestDist {
			best, bestDist = i, dist
		}
	}
	if best < 0 {
		return 0, false
	}
	return history[best].PD.Value, true
}

// BuildCohorts runs an event study on each instrument's first loss event
// and compares it with PD-matched never-defaulted controls. Controls are
// drawn from the defaulted instrument's portfolio when it has candidates
// and may serve more than one default.
func BuildCohorts(obs []harmonize.Observation, events []harmonize.LossEvent, opts CohortOptions) (*Cohorts, error) {
	if opts.LeadMonths <= 0 {
		opts.LeadMonths = LeadMonths
	}
	if err := validationError("default_cohorts", ValidateCohortHistory(obs, events, opts.LeadMonths)); err != nil {
		return nil, err
	}
	lead := opts.LeadMonths

	sorted := append([]harmonize.Observation(nil), obs...)
	harmonize.SortObservations(sorted)
	history := harmonize.GroupObservations(sorted)

	first := harmonize.FirstEvents(events)
	sort.SliceStable(first, func(i, j int) bool {
		if !first[i].Date.Equal(first[j].Date) {
			return first[i].Date.Before(first[j].Date)
		}
		return first[i].InstrumentID < first[j].InstrumentID
	})
	c := &Cohorts{LeadMonths: lead, Events: first}

	defaulted := make(map[string]bool, len(events))
	for _, e := range events {
		defaulted[e.InstrumentID] = true
	}
	portfolio := make(map[string]string)
	for _, o := range sorted {
		if o.PortfolioID != "" {
			portfolio[o.InstrumentID] = o.PortfolioID
		}
	}
	var controls []string
	for id := range history {
		if !defaulted[id] {
			controls = append(controls, id)
		}
	}
	sort.Strings(controls)

	cohort, control := study{}, study{}
	for _, e := range first {
		cohort.trace(history[e.InstrumentID], e.Date, lead)

		anchor := e.Date.AddDate(0, -lead, 0)
		target, ok := anchorPD(history[e.InstrumentID], anchor, opts.AnchorToleranceMonths)
		if !ok || opts.ControlsPerEvent <= 0 {
			c.Unmatched++
			continue
		}
		group := e.PortfolioID
		if group == "" {
			group = portfolio[e.InstrumentID]
		}

		type candidate struct {
			id string
			pd float64
		}
		var same, all []candidate
		for _, id := range controls {
			pd, ok := anchorPD(history[id], anchor, opts.AnchorToleranceMonths)
			if !ok {
				continue
			}
			all = append(all, candidate{id, pd})
			if group != "" && portfolio[id] == group {
				same = append(same, candidate{id, pd})
			}
		}
		pool := same
		if len(pool) == 0 {
			pool = all
		}
		if len(pool) == 0 {
			c.Unmatched++
			continue
		}
		sort.SliceStable(pool, func(i, j int) bool {
			di, dj := math.Abs(pool[i].pd-target), math.Abs(pool[j].pd-target)
			if di != dj {
				return di < dj
			}
			return pool[i].id < pool[j].id
		})
		if len(pool) > opts.ControlsPerEvent {
			pool = pool[:opts.ControlsPerEvent]
		}
		for _, cand := range pool {
			c.Matches = append(c.Matches, ControlMatch{
				DefaultedID: e.InstrumentID,
				ControlID:   cand.id,
				PortfolioID: portfolio[cand.id],
				EventDate:   e.Date,
				AnchorPD:    target,
				ControlPD:   cand.pd,
			})
			control.trace(history[cand.id], e.Date, lead)
		}
	}

	c.EventStudy = cohort.points(lead)
	c.Control = control.points(lead)
	for i := range c.EventStudy {
		p := SpreadPoint{
			Month:     c.EventStudy[i].Month,
			CohortPD:  c.EventStudy[i].MeanPD,
			ControlPD: c.Control[i].MeanPD,
		}
		if p.CohortPD.Valid && p.ControlPD.Valid {
			p.Spread = harmonize.Some(p.CohortPD.Value - p.ControlPD.Value)
		}
		c.Spread = append(c.Spread, p)
	}

	byQuarter := make(map[string]*CohortQuarter)
	for _, e := range first {
		label := ingest.QuarterLabel(e.Date)
		q, ok := byQuarter[label]
		if !ok {
			q = &CohortQuarter{Quarter: label}
			byQuarter[label] = q
		}
		q.Defaults++
		if e.Amount.Valid {
			q.TotalAmount += e.Amount.Value
		}
	}
	for _, q := range byQuarter {
		c.ByQuarter = append(c.ByQuarter, *q)
	}
	sort.Slice(c.ByQuarter, func(i, j int) bool { return c.ByQuarter[i].Quarter < c.ByQuarter[j].Quarter })
	return c, nil
}

func studyTable(points []EventStudyPoint) exporter.Table {
	t := exporter.Table{Columns: []string{"month", "mean_pd", "median_pd", "mean_lgd", "observations"}}
	for _, p := range points {
		t.Rows = append(t.Rows, []string{
			exporter.FormatInt(p.Month), formatNum(p.MeanPD), formatNum(p.MedianPD),
			formatNum(p.MeanLGD), exporter.FormatInt(p.Observations),
		})
	}
	return t
}

// Bundle exports the event study, controls, spread and quarterly summary
func (c *Cohorts) Bundle() exporter.Bundle {
	b := exporter.Bundle{Name: "default_cohorts"}
	b.Add("event_study", studyTable(c.EventStudy))
	b.Add("control", studyTable(c.Control))

	spread := exporter.Table{Columns: []string{"month", "cohort_pd", "control_pd", "spread"}}
	for _, p := range c.Spread {
		spread.Rows = append(spread.Rows, []string{exporter.FormatInt(p.Month), formatNum(p.CohortPD), formatNum(p.ControlPD), formatNum(p.Spread)})
	}
	b.Add("spread", spread)

	matches := exporter.Table{Columns: []string{"defaulted_id", "control_id", "portfolio_id", "event_date", "anchor_pd", "control_pd"}}
	for _, m := range c.Matches {
		matches.Rows = append(matches.Rows, []string{
			m.DefaultedID, m.ControlID, m.PortfolioID, m.EventDate.Format(dateLayout),
			exporter.FormatFloat(m.AnchorPD, 6), exporter.FormatFloat(m.ControlPD, 6),
		})
	}
	b.Add("matches", matches)

	quarters := exporter.Table{Columns: []string{"quarter", "defaults", "total_amount"}}
	for _, q := range c.ByQuarter {
		quarters.Rows = append(quarters.Rows, []string{q.Quarter, exporter.FormatInt(q.Defaults), exporter.FormatFloat(q.TotalAmount, 2)})
	}
	b.Add("by_quarter", quarters)

	events := exporter.Table{Columns: []string{"instrument_id", "portfolio_id", "event_date", "amount", "source"}}
	for _, e := range c.Events {
		events.Rows = append(events.Rows, []string{e.InstrumentID, e.PortfolioID, e.Date.Format(dateLayout), formatNum(e.Amount), e.Source})
	}
	b.Add("events", events)
	return b
}
