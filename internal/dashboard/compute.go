package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"riskdash/internal/analytics"
	"riskdash/internal/exporter"
	"riskdash/internal/filters"
	"riskdash/internal/geo"
	"riskdash/internal/harmonize"
	"riskdash/internal/inputs"
)

// Request selects what a page computes
type Request struct {
	Filters filters.Global `json:"filters"`
	// State restricts the macro linkage to one state
	State string `json:"state,omitempty"`
}

// DefaultRequest uses the default filters
func DefaultRequest() Request {
	return Request{Filters: filters.Default()}
}

// View is a computed page
type View interface {
	Bundle() exporter.Bundle
}

// Harmonized holds the canonical records of a page. Only the fields the
// page uses are set.
type Harmonized struct {
	Page           string
	Positions      *harmonize.PositionSet
	Observations   []harmonize.Observation
	StartSnapshots []harmonize.RatingSnapshot
	EndSnapshots   []harmonize.RatingSnapshot
	Events         []harmonize.LossEvent
	Macro          []harmonize.MacroPoint
	Geography      map[string]geo.Resolution
	Segments       map[string]string
	Reports        []*harmonize.Report
}

// Result is a computed page with the provenance of its inputs
type Result struct {
	Page       string               `json:"page"`
	Title      string               `json:"title"`
	Request    Request              `json:"request"`
	Quarter    string               `json:"quarter,omitempty"`
	View       View                 `json:"view"`
	Provenance harmonize.Provenance `json:"provenance"`
	Reports    []*harmonize.Report  `json:"reports"`
	ComputedAt time.Time            `json:"computed_at"`
}

// Bundle names the view's tables after the page
func (r *Result) Bundle() exporter.Bundle {
	b := r.View.Bundle()
	if b.Name == "" {
		b.Name = r.Page
	}
	return b
}

// Harmonize unions the loaded files of a page into canonical records
func (e *Engine) Harmonize(ctx context.Context, in *Inputs) (*Harmonized, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h := &Harmonized{Page: in.Page.Key}

	switch in.Page.Key {
	case inputs.PageRealEstatePD:
		set := harmonize.Positions(in.Slot("reference_current"), in.Slot("result_current"), e.resolver)
		h.Positions = set
		h.Reports = append(h.Reports, set.Reference, set.Result)

	case inputs.PageRatingMigration:
		start, startReports := harmonize.RatingSnapshots(in.Slot("result_q2_2023"), in.Slot("risk_q2_2023"))
		end, endReports := harmonize.RatingSnapshots(in.Slot("result_q2_2025"), in.Slot("risk_q2_2025"))
		h.StartSnapshots, h.EndSnapshots = start, end
		h.Reports = append(append(h.Reports, startReports...), endReports...)

	case inputs.PageBacktest:
		obs, obsReport := harmonize.Observations(in.Slot("risk_metrics_start"))
		events, eventReports := harmonize.LossEvents(in.Slot("chargeoff_2024"), in.Slot("cashflow_2024"))
		h.Observations, h.Events = obs, events
		h.Reports = append(append(h.Reports, obsReport), eventReports...)
		if refs := in.Slot("reference_segments"); len(refs) > 0 {
			segments, report := harmonize.Segments(refs)
			h.Segments = segments
			h.Reports = append(h.Reports, report)
		}

	case inputs.PageMacroLinkage:
		obs, obsReport := harmonize.Observations(in.Slot("risk_metrics_timeseries"))
		macro, macroReport := harmonize.MacroPoints(in.Slot("macro_series"))
		geography, geoReport := harmonize.InstrumentGeography(in.Slot("reference_enrichment"), e.resolver)
		h.Observations, h.Macro, h.Geography = obs, macro, geography
		h.Reports = append(h.Reports, obsReport, macroReport, geoReport)

	case inputs.PageDefaultCohorts:
		obs, obsReport := harmonize.Observations(in.Slot("risk_metrics_history"))
		events, eventReports := harmonize.LossEvents(in.Slot("chargeoff_events"), in.Slot("cashflow_events"))
		h.Observations, h.Events = obs, events
		h.Reports = append(append(h.Reports, obsReport), eventReports...)

	default:
		return nil, fmt.Errorf("%w %q", inputs.ErrUnknownPage, in.Page.Key)
	}
	return h, nil
}

// Compute builds the page's view from harmonized records. Input problems
// come back as *analytics.ValidationError.
func (e *Engine) Compute(ctx context.Context, h *Harmonized, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page, err := inputs.LookupPage(h.Page)
	if err != nil {
		return nil, err
	}
	g := req.Filters
	result := &Result{
		Page:       page.Key,
		Title:      page.Title,
		Request:    req,
		Provenance: make(harmonize.Provenance),
		Reports:    h.Reports,
	}
	for _, r := range h.Reports {
		result.Provenance.Add(r)
	}

	switch page.Key {
	case inputs.PageRealEstatePD:
		positions := h.Positions.Positions
		quarter := g.ResolveQuarter(positions)
		scoped := g
		scoped.Quarter = quarter
		filtered := scoped.Apply(positions)
		heatmap := analytics.BuildHeatmap(filtered, g.Geography)
		if len(filtered) == 0 && len(positions) > 0 {
			heatmap.Notices = append(heatmap.Notices,
				fmt.Sprintf("No instruments match the selected filters for %s.", displayQuarter(quarter)))
		}
		result.Quarter = quarter
		result.View = heatmap

	case inputs.PageRatingMigration:
		start := filterSnapshots(h.StartSnapshots, g)
		end := filterSnapshots(h.EndSnapshots, g)
		migration, err := analytics.BuildMigration(start, end, e.options.Migration)
		if err != nil {
			return nil, err
		}
		result.View = migration

	case inputs.PageBacktest:
		obs := filterObservations(h.Observations, g, h.Segments)
		events := filterEvents(h.Events, g, obs)
		bt, err := analytics.BuildBacktest(obs, events, h.Segments, e.options.Backtest)
		if err != nil {
			return nil, err
		}
		result.View = bt

	case inputs.PageMacroLinkage:
		opts := e.options.Macro
		opts.State = req.State
		obs := filterObservations(h.Observations, g, nil)
		linkage, err := analytics.BuildMacroLinkage(obs, h.Macro, h.Geography, opts)
		if err != nil {
			return nil, err
		}
		result.View = linkage

	case inputs.PageDefaultCohorts:
		obs := filterObservations(h.Observations, g, nil)
		events := filterEvents(h.Events, g, obs)
		cohorts, err := analytics.BuildCohorts(obs, events, e.options.Cohorts)
		if err != nil {
			return nil, err
		}
		result.View = cohorts
	}

	result.ComputedAt = time.Now().UTC()
	e.logger.InfoContext(ctx, "page computed",
		slog.String("page", page.Key),
		slog.String("quarter", result.Quarter),
		slog.Int("reports", len(h.Reports)))
	return result, nil
}

// Run loads, harmonizes and computes a page in one call
func (e *Engine) Run(ctx context.Context, pageKey string, req Request) (*Result, error) {
	in, err := e.Load(ctx, pageKey)
	if err != nil {
		return nil, err
	}
	h, err := e.Harmonize(ctx, in)
	if err != nil {
		return nil, err
	}
	return e.Compute(ctx, h, req)
}

func displayQuarter(label string) string {
	if label == "" {
		return "the loaded snapshot"
	}
	return label
}

func filterSnapshots(snaps []harmonize.RatingSnapshot, g filters.Global) []harmonize.RatingSnapshot {
	if g.Portfolios() == nil {
		return snaps
	}
	out := make([]harmonize.RatingSnapshot, 0, len(snaps))
	for _, s := range snaps {
		if g.PortfolioAllowed(s.PortfolioID) {
			out = append(out, s)
		}
	}
	return out
}

// filterObservations applies the portfolio filter, taking an instrument's
// portfolio from segments when it has one
func filterObservations(obs []harmonize.Observation, g filters.Global, segments map[string]string) []harmonize.Observation {
	if g.Portfolios() == nil {
		return obs
	}
	out := make([]harmonize.Observation, 0, len(obs))
	for _, o := range obs {
		portfolio := o.PortfolioID
		if seg, ok := segments[o.InstrumentID]; ok {
			portfolio = seg
		}
		if g.PortfolioAllowed(portfolio) {
			out = append(out, o)
		}
	}
	return out
}

// filterEvents keeps, under a portfolio filter, the events of instruments
// that survived the observation filter
func filterEvents(events []harmonize.LossEvent, g filters.Global, kept []harmonize.Observation) []harmonize.LossEvent {
	if g.Portfolios() == nil {
		return events
	}
	ids := make(map[string]struct{}, len(kept))
	for _, o := range kept {
		ids[o.InstrumentID] = struct{}{}
	}
	out := make([]harmonize.LossEvent, 0, len(events))
	for _, ev := range events {
		if _, ok := ids[ev.InstrumentID]; ok {
			out = append(out, ev)
		}
	}
	return out
}
