package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"riskdash/internal/exporter"
	"riskdash/internal/geo"
	"riskdash/internal/harmonize"
)

// Regression targets
const (
	TargetPD  = "pd"
	TargetLGD = "lgd"
)

// MacroOptions configures BuildMacroLinkage
type MacroOptions struct {
	Start  time.Time
	End    time.Time
	MaxLag int
	// State restricts the internal series to instruments located in one state
	State string
}

// DefaultMacroOptions covers 2023-01-01 through 2025-06-30 with up to four
// quarters of lag
func DefaultMacroOptions() MacroOptions {
	return MacroOptions{
		Start:  time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		End:    time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
		MaxLag: 4,
	}
}

// QuarterPoint is the internal portfolio average for a quarter
type QuarterPoint struct {
	Quarter      string        `json:"quarter"`
	MeanPD       harmonize.Num `json:"mean_pd"`
	MeanLGD      harmonize.Num `json:"mean_lgd"`
	Observations int           `json:"observations"`
}

// MacroQuarter is a macro variable averaged over a quarter
type MacroQuarter struct {
	Variable string  `json:"variable"`
	Quarter  string  `json:"quarter"`
	Value    float64 `json:"value"`
}

// LagResult is the fit of a target on a variable lagged by Lag quarters
type LagResult struct {
	Variable     string `json:"variable"`
	Target       string `json:"target"`
	Lag          int    `json:"lag"`
	Insufficient bool   `json:"insufficient"`
	Regression
}

// MacroLinkage is the macro linkage view
type MacroLinkage struct {
	State    string         `json:"state,omitempty"`
	Internal []QuarterPoint `json:"internal"`
	Macro    []MacroQuarter `json:"macro"`
	Lags     []LagResult    `json:"lags"`
	Best     []LagResult    `json:"best"`
}

// ValidateMacroCoverage checks that the risk metric history spans the
// analysis window by date and every macro variable spans it by quarter
func ValidateMacroCoverage(obs []harmonize.Observation, macro []harmonize.MacroPoint, opts MacroOptions) []string {
	var problems []string

	if len(obs) == 0 {
		problems = append(problems, "Risk metric time series lacks valid reporting/as-of dates. Ensure the file contains observations from 2023 through 2025.")
	} else {
		first, last := obs[0].Date, obs[0].Date
		for _, o := range obs {
			if o.Date.Before(first) {
				first = o.Date
			}
			if o.Date.After(last) {
				last = o.Date
			}
		}
		if first.After(opts.Start) {
			problems = append(problems, fmt.Sprintf(
				"Risk metric series begins on %s, but should include observations on or before %s.",
				first.Format(dateLayout), opts.Start.Format(dateLayout)))
		}
		if last.Before(opts.End) {
			problems = append(problems, fmt.Sprintf(
				"Risk metric series ends on %s, but should extend through at least %s.",
				last.Format(dateLayout), opts.End.Format(dateLayout)))
		}
	}

	if len(macro) == 0 {
		return append(problems, "Macro series has no dated observations for any variable.")
	}
	type span struct{ first, last quarter }
	spans := make(map[string]*span)
	var variables []string
	for _, p := range macro {
		q := quarterOf(p.Date)
		s, ok := spans[p.Variable]
		if !ok {
			spans[p.Variable] = &span{first: q, last: q}
			variables = append(variables, p.Variable)
			continue
		}
		if q < s.first {
			s.first = q
		}
		if q > s.last {
			s.last = q
		}
	}
	sort.Strings(variables)
	startQ, endQ := quarterOf(opts.Start), quarterOf(opts.End)
	for _, v := range variables {
		s := spans[v]
		if s.first > startQ || s.last < endQ {
			problems = append(problems, fmt.Sprintf(
				"Macro variable %s covers %s to %s, but should cover %s through %s.",
				v, s.first, s.last, startQ, endQ))
		}
	}
	return problems
}

// BuildMacroLinkage regresses quarterly mean PD and LGD on each macro
// variable for lags 0 to MaxLag, the macro variable leading. Geography is
// only consulted when opts.State is set.
func BuildMacroLinkage(obs []harmonize.Observation, macro []harmonize.MacroPoint, geography map[string]geo.Resolution, opts MacroOptions) (*MacroLinkage, error) {
	var problems []string
	if opts.State != "" {
		state := geo.NormalizeState(opts.State)
		if state == "" {
			problems = append(problems, fmt.Sprintf("Unknown state %q.", opts.State))
		}
		opts.State = state
		if len(geography) == 0 {
			problems = append(problems, "Reference enrichment is required to filter the macro linkage by state.")
		}
	}
	if err := validationError("macro_linkage", problems); err != nil {
		return nil, err
	}

	if opts.State != "" {
		var filtered []harmonize.Observation
		for _, o := range obs {
			if geography[o.InstrumentID].State == opts.State {
				filtered = append(filtered, o)
			}
		}
		obs = filtered
	}

	if err := validationError("macro_linkage", ValidateMacroCoverage(obs, macro, opts)); err != nil {
		return nil, err
	}

	view := &MacroLinkage{State: opts.State}
	startQ, endQ := quarterOf(opts.Start), quarterOf(opts.End)

	type acc struct {
		pd, lgd []float64
		n       int
	}
	internal := make(map[quarter]*acc)
	for _, o := range obs {
		q := quarterOf(o.Date)
		if q < startQ || q > endQ {
			continue
		}
		a, ok := internal[q]
		if !ok {
			a = &acc{}
			internal[q] = a
		}
		a.n++
		if o.PD.Valid {
			a.pd = append(a.pd, o.PD.Value)
		}
		if o.LGD.Valid {
			a.lgd = append(a.lgd, o.LGD.Value)
		}
	}
	targets := map[string]map[quarter]float64{TargetPD: {}, TargetLGD: {}}
	for q := startQ; q <= endQ; q++ {
		a, ok := internal[q]
		if !ok {
			continue
		}
		point := QuarterPoint{Quarter: q.String(), MeanPD: Mean(a.pd), MeanLGD: Mean(a.lgd), Observations: a.n}
		if point.MeanPD.Valid {
			targets[TargetPD][q] = point.MeanPD.Value
		}
		if point.MeanLGD.Valid {
			targets[TargetLGD][q] = point.MeanLGD.Value
		}
		view.Internal = append(view.Internal, point)
	}

	sums := make(map[string]map[quarter][]float64)
	var variables []string
	for _, p := range macro {
		if sums[p.Variable] == nil {
			sums[p.Variable] = make(map[quarter][]float64)
			variables = append(variables, p.Variable)
		}
		q := quarterOf(p.Date)
		sums[p.Variable][q] = append(sums[p.Variable][q], p.Value)
	}
	sort.Strings(variables)

	series := make(map[string]map[quarter]float64, len(variables))
	for _, v := range variables {
		series[v] = make(map[quarter]float64)
		var qs []quarter
		for q := range sums[v] {
			qs = append(qs, q)
		}
		sort.Slice(qs, func(i, j int) bool { return qs[i] < qs[j] })
		for _, q := range qs {
			mean := Mean(sums[v][q])
			if !mean.Valid {
				continue
			}
			series[v][q] = mean.Value
			view.Macro = append(view.Macro, MacroQuarter{Variable: v, Quarter: q.String(), Value: mean.Value})
		}
	}

	for _, v := range variables {
		for _, target := range []string{TargetPD, TargetLGD} {
			var best *LagResult
			for lag := 0; lag <= opts.MaxLag; lag++ {
				var xs, ys []float64
				for q := startQ; q <= endQ; q++ {
					y, ok := targets[target][q]
					if !ok {
						continue
					}
					x, ok := series[v][q-quarter(lag)]
					if !ok {
						continue
					}
					xs = append(xs, x)
					ys = append(ys, y)
				}
				res := LagResult{Variable: v, Target: target, Lag: lag, Regression: OLS(xs, ys)}
				res.Insufficient = res.N < MinRegressionPoints
				view.Lags = append(view.Lags, res)

				if res.Insufficient || !res.Pearson.Valid {
					continue
				}
				if best == nil || math.Abs(res.Pearson.Value) > math.Abs(best.Pearson.Value) {
					r := res
					best = &r
				}
			}
			if best != nil {
				view.Best = append(view.Best, *best)
			}
		}
	}
	return view, nil
}

// Bundle exports the quarterly series and regression grid
func (m *MacroLinkage) Bundle() exporter.Bundle {
	b := exporter.Bundle{Name: "macro_linkage"}

	internal := exporter.Table{Columns: []string{"quarter", "mean_pd", "mean_lgd", "observations"}}
	for _, p := range m.Internal {
		internal.Rows = append(internal.Rows, []string{p.Quarter, formatNum(p.MeanPD), formatNum(p.MeanLGD), exporter.FormatInt(p.Observations)})
	}
	b.Add("internal_quarterly", internal)

	macro := exporter.Table{Columns: []string{"variable", "quarter", "value"}}
	for _, p := range m.Macro {
		macro.Rows = append(macro.Rows, []string{p.Variable, p.Quarter, exporter.FormatFloat(p.Value, 6)})
	}
	b.Add("macro_quarterly", macro)

	b.Add("lags", lagTable(m.Lags))
	b.Add("best_lags", lagTable(m.Best))
	return b
}

func lagTable(results []LagResult) exporter.Table {
	t := exporter.Table{Columns: []string{
		"variable", "target", "lag", "n", "pearson", "slope", "intercept", "r_squared", "insufficient",
	}}
	for _, r := range results {
		t.Rows = append(t.Rows, []string{
			r.Variable, r.Target, exporter.FormatInt(r.Lag), exporter.FormatInt(r.N),
			formatNum(r.Pearson), formatNum(r.Slope), formatNum(r.Intercept), formatNum(r.RSquared),
			exporter.FormatBool(r.Insufficient),
		})
	}
	return t
}
