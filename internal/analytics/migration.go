package analytics

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"riskdash/internal/exporter"
	"riskdash/internal/harmonize"
)

// MigrationOptions configures BuildMigration
type MigrationOptions struct {
	StartQuarter string
	EndQuarter   string
	StartTitle   string
	EndTitle     string
	TopMovers    int
}

// DefaultMigrationOptions compares Q2 2023 with Q2 2025
func DefaultMigrationOptions() MigrationOptions {
	return MigrationOptions{
		StartQuarter: "2023Q2",
		EndQuarter:   "2025Q2",
		StartTitle:   "Instrument Result - Q2 2023",
		EndTitle:     "Instrument Result - Q2 2025",
		TopMovers:    10,
	}
}

// MigrationEdge is one flow of the Sankey diagram
type MigrationEdge struct {
	From     string  `json:"from"`
	To       string  `json:"to"`
	Count    int     `json:"count"`
	Exposure float64 `json:"exposure"`
}

// TransitionMatrix holds counts and row shares over Labels in both axes
type TransitionMatrix struct {
	Labels []string          `json:"labels"`
	Counts [][]int           `json:"counts"`
	Shares [][]harmonize.Num `json:"shares"`
}

// Mover is an instrument whose rating changed
type Mover struct {
	InstrumentID string        `json:"instrument_id"`
	PortfolioID  string        `json:"portfolio_id"`
	From         string        `json:"from"`
	To           string        `json:"to"`
	Notches      int           `json:"notches"`
	StartPD      harmonize.Num `json:"start_pd"`
	EndPD        harmonize.Num `json:"end_pd"`
	PDDelta      harmonize.Num `json:"pd_delta"`
	Exposure     harmonize.Num `json:"exposure"`
}

// MigrationSummary counts instruments by outcome. Positive notches are
// downgrades. Unscaled counts moves between labels on different scales,
// such as a rating and a PD band, which have no notch distance.
type MigrationSummary struct {
	Matched    int `json:"matched"`
	Upgrades   int `json:"upgrades"`
	Downgrades int `json:"downgrades"`
	Unchanged  int `json:"unchanged"`
	Unrated    int `json:"unrated"`
	Unscaled   int `json:"unscaled"`
	New        int `json:"new"`
	Exited     int `json:"exited"`
}

// Migration is the rating migration view
type Migration struct {
	StartQuarter string           `json:"start_quarter"`
	EndQuarter   string           `json:"end_quarter"`
	Edges        []MigrationEdge  `json:"edges"`
	Matrix       TransitionMatrix `json:"matrix"`
	TopMovers    []Mover          `json:"top_movers"`
	Movers       []Mover          `json:"-"`
	Summary      MigrationSummary `json:"summary"`
}

// ValidateSnapshotQuarter checks that a snapshot holds exactly the expected
// quarter
func ValidateSnapshotQuarter(title string, snaps []harmonize.RatingSnapshot, expected string) []string {
	seen := make(map[string]bool)
	var quarters []string
	for _, s := range snaps {
		if s.Quarter == "" || seen[s.Quarter] {
			continue
		}
		seen[s.Quarter] = true
		quarters = append(quarters, s.Quarter)
	}
	sort.Strings(quarters)

	switch {
	case len(quarters) == 0:
		return []string{fmt.Sprintf("%s is missing reporting/as-of date columns needed for quarter validation.", title)}
	case len(quarters) > 1:
		return []string{fmt.Sprintf("%s contains multiple quarters (%s). Expected %s.", title, strings.Join(quarters, ", "), expected)}
	case quarters[0] != expected:
		return []string{fmt.Sprintf("%s appears to use %s data. Expected %s.", title, quarters[0], expected)}
	}
	return nil
}

// RatingLabel is the rating, else the PD band, else Unrated
func RatingLabel(s harmonize.RatingSnapshot) string {
	if r := strings.TrimSpace(s.Rating); r != "" {
		return r
	}
	if s.PD.Valid {
		b, _ := PDBand(s.PD.Value)
		return b.Label
	}
	return UnratedLabel
}

// latestByInstrument keeps the latest snapshot of each instrument
func latestByInstrument(snaps []harmonize.RatingSnapshot) map[string]harmonize.RatingSnapshot {
	out := make(map[string]harmonize.RatingSnapshot, len(snaps))
	for _, s := range snaps {
		if cur, ok := out[s.InstrumentID]; ok && cur.Date.After(s.Date) {
			continue
		}
		out[s.InstrumentID] = s
	}
	return out
}

// BuildMigration compares ratings between two result snapshots. Both must
// hold exactly their configured quarter.
func BuildMigration(start, end []harmonize.RatingSnapshot, opts MigrationOptions) (*Migration, error) {
	problems := ValidateSnapshotQuarter(opts.StartTitle, start, opts.StartQuarter)
	problems = append(problems, ValidateSnapshotQuarter(opts.EndTitle, end, opts.EndQuarter)...)
	if err := validationError("rating_migration", problems); err != nil {
		return nil, err
	}

	from := latestByInstrument(start)
	to := latestByInstrument(end)
	m := &Migration{StartQuarter: opts.StartQuarter, EndQuarter: opts.EndQuarter}

	var labels []string
	for _, s := range from {
		labels = append(labels, RatingLabel(s))
	}
	for _, s := range to {
		labels = append(labels, RatingLabel(s))
	}
	ordered := OrderLabels(labels)
	rank := make(map[string]int, len(ordered))
	for i, l := range ordered {
		rank[l] = i
	}

	m.Matrix = TransitionMatrix{Labels: ordered, Counts: make([][]int, len(ordered))}
	for i := range m.Matrix.Counts {
		m.Matrix.Counts[i] = make([]int, len(ordered))
	}

	edges := make(map[[2]string]*MigrationEdge)
	var ids []string
	for id := range from {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		s := from[id]
		e, ok := to[id]
		if !ok {
			m.Summary.Exited++
			continue
		}
		m.Summary.Matched++
		fromLabel, toLabel := RatingLabel(s), RatingLabel(e)
		m.Matrix.Counts[rank[fromLabel]][rank[toLabel]]++

		exposure := e.Exposure
		if !exposure.Valid {
			exposure = s.Exposure
		}
		edge, ok := edges[[2]string{fromLabel, toLabel}]
		if !ok {
			edge = &MigrationEdge{From: fromLabel, To: toLabel}
			edges[[2]string{fromLabel, toLabel}] = edge
		}
		edge.Count++
		if exposure.Valid {
			edge.Exposure += exposure.Value
		}

		if fromLabel == UnratedLabel || toLabel == UnratedLabel {
			m.Summary.Unrated++
			continue
		}
		notches, ok := NotchChange(fromLabel, toLabel)
		if !ok {
			m.Summary.Unscaled++
			continue
		}
		switch {
		case notches < 0:
			m.Summary.Upgrades++
		case notches > 0:
			m.Summary.Downgrades++
		default:
			m.Summary.Unchanged++
		}
		if notches == 0 {
			continue
		}
		mover := Mover{
			InstrumentID: id,
			PortfolioID:  e.PortfolioID,
			From:         fromLabel,
			To:           toLabel,
			Notches:      notches,
			StartPD:      s.PD,
			EndPD:        e.PD,
			Exposure:     exposure,
		}
		if mover.PortfolioID == "" {
			mover.PortfolioID = s.PortfolioID
		}
		if s.PD.Valid && e.PD.Valid {
			mover.PDDelta = harmonize.Some(e.PD.Value - s.PD.Value)
		}
		m.Movers = append(m.Movers, mover)
	}
	for id := range to {
		if _, ok := from[id]; !ok {
			m.Summary.New++
		}
	}

	m.Matrix.Shares = make([][]harmonize.Num, len(ordered))
	for i, row := range m.Matrix.Counts {
		total := 0
		for _, c := range row {
			total += c
		}
		m.Matrix.Shares[i] = make([]harmonize.Num, len(row))
		if total == 0 {
			continue
		}
		for j, c := range row {
			m.Matrix.Shares[i][j] = harmonize.Some(float64(c) / float64(total))
		}
	}

	for _, edge := range edges {
		m.Edges = append(m.Edges, *edge)
	}
	sort.Slice(m.Edges, func(i, j int) bool {
		a, b := m.Edges[i], m.Edges[j]
		if rank[a.From] != rank[b.From] {
			return rank[a.From] < rank[b.From]
		}
		return rank[a.To] < rank[b.To]
	})

	sort.SliceStable(m.Movers, func(i, j int) bool {
		a, b := m.Movers[i], m.Movers[j]
		if abs(a.Notches) != abs(b.Notches) {
			return abs(a.Notches) > abs(b.Notches)
		}
		da, db := absNum(a.PDDelta), absNum(b.PDDelta)
		if da != db {
			return da > db
		}
		return a.InstrumentID < b.InstrumentID
	})
	m.TopMovers = m.Movers
	if opts.TopMovers > 0 && len(m.TopMovers) > opts.TopMovers {
		m.TopMovers = m.TopMovers[:opts.TopMovers]
	}
	return m, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// absNum orders invalid deltas after every valid one
func absNum(n harmonize.Num) float64 {
	if !n.Valid {
		return -1
	}
	return math.Abs(n.Value)
}

// Bundle exports the flows, matrix, movers and summary
func (m *Migration) Bundle() exporter.Bundle {
	b := exporter.Bundle{Name: "rating_migration"}

	edges := exporter.Table{Columns: []string{"from", "to", "count", "exposure"}}
	for _, e := range m.Edges {
		edges.Rows = append(edges.Rows, []string{e.From, e.To, exporter.FormatInt(e.Count), exporter.FormatFloat(e.Exposure, 2)})
	}
	b.Add("flows", edges)

	matrix := exporter.Table{Columns: append([]string{m.StartQuarter + " \\ " + m.EndQuarter}, m.Matrix.Labels...)}
	shares := exporter.Table{Columns: matrix.Columns}
	for i, label := range m.Matrix.Labels {
		counts := []string{label}
		pct := []string{label}
		for j := range m.Matrix.Labels {
			counts = append(counts, exporter.FormatInt(m.Matrix.Counts[i][j]))
			pct = append(pct, formatNum(m.Matrix.Shares[i][j]))
		}
		matrix.Rows = append(matrix.Rows, counts)
		shares.Rows = append(shares.Rows, pct)
	}
	b.Add("matrix_counts", matrix)
	b.Add("matrix_shares", shares)

	movers := exporter.Table{Columns: []string{
		"instrument_id", "portfolio_id", "from", "to", "notches", "start_pd", "end_pd", "pd_delta", "exposure",
	}}
	for _, mv := range m.Movers {
		movers.Rows = append(movers.Rows, []string{
			mv.InstrumentID, mv.PortfolioID, mv.From, mv.To, exporter.FormatInt(mv.Notches),
			formatNum(mv.StartPD), formatNum(mv.EndPD), formatNum(mv.PDDelta), formatNum(mv.Exposure),
		})
	}
	b.Add("movers", movers)

	s := m.Summary
	b.Add("summary", exporter.Table{
		Columns: []string{"matched", "upgrades", "downgrades", "unchanged", "unrated", "unscaled", "new", "exited"},
		Rows: [][]string{{
			exporter.FormatInt(s.Matched), exporter.FormatInt(s.Upgrades), exporter.FormatInt(s.Downgrades),
			exporter.FormatInt(s.Unchanged), exporter.FormatInt(s.Unrated), exporter.FormatInt(s.Unscaled),
			exporter.FormatInt(s.New), exporter.FormatInt(s.Exited),
		}},
	})
	return b
}
