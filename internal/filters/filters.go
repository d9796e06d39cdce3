// Package filters holds the global filter selections shared by every page.
package filters

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"riskdash/internal/harmonize"
)

// Geography is the aggregation level of geographic views
type Geography string

const (
	GeographyCBSA  Geography = "CBSA"
	GeographyState Geography = "State"
)

// Labels of the "no filtering" choices
const (
	AutoDetect        = "Auto-detect"
	AllPortfolios     = "All portfolios"
	AllPropertyGroups = "All property groups"
	OccupancyAll      = "All"
)

var (
	firstQuarter = quarter{year: 2023, q: 1}
	lastQuarter  = quarter{year: 2025, q: 2}
)

// Global is the sidebar filter state
type Global struct {
	Quarter        string    `json:"quarter" validate:"omitempty,quarter"`
	Portfolio      string    `json:"portfolio" validate:"max=1024"`
	Geography      Geography `json:"geography" validate:"omitempty,oneof=CBSA State"`
	Occupancy      string    `json:"occupancy" validate:"omitempty,oneof=All Owner-occupied Non-owner-occupied Unknown"`
	PropertyGroup  string    `json:"property_group" validate:"max=1024"`
	RealEstateOnly bool      `json:"real_estate_only"`
}

// Default returns the filters applied before the user changes anything
func Default() Global {
	return Global{
		Quarter:        AutoDetect,
		Portfolio:      AllPortfolios,
		Geography:      GeographyState,
		Occupancy:      OccupancyAll,
		PropertyGroup:  AllPropertyGroups,
		RealEstateOnly: true,
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("quarter", func(fl validator.FieldLevel) bool {
		_, err := NormalizeQuarter(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks the selections against the known options
func (g Global) Validate() error {
	if err := validate.Struct(g); err != nil {
		return fmt.Errorf("invalid filters: %w", err)
	}
	return nil
}

// FromQuery reads filters from URL query parameters. Parameters that are
// absent keep their defaults.
func FromQuery(values url.Values) (Global, error) {
	g := Default()
	if v := values.Get("quarter"); v != "" {
		g.Quarter = v
	}
	if v := values.Get("portfolio"); v != "" {
		g.Portfolio = v
	}
	if v := values.Get("geography"); v != "" {
		g.Geography = ParseGeography(v)
	}
	if v := values.Get("occupancy"); v != "" {
		g.Occupancy = v
	}
	if v := values.Get("property_group"); v != "" {
		g.PropertyGroup = v
	}
	if v := values.Get("real_estate_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return g, fmt.Errorf("invalid real_estate_only value %q: %w", v, err)
		}
		g.RealEstateOnly = b
	}
	return g, g.Validate()
}

// ParseGeography matches a level case-insensitively. Unknown values are
// returned unchanged so validation can reject them.
func ParseGeography(raw string) Geography {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "cbsa", "msa":
		return GeographyCBSA
	case "state":
		return GeographyState
	}
	return Geography(raw)
}

type quarter struct {
	year, q int
}

func (q quarter) label() string {
	return fmt.Sprintf("%dQ%d", q.year, q.q)
}

func (q quarter) display() string {
	return fmt.Sprintf("Q%d %d", q.q, q.year)
}

func (q quarter) next() quarter {
	if q.q == 4 {
		return quarter{year: q.year + 1, q: 1}
	}
	return quarter{year: q.year, q: q.q + 1}
}

func (q quarter) after(o quarter) bool {
	return q.year > o.year || (q.year == o.year && q.q > o.q)
}

var (
	displayQuarterPattern = regexp.MustCompile(`^Q([1-4])\s*[-/ ]?\s*(\d{4})$`)
	labelQuarterPattern   = regexp.MustCompile(`^(\d{4})\s*[-/ ]?\s*Q([1-4])$`)
)

// NormalizeQuarter turns "Q2 2023" or "2023Q2" into "2023Q2". Auto-detect
// and blank give "".
func NormalizeQuarter(raw string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" || strings.EqualFold(s, AutoDetect) {
		return "", nil
	}
	if m := labelQuarterPattern.FindStringSubmatch(s); m != nil {
		return m[1] + "Q" + m[2], nil
	}
	if m := displayQuarterPattern.FindStringSubmatch(s); m != nil {
		return m[2] + "Q" + m[1], nil
	}
	return "", fmt.Errorf("unrecognized quarter %q", raw)
}

// QuarterOptions lists the selectable quarters for display, oldest first
func QuarterOptions() []string {
	var out []string
	for q := firstQuarter; !q.after(lastQuarter); q = q.next() {
		out = append(out, q.display())
	}
	return out
}

// QuarterLabels lists the selectable quarters as "2023Q1" labels
func QuarterLabels() []string {
	var out []string
	for q := firstQuarter; !q.after(lastQuarter); q = q.next() {
		out = append(out, q.label())
	}
	return out
}

// ParseList splits a comma separated selection into a lowercase set. The
// "all" label, or nothing, gives a nil set meaning no filtering.
func ParseList(raw, allLabel string) map[string]struct{} {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, allLabel) || strings.EqualFold(s, "all") {
		return nil
	}
	set := make(map[string]struct{})
	for _, part := range strings.Split(s, ",") {
		if v := strings.ToLower(strings.TrimSpace(part)); v != "" {
			set[v] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

// Portfolios returns the selected portfolio set, nil for all
func (g Global) Portfolios() map[string]struct{} {
	return ParseList(g.Portfolio, AllPortfolios)
}

// PropertyGroups returns the selected property group set, nil for all
func (g Global) PropertyGroups() map[string]struct{} {
	return ParseList(g.PropertyGroup, AllPropertyGroups)
}

// PortfolioAllowed reports whether an instrument's portfolio passes the
// portfolio filter
func (g Global) PortfolioAllowed(portfolio string) bool {
	return inSet(g.Portfolios(), portfolio)
}

func inSet(set map[string]struct{}, v string) bool {
	if set == nil {
		return true
	}
	_, ok := set[strings.ToLower(strings.TrimSpace(v))]
	return ok
}

// ResolveQuarter returns the normalized quarter, or the latest quarter in
// the positions when the filter is on auto-detect
func (g Global) ResolveQuarter(positions []harmonize.Position) string {
	if q, err := NormalizeQuarter(g.Quarter); err == nil && q != "" {
		return q
	}
	return LatestQuarter(positions)
}

// LatestQuarter returns the most recent quarter label among positions
func LatestQuarter(positions []harmonize.Position) string {
	latest := ""
	for _, p := range positions {
		if p.Quarter > latest {
			latest = p.Quarter
		}
	}
	return latest
}

// AvailableQuarters lists the distinct quarters present, oldest first
func AvailableQuarters(positions []harmonize.Position) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range positions {
		if p.Quarter == "" {
			continue
		}
		if _, ok := seen[p.Quarter]; !ok {
			seen[p.Quarter] = struct{}{}
			out = append(out, p.Quarter)
		}
	}
	sort.Strings(out)
	return out
}

// Apply keeps positions matching the quarter, occupancy, portfolio, property
// group and real estate selections. An empty or Auto-detect quarter keeps
// every quarter; callers wanting the latest quarter resolve it first with
// ResolveQuarter.
func (g Global) Apply(positions []harmonize.Position) []harmonize.Position {
	quarter, _ := NormalizeQuarter(g.Quarter)
	portfolios := g.Portfolios()
	groups := g.PropertyGroups()
	occupancy := strings.TrimSpace(g.Occupancy)

	out := make([]harmonize.Position, 0, len(positions))
	for _, p := range positions {
		if quarter != "" && p.Quarter != quarter {
			continue
		}
		if occupancy != "" && occupancy != OccupancyAll && p.Occupancy != occupancy {
			continue
		}
		if !inSet(portfolios, p.PortfolioID) || !inSet(groups, p.PropertyGroup) {
			continue
		}
		if g.RealEstateOnly && !p.RealEstate {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Options describes the filter choices for clients
type Options struct {
	Quarters    []string    `json:"quarters"`
	Geographies []Geography `json:"geographies"`
	Occupancies []string    `json:"occupancies"`
	Defaults    Global      `json:"defaults"`
}

// AllOptions returns every selectable value with the defaults
func AllOptions() Options {
	return Options{
		Quarters:    append([]string{AutoDetect}, QuarterOptions()...),
		Geographies: []Geography{GeographyCBSA, GeographyState},
		Occupancies: []string{
			OccupancyAll,
			harmonize.OccupancyOwner,
			harmonize.OccupancyNonOwner,
			harmonize.OccupancyUnknown,
		},
		Defaults: Default(),
	}
}
