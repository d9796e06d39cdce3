package cli

import (
	"strings"

	"github.com/spf13/pflag"

	"riskdash/internal/dashboard"
	"riskdash/internal/filters"
)

// requestFlags are the global filters as command line flags. Flags that
// are not set keep the filter defaults.
type requestFlags struct {
	quarter        string
	portfolio      string
	geography      string
	occupancy      string
	propertyGroup  string
	realEstateOnly bool
	state          string
}

func (f *requestFlags) register(fs *pflag.FlagSet) {
	defaults := filters.Default()
	fs.StringVar(&f.quarter, "quarter", defaults.Quarter, "snapshot quarter, e.g. 2025Q2")
	fs.StringVar(&f.portfolio, "portfolio", defaults.Portfolio, "portfolio identifier")
	fs.StringVar(&f.geography, "geography", string(defaults.Geography), "geography level: State or CBSA")
	fs.StringVar(&f.occupancy, "occupancy", defaults.Occupancy, "occupancy filter")
	fs.StringVar(&f.propertyGroup, "property-group", defaults.PropertyGroup, "property group filter")
	fs.BoolVar(&f.realEstateOnly, "real-estate-only", defaults.RealEstateOnly, "only real estate collateral")
	fs.StringVar(&f.state, "state", "", "two-letter state for the macro linkage page")
}

// request builds a validated dashboard request
func (f *requestFlags) request() (dashboard.Request, error) {
	g := filters.Global{
		Quarter:        f.quarter,
		Portfolio:      f.portfolio,
		Geography:      filters.ParseGeography(f.geography),
		Occupancy:      f.occupancy,
		PropertyGroup:  f.propertyGroup,
		RealEstateOnly: f.realEstateOnly,
	}
	if err := g.Validate(); err != nil {
		return dashboard.Request{}, err
	}
	return dashboard.Request{Filters: g, State: strings.ToUpper(strings.TrimSpace(f.state))}, nil
}
