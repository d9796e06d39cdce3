// Package inputs declares the datasets each dashboard page consumes and
// evaluates whether uploaded files satisfy them.
package inputs

import (
	"errors"
	"fmt"

	"riskdash/internal/schema"
)

// MatchMode controls how the candidates of an expectation are resolved
type MatchMode string

const (
	// MatchAll requires every candidate column
	MatchAll MatchMode = "all"
	// MatchAny takes the first candidate present
	MatchAny MatchMode = "any"
)

// HeaderExpectation is one logical column a page needs from an input
type HeaderExpectation struct {
	Name       string    `json:"name"`
	Candidates []string  `json:"candidates"`
	Required   bool      `json:"required"`
	Match      MatchMode `json:"match"`
	Note       string    `json:"note,omitempty"`
}

// PageInputConfig is an upload slot on a page
type PageInputConfig struct {
	Key          string              `json:"key"`
	Title        string              `json:"title"`
	Kind         schema.Kind         `json:"kind"`
	Required     bool                `json:"required"`
	Description  string              `json:"description"`
	Expectations []HeaderExpectation `json:"expectations"`
}

// Page is a dashboard view and its input slots
type Page struct {
	Key         string            `json:"key"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Inputs      []PageInputConfig `json:"inputs"`
}

// Input returns the slot with the given key
func (p *Page) Input(key string) (*PageInputConfig, bool) {
	for i := range p.Inputs {
		if p.Inputs[i].Key == key {
			return &p.Inputs[i], true
		}
	}
	return nil, false
}

// Page keys
const (
	PageRealEstatePD    = "real_estate_pd"
	PageRatingMigration = "rating_migration"
	PageBacktest        = "backtest"
	PageMacroLinkage    = "macro_linkage"
	PageDefaultCohorts  = "default_cohorts"
)

// ErrUnknownPage is wrapped by LookupPage
var ErrUnknownPage = errors.New("unknown page")

// LookupPage returns a page by key
func LookupPage(key string) (*Page, error) {
	for _, p := range pages {
		if p.Key == key {
			page := p
			return &page, nil
		}
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownPage, key)
}

// Pages returns every page in navigation order
func Pages() []Page {
	out := make([]Page, len(pages))
	copy(out, pages)
	return out
}

func one(name, candidate string, required bool) HeaderExpectation {
	return HeaderExpectation{Name: name, Candidates: []string{candidate}, Required: required, Match: MatchAll}
}

func all(name string, required bool, candidates ...string) HeaderExpectation {
	return HeaderExpectation{Name: name, Candidates: candidates, Required: required, Match: MatchAll}
}

func anyOf(name string, required bool, candidates ...string) HeaderExpectation {
	return HeaderExpectation{Name: name, Candidates: candidates, Required: required, Match: MatchAny}
}

func snapshotDate(name string, required bool) HeaderExpectation {
	return anyOf(name, required, schema.SnapshotDatePriority...)
}

func probabilityOfDefault(required bool) HeaderExpectation {
	return anyOf("Probability of default", required, schema.PDPriority...)
}

func riskMetricHistory(key, title, description string) PageInputConfig {
	return PageInputConfig{
		Key:         key,
		Title:       title,
		Kind:        schema.KindInstrumentRiskMetric,
		Required:    true,
		Description: description,
		Expectations: []HeaderExpectation{
			one("Instrument identifiers", schema.FieldInstrumentID, true),
			snapshotDate("Observation date", true),
			probabilityOfDefault(true),
			one("Loss given default", schema.FieldLGD, false),
		},
	}
}

func chargeoffEvents(key, title string) PageInputConfig {
	return PageInputConfig{
		Key:         key,
		Title:       title,
		Kind:        schema.KindChargeoff,
		Description: "Primary default event source used when available.",
		Expectations: []HeaderExpectation{
			one("Instrument identifiers", schema.FieldInstrumentID, false),
			anyOf("Charge-off date", false, schema.EventDatePriority...),
			anyOf("Charge-off amount", false, schema.ChargeOffAmountPriority...),
		},
	}
}

func cashflowEvents(key, title string) PageInputConfig {
	return PageInputConfig{
		Key:   key,
		Title: title,
		Kind:  schema.KindInstrumentCashflow,
		Description: "Used to infer defaults when charge-off files are unavailable. " +
			"Requires defaultAmount and cashFlowDate.",
		Expectations: []HeaderExpectation{
			one("Instrument identifiers", schema.FieldInstrumentID, false),
			one("Cash flow date", schema.FieldCashFlowDate, false),
			one("Default amount", schema.FieldDefaultAmount, false),
			one("Principal recovery", schema.FieldRecoveryAmount, false),
		},
	}
}

func migrationResult(key, title, description string) PageInputConfig {
	return PageInputConfig{
		Key:         key,
		Title:       title,
		Kind:        schema.KindInstrumentResult,
		Required:    true,
		Description: description,
		Expectations: []HeaderExpectation{
			all("Instrument identifiers", true, schema.FieldInstrumentID, schema.FieldPortfolioID),
			snapshotDate("Snapshot date", true),
			anyOf("Risk rating (priority)", true, schema.RatingPriority...),
		},
	}
}

func migrationRisk(key, title, description string) PageInputConfig {
	return PageInputConfig{
		Key:         key,
		Title:       title,
		Kind:        schema.KindInstrumentRiskMetric,
		Description: description,
		Expectations: []HeaderExpectation{
			one("Instrument identifiers", schema.FieldInstrumentID, false),
			snapshotDate("Snapshot date", false),
			probabilityOfDefault(false),
		},
	}
}

var pages = []Page{
	{
		Key:         PageRealEstatePD,
		Title:       "Real Estate PD Heatmap",
		Description: "Average PD, LGD and exposure share by state or CBSA for the selected quarter.",
		Inputs: []PageInputConfig{
			{
				Key:      "reference_current",
				Title:    "Instrument Reference",
				Kind:     schema.KindInstrumentReference,
				Required: true,
				Description: "Instrument characteristics, geography, and segmentation attributes " +
					"for the selected quarter.",
				Expectations: []HeaderExpectation{
					one("Instrument identifier", schema.FieldInstrumentID, true),
					one("Portfolio identifier", schema.FieldPortfolioID, false),
					snapshotDate("Snapshot date", false),
					{
						Name:       "Geography",
						Candidates: []string{schema.FieldGeographyCode, schema.FieldBorrowerZIP, schema.FieldCollateralZIP},
						Match:      MatchAny,
						Note:       "CBSA when available, ZIP fallback otherwise.",
					},
					anyOf("State", true, schema.FieldBorrowerState, schema.FieldCollateralState),
					one("Occupancy", schema.FieldOccupancy, false),
					anyOf("Property grouping", false, schema.PropertyFields...),
				},
			},
			{
				Key:         "result_current",
				Title:       "Instrument Result",
				Kind:        schema.KindInstrumentResult,
				Required:    true,
				Description: "Credit quality metrics (PD, LGD) and balances for the same quarter.",
				Expectations: []HeaderExpectation{
					one("Instrument identifier", schema.FieldInstrumentID, true),
					one("Portfolio identifier", schema.FieldPortfolioID, false),
					snapshotDate("Snapshot date", false),
					one("One-year PD", schema.FieldPDOneYear, true),
					one("Lifetime LGD", schema.FieldLGDLifetime, true),
					one("Amortized cost", schema.FieldAmortizedCost, true),
				},
			},
		},
	},
	{
		Key:         PageRatingMigration,
		Title:       "Risk Rating Migration",
		Description: "How ratings moved between the Q2 2023 and Q2 2025 snapshots.",
		Inputs: []PageInputConfig{
			migrationResult("result_q2_2023", "Instrument Result - Q2 2023",
				"Starting-point classifications for the Q2 2023 cohort."),
			migrationResult("result_q2_2025", "Instrument Result - Q2 2025",
				"End-point classifications for the Q2 2025 cohort."),
			migrationRisk("risk_q2_2023", "Instrument Risk Metric - Q2 2023 (optional)",
				"Fallback PD measures used when ratings are missing in Q2 2023."),
			migrationRisk("risk_q2_2025", "Instrument Risk Metric - Q2 2025 (optional)",
				"Fallback PD measures used when ratings are missing in Q2 2025."),
		},
	},
	{
		Key:         PageBacktest,
		Title:       "Expected vs Realized Loss Backtest",
		Description: "Expected loss at the start of 2024 against losses realized during 2024.",
		Inputs: []PageInputConfig{
			{
				Key:         "risk_metrics_start",
				Title:       "Instrument Risk Metric (as of 2023 year end)",
				Kind:        schema.KindInstrumentRiskMetric,
				Required:    true,
				Description: "PD, LGD and EAD per instrument on or before the backtest start date.",
				Expectations: []HeaderExpectation{
					one("Instrument identifiers", schema.FieldInstrumentID, true),
					snapshotDate("Observation date", true),
					probabilityOfDefault(true),
					one("Loss given default", schema.FieldLGD, true),
					anyOf("Exposure at default", true, schema.EADPriority...),
				},
			},
			chargeoffEvents("chargeoff_2024", "Charge-off Events 2024 (preferred)"),
			cashflowEvents("cashflow_2024", "Instrument Cash Flow 2024 (default inference)"),
			{
				Key:         "reference_segments",
				Title:       "Instrument Reference (segments)",
				Kind:        schema.KindInstrumentReference,
				Description: "Optional portfolio identifiers used to bucket results.",
				Expectations: []HeaderExpectation{
					all("Instrument identifiers", false, schema.FieldInstrumentID, schema.FieldPortfolioID),
				},
			},
		},
	},
	{
		Key:         PageMacroLinkage,
		Title:       "Macro Linkage",
		Description: "Correlation and lagged regression of portfolio PD and LGD on macroeconomic series.",
		Inputs: []PageInputConfig{
			riskMetricHistory("risk_metrics_timeseries", "Instrument Risk Metric (2023 through 2025)",
				"Time-series probability of default and LGD data spanning 2023 through mid 2025."),
			{
				Key:         "reference_enrichment",
				Title:       "Instrument Reference (Geography Enrichment)",
				Kind:        schema.KindInstrumentReference,
				Required:    true,
				Description: "Provides ZIP, CBSA, state, and portfolio identifiers for geography mapping.",
				Expectations: []HeaderExpectation{
					all("Instrument identifiers", true, schema.FieldInstrumentID, schema.FieldPortfolioID),
					snapshotDate("Latest snapshot date", false),
					anyOf("Geography (CBSA/ZIP priority)", true,
						schema.FieldGeographyCode, schema.FieldBorrowerZIP, schema.FieldCollateralZIP),
					anyOf("State fallback", true, schema.FieldBorrowerState, schema.FieldCollateralState),
				},
			},
			{
				Key:         "macro_series",
				Title:       "Macroeconomic Series",
				Kind:        schema.KindMacroSeries,
				Required:    true,
				Description: "One date column and one numeric column per macro variable, 2023-01 through 2025-06.",
				Expectations: []HeaderExpectation{
					one("Observation date", schema.FieldObservationDate, true),
				},
			},
		},
	},
	{
		Key:         PageDefaultCohorts,
		Title:       "Defaulted Cohorts",
		Description: "PD and LGD paths over the 36 months before default, against matched controls.",
		Inputs: []PageInputConfig{
			chargeoffEvents("chargeoff_events", "Charge-off Events (preferred)"),
			cashflowEvents("cashflow_events", "Instrument Cash Flow (default inference)"),
			riskMetricHistory("risk_metrics_history", "Instrument Risk Metric History",
				"Time series of PD/LGD observations sufficient to cover at least 36 months "+
					"prior to each default event."),
		},
	},
}
