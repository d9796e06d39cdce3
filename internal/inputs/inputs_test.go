package inputs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskdash/internal/schema"
)

func TestPagesRegistry(t *testing.T) {
	pages := Pages()
	require.Len(t, pages, 5)

	keys := make([]string, len(pages))
	for i, p := range pages {
		keys[i] = p.Key
		for _, in := range p.Inputs {
			assert.True(t, in.Kind.Valid(), "page %s input %s", p.Key, in.Key)
			assert.NotEmpty(t, in.Expectations, "page %s input %s", p.Key, in.Key)
		}
	}
	assert.Equal(t, []string{
		PageRealEstatePD, PageRatingMigration, PageBacktest, PageMacroLinkage, PageDefaultCohorts,
	}, keys)

	page, err := LookupPage(PageDefaultCohorts)
	require.NoError(t, err)
	in, ok := page.Input("risk_metrics_history")
	require.True(t, ok)
	assert.True(t, in.Required)

	_, err = LookupPage("nope")
	assert.ErrorIs(t, err, ErrUnknownPage)
}

func TestMatchColumns(t *testing.T) {
	spec := schema.MustLookup(schema.KindInstrumentRiskMetric)
	columns := []string{"instrument_id", "Reporting Date", "forward_pd", "cumulativePD"}

	selected, missing := MatchColumns(spec, columns, HeaderExpectation{
		Name: "PD", Candidates: schema.PDPriority, Required: true, Match: MatchAny,
	})
	assert.Empty(t, missing)
	assert.Equal(t, map[string]string{"forwardPD": "forward_pd"}, selected)

	selected, missing = MatchColumns(spec, columns, HeaderExpectation{
		Name: "ids", Candidates: []string{schema.FieldInstrumentID, schema.FieldPortfolioID}, Required: true, Match: MatchAll,
	})
	assert.Equal(t, []string{schema.FieldPortfolioID}, missing)
	assert.Equal(t, "instrument_id", selected[schema.FieldInstrumentID])

	_, missing = MatchColumns(spec, columns, HeaderExpectation{
		Name: "EAD", Candidates: schema.EADPriority, Required: true, Match: MatchAny,
	})
	assert.Equal(t, []string{"ead / eadAmount / ifrsEADAmount"}, missing)

	_, missing = MatchColumns(spec, columns, HeaderExpectation{
		Name: "EAD", Candidates: schema.EADPriority, Match: MatchAny,
	})
	assert.Empty(t, missing)
}

func TestEvaluate(t *testing.T) {
	page, err := LookupPage(PageRealEstatePD)
	require.NoError(t, err)
	reference, _ := page.Input("reference_current")
	result, _ := page.Input("result_current")

	t.Run("empty slot", func(t *testing.T) {
		s := Evaluate(*reference, nil)
		assert.False(t, s.IsLoaded())
		assert.False(t, s.IsReady())
	})

	t.Run("wrong kind", func(t *testing.T) {
		s := Evaluate(*reference, &Upload{
			FileName: "result.csv", Path: "/tmp/x.csv", Kind: schema.KindInstrumentResult,
		})
		require.Len(t, s.Errors, 1)
		assert.Equal(t, "Detected dataset type(s): instrument_result. Expected 'instrument_reference'.", s.Errors[0])
		assert.False(t, s.IsLoaded())
	})

	t.Run("load error", func(t *testing.T) {
		s := Evaluate(*reference, &Upload{FileName: "x.csv", Path: "/tmp/x.csv", Err: errors.New("boom")})
		assert.Equal(t, []string{"boom"}, s.Errors)
	})

	t.Run("missing headers", func(t *testing.T) {
		s := Evaluate(*result, &Upload{
			FileName: "result.csv",
			Path:     "/tmp/result.csv",
			Kind:     schema.KindInstrumentResult,
			Columns:  []string{"instrumentIdentifier", "portfolioIdentifier", "annualizedPDOneYear"},
			RowCount: 4,
		})
		assert.True(t, s.IsLoaded())
		assert.False(t, s.IsReady())
		assert.Equal(t, []string{
			"Lifetime LGD: lgdLifetime",
			"Amortized cost: amortizedCost",
		}, s.MissingHeaders)
		assert.Equal(t, "annualizedPDOneYear", s.SelectedColumns[schema.FieldPDOneYear])
	})

	t.Run("ready", func(t *testing.T) {
		s := Evaluate(*reference, &Upload{
			FileName: "reference.csv",
			Path:     "/tmp/reference.csv",
			Kind:     schema.KindInstrumentReference,
			Columns:  []string{"instrumentIdentifier", "collateral_state", "borrower_zip"},
		})
		assert.True(t, s.IsReady())
		assert.Equal(t, "collateral_state", s.SelectedColumns[schema.FieldCollateralState])
		assert.Equal(t, "borrower_zip", s.SelectedColumns[schema.FieldBorrowerZIP])
	})
}

func TestPanelState(t *testing.T) {
	page, err := LookupPage(PageRatingMigration)
	require.NoError(t, err)

	ready := func(name string) *Upload {
		return &Upload{
			FileName: name,
			Path:     "/tmp/" + name,
			Kind:     schema.KindInstrumentResult,
			Columns:  []string{"instrumentIdentifier", "portfolioIdentifier", "reportingDate", "riskClassification"},
			RowCount: 10,
		}
	}

	panel := NewPanel(page, map[string]*Upload{"result_q2_2023": ready("a.csv")})
	assert.False(t, panel.Ready())
	assert.Equal(t, []string{"Instrument Result - Q2 2025"}, panel.MissingRequiredFiles())
	assert.Empty(t, panel.MissingRequiredHeaders())

	noRating := ready("b.csv")
	noRating.Columns = []string{"instrumentIdentifier", "portfolioIdentifier", "reportingDate"}
	panel = NewPanel(page, map[string]*Upload{"result_q2_2023": ready("a.csv"), "result_q2_2025": noRating})
	assert.False(t, panel.Ready())
	assert.Equal(t, map[string][]string{
		"Instrument Result - Q2 2025": {
			"Risk rating (priority): riskClassification / longTermRatingFromStageAllocation / longTermRatingFromStageAllocationScenarioBased",
		},
	}, panel.MissingRequiredHeaders())

	panel = NewPanel(page, map[string]*Upload{"result_q2_2023": ready("a.csv"), "result_q2_2025": ready("b.csv")})
	assert.True(t, panel.Ready())

	summary := panel.Summary()
	assert.True(t, summary.Ready)
	require.Len(t, summary.Inputs, 4)
	assert.Equal(t, "result_q2_2023", summary.Inputs[0].Config.Key)

	explained := Explain(panel)
	require.Len(t, explained.Inputs, 2)
	assert.Equal(t, "a.csv", explained.Inputs[0].FileName)
	assert.Equal(t, "riskClassification", explained.Inputs[0].SelectedColumns["riskClassification"])
	assert.Equal(t, schema.PDPriority, explained.Priorities["probability_of_default"])
}
