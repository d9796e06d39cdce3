package schema

import "fmt"

// Kind identifies a dataset kind
type Kind string

const (
	KindInstrumentReference  Kind = "instrument_reference"
	KindInstrumentRiskMetric Kind = "instrument_risk_metric"
	KindInstrumentResult     Kind = "instrument_result"
	KindInstrumentCashflow   Kind = "instrument_cashflow"
	KindChargeoff            Kind = "chargeoff"
	KindMacroSeries          Kind = "macro_series"
)

// DatasetSpec describes how to recognize a dataset kind and read its fields
type DatasetSpec struct {
	Kind              Kind
	DisplayName       string
	FilenamePrefixes  []string
	RequiredFields    []string
	Aliases           AliasMap
	IdentifyingFields []string
}

// AliasesFor returns the accepted spellings of a field. Fields the spec does
// not know are matched by their own name.
func (s *DatasetSpec) AliasesFor(field string) []string {
	if aliases, ok := s.Aliases[field]; ok {
		return aliases
	}
	return []string{field}
}

var instrumentReferenceAliases = AliasMap{
	FieldInstrumentID:    AliasVariants(FieldInstrumentID, "instrument_id"),
	FieldPortfolioID:     AliasVariants(FieldPortfolioID, "portfolio_id"),
	FieldReportingDate:   AliasVariants(FieldReportingDate, "reporting_date"),
	FieldAsOfDate:        AliasVariants(FieldAsOfDate, "as_of_date"),
	FieldBorrowerZIP:     AliasVariants(FieldBorrowerZIP, "borrower_zip_code", "borrower_zip"),
	FieldCollateralZIP:   AliasVariants(FieldCollateralZIP, "collateral_zip_code", "collateral_zip"),
	FieldBorrowerState:   AliasVariants(FieldBorrowerState, "borrower_state"),
	FieldCollateralState: AliasVariants(FieldCollateralState, "collateral_state"),
	FieldGeographyCode:   AliasVariants(FieldGeographyCode, "geography_code", "cbsa_code", "msa_code"),
	FieldOccupancy:       AliasVariants(FieldOccupancy, "occupancy_status"),
	FieldPropertyStatus:  AliasVariants(FieldPropertyStatus, "property_status"),
	FieldPropertyGroup:   AliasVariants(FieldPropertyGroup, "loan_property_group_identifier", "property_group_id"),
	FieldAssetClass:      AliasVariants(FieldAssetClass, "asset_class"),
	"dealName":           AliasVariants("dealName", "deal_name"),
	"cusip":              AliasVariants("cusip", "cusip_number"),
	"obligorName":        AliasVariants("obligorName", "obligor_name", "borrowerName"),
}

var instrumentRiskMetricAliases = AliasMap{
	FieldInstrumentID:          AliasVariants(FieldInstrumentID, "instrument_id"),
	FieldPortfolioID:           AliasVariants(FieldPortfolioID, "portfolio_id"),
	FieldReportingDate:         AliasVariants(FieldReportingDate, "reporting_date"),
	FieldAsOfDate:              AliasVariants(FieldAsOfDate, "as_of_date"),
	"annualizedCumulativePD":   AliasVariants("annualizedCumulativePD", "annualized_pd"),
	"forwardPD":                AliasVariants("forwardPD", "forward_pd"),
	"cumulativePD":             AliasVariants("cumulativePD", "cumulative_pd"),
	"marginalPD":               AliasVariants("marginalPD", "marginal_pd"),
	"maturityRiskPD":           AliasVariants("maturityRiskPD", "maturity_risk_pd"),
	FieldLGD:                   AliasVariants(FieldLGD, "lossGivenDefault"),
	"lossRateAnnualized":       AliasVariants("lossRateAnnualized", "loss_rate_annualized"),
	"lossRateCumulative":       AliasVariants("lossRateCumulative", "loss_rate_cumulative"),
	"ead":                      AliasVariants("ead", "exposureAtDefault"),
	"ccf":                      AliasVariants("ccf"),
	"ugd":                      AliasVariants("ugd"),
	"prepaymentRate":           AliasVariants("prepaymentRate", "prepayment_rate"),
	"forwardPrepaymentRate":    AliasVariants("forwardPrepaymentRate", "forward_prepayment_rate"),
	"cumulativePrepaymentRate": AliasVariants("cumulativePrepaymentRate", "cumulative_prepayment_rate"),
	"expectedCreditLossAmount": AliasVariants("expectedCreditLossAmount", "expected_credit_loss_amount"),
	"exposure":                 AliasVariants("exposure"),
}

var instrumentResultAliases = AliasMap{
	FieldInstrumentID:      AliasVariants(FieldInstrumentID, "instrument_id"),
	FieldPortfolioID:       AliasVariants(FieldPortfolioID, "portfolio_id"),
	FieldReportingDate:     AliasVariants(FieldReportingDate, "reporting_date"),
	FieldAsOfDate:          AliasVariants(FieldAsOfDate, "as_of_date"),
	"riskClassification":   AliasVariants("riskClassification", "risk_classification"),
	"longTermRatingFromStageAllocation": AliasVariants(
		"longTermRatingFromStageAllocation",
		"long_term_rating_stage_allocation",
	),
	"longTermRatingFromStageAllocationScenarioBased": AliasVariants(
		"longTermRatingFromStageAllocationScenarioBased",
		"long_term_rating_stage_allocation_scenario", "long_term_rating_scenario",
	),
	"ifrsEADAmount":          AliasVariants("ifrsEADAmount", "ifrs_ead_amount"),
	"lossRateDelta":          AliasVariants("lossRateDelta", "loss_rate_delta"),
	"lossAllowanceDelta":     AliasVariants("lossAllowanceDelta", "loss_allowance_delta"),
	"ifrsLossRateUnadjusted": AliasVariants("ifrsLossRateUnadjusted", "ifrs_loss_rate_unadjusted"),
	"lossAllowanceDeltaInInstrumentCurrency": AliasVariants(
		"lossAllowanceDeltaInInstrumentCurrency",
		"loss_allowance_delta_in_instrument_currency",
	),
	FieldPDOneYear:     AliasVariants(FieldPDOneYear, "annualized_pd_one_year", "pd_1y"),
	FieldLGDLifetime:   AliasVariants(FieldLGDLifetime, "lgd_lifetime"),
	FieldAmortizedCost: AliasVariants(FieldAmortizedCost, "amortized_cost"),
}

var instrumentCashflowAliases = AliasMap{
	FieldInstrumentID:  AliasVariants(FieldInstrumentID, "instrument_id"),
	FieldPortfolioID:   AliasVariants(FieldPortfolioID, "portfolio_id"),
	FieldCashFlowDate:  AliasVariants(FieldCashFlowDate, "cash_flow_date"),
	FieldReportingDate: AliasVariants(FieldReportingDate, "reporting_date"),
	FieldAsOfDate:      AliasVariants(FieldAsOfDate, "as_of_date"),
	"beginningUnpaidPrincipalBalance": AliasVariants(
		"beginningUnpaidPrincipalBalance",
		"beginning_principal_balance",
	),
	"grossCarryingAmount": AliasVariants("grossCarryingAmount", "gross_carrying_amount"),
	"principalPayment":    AliasVariants("principalPayment", "principal_payment"),
	"interestPayment":     AliasVariants("interestPayment", "interest_payment"),
	"prepaymentAmount":    AliasVariants("prepaymentAmount", "prepayment_amount"),
	FieldDefaultAmount:    AliasVariants(FieldDefaultAmount, "default_amount"),
	FieldRecoveryAmount:   AliasVariants(FieldRecoveryAmount, "principal_recovery_amount"),
	"eadAmount":           AliasVariants("eadAmount", "ead_amount"),
	"forwardPD":           AliasVariants("forwardPD", "forward_pd"),
	"cumulativePD":        AliasVariants("cumulativePD", "cumulative_pd"),
	FieldLGD:              AliasVariants(FieldLGD),
	"discountFactorForAllowance": AliasVariants(
		"discountFactorForAllowance",
		"discount_factor_allowance",
	),
	"discountFactorForFairValue": AliasVariants(
		"discountFactorForFairValue",
		"discount_factor_fair_value",
	),
}

var chargeoffAliases = AliasMap{
	FieldInstrumentID: AliasVariants(FieldInstrumentID, "instrument_id"),
	FieldPortfolioID:  AliasVariants(FieldPortfolioID, "portfolio_id"),
	FieldChargeOffDate: AliasVariants(
		FieldChargeOffDate,
		"charge_off_date", "chargeoff_date", "reportingDate", "asOfDate",
	),
	FieldReportingDate:   AliasVariants(FieldReportingDate, "reporting_date"),
	FieldAsOfDate:        AliasVariants(FieldAsOfDate, "as_of_date"),
	"netChargeOffAmount": AliasVariants("netChargeOffAmount", "net_charge_off_amount"),
	"chargeOffAmount":    AliasVariants("chargeOffAmount", "charge_off_amount"),
}

var macroSeriesAliases = AliasMap{
	FieldObservationDate: AliasVariants(FieldObservationDate, "observation_date", "date", "period", "month", "quarter_end"),
}

var specs = []*DatasetSpec{
	{
		Kind:             KindInstrumentReference,
		DisplayName:      "Instrument Reference",
		FilenamePrefixes: []string{"instrumentreference", "reference"},
		RequiredFields:   []string{FieldInstrumentID, FieldPortfolioID},
		Aliases:          instrumentReferenceAliases,
		IdentifyingFields: []string{
			FieldReportingDate, FieldAsOfDate,
			FieldBorrowerZIP, FieldCollateralZIP,
			FieldBorrowerState, FieldCollateralState,
			FieldGeographyCode, FieldOccupancy,
			FieldPropertyStatus, FieldPropertyGroup, FieldAssetClass,
		},
	},
	{
		Kind:             KindInstrumentRiskMetric,
		DisplayName:      "Instrument Risk Metric",
		FilenamePrefixes: []string{"instrumentriskmetric", "riskmetric", "risk_metrics"},
		RequiredFields:   []string{FieldInstrumentID, FieldReportingDate},
		Aliases:          instrumentRiskMetricAliases,
		IdentifyingFields: []string{
			"annualizedCumulativePD", "forwardPD", "cumulativePD",
			"marginalPD", "maturityRiskPD", FieldLGD, "ead",
		},
	},
	{
		Kind:             KindInstrumentResult,
		DisplayName:      "Instrument Result",
		FilenamePrefixes: []string{"instrumentresult", "result"},
		RequiredFields:   []string{FieldInstrumentID, FieldPortfolioID},
		Aliases:          instrumentResultAliases,
		IdentifyingFields: []string{
			FieldReportingDate, FieldAsOfDate,
			"riskClassification",
			"longTermRatingFromStageAllocation",
			"longTermRatingFromStageAllocationScenarioBased",
			"ifrsEADAmount", "lossAllowanceDelta",
		},
	},
	{
		Kind:             KindInstrumentCashflow,
		DisplayName:      "Instrument Cash Flow",
		FilenamePrefixes: []string{"instrumentcashflow", "cashflow", "cash_flow"},
		RequiredFields:   []string{FieldInstrumentID, FieldPortfolioID, FieldCashFlowDate},
		Aliases:          instrumentCashflowAliases,
		IdentifyingFields: []string{
			FieldReportingDate, FieldAsOfDate,
			"beginningUnpaidPrincipalBalance", "grossCarryingAmount",
			"principalPayment", "interestPayment", "prepaymentAmount",
			FieldDefaultAmount, FieldRecoveryAmount, "eadAmount",
			"forwardPD", "cumulativePD", FieldLGD,
		},
	},
	{
		Kind:              KindChargeoff,
		DisplayName:       "Charge-off",
		FilenamePrefixes:  []string{"chargeoff", "charge_off", "default"},
		RequiredFields:    []string{FieldInstrumentID},
		Aliases:           chargeoffAliases,
		IdentifyingFields: []string{FieldChargeOffDate, "netChargeOffAmount", "chargeOffAmount"},
	},
	{
		Kind:             KindMacroSeries,
		DisplayName:      "Macroeconomic Series",
		FilenamePrefixes: []string{"macro", "economic"},
		RequiredFields:   []string{FieldObservationDate},
		Aliases:          macroSeriesAliases,
	},
}

var specsByKind = func() map[Kind]*DatasetSpec {
	m := make(map[Kind]*DatasetSpec, len(specs))
	for _, spec := range specs {
		m[spec.Kind] = spec
	}
	return m
}()

// Specs returns every dataset spec in detection order
func Specs() []*DatasetSpec {
	out := make([]*DatasetSpec, len(specs))
	copy(out, specs)
	return out
}

// Lookup returns the spec for a kind
func Lookup(kind Kind) (*DatasetSpec, error) {
	spec, ok := specsByKind[kind]
	if !ok {
		return nil, fmt.Errorf("unknown dataset kind %q", kind)
	}
	return spec, nil
}

// MustLookup is Lookup for kinds known at compile time
func MustLookup(kind Kind) *DatasetSpec {
	spec, err := Lookup(kind)
	if err != nil {
		panic(err)
	}
	return spec
}

// Valid reports whether the kind is registered
func (k Kind) Valid() bool {
	_, ok := specsByKind[k]
	return ok
}

// FieldCandidates merges the aliases of every spec by canonical field
func FieldCandidates() AliasMap {
	out := make(AliasMap)
	for _, spec := range specs {
		for canonical, aliases := range spec.Aliases {
			for _, alias := range aliases {
				if !contains(out[canonical], alias) {
					out[canonical] = append(out[canonical], alias)
				}
			}
		}
	}
	return out
}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}
