package schema

// Canonical field names shared across dataset kinds
const (
	FieldInstrumentID  = "instrumentIdentifier"
	FieldPortfolioID   = "portfolioIdentifier"
	FieldReportingDate = "reportingDate"
	FieldAsOfDate      = "asOfDate"
	FieldCashFlowDate  = "cashFlowDate"
	FieldChargeOffDate = "chargeOffDate"

	FieldBorrowerZIP     = "borrowerZipCode"
	FieldCollateralZIP   = "collateralZipCode"
	FieldBorrowerState   = "borrowerState"
	FieldCollateralState = "collateralState"
	FieldGeographyCode   = "geographyCode"
	FieldOccupancy       = "occupancyStatus"
	FieldPropertyStatus  = "propertyStatus"
	FieldPropertyGroup   = "loanPropertyGroupIdentifier"
	FieldAssetClass      = "assetClass"

	FieldLGD            = "lgd"
	FieldPDOneYear      = "annualizedPDOneYear"
	FieldLGDLifetime    = "lgdLifetime"
	FieldAmortizedCost  = "amortizedCost"
	FieldDefaultAmount  = "defaultAmount"
	FieldRecoveryAmount = "principalRecoveryAmount"

	FieldObservationDate = "observationDate"
)

// PDPriority lists probability-of-default columns, most preferred first
var PDPriority = []string{
	"annualizedCumulativePD",
	"forwardPD",
	"cumulativePD",
	"marginalPD",
	"maturityRiskPD",
}

// RatingPriority lists rating columns, most preferred first
var RatingPriority = []string{
	"riskClassification",
	"longTermRatingFromStageAllocation",
	"longTermRatingFromStageAllocationScenarioBased",
}

// EADPriority lists exposure-at-default columns, most preferred first
var EADPriority = []string{
	"ead",
	"eadAmount",
	"ifrsEADAmount",
}

// LGDFields lists loss-given-default columns
var LGDFields = []string{FieldLGD}

// ChargeOffAmountPriority lists charge-off amount columns, net first
var ChargeOffAmountPriority = []string{
	"netChargeOffAmount",
	"chargeOffAmount",
}

// DateFields lists every date-bearing canonical field
var DateFields = []string{
	FieldReportingDate,
	FieldAsOfDate,
	FieldCashFlowDate,
	FieldChargeOffDate,
}

// SnapshotDatePriority is the order in which a row's snapshot date is taken
var SnapshotDatePriority = []string{FieldReportingDate, FieldAsOfDate}

// EventDatePriority is the order in which a charge-off event date is taken
var EventDatePriority = []string{FieldChargeOffDate, FieldReportingDate, FieldAsOfDate}

// IdentifierFields are the keys joining datasets together
var IdentifierFields = []string{FieldInstrumentID, FieldPortfolioID}

// GeographyPriority lists geography columns from most to least granular
var GeographyPriority = []string{
	FieldGeographyCode,
	FieldBorrowerZIP,
	FieldCollateralZIP,
	FieldBorrowerState,
	FieldCollateralState,
}

// PropertyFields lists the columns a property group is chosen from
var PropertyFields = []string{
	FieldPropertyStatus,
	FieldPropertyGroup,
	FieldAssetClass,
}
