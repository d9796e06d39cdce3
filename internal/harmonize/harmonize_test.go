package harmonize

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskdash/internal/geo"
	"riskdash/internal/ingest"
	"riskdash/internal/schema"
)

func load(t *testing.T, name, content string) *ingest.LoadedFile {
	t.Helper()
	file, err := ingest.LoadBytes(name, []byte(strings.TrimLeft(content, "\n")))
	require.NoError(t, err)
	return file
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPositions(t *testing.T) {
	reference := load(t, "reference.csv", `
instrumentIdentifier,portfolioIdentifier,reportingDate,borrowerState,collateralState,borrowerZipCode,occupancyStatus,propertyStatus,assetClass
I-1,CRE,2025-06-30,tx,,75701,Owner Occupied,,Commercial Real Estate
I-2,CRE,2025-06-30,,CA,,tenant,Multifamily,
I-3,RES,2025-06-30,,,,,,
I-4,CNS,2025-06-30,NY,,,owner,,Consumer
I-5,RES,2025-06-30,FL,,,,,
`)
	result := load(t, "result.csv", `
instrumentIdentifier,portfolioIdentifier,reportingDate,annualizedPDOneYear,lgdLifetime,amortizedCost
I-1,CRE,2025-06-30,0.02,0.4,1000
I-2,CRE,2025-06-30,0.05,,500
I-3,RES,2025-06-30,0.01,0.2,100
I-4,CNS,2025-06-30,0.03,0.5,50
I-5,RES,2025-06-30,,,
I-9,RES,2025-06-30,0.02,0.2,10
`)
	cw, err := geo.LoadCrosswalk(strings.NewReader("zip,cbsa,cbsa_title\n75701,46340,Tyler TX\n"))
	require.NoError(t, err)

	set := Positions([]*ingest.LoadedFile{reference}, []*ingest.LoadedFile{result}, geo.NewResolver(cw))

	require.Len(t, set.Positions, 3)
	assert.Equal(t, JoinStats{
		Matched:            3,
		UnmatchedReference: 0,
		UnmatchedResult:    1,
		DroppedNoState:     1,
		DroppedNoMetrics:   1,
	}, set.Join)

	first := set.Positions[0]
	assert.Equal(t, "I-1", first.InstrumentID)
	assert.Equal(t, "TX", first.State)
	assert.Equal(t, "46340", first.CBSA)
	assert.Equal(t, geo.SourceBorrowerZIP, first.GeoSource)
	assert.Equal(t, "2025Q2", first.Quarter)
	assert.Equal(t, OccupancyOwner, first.Occupancy)
	assert.Equal(t, "Commercial Real Estate", first.PropertyGroup)
	assert.True(t, first.RealEstate)
	assert.Equal(t, Some(0.02), first.PD)

	second := set.Positions[1]
	assert.Equal(t, "CA", second.State)
	assert.Equal(t, OccupancyNonOwner, second.Occupancy)
	assert.Equal(t, "Multifamily", second.PropertyGroup)
	assert.False(t, second.LGD.Valid)

	consumer := set.Positions[2]
	assert.Equal(t, "I-4", consumer.InstrumentID)
	assert.False(t, consumer.RealEstate)
	assert.Equal(t, "Consumer", consumer.PropertyGroup)

	assert.Equal(t, "borrowerZipCode", set.Reference.Columns[schema.FieldBorrowerZIP])
}

func TestPositionsQuarterMustAgree(t *testing.T) {
	reference := load(t, "reference.csv", `
instrumentIdentifier,portfolioIdentifier,asOfDate,borrowerState
I-1,P,2025-06-30,TX
`)
	result := load(t, "result.csv", `
instrumentIdentifier,portfolioIdentifier,reportingDate,annualizedPDOneYear
I-1,P,2025-03-31,0.01
I-1,P,2025-06-30,0.02
`)
	set := Positions([]*ingest.LoadedFile{reference}, []*ingest.LoadedFile{result}, nil)

	require.Len(t, set.Positions, 1)
	assert.Equal(t, Some(0.02), set.Positions[0].PD)
	assert.Equal(t, 1, set.Join.UnmatchedResult)
}

func TestObservationsUnionLastWins(t *testing.T) {
	first := load(t, "riskmetric_a.csv", `
instrumentIdentifier,reportingDate,annualizedCumulativePD,forwardPD,lgd,ead
I-1,2024-03-31,0.010,0.020,0.4,100
I-1,2024-06-30,,0.030,0.4,100
,2024-06-30,0.5,,,
I-2,not-a-date,0.1,,,
`)
	second := load(t, "riskmetric_b.csv", `
instrument_id,reporting_date,forward_pd,exposureAtDefault
I-1,2024-06-30,0.035,120
I-0,2024-06-30,0.002,10
`)

	obs, report := Observations([]*ingest.LoadedFile{first, second})

	require.Len(t, obs, 3)
	assert.Equal(t, "I-0", obs[0].InstrumentID)
	assert.Equal(t, "I-1", obs[1].InstrumentID)
	assert.Equal(t, date(2024, 3, 31), obs[1].Date)
	assert.Equal(t, "annualizedCumulativePD", obs[1].PDField)

	latest := obs[2]
	assert.Equal(t, date(2024, 6, 30), latest.Date)
	assert.InDelta(t, 0.035, latest.PD.Value, 1e-12)
	assert.Equal(t, "forwardPD", latest.PDField)
	assert.InDelta(t, 120, latest.EAD.Value, 1e-12)
	assert.False(t, latest.LGD.Valid)

	assert.Equal(t, 6, report.Rows)
	assert.Equal(t, 3, report.Kept)
	assert.Equal(t, 1, report.Conflicts)
	assert.Equal(t, 1, report.DroppedNoID)
	assert.Equal(t, 1, report.DroppedOther)
	assert.Equal(t, []string{"riskmetric_a.csv", "riskmetric_b.csv"}, report.Sources)
}

func TestRatingSnapshotsFallbackPD(t *testing.T) {
	result := load(t, "result_q2_2023.csv", `
instrumentIdentifier,portfolioIdentifier,reportingDate,riskClassification,longTermRatingFromStageAllocation,ifrsEADAmount
I-1,P,2023-06-30,,BBB,1000
I-2,P,2023-06-30,AA,A,500
I-3,P,2023-06-30,,,
`)
	risk := load(t, "riskmetric.csv", `
instrumentIdentifier,reportingDate,forwardPD
I-3,2023-03-31,0.04
I-3,2023-06-30,0.05
I-3,2023-09-30,0.07
`)

	snaps, reports := RatingSnapshots([]*ingest.LoadedFile{result}, []*ingest.LoadedFile{risk})
	require.Len(t, reports, 2)
	require.Len(t, snaps, 3)

	assert.Equal(t, "BBB", snaps[0].Rating)
	assert.Equal(t, "longTermRatingFromStageAllocation", snaps[0].RatingSource)
	assert.Equal(t, "2023Q2", snaps[0].Quarter)
	assert.Equal(t, Some(1000), snaps[0].Exposure)

	assert.Equal(t, "AA", snaps[1].Rating)
	assert.Equal(t, "riskClassification", snaps[1].RatingSource)

	assert.Equal(t, "", snaps[2].Rating)
	assert.InDelta(t, 0.05, snaps[2].PD.Value, 1e-12)
}

func TestLossEvents(t *testing.T) {
	chargeoff := load(t, "chargeoff.csv", `
instrumentIdentifier,chargeOffDate,asOfDate,netChargeOffAmount,chargeOffAmount
I-1,2024-02-15,2024-03-31,(250),300
I-2,,2024-06-30,,80
I-3,,,,10
`)
	cashflow := load(t, "cashflow.csv", `
instrumentIdentifier,portfolioIdentifier,cashFlowDate,defaultAmount,principalRecoveryAmount
I-7,P,2024-05-31,100,30
I-8,P,2024-05-31,0,0
I-9,P,2024-05-31,50,80
`)

	events, reports := LossEvents([]*ingest.LoadedFile{chargeoff}, []*ingest.LoadedFile{cashflow})
	require.Len(t, reports, 1)
	require.Len(t, events, 2)
	assert.Equal(t, date(2024, 2, 15), events[0].Date)
	assert.Equal(t, Some(250), events[0].Amount)
	assert.Equal(t, date(2024, 6, 30), events[1].Date)
	assert.Equal(t, Some(80), events[1].Amount)
	assert.Equal(t, 1, reports[0].DroppedOther)

	events, reports = LossEvents(nil, []*ingest.LoadedFile{cashflow})
	require.Len(t, reports, 1)
	require.Len(t, events, 2)
	assert.Equal(t, "I-7", events[0].InstrumentID)
	assert.Equal(t, Some(70), events[0].Amount)
	assert.Equal(t, EventSourceCashflow, events[0].Source)
	assert.Equal(t, Some(0), events[1].Amount)
}

func TestFirstEvents(t *testing.T) {
	events := []LossEvent{
		{InstrumentID: "A", Date: date(2024, 5, 1)},
		{InstrumentID: "B", Date: date(2024, 1, 1)},
		{InstrumentID: "A", Date: date(2024, 2, 1)},
	}
	first := FirstEvents(events)
	require.Len(t, first, 2)
	assert.Equal(t, date(2024, 2, 1), first[0].Date)
	assert.Equal(t, "B", first[1].InstrumentID)
}

func TestMacroPoints(t *testing.T) {
	macro := load(t, "macro.csv", `
date,unemploymentRate,hpi,source
2023-01-31,3.4,300.5,BLS
2023-02-28,3.6,,BLS
bad,4.0,1,BLS
`)
	points, report := MacroPoints([]*ingest.LoadedFile{macro})

	require.Len(t, points, 3)
	assert.Equal(t, "hpi", points[0].Variable)
	assert.Equal(t, "unemploymentRate", points[1].Variable)
	assert.InDelta(t, 3.6, points[2].Value, 1e-12)
	assert.Equal(t, 1, report.DroppedOther)
	assert.NotContains(t, report.Columns, "source")
}

func TestMapOccupancy(t *testing.T) {
	assert.Equal(t, OccupancyOwner, MapOccupancy(" Owner-Occupied "))
	assert.Equal(t, OccupancyOwner, MapOccupancy("owner occupied property"))
	assert.Equal(t, OccupancyNonOwner, MapOccupancy("Non Owner"))
	assert.Equal(t, OccupancyUnknown, MapOccupancy("second home"))
	assert.Equal(t, OccupancyUnknown, MapOccupancy(""))
}

func TestIsRealEstate(t *testing.T) {
	assert.True(t, IsRealEstate("", "", "Commercial Real Estate"))
	assert.True(t, IsRealEstate("Owner", "", ""))
	assert.False(t, IsRealEstate("", "", "Commercial and Industrial"))
	assert.True(t, IsRealEstate("", "", ""), "no property information")
	assert.False(t, IsRealEstate("Owner", "Office", "Consumer Auto"))
	assert.Equal(t, UnclassifiedPropertyGroup, ChoosePropertyGroup("", " "))
}

func TestNumJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		A Num `json:"a"`
		B Num `json:"b"`
	}{A: Some(0.25)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":0.25,"b":null}`, string(data))

	var n Num
	require.NoError(t, json.Unmarshal([]byte("1.5"), &n))
	assert.Equal(t, Some(1.5), n)
	require.NoError(t, json.Unmarshal([]byte("null"), &n))
	assert.False(t, n.Valid)
}

func TestSegments(t *testing.T) {
	reference := load(t, "segments.csv", `
instrumentIdentifier,portfolioIdentifier,reportingDate
I-1,CRE,2023-12-31
I-1,CNS,2024-03-31
I-2,,2023-12-31
`)
	segments, report := Segments([]*ingest.LoadedFile{reference})
	assert.Equal(t, map[string]string{"I-1": "CNS"}, segments)
	assert.Equal(t, 3, report.Rows)
}
