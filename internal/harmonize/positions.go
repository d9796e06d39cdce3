package harmonize

import (
	"time"

	"riskdash/internal/geo"
	"riskdash/internal/ingest"
	"riskdash/internal/schema"
)

var referenceFields = []string{
	schema.FieldInstrumentID, schema.FieldPortfolioID,
	schema.FieldReportingDate, schema.FieldAsOfDate,
	schema.FieldGeographyCode, schema.FieldBorrowerZIP, schema.FieldCollateralZIP,
	schema.FieldBorrowerState, schema.FieldCollateralState,
	schema.FieldOccupancy,
	schema.FieldPropertyStatus, schema.FieldPropertyGroup, schema.FieldAssetClass,
}

var resultMetricFields = []string{
	schema.FieldInstrumentID, schema.FieldPortfolioID,
	schema.FieldReportingDate, schema.FieldAsOfDate,
	schema.FieldPDOneYear, schema.FieldLGDLifetime, schema.FieldAmortizedCost,
}

type referenceRow struct {
	id, portfolio, quarter string
	geography              geo.Record
	occupancy              string
	propertyGroup          string
	realEstate             bool
}

type resultRow struct {
	id, portfolio, quarter string
	pd, lgd, exposure      Num
}

// JoinStats counts what happened when reference and result were joined
type JoinStats struct {
	Matched            int `json:"matched"`
	UnmatchedReference int `json:"unmatched_reference"`
	UnmatchedResult    int `json:"unmatched_result"`
	DroppedNoState     int `json:"dropped_no_state"`
	DroppedNoMetrics   int `json:"dropped_no_metrics"`
}

// PositionSet is the harmonized input of the geographic heatmap
type PositionSet struct {
	Positions []Position `json:"positions"`
	Reference *Report    `json:"reference"`
	Result    *Report    `json:"result"`
	Join      JoinStats  `json:"join"`
}

func snapshotQuarter(r row) string {
	if t, ok := r.firstDate(schema.SnapshotDatePriority); ok {
		return ingest.QuarterLabel(t)
	}
	return ""
}

func snapshotDate(r row) time.Time {
	t, _ := r.firstDate(schema.SnapshotDatePriority)
	return t
}

func unionReference(files []*ingest.LoadedFile) ([]referenceRow, *Report) {
	spec := schema.MustLookup(schema.KindInstrumentReference)
	report := newReport(schema.KindInstrumentReference)
	u := newUnion[referenceRow]()

	for _, file := range files {
		selected := SelectCanonical(file.Table, spec, referenceFields)
		report.Sources = append(report.Sources, file.FileName)
		report.recordColumns(selected)

		for _, r := range rows(file, selected) {
			report.Rows++
			id := r.text(schema.FieldInstrumentID)
			if id == "" {
				report.DroppedNoID++
				continue
			}
			property := r.text(schema.FieldPropertyStatus)
			group := r.text(schema.FieldPropertyGroup)
			class := r.text(schema.FieldAssetClass)
			state, _ := r.firstText([]string{schema.FieldBorrowerState, schema.FieldCollateralState})

			u.put(dateKey(id, snapshotDate(r)), referenceRow{
				id:        id,
				portfolio: r.text(schema.FieldPortfolioID),
				quarter:   snapshotQuarter(r),
				geography: geo.Record{
					GeographyCode: r.text(schema.FieldGeographyCode),
					BorrowerZIP:   r.text(schema.FieldBorrowerZIP),
					CollateralZIP: r.text(schema.FieldCollateralZIP),
					State:         state,
				},
				occupancy:     MapOccupancy(r.text(schema.FieldOccupancy)),
				propertyGroup: ChoosePropertyGroup(property, group, class),
				realEstate:    IsRealEstate(property, group, class),
			})
		}
	}
	report.Conflicts = u.conflicts
	values := u.values()
	report.Kept = len(values)
	return values, report
}

func unionResult(files []*ingest.LoadedFile) ([]resultRow, *Report) {
	spec := schema.MustLookup(schema.KindInstrumentResult)
	report := newReport(schema.KindInstrumentResult)
	u := newUnion[resultRow]()

	for _, file := range files {
		selected := SelectCanonical(file.Table, spec, resultMetricFields)
		report.Sources = append(report.Sources, file.FileName)
		report.recordColumns(selected)

		for _, r := range rows(file, selected) {
			report.Rows++
			id := r.text(schema.FieldInstrumentID)
			if id == "" {
				report.DroppedNoID++
				continue
			}
			u.put(dateKey(id, snapshotDate(r)), resultRow{
				id:        id,
				portfolio: r.text(schema.FieldPortfolioID),
				quarter:   snapshotQuarter(r),
				pd:        r.num(schema.FieldPDOneYear),
				lgd:       r.num(schema.FieldLGDLifetime),
				exposure:  r.num(schema.FieldAmortizedCost),
			})
		}
	}
	report.Conflicts = u.conflicts
	values := u.values()
	report.Kept = len(values)
	return values, report
}

// Positions inner-joins reference and result rows on instrument identifier.
// When both sides carry a snapshot quarter the quarters must agree. Rows
// with no resolvable state or with none of PD, LGD and exposure are dropped.
func Positions(reference, result []*ingest.LoadedFile, resolver *geo.Resolver) *PositionSet {
	refs, refReport := unionReference(reference)
	results, resReport := unionResult(result)
	set := &PositionSet{Reference: refReport, Result: resReport}

	byID := make(map[string][]int, len(results))
	for i, res := range results {
		byID[res.id] = append(byID[res.id], i)
	}
	usedResults := make(map[int]bool, len(results))

	for _, ref := range refs {
		candidates := byID[ref.id]
		matched := false
		for _, i := range candidates {
			res := results[i]
			if ref.quarter != "" && res.quarter != "" && ref.quarter != res.quarter {
				continue
			}
			matched = true
			usedResults[i] = true

			if !res.pd.Valid && !res.lgd.Valid && !res.exposure.Valid {
				set.Join.DroppedNoMetrics++
				continue
			}

			resolution := resolver.Resolve(ref.geography)
			state := geo.NormalizeState(ref.geography.State)
			if state == "" {
				state = resolution.State
			}
			if state == "" {
				set.Join.DroppedNoState++
				continue
			}

			quarter := ref.quarter
			if quarter == "" {
				quarter = res.quarter
			}
			portfolio := ref.portfolio
			if portfolio == "" {
				portfolio = res.portfolio
			}

			set.Positions = append(set.Positions, Position{
				InstrumentID:  ref.id,
				PortfolioID:   portfolio,
				Quarter:       quarter,
				State:         state,
				CBSA:          resolution.CBSA,
				CBSATitle:     resolution.CBSATitle,
				GeoSource:     resolution.Source,
				Occupancy:     ref.occupancy,
				PropertyGroup: ref.propertyGroup,
				RealEstate:    ref.realEstate,
				PD:            res.pd,
				LGD:           res.lgd,
				Exposure:      res.exposure,
			})
			set.Join.Matched++
		}
		if !matched {
			set.Join.UnmatchedReference++
		}
	}
	set.Join.UnmatchedResult = len(results) - len(usedResults)
	return set
}

// InstrumentGeography resolves every reference instrument's location. When
// an instrument has several snapshots the last one loaded wins.
func InstrumentGeography(reference []*ingest.LoadedFile, resolver *geo.Resolver) (map[string]geo.Resolution, *Report) {
	refs, report := unionReference(reference)
	out := make(map[string]geo.Resolution, len(refs))
	for _, ref := range refs {
		res := resolver.Resolve(ref.geography)
		if state := geo.NormalizeState(ref.geography.State); state != "" {
			res.State = state
		}
		out[ref.id] = res
	}
	return out, report
}

// Segments maps reference instruments to their portfolio identifier.
// Instruments without a portfolio are left out.
func Segments(reference []*ingest.LoadedFile) (map[string]string, *Report) {
	refs, report := unionReference(reference)
	out := make(map[string]string, len(refs))
	for _, ref := range refs {
		if ref.portfolio != "" {
			out[ref.id] = ref.portfolio
		}
	}
	return out, report
}
