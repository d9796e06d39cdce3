package analytics

import (
	"sort"

	"riskdash/internal/exporter"
	"riskdash/internal/filters"
	"riskdash/internal/geo"
	"riskdash/internal/harmonize"
)

// Metric is a selectable heatmap colour metric
type Metric struct {
	Label  string `json:"label"`
	Column string `json:"column"`
}

// HeatmapMetrics is the catalogue offered by the real estate PD page
var HeatmapMetrics = []Metric{
	{Label: "Average PD (1Y)", Column: "avg_pd"},
	{Label: "Average LGD (Lifetime)", Column: "avg_lgd"},
	{Label: "Exposure Share", Column: "exposure_share"},
}

// Region is one heatmap cell
type Region struct {
	Key             string        `json:"key"`
	Label           string        `json:"label"`
	State           string        `json:"state"`
	AvgPD           harmonize.Num `json:"avg_pd"`
	AvgLGD          harmonize.Num `json:"avg_lgd"`
	Exposure        float64       `json:"exposure"`
	InstrumentCount int           `json:"instrument_count"`
	ExposureShare   harmonize.Num `json:"exposure_share"`
}

// HeatmapKPIs are the headline figures above the map
type HeatmapKPIs struct {
	Instruments   int           `json:"instruments"`
	AvgPD         harmonize.Num `json:"avg_pd"`
	AvgLGD        harmonize.Num `json:"avg_lgd"`
	TotalExposure float64       `json:"total_exposure"`
	WeightedPD    harmonize.Num `json:"weighted_pd"`
}

// Heatmap is the real estate PD view
type Heatmap struct {
	Level     filters.Geography    `json:"level"`
	Regions   []Region             `json:"regions"`
	KPIs      HeatmapKPIs          `json:"kpis"`
	Metrics   []Metric             `json:"metrics"`
	Notices   []string             `json:"notices,omitempty"`
	Positions []harmonize.Position `json:"-"`
}

type regionAcc struct {
	region   Region
	pds      []float64
	lgds     []float64
	exposure float64
	ids      map[string]struct{}
}

// BuildHeatmap aggregates positions by state, or by CBSA when requested and
// at least one position resolved one. Positions without a CBSA stay on their
// state in a CBSA map.
func BuildHeatmap(positions []harmonize.Position, level filters.Geography) *Heatmap {
	h := &Heatmap{Level: level, Metrics: HeatmapMetrics, Positions: positions}

	if level == filters.GeographyCBSA {
		resolved := false
		for _, p := range positions {
			if p.CBSA != "" {
				resolved = true
				break
			}
		}
		if !resolved {
			h.Level = filters.GeographyState
			if len(positions) > 0 {
				h.Notices = append(h.Notices, "No instrument resolved to a CBSA; showing states instead. Supply ZIP codes or geography codes with a CBSA crosswalk to map metro areas.")
			}
		}
	}

	groups := make(map[string]*regionAcc)
	var order []string
	for _, p := range positions {
		key, label := regionOf(p, h.Level)
		acc, ok := groups[key]
		if !ok {
			acc = &regionAcc{
				region: Region{Key: key, Label: label, State: p.State},
				ids:    make(map[string]struct{}),
			}
			groups[key] = acc
			order = append(order, key)
		}
		if p.PD.Valid {
			acc.pds = append(acc.pds, p.PD.Value)
		}
		if p.LGD.Valid {
			acc.lgds = append(acc.lgds, p.LGD.Value)
		}
		if p.Exposure.Valid {
			acc.exposure += p.Exposure.Value
		}
		acc.ids[p.InstrumentID] = struct{}{}
	}

	total := 0.0
	for _, acc := range groups {
		total += acc.exposure
	}

	var regionPDs, regionLGDs []float64
	for _, key := range order {
		acc := groups[key]
		r := acc.region
		r.AvgPD = Mean(acc.pds)
		r.AvgLGD = Mean(acc.lgds)
		r.Exposure = acc.exposure
		r.InstrumentCount = len(acc.ids)
		if total > 0 {
			r.ExposureShare = harmonize.Some(acc.exposure / total)
		}
		h.Regions = append(h.Regions, r)

		h.KPIs.Instruments += r.InstrumentCount
		if r.AvgPD.Valid {
			regionPDs = append(regionPDs, r.AvgPD.Value)
		}
		if r.AvgLGD.Valid {
			regionLGDs = append(regionLGDs, r.AvgLGD.Value)
		}
	}
	sort.SliceStable(h.Regions, func(i, j int) bool {
		if h.Regions[i].Exposure != h.Regions[j].Exposure {
			return h.Regions[i].Exposure > h.Regions[j].Exposure
		}
		return h.Regions[i].Key < h.Regions[j].Key
	})

	h.KPIs.AvgPD = Mean(regionPDs)
	h.KPIs.AvgLGD = Mean(regionLGDs)
	h.KPIs.TotalExposure = total
	h.KPIs.WeightedPD = weightedPD(positions)
	return h
}

func regionOf(p harmonize.Position, level filters.Geography) (string, string) {
	if level == filters.GeographyCBSA && p.CBSA != "" {
		if p.CBSATitle != "" {
			return p.CBSA, p.CBSATitle
		}
		return p.CBSA, p.CBSA
	}
	if s, ok := geo.LookupState(p.State); ok {
		return s.Code, s.Name
	}
	return p.State, p.State
}

func weightedPD(positions []harmonize.Position) harmonize.Num {
	var num, den float64
	for _, p := range positions {
		if !p.PD.Valid || !p.Exposure.Valid || p.Exposure.Value <= 0 {
			continue
		}
		num += p.PD.Value * p.Exposure.Value
		den += p.Exposure.Value
	}
	if den <= 0 {
		return harmonize.Num{}
	}
	return harmonize.Some(num / den)
}

// Bundle exports the region table, KPIs and the filtered positions
func (h *Heatmap) Bundle() exporter.Bundle {
	b := exporter.Bundle{Name: "real_estate_pd"}

	regions := exporter.Table{Columns: []string{
		"region", "label", "state", "avg_pd", "avg_lgd", "exposure", "instrument_count", "exposure_share",
	}}
	for _, r := range h.Regions {
		regions.Rows = append(regions.Rows, []string{
			r.Key, r.Label, r.State,
			formatNum(r.AvgPD), formatNum(r.AvgLGD),
			exporter.FormatFloat(r.Exposure, 2),
			exporter.FormatInt(r.InstrumentCount),
			formatNum(r.ExposureShare),
		})
	}
	b.Add("regions", regions)

	b.Add("kpis", exporter.Table{
		Columns: []string{"metric", "value"},
		Rows: [][]string{
			{"instruments", exporter.FormatInt(h.KPIs.Instruments)},
			{"avg_pd", formatNum(h.KPIs.AvgPD)},
			{"avg_lgd", formatNum(h.KPIs.AvgLGD)},
			{"total_exposure", exporter.FormatFloat(h.KPIs.TotalExposure, 2)},
			{"weighted_pd", formatNum(h.KPIs.WeightedPD)},
		},
	})

	positions := exporter.Table{Columns: []string{
		"instrument_id", "portfolio_id", "quarter", "state", "cbsa", "cbsa_title", "geo_source",
		"occupancy", "property_group", "real_estate", "pd", "lgd", "exposure",
	}}
	for _, p := range h.Positions {
		positions.Rows = append(positions.Rows, []string{
			p.InstrumentID, p.PortfolioID, p.Quarter, p.State, p.CBSA, p.CBSATitle, p.GeoSource,
			p.Occupancy, p.PropertyGroup, exporter.FormatBool(p.RealEstate),
			formatNum(p.PD), formatNum(p.LGD), formatNum(p.Exposure),
		})
	}
	b.Add("positions", positions)
	return b
}

func formatNum(n harmonize.Num) string {
	return exporter.FormatOptional(n.Value, n.Valid, 6)
}
