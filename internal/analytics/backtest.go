package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"riskdash/internal/exporter"
	"riskdash/internal/harmonize"
)

// Traffic lights for backtest buckets
const (
	LightGreen = "green"
	LightAmber = "amber"
	LightRed   = "red"
	LightGrey  = "grey"
)

// UnassignedPortfolio groups instruments with no portfolio identifier
const UnassignedPortfolio = "Unassigned"

// BacktestOptions configures BuildBacktest
type BacktestOptions struct {
	Start     time.Time
	WindowEnd time.Time
}

// DefaultBacktestOptions snapshots at 2023-12-31 and observes losses in 2024
func DefaultBacktestOptions() BacktestOptions {
	return BacktestOptions{
		Start:     time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
		WindowEnd: time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
	}
}

// BacktestInstrument is one instrument's prediction and outcome
type BacktestInstrument struct {
	InstrumentID string    `json:"instrument_id"`
	PortfolioID  string    `json:"portfolio_id"`
	SnapshotDate time.Time `json:"snapshot_date"`
	Band         string    `json:"band"`
	PD           float64   `json:"pd"`
	LGD          float64   `json:"lgd"`
	EAD          float64   `json:"ead"`
	ExpectedLoss float64   `json:"expected_loss"`
	Defaulted    bool      `json:"defaulted"`
	RealizedLoss float64   `json:"realized_loss"`
}

// BacktestBucket compares predictions with outcomes for a group
type BacktestBucket struct {
	Key              string        `json:"key"`
	Instruments      int           `json:"instruments"`
	ExpectedDefaults float64       `json:"expected_defaults"`
	ObservedDefaults int           `json:"observed_defaults"`
	ExpectedLoss     float64       `json:"expected_loss"`
	RealizedLoss     float64       `json:"realized_loss"`
	LossRatio        harmonize.Num `json:"loss_ratio"`
	ZScore           harmonize.Num `json:"z_score"`
	Light            string        `json:"light"`

	// Variance is the binomial default variance, sum of PD x (1 - PD)
	Variance float64 `json:"variance"`
}

// Backtest is the PD and expected loss backtest view
type Backtest struct {
	Start       time.Time            `json:"start"`
	WindowStart time.Time            `json:"window_start"`
	WindowEnd   time.Time            `json:"window_end"`
	ByBand      []BacktestBucket     `json:"by_band"`
	ByPortfolio []BacktestBucket     `json:"by_portfolio"`
	Total       BacktestBucket       `json:"total"`
	Instruments []BacktestInstrument `json:"-"`
	// Excluded counts snapshots missing PD, LGD or EAD
	Excluded int `json:"excluded"`
	// NoSnapshot counts instruments first observed after the start date
	NoSnapshot int `json:"no_snapshot"`
	// UnmatchedEvents counts window events for instruments without a usable snapshot
	UnmatchedEvents int `json:"unmatched_events"`
}

// BuildBacktest snapshots every instrument at its latest observation on or
// before the start date and compares expected loss PD x LGD x EAD with the
// losses realized in the following window. Segments override the portfolio
// recorded on the observations.
func BuildBacktest(obs []harmonize.Observation, events []harmonize.LossEvent, segments map[string]string, opts BacktestOptions) (*Backtest, error) {
	bt := &Backtest{
		Start:       opts.Start,
		WindowStart: opts.Start.AddDate(0, 0, 1),
		WindowEnd:   opts.WindowEnd,
	}
	if len(obs) == 0 {
		return nil, validationError("backtest", []string{"Risk metric observations are required to run the backtest."})
	}

	sorted := append([]harmonize.Observation(nil), obs...)
	harmonize.SortObservations(sorted)
	history := harmonize.GroupObservations(sorted)

	realized := make(map[string]float64)
	defaulted := make(map[string]bool)
	for _, e := range events {
		if e.Date.Before(bt.WindowStart) || e.Date.After(bt.WindowEnd) {
			continue
		}
		defaulted[e.InstrumentID] = true
		if e.Amount.Valid {
			realized[e.InstrumentID] += e.Amount.Value
		}
	}

	var ids []string
	for id := range history {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	used := make(map[string]bool)
	for _, id := range ids {
		var snap *harmonize.Observation
		for i := range history[id] {
			o := &history[id][i]
			if o.Date.After(opts.Start) {
				break
			}
			snap = o
		}
		if snap == nil {
			bt.NoSnapshot++
			continue
		}
		if !snap.PD.Valid || !snap.LGD.Valid || !snap.EAD.Valid {
			bt.Excluded++
			continue
		}
		portfolio := segments[id]
		if portfolio == "" {
			portfolio = snap.PortfolioID
		}
		if portfolio == "" {
			portfolio = UnassignedPortfolio
		}
		band, _ := PDBand(snap.PD.Value)
		used[id] = true
		bt.Instruments = append(bt.Instruments, BacktestInstrument{
			InstrumentID: id,
			PortfolioID:  portfolio,
			SnapshotDate: snap.Date,
			Band:         band.Label,
			PD:           snap.PD.Value,
			LGD:          snap.LGD.Value,
			EAD:          snap.EAD.Value,
			ExpectedLoss: snap.PD.Value * snap.LGD.Value * snap.EAD.Value,
			Defaulted:    defaulted[id],
			RealizedLoss: realized[id],
		})
	}
	for id := range defaulted {
		if !used[id] {
			bt.UnmatchedEvents++
		}
	}

	if len(bt.Instruments) == 0 {
		return nil, validationError("backtest", []string{fmt.Sprintf(
			"No risk metric observations on or before %s carry PD, LGD and EAD.", opts.Start.Format(dateLayout))})
	}

	bands := make(map[string]*BacktestBucket)
	portfolios := make(map[string]*BacktestBucket)
	bt.Total.Key = "Total"
	for _, inst := range bt.Instruments {
		bucket(bands, inst.Band).add(inst)
		bucket(portfolios, inst.PortfolioID).add(inst)
		bt.Total.add(inst)
	}

	for _, b := range PDBands {
		if acc, ok := bands[b.Label]; ok {
			bt.ByBand = append(bt.ByBand, acc.finish())
		}
	}
	var keys []string
	for k := range portfolios {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		bt.ByPortfolio = append(bt.ByPortfolio, portfolios[k].finish())
	}
	bt.Total = bt.Total.finish()
	return bt, nil
}

func bucket(m map[string]*BacktestBucket, key string) *BacktestBucket {
	b, ok := m[key]
	if !ok {
		b = &BacktestBucket{Key: key}
		m[key] = b
	}
	return b
}

func (b *BacktestBucket) add(inst BacktestInstrument) {
	b.Instruments++
	b.ExpectedDefaults += inst.PD
	b.Variance += inst.PD * (1 - inst.PD)
	b.ExpectedLoss += inst.ExpectedLoss
	b.RealizedLoss += inst.RealizedLoss
	if inst.Defaulted {
		b.ObservedDefaults++
	}
}

func (b BacktestBucket) finish() BacktestBucket {
	if b.ExpectedLoss > 0 {
		b.LossRatio = harmonize.Some(b.RealizedLoss / b.ExpectedLoss)
	}
	b.Light = LightGrey
	if b.Variance > 0 {
		z := (float64(b.ObservedDefaults) - b.ExpectedDefaults) / math.Sqrt(b.Variance)
		b.ZScore = harmonize.Some(z)
		b.Light = TrafficLight(z)
	}
	return b
}

// TrafficLight grades a default-rate z-score at the 95% and 99% levels
func TrafficLight(z float64) string {
	switch a := math.Abs(z); {
	case a < 1.96:
		return LightGreen
	case a < 2.58:
		return LightAmber
	default:
		return LightRed
	}
}

func bucketTable(buckets []BacktestBucket) exporter.Table {
	t := exporter.Table{Columns: []string{
		"bucket", "instruments", "expected_defaults", "observed_defaults",
		"expected_loss", "realized_loss", "loss_ratio", "z_score", "light",
	}}
	for _, b := range buckets {
		t.Rows = append(t.Rows, []string{
			b.Key, exporter.FormatInt(b.Instruments),
			exporter.FormatFloat(b.ExpectedDefaults, 4), exporter.FormatInt(b.ObservedDefaults),
			exporter.FormatFloat(b.ExpectedLoss, 2), exporter.FormatFloat(b.RealizedLoss, 2),
			formatNum(b.LossRatio), formatNum(b.ZScore), b.Light,
		})
	}
	return t
}

// Bundle exports bucket tables and the instrument detail
func (bt *Backtest) Bundle() exporter.Bundle {
	b := exporter.Bundle{Name: "backtest"}
	b.Add("by_band", bucketTable(bt.ByBand))
	b.Add("by_portfolio", bucketTable(bt.ByPortfolio))
	b.Add("total", bucketTable([]BacktestBucket{bt.Total}))

	detail := exporter.Table{Columns: []string{
		"instrument_id", "portfolio_id", "snapshot_date", "band", "pd", "lgd", "ead",
		"expected_loss", "defaulted", "realized_loss",
	}}
	for _, i := range bt.Instruments {
		detail.Rows = append(detail.Rows, []string{
			i.InstrumentID, i.PortfolioID, i.SnapshotDate.Format(dateLayout), i.Band,
			exporter.FormatFloat(i.PD, 6), exporter.FormatFloat(i.LGD, 6), exporter.FormatFloat(i.EAD, 2),
			exporter.FormatFloat(i.ExpectedLoss, 2), exporter.FormatBool(i.Defaulted), exporter.FormatFloat(i.RealizedLoss, 2),
		})
	}
	b.Add("instruments", detail)
	return b
}
