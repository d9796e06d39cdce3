package dashboard

import (
	"riskdash/internal/analytics"
	"riskdash/internal/config"
)

// Options carries the analytic parameters of every view
type Options struct {
	Migration analytics.MigrationOptions
	Backtest  analytics.BacktestOptions
	Macro     analytics.MacroOptions
	Cohorts   analytics.CohortOptions
}

// DefaultOptions returns the builders' defaults
func DefaultOptions() Options {
	return Options{
		Migration: analytics.DefaultMigrationOptions(),
		Backtest:  analytics.DefaultBacktestOptions(),
		Macro:     analytics.DefaultMacroOptions(),
		Cohorts:   analytics.DefaultCohortOptions(),
	}
}

// OptionsFromConfig applies the configured windows and sizes. Zero values
// keep the defaults.
func OptionsFromConfig(cfg config.AnalyticsConfig) Options {
	opts := DefaultOptions()

	if cfg.MigrationStartQuarter != "" {
		opts.Migration.StartQuarter = cfg.MigrationStartQuarter
	}
	if cfg.MigrationEndQuarter != "" {
		opts.Migration.EndQuarter = cfg.MigrationEndQuarter
	}
	if cfg.TopMovers > 0 {
		opts.Migration.TopMovers = cfg.TopMovers
	}

	if cfg.BacktestStart != "" {
		opts.Backtest.Start = cfg.BacktestStartDate()
	}
	if cfg.BacktestWindowEnd != "" {
		opts.Backtest.WindowEnd = cfg.BacktestWindowEndDate()
	}

	if cfg.MacroStart != "" {
		opts.Macro.Start = cfg.MacroStartDate()
	}
	if cfg.MacroEnd != "" {
		opts.Macro.End = cfg.MacroEndDate()
	}
	if cfg.MacroMaxLag > 0 {
		opts.Macro.MaxLag = cfg.MacroMaxLag
	}

	if cfg.LeadMonths > 0 {
		opts.Cohorts.LeadMonths = cfg.LeadMonths
	}
	if cfg.ControlsPerEvent > 0 {
		opts.Cohorts.ControlsPerEvent = cfg.ControlsPerEvent
	}
	if cfg.AnchorToleranceMonths > 0 {
		opts.Cohorts.AnchorToleranceMonths = cfg.AnchorToleranceMonths
	}
	return opts
}
