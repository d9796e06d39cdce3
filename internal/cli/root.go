// Package cli implements riskctl, the administration command line for the
// risk dashboard: detection, ingestion, views, exports and ad-hoc SQL.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"riskdash/internal/config"
	"riskdash/internal/dashboard"
	"riskdash/internal/geo"
	"riskdash/internal/infrastructure"
	"riskdash/internal/services"
	"riskdash/internal/storage"
	"riskdash/pkg/contracts"
)

// Version is what riskctl --version prints
var Version = contracts.GetFullVersionString()

// options are the persistent flags shared by every command
type options struct {
	configFile string
	baseDir    string
	verbose    bool
}

// env is what PersistentPreRunE resolves for the subcommands
type env struct {
	cfg    *config.Config
	paths  *config.Paths
	logger *slog.Logger
}

type envKey struct{}

// NewRootCmd creates the riskctl command tree
func NewRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "riskctl",
		Short: "Risk dashboard administration",
		Long: `riskctl manages the risk dashboard data directory: it detects and
ingests CSV files, lists registered datasets, computes page views, exports
them and runs ad-hoc SQL over every dataset.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			e, err := loadEnv(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), envKey{}, e))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default: config.yaml or configs/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.baseDir, "base-dir", "", "base directory for data, processed and exports")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose logging to stderr")

	rootCmd.AddCommand(
		newDetectCommand(),
		newIngestCommand(),
		newDatasetsCommand(),
		newViewCommand(),
		newExportCommand(),
		newQueryCommand(),
		newWatchCommand(),
		newMigrateCommand(),
	)
	return rootCmd
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", describeError(err))
		return err
	}
	return nil
}

func loadEnv(opts *options, stderr io.Writer) (*env, error) {
	var cfg *config.Config
	var err error
	if opts.configFile != "" {
		cfg, err = config.LoadFile(opts.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if opts.baseDir != "" {
		cfg.Paths.BaseDir = opts.baseDir
	}
	paths, err := cfg.ResolvePaths()
	if err != nil {
		return nil, err
	}

	level := "warn"
	if opts.verbose {
		level = "debug"
	}
	return &env{
		cfg:    cfg,
		paths:  paths,
		logger: infrastructure.NewConsoleLogger(stderr, level, "text"),
	}, nil
}

func getEnv(ctx context.Context) *env {
	e, _ := ctx.Value(envKey{}).(*env)
	return e
}

// stack is the set of stores and services a command works with
type stack struct {
	registry  *storage.Registry
	datasets  *services.DatasetService
	dashboard *services.DashboardService
}

func (s *stack) Close() error {
	return s.registry.Close()
}

// openStack opens the registry and builds the services the server uses
func openStack(e *env) (*stack, error) {
	registry, err := storage.Open(e.paths.DatabaseFile, e.cfg.Storage.BusyTimeout, e.logger)
	if err != nil {
		return nil, err
	}

	var crosswalk *geo.Crosswalk
	if file := e.cfg.Analytics.CrosswalkFile; file != "" {
		crosswalk, err = geo.LoadCrosswalkFile(file)
		if err != nil {
			_ = registry.Close()
			return nil, fmt.Errorf("failed to load CBSA crosswalk: %w", err)
		}
	}
	engine := dashboard.NewEngine(registry, geo.NewResolver(crosswalk),
		dashboard.OptionsFromConfig(e.cfg.Analytics), e.logger)

	cache := storage.NewUploadCache(e.paths.UploadsDir)
	return &stack{
		registry:  registry,
		datasets:  services.NewDatasetService(registry, cache, nil, e.cfg.Server.MaxUploadBytes, e.logger),
		dashboard: services.NewDashboardService(engine, nil, e.logger),
	}, nil
}
