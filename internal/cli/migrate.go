package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"riskdash/internal/exporter"
	"riskdash/internal/storage"
)

func newMigrateCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending registry migrations",
		Long: `Migrate opens the dataset registry, applying any pending schema
migrations, and prints the resulting schema version.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validOutput(format); err != nil {
				return err
			}
			e := getEnv(cmd.Context())

			registry, err := storage.Open(e.paths.DatabaseFile, e.cfg.Storage.BusyTimeout, e.logger)
			if err != nil {
				return err
			}
			defer func() { _ = registry.Close() }()

			version, err := registry.Version()
			if err != nil {
				return err
			}
			out := exporter.Table{
				Columns: []string{"database", "version"},
				Rows:    [][]string{{e.paths.DatabaseFile, strconv.FormatInt(version, 10)}},
			}
			return renderTabular(cmd.OutOrStdout(), out, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "output format: table, json, csv, md")
	return cmd
}
