package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"riskdash/internal/exporter"
)

func newExportCommand() *cobra.Command {
	var (
		flags  requestFlags
		format string
		outDir string
	)

	cmd := &cobra.Command{
		Use:   "export <page>",
		Short: "Compute a dashboard page and write it as CSV or XLSX",
		Long: `Export computes a page and writes every table: one CSV file per table,
or a single XLSX workbook with one sheet per table. Files go to the exports
directory unless --out is given.`,
		Example: `  riskctl export real_estate_pd --format xlsx
  riskctl export backtest --format csv --out /tmp/backtest`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := exporter.ParseFormat(format)
			if err != nil {
				return err
			}
			req, err := flags.request()
			if err != nil {
				return err
			}

			e := getEnv(cmd.Context())
			dir := outDir
			if dir == "" {
				dir = e.paths.ExportsDir
			}
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}

			s, err := openStack(e)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			paths, err := s.dashboard.ExportFiles(cmd.Context(), args[0], req, f, dir)
			if err != nil {
				return err
			}
			for _, p := range paths {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().StringVarP(&format, "format", "f", string(exporter.FormatXLSX), "export format: csv or xlsx")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (default: exports directory)")
	return cmd
}
