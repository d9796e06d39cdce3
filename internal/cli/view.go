package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"riskdash/internal/dashboard"
)

func newViewCommand() *cobra.Command {
	var (
		flags     requestFlags
		format    string
		tableName string
	)

	cmd := &cobra.Command{
		Use:   "view <page>",
		Short: "Compute a dashboard page and print its tables",
		Long: `View computes a page from the datasets bound to its inputs, with the
same filters the API accepts. Table and markdown output print every table
of the page, or only --table; CSV prints one table.`,
		Example: `  riskctl view real_estate_pd --geography CBSA
  riskctl view rating_migration --portfolio CRE --format md
  riskctl view backtest --format csv --table "PD calibration"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validOutput(format); err != nil {
				return err
			}
			req, err := flags.request()
			if err != nil {
				return err
			}

			s, err := openStack(getEnv(cmd.Context()))
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			result, err := s.dashboard.Compute(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			return renderResult(cmd, result, format, tableName)
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "output format: table, json, csv, md")
	cmd.Flags().StringVar(&tableName, "table", "", "only this table of the page")
	return cmd
}

func renderResult(cmd *cobra.Command, result *dashboard.Result, format, tableName string) error {
	w := cmd.OutOrStdout()
	if format == formatJSON {
		return writeJSON(w, result)
	}

	bundle := result.Bundle()
	if format == formatCSV || tableName != "" {
		sheet, ok := bundle.Sheet(tableName)
		if !ok {
			return fmt.Errorf("%w: table %q", dashboard.ErrNoTable, tableName)
		}
		return renderTabular(w, sheet.Data, format)
	}

	_, _ = fmt.Fprintf(w, "%s (%s)\n", result.Title, result.Quarter)
	for _, sheet := range bundle.Sheets {
		_, _ = fmt.Fprintf(w, "\n%s\n", sheet.Name)
		if err := renderTabular(w, sheet.Data, format); err != nil {
			return err
		}
	}
	return nil
}
