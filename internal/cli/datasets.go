package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"riskdash/internal/exporter"
	"riskdash/internal/schema"
	"riskdash/internal/storage"
)

func newDatasetsCommand() *cobra.Command {
	var (
		filter storage.ListFilter
		kind   string
		format string
	)

	cmd := &cobra.Command{
		Use:     "datasets",
		Aliases: []string{"ls"},
		Short:   "List registered datasets",
		Example: `  riskctl datasets
  riskctl datasets --page backtest --format json
  riskctl datasets delete 3f2a...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validOutput(format); err != nil {
				return err
			}
			if kind != "" {
				filter.Kind = schema.Kind(kind)
				if !filter.Kind.Valid() {
					return fmt.Errorf("unknown dataset kind %q", kind)
				}
			}

			s, err := openStack(getEnv(cmd.Context()))
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			list, err := s.datasets.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), list)
			}

			out := exporter.Table{Columns: []string{"id", "kind", "file", "rows", "page", "input", "created"}}
			for _, d := range list {
				out.Rows = append(out.Rows, []string{
					d.ID, string(d.Kind), d.FileName, strconv.Itoa(d.RowCount),
					d.PageKey, d.InputKey, d.CreatedAt.Local().Format(time.DateTime),
				})
			}
			return renderTabular(cmd.OutOrStdout(), out, format)
		},
	}

	cmd.Flags().StringVar(&filter.PageKey, "page", "", "only datasets uploaded for this page")
	cmd.Flags().StringVar(&kind, "kind", "", "only datasets of this kind")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "maximum number of datasets")
	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "output format: table, json, csv, md")

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a dataset and its input bindings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStack(getEnv(cmd.Context()))
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			if err := s.datasets.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	})
	return cmd
}
