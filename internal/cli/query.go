package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"riskdash/internal/exporter"
	"riskdash/internal/storage"
	"riskdash/internal/warehouse"
)

func newQueryCommand() *cobra.Command {
	var (
		output  string
		page    string
		outFile string
	)

	cmd := &cobra.Command{
		Use:   "query [sql]",
		Short: "Run SQL over the registered datasets",
		Long: `Query attaches every registered dataset as a DuckDB view and runs the
given statement. Bound datasets are named {page}_{input}; unbound ones
{kind}_{id}. Every column is text. Without a statement the view names are
listed.`,
		Example: `  riskctl query
  riskctl query "SELECT assetClass, count(*) FROM real_estate_pd_reference_current GROUP BY 1"
  riskctl query --out pd.csv "SELECT * FROM real_estate_pd_result_current"
  riskctl query --page backtest --format csv "SELECT * FROM backtest_risk_metrics_start"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validOutput(output); err != nil {
				return err
			}
			ctx := cmd.Context()
			e := getEnv(ctx)

			registry, err := storage.Open(e.paths.DatabaseFile, e.cfg.Storage.BusyTimeout, e.logger)
			if err != nil {
				return err
			}
			defer func() { _ = registry.Close() }()

			datasets, err := registry.List(ctx, storage.ListFilter{PageKey: page})
			if err != nil {
				return err
			}

			wh, err := warehouse.Open(ctx, e.paths.WarehouseFile, e.logger)
			if err != nil {
				return err
			}
			defer func() { _ = wh.Close() }()

			// List returns newest first; attach oldest first so the newest
			// dataset owns a shared view name
			ordered := make([]storage.PersistedDataset, 0, len(datasets))
			for i := len(datasets) - 1; i >= 0; i-- {
				ordered = append(ordered, datasets[i])
			}
			if _, err := wh.Attach(ctx, ordered); err != nil {
				return err
			}

			if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
				views := uniqueViews(wh.Views())
				if len(views) == 0 {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no datasets registered")
					return nil
				}
				result := &warehouse.Result{Columns: []string{"view"}}
				for _, v := range views {
					result.Rows = append(result.Rows, []string{v})
				}
				return renderTabular(cmd.OutOrStdout(), result, output)
			}

			if outFile != "" {
				n, err := streamQuery(ctx, wh, args[0], outFile)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d rows written to %s\n", n, outFile)
				return nil
			}

			result, err := wh.Query(ctx, args[0])
			if err != nil {
				return err
			}
			return renderTabular(cmd.OutOrStdout(), result, output)
		},
	}

	cmd.Flags().StringVarP(&output, "format", "f", formatTable, "output format: table, json, csv, md")
	cmd.Flags().StringVar(&page, "page", "", "attach only the datasets bound to this page")
	cmd.Flags().StringVar(&outFile, "out", "", "stream the result into this CSV file instead of printing it")
	return cmd
}

// streamQuery writes the rows of query into a CSV file as they are read
func streamQuery(ctx context.Context, wh *warehouse.Warehouse, query, path string) (rows int, err error) {
	var stream *exporter.StreamWriter
	defer func() {
		if stream != nil {
			if cerr := stream.Close(); err == nil {
				err = cerr
			}
		}
	}()

	err = wh.Scan(ctx, query,
		func(columns []string) error {
			var err error
			stream, err = exporter.NewCSVWriter(nil).CreateStreamWriter(path, columns)
			return err
		},
		func(record []string) error {
			rows++
			return stream.WriteRecord(record)
		})
	return rows, err
}

func uniqueViews(views []string) []string {
	seen := make(map[string]bool, len(views))
	out := make([]string, 0, len(views))
	for _, v := range views {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
