package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"riskdash/internal/exporter"
)

func newIngestCommand() *cobra.Command {
	var (
		page   string
		input  string
		format string
	)

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Register CSV files, optionally binding them to a page input",
		Long: `Ingest detects, caches and records each file. With --page and --input
the file is also bound to that input slot, exactly as an upload through the
API would be; only one file may be given then.`,
		Example: `  riskctl ingest data/instrumentreference_2025q2.csv
  riskctl ingest data/ref.csv --page real_estate_pd --input reference_current`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validOutput(format); err != nil {
				return err
			}
			if (page == "") != (input == "") {
				return errors.New("--page and --input must be given together")
			}
			if page != "" && len(args) > 1 {
				return errors.New("only one file can be bound to an input")
			}

			e := getEnv(cmd.Context())
			s, err := openStack(e)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()
			ctx := cmd.Context()

			if page != "" {
				content, err := os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("read %s: %w", args[0], err)
				}
				status, err := s.datasets.Upload(ctx, page, input, filepath.Base(args[0]), content)
				if err != nil {
					return err
				}
				out := exporter.Table{
					Columns: []string{"page", "input", "dataset_id", "rows", "ready", "errors"},
					Rows: [][]string{{
						page, input, status.DatasetID, strconv.Itoa(status.RowCount),
						strconv.FormatBool(status.IsReady()),
						strings.Join(append(status.Errors, status.MissingHeaders...), "; "),
					}},
				}
				return renderTabular(cmd.OutOrStdout(), out, format)
			}

			out := exporter.Table{Columns: []string{"file", "dataset_id", "kind", "rows", "path"}}
			for _, path := range args {
				d, err := s.datasets.IngestFile(ctx, path)
				if err != nil {
					return fmt.Errorf("%s: %s", path, describeError(err))
				}
				out.Rows = append(out.Rows, []string{d.FileName, d.ID, string(d.Kind), strconv.Itoa(d.RowCount), d.Path})
			}
			return renderTabular(cmd.OutOrStdout(), out, format)
		},
	}

	cmd.Flags().StringVar(&page, "page", "", "page to bind the file to")
	cmd.Flags().StringVar(&input, "input", "", "input slot of the page")
	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "output format: table, json, csv, md")
	return cmd
}
