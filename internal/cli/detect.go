package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"riskdash/internal/exporter"
)

func newDetectCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "detect <file>...",
		Short: "Classify CSV files without storing them",
		Long: `Detect reads the header row of each file and reports the dataset kind
it matches, the score of the match and the identifying headers. Nothing is
stored.`,
		Example: `  riskctl detect exports/instrumentresult_2025q2.csv
  riskctl detect data/*.csv --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validOutput(format); err != nil {
				return err
			}
			e := getEnv(cmd.Context())
			s, err := openStack(e)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			out := exporter.Table{Columns: []string{"file", "kind", "score", "identifying_headers", "error"}}
			failed := 0
			for _, path := range args {
				name := filepath.Base(path)
				content, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				result, err := s.datasets.Detect(cmd.Context(), name, content)
				if err != nil {
					failed++
					out.Rows = append(out.Rows, []string{name, "", "", "", describeError(err)})
					continue
				}
				out.Rows = append(out.Rows, []string{
					name,
					string(result.Detection.Kind),
					strconv.Itoa(result.Detection.Score),
					strings.Join(result.Headers, ", "),
					"",
				})
			}

			if err := renderTabular(cmd.OutOrStdout(), out, format); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files could not be classified", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "output format: table, json, csv, md")
	return cmd
}
