package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"riskdash/internal/files"
)

func newWatchCommand() *cobra.Command {
	var settle time.Duration

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Ingest CSV files as they land in a directory",
		Long: `Watch registers every CSV file written into dir, the inbox by default,
once it has stopped changing. Ingested files move to done/ and files
that fail detection to failed/. Runs until interrupted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := getEnv(cmd.Context())
			dir := e.paths.InboxDir
			if len(args) == 1 {
				dir = args[0]
			}

			s, err := openStack(e)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			out := cmd.OutOrStdout()
			watcher, err := files.NewWatcher(dir, func(ctx context.Context, path string) error {
				d, err := s.datasets.IngestFile(ctx, path)
				if err != nil {
					_, _ = fmt.Fprintf(out, "failed   %s: %s\n", path, describeError(err))
					return err
				}
				_, _ = fmt.Fprintf(out, "ingested %s as %s (%s)\n", path, d.Kind, d.ShortID())
				return nil
			}, e.logger)
			if err != nil {
				return err
			}
			if settle > 0 {
				watcher.SetSettle(settle)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := watcher.Start(ctx); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "watching %s (Ctrl+C to stop)\n", watcher.Dir())
			<-ctx.Done()
			watcher.Stop()

			stats := watcher.Stats()
			e.logger.Info("watcher stopped",
				slog.Int("processed", stats.Processed),
				slog.Int("failed", stats.Failed))
			_, _ = fmt.Fprintf(out, "processed %d, failed %d\n", stats.Processed, stats.Failed)
			return nil
		},
	}

	cmd.Flags().DurationVar(&settle, "settle", 0, "how long a file must stay unchanged before it is ingested")
	return cmd
}
