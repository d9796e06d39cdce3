// Package files discovers data files on disk and watches the inbox
// directory.
//
// Discovery lists the CSV files of a directory, oldest first. Watcher
// follows a directory with fsnotify, waits for each new file to settle and
// hands it to a Handler. Handled files move to the done/ subdirectory;
// files the handler rejects move to failed/.
//
// Example usage:
//
//	w, err := files.NewWatcher(paths.InboxDir, func(ctx context.Context, path string) error {
//		_, err := datasets.IngestFile(ctx, path)
//		return err
//	}, logger)
//	if err != nil {
//		return err
//	}
//	if err := w.Start(ctx); err != nil {
//		return err
//	}
//	defer w.Stop()
package files
