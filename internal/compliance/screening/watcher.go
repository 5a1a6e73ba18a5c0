package screening

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDebounce = 500 * time.Millisecond

// WatchFile reloads w from path whenever the file changes, until ctx is
// cancelled. The parent directory is watched so atomic replaces are seen.
// A file that fails to parse leaves the current list in place.
func WatchFile(ctx context.Context, path string, w *Watchlist, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	go func() {
		defer watcher.Close()

		debounce := time.NewTimer(0)
		debounce.Stop()
		target := filepath.Clean(path)

		for {
			select {
			case <-ctx.Done():
				debounce.Stop()
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					debounce.Reset(reloadDebounce)
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error("Watchlist watcher error", zap.Error(err))

			case <-debounce.C:
				file, err := LoadWatchlistFile(path)
				if err != nil {
					logger.Error("Failed to reload watchlist, keeping current list", zap.String("path", path), zap.Error(err))
					continue
				}
				// A file without a threshold keeps the current one.
				if file.Threshold > 0 {
					w.SetThreshold(file.Threshold)
				}
				w.Replace(file.Names)
			}
		}
	}()

	logger.Info("Watching watchlist file", zap.String("path", path))
	return nil
}
