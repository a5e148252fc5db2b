package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// WatchOverlapGraph watches path for writes and, on each one, reloads the
// whole file with Load and swaps only its `overlap` graph into holder; a file
// that fails to load leaves the current graph in place. Only the overlap graph is
// hot-reloaded (per the design notes): camera definitions and thresholds are
// read once at startup and require a restart to change. The watcher runs
// until done is closed; watch errors are logged and do not stop the loop.
func WatchOverlapGraph(path string, holder *OverlapGraphHolder, logger *slog.Logger, done <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-done:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					logger.Warn("overlap graph reload failed", "error", err)
					continue
				}
				holder.Store(NewOverlapGraph(cfg.Overlap))
				logger.Info("overlap graph reloaded")
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher error", "error", werr)
			}
		}
	}()

	return nil
}
