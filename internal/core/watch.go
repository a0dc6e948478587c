package core

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// WatchConfig watches path for writes and calls reload with the freshly
// parsed Configuration whenever it changes, until ctx is cancelled. Errors
// creating the watcher are logged and treated as "no hot reload available",
// matching the teacher's server.go:watchConfig, which never treats a
// missing watcher as fatal to the daemon.
func WatchConfig(ctx context.Context, path string, reload func(*Configuration)) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("config hot-reload disabled: failed to create watcher", "error", err)
		return
	}
	if err := watcher.Add(path); err != nil {
		slog.Debug("config hot-reload disabled: no tunables file to watch", "path", path, "error", err)
		watcher.Close()
		return
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := LoadConfig(path)
				if err != nil {
					slog.Error("failed to reload config", "path", path, "error", err)
					continue
				}
				slog.Info("reloaded tunable config", "path", path)
				reload(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("config watcher error", "error", err)
			}
		}
	}()
}
