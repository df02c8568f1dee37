package registry

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces a burst of file events (e.g. an editor's
// write-then-rename save) into a single reload.
const debounceWindow = 150 * time.Millisecond

// Watch watches cfg.ToolsDir for *.json create/write/remove/rename events
// and calls Reload once per debounce window. Blocks until ctx is cancelled
// or the underlying watcher fails to start.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(r.cfg.ToolsDir); err != nil {
		return err
	}

	var mu sync.Mutex
	var timer *time.Timer

	triggerReload := func() {
		registryLog.Info("tools_dir_changed", slog.String("dir", r.cfg.ToolsDir))
		r.Reload()
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(event.Name) != ".json" {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceWindow, triggerReload)
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			registryLog.Warn("tools_dir_watch_error", slog.String("error", err.Error()))
		}
	}
}
