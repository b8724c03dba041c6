package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces bursts of filesystem events into one reload.
const reloadDebounce = 500 * time.Millisecond

// selfWriteWindow is how recently this process must have persisted for a
// disk change to be considered our own write rather than an external one.
const selfWriteWindow = 2 * time.Second

// WatchData watches the data directory and reloads the in-memory forest
// when the persisted snapshot is rewritten by another process, such as an
// offline `docforest import` run against a live daemon.
//
// Blocks until ctx is cancelled. Returns the watcher setup error, if any.
func WatchData(ctx context.Context, app *App, dataDir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() {
		_ = watcher.Close()
	}()
	if err := watcher.Add(dataDir); err != nil {
		return err
	}

	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
				timerC = timer.C
			} else {
				timer.Reset(reloadDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "Data directory watch error", "err", err)
		case <-timerC:
			timer = nil
			timerC = nil
			if time.Since(app.LastSaved()) < selfWriteWindow {
				// Our own persist; nothing to reload.
				continue
			}
			if err := app.Reload(ctx); err != nil {
				slog.WarnContext(ctx, "Failed to reload snapshot after external change", "err", err)
				continue
			}
			slog.InfoContext(ctx, "Reloaded forest after external snapshot change",
				"nodes", app.Forest.Count())
		}
	}
}
