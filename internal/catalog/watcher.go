package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/safeguard/internal/storage"
)

const debounce = 200 * time.Millisecond

// EventCallback is called for each change a watcher-driven sync makes.
type EventCallback func(Change)

// Watch watches the cache directory and re-syncs the catalog shortly after
// snapshot files appear, change or disappear, until ctx is cancelled. The
// write path renames a temp file into place, so events are debounced and
// resolved by a full Sync rather than handled one by one.
func Watch(ctx context.Context, db *DB, store storage.Store, dir string, logger *slog.Logger, cb EventCallback) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("catalog: watch dir: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", dir))

	var timer *time.Timer
	var fire <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			fire = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-fire:
			changes, err := Sync(db, store, logger)
			if err != nil {
				logger.Warn("watcher: sync failed", slog.String("error", err.Error()))
				continue
			}
			if cb != nil {
				for _, c := range changes {
					cb(c)
				}
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isSnapshot(ev.Name) {
				continue
			}
			logger.Debug("watcher: event", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func isSnapshot(path string) bool {
	switch filepath.Ext(path) {
	case storage.Extension, storage.LegacyExtension:
		return true
	}
	return false
}
