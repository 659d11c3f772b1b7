package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher reloads a config file whenever it changes on disk and hands the fresh
// value to onChange. The parent directory is watched so that editors which
// replace the file by rename are picked up too.
type Watcher[T any] struct {
	path     string
	debounce time.Duration
	load     func(path string) (T, error)
	onChange func(T)
	logger   *slog.Logger
}

// NewWatcher creates a watcher. A zero debounce selects the default.
func NewWatcher[T any](path string, load func(string) (T, error), onChange func(T), debounce time.Duration, logger *slog.Logger) *Watcher[T] {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher[T]{
		path:     filepath.Clean(path),
		debounce: debounce,
		load:     load,
		onChange: onChange,
		logger:   logger,
	}
}

// Run watches until ctx is cancelled. Bursts of events inside the debounce
// window produce a single reload. Load errors are logged and skipped.
func (w *Watcher[T]) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", w.path, err)
	}
	w.logger.Info("Watching config file", "path", w.path)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
				continue
			}
			timer.Reset(w.debounce)

		case <-timer.C:
			cfg, err := w.load(w.path)
			if err != nil {
				w.logger.Warn("Config reload failed", "path", w.path, "error", err)
				continue
			}
			w.logger.Info("Config reloaded", "path", w.path)
			w.onChange(cfg)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Config watcher error", "error", err)
		}
	}
}
