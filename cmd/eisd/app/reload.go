package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 250 * time.Millisecond

// WatchConfig calls onChange with the re-read configuration every time the
// file at path is written or replaced, until ctx is done. Editors save files
// in bursts of events, so changes are debounced. A file that fails to load
// is logged and ignored.
//
// The parent directory is watched rather than the file itself, which keeps
// the watch alive across atomic renames.
func WatchConfig(ctx context.Context, path string, onChange func(*Config), logger *slog.Logger) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer fsw.Close()

	target := filepath.Clean(path)
	if err = fsw.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watching config directory: %w", err)
	}

	reload := make(chan struct{}, 1)
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			config, err := LoadConfig(path)
			if err != nil {
				logger.Warn("ignoring config change", slog.String("path", path), slog.Any("error", err))
				continue
			}
			logger.Debug("config reloaded", slog.String("path", path))
			onChange(config)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Error("config watcher", slog.Any("error", err))
		}
	}
}
