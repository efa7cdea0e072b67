package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/mightyiam/magic-nix-cache/internal/logger"
)

// WatchLogging watches the config file and applies logging changes at
// runtime, so the log level can be raised on a live daemon without a
// restart. Only the logging section is applied; every other setting
// still requires a restart.
//
// The watch runs until the context is cancelled. The watcher observes
// the parent directory rather than the file itself so editors that
// replace the file (rename-over) keep triggering events.
func WatchLogging(ctx context.Context, configPath string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(configPath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
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
				if filepath.Clean(event.Name) != filepath.Clean(configPath) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}

				cfg, err := Load(configPath)
				if err != nil {
					logger.Warn("Config reload failed, keeping current logging settings",
						"path", configPath, "error", err)
					continue
				}

				logger.SetLevel(cfg.Logging.Level)
				logger.SetFormat(cfg.Logging.Format)
				logger.Info("Logging settings reloaded",
					"level", cfg.Logging.Level, "format", cfg.Logging.Format)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Config watcher error", "error", err)
			}
		}
	}()

	return nil
}
