package config

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDelay coalesces the burst of events editors emit on save.
const debounceDelay = 250 * time.Millisecond

// Watch monitors the config file and invokes onChange with the freshly
// loaded configuration whenever it changes. Invalid or unreadable configs
// are logged and skipped; the previous configuration stays in effect.
//
// Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Watch the directory, not the file: editors replace config files by
	// rename, which drops a watch on the file itself.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	log.Printf("[Config] Watching %s for changes", path)

	var debounce *time.Timer
	reload := func() {
		cfg, err := LoadFrom(path)
		if err != nil {
			log.Printf("[Config] Reload failed, keeping previous config: %v", err)
			return
		}
		if err := cfg.Validate(); err != nil {
			log.Printf("[Config] Reloaded config is invalid, keeping previous: %v", err)
			return
		}
		log.Printf("[Config] Configuration reloaded")
		onChange(cfg)
	}

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[Config] File watcher error: %v", err)
		}
	}
}
