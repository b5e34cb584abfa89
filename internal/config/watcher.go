package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watch reloads the config whenever the file changes and hands the result to
// onChange. The parent directory is watched, not the file, so atomic saves
// (write temp + rename, as editors and provisioning tools do) are seen.
// Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	target := filepath.Clean(path)

	// Change events arrive in bursts (write + chmod + rename); debounce
	// so each save reloads once.
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(200 * time.Millisecond)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnf("config: watcher error: %v", err)

		case <-pending:
			pending = nil
			cfg, err := Load(path)
			if err != nil {
				log.Errorf("config: reload failed, keeping previous config: %v", err)
				continue
			}
			log.Info("config: reloaded")
			onChange(cfg)
		}
	}
}
