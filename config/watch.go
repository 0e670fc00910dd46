package wampConfig

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

const settleDelay = 100 * time.Millisecond

// Watch reloads the realms file at path on every change until ctx is done.
// Editors that save through a rename replace the inode, so the watch is re-added.
// Files that fail to parse are logged and skipped.
func Watch(
	ctx context.Context,
	path string,
	onChange func(*RealmsFile),
	logger *slog.Logger,
) error {
	watcher, e := fsnotify.NewWatcher()
	if e != nil {
		return e
	}
	e = watcher.Add(path)
	if e != nil {
		watcher.Close()
		return e
	}

	logger = logger.With("name", "RealmsWatcher", "path", path)
	logger.Debug("watching realms file")

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
				if !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
					event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove)) {
					continue
				}
				time.Sleep(settleDelay)
				if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
					_, e := os.Stat(path)
					if os.IsNotExist(e) {
						logger.Warn("realms file removed, skipping reload")
						continue
					}
					e = watcher.Add(path)
					if e != nil {
						logger.Warn("during watch re-add", "error", e)
					}
				}
				realms, e := LoadRealms(path)
				if e != nil {
					logger.Error("during reload", "error", e)
					continue
				}
				logger.Info("realms file reloaded", "event", event.Op.String(), "realms", len(realms.Realms))
				onChange(realms)
			case e, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("watcher error", "error", e)
			}
		}
	}()
	return nil
}
