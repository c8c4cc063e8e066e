package cmd

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/agentboard/agentboard/internal/poller"
)

// shutdownGrace bounds how long the HTTP server waits for in-flight
// requests to finish during a graceful shutdown.
const shutdownGrace = 5 * time.Second

// watchLogRoots nudges an early poll whenever a log root's directory
// tree changes, so a brand-new session log is picked up well before
// the next scheduled tick. fsnotify doesn't watch recursively, so every
// directory under each root is added individually at startup; the walk
// does not rerun, so subdirectories created later (a fresh per-day
// session folder) are not watched and are left to the regular poll
// interval.
func watchLogRoots(ctx context.Context, p *poller.Poller, roots []string, log *slog.Logger) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn("fsnotify unavailable, falling back to interval-only polling", "err", err)
		return
	}
	defer watcher.Close()

	for _, root := range roots {
		if root == "" {
			continue
		}
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d == nil || !d.IsDir() {
				return nil
			}
			return watcher.Add(path)
		})
	}

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-watcher.Events:
			if !ok {
				return
			}
			if debounce == nil {
				debounce = time.AfterFunc(200*time.Millisecond, func() { p.Poll(ctx) })
			} else {
				debounce.Reset(200 * time.Millisecond)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Warn("fsnotify error", "err", err)
		}
	}
}
