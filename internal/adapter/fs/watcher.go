package fs

import (
	"context"
	iofs "io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports corpus files that are created or written under a root.
// Bursts of events for the same file are coalesced: a path is emitted once
// it has been quiet for the debounce interval.
type Watcher struct {
	walker   *Walker
	debounce time.Duration
	logger   *slog.Logger
}

func NewWatcher(walker *Walker, debounce time.Duration, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{walker: walker, debounce: debounce, logger: logger}
}

// Watch emits batches of changed absolute paths until ctx is done. The
// channel is closed on return.
func (w *Watcher) Watch(ctx context.Context, root string) (<-chan []string, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.addTree(fw, root, root); err != nil {
		fw.Close()
		return nil, err
	}

	out := make(chan []string)
	go w.loop(ctx, fw, root, out)
	return out, nil
}

// addTree watches dir and every non-excluded directory below it; fsnotify
// watches are not recursive.
func (w *Watcher) addTree(fw *fsnotify.Watcher, root, dir string) error {
	return filepath.WalkDir(dir, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel != "." && w.walker.shouldExclude(filepath.ToSlash(rel)+"/") {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher, root string, out chan<- []string) {
	defer close(out)
	defer fw.Close()

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}

			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if event.Has(fsnotify.Create) {
					if err := w.addTree(fw, root, event.Name); err != nil {
						w.logger.Warn("failed to watch directory", "path", event.Name, "error", err)
					}
				}
				continue
			}

			rel, err := filepath.Rel(root, event.Name)
			if err != nil || !w.walker.Match(rel) {
				continue
			}
			pending[event.Name] = struct{}{}
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "error", err)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			batch := make([]string, 0, len(pending))
			for p := range pending {
				batch = append(batch, p)
			}
			sort.Strings(batch)
			clear(pending)

			select {
			case out <- batch:
			case <-ctx.Done():
				return
			}
		}
	}
}
