package index

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for changes to settle.
const DefaultDebounce = 300 * time.Millisecond

// Watch runs the pipeline once, then again whenever the dump or a selected
// package source changes, until ctx is cancelled. onRun receives every run
// outcome.
func (idx *Indexer) Watch(ctx context.Context, debounce time.Duration, onRun func(*Result, error)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	loader, err := NewLoader(idx.cfg, idx.baseDir)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	if p := loader.EntitiesPath(); p != "" {
		if err := w.Add(filepath.Dir(p)); err != nil {
			return fmt.Errorf("watching %s: %w", filepath.Dir(p), err)
		}
	}
	if dir := loader.PackagesDir(); dir != "" {
		if err := addRecursive(w, dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}
	slog.Info("watch.start", "dirs", len(w.WatchList()), "debounce", debounce)

	res, err := idx.Run(ctx)
	onRun(res, err)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = addRecursive(w, event.Name)
					continue
				}
			}
			if !idx.relevant(loader, event.Name) {
				continue
			}
			slog.Debug("watch.event", "path", event.Name, "op", event.Op.String())
			pending = time.After(debounce)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch.error", "err", err)

		case <-pending:
			pending = nil
			res, err := idx.Run(ctx)
			onRun(res, err)
		}
	}
}

// relevant reports whether a changed path is an input of the pipeline.
func (idx *Indexer) relevant(loader *Loader, path string) bool {
	if p := loader.EntitiesPath(); p != "" && filepath.Clean(path) == filepath.Clean(p) {
		return true
	}
	return loader.Matches(path)
}

// addRecursive watches root and every directory below it.
func addRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		return w.Add(path)
	})
}
