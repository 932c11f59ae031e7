// Package fswatch reports files that appear under a directory tree once
// they have stopped changing.
package fswatch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Handler receives a settled file path. It runs on the watcher goroutine,
// so calls never overlap.
type Handler func(ctx context.Context, path string)

// Watcher watches a directory tree (fsnotify is not recursive, so every
// subdirectory is added as it appears).
type Watcher struct {
	dir    string
	settle time.Duration
	handle Handler

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// New returns a watcher over dir that calls handle once a created or
// written file has been quiet for settle.
func New(dir string, settle time.Duration, handle Handler) *Watcher {
	return &Watcher{dir: dir, settle: settle, handle: handle, timers: make(map[string]*time.Timer)}
}

// Run blocks until ctx is done or the underlying watcher fails.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create watch dir: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := w.addTree(fw, w.dir); err != nil {
		return err
	}
	slog.Info("watching for new files", "dir", w.dir, "settle", w.settle)

	ready := make(chan string, 64)
	defer w.stopTimers()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.observe(ctx, fw, ev, ready)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				slog.Warn("file watch queue overflowed, some files may be missed", "dir", w.dir)
				continue
			}
			slog.Error("file watch error", "error", err)
		case path := <-ready:
			w.handle(ctx, path)
		}
	}
}

func (w *Watcher) observe(ctx context.Context, fw *fsnotify.Watcher, ev fsnotify.Event, ready chan<- string) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	info, err := os.Stat(ev.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if ev.Has(fsnotify.Create) {
			if err := w.addTree(fw, ev.Name); err != nil {
				slog.Warn("failed to watch new directory", "dir", ev.Name, "error", err)
			}
		}
		return
	}
	w.schedule(ctx, ev.Name, ready)
}

// schedule (re)arms the settle timer for path.
func (w *Watcher) schedule(ctx context.Context, path string, ready chan<- string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Reset(w.settle)
		return
	}
	w.timers[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		select {
		case ready <- path:
		case <-ctx.Done():
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
