// Package watcher reports edits made to the document tree by other
// programs, such as a note application syncing the same folder.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/flcm/internal/core/ports/driven"
	"github.com/custodia-labs/flcm/internal/logger"
)

// Ensure Watcher implements the interface.
var _ driven.FileWatcher = (*Watcher)(nil)

const (
	docExt     = ".md"
	bufferSize = 100
)

// Watcher implements driven.FileWatcher using fsnotify. Directories are
// watched recursively; hidden directories such as .backups are skipped.
type Watcher struct {
	mu   sync.Mutex
	fw   *fsnotify.Watcher
	root string
}

// New creates a new file watcher.
func New() (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{fw: fw}, nil
}

// Watch starts monitoring root and emits one event per document change.
// The channel is closed when ctx is cancelled or the watcher is stopped.
func (w *Watcher) Watch(ctx context.Context, root string) (<-chan driven.FileEvent, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	w.root = abs
	w.mu.Unlock()

	if err := w.addTree(abs); err != nil {
		return nil, err
	}

	events := make(chan driven.FileEvent, bufferSize)
	go w.loop(ctx, events)
	return events, nil
}

// Stop releases the watcher.
func (w *Watcher) Stop() error {
	return w.fw.Close()
}

func (w *Watcher) loop(ctx context.Context, events chan<- driven.FileEvent) {
	defer close(events)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Create) && w.isWatchableDir(ev.Name) {
				if err := w.addTree(ev.Name); err != nil {
					logger.Warn("watch %s: %v", ev.Name, err)
				}
				continue
			}
			fe, ok := w.handleEvent(ev)
			if !ok {
				continue
			}
			select {
			case events <- fe:
			case <-ctx.Done():
				return
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			logger.Warn("file watcher: %v", err)
		}
	}
}

// handleEvent converts an fsnotify event into a document change. Events
// for directories, hidden paths and non-document files are dropped.
func (w *Watcher) handleEvent(ev fsnotify.Event) (driven.FileEvent, bool) {
	if filepath.Ext(ev.Name) != docExt || w.hidden(ev.Name) {
		return driven.FileEvent{}, false
	}

	var op driven.FileOperation
	switch {
	case ev.Has(fsnotify.Create):
		op = driven.FileCreated
	case ev.Has(fsnotify.Write):
		op = driven.FileModified
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		op = driven.FileDeleted
	default:
		return driven.FileEvent{}, false
	}

	if op != driven.FileDeleted {
		info, err := os.Stat(ev.Name)
		if err != nil || info.IsDir() {
			return driven.FileEvent{}, false
		}
	}
	return driven.FileEvent{Path: ev.Name, Operation: op}, true
}

// addTree watches dir and every non-hidden directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		logger.Debug("watching %s", path)
		return w.fw.Add(path)
	})
}

func (w *Watcher) isWatchableDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir() && !w.hidden(path)
}

// hidden reports whether any element of path below the root is hidden.
func (w *Watcher) hidden(path string) bool {
	w.mu.Lock()
	root := w.root
	w.mu.Unlock()
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = path
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if isHidden(part) {
			return true
		}
	}
	return false
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}
