package detector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/weftlang/weftsync/internal/logging"
	"github.com/weftlang/weftsync/internal/project"
)

// Locator maps a file path to the project that owns it. Paths outside any
// known project report false and their events are dropped.
type Locator func(path string) (project.Key, bool)

// Watcher adapts raw filesystem events into store document records. It does
// no debouncing itself; coalescing happens downstream in the work queue.
// Write events whose content fingerprint is unchanged are suppressed, since
// editors routinely rewrite files byte-for-byte on save.
type Watcher struct {
	fsw      *fsnotify.Watcher
	store    *project.Store
	locate   Locator
	excludes []string
	hasher   *fileHasher
	logger   logging.Logger
}

// NewWatcher creates a workspace watcher. excludes are doublestar patterns
// matched against slash-separated paths relative to the watched roots.
func NewWatcher(store *project.Store, locate Locator, excludes []string, logger logging.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("detector: creating filesystem watcher: %w", err)
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Watcher{
		fsw:      fsw,
		store:    store,
		locate:   locate,
		excludes: excludes,
		hasher:   newFileHasher(),
		logger:   logger.WithComponent("fswatch"),
	}, nil
}

// AddRecursive watches root and every non-excluded subdirectory.
func (w *Watcher) AddRecursive(root string) error {
	root = filepath.Clean(root)
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if w.excluded(path) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// Start runs the event loop until ctx is canceled.
func (w *Watcher) Start(ctx context.Context) {
	go w.loop(ctx)
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn(ctx, err, "filesystem watcher error")
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	path := event.Name
	if w.excluded(path) {
		return
	}

	// New directories join the watch set so nested creates are seen.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := w.fsw.Add(path); err != nil {
				w.logger.Warn(ctx, err, "watching new directory failed", "path", path)
			}
			return
		}
	}

	var kind project.ChangeKind
	switch {
	case event.Op&fsnotify.Create != 0:
		kind = project.ChangeDocumentAdded
	case event.Op&fsnotify.Write != 0:
		if !w.hasher.Changed(path) {
			return
		}
		kind = project.ChangeDocumentChanged
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.hasher.Evict(path)
		kind = project.ChangeDocumentRemoved
	default:
		return
	}

	key, ok := w.locate(path)
	if !ok {
		return
	}

	w.store.Update(func(tx *project.Tx) {
		if tx.Get(key) == nil {
			return
		}
		tx.PutDocument(key, path, kind)
	})
}

func (w *Watcher) excluded(path string) bool {
	slashed := filepath.ToSlash(path)
	base := filepath.Base(path)
	for _, pattern := range w.excludes {
		if ok, _ := doublestar.Match(pattern, slashed); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, base); ok {
			return true
		}
	}
	return false
}
