package discover

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/flowparse/internal/debug"
)

// Watcher recursively watches root for filesystem changes and debounces
// bursts of events into a single batch callback, the way a build tool
// coalesces an editor's save-triggered rewrite-plus-rename into one event.
type Watcher struct {
	fsw      *fsnotify.Watcher
	root     string
	excludes []string
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer

	onBatch func(paths []string)
}

// NewWatcher builds a Watcher rooted at root, adding a watch on every
// directory not matched by excludes.
func NewWatcher(root string, excludes []string, debounce time.Duration, onBatch func(paths []string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:      fsw,
		root:     root,
		excludes: excludes,
		debounce: debounce,
		pending:  make(map[string]struct{}),
		onBatch:  onBatch,
	}

	if err := w.addWatches(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addWatches(root string) error {
	paths, err := Walk(root, nil, w.excludes)
	if err != nil {
		return err
	}

	dirs := map[string]struct{}{root: {}}
	for _, p := range paths {
		dirs[filepath.Dir(p)] = struct{}{}
	}
	for dir := range dirs {
		if err := w.fsw.Add(dir); err != nil {
			debug.LogDispatch("watch: failed to add %s: %v\n", dir, err)
		}
	}
	return nil
}

// Run processes events until ctx is cancelled. Call from a goroutine.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.fsw.Close()
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.recordEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			debug.LogDispatch("watch: error: %v\n", err)
		}
	}
}

func (w *Watcher) recordEvent(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		rel = ev.Name
	}
	if matchesAny(w.excludes, filepath.ToSlash(rel)) {
		return
	}

	w.mu.Lock()
	w.pending[ev.Name] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
	w.mu.Unlock()
}

func (w *Watcher) flush() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	if len(paths) == 0 || w.onBatch == nil {
		return
	}
	w.onBatch(paths)
}
