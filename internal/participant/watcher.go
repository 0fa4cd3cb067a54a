package participant

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"syncd/internal/fsutil"
	"syncd/internal/logging"
)

// stateFileName is the hidden sibling state file at the root of every
// watched directory (spec.md §6 "Persisted layout (participant)").
const stateFileName = ".sync_state.json"

// Watcher watches one local directory tree for changes and emits a single
// coalesced signal on Events after debounceDelay of quiet (spec.md §9
// "Filesystem events are noisy").
type Watcher struct {
	root          string
	filter        fsutil.PathFilter
	debounceDelay time.Duration
	fsWatcher     *fsnotify.Watcher

	Events chan struct{}

	mu    sync.Mutex
	timer *time.Timer

	closeOnce sync.Once
	done      chan struct{}
}

// NewWatcher creates a Watcher rooted at root. Events is buffered by one so
// a pending signal is never lost even if the reconciler is mid-sync.
func NewWatcher(root string, filter fsutil.PathFilter, debounceDelay time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		root:          root,
		filter:        filter,
		debounceDelay: debounceDelay,
		fsWatcher:     fsw,
		Events:        make(chan struct{}, 1),
		done:          make(chan struct{}),
	}, nil
}

// Start walks root adding every non-excluded directory to the watch list,
// then processes events until Stop is called.
func (w *Watcher) Start() error {
	err := filepath.Walk(w.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(w.root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel != "." && w.filter != nil && !w.filter(rel) {
			return filepath.SkipDir
		}
		if addErr := w.fsWatcher.Add(path); addErr != nil {
			logging.Warn("watcher: could not watch %s: %v", path, addErr)
		}
		return nil
	})
	if err != nil {
		return err
	}

	go w.loop()
	return nil
}

// Stop closes the underlying fsnotify watcher and releases resources.
func (w *Watcher) Stop() {
	w.closeOnce.Do(func() {
		close(w.done)
		w.fsWatcher.Close()
	})
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			logging.Warn("watcher: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if strings.HasSuffix(event.Name, stateFileName) || strings.HasSuffix(event.Name, ".tmp") ||
		strings.Contains(filepath.Base(event.Name), ".tmp-") {
		return
	}

	if info, err := os.Lstat(event.Name); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return
	}

	rel, err := filepath.Rel(w.root, event.Name)
	if err == nil {
		rel = filepath.ToSlash(rel)
		if w.filter != nil && !w.filter(rel) {
			return
		}
	}

	if event.Op&fsnotify.Chmod == fsnotify.Chmod {
		return
	}

	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
			if addErr := w.fsWatcher.Add(event.Name); addErr != nil {
				logging.Warn("watcher: could not watch new dir %s: %v", event.Name, addErr)
			}
		}
	}

	w.schedule()
}

// schedule coalesces bursts of events into one pending-sync signal, fired
// debounceDelay after the last event (spec.md §9).
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Reset(w.debounceDelay)
		return
	}
	w.timer = time.AfterFunc(w.debounceDelay, func() {
		select {
		case w.Events <- struct{}{}:
		default:
		}
		w.mu.Lock()
		w.timer = nil
		w.mu.Unlock()
	})
}
