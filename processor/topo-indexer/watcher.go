package topoindexer

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/c360studio/semtopo/processor/ast"
)

// WatcherConfig configures the file watcher
type WatcherConfig struct {
	// RepoRoot is the root directory to watch
	RepoRoot string

	// DebounceDelay is how long the tree must be quiet before a batch is emitted
	DebounceDelay time.Duration

	// ExcludeDirs are directory names that are never watched
	ExcludeDirs []string

	// Logger for logging events
	Logger *slog.Logger
}

// ChangeBatch is a set of files whose content changed during one quiet period.
type ChangeBatch struct {
	// Paths are slash-separated paths relative to the repo root, sorted
	Paths []string
}

// Watcher watches a repository tree and emits debounced change batches.
type Watcher struct {
	config   WatcherConfig
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	excludes map[string]bool

	// Debouncing: collect changes before emitting
	pendingMu sync.Mutex
	pending   map[string]fsnotify.Op // path → most recent operation
	lastEvent time.Time

	// State tracking for change detection
	hashMu sync.RWMutex
	hashes map[string]string // relative path → content hash

	// Output channel, closed when processing stops
	events chan ChangeBatch
}

// NewWatcher creates a new file watcher
func NewWatcher(config WatcherConfig) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if config.DebounceDelay <= 0 {
		config.DebounceDelay = 100 * time.Millisecond
	}

	excludes := make(map[string]bool, len(config.ExcludeDirs))
	for _, d := range config.ExcludeDirs {
		excludes[d] = true
	}

	return &Watcher{
		config:   config,
		watcher:  fsw,
		logger:   logger,
		excludes: excludes,
		pending:  make(map[string]fsnotify.Op),
		hashes:   make(map[string]string),
		events:   make(chan ChangeBatch, 16),
	}, nil
}

// Events returns the channel of change batches
func (w *Watcher) Events() <-chan ChangeBatch {
	return w.events
}

// Start records the current content of the tree, adds watches below the
// repo root and begins processing events.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.seedHashes(w.config.RepoRoot); err != nil {
		return err
	}
	if err := w.addWatchesRecursive(w.config.RepoRoot); err != nil {
		return err
	}

	go w.processEvents(ctx)

	w.logger.Info("File watcher started",
		"root", w.config.RepoRoot,
		"debounce", w.config.DebounceDelay)

	return nil
}

// Stop closes the underlying watcher. The events channel is closed once
// processing has drained.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func (w *Watcher) setHash(path, hash string) {
	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	w.hashes[path] = hash
}

func (w *Watcher) getHash(path string) (string, bool) {
	w.hashMu.RLock()
	defer w.hashMu.RUnlock()
	hash, ok := w.hashes[path]
	return hash, ok
}

func (w *Watcher) deleteHash(path string) {
	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	delete(w.hashes, path)
}

// seedHashes hashes every file outside excluded directories so that a
// rewrite with identical content after Start is not reported.
func (w *Watcher) seedHashes(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && w.excludes[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			w.logger.Debug("Skipping unreadable file", "path", path, "error", err)
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		w.setHash(filepath.ToSlash(rel), ast.ContentHash(content))
		return nil
	})
}

// addWatchesRecursive adds watches to all non-excluded directories
func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			w.logger.Debug("Skipping unreadable directory", "path", path, "error", err)
			return filepath.SkipDir
		}

		if !d.IsDir() {
			return nil
		}

		if path != root && w.excludes[d.Name()] {
			return filepath.SkipDir
		}

		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("Failed to watch directory",
				"path", path,
				"error", err)
		} else {
			w.logger.Debug("Watching directory", "path", path)
		}

		return nil
	})
}

// processEvents handles fsnotify events with debouncing
func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.events)

	ticker := time.NewTicker(max(w.config.DebounceDelay/2, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)

		case <-ticker.C:
			w.flushPending(ctx)
		}
	}
}

// handleFSEvent processes a single fsnotify event
func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	path := event.Name

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			w.handleNewDirectory(path)
			return
		}
	}
	if w.excludedPath(path) {
		return
	}

	w.pendingMu.Lock()
	w.pending[path] = event.Op
	w.lastEvent = time.Now()
	w.pendingMu.Unlock()

	w.logger.Debug("File change detected",
		"path", path,
		"op", event.Op.String())
}

// excludedPath reports whether any directory on path below the root is excluded.
func (w *Watcher) excludedPath(path string) bool {
	rel, err := filepath.Rel(w.config.RepoRoot, filepath.Dir(path))
	if err != nil || rel == "." {
		return false
	}
	for dir := rel; dir != "." && dir != string(filepath.Separator); dir = filepath.Dir(dir) {
		if w.excludes[filepath.Base(dir)] {
			return true
		}
	}
	return false
}

// handleNewDirectory adds watches to a newly created directory tree
func (w *Watcher) handleNewDirectory(path string) {
	if w.excludes[filepath.Base(path)] || w.excludedPath(path) {
		return
	}
	if err := w.addWatchesRecursive(path); err != nil {
		w.logger.Warn("Failed to watch new directory",
			"path", path,
			"error", err)
		return
	}
	w.logger.Debug("Added watch for new directory", "path", path)

	// Files may have landed before the watch existed.
	w.pendingMu.Lock()
	w.pending[path] = fsnotify.Create
	w.lastEvent = time.Now()
	w.pendingMu.Unlock()
}

// flushPending emits one batch once the tree has been quiet for the debounce delay
func (w *Watcher) flushPending(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 || time.Since(w.lastEvent) < w.config.DebounceDelay {
		w.pendingMu.Unlock()
		return
	}

	toProcess := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.pendingMu.Unlock()

	var changed []string
	for path, op := range toProcess {
		if ctx.Err() != nil {
			return
		}
		if w.contentChanged(path, op) {
			rel, err := filepath.Rel(w.config.RepoRoot, path)
			if err != nil {
				continue
			}
			changed = append(changed, filepath.ToSlash(rel))
		}
	}
	if len(changed) == 0 {
		return
	}
	sort.Strings(changed)
	w.sendBatch(ChangeBatch{Paths: changed})
}

// contentChanged reports whether a pending path differs from its last known
// content. Unknown files and removals always count as changes.
func (w *Watcher) contentChanged(path string, op fsnotify.Op) bool {
	rel, err := filepath.Rel(w.config.RepoRoot, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)

	if op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename) {
		w.deleteHash(rel)
		return true
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		w.deleteHash(rel)
		return true
	}
	if err != nil || info.IsDir() {
		return err == nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return true
	}
	hash := ast.ContentHash(content)
	if old, ok := w.getHash(rel); ok && old == hash {
		return false
	}
	w.setHash(rel, hash)
	return true
}

// sendBatch sends a batch to the output channel. A full channel already
// holds a batch that triggers a full re-index, so the new one is dropped.
func (w *Watcher) sendBatch(batch ChangeBatch) {
	select {
	case w.events <- batch:
		w.logger.Debug("Sent change batch", "files", len(batch.Paths))
	default:
		w.logger.Debug("Change channel full, dropping batch",
			"files", len(batch.Paths))
	}
}
