package topoindexer

import (
	"context"
	"reflect"
	"testing"
	"time"
)

func startWatcher(t *testing.T, root string, excludes ...string) *Watcher {
	t.Helper()
	w, err := NewWatcher(WatcherConfig{
		RepoRoot:      root,
		DebounceDelay: 30 * time.Millisecond,
		ExcludeDirs:   excludes,
	})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = w.Stop()
	})
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return w
}

func nextBatch(t *testing.T, w *Watcher, timeout time.Duration) (ChangeBatch, bool) {
	t.Helper()
	select {
	case batch, ok := <-w.Events():
		return batch, ok
	case <-time.After(timeout):
		return ChangeBatch{}, false
	}
}

func TestWatcher_EmitsBatch(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "services/api/main.py", "x = 1\n")
	w := startWatcher(t, root)

	writeFile(t, root, "services/api/main.py", "x = 2\n")

	batch, ok := nextBatch(t, w, 3*time.Second)
	if !ok {
		t.Fatal("expected a change batch")
	}
	if !reflect.DeepEqual(batch.Paths, []string{"services/api/main.py"}) {
		t.Errorf("paths = %v", batch.Paths)
	}
	if _, ok := w.getHash("services/api/main.py"); !ok {
		t.Error("expected hash to be recorded")
	}
}

func TestWatcher_SkipsUnchangedContent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app.py", "x = 1\n")
	w := startWatcher(t, root)

	writeFile(t, root, "app.py", "x = 2\n")
	if _, ok := nextBatch(t, w, 3*time.Second); !ok {
		t.Fatal("expected a change batch")
	}

	// Rewriting identical content is not a change.
	writeFile(t, root, "app.py", "x = 2\n")
	if batch, ok := nextBatch(t, w, 300*time.Millisecond); ok {
		t.Errorf("unexpected batch %v", batch.Paths)
	}
}

func TestWatcher_SeedsExistingContent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "services/api/main.py", "x = 1\n")
	writeFile(t, root, "vendor/lib.py", "y = 1\n")
	w := startWatcher(t, root, "vendor")

	if _, ok := w.getHash("services/api/main.py"); !ok {
		t.Fatal("expected existing file to be hashed on start")
	}
	if _, ok := w.getHash("vendor/lib.py"); ok {
		t.Error("excluded directories must not be hashed")
	}

	// The first identical rewrite after start is not a change.
	writeFile(t, root, "services/api/main.py", "x = 1\n")
	if batch, ok := nextBatch(t, w, 300*time.Millisecond); ok {
		t.Errorf("unexpected batch %v", batch.Paths)
	}

	writeFile(t, root, "services/api/main.py", "x = 2\n")
	batch, ok := nextBatch(t, w, 3*time.Second)
	if !ok {
		t.Fatal("expected a change batch")
	}
	if !reflect.DeepEqual(batch.Paths, []string{"services/api/main.py"}) {
		t.Errorf("paths = %v", batch.Paths)
	}
}

func TestWatcher_ExcludedDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "node_modules/dep/index.js", "a\n")
	writeFile(t, root, "src/keep.ts", "a\n")
	w := startWatcher(t, root, "node_modules")

	writeFile(t, root, "node_modules/dep/index.js", "b\n")
	if batch, ok := nextBatch(t, w, 300*time.Millisecond); ok {
		t.Errorf("unexpected batch for excluded dir: %v", batch.Paths)
	}

	writeFile(t, root, "src/keep.ts", "b\n")
	batch, ok := nextBatch(t, w, 3*time.Second)
	if !ok {
		t.Fatal("expected a change batch")
	}
	if !reflect.DeepEqual(batch.Paths, []string{"src/keep.ts"}) {
		t.Errorf("paths = %v", batch.Paths)
	}
}

func TestWatcher_ExcludedPath(t *testing.T) {
	w, err := NewWatcher(WatcherConfig{RepoRoot: "/repo", ExcludeDirs: []string{".git", "vendor"}})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	tests := []struct {
		path string
		want bool
	}{
		{"/repo/main.go", false},
		{"/repo/src/a.py", false},
		{"/repo/.git/index", true},
		{"/repo/pkg/vendor/x/y.go", true},
	}
	for _, tt := range tests {
		if got := w.excludedPath(tt.path); got != tt.want {
			t.Errorf("excludedPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
