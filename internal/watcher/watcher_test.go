package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu      sync.Mutex
	indexed []string
	removed []string
}

func (r *recorder) onIndex(path string) {
	r.mu.Lock()
	r.indexed = append(r.indexed, path)
	r.mu.Unlock()
}

func (r *recorder) onRemove(path string) {
	r.mu.Lock()
	r.removed = append(r.removed, path)
	r.mu.Unlock()
}

func (r *recorder) indexedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.indexed)
}

func (r *recorder) removedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.removed)
}

func startWatcher(t *testing.T, roots []string, rec *recorder) *Watcher {
	t.Helper()
	w := NewWatcher(roots, []string{".txt"}, true, rec.onIndex, rec.onRemove,
		WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
	return w
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWatcherIndexesNewFile(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, []string{dir}, rec)

	path := filepath.Join(dir, "pump-manual.txt")
	if err := os.WriteFile(path, []byte("bearing schedule"), 0644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return rec.indexedCount() >= 1 })
}

func TestWatcherIgnoresOtherExtensions(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, []string{dir}, rec)

	if err := os.WriteFile(filepath.Join(dir, "dump.bin"), []byte{0x00}, 0644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)
	if rec.indexedCount() != 0 {
		t.Errorf("non-matching extension dispatched %d times", rec.indexedCount())
	}
}

func TestWatcherDebouncesRapidWrites(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, []string{dir}, rec)

	path := filepath.Join(dir, "manual.txt")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte("rev"), 0644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	waitFor(t, func() bool { return rec.indexedCount() >= 1 })
	time.Sleep(200 * time.Millisecond)
	if got := rec.indexedCount(); got > 2 {
		t.Errorf("rapid writes dispatched %d times, want coalesced", got)
	}
}

func TestWatcherDispatchesRemove(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "old.txt")
	if err := os.WriteFile(path, []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	startWatcher(t, []string{dir}, rec)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return rec.removedCount() >= 1 })
}

func TestWatcherFollowsNewSubdirectory(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, []string{dir}, rec)

	sub := filepath.Join(dir, "presses")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	// Give the watcher a beat to register the new directory.
	time.Sleep(200 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(sub, "press.txt"), []byte("relief valve"), 0644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return rec.indexedCount() >= 1 })
}

func TestWatcherCreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "manuals")
	rec := &recorder{}
	startWatcher(t, []string{root}, rec)
	if _, err := os.Stat(root); err != nil {
		t.Errorf("root should be created: %v", err)
	}
}

func TestSyncExistingFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.md"), []byte("b"), 0644); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	w := startWatcher(t, []string{dir}, rec)

	w.SyncExistingFiles()
	if got := rec.indexedCount(); got != 1 {
		t.Errorf("sync dispatched %d files, want 1 (.txt only)", got)
	}
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/m/a.txt", []string{".txt"}, true},
		{"/m/a.TXT", []string{".txt"}, true},
		{"/m/a.pdf", []string{".txt"}, false},
		{"/m/a", nil, true},
		{"/m/a.docx", []string{"docx"}, true},
	}
	for _, tt := range tests {
		w := &Watcher{extensions: tt.extensions}
		if got := w.matchExtension(tt.path); got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}
