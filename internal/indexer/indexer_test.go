package indexer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/yobou/internal/config"
	"github.com/hyperjump/yobou/internal/embedding"
	"github.com/hyperjump/yobou/internal/extract"
	"github.com/hyperjump/yobou/internal/keyword"
	"github.com/hyperjump/yobou/internal/models"
	"github.com/hyperjump/yobou/internal/storage"
	"github.com/hyperjump/yobou/internal/vector"
)

func newTestIndexer(t *testing.T) (*Indexer, storage.Storage, vector.Index) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "db", "telemetry.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	vecIdx, err := vector.NewMemoryIndex(64)
	if err != nil {
		t.Fatal(err)
	}
	kwIdx, err := keyword.NewBleveIndex(filepath.Join(dir, "bleve"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { kwIdx.Close() })

	cfg := &config.RetrievalConfig{ChunkSize: 10, ChunkOverlap: 2}
	idx := NewIndexer(store, embedding.NewHashEmbedder(64), vecIdx, kwIdx, cfg, extract.NewExtractor())
	return idx, store, vecIdx
}

func TestIndexDocument(t *testing.T) {
	idx, store, vecIdx := newTestIndexer(t)
	ctx := context.Background()

	input := &models.DocumentInput{
		Title:   "pump_manual.txt",
		Content: "Replace the bearing every 6 months. Use NLGI 2 grease on the rails. Inspect the coupling for wear at every service interval.",
	}
	if err := idx.IndexDocument(ctx, input); err != nil {
		t.Fatal(err)
	}
	if input.ID == "" {
		t.Fatal("document ID should be assigned")
	}

	chunks, err := store.GetChunksByDocumentID(ctx, input.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	if chunks[0].SourceTitle != "pump manual.txt" {
		t.Errorf("source title should replace underscores: %q", chunks[0].SourceTitle)
	}
	if vecIdx.Size() != len(chunks) {
		t.Errorf("vector index has %d entries, want %d", vecIdx.Size(), len(chunks))
	}
}

func TestChunkerOverlap(t *testing.T) {
	c := NewChunker(4, 1)
	words := "a b c d e f g h i j"
	chunks := c.Chunk("doc", "title", words)
	if len(chunks) < 3 {
		t.Fatalf("got %d chunks", len(chunks))
	}
	// Consecutive chunks share the overlap word.
	first := strings.Fields(chunks[0].Content)
	second := strings.Fields(chunks[1].Content)
	if first[len(first)-1] != second[0] {
		t.Errorf("chunks should overlap: %q / %q", chunks[0].Content, chunks[1].Content)
	}
	for i, ch := range chunks {
		if ch.ChunkIndex != i {
			t.Errorf("chunk %d has index %d", i, ch.ChunkIndex)
		}
	}
}

func TestChunkerEmptyText(t *testing.T) {
	c := NewChunker(4, 1)
	if got := c.Chunk("doc", "title", "  \n "); got != nil {
		t.Errorf("empty text should yield no chunks, got %d", len(got))
	}
}

func TestIndexFileIncrementalSkip(t *testing.T) {
	idx, store, _ := newTestIndexer(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "manual.txt")
	if err := os.WriteFile(path, []byte("Check belt tension weekly."), 0600); err != nil {
		t.Fatal(err)
	}
	if err := idx.IndexFile(ctx, path, nil); err != nil {
		t.Fatal(err)
	}
	docs, _ := store.CountDocuments(ctx)
	if docs != 1 {
		t.Fatalf("documents: got %d", docs)
	}

	// Unchanged file: indexing again is a no-op.
	if err := idx.IndexFile(ctx, path, nil); err != nil {
		t.Fatal(err)
	}
	docs, _ = store.CountDocuments(ctx)
	if docs != 1 {
		t.Errorf("re-index of unchanged file should not duplicate, got %d docs", docs)
	}

	// Same path, changed content: replaces, does not duplicate.
	if err := os.WriteFile(path, []byte("Check belt tension daily during break-in period."), 0600); err != nil {
		t.Fatal(err)
	}
	if err := idx.IndexFile(ctx, path, nil); err != nil {
		t.Fatal(err)
	}
	docs, _ = store.CountDocuments(ctx)
	if docs != 1 {
		t.Errorf("changed file should replace, got %d docs", docs)
	}
	doc, err := store.GetDocument(ctx, FileDocID(path))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(doc.Content, "daily") {
		t.Errorf("content not updated: %q", doc.Content)
	}
}

func TestIndexFileExtensionFilter(t *testing.T) {
	idx, _, _ := newTestIndexer(t)
	path := filepath.Join(t.TempDir(), "binary.exe")
	os.WriteFile(path, []byte("x"), 0600)
	if err := idx.IndexFile(context.Background(), path, []string{".txt", ".md"}); err == nil {
		t.Error("disallowed extension should fail")
	}
}

func TestIndexDirectory(t *testing.T) {
	idx, store, _ := newTestIndexer(t)
	ctx := context.Background()

	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("lubrication schedule"), 0600)
	os.MkdirAll(filepath.Join(dir, "sub"), 0755)
	os.WriteFile(filepath.Join(dir, "sub", "b.md"), []byte("torque specs"), 0600)
	os.WriteFile(filepath.Join(dir, "skip.bin"), []byte{0x1}, 0600)

	n, err := idx.IndexDirectory(ctx, dir, []string{".txt", ".md"})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("indexed %d files, want 2", n)
	}
	docs, _ := store.CountDocuments(ctx)
	if docs != 2 {
		t.Errorf("documents: got %d", docs)
	}
}

func TestDeleteDocumentCascades(t *testing.T) {
	idx, store, vecIdx := newTestIndexer(t)
	ctx := context.Background()

	input := &models.DocumentInput{Title: "m", Content: "coolant flush procedure steps"}
	if err := idx.IndexDocument(ctx, input); err != nil {
		t.Fatal(err)
	}
	if err := idx.DeleteDocument(ctx, input.ID); err != nil {
		t.Fatal(err)
	}
	if vecIdx.Size() != 0 {
		t.Errorf("vector index should be empty, has %d", vecIdx.Size())
	}
	chunks, _ := store.CountChunks(ctx)
	if chunks != 0 {
		t.Errorf("chunks should be gone, have %d", chunks)
	}
	if _, err := store.GetDocument(ctx, input.ID); err == nil {
		t.Error("document should be gone")
	}
}

func TestPreprocess(t *testing.T) {
	got := Preprocess("  Replace\tthe\n\nbearing  now.  ")
	if got != "Replace the bearing now." {
		t.Errorf("got %q", got)
	}
}

func TestFileDocIDStable(t *testing.T) {
	a := FileDocID("/manuals/pump.pdf")
	b := FileDocID("/manuals//pump.pdf")
	if a != b {
		t.Error("cleaned paths must share an ID")
	}
	if a == FileDocID("/manuals/press.pdf") {
		t.Error("different paths must not collide")
	}
	if !strings.HasPrefix(a, "file:") {
		t.Errorf("ID prefix: %q", a)
	}
}
