package retrieval

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/yobou/internal/config"
	"github.com/hyperjump/yobou/internal/embedding"
	"github.com/hyperjump/yobou/internal/extract"
	"github.com/hyperjump/yobou/internal/indexer"
	"github.com/hyperjump/yobou/internal/keyword"
	"github.com/hyperjump/yobou/internal/models"
	"github.com/hyperjump/yobou/internal/storage"
	"github.com/hyperjump/yobou/internal/vector"
)

func newTestEngine(t *testing.T) (*Engine, *indexer.Indexer) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "db.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	vecIdx, err := vector.NewMemoryIndex(4096)
	if err != nil {
		t.Fatal(err)
	}
	kwIdx, err := keyword.NewBleveIndex(filepath.Join(dir, "bleve"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { kwIdx.Close() })

	embedder := embedding.NewHashEmbedder(4096)
	cfg := &config.RetrievalConfig{
		ChunkSize:       40,
		ChunkOverlap:    8,
		TopK:            5,
		SimilarityFloor: 0.2,
		KeywordWeight:   0.3,
		MaxCitations:    3,
	}
	idx := indexer.NewIndexer(store, embedder, vecIdx, kwIdx, cfg, extract.NewExtractor())
	return NewEngine(store, embedder, vecIdx, kwIdx, cfg), idx
}

func indexCorpus(t *testing.T, idx *indexer.Indexer) {
	t.Helper()
	ctx := context.Background()
	docs := []*models.DocumentInput{
		{Title: "pump-manual", Content: "Replace the bearing every 6 months. Use NLGI 2 grease for the bearing housing."},
		{Title: "press-manual", Content: "Check hydraulic pressure before startup. Relief valve opens at 210 bar."},
		{Title: "cnc-manual", Content: "Error E-4012 indicates spindle overload. Reduce feed rate and inspect the spindle motor."},
	}
	for _, d := range docs {
		if err := idx.IndexDocument(ctx, d); err != nil {
			t.Fatal(err)
		}
	}
}

func TestAskRoundTrip(t *testing.T) {
	engine, idx := newTestEngine(t)
	indexCorpus(t, idx)

	answer, err := engine.Ask(context.Background(), &models.AskRequest{
		Question: "How often should the bearing be replaced?",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(answer.Text, "Replace the bearing every 6 months") {
		t.Errorf("answer text: %q", answer.Text)
	}
	if len(answer.Citations) == 0 {
		t.Fatal("answer must carry citations")
	}
	if answer.Citations[0].SourceTitle != "pump-manual" {
		t.Errorf("top citation: got %q", answer.Citations[0].SourceTitle)
	}
	if answer.Citations[0].Relevance <= 0 || answer.Citations[0].Relevance > 1 {
		t.Errorf("citation relevance out of range: %f", answer.Citations[0].Relevance)
	}
	if answer.Confidence <= 0 {
		t.Errorf("confidence: %f", answer.Confidence)
	}
	if answer.QueryTime <= 0 {
		t.Error("query time should be recorded")
	}
}

func TestAskExactErrorCode(t *testing.T) {
	engine, idx := newTestEngine(t)
	indexCorpus(t, idx)

	answer, err := engine.Ask(context.Background(), &models.AskRequest{
		Question: "What does error E-4012 mean on the spindle?",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(answer.Text, "E-4012") {
		t.Errorf("keyword fusion should surface the error code chunk: %q", answer.Text)
	}
}

func TestAskNoMatch(t *testing.T) {
	engine, idx := newTestEngine(t)
	indexCorpus(t, idx)

	_, err := engine.Ask(context.Background(), &models.AskRequest{
		Question: "quantum chromodynamics lattice renormalization",
	})
	if !errors.Is(err, models.ErrNoMatch) {
		t.Errorf("got %v, want ErrNoMatch", err)
	}
}

func TestAskWeakOverlapDeclined(t *testing.T) {
	engine, idx := newTestEngine(t)
	ctx := context.Background()
	content := "The bearing housing assembly drawing shows torque values for each fastener grade " +
		"along with thread pitch, washer type, and locking compound recommendations supplied by " +
		"the vendor documentation package covering drive end and non-drive end variants."
	if err := idx.IndexDocument(ctx, &models.DocumentInput{Title: "housing-drawing", Content: content}); err != nil {
		t.Fatal(err)
	}
	// One shared token in a long chunk is noise, not a match, even though the
	// keyword index hits it.
	_, err := engine.Ask(ctx, &models.AskRequest{Question: "bearing chromodynamics renormalization lattice"})
	if !errors.Is(err, models.ErrNoMatch) {
		t.Errorf("got %v, want ErrNoMatch", err)
	}
}

// keyedEmbedder pins fixed vectors to texts by substring so similarities are
// exact.
type keyedEmbedder struct {
	keys     []string
	vectors  [][]float32
	fallback []float32
}

func (e *keyedEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	for i, key := range e.keys {
		if strings.Contains(text, key) {
			return e.vectors[i], nil
		}
	}
	return e.fallback, nil
}

func (e *keyedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = emb
	}
	return out, nil
}

func (e *keyedEmbedder) Dimensions() int { return len(e.fallback) }

func (e *keyedEmbedder) Close() error { return nil }

func TestAskFloorAppliesPerChunk(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "db.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	vecIdx, err := vector.NewMemoryIndex(4)
	if err != nil {
		t.Fatal(err)
	}
	kwIdx, err := keyword.NewBleveIndex(filepath.Join(dir, "bleve"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { kwIdx.Close() })

	embedder := &keyedEmbedder{
		keys: []string{"fault code", "lube oil"},
		vectors: [][]float32{
			{0, 1, 0, 0},
			{0.8, 0.6, 0, 0},
		},
		fallback: []float32{1, 0, 0, 0},
	}
	cfg := &config.RetrievalConfig{
		ChunkSize:       40,
		ChunkOverlap:    8,
		TopK:            5,
		SimilarityFloor: 0.2,
		KeywordWeight:   0.6,
		MaxCitations:    3,
	}
	idx := indexer.NewIndexer(store, embedder, vecIdx, kwIdx, cfg, extract.NewExtractor())
	engine := NewEngine(store, embedder, vecIdx, kwIdx, cfg)

	ctx := context.Background()
	docs := []*models.DocumentInput{
		{Title: "fault-codes", Content: "QX99 fault code listing for control cabinet relays."},
		{Title: "lube-guide", Content: "Flush lube oil system every 500 operating hours."},
	}
	for _, d := range docs {
		if err := idx.IndexDocument(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	// The fault-code chunk wins the fused ranking on its exclusive QX99
	// keyword hit, but its cosine sits below the floor. The lube chunk clears
	// the floor and must still be answerable.
	answer, err := engine.Ask(ctx, &models.AskRequest{Question: "What clears the QX99 alarm?"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(answer.Text, "Flush lube oil system") {
		t.Errorf("answer text: %q", answer.Text)
	}
	if len(answer.Citations) == 0 || answer.Citations[0].SourceTitle != "lube-guide" {
		t.Errorf("citations: %+v", answer.Citations)
	}
}

func TestAskEmptyCorpus(t *testing.T) {
	engine, _ := newTestEngine(t)
	_, err := engine.Ask(context.Background(), &models.AskRequest{Question: "bearing schedule"})
	if !errors.Is(err, models.ErrNoMatch) {
		t.Errorf("got %v, want ErrNoMatch", err)
	}
}

func TestAskValidatesRequest(t *testing.T) {
	engine, _ := newTestEngine(t)
	if _, err := engine.Ask(context.Background(), &models.AskRequest{}); err == nil {
		t.Error("empty question should fail")
	}
}

func TestAskCitationsDistinctSources(t *testing.T) {
	engine, idx := newTestEngine(t)
	ctx := context.Background()
	// One long document produces many chunks from the same source.
	long := strings.Repeat("The bearing requires periodic lubrication and inspection. ", 20)
	if err := idx.IndexDocument(ctx, &models.DocumentInput{Title: "bearing-guide", Content: long}); err != nil {
		t.Fatal(err)
	}
	answer, err := engine.Ask(ctx, &models.AskRequest{Question: "bearing lubrication inspection"})
	if err != nil {
		t.Fatal(err)
	}
	seen := map[string]bool{}
	for _, c := range answer.Citations {
		if seen[c.SourceTitle] {
			t.Errorf("duplicate citation source %q", c.SourceTitle)
		}
		seen[c.SourceTitle] = true
	}
}
