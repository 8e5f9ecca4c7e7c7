// Package retrieval answers natural-language questions against the indexed
// manual corpus with extractive answers and citations.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hyperjump/yobou/internal/config"
	"github.com/hyperjump/yobou/internal/embedding"
	"github.com/hyperjump/yobou/internal/keyword"
	"github.com/hyperjump/yobou/internal/models"
	"github.com/hyperjump/yobou/internal/storage"
	"github.com/hyperjump/yobou/internal/vector"
	"github.com/hyperjump/yobou/pkg/utils"
	"go.uber.org/zap"
)

// Engine runs hybrid retrieval: semantic search carries the meaning of the
// question, keyword search carries exact part numbers and error codes.
type Engine struct {
	storage      storage.Storage
	embedder     embedding.Embedder
	vectorIndex  vector.Index
	keywordIndex keyword.Index
	cfg          *config.RetrievalConfig
	logger       *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates a retrieval engine.
func NewEngine(
	store storage.Storage,
	embedder embedding.Embedder,
	vectorIndex vector.Index,
	keywordIndex keyword.Index,
	cfg *config.RetrievalConfig,
	opts ...Option,
) *Engine {
	e := &Engine{
		storage:      store,
		embedder:     embedder,
		vectorIndex:  vectorIndex,
		keywordIndex: keywordIndex,
		cfg:          cfg,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// VectorIndexSize returns the number of indexed chunk vectors, for status
// surfaces.
func (e *Engine) VectorIndexSize() int {
	return e.vectorIndex.Size()
}

// candidate is one retrieved chunk with its component scores. cosine is the
// raw embedding similarity, relevance maps it to [0,1] for reporting, and
// fused adds the weighted keyword score.
type candidate struct {
	chunk     *models.DocumentChunk
	cosine    float64
	relevance float64
	fused     float64
}

// Ask answers req from the corpus. The similarity floor is a raw cosine
// threshold applied to every candidate; chunks below it are dropped, and when
// none survive the engine declines with models.ErrNoMatch rather than
// answering from a weak match.
func (e *Engine) Ask(ctx context.Context, req *models.AskRequest) (*models.Answer, error) {
	start := time.Now()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// Fetch more candidates than requested so fusion has room to reorder.
	limit := req.TopK * 4
	if limit < 20 {
		limit = 20
	}

	queryEmb, err := e.embedder.Embed(ctx, req.Question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	var (
		semanticHits []*vector.Result
		keywordHits  []*keyword.Result
		errChan      = make(chan error, 2)
		wg           sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		hits, err := e.vectorIndex.Search(ctx, queryEmb, limit)
		if err != nil {
			errChan <- fmt.Errorf("vector search: %w", err)
			return
		}
		semanticHits = hits
	}()
	go func() {
		defer wg.Done()
		hits, err := e.keywordIndex.Search(ctx, req.Question, limit)
		if err != nil {
			errChan <- fmt.Errorf("keyword search: %w", err)
			return
		}
		keywordHits = hits
	}()
	wg.Wait()
	close(errChan)
	if err := <-errChan; err != nil {
		return nil, err
	}

	candidates, err := e.fuse(ctx, queryEmb, semanticHits, keywordHits)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("question %q: %w", utils.Truncate(req.Question, 80), models.ErrNoMatch)
	}

	// The floor filters each candidate on its raw cosine, not on fused rank,
	// so a keyword-heavy hit with weak semantics cannot mask a chunk that
	// genuinely clears the floor.
	bestCos := candidates[0].cosine
	kept := candidates[:0]
	for _, c := range candidates {
		if c.cosine > bestCos {
			bestCos = c.cosine
		}
		if c.cosine >= e.cfg.SimilarityFloor {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		e.logger.Debug("no chunk above similarity floor",
			zap.Float64("best_cosine", bestCos),
			zap.Float64("floor", e.cfg.SimilarityFloor))
		return nil, fmt.Errorf("best cosine %.2f below floor: %w", bestCos, models.ErrNoMatch)
	}
	candidates = kept
	if len(candidates) > req.TopK {
		candidates = candidates[:req.TopK]
	}
	best := candidates[0]

	answer := &models.Answer{
		Text:       e.answerText(candidates),
		Citations:  e.citations(candidates),
		Confidence: answerConfidence(candidates),
		QueryTime:  time.Since(start),
	}
	e.logger.Info("question answered",
		zap.Float64("relevance", best.relevance),
		zap.Int("candidates", len(candidates)),
		zap.Duration("took", answer.QueryTime))
	return answer, nil
}

// fuse merges both result sets into ranked candidates. Keyword scores are
// normalized by the max hit; semantic relevance maps cosine from [-1,1] to
// [0,1]. Keyword-only hits get their semantic score computed on demand so the
// floor applies uniformly.
func (e *Engine) fuse(ctx context.Context, queryEmb []float32, semanticHits []*vector.Result, keywordHits []*keyword.Result) ([]*candidate, error) {
	semantic := make(map[string]float64, len(semanticHits))
	for _, hit := range semanticHits {
		semantic[hit.ID] = hit.Score
	}

	var maxKeyword float64
	for _, hit := range keywordHits {
		if hit.Score > maxKeyword {
			maxKeyword = hit.Score
		}
	}
	kwScores := make(map[string]float64, len(keywordHits))
	for _, hit := range keywordHits {
		if maxKeyword > 0 {
			kwScores[hit.ID] = hit.Score / maxKeyword
		}
	}

	ids := make(map[string]struct{}, len(semantic)+len(kwScores))
	for id := range semantic {
		ids[id] = struct{}{}
	}
	for id := range kwScores {
		ids[id] = struct{}{}
	}

	out := make([]*candidate, 0, len(ids))
	for id := range ids {
		chunk, err := e.storage.GetChunk(ctx, id)
		if err != nil {
			// Index can briefly lead storage during re-indexing.
			continue
		}
		cos, ok := semantic[id]
		if !ok {
			chunkEmb, err := e.embedder.Embed(ctx, chunk.Content)
			if err != nil {
				return nil, fmt.Errorf("embed chunk: %w", err)
			}
			cos = vector.InnerProduct(queryEmb, chunkEmb)
		}
		relevance := utils.Clamp01((cos + 1) / 2)
		out = append(out, &candidate{
			chunk:     chunk,
			cosine:    cos,
			relevance: relevance,
			fused:     (1-e.cfg.KeywordWeight)*relevance + e.cfg.KeywordWeight*kwScores[id],
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].fused != out[j].fused {
			return out[i].fused > out[j].fused
		}
		return out[i].chunk.ID < out[j].chunk.ID
	})
	return out, nil
}

// answerText returns the best chunk, extending with the runner-up when it
// comes from the same source and scores within 5%, which usually means the
// adjacent chunk of the same passage.
func (e *Engine) answerText(candidates []*candidate) string {
	best := candidates[0]
	if len(candidates) > 1 {
		next := candidates[1]
		sameSource := next.chunk.SourceTitle == best.chunk.SourceTitle
		if sameSource && next.fused >= best.fused*0.95 && next.chunk.ID != best.chunk.ID {
			return best.chunk.Content + " " + next.chunk.Content
		}
	}
	return best.chunk.Content
}

// citations returns the top distinct sources, each with the relevance of its
// best chunk.
func (e *Engine) citations(candidates []*candidate) []models.Citation {
	maxCitations := e.cfg.MaxCitations
	if maxCitations <= 0 {
		maxCitations = 3
	}
	seen := make(map[string]bool)
	var out []models.Citation
	for _, c := range candidates {
		title := c.chunk.SourceTitle
		if title == "" {
			title = c.chunk.DocumentID
		}
		if seen[title] {
			continue
		}
		seen[title] = true
		out = append(out, models.Citation{SourceTitle: title, Relevance: c.relevance})
		if len(out) >= maxCitations {
			break
		}
	}
	return out
}

// answerConfidence blends the top relevance with its margin over the
// runner-up: a strong match that clearly beats the field scores higher than
// one in a crowd of near-ties.
func answerConfidence(candidates []*candidate) float64 {
	top := candidates[0].relevance
	if len(candidates) == 1 {
		return utils.Clamp01(top)
	}
	margin := candidates[0].fused - candidates[1].fused
	return utils.Clamp01(0.8*top + 0.2*margin*10)
}
