package keyword

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
)

// BleveIndex implements Index over a Bleve index on disk.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex opens the index at path, creating it if absent. An existing
// index is reused so unchanged documents are not re-indexed across restarts.
// Changing the mapping requires removing the index directory.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if _, err := os.Stat(path); err == nil {
		index, err := bleve.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}

	mapping := bleve.NewIndexMapping()
	chunkMapping := bleve.NewDocumentMapping()
	textField := bleve.NewTextFieldMapping()
	// Standard analyzer: lowercase and tokenize without stemming, so part
	// numbers and error codes match exactly as written in the manual.
	textField.Analyzer = standard.Name
	chunkMapping.AddFieldMappingsAt("content", textField)
	chunkMapping.AddFieldMappingsAt("source_title", textField)
	mapping.DefaultMapping = chunkMapping

	index, err := bleve.New(path, mapping)
	if err != nil {
		return nil, fmt.Errorf("create bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index adds or replaces one chunk.
func (b *BleveIndex) Index(_ context.Context, chunkID string, entry *ChunkEntry) error {
	return b.index.Index(chunkID, entry)
}

// Search runs a match query over content and title and returns up to limit
// hits by descending score.
func (b *BleveIndex) Search(_ context.Context, query string, limit int) ([]*Result, error) {
	req := bleve.NewSearchRequest(bleve.NewMatchQuery(query))
	req.Size = limit
	res, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("bleve search: %w", err)
	}
	out := make([]*Result, len(res.Hits))
	for i, hit := range res.Hits {
		out[i] = &Result{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// Delete removes the given chunks.
func (b *BleveIndex) Delete(_ context.Context, chunkIDs []string) error {
	batch := b.index.NewBatch()
	for _, id := range chunkIDs {
		batch.Delete(id)
	}
	return b.index.Batch(batch)
}

// Count returns the number of indexed chunks.
func (b *BleveIndex) Count() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the underlying index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
