// Package keyword provides lexical chunk search over Bleve.
package keyword

import "context"

// Index is the lexical half of retrieval fusion: chunks searchable by the
// exact part numbers, error codes, and model names that embeddings blur.
type Index interface {
	Index(ctx context.Context, chunkID string, entry *ChunkEntry) error
	Search(ctx context.Context, query string, limit int) ([]*Result, error)
	Delete(ctx context.Context, chunkIDs []string) error
	Count() (uint64, error)
	Close() error
}

// ChunkEntry is the indexed view of one chunk.
type ChunkEntry struct {
	Content     string `json:"content"`
	SourceTitle string `json:"source_title"`
}

// Result is one lexical hit. Score is Bleve's tf-idf score, unnormalized.
type Result struct {
	ID    string
	Score float64
}
