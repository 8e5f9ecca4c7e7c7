// Package vector provides in-memory vector similarity search with binary
// persistence.
package vector

import "context"

// Index stores embeddings keyed by chunk ID and answers nearest-neighbor
// queries by inner product.
type Index interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*Result, error)
	Remove(ctx context.Context, ids []string) error
	Save(path string) error
	Load(path string) error
	Size() int
	Close() error
}

// Result is one search hit. Score is the inner product with the query, which
// equals cosine similarity for normalized vectors.
type Result struct {
	ID    string
	Score float64
}
