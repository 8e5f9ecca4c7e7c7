// Package embedding produces vector embeddings for manual text, via ONNX
// when available with a deterministic hashing fallback.
package embedding

import (
	"context"

	"github.com/hyperjump/yobou/internal/config"
	"go.uber.org/zap"
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// New returns the best available embedder for cfg: the ONNX model when the
// build and model file support it, otherwise the hashing embedder. The
// fallback keeps the retrieval path functional on CGO-less builds, at reduced
// semantic quality. Logger may be nil.
func New(cfg *config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	onnx, err := NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens, cfg.CacheSize)
	if err == nil {
		if logger != nil {
			logger.Info("using ONNX embedder", zap.String("model", cfg.ModelPath))
		}
		return onnx, nil
	}
	if logger != nil {
		logger.Warn("ONNX embedder unavailable, using hashing embedder", zap.Error(err))
	}
	return NewHashEmbedder(cfg.Dimensions), nil
}
