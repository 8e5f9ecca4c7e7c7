package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/hyperjump/yobou/internal/config"
	"github.com/hyperjump/yobou/internal/embedding"
	"github.com/hyperjump/yobou/internal/extract"
	"github.com/hyperjump/yobou/internal/keyword"
	"github.com/hyperjump/yobou/internal/models"
	"github.com/hyperjump/yobou/internal/storage"
	"github.com/hyperjump/yobou/internal/vector"
	"go.uber.org/zap"
)

const (
	metaKeySourcePath  = "source_path"
	metaKeySourceMtime = "source_mtime"
	metaKeySourceSize  = "source_size"
)

// Indexer indexes manuals into storage plus both retrieval indices.
type Indexer struct {
	storage      storage.Storage
	embedder     embedding.Embedder
	vectorIndex  vector.Index
	keywordIndex keyword.Index
	chunker      *Chunker
	extractor    *extract.Extractor
	logger       *zap.Logger
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(idx *Indexer) { idx.logger = l }
}

// NewIndexer creates an indexer. Extractor may be nil, in which case files
// are read as plain text.
func NewIndexer(
	store storage.Storage,
	embedder embedding.Embedder,
	vectorIndex vector.Index,
	keywordIndex keyword.Index,
	cfg *config.RetrievalConfig,
	extractor *extract.Extractor,
	opts ...Option,
) *Indexer {
	idx := &Indexer{
		storage:      store,
		embedder:     embedder,
		vectorIndex:  vectorIndex,
		keywordIndex: keywordIndex,
		chunker:      NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		extractor:    extractor,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// IndexDocument stores, chunks, embeds, and indexes one document.
func (idx *Indexer) IndexDocument(ctx context.Context, input *models.DocumentInput) error {
	if input.ID == "" {
		input.ID = uuid.New().String()
	}
	doc := &models.Document{
		ID:       input.ID,
		Title:    input.Title,
		Content:  Preprocess(input.Content),
		Metadata: input.Metadata,
	}
	if err := idx.storage.CreateDocument(ctx, doc); err != nil {
		return fmt.Errorf("store document: %w", err)
	}

	// Underscores read as word separators in filenames; the standard
	// analyzer does not split on them.
	title := strings.ReplaceAll(doc.Title, "_", " ")
	chunks := idx.chunker.Chunk(doc.ID, title, doc.Content)
	if len(chunks) == 0 {
		chunks = []*models.DocumentChunk{{
			ID:          doc.ID + "_0",
			DocumentID:  doc.ID,
			SourceTitle: title,
			Content:     doc.Content,
			ChunkIndex:  0,
		}}
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}
	embeddings, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	for i := range chunks {
		chunks[i].Embedding = embeddings[i]
	}

	if err := idx.storage.BatchCreateChunks(ctx, chunks); err != nil {
		return fmt.Errorf("store chunks: %w", err)
	}
	chunkIDs := make([]string, len(chunks))
	for i, ch := range chunks {
		chunkIDs[i] = ch.ID
	}
	if err := idx.vectorIndex.Add(ctx, chunkIDs, embeddings); err != nil {
		return fmt.Errorf("index vectors: %w", err)
	}
	for _, ch := range chunks {
		entry := &keyword.ChunkEntry{Content: ch.Content, SourceTitle: ch.SourceTitle}
		if err := idx.keywordIndex.Index(ctx, ch.ID, entry); err != nil {
			return fmt.Errorf("index keywords: %w", err)
		}
	}
	return nil
}

// IndexFile indexes one manual file. The document ID derives from the
// absolute path so re-indexing replaces the previous version; unchanged
// files (same mtime and size) are skipped.
func (idx *Indexer) IndexFile(ctx context.Context, path string, allowedExts []string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}
	if len(allowedExts) > 0 && !extensionAllowed(filepath.Ext(absPath), allowedExts) {
		return fmt.Errorf("extension %q not in allowed list", filepath.Ext(absPath))
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %s", absPath)
	}

	docID := FileDocID(absPath)
	if idx.unchanged(ctx, absPath, docID, info) {
		idx.logger.Debug("skipping unchanged manual", zap.String("path", absPath))
		return nil
	}

	text, err := idx.extractContent(absPath)
	if err != nil {
		return fmt.Errorf("extract content: %w", err)
	}
	_ = idx.DeleteDocument(ctx, docID)

	input := &models.DocumentInput{
		ID:      docID,
		Title:   filepath.Base(absPath),
		Content: text,
		Metadata: map[string]interface{}{
			metaKeySourcePath: absPath,
			// Strings, not numbers: UnixNano exceeds JSON float53 precision.
			metaKeySourceMtime: strconv.FormatInt(info.ModTime().UnixNano(), 10),
			metaKeySourceSize:  strconv.FormatInt(info.Size(), 10),
		},
	}
	if err := idx.IndexDocument(ctx, input); err != nil {
		return err
	}
	idx.logger.Debug("manual indexed", zap.String("path", absPath), zap.String("doc_id", docID))
	return nil
}

// unchanged reports whether docID is already indexed from absPath with the
// same mtime and size.
func (idx *Indexer) unchanged(ctx context.Context, absPath, docID string, info os.FileInfo) bool {
	doc, err := idx.storage.GetDocument(ctx, docID)
	if err != nil || doc.Metadata == nil {
		return false
	}
	if doc.Metadata[metaKeySourcePath] != absPath {
		return false
	}
	return metadataInt64(doc.Metadata, metaKeySourceMtime) == info.ModTime().UnixNano() &&
		metadataInt64(doc.Metadata, metaKeySourceSize) == info.Size()
}

func metadataInt64(m map[string]interface{}, key string) int64 {
	switch n := m[key].(type) {
	case string:
		x, _ := strconv.ParseInt(n, 10, 64)
		return x
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// IndexDirectory walks dir recursively and indexes every regular file with
// an allowed extension. Returns the number of files indexed.
func (idx *Indexer) IndexDirectory(ctx context.Context, dir string, allowedExts []string) (int, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}

	n := 0
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if len(allowedExts) > 0 && !extensionAllowed(filepath.Ext(path), allowedExts) {
			return nil
		}
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		if err := idx.IndexFile(ctx, path, allowedExts); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}

// DeleteDocument removes a document and its chunks from storage and both
// indices.
func (idx *Indexer) DeleteDocument(ctx context.Context, id string) error {
	chunks, err := idx.storage.GetChunksByDocumentID(ctx, id)
	if err != nil {
		return fmt.Errorf("load chunks: %w", err)
	}
	chunkIDs := make([]string, len(chunks))
	for i, ch := range chunks {
		chunkIDs[i] = ch.ID
	}
	if err := idx.keywordIndex.Delete(ctx, chunkIDs); err != nil {
		return fmt.Errorf("delete from keyword index: %w", err)
	}
	if err := idx.vectorIndex.Remove(ctx, chunkIDs); err != nil {
		return fmt.Errorf("delete from vector index: %w", err)
	}
	if err := idx.storage.DeleteChunksByDocumentID(ctx, id); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if err := idx.storage.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	idx.logger.Debug("document deleted", zap.String("id", id))
	return nil
}

func (idx *Indexer) extractContent(path string) (string, error) {
	if idx.extractor != nil {
		return idx.extractor.Extract(path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

func extensionAllowed(ext string, allowed []string) bool {
	norm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == norm {
			return true
		}
	}
	return false
}
