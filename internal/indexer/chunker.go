// Package indexer builds the manual corpus index: extract, chunk, embed, and
// index into storage, the keyword index, and the vector index.
package indexer

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hyperjump/yobou/internal/models"
)

// Chunker splits text into overlapping word-based chunks. Overlap keeps
// sentences that straddle a boundary retrievable from both sides.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker with the given size and overlap, in words.
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	return &Chunker{chunkSize: chunkSize, chunkOverlap: chunkOverlap}
}

// Chunk splits text into DocumentChunks with overlapping windows. The source
// title is stamped on every chunk so retrieval can cite without a join.
func (c *Chunker) Chunk(docID, sourceTitle, text string) []*models.DocumentChunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	step := c.chunkSize - c.chunkOverlap
	if step <= 0 {
		step = 1
	}

	var chunks []*models.DocumentChunk
	for i, index := 0, 0; i < len(words); i, index = i+step, index+1 {
		end := i + c.chunkSize
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, &models.DocumentChunk{
			ID:          fmt.Sprintf("%s_%s", docID, uuid.New().String()[:8]),
			DocumentID:  docID,
			SourceTitle: sourceTitle,
			Content:     strings.Join(words[i:end], " "),
			ChunkIndex:  index,
		})
		if end >= len(words) {
			break
		}
	}
	return chunks
}
