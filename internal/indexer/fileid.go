package indexer

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

// FileDocID returns a stable document ID for an absolute path. The same path
// always yields the same ID, so re-indexing a changed manual replaces the
// previous version instead of duplicating it.
func FileDocID(absolutePath string) string {
	hash := sha256.Sum256([]byte(filepath.Clean(absolutePath)))
	return "file:" + hex.EncodeToString(hash[:])
}
