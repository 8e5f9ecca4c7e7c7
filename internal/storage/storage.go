// Package storage persists sensor readings, manual documents, and chunks.
package storage

import (
	"context"
	"time"

	"github.com/hyperjump/yobou/internal/models"
)

// Storage defines persistence for the two sides of the system: the sensor
// history that feeds scoring and the manual corpus that feeds retrieval.
type Storage interface {
	// Sensor readings
	InsertReadings(ctx context.Context, readings []models.Reading) (int, error)
	GetReadings(ctx context.Context, machineID string, asOf time.Time) ([]models.Reading, error)
	ListMachines(ctx context.Context) ([]string, error)
	CountReadings(ctx context.Context) (int64, error)

	// Documents
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	UpdateDocument(ctx context.Context, doc *models.Document) error
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)

	// Chunks
	BatchCreateChunks(ctx context.Context, chunks []*models.DocumentChunk) error
	GetChunk(ctx context.Context, id string) (*models.DocumentChunk, error)
	GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.DocumentChunk, error)
	DeleteChunksByDocumentID(ctx context.Context, docID string) error

	// Stats
	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)

	Close() error
}
