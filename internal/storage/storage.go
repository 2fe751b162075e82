package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// TenantRecord is one row of the tenant manifest.
type TenantRecord struct {
	ID        string
	Dimension int
	Version   uint64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DocumentRecord is the persisted form of a document.
type DocumentRecord struct {
	ID          string
	TenantID    string
	Source      string
	ContentHash string
	Status      string
	ChunkCount  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ChunkRecord is the persisted form of a chunk.
type ChunkRecord struct {
	ID         string
	DocumentID string
	TenantID   string
	Sequence   int
	Content    string
	Category   string
	Metadata   map[string]string
}

// EmbeddingRecord is the persisted vector for one chunk.
type EmbeddingRecord struct {
	ChunkID  string
	TenantID string
	Vector   []float32
}

// TenantState is everything needed to rebuild one tenant's in-memory
// indexes on startup.
type TenantState struct {
	Tenant     *TenantRecord
	Documents  []*DocumentRecord
	Chunks     []*ChunkRecord
	Embeddings []*EmbeddingRecord
}

// Store persists the engine's durable state. Implementations must apply
// each method atomically: a crash never leaves a document with only one of
// its two index representations persisted.
type Store interface {
	// CreateTenant inserts a manifest row for a new tenant.
	CreateTenant(ctx context.Context, tenant *TenantRecord) error

	// DeleteTenant removes the tenant and all dependent rows.
	DeleteTenant(ctx context.Context, tenantID string) error

	// SaveDocument atomically upserts a document with its chunks and
	// embeddings, removes the listed stale chunks, and advances the tenant
	// manifest to newVersion.
	SaveDocument(ctx context.Context, doc *DocumentRecord, chunks []*ChunkRecord,
		embeddings []*EmbeddingRecord, removeChunkIDs []string, newVersion uint64) error

	// UpdateDocumentStatus records a status transition (e.g. Failed)
	// without touching index data.
	UpdateDocumentStatus(ctx context.Context, docID string, status string) error

	// DeleteDocuments removes the documents and their chunks/embeddings,
	// advancing the tenant manifest to newVersion.
	DeleteDocuments(ctx context.Context, tenantID string, docIDs []string, newVersion uint64) error

	// LoadAll reads every tenant's full state for startup reload.
	LoadAll(ctx context.Context) ([]*TenantState, error)

	// Close releases the underlying database.
	Close() error
}
