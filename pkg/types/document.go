package types

import "time"

// DocumentStatus tracks a document through the ingestion lifecycle.
type DocumentStatus string

const (
	StatusPending   DocumentStatus = "pending"
	StatusChunking  DocumentStatus = "chunking"
	StatusEmbedding DocumentStatus = "embedding"
	StatusIndexed   DocumentStatus = "indexed"
	StatusFailed    DocumentStatus = "failed"
	StatusDeleted   DocumentStatus = "deleted"
)

// Document is one ingested unit of content, owned exclusively by its
// tenant's collection.
type Document struct {
	ID          string
	TenantID    string
	Source      string
	ContentHash string
	Status      DocumentStatus
	ChunkCount  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Chunk is a bounded slice of a document's text, the unit of indexing. An
// indexed chunk exists in both the vector and keyword index of its tenant.
type Chunk struct {
	ID         string
	DocumentID string
	TenantID   string
	Text       string
	Sequence   int
	Category   string
	Metadata   map[string]string
}
