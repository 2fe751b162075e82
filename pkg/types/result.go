package types

// QueryMode selects the retrieval strategy for one query.
type QueryMode string

const (
	ModeVector  QueryMode = "vector"
	ModeKeyword QueryMode = "keyword"
	ModeHybrid  QueryMode = "hybrid"
)

// Valid reports whether m is a known query mode.
func (m QueryMode) Valid() bool {
	switch m {
	case ModeVector, ModeKeyword, ModeHybrid:
		return true
	}
	return false
}

// ScoredResult is the single normalized result shape produced by the query
// engine. Score is in [0,1] with 1 best, regardless of the retrieval mode
// that produced it; raw mode-specific scores never leave the engine.
type ScoredResult struct {
	ChunkID  string            `json:"chunk_id"`
	Content  string            `json:"content"`
	Source   string            `json:"source"`
	Category string            `json:"category,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Score    float64           `json:"score"`
}

// Statistics summarizes one tenant's collection for the stats endpoint.
type Statistics struct {
	TenantID          string         `json:"tenant_id"`
	DocumentCount     int            `json:"document_count"`
	ChunkCount        int            `json:"chunk_count"`
	CategoryBreakdown map[string]int `json:"category_breakdown"`
	CacheHitRate      float64        `json:"cache_hit_rate"`
	EmbeddingModel    string         `json:"embedding_model"`
	Version           uint64         `json:"version"`
}
