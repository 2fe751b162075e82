package types

import "errors"

// Sentinel errors for the retrieval engine. Callers classify failures with
// errors.Is; intermediate layers wrap these with fmt.Errorf("...: %w", err).
var (
	// ErrEmptyContent is returned when an ingest request carries no usable
	// text. It is never retried.
	ErrEmptyContent = errors.New("content is empty")

	// ErrEmbedding indicates the embedding backend failed after the retry
	// budget was exhausted.
	ErrEmbedding = errors.New("embedding failed")

	// ErrQueryEmbedding indicates the query text itself could not be
	// embedded. Keyword-mode queries are unaffected by this condition.
	ErrQueryEmbedding = errors.New("query embedding failed")

	// ErrIndexCorrupt indicates index corruption or an isolation violation.
	// Fatal for the affected operation and logged as security relevant.
	ErrIndexCorrupt = errors.New("index corruption detected")

	// ErrTenantNotFound is returned when an operation references a tenant
	// that was never created or has been deleted.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrDimensionMismatch is returned when a tenant's stored embedding
	// dimension differs from the one requested.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrQueryTimeout is returned when a query exceeds its deadline. Partial
	// results are never returned in its place.
	ErrQueryTimeout = errors.New("query timed out")

	// ErrCacheUnavailable marks a cache backend failure. It never reaches
	// callers of Query; the cache degrades to live execution instead.
	ErrCacheUnavailable = errors.New("cache backend unavailable")

	// ErrInvalidRequest is returned for malformed query parameters such as
	// an alpha outside [0,1] or an unknown mode.
	ErrInvalidRequest = errors.New("invalid request")
)
