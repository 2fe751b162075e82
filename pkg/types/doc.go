// Package types contains the shared data model and error taxonomy for the
// retrieval engine: documents, chunks, scored results, and the sentinel
// errors returned by the public operations.
package types
