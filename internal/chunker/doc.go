// Package chunker splits raw document text into overlapping windows sized
// for embedding and lexical indexing. Chunking is deterministic: identical
// input and parameters always produce identical windows, which is what makes
// re-ingestion idempotent.
package chunker
