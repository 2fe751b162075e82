// Package storage persists tenant manifests, documents, chunks, and
// embeddings to SQLite so the engine restarts without replaying ingestion.
// The manifest's version column is the authoritative tenant version.
//
// Two build configurations are supported: the default pure-Go driver
// (modernc.org/sqlite) and a CGO build using mattn/go-sqlite3. See
// build_purego.go and build_cgo.go.
package storage
