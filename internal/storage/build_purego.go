//go:build !cgo_sqlite

package storage

// Compiled when building without the cgo_sqlite tag. Uses the pure Go
// SQLite implementation: no C compiler required, cross-compiles cleanly.
//
// Build command:
//   CGO_ENABLED=0 go build ./...

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the database/sql driver to use.
	DriverName = "sqlite"

	// BuildMode describes the current build configuration.
	BuildMode = "purego"
)
