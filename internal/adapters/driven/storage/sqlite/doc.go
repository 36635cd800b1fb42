// Package sqlite provides a SQLite-backed implementation of driven.MetadataIndex.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. It is selected with
// storage.index_backend = "sqlite" and holds the same entries as the JSON
// snapshot index, so the two can be swapped with index export/import.
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory as NNN_name.up.sql files.
//
// # Data Location
//
// The database is stored at <root>/.flcm/index.db.
//
// # Thread Safety
//
// All operations are safe for concurrent use. Read-modify-write updates are
// serialised by a store-level mutex and run in a single transaction.
package sqlite
