// Package sqlite provides a SQLite-based implementation of the document store
// and vector search ports.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. Through a single database connection it
// implements:
//
//   - DocumentStore: Document and chunk persistence with atomic chunk replacement
//   - VectorSearcher: Filtered cosine search, computed in-process over stored embeddings
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
// Embeddings are stored as little-endian float32 BLOBs.
//
// # Data Location
//
// By default, the database is stored at ~/.insight-rag/data/reports.db
//
// # Thread Safety
//
// All operations are thread-safe. Readers never block in WAL mode. Chunk
// replacement takes a per-document lock and runs in one immediate transaction.
package sqlite
