// Package postgres provides a PostgreSQL implementation of the document store
// and vector search ports using the pgvector extension.
//
// Connections come from a jackc/pgx/v5 pool whose connections have the
// pgvector types registered. Embeddings live in a vector(N) column, where N
// is fixed at migration time, and nearest-neighbour search runs in the
// database with the cosine distance operator (<=>). Filters are applied in the
// same query, before ordering and LIMIT.
//
// Chunk replacement takes a transaction-scoped advisory lock on the document
// id, so concurrent ingestion of the same document is serialised across
// processes while readers see the old or new chunk set through MVCC.
package postgres
