// Package file provides the file-based settings store.
//
// Settings are read from a TOML file, or from YAML when the path ends in
// .yaml or .yml. Keys are addressed in dot notation ("retrieval.top_k").
// Secrets missing from the file are taken from the environment:
// OPENAI_API_KEY and GEMINI_API_KEY for the embedding provider and
// DATABASE_URL for the Postgres backend.
package file
