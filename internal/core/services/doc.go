// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// RAGService owns the ingestion and retrieval pipelines. The similarity
// ranking and context assembly it delegates to are plain functions in this
// package so they can be tested without any store or embedder.
package services
