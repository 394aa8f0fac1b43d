// Package domain defines the core business entities for insight-rag.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: A stored report (RULE, DAILY or CUSTOM) with its full body
//   - Chunk: An embedded excerpt of a document, the unit of retrieval
//   - RetrievalResult: A ranked chunk returned by similarity search
//   - ContextBlock: The size-bounded context assembled for a query
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
