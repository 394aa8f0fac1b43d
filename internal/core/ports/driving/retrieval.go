package driving

import (
	"context"

	"github.com/insightpocket/insight-rag/internal/core/domain"
)

// RetrievalService is the single entry point to stored reports.
// Nothing outside the core reaches the store or the search engine directly.
type RetrievalService interface {
	// Ingest chunks, embeds and stores a document, replacing any previous
	// version. On failure the previous version stays queryable.
	Ingest(ctx context.Context, req domain.IngestRequest) (*domain.IngestResult, error)

	// RetrieveContext assembles a bounded context grounded on past reports.
	// Only request validation errors are returned; retrieval failures
	// degrade the result instead.
	RetrieveContext(ctx context.Context, req domain.ContextRequest) (*domain.ContextResult, error)

	// Search returns ranked excerpts for a query.
	Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResponse, error)

	// GetDocument retrieves a stored document by ID.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// DeleteDocument removes a document and its chunks.
	DeleteDocument(ctx context.Context, id string) error

	// LatestDocument returns the most recently stored document of a type.
	LatestDocument(ctx context.Context, docType domain.DocType) (*domain.Document, error)

	// ListDocuments returns stored documents matching the filter.
	ListDocuments(ctx context.Context, filter domain.SearchFilter) ([]domain.Document, error)

	// RuleDocument returns the body of the current RULE document.
	RuleDocument(ctx context.Context) (string, error)

	// Verify checks the store invariants and returns a consistency error
	// when any is violated.
	Verify(ctx context.Context) (*domain.ConsistencyReport, error)
}
