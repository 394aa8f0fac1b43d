package driven

import (
	"context"

	"github.com/insightpocket/insight-rag/internal/core/domain"
)

// DocumentStore persists documents and their chunk sets.
//
// A document's chunks are only ever replaced as a complete set. Replacement
// is serialised per document id and runs in one transaction, so concurrent
// readers observe either the old or the new set, never a mixture.
type DocumentStore interface {
	// UpsertDocument inserts or fully replaces a document's metadata and body.
	// CreatedAt is set by the store when zero.
	UpsertDocument(ctx context.Context, doc *domain.Document) (*domain.Document, error)

	// ReplaceChunks deletes the document's chunk set and inserts chunks in its place.
	// Returns domain.ErrNotFound if the document does not exist.
	// On failure the previous chunk set is left intact.
	ReplaceChunks(ctx context.Context, docID string, chunks []domain.Chunk, mode domain.InsertMode) error

	// ReplaceDocument upserts the document and replaces its chunk set in a
	// single transaction. On failure the previous version is left intact.
	ReplaceDocument(ctx context.Context, doc *domain.Document, chunks []domain.Chunk, mode domain.InsertMode) error

	// GetDocument retrieves a document by ID.
	// Returns domain.ErrNotFound if it does not exist.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// GetChunks retrieves all chunks for a document ordered by position.
	GetChunks(ctx context.Context, docID string) ([]domain.Chunk, error)

	// DeleteDocument removes a document and its chunks.
	DeleteDocument(ctx context.Context, id string) error

	// LatestDocument returns the most recently stored document of a type.
	// Returns domain.ErrNotFound if none exists.
	LatestDocument(ctx context.Context, docType domain.DocType) (*domain.Document, error)

	// ListDocuments returns documents matching the filter, newest first.
	// Bodies are not populated.
	ListDocuments(ctx context.Context, filter domain.SearchFilter) ([]domain.Document, error)

	// CheckConsistency reports orphaned chunks and non-contiguous positions.
	CheckConsistency(ctx context.Context) (*domain.ConsistencyReport, error)
}
