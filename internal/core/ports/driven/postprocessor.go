package driven

import (
	"context"

	"github.com/insightpocket/insight-rag/internal/core/domain"
)

// PostProcessor turns a document into an ordered set of chunks.
type PostProcessor interface {
	// Name returns the processor name for logging and configuration.
	Name() string

	// Process splits the document body into chunks in reading order with
	// positions from 0 and deterministic ids. Embeddings are left empty.
	Process(ctx context.Context, doc *domain.Document) ([]domain.Chunk, error)
}
