package driven

import (
	"context"

	"github.com/insightpocket/insight-rag/internal/core/domain"
)

// VectorSearcher finds the stored chunks nearest to a query vector.
// Implementations may push the distance computation into the storage
// engine or compute it in-process.
type VectorSearcher interface {
	// NearestChunks returns at most k chunks of documents matching filter,
	// ordered by domain.SortHits. The filter is applied before ranking and
	// before the limit. Distance and Similarity are set; Rank is not.
	NearestChunks(ctx context.Context, query []float32, filter domain.SearchFilter, k int) ([]domain.RetrievalResult, error)

	// EmbeddingDimension returns the dimension of the stored embeddings,
	// or zero when no chunk has been stored.
	EmbeddingDimension(ctx context.Context) (int, error)
}
