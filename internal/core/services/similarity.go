package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/insightpocket/insight-rag/internal/core/domain"
	"github.com/insightpocket/insight-rag/internal/core/ports/driven"
	"github.com/insightpocket/insight-rag/internal/logger"
)

// SimilaritySearch ranks stored chunks against a query vector.
type SimilaritySearch struct {
	vectors driven.VectorSearcher
	timeout time.Duration
}

// NewSimilaritySearch creates a search over vectors. Each search is bounded
// by timeout; zero means no bound beyond the caller's context.
func NewSimilaritySearch(vectors driven.VectorSearcher, timeout time.Duration) *SimilaritySearch {
	return &SimilaritySearch{vectors: vectors, timeout: timeout}
}

// Search returns at most topK chunks whose similarity is at least
// minSimilarity, ranked by ascending cosine distance. An empty result is
// not an error.
func (s *SimilaritySearch) Search(
	ctx context.Context,
	query []float32,
	filter domain.SearchFilter,
	topK int,
	minSimilarity float64,
) ([]domain.RetrievalResult, error) {
	if len(query) == 0 {
		return nil, domain.NewValidationError("search", fmt.Errorf("%w: empty query vector", domain.ErrInvalidInput))
	}
	if topK <= 0 {
		return nil, domain.NewValidationError("search", fmt.Errorf("%w: top_k must be positive", domain.ErrInvalidInput))
	}
	if err := filter.Validate(); err != nil {
		return nil, domain.NewValidationError("search", err)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	dim, err := s.vectors.EmbeddingDimension(ctx)
	if err != nil {
		return nil, storeError("search", err)
	}
	if dim == 0 {
		logger.Debug("search: store is empty")
		return []domain.RetrievalResult{}, nil
	}
	if err := domain.CheckDimension(query, dim); err != nil {
		return nil, domain.NewValidationError("search", err)
	}

	hits, err := s.vectors.NearestChunks(ctx, query, filter, topK)
	if err != nil {
		return nil, storeError("search", err)
	}
	logger.Debug("search: %d nearest chunks", len(hits))

	results := make([]domain.RetrievalResult, 0, len(hits))
	for _, hit := range hits {
		// Hits arrive by ascending distance, so similarity only decreases.
		if hit.Similarity < minSimilarity {
			break
		}
		results = append(results, hit)
	}
	domain.RankHits(results)
	logger.Debug("search: %d results at similarity >= %.2f", len(results), minSimilarity)

	return results, nil
}

// storeError classifies an unclassified store failure. Mixed embedding
// dimensions in the store are a consistency failure; anything else is
// treated as retryable.
func storeError(op string, err error) error {
	var classified *domain.Error
	switch {
	case errors.As(err, &classified):
		return err
	case errors.Is(err, domain.ErrDimensionMismatch):
		return domain.NewConsistencyError(op, err)
	case errors.Is(err, domain.ErrInvalidInput):
		return domain.NewValidationError(op, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return domain.NewTransientError(op, err)
	}
}
