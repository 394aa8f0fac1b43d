package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"

	"github.com/insightpocket/insight-rag/internal/core/domain"
	"github.com/insightpocket/insight-rag/internal/core/ports/driven"
)

// vectorSearcher implements driven.VectorSearcher with the pgvector
// cosine distance operator.
type vectorSearcher struct {
	store *Store
}

var _ driven.VectorSearcher = (*vectorSearcher)(nil)

// NearestChunks returns the k chunks closest to query among filtered documents.
func (s *vectorSearcher) NearestChunks(ctx context.Context, query []float32, filter domain.SearchFilter, k int) ([]domain.RetrievalResult, error) {
	if k <= 0 {
		return nil, nil
	}
	// pgvector rejects mixed dimensions with a generic error.
	if err := domain.CheckDimension(query, s.store.dimensions); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	sql, args := nearestQuery(query, filter, k)
	rows, err := s.store.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var hits []domain.RetrievalResult
	for rows.Next() {
		var hit domain.RetrievalResult
		var docType int16
		var reportDate pgtype.Date
		if err := rows.Scan(&hit.Chunk.ID, &hit.Chunk.DocumentID, &hit.Chunk.Position, &hit.Chunk.Content,
			&docType, &hit.Document.Title, &reportDate, &hit.Distance); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		hit.Document.ID = hit.Chunk.DocumentID
		hit.Document.Type = domain.DocType(docType)
		hit.Document.ReportDate = dateValue(reportDate)
		hit.Similarity = 1 - hit.Distance
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	// Distances come back as float8; re-sort so ties break exactly as in
	// the other adapters.
	domain.SortHits(hits)
	return hits, nil
}

// nearestQuery builds the filtered nearest-neighbour query. The ORDER BY
// mirrors domain.SortHits so LIMIT keeps the same rows. The secondary sort
// keys keep the planner off the approximate HNSW index, so the result is
// exact even under selective filters.
func nearestQuery(query []float32, filter domain.SearchFilter, k int) (string, []any) {
	var p placeholders
	vec := p.add(pgvector.NewVector(query))
	where := filterClause(filter, &p)
	limit := p.add(k)

	sql := `
		SELECT c.chunk_id, c.doc_id, c.ordinal, c.content,
		       d.doc_type, d.title, d.report_date,
		       c.embedding <=> ` + vec + ` AS distance
		FROM chunks c JOIN documents d ON d.doc_id = c.doc_id
		WHERE ` + where + `
		ORDER BY distance, d.report_date DESC NULLS LAST, c.doc_id, c.ordinal
		LIMIT ` + limit
	return sql, p.args
}

// EmbeddingDimension returns the dimension of stored embeddings.
func (s *vectorSearcher) EmbeddingDimension(ctx context.Context) (int, error) {
	var n int32
	err := s.store.pool.QueryRow(ctx, "SELECT vector_dims(embedding) FROM chunks LIMIT 1").Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading embedding dimension: %w", err)
	}
	return int(n), nil
}
