package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/insightpocket/insight-rag/internal/core/domain"
	"github.com/insightpocket/insight-rag/internal/core/ports/driven"
)

// vectorSearcher implements driven.VectorSearcher.
// SQLite has no vector type, so distances are computed in-process over the
// chunks that pass the metadata filter.
type vectorSearcher struct {
	store *Store
}

var _ driven.VectorSearcher = (*vectorSearcher)(nil)

// NearestChunks returns the k chunks closest to query among filtered documents.
func (s *vectorSearcher) NearestChunks(ctx context.Context, query []float32, filter domain.SearchFilter, k int) ([]domain.RetrievalResult, error) {
	if k <= 0 {
		return nil, nil
	}

	where, args := filterClause(filter)
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT c.chunk_id, c.doc_id, c.ordinal, c.content, c.embedding,
		       d.doc_type, d.title, d.report_date
		FROM chunks c JOIN documents d ON d.doc_id = c.doc_id
		WHERE `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var hits []domain.RetrievalResult
	for rows.Next() {
		var hit domain.RetrievalResult
		var blob []byte
		var docType int
		var reportDate sql.NullString
		if err := rows.Scan(&hit.Chunk.ID, &hit.Chunk.DocumentID, &hit.Chunk.Position, &hit.Chunk.Content,
			&blob, &docType, &hit.Document.Title, &reportDate); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}

		emb := bytesToFloat32Slice(blob)
		if err := domain.CheckDimension(emb, len(query)); err != nil {
			return nil, fmt.Errorf("chunk %s: %w", hit.Chunk.ID, err)
		}

		hit.Document.ID = hit.Chunk.DocumentID
		hit.Document.Type = domain.DocType(docType)
		if hit.Document.ReportDate, err = nullToDate(reportDate); err != nil {
			return nil, err
		}
		hit.Distance = domain.CosineDistance(query, emb)
		hit.Similarity = 1 - hit.Distance
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	domain.SortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// EmbeddingDimension returns the dimension of stored embeddings.
func (s *vectorSearcher) EmbeddingDimension(ctx context.Context) (int, error) {
	var n int
	err := s.store.db.QueryRowContext(ctx, "SELECT length(embedding) / 4 FROM chunks LIMIT 1").Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading embedding dimension: %w", err)
	}
	return n, nil
}
