package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"

	"github.com/insightpocket/insight-rag/internal/core/domain"
	"github.com/insightpocket/insight-rag/internal/core/ports/driven"
	"github.com/insightpocket/insight-rag/internal/logger"
)

var chunkColumns = []string{"chunk_id", "doc_id", "ordinal", "content", "embedding"}

// documentStore implements driven.DocumentStore.
type documentStore struct {
	store *Store
}

var _ driven.DocumentStore = (*documentStore)(nil)

// UpsertDocument inserts or fully replaces a document.
func (s *documentStore) UpsertDocument(ctx context.Context, doc *domain.Document) (*domain.Document, error) {
	stored := *doc
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	if _, err := s.store.pool.Exec(ctx, upsertDocumentSQL, documentArgs(&stored)...); err != nil {
		return nil, fmt.Errorf("saving document: %w", err)
	}
	return &stored, nil
}

// ReplaceChunks replaces the chunk set of an existing document.
func (s *documentStore) ReplaceChunks(ctx context.Context, docID string, chunks []domain.Chunk, mode domain.InsertMode) error {
	return s.replace(ctx, docID, chunks, mode, func(ctx context.Context, tx pgx.Tx) error {
		var exists int
		err := tx.QueryRow(ctx, "SELECT 1 FROM documents WHERE doc_id = $1", docID).Scan(&exists)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("document %s: %w", docID, domain.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("checking document: %w", err)
		}
		return nil
	})
}

// ReplaceDocument upserts the document and replaces its chunk set atomically.
func (s *documentStore) ReplaceDocument(ctx context.Context, doc *domain.Document, chunks []domain.Chunk, mode domain.InsertMode) error {
	stored := *doc
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	return s.replace(ctx, doc.ID, chunks, mode, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsertDocumentSQL, documentArgs(&stored)...); err != nil {
			return fmt.Errorf("saving document: %w", err)
		}
		return nil
	})
}

// replace runs prepare, deletes the current chunk set and inserts chunks in
// one transaction holding the document's advisory lock. A failed COPY is
// rolled back and retried once with row inserts.
func (s *documentStore) replace(
	ctx context.Context,
	docID string,
	chunks []domain.Chunk,
	mode domain.InsertMode,
	prepare func(context.Context, pgx.Tx) error,
) error {
	dim, err := domain.ValidateChunkSet(docID, chunks)
	if err != nil {
		return err
	}
	if dim > 0 && dim != s.store.dimensions {
		return fmt.Errorf("%w: chunks have %d, store has %d", domain.ErrDimensionMismatch, dim, s.store.dimensions)
	}

	insert := insertChunksSequential
	if mode == domain.InsertModeBatched {
		insert = insertChunksBatched
	}

	err = s.replaceTx(ctx, docID, chunks, prepare, insert)
	if err != nil && mode == domain.InsertModeBatched && ctx.Err() == nil && !errors.Is(err, domain.ErrNotFound) {
		logger.Warn("batched insert for %s failed, retrying sequentially: %v", docID, err)
		err = s.replaceTx(ctx, docID, chunks, prepare, insertChunksSequential)
	}
	return err
}

func (s *documentStore) replaceTx(
	ctx context.Context,
	docID string,
	chunks []domain.Chunk,
	prepare func(context.Context, pgx.Tx) error,
	insert func(context.Context, pgx.Tx, []domain.Chunk) error,
) error {
	tx, err := s.store.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", docID); err != nil {
		return fmt.Errorf("locking document: %w", err)
	}
	if err := prepare(ctx, tx); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "DELETE FROM chunks WHERE doc_id = $1", docID); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	if len(chunks) > 0 {
		if err := insert(ctx, tx, chunks); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// insertChunksSequential inserts one row at a time, updating any row that
// conflicts on chunk id.
func insertChunksSequential(ctx context.Context, tx pgx.Tx, chunks []domain.Chunk) error {
	for _, chunk := range chunks {
		if _, err := tx.Exec(ctx, upsertChunkSQL, chunkRow(chunk)...); err != nil {
			return fmt.Errorf("saving chunk %d: %w", chunk.Position, err)
		}
	}
	return nil
}

// insertChunksBatched streams the set with COPY. Any conflict aborts it.
func insertChunksBatched(ctx context.Context, tx pgx.Tx, chunks []domain.Chunk) error {
	n, err := tx.CopyFrom(ctx, pgx.Identifier{"chunks"}, chunkColumns,
		pgx.CopyFromSlice(len(chunks), func(i int) ([]any, error) {
			return chunkRow(chunks[i]), nil
		}))
	if err != nil {
		return fmt.Errorf("copying chunks: %w", err)
	}
	if int(n) != len(chunks) {
		return fmt.Errorf("copying chunks: wrote %d of %d rows", n, len(chunks))
	}
	return nil
}

func chunkRow(c domain.Chunk) []any {
	return []any{c.ID, c.DocumentID, c.Position, c.Content, pgvector.NewVector(c.Embedding)}
}

// GetDocument retrieves a document by ID.
func (s *documentStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := s.store.pool.QueryRow(ctx, `
		SELECT doc_id, doc_type, title, body, report_date, created_at
		FROM documents WHERE doc_id = $1
	`, id)

	return scanDocument(row)
}

// GetChunks retrieves all chunks for a document.
func (s *documentStore) GetChunks(ctx context.Context, docID string) ([]domain.Chunk, error) {
	rows, err := s.store.pool.Query(ctx, `
		SELECT chunk_id, doc_id, ordinal, content, embedding
		FROM chunks WHERE doc_id = $1
		ORDER BY ordinal
	`, docID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		var chunk domain.Chunk
		var vec pgvector.Vector
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Position, &chunk.Content, &vec); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		chunk.Embedding = vec.Slice()
		chunks = append(chunks, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	return chunks, nil
}

// DeleteDocument removes a document and, by cascade, its chunks.
func (s *documentStore) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.store.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", id); err != nil {
		return fmt.Errorf("locking document: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM documents WHERE doc_id = $1", id); err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// LatestDocument returns the most recently stored document of a type.
func (s *documentStore) LatestDocument(ctx context.Context, docType domain.DocType) (*domain.Document, error) {
	row := s.store.pool.QueryRow(ctx, `
		SELECT doc_id, doc_type, title, body, report_date, created_at
		FROM documents WHERE doc_type = $1
		ORDER BY created_at DESC, doc_id DESC
		LIMIT 1
	`, int16(docType))

	return scanDocument(row)
}

// ListDocuments returns documents matching the filter, newest first.
func (s *documentStore) ListDocuments(ctx context.Context, filter domain.SearchFilter) ([]domain.Document, error) {
	var p placeholders
	where := filterClause(filter, &p)
	rows, err := s.store.pool.Query(ctx, `
		SELECT d.doc_id, d.doc_type, d.title, '', d.report_date, d.created_at
		FROM documents d WHERE `+where+`
		ORDER BY d.created_at DESC, d.doc_id
	`, p.args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document //nolint:prealloc // size unknown from query
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}

	return docs, nil
}

// CheckConsistency reports orphaned chunks and non-contiguous positions.
func (s *documentStore) CheckConsistency(ctx context.Context) (*domain.ConsistencyReport, error) {
	report := &domain.ConsistencyReport{}

	if err := s.store.pool.QueryRow(ctx, "SELECT COUNT(*) FROM documents").Scan(&report.Documents); err != nil {
		return nil, fmt.Errorf("counting documents: %w", err)
	}
	if err := s.store.pool.QueryRow(ctx, "SELECT COUNT(*) FROM chunks").Scan(&report.Chunks); err != nil {
		return nil, fmt.Errorf("counting chunks: %w", err)
	}

	rows, err := s.store.pool.Query(ctx, `
		SELECT c.chunk_id
		FROM chunks c LEFT JOIN documents d ON d.doc_id = c.doc_id
		WHERE d.doc_id IS NULL
		ORDER BY c.doc_id, c.ordinal
	`)
	if err != nil {
		return nil, fmt.Errorf("querying orphaned chunks: %w", err)
	}
	report.OrphanChunks, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning orphaned chunks: %w", err)
	}

	// Only documents whose ordinals are not exactly 0..n-1.
	rows, err = s.store.pool.Query(ctx, `
		SELECT doc_id, array_agg(ordinal ORDER BY ordinal)
		FROM chunks
		GROUP BY doc_id
		HAVING MIN(ordinal) <> 0 OR MAX(ordinal) <> COUNT(*) - 1
		ORDER BY doc_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying ordinals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var gap domain.OrdinalGap
		var positions []int32
		if err := rows.Scan(&gap.DocumentID, &positions); err != nil {
			return nil, fmt.Errorf("scanning ordinals: %w", err)
		}
		for _, p := range positions {
			gap.Positions = append(gap.Positions, int(p))
		}
		report.OrdinalGaps = append(report.OrdinalGaps, gap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ordinals: %w", err)
	}

	return report, nil
}

const upsertDocumentSQL = `
	INSERT INTO documents (doc_id, doc_type, title, body, report_date, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (doc_id) DO UPDATE SET
		doc_type = EXCLUDED.doc_type,
		title = EXCLUDED.title,
		body = EXCLUDED.body,
		report_date = EXCLUDED.report_date,
		created_at = EXCLUDED.created_at
`

const upsertChunkSQL = `
	INSERT INTO chunks (chunk_id, doc_id, ordinal, content, embedding)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (chunk_id) DO UPDATE SET
		doc_id = EXCLUDED.doc_id,
		ordinal = EXCLUDED.ordinal,
		content = EXCLUDED.content,
		embedding = EXCLUDED.embedding
`

func documentArgs(doc *domain.Document) []any {
	return []any{doc.ID, int16(doc.Type), doc.Title, doc.Body, dateArg(doc.ReportDate), doc.CreatedAt.UTC()}
}

// scanDocument scans a single document row.
func scanDocument(row pgx.Row) (*domain.Document, error) {
	var doc domain.Document
	var docType int16
	var reportDate pgtype.Date

	if err := row.Scan(&doc.ID, &docType, &doc.Title, &doc.Body, &reportDate, &doc.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	doc.Type = domain.DocType(docType)
	doc.ReportDate = dateValue(reportDate)
	doc.CreatedAt = doc.CreatedAt.UTC()

	return &doc, nil
}
