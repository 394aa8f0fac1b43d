package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/insightpocket/insight-rag/internal/core/domain"
	"github.com/insightpocket/insight-rag/internal/core/ports/driven"
	"github.com/insightpocket/insight-rag/internal/logger"
)

// batchRows bounds the rows of one multi-row INSERT to stay under
// SQLite's host parameter limit.
const batchRows = 500

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

	if _, err := s.store.db.ExecContext(ctx, upsertDocumentSQL, documentArgs(&stored)...); err != nil {
		return nil, fmt.Errorf("saving document: %w", err)
	}
	return &stored, nil
}

// ReplaceChunks replaces the chunk set of an existing document.
func (s *documentStore) ReplaceChunks(ctx context.Context, docID string, chunks []domain.Chunk, mode domain.InsertMode) error {
	return s.replace(ctx, docID, chunks, mode, func(ctx context.Context, tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM documents WHERE doc_id = ?", docID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
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
	return s.replace(ctx, doc.ID, chunks, mode, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, upsertDocumentSQL, documentArgs(&stored)...); err != nil {
			return fmt.Errorf("saving document: %w", err)
		}
		return nil
	})
}

// replace runs prepare, deletes the current chunk set and inserts chunks,
// all in one transaction under the document lock. A failed batched insert
// is rolled back and retried once in sequential mode.
func (s *documentStore) replace(
	ctx context.Context,
	docID string,
	chunks []domain.Chunk,
	mode domain.InsertMode,
	prepare func(context.Context, *sql.Tx) error,
) error {
	dim, err := domain.ValidateChunkSet(docID, chunks)
	if err != nil {
		return err
	}

	unlock := s.store.locks.Lock(docID)
	defer unlock()

	insert := s.store.insertSequential
	if mode == domain.InsertModeBatched {
		insert = s.store.insertBatched
	}

	err = s.replaceTx(ctx, docID, dim, chunks, prepare, insert)
	if err != nil && mode == domain.InsertModeBatched && ctx.Err() == nil &&
		!errors.Is(err, domain.ErrNotFound) && !errors.Is(err, domain.ErrDimensionMismatch) {
		logger.Warn("batched insert for %s failed, retrying sequentially: %v", docID, err)
		err = s.replaceTx(ctx, docID, dim, chunks, prepare, s.store.insertSequential)
	}
	return err
}

// replaceTx checks the stored embedding dimension inside the transaction.
// Write transactions begin immediately, so no other writer can commit a
// different dimension between the check and the insert.
func (s *documentStore) replaceTx(
	ctx context.Context,
	docID string,
	dim int,
	chunks []domain.Chunk,
	prepare func(context.Context, *sql.Tx) error,
	insert func(context.Context, *sql.Tx, []domain.Chunk) error,
) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if dim > 0 {
		stored, err := storedDimension(ctx, tx, docID)
		if err != nil {
			return err
		}
		if stored != 0 && stored != dim {
			return fmt.Errorf("%w: chunks have %d, store has %d", domain.ErrDimensionMismatch, dim, stored)
		}
	}

	if err := prepare(ctx, tx); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE doc_id = ?", docID); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	if len(chunks) > 0 {
		if err := insert(ctx, tx, chunks); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// storedDimension returns the embedding dimension of chunks belonging to
// other documents, or zero when there are none.
func storedDimension(ctx context.Context, tx *sql.Tx, excludeDocID string) (int, error) {
	var n sql.NullInt64
	err := tx.QueryRowContext(ctx,
		"SELECT length(embedding) / 4 FROM chunks WHERE doc_id <> ? LIMIT 1", excludeDocID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading embedding dimension: %w", err)
	}
	return int(n.Int64), nil
}

// insertChunksSequential inserts one row at a time, replacing any row that
// conflicts on chunk id or (doc_id, ordinal).
func insertChunksSequential(ctx context.Context, tx *sql.Tx, chunks []domain.Chunk) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks (chunk_id, doc_id, ordinal, content, embedding)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		if _, err := stmt.ExecContext(ctx, chunk.ID, chunk.DocumentID, chunk.Position,
			chunk.Content, float32SliceToBytes(chunk.Embedding)); err != nil {
			return fmt.Errorf("saving chunk %d: %w", chunk.Position, err)
		}
	}
	return nil
}

// insertChunksBatched inserts the set with multi-row INSERT statements.
// Any conflict aborts the statement.
func insertChunksBatched(ctx context.Context, tx *sql.Tx, chunks []domain.Chunk) error {
	for start := 0; start < len(chunks); start += batchRows {
		end := min(start+batchRows, len(chunks))
		batch := chunks[start:end]

		var b strings.Builder
		b.WriteString("INSERT INTO chunks (chunk_id, doc_id, ordinal, content, embedding) VALUES ")
		args := make([]any, 0, len(batch)*5)
		for i, chunk := range batch {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("(?, ?, ?, ?, ?)")
			args = append(args, chunk.ID, chunk.DocumentID, chunk.Position,
				chunk.Content, float32SliceToBytes(chunk.Embedding))
		}

		if _, err := tx.ExecContext(ctx, b.String(), args...); err != nil {
			return fmt.Errorf("batch inserting chunks: %w", err)
		}
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *documentStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT doc_id, doc_type, title, body, report_date, created_at
		FROM documents WHERE doc_id = ?
	`, id)

	return scanDocument(row)
}

// GetChunks retrieves all chunks for a document.
func (s *documentStore) GetChunks(ctx context.Context, docID string) ([]domain.Chunk, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT chunk_id, doc_id, ordinal, content, embedding
		FROM chunks WHERE doc_id = ?
		ORDER BY ordinal
	`, docID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		var chunk domain.Chunk
		var blob []byte
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Position, &chunk.Content, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		chunk.Embedding = bytesToFloat32Slice(blob)
		chunks = append(chunks, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	return chunks, nil
}

// DeleteDocument removes a document and its chunks.
func (s *documentStore) DeleteDocument(ctx context.Context, id string) error {
	unlock := s.store.locks.Lock(id)
	defer unlock()

	_, err := s.store.db.ExecContext(ctx, "DELETE FROM documents WHERE doc_id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

// LatestDocument returns the most recently stored document of a type.
func (s *documentStore) LatestDocument(ctx context.Context, docType domain.DocType) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT doc_id, doc_type, title, body, report_date, created_at
		FROM documents WHERE doc_type = ?
		ORDER BY created_at DESC, doc_id DESC
		LIMIT 1
	`, int(docType))

	return scanDocument(row)
}

// ListDocuments returns documents matching the filter, newest first.
func (s *documentStore) ListDocuments(ctx context.Context, filter domain.SearchFilter) ([]domain.Document, error) {
	where, args := filterClause(filter)
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT d.doc_id, d.doc_type, d.title, '', d.report_date, d.created_at
		FROM documents d WHERE `+where+`
		ORDER BY d.created_at DESC, d.doc_id
	`, args...)
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

	if err := s.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&report.Documents); err != nil {
		return nil, fmt.Errorf("counting documents: %w", err)
	}

	rows, err := s.store.db.QueryContext(ctx, `
		SELECT c.chunk_id, c.doc_id, c.ordinal, d.doc_id IS NULL
		FROM chunks c LEFT JOIN documents d ON d.doc_id = c.doc_id
		ORDER BY c.doc_id, c.ordinal
	`)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	positions := make(map[string][]int)
	var order []string
	for rows.Next() {
		var chunkID, docID string
		var ordinal int
		var orphan bool
		if err := rows.Scan(&chunkID, &docID, &ordinal, &orphan); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		report.Chunks++
		if orphan {
			report.OrphanChunks = append(report.OrphanChunks, chunkID)
			continue
		}
		if _, ok := positions[docID]; !ok {
			order = append(order, docID)
		}
		positions[docID] = append(positions[docID], ordinal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	for _, docID := range order {
		if !domain.ContiguousFromZero(positions[docID]) {
			report.OrdinalGaps = append(report.OrdinalGaps, domain.OrdinalGap{DocumentID: docID, Positions: positions[docID]})
		}
	}

	return report, nil
}

const upsertDocumentSQL = `
	INSERT INTO documents (doc_id, doc_type, title, body, report_date, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(doc_id) DO UPDATE SET
		doc_type = excluded.doc_type,
		title = excluded.title,
		body = excluded.body,
		report_date = excluded.report_date,
		created_at = excluded.created_at
`

func documentArgs(doc *domain.Document) []any {
	return []any{doc.ID, int(doc.Type), doc.Title, doc.Body, dateToNull(doc.ReportDate), doc.CreatedAt.UTC()}
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanDocument scans a single document row.
func scanDocument(row scanner) (*domain.Document, error) {
	var doc domain.Document
	var docType int
	var reportDate sql.NullString

	if err := row.Scan(&doc.ID, &docType, &doc.Title, &doc.Body, &reportDate, &doc.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	doc.Type = domain.DocType(docType)
	date, err := nullToDate(reportDate)
	if err != nil {
		return nil, err
	}
	doc.ReportDate = date

	return &doc, nil
}
