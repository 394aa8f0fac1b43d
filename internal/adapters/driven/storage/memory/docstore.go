// Package memory provides in-memory implementations of the storage ports.
// It backs tests and the --store memory mode; nothing survives the process.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/insightpocket/insight-rag/internal/core/domain"
	"github.com/insightpocket/insight-rag/internal/core/ports/driven"
)

// Ensure DocumentStore implements the interfaces.
var (
	_ driven.DocumentStore  = (*DocumentStore)(nil)
	_ driven.VectorSearcher = (*DocumentStore)(nil)
)

// snapshot is an immutable view of the store. Writers publish a new one.
type snapshot struct {
	documents map[string]domain.Document
	chunks    map[string][]domain.Chunk
}

// DocumentStore is an in-memory implementation of driven.DocumentStore and
// driven.VectorSearcher. Reads load the current snapshot without locking;
// writes are serialised and swap in a modified copy, so a reader sees a
// document's old or new chunk set, never a mixture.
type DocumentStore struct {
	writeMu sync.Mutex
	current atomic.Pointer[snapshot]

	// now is replaceable in tests.
	now func() time.Time
}

// NewDocumentStore creates a new in-memory document store.
func NewDocumentStore() *DocumentStore {
	s := &DocumentStore{now: func() time.Time { return time.Now().UTC() }}
	s.current.Store(&snapshot{
		documents: make(map[string]domain.Document),
		chunks:    make(map[string][]domain.Chunk),
	})
	return s
}

func (s *DocumentStore) load() *snapshot {
	return s.current.Load()
}

// update applies fn to a copy of the current snapshot and publishes it
// if fn succeeds.
func (s *DocumentStore) update(fn func(next *snapshot) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.load()
	next := &snapshot{
		documents: maps.Clone(cur.documents),
		chunks:    maps.Clone(cur.chunks),
	}
	if err := fn(next); err != nil {
		return err
	}
	s.current.Store(next)
	return nil
}

// UpsertDocument stores or fully replaces a document.
func (s *DocumentStore) UpsertDocument(_ context.Context, doc *domain.Document) (*domain.Document, error) {
	stored := *doc
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}
	err := s.update(func(next *snapshot) error {
		next.documents[stored.ID] = stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// ReplaceChunks replaces the chunk set of an existing document.
// Both insert modes behave the same in memory.
func (s *DocumentStore) ReplaceChunks(_ context.Context, docID string, chunks []domain.Chunk, _ domain.InsertMode) error {
	dim, err := domain.ValidateChunkSet(docID, chunks)
	if err != nil {
		return err
	}
	return s.update(func(next *snapshot) error {
		if _, ok := next.documents[docID]; !ok {
			return fmt.Errorf("document %s: %w", docID, domain.ErrNotFound)
		}
		if err := checkStoredDimension(next, docID, dim); err != nil {
			return err
		}
		setChunks(next, docID, chunks)
		return nil
	})
}

// ReplaceDocument upserts the document and replaces its chunk set atomically.
func (s *DocumentStore) ReplaceDocument(_ context.Context, doc *domain.Document, chunks []domain.Chunk, _ domain.InsertMode) error {
	dim, err := domain.ValidateChunkSet(doc.ID, chunks)
	if err != nil {
		return err
	}
	stored := *doc
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}
	return s.update(func(next *snapshot) error {
		if err := checkStoredDimension(next, doc.ID, dim); err != nil {
			return err
		}
		next.documents[stored.ID] = stored
		setChunks(next, stored.ID, chunks)
		return nil
	})
}

func setChunks(next *snapshot, docID string, chunks []domain.Chunk) {
	if len(chunks) == 0 {
		delete(next.chunks, docID)
		return
	}
	cp := make([]domain.Chunk, len(chunks))
	for i, c := range chunks {
		c.Embedding = slices.Clone(c.Embedding)
		cp[i] = c
	}
	next.chunks[docID] = cp
}

// checkStoredDimension rejects dim if chunks of other documents differ.
func checkStoredDimension(snap *snapshot, docID string, dim int) error {
	if dim == 0 {
		return nil
	}
	for id, chunks := range snap.chunks {
		if id == docID || len(chunks) == 0 {
			continue
		}
		if stored := len(chunks[0].Embedding); stored != dim {
			return fmt.Errorf("%w: chunks have %d, store has %d", domain.ErrDimensionMismatch, dim, stored)
		}
		return nil
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *DocumentStore) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	doc, ok := s.load().documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &doc, nil
}

// GetChunks retrieves all chunks for a document.
func (s *DocumentStore) GetChunks(_ context.Context, docID string) ([]domain.Chunk, error) {
	return slices.Clone(s.load().chunks[docID]), nil
}

// DeleteDocument removes a document and its chunks.
func (s *DocumentStore) DeleteDocument(_ context.Context, id string) error {
	return s.update(func(next *snapshot) error {
		delete(next.documents, id)
		delete(next.chunks, id)
		return nil
	})
}

// LatestDocument returns the most recently stored document of a type.
func (s *DocumentStore) LatestDocument(_ context.Context, docType domain.DocType) (*domain.Document, error) {
	var latest *domain.Document
	for _, doc := range s.load().documents {
		if doc.Type != docType {
			continue
		}
		if latest == nil || doc.CreatedAt.After(latest.CreatedAt) ||
			(doc.CreatedAt.Equal(latest.CreatedAt) && doc.ID > latest.ID) {
			d := doc
			latest = &d
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	return latest, nil
}

// ListDocuments returns documents matching the filter, newest first.
func (s *DocumentStore) ListDocuments(_ context.Context, filter domain.SearchFilter) ([]domain.Document, error) {
	var docs []domain.Document
	for _, doc := range s.load().documents {
		if !filter.Matches(doc.Type, doc.ReportDate) {
			continue
		}
		doc.Body = ""
		docs = append(docs, doc)
	}
	slices.SortFunc(docs, func(a, b domain.Document) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return docs, nil
}

// CheckConsistency reports orphaned chunks and non-contiguous positions.
func (s *DocumentStore) CheckConsistency(_ context.Context) (*domain.ConsistencyReport, error) {
	snap := s.load()
	report := &domain.ConsistencyReport{Documents: len(snap.documents)}

	for _, docID := range slices.Sorted(maps.Keys(snap.chunks)) {
		chunks := snap.chunks[docID]
		report.Chunks += len(chunks)
		if _, ok := snap.documents[docID]; !ok {
			for _, c := range chunks {
				report.OrphanChunks = append(report.OrphanChunks, c.ID)
			}
			continue
		}
		positions := make([]int, len(chunks))
		for i, c := range chunks {
			positions[i] = c.Position
		}
		slices.Sort(positions)
		if !domain.ContiguousFromZero(positions) {
			report.OrdinalGaps = append(report.OrdinalGaps, domain.OrdinalGap{DocumentID: docID, Positions: positions})
		}
	}
	return report, nil
}

// NearestChunks computes cosine distances over chunks of matching documents.
func (s *DocumentStore) NearestChunks(ctx context.Context, query []float32, filter domain.SearchFilter, k int) ([]domain.RetrievalResult, error) {
	if k <= 0 {
		return nil, nil
	}
	snap := s.load()

	var hits []domain.RetrievalResult
	for docID, chunks := range snap.chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, ok := snap.documents[docID]
		if !ok || !filter.Matches(doc.Type, doc.ReportDate) {
			continue
		}
		for _, c := range chunks {
			if err := domain.CheckDimension(c.Embedding, len(query)); err != nil {
				return nil, fmt.Errorf("chunk %s: %w", c.ID, err)
			}
			dist := domain.CosineDistance(query, c.Embedding)
			c.Embedding = nil
			hits = append(hits, domain.RetrievalResult{
				Chunk:      c,
				Document:   doc.Summary(),
				Distance:   dist,
				Similarity: 1 - dist,
			})
		}
	}

	domain.SortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// EmbeddingDimension returns the dimension of stored embeddings.
func (s *DocumentStore) EmbeddingDimension(_ context.Context) (int, error) {
	for _, chunks := range s.load().chunks {
		if len(chunks) > 0 {
			return len(chunks[0].Embedding), nil
		}
	}
	return 0, nil
}

// plantChunks writes chunks without validation. Used by tests to simulate
// a corrupted store.
func (s *DocumentStore) plantChunks(docID string, chunks []domain.Chunk) {
	_ = s.update(func(next *snapshot) error {
		next.chunks[docID] = chunks
		return nil
	})
}
