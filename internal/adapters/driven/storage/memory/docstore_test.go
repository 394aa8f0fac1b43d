package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightpocket/insight-rag/internal/core/domain"
)

func testDoc(id string, docType domain.DocType, day string) *domain.Document {
	doc := &domain.Document{ID: id, Type: docType, Title: "Report " + id, Body: "body of " + id}
	if day != "" {
		d, _ := time.Parse(time.DateOnly, day)
		doc.ReportDate = &d
	}
	return doc
}

func testChunks(docID string, n int, vec []float32) []domain.Chunk {
	chunks := make([]domain.Chunk, n)
	for i := range chunks {
		chunks[i] = domain.Chunk{
			ID:         fmt.Sprintf("%s-c%d", docID, i),
			DocumentID: docID,
			Position:   i,
			Content:    fmt.Sprintf("%s part %d", docID, i),
			Embedding:  vec,
		}
	}
	return chunks
}

func TestNewDocumentStore(t *testing.T) {
	store := NewDocumentStore()
	require.NotNil(t, store)

	dim, err := store.EmbeddingDimension(context.Background())
	require.NoError(t, err)
	assert.Zero(t, dim)
}

func TestDocumentStore_UpsertDocument(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()

	saved, err := store.UpsertDocument(ctx, testDoc("doc-1", domain.DocTypeDaily, "2024-03-01"))
	require.NoError(t, err)
	assert.False(t, saved.CreatedAt.IsZero())

	got, err := store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Report doc-1", got.Title)
	assert.Equal(t, domain.DocTypeDaily, got.Type)

	updated := testDoc("doc-1", domain.DocTypeDaily, "2024-03-01")
	updated.Title = "Renamed"
	_, err = store.UpsertDocument(ctx, updated)
	require.NoError(t, err)

	got, err = store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
}

func TestDocumentStore_GetDocument_NotFound(t *testing.T) {
	store := NewDocumentStore()
	_, err := store.GetDocument(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_ReplaceDocument_ShrinksChunkSet(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()
	doc := testDoc("daily_2024-03-01", domain.DocTypeDaily, "2024-03-01")

	require.NoError(t, store.ReplaceDocument(ctx, doc, testChunks(doc.ID, 4, []float32{1, 0}), domain.InsertModeSequential))
	require.NoError(t, store.ReplaceDocument(ctx, doc, testChunks(doc.ID, 2, []float32{0, 1}), domain.InsertModeBatched))

	chunks, err := store.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].Position)
	assert.Equal(t, 1, chunks[1].Position)
	assert.Equal(t, []float32{0, 1}, chunks[0].Embedding)
}

func TestDocumentStore_ReplaceChunks_UnknownDocument(t *testing.T) {
	store := NewDocumentStore()
	err := store.ReplaceChunks(context.Background(), "ghost", testChunks("ghost", 1, []float32{1}), domain.InsertModeSequential)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_ReplaceDocument_RejectsInvalidSet(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()
	doc := testDoc("doc-1", domain.DocTypeCustom, "")

	chunks := testChunks(doc.ID, 3, []float32{1, 0})
	chunks[2].Position = 5
	err := store.ReplaceDocument(ctx, doc, chunks, domain.InsertModeSequential)
	require.Error(t, err)

	_, err = store.GetDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound, "failed replace must not publish the document")
}

func TestDocumentStore_ReplaceDocument_DimensionMismatch(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()

	a := testDoc("a", domain.DocTypeDaily, "2024-03-01")
	require.NoError(t, store.ReplaceDocument(ctx, a, testChunks("a", 1, []float32{1, 0, 0}), domain.InsertModeSequential))

	b := testDoc("b", domain.DocTypeDaily, "2024-03-02")
	err := store.ReplaceDocument(ctx, b, testChunks("b", 1, []float32{1, 0}), domain.InsertModeSequential)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	// Re-ingesting the only document may change dimension.
	err = store.ReplaceDocument(ctx, a, testChunks("a", 1, []float32{1, 0}), domain.InsertModeSequential)
	assert.NoError(t, err)
}

func TestDocumentStore_DeleteDocument(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()
	doc := testDoc("doc-1", domain.DocTypeRule, "")
	require.NoError(t, store.ReplaceDocument(ctx, doc, testChunks(doc.ID, 2, []float32{1}), domain.InsertModeSequential))

	require.NoError(t, store.DeleteDocument(ctx, doc.ID))

	_, err := store.GetDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	chunks, err := store.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	// Deleting again is not an error.
	assert.NoError(t, store.DeleteDocument(ctx, doc.ID))
}

func TestDocumentStore_LatestDocument(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"rule-old", "rule-new"} {
		doc := testDoc(id, domain.DocTypeRule, "")
		doc.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		_, err := store.UpsertDocument(ctx, doc)
		require.NoError(t, err)
	}

	latest, err := store.LatestDocument(ctx, domain.DocTypeRule)
	require.NoError(t, err)
	assert.Equal(t, "rule-new", latest.ID)

	_, err = store.LatestDocument(ctx, domain.DocTypeCustom)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_ListDocuments(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	docs := []*domain.Document{
		testDoc("d1", domain.DocTypeDaily, "2024-03-01"),
		testDoc("d2", domain.DocTypeDaily, "2024-03-05"),
		testDoc("c1", domain.DocTypeCustom, ""),
	}
	for i, d := range docs {
		d.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		_, err := store.UpsertDocument(ctx, d)
		require.NoError(t, err)
	}

	all, err := store.ListDocuments(ctx, domain.SearchFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c1", all[0].ID)
	assert.Empty(t, all[0].Body)

	from, _ := domain.ParseDate("2024-03-03")
	daily, err := store.ListDocuments(ctx, domain.SearchFilter{
		DocTypes: []domain.DocType{domain.DocTypeDaily},
		Dates:    domain.DateRange{From: &from},
	})
	require.NoError(t, err)
	require.Len(t, daily, 1)
	assert.Equal(t, "d2", daily[0].ID)
}

func TestDocumentStore_NearestChunks(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()

	near := testDoc("near", domain.DocTypeDaily, "2024-03-01")
	far := testDoc("far", domain.DocTypeDaily, "2024-03-02")
	other := testDoc("other", domain.DocTypeCustom, "")
	require.NoError(t, store.ReplaceDocument(ctx, near, testChunks("near", 1, []float32{1, 0}), domain.InsertModeSequential))
	require.NoError(t, store.ReplaceDocument(ctx, far, testChunks("far", 1, []float32{0, 1}), domain.InsertModeSequential))
	require.NoError(t, store.ReplaceDocument(ctx, other, testChunks("other", 1, []float32{1, 0}), domain.InsertModeSequential))

	hits, err := store.NearestChunks(ctx, []float32{1, 0}, domain.SearchFilter{DocTypes: []domain.DocType{domain.DocTypeDaily}}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "near", hits[0].Document.ID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
	assert.InDelta(t, 0.0, hits[0].Distance, 1e-6)
	assert.Equal(t, "far", hits[1].Document.ID)
	assert.Nil(t, hits[0].Chunk.Embedding)
	assert.Zero(t, hits[0].Rank)

	hits, err = store.NearestChunks(ctx, []float32{1, 0}, domain.SearchFilter{}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	// Equal distance: the dated document wins over the undated one.
	assert.Equal(t, "near", hits[0].Document.ID)
}

func TestDocumentStore_NearestChunks_DimensionMismatch(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()
	doc := testDoc("a", domain.DocTypeDaily, "2024-03-01")
	require.NoError(t, store.ReplaceDocument(ctx, doc, testChunks("a", 1, []float32{1, 0, 0}), domain.InsertModeSequential))

	_, err := store.NearestChunks(ctx, []float32{1, 0}, domain.SearchFilter{}, 3)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestDocumentStore_CheckConsistency(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()
	doc := testDoc("ok", domain.DocTypeDaily, "2024-03-01")
	require.NoError(t, store.ReplaceDocument(ctx, doc, testChunks("ok", 3, []float32{1}), domain.InsertModeSequential))

	report, err := store.CheckConsistency(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, 1, report.Documents)
	assert.Equal(t, 3, report.Chunks)

	store.plantChunks("ghost", testChunks("ghost", 1, []float32{1}))
	gapped := testChunks("ok", 3, []float32{1})
	gapped[2].Position = 4
	store.plantChunks("ok", gapped)

	report, err = store.CheckConsistency(ctx)
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.Equal(t, []string{"ghost-c0"}, report.OrphanChunks)
	require.Len(t, report.OrdinalGaps, 1)
	assert.Equal(t, []int{0, 1, 4}, report.OrdinalGaps[0].Positions)
	assert.ErrorIs(t, report.Err(), domain.ErrInconsistentStore)
}

func TestDocumentStore_ConcurrentReplaceAndRead(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()
	doc := testDoc("daily_2024-03-01", domain.DocTypeDaily, "2024-03-01")
	require.NoError(t, store.ReplaceDocument(ctx, doc, testChunks(doc.ID, 4, []float32{1, 0}), domain.InsertModeSequential))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			_ = store.ReplaceDocument(ctx, doc, testChunks(doc.ID, 2+n%3, []float32{1, 0}), domain.InsertModeSequential)
		}(i)
		go func() {
			defer wg.Done()
			chunks, err := store.GetChunks(ctx, doc.ID)
			assert.NoError(t, err)
			positions := make([]int, len(chunks))
			for j, c := range chunks {
				positions[j] = c.Position
			}
			assert.True(t, domain.ContiguousFromZero(positions), "reader saw a mixed chunk set: %v", positions)
		}()
	}
	wg.Wait()

	report, err := store.CheckConsistency(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK())
}
