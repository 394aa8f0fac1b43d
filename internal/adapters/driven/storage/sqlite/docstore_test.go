package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightpocket/insight-rag/internal/core/domain"
)

var (
	vecA = []float32{1, 0, 0}
	vecB = []float32{0, 1, 0}
)

func TestDocumentStore_UpsertAndGetDocument(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	docStore := store.DocumentStore()

	doc := testDoc("daily_2026-02-08", domain.DocTypeDaily, "2026-02-08")
	saved, err := docStore.UpsertDocument(ctx, doc)
	require.NoError(t, err)
	assert.False(t, saved.CreatedAt.IsZero())

	got, err := docStore.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, domain.DocTypeDaily, got.Type)
	assert.Equal(t, doc.Title, got.Title)
	assert.Equal(t, doc.Body, got.Body)
	require.NotNil(t, got.ReportDate)
	assert.Equal(t, "2026-02-08", got.ReportDate.Format(time.DateOnly))
	assert.WithinDuration(t, saved.CreatedAt, got.CreatedAt, time.Millisecond)
}

func TestDocumentStore_UpsertDocument_Replaces(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	docStore := store.DocumentStore()

	_, err := docStore.UpsertDocument(ctx, testDoc("r1", domain.DocTypeCustom, "2026-01-01"))
	require.NoError(t, err)

	updated := testDoc("r1", domain.DocTypeCustom, "")
	updated.Title = "Revised"
	updated.Body = "new body"
	_, err = docStore.UpsertDocument(ctx, updated)
	require.NoError(t, err)

	got, err := docStore.GetDocument(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "Revised", got.Title)
	assert.Equal(t, "new body", got.Body)
	assert.Nil(t, got.ReportDate)
}

func TestDocumentStore_GetDocument_NotFound(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := store.DocumentStore().GetDocument(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_ReplaceDocument(t *testing.T) {
	for _, mode := range []domain.InsertMode{domain.InsertModeSequential, domain.InsertModeBatched} {
		t.Run(string(mode), func(t *testing.T) {
			store, cleanup := setupTestStore(t)
			defer cleanup()
			ctx := context.Background()
			docStore := store.DocumentStore()

			doc := testDoc("daily_2026-02-08", domain.DocTypeDaily, "2026-02-08")
			require.NoError(t, docStore.ReplaceDocument(ctx, doc, testChunks(doc.ID, 3, vecA, vecB), mode))

			chunks, err := docStore.GetChunks(ctx, doc.ID)
			require.NoError(t, err)
			require.Len(t, chunks, 3)
			for i, c := range chunks {
				assert.Equal(t, i, c.Position)
				assert.Equal(t, doc.ID, c.DocumentID)
			}
			assert.Equal(t, vecB, chunks[1].Embedding)
		})
	}
}

func TestDocumentStore_ReplaceDocument_ShorterBodyRemovesStaleChunks(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	docStore := store.DocumentStore()
	doc := testDoc("daily_2026-02-08", domain.DocTypeDaily, "2026-02-08")

	old := testChunks(doc.ID, 4, vecA)
	require.NoError(t, docStore.ReplaceDocument(ctx, doc, old, domain.InsertModeSequential))
	require.NoError(t, docStore.ReplaceDocument(ctx, doc, testChunks(doc.ID, 2, vecB), domain.InsertModeSequential))

	chunks, err := docStore.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, chunks, 2)

	var remaining int
	require.NoError(t, store.db.QueryRow(
		"SELECT COUNT(*) FROM chunks WHERE chunk_id IN (?, ?)", old[2].ID, old[3].ID).Scan(&remaining))
	assert.Equal(t, 0, remaining)
}

func TestDocumentStore_ReplaceChunks_MissingDocument(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	err := store.DocumentStore().ReplaceChunks(context.Background(), "missing",
		testChunks("missing", 1, vecA), domain.InsertModeBatched)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_ReplaceChunks(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	docStore := store.DocumentStore()

	_, err := docStore.UpsertDocument(ctx, testDoc("r1", domain.DocTypeCustom, ""))
	require.NoError(t, err)
	require.NoError(t, docStore.ReplaceChunks(ctx, "r1", testChunks("r1", 2, vecA), domain.InsertModeSequential))

	chunks, err := docStore.GetChunks(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, chunks, 2)

	require.NoError(t, docStore.ReplaceChunks(ctx, "r1", nil, domain.InsertModeSequential))
	chunks, err = docStore.GetChunks(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestDocumentStore_BatchedFallsBackToSequential(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	batchedCalls, sequentialCalls := 0, 0
	store.insertBatched = func(context.Context, *sql.Tx, []domain.Chunk) error {
		batchedCalls++
		return errors.New("UNIQUE constraint failed: chunks.chunk_id")
	}
	sequential := store.insertSequential
	store.insertSequential = func(ctx context.Context, tx *sql.Tx, chunks []domain.Chunk) error {
		sequentialCalls++
		return sequential(ctx, tx, chunks)
	}

	doc := testDoc("r1", domain.DocTypeCustom, "")
	require.NoError(t, store.DocumentStore().ReplaceDocument(ctx, doc, testChunks("r1", 3, vecA), domain.InsertModeBatched))

	assert.Equal(t, 1, batchedCalls)
	assert.Equal(t, 1, sequentialCalls)
	chunks, err := store.DocumentStore().GetChunks(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, chunks, 3)
}

func TestDocumentStore_FailedReplacementKeepsPreviousVersion(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	docStore := store.DocumentStore()

	doc := testDoc("r1", domain.DocTypeCustom, "")
	require.NoError(t, docStore.ReplaceDocument(ctx, doc, testChunks("r1", 3, vecA), domain.InsertModeSequential))

	failure := errors.New("disk full")
	store.insertBatched = func(context.Context, *sql.Tx, []domain.Chunk) error { return failure }
	store.insertSequential = func(context.Context, *sql.Tx, []domain.Chunk) error { return failure }

	next := testDoc("r1", domain.DocTypeCustom, "")
	next.Body = "replacement body"
	err := docStore.ReplaceDocument(ctx, next, testChunks("r1", 1, vecB), domain.InsertModeBatched)
	require.ErrorIs(t, err, failure)

	got, err := docStore.GetDocument(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, doc.Body, got.Body)
	chunks, err := docStore.GetChunks(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, chunks, 3)
}

func TestDocumentStore_ReplaceDocument_DimensionMismatch(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	docStore := store.DocumentStore()

	require.NoError(t, docStore.ReplaceDocument(ctx, testDoc("a", domain.DocTypeCustom, ""),
		testChunks("a", 1, vecA), domain.InsertModeSequential))

	err := docStore.ReplaceDocument(ctx, testDoc("b", domain.DocTypeCustom, ""),
		testChunks("b", 1, []float32{1, 2}), domain.InsertModeSequential)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	_, err = docStore.GetDocument(ctx, "b")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_ConcurrentReplacementWithMixedDimensions(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	docStore := store.DocumentStore()

	// Hold document a's transaction open until b's replacement has started.
	inTx := make(chan struct{})
	sequential := store.insertSequential
	store.insertSequential = func(ctx context.Context, tx *sql.Tx, chunks []domain.Chunk) error {
		if chunks[0].DocumentID == "a" {
			close(inTx)
			time.Sleep(100 * time.Millisecond)
		}
		return sequential(ctx, tx, chunks)
	}

	errA := make(chan error, 1)
	go func() {
		errA <- docStore.ReplaceDocument(ctx, testDoc("a", domain.DocTypeCustom, ""),
			testChunks("a", 1, vecA), domain.InsertModeSequential)
	}()
	<-inTx

	errB := docStore.ReplaceDocument(ctx, testDoc("b", domain.DocTypeCustom, ""),
		testChunks("b", 1, []float32{1, 2}), domain.InsertModeSequential)

	require.NoError(t, <-errA)
	assert.ErrorIs(t, errB, domain.ErrDimensionMismatch)

	_, err := docStore.GetDocument(ctx, "b")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	dim, err := store.VectorSearcher().EmbeddingDimension(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, dim)
}

func TestDocumentStore_DimensionMismatchIsNotRetried(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	docStore := store.DocumentStore()

	require.NoError(t, docStore.ReplaceDocument(ctx, testDoc("a", domain.DocTypeCustom, ""),
		testChunks("a", 1, vecA), domain.InsertModeSequential))

	sequentialCalls := 0
	store.insertSequential = func(context.Context, *sql.Tx, []domain.Chunk) error {
		sequentialCalls++
		return nil
	}

	err := docStore.ReplaceDocument(ctx, testDoc("b", domain.DocTypeCustom, ""),
		testChunks("b", 1, []float32{1, 2}), domain.InsertModeBatched)

	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	assert.Zero(t, sequentialCalls)
}

func TestDocumentStore_ReplaceDocument_InvalidChunkSet(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	chunks := testChunks("a", 2, vecA)
	chunks[1].Position = 5
	err := store.DocumentStore().ReplaceDocument(context.Background(),
		testDoc("a", domain.DocTypeCustom, ""), chunks, domain.InsertModeSequential)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDocumentStore_ConcurrentReplacementOfSameDocument(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	docStore := store.DocumentStore()
	doc := testDoc("daily_2026-02-08", domain.DocTypeDaily, "2026-02-08")

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errs <- docStore.ReplaceDocument(ctx, doc, testChunks(doc.ID, 1+n%4, vecA), domain.InsertModeBatched)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	report, err := docStore.CheckConsistency(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK())
}

func TestDocumentStore_DeleteDocument_CascadesChunks(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	docStore := store.DocumentStore()

	require.NoError(t, docStore.ReplaceDocument(ctx, testDoc("r1", domain.DocTypeCustom, ""),
		testChunks("r1", 3, vecA), domain.InsertModeSequential))
	require.NoError(t, docStore.DeleteDocument(ctx, "r1"))

	_, err := docStore.GetDocument(ctx, "r1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	var count int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&count))
	assert.Equal(t, 0, count)

	// Deleting again is not an error
	assert.NoError(t, docStore.DeleteDocument(ctx, "r1"))
}

func TestDocumentStore_LatestDocument(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	docStore := store.DocumentStore()

	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"rule_v1", "rule_v2"} {
		doc := testDoc(id, domain.DocTypeRule, "")
		doc.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		_, err := docStore.UpsertDocument(ctx, doc)
		require.NoError(t, err)
	}
	custom := testDoc("later_custom", domain.DocTypeCustom, "")
	custom.CreatedAt = base.Add(5 * time.Hour)
	_, err := docStore.UpsertDocument(ctx, custom)
	require.NoError(t, err)

	latest, err := docStore.LatestDocument(ctx, domain.DocTypeRule)
	require.NoError(t, err)
	assert.Equal(t, "rule_v2", latest.ID)
	assert.Equal(t, "body of rule_v2", latest.Body)

	_, err = docStore.LatestDocument(ctx, domain.DocTypeDaily)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_ListDocuments(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	docStore := store.DocumentStore()

	for _, d := range []*domain.Document{
		testDoc("daily_2026-02-01", domain.DocTypeDaily, "2026-02-01"),
		testDoc("daily_2026-02-10", domain.DocTypeDaily, "2026-02-10"),
		testDoc("custom_1", domain.DocTypeCustom, ""),
	} {
		_, err := docStore.UpsertDocument(ctx, d)
		require.NoError(t, err)
	}

	all, err := docStore.ListDocuments(ctx, domain.SearchFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	for _, d := range all {
		assert.Empty(t, d.Body)
	}

	from := time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC)
	daily, err := docStore.ListDocuments(ctx, domain.SearchFilter{
		DocTypes: []domain.DocType{domain.DocTypeDaily},
		Dates:    domain.DateRange{From: &from},
	})
	require.NoError(t, err)
	require.Len(t, daily, 1)
	assert.Equal(t, "daily_2026-02-10", daily[0].ID)
}

func TestDocumentStore_CheckConsistency(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	docStore := store.DocumentStore()

	require.NoError(t, docStore.ReplaceDocument(ctx, testDoc("r1", domain.DocTypeCustom, ""),
		testChunks("r1", 2, vecA), domain.InsertModeSequential))

	report, err := docStore.CheckConsistency(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, 1, report.Documents)
	assert.Equal(t, 2, report.Chunks)

	// Bypass the foreign key and the replacement path to plant violations.
	conn, err := store.db.Conn(ctx)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF")
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, "INSERT INTO chunks (chunk_id, doc_id, ordinal, content, embedding) VALUES ('orphan', 'gone', 0, 'x', ?)",
		float32SliceToBytes(vecA))
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, "DELETE FROM chunks WHERE chunk_id = ?", "r1-c0")
	require.NoError(t, err)

	report, err = docStore.CheckConsistency(ctx)
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.Equal(t, []string{"orphan"}, report.OrphanChunks)
	require.Len(t, report.OrdinalGaps, 1)
	assert.Equal(t, "r1", report.OrdinalGaps[0].DocumentID)
	assert.Equal(t, []int{1}, report.OrdinalGaps[0].Positions)
}
