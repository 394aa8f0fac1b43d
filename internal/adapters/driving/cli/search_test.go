package cli

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightpocket/insight-rag/internal/core/domain"
)

func sampleSearchResponse() *domain.SearchResponse {
	date := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	return &domain.SearchResponse{
		Query: "revenue",
		Results: []domain.SearchHit{
			{
				Content:    "Revenue dropped   12% after\nthe pricing change.",
				DocID:      "daily_2025-01-15",
				Title:      "Daily 2025-01-15",
				DocType:    "DAILY",
				ReportDate: &date,
				Similarity: 0.91,
			},
			{
				Content:    "Churn analysis",
				DocID:      "custom_abc",
				DocType:    "CUSTOM",
				Similarity: 0.74,
			},
		},
		TotalFound: 2,
	}
}

func TestSearchCmd_Use(t *testing.T) {
	assert.Equal(t, "search [query]", searchCmd.Use)
}

func TestSearchCmd_Short(t *testing.T) {
	assert.Equal(t, "Search stored reports", searchCmd.Short)
}

func TestSearchCmd_RequiresExactlyOneArg(t *testing.T) {
	cleanup := setupTestServices(&mockRetrievalService{})
	defer cleanup()

	_, err := runRoot("search")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestSearchCmd_HasFlags(t *testing.T) {
	limit := searchCmd.Flags().Lookup("limit")
	require.NotNil(t, limit, "limit flag should exist")
	assert.Equal(t, "n", limit.Shorthand)
	assert.Equal(t, "0", limit.DefValue)

	for _, name := range []string{"type", "from", "to", "min-similarity", "json"} {
		assert.NotNil(t, searchCmd.Flags().Lookup(name), "%s flag should exist", name)
	}
}

func TestSearchCmd_OutputsTable(t *testing.T) {
	svc := &mockRetrievalService{searchResp: sampleSearchResponse()}
	cleanup := setupTestServices(svc)
	defer cleanup()

	out, err := runRoot("search", "revenue")

	require.NoError(t, err)
	assert.Contains(t, out, "Results:")
	assert.Contains(t, out, "[1] Daily 2025-01-15 (0.91)")
	assert.Contains(t, out, "daily_2025-01-15 · DAILY · 2025-01-15")
	assert.Contains(t, out, "Revenue dropped 12% after the pricing change.")
	assert.Contains(t, out, "[2] custom_abc (0.74)")
	assert.Contains(t, out, "Total: 2 result(s)")

	assert.Equal(t, "revenue", svc.gotSearch.Query)
	assert.Zero(t, svc.gotSearch.TopK)
	assert.Nil(t, svc.gotSearch.MinSimilarity, "unset flag should use the configured floor")
}

func TestSearchCmd_PassesFlags(t *testing.T) {
	svc := &mockRetrievalService{}
	cleanup := setupTestServices(svc)
	defer cleanup()

	_, err := runRoot("search", "churn",
		"--type", "daily", "--type", "custom",
		"--from", "2025-01-01", "--to", "2025-01-31",
		"-n", "3", "--min-similarity", "0.5")

	require.NoError(t, err)
	req := svc.gotSearch
	assert.Equal(t, 3, req.TopK)
	require.NotNil(t, req.MinSimilarity)
	assert.InDelta(t, 0.5, *req.MinSimilarity, 1e-9)
	assert.Equal(t, []domain.DocType{domain.DocTypeDaily, domain.DocTypeCustom}, req.Filter.DocTypes)
	require.NotNil(t, req.Filter.Dates.From)
	require.NotNil(t, req.Filter.Dates.To)
	assert.Equal(t, "2025-01-01", req.Filter.Dates.From.Format(time.DateOnly))
	assert.Equal(t, "2025-01-31", req.Filter.Dates.To.Format(time.DateOnly))
}

func TestSearchCmd_ZeroMinSimilarityIsExplicit(t *testing.T) {
	svc := &mockRetrievalService{}
	cleanup := setupTestServices(svc)
	defer cleanup()

	_, err := runRoot("search", "q", "--min-similarity", "0")

	require.NoError(t, err)
	require.NotNil(t, svc.gotSearch.MinSimilarity)
	assert.Zero(t, *svc.gotSearch.MinSimilarity)
}

func TestSearchCmd_InvalidFilter(t *testing.T) {
	cleanup := setupTestServices(&mockRetrievalService{})
	defer cleanup()

	_, err := runRoot("search", "q", "--from", "15/01/2025")

	assert.Error(t, err)
}

func TestSearchCmd_NoResults(t *testing.T) {
	cleanup := setupTestServices(&mockRetrievalService{})
	defer cleanup()

	out, err := runRoot("search", "nothing")

	require.NoError(t, err)
	assert.Contains(t, out, "No results found.")
}

func TestSearchCmd_JSONOutput(t *testing.T) {
	cleanup := setupTestServices(&mockRetrievalService{searchResp: sampleSearchResponse()})
	defer cleanup()

	out, err := runRoot("search", "--json", "revenue")

	require.NoError(t, err)
	assert.Contains(t, out, `"doc_id": "daily_2025-01-15"`)
	assert.Contains(t, out, `"similarity": 0.91`)
	assert.Contains(t, out, `"total_found": 2`)
}

func TestSearchCmd_ServiceError(t *testing.T) {
	cleanup := setupTestServices(&mockRetrievalService{
		err: domain.NewFatalError("search", domain.ErrEmbeddingUnavailable),
	})
	defer cleanup()

	_, err := runRoot("search", "q")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "search failed")
	assert.True(t, domain.IsFatal(err))
}

func TestSearchCmd_ServiceNotConfigured(t *testing.T) {
	cleanup := setupTestServices(nil)
	defer cleanup()
	deps = Dependencies{}

	_, err := runRoot("search", "test")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "retrieval service not configured")
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b c", snippet("a\n b\t\tc", 10))
	assert.Equal(t, "abc...", snippet("abcdef", 3))
	assert.Equal(t, "", snippet("   ", 10))
	assert.Equal(t, "éé...", snippet("ééé", 2))
}

func TestOutputJSON_Error(t *testing.T) {
	err := outputJSON(rootCmd, make(chan int))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrInvalidInput))
}
