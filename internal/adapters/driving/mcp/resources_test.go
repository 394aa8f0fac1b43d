package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightpocket/insight-rag/internal/core/domain"
)

func TestExtractDocumentID(t *testing.T) {
	tests := []struct {
		name     string
		uri      string
		expected string
	}{
		{
			name:     "valid document URI",
			uri:      "insight://documents/daily_2025-01-10",
			expected: "daily_2025-01-10",
		},
		{
			name:     "invalid prefix",
			uri:      "file://documents/doc-456",
			expected: "",
		},
		{
			name:     "empty URI",
			uri:      "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := extractDocumentID(tt.uri)
			assert.Equal(t, tt.expected, result)
		})
	}
}

// Helper to create a ReadResourceRequest with the given URI.
func makeReadResourceRequest(uri string) *mcp.ReadResourceRequest {
	return &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func TestServer_handleRuleResource(t *testing.T) {
	ctx := context.Background()

	t.Run("returns rule body", func(t *testing.T) {
		server := newTestServer(t, &mockRetrievalService{rule: "# Rules\nCite sources."})

		result, err := server.handleRuleResource(ctx, makeReadResourceRequest("insight://rule"))

		require.NoError(t, err)
		require.Len(t, result.Contents, 1)
		assert.Equal(t, "# Rules\nCite sources.", result.Contents[0].Text)
		assert.Equal(t, "text/markdown", result.Contents[0].MIMEType)
	})

	t.Run("returns error on failure", func(t *testing.T) {
		server := newTestServer(t, &mockRetrievalService{err: errors.New("database error")})

		_, err := server.handleRuleResource(ctx, makeReadResourceRequest("insight://rule"))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "database error")
	})
}

func TestServer_handleDocumentsResource(t *testing.T) {
	ctx := context.Background()
	date := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	svc := &mockRetrievalService{documents: []domain.Document{
		{ID: "daily_2025-01-10", Type: domain.DocTypeDaily, Title: "Daily", ReportDate: &date, CreatedAt: date},
		{ID: "custom_1", Type: domain.DocTypeCustom, Title: "Churn", CreatedAt: date},
	}}
	server := newTestServer(t, svc)

	result, err := server.handleDocumentsResource(ctx, makeReadResourceRequest("insight://documents"))

	require.NoError(t, err)
	require.Len(t, result.Contents, 1)
	text := result.Contents[0].Text
	assert.Contains(t, text, `"doc_id": "daily_2025-01-10"`)
	assert.Contains(t, text, `"doc_type": "DAILY"`)
	assert.Contains(t, text, `"report_date": "2025-01-10"`)
	assert.Contains(t, text, `"doc_id": "custom_1"`)
}

func TestServer_handleDocumentResource(t *testing.T) {
	ctx := context.Background()

	t.Run("returns body", func(t *testing.T) {
		server := newTestServer(t, &mockRetrievalService{document: &domain.Document{ID: "custom_1", Body: "# Churn"}})

		result, err := server.handleDocumentResource(ctx, makeReadResourceRequest("insight://documents/custom_1"))

		require.NoError(t, err)
		assert.Equal(t, "# Churn", result.Contents[0].Text)
	})

	t.Run("not found", func(t *testing.T) {
		server := newTestServer(t, &mockRetrievalService{err: domain.ErrNotFound})

		_, err := server.handleDocumentResource(ctx, makeReadResourceRequest("insight://documents/missing"))

		require.Error(t, err)
		assert.NotContains(t, err.Error(), "getting document")
	})

	t.Run("invalid URI", func(t *testing.T) {
		server := newTestServer(t, &mockRetrievalService{})

		_, err := server.handleDocumentResource(ctx, makeReadResourceRequest("insight://other/x"))

		require.Error(t, err)
	})
}
