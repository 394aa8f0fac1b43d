package mcp

import (
	"context"

	"github.com/insightpocket/insight-rag/internal/core/domain"
)

// mockRetrievalService is a mock implementation of driving.RetrievalService.
type mockRetrievalService struct {
	searchResp    *domain.SearchResponse
	contextResult *domain.ContextResult
	ingestResult  *domain.IngestResult
	document      *domain.Document
	documents     []domain.Document
	rule          string
	report        *domain.ConsistencyReport
	err           error

	gotSearch  domain.SearchRequest
	gotContext domain.ContextRequest
	gotIngest  domain.IngestRequest
	gotFilter  domain.SearchFilter
}

func (m *mockRetrievalService) Ingest(_ context.Context, req domain.IngestRequest) (*domain.IngestResult, error) {
	m.gotIngest = req
	if m.err != nil {
		return nil, m.err
	}
	if m.ingestResult != nil {
		return m.ingestResult, nil
	}
	return &domain.IngestResult{DocID: req.DocID, ChunkCount: 1}, nil
}

func (m *mockRetrievalService) RetrieveContext(_ context.Context, req domain.ContextRequest) (*domain.ContextResult, error) {
	m.gotContext = req
	if m.err != nil {
		return nil, m.err
	}
	if m.contextResult != nil {
		return m.contextResult, nil
	}
	return &domain.ContextResult{}, nil
}

func (m *mockRetrievalService) Search(_ context.Context, req domain.SearchRequest) (*domain.SearchResponse, error) {
	m.gotSearch = req
	if m.err != nil {
		return nil, m.err
	}
	if m.searchResp != nil {
		return m.searchResp, nil
	}
	return domain.NewSearchResponse(req.Query, nil), nil
}

func (m *mockRetrievalService) GetDocument(_ context.Context, _ string) (*domain.Document, error) {
	return m.document, m.err
}

func (m *mockRetrievalService) DeleteDocument(_ context.Context, _ string) error {
	return m.err
}

func (m *mockRetrievalService) LatestDocument(_ context.Context, _ domain.DocType) (*domain.Document, error) {
	return m.document, m.err
}

func (m *mockRetrievalService) ListDocuments(_ context.Context, filter domain.SearchFilter) ([]domain.Document, error) {
	m.gotFilter = filter
	return m.documents, m.err
}

func (m *mockRetrievalService) RuleDocument(_ context.Context) (string, error) {
	return m.rule, m.err
}

func (m *mockRetrievalService) Verify(_ context.Context) (*domain.ConsistencyReport, error) {
	return m.report, m.err
}
