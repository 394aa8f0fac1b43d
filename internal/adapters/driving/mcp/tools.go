package mcp

import (
	"context"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/insightpocket/insight-rag/internal/core/domain"
)

// SearchReportsInput is the input schema for the search_reports tool.
type SearchReportsInput struct {
	Query         string   `json:"query" jsonschema:"natural-language query"`
	DocTypes      []string `json:"doc_types,omitempty" jsonschema:"restrict to RULE, DAILY or CUSTOM reports"`
	DateFrom      string   `json:"date_from,omitempty" jsonschema:"earliest report date, YYYY-MM-DD"`
	DateTo        string   `json:"date_to,omitempty" jsonschema:"latest report date, YYYY-MM-DD"`
	TopK          int      `json:"top_k,omitempty" jsonschema:"maximum number of results (default 5)"`
	MinSimilarity *float64 `json:"min_similarity,omitempty" jsonschema:"similarity floor in [-1, 1] (default 0.7)"`
}

// SearchReportsOutput mirrors domain.SearchResponse.
type SearchReportsOutput struct {
	Results    []SearchHitOutput `json:"results"`
	Query      string            `json:"query"`
	TotalFound int               `json:"total_found"`
}

// SearchHitOutput is one ranked excerpt.
type SearchHitOutput struct {
	Content    string  `json:"content"`
	DocID      string  `json:"doc_id"`
	Title      string  `json:"title"`
	DocType    string  `json:"doc_type"`
	ReportDate string  `json:"report_date,omitempty"`
	Similarity float64 `json:"similarity"`
}

// CardInput is a titled list of facts.
type CardInput struct {
	Title string   `json:"title"`
	Lines []string `json:"lines,omitempty"`
}

// RetrieveContextInput is the input schema for the retrieve_context tool.
type RetrieveContextInput struct {
	Query     string      `json:"query" jsonschema:"question or report request to ground"`
	Profile   string      `json:"profile,omitempty" jsonschema:"chat (default) or custom_report"`
	Cards     []CardInput `json:"cards,omitempty" jsonschema:"data attached by the user, highest priority"`
	LiveCards []CardInput `json:"live_cards,omitempty" jsonschema:"real-time data, lowest priority"`
	MaxChars  int         `json:"max_chars,omitempty" jsonschema:"character budget of the whole context"`
	DocTypes  []string    `json:"doc_types,omitempty" jsonschema:"override the profile's document types"`
	DateFrom  string      `json:"date_from,omitempty" jsonschema:"override the earliest report date, YYYY-MM-DD"`
	DateTo    string      `json:"date_to,omitempty" jsonschema:"override the latest report date, YYYY-MM-DD"`
	TopK      int         `json:"top_k,omitempty" jsonschema:"maximum number of retrieved excerpts"`
}

// RetrieveContextOutput is the assembled context.
type RetrieveContextOutput struct {
	Context   string   `json:"context"`
	Excerpts  int      `json:"excerpts"`
	Truncated bool     `json:"truncated"`
	Degraded  bool     `json:"degraded"`
	Warnings  []string `json:"warnings,omitempty"`
}

// IngestReportInput is the input schema for the ingest_report tool.
type IngestReportInput struct {
	DocID   string `json:"doc_id,omitempty" jsonschema:"stable id; DAILY defaults to daily_YYYY-MM-DD, CUSTOM to a fresh id"`
	DocType string `json:"doc_type" jsonschema:"RULE, DAILY or CUSTOM"`
	Title   string `json:"title,omitempty"`
	Body    string `json:"body" jsonschema:"full Markdown report"`
	Date    string `json:"date,omitempty" jsonschema:"report date, YYYY-MM-DD; required for DAILY without doc_id"`
}

// IngestReportOutput reports the stored chunk count.
type IngestReportOutput struct {
	DocID      string `json:"doc_id"`
	ChunkCount int    `json:"chunk_count"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_reports",
		Description: "Semantic search over stored daily, custom and rule reports",
	}, s.handleSearchReports)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "retrieve_context",
		Description: "Assemble a size-bounded context from attached data, relevant past reports and live data",
	}, s.handleRetrieveContext)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ingest_report",
		Description: "Store a generated report, replacing any previous version with the same id",
	}, s.handleIngestReport)
}

// handleSearchReports handles the search_reports tool invocation.
func (s *Server) handleSearchReports(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchReportsInput,
) (*mcp.CallToolResult, SearchReportsOutput, error) {
	filter, err := domain.ParseSearchFilter(input.DocTypes, input.DateFrom, input.DateTo)
	if err != nil {
		return nil, SearchReportsOutput{}, domain.NewValidationError("search", err)
	}

	resp, err := s.ports.Retrieval.Search(ctx, domain.SearchRequest{
		Query:         input.Query,
		Filter:        filter,
		TopK:          input.TopK,
		MinSimilarity: input.MinSimilarity,
	})
	if err != nil {
		return nil, SearchReportsOutput{}, err
	}

	output := SearchReportsOutput{
		Results:    make([]SearchHitOutput, len(resp.Results)),
		Query:      resp.Query,
		TotalFound: resp.TotalFound,
	}
	for i, hit := range resp.Results {
		output.Results[i] = SearchHitOutput{
			Content:    hit.Content,
			DocID:      hit.DocID,
			Title:      hit.Title,
			DocType:    hit.DocType,
			ReportDate: formatDate(hit.ReportDate),
			Similarity: hit.Similarity,
		}
	}

	return nil, output, nil
}

// handleRetrieveContext handles the retrieve_context tool invocation.
// The chat profile searches recent daily reports and the custom_report
// profile searches past custom reports unless the filter is overridden.
func (s *Server) handleRetrieveContext(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RetrieveContextInput,
) (*mcp.CallToolResult, RetrieveContextOutput, error) {
	profile, err := domain.ProfileByName(input.Profile)
	if err != nil {
		return nil, RetrieveContextOutput{}, domain.NewValidationError("retrieve_context", err)
	}

	cards := toCards(input.Cards)
	var req domain.ContextRequest
	if profile.Name == domain.ProfileCustomReport.Name {
		req = domain.CustomReportContextRequest(input.Query, cards)
	} else {
		recent := s.ports.RecentDays
		if recent <= 0 {
			recent = domain.DefaultRecentDays
		}
		req = domain.ChatContextRequest(input.Query, cards, s.ports.now(), recent)
	}

	if len(input.DocTypes) > 0 || input.DateFrom != "" || input.DateTo != "" {
		filter, err := domain.ParseSearchFilter(input.DocTypes, input.DateFrom, input.DateTo)
		if err != nil {
			return nil, RetrieveContextOutput{}, domain.NewValidationError("retrieve_context", err)
		}
		req.Filter = filter
	}
	if input.TopK > 0 {
		req.TopK = input.TopK
	}
	req.LiveData = domain.LiveData{Cards: toCards(input.LiveCards)}
	req.Budget.MaxChars = input.MaxChars

	result, err := s.ports.Retrieval.RetrieveContext(ctx, req)
	if err != nil {
		return nil, RetrieveContextOutput{}, err
	}

	return nil, RetrieveContextOutput{
		Context:   result.Context,
		Excerpts:  result.Block.Excerpts,
		Truncated: result.Block.Truncated(),
		Degraded:  result.Degraded,
		Warnings:  result.Warnings,
	}, nil
}

// handleIngestReport handles the ingest_report tool invocation.
func (s *Server) handleIngestReport(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IngestReportInput,
) (*mcp.CallToolResult, IngestReportOutput, error) {
	req, err := ingestRequest(input, s.ports.NewReportID)
	if err != nil {
		return nil, IngestReportOutput{}, domain.NewValidationError("ingest", err)
	}

	result, err := s.ports.Retrieval.Ingest(ctx, req)
	if err != nil {
		return nil, IngestReportOutput{}, err
	}

	return nil, IngestReportOutput{DocID: result.DocID, ChunkCount: result.ChunkCount}, nil
}

// ingestRequest resolves the document id and date of an ingestion.
// A CUSTOM report without an id gets one from newID when it is set.
func ingestRequest(input IngestReportInput, newID func(prefix string) string) (domain.IngestRequest, error) {
	docType, err := domain.ParseDocType(input.DocType)
	if err != nil {
		return domain.IngestRequest{}, err
	}
	req := domain.IngestRequest{
		DocID: strings.TrimSpace(input.DocID),
		Type:  docType,
		Title: input.Title,
		Body:  input.Body,
	}
	if input.Date != "" {
		d, err := domain.ParseDate(input.Date)
		if err != nil {
			return domain.IngestRequest{}, err
		}
		req.ReportDate = &d
	}

	if req.DocID == "" {
		switch {
		case docType == domain.DocTypeDaily && req.ReportDate != nil:
			req.DocID = domain.DailyDocID(*req.ReportDate)
		case docType == domain.DocTypeCustom && newID != nil:
			req.DocID = newID("custom")
		case docType == domain.DocTypeRule:
			req.DocID = domain.DefaultRuleDocID
		}
	}
	return req, nil
}

func toCards(in []CardInput) []domain.Card {
	if len(in) == 0 {
		return nil
	}
	cards := make([]domain.Card, len(in))
	for i, c := range in {
		cards[i] = domain.Card{Title: c.Title, Lines: c.Lines}
	}
	return cards
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.DateOnly)
}
