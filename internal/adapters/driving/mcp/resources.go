package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/insightpocket/insight-rag/internal/core/domain"
)

const (
	// uriScheme is the custom URI scheme for insight-rag resources.
	uriScheme = "insight://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "rule",
		Name:        "rule",
		Description: "The analysis rulebook shared by every report",
		MIMEType:    "text/markdown",
	}, s.handleRuleResource)

	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "documents",
		Name:        "documents",
		Description: "Stored reports, newest first",
		MIMEType:    "application/json",
	}, s.handleDocumentsResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "documents/{docId}",
		Name:        "document-body",
		Description: "Full Markdown body of a stored report",
		MIMEType:    "text/markdown",
	}, s.handleDocumentResource)
}

// handleRuleResource returns the current RULE document body.
func (s *Server) handleRuleResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	body, err := s.ports.Retrieval.RuleDocument(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading rule document: %w", err)
	}

	return textResult(req.Params.URI, "text/markdown", body), nil
}

// handleDocumentsResource returns summaries of all stored documents.
func (s *Server) handleDocumentsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	docs, err := s.ports.Retrieval.ListDocuments(ctx, domain.SearchFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	type docInfo struct {
		ID         string `json:"doc_id"`
		Type       string `json:"doc_type"`
		Title      string `json:"title"`
		ReportDate string `json:"report_date,omitempty"`
		CreatedAt  string `json:"created_at"`
	}

	infos := make([]docInfo, len(docs))
	for i := range docs {
		infos[i] = docInfo{
			ID:         docs[i].ID,
			Type:       docs[i].Type.String(),
			Title:      docs[i].Title,
			ReportDate: formatDate(docs[i].ReportDate),
			CreatedAt:  docs[i].CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
	}

	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling documents: %w", err)
	}

	return textResult(req.Params.URI, "application/json", string(data)), nil
}

// handleDocumentResource returns the body of a specific document.
func (s *Server) handleDocumentResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	// Extract docId from URI: insight://documents/{docId}
	docID := extractDocumentID(req.Params.URI)
	if docID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	doc, err := s.ports.Retrieval.GetDocument(ctx, docID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}

	return textResult(req.Params.URI, "text/markdown", doc.Body), nil
}

func textResult(uri, mimeType, text string) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: mimeType,
			Text:     text,
		}},
	}
}

// extractDocumentID extracts the document ID from a URI like insight://documents/{docId}.
func extractDocumentID(uri string) string {
	const prefix = uriScheme + "documents/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}

	return strings.TrimPrefix(uri, prefix)
}
