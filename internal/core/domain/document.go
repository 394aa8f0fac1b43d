package domain

import (
	"fmt"
	"strings"
	"time"
)

// DocType classifies a stored report.
// The numeric values are persisted and must not change.
type DocType int

// Available document types.
const (
	// DocTypeRule is the analysis rulebook shared by every report.
	DocTypeRule DocType = 0

	// DocTypeDaily is an automatically generated daily report.
	DocTypeDaily DocType = 1

	// DocTypeCustom is a report generated on user request.
	DocTypeCustom DocType = 2
)

// AllDocTypes lists every known document type in persisted order.
var AllDocTypes = []DocType{DocTypeRule, DocTypeDaily, DocTypeCustom}

// IsValid returns true if the document type is recognised.
func (t DocType) IsValid() bool {
	switch t {
	case DocTypeRule, DocTypeDaily, DocTypeCustom:
		return true
	default:
		return false
	}
}

// IsDated returns true if documents of this type normally carry a report date.
func (t DocType) IsDated() bool {
	return t == DocTypeDaily
}

// String returns the canonical upper-case name.
func (t DocType) String() string {
	switch t {
	case DocTypeRule:
		return "RULE"
	case DocTypeDaily:
		return "DAILY"
	case DocTypeCustom:
		return "CUSTOM"
	default:
		return fmt.Sprintf("DocType(%d)", int(t))
	}
}

// ParseDocType parses a document type name (case-insensitive).
func ParseDocType(s string) (DocType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "RULE":
		return DocTypeRule, nil
	case "DAILY":
		return DocTypeDaily, nil
	case "CUSTOM":
		return DocTypeCustom, nil
	default:
		return 0, fmt.Errorf("%w: unknown document type %q", ErrInvalidInput, s)
	}
}

// Document represents a stored report.
// It is created by ingestion and only ever replaced as a whole.
type Document struct {
	// ID is the unique identifier, stable across re-ingestion.
	ID string

	// Type classifies the report.
	Type DocType

	// Title is the human-readable title.
	Title string

	// Body is the full Markdown text before chunking.
	Body string

	// ReportDate is the date the report covers. Nil for undated types.
	ReportDate *time.Time

	// CreatedAt is when this version of the document was stored.
	CreatedAt time.Time
}

// Summary returns the fields of the document shown alongside search hits.
func (d *Document) Summary() DocumentSummary {
	return DocumentSummary{
		ID:         d.ID,
		Type:       d.Type,
		Title:      d.Title,
		ReportDate: d.ReportDate,
	}
}

// DocumentSummary is the owning-document view attached to a retrieval result.
type DocumentSummary struct {
	ID         string
	Type       DocType
	Title      string
	ReportDate *time.Time
}

// Chunk represents a searchable excerpt of a document.
// A chunk never outlives its document.
type Chunk struct {
	// ID is derived from the document ID and position.
	ID string

	// DocumentID links to the parent Document.
	DocumentID string

	// Position is the ordinal position within the document, starting at 0.
	Position int

	// Content is the text content of this chunk.
	Content string

	// Embedding is the vector representation for semantic search.
	Embedding []float32

	// Start and End are character offsets of Content within the document body.
	// They are set by the chunker and are not persisted.
	Start int
	End   int
}

// Date truncates t to a calendar date in UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", ErrInvalidInput, s)
	}
	return t, nil
}

// DefaultRuleDocID is the identifier of the shared analysis rulebook.
const DefaultRuleDocID = "RULE_DOC_GLOBAL_V1"

// DailyDocID returns the conventional identifier of the daily report for date.
// Re-generating a day's report therefore replaces the previous one.
func DailyDocID(date time.Time) string {
	return "daily_" + date.Format(time.DateOnly)
}

// IngestRequest is the input to a document ingestion.
type IngestRequest struct {
	DocID      string
	Type       DocType
	Title      string
	Body       string
	ReportDate *time.Time
}

// Validate checks the request before any external call is made.
func (r IngestRequest) Validate() error {
	if strings.TrimSpace(r.DocID) == "" {
		return NewValidationError("ingest", fmt.Errorf("%w: document id is required", ErrInvalidInput))
	}
	if !r.Type.IsValid() {
		return NewValidationError("ingest", fmt.Errorf("%w: unknown document type %d", ErrInvalidInput, int(r.Type)))
	}
	return nil
}

// IngestResult reports the outcome of a successful ingestion.
type IngestResult struct {
	DocID      string
	ChunkCount int
}
