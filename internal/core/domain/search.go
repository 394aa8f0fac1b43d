package domain

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"
)

// DateRange is an inclusive report-date window. A nil bound is open.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// Validate rejects a range whose start is after its end.
func (r DateRange) Validate() error {
	if r.From != nil && r.To != nil && Date(*r.From).After(Date(*r.To)) {
		return fmt.Errorf("%w: date range starts %s after it ends %s",
			ErrInvalidInput, r.From.Format(time.DateOnly), r.To.Format(time.DateOnly))
	}
	return nil
}

// IsZero returns true if neither bound is set.
func (r DateRange) IsZero() bool {
	return r.From == nil && r.To == nil
}

// Contains reports whether date falls inside the range.
// An undated document only matches an unbounded range.
func (r DateRange) Contains(date *time.Time) bool {
	if r.IsZero() {
		return true
	}
	if date == nil {
		return false
	}
	d := Date(*date)
	if r.From != nil && d.Before(Date(*r.From)) {
		return false
	}
	if r.To != nil && d.After(Date(*r.To)) {
		return false
	}
	return true
}

// SearchFilter restricts a similarity search to matching documents.
// Filters are applied before ranking and before the result limit.
type SearchFilter struct {
	// DocTypes restricts results to these types. Empty means all types.
	DocTypes []DocType

	// Dates restricts results to documents dated within the range.
	Dates DateRange
}

// Validate checks the filter for unknown types and inverted ranges.
func (f SearchFilter) Validate() error {
	for _, t := range f.DocTypes {
		if !t.IsValid() {
			return fmt.Errorf("%w: unknown document type %d", ErrInvalidInput, int(t))
		}
	}
	return f.Dates.Validate()
}

// Matches reports whether a document satisfies the filter.
func (f SearchFilter) Matches(docType DocType, reportDate *time.Time) bool {
	if len(f.DocTypes) > 0 && !slices.Contains(f.DocTypes, docType) {
		return false
	}
	return f.Dates.Contains(reportDate)
}

// RetrievalResult is a ranked chunk returned by similarity search.
type RetrievalResult struct {
	// Chunk is the matched excerpt. Its embedding is not populated.
	Chunk Chunk

	// Document summarises the owning document.
	Document DocumentSummary

	// Distance is the cosine distance to the query vector.
	Distance float64

	// Similarity is 1 - Distance.
	Similarity float64

	// Rank is the 1-based position in the result list.
	Rank int
}

// SortHits orders results by ascending distance. Equal distances are broken
// by newer report date (undated last), then document id, then chunk position.
func SortHits(hits []RetrievalResult) {
	slices.SortStableFunc(hits, compareHits)
}

func compareHits(a, b RetrievalResult) int {
	if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
		return c
	}
	ad, bd := a.Document.ReportDate, b.Document.ReportDate
	switch {
	case ad != nil && bd != nil:
		if c := bd.Compare(*ad); c != 0 {
			return c
		}
	case ad != nil:
		return -1
	case bd != nil:
		return 1
	}
	if c := strings.Compare(a.Document.ID, b.Document.ID); c != 0 {
		return c
	}
	return cmp.Compare(a.Chunk.Position, b.Chunk.Position)
}

// RankHits assigns 1-based ranks in slice order.
func RankHits(hits []RetrievalResult) {
	for i := range hits {
		hits[i].Rank = i + 1
	}
}

// SearchRequest is a similarity search over stored report excerpts.
type SearchRequest struct {
	// Query is the natural-language query text.
	Query string

	// Filter restricts the searched documents.
	Filter SearchFilter

	// TopK bounds the result count. Zero uses the configured default.
	TopK int

	// MinSimilarity is the inclusive similarity floor.
	// Nil uses the configured default.
	MinSimilarity *float64
}

// Validate rejects empty queries and malformed filters.
func (r SearchRequest) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return NewValidationError("search", fmt.Errorf("%w: query is empty", ErrInvalidInput))
	}
	if r.TopK < 0 {
		return NewValidationError("search", fmt.Errorf("%w: top_k must not be negative", ErrInvalidInput))
	}
	if r.MinSimilarity != nil && (*r.MinSimilarity < -1 || *r.MinSimilarity > 1) {
		return NewValidationError("search", fmt.Errorf("%w: min_similarity must be within [-1, 1]", ErrInvalidInput))
	}
	if err := r.Filter.Validate(); err != nil {
		return NewValidationError("search", err)
	}
	return nil
}

// SearchHit is one entry of a search response.
type SearchHit struct {
	Content    string     `json:"content"`
	DocID      string     `json:"doc_id"`
	Title      string     `json:"title"`
	DocType    string     `json:"doc_type"`
	ReportDate *time.Time `json:"report_date,omitempty"`
	Similarity float64    `json:"similarity"`
}

// SearchResponse is the ordered result of a search request.
type SearchResponse struct {
	Results    []SearchHit `json:"results"`
	Query      string      `json:"query"`
	TotalFound int         `json:"total_found"`
}

// NewSearchResponse converts ranked results into the response shape.
func NewSearchResponse(query string, results []RetrievalResult) *SearchResponse {
	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, SearchHit{
			Content:    r.Chunk.Content,
			DocID:      r.Document.ID,
			Title:      r.Document.Title,
			DocType:    r.Document.Type.String(),
			ReportDate: r.Document.ReportDate,
			Similarity: r.Similarity,
		})
	}
	return &SearchResponse{Results: hits, Query: query, TotalFound: len(hits)}
}

// ParseSearchFilter builds a filter from document type names and
// YYYY-MM-DD bounds. Empty values leave that part of the filter open.
func ParseSearchFilter(docTypes []string, from, to string) (SearchFilter, error) {
	var f SearchFilter
	for _, name := range docTypes {
		t, err := ParseDocType(name)
		if err != nil {
			return SearchFilter{}, err
		}
		if !slices.Contains(f.DocTypes, t) {
			f.DocTypes = append(f.DocTypes, t)
		}
	}
	if strings.TrimSpace(from) != "" {
		d, err := ParseDate(from)
		if err != nil {
			return SearchFilter{}, err
		}
		f.Dates.From = &d
	}
	if strings.TrimSpace(to) != "" {
		d, err := ParseDate(to)
		if err != nil {
			return SearchFilter{}, err
		}
		f.Dates.To = &d
	}
	return f, f.Validate()
}
