package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// SectionSeparator joins the sections of a context block.
const SectionSeparator = "\n\n---\n\n"

// Card is a titled list of facts attached to a request, e.g. a dashboard card.
type Card struct {
	Title string   `json:"title"`
	Lines []string `json:"lines"`
}

// UserData is the data the user attached to the request.
// It has the highest priority in an assembled context.
type UserData struct {
	Cards []Card
}

// IsEmpty returns true if no cards are attached.
func (u UserData) IsEmpty() bool { return len(u.Cards) == 0 }

// LiveData is optional real-time data with the lowest priority.
type LiveData struct {
	Cards []Card
}

// IsEmpty returns true if there is no live data.
func (l LiveData) IsEmpty() bool { return len(l.Cards) == 0 }

// ContextBudget bounds an assembled context block.
// All sizes are measured in characters (Unicode code points).
type ContextBudget struct {
	// MaxChars is the ceiling for the whole block. Zero means unbounded.
	MaxChars int

	// ExcerptChars is the preview length of each retrieved excerpt.
	ExcerptChars int

	// MaxExcerpts caps the number of retrieved excerpts.
	MaxExcerpts int
}

// Validate rejects negative sizes.
func (b ContextBudget) Validate() error {
	if b.MaxChars < 0 || b.ExcerptChars < 0 || b.MaxExcerpts < 0 {
		return fmt.Errorf("%w: context budget sizes must not be negative", ErrInvalidInput)
	}
	return nil
}

// ContextProfile names the section headers and item tags of a context block
// for one kind of consumer, along with its excerpt limits.
type ContextProfile struct {
	Name string

	UserHeader string
	UserTag    string

	ExcerptHeader string
	ExcerptTag    string

	// ExcerptDates appends the report date to each excerpt title.
	ExcerptDates bool

	LiveHeader string
	LiveTag    string

	ExcerptChars int
	MaxExcerpts  int
}

// ProfileChat renders context for chat completions grounded on daily reports.
var ProfileChat = ContextProfile{
	Name:          "chat",
	UserHeader:    "[USER_ATTACHED_DATA]",
	UserTag:       "[CARD]",
	ExcerptHeader: "[RELEVANT_PAST_INSIGHTS]",
	ExcerptTag:    "[PAST_REPORT]",
	ExcerptDates:  true,
	LiveHeader:    "[LIVE_DATA]",
	LiveTag:       "[LIVE]",
	ExcerptChars:  500,
	MaxExcerpts:   3,
}

// ProfileCustomReport renders context for custom report generation
// grounded on similar past custom reports.
var ProfileCustomReport = ContextProfile{
	Name:          "custom_report",
	UserHeader:    "[CURRENT_DATA]",
	UserTag:       "[DATA]",
	ExcerptHeader: "[SIMILAR_PAST_REPORTS_FOR_REFERENCE]",
	ExcerptTag:    "[REFERENCE_REPORT]",
	LiveHeader:    "[LIVE_DATA]",
	LiveTag:       "[LIVE]",
	ExcerptChars:  600,
	MaxExcerpts:   2,
}

// ProfileByName looks up a built-in profile.
func ProfileByName(name string) (ContextProfile, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ProfileChat.Name:
		return ProfileChat, nil
	case ProfileCustomReport.Name, "custom":
		return ProfileCustomReport, nil
	default:
		return ContextProfile{}, fmt.Errorf("%w: unknown context profile %q", ErrInvalidInput, name)
	}
}

// IsZero returns true if the profile has not been set.
func (p ContextProfile) IsZero() bool {
	return p.Name == "" && p.UserHeader == "" && p.ExcerptHeader == ""
}

// Budget returns a budget using the profile's excerpt limits.
func (p ContextProfile) Budget(maxChars int) ContextBudget {
	return ContextBudget{MaxChars: maxChars, ExcerptChars: p.ExcerptChars, MaxExcerpts: p.MaxExcerpts}
}

// SectionKind identifies a context section. Lower values have higher priority.
type SectionKind int

// Context sections in priority order.
const (
	SectionUserData SectionKind = iota
	SectionExcerpts
	SectionLiveData
)

// String returns the section name.
func (k SectionKind) String() string {
	switch k {
	case SectionUserData:
		return "user_data"
	case SectionExcerpts:
		return "excerpts"
	case SectionLiveData:
		return "live_data"
	default:
		return "unknown"
	}
}

// ContextSection is one rendered part of a context block.
type ContextSection struct {
	Kind      SectionKind
	Header    string
	Body      string
	Truncated bool
}

// String renders the header followed by the body.
func (s ContextSection) String() string {
	if s.Header == "" {
		return s.Body
	}
	return s.Header + "\n" + s.Body
}

// Len returns the rendered size in characters.
func (s ContextSection) Len() int {
	return utf8.RuneCountInString(s.String())
}

// ContextBlock is the assembled, size-bounded context for one query.
type ContextBlock struct {
	Sections []ContextSection

	// Excerpts is the number of retrieved excerpts included.
	Excerpts int
}

// String joins the sections with SectionSeparator.
func (b ContextBlock) String() string {
	parts := make([]string, len(b.Sections))
	for i, s := range b.Sections {
		parts[i] = s.String()
	}
	return strings.Join(parts, SectionSeparator)
}

// Len returns the rendered size in characters.
func (b ContextBlock) Len() int {
	return utf8.RuneCountInString(b.String())
}

// Section returns the section of the given kind, if present.
func (b ContextBlock) Section(kind SectionKind) (ContextSection, bool) {
	for _, s := range b.Sections {
		if s.Kind == kind {
			return s, true
		}
	}
	return ContextSection{}, false
}

// Truncated reports whether any section was cut to fit the budget.
func (b ContextBlock) Truncated() bool {
	for _, s := range b.Sections {
		if s.Truncated {
			return true
		}
	}
	return false
}

// ContextRequest asks for an assembled context grounded on past reports.
type ContextRequest struct {
	// Query is the text to embed and search for. Empty skips retrieval.
	Query string

	// Filter restricts the searched documents.
	Filter SearchFilter

	// TopK bounds the number of retrieved results. Zero uses the configured
	// default, raised to the profile's excerpt cap if smaller.
	TopK int

	// MinSimilarity is the inclusive similarity floor. Nil uses the default.
	MinSimilarity *float64

	UserData UserData
	LiveData LiveData

	// Profile selects headers and excerpt limits. Zero uses ProfileChat.
	Profile ContextProfile

	// Budget bounds the block. Zero fields use the configured defaults.
	Budget ContextBudget
}

// Validate checks the parts of the request that callers control.
func (r ContextRequest) Validate() error {
	if err := r.Filter.Validate(); err != nil {
		return NewValidationError("retrieve_context", err)
	}
	if err := r.Budget.Validate(); err != nil {
		return NewValidationError("retrieve_context", err)
	}
	if r.TopK < 0 {
		return NewValidationError("retrieve_context", fmt.Errorf("%w: top_k must not be negative", ErrInvalidInput))
	}
	return nil
}

// ContextResult is the outcome of a context retrieval.
type ContextResult struct {
	Block ContextBlock

	// Context is Block rendered as a string.
	Context string

	// Results are the retrieved hits, before excerpt capping.
	Results []RetrievalResult

	// Degraded is set when retrieval failed and the block was assembled
	// without past excerpts.
	Degraded bool

	// Warnings describe why retrieval was degraded or skipped.
	Warnings []string
}

// ChatContextRequest grounds a chat answer on daily reports of the
// last recentDays days up to and including today.
func ChatContextRequest(query string, cards []Card, today time.Time, recentDays int) ContextRequest {
	to := Date(today)
	from := to.AddDate(0, 0, -recentDays)
	return ContextRequest{
		Query: query,
		Filter: SearchFilter{
			DocTypes: []DocType{DocTypeDaily},
			Dates:    DateRange{From: &from, To: &to},
		},
		TopK:     ProfileChat.MaxExcerpts,
		UserData: UserData{Cards: cards},
		Profile:  ProfileChat,
	}
}

// CustomReportContextRequest grounds a custom report on similar past custom reports.
func CustomReportContextRequest(request string, cards []Card) ContextRequest {
	return ContextRequest{
		Query:    request,
		Filter:   SearchFilter{DocTypes: []DocType{DocTypeCustom}},
		TopK:     ProfileCustomReport.MaxExcerpts,
		UserData: UserData{Cards: cards},
		Profile:  ProfileCustomReport,
	}
}
