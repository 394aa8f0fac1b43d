package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestContextBlock_String tests section rendering and joining
func TestContextBlock_String(t *testing.T) {
	b := ContextBlock{Sections: []ContextSection{
		{Kind: SectionUserData, Header: "[USER_ATTACHED_DATA]", Body: "[CARD] Sales\n  - up 3%"},
		{Kind: SectionExcerpts, Header: "[RELEVANT_PAST_INSIGHTS]", Body: "x"},
	}}

	want := "[USER_ATTACHED_DATA]\n[CARD] Sales\n  - up 3%\n\n---\n\n[RELEVANT_PAST_INSIGHTS]\nx"
	assert.Equal(t, want, b.String())
	assert.Equal(t, len([]rune(want)), b.Len())
	assert.Equal(t, "", ContextBlock{}.String())

	s, ok := b.Section(SectionExcerpts)
	require.True(t, ok)
	assert.Equal(t, "x", s.Body)
	_, ok = b.Section(SectionLiveData)
	assert.False(t, ok)
	assert.False(t, b.Truncated())
}

// TestContextSection_Len tests that sizes count characters, not bytes
func TestContextSection_Len(t *testing.T) {
	s := ContextSection{Header: "[H]", Body: "매출 증가"}
	assert.Equal(t, 9, s.Len())
}

// TestProfileByName tests built-in profile lookup
func TestProfileByName(t *testing.T) {
	p, err := ProfileByName("")
	require.NoError(t, err)
	assert.Equal(t, ProfileChat, p)

	p, err = ProfileByName("custom_report")
	require.NoError(t, err)
	assert.Equal(t, ProfileCustomReport, p)

	_, err = ProfileByName("weekly")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

// TestContextProfile_Budget tests budgets derived from profiles
func TestContextProfile_Budget(t *testing.T) {
	b := ProfileCustomReport.Budget(4000)
	assert.Equal(t, ContextBudget{MaxChars: 4000, ExcerptChars: 600, MaxExcerpts: 2}, b)
	assert.True(t, ContextProfile{}.IsZero())
	assert.False(t, ProfileChat.IsZero())
}

// TestChatContextRequest tests the recent daily reports preset
func TestChatContextRequest(t *testing.T) {
	today := time.Date(2026, 2, 14, 18, 30, 0, 0, time.UTC)
	cards := []Card{{Title: "Sales", Lines: []string{"up"}}}

	req := ChatContextRequest("why did sales rise?", cards, today, 14)

	assert.Equal(t, []DocType{DocTypeDaily}, req.Filter.DocTypes)
	require.NotNil(t, req.Filter.Dates.From)
	require.NotNil(t, req.Filter.Dates.To)
	assert.Equal(t, "2026-01-31", req.Filter.Dates.From.Format(time.DateOnly))
	assert.Equal(t, "2026-02-14", req.Filter.Dates.To.Format(time.DateOnly))
	assert.Equal(t, ProfileChat, req.Profile)
	assert.Equal(t, 3, req.TopK)
	assert.Equal(t, cards, req.UserData.Cards)
	assert.NoError(t, req.Validate())
}

// TestCustomReportContextRequest tests the similar custom reports preset
func TestCustomReportContextRequest(t *testing.T) {
	req := CustomReportContextRequest("weekly margin review", nil)

	assert.Equal(t, []DocType{DocTypeCustom}, req.Filter.DocTypes)
	assert.True(t, req.Filter.Dates.IsZero())
	assert.Equal(t, ProfileCustomReport, req.Profile)
	assert.Equal(t, 2, req.TopK)
}

// TestContextRequest_Validate tests context request validation
func TestContextRequest_Validate(t *testing.T) {
	assert.NoError(t, ContextRequest{}.Validate())

	err := ContextRequest{Budget: ContextBudget{MaxChars: -1}}.Validate()
	assert.True(t, IsValidation(err))

	err = ContextRequest{Filter: SearchFilter{DocTypes: []DocType{9}}}.Validate()
	assert.True(t, IsValidation(err))
}
