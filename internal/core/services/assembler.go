package services

import (
	"strings"
	"unicode/utf8"

	"github.com/insightpocket/insight-rag/internal/core/domain"
)

// excerptEllipsis marks an excerpt cut to its preview length.
const excerptEllipsis = "..."

// Assembler renders user data, retrieved excerpts and live data into a
// context block. The zero value renders with domain.ProfileChat.
type Assembler struct {
	Profile domain.ContextProfile
}

// Assemble builds the block in priority order: user data, excerpts, live
// data. Empty parts are omitted. When the block exceeds budget.MaxChars the
// lowest-priority section is cut from its end first, and dropped once its
// body would be empty, before any higher-priority section is touched.
// ExcerptChars and MaxExcerpts of zero leave excerpts uncut and uncapped.
func (a Assembler) Assemble(
	user domain.UserData,
	results []domain.RetrievalResult,
	live domain.LiveData,
	budget domain.ContextBudget,
) domain.ContextBlock {
	profile := a.Profile
	if profile.IsZero() {
		profile = domain.ProfileChat
	}

	var block domain.ContextBlock
	if !user.IsEmpty() {
		block.Sections = append(block.Sections, domain.ContextSection{
			Kind:   domain.SectionUserData,
			Header: profile.UserHeader,
			Body:   renderCards(profile.UserTag, user.Cards),
		})
	}

	excerpts := results
	if budget.MaxExcerpts > 0 && len(excerpts) > budget.MaxExcerpts {
		excerpts = excerpts[:budget.MaxExcerpts]
	}
	if len(excerpts) > 0 {
		block.Sections = append(block.Sections, domain.ContextSection{
			Kind:   domain.SectionExcerpts,
			Header: profile.ExcerptHeader,
			Body:   renderExcerpts(profile, excerpts, budget.ExcerptChars),
		})
		block.Excerpts = len(excerpts)
	}

	if !live.IsEmpty() {
		block.Sections = append(block.Sections, domain.ContextSection{
			Kind:   domain.SectionLiveData,
			Header: profile.LiveHeader,
			Body:   renderCards(profile.LiveTag, live.Cards),
		})
	}

	if budget.MaxChars > 0 {
		fitBudget(&block, budget.MaxChars)
	}
	return block
}

// fitBudget trims sections from the lowest priority up until the block
// fits in maxChars.
func fitBudget(block *domain.ContextBlock, maxChars int) {
	excess := block.Len() - maxChars
	sepLen := utf8.RuneCountInString(domain.SectionSeparator)

	for excess > 0 && len(block.Sections) > 0 {
		last := len(block.Sections) - 1
		sec := &block.Sections[last]
		bodyLen := utf8.RuneCountInString(sec.Body)

		if excess < bodyLen {
			sec.Body = truncateRunes(sec.Body, bodyLen-excess)
			sec.Truncated = true
			return
		}

		excess -= sec.Len()
		if last > 0 {
			excess -= sepLen
		}
		if sec.Kind == domain.SectionExcerpts {
			block.Excerpts = 0
		}
		block.Sections = block.Sections[:last]
	}
}

// renderCards renders each card as a tagged title followed by its lines
// as a bullet list.
func renderCards(tag string, cards []domain.Card) string {
	parts := make([]string, 0, len(cards))
	for _, card := range cards {
		var b strings.Builder
		b.WriteString(tagged(tag, card.Title))
		if len(card.Lines) == 0 {
			b.WriteString("\n- (no lines)")
		}
		for _, line := range card.Lines {
			b.WriteString("\n- ")
			b.WriteString(line)
		}
		parts = append(parts, b.String())
	}
	return strings.Join(parts, "\n\n")
}

// renderExcerpts renders each hit as a tagged title and its content cut to
// excerptChars characters.
func renderExcerpts(profile domain.ContextProfile, hits []domain.RetrievalResult, excerptChars int) string {
	parts := make([]string, 0, len(hits))
	for _, hit := range hits {
		title := hit.Document.Title
		if title == "" {
			title = hit.Document.ID
		}
		if profile.ExcerptDates && hit.Document.ReportDate != nil {
			title += " (" + hit.Document.ReportDate.Format("2006-01-02") + ")"
		}

		content := hit.Chunk.Content
		if excerptChars > 0 && utf8.RuneCountInString(content) > excerptChars {
			content = truncateRunes(content, excerptChars) + excerptEllipsis
		}
		parts = append(parts, tagged(profile.ExcerptTag, title)+"\n"+content)
	}
	return strings.Join(parts, "\n\n")
}

func tagged(tag, title string) string {
	if tag == "" {
		return title
	}
	return tag + " " + title
}

// truncateRunes returns the first n characters of s.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
