package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/insightpocket/insight-rag/internal/core/domain"
)

var (
	contextCards   []string
	contextLive    []string
	contextBudget  int
	contextProfile string
	contextTypes   []string
	contextFrom    string
	contextTo      string
	contextLimit   int
	contextJSON    bool
)

// now is replaced in tests.
var now = time.Now

var contextCmd = &cobra.Command{
	Use:   "context [query]",
	Short: "Assemble a context block for a query",
	Long: `Builds the context block a model would receive: attached cards first,
then the most relevant past report excerpts, then live data, bounded by the
character budget.

The chat profile searches daily reports of the recent window; the
custom_report profile searches past custom reports. Retrieval failures
degrade the block instead of failing the command.

Cards use the form "Title=line one;line two".

Examples:
  insight-rag context "why did revenue drop" --card "Revenue=Today: 1200;Yesterday: 1500"
  insight-rag context "quarterly churn deep dive" --profile custom_report --budget 3000`,
	Args: cobra.ExactArgs(1),
	RunE: runContext,
}

func init() {
	contextCmd.Flags().StringArrayVar(&contextCards, "card", nil, `attached card "Title=line1;line2" (repeatable)`)
	contextCmd.Flags().StringArrayVar(&contextLive, "live", nil, `live data card "Title=line1;line2" (repeatable)`)
	contextCmd.Flags().IntVar(&contextBudget, "budget", 0, "maximum characters of the block (0 = configured)")
	contextCmd.Flags().StringVar(&contextProfile, "profile", domain.ProfileChat.Name, "context profile (chat, custom_report)")
	addFilterFlags(contextCmd, &contextTypes, &contextFrom, &contextTo)
	contextCmd.Flags().IntVarP(&contextLimit, "limit", "n", 0, "maximum number of retrieved results (0 = profile default)")
	contextCmd.Flags().BoolVar(&contextJSON, "json", false, "output the result as JSON")
	rootCmd.AddCommand(contextCmd)
}

// contextOutput is the JSON shape of an assembled context.
type contextOutput struct {
	Context  string             `json:"context"`
	Length   int                `json:"length"`
	Degraded bool               `json:"degraded"`
	Warnings []string           `json:"warnings,omitempty"`
	Results  []domain.SearchHit `json:"results"`
}

func runContext(cmd *cobra.Command, args []string) error {
	svc, err := retrieval(cmd)
	if err != nil {
		return err
	}

	req, err := buildContextRequest(args[0])
	if err != nil {
		return err
	}

	result, err := svc.RetrieveContext(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("context failed: %w", err)
	}

	if contextJSON {
		return outputJSON(cmd, contextOutput{
			Context:  result.Context,
			Length:   result.Block.Len(),
			Degraded: result.Degraded,
			Warnings: result.Warnings,
			Results:  domain.NewSearchResponse(req.Query, result.Results).Results,
		})
	}

	for _, w := range result.Warnings {
		cmd.PrintErrln(paintErr(cmd, warningStyle, "Warning: "+w))
	}
	if result.Context == "" {
		cmd.Println("No context assembled.")
		return nil
	}
	cmd.Println(result.Context)
	return nil
}

func buildContextRequest(query string) (domain.ContextRequest, error) {
	profile, err := domain.ProfileByName(contextProfile)
	if err != nil {
		return domain.ContextRequest{}, err
	}
	cards, err := parseCards(contextCards)
	if err != nil {
		return domain.ContextRequest{}, err
	}
	live, err := parseCards(contextLive)
	if err != nil {
		return domain.ContextRequest{}, err
	}

	var req domain.ContextRequest
	if profile.Name == domain.ProfileCustomReport.Name {
		req = domain.CustomReportContextRequest(query, cards)
	} else {
		req = domain.ChatContextRequest(query, cards, now(), recentDays())
	}
	req.LiveData = domain.LiveData{Cards: live}
	req.Budget.MaxChars = contextBudget

	if len(contextTypes) > 0 || contextFrom != "" || contextTo != "" {
		filter, err := domain.ParseSearchFilter(contextTypes, contextFrom, contextTo)
		if err != nil {
			return domain.ContextRequest{}, err
		}
		req.Filter = filter
	}
	if contextLimit > 0 {
		req.TopK = contextLimit
	}
	return req, nil
}

// parseCards parses "Title=line1;line2" values. A value without "=" is a
// card with a title and no lines.
func parseCards(values []string) ([]domain.Card, error) {
	cards := make([]domain.Card, 0, len(values))
	for _, v := range values {
		title, rest, _ := strings.Cut(v, "=")
		title = strings.TrimSpace(title)
		if title == "" {
			return nil, fmt.Errorf("%w: card %q has no title", domain.ErrInvalidInput, v)
		}
		card := domain.Card{Title: title}
		for _, line := range strings.Split(rest, ";") {
			if line = strings.TrimSpace(line); line != "" {
				card.Lines = append(card.Lines, line)
			}
		}
		cards = append(cards, card)
	}
	return cards, nil
}
