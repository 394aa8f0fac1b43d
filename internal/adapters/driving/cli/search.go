package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/insightpocket/insight-rag/internal/core/domain"
)

// snippetChars is the preview length of a hit in table output.
const snippetChars = 200

var (
	searchTypes         []string
	searchFrom          string
	searchTo            string
	searchLimit         int
	searchMinSimilarity float64
	searchJSON          bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search stored reports",
	Long: `Embeds the query and returns the most similar report excerpts,
ranked by cosine similarity. Results below the similarity floor are dropped.

Examples:
  insight-rag search "why did revenue drop"
  insight-rag search "churn" --type daily --from 2025-01-01 --to 2025-01-31
  insight-rag search "pricing" --limit 3 --min-similarity 0.5 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	addFilterFlags(searchCmd, &searchTypes, &searchFrom, &searchTo)
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "maximum number of results (0 = configured top_k)")
	searchCmd.Flags().Float64Var(&searchMinSimilarity, "min-similarity", -2, "similarity floor in [-1, 1] (default: configured)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

// addFilterFlags registers the document type and date range flags.
func addFilterFlags(cmd *cobra.Command, types *[]string, from, to *string) {
	cmd.Flags().StringSliceVarP(types, "type", "t", nil, "restrict to document types (rule, daily, custom)")
	cmd.Flags().StringVar(from, "from", "", "earliest report date (YYYY-MM-DD)")
	cmd.Flags().StringVar(to, "to", "", "latest report date (YYYY-MM-DD)")
}

func runSearch(cmd *cobra.Command, args []string) error {
	svc, err := retrieval(cmd)
	if err != nil {
		return err
	}

	filter, err := domain.ParseSearchFilter(searchTypes, searchFrom, searchTo)
	if err != nil {
		return err
	}

	req := domain.SearchRequest{
		Query:  args[0],
		Filter: filter,
		TopK:   searchLimit,
	}
	if searchMinSimilarity >= -1 {
		minSim := searchMinSimilarity
		req.MinSimilarity = &minSim
	}

	resp, err := svc.Search(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputJSON(cmd, resp)
	}
	return outputSearchTable(cmd, resp)
}

func outputJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, resp *domain.SearchResponse) error {
	if len(resp.Results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println(paint(cmd, headingStyle, "Results:"))
	cmd.Println()
	for i, hit := range resp.Results {
		title := hit.Title
		if title == "" {
			title = hit.DocID
		}

		// Format: [N] Title (similarity)
		cmd.Printf("  [%d] %s %s\n", i+1, paint(cmd, accentStyle, title),
			paint(cmd, mutedStyle, fmt.Sprintf("(%.2f)", hit.Similarity)))
		cmd.Printf("      %s\n", paint(cmd, mutedStyle, hitMeta(hit)))
		if preview := snippet(hit.Content, snippetChars); preview != "" {
			cmd.Printf("      %s\n", preview)
		}
		cmd.Println()
	}
	cmd.Printf("Total: %d result(s)\n", resp.TotalFound)
	return nil
}

func hitMeta(hit domain.SearchHit) string {
	parts := []string{hit.DocID, hit.DocType}
	if hit.ReportDate != nil {
		parts = append(parts, hit.ReportDate.Format(time.DateOnly))
	}
	return strings.Join(parts, " · ")
}

// snippet flattens whitespace and cuts s to n characters.
func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
