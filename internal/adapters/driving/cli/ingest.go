package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/insightpocket/insight-rag/internal/adapters/driving/watcher"
	"github.com/insightpocket/insight-rag/internal/core/domain"
)

var (
	ingestID    string
	ingestType  string
	ingestTitle string
	ingestDate  string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Store a report",
	Long: `Chunks, embeds and stores a Markdown report, replacing any previous
version with the same id. Use "-" to read the report from stdin.

The id, type, title and date default to what the file name implies:
daily_YYYY-MM-DD.md is the DAILY report for that date, rule_*.md is a RULE
document and anything else is a CUSTOM report titled by its first heading.

Examples:
  insight-rag ingest reports/daily_2025-01-15.md
  insight-rag ingest analysis.md --type custom --title "Q4 churn"
  cat today.md | insight-rag ingest - --type daily --date 2025-01-15`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestID, "id", "", "document id (default: file name without extension)")
	ingestCmd.Flags().StringVar(&ingestType, "type", "", "document type: rule, daily or custom")
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "document title (default: first heading)")
	ingestCmd.Flags().StringVar(&ingestDate, "date", "", "report date for daily reports (YYYY-MM-DD)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	svc, err := retrieval(cmd)
	if err != nil {
		return err
	}

	body, err := readReport(cmd, args[0])
	if err != nil {
		return err
	}

	req, err := buildIngestRequest(args[0], body)
	if err != nil {
		return err
	}

	result, err := svc.Ingest(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	cmd.Printf("%s %s (%s, %d chunks)\n", paint(cmd, successStyle, "Ingested"),
		result.DocID, req.Type, result.ChunkCount)
	return nil
}

func readReport(cmd *cobra.Command, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("reading report: %w", err)
	}
	return string(data), nil
}

// buildIngestRequest infers the request from the path and applies the flags.
func buildIngestRequest(path, body string) (domain.IngestRequest, error) {
	req := watcher.InferRequest(path, body)
	if path == "-" {
		req = domain.IngestRequest{Type: domain.DocTypeCustom, Body: body}
		req.Title = watcher.InferTitle(body, "")
	}

	if ingestType != "" {
		t, err := domain.ParseDocType(ingestType)
		if err != nil {
			return domain.IngestRequest{}, err
		}
		if t != req.Type {
			req.Type = t
			req.ReportDate = nil
		}
	}

	if ingestDate != "" {
		date, err := domain.ParseDate(ingestDate)
		if err != nil {
			return domain.IngestRequest{}, err
		}
		req.ReportDate = &date
	}

	switch req.Type {
	case domain.DocTypeDaily:
		if req.ReportDate == nil {
			today := domain.Date(now())
			req.ReportDate = &today
		}
		if ingestID == "" {
			req.DocID = domain.DailyDocID(*req.ReportDate)
		}
	case domain.DocTypeRule:
		if req.DocID == "" {
			req.DocID = domain.DefaultRuleDocID
		}
	}

	if ingestID != "" {
		req.DocID = ingestID
	}
	if req.DocID == "" {
		return domain.IngestRequest{}, fmt.Errorf("%w: --id is required when reading from stdin", domain.ErrInvalidInput)
	}
	if ingestTitle != "" {
		req.Title = ingestTitle
	}
	if req.Title == "" {
		req.Title = req.DocID
	}
	return req, nil
}
