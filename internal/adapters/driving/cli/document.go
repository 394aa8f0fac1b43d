package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/insightpocket/insight-rag/internal/core/domain"
)

var documentCmd = &cobra.Command{
	Use:     "doc",
	Aliases: []string{"document"},
	Short:   "Manage stored reports",
	Long:    `List, view or delete stored reports and print the current rule document.`,
}

var documentGetCmd = &cobra.Command{
	Use:   "get [doc-id]",
	Short: "Show a stored report",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentGet,
}

var documentDeleteCmd = &cobra.Command{
	Use:   "delete [doc-id]",
	Short: "Delete a report and its chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentDelete,
}

var documentLatestCmd = &cobra.Command{
	Use:   "latest [type]",
	Short: "Show the most recent report of a type",
	Long:  `Shows the most recently dated report of a type (rule, daily or custom).`,
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentLatest,
}

var documentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored reports",
	Args:  cobra.NoArgs,
	RunE:  runDocumentList,
}

var documentRuleCmd = &cobra.Command{
	Use:   "rule",
	Short: "Print the rule document",
	Args:  cobra.NoArgs,
	RunE:  runDocumentRule,
}

var (
	docBodyOnly  bool
	docListTypes []string
	docListFrom  string
	docListTo    string
	docListJSON  bool
)

func init() {
	documentGetCmd.Flags().BoolVar(&docBodyOnly, "body", false, "print only the report body")
	documentLatestCmd.Flags().BoolVar(&docBodyOnly, "body", false, "print only the report body")
	addFilterFlags(documentListCmd, &docListTypes, &docListFrom, &docListTo)
	documentListCmd.Flags().BoolVar(&docListJSON, "json", false, "output documents as JSON")

	documentCmd.AddCommand(documentGetCmd)
	documentCmd.AddCommand(documentDeleteCmd)
	documentCmd.AddCommand(documentLatestCmd)
	documentCmd.AddCommand(documentListCmd)
	documentCmd.AddCommand(documentRuleCmd)
	rootCmd.AddCommand(documentCmd)
}

func runDocumentGet(cmd *cobra.Command, args []string) error {
	svc, err := retrieval(cmd)
	if err != nil {
		return err
	}

	doc, err := svc.GetDocument(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	printDocument(cmd, doc)
	return nil
}

func runDocumentDelete(cmd *cobra.Command, args []string) error {
	svc, err := retrieval(cmd)
	if err != nil {
		return err
	}

	if err := svc.DeleteDocument(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	cmd.Printf("Deleted document: %s\n", args[0])
	return nil
}

func runDocumentLatest(cmd *cobra.Command, args []string) error {
	svc, err := retrieval(cmd)
	if err != nil {
		return err
	}

	docType, err := domain.ParseDocType(args[0])
	if err != nil {
		return err
	}

	doc, err := svc.LatestDocument(cmd.Context(), docType)
	if errors.Is(err, domain.ErrNotFound) {
		cmd.Printf("No %s reports stored.\n", docType)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get latest document: %w", err)
	}

	printDocument(cmd, doc)
	return nil
}

// documentOutput is the JSON shape of a listed document.
type documentOutput struct {
	ID         string     `json:"doc_id"`
	Type       string     `json:"doc_type"`
	Title      string     `json:"title"`
	ReportDate *time.Time `json:"report_date,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func runDocumentList(cmd *cobra.Command, _ []string) error {
	svc, err := retrieval(cmd)
	if err != nil {
		return err
	}

	filter, err := domain.ParseSearchFilter(docListTypes, docListFrom, docListTo)
	if err != nil {
		return err
	}

	docs, err := svc.ListDocuments(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if docListJSON {
		out := make([]documentOutput, 0, len(docs))
		for i := range docs {
			out = append(out, documentOutput{
				ID:         docs[i].ID,
				Type:       docs[i].Type.String(),
				Title:      docs[i].Title,
				ReportDate: docs[i].ReportDate,
				CreatedAt:  docs[i].CreatedAt,
			})
		}
		return outputJSON(cmd, out)
	}

	if len(docs) == 0 {
		cmd.Println("No documents found.")
		return nil
	}

	cmd.Println(paint(cmd, headingStyle, "Documents:"))
	cmd.Println()
	for i := range docs {
		cmd.Printf("  %s\n", paint(cmd, accentStyle, docs[i].ID))
		cmd.Printf("    Title: %s\n", docs[i].Title)
		cmd.Printf("    Type:  %s\n", docs[i].Type)
		if docs[i].ReportDate != nil {
			cmd.Printf("    Date:  %s\n", docs[i].ReportDate.Format(time.DateOnly))
		}
		cmd.Println()
	}

	cmd.Printf("Total: %d documents\n", len(docs))
	return nil
}

func runDocumentRule(cmd *cobra.Command, _ []string) error {
	svc, err := retrieval(cmd)
	if err != nil {
		return err
	}

	rule, err := svc.RuleDocument(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get rule document: %w", err)
	}
	if rule == "" {
		cmd.Println("No rule document stored.")
		return nil
	}
	cmd.Println(rule)
	return nil
}

func printDocument(cmd *cobra.Command, doc *domain.Document) {
	if docBodyOnly {
		cmd.Println(doc.Body)
		return
	}

	cmd.Printf("%s %s\n\n", paint(cmd, headingStyle, "Document:"), doc.ID)
	cmd.Printf("  Title:    %s\n", doc.Title)
	cmd.Printf("  Type:     %s\n", doc.Type)
	if doc.ReportDate != nil {
		cmd.Printf("  Date:     %s\n", doc.ReportDate.Format(time.DateOnly))
	}
	if !doc.CreatedAt.IsZero() {
		cmd.Printf("  Stored:   %s\n", doc.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	cmd.Println()
	cmd.Println(doc.Body)
}
