package cli

import (
	"github.com/spf13/cobra"

	"github.com/insightpocket/insight-rag/internal/adapters/driving/watcher"
)

var (
	watchScan   bool
	watchDelete bool
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Ingest reports written to a directory",
	Long: `Watches a directory of Markdown reports and ingests each file when it
is created or written. Reports are ingested one at a time.

The file name decides the document: daily_YYYY-MM-DD.md is the DAILY report
for that date, rule_*.md is a RULE document and anything else is a CUSTOM
report. Hidden files and non-Markdown files are ignored.

Stop with Ctrl+C.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchScan, "scan", true, "ingest reports already in the directory first")
	watchCmd.Flags().BoolVar(&watchDelete, "delete", false, "delete stored reports when their file is removed")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	svc, err := retrieval(cmd)
	if err != nil {
		return err
	}

	w := watcher.New(args[0], svc,
		watcher.WithDeleteOnRemove(watchDelete),
		watcher.WithReporter(func(change watcher.Change, err error) {
			reportChange(cmd, change, err)
		}),
	)
	if err := w.Validate(); err != nil {
		return err
	}

	if watchScan {
		n, err := w.Scan(cmd.Context())
		if err != nil {
			return err
		}
		cmd.Printf("Scanned %s: %d report(s) ingested\n", w.Dir(), n)
	}

	cmd.Printf("Watching %s %s\n", w.Dir(), paint(cmd, mutedStyle, "(Ctrl+C to stop)"))
	return w.Run(cmd.Context())
}

func reportChange(cmd *cobra.Command, change watcher.Change, err error) {
	if err != nil {
		cmd.PrintErrf("%s %s %s: %v\n", paintErr(cmd, errorStyle, "Failed"), change.Type, change.Path, err)
		return
	}
	label := "Ingested"
	if change.Type == watcher.ChangeDeleted {
		label = "Deleted"
	}
	cmd.Printf("%s %s\n", paint(cmd, successStyle, label), change.DocID())
}
