package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/insightpocket/insight-rag/internal/core/domain"
)

// doctorPingTimeout bounds the embedding connectivity check.
const doctorPingTimeout = 10 * time.Second

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, embedding provider and store consistency",
	Long: `Loads the configuration, pings the embedding provider and verifies the
store invariants: every chunk belongs to a stored document and chunk ordinals
of each document are contiguous from zero.

Consistency violations need manual remediation, usually by re-ingesting or
deleting the affected documents.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

// errDoctorFailed is returned when any check fails.
var errDoctorFailed = errors.New("doctor found problems")

func runDoctor(cmd *cobra.Command, _ []string) error {
	failed := false
	ok := func(format string, args ...any) {
		cmd.Printf("  %s %s\n", paint(cmd, successStyle, "✓"), fmt.Sprintf(format, args...))
	}
	fail := func(format string, args ...any) {
		failed = true
		cmd.Printf("  %s %s\n", paint(cmd, errorStyle, "✗"), fmt.Sprintf(format, args...))
	}
	skip := func(format string, args ...any) {
		cmd.Printf("  %s %s\n", paint(cmd, mutedStyle, "-"), fmt.Sprintf(format, args...))
	}

	cmd.Println(paint(cmd, headingStyle, "[Configuration]"))
	if store, err := openConfig(); err == nil {
		ok("config file %s", store.Path())
	}
	settings, err := loadSettings()
	if err != nil && retrievalService == nil {
		fail("%v", err)
		return errDoctorFailed
	}
	if settings != nil {
		ok("storage backend %s", settings.Storage.Backend)
	}

	svc, err := retrieval(cmd)
	if err != nil {
		fail("%v", err)
		return errDoctorFailed
	}
	if storeLocation != "" {
		ok("store at %s", storeLocation)
	}
	cmd.Println()

	cmd.Println(paint(cmd, headingStyle, "[Embedding]"))
	if embeddingService == nil {
		skip("no embedding provider configured; search and ingest are unavailable")
	} else {
		ctx, cancel := context.WithTimeout(cmd.Context(), doctorPingTimeout)
		err := embeddingService.Ping(ctx)
		cancel()
		if err != nil {
			fail("%s unreachable: %v", embeddingService.ModelName(), err)
		} else {
			ok("%s reachable (%d dimensions)", embeddingService.ModelName(), embeddingService.Dimensions())
		}
	}
	cmd.Println()

	cmd.Println(paint(cmd, headingStyle, "[Store]"))
	report, err := svc.Verify(cmd.Context())
	switch {
	case report == nil:
		fail("verify failed: %v", err)
	case err != nil || !report.OK():
		fail("%d documents, %d chunks", report.Documents, report.Chunks)
		for _, id := range report.OrphanChunks {
			fail("orphan chunk %s", id)
		}
		for _, g := range report.OrdinalGaps {
			fail("document %s has chunk positions %v", g.DocumentID, g.Positions)
		}
		if err != nil && !domain.IsConsistency(err) {
			fail("%v", err)
		}
	default:
		ok("%d documents, %d chunks, consistent", report.Documents, report.Chunks)
	}
	cmd.Println()

	if failed {
		return errDoctorFailed
	}
	cmd.Println(paint(cmd, successStyle, "All checks passed."))
	return nil
}
