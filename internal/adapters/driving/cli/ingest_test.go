package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightpocket/insight-rag/internal/core/domain"
)

func writeReport(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestIngestCmd_Use(t *testing.T) {
	assert.Equal(t, "ingest [file]", ingestCmd.Use)
	for _, name := range []string{"id", "type", "title", "date"} {
		assert.NotNil(t, ingestCmd.Flags().Lookup(name), "%s flag should exist", name)
	}
}

func TestIngestCmd_InfersDailyReport(t *testing.T) {
	svc := &mockRetrievalService{}
	cleanup := setupTestServices(svc)
	defer cleanup()

	path := writeReport(t, "daily_2025-01-15.md", "# Daily Summary\nRevenue up.")
	out, err := runRoot("ingest", path)

	require.NoError(t, err)
	assert.Contains(t, out, "Ingested daily_2025-01-15 (DAILY, 2 chunks)")

	reqs := svc.ingested()
	require.Len(t, reqs, 1)
	assert.Equal(t, "daily_2025-01-15", reqs[0].DocID)
	assert.Equal(t, domain.DocTypeDaily, reqs[0].Type)
	assert.Equal(t, "Daily Summary", reqs[0].Title)
	require.NotNil(t, reqs[0].ReportDate)
	assert.Equal(t, "2025-01-15", reqs[0].ReportDate.Format(time.DateOnly))
}

func TestIngestCmd_FlagsOverrideInference(t *testing.T) {
	svc := &mockRetrievalService{}
	cleanup := setupTestServices(svc)
	defer cleanup()

	path := writeReport(t, "analysis.md", "# Heading")
	_, err := runRoot("ingest", path, "--id", "custom_q4", "--title", "Q4 churn")

	require.NoError(t, err)
	req := svc.ingested()[0]
	assert.Equal(t, "custom_q4", req.DocID)
	assert.Equal(t, domain.DocTypeCustom, req.Type)
	assert.Equal(t, "Q4 churn", req.Title)
	assert.Nil(t, req.ReportDate)
}

func TestIngestCmd_DailyTypeWithDate(t *testing.T) {
	svc := &mockRetrievalService{}
	cleanup := setupTestServices(svc)
	defer cleanup()

	path := writeReport(t, "today.md", "body")
	_, err := runRoot("ingest", path, "--type", "daily", "--date", "2025-01-18")

	require.NoError(t, err)
	req := svc.ingested()[0]
	assert.Equal(t, "daily_2025-01-18", req.DocID)
	assert.Equal(t, domain.DocTypeDaily, req.Type)
	assert.Equal(t, "2025-01-18", req.ReportDate.Format(time.DateOnly))
}

func TestIngestCmd_DailyTypeDefaultsToToday(t *testing.T) {
	svc := &mockRetrievalService{}
	cleanup := setupTestServices(svc)
	defer cleanup()

	path := writeReport(t, "today.md", "body")
	_, err := runRoot("ingest", path, "--type", "DAILY")

	require.NoError(t, err)
	assert.Equal(t, "daily_2025-01-20", svc.ingested()[0].DocID)
}

func TestIngestCmd_FromStdin(t *testing.T) {
	svc := &mockRetrievalService{}
	cleanup := setupTestServices(svc)
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(bytes.NewBufferString("# Rules\nAlways cite numbers."))
	rootCmd.SetArgs([]string{"ingest", "-", "--type", "rule"})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()

	require.NoError(t, err)
	req := svc.ingested()[0]
	assert.Equal(t, domain.DefaultRuleDocID, req.DocID)
	assert.Equal(t, domain.DocTypeRule, req.Type)
	assert.Equal(t, "Rules", req.Title)
	assert.Equal(t, "# Rules\nAlways cite numbers.", req.Body)
}

func TestIngestCmd_StdinCustomRequiresID(t *testing.T) {
	svc := &mockRetrievalService{}
	cleanup := setupTestServices(svc)
	defer cleanup()

	_, err := runRoot("ingest", "-")

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, svc.ingested())
}

func TestIngestCmd_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "missing file", args: []string{"ingest", "/does/not/exist.md"}},
		{name: "invalid type", args: []string{"ingest", "", "--type", "weekly"}},
		{name: "invalid date", args: []string{"ingest", "", "--date", "2025-13-40"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockRetrievalService{}
			cleanup := setupTestServices(svc)
			defer cleanup()

			args := append([]string(nil), tt.args...)
			if args[1] == "" {
				args[1] = writeReport(t, "r.md", "body")
			}
			_, err := runRoot(args...)

			assert.Error(t, err)
			assert.Empty(t, svc.ingested())
		})
	}
}

func TestIngestCmd_ServiceError(t *testing.T) {
	cleanup := setupTestServices(&mockRetrievalService{
		err: domain.NewFatalError("ingest", domain.ErrDimensionMismatch),
	})
	defer cleanup()

	_, err := runRoot("ingest", writeReport(t, "r.md", "body"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest failed")
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}
