package logger

import (
	"bytes"
	"os"
	"sync"
	"testing"
)

// capture redirects output for the duration of a test and restores defaults.
func capture(t *testing.T, verboseMode bool) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(verboseMode)
	t.Cleanup(func() {
		SetVerbose(false)
		SetOutput(os.Stderr)
	})
	return &buf
}

func TestSetVerbose(t *testing.T) {
	capture(t, false)

	if IsVerbose() {
		t.Error("expected verbose to be false initially")
	}
	SetVerbose(true)
	if !IsVerbose() {
		t.Error("expected verbose to be true after SetVerbose(true)")
	}
	SetVerbose(false)
	if IsVerbose() {
		t.Error("expected verbose to be false after SetVerbose(false)")
	}
}

func TestVerboseOutput(t *testing.T) {
	tests := []struct {
		name string
		log  func()
		want string
	}{
		{"debug", func() { Debug("embedding %d chunks", 3) }, "[DEBUG] embedding 3 chunks\n"},
		{"info", func() { Info("ingested %s", "daily_2026-02-08") }, "[INFO] ingested daily_2026-02-08\n"},
		{"warn", func() { Warn("retrieval degraded") }, "[WARN] retrieval degraded\n"},
		{"section", func() { Section("Retrieve Context") }, "\n=== Retrieve Context ===\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := capture(t, true)
			tt.log()
			if got := buf.String(); got != tt.want {
				t.Errorf("unexpected output: %q", got)
			}
		})

		t.Run(tt.name+" silent when not verbose", func(t *testing.T) {
			buf := capture(t, false)
			tt.log()
			if buf.Len() > 0 {
				t.Errorf("expected no output, got %q", buf.String())
			}
		})
	}
}

func TestError_AlwaysPrinted(t *testing.T) {
	buf := capture(t, false)

	Error("orphaned chunks: %d", 2)

	if got := buf.String(); got != "[ERROR] orphaned chunks: 2\n" {
		t.Errorf("unexpected error output: %q", got)
	}
}

func TestConcurrentAccess(t *testing.T) {
	capture(t, false)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			SetVerbose(true)
			Debug("concurrent %d", i)
			Error("concurrent %d", i)
			IsVerbose()
			SetVerbose(false)
		}()
	}
	wg.Wait()
}
