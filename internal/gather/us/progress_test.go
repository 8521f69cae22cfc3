package us

import (
	"os"
	"path/filepath"
	"testing"
)

func TestProgressTrackerMarkBatch(t *testing.T) {
	dir := t.TempDir()

	pt, err := newProgressTracker(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := pt.Begin("2025-02-10"); err != nil {
		t.Fatal(err)
	}
	if err := pt.MarkBatch([]string{"AAPL", "MSFT"}, []string{"ZZZZ"}); err != nil {
		t.Fatal(err)
	}

	// Reload and verify.
	pt2, err := newProgressTracker(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got := pt2.Pending([]string{"AAPL", "GOOGL", "MSFT", "ZZZZ"}); len(got) != 1 || got[0] != "GOOGL" {
		t.Errorf("Pending after reload = %v, want [GOOGL]", got)
	}
	if !pt2.IsEmpty("ZZZZ") {
		t.Error("ZZZZ should be recorded as empty")
	}
	if pt2.IsEmpty("AAPL") {
		t.Error("AAPL should not be empty")
	}
}

func TestProgressTrackerCompleted(t *testing.T) {
	dir := t.TempDir()

	pt, err := newProgressTracker(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := pt.Begin("2025-02-10"); err != nil {
		t.Fatal(err)
	}
	if pt.IsCompleted("2025-02-10") {
		t.Error("should not be completed before marking")
	}
	if err := pt.MarkCompleted(); err != nil {
		t.Fatal(err)
	}
	if !pt.IsCompleted("2025-02-10") {
		t.Error("should be completed after marking")
	}
	if pt.IsCompleted("2025-02-11") {
		t.Error("should not be completed for a different date")
	}
}

func TestProgressTrackerNewEndDateResets(t *testing.T) {
	dir := t.TempDir()

	pt, err := newProgressTracker(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := pt.Begin("2025-02-10"); err != nil {
		t.Fatal(err)
	}
	if err := pt.MarkBatch([]string{"AAPL"}, []string{"ZZZZ"}); err != nil {
		t.Fatal(err)
	}
	if err := pt.MarkCompleted(); err != nil {
		t.Fatal(err)
	}

	// Same end date resumes without clearing.
	if err := pt.Begin("2025-02-10"); err != nil {
		t.Fatal(err)
	}
	if got := pt.Pending([]string{"AAPL"}); len(got) != 0 {
		t.Errorf("Pending for same end date = %v, want none", got)
	}

	if err := pt.Begin("2025-02-11"); err != nil {
		t.Fatal(err)
	}
	if got := pt.Pending([]string{"AAPL", "ZZZZ"}); len(got) != 2 {
		t.Errorf("Pending after reset = %v, want both tickers", got)
	}
	if pt.IsCompleted("2025-02-10") || pt.IsCompleted("2025-02-11") {
		t.Error("reset should clear completion")
	}
}

func TestProgressTrackerCorruptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, progressFile), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := newProgressTracker(dir); err == nil {
		t.Fatal("expected an error for a corrupt progress file")
	}
}
