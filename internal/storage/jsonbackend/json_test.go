package jsonbackend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/FranksOps/firstlink/internal/storage"
)

func TestJSONBackend(t *testing.T) {
	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "results.jsonl")

	b, err := New(filePath)
	if err != nil {
		t.Fatalf("Failed to create JSON backend: %v", err)
	}

	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond).UTC()

	run1 := []*storage.Result{
		{RunID: "run1", Index: 1, Query: "a", URL: "https://a.example/", Engine: "chrome", Duration: 1200 * time.Millisecond, CreatedAt: now.Add(-2 * time.Hour)},
		{RunID: "run1", Index: 2, Query: "b", Kind: "timeout", Reason: "timeout waiting for results", Engine: "chrome", CreatedAt: now.Add(-2 * time.Hour)},
	}
	run2 := []*storage.Result{
		{RunID: "run2", Index: 1, Query: "a", URL: "https://a.example/", Engine: "http", CreatedAt: now},
	}

	if err := b.Save(ctx, run1...); err != nil {
		t.Fatalf("Failed to save run1: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopening appends rather than truncating.
	b, err = New(filePath)
	if err != nil {
		t.Fatalf("Failed to reopen JSON backend: %v", err)
	}
	defer b.Close()
	if err := b.Save(ctx, run2...); err != nil {
		t.Fatalf("Failed to save run2: %v", err)
	}

	all, err := b.Query(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("Failed to query all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(all))
	}
	if all[1].Kind != "timeout" || all[1].Reason == "" {
		t.Errorf("failure details not preserved: %+v", all[1])
	}
	if all[0].Duration != 1200*time.Millisecond || !all[0].CreatedAt.Equal(now.Add(-2*time.Hour)) {
		t.Errorf("timing not preserved: %+v", all[0])
	}

	byRun, err := b.Query(ctx, storage.Filter{RunID: "run1"})
	if err != nil {
		t.Fatalf("Failed to query by run: %v", err)
	}
	if len(byRun) != 2 {
		t.Errorf("Expected 2 results for run1, got %d", len(byRun))
	}

	since := now.Add(-time.Hour)
	recent, err := b.Query(ctx, storage.Filter{Since: &since})
	if err != nil {
		t.Fatalf("Failed to query by Since: %v", err)
	}
	if len(recent) != 1 || recent[0].RunID != "run2" {
		t.Errorf("Expected only run2, got %v", recent)
	}

	yes := true
	found, err := b.Query(ctx, storage.Filter{Found: &yes, Limit: 1})
	if err != nil {
		t.Fatalf("Failed to query by Found: %v", err)
	}
	if len(found) != 1 || found[0].RunID != "run1" {
		t.Errorf("unexpected found page %v", found)
	}
}
