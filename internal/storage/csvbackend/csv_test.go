package csvbackend

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/FranksOps/firstlink/internal/storage"
)

func sample() []*storage.Result {
	return []*storage.Result{
		{Index: 1, Query: "Title A", URL: "https://a.example/"},
		{Index: 2, Query: `Quote "B", with comma`, Kind: "timeout"},
		{Index: 3, Query: "Title C", URL: "https://c.example/?x=1,2"},
	}
}

func write(t *testing.T, path string, results []*storage.Result) {
	t.Helper()
	b, err := New(path)
	if err != nil {
		t.Fatalf("Failed to create CSV backend: %v", err)
	}
	if err := b.Save(context.Background(), results...); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}
}

func TestCSVBackend_Format(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.csv")
	write(t, path, sample())

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "query,url\n" +
		"Title A,https://a.example/\n" +
		"\"Quote \"\"B\"\", with comma\",\n" +
		"Title C,\"https://c.example/?x=1,2\"\n"
	if string(got) != want {
		t.Errorf("unexpected file content:\n%s\nwant:\n%s", got, want)
	}
}

func TestCSVBackend_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.csv")
	if err := os.WriteFile(path, []byte("stale,content\nleft,over\nfrom,before\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	write(t, path, sample()[:1])

	got, _ := os.ReadFile(path)
	if string(got) != "query,url\nTitle A,https://a.example/\n" {
		t.Errorf("expected previous content replaced, got %q", got)
	}
}

func TestCSVBackend_Idempotent(t *testing.T) {
	dir := t.TempDir()
	first, second := filepath.Join(dir, "a.csv"), filepath.Join(dir, "b.csv")
	write(t, first, sample())
	write(t, second, sample())
	write(t, second, sample())

	a, _ := os.ReadFile(first)
	b, _ := os.ReadFile(second)
	if !bytes.Equal(a, b) {
		t.Errorf("expected byte-identical output:\n%s\n---\n%s", a, b)
	}
}

func TestCSVBackend_Query(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.csv")
	write(t, path, sample())

	b, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer b.Close()
	ctx := context.Background()

	all, err := b.Query(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("Failed to query all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(all))
	}
	if all[1].Query != `Quote "B", with comma` || all[1].URL != "" || all[1].Index != 2 {
		t.Errorf("unexpected row 2: %+v", all[1])
	}

	no := false
	missing, err := b.Query(ctx, storage.Filter{Found: &no})
	if err != nil {
		t.Fatalf("Failed to query by Found: %v", err)
	}
	if len(missing) != 1 || missing[0].Index != 2 {
		t.Errorf("expected only row 2 missing, got %v", missing)
	}

	paged, err := b.Query(ctx, storage.Filter{Offset: 1, Limit: 1})
	if err != nil {
		t.Fatalf("Failed to query page: %v", err)
	}
	if len(paged) != 1 || paged[0].Index != 2 {
		t.Errorf("unexpected page %v", paged)
	}

	if _, err := b.Query(ctx, storage.Filter{RunID: "x"}); !errors.Is(err, storage.ErrUnsupportedFilter) {
		t.Errorf("expected ErrUnsupportedFilter, got %v", err)
	}
}

func TestCSVBackend_OpenMissing(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "nope.csv")); err == nil {
		t.Error("expected error opening a missing file")
	}
}

func TestCSVBackend_NotVisibleUntilClosed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "output.csv")

	b, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.Save(context.Background(), sample()...); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected no output before Close, stat err = %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 || entries[0].Name() != "output.csv" {
		t.Errorf("expected only output.csv in dir, got %v", entries)
	}
}

func TestCSVBackend_FailedSaveLeavesNoOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "output.csv")
	if err := os.WriteFile(path, []byte("query,url\nold,https://old.example/\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	b, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Break the underlying file so the write fails.
	b.(*csvBackend).file.Close()

	if err := b.Save(context.Background(), sample()...); err == nil {
		t.Fatal("expected Save to fail")
	}
	_ = b.Close()

	got, _ := os.ReadFile(path)
	if string(got) != "query,url\nold,https://old.example/\n" {
		t.Errorf("expected previous output untouched, got %q", got)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected temporary file removed, got %v", entries)
	}
}

func TestCSVBackend_FailedSaveCreatesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "output.csv")

	b, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b.(*csvBackend).file.Close()
	_ = b.Save(context.Background(), sample()...)
	_ = b.Close()

	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected no output file, stat err = %v", err)
	}
}
