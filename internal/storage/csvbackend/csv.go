// Package csvbackend writes results as the two-column query,url file that is
// the primary output of a run.
package csvbackend

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/FranksOps/firstlink/internal/storage"
)

// ensure csvBackend implements storage.Backend
var _ storage.Backend = (*csvBackend)(nil)

type csvBackend struct {
	mu   sync.Mutex
	file *os.File
	// target is set for a backend created by New: file is a temporary
	// sibling renamed onto target by a clean Close.
	target string
	failed bool
}

// headers defines the CSV column order
var headers = []string{"query", "url"}

// New prepares filePath to be replaced. Rows go to a temporary file in the
// same directory, which Close renames onto filePath; a failed Save leaves
// filePath untouched.
func New(filePath string) (storage.Backend, error) {
	f, err := os.CreateTemp(filepath.Dir(filePath), "."+filepath.Base(filePath)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("csv: create %s: %w", filePath, err)
	}
	discard := func() {
		f.Close()
		os.Remove(f.Name())
	}

	w := csv.NewWriter(f)
	if err := w.Write(headers); err != nil {
		discard()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		discard()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}

	return &csvBackend{file: f, target: filePath}, nil
}

// Open opens an existing output file for reading. Saved rows are appended.
func Open(filePath string) (storage.Backend, error) {
	f, err := os.OpenFile(filePath, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("csv: open %s: %w", filePath, err)
	}
	return &csvBackend{file: f}, nil
}

func (b *csvBackend) Save(ctx context.Context, results ...*storage.Result) (err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	defer func() {
		if err != nil {
			b.failed = true
		}
	}()

	if _, err := b.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("csv: %w", err)
	}

	w := csv.NewWriter(b.file)
	for _, r := range results {
		if err := w.Write([]string{r.Query, r.URL}); err != nil {
			return fmt.Errorf("csv: write row %d: %w", r.Index, err)
		}
	}
	w.Flush()

	if err := w.Error(); err != nil {
		return fmt.Errorf("csv: %w", err)
	}
	return nil
}

// Query reads the file back. Only Query, Found, Limit and Offset can be
// evaluated; the file carries no run id or timestamps.
func (b *csvBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Result, error) {
	if filter.RunID != "" || filter.Since != nil {
		return nil, fmt.Errorf("csv: %w", storage.ErrUnsupportedFilter)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("csv: %w", err)
	}
	defer func() {
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	r := csv.NewReader(b.file)
	r.FieldsPerRecord = len(headers)

	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return []*storage.Result{}, nil
		}
		return nil, fmt.Errorf("csv: read header: %w", err)
	}

	var filtered []*storage.Result
	for index := 1; ; index++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: %w", err)
		}

		res := &storage.Result{Index: index, Query: record[0], URL: record[1]}
		if filter.Match(res) {
			filtered = append(filtered, res)
		}
	}

	return filter.Page(filtered), nil
}

func (b *csvBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	err := b.file.Close()
	if b.target == "" {
		return err
	}
	tmp := b.file.Name()
	if err != nil || b.failed {
		os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("csv: %w", err)
	}
	if err := os.Rename(tmp, b.target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("csv: replace %s: %w", b.target, err)
	}
	return nil
}
