// Package jsonbackend mirrors results as newline-delimited JSON. The file is
// appended to across runs; records are told apart by run id.
package jsonbackend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/FranksOps/firstlink/internal/storage"
)

// ensure jsonBackend implements storage.Backend
var _ storage.Backend = (*jsonBackend)(nil)

type jsonBackend struct {
	mu   sync.Mutex
	file *os.File
}

// New creates a new NDJSON-backed storage.Backend.
func New(filePath string) (storage.Backend, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("json: open %s: %w", filePath, err)
	}

	return &jsonBackend{
		file: f,
	}, nil
}

func (b *jsonBackend) Save(ctx context.Context, results ...*storage.Result) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	w := bufio.NewWriter(b.file)
	enc := json.NewEncoder(w)
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("json: encode result %d: %w", r.Index, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("json: %w", err)
	}
	return nil
}

func (b *jsonBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	defer func() {
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	scanner := bufio.NewScanner(b.file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	// Records are appended in run order, so file order is already the
	// order Query promises.
	var filtered []*storage.Result
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var r storage.Result
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("json: %w", err)
		}
		if filter.Match(&r) {
			filtered = append(filtered, &r)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}

	return filter.Page(filtered), nil
}

func (b *jsonBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
