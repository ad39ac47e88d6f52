package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnsupportedFilter is returned by backends that cannot evaluate a
// filter field.
var ErrUnsupportedFilter = errors.New("storage: filter not supported by backend")

// Result is one (query, url) pair produced by a run. URL is empty when the
// search failed; Kind and Reason then describe the failure.
type Result struct {
	RunID     string        `json:"run_id"`
	Index     int           `json:"index"` // 1-based position in the input
	Query     string        `json:"query"`
	URL       string        `json:"url"`
	Kind      string        `json:"kind,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Engine    string        `json:"engine,omitempty"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}

// Found reports whether the result carries a URL.
func (r *Result) Found() bool { return r.URL != "" }

// Filter allows querying for specific Results.
type Filter struct {
	RunID  string
	Query  string
	Found  *bool
	Since  *time.Time
	Limit  int
	Offset int
}

// Match reports whether r passes every set field of f. Limit and Offset are
// not considered.
func (f Filter) Match(r *Result) bool {
	if f.RunID != "" && r.RunID != f.RunID {
		return false
	}
	if f.Query != "" && r.Query != f.Query {
		return false
	}
	if f.Found != nil && r.Found() != *f.Found {
		return false
	}
	if f.Since != nil && r.CreatedAt.Before(*f.Since) {
		return false
	}
	return true
}

// Page applies Offset and Limit to an already filtered, ordered slice.
func (f Filter) Page(results []*Result) []*Result {
	if f.Offset > 0 {
		if f.Offset >= len(results) {
			return []*Result{}
		}
		results = results[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(results) {
		results = results[:f.Limit]
	}
	return results
}

// Backend defines the interface for storing and querying results. Query
// returns results in run order: oldest first, then by Index.
type Backend interface {
	Save(ctx context.Context, results ...*Result) error
	Query(ctx context.Context, filter Filter) ([]*Result, error)
	Close() error
}

// Opener opens a backend on demand, so that nothing is created on disk
// before a run has results to write.
type Opener func(ctx context.Context) (Backend, error)

// Sink accumulates results in arrival order. It is not safe for concurrent
// use; a run has a single writer.
type Sink struct {
	results []*Result
}

// NewSink returns an empty Sink sized for n results.
func NewSink(n int) *Sink {
	if n < 0 {
		n = 0
	}
	return &Sink{results: make([]*Result, 0, n)}
}

// Append adds r after every previously appended result.
func (s *Sink) Append(r *Result) {
	s.results = append(s.results, r)
}

// Results returns the accumulated results in order.
func (s *Sink) Results() []*Result {
	out := make([]*Result, len(s.results))
	copy(out, s.results)
	return out
}

// Len returns the number of accumulated results.
func (s *Sink) Len() int { return len(s.results) }

// Found returns how many results carry a URL.
func (s *Sink) Found() int {
	n := 0
	for _, r := range s.results {
		if r.Found() {
			n++
		}
	}
	return n
}

// Flush opens a backend, saves the whole sequence and closes it.
func (s *Sink) Flush(ctx context.Context, open Opener) (err error) {
	b, err := open(ctx)
	if err != nil {
		return fmt.Errorf("open backend: %w", err)
	}
	defer func() {
		if cerr := b.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close backend: %w", cerr))
		}
	}()

	if err := b.Save(ctx, s.results...); err != nil {
		return fmt.Errorf("save results: %w", err)
	}
	return nil
}
