// Package pipeline drives a run: load queries, hold one browser session,
// search every query in order with pacing, then write the results.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/FranksOps/firstlink/internal/browser"
	"github.com/FranksOps/firstlink/internal/metrics"
	"github.com/FranksOps/firstlink/internal/query"
	"github.com/FranksOps/firstlink/internal/report"
	"github.com/FranksOps/firstlink/internal/serp"
	"github.com/FranksOps/firstlink/internal/storage"
	"github.com/FranksOps/firstlink/internal/storage/csvbackend"
	"github.com/FranksOps/firstlink/pkg/ratelimit"
	"github.com/google/uuid"
)

// ErrInterrupted is returned by Run when the context was canceled while
// queries remained. The partial results have been written.
var ErrInterrupted = errors.New("run interrupted")

// State is a stage of a run.
type State int

const (
	StateInit State = iota
	StateBrowserStarting
	StateProcessing
	StateBrowserClosing
	StateWriting
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateBrowserStarting:
		return "browser_starting"
	case StateProcessing:
		return "processing"
	case StateBrowserClosing:
		return "browser_closing"
	case StateWriting:
		return "writing"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SessionFactory starts the browser session for a run.
type SessionFactory func(ctx context.Context) (browser.Renderer, error)

// SearcherFactory builds the search provider on top of a live session.
type SearcherFactory func(r browser.Renderer) (serp.Provider, error)

// Uploader publishes the written output file.
type Uploader interface {
	Upload(ctx context.Context, filePath, runID string) (string, error)
}

// Mirror is an additional backend receiving a copy of the results.
type Mirror struct {
	Name string
	Open storage.Opener
}

// Config wires a Runner. OpenSession and NewSearcher are required.
type Config struct {
	InputFile  string
	OutputFile string
	Limit      int
	Delay      time.Duration
	Jitter     float64
	// Engine labels results, metrics and progress lines.
	Engine string

	OpenSession SessionFactory
	NewSearcher SearcherFactory
	// Output opens the primary backend; nil writes a CSV to OutputFile.
	Output    storage.Opener
	Mirrors   []Mirror
	Publisher Uploader

	Progress *report.Progress
	Logger   *slog.Logger
	// OnState observes every state transition.
	OnState func(State)
	// RunID defaults to a random UUID.
	RunID string
}

// Runner executes one run.
type Runner struct {
	cfg    Config
	logger *slog.Logger
	state  State
}

// New validates cfg and returns a Runner.
func New(cfg Config) (*Runner, error) {
	if cfg.OpenSession == nil {
		return nil, errors.New("pipeline: OpenSession is required")
	}
	if cfg.NewSearcher == nil {
		return nil, errors.New("pipeline: NewSearcher is required")
	}
	if cfg.OutputFile == "" && cfg.Output == nil {
		return nil, errors.New("pipeline: OutputFile is required")
	}
	if cfg.Output == nil {
		path := cfg.OutputFile
		cfg.Output = func(context.Context) (storage.Backend, error) { return csvbackend.New(path) }
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:    cfg,
		logger: logger.With("run_id", cfg.RunID, "engine", cfg.Engine),
	}, nil
}

// RunID returns the id stamped on every result of the run.
func (r *Runner) RunID() string { return r.cfg.RunID }

// State returns the current state.
func (r *Runner) State() State { return r.state }

func (r *Runner) transition(s State) {
	r.state = s
	r.logger.Debug("state", "state", s.String())
	if r.cfg.OnState != nil {
		r.cfg.OnState(s)
	}
}

// Run executes the run. A load or session start failure returns an error
// before anything is written. Per-query failures are recorded as results and
// never stop the run. If ctx is canceled between queries, the remaining
// queries are recorded as aborted, the partial results are written and
// ErrInterrupted is returned.
func (r *Runner) Run(ctx context.Context) (report.Summary, error) {
	cfg := r.cfg
	progress := cfg.Progress
	start := time.Now()

	r.transition(StateInit)
	progress.Start(cfg.Engine)

	queries, err := query.Load(cfg.InputFile, cfg.Limit)
	if err != nil {
		metrics.RunsTotal.WithLabelValues(cfg.Engine, "fatal").Inc()
		return report.Summary{}, err
	}
	limit := 0
	if cfg.Limit > 0 {
		limit = cfg.Limit
	}
	progress.Loaded(len(queries), cfg.InputFile, limit)
	r.logger.Info("queries loaded", "count", len(queries), "input", cfg.InputFile)

	r.transition(StateBrowserStarting)
	session, err := cfg.OpenSession(ctx)
	if err != nil {
		metrics.RunsTotal.WithLabelValues(cfg.Engine, "fatal").Inc()
		return report.Summary{}, fmt.Errorf("start %s session: %w", cfg.Engine, err)
	}
	var closeOnce sync.Once
	closeSession := func() {
		closeOnce.Do(func() {
			if err := session.Close(); err != nil {
				r.logger.Warn("session close failed", "error", err)
			}
		})
	}
	defer closeSession()

	searcher, err := cfg.NewSearcher(session)
	if err != nil {
		metrics.RunsTotal.WithLabelValues(cfg.Engine, "fatal").Inc()
		return report.Summary{}, fmt.Errorf("build searcher: %w", err)
	}
	progress.DriverReady(cfg.Engine)

	r.transition(StateProcessing)
	sink := storage.NewSink(len(queries))
	interrupted := r.process(ctx, searcher, queries, sink)

	r.transition(StateBrowserClosing)
	closeSession()
	progress.DriverClosed(cfg.Engine)

	r.transition(StateWriting)
	// Results are written even when the run was interrupted.
	writeCtx := context.WithoutCancel(ctx)
	if err := sink.Flush(writeCtx, cfg.Output); err != nil {
		metrics.RunsTotal.WithLabelValues(cfg.Engine, "fatal").Inc()
		return report.Summary{}, fmt.Errorf("write %s: %w", cfg.OutputFile, err)
	}
	progress.Wrote(cfg.OutputFile)
	r.writeMirrors(writeCtx, sink)
	r.publish(writeCtx)

	r.transition(StateDone)
	summary := report.GenerateSummary(sink.Results())
	summary.RunID = cfg.RunID
	summary.Engine = cfg.Engine
	summary.OutputFile = cfg.OutputFile
	summary.StartTime = start
	summary.EndTime = time.Now()
	summary.Duration = summary.EndTime.Sub(start)

	progress.Done(summary.Succeeded, summary.Total)
	r.logger.Info("run complete", "found", summary.Succeeded, "total", summary.Total, "duration", summary.Duration)

	if interrupted {
		metrics.RunsTotal.WithLabelValues(cfg.Engine, "interrupted").Inc()
		return summary, fmt.Errorf("%w: %d of %d queries not searched", ErrInterrupted, summary.Aborted, summary.Total)
	}
	metrics.RunsTotal.WithLabelValues(cfg.Engine, "ok").Inc()
	return summary, nil
}

// process searches every query in order and reports whether the loop was
// cut short by cancellation.
func (r *Runner) process(ctx context.Context, searcher serp.Provider, queries []string, sink *storage.Sink) bool {
	cfg := r.cfg
	limiter := ratelimit.NewLimiter(cfg.Delay, cfg.Jitter)
	n := len(queries)
	metrics.QueriesPending.Set(float64(n))
	defer metrics.QueriesPending.Set(0)

	for i, q := range queries {
		if err := ctx.Err(); err != nil {
			r.abortRemaining(sink, queries, i, err)
			return true
		}
		if err := limiter.Wait(ctx); err != nil {
			r.abortRemaining(sink, queries, i, err)
			return true
		}

		cfg.Progress.Searching(i+1, n, q)
		out := searcher.Search(ctx, q)
		res := r.result(i, q, out)
		sink.Append(res)
		metrics.RecordQuery(cfg.Engine, res)
		metrics.QueriesPending.Dec()

		if res.Found() {
			cfg.Progress.Found(res.URL)
		} else {
			cfg.Progress.NotFound(res.Reason)
			r.logger.Warn("query failed", "index", i+1, "query", q, "kind", res.Kind, "reason", res.Reason)
		}

		if out.Kind == serp.KindAborted {
			r.abortRemaining(sink, queries, i+1, ctx.Err())
			return true
		}
	}
	return false
}

// abortRemaining records queries[from:] as aborted so the output keeps one
// row per input query.
func (r *Runner) abortRemaining(sink *storage.Sink, queries []string, from int, cause error) {
	reason := "run interrupted"
	if cause != nil {
		reason = cause.Error()
	}
	for i := from; i < len(queries); i++ {
		sink.Append(r.result(i, queries[i], serp.Failed(queries[i], serp.KindAborted, reason)))
	}
	remaining := len(queries) - from
	if remaining > 0 {
		r.cfg.Progress.Interrupted(remaining)
	}
	r.logger.Warn("run interrupted", "remaining", remaining, "error", cause)
}

func (r *Runner) result(i int, q string, out serp.Outcome) *storage.Result {
	return &storage.Result{
		RunID:     r.cfg.RunID,
		Index:     i + 1,
		Query:     q,
		URL:       out.URL,
		Kind:      string(out.Kind),
		Reason:    out.Reason,
		Engine:    r.cfg.Engine,
		Duration:  out.Duration,
		CreatedAt: time.Now().UTC(),
	}
}

func (r *Runner) writeMirrors(ctx context.Context, sink *storage.Sink) {
	for _, m := range r.cfg.Mirrors {
		if err := sink.Flush(ctx, m.Open); err != nil {
			r.logger.Warn("mirror write failed", "mirror", m.Name, "error", err)
			continue
		}
		r.logger.Info("mirror written", "mirror", m.Name, "count", sink.Len())
	}
}

func (r *Runner) publish(ctx context.Context) {
	if r.cfg.Publisher == nil {
		return
	}
	key, err := r.cfg.Publisher.Upload(ctx, r.cfg.OutputFile, r.cfg.RunID)
	if err != nil {
		r.logger.Warn("publish failed", "file", r.cfg.OutputFile, "error", err)
		return
	}
	r.logger.Info("output published", "key", key)
}
