package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/firstlink/internal/browser"
	"github.com/FranksOps/firstlink/internal/query"
	"github.com/FranksOps/firstlink/internal/report"
	"github.com/FranksOps/firstlink/internal/serp"
	"github.com/FranksOps/firstlink/internal/storage"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	closes int
}

func (f *fakeSession) Render(ctx context.Context, req browser.Request) (*browser.Page, error) {
	return nil, errors.New("not used")
}

func (f *fakeSession) Close() error {
	f.closes++
	return nil
}

// fakeSearcher resolves "Title X" to https://x.example/ unless told to fail.
type fakeSearcher struct {
	fail     map[string]serp.FailureKind
	searched []string
	onSearch func(q string)
}

func (f *fakeSearcher) Search(ctx context.Context, q string) serp.Outcome {
	f.searched = append(f.searched, q)
	if f.onSearch != nil {
		f.onSearch(q)
	}
	if kind, ok := f.fail[q]; ok {
		return serp.Failed(q, kind, string(kind))
	}
	slug := strings.ToLower(strings.TrimPrefix(q, "Title "))
	return serp.Success(q, "https://"+slug+".example/")
}

type fixture struct {
	dir      string
	input    string
	output   string
	session  *fakeSession
	searcher *fakeSearcher
	opened   int
	progress bytes.Buffer
	states   []State
}

func newFixture(t *testing.T, lines ...string) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		dir:      dir,
		input:    filepath.Join(dir, "inputs.txt"),
		output:   filepath.Join(dir, "output.csv"),
		session:  &fakeSession{},
		searcher: &fakeSearcher{fail: map[string]serp.FailureKind{}},
	}
	if lines != nil {
		require.NoError(t, os.WriteFile(f.input, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	}
	return f
}

func (f *fixture) config() Config {
	return Config{
		InputFile:  f.input,
		OutputFile: f.output,
		Engine:     "fake",
		OpenSession: func(ctx context.Context) (browser.Renderer, error) {
			f.opened++
			return f.session, nil
		},
		NewSearcher: func(r browser.Renderer) (serp.Provider, error) { return f.searcher, nil },
		Progress:    report.NewProgress(&f.progress, 0),
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		OnState:     func(s State) { f.states = append(f.states, s) },
		RunID:       "run-1",
	}
}

func run(t *testing.T, cfg Config) (report.Summary, error) {
	t.Helper()
	r, err := New(cfg)
	require.NoError(t, err)
	return r.Run(context.Background())
}

func readOutput(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestRun_FailureIsolated(t *testing.T) {
	f := newFixture(t, "Header", "Title A", "Title B", "Title C")
	f.searcher.fail["Title B"] = serp.KindTimeout

	summary, err := run(t, f.config())
	require.NoError(t, err)

	require.Equal(t, "query,url\nTitle A,https://a.example/\nTitle B,\nTitle C,https://c.example/\n", readOutput(t, f.output))
	require.Equal(t, 3, summary.Total)
	require.Equal(t, 2, summary.Succeeded)
	require.Equal(t, 1, summary.FailuresByKind["timeout"])
	require.Equal(t, "run-1", summary.RunID)
	require.Contains(t, f.progress.String(), "Successfully scraped 2/3 URLs")
	require.Contains(t, f.progress.String(), "[2/3] Searching: Title B\n  Not found: timeout\n")
	require.Equal(t, 1, f.session.closes)
}

func TestRun_StateOrder(t *testing.T) {
	f := newFixture(t, "Header", "Title A")
	_, err := run(t, f.config())
	require.NoError(t, err)

	require.Equal(t, []State{StateInit, StateBrowserStarting, StateProcessing, StateBrowserClosing, StateWriting, StateDone}, f.states)
	require.Equal(t, "browser_closing", StateBrowserClosing.String())
}

func TestRun_Limit(t *testing.T) {
	f := newFixture(t, "Header", "Title A", "Title B", "Title C", "Title D", "Title E")
	cfg := f.config()
	cfg.Limit = 1

	summary, err := run(t, cfg)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Total)
	require.Equal(t, []string{"Title A"}, f.searcher.searched)
	require.Equal(t, "query,url\nTitle A,https://a.example/\n", readOutput(t, f.output))
	require.Contains(t, f.progress.String(), "Limited to 1 queries (LIMIT=1)")
}

func TestRun_MissingInput(t *testing.T) {
	f := newFixture(t)

	_, err := run(t, f.config())
	require.ErrorIs(t, err, query.ErrConfiguration)
	require.Zero(t, f.opened, "session must not start")
	_, statErr := os.Stat(f.output)
	require.True(t, os.IsNotExist(statErr), "no output file may be created")
}

func TestRun_SessionStartFailure(t *testing.T) {
	f := newFixture(t, "Header", "Title A")
	cfg := f.config()
	cfg.OpenSession = func(ctx context.Context) (browser.Renderer, error) {
		return nil, browser.ErrStart
	}

	_, err := run(t, cfg)
	require.ErrorIs(t, err, browser.ErrStart)
	_, statErr := os.Stat(f.output)
	require.True(t, os.IsNotExist(statErr), "no output file may be created")
	require.NotContains(t, f.states, StateWriting)
}

func TestRun_SearcherFailureClosesSession(t *testing.T) {
	f := newFixture(t, "Header", "Title A")
	cfg := f.config()
	cfg.NewSearcher = func(r browser.Renderer) (serp.Provider, error) {
		return nil, errors.New("bad selector")
	}

	_, err := run(t, cfg)
	require.Error(t, err)
	require.Equal(t, 1, f.session.closes)
}

func TestRun_Idempotent(t *testing.T) {
	f := newFixture(t, "Header", "Title A", "", "Title B", "Title C")
	f.searcher.fail["Title C"] = serp.KindNoResult

	_, err := run(t, f.config())
	require.NoError(t, err)
	first := readOutput(t, f.output)

	f.searcher.searched = nil
	_, err = run(t, f.config())
	require.NoError(t, err)
	require.Equal(t, first, readOutput(t, f.output))
}

func TestRun_Interrupted(t *testing.T) {
	f := newFixture(t, "Header", "Title A", "Title B", "Title C", "Title D")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.searcher.onSearch = func(q string) {
		if q == "Title B" {
			cancel()
		}
	}

	r, err := New(f.config())
	require.NoError(t, err)
	summary, err := r.Run(ctx)

	require.ErrorIs(t, err, ErrInterrupted)
	require.Equal(t, []string{"Title A", "Title B"}, f.searcher.searched)
	require.Equal(t, "query,url\nTitle A,https://a.example/\nTitle B,https://b.example/\nTitle C,\nTitle D,\n", readOutput(t, f.output))
	require.Equal(t, 4, summary.Total)
	require.Equal(t, 2, summary.Aborted)
	require.Equal(t, 1, f.session.closes)
	require.Equal(t, StateDone, r.State())
	require.Contains(t, f.progress.String(), "Interrupted: 2 queries not searched")
}

func TestRun_Pacing(t *testing.T) {
	f := newFixture(t, "Header", "Title A", "Title B", "Title C")
	cfg := f.config()
	cfg.Delay = 40 * time.Millisecond

	start := time.Now()
	_, err := run(t, cfg)
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

type memBackend struct {
	saved []*storage.Result
}

func (m *memBackend) Save(ctx context.Context, results ...*storage.Result) error {
	m.saved = append(m.saved, results...)
	return nil
}

func (m *memBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Result, error) {
	return m.saved, nil
}

func (m *memBackend) Close() error { return nil }

type fakeUploader struct {
	path, runID string
	err         error
}

func (u *fakeUploader) Upload(ctx context.Context, filePath, runID string) (string, error) {
	u.path, u.runID = filePath, runID
	return "key", u.err
}

func TestRun_MirrorsAndPublish(t *testing.T) {
	f := newFixture(t, "Header", "Title A", "Title B")
	f.searcher.fail["Title B"] = serp.KindBlocked

	mem := &memBackend{}
	up := &fakeUploader{err: errors.New("bucket unavailable")}
	cfg := f.config()
	cfg.Mirrors = []Mirror{
		{Name: "broken", Open: func(context.Context) (storage.Backend, error) { return nil, errors.New("no db") }},
		{Name: "mem", Open: func(context.Context) (storage.Backend, error) { return mem, nil }},
	}
	cfg.Publisher = up

	_, err := run(t, cfg)
	require.NoError(t, err, "mirror and publish failures are not fatal")

	require.Len(t, mem.saved, 2)
	require.Equal(t, "run-1", mem.saved[1].RunID)
	require.Equal(t, 2, mem.saved[1].Index)
	require.Equal(t, "blocked", mem.saved[1].Kind)
	require.Equal(t, "fake", mem.saved[1].Engine)
	require.Equal(t, f.output, up.path)
	require.Equal(t, "run-1", up.runID)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{OutputFile: "x"})
	require.Error(t, err)

	r, err := New(Config{
		OutputFile:  "x",
		OpenSession: func(context.Context) (browser.Renderer, error) { return nil, nil },
		NewSearcher: func(browser.Renderer) (serp.Provider, error) { return nil, nil },
	})
	require.NoError(t, err)
	require.NotEmpty(t, r.RunID())
}
