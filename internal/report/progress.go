package report

import (
	"fmt"
	"io"

	"github.com/mattn/go-runewidth"
)

// Progress prints the human-facing run narrative. Write errors are ignored;
// progress output never affects the run. A nil *Progress prints nothing.
type Progress struct {
	w     io.Writer
	width int
}

// NewProgress returns a Progress writing to w. When width is positive,
// queries are truncated so that the searching line fits in width columns.
func NewProgress(w io.Writer, width int) *Progress {
	if w == nil {
		w = io.Discard
	}
	return &Progress{w: w, width: width}
}

func (p *Progress) printf(format string, args ...any) {
	if p == nil {
		return
	}
	_, _ = fmt.Fprintf(p.w, format, args...)
}

func (p *Progress) Start(engine string) {
	p.printf("Starting first-link URL scraper (engine: %s)...\n", engine)
}

// Loaded reports the query count. limit is the configured cap, reported
// only when it took effect.
func (p *Progress) Loaded(n int, path string, limit int) {
	if limit > 0 {
		p.printf("Limited to %d queries (LIMIT=%d)\n", n, limit)
		return
	}
	p.printf("Loaded %d queries from %s\n", n, path)
}

func (p *Progress) DriverReady(engine string) {
	p.printf("%s session initialized\n", engine)
}

// Searching prints the index/total line for query i (1-based).
func (p *Progress) Searching(i, n int, query string) {
	prefix := fmt.Sprintf("[%d/%d] Searching: ", i, n)
	p.printf("%s%s\n", prefix, p.truncate(query, runewidth.StringWidth(prefix)))
}

func (p *Progress) Found(url string) {
	p.printf("  Found: %s\n", url)
}

func (p *Progress) NotFound(reason string) {
	if reason == "" {
		reason = "no result"
	}
	p.printf("  Not found: %s\n", reason)
}

// Interrupted reports queries that were never searched.
func (p *Progress) Interrupted(remaining int) {
	p.printf("Interrupted: %d queries not searched\n", remaining)
}

func (p *Progress) DriverClosed(engine string) {
	p.printf("%s session closed\n", engine)
}

func (p *Progress) Wrote(path string) {
	p.printf("Results written to %s\n", path)
}

// Done prints the final success line.
func (p *Progress) Done(succeeded, total int) {
	p.printf("Successfully scraped %d/%d URLs\n", succeeded, total)
}

func (p *Progress) truncate(s string, used int) string {
	if p == nil || p.width <= 0 {
		return s
	}
	budget := p.width - used
	if budget < 4 {
		budget = 4
	}
	return runewidth.Truncate(s, budget, "...")
}
