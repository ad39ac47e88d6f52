package serp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/FranksOps/firstlink/internal/browser"
	"github.com/FranksOps/firstlink/internal/bypass"
)

// EngineConfig holds the per-engine policy values.
type EngineConfig struct {
	Name string
	// SearchURL is the results page; the query is added as the q parameter.
	SearchURL      string
	ResultSelector string
	RenderTimeout  time.Duration
	// Detectors run over every page before extraction. Nil means
	// bypass.DefaultDetectors.
	Detectors []bypass.Detector
}

// Engine searches through a live browser.Renderer.
type Engine struct {
	r      browser.Renderer
	cfg    EngineConfig
	logger *slog.Logger
}

// NewEngine returns an Engine rendering pages with r.
func NewEngine(r browser.Renderer, cfg EngineConfig, logger *slog.Logger) (*Engine, error) {
	if r == nil {
		return nil, errors.New("serp: nil renderer")
	}
	if cfg.SearchURL == "" {
		return nil, errors.New("serp: search URL is required")
	}
	if _, err := url.Parse(cfg.SearchURL); err != nil {
		return nil, fmt.Errorf("serp: invalid search URL: %w", err)
	}
	if cfg.ResultSelector == "" {
		return nil, errors.New("serp: result selector is required")
	}
	if cfg.Detectors == nil {
		cfg.Detectors = bypass.DefaultDetectors()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{r: r, cfg: cfg, logger: logger}, nil
}

// SearchURL builds the results page URL for query. The query is encoded with
// form semantics, so spaces become '+'.
func (e *Engine) SearchURL(query string) string {
	u, _ := url.Parse(e.cfg.SearchURL)
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()
	return u.String()
}

// Search renders the results page for query and extracts the first organic
// link. It never returns an error; failures are classified in the Outcome.
func (e *Engine) Search(ctx context.Context, query string) Outcome {
	start := time.Now()
	out := e.search(ctx, query)
	out.Duration = time.Since(start)

	if !out.OK() {
		e.logger.Debug("query failed", "query", query, "kind", out.Kind, "reason", out.Reason)
	} else {
		e.logger.Debug("query resolved", "query", query, "url", out.URL, "duration", out.Duration)
	}
	return out
}

func (e *Engine) search(ctx context.Context, query string) Outcome {
	if err := ctx.Err(); err != nil {
		return Failed(query, KindAborted, err.Error())
	}

	target := e.SearchURL(query)
	page, err := e.r.Render(ctx, browser.Request{
		URL:          target,
		WaitSelector: e.cfg.ResultSelector,
		Timeout:      e.cfg.RenderTimeout,
	})
	if ctx.Err() != nil {
		return Failed(query, KindAborted, ctx.Err().Error())
	}

	switch {
	case err != nil:
		// A challenge page never renders the wait selector.
		if out, blocked := e.challenge(query, page); blocked {
			return out
		}
		if errors.Is(err, browser.ErrTimeout) {
			return Failed(query, KindTimeout, "timeout waiting for results")
		}
		return Failed(query, KindNavigation, err.Error())
	case page == nil:
		return Failed(query, KindNavigation, "empty page")
	case page.StatusCode >= http.StatusBadRequest:
		if out, blocked := e.challenge(query, page); blocked {
			return out
		}
		return Failed(query, KindNavigation, fmt.Sprintf("unexpected status %d", page.StatusCode))
	}

	pageURL := page.URL
	if pageURL == "" {
		pageURL = target
	}
	// Detection only runs once extraction came up empty: results pages echo
	// the query, which may contain challenge markers.
	link, err := ExtractFirst(pageURL, page.HTML, e.cfg.ResultSelector)
	switch {
	case errors.Is(err, ErrNoResult):
		if out, blocked := e.challenge(query, page); blocked {
			return out
		}
		return Failed(query, KindNoResult, "no results found")
	case errors.Is(err, ErrInvalidLink):
		return Failed(query, KindInvalidLink, err.Error())
	case err != nil:
		return Failed(query, KindNoResult, err.Error())
	}
	return Success(query, link)
}

func (e *Engine) challenge(query string, page *browser.Page) (Outcome, bool) {
	src, blocked := bypass.Analyze(page, e.cfg.Detectors)
	if !blocked {
		return Outcome{}, false
	}
	return Failed(query, KindBlocked, "challenge page served by "+src), true
}
