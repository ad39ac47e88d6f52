// Package scraper implements the plain HTTP engine: search result pages are
// fetched without a browser, using a uTLS fingerprinted transport, a fixed
// User-Agent and a cookie jar that lives for the whole session.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/FranksOps/firstlink/internal/browser"
	"github.com/FranksOps/firstlink/internal/fingerprint"
	"github.com/FranksOps/firstlink/pkg/httpclient"
	"github.com/FranksOps/firstlink/pkg/useragent"
)

const defaultMaxBodyBytes = 4 << 20

// FetchConfig configures the HTTP engine.
type FetchConfig struct {
	Timeout      time.Duration
	MaxRedirects int
	UseCookieJar bool
	// UserAgent overrides the pool choice.
	UserAgent   string
	UAPool      *useragent.Pool
	Fingerprint fingerprint.Profile
	// MaxBodyBytes caps how much of a response body is kept.
	MaxBodyBytes int64
	// InsecureSkipVerify is for tests against self-signed servers.
	InsecureSkipVerify bool
}

// Fetcher renders pages by fetching them over HTTP. It satisfies
// browser.Renderer.
type Fetcher struct {
	config    FetchConfig
	client    *httpclient.Client
	userAgent string

	mu     sync.Mutex
	closed bool
}

var _ browser.Renderer = (*Fetcher)(nil)

// NewFetcher initializes a new Fetcher with the given configuration.
// By holding a single client across requests, cookie jars (if configured) persist for the lifetime of the Fetcher.
func NewFetcher(cfg FetchConfig) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	if string(cfg.Fingerprint) == "" {
		cfg.Fingerprint = fingerprint.ProfileChrome
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}

	var opts []fingerprint.Option
	if cfg.InsecureSkipVerify {
		opts = append(opts, fingerprint.WithInsecureSkipVerify())
	}
	transport, err := fingerprint.Transport(cfg.Fingerprint, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to setup transport: %w", browser.ErrStart, err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: cfg.UseCookieJar,
		Header: http.Header{
			"Accept":          {"text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"},
			"Accept-Language": {"en-US,en;q=0.5"},
		},
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create client: %w", browser.ErrStart, err)
	}

	return &Fetcher{
		config:    cfg,
		client:    client,
		userAgent: cfg.UAPool.Choose(cfg.UserAgent),
	}, nil
}

// UserAgent returns the User-Agent sent with every request of the session.
func (f *Fetcher) UserAgent() string { return f.userAgent }

// Render executes a GET request to req.URL. The wait selector is ignored:
// the HTML endpoint is complete once the body has been read.
func (f *Fetcher) Render(ctx context.Context, req browser.Request) (*browser.Page, error) {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return nil, browser.ErrClosed
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(ctx, httpReq)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodyBytes))
	page := &browser.Page{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		HTML:       string(body),
	}
	if err != nil {
		return page, fmt.Errorf("failed to read body: %w", classify(ctx, err))
	}
	return page, nil
}

// Close releases pooled connections. It is safe to call more than once.
func (f *Fetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	f.client.CloseIdleConnections()
	return nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return browser.ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return browser.ErrTimeout
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("request failed: %w", err)
}
