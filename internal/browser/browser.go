// Package browser provides the scoped page-rendering session used for a run.
// A session is acquired once, renders every search results page of the run
// sequentially and is released with Close on every exit path.
package browser

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrStart wraps every failure to bring a session up. It is fatal for a run.
	ErrStart = errors.New("browser failed to start")
	// ErrTimeout reports that the wait selector did not appear in time.
	ErrTimeout = errors.New("timed out waiting for page to render")
	// ErrClosed is returned by Render after Close.
	ErrClosed = errors.New("browser session closed")
)

// Request describes one page load.
type Request struct {
	URL string
	// WaitSelector is a CSS selector that must be present before the page
	// counts as rendered. Empty means "document loaded".
	WaitSelector string
	// Timeout bounds navigation plus the selector wait.
	Timeout time.Duration
}

// Page is a rendered document.
type Page struct {
	URL        string
	StatusCode int
	Headers    map[string][]string
	HTML       string
}

// Header returns the first value of key, matched case-insensitively.
func (p *Page) Header(key string) string {
	if p == nil {
		return ""
	}
	for k, vals := range p.Headers {
		if len(vals) > 0 && strings.EqualFold(k, key) {
			return vals[0]
		}
	}
	return ""
}

// Renderer loads pages in a live session.
//
// Render may return a non-nil Page together with ErrTimeout when the document
// loaded but the wait selector never matched; callers can still inspect it.
type Renderer interface {
	Render(ctx context.Context, req Request) (*Page, error)
	Close() error
}

// Options configures a browser engine.
type Options struct {
	Headless     bool
	UserAgent    string
	WindowWidth  int
	WindowHeight int
	// ExecPath overrides the browser binary.
	ExecPath string
	// InstallDriver downloads the playwright driver and Chromium before start.
	InstallDriver bool
}

// DefaultOptions returns a headless 1920x1080 configuration.
func DefaultOptions() Options {
	return Options{
		Headless:     true,
		WindowWidth:  1920,
		WindowHeight: 1080,
	}
}

func (o Options) withDefaults() Options {
	if o.WindowWidth <= 0 {
		o.WindowWidth = 1920
	}
	if o.WindowHeight <= 0 {
		o.WindowHeight = 1080
	}
	return o
}

// chromeArgs are the switches both Chromium engines pass on launch.
var chromeArgs = []string{
	"--no-sandbox",
	"--disable-dev-shm-usage",
	"--disable-gpu",
}

const defaultRenderTimeout = 10 * time.Second

func renderTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultRenderTimeout
	}
	return d
}
