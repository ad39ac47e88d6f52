package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// snapshotTimeout bounds the HTML capture after a selector wait timed out.
const snapshotTimeout = 2 * time.Second

// Chrome drives a local Chrome/Chromium through the DevTools protocol.
type Chrome struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

var _ Renderer = (*Chrome)(nil)

// NewChrome launches the browser and opens the tab used for the whole run.
// The process is started eagerly so that a missing binary surfaces here as
// ErrStart rather than on the first query.
func NewChrome(ctx context.Context, opts Options) (*Chrome, error) {
	opts = opts.withDefaults()

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, cancel := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("%w: chrome: %w", ErrStart, err)
	}

	return &Chrome{
		ctx:         tabCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
	}, nil
}

// Render navigates the tab to req.URL and waits for req.WaitSelector.
func (c *Chrome) Render(ctx context.Context, req Request) (*Page, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(c.ctx, renderTimeout(req.Timeout))
	defer cancel()
	// Caller cancellation interrupts the wait without tearing down the tab.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	resp, err := chromedp.RunResponse(runCtx, chromedp.Navigate(req.URL))
	if err != nil {
		return nil, c.classify(ctx, runCtx, "navigate", err)
	}

	page := &Page{URL: req.URL, Headers: map[string][]string{}}
	if resp != nil {
		page.StatusCode = int(resp.Status)
		for k, v := range resp.Headers {
			page.Headers[k] = []string{fmt.Sprint(v)}
		}
	}

	var waitErr error
	if req.WaitSelector != "" {
		if err := chromedp.Run(runCtx, chromedp.WaitReady(req.WaitSelector, chromedp.ByQuery)); err != nil {
			waitErr = c.classify(ctx, runCtx, "wait for "+req.WaitSelector, err)
			if !errors.Is(waitErr, ErrTimeout) {
				return nil, waitErr
			}
		}
	}

	snapCtx := runCtx
	if waitErr != nil {
		var snapCancel context.CancelFunc
		snapCtx, snapCancel = context.WithTimeout(c.ctx, snapshotTimeout)
		defer snapCancel()
	}

	var location, html string
	if err := chromedp.Run(snapCtx,
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		if waitErr != nil {
			return nil, waitErr
		}
		return nil, fmt.Errorf("chrome: read document: %w", err)
	}
	if location != "" {
		page.URL = location
	}
	page.HTML = html

	return page, waitErr
}

// classify maps chromedp failures onto the package errors. A deadline on the
// per-render context is a render timeout; cancellation by the caller is
// reported as the caller's context error.
func (c *Chrome) classify(callerCtx, runCtx context.Context, op string, err error) error {
	if cerr := callerCtx.Err(); cerr != nil {
		return cerr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrTimeout, op)
	}
	return fmt.Errorf("chrome: %s: %w", op, err)
}

// Close shuts the browser down. It is safe to call more than once.
func (c *Chrome) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	err := chromedp.Cancel(c.ctx)
	c.cancel()
	c.allocCancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("chrome: close: %w", err)
	}
	return nil
}
