package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/playwright-community/playwright-go"
)

// Playwright drives Chromium through the playwright driver. One browser
// context and one page serve the whole run.
type Playwright struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	bctx    playwright.BrowserContext
	page    playwright.Page

	mu     sync.Mutex
	closed bool
}

var _ Renderer = (*Playwright)(nil)

// NewPlaywright starts the driver, launches Chromium and opens the run's page.
func NewPlaywright(opts Options) (*Playwright, error) {
	opts = opts.withDefaults()

	if opts.InstallDriver {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			return nil, fmt.Errorf("%w: playwright install: %w", ErrStart, err)
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("%w: playwright: %w", ErrStart, err)
	}

	launch := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     chromeArgs,
	}
	if opts.ExecPath != "" {
		launch.ExecutablePath = playwright.String(opts.ExecPath)
	}
	browser, err := pw.Chromium.Launch(launch)
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("%w: launch chromium: %w", ErrStart, err)
	}

	ctxOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: opts.WindowWidth, Height: opts.WindowHeight},
	}
	if opts.UserAgent != "" {
		ctxOpts.UserAgent = playwright.String(opts.UserAgent)
	}
	bctx, err := browser.NewContext(ctxOpts)
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("%w: new context: %w", ErrStart, err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("%w: new page: %w", ErrStart, err)
	}

	return &Playwright{pw: pw, browser: browser, bctx: bctx, page: page}, nil
}

// Render loads req.URL and waits for the first element matching
// req.WaitSelector to be attached.
func (p *Playwright) Render(ctx context.Context, req Request) (*Page, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timeoutMs := float64(renderTimeout(req.Timeout).Milliseconds())

	resp, err := p.page.Goto(req.URL, playwright.PageGotoOptions{
		Timeout:   playwright.Float(timeoutMs),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return nil, fmt.Errorf("%w: navigate", ErrTimeout)
		}
		return nil, fmt.Errorf("playwright: navigate: %w", err)
	}

	page := &Page{URL: p.page.URL(), Headers: map[string][]string{}}
	if resp != nil {
		page.StatusCode = resp.Status()
		for k, v := range resp.Headers() {
			page.Headers[k] = []string{v}
		}
	}

	var waitErr error
	if req.WaitSelector != "" {
		err := p.page.Locator(req.WaitSelector).First().WaitFor(playwright.LocatorWaitForOptions{
			State:   playwright.WaitForSelectorStateAttached,
			Timeout: playwright.Float(timeoutMs),
		})
		if err != nil {
			if !errors.Is(err, playwright.ErrTimeout) {
				return nil, fmt.Errorf("playwright: wait for %s: %w", req.WaitSelector, err)
			}
			waitErr = fmt.Errorf("%w: wait for %s", ErrTimeout, req.WaitSelector)
		}
	}

	html, err := p.page.Content()
	if err != nil {
		if waitErr != nil {
			return nil, waitErr
		}
		return nil, fmt.Errorf("playwright: read document: %w", err)
	}
	page.HTML = html

	return page, waitErr
}

// Close releases the page, browser and driver. It is safe to call more than once.
func (p *Playwright) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	if err := p.bctx.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close context: %w", err))
	}
	if err := p.browser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close browser: %w", err))
	}
	if err := p.pw.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop driver: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("playwright: %w", err)
	}
	return nil
}
