//go:build integration

package serp

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/FranksOps/firstlink/internal/browser"
	"github.com/FranksOps/firstlink/internal/fingerprint"
	"github.com/FranksOps/firstlink/internal/scraper"
	"github.com/stretchr/testify/require"
)

// These tests reach the live search site. Run with:
//
//	go test -tags integration ./internal/serp/
func liveEngine(t *testing.T, r browser.Renderer, preset string) *Engine {
	t.Helper()
	cfg, err := Preset(preset)
	require.NoError(t, err)
	cfg.RenderTimeout = 20 * time.Second
	e, err := NewEngine(r, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return e
}

func requireResolved(t *testing.T, out Outcome) {
	t.Helper()
	if out.Kind == KindBlocked {
		t.Skipf("search site served a challenge: %s", out.Reason)
	}
	require.True(t, out.OK(), "kind=%s reason=%s", out.Kind, out.Reason)
	u, err := url.Parse(out.URL)
	require.NoError(t, err)
	require.Contains(t, []string{"http", "https"}, u.Scheme)
	require.NotEmpty(t, u.Host)
}

func TestLiveChrome(t *testing.T) {
	if os.Getenv("FIRSTLINK_SKIP_BROWSER") != "" {
		t.Skip("browser tests disabled")
	}
	ctx := context.Background()
	c, err := browser.NewChrome(ctx, browser.DefaultOptions())
	if err != nil {
		t.Skipf("chrome unavailable: %v", err)
	}
	defer c.Close()

	requireResolved(t, liveEngine(t, c, PresetDuckDuckGo).Search(ctx, "The Go Programming Language"))
}

func TestLiveHTTP(t *testing.T) {
	f, err := scraper.NewFetcher(scraper.FetchConfig{
		Timeout:      20 * time.Second,
		UseCookieJar: true,
		Fingerprint:  fingerprint.ProfileChrome,
	})
	require.NoError(t, err)
	defer f.Close()

	requireResolved(t, liveEngine(t, f, PresetDuckDuckGoHTML).Search(context.Background(), "The Go Programming Language"))
}
