package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FranksOps/firstlink/internal/browser"
	"github.com/FranksOps/firstlink/internal/fingerprint"
	"github.com/FranksOps/firstlink/pkg/useragent"
)

func TestFetcher_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "TestBrowser/1.0" {
			t.Errorf("expected pool User-Agent, got %q", got)
		}
		if r.Header.Get("Accept-Language") == "" {
			t.Errorf("expected Accept-Language header")
		}
		if r.URL.Query().Get("q") != "a b" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		w.Header().Set("X-Test", "true")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer ts.Close()

	fetcher, err := NewFetcher(FetchConfig{
		Timeout:     5 * time.Second,
		Fingerprint: fingerprint.ProfileGo,
		UAPool:      useragent.NewPool([]string{"TestBrowser/1.0"}),
	})
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	defer fetcher.Close()

	page, err := fetcher.Render(context.Background(), browser.Request{URL: ts.URL + "/html/?q=a+b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if page.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", page.StatusCode)
	}
	if page.HTML != "<html>ok</html>" {
		t.Errorf("unexpected body %q", page.HTML)
	}
	if page.Header("x-test") != "true" {
		t.Errorf("expected X-Test header 'true', got %v", page.Headers["X-Test"])
	}
	if !strings.HasPrefix(page.URL, ts.URL) {
		t.Errorf("expected final URL on test server, got %q", page.URL)
	}
}

func TestFetcher_UserAgentOverride(t *testing.T) {
	fetcher, err := NewFetcher(FetchConfig{Fingerprint: fingerprint.ProfileGo, UserAgent: "Custom/2.0"})
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	if fetcher.UserAgent() != "Custom/2.0" {
		t.Errorf("expected override, got %q", fetcher.UserAgent())
	}
}

func TestFetcher_Timeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()
	defer close(release)

	fetcher, _ := NewFetcher(FetchConfig{
		Timeout:     5 * time.Second,
		Fingerprint: fingerprint.ProfileGo,
	})

	_, err := fetcher.Render(context.Background(), browser.Request{URL: ts.URL, Timeout: 20 * time.Millisecond})
	if !errors.Is(err, browser.ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestFetcher_BodyLimit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer ts.Close()

	fetcher, _ := NewFetcher(FetchConfig{Fingerprint: fingerprint.ProfileGo, MaxBodyBytes: 10})
	page, err := fetcher.Render(context.Background(), browser.Request{URL: ts.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.HTML) != 10 {
		t.Errorf("expected body capped at 10 bytes, got %d", len(page.HTML))
	}
}

func TestFetcher_CookiesPersist(t *testing.T) {
	var sawCookie atomic.Bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("session"); err == nil {
			sawCookie.Store(true)
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "1", Path: "/"})
	}))
	defer ts.Close()

	fetcher, _ := NewFetcher(FetchConfig{Fingerprint: fingerprint.ProfileGo, UseCookieJar: true})
	for i := 0; i < 2; i++ {
		if _, err := fetcher.Render(context.Background(), browser.Request{URL: ts.URL}); err != nil {
			t.Fatalf("render %d: %v", i, err)
		}
	}
	if !sawCookie.Load() {
		t.Error("expected cookie to be sent on the second request")
	}
}

func TestFetcher_Closed(t *testing.T) {
	fetcher, _ := NewFetcher(FetchConfig{Fingerprint: fingerprint.ProfileGo})
	if err := fetcher.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := fetcher.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := fetcher.Render(context.Background(), browser.Request{URL: "http://127.0.0.1/"}); !errors.Is(err, browser.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestNewFetcher_BadProfile(t *testing.T) {
	_, err := NewFetcher(FetchConfig{Fingerprint: fingerprint.Profile("netscape")})
	if !errors.Is(err, browser.ErrStart) {
		t.Errorf("expected ErrStart, got %v", err)
	}
}
