package serp

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	// ErrNoResult is returned when the selector matches nothing or the first
	// match carries no href.
	ErrNoResult = errors.New("no result element found")
	// ErrInvalidLink is returned when the href is not an absolute http(s) URL.
	ErrInvalidLink = errors.New("result link is not an http(s) URL")
)

// ExtractFirst parses html and returns the absolute target of the first
// element matching selector. Relative hrefs are resolved against pageURL and
// engine redirect wrappers are unwrapped.
func ExtractFirst(pageURL, html, selector string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse results page: %w", err)
	}

	href, ok := doc.Find(selector).First().Attr("href")
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return "", ErrNoResult
	}

	target, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidLink, href)
	}
	if base, err := url.Parse(pageURL); err == nil && pageURL != "" {
		target = base.ResolveReference(target)
	}
	target = unwrapRedirect(target)

	if (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidLink, target.String())
	}
	return target.String(), nil
}

// unwrapRedirect returns the destination of DuckDuckGo (/l/?uddg=) and
// Google (/url?q=) click-tracking links, or u unchanged.
func unwrapRedirect(u *url.URL) *url.URL {
	host := strings.ToLower(u.Hostname())
	var raw string
	switch {
	case strings.HasSuffix(host, "duckduckgo.com") && strings.HasPrefix(u.Path, "/l/"):
		raw = u.Query().Get("uddg")
	case strings.Contains(host, "google.") && u.Path == "/url":
		raw = u.Query().Get("q")
		if raw == "" {
			raw = u.Query().Get("url")
		}
	}
	if raw == "" {
		return u
	}
	dest, err := url.Parse(raw)
	if err != nil || !dest.IsAbs() {
		return u
	}
	return dest
}
