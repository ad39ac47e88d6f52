// Package serp turns one search query into the first organic result URL.
package serp

import (
	"context"
	"time"
)

// FailureKind classifies why a query produced no URL.
type FailureKind string

const (
	KindNone        FailureKind = ""
	KindTimeout     FailureKind = "timeout"
	KindNoResult    FailureKind = "no_result"
	KindBlocked     FailureKind = "blocked"
	KindNavigation  FailureKind = "navigation"
	KindInvalidLink FailureKind = "invalid_link"
	// KindAborted marks queries that were never searched because the run was
	// interrupted.
	KindAborted FailureKind = "aborted"
)

// Outcome is the result of searching one query: either a URL or a
// classified failure. Exactly one of URL and Kind is set.
type Outcome struct {
	Query    string        `json:"query"`
	URL      string        `json:"url,omitempty"`
	Kind     FailureKind   `json:"kind,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"duration"`
}

// OK reports whether the outcome carries a URL.
func (o Outcome) OK() bool { return o.Kind == KindNone && o.URL != "" }

// Success builds a successful outcome.
func Success(query, url string) Outcome {
	return Outcome{Query: query, URL: url}
}

// Failed builds a failed outcome.
func Failed(query string, kind FailureKind, reason string) Outcome {
	return Outcome{Query: query, Kind: kind, Reason: reason}
}

// Provider abstracts a search engine that resolves a query to its first
// organic result. Implementations never return run-aborting errors; every
// failure is carried in the Outcome.
type Provider interface {
	Search(ctx context.Context, query string) Outcome
}
