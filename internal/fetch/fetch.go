// Package fetch owns page retrieval: HTTP and headless-browser fetchers,
// robots.txt gating, retry with backoff, and block-page detection. Parsing
// never happens here; fetchers hand raw UTF-8 HTML to the adapters.
package fetch

import (
	"context"
	"time"

	"pisowatch/services/cache"
)

// Fetcher retrieves the HTML of a single URL. Implementations apply the
// retry policy internally; an error return is final for that URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Options are the shared fetcher tunables.
type Options struct {
	Timeout       time.Duration
	MaxRetries    int
	BackoffFactor int
	UserAgents    []string

	// RespectRobots enables the robots.txt gate. Cache is optional and
	// only used to share fetched robots bodies across runs.
	RespectRobots bool
	Cache         cache.CacheService
}

// ForPortal builds the right fetcher for a portal: a headless browser when
// the portal renders results client-side, plain HTTP otherwise.
func ForPortal(portal, baseURL string, usesBrowser bool, opts Options) Fetcher {
	var gate *RobotsGate
	if opts.RespectRobots {
		gate = NewRobotsGate(portal, baseURL, opts.Timeout, opts.Cache)
	}
	if usesBrowser {
		return NewBrowserFetcher(portal, gate, opts)
	}
	return NewDirectFetcher(portal, gate, opts)
}
