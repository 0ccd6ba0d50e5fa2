package fetch

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"pisowatch/helpers"
	"pisowatch/logger"
	errs "pisowatch/pkg/errors"
)

// retryableStatus lists the HTTP statuses worth retrying with backoff.
var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// DirectFetcher retrieves pages over plain HTTP with rotating browser
// headers. Used for the server-rendered portals.
type DirectFetcher struct {
	portal        string
	client        *http.Client
	robots        *RobotsGate
	maxRetries    int
	backoffFactor int
	userAgents    []string
	log           *logger.Logger
}

func NewDirectFetcher(portal string, robots *RobotsGate, opts Options) *DirectFetcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	backoff := opts.BackoffFactor
	if backoff < 1 {
		backoff = 2
	}
	return &DirectFetcher{
		portal:        portal,
		client:        &http.Client{Timeout: timeout},
		robots:        robots,
		maxRetries:    opts.MaxRetries,
		backoffFactor: backoff,
		userAgents:    opts.UserAgents,
		log:           logger.ForFetcher().WithField("portal", portal),
	}
}

// Fetch retrieves url as UTF-8 HTML. Transient failures (timeouts, 429,
// 5xx) are retried with exponential backoff; 403 and 404 fail immediately.
func (f *DirectFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if f.robots != nil && !f.robots.Allowed(url) {
		return "", errs.NewRobots(f.portal, url)
	}

	var lastErr error
	backoff := time.Second

	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			f.log.Debug().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Str("url", url).
				Msg("Retrying fetch")
			select {
			case <-time.After(backoff + time.Duration(rand.Int63n(int64(time.Second)))):
			case <-ctx.Done():
				return "", errs.NewFetch(f.portal, "fetch cancelled", ctx.Err())
			}
			backoff *= time.Duration(f.backoffFactor)
		}

		html, retryable, err := f.fetchOnce(ctx, url)
		if err == nil {
			return html, nil
		}
		if !retryable {
			return "", err
		}
		lastErr = err
	}

	return "", errs.NewFetch(f.portal, fmt.Sprintf("retries exhausted for %s", url), lastErr)
}

// fetchOnce performs a single request. The second return reports whether
// the failure is worth another attempt.
func (f *DirectFetcher) fetchOnce(ctx context.Context, url string) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false, errs.NewFetch(f.portal, "failed to create request", err)
	}
	helpers.SetBrowserHeaders(req, f.userAgents)

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, errs.NewFetch(f.portal, "fetch cancelled", ctx.Err())
		}
		// Timeouts and connection resets are the retryable path.
		return "", true, errs.NewFetch(f.portal, fmt.Sprintf("request failed for %s", url), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := helpers.ReadBodyUTF8(resp)
		if err != nil {
			return "", true, errs.NewFetch(f.portal, "failed to read body", err)
		}
		return body, false, nil

	case resp.StatusCode == http.StatusForbidden:
		return "", false, errs.NewBlocked(f.portal, fmt.Sprintf("access forbidden (403) for %s", url), nil)

	case resp.StatusCode == http.StatusNotFound:
		return "", false, errs.NewFetch(f.portal, fmt.Sprintf("page not found (404): %s", url), nil)

	case retryableStatus[resp.StatusCode]:
		return "", true, errs.NewFetch(f.portal, fmt.Sprintf("HTTP %d for %s", resp.StatusCode, url), nil)

	default:
		return "", false, errs.NewFetch(f.portal, fmt.Sprintf("unexpected HTTP %d for %s", resp.StatusCode, url), nil)
	}
}
