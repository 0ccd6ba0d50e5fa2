package scraper

import (
	"context"
	"math/rand"
	"time"

	"pisowatch/internal/fetch"
	"pisowatch/logger"
	errs "pisowatch/pkg/errors"
)

// EngineOptions tune one crawl.
type EngineOptions struct {
	// MinDelay and MaxDelay bound the randomized pause between requests
	// to the same portal.
	MinDelay time.Duration
	MaxDelay time.Duration

	// MaxPages caps pagination per search.
	MaxPages int

	// FetchDetails visits each listing's detail page for extra fields.
	FetchDetails bool
}

// Engine drives one adapter through a paginated search, emitting
// normalized listings as they are parsed. The engine owns all politeness:
// delays, page caps and pagination loop guards live here, never in
// adapters.
type Engine struct {
	adapter Adapter
	fetcher fetch.Fetcher
	opts    EngineOptions
	log     *logger.Logger

	lastRequest time.Time
}

func NewEngine(adapter Adapter, fetcher fetch.Fetcher, opts EngineOptions) *Engine {
	if opts.MaxPages < 1 {
		opts.MaxPages = 1
	}
	return &Engine{
		adapter: adapter,
		fetcher: fetcher,
		opts:    opts,
		log:     logger.ForPortal(adapter.Name()),
	}
}

// Stream is a lazy sequence of listings. Listings are produced on demand:
// the channel is unbuffered, so a consumer that stops reading stops the
// crawl, and cancelling the context tears it down. Err is valid only after
// the channel closes and is non-nil when the crawl ended on a fatal
// portal error rather than natural exhaustion.
type Stream struct {
	ch  chan *Listing
	err error
}

// Listings returns the result channel. Range over it until closed.
func (s *Stream) Listings() <-chan *Listing {
	return s.ch
}

// Err reports the crawl's terminal error. Only meaningful after Listings
// is closed.
func (s *Stream) Err() error {
	return s.err
}

// Scrape starts the crawl and returns immediately. Pages are fetched only
// as fast as the consumer drains the stream.
func (e *Engine) Scrape(ctx context.Context, filter ScrapeFilter) *Stream {
	s := &Stream{ch: make(chan *Listing)}
	go e.run(ctx, filter, s)
	return s
}

func (e *Engine) run(ctx context.Context, filter ScrapeFilter, s *Stream) {
	defer close(s.ch)

	pageURL := e.adapter.BuildSearchURL(filter)
	visited := make(map[string]bool)

	e.log.Info().Str("url", pageURL).Int("max_pages", e.opts.MaxPages).Msg("Starting crawl")

	for page := 1; page <= e.opts.MaxPages && pageURL != ""; page++ {
		if visited[pageURL] {
			e.log.Warn().Str("url", pageURL).Msg("Pagination loop detected, stopping")
			return
		}
		visited[pageURL] = true

		if !e.pause(ctx) {
			s.err = ctx.Err()
			return
		}

		pageHTML, err := e.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			if errs.IsRobotsDisallow(err) {
				e.log.Info().Str("url", pageURL).Msg("Disallowed by robots.txt, stopping crawl")
				return
			}
			s.err = err
			return
		}

		items := e.adapter.ParseIndex(pageHTML)
		if len(items) == 0 {
			e.log.Info().Int("page", page).Msg("No results on page, crawl exhausted")
			return
		}
		e.log.Info().Int("page", page).Int("items", len(items)).Msg("Parsed results page")

		for _, item := range items {
			e.enrich(ctx, item)

			listing, err := BuildListing(e.adapter.Name(), e.adapter.BaseURL(), item)
			if err != nil {
				// One broken card never kills the page.
				e.log.Debug().Err(err).Msg("Skipping unparseable item")
				continue
			}

			select {
			case s.ch <- listing:
			case <-ctx.Done():
				s.err = ctx.Err()
				return
			}
		}

		next := e.adapter.NextPageURL(pageHTML, pageURL)
		if next == pageURL {
			e.log.Warn().Str("url", next).Msg("Next page equals current page, stopping")
			return
		}
		pageURL = next
	}
}

// enrich merges detail-page fields into item when detail fetching is on.
// Detail failures only cost the extra fields.
func (e *Engine) enrich(ctx context.Context, item RawItem) {
	if !e.opts.FetchDetails {
		return
	}
	detailURL := NormalizeURL(item.String("url"), e.adapter.BaseURL())
	if detailURL == "" {
		return
	}

	if !e.pause(ctx) {
		return
	}
	detailHTML, err := e.fetcher.Fetch(ctx, detailURL)
	if err != nil {
		e.log.Debug().Err(err).Str("url", detailURL).Msg("Detail fetch failed, keeping index fields")
		return
	}
	item.Merge(e.adapter.ParseDetail(detailHTML, detailURL))
}

// pause enforces the randomized inter-request delay, credited against time
// already spent since the last request. Returns false when the context is
// cancelled while waiting.
func (e *Engine) pause(ctx context.Context) bool {
	defer func() { e.lastRequest = time.Now() }()

	if e.opts.MaxDelay <= 0 {
		return ctx.Err() == nil
	}

	target := e.opts.MinDelay
	if spread := e.opts.MaxDelay - e.opts.MinDelay; spread > 0 {
		target += time.Duration(rand.Int63n(int64(spread)))
	}

	wait := target - time.Since(e.lastRequest)
	if e.lastRequest.IsZero() || wait <= 0 {
		return ctx.Err() == nil
	}

	select {
	case <-time.After(wait):
		return true
	case <-ctx.Done():
		return false
	}
}
