package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"pisowatch/config"
	"pisowatch/internal/fetch"
	"pisowatch/internal/scraper"
	"pisowatch/logger"
	errs "pisowatch/pkg/errors"
	"pisowatch/services/cache"
	"pisowatch/services/notifier"
	"pisowatch/services/publisher"
	"pisowatch/services/store"
)

// EngineFactory builds the crawl engine for one portal. Swappable so tests
// can run the worker against fixture engines instead of live portals.
type EngineFactory func(portal string) (*scraper.Engine, error)

// Worker orchestrates crawl runs: it walks every enabled profile across
// every enabled portal, persists what it finds, and fans out new listings
// to the notifiers and the publisher.
type Worker struct {
	cfg       *config.Config
	profiles  *config.Profiles
	store     store.Store
	publisher publisher.Publisher
	notifiers []notifier.Notifier
	engines   EngineFactory
	log       *logger.Logger
}

// RunOptions narrow a single run, mainly for CLI one-shots.
type RunOptions struct {
	// Portals restricts the run to these portals. Empty means all
	// configured portals.
	Portals []string

	// Profile restricts the run to one named profile.
	Profile string

	// TestMode makes notifiers log instead of send.
	TestMode bool
}

func New(
	cfg *config.Config,
	profiles *config.Profiles,
	st store.Store,
	pub publisher.Publisher,
	notifiers []notifier.Notifier,
	engines EngineFactory,
) *Worker {
	w := &Worker{
		cfg:       cfg,
		profiles:  profiles,
		store:     st,
		publisher: pub,
		notifiers: notifiers,
		engines:   engines,
		log:       logger.ForWorker(),
	}
	if w.engines == nil {
		w.engines = w.defaultEngineFactory
	}
	return w
}

// defaultEngineFactory wires a live fetcher to the portal's adapter.
func (w *Worker) defaultEngineFactory(portal string) (*scraper.Engine, error) {
	adapter, err := scraper.NewAdapter(portal)
	if err != nil {
		return nil, err
	}

	var cacheSvc cache.CacheService
	if w.cfg.MemcacheAddr != "" {
		cacheSvc = cache.NewMemcacheService(w.cfg.MemcacheAddr)
	}

	fetcher := fetch.ForPortal(portal, adapter.BaseURL(), adapter.UsesBrowser(), fetch.Options{
		Timeout:       w.cfg.Timeout,
		MaxRetries:    w.cfg.MaxRetries,
		BackoffFactor: w.cfg.BackoffFactor,
		UserAgents:    w.cfg.UserAgents,
		RespectRobots: w.cfg.RespectRobots,
		Cache:         cacheSvc,
	})

	return scraper.NewEngine(adapter, fetcher, scraper.EngineOptions{
		MinDelay:     w.cfg.MinDelay,
		MaxDelay:     w.cfg.MaxDelay,
		MaxPages:     w.cfg.MaxPages,
		FetchDetails: w.cfg.FetchDetails,
	}), nil
}

// Run executes one complete crawl run and returns its stats. Portal
// failures are counted, logged and never abort the rest of the run.
func (w *Worker) Run(ctx context.Context, opts RunOptions) (*store.RunStats, error) {
	stats := store.NewRunStats()
	start := time.Now()

	// From here on, is_new means "new in this run".
	if err := w.store.ResetNewFlags(ctx); err != nil {
		return stats, err
	}

	portals := opts.Portals
	if len(portals) == 0 {
		portals = w.cfg.Portals
	}

	var newListings []*scraper.Listing
	observed := make(map[string][]string)

	for name, profile := range w.profiles.Profiles {
		if !profile.IsEnabled() {
			continue
		}
		if opts.Profile != "" && name != opts.Profile {
			continue
		}
		stats.Profiles = append(stats.Profiles, name)
		filter := w.buildFilter(profile)

		for _, portal := range portals {
			found := w.runPortal(ctx, portal, filter, stats, &newListings, observed)
			w.log.Info().
				Str("profile", name).
				Str("portal", portal).
				Int("found", found).
				Msg("Portal crawl finished")

			if ctx.Err() != nil {
				stats.Status = "cancelled"
				stats.EndTime = time.Now().UTC()
				w.saveStats(ctx, stats)
				return stats, ctx.Err()
			}
		}
	}

	w.deactivateMissing(ctx, stats, observed)
	w.notify(ctx, newListings, opts.TestMode)
	w.publish(newListings)

	stats.Finish()
	w.saveStats(ctx, stats)

	if removed, err := w.store.CleanupOld(ctx, w.cfg.RetentionDays); err != nil {
		w.log.Warn().Err(err).Msg("Cleanup failed")
	} else if removed > 0 {
		w.log.Info().Int64("removed", removed).Msg("Cleaned up stale listings")
	}

	w.log.Info().
		Int("total_found", stats.TotalFound).
		Int("total_new", stats.TotalNew).
		Int("errors", stats.TotalErrors).
		Dur("elapsed", time.Since(start)).
		Msg("Crawl run finished")

	return stats, nil
}

// runPortal crawls one portal with one filter, upserting everything that
// matches. Returns the number of listings observed in this crawl.
func (w *Worker) runPortal(ctx context.Context, portal string, filter scraper.ScrapeFilter, stats *store.RunStats, newListings *[]*scraper.Listing, observed map[string][]string) int {
	ps := stats.Portal(portal)

	engine, err := w.engines(portal)
	if err != nil {
		w.log.Error().Err(err).Str("portal", portal).Msg("Cannot build engine")
		ps.Errors++
		stats.TotalErrors++
		return 0
	}

	stream := engine.Scrape(ctx, filter)
	found := 0

	for l := range stream.Listings() {
		observed[portal] = append(observed[portal], l.ID)
		found++
		ps.Found++
		stats.TotalFound++

		if excluded, err := w.store.IsExcluded(ctx, l.ID); err != nil {
			w.log.Warn().Err(err).Str("id", l.ID).Msg("Exclusion check failed")
		} else if excluded {
			continue
		}

		if !filter.Matches(l, w.cfg.StrictFilter) {
			continue
		}

		isNew, err := w.store.Upsert(ctx, l)
		if err != nil {
			w.log.Error().Err(err).Str("id", l.ID).Msg("Upsert failed")
			ps.Errors++
			stats.TotalErrors++
			continue
		}
		if isNew {
			l.IsNew = true
			ps.New++
			stats.TotalNew++
			*newListings = append(*newListings, l)
		}
	}

	if err := stream.Err(); err != nil {
		logPortalError(w.log, portal, err)
		ps.Errors++
		stats.TotalErrors++
	}

	return found
}

// deactivateMissing flags off-market listings after the whole run: a
// listing is inactive only when every profile's crawl of its portal
// completed cleanly and none of them observed it. A portal with errors
// proves nothing about what disappeared.
func (w *Worker) deactivateMissing(ctx context.Context, stats *store.RunStats, observed map[string][]string) {
	for portal, ids := range observed {
		if len(ids) == 0 || stats.Portal(portal).Errors > 0 {
			continue
		}
		deactivated, err := w.store.MarkInactive(ctx, portal, ids)
		if err != nil {
			w.log.Warn().Err(err).Str("portal", portal).Msg("Failed to mark stale listings inactive")
			continue
		}
		if deactivated > 0 {
			w.log.Info().Str("portal", portal).Int64("deactivated", deactivated).Msg("Deactivated missing listings")
		}
	}
}

func (w *Worker) buildFilter(profile config.Profile) scraper.ScrapeFilter {
	return scraper.ScrapeFilter{
		OperationType: w.profiles.OperationType(),
		PropertyType:  w.profiles.PropertyType(),
		Province:      profile.Location.Province,
		City:          profile.Location.City,
		Price:         scraper.IntRange{Min: profile.Price.Min, Max: profile.Price.Max},
		Surface:       scraper.IntRange{Min: profile.Surface.Min, Max: profile.Surface.Max},
		Bedrooms:      scraper.IntRange{Min: profile.Bedrooms.Min, Max: profile.Bedrooms.Max},
		Bathrooms:     scraper.IntRange{Min: profile.Bathrooms.Min, Max: profile.Bathrooms.Max},
	}
}

func (w *Worker) notify(ctx context.Context, listings []*scraper.Listing, testMode bool) {
	if len(listings) == 0 {
		w.log.Info().Msg("No new listings, nothing to notify")
		return
	}

	for _, n := range w.notifiers {
		if !n.IsConfigured() {
			w.log.Debug().Str("channel", n.Name()).Msg("Notifier not configured, skipping")
			continue
		}

		status, errMsg := "sent", ""
		if err := n.Notify(ctx, listings, testMode); err != nil {
			w.log.Error().Err(err).Str("channel", n.Name()).Msg("Notification failed")
			status, errMsg = "failed", err.Error()
		}
		for _, l := range listings {
			if err := w.store.RecordNotification(ctx, l.ID, n.Name(), status, errMsg); err != nil {
				w.log.Warn().Err(err).Msg("Failed to record notification")
			}
		}
	}
}

func (w *Worker) publish(listings []*scraper.Listing) {
	if w.publisher == nil || len(listings) == 0 {
		return
	}

	for _, l := range listings {
		if err := w.publisher.PublishListing(l); err != nil {
			w.log.Warn().Err(err).Str("id", l.ID).Msg("Failed to publish listing")
		}
	}
	if err := w.publisher.TrimStreams(); err != nil {
		w.log.Warn().Err(err).Msg("Failed to trim streams")
	}
}

func (w *Worker) saveStats(ctx context.Context, stats *store.RunStats) {
	if err := w.store.SaveRunStats(ctx, stats); err != nil {
		w.log.Warn().Err(err).Msg("Failed to save run stats")
	}
}

func logPortalError(log *logger.Logger, portal string, err error) {
	if errs.IsBlocked(err) {
		log.Error().Err(err).Str("portal", portal).Msg("Portal blocked us, backing off until next run")
		return
	}
	log.Error().Err(err).Str("portal", portal).Msg("Portal crawl failed")
}

// Start runs crawls on the configured schedule until ctx is cancelled.
// CRAWL_CRON wins over CRAWL_INTERVAL_SECONDS; with neither set, one run
// executes and Start returns.
func (w *Worker) Start(ctx context.Context, opts RunOptions) error {
	if w.cfg.CrawlCron != "" {
		return w.startCron(ctx, opts)
	}
	if w.cfg.CrawlInterval > 0 {
		return w.startInterval(ctx, opts)
	}
	_, err := w.Run(ctx, opts)
	return err
}

func (w *Worker) startCron(ctx context.Context, opts RunOptions) error {
	c := cron.New()
	_, err := c.AddFunc(w.cfg.CrawlCron, func() {
		if _, err := w.Run(ctx, opts); err != nil && err != context.Canceled {
			w.log.Error().Err(err).Msg("Scheduled run failed")
		}
	})
	if err != nil {
		return errs.NewConfiguration("invalid CRAWL_CRON expression", err)
	}

	w.log.Info().Str("cron", w.cfg.CrawlCron).Msg("Crawl schedule started")
	c.Start()
	<-ctx.Done()

	stop := c.Stop()
	<-stop.Done()
	return ctx.Err()
}

func (w *Worker) startInterval(ctx context.Context, opts RunOptions) error {
	w.log.Info().Dur("interval", w.cfg.CrawlInterval).Msg("Interval crawling started")

	for {
		if _, err := w.Run(ctx, opts); err != nil && err != context.Canceled {
			w.log.Error().Err(err).Msg("Run failed")
		}

		select {
		case <-time.After(w.cfg.CrawlInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
