package publisher

import "pisowatch/internal/scraper"

// Publisher fans newly discovered listings out to downstream consumers
// (the bot frontends and any ad-hoc subscriber).
type Publisher interface {
	// PublishListing publishes one new listing.
	PublishListing(l *scraper.Listing) error

	// TrimStreams trims all streams to the configured maximum length
	TrimStreams() error

	// Close closes the publisher connection
	Close() error
}
