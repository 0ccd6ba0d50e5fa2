package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"pisowatch/internal/scraper"
)

// Store persists listings and crawl bookkeeping. Two implementations:
// SQLite for single-host deployments, Postgres when several workers share
// a database.
type Store interface {
	// Upsert inserts l or refreshes an existing row. It reports whether
	// the listing was seen for the first time. Updates never touch
	// first_seen or the is_new flag; inserts get both.
	Upsert(ctx context.Context, l *scraper.Listing) (bool, error)

	// Exists reports whether a listing id is already stored.
	Exists(ctx context.Context, id string) (bool, error)

	// IsExcluded reports whether the listing was dismissed by the user
	// and must never be notified again.
	IsExcluded(ctx context.Context, id string) (bool, error)

	// AddExclusion dismisses a listing permanently.
	AddExclusion(ctx context.Context, id, url, reason string) error

	// MarkInactive deactivates every listing of a portal that is not in
	// activeIDs. Only call after a crawl that finished without errors;
	// a partial crawl proves nothing about missing listings.
	MarkInactive(ctx context.Context, portal string, activeIDs []string) (int64, error)

	// ResetNewFlags clears is_new on all listings. Runs once at the start
	// of each crawl so "new" always means "new in the latest run".
	ResetNewFlags(ctx context.Context) error

	// CleanupOld deletes inactive listings not seen for retentionDays.
	CleanupOld(ctx context.Context, retentionDays int) (int64, error)

	// RecordNotification logs a notification attempt for a listing.
	RecordNotification(ctx context.Context, listingID, channel, status, errMsg string) error

	// SaveRunStats persists the summary of one crawl run.
	SaveRunStats(ctx context.Context, rs *RunStats) error

	// CountListings returns total/active/new listing counts.
	CountListings(ctx context.Context) (total, active, isNew int64, err error)

	Close() error
}

// PortalStats aggregates one portal's numbers within a run.
type PortalStats struct {
	Found  int `json:"found"`
	New    int `json:"new"`
	Errors int `json:"errors"`
}

// RunStats summarizes one crawl run across all portals and profiles.
type RunStats struct {
	RunID     string    `json:"run_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Status    string    `json:"status"`

	Profiles    []string                `json:"profiles"`
	TotalFound  int                     `json:"total_found"`
	TotalNew    int                     `json:"total_new"`
	TotalErrors int                     `json:"total_errors"`
	Portals     map[string]*PortalStats `json:"portals"`
}

// NewRunStats starts tracking a run.
func NewRunStats() *RunStats {
	return &RunStats{
		RunID:     uuid.NewString(),
		StartTime: time.Now().UTC(),
		Status:    "running",
		Portals:   make(map[string]*PortalStats),
	}
}

// Portal returns the stats bucket for a portal, creating it on first use.
func (rs *RunStats) Portal(name string) *PortalStats {
	if rs.Portals[name] == nil {
		rs.Portals[name] = &PortalStats{}
	}
	return rs.Portals[name]
}

// Finish stamps the end of the run. Status is "completed" unless errors
// were counted.
func (rs *RunStats) Finish() {
	rs.EndTime = time.Now().UTC()
	if rs.TotalErrors > 0 {
		rs.Status = "completed_with_errors"
	} else {
		rs.Status = "completed"
	}
}

// Open picks the backing store: Postgres when databaseURL is set, the
// SQLite file at dbPath otherwise.
func Open(ctx context.Context, databaseURL, dbPath string) (Store, error) {
	if databaseURL != "" {
		return NewPostgresStore(ctx, databaseURL)
	}
	return NewSQLiteStore(dbPath)
}
