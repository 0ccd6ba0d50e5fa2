package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pisowatch/internal/scraper"
	"pisowatch/logger"
	errs "pisowatch/pkg/errors"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS listings (
	id             TEXT PRIMARY KEY,
	portal         TEXT NOT NULL,
	url            TEXT NOT NULL,
	title          TEXT,
	description    TEXT,
	price          INTEGER,
	surface        INTEGER,
	bedrooms       INTEGER,
	bathrooms      INTEGER,
	province       TEXT,
	city           TEXT,
	zone           TEXT,
	has_elevator   BOOLEAN,
	has_parking    BOOLEAN,
	has_pool       BOOLEAN,
	has_terrace    BOOLEAN,
	has_ac         BOOLEAN,
	has_heating    BOOLEAN,
	is_furnished   BOOLEAN,
	is_exterior    BOOLEAN,
	operation_type TEXT,
	property_type  TEXT,
	images         JSONB,
	raw_data       JSONB,
	is_new         BOOLEAN NOT NULL DEFAULT TRUE,
	is_active      BOOLEAN NOT NULL DEFAULT TRUE,
	first_seen     TIMESTAMPTZ NOT NULL,
	last_seen      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_listings_portal    ON listings(portal);
CREATE INDEX IF NOT EXISTS idx_listings_is_new    ON listings(is_new);
CREATE INDEX IF NOT EXISTS idx_listings_last_seen ON listings(last_seen);

CREATE TABLE IF NOT EXISTS exclusions (
	listing_id TEXT PRIMARY KEY,
	url        TEXT,
	reason     TEXT,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
	id         BIGSERIAL PRIMARY KEY,
	listing_id TEXT NOT NULL,
	channel    TEXT NOT NULL,
	status     TEXT NOT NULL,
	error      TEXT,
	sent_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS run_stats (
	run_id       TEXT PRIMARY KEY,
	start_time   TIMESTAMPTZ NOT NULL,
	end_time     TIMESTAMPTZ,
	status       TEXT NOT NULL,
	profiles     JSONB,
	total_found  INTEGER NOT NULL DEFAULT 0,
	total_new    INTEGER NOT NULL DEFAULT 0,
	total_errors INTEGER NOT NULL DEFAULT 0,
	portal_stats JSONB
);
`

// PostgresStore implements Store on pgx for shared deployments.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, errs.NewStorage("failed to connect to postgres", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, errs.NewStorage("failed to apply schema", err)
	}

	log := logger.ForStore()
	log.Info().Msg("Postgres store ready")
	return &PostgresStore{pool: pool, log: log}, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, l *scraper.Listing) (bool, error) {
	now := time.Now().UTC()
	images := marshalImages(l.Images)

	// Insert-first: a conflict means the listing is known and gets a
	// refresh that preserves first_seen and is_new.
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO listings (
			id, portal, url, title, description,
			price, surface, bedrooms, bathrooms,
			province, city, zone,
			has_elevator, has_parking, has_pool, has_terrace,
			has_ac, has_heating, is_furnished, is_exterior,
			operation_type, property_type, images, raw_data,
			is_new, is_active, first_seen, last_seen
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,NULLIF($23,'')::jsonb,NULLIF($24,'')::jsonb,TRUE,TRUE,$25,$25)
		ON CONFLICT (id) DO NOTHING`,
		l.ID, l.Portal, l.URL, l.Title, l.Description,
		l.Price, l.Surface, l.Bedrooms, l.Bathrooms,
		l.Province, l.City, l.Zone,
		l.HasElevator, l.HasParking, l.HasPool, l.HasTerrace,
		l.HasAC, l.HasHeating, l.IsFurnished, l.IsExterior,
		l.OperationType, l.PropertyType, images, string(l.RawData),
		now)
	if err != nil {
		return false, errs.NewStorage(fmt.Sprintf("failed to insert listing %s", l.ID), err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE listings SET
			title = $1, description = $2,
			price = $3, surface = $4, bedrooms = $5, bathrooms = $6,
			province = $7, city = $8, zone = $9,
			has_elevator = $10, has_parking = $11, has_pool = $12, has_terrace = $13,
			has_ac = $14, has_heating = $15, is_furnished = $16, is_exterior = $17,
			operation_type = $18, property_type = $19,
			images = NULLIF($20,'')::jsonb, raw_data = NULLIF($21,'')::jsonb,
			is_active = TRUE, last_seen = $22
		WHERE id = $23`,
		l.Title, l.Description,
		l.Price, l.Surface, l.Bedrooms, l.Bathrooms,
		l.Province, l.City, l.Zone,
		l.HasElevator, l.HasParking, l.HasPool, l.HasTerrace,
		l.HasAC, l.HasHeating, l.IsFurnished, l.IsExterior,
		l.OperationType, l.PropertyType, images, string(l.RawData),
		now, l.ID)
	if err != nil {
		return false, errs.NewStorage(fmt.Sprintf("failed to update listing %s", l.ID), err)
	}
	return false, nil
}

func (s *PostgresStore) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM listings WHERE id = $1`, id).Scan(&one)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errs.NewStorage("failed to check listing existence", err)
	}
	return true, nil
}

func (s *PostgresStore) IsExcluded(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM exclusions WHERE listing_id = $1`, id).Scan(&one)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errs.NewStorage("failed to check exclusion", err)
	}
	return true, nil
}

func (s *PostgresStore) AddExclusion(ctx context.Context, id, url, reason string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO exclusions (listing_id, url, reason, created_at)
		VALUES ($1,$2,$3,$4) ON CONFLICT (listing_id) DO NOTHING`,
		id, url, reason, time.Now().UTC())
	if err != nil {
		return errs.NewStorage(fmt.Sprintf("failed to exclude listing %s", id), err)
	}
	return nil
}

func (s *PostgresStore) MarkInactive(ctx context.Context, portal string, activeIDs []string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE listings SET is_active = FALSE
		WHERE portal = $1 AND is_active AND NOT (id = ANY($2))`,
		portal, activeIDs)
	if err != nil {
		return 0, errs.NewStorage(fmt.Sprintf("failed to mark %s listings inactive", portal), err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) ResetNewFlags(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `UPDATE listings SET is_new = FALSE WHERE is_new`); err != nil {
		return errs.NewStorage("failed to reset new flags", err)
	}
	return nil
}

func (s *PostgresStore) CleanupOld(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM listings WHERE NOT is_active AND last_seen < $1`, cutoff)
	if err != nil {
		return 0, errs.NewStorage("failed to clean up old listings", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) RecordNotification(ctx context.Context, listingID, channel, status, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (listing_id, channel, status, error, sent_at)
		VALUES ($1,$2,$3,$4,$5)`,
		listingID, channel, status, errMsg, time.Now().UTC())
	if err != nil {
		return errs.NewStorage("failed to record notification", err)
	}
	return nil
}

func (s *PostgresStore) SaveRunStats(ctx context.Context, rs *RunStats) error {
	profiles, _ := json.Marshal(rs.Profiles)
	portals, _ := json.Marshal(rs.Portals)

	_, err := s.pool.Exec(ctx, `
		INSERT INTO run_stats
			(run_id, start_time, end_time, status, profiles, total_found, total_new, total_errors, portal_stats)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (run_id) DO UPDATE SET
			end_time = EXCLUDED.end_time, status = EXCLUDED.status,
			total_found = EXCLUDED.total_found, total_new = EXCLUDED.total_new,
			total_errors = EXCLUDED.total_errors, portal_stats = EXCLUDED.portal_stats`,
		rs.RunID, rs.StartTime, rs.EndTime, rs.Status, profiles,
		rs.TotalFound, rs.TotalNew, rs.TotalErrors, portals)
	if err != nil {
		return errs.NewStorage("failed to save run stats", err)
	}
	return nil
}

func (s *PostgresStore) CountListings(ctx context.Context) (total, active, isNew int64, err error) {
	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE is_active),
		       COUNT(*) FILTER (WHERE is_new)
		FROM listings`).Scan(&total, &active, &isNew)
	if err != nil {
		err = errs.NewStorage("failed to count listings", err)
	}
	return
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
