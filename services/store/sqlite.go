package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"pisowatch/internal/scraper"
	"pisowatch/logger"
	errs "pisowatch/pkg/errors"
)

const sqliteSchema = `
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
	has_elevator   INTEGER,
	has_parking    INTEGER,
	has_pool       INTEGER,
	has_terrace    INTEGER,
	has_ac         INTEGER,
	has_heating    INTEGER,
	is_furnished   INTEGER,
	is_exterior    INTEGER,
	operation_type TEXT,
	property_type  TEXT,
	images         TEXT,
	raw_data       TEXT,
	is_new         INTEGER NOT NULL DEFAULT 1,
	is_active      INTEGER NOT NULL DEFAULT 1,
	first_seen     TIMESTAMP NOT NULL,
	last_seen      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_listings_portal    ON listings(portal);
CREATE INDEX IF NOT EXISTS idx_listings_is_new    ON listings(is_new);
CREATE INDEX IF NOT EXISTS idx_listings_last_seen ON listings(last_seen);

CREATE TABLE IF NOT EXISTS exclusions (
	listing_id TEXT PRIMARY KEY,
	url        TEXT,
	reason     TEXT,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	listing_id TEXT NOT NULL,
	channel    TEXT NOT NULL,
	status     TEXT NOT NULL,
	error      TEXT,
	sent_at    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS run_stats (
	run_id       TEXT PRIMARY KEY,
	start_time   TIMESTAMP NOT NULL,
	end_time     TIMESTAMP,
	status       TEXT NOT NULL,
	profiles     TEXT,
	total_found  INTEGER NOT NULL DEFAULT 0,
	total_new    INTEGER NOT NULL DEFAULT 0,
	total_errors INTEGER NOT NULL DEFAULT 0,
	portal_stats TEXT
);
`

// SQLiteStore implements Store on a local SQLite file.
type SQLiteStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewSQLiteStore opens (and creates if needed) the database at path and
// applies the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errs.NewStorage(fmt.Sprintf("failed to create data dir %s", dir), err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errs.NewStorage(fmt.Sprintf("failed to open sqlite db %s", path), err)
	}
	// SQLite serializes writers anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, errs.NewStorage("failed to apply schema", err)
	}

	log := logger.ForStore()
	log.Info().Str("path", path).Msg("SQLite store ready")
	return &SQLiteStore{db: db, log: log}, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, l *scraper.Listing) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM listings WHERE id = ?`, l.ID).Scan(&one)

	images := marshalImages(l.Images)
	now := time.Now().UTC()

	switch {
	case err == sql.ErrNoRows:
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO listings (
				id, portal, url, title, description,
				price, surface, bedrooms, bathrooms,
				province, city, zone,
				has_elevator, has_parking, has_pool, has_terrace,
				has_ac, has_heating, is_furnished, is_exterior,
				operation_type, property_type, images, raw_data,
				is_new, is_active, first_seen, last_seen
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,1,1,?,?)`,
			l.ID, l.Portal, l.URL, l.Title, l.Description,
			l.Price, l.Surface, l.Bedrooms, l.Bathrooms,
			l.Province, l.City, l.Zone,
			l.HasElevator, l.HasParking, l.HasPool, l.HasTerrace,
			l.HasAC, l.HasHeating, l.IsFurnished, l.IsExterior,
			l.OperationType, l.PropertyType, images, string(l.RawData),
			now, now)
		if err != nil {
			return false, errs.NewStorage(fmt.Sprintf("failed to insert listing %s", l.ID), err)
		}
		return true, nil

	case err != nil:
		return false, errs.NewStorage(fmt.Sprintf("failed to look up listing %s", l.ID), err)

	default:
		// first_seen and is_new stay untouched on refresh
		_, err = s.db.ExecContext(ctx, `
			UPDATE listings SET
				title = ?, description = ?,
				price = ?, surface = ?, bedrooms = ?, bathrooms = ?,
				province = ?, city = ?, zone = ?,
				has_elevator = ?, has_parking = ?, has_pool = ?, has_terrace = ?,
				has_ac = ?, has_heating = ?, is_furnished = ?, is_exterior = ?,
				operation_type = ?, property_type = ?, images = ?, raw_data = ?,
				is_active = 1, last_seen = ?
			WHERE id = ?`,
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
}

func (s *SQLiteStore) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM listings WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errs.NewStorage("failed to check listing existence", err)
	}
	return true, nil
}

func (s *SQLiteStore) IsExcluded(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM exclusions WHERE listing_id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errs.NewStorage("failed to check exclusion", err)
	}
	return true, nil
}

func (s *SQLiteStore) AddExclusion(ctx context.Context, id, url, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO exclusions (listing_id, url, reason, created_at) VALUES (?,?,?,?)`,
		id, url, reason, time.Now().UTC())
	if err != nil {
		return errs.NewStorage(fmt.Sprintf("failed to exclude listing %s", id), err)
	}
	return nil
}

func (s *SQLiteStore) MarkInactive(ctx context.Context, portal string, activeIDs []string) (int64, error) {
	query := `UPDATE listings SET is_active = 0 WHERE portal = ? AND is_active = 1`
	args := []any{portal}

	if len(activeIDs) > 0 {
		query += ` AND id NOT IN (?` + strings.Repeat(",?", len(activeIDs)-1) + `)`
		for _, id := range activeIDs {
			args = append(args, id)
		}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errs.NewStorage(fmt.Sprintf("failed to mark %s listings inactive", portal), err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) ResetNewFlags(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE listings SET is_new = 0 WHERE is_new = 1`); err != nil {
		return errs.NewStorage("failed to reset new flags", err)
	}
	return nil
}

func (s *SQLiteStore) CleanupOld(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM listings WHERE is_active = 0 AND last_seen < ?`, cutoff)
	if err != nil {
		return 0, errs.NewStorage("failed to clean up old listings", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) RecordNotification(ctx context.Context, listingID, channel, status, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (listing_id, channel, status, error, sent_at) VALUES (?,?,?,?,?)`,
		listingID, channel, status, errMsg, time.Now().UTC())
	if err != nil {
		return errs.NewStorage("failed to record notification", err)
	}
	return nil
}

func (s *SQLiteStore) SaveRunStats(ctx context.Context, rs *RunStats) error {
	profiles, _ := json.Marshal(rs.Profiles)
	portals, _ := json.Marshal(rs.Portals)

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO run_stats
			(run_id, start_time, end_time, status, profiles, total_found, total_new, total_errors, portal_stats)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		rs.RunID, rs.StartTime, rs.EndTime, rs.Status, string(profiles),
		rs.TotalFound, rs.TotalNew, rs.TotalErrors, string(portals))
	if err != nil {
		return errs.NewStorage("failed to save run stats", err)
	}
	return nil
}

func (s *SQLiteStore) CountListings(ctx context.Context) (total, active, isNew int64, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(is_active), 0),
		       COALESCE(SUM(is_new), 0)
		FROM listings`).Scan(&total, &active, &isNew)
	if err != nil {
		err = errs.NewStorage("failed to count listings", err)
	}
	return
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func marshalImages(images []string) string {
	if len(images) == 0 {
		return ""
	}
	b, _ := json.Marshal(images)
	return string(b)
}
