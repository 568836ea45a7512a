package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/geo-visibility/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	// Pragmas are per connection and SQLite has a single writer.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS citations (
	id               TEXT PRIMARY KEY,
	site_id          TEXT NOT NULL,
	platform         TEXT NOT NULL,
	query            TEXT NOT NULL,
	normalized_query TEXT NOT NULL,
	snippet          TEXT NOT NULL DEFAULT '',
	confidence       REAL NOT NULL,
	confidence_band  TEXT NOT NULL,
	discovered_at    DATETIME NOT NULL,
	UNIQUE (site_id, platform, normalized_query)
);

CREATE TABLE IF NOT EXISTS visibility_snapshots (
	site_id               TEXT NOT NULL,
	day                   DATETIME NOT NULL,
	total_queries_checked INTEGER NOT NULL DEFAULT 0,
	queries_won           INTEGER NOT NULL DEFAULT 0,
	queries_lost          INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (site_id, day)
);

CREATE TABLE IF NOT EXISTS running_scores (
	site_id    TEXT PRIMARY KEY,
	score      INTEGER NOT NULL DEFAULT 0,
	checks     INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS trust_listings (
	site_id       TEXT NOT NULL,
	source_domain TEXT NOT NULL,
	is_listed     BOOLEAN NOT NULL,
	profile_url   TEXT NOT NULL DEFAULT '',
	checked_at    DATETIME NOT NULL,
	PRIMARY KEY (site_id, source_domain)
);

CREATE TABLE IF NOT EXISTS gap_analyses (
	id           TEXT PRIMARY KEY,
	site_id      TEXT NOT NULL,
	check_id     TEXT NOT NULL,
	created_at   DATETIME NOT NULL,
	lost_queries TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS remediation_pages (
	site_id          TEXT NOT NULL,
	normalized_query TEXT NOT NULL,
	created_at       DATETIME NOT NULL,
	PRIMARY KEY (site_id, normalized_query)
);

CREATE INDEX IF NOT EXISTS idx_citations_site_discovered ON citations(site_id, discovered_at);
CREATE INDEX IF NOT EXISTS idx_gap_analyses_site_created ON gap_analyses(site_id, created_at);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertCitation(ctx context.Context, c model.Citation) (bool, error) {
	c = prepareCitation(c)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO citations (id, site_id, platform, query, normalized_query, snippet, confidence, confidence_band, discovered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (site_id, platform, normalized_query) DO NOTHING`,
		c.ID, c.SiteID, string(c.Platform), c.Query, model.NormalizeQuery(c.Query),
		c.Snippet, c.Confidence, string(c.ConfidenceBand), c.DiscoveredAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert citation for %s", c.SiteID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) ListCitations(ctx context.Context, siteID string, limit int) ([]model.Citation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, site_id, platform, query, snippet, confidence, confidence_band, discovered_at
		FROM citations WHERE site_id = ? ORDER BY discovered_at DESC, id LIMIT ?`,
		siteID, listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list citations")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Citation
	for rows.Next() {
		var c model.Citation
		var platform, band string
		if err := rows.Scan(&c.ID, &c.SiteID, &platform, &c.Query, &c.Snippet, &c.Confidence, &band, &c.DiscoveredAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan citation")
		}
		c.Platform = model.Platform(platform)
		c.ConfidenceBand = model.ConfidenceBand(band)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate citations")
}

func (s *SQLiteStore) UpsertSnapshot(ctx context.Context, snap model.VisibilitySnapshot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO visibility_snapshots (site_id, day, total_queries_checked, queries_won, queries_lost)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (site_id, day) DO UPDATE SET
			total_queries_checked = excluded.total_queries_checked,
			queries_won = excluded.queries_won,
			queries_lost = excluded.queries_lost`,
		snap.SiteID, model.Day(snap.Day), snap.TotalQueriesChecked, snap.QueriesWon, snap.QueriesLost,
	)
	return eris.Wrapf(err, "sqlite: upsert snapshot for %s", snap.SiteID)
}

func (s *SQLiteStore) ListSnapshots(ctx context.Context, siteID string, limit int) ([]model.VisibilitySnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT site_id, day, total_queries_checked, queries_won, queries_lost
		FROM visibility_snapshots WHERE site_id = ? ORDER BY day DESC LIMIT ?`,
		siteID, listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list snapshots")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.VisibilitySnapshot
	for rows.Next() {
		var v model.VisibilitySnapshot
		if err := rows.Scan(&v.SiteID, &v.Day, &v.TotalQueriesChecked, &v.QueriesWon, &v.QueriesLost); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan snapshot")
		}
		v.Day = model.Day(v.Day)
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate snapshots")
}

// UpdateRunningScore starts with a write so the transaction holds the
// database write lock for the whole read-modify-write.
func (s *SQLiteStore) UpdateRunningScore(ctx context.Context, siteID string, fn func(cur model.RunningScore, exists bool) model.RunningScore) (model.RunningScore, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.RunningScore{}, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO running_scores (site_id, score, checks, updated_at) VALUES (?, 0, 0, ?)
		ON CONFLICT (site_id) DO NOTHING`,
		siteID, time.Now().UTC(),
	); err != nil {
		return model.RunningScore{}, eris.Wrap(err, "sqlite: ensure running score row")
	}

	cur := model.RunningScore{SiteID: siteID}
	if err := tx.QueryRowContext(ctx,
		`SELECT score, checks, updated_at FROM running_scores WHERE site_id = ?`,
		siteID,
	).Scan(&cur.Score, &cur.Checks, &cur.UpdatedAt); err != nil {
		return model.RunningScore{}, eris.Wrap(err, "sqlite: read running score")
	}

	next := fn(cur, cur.Checks > 0)
	next.SiteID = siteID
	if _, err := tx.ExecContext(ctx,
		`UPDATE running_scores SET score = ?, checks = ?, updated_at = ? WHERE site_id = ?`,
		next.Score, next.Checks, next.UpdatedAt.UTC(), siteID,
	); err != nil {
		return model.RunningScore{}, eris.Wrap(err, "sqlite: write running score")
	}
	if err := tx.Commit(); err != nil {
		return model.RunningScore{}, eris.Wrap(err, "sqlite: commit running score")
	}
	return next, nil
}

func (s *SQLiteStore) GetRunningScore(ctx context.Context, siteID string) (*model.RunningScore, error) {
	rs := model.RunningScore{SiteID: siteID}
	err := s.db.QueryRowContext(ctx,
		`SELECT score, checks, updated_at FROM running_scores WHERE site_id = ? AND checks > 0`,
		siteID,
	).Scan(&rs.Score, &rs.Checks, &rs.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get running score for %s", siteID)
	}
	return &rs, nil
}

func (s *SQLiteStore) UpsertTrustListings(ctx context.Context, listings []model.TrustListing) error {
	if len(listings) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, l := range listings {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO trust_listings (site_id, source_domain, is_listed, profile_url, checked_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (site_id, source_domain) DO UPDATE SET
				is_listed = excluded.is_listed,
				profile_url = excluded.profile_url,
				checked_at = excluded.checked_at`,
			l.SiteID, l.SourceDomain, l.IsListed, l.ProfileURL, l.CheckedAt.UTC(),
		); err != nil {
			return eris.Wrapf(err, "sqlite: upsert trust listing %s", l.SourceDomain)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit trust listings")
}

func (s *SQLiteStore) ListTrustListings(ctx context.Context, siteID string) ([]model.TrustListing, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT site_id, source_domain, is_listed, profile_url, checked_at
		FROM trust_listings WHERE site_id = ? ORDER BY source_domain`,
		siteID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list trust listings")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.TrustListing
	for rows.Next() {
		var l model.TrustListing
		if err := rows.Scan(&l.SiteID, &l.SourceDomain, &l.IsListed, &l.ProfileURL, &l.CheckedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan trust listing")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate trust listings")
}

func (s *SQLiteStore) SaveGapAnalysis(ctx context.Context, a model.GapAnalysis) error {
	lost, err := json.Marshal(nonNilLost(a.LostQueries))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal lost queries")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO gap_analyses (id, site_id, check_id, created_at, lost_queries) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.SiteID, a.CheckID, a.CreatedAt.UTC(), string(lost),
	)
	return eris.Wrapf(err, "sqlite: save gap analysis for %s", a.SiteID)
}

func (s *SQLiteStore) RecentGapAnalyses(ctx context.Context, siteID string, limit int) ([]model.GapAnalysis, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, site_id, check_id, created_at, lost_queries
		FROM gap_analyses WHERE site_id = ? ORDER BY created_at DESC LIMIT ?`,
		siteID, listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: recent gap analyses")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.GapAnalysis
	for rows.Next() {
		var a model.GapAnalysis
		var lost string
		if err := rows.Scan(&a.ID, &a.SiteID, &a.CheckID, &a.CreatedAt, &lost); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan gap analysis")
		}
		if err := json.Unmarshal([]byte(lost), &a.LostQueries); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal lost queries of %s", a.ID)
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate gap analyses")
}

func (s *SQLiteStore) AddressedQueries(ctx context.Context, siteID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT normalized_query FROM remediation_pages WHERE site_id = ?`,
		siteID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: addressed queries")
	}
	defer rows.Close() //nolint:errcheck

	out := make(map[string]bool)
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan addressed query")
		}
		out[q] = true
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate addressed queries")
}

func (s *SQLiteStore) MarkAddressed(ctx context.Context, siteID, query string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO remediation_pages (site_id, normalized_query, created_at) VALUES (?, ?, ?)
		ON CONFLICT (site_id, normalized_query) DO NOTHING`,
		siteID, model.NormalizeQuery(query), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: mark addressed for %s", siteID)
}
