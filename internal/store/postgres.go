package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/geo-visibility/internal/db"
	"github.com/sells-group/geo-visibility/internal/model"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool; Close is a no-op.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return eris.Wrap(db.Migrate(ctx, s.pool, migrationFS, "migrations"), "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) InsertCitation(ctx context.Context, c model.Citation) (bool, error) {
	c = prepareCitation(c)
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO citations (id, site_id, platform, query, normalized_query, snippet, confidence, confidence_band, discovered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (site_id, platform, normalized_query) DO NOTHING`,
		c.ID, c.SiteID, string(c.Platform), c.Query, model.NormalizeQuery(c.Query),
		c.Snippet, c.Confidence, string(c.ConfidenceBand), c.DiscoveredAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert citation for %s", c.SiteID)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ListCitations(ctx context.Context, siteID string, limit int) ([]model.Citation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, site_id, platform, query, snippet, confidence, confidence_band, discovered_at
		FROM citations WHERE site_id = $1 ORDER BY discovered_at DESC, id LIMIT $2`,
		siteID, listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list citations")
	}
	defer rows.Close()

	var out []model.Citation
	for rows.Next() {
		var c model.Citation
		var platform, band string
		if err := rows.Scan(&c.ID, &c.SiteID, &platform, &c.Query, &c.Snippet, &c.Confidence, &band, &c.DiscoveredAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan citation")
		}
		c.Platform = model.Platform(platform)
		c.ConfidenceBand = model.ConfidenceBand(band)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate citations")
}

// UpsertSnapshot writes the site's row for the day. A later cycle on the same
// day overwrites it.
func (s *PostgresStore) UpsertSnapshot(ctx context.Context, snap model.VisibilitySnapshot) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO visibility_snapshots (site_id, day, total_queries_checked, queries_won, queries_lost)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (site_id, day) DO UPDATE SET
			total_queries_checked = EXCLUDED.total_queries_checked,
			queries_won = EXCLUDED.queries_won,
			queries_lost = EXCLUDED.queries_lost`,
		snap.SiteID, model.Day(snap.Day), snap.TotalQueriesChecked, snap.QueriesWon, snap.QueriesLost,
	)
	return eris.Wrapf(err, "postgres: upsert snapshot for %s", snap.SiteID)
}

func (s *PostgresStore) ListSnapshots(ctx context.Context, siteID string, limit int) ([]model.VisibilitySnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT site_id, day, total_queries_checked, queries_won, queries_lost
		FROM visibility_snapshots WHERE site_id = $1 ORDER BY day DESC LIMIT $2`,
		siteID, listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list snapshots")
	}
	defer rows.Close()

	var out []model.VisibilitySnapshot
	for rows.Next() {
		var v model.VisibilitySnapshot
		if err := rows.Scan(&v.SiteID, &v.Day, &v.TotalQueriesChecked, &v.QueriesWon, &v.QueriesLost); err != nil {
			return nil, eris.Wrap(err, "postgres: scan snapshot")
		}
		v.Day = model.Day(v.Day)
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate snapshots")
}

// UpdateRunningScore locks the site's row with SELECT ... FOR UPDATE so
// concurrent writers from other processes serialize. A placeholder row with
// checks=0 is inserted first so there is always a row to lock.
func (s *PostgresStore) UpdateRunningScore(ctx context.Context, siteID string, fn func(cur model.RunningScore, exists bool) model.RunningScore) (model.RunningScore, error) {
	var next model.RunningScore
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO running_scores (site_id, score, checks, updated_at) VALUES ($1, 0, 0, now())
			ON CONFLICT (site_id) DO NOTHING`,
			siteID,
		); err != nil {
			return eris.Wrap(err, "postgres: ensure running score row")
		}

		cur := model.RunningScore{SiteID: siteID}
		if err := tx.QueryRow(ctx,
			`SELECT score, checks, updated_at FROM running_scores WHERE site_id = $1 FOR UPDATE`,
			siteID,
		).Scan(&cur.Score, &cur.Checks, &cur.UpdatedAt); err != nil {
			return eris.Wrap(err, "postgres: lock running score")
		}

		next = fn(cur, cur.Checks > 0)
		next.SiteID = siteID
		if _, err := tx.Exec(ctx,
			`UPDATE running_scores SET score = $2, checks = $3, updated_at = $4 WHERE site_id = $1`,
			siteID, next.Score, next.Checks, next.UpdatedAt,
		); err != nil {
			return eris.Wrap(err, "postgres: write running score")
		}
		return nil
	})
	if err != nil {
		return model.RunningScore{}, err
	}
	return next, nil
}

// GetRunningScore returns nil when the site has never been scored.
func (s *PostgresStore) GetRunningScore(ctx context.Context, siteID string) (*model.RunningScore, error) {
	rs := model.RunningScore{SiteID: siteID}
	err := s.pool.QueryRow(ctx,
		`SELECT score, checks, updated_at FROM running_scores WHERE site_id = $1 AND checks > 0`,
		siteID,
	).Scan(&rs.Score, &rs.Checks, &rs.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get running score for %s", siteID)
	}
	return &rs, nil
}

func (s *PostgresStore) UpsertTrustListings(ctx context.Context, listings []model.TrustListing) error {
	if len(listings) == 0 {
		return nil
	}
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, l := range listings {
			if _, err := tx.Exec(ctx,
				`INSERT INTO trust_listings (site_id, source_domain, is_listed, profile_url, checked_at)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (site_id, source_domain) DO UPDATE SET
					is_listed = EXCLUDED.is_listed,
					profile_url = EXCLUDED.profile_url,
					checked_at = EXCLUDED.checked_at`,
				l.SiteID, l.SourceDomain, l.IsListed, l.ProfileURL, l.CheckedAt.UTC(),
			); err != nil {
				return eris.Wrapf(err, "postgres: upsert trust listing %s", l.SourceDomain)
			}
		}
		return nil
	})
}

func (s *PostgresStore) ListTrustListings(ctx context.Context, siteID string) ([]model.TrustListing, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT site_id, source_domain, is_listed, profile_url, checked_at
		FROM trust_listings WHERE site_id = $1 ORDER BY source_domain`,
		siteID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list trust listings")
	}
	defer rows.Close()

	var out []model.TrustListing
	for rows.Next() {
		var l model.TrustListing
		if err := rows.Scan(&l.SiteID, &l.SourceDomain, &l.IsListed, &l.ProfileURL, &l.CheckedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan trust listing")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate trust listings")
}

func (s *PostgresStore) SaveGapAnalysis(ctx context.Context, a model.GapAnalysis) error {
	lost, err := json.Marshal(nonNilLost(a.LostQueries))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal lost queries")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO gap_analyses (id, site_id, check_id, created_at, lost_queries) VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.SiteID, a.CheckID, a.CreatedAt.UTC(), lost,
	)
	return eris.Wrapf(err, "postgres: save gap analysis for %s", a.SiteID)
}

func (s *PostgresStore) RecentGapAnalyses(ctx context.Context, siteID string, limit int) ([]model.GapAnalysis, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, site_id, check_id, created_at, lost_queries
		FROM gap_analyses WHERE site_id = $1 ORDER BY created_at DESC LIMIT $2`,
		siteID, listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: recent gap analyses")
	}
	defer rows.Close()

	var out []model.GapAnalysis
	for rows.Next() {
		var a model.GapAnalysis
		var lost []byte
		if err := rows.Scan(&a.ID, &a.SiteID, &a.CheckID, &a.CreatedAt, &lost); err != nil {
			return nil, eris.Wrap(err, "postgres: scan gap analysis")
		}
		if err := json.Unmarshal(lost, &a.LostQueries); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal lost queries of %s", a.ID)
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate gap analyses")
}

func (s *PostgresStore) AddressedQueries(ctx context.Context, siteID string) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT normalized_query FROM remediation_pages WHERE site_id = $1`,
		siteID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: addressed queries")
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, eris.Wrap(err, "postgres: scan addressed query")
		}
		out[q] = true
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate addressed queries")
}

func (s *PostgresStore) MarkAddressed(ctx context.Context, siteID, query string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO remediation_pages (site_id, normalized_query, created_at) VALUES ($1, $2, now())
		ON CONFLICT (site_id, normalized_query) DO NOTHING`,
		siteID, model.NormalizeQuery(query),
	)
	return eris.Wrapf(err, "postgres: mark addressed for %s", siteID)
}

func nonNilLost(l []model.LostQuery) []model.LostQuery {
	if l == nil {
		return []model.LostQuery{}
	}
	return l
}
