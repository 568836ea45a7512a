// Package store persists citations, snapshots, running scores, trust
// listings and gap analyses. Postgres is the production backend; SQLite
// serves local runs and tests.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/geo-visibility/internal/model"
)

// Store defines the persistence interface for the visibility engine.
type Store interface {
	// Citations
	InsertCitation(ctx context.Context, c model.Citation) (inserted bool, err error)
	ListCitations(ctx context.Context, siteID string, limit int) ([]model.Citation, error)

	// Snapshots
	UpsertSnapshot(ctx context.Context, s model.VisibilitySnapshot) error
	ListSnapshots(ctx context.Context, siteID string, limit int) ([]model.VisibilitySnapshot, error)

	// Running score. fn receives the current row (exists=false when the site
	// has none) and returns the row to write, inside one transaction.
	UpdateRunningScore(ctx context.Context, siteID string, fn func(cur model.RunningScore, exists bool) model.RunningScore) (model.RunningScore, error)
	GetRunningScore(ctx context.Context, siteID string) (*model.RunningScore, error)

	// Trust listings
	UpsertTrustListings(ctx context.Context, listings []model.TrustListing) error
	ListTrustListings(ctx context.Context, siteID string) ([]model.TrustListing, error)

	// Gap analyses and remediation
	SaveGapAnalysis(ctx context.Context, a model.GapAnalysis) error
	RecentGapAnalyses(ctx context.Context, siteID string, limit int) ([]model.GapAnalysis, error)
	AddressedQueries(ctx context.Context, siteID string) (map[string]bool, error)
	MarkAddressed(ctx context.Context, siteID, query string) error

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func listLimit(n int) int {
	if n <= 0 || n > 1000 {
		return defaultListLimit
	}
	return n
}

// prepareCitation fills the ID, band and timestamp of a new citation.
func prepareCitation(c model.Citation) model.Citation {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.ConfidenceBand == "" {
		c.ConfidenceBand = model.BandFor(c.Confidence)
	}
	if c.DiscoveredAt.IsZero() {
		c.DiscoveredAt = time.Now()
	}
	c.DiscoveredAt = c.DiscoveredAt.UTC()
	return c
}
