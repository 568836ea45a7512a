package model

import "time"

// ConfidenceBand buckets a citation's confidence for display.
type ConfidenceBand string

const (
	BandHigh   ConfidenceBand = "high"
	BandMedium ConfidenceBand = "medium"
	BandLow    ConfidenceBand = "low"
)

// BandFor maps a confidence value onto its band.
func BandFor(confidence float64) ConfidenceBand {
	switch {
	case confidence >= 0.80:
		return BandHigh
	case confidence >= 0.60:
		return BandMedium
	default:
		return BandLow
	}
}

// Citation is a durable, append-only record that a provider cited the site.
type Citation struct {
	ID             string         `json:"id"`
	SiteID         string         `json:"site_id"`
	Platform       Platform       `json:"platform"`
	Query          string         `json:"query"`
	Snippet        string         `json:"snippet"`
	Confidence     float64        `json:"confidence"`
	ConfidenceBand ConfidenceBand `json:"confidence_band"`
	DiscoveredAt   time.Time      `json:"discovered_at"`
}

// TrustListing records whether a site is listed on a third-party directory.
type TrustListing struct {
	SiteID       string    `json:"site_id,omitempty"`
	SourceDomain string    `json:"source_domain"`
	IsListed     bool      `json:"is_listed"`
	ProfileURL   string    `json:"profile_url,omitempty"`
	Error        string    `json:"error,omitempty"`
	CheckedAt    time.Time `json:"checked_at"`
}

// VisibilitySnapshot is the per-site, per-day tally of won and lost queries.
type VisibilitySnapshot struct {
	SiteID              string    `json:"site_id"`
	Day                 time.Time `json:"day"`
	TotalQueriesChecked int       `json:"total_queries_checked"`
	QueriesWon          int       `json:"queries_won"`
	QueriesLost         int       `json:"queries_lost"`
}

// RunningScore is the EMA-smoothed visibility score of a site.
type RunningScore struct {
	SiteID    string    `json:"site_id"`
	Score     int       `json:"score"`
	Checks    int       `json:"checks"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
