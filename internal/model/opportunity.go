package model

import "time"

// Impact is the priority tier of an opportunity.
type Impact string

const (
	ImpactHigh   Impact = "high"
	ImpactMedium Impact = "medium"
	ImpactLow    Impact = "low"
)

// Rank orders impacts: high sorts first.
func (i Impact) Rank() int {
	switch i {
	case ImpactHigh:
		return 0
	case ImpactMedium:
		return 1
	default:
		return 2
	}
}

// LostQuery is a query no provider cited during one check cycle.
type LostQuery struct {
	Query       string     `json:"query"`
	BuyerIntent float64    `json:"buyer_intent"`
	MissedOn    []Platform `json:"missed_on"`
}

// GapAnalysis holds the lost queries of one check cycle.
type GapAnalysis struct {
	ID          string      `json:"id"`
	SiteID      string      `json:"site_id"`
	CheckID     string      `json:"check_id"`
	CreatedAt   time.Time   `json:"created_at"`
	LostQueries []LostQuery `json:"lost_queries"`
}

// Opportunity is a deduplicated, impact-ranked query the site is not cited for.
type Opportunity struct {
	Query           string     `json:"query"`
	NormalizedQuery string     `json:"normalized_query"`
	BuyerIntent     float64    `json:"buyer_intent"`
	Impact          Impact     `json:"impact"`
	Reason          string     `json:"reason"`
	MissedOn        []Platform `json:"missed_on"`
	LastSeenAt      time.Time  `json:"last_seen_at"`
	Addressed       bool       `json:"addressed"`
}
