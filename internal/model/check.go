// Package model defines the data shapes read and written by the visibility engine.
package model

import (
	"strings"
	"time"
)

// Platform identifies an external generative-AI provider.
type Platform string

const (
	PlatformPerplexity Platform = "perplexity"
	PlatformGemini     Platform = "gemini"
	PlatformChatGPT    Platform = "chatgpt"
	PlatformClaude     Platform = "claude"
)

// Plan is the subscription tier that bounds the query quota.
type Plan string

const (
	PlanFree  Plan = "free"
	PlanTier2 Plan = "tier2"
	PlanTier3 Plan = "tier3"
	PlanTier4 Plan = "tier4"
)

// ParsePlan maps a wire value onto a Plan. Unknown values fall back to free.
func ParsePlan(s string) Plan {
	switch Plan(strings.ToLower(strings.TrimSpace(s))) {
	case PlanTier2:
		return PlanTier2
	case PlanTier3:
		return PlanTier3
	case PlanTier4:
		return PlanTier4
	default:
		return PlanFree
	}
}

// Quota is the maximum number of queries generated per full check.
func (p Plan) Quota() int {
	switch p {
	case PlanTier2:
		return 10
	case PlanTier3:
		return 20
	case PlanTier4:
		return 30
	default:
		return 3
	}
}

// CustomCap is the number of user-supplied queries the plan honors.
func (p Plan) CustomCap() int {
	switch p {
	case PlanTier2:
		return 3
	case PlanTier3:
		return 10
	case PlanTier4:
		return 20
	default:
		return 0
	}
}

// QuerySource records which generator layer produced a query.
type QuerySource string

const (
	QuerySourceCustom   QuerySource = "custom"
	QuerySourceBase     QuerySource = "base"
	QuerySourceCategory QuerySource = "category"
	QuerySourceIntent   QuerySource = "intent"
)

// CheckQuery is a natural-language question sent to providers.
type CheckQuery struct {
	Text   string      `json:"text"`
	Source QuerySource `json:"source"`
	Rank   int         `json:"rank"`
}

// ErrorKind classifies why a provider call did not produce a usable answer.
type ErrorKind string

const (
	ErrorKindNone        ErrorKind = ""
	ErrorKindTransport   ErrorKind = "transport"
	ErrorKindTimeout     ErrorKind = "timeout"
	ErrorKindStatus      ErrorKind = "status"
	ErrorKindMalformed   ErrorKind = "malformed"
	ErrorKindCircuitOpen ErrorKind = "circuit_open"
)

// ProviderResult is the outcome of asking one provider one query.
// ProviderCalled=false means the provider was never invoked.
type ProviderResult struct {
	Provider       Platform  `json:"provider"`
	Query          string    `json:"query"`
	Cited          bool      `json:"cited"`
	Confidence     float64   `json:"confidence"`
	Snippet        string    `json:"snippet,omitempty"`
	Error          string    `json:"error,omitempty"`
	ErrorKind      ErrorKind `json:"error_kind,omitempty"`
	ProviderCalled bool      `json:"provider_called"`
	DurationMS     int64     `json:"duration_ms"`
}

// Valid reports whether the result is a genuine attempt that produced an answer.
func (r ProviderResult) Valid() bool {
	return r.ProviderCalled && r.Error == ""
}

// Missed reports whether the result is a genuine negative signal.
func (r ProviderResult) Missed() bool {
	return r.Valid() && !r.Cited
}

// CheckRequest is the input of one check cycle.
type CheckRequest struct {
	Domain        string   `json:"domain"`
	SiteID        string   `json:"site_id,omitempty"`
	Plan          Plan     `json:"plan"`
	Category      string   `json:"category,omitempty"`
	CustomQueries []string `json:"custom_queries,omitempty"`
	SingleQuery   string   `json:"single_query,omitempty"`
}

// CheckCycleResult is the aggregated output of one check cycle.
type CheckCycleResult struct {
	CheckID           string           `json:"check_id"`
	Domain            string           `json:"domain"`
	SiteID            string           `json:"site_id,omitempty"`
	Results           []ProviderResult `json:"results"`
	TrustListings     []TrustListing   `json:"trust_listings,omitempty"`
	CitedCount        int              `json:"cited_count"`
	APIsCalled        int              `json:"apis_called"`
	VisibilityPercent int              `json:"visibility_percent"`
	ScoreUpdated      bool             `json:"score_updated"`
	RunningScore      int              `json:"running_score"`
	Opportunities     []Opportunity    `json:"opportunities"`
	EstimatedCostUSD  float64          `json:"estimated_cost_usd"`
	Warnings          []string         `json:"warnings,omitempty"`
	StartedAt         time.Time        `json:"started_at"`
	DurationMS        int64            `json:"duration_ms"`
}

// NormalizeQuery is the dedupe key for query text: trimmed and lower-cased.
func NormalizeQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}
