// Package gap classifies queries the site was not cited for into
// prioritized opportunities.
package gap

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/geo-visibility/internal/model"
)

// DefaultLookback is the number of recent analyses merged into opportunities.
const DefaultLookback = 3

// AllPlatforms is the number of providers a query must be missed on to be
// high impact regardless of intent.
const AllPlatforms = 3

// LostQueries extracts the queries no provider cited in one cycle. Only
// genuine misses (called, not errored) count; a query with any citation is
// won.
func LostQueries(results []model.ProviderResult) []model.LostQuery {
	type entry struct {
		query    string
		cited    bool
		missedOn []model.Platform
	}
	byKey := make(map[string]*entry)
	var order []string

	for _, r := range results {
		if !r.Valid() {
			continue
		}
		key := model.NormalizeQuery(r.Query)
		e, ok := byKey[key]
		if !ok {
			e = &entry{query: r.Query}
			byKey[key] = e
			order = append(order, key)
		}
		if r.Cited {
			e.cited = true
			continue
		}
		if !containsPlatform(e.missedOn, r.Provider) {
			e.missedOn = append(e.missedOn, r.Provider)
		}
	}

	var lost []model.LostQuery
	for _, k := range order {
		e := byKey[k]
		if e.cited || len(e.missedOn) == 0 {
			continue
		}
		lost = append(lost, model.LostQuery{
			Query:       e.query,
			BuyerIntent: BuyerIntent(e.query),
			MissedOn:    e.missedOn,
		})
	}
	return lost
}

// NewAnalysis wraps a cycle's lost queries for persistence.
func NewAnalysis(siteID, checkID string, at time.Time, results []model.ProviderResult) model.GapAnalysis {
	return model.GapAnalysis{
		ID:          uuid.NewString(),
		SiteID:      siteID,
		CheckID:     checkID,
		CreatedAt:   at.UTC(),
		LostQueries: LostQueries(results),
	}
}

// Classify assigns an impact tier and a human-readable reason.
func Classify(intent float64, missed int) (model.Impact, string) {
	switch {
	case missed >= AllPlatforms:
		return model.ImpactHigh, fmt.Sprintf("missed on all %d platforms", AllPlatforms)
	case intent >= 0.7 && missed >= 2:
		return model.ImpactHigh, fmt.Sprintf("high buyer intent (%.2f) and missed on %d platforms", intent, missed)
	case missed >= 2:
		return model.ImpactMedium, fmt.Sprintf("missed on %d platforms", missed)
	case intent >= 0.5:
		return model.ImpactMedium, fmt.Sprintf("buyer intent %.2f", intent)
	default:
		return model.ImpactLow, fmt.Sprintf("missed on %d platform", missed)
	}
}

// Merge dedupes lost queries across analyses by normalized query. The most
// recent analysis wins entirely for a query. addressed marks normalized
// queries that already have a remediation page.
func Merge(analyses []model.GapAnalysis, addressed map[string]bool) []model.Opportunity {
	sorted := append([]model.GapAnalysis(nil), analyses...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	seen := make(map[string]bool)
	var opps []model.Opportunity
	for _, a := range sorted {
		for _, lq := range a.LostQueries {
			key := model.NormalizeQuery(lq.Query)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true

			impact, reason := Classify(lq.BuyerIntent, len(lq.MissedOn))
			opps = append(opps, model.Opportunity{
				Query:           lq.Query,
				NormalizedQuery: key,
				BuyerIntent:     lq.BuyerIntent,
				Impact:          impact,
				Reason:          reason,
				MissedOn:        lq.MissedOn,
				LastSeenAt:      a.CreatedAt,
				Addressed:       addressed[key],
			})
		}
	}
	Sort(opps)
	return opps
}

// Sort orders opportunities: unaddressed first, then impact, then buyer
// intent descending, then normalized query.
func Sort(opps []model.Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		a, b := opps[i], opps[j]
		if a.Addressed != b.Addressed {
			return !a.Addressed
		}
		if a.Impact.Rank() != b.Impact.Rank() {
			return a.Impact.Rank() < b.Impact.Rank()
		}
		if a.BuyerIntent != b.BuyerIntent {
			return a.BuyerIntent > b.BuyerIntent
		}
		return a.NormalizedQuery < b.NormalizedQuery
	})
}

// Store is the persistence the Analyzer reads from.
type Store interface {
	RecentGapAnalyses(ctx context.Context, siteID string, limit int) ([]model.GapAnalysis, error)
	AddressedQueries(ctx context.Context, siteID string) (map[string]bool, error)
}

// Analyzer derives opportunities from persisted analyses.
type Analyzer struct {
	store    Store
	lookback int
}

// NewAnalyzer creates an Analyzer merging the last lookback analyses.
func NewAnalyzer(store Store, lookback int) *Analyzer {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &Analyzer{store: store, lookback: lookback}
}

// Opportunities returns the site's current ranked opportunities.
func (a *Analyzer) Opportunities(ctx context.Context, siteID string) ([]model.Opportunity, error) {
	analyses, err := a.store.RecentGapAnalyses(ctx, siteID, a.lookback)
	if err != nil {
		return nil, eris.Wrapf(err, "gap: load analyses for %s", siteID)
	}
	addressed, err := a.store.AddressedQueries(ctx, siteID)
	if err != nil {
		return nil, eris.Wrapf(err, "gap: load addressed queries for %s", siteID)
	}
	return Merge(analyses, addressed), nil
}

func containsPlatform(ps []model.Platform, p model.Platform) bool {
	for _, x := range ps {
		if x == p {
			return true
		}
	}
	return false
}
