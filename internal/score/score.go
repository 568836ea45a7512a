// Package score turns provider results into visibility percentages, daily
// snapshots and the EMA-smoothed running score of a site.
package score

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geo-visibility/internal/model"
)

// DefaultOldWeight is the weight of the previous running score in a blend.
const DefaultOldWeight = 0.7

// Tally counts distinct queries with at least one valid attempt and how many
// of them any provider cited.
type Tally struct {
	Valid int
	Cited int
}

// Count tallies results per normalized query. Unconfigured, circuit-skipped
// and errored calls are not attempts and are ignored.
func Count(results []model.ProviderResult) Tally {
	order, won := outcomes(results)
	t := Tally{Valid: len(order)}
	for _, k := range order {
		if won[k] {
			t.Cited++
		}
	}
	return t
}

// outcomes returns the distinct validly attempted queries in first-seen order
// and whether each was cited.
func outcomes(results []model.ProviderResult) ([]string, map[string]bool) {
	won := make(map[string]bool)
	var order []string
	for _, r := range results {
		if !r.Valid() {
			continue
		}
		key := model.NormalizeQuery(r.Query)
		if _, seen := won[key]; !seen {
			order = append(order, key)
			won[key] = false
		}
		if r.Cited {
			won[key] = true
		}
	}
	return order, won
}

// Percent returns round(cited / valid * 100), or 0 with ok=false when there
// were no valid attempts.
func (t Tally) Percent() (pct int, ok bool) {
	if t.Valid == 0 {
		return 0, false
	}
	// round half up in integer arithmetic
	return (t.Cited*200 + t.Valid) / (2 * t.Valid), true
}

// VisibilityPercent is Count(results).Percent() without the ok flag.
func VisibilityPercent(results []model.ProviderResult) int {
	pct, _ := Count(results).Percent()
	return pct
}

// Blend applies the EMA rule: the first score is taken as is, later scores
// are blended as round(w*old + (1-w)*new).
func Blend(old int, exists bool, newScore int, oldWeight float64) int {
	if !exists {
		return newScore
	}
	v := oldWeight*float64(old) + (1-oldWeight)*float64(newScore)
	// trim float noise so x.5 rounds up consistently
	v = math.Round(v*1e6) / 1e6
	return int(math.Round(v))
}

// Snapshot builds the day's tally: distinct queries with at least one valid
// attempt, won when any provider cited the site.
func Snapshot(siteID string, day time.Time, results []model.ProviderResult) model.VisibilitySnapshot {
	t := Count(results)
	return model.VisibilitySnapshot{
		SiteID:              siteID,
		Day:                 model.Day(day),
		TotalQueriesChecked: t.Valid,
		QueriesWon:          t.Cited,
		QueriesLost:         t.Valid - t.Cited,
	}
}

// Store is the transactional read-modify-write the aggregator needs. fn
// receives the current row (exists=false when absent) and returns the row
// to write.
type Store interface {
	UpdateRunningScore(ctx context.Context, siteID string, fn func(cur model.RunningScore, exists bool) model.RunningScore) (model.RunningScore, error)
}

// Aggregator serializes running-score updates per site. Different sites
// update in parallel.
type Aggregator struct {
	store     Store
	oldWeight float64
	locks     *keyedMutex
	now       func() time.Time
}

// NewAggregator creates an Aggregator. oldWeight outside (0,1) falls back to
// DefaultOldWeight.
func NewAggregator(store Store, oldWeight float64) *Aggregator {
	if oldWeight <= 0 || oldWeight >= 1 {
		oldWeight = DefaultOldWeight
	}
	return &Aggregator{store: store, oldWeight: oldWeight, locks: newKeyedMutex(), now: time.Now}
}

// Apply blends the cycle's score into the site's running score. It returns
// updated=false and no error when the cycle had no valid attempts.
func (a *Aggregator) Apply(ctx context.Context, siteID string, results []model.ProviderResult) (model.RunningScore, bool, error) {
	newScore, ok := Count(results).Percent()
	if !ok {
		return model.RunningScore{}, false, nil
	}

	unlock := a.locks.Lock(siteID)
	defer unlock()

	rs, err := a.store.UpdateRunningScore(ctx, siteID, func(cur model.RunningScore, exists bool) model.RunningScore {
		return model.RunningScore{
			SiteID:    siteID,
			Score:     Blend(cur.Score, exists, newScore, a.oldWeight),
			Checks:    cur.Checks + 1,
			UpdatedAt: a.now().UTC(),
		}
	})
	if err != nil {
		return model.RunningScore{}, false, eris.Wrapf(err, "score: update running score for %s", siteID)
	}
	return rs, true, nil
}

// keyedMutex hands out one mutex per key and frees it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refLock)}
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
