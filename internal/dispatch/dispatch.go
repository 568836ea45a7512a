// Package dispatch runs a check cycle: it generates queries, fans them out
// to providers alongside the trust sweep, persists what was learned and
// derives remediation opportunities.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/geo-visibility/internal/cost"
	"github.com/sells-group/geo-visibility/internal/events"
	"github.com/sells-group/geo-visibility/internal/gap"
	"github.com/sells-group/geo-visibility/internal/hostname"
	"github.com/sells-group/geo-visibility/internal/model"
	"github.com/sells-group/geo-visibility/internal/provider"
	"github.com/sells-group/geo-visibility/internal/querygen"
	"github.com/sells-group/geo-visibility/internal/score"
)

// State is the lifecycle stage of a cycle. Transitions are logged.
type State string

const (
	StateIdle             State = "idle"
	StateQueriesGenerated State = "queries_generated"
	StateDispatching      State = "dispatching"
	StateCollected        State = "collected"
	StatePersisted        State = "persisted"
)

const (
	defaultMaxConcurrency = 8
	backgroundTimeout     = 30 * time.Second
)

// Store is the persistence a cycle writes to.
type Store interface {
	InsertCitation(ctx context.Context, c model.Citation) (bool, error)
	UpsertTrustListings(ctx context.Context, listings []model.TrustListing) error
	UpsertSnapshot(ctx context.Context, s model.VisibilitySnapshot) error
	SaveGapAnalysis(ctx context.Context, a model.GapAnalysis) error
	GetRunningScore(ctx context.Context, siteID string) (*model.RunningScore, error)
}

// TrustChecker runs the directory presence sweep.
type TrustChecker interface {
	Configured() bool
	Check(ctx context.Context, siteID, domain string) []model.TrustListing
}

// Observer is told about every finished cycle.
type Observer interface {
	Observe(ctx context.Context, res *model.CheckCycleResult) int
}

// Dispatcher runs check cycles. Safe for concurrent use.
type Dispatcher struct {
	store     Store
	providers []provider.Provider
	scores    *score.Aggregator
	gaps      *gap.Analyzer

	gen            *querygen.Generator
	trust          TrustChecker
	publisher      events.Publisher
	observer       Observer
	costs          *cost.Calculator
	maxConcurrency int
	now            func() time.Time

	background sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithGenerator overrides the default query generator.
func WithGenerator(g *querygen.Generator) Option {
	return func(d *Dispatcher) { d.gen = g }
}

// WithTrust enables the trust-source sweep on full checks.
func WithTrust(t TrustChecker) Option {
	return func(d *Dispatcher) { d.trust = t }
}

// WithPublisher publishes an OpportunitiesReady event after each cycle.
func WithPublisher(p events.Publisher) Option {
	return func(d *Dispatcher) { d.publisher = p }
}

// WithObserver reports finished cycles to o, typically the alert checker.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// WithCost overrides the default pricing.
func WithCost(c *cost.Calculator) Option {
	return func(d *Dispatcher) { d.costs = c }
}

// WithMaxConcurrency bounds in-flight provider calls per cycle.
func WithMaxConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxConcurrency = n
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// New creates a Dispatcher over the given providers.
func New(st Store, scores *score.Aggregator, gaps *gap.Analyzer, providers []provider.Provider, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:          st,
		providers:      providers,
		scores:         scores,
		gaps:           gaps,
		gen:            querygen.New(),
		costs:          cost.NewCalculator(cost.DefaultRates()),
		maxConcurrency: defaultMaxConcurrency,
		now:            time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// assignment pairs a query with the provider that will answer it.
type assignment struct {
	query    string
	provider provider.Provider
}

// RunCheck executes one check cycle. Provider and persistence failures never
// fail the cycle; they surface in the results and Warnings. Only an
// unusable domain is an error.
func (d *Dispatcher) RunCheck(ctx context.Context, req model.CheckRequest) (*model.CheckCycleResult, error) {
	domain := hostname.Normalize(req.Domain)
	if domain == "" {
		return nil, eris.Errorf("dispatch: invalid domain %q", req.Domain)
	}

	started := d.now()
	res := &model.CheckCycleResult{
		CheckID:   uuid.NewString(),
		Domain:    domain,
		SiteID:    req.SiteID,
		StartedAt: started.UTC(),
	}

	log := zap.L().With(
		zap.String("check_id", res.CheckID),
		zap.String("domain", domain),
		zap.String("site_id", req.SiteID),
	)
	state := func(s State, fields ...zap.Field) {
		log.Debug("dispatch: state", append([]zap.Field{zap.String("state", string(s))}, fields...)...)
	}
	state(StateIdle)

	queries := d.queries(domain, req)
	state(StateQueriesGenerated, zap.Int("queries", len(queries)))

	work := d.assign(queries, req.SingleQuery != "")
	state(StateDispatching, zap.Int("calls", len(work)))

	res.Results, res.TrustListings = d.fanOut(ctx, domain, req, work)

	for _, r := range res.Results {
		if r.ProviderCalled {
			res.APIsCalled++
		}
		if r.Cited {
			res.CitedCount++
		}
	}
	res.VisibilityPercent = score.VisibilityPercent(res.Results)
	state(StateCollected,
		zap.Int("apis_called", res.APIsCalled),
		zap.Int("cited", res.CitedCount),
		zap.Int("visibility_percent", res.VisibilityPercent),
	)

	if req.SiteID != "" && d.store != nil {
		d.persist(ctx, log, res)
	} else {
		res.Opportunities = gap.Merge([]model.GapAnalysis{
			gap.NewAnalysis(req.SiteID, res.CheckID, res.StartedAt, res.Results),
		}, nil)
	}
	if res.Opportunities == nil {
		res.Opportunities = []model.Opportunity{}
	}
	state(StatePersisted, zap.Int("warnings", len(res.Warnings)))

	res.EstimatedCostUSD = d.costs.Estimate(res.Results, len(res.TrustListings))
	res.DurationMS = time.Since(started).Milliseconds()

	log.Info("dispatch: check complete",
		zap.Int("apis_called", res.APIsCalled),
		zap.Int("cited", res.CitedCount),
		zap.Int("visibility_percent", res.VisibilityPercent),
		zap.Bool("score_updated", res.ScoreUpdated),
		zap.Int("running_score", res.RunningScore),
		zap.Int("opportunities", len(res.Opportunities)),
		zap.Float64("cost_usd", res.EstimatedCostUSD),
		zap.Int64("duration_ms", res.DurationMS),
	)
	state(StateIdle)

	d.afterCycle(ctx, res)
	return res, nil
}

func (d *Dispatcher) queries(domain string, req model.CheckRequest) []model.CheckQuery {
	if req.SingleQuery != "" {
		return []model.CheckQuery{{Text: req.SingleQuery, Source: model.QuerySourceCustom}}
	}
	return d.gen.Generate(querygen.Request{
		Domain:        domain,
		Plan:          req.Plan,
		Category:      req.Category,
		CustomQueries: req.CustomQueries,
	})
}

// assign spreads queries round-robin over the configured providers, or over
// every provider when none is configured. A single query goes to all of them.
func (d *Dispatcher) assign(queries []model.CheckQuery, single bool) []assignment {
	var active []provider.Provider
	for _, p := range d.providers {
		if p.Configured() {
			active = append(active, p)
		}
	}
	if len(active) == 0 {
		active = d.providers
	}
	if len(active) == 0 {
		return nil
	}

	var work []assignment
	if single {
		for _, q := range queries {
			for _, p := range active {
				work = append(work, assignment{query: q.Text, provider: p})
			}
		}
		return work
	}
	for i, q := range queries {
		work = append(work, assignment{query: q.Text, provider: active[i%len(active)]})
	}
	return work
}

// fanOut runs every provider call and the trust sweep concurrently. Results
// keep the order of work.
func (d *Dispatcher) fanOut(ctx context.Context, domain string, req model.CheckRequest, work []assignment) ([]model.ProviderResult, []model.TrustListing) {
	results := make([]model.ProviderResult, len(work))
	var listings []model.TrustListing

	var trustDone sync.WaitGroup
	if d.trust != nil && d.trust.Configured() && req.SingleQuery == "" {
		trustDone.Add(1)
		go func() {
			defer trustDone.Done()
			listings = d.trust.Check(ctx, req.SiteID, domain)
		}()
	}

	// Provider failures are captured in results, so the group is only a
	// bounded pool and Wait always returns nil.
	var g errgroup.Group
	g.SetLimit(d.maxConcurrency)
	for i, w := range work {
		g.Go(func() error {
			results[i] = w.provider.Check(ctx, domain, w.query)
			return nil
		})
	}
	_ = g.Wait()
	trustDone.Wait()

	return results, listings
}

// persist writes the cycle's durable records and loads the site's
// opportunities. Every failure becomes a warning.
func (d *Dispatcher) persist(ctx context.Context, log *zap.Logger, res *model.CheckCycleResult) {
	warn := func(what string, err error) {
		log.Warn("dispatch: persistence failed", zap.String("what", what), zap.Error(err))
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", what, err))
	}
	now := d.now().UTC()

	for _, r := range res.Results {
		if !r.Cited || !r.ProviderCalled {
			continue
		}
		_, err := d.store.InsertCitation(ctx, model.Citation{
			SiteID:       res.SiteID,
			Platform:     r.Provider,
			Query:        r.Query,
			Snippet:      r.Snippet,
			Confidence:   r.Confidence,
			DiscoveredAt: now,
		})
		if err != nil {
			warn(fmt.Sprintf("citation %s %q", r.Provider, r.Query), err)
		}
	}

	var listings []model.TrustListing
	for _, l := range res.TrustListings {
		if l.Error == "" {
			l.SiteID = res.SiteID
			listings = append(listings, l)
		}
	}
	if len(listings) > 0 {
		if err := d.store.UpsertTrustListings(ctx, listings); err != nil {
			warn("trust listings", err)
		}
	}

	if snap := score.Snapshot(res.SiteID, now, res.Results); snap.TotalQueriesChecked > 0 {
		if err := d.store.UpsertSnapshot(ctx, snap); err != nil {
			warn("snapshot", err)
		}
	}

	if d.scores != nil {
		rs, updated, err := d.scores.Apply(ctx, res.SiteID, res.Results)
		switch {
		case err != nil:
			warn("running score", err)
		case updated:
			res.ScoreUpdated = true
			res.RunningScore = rs.Score
		}
	}
	if !res.ScoreUpdated {
		if cur, err := d.store.GetRunningScore(ctx, res.SiteID); err != nil {
			warn("load running score", err)
		} else if cur != nil {
			res.RunningScore = cur.Score
		}
	}

	analysis := gap.NewAnalysis(res.SiteID, res.CheckID, now, res.Results)
	if score.Count(res.Results).Valid > 0 {
		if err := d.store.SaveGapAnalysis(ctx, analysis); err != nil {
			warn("gap analysis", err)
		}
	}

	if d.gaps == nil {
		res.Opportunities = gap.Merge([]model.GapAnalysis{analysis}, nil)
		return
	}
	opps, err := d.gaps.Opportunities(ctx, res.SiteID)
	if err != nil {
		warn("opportunities", err)
		opps = gap.Merge([]model.GapAnalysis{analysis}, nil)
	}
	res.Opportunities = opps
}

// afterCycle starts the tracked background tasks of a finished cycle. They
// outlive the request context.
func (d *Dispatcher) afterCycle(ctx context.Context, res *model.CheckCycleResult) {
	bg := context.WithoutCancel(ctx)

	if d.publisher != nil && len(res.Opportunities) > 0 {
		ev := events.OpportunitiesReady{
			CheckID:       res.CheckID,
			SiteID:        res.SiteID,
			Domain:        res.Domain,
			RunningScore:  res.RunningScore,
			Opportunities: res.Opportunities,
			At:            d.now().UTC(),
		}
		d.goBackground(bg, func(ctx context.Context) {
			if err := d.publisher.PublishOpportunities(ctx, ev); err != nil {
				zap.L().Warn("dispatch: publish opportunities failed",
					zap.String("check_id", ev.CheckID),
					zap.Error(err),
				)
			}
		})
	}

	if d.observer != nil {
		d.goBackground(bg, func(ctx context.Context) {
			d.observer.Observe(ctx, res)
		})
	}
}

func (d *Dispatcher) goBackground(ctx context.Context, fn func(ctx context.Context)) {
	d.background.Add(1)
	go func() {
		defer d.background.Done()
		ctx, cancel := context.WithTimeout(ctx, backgroundTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// Wait blocks until every background task started so far has finished.
func (d *Dispatcher) Wait() {
	d.background.Wait()
}
