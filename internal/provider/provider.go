// Package provider adapts each external AI provider to a single check
// contract: given a domain and a query, return a model.ProviderResult.
package provider

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/geo-visibility/internal/evidence"
	"github.com/sells-group/geo-visibility/internal/model"
	"github.com/sells-group/geo-visibility/internal/resilience"
)

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 30 * time.Second

// Provider checks whether a domain is cited for a query.
type Provider interface {
	Name() model.Platform
	Family() evidence.Family
	// Configured reports whether credentials are present. Unconfigured
	// providers never perform network calls.
	Configured() bool
	Check(ctx context.Context, domain, query string) model.ProviderResult
}

// answer is the raw material a provider returns before scoring.
type answer struct {
	body    string
	sources []evidence.Source
}

type askFunc func(ctx context.Context, query string) (*answer, error)

// Option configures an adapter.
type Option func(*adapter)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(a *adapter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithBreaker guards the adapter with a circuit breaker.
func WithBreaker(b *resilience.Breaker) Option {
	return func(a *adapter) {
		a.breaker = b
	}
}

// adapter implements the shared call, classify and score flow. Each provider
// contributes only its ask function and evidence family.
type adapter struct {
	name       model.Platform
	family     evidence.Family
	configured bool
	timeout    time.Duration
	breaker    *resilience.Breaker
	ask        askFunc
}

func newAdapter(name model.Platform, family evidence.Family, configured bool, ask askFunc, opts []Option) *adapter {
	a := &adapter{
		name:       name,
		family:     family,
		configured: configured,
		timeout:    DefaultTimeout,
		ask:        ask,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *adapter) Name() model.Platform { return a.name }

func (a *adapter) Family() evidence.Family { return a.family }

func (a *adapter) Configured() bool { return a.configured }

func (a *adapter) Check(ctx context.Context, domain, query string) model.ProviderResult {
	res := model.ProviderResult{Provider: a.name, Query: query}
	if !a.configured {
		return res
	}

	log := zap.L().With(
		zap.String("provider", string(a.name)),
		zap.String("domain", domain),
		zap.String("query", query),
	)

	if a.breaker != nil {
		if err := a.breaker.Allow(); err != nil {
			log.Debug("provider: circuit open, skipping call")
			res.Error = err.Error()
			res.ErrorKind = model.ErrorKindCircuitOpen
			return res
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	ans, err := a.ask(callCtx, query)
	res.ProviderCalled = true
	res.DurationMS = time.Since(start).Milliseconds()

	if a.breaker != nil {
		a.breaker.Record(err)
	}

	if err != nil {
		res.Error = err.Error()
		res.ErrorKind = classify(err)
		log.Warn("provider: call failed",
			zap.String("error_kind", string(res.ErrorKind)),
			zap.Int64("duration_ms", res.DurationMS),
			zap.Error(err),
		)
		return res
	}

	ev := evidence.Score(a.family, evidence.Input{
		Domain:  domain,
		Body:    ans.body,
		Sources: ans.sources,
	})
	res.Cited = ev.Cited
	res.Confidence = ev.Confidence
	res.Snippet = ev.Snippet

	log.Debug("provider: check complete",
		zap.Bool("cited", res.Cited),
		zap.Float64("confidence", res.Confidence),
		zap.Int64("duration_ms", res.DurationMS),
	)
	return res
}

func classify(err error) model.ErrorKind {
	var se *resilience.StatusError
	switch {
	case errors.Is(err, resilience.ErrMalformedResponse):
		return model.ErrorKindMalformed
	case resilience.IsTimeout(err):
		return model.ErrorKindTimeout
	case errors.As(err, &se):
		return model.ErrorKindStatus
	default:
		return model.ErrorKindTransport
	}
}
