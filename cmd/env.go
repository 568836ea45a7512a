package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geo-visibility/internal/cost"
	"github.com/sells-group/geo-visibility/internal/dispatch"
	"github.com/sells-group/geo-visibility/internal/events"
	"github.com/sells-group/geo-visibility/internal/gap"
	"github.com/sells-group/geo-visibility/internal/model"
	"github.com/sells-group/geo-visibility/internal/monitoring"
	"github.com/sells-group/geo-visibility/internal/provider"
	"github.com/sells-group/geo-visibility/internal/querygen"
	"github.com/sells-group/geo-visibility/internal/resilience"
	"github.com/sells-group/geo-visibility/internal/score"
	"github.com/sells-group/geo-visibility/internal/store"
	"github.com/sells-group/geo-visibility/internal/trust"
	"github.com/sells-group/geo-visibility/pkg/anthropic"
	"github.com/sells-group/geo-visibility/pkg/gemini"
	"github.com/sells-group/geo-visibility/pkg/openai"
	"github.com/sells-group/geo-visibility/pkg/perplexity"
)

// checkEnv holds the store, dispatcher and supporting services needed by the
// check/serve/worker commands.
type checkEnv struct {
	Store      store.Store
	Dispatcher *dispatch.Dispatcher
	Gaps       *gap.Analyzer
	Monitor    *monitoring.Checker
	Publisher  events.Publisher
}

// Close waits for background work and releases resources.
func (e *checkEnv) Close() {
	if e.Dispatcher != nil {
		e.Dispatcher.Wait()
	}
	if e.Publisher != nil {
		_ = e.Publisher.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates config for mode, opens and migrates the store, and wires
// the dispatcher. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*checkEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	pub, err := initPublisher()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	gaps := gap.NewAnalyzer(st, cfg.Gap.Lookback)
	monitor := monitoring.NewChecker(monitoring.NewCollector(), monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)

	providers := buildProviders()
	configured := 0
	for _, p := range providers {
		if p.Configured() {
			configured++
		}
	}
	if configured == 0 {
		zap.L().Warn("no provider credentials set, checks will not call any engine")
	}

	d := dispatch.New(st, score.NewAggregator(st, cfg.Score.BlendOldWeight), gaps, providers,
		dispatch.WithGenerator(querygen.New()),
		dispatch.WithTrust(buildTrust()),
		dispatch.WithPublisher(pub),
		dispatch.WithObserver(monitor),
		dispatch.WithCost(cost.NewCalculator(ratesFromConfig())),
		dispatch.WithMaxConcurrency(cfg.Check.MaxConcurrency),
	)

	zap.L().Info("check environment ready",
		zap.String("store", cfg.Store.Driver),
		zap.Int("providers_configured", configured),
	)

	return &checkEnv{
		Store:      st,
		Dispatcher: d,
		Gaps:       gaps,
		Monitor:    monitor,
		Publisher:  pub,
	}, nil
}

func initPublisher() (events.Publisher, error) {
	if cfg.Redis.URL == "" {
		zap.L().Debug("GEO_REDIS_URL not set, opportunity events are logged only")
		return events.LogPublisher{}, nil
	}
	pub, err := events.Dial(cfg.Redis.URL, cfg.Redis.Stream, cfg.Redis.MaxLen)
	if err != nil {
		return nil, eris.Wrap(err, "init redis publisher")
	}
	return pub, nil
}

// buildProviders returns the three checked platforms in dispatch order. A
// provider whose key is empty is present but unconfigured.
func buildProviders() []provider.Provider {
	opts := func() []provider.Option {
		return []provider.Option{
			provider.WithTimeout(cfg.Check.Timeout()),
			provider.WithBreaker(resilience.NewBreaker(resilience.BreakerConfig{
				FailureThreshold: cfg.Check.CircuitBreaker.FailureThreshold,
				ResetTimeout:     time.Duration(cfg.Check.CircuitBreaker.ResetTimeoutSecs) * time.Second,
			})),
		}
	}

	return []provider.Provider{
		provider.NewPerplexity(perplexityClient(), opts()...),
		provider.NewGemini(geminiClient(), opts()...),
		knowledgeProvider(opts()),
	}
}

func perplexityClient() perplexity.Client {
	if cfg.Perplexity.Key == "" {
		return nil
	}
	return perplexity.NewClient(cfg.Perplexity.Key,
		perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
		perplexity.WithModel(cfg.Perplexity.Model),
		perplexity.WithTimeout(cfg.Check.Timeout()),
	)
}

func geminiClient() gemini.Client {
	if cfg.Gemini.Key == "" {
		return nil
	}
	return gemini.NewClient(cfg.Gemini.Key,
		gemini.WithBaseURL(cfg.Gemini.BaseURL),
		gemini.WithModel(cfg.Gemini.Model),
	)
}

func knowledgeProvider(opts []provider.Option) provider.Provider {
	switch cfg.Knowledge.Backend {
	case "anthropic":
		var c provider.Completer
		if cfg.Anthropic.Key != "" {
			c = provider.AnthropicCompleter(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model)
		}
		return provider.NewKnowledge(model.PlatformClaude, c, opts...)
	default:
		var c provider.Completer
		if cfg.OpenAI.Key != "" {
			c = provider.OpenAICompleter(openai.NewClient(cfg.OpenAI.Key, cfg.OpenAI.Model))
		}
		return provider.NewKnowledge(model.PlatformChatGPT, c, opts...)
	}
}

func buildTrust() *trust.Checker {
	return trust.NewChecker(perplexityClient(),
		trust.WithSources(cfg.Check.TrustSources),
		trust.WithDelay(cfg.Check.TrustDelay()),
		trust.WithTimeout(cfg.Check.Timeout()),
	)
}

func ratesFromConfig() cost.Rates {
	return cost.Rates{
		Perplexity: cost.PlatformRate{PerCall: cfg.Pricing.Perplexity},
		Gemini:     cost.PlatformRate{PerCall: cfg.Pricing.Gemini},
		ChatGPT:    cost.PlatformRate{PerCall: cfg.Pricing.ChatGPT},
		Claude:     cost.PlatformRate{PerCall: cfg.Pricing.Claude},
	}
}
