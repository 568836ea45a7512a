// Package config loads the engine configuration from config.yaml and GEO_*
// environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	OpenAI     OpenAIConfig     `yaml:"openai" mapstructure:"openai"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Knowledge  KnowledgeConfig  `yaml:"knowledge" mapstructure:"knowledge"`
	Check      CheckConfig      `yaml:"check" mapstructure:"check"`
	Score      ScoreConfig      `yaml:"score" mapstructure:"score"`
	Gap        GapConfig        `yaml:"gap" mapstructure:"gap"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	Temporal   TemporalConfig   `yaml:"temporal" mapstructure:"temporal"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// GeminiConfig holds Gemini API settings.
type GeminiConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// KnowledgeConfig selects the backend of the knowledge-recall provider:
// "openai" (platform chatgpt) or "anthropic" (platform claude).
type KnowledgeConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend"`
}

// CheckConfig configures a check cycle.
type CheckConfig struct {
	TimeoutSecs    int                  `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxConcurrency int                  `yaml:"max_concurrency" mapstructure:"max_concurrency"`
	TrustDelayMS   int                  `yaml:"trust_delay_ms" mapstructure:"trust_delay_ms"`
	TrustSources   []string             `yaml:"trust_sources" mapstructure:"trust_sources"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker" mapstructure:"circuit_breaker"`
}

// Timeout is the per-provider-call timeout.
func (c CheckConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// TrustDelay is the pause between trust-source calls.
func (c CheckConfig) TrustDelay() time.Duration {
	return time.Duration(c.TrustDelayMS) * time.Millisecond
}

// CircuitBreakerConfig configures the per-provider circuit breaker.
type CircuitBreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ScoreConfig configures the running-score blend.
type ScoreConfig struct {
	BlendOldWeight float64 `yaml:"blend_old_weight" mapstructure:"blend_old_weight"`
}

// GapConfig configures opportunity analysis.
type GapConfig struct {
	Lookback int `yaml:"lookback" mapstructure:"lookback"`
}

// RedisConfig configures the remediation event stream.
type RedisConfig struct {
	URL    string `yaml:"url" mapstructure:"url"`
	Stream string `yaml:"stream" mapstructure:"stream"`
	MaxLen int64  `yaml:"max_len" mapstructure:"max_len"`
}

// TemporalConfig configures scheduled checks.
type TemporalConfig struct {
	HostPort      string `yaml:"host_port" mapstructure:"host_port"`
	Namespace     string `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue     string `yaml:"task_queue" mapstructure:"task_queue"`
	IntervalHours int    `yaml:"interval_hours" mapstructure:"interval_hours"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// MonitoringConfig configures cycle alerts.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	MinCalls             int     `yaml:"min_calls" mapstructure:"min_calls"`
}

// PricingConfig holds flat per-call pricing in USD.
type PricingConfig struct {
	Perplexity float64 `yaml:"perplexity" mapstructure:"perplexity"`
	Gemini     float64 `yaml:"gemini" mapstructure:"gemini"`
	ChatGPT    float64 `yaml:"chatgpt" mapstructure:"chatgpt"`
	Claude     float64 `yaml:"claude" mapstructure:"claude"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GEO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// setDefaults registers every key. Unmarshal only sees env values for keys
// viper knows about, so credentials default to "".
func setDefaults(v *viper.Viper) {
	for _, key := range []string{"perplexity.key", "gemini.key", "openai.key", "anthropic.key", "redis.url", "monitoring.webhook_url"} {
		v.SetDefault(key, "")
	}
	v.SetDefault("monitoring.cost_threshold_usd", 0)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "geo.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar")
	v.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("knowledge.backend", "openai")
	v.SetDefault("check.timeout_secs", 30)
	v.SetDefault("check.max_concurrency", 8)
	v.SetDefault("check.trust_delay_ms", 1000)
	v.SetDefault("check.trust_sources", []string{"g2.com", "capterra.com", "trustpilot.com", "crunchbase.com"})
	v.SetDefault("check.circuit_breaker.failure_threshold", 5)
	v.SetDefault("check.circuit_breaker.reset_timeout_secs", 120)
	v.SetDefault("score.blend_old_weight", 0.7)
	v.SetDefault("gap.lookback", 3)
	v.SetDefault("redis.stream", "geo:opportunities")
	v.SetDefault("redis.max_len", 10000)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "geo-visibility")
	v.SetDefault("temporal.interval_hours", 24)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.min_calls", 5)
	v.SetDefault("pricing.perplexity", 0.005)
	v.SetDefault("pricing.gemini", 0.035)
	v.SetDefault("pricing.chatgpt", 0.002)
	v.SetDefault("pricing.claude", 0.004)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks settings shared by every command plus those the given mode
// needs. Modes: check, serve, worker, schedule, migrate.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("unknown store.driver %q", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	switch c.Knowledge.Backend {
	case "openai", "anthropic":
	default:
		errs = append(errs, fmt.Sprintf("unknown knowledge.backend %q", c.Knowledge.Backend))
	}
	if c.Check.TimeoutSecs <= 0 {
		errs = append(errs, "check.timeout_secs must be > 0")
	}
	if c.Check.MaxConcurrency < 1 || c.Check.MaxConcurrency > 64 {
		errs = append(errs, "check.max_concurrency must be between 1 and 64")
	}
	if c.Check.TrustDelayMS < 0 {
		errs = append(errs, "check.trust_delay_ms must be >= 0")
	}
	if c.Score.BlendOldWeight < 0 || c.Score.BlendOldWeight >= 1 {
		errs = append(errs, "score.blend_old_weight must be in [0, 1)")
	}
	if c.Gap.Lookback < 1 {
		errs = append(errs, "gap.lookback must be >= 1")
	}
	if c.Monitoring.FailureRateThreshold < 0 || c.Monitoring.FailureRateThreshold > 1 {
		errs = append(errs, "monitoring.failure_rate_threshold must be in [0, 1]")
	}

	switch mode {
	case "check", "migrate":
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
	case "worker", "schedule":
		if c.Temporal.HostPort == "" {
			errs = append(errs, "temporal.host_port is required")
		}
		if c.Temporal.TaskQueue == "" {
			errs = append(errs, "temporal.task_queue is required")
		}
		if mode == "schedule" && c.Temporal.IntervalHours < 1 {
			errs = append(errs, "temporal.interval_hours must be >= 1")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown mode %q", mode))
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
