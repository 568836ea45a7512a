package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "geo.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sonar", cfg.Perplexity.Model)
	assert.Equal(t, "gemini-2.5-flash", cfg.Gemini.Model)
	assert.Equal(t, "openai", cfg.Knowledge.Backend)
	assert.Equal(t, 30*time.Second, cfg.Check.Timeout())
	assert.Equal(t, time.Second, cfg.Check.TrustDelay())
	assert.Equal(t, 8, cfg.Check.MaxConcurrency)
	assert.Equal(t, []string{"g2.com", "capterra.com", "trustpilot.com", "crunchbase.com"}, cfg.Check.TrustSources)
	assert.Equal(t, 5, cfg.Check.CircuitBreaker.FailureThreshold)
	assert.InDelta(t, 0.7, cfg.Score.BlendOldWeight, 0.001)
	assert.Equal(t, 3, cfg.Gap.Lookback)
	assert.Equal(t, "geo:opportunities", cfg.Redis.Stream)
	assert.Equal(t, "geo-visibility", cfg.Temporal.TaskQueue)
	assert.InDelta(t, 0.005, cfg.Pricing.Perplexity, 1e-9)
	assert.Empty(t, cfg.Perplexity.Key)
	assert.NoError(t, cfg.Validate("check"))
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/geo
log:
  level: debug
  format: console
check:
  max_concurrency: 4
  trust_sources: [g2.com]
knowledge:
  backend: anthropic
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 4, cfg.Check.MaxConcurrency)
	assert.Equal(t, []string{"g2.com"}, cfg.Check.TrustSources)
	assert.Equal(t, "anthropic", cfg.Knowledge.Backend)
	// Defaults still apply for unset values
	assert.Equal(t, 30, cfg.Check.TimeoutSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("GEO_STORE_DRIVER", "postgres")
	t.Setenv("GEO_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadCredentialsFromEnv(t *testing.T) {
	chdirTemp(t)

	t.Setenv("GEO_PERPLEXITY_KEY", "pplx-test")
	t.Setenv("GEO_GEMINI_KEY", "gem-test")
	t.Setenv("GEO_OPENAI_KEY", "sk-test")
	t.Setenv("GEO_ANTHROPIC_KEY", "sk-ant-test")
	t.Setenv("GEO_REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "pplx-test", cfg.Perplexity.Key)
	assert.Equal(t, "gem-test", cfg.Gemini.Key)
	assert.Equal(t, "sk-test", cfg.OpenAI.Key)
	assert.Equal(t, "sk-ant-test", cfg.Anthropic.Key)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("GEO_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "geo.db"
	cfg.Knowledge.Backend = "openai"
	cfg.Check.TimeoutSecs = 30
	cfg.Check.MaxConcurrency = 8
	cfg.Score.BlendOldWeight = 0.7
	cfg.Gap.Lookback = 3
	cfg.Monitoring.FailureRateThreshold = 0.5
	cfg.Server.Port = 8080
	cfg.Temporal.HostPort = "localhost:7233"
	cfg.Temporal.TaskQueue = "geo-visibility"
	cfg.Temporal.IntervalHours = 24
	return cfg
}

func TestValidate_AllModes(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"check", "serve", "worker", "schedule", "migrate"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidate_CollectsErrors(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = ""
	cfg.Check.MaxConcurrency = 0
	cfg.Score.BlendOldWeight = 1

	err := cfg.Validate("check")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "check.max_concurrency must be between 1 and 64")
	assert.Contains(t, err.Error(), "score.blend_old_weight must be in [0, 1)")
}

func TestValidate_Enums(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	cfg.Knowledge.Backend = "bard"

	err := cfg.Validate("check")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown store.driver "mysql"`)
	assert.Contains(t, err.Error(), `unknown knowledge.backend "bard"`)
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	assert.NoError(t, cfg.Validate("check"))
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateSchedule_RequiresTemporal(t *testing.T) {
	cfg := validDefaults()
	cfg.Temporal.HostPort = ""
	cfg.Temporal.IntervalHours = 0

	err := cfg.Validate("worker")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "temporal.host_port is required")
	assert.NotContains(t, err.Error(), "interval_hours")

	err = cfg.Validate("schedule")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "temporal.interval_hours must be >= 1")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
