// Package cost estimates the spend of a check cycle from flat per-call rates.
package cost

import (
	"math"

	"github.com/sells-group/geo-visibility/internal/model"
)

// Rates holds per-provider pricing configuration.
type Rates struct {
	Perplexity PlatformRate `yaml:"perplexity" mapstructure:"perplexity"`
	Gemini     PlatformRate `yaml:"gemini" mapstructure:"gemini"`
	ChatGPT    PlatformRate `yaml:"chatgpt" mapstructure:"chatgpt"`
	Claude     PlatformRate `yaml:"claude" mapstructure:"claude"`
}

// PlatformRate is the flat price of a single provider call in USD.
type PlatformRate struct {
	PerCall float64 `yaml:"per_call" mapstructure:"per_call"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Call returns the flat cost of one call to the platform.
func (c *Calculator) Call(p model.Platform) float64 {
	switch p {
	case model.PlatformPerplexity:
		return c.rates.Perplexity.PerCall
	case model.PlatformGemini:
		return c.rates.Gemini.PerCall
	case model.PlatformChatGPT:
		return c.rates.ChatGPT.PerCall
	case model.PlatformClaude:
		return c.rates.Claude.PerCall
	default:
		return 0
	}
}

// Estimate prices a cycle: every result whose provider was actually called,
// plus trustCalls Perplexity calls made by the trust sweep.
func (c *Calculator) Estimate(results []model.ProviderResult, trustCalls int) float64 {
	var total float64
	for _, r := range results {
		if r.ProviderCalled {
			total += c.Call(r.Provider)
		}
	}
	total += float64(trustCalls) * c.rates.Perplexity.PerCall
	return math.Round(total*1e6) / 1e6
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Perplexity: PlatformRate{PerCall: 0.005},
		Gemini:     PlatformRate{PerCall: 0.035},
		ChatGPT:    PlatformRate{PerCall: 0.002},
		Claude:     PlatformRate{PerCall: 0.004},
	}
}
