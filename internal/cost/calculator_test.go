package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/geo-visibility/internal/model"
)

func testRates() Rates {
	return Rates{
		Perplexity: PlatformRate{PerCall: 0.005},
		Gemini:     PlatformRate{PerCall: 0.03},
		ChatGPT:    PlatformRate{PerCall: 0.002},
		Claude:     PlatformRate{PerCall: 0.004},
	}
}

func TestCall(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	tests := []struct {
		platform model.Platform
		want     float64
	}{
		{model.PlatformPerplexity, 0.005},
		{model.PlatformGemini, 0.03},
		{model.PlatformChatGPT, 0.002},
		{model.PlatformClaude, 0.004},
		{model.Platform("bing"), 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.platform), func(t *testing.T) {
			assert.InDelta(t, tt.want, calc.Call(tt.platform), 1e-9)
		})
	}
}

func TestEstimate_CountsOnlyCalledProviders(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	results := []model.ProviderResult{
		{Provider: model.PlatformPerplexity, ProviderCalled: true},
		{Provider: model.PlatformGemini, ProviderCalled: true, Error: "boom"},
		{Provider: model.PlatformChatGPT},
		{Provider: model.PlatformClaude, ErrorKind: model.ErrorKindCircuitOpen},
	}
	// perplexity + errored gemini call + 4 trust calls.
	assert.InDelta(t, 0.005+0.03+4*0.005, calc.Estimate(results, 4), 1e-9)
}

func TestEstimate_Empty(t *testing.T) {
	t.Parallel()
	assert.Zero(t, NewCalculator(DefaultRates()).Estimate(nil, 0))
}

func TestDefaultRates(t *testing.T) {
	t.Parallel()
	r := DefaultRates()
	assert.Greater(t, r.Perplexity.PerCall, 0.0)
	assert.Greater(t, r.Gemini.PerCall, 0.0)
	assert.Greater(t, r.ChatGPT.PerCall, 0.0)
	assert.Greater(t, r.Claude.PerCall, 0.0)
}
