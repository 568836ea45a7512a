package monitoring

import (
	"sync"
	"time"

	"github.com/sells-group/geo-visibility/internal/model"
)

// MetricsSnapshot holds the provider health observed since the last reset.
type MetricsSnapshot struct {
	Cycles           int                    `json:"cycles"`
	FailedCycles     int                    `json:"failed_cycles"`
	ProviderCalls    int                    `json:"provider_calls"`
	ProviderFailures int                    `json:"provider_failures"`
	FailRate         float64                `json:"fail_rate"`
	CitedCount       int                    `json:"cited_count"`
	CostUSD          float64                `json:"cost_usd"`
	ByProvider       map[model.Platform]int `json:"failures_by_provider,omitempty"`
	WindowStart      time.Time              `json:"window_start"`
	CollectedAt      time.Time              `json:"collected_at"`
}

// Collector accumulates cycle results in memory. Safe for concurrent use.
type Collector struct {
	mu   sync.Mutex
	snap MetricsSnapshot
	now  func() time.Time
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	c := &Collector{now: time.Now}
	c.reset()
	return c
}

// Record adds one cycle to the running totals.
func (c *Collector) Record(res *model.CheckCycleResult) {
	if res == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snap.Cycles++
	c.snap.CitedCount += res.CitedCount
	c.snap.CostUSD += res.EstimatedCostUSD
	if AllFailed(res) {
		c.snap.FailedCycles++
	}
	for _, r := range res.Results {
		if !r.ProviderCalled {
			continue
		}
		c.snap.ProviderCalls++
		if r.Error != "" {
			c.snap.ProviderFailures++
			c.snap.ByProvider[r.Provider]++
		}
	}
}

// Snapshot returns a copy of the totals with FailRate filled in.
func (c *Collector) Snapshot() *MetricsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.snap
	snap.ByProvider = make(map[model.Platform]int, len(c.snap.ByProvider))
	for k, v := range c.snap.ByProvider {
		snap.ByProvider[k] = v
	}
	if snap.ProviderCalls > 0 {
		snap.FailRate = float64(snap.ProviderFailures) / float64(snap.ProviderCalls)
	}
	snap.CollectedAt = c.now().UTC()
	return &snap
}

// Reset starts a new window.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

func (c *Collector) reset() {
	c.snap = MetricsSnapshot{
		ByProvider:  make(map[model.Platform]int),
		WindowStart: c.now().UTC(),
	}
}

// AllFailed reports whether every attempted provider call of the cycle
// errored. A cycle that reached no provider at all is not a failure.
func AllFailed(res *model.CheckCycleResult) bool {
	attempted := 0
	for _, r := range res.Results {
		if r.Error == "" {
			if r.ProviderCalled {
				return false
			}
			continue
		}
		attempted++
	}
	return attempted > 0
}
