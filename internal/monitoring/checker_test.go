package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/sells-group/geo-visibility/internal/config"
)

func TestChecker_Observe(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
	}))
	defer ts.Close()

	cfg := config.MonitoringConfig{WebhookURL: ts.URL}
	collector := NewCollector()
	checker := NewChecker(collector, NewAlerter(cfg), cfg)

	assert.Equal(t, 1, checker.Observe(context.Background(), failedCycle()))
	assert.Equal(t, int32(1), received.Load())
	assert.Equal(t, 1, collector.Snapshot().Cycles)
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := config.MonitoringConfig{
		CheckIntervalSecs:    1,
		FailureRateThreshold: 0.10,
	}
	checker := NewChecker(NewCollector(), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_CheckResetsWindow(t *testing.T) {
	cfg := config.MonitoringConfig{FailureRateThreshold: 0.10, MinCalls: 1}
	collector := NewCollector()
	checker := NewChecker(collector, NewAlerter(cfg), cfg)

	collector.Record(failedCycle())
	checker.check(context.Background(), zap.NewNop())
	assert.Zero(t, collector.Snapshot().Cycles)
}

func TestChecker_DefaultInterval(t *testing.T) {
	checker := NewChecker(NewCollector(), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{
		CheckIntervalSecs: 0,
	})
	assert.NotNil(t, checker)

	// Start and immediately cancel to verify it doesn't panic.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}
