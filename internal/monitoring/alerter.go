package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geo-visibility/internal/config"
	"github.com/sells-group/geo-visibility/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertAllProvidersFailed  AlertType = "all_providers_failed"
	AlertProviderFailureRate AlertType = "provider_failure_rate"
	AlertCostOverrun         AlertType = "cost_overrun"
)

const defaultMinCalls = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates check cycles and metric windows against configured
// thresholds and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	if cfg.MinCalls <= 0 {
		cfg.MinCalls = defaultMinCalls
	}
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// EvaluateCycle returns an alert when every attempted provider of a single
// cycle failed.
func (a *Alerter) EvaluateCycle(res *model.CheckCycleResult) []Alert {
	if res == nil || !AllFailed(res) {
		return nil
	}
	kinds := make(map[string]string, len(res.Results))
	for _, r := range res.Results {
		if r.Error != "" {
			kinds[string(r.Provider)] = string(r.ErrorKind)
		}
	}
	return []Alert{{
		Type:     AlertAllProvidersFailed,
		Severity: "high",
		Message:  fmt.Sprintf("All %d provider call(s) failed for %s", len(res.Results), res.Domain),
		Details: map[string]any{
			"check_id":    res.CheckID,
			"domain":      res.Domain,
			"site_id":     res.SiteID,
			"error_kinds": kinds,
		},
		Timestamp: time.Now().UTC(),
	}}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	// Check provider failure rate.
	if snap.ProviderCalls >= a.cfg.MinCalls && snap.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertProviderFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Provider failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d calls over %d cycles)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100,
				snap.ProviderFailures, snap.ProviderCalls, snap.Cycles,
			),
			Details: map[string]any{
				"failure_rate": snap.FailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.ProviderFailures,
				"calls":        snap.ProviderCalls,
				"by_provider":  snap.ByProvider,
			},
			Timestamp: now,
		})
	}

	// Check cost overrun.
	if a.cfg.CostThresholdUSD > 0 && snap.CostUSD > a.cfg.CostThresholdUSD {
		alerts = append(alerts, Alert{
			Type:     AlertCostOverrun,
			Severity: "medium",
			Message: fmt.Sprintf(
				"API cost $%.2f exceeds threshold $%.2f since %s",
				snap.CostUSD, a.cfg.CostThresholdUSD, snap.WindowStart.Format(time.RFC3339),
			),
			Details: map[string]any{
				"cost_usd":      snap.CostUSD,
				"threshold_usd": a.cfg.CostThresholdUSD,
				"cycles":        snap.Cycles,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
