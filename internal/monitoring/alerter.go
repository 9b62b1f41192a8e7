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

	"github.com/sells-group/seo-monitor/internal/config"
	"github.com/sells-group/seo-monitor/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertSyncFailed        AlertType = "sync_failed"
	AlertFailureStreak     AlertType = "sync_failure_streak"
	AlertSyncStale         AlertType = "sync_stale"
	AlertRateLimited       AlertType = "inspection_rate_limited"
	AlertInspectErrorRate  AlertType = "inspection_error_rate"
	AlertNewCriticalIssues AlertType = "new_critical_issues"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Business  string         `json:"business"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a Snapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()
	add := func(t AlertType, severity, msg string, details map[string]any) {
		alerts = append(alerts, Alert{
			Type:      t,
			Severity:  severity,
			Business:  snap.Business,
			Message:   msg,
			Details:   details,
			Timestamp: now,
		})
	}

	if e := snap.Latest; e != nil {
		// Latest run failed.
		if e.Status == model.SyncStatusFailed {
			add(AlertSyncFailed, "high",
				fmt.Sprintf("Sync for %s failed: %s", snap.Business, e.ErrorMessage),
				map[string]any{
					"sync_id":   e.ID,
					"sync_date": e.SyncDate.Format(time.DateOnly),
					"error":     e.ErrorMessage,
				})
		}

		// Inspection quota exhausted mid-run.
		if e.RateLimited {
			add(AlertRateLimited, "medium",
				fmt.Sprintf("Inspection API rate limited after %d URLs (%d calls)", e.URLsInspected, e.APICallsUsed),
				map[string]any{
					"urls_inspected": e.URLsInspected,
					"api_calls":      e.APICallsUsed,
				})
		}

		// Inspection error rate.
		attempts := e.URLsInspected + e.InspectErrors
		if attempts > 0 && attempts >= a.cfg.MinInspectedForRate && a.cfg.ErrorRateThreshold > 0 {
			rate := float64(e.InspectErrors) / float64(attempts)
			if rate > a.cfg.ErrorRateThreshold {
				add(AlertInspectErrorRate, "medium",
					fmt.Sprintf("Inspection error rate %.1f%% exceeds threshold %.1f%% (%d errors / %d attempts)",
						rate*100, a.cfg.ErrorRateThreshold*100, e.InspectErrors, attempts),
					map[string]any{
						"error_rate": rate,
						"threshold":  a.cfg.ErrorRateThreshold,
						"errors":     e.InspectErrors,
						"attempts":   attempts,
					})
			}
		}
	}

	// New critical issues.
	if a.cfg.AlertOnCritical && snap.NewCritical > 0 {
		add(AlertNewCriticalIssues, "high",
			fmt.Sprintf("%d new critical indexing issue(s) for %s", snap.NewCritical, snap.Business),
			map[string]any{"new_critical": snap.NewCritical})
	}

	// Repeated failures.
	streak := max(a.cfg.FailureStreak, 2)
	if snap.ConsecutiveFailures >= streak {
		add(AlertFailureStreak, "high",
			fmt.Sprintf("%d consecutive sync failures for %s", snap.ConsecutiveFailures, snap.Business),
			map[string]any{
				"consecutive_failures": snap.ConsecutiveFailures,
				"runs_considered":      snap.RunsConsidered,
			})
	}

	// No successful run recently.
	if a.cfg.StaleAfterHours > 0 && snap.LastSuccessAt != nil && snap.HoursSinceSuccess > float64(a.cfg.StaleAfterHours) {
		add(AlertSyncStale, "high",
			fmt.Sprintf("No successful sync for %s in %.0fh (threshold %dh)", snap.Business, snap.HoursSinceSuccess, a.cfg.StaleAfterHours),
			map[string]any{
				"last_success_at": snap.LastSuccessAt.Format(time.RFC3339),
				"hours":           snap.HoursSinceSuccess,
			})
	}

	return alerts
}

// AfterRun evaluates a just-finished run and delivers any alerts.
func (a *Alerter) AfterRun(ctx context.Context, entry *model.SyncLogEntry, newCritical int) error {
	if entry == nil {
		return eris.New("monitoring: nil sync entry")
	}
	alerts := a.Evaluate(FromEntry(entry, newCritical, time.Now().UTC()))
	if len(alerts) == 0 {
		return nil
	}
	if sent := a.SendAlerts(ctx, alerts); a.cfg.WebhookURL != "" && sent < len(alerts) {
		return eris.Errorf("monitoring: sent %d of %d alerts", sent, len(alerts))
	}
	return nil
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
