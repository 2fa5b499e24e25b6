// Package monitoring turns domain failure counters and failed job runs into
// webhook alerts.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertDomainFailing AlertType = "domain_failing"
	AlertRunFailed     AlertType = "run_failed"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Notifier delivers one alert to an outbound channel.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// WebhookNotifier posts alerts as JSON.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a notifier posting to url.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify implements Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Alerter evaluates a Snapshot against thresholds and sends alerts through
// a Notifier.
type Alerter struct {
	notifier         Notifier
	failureThreshold int64
	now              func() time.Time
}

// NewAlerter creates an Alerter. A nil notifier only logs alerts.
func NewAlerter(notifier Notifier, failureThreshold int64) *Alerter {
	return &Alerter{notifier: notifier, failureThreshold: failureThreshold, now: time.Now}
}

// Evaluate returns the alerts a snapshot warrants.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := a.now().UTC()

	for _, p := range snap.FailingDomains {
		severity := "medium"
		if a.failureThreshold > 0 && p.FailureCount >= 3*a.failureThreshold {
			severity = "high"
		}
		alerts = append(alerts, Alert{
			Type:     AlertDomainFailing,
			Severity: severity,
			Message: fmt.Sprintf(
				"Domain %s has %d failures (last error %s) with no success in the last %dh",
				p.DomainKey, p.FailureCount, orDash(p.LastErrorCode), snap.LookbackHours,
			),
			Details: map[string]any{
				"domain_key":      p.DomainKey,
				"failure_count":   p.FailureCount,
				"success_count":   p.SuccessCount,
				"last_error_code": p.LastErrorCode,
			},
			Timestamp: now,
		})
	}

	if len(snap.FailedRuns) > 0 {
		seen := map[string]bool{}
		var jobs, ids []string
		for _, r := range snap.FailedRuns {
			ids = append(ids, r.ID)
			if !seen[r.JobType] {
				seen[r.JobType] = true
				jobs = append(jobs, r.JobType)
			}
		}
		sort.Strings(jobs)
		alerts = append(alerts, Alert{
			Type:     AlertRunFailed,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d job run(s) failed in last %dh",
				len(snap.FailedRuns), snap.LookbackHours,
			),
			Details: map[string]any{
				"job_types":  jobs,
				"run_ids":    ids,
				"runs_total": snap.RunsTotal,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts and returns how many were sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if len(alerts) == 0 {
		return 0
	}
	if a.notifier == nil {
		for _, alert := range alerts {
			zap.L().Warn("monitoring: alert (no notifier configured)",
				zap.String("type", string(alert.Type)),
				zap.String("message", alert.Message),
			)
		}
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.notifier.Notify(ctx, alert); err != nil {
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

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
