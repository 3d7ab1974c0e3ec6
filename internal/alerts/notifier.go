// Pelorus - Voyage Tracking and Maritime Risk-Zone Alerting
// Copyright 2026 Pelorus Maritime
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pelorus-maritime/pelorus

package alerts

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/pelorus-maritime/pelorus/internal/logging"
	"github.com/pelorus-maritime/pelorus/internal/models"
)

// severityRank orders severities for the minimum-severity filter.
var severityRank = map[models.Severity]int{
	models.SeverityLow:      0,
	models.SeverityMedium:   1,
	models.SeverityHigh:     2,
	models.SeverityCritical: 3,
}

// WebhookConfig configures the webhook notifier.
type WebhookConfig struct {
	WebhookURL string
	Headers    map[string]string
	Timeout    time.Duration

	// RatePerMinute caps outbound notifications. Bursts up to this
	// count are allowed, then sends are paced.
	RatePerMinute int

	// MinSeverity drops notifications for alerts below this level.
	MinSeverity models.Severity
}

// WebhookPayload is the JSON body sent to the webhook endpoint.
type WebhookPayload struct {
	Alert      models.Alert `json:"alert"`
	Transition Transition   `json:"transition"`
	Timestamp  time.Time    `json:"timestamp"`
	Source     string       `json:"source"`
}

// WebhookNotifier delivers alert notifications to an HTTP endpoint.
// It implements Listener with a non-blocking enqueue and drains the
// queue from its Serve loop, pacing sends with a rate limiter, so the
// alert transition path never waits on the network.
type WebhookNotifier struct {
	url         string
	headers     map[string]string
	client      *http.Client
	limiter     *rate.Limiter
	minSeverity int
	queue       chan WebhookPayload
}

// NewWebhookNotifier creates a webhook notifier. The returned value
// implements both Listener and suture.Service; register it with the
// engine and add it to the supervision tree.
func NewWebhookNotifier(cfg WebhookConfig) *WebhookNotifier {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	perMinute := cfg.RatePerMinute
	if perMinute <= 0 {
		perMinute = 30
	}

	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	minRank := 0
	if r, ok := severityRank[cfg.MinSeverity]; ok {
		minRank = r
	}

	return &WebhookNotifier{
		url:         cfg.WebhookURL,
		headers:     headers,
		client:      &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute),
		minSeverity: minRank,
		queue:       make(chan WebhookPayload, 256),
	}
}

// OnAlert implements Listener. Only openings and expirations are
// forwarded; refreshes and operator actions are operator-visible
// through the API already.
func (n *WebhookNotifier) OnAlert(alert models.Alert, transition Transition) {
	if n.url == "" {
		return
	}
	if transition != TransitionOpened && transition != TransitionExpired {
		return
	}
	if severityRank[alert.Severity] < n.minSeverity {
		return
	}

	payload := WebhookPayload{
		Alert:      alert,
		Transition: transition,
		Timestamp:  time.Now(),
		Source:     "pelorus",
	}

	select {
	case n.queue <- payload:
	default:
		logging.Warn().
			Str("alert_id", alert.ID).
			Msg("Webhook queue full, notification dropped")
	}
}

// Serve drains the notification queue until the context is cancelled.
func (n *WebhookNotifier) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload := <-n.queue:
			if err := n.limiter.Wait(ctx); err != nil {
				return err
			}
			if err := n.send(ctx, payload); err != nil {
				logging.Error().
					Err(err).
					Str("alert_id", payload.Alert.ID).
					Msg("Webhook delivery failed")
			}
		}
	}
}

// String names the service in supervisor logs.
func (n *WebhookNotifier) String() string { return "webhook-notifier" }

// send posts one payload to the endpoint.
func (n *WebhookNotifier) send(ctx context.Context, payload WebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range n.headers {
		req.Header.Set(key, value)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
