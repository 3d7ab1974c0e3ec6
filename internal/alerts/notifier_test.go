// Pelorus - Voyage Tracking and Maritime Risk-Zone Alerting
// Copyright 2026 Pelorus Maritime
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pelorus-maritime/pelorus

package alerts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/pelorus-maritime/pelorus/internal/models"
)

type webhookRecorder struct {
	mu       sync.Mutex
	payloads []WebhookPayload
	headers  []http.Header
}

func (r *webhookRecorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var p WebhookPayload
	if err := json.NewDecoder(req.Body).Decode(&p); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	r.mu.Lock()
	r.payloads = append(r.payloads, p)
	r.headers = append(r.headers, req.Header.Clone())
	r.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (r *webhookRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}

func waitForCount(t *testing.T, r *webhookRecorder, want int) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for r.count() < want {
		select {
		case <-deadline:
			t.Fatalf("webhook deliveries = %d, want %d", r.count(), want)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func startNotifier(t *testing.T, n *WebhookNotifier) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = n.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestWebhookDeliversOpenedAndExpired(t *testing.T) {
	rec := &webhookRecorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	n := NewWebhookNotifier(WebhookConfig{
		WebhookURL:    srv.URL,
		Headers:       map[string]string{"X-Auth": "secret"},
		RatePerMinute: 600,
	})
	startNotifier(t, n)

	alert := models.Alert{ID: "alert-1", VoyageID: "voy-1", ZoneID: "zone-1", Severity: models.SeverityHigh}
	n.OnAlert(alert, TransitionOpened)
	n.OnAlert(alert, TransitionRefreshed)    // filtered
	n.OnAlert(alert, TransitionAcknowledged) // filtered
	n.OnAlert(alert, TransitionExpired)

	waitForCount(t, rec, 2)
	time.Sleep(50 * time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.payloads) != 2 {
		t.Fatalf("deliveries = %d, want 2", len(rec.payloads))
	}
	if rec.payloads[0].Transition != TransitionOpened {
		t.Errorf("first transition = %q, want opened", rec.payloads[0].Transition)
	}
	if rec.payloads[1].Transition != TransitionExpired {
		t.Errorf("second transition = %q, want expired", rec.payloads[1].Transition)
	}
	if rec.payloads[0].Source != "pelorus" {
		t.Errorf("source = %q, want pelorus", rec.payloads[0].Source)
	}
	if got := rec.headers[0].Get("X-Auth"); got != "secret" {
		t.Errorf("X-Auth header = %q, want secret", got)
	}
}

func TestWebhookSeverityFilter(t *testing.T) {
	rec := &webhookRecorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	n := NewWebhookNotifier(WebhookConfig{
		WebhookURL:    srv.URL,
		RatePerMinute: 600,
		MinSeverity:   models.SeverityHigh,
	})
	startNotifier(t, n)

	n.OnAlert(models.Alert{ID: "low", Severity: models.SeverityLow}, TransitionOpened)
	n.OnAlert(models.Alert{ID: "medium", Severity: models.SeverityMedium}, TransitionOpened)
	n.OnAlert(models.Alert{ID: "critical", Severity: models.SeverityCritical}, TransitionOpened)

	waitForCount(t, rec, 1)
	time.Sleep(50 * time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.payloads) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(rec.payloads))
	}
	if rec.payloads[0].Alert.ID != "critical" {
		t.Errorf("delivered alert = %q, want critical", rec.payloads[0].Alert.ID)
	}
}

func TestWebhookEnqueueNeverBlocks(t *testing.T) {
	n := NewWebhookNotifier(WebhookConfig{WebhookURL: "http://127.0.0.1:0"})

	alert := models.Alert{ID: "alert-1", Severity: models.SeverityCritical}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			n.OnAlert(alert, TransitionOpened)
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("OnAlert blocked with full queue")
	}
}
