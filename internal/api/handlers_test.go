// Pelorus - Voyage Tracking and Maritime Risk-Zone Alerting
// Copyright 2026 Pelorus Maritime
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pelorus-maritime/pelorus

package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/pelorus-maritime/pelorus/internal/alerts"
	"github.com/pelorus-maritime/pelorus/internal/analytics"
	"github.com/pelorus-maritime/pelorus/internal/config"
	"github.com/pelorus-maritime/pelorus/internal/ingest"
	"github.com/pelorus-maritime/pelorus/internal/models"
	"github.com/pelorus-maritime/pelorus/internal/pipeline"
	"github.com/pelorus-maritime/pelorus/internal/track"
	"github.com/pelorus-maritime/pelorus/internal/zones"
)

func newTestRouter(t *testing.T) (http.Handler, *alerts.Engine) {
	t.Helper()

	cfg := config.APIConfig{
		DefaultPageSize: 50,
		MaxPageSize:     500,
		CORSOrigins:     []string{"*"},
	}
	tracks := track.NewStore()
	index := zones.NewIndex()
	engine := alerts.NewEngine(alerts.Config{
		Cooldown:    5 * time.Minute,
		MaxAlertAge: 24 * time.Hour,
	})
	agg := analytics.NewAggregator(analytics.Config{Window: time.Hour})
	engine.AddListener(agg)

	proc := pipeline.NewProcessor(tracks, ingest.New(2*time.Minute), index, engine, agg, nil)
	h := NewHandlers(cfg, tracks, index, engine, agg, proc, nil, nil)
	return NewRouter(h, nil), engine
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func registerVoyage(t *testing.T, router http.Handler, id string) {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/v1/voyages", map[string]string{
		"id":        id,
		"vessel_id": "vessel-1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register voyage: status %d, body %s", rec.Code, rec.Body.String())
	}
}

func loadCircleZone(t *testing.T, router http.Handler, id string, lat, lon, radius float64) {
	t.Helper()
	rec := doJSON(t, router, http.MethodPut, "/api/v1/zones", []map[string]interface{}{{
		"id":       id,
		"name":     "Zone " + id,
		"severity": "high",
		"enabled":  true,
		"geometry": map[string]interface{}{
			"kind":     "circle",
			"center":   map[string]float64{"lat": lat, "lon": lon},
			"radius_m": radius,
		},
	}})
	if rec.Code != http.StatusOK {
		t.Fatalf("load zones: status %d, body %s", rec.Code, rec.Body.String())
	}
	var results []zoneLoadResponse
	decodeBody(t, rec, &results)
	if len(results) != 1 || !results[0].Accepted {
		t.Fatalf("zone load results = %+v", results)
	}
}

func postEvent(t *testing.T, router http.Handler, voyageID string, ts time.Time, lat, lon float64) *httptest.ResponseRecorder {
	t.Helper()
	return doJSON(t, router, http.MethodPost, "/api/v1/events", map[string]interface{}{
		"voyage_id": voyageID,
		"timestamp": ts.Format(time.RFC3339Nano),
		"lat":       lat,
		"lon":       lon,
		"kind":      "position-report",
	})
}

func TestIntakeOutcomes(t *testing.T) {
	router, _ := newTestRouter(t)
	registerVoyage(t, router, "voy-1")

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rec := postEvent(t, router, "voy-1", base, 10, 20)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("accept: status %d, body %s", rec.Code, rec.Body.String())
	}
	var resp eventResponse
	decodeBody(t, rec, &resp)
	if resp.Outcome != "accepted" || resp.EventID == "" {
		t.Errorf("response = %+v", resp)
	}

	// Same timestamp and kind again: duplicate.
	rec = postEvent(t, router, "voy-1", base, 10, 20)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate: status %d, want 409", rec.Code)
	}
	decodeBody(t, rec, &resp)
	if resp.Outcome != "rejected_duplicate" {
		t.Errorf("outcome = %q, want rejected_duplicate", resp.Outcome)
	}

	// Beyond the staleness tolerance.
	rec = postEvent(t, router, "voy-1", base.Add(-10*time.Minute), 10, 20)
	if rec.Code != http.StatusConflict {
		t.Errorf("stale: status %d, want 409", rec.Code)
	}

	// Unknown voyage.
	rec = postEvent(t, router, "no-such", base, 10, 20)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown voyage: status %d, want 404", rec.Code)
	}

	// Invalid coordinates.
	rec = postEvent(t, router, "voy-1", base.Add(time.Minute), 123, 20)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid: status %d, want 422", rec.Code)
	}

	// Missing required fields.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/events", map[string]interface{}{"lat": 1.0})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing fields: status %d, want 400", rec.Code)
	}

	// Batch intake is absent without a bus publisher.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/events/batch", []map[string]interface{}{})
	if rec.Code != http.StatusNotFound {
		t.Errorf("batch without publisher: status %d, want 404", rec.Code)
	}
}

// Batch intake publishes valid events to the positions topic and
// reports structurally invalid ones without failing the batch.
func TestBatchIntakeQueuesEvents(t *testing.T) {
	transport, err := pipeline.NewTransport(config.NATSConfig{}, pipeline.NewLoggerAdapter())
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	t.Cleanup(func() { _ = transport.Close() })

	msgs, err := transport.Subscriber.Subscribe(context.Background(), pipeline.TopicPositions)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	cfg := config.APIConfig{DefaultPageSize: 50, MaxPageSize: 500, CORSOrigins: []string{"*"}}
	tracks := track.NewStore()
	index := zones.NewIndex()
	engine := alerts.NewEngine(alerts.Config{Cooldown: 5 * time.Minute, MaxAlertAge: 24 * time.Hour})
	agg := analytics.NewAggregator(analytics.Config{Window: time.Hour})
	proc := pipeline.NewProcessor(tracks, ingest.New(2*time.Minute), index, engine, agg, nil)
	h := NewHandlers(cfg, tracks, index, engine, agg, proc, transport.Publisher, nil)
	router := NewRouter(h, nil)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := doJSON(t, router, http.MethodPost, "/api/v1/events/batch", []map[string]interface{}{
		{"voyage_id": "voy-1", "timestamp": base.Format(time.RFC3339Nano), "lat": 10.0, "lon": 20.0, "kind": "position-report"},
		{"voyage_id": "voy-1", "lat": 10.0, "lon": 20.0, "kind": "position-report"}, // no timestamp
		{"voyage_id": "voy-1", "timestamp": base.Add(time.Minute).Format(time.RFC3339Nano), "lat": 10.1, "lon": 20.0, "kind": "position-report"},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("batch: status %d, body %s", rec.Code, rec.Body.String())
	}

	var resp batchResponse
	decodeBody(t, rec, &resp)
	if resp.Queued != 2 || len(resp.Items) != 3 {
		t.Fatalf("batch response = %+v", resp)
	}
	if resp.Items[1].Queued || resp.Items[1].Error == "" {
		t.Errorf("invalid item = %+v, want rejected with error", resp.Items[1])
	}

	for i := 0; i < 2; i++ {
		select {
		case msg := <-msgs:
			var ev models.PositionEvent
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				t.Fatalf("decode published event: %v", err)
			}
			if ev.VoyageID != "voy-1" {
				t.Errorf("published voyage_id = %q", ev.VoyageID)
			}
			msg.Ack()
		case <-time.After(2 * time.Second):
			t.Fatalf("published event %d never arrived", i)
		}
	}
}

func TestVoyageLifecycleEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)
	registerVoyage(t, router, "voy-1")

	// Duplicate registration conflicts.
	rec := doJSON(t, router, http.MethodPost, "/api/v1/voyages", map[string]string{
		"id": "voy-1", "vessel_id": "vessel-1",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate register: status %d, want 409", rec.Code)
	}

	// No data yet.
	rec = doJSON(t, router, http.MethodGet, "/api/v1/voyages/voy-1/track", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("track before data: status %d, want 404", rec.Code)
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if rec := postEvent(t, router, "voy-1", base, 10, 20); rec.Code != http.StatusAccepted {
		t.Fatalf("post event: status %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/voyages/voy-1/track", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("track: status %d", rec.Code)
	}
	var state models.PositionEvent
	decodeBody(t, rec, &state)
	if state.Position.Lat != 10 {
		t.Errorf("lat = %v, want 10", state.Position.Lat)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/voyages/voy-1/cancel", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: status %d", rec.Code)
	}
	var v models.Voyage
	decodeBody(t, rec, &v)
	if v.Status != models.VoyageCancelled {
		t.Errorf("status = %q, want cancelled", v.Status)
	}
}

func TestHistoryRangeAndLimit(t *testing.T) {
	router, _ := newTestRouter(t)
	registerVoyage(t, router, "voy-1")

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		rec := postEvent(t, router, "voy-1", base.Add(time.Duration(i)*time.Minute), 10, 20)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("event %d: status %d", i, rec.Code)
		}
	}

	url := fmt.Sprintf("/api/v1/voyages/voy-1/history?from=%s&to=%s&limit=3",
		base.Add(2*time.Minute).Format(time.RFC3339),
		base.Add(8*time.Minute).Format(time.RFC3339))
	rec := doJSON(t, router, http.MethodGet, url, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history: status %d, body %s", rec.Code, rec.Body.String())
	}
	var events []models.PositionEvent
	decodeBody(t, rec, &events)
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3 (limit)", len(events))
	}
	if !events[0].Timestamp.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("first = %v, want %v", events[0].Timestamp, base.Add(2*time.Minute))
	}
}

func TestAlertEndpoints(t *testing.T) {
	router, engine := newTestRouter(t)
	registerVoyage(t, router, "voy-1")
	loadCircleZone(t, router, "zone-1", 12, 45, 50000)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if rec := postEvent(t, router, "voy-1", base, 12, 45); rec.Code != http.StatusAccepted {
		t.Fatalf("post event: status %d", rec.Code)
	}

	rec := doJSON(t, router, http.MethodGet, "/api/v1/alerts?voyage_id=voy-1&live=true", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list alerts: status %d", rec.Code)
	}
	var list []models.Alert
	decodeBody(t, rec, &list)
	if len(list) != 1 {
		t.Fatalf("alerts = %d, want 1", len(list))
	}
	id := list[0].ID

	rec = doJSON(t, router, http.MethodPost, "/api/v1/alerts/"+id+"/acknowledge", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("acknowledge: status %d", rec.Code)
	}
	var a models.Alert
	decodeBody(t, rec, &a)
	if a.Status != models.AlertAcknowledged {
		t.Errorf("status = %q, want acknowledged", a.Status)
	}

	// Acknowledging again is an invalid transition.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/alerts/"+id+"/acknowledge", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("re-acknowledge: status %d, want 409", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/alerts/"+id+"/resolve", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve: status %d", rec.Code)
	}

	if live := engine.Alerts(alerts.Filter{LiveOnly: true}); len(live) != 0 {
		t.Errorf("live alerts after resolve = %d, want 0", len(live))
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/alerts/no-such/resolve", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("resolve missing: status %d, want 404", rec.Code)
	}
}

func TestZoneLoadReportsPerZoneOutcomes(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPut, "/api/v1/zones", []map[string]interface{}{
		{
			"id": "good", "name": "Good", "severity": "low", "enabled": true,
			"geometry": map[string]interface{}{
				"kind":     "circle",
				"center":   map[string]float64{"lat": 0, "lon": 0},
				"radius_m": 1000,
			},
		},
		{
			"id": "bad-radius", "name": "Bad", "severity": "low", "enabled": true,
			"geometry": map[string]interface{}{
				"kind":     "circle",
				"center":   map[string]float64{"lat": 0, "lon": 0},
				"radius_m": -5,
			},
		},
		{
			"id": "bad-severity", "name": "Bad", "severity": "extreme", "enabled": true,
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("load zones: status %d, body %s", rec.Code, rec.Body.String())
	}

	var results []zoneLoadResponse
	decodeBody(t, rec, &results)
	byID := make(map[string]zoneLoadResponse)
	for _, r := range results {
		byID[r.ZoneID] = r
	}
	if !byID["good"].Accepted {
		t.Errorf("good zone rejected: %+v", byID["good"])
	}
	if byID["bad-radius"].Accepted || byID["bad-radius"].Error == "" {
		t.Errorf("bad-radius = %+v, want rejection with error", byID["bad-radius"])
	}
	if byID["bad-severity"].Accepted || byID["bad-severity"].Error == "" {
		t.Errorf("bad-severity = %+v, want rejection with error", byID["bad-severity"])
	}

	// Only the accepted zone is in the active set.
	rec = doJSON(t, router, http.MethodGet, "/api/v1/zones", nil)
	var zoneList []models.RiskZone
	decodeBody(t, rec, &zoneList)
	if len(zoneList) != 1 || zoneList[0].ID != "good" {
		t.Errorf("active zones = %+v, want [good]", zoneList)
	}
}

func TestDashboardAndSnapshot(t *testing.T) {
	router, _ := newTestRouter(t)
	registerVoyage(t, router, "voy-1")
	loadCircleZone(t, router, "zone-1", 12, 45, 50000)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if rec := postEvent(t, router, "voy-1", base, 12, 45); rec.Code != http.StatusAccepted {
		t.Fatalf("post event: status %d", rec.Code)
	}

	rec := doJSON(t, router, http.MethodGet, "/api/v1/analytics/snapshot", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("snapshot: status %d", rec.Code)
	}
	var snap models.AnalyticsSnapshot
	decodeBody(t, rec, &snap)
	if snap.VoyagesInRisk != 1 {
		t.Errorf("voyages in risk = %d, want 1", snap.VoyagesInRisk)
	}
	if snap.EventsInWindow != 1 {
		t.Errorf("events in window = %d, want 1", snap.EventsInWindow)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/dashboard", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard: status %d", rec.Code)
	}
	var dash dashboardResponse
	decodeBody(t, rec, &dash)
	if len(dash.LiveAlerts) != 1 {
		t.Errorf("live alerts = %d, want 1", len(dash.LiveAlerts))
	}
	if dash.ZoneCount != 1 {
		t.Errorf("zone count = %d, want 1", dash.ZoneCount)
	}
	if dash.Voyages["scheduled"] != 1 {
		t.Errorf("voyages by status = %+v", dash.Voyages)
	}
}

func TestHealthEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)
	for _, path := range []string{"/api/v1/health/live", "/api/v1/health/ready"} {
		rec := doJSON(t, router, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status %d, want 200", path, rec.Code)
		}
	}
}
