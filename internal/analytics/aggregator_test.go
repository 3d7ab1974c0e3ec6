// Pelorus - Voyage Tracking and Maritime Risk-Zone Alerting
// Copyright 2026 Pelorus Maritime
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pelorus-maritime/pelorus

package analytics

import (
	"reflect"
	"testing"
	"time"

	"github.com/pelorus-maritime/pelorus/internal/alerts"
	"github.com/pelorus-maritime/pelorus/internal/geo"
	"github.com/pelorus-maritime/pelorus/internal/models"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func zone(id string, sev models.Severity) *models.RiskZone {
	return &models.RiskZone{
		ID:       id,
		Severity: sev,
		Geometry: geo.Geometry{Kind: geo.KindCircle, Center: geo.Point{Lat: 1, Lon: 1}, RadiusM: 5000},
		Enabled:  true,
	}
}

func posEvent(voyageID string, ts time.Time) models.PositionEvent {
	return models.PositionEvent{
		ID:        voyageID + ts.String(),
		VoyageID:  voyageID,
		Timestamp: ts,
		Position:  geo.Point{Lat: 1, Lon: 1},
		Kind:      models.KindPositionReport,
	}
}

// fixedClock steps time manually.
type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

// snapshotEqual ignores TakenAt.
func snapshotEqual(a, b models.AnalyticsSnapshot) bool {
	a.TakenAt, b.TakenAt = time.Time{}, time.Time{}
	return reflect.DeepEqual(a, b)
}

// Drive a real alert engine with the aggregator listening and verify
// the incremental counters always match a recomputation from the full
// alert list.
func TestSnapshotMatchesRecompute(t *testing.T) {
	clock := &fixedClock{now: t0}
	agg := NewAggregator(Config{Window: time.Hour, Clock: clock.Now})
	eng := alerts.NewEngine(alerts.Config{Cooldown: time.Minute, MaxAlertAge: 6 * time.Hour, Clock: clock.Now})
	eng.AddListener(agg)

	zHigh := zone("high-zone", models.SeverityHigh)
	zLow := zone("low-zone", models.SeverityLow)

	check := func(step string) {
		t.Helper()
		snap := agg.Snapshot()
		recomputed := agg.Recompute(eng.Alerts(alerts.Filter{}))
		if !snapshotEqual(snap, recomputed) {
			t.Errorf("%s: snapshot %+v != recompute %+v", step, snap, recomputed)
		}
	}

	check("empty")

	// V1 enters both zones, V2 enters one.
	clock.now = t0.Add(time.Minute)
	eng.HandleEvent(posEvent("V1", clock.now), []*models.RiskZone{zHigh, zLow})
	eng.HandleEvent(posEvent("V2", clock.now), []*models.RiskZone{zHigh})
	check("after entries")

	snap := agg.Snapshot()
	if snap.VoyagesInRisk != 2 {
		t.Errorf("voyages in risk = %d, want 2", snap.VoyagesInRisk)
	}
	if snap.OpenBySeverity[models.SeverityHigh] != 2 {
		t.Errorf("open high = %d, want 2", snap.OpenBySeverity[models.SeverityHigh])
	}
	if snap.ZoneExposure["high-zone"] != 2 {
		t.Errorf("high-zone exposure = %d, want 2", snap.ZoneExposure["high-zone"])
	}
	if snap.AlertsInWindow != 3 {
		t.Errorf("alerts in window = %d, want 3", snap.AlertsInWindow)
	}

	// Refresh must not change any counter.
	clock.now = t0.Add(2 * time.Minute)
	eng.HandleEvent(posEvent("V1", clock.now), []*models.RiskZone{zHigh, zLow})
	check("after refresh")

	// Acknowledge keeps the alert live.
	ack := eng.Alerts(alerts.Filter{VoyageID: "V2", LiveOnly: true})[0]
	eng.Acknowledge(ack.ID)
	check("after acknowledge")
	snap = agg.Snapshot()
	if snap.VoyagesInRisk != 2 {
		t.Errorf("acknowledged alert still counts as in-risk, got %d", snap.VoyagesInRisk)
	}
	if snap.ByStatus[models.AlertAcknowledged] != 1 {
		t.Errorf("acknowledged count = %d, want 1", snap.ByStatus[models.AlertAcknowledged])
	}

	// V1 leaves everything.
	clock.now = t0.Add(3 * time.Minute)
	eng.HandleEvent(posEvent("V1", clock.now), nil)
	check("after V1 exit")
	snap = agg.Snapshot()
	if snap.VoyagesInRisk != 1 {
		t.Errorf("voyages in risk after exit = %d, want 1", snap.VoyagesInRisk)
	}
	if snap.ByStatus[models.AlertResolved] != 2 {
		t.Errorf("resolved count = %d, want 2", snap.ByStatus[models.AlertResolved])
	}

	// Sweep expires V2's stale acknowledged alert.
	clock.now = t0.Add(10 * time.Hour)
	eng.Sweep(clock.now)
	check("after sweep")
	snap = agg.Snapshot()
	if snap.VoyagesInRisk != 0 {
		t.Errorf("voyages in risk after sweep = %d, want 0", snap.VoyagesInRisk)
	}
	if snap.ByStatus[models.AlertExpired] != 1 {
		t.Errorf("expired count = %d, want 1", snap.ByStatus[models.AlertExpired])
	}
}

func TestAlertsWindowPrunes(t *testing.T) {
	clock := &fixedClock{now: t0}
	agg := NewAggregator(Config{Window: time.Hour, Clock: clock.Now})

	agg.OnAlert(models.Alert{
		ID: "a1", VoyageID: "V", ZoneID: "Z",
		Severity: models.SeverityLow, Status: models.AlertOpen, CreatedAt: t0,
	}, alerts.TransitionOpened)

	if got := agg.Snapshot().AlertsInWindow; got != 1 {
		t.Fatalf("alerts in window = %d, want 1", got)
	}

	// Two hours later the opening has aged out of the window, while
	// the live counters keep it.
	clock.now = t0.Add(2 * time.Hour)
	snap := agg.Snapshot()
	if snap.AlertsInWindow != 0 {
		t.Errorf("alerts in window after aging = %d, want 0", snap.AlertsInWindow)
	}
	if snap.OpenBySeverity[models.SeverityLow] != 1 {
		t.Errorf("open low = %d, want 1 (still live)", snap.OpenBySeverity[models.SeverityLow])
	}
}

func TestEventsInWindow(t *testing.T) {
	clock := &fixedClock{now: t0}
	agg := NewAggregator(Config{Window: time.Hour, Clock: clock.Now})

	for i := 0; i < 5; i++ {
		agg.EventAccepted(posEvent("V", t0))
	}
	if got := agg.Snapshot().EventsInWindow; got != 5 {
		t.Errorf("events in window = %d, want 5", got)
	}

	// Past the window everything ages out.
	clock.now = t0.Add(2 * time.Hour)
	if got := agg.Snapshot().EventsInWindow; got != 0 {
		t.Errorf("events in window after aging = %d, want 0", got)
	}
}

func TestSlidingWindowCounter(t *testing.T) {
	clock := &fixedClock{now: t0}
	sw := newSlidingWindowCounter(time.Minute, 6, clock.Now)

	sw.Increment(3)
	if got := sw.Count(); got != 3 {
		t.Fatalf("count = %d, want 3", got)
	}

	// Half a window later the old bucket is still in range.
	clock.now = t0.Add(30 * time.Second)
	sw.Increment(2)
	if got := sw.Count(); got != 5 {
		t.Errorf("count = %d, want 5", got)
	}

	// 70s after the first increment only the second survives.
	clock.now = t0.Add(70 * time.Second)
	if got := sw.Count(); got != 2 {
		t.Errorf("count = %d, want 2", got)
	}

	// Far future clears everything.
	clock.now = t0.Add(time.Hour)
	if got := sw.Count(); got != 0 {
		t.Errorf("count = %d, want 0", got)
	}
}
