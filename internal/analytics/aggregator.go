// Pelorus - Voyage Tracking and Maritime Risk-Zone Alerting
// Copyright 2026 Pelorus Maritime
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pelorus-maritime/pelorus

// Package analytics maintains rolling counters over alert and track
// activity for dashboard consumption. Counters are updated
// incrementally on every alert transition and accepted event; the
// correctness bar is that Recompute from the full alert list yields
// the same values as the incremental state.
package analytics

import (
	"sync"
	"time"

	"github.com/pelorus-maritime/pelorus/internal/alerts"
	"github.com/pelorus-maritime/pelorus/internal/models"
)

// Aggregator holds the incremental analytics state. It implements
// alerts.Listener for alert-driven counters; the pipeline calls
// EventAccepted for track-driven ones.
type Aggregator struct {
	window time.Duration
	clock  func() time.Time

	mu sync.Mutex

	// statusOf remembers each alert's last seen status so transitions
	// can decrement the right bucket.
	statusOf map[string]models.AlertStatus

	openBySeverity map[models.Severity]int
	byStatus       map[models.AlertStatus]int
	liveByVoyage   map[string]int
	zoneExposure   map[string]int

	// openedAt holds creation times of alerts still inside the
	// window, pruned lazily. Alert volume is low, so exact
	// timestamps are affordable here.
	openedAt []time.Time

	// eventWindow counts accepted events; bucketed, since event
	// volume is unbounded.
	eventWindow *slidingWindowCounter
}

// Config tunes the aggregator.
type Config struct {
	// Window is the rolling window for the in-window counters.
	Window time.Duration

	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// NewAggregator creates an empty aggregator.
func NewAggregator(cfg Config) *Aggregator {
	window := cfg.Window
	if window <= 0 {
		window = time.Hour
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Aggregator{
		window:         window,
		clock:          clock,
		statusOf:       make(map[string]models.AlertStatus),
		openBySeverity: make(map[models.Severity]int),
		byStatus:       make(map[models.AlertStatus]int),
		liveByVoyage:   make(map[string]int),
		zoneExposure:   make(map[string]int),
		eventWindow:    newSlidingWindowCounter(window, 60, clock),
	}
}

// OnAlert implements alerts.Listener.
func (g *Aggregator) OnAlert(alert models.Alert, transition alerts.Transition) {
	g.mu.Lock()
	defer g.mu.Unlock()

	prev, seen := g.statusOf[alert.ID]
	if seen && prev == alert.Status {
		// Refresh: no status change, nothing to recount.
		return
	}

	if seen {
		g.byStatus[prev]--
		if g.byStatus[prev] == 0 {
			delete(g.byStatus, prev)
		}
	}
	g.statusOf[alert.ID] = alert.Status
	g.byStatus[alert.Status]++

	wasLive := seen && prev.Live()
	isLive := alert.Status.Live()

	switch {
	case !wasLive && isLive:
		g.openBySeverity[alert.Severity]++
		g.liveByVoyage[alert.VoyageID]++
		g.zoneExposure[alert.ZoneID]++
		g.openedAt = append(g.openedAt, alert.CreatedAt)
	case wasLive && !isLive:
		g.decLive(alert)
	}
}

// EventAccepted records one accepted position event.
func (g *Aggregator) EventAccepted(models.PositionEvent) {
	g.eventWindow.Increment(1)
}

// Snapshot returns an immutable point-in-time rollup.
func (g *Aggregator) Snapshot() models.AnalyticsSnapshot {
	now := g.clock()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.pruneWindow(now)

	return models.AnalyticsSnapshot{
		TakenAt:        now,
		OpenBySeverity: copyMap(g.openBySeverity),
		ByStatus:       copyMap(g.byStatus),
		VoyagesInRisk:  len(g.liveByVoyage),
		ZoneExposure:   copyMap(g.zoneExposure),
		AlertsInWindow: len(g.openedAt),
		EventsInWindow: int(g.eventWindow.Count()),
	}
}

// Recompute builds a snapshot from scratch out of the full alert
// list. Incremental maintenance and recomputation must agree; tests
// hold the aggregator to it. The event counter is bucketed incremental
// state with no source of truth to rebuild from, so it is carried
// over as-is.
func (g *Aggregator) Recompute(all []models.Alert) models.AnalyticsSnapshot {
	now := g.clock()
	cutoff := now.Add(-g.window)

	snap := models.AnalyticsSnapshot{
		TakenAt:        now,
		OpenBySeverity: make(map[models.Severity]int),
		ByStatus:       make(map[models.AlertStatus]int),
		ZoneExposure:   make(map[string]int),
	}

	voyages := make(map[string]bool)
	for _, a := range all {
		snap.ByStatus[a.Status]++
		if !a.CreatedAt.Before(cutoff) {
			snap.AlertsInWindow++
		}
		if a.Status.Live() {
			snap.OpenBySeverity[a.Severity]++
			snap.ZoneExposure[a.ZoneID]++
			voyages[a.VoyageID] = true
		}
	}
	snap.VoyagesInRisk = len(voyages)
	snap.EventsInWindow = int(g.eventWindow.Count())
	return snap
}

// decLive removes one live alert from the live-derived counters.
// Must be called with g.mu held.
func (g *Aggregator) decLive(alert models.Alert) {
	g.openBySeverity[alert.Severity]--
	if g.openBySeverity[alert.Severity] == 0 {
		delete(g.openBySeverity, alert.Severity)
	}
	g.liveByVoyage[alert.VoyageID]--
	if g.liveByVoyage[alert.VoyageID] == 0 {
		delete(g.liveByVoyage, alert.VoyageID)
	}
	g.zoneExposure[alert.ZoneID]--
	if g.zoneExposure[alert.ZoneID] == 0 {
		delete(g.zoneExposure, alert.ZoneID)
	}
}

// pruneWindow drops window entries older than the cutoff.
// Must be called with g.mu held.
func (g *Aggregator) pruneWindow(now time.Time) {
	cutoff := now.Add(-g.window)
	kept := g.openedAt[:0]
	for _, ts := range g.openedAt {
		if !ts.Before(cutoff) {
			kept = append(kept, ts)
		}
	}
	g.openedAt = kept
}

func copyMap[K comparable](m map[K]int) map[K]int {
	out := make(map[K]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
