// Pelorus - Voyage Tracking and Maritime Risk-Zone Alerting
// Copyright 2026 Pelorus Maritime
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pelorus-maritime/pelorus

// Package alerts implements the per-(voyage, zone) alert state
// machine: open on zone entry, refresh while inside, resolve on exit,
// acknowledge/resolve on operator action, expire on feed silence.
//
// Dedup invariant: at most one live (open or acknowledged) alert
// exists per (voyage, zone) pair. A cooldown window after resolution
// suppresses immediate reopening so a vessel hugging a zone boundary
// does not flap.
//
// Concurrency model: each pair carries its own lock, so transitions
// for one pair are serialized while unrelated pairs proceed
// independently. The record maps are guarded by a separate RWMutex
// taken only for the brief read or write of a record, never across a
// decision.
package alerts

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pelorus-maritime/pelorus/internal/logging"
	"github.com/pelorus-maritime/pelorus/internal/metrics"
	"github.com/pelorus-maritime/pelorus/internal/models"
)

// Transition names an alert lifecycle change, as reported to
// listeners and metrics.
type Transition string

const (
	TransitionOpened       Transition = "opened"
	TransitionRefreshed    Transition = "refreshed"
	TransitionAcknowledged Transition = "acknowledged"
	TransitionResolved     Transition = "resolved"
	TransitionExpired      Transition = "expired"
)

// OpResult is the outcome of a manual lifecycle operation.
type OpResult string

const (
	OpApplied           OpResult = "applied"
	OpInvalidTransition OpResult = "invalid_transition"
	OpNotFound          OpResult = "not_found"
)

// Listener receives alert lifecycle notifications. Listeners are
// invoked synchronously on the transition path and must not block;
// anything slow (HTTP, disk) queues internally.
type Listener interface {
	OnAlert(alert models.Alert, transition Transition)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(alert models.Alert, transition Transition)

// OnAlert implements Listener.
func (f ListenerFunc) OnAlert(alert models.Alert, transition Transition) { f(alert, transition) }

// Config tunes the engine.
type Config struct {
	// Cooldown is the quiet period after a resolution before the same
	// (voyage, zone) pair may open a new alert.
	Cooldown time.Duration

	// MaxAlertAge is how long a live alert may go without updates
	// before the sweep expires it.
	MaxAlertAge time.Duration

	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// pairKey identifies one (voyage, zone) state machine.
type pairKey struct {
	voyageID string
	zoneID   string
}

// pairState is the serialized state for one pair.
type pairState struct {
	mu sync.Mutex

	// live points at the pair's open or acknowledged alert, nil when
	// none.
	live *models.Alert

	// lastResolvedAt starts the cooldown window. Expiry does not set
	// it; a dead feed should not suppress the next genuine entry.
	// Always in the event-time domain: the reopen check compares it
	// against event timestamps, never wall clock.
	lastResolvedAt time.Time

	// lastEventAt is the timestamp of the pair's most recent event,
	// the event-time anchor for operator-initiated resolutions.
	lastEventAt time.Time
}

// Engine owns all alert state and its transitions.
type Engine struct {
	cooldown time.Duration
	maxAge   time.Duration
	clock    func() time.Time

	listeners []Listener

	pairMu sync.Mutex
	pairs  map[pairKey]*pairState

	// recMu guards alerts and liveByVoyage.
	recMu        sync.RWMutex
	alerts       map[string]*models.Alert
	pairOf       map[string]pairKey
	liveByVoyage map[string]map[string]string // voyage id -> zone id -> alert id

	sweepRunning atomic.Bool
}

// NewEngine creates an alert engine with the given tuning.
func NewEngine(cfg Config) *Engine {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		cooldown:     cfg.Cooldown,
		maxAge:       cfg.MaxAlertAge,
		clock:        clock,
		pairs:        make(map[pairKey]*pairState),
		alerts:       make(map[string]*models.Alert),
		pairOf:       make(map[string]pairKey),
		liveByVoyage: make(map[string]map[string]string),
	}
}

// AddListener registers a lifecycle listener. Not safe to call after
// event processing has started.
func (e *Engine) AddListener(l Listener) {
	e.listeners = append(e.listeners, l)
}

// HandleEvent evaluates one accepted position event against the
// zones that contain it. Zones newly entered open alerts (subject to
// cooldown), zones still occupied refresh their alert, and zones the
// vessel has left get resolved.
func (e *Engine) HandleEvent(ev models.PositionEvent, hits []*models.RiskZone) {
	inZone := make(map[string]bool, len(hits))
	for _, z := range hits {
		inZone[z.ID] = true
		e.enterOrRefresh(ev, z)
	}

	// Resolve live alerts for zones the query no longer returns.
	for _, zoneID := range e.liveZones(ev.VoyageID) {
		if !inZone[zoneID] {
			e.resolvePair(pairKey{voyageID: ev.VoyageID, zoneID: zoneID}, ev.Timestamp)
		}
	}
}

// enterOrRefresh runs the open/refresh decision for one pair.
func (e *Engine) enterOrRefresh(ev models.PositionEvent, zone *models.RiskZone) {
	key := pairKey{voyageID: ev.VoyageID, zoneID: zone.ID}
	p := e.pair(key)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastEventAt = ev.Timestamp

	if p.live != nil {
		e.update(p.live, func(a *models.Alert) {
			a.LastUpdatedAt = ev.Timestamp
		})
		e.notify(*p.live, TransitionRefreshed)
		metrics.RecordAlertTransition(string(TransitionRefreshed), string(p.live.Severity))
		return
	}

	if !p.lastResolvedAt.IsZero() && ev.Timestamp.Before(p.lastResolvedAt.Add(e.cooldown)) {
		metrics.RecordAlertTransition("suppressed_cooldown", string(zone.Severity))
		logging.Debug().
			Str("voyage_id", ev.VoyageID).
			Str("zone_id", zone.ID).
			Time("resolved_at", p.lastResolvedAt).
			Msg("Alert reopen suppressed by cooldown")
		return
	}

	alert := &models.Alert{
		ID:                uuid.NewString(),
		VoyageID:          ev.VoyageID,
		ZoneID:            zone.ID,
		Severity:          zone.Severity,
		Status:            models.AlertOpen,
		CreatedAt:         ev.Timestamp,
		LastUpdatedAt:     ev.Timestamp,
		TriggeringEventID: ev.ID,
	}
	p.live = alert
	e.record(alert, key)

	metrics.RecordAlertTransition(string(TransitionOpened), string(alert.Severity))
	metrics.LiveAlerts.Inc()
	logging.Info().
		Str("alert_id", alert.ID).
		Str("voyage_id", ev.VoyageID).
		Str("zone_id", zone.ID).
		Str("severity", string(alert.Severity)).
		Msg("Alert opened")

	e.notify(*alert, TransitionOpened)
}

// resolvePair closes the pair's live alert, stamping resolution time
// and starting the cooldown window.
func (e *Engine) resolvePair(key pairKey, at time.Time) {
	p := e.pair(key)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastEventAt = at
	if p.live == nil {
		return
	}

	alert := p.live
	e.update(alert, func(a *models.Alert) {
		a.Status = models.AlertResolved
		a.LastUpdatedAt = at
		ts := at
		a.ResolvedAt = &ts
	})
	e.clearLive(alert)
	p.live = nil
	p.lastResolvedAt = at

	metrics.RecordAlertTransition(string(TransitionResolved), string(alert.Severity))
	metrics.LiveAlerts.Dec()
	logging.Info().
		Str("alert_id", alert.ID).
		Str("voyage_id", key.voyageID).
		Str("zone_id", key.zoneID).
		Msg("Alert resolved")

	e.notify(*alert, TransitionResolved)
}

// Acknowledge transitions an open alert to acknowledged.
func (e *Engine) Acknowledge(alertID string) OpResult {
	return e.manual(alertID, func(p *pairState, a *models.Alert, now time.Time) (Transition, bool) {
		if a.Status != models.AlertOpen {
			return "", false
		}
		e.update(a, func(a *models.Alert) {
			a.Status = models.AlertAcknowledged
			a.LastUpdatedAt = now
		})
		return TransitionAcknowledged, true
	})
}

// Resolve transitions an open or acknowledged alert to resolved on
// operator request. Manual resolution starts the cooldown window just
// like a geometric exit. The alert record carries the operator's wall
// clock, but the cooldown anchors on the pair's last event timestamp:
// with a feed whose timestamps lag wall time, a wall-clock anchor
// would suppress reopening for cooldown plus the skew.
func (e *Engine) Resolve(alertID string) OpResult {
	return e.manual(alertID, func(p *pairState, a *models.Alert, now time.Time) (Transition, bool) {
		if !a.Status.Live() {
			return "", false
		}
		e.update(a, func(a *models.Alert) {
			a.Status = models.AlertResolved
			a.LastUpdatedAt = now
			ts := now
			a.ResolvedAt = &ts
		})
		e.clearLive(a)
		p.live = nil
		p.lastResolvedAt = p.lastEventAt
		if p.lastResolvedAt.IsZero() {
			p.lastResolvedAt = now
		}
		metrics.LiveAlerts.Dec()
		return TransitionResolved, true
	})
}

// manual runs an operator-requested transition under the pair lock.
func (e *Engine) manual(alertID string, apply func(*pairState, *models.Alert, time.Time) (Transition, bool)) OpResult {
	e.recMu.RLock()
	key, ok := e.pairOf[alertID]
	e.recMu.RUnlock()
	if !ok {
		return OpNotFound
	}

	p := e.pair(key)
	p.mu.Lock()
	defer p.mu.Unlock()

	e.recMu.RLock()
	alert := e.alerts[alertID]
	e.recMu.RUnlock()
	if alert == nil {
		return OpNotFound
	}

	transition, ok := apply(p, alert, e.clock())
	if !ok {
		return OpInvalidTransition
	}

	metrics.RecordAlertTransition(string(transition), string(alert.Severity))
	logging.Info().
		Str("alert_id", alert.ID).
		Str("transition", string(transition)).
		Msg("Alert transition applied")

	e.notify(*alert, transition)
	return OpApplied
}

// Sweep expires live alerts that have gone without updates longer
// than the maximum age. It is idempotent and re-entrant safe: a sweep
// that finds another sweep running returns immediately. Returns the
// number of alerts expired.
func (e *Engine) Sweep(now time.Time) int {
	if !e.sweepRunning.CompareAndSwap(false, true) {
		metrics.SweepRuns.WithLabelValues("skipped_reentrant").Inc()
		return 0
	}
	defer e.sweepRunning.Store(false)
	metrics.SweepRuns.WithLabelValues("ran").Inc()

	// Collect candidates under the read lock, then transition each
	// under its pair lock. The pair lock re-checks liveness, so a
	// racing resolve wins cleanly.
	e.recMu.RLock()
	var candidates []pairKey
	for voyageID, zones := range e.liveByVoyage {
		for zoneID := range zones {
			candidates = append(candidates, pairKey{voyageID: voyageID, zoneID: zoneID})
		}
	}
	e.recMu.RUnlock()

	expired := 0
	for _, key := range candidates {
		p := e.pair(key)
		p.mu.Lock()
		alert := p.live
		if alert == nil || now.Sub(alert.LastUpdatedAt) <= e.maxAge {
			p.mu.Unlock()
			continue
		}

		lastUpdate := alert.LastUpdatedAt
		e.update(alert, func(a *models.Alert) {
			a.Status = models.AlertExpired
			a.LastUpdatedAt = now
		})
		e.clearLive(alert)
		p.live = nil
		p.mu.Unlock()

		expired++
		metrics.RecordAlertTransition(string(TransitionExpired), string(alert.Severity))
		metrics.LiveAlerts.Dec()
		metrics.SweepExpired.Inc()
		logging.Warn().
			Str("alert_id", alert.ID).
			Str("voyage_id", key.voyageID).
			Str("zone_id", key.zoneID).
			Time("last_update", lastUpdate).
			Msg("Alert expired by sweep")

		e.notify(*alert, TransitionExpired)
	}
	return expired
}

// Filter narrows Alerts results. Zero values match everything.
type Filter struct {
	VoyageID string
	ZoneID   string
	Severity models.Severity
	Status   models.AlertStatus

	// LiveOnly restricts to open and acknowledged alerts.
	LiveOnly bool
}

func (f Filter) matches(a *models.Alert) bool {
	if f.VoyageID != "" && a.VoyageID != f.VoyageID {
		return false
	}
	if f.ZoneID != "" && a.ZoneID != f.ZoneID {
		return false
	}
	if f.Severity != "" && a.Severity != f.Severity {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.LiveOnly && !a.Status.Live() {
		return false
	}
	return true
}

// Alerts returns copies of every alert matching the filter, unordered.
func (e *Engine) Alerts(f Filter) []models.Alert {
	e.recMu.RLock()
	defer e.recMu.RUnlock()

	var out []models.Alert
	for _, a := range e.alerts {
		if f.matches(a) {
			out = append(out, *a)
		}
	}
	return out
}

// Alert returns a copy of one alert by id.
func (e *Engine) Alert(id string) (models.Alert, bool) {
	e.recMu.RLock()
	defer e.recMu.RUnlock()
	a, ok := e.alerts[id]
	if !ok {
		return models.Alert{}, false
	}
	return *a, true
}

// pair returns the state machine for a key, creating it on first use.
func (e *Engine) pair(key pairKey) *pairState {
	e.pairMu.Lock()
	defer e.pairMu.Unlock()
	p, ok := e.pairs[key]
	if !ok {
		p = &pairState{}
		e.pairs[key] = p
	}
	return p
}

// liveZones returns the zone ids with a live alert for the voyage.
func (e *Engine) liveZones(voyageID string) []string {
	e.recMu.RLock()
	defer e.recMu.RUnlock()
	zones := e.liveByVoyage[voyageID]
	out := make([]string, 0, len(zones))
	for zoneID := range zones {
		out = append(out, zoneID)
	}
	return out
}

// record registers a newly created alert.
func (e *Engine) record(a *models.Alert, key pairKey) {
	e.recMu.Lock()
	defer e.recMu.Unlock()
	e.alerts[a.ID] = a
	e.pairOf[a.ID] = key
	zones := e.liveByVoyage[key.voyageID]
	if zones == nil {
		zones = make(map[string]string)
		e.liveByVoyage[key.voyageID] = zones
	}
	zones[key.zoneID] = a.ID
}

// update mutates an alert record under the record lock.
func (e *Engine) update(a *models.Alert, mutate func(*models.Alert)) {
	e.recMu.Lock()
	defer e.recMu.Unlock()
	mutate(a)
}

// clearLive drops the alert from the live-by-voyage index.
func (e *Engine) clearLive(a *models.Alert) {
	e.recMu.Lock()
	defer e.recMu.Unlock()
	if zones := e.liveByVoyage[a.VoyageID]; zones != nil {
		delete(zones, a.ZoneID)
		if len(zones) == 0 {
			delete(e.liveByVoyage, a.VoyageID)
		}
	}
}

// notify fans the transition out to listeners.
func (e *Engine) notify(a models.Alert, t Transition) {
	for _, l := range e.listeners {
		l.OnAlert(a, t)
	}
}
