// Pelorus - Voyage Tracking and Maritime Risk-Zone Alerting
// Copyright 2026 Pelorus Maritime
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pelorus-maritime/pelorus

// Package models defines the domain entities shared across the
// engine: position events, voyages, risk zones, alerts, and the
// analytics snapshot. Entities here carry no behavior beyond small
// validity helpers; lifecycle rules live with the components that own
// them (track for voyages, alerts for alert transitions).
package models

import (
	"time"

	"github.com/pelorus-maritime/pelorus/internal/geo"
)

// EventKind classifies a position event.
type EventKind string

const (
	KindPositionReport EventKind = "position-report"
	KindDeparture      EventKind = "departure"
	KindArrival        EventKind = "arrival"
	KindStatusChange   EventKind = "status-change"
)

// Valid reports whether the kind is one of the defined values.
func (k EventKind) Valid() bool {
	switch k {
	case KindPositionReport, KindDeparture, KindArrival, KindStatusChange:
		return true
	}
	return false
}

// PositionEvent is a single vessel report. Immutable once accepted;
// Seq is assigned by the track store at append time and breaks
// timestamp ties in history ordering.
type PositionEvent struct {
	ID         string    `json:"id"`
	VoyageID   string    `json:"voyage_id"`
	Timestamp  time.Time `json:"timestamp"`
	Position   geo.Point `json:"position"`
	SpeedKnots float64   `json:"speed_knots"`
	HeadingDeg float64   `json:"heading_deg"`
	Kind       EventKind `json:"kind"`
	Seq        uint64    `json:"seq"`
}

// VoyageStatus is the lifecycle state of a voyage.
type VoyageStatus string

const (
	VoyageScheduled  VoyageStatus = "scheduled"
	VoyageInProgress VoyageStatus = "in-progress"
	VoyageCompleted  VoyageStatus = "completed"
	VoyageCancelled  VoyageStatus = "cancelled"
)

// Voyage is a vessel's journey between two ports. Vessel and port
// details are reference data owned by the external store; the engine
// carries their identifiers only. Status is mutated solely by the
// track store in response to accepted events.
type Voyage struct {
	ID                string       `json:"id"`
	VesselID          string       `json:"vessel_id"`
	OriginPortID      string       `json:"origin_port_id"`
	DestinationPortID string       `json:"destination_port_id"`
	Status            VoyageStatus `json:"status"`
	StartedAt         *time.Time   `json:"started_at,omitempty"`
	EndedAt           *time.Time   `json:"ended_at,omitempty"`
}

// Severity is a risk-zone severity level, ordered low to critical.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether the severity is one of the defined levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// RiskZone is a geographic area whose intersection with a vessel
// position raises an alert. Zones are administered externally and
// consumed read-only by the engine; the optional window restricts
// when the zone is in force.
type RiskZone struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Geometry    geo.Geometry `json:"geometry"`
	Severity    Severity     `json:"severity"`
	ActiveFrom  *time.Time   `json:"active_from,omitempty"`
	ActiveUntil *time.Time   `json:"active_until,omitempty"`
	Enabled     bool         `json:"enabled"`
}

// ActiveAt reports whether the zone is enabled and its time window
// (when set) covers t. Window boundaries are inclusive.
func (z *RiskZone) ActiveAt(t time.Time) bool {
	if !z.Enabled {
		return false
	}
	if z.ActiveFrom != nil && t.Before(*z.ActiveFrom) {
		return false
	}
	if z.ActiveUntil != nil && t.After(*z.ActiveUntil) {
		return false
	}
	return true
}

// AlertStatus is the lifecycle state of an alert.
type AlertStatus string

const (
	AlertOpen         AlertStatus = "open"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
	AlertExpired      AlertStatus = "expired"
)

// Live reports whether the status still demands operator attention.
// At most one live alert exists per (voyage, zone) pair.
func (s AlertStatus) Live() bool {
	return s == AlertOpen || s == AlertAcknowledged
}

// Alert records a vessel/zone intersection. Severity is copied from
// the zone at creation time so later zone edits do not rewrite alert
// history. Mutated only by the alert engine's serialized transitions.
type Alert struct {
	ID                string      `json:"id"`
	VoyageID          string      `json:"voyage_id"`
	ZoneID            string      `json:"zone_id"`
	Severity          Severity    `json:"severity"`
	Status            AlertStatus `json:"status"`
	CreatedAt         time.Time   `json:"created_at"`
	LastUpdatedAt     time.Time   `json:"last_updated_at"`
	ResolvedAt        *time.Time  `json:"resolved_at,omitempty"`
	TriggeringEventID string      `json:"triggering_event_id"`
}

// AnalyticsSnapshot is a point-in-time rollup of alert and track
// state. It is a derived view; full recomputation from alert state
// yields the same values as the incremental counters.
type AnalyticsSnapshot struct {
	TakenAt time.Time `json:"taken_at"`

	// OpenBySeverity counts live (open or acknowledged) alerts per
	// severity level.
	OpenBySeverity map[Severity]int `json:"open_by_severity"`

	// ByStatus counts all alerts the engine has seen per status.
	ByStatus map[AlertStatus]int `json:"by_status"`

	// VoyagesInRisk is the number of voyages with at least one live
	// alert.
	VoyagesInRisk int `json:"voyages_in_risk"`

	// ZoneExposure counts live alerts per zone, highest-traffic zones
	// first in dashboard sorts.
	ZoneExposure map[string]int `json:"zone_exposure"`

	// AlertsInWindow is the number of alerts opened within the
	// rolling analytics window.
	AlertsInWindow int `json:"alerts_in_window"`

	// EventsInWindow is the number of accepted events within the
	// rolling analytics window.
	EventsInWindow int `json:"events_in_window"`
}
