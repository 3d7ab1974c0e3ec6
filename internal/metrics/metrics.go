// Pelorus - Voyage Tracking and Maritime Risk-Zone Alerting
// Copyright 2026 Pelorus Maritime
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pelorus-maritime/pelorus

// Package metrics provides Prometheus instrumentation for the engine:
// ingestion outcomes, alert lifecycle transitions, zone query cost,
// expiry sweeps, persistence, and the API surface.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics

	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pelorus_events_ingested_total",
			Help: "Position events processed, labeled by intake outcome",
		},
		[]string{"outcome"}, // accepted, rejected_stale, rejected_duplicate, rejected_invalid, voyage_not_found
	)

	EventProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pelorus_event_processing_duration_seconds",
			Help:    "End-to-end processing time for one position event",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Alert lifecycle metrics

	AlertTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pelorus_alert_transitions_total",
			Help: "Alert state transitions, labeled by transition and severity",
		},
		[]string{"transition", "severity"}, // opened, refreshed, acknowledged, resolved, expired, suppressed_cooldown
	)

	LiveAlerts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pelorus_live_alerts",
			Help: "Alerts currently open or acknowledged",
		},
	)

	SweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pelorus_sweep_runs_total",
			Help: "Expiry sweep executions, labeled ran or skipped_reentrant",
		},
		[]string{"result"},
	)

	SweepExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pelorus_sweep_expired_alerts_total",
			Help: "Alerts expired by the periodic sweep",
		},
	)

	// Zone index metrics

	ZoneQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "pelorus_zone_query_duration_seconds",
			Help: "Risk-zone containment query time",
			// Queries are in-memory and fast; sub-millisecond buckets.
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		},
	)

	ZonesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pelorus_zones_active",
			Help: "Risk zones accepted in the current zone set",
		},
	)

	ZoneLoadRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pelorus_zone_load_rejected_total",
			Help: "Zones rejected at load time for invalid geometry",
		},
	)

	// Persistence metrics

	DBWriteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pelorus_duckdb_write_duration_seconds",
			Help:    "Duration of DuckDB writes in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"table"},
	)

	DBWriteErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pelorus_duckdb_write_errors_total",
			Help: "DuckDB write failures",
		},
		[]string{"table"},
	)

	DBBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pelorus_duckdb_breaker_open",
			Help: "1 when the persistence circuit breaker is open",
		},
	)

	// API metrics

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pelorus_api_request_duration_seconds",
			Help:    "API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// WebSocket metrics

	WSClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pelorus_websocket_clients",
			Help: "Connected WebSocket clients",
		},
	)

	WSMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pelorus_websocket_messages_dropped_total",
			Help: "Broadcast messages dropped due to slow clients",
		},
	)
)

// RecordIngestOutcome records one processed event by intake outcome.
func RecordIngestOutcome(outcome string, duration time.Duration) {
	EventsIngested.WithLabelValues(outcome).Inc()
	EventProcessingDuration.Observe(duration.Seconds())
}

// RecordAlertTransition records an alert lifecycle transition.
func RecordAlertTransition(transition, severity string) {
	AlertTransitions.WithLabelValues(transition, severity).Inc()
}

// RecordZoneQuery records one containment query.
func RecordZoneQuery(duration time.Duration) {
	ZoneQueryDuration.Observe(duration.Seconds())
}

// RecordDBWrite records a persistence write and its outcome.
func RecordDBWrite(table string, duration time.Duration, err error) {
	DBWriteDuration.WithLabelValues(table).Observe(duration.Seconds())
	if err != nil {
		DBWriteErrors.WithLabelValues(table).Inc()
	}
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}
