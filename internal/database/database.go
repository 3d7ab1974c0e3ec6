// Pelorus - Voyage Tracking and Maritime Risk-Zone Alerting
// Copyright 2026 Pelorus Maritime
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pelorus-maritime/pelorus

// Package database archives voyages, accepted position events, and
// alert transitions in DuckDB. The in-memory engine is authoritative
// for live reads; this archive is the durable record that survives
// restarts and backs historical queries.
//
// All writes pass through a circuit breaker so that a failing or
// overloaded database degrades the archive without taking the
// ingestion path down with it.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	// DuckDB driver, registered as "duckdb".
	_ "github.com/duckdb/duckdb-go/v2"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/pelorus-maritime/pelorus/internal/alerts"
	"github.com/pelorus-maritime/pelorus/internal/config"
	"github.com/pelorus-maritime/pelorus/internal/logging"
	"github.com/pelorus-maritime/pelorus/internal/metrics"
	"github.com/pelorus-maritime/pelorus/internal/models"
)

const (
	writeTimeout = 5 * time.Second

	breakerFailureThreshold = 5
	breakerTimeout          = 30 * time.Second
)

// Store is the DuckDB-backed archive. Safe for concurrent use; the
// driver serializes access through database/sql's pool.
type Store struct {
	conn    *sql.DB
	breaker *gobreaker.CircuitBreaker[interface{}]
}

// New opens (or creates) the archive at cfg.Path and ensures the
// schema exists. Path ":memory:" opens an in-memory database, used
// by tests.
func New(cfg config.DatabaseConfig) (*Store, error) {
	if cfg.Path != ":memory:" {
		if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = "2GB"
	}

	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s",
		cfg.Path, threads, maxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// DuckDB is embedded; a single writer connection avoids
	// transaction conflicts between pooled connections.
	conn.SetMaxOpenConns(1)

	s := &Store{
		conn:    conn,
		breaker: newWriteBreaker(),
	}
	if err := s.initSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Int("threads", threads).
		Str("max_memory", maxMemory).
		Msg("Archive database opened")
	return s, nil
}

func newWriteBreaker() *gobreaker.CircuitBreaker[interface{}] {
	settings := gobreaker.Settings{
		Name:    "archive-writes",
		Timeout: breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.DBBreakerState.Set(breakerStateValue(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Archive write breaker state changed")
		},
	}
	return gobreaker.NewCircuitBreaker[interface{}](settings)
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 2
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 0
	}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS voyages (
			id                  VARCHAR PRIMARY KEY,
			vessel_id           VARCHAR NOT NULL,
			origin_port_id      VARCHAR NOT NULL,
			destination_port_id VARCHAR NOT NULL,
			status              VARCHAR NOT NULL,
			started_at          TIMESTAMP,
			ended_at            TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS position_events (
			id          VARCHAR PRIMARY KEY,
			voyage_id   VARCHAR NOT NULL,
			ts          TIMESTAMP NOT NULL,
			lat         DOUBLE NOT NULL,
			lon         DOUBLE NOT NULL,
			speed_knots DOUBLE NOT NULL,
			heading_deg DOUBLE NOT NULL,
			kind        VARCHAR NOT NULL,
			seq         UBIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_voyage_ts
			ON position_events (voyage_id, ts)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id                  VARCHAR PRIMARY KEY,
			voyage_id           VARCHAR NOT NULL,
			zone_id             VARCHAR NOT NULL,
			severity            VARCHAR NOT NULL,
			status              VARCHAR NOT NULL,
			created_at          TIMESTAMP NOT NULL,
			last_updated_at     TIMESTAMP NOT NULL,
			resolved_at         TIMESTAMP,
			triggering_event_id VARCHAR NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_voyage
			ON alerts (voyage_id, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.conn.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// write runs fn through the circuit breaker and records write metrics
// under the given table label.
func (s *Store) write(table string, fn func() error) error {
	start := time.Now()
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	metrics.RecordDBWrite(table, time.Since(start), err)
	return err
}

// UpsertVoyage writes the voyage row, replacing any previous state.
func (s *Store) UpsertVoyage(ctx context.Context, v models.Voyage) error {
	return s.write("voyages", func() error {
		_, err := s.conn.ExecContext(ctx, `
			INSERT INTO voyages (id, vessel_id, origin_port_id, destination_port_id, status, started_at, ended_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				status     = excluded.status,
				started_at = excluded.started_at,
				ended_at   = excluded.ended_at`,
			v.ID, v.VesselID, v.OriginPortID, v.DestinationPortID, string(v.Status),
			nullableTime(v.StartedAt), nullableTime(v.EndedAt))
		return err
	})
}

// InsertEvent archives an accepted position event. Duplicate IDs are
// ignored; the track store has already deduplicated, so a conflict
// here only occurs on redelivery after a crash.
func (s *Store) InsertEvent(ctx context.Context, ev models.PositionEvent) error {
	return s.write("position_events", func() error {
		_, err := s.conn.ExecContext(ctx, `
			INSERT INTO position_events (id, voyage_id, ts, lat, lon, speed_knots, heading_deg, kind, seq)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO NOTHING`,
			ev.ID, ev.VoyageID, ev.Timestamp, ev.Position.Lat, ev.Position.Lon,
			ev.SpeedKnots, ev.HeadingDeg, string(ev.Kind), ev.Seq)
		return err
	})
}

// UpsertAlert writes the alert row, replacing any previous state.
func (s *Store) UpsertAlert(ctx context.Context, a models.Alert) error {
	return s.write("alerts", func() error {
		_, err := s.conn.ExecContext(ctx, `
			INSERT INTO alerts (id, voyage_id, zone_id, severity, status, created_at, last_updated_at, resolved_at, triggering_event_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				status          = excluded.status,
				last_updated_at = excluded.last_updated_at,
				resolved_at     = excluded.resolved_at`,
			a.ID, a.VoyageID, a.ZoneID, string(a.Severity), string(a.Status),
			a.CreatedAt, a.LastUpdatedAt, nullableTime(a.ResolvedAt), a.TriggeringEventID)
		return err
	})
}

// OnAlert implements alerts.Listener, persisting every alert
// transition. Errors are logged, not returned; the engine's listener
// path must not fail.
func (s *Store) OnAlert(alert models.Alert, transition alerts.Transition) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := s.UpsertAlert(ctx, alert); err != nil {
		logging.Error().Err(err).
			Str("alert_id", alert.ID).
			Str("transition", string(transition)).
			Msg("Failed to archive alert transition")
	}
}

// AlertHistory returns all archived alerts for a voyage, oldest
// first. Includes resolved and expired alerts that the in-memory
// engine may have already dropped.
func (s *Store) AlertHistory(ctx context.Context, voyageID string) ([]models.Alert, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, voyage_id, zone_id, severity, status, created_at, last_updated_at, resolved_at, triggering_event_id
		FROM alerts WHERE voyage_id = ? ORDER BY created_at`, voyageID)
	if err != nil {
		return nil, fmt.Errorf("query alert history: %w", err)
	}
	defer rows.Close()

	var out []models.Alert
	for rows.Next() {
		var (
			a          models.Alert
			severity   string
			status     string
			resolvedAt sql.NullTime
		)
		if err := rows.Scan(&a.ID, &a.VoyageID, &a.ZoneID, &severity, &status,
			&a.CreatedAt, &a.LastUpdatedAt, &resolvedAt, &a.TriggeringEventID); err != nil {
			return nil, fmt.Errorf("scan alert row: %w", err)
		}
		a.Severity = models.Severity(severity)
		a.Status = models.AlertStatus(status)
		if resolvedAt.Valid {
			t := resolvedAt.Time
			a.ResolvedAt = &t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// EventCount returns the number of archived events for a voyage.
func (s *Store) EventCount(ctx context.Context, voyageID string) (int64, error) {
	var n int64
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM position_events WHERE voyage_id = ?`, voyageID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
