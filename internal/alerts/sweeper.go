// Pelorus - Voyage Tracking and Maritime Risk-Zone Alerting
// Copyright 2026 Pelorus Maritime
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pelorus-maritime/pelorus

package alerts

import (
	"context"
	"time"

	"github.com/pelorus-maritime/pelorus/internal/logging"
)

// Sweeper drives the periodic expiry sweep. It implements
// suture.Service so the supervision tree owns its lifecycle and
// restarts it on failure.
type Sweeper struct {
	engine   *Engine
	interval time.Duration
}

// NewSweeper creates a sweeper ticking at the given interval.
func NewSweeper(engine *Engine, interval time.Duration) *Sweeper {
	return &Sweeper{engine: engine, interval: interval}
}

// Serve runs the sweep loop until the context is cancelled. The sweep
// body is idempotent, so a restart mid-interval loses nothing.
func (s *Sweeper) Serve(ctx context.Context) error {
	logging.Info().Dur("interval", s.interval).Msg("Alert expiry sweeper started")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Alert expiry sweeper stopping")
			return ctx.Err()
		case <-ticker.C:
			if n := s.engine.Sweep(time.Now()); n > 0 {
				logging.Info().Int("expired", n).Msg("Expiry sweep completed")
			}
		}
	}
}

// String names the service in supervisor logs.
func (s *Sweeper) String() string { return "alert-sweeper" }
