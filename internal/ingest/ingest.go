// Pelorus - Voyage Tracking and Maritime Risk-Zone Alerting
// Copyright 2026 Pelorus Maritime
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pelorus-maritime/pelorus

// Package ingest validates and orders incoming position events
// against a read-only view of the voyage's track. The ingestor is
// stateless; it decides, and the track store applies.
package ingest

import (
	"fmt"
	"time"

	"github.com/pelorus-maritime/pelorus/internal/models"
)

// Outcome classifies an intake decision. Rejections are expected,
// non-exceptional outcomes; they are reported to the caller and
// counted, never raised as errors.
type Outcome string

const (
	OutcomeAccepted          Outcome = "accepted"
	OutcomeRejectedStale     Outcome = "rejected_stale"
	OutcomeRejectedDuplicate Outcome = "rejected_duplicate"
	OutcomeRejectedInvalid   Outcome = "rejected_invalid"
	OutcomeVoyageNotFound    Outcome = "voyage_not_found"
)

// Decision is the result of evaluating one event.
type Decision struct {
	Outcome Outcome

	// Reason is a short human-readable explanation for rejected
	// outcomes, used in logs and API responses. Empty when accepted.
	Reason string
}

// Accepted reports whether the event should be appended.
func (d Decision) Accepted() bool {
	return d.Outcome == OutcomeAccepted
}

// TrackView is the read-only snapshot of a voyage's track the
// ingestor needs for its ordering decisions. The track store's
// per-voyage state implements it.
type TrackView interface {
	// HeadTimestamp returns the newest accepted event timestamp and
	// false when the track is empty.
	HeadTimestamp() (time.Time, bool)

	// HasEvent reports whether an event with the same timestamp and
	// kind was already accepted.
	HasEvent(ts time.Time, kind models.EventKind) bool
}

// Ingestor evaluates events against the staleness and duplicate
// policy. Safe for concurrent use.
type Ingestor struct {
	tolerance time.Duration
}

// New creates an Ingestor with the given staleness tolerance. An
// event whose timestamp regresses behind the track head by more than
// the tolerance is dropped rather than re-ordered; the engine favors
// monotonic simplicity over retroactive re-evaluation.
func New(tolerance time.Duration) *Ingestor {
	return &Ingestor{tolerance: tolerance}
}

// Evaluate decides the intake outcome for one event. view is nil when
// the voyage is unknown.
func (i *Ingestor) Evaluate(ev *models.PositionEvent, view TrackView) Decision {
	if reason := validate(ev); reason != "" {
		return Decision{Outcome: OutcomeRejectedInvalid, Reason: reason}
	}

	if view == nil {
		return Decision{
			Outcome: OutcomeVoyageNotFound,
			Reason:  fmt.Sprintf("unknown voyage %q", ev.VoyageID),
		}
	}

	if head, ok := view.HeadTimestamp(); ok {
		if ev.Timestamp.Before(head.Add(-i.tolerance)) {
			return Decision{
				Outcome: OutcomeRejectedStale,
				Reason: fmt.Sprintf("timestamp %s behind head %s by more than %s",
					ev.Timestamp.Format(time.RFC3339), head.Format(time.RFC3339), i.tolerance),
			}
		}
	}

	if view.HasEvent(ev.Timestamp, ev.Kind) {
		return Decision{
			Outcome: OutcomeRejectedDuplicate,
			Reason:  fmt.Sprintf("duplicate (voyage, timestamp, kind) at %s", ev.Timestamp.Format(time.RFC3339)),
		}
	}

	return Decision{Outcome: OutcomeAccepted}
}

// validate returns a rejection reason for malformed events, or "".
func validate(ev *models.PositionEvent) string {
	switch {
	case ev == nil:
		return "nil event"
	case ev.VoyageID == "":
		return "missing voyage id"
	case ev.Timestamp.IsZero():
		return "missing timestamp"
	case !ev.Kind.Valid():
		return fmt.Sprintf("unknown event kind %q", ev.Kind)
	case !ev.Position.Valid():
		return fmt.Sprintf("coordinates out of range (%v, %v)", ev.Position.Lat, ev.Position.Lon)
	}
	return ""
}
