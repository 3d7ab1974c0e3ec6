// Pelorus - Voyage Tracking and Maritime Risk-Zone Alerting
// Copyright 2026 Pelorus Maritime
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pelorus-maritime/pelorus

// Package track owns per-voyage track state: the ordered history of
// accepted position events, the cached current state, and the voyage
// status transitions driven by accepted events.
//
// Concurrency model: a read-write mutex guards the voyage map; each
// voyage carries its own lock, so appends on the same voyage are
// serialized while different voyages proceed independently. No global
// lock is ever held across an append.
package track

import (
	"errors"
	"iter"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pelorus-maritime/pelorus/internal/ingest"
	"github.com/pelorus-maritime/pelorus/internal/models"
)

var (
	// ErrVoyageNotFound is returned for operations on unknown voyage ids.
	ErrVoyageNotFound = errors.New("track: voyage not found")

	// ErrVoyageExists is returned when registering a duplicate voyage id.
	ErrVoyageExists = errors.New("track: voyage already registered")

	// ErrNoData is returned by CurrentState before any event is accepted.
	ErrNoData = errors.New("track: no position data yet")

	// ErrInvalidVoyage is returned when registering a voyage without an id.
	ErrInvalidVoyage = errors.New("track: voyage id required")
)

// eventKey identifies the (timestamp, kind) duplicate tuple within
// one voyage.
type eventKey struct {
	tsNano int64
	kind   models.EventKind
}

// voyageTrack is the state for one voyage. Guarded by its own mutex.
type voyageTrack struct {
	mu     sync.RWMutex
	voyage models.Voyage

	// events is kept sorted by (timestamp, seq). The tail is the
	// cached current state.
	events []models.PositionEvent
	seen   map[eventKey]struct{}
}

// Store holds all voyage tracks.
type Store struct {
	mu     sync.RWMutex
	tracks map[string]*voyageTrack

	// seq is the global ingestion sequence, assigned at accept time
	// and used to break timestamp ties.
	seq atomic.Uint64
}

// NewStore creates an empty track store.
func NewStore() *Store {
	return &Store{tracks: make(map[string]*voyageTrack)}
}

// RegisterVoyage adds a voyage to the store. Status defaults to
// scheduled when unset.
func (s *Store) RegisterVoyage(v models.Voyage) error {
	if v.ID == "" {
		return ErrInvalidVoyage
	}
	if v.Status == "" {
		v.Status = models.VoyageScheduled
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tracks[v.ID]; ok {
		return ErrVoyageExists
	}
	s.tracks[v.ID] = &voyageTrack{
		voyage: v,
		seen:   make(map[eventKey]struct{}),
	}
	return nil
}

// Voyage returns a copy of the voyage record.
func (s *Store) Voyage(id string) (models.Voyage, error) {
	t := s.track(id)
	if t == nil {
		return models.Voyage{}, ErrVoyageNotFound
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.voyage, nil
}

// Voyages returns a copy of every registered voyage, unordered.
func (s *Store) Voyages() []models.Voyage {
	s.mu.RLock()
	tracks := make([]*voyageTrack, 0, len(s.tracks))
	for _, t := range s.tracks {
		tracks = append(tracks, t)
	}
	s.mu.RUnlock()

	out := make([]models.Voyage, 0, len(tracks))
	for _, t := range tracks {
		t.mu.RLock()
		out = append(out, t.voyage)
		t.mu.RUnlock()
	}
	return out
}

// CancelVoyage transitions a scheduled or in-progress voyage to
// cancelled. Completed voyages cannot be cancelled.
func (s *Store) CancelVoyage(id string) error {
	t := s.track(id)
	if t == nil {
		return ErrVoyageNotFound
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.voyage.Status {
	case models.VoyageScheduled, models.VoyageInProgress:
		t.voyage.Status = models.VoyageCancelled
		return nil
	default:
		return errors.New("track: voyage is not cancellable in status " + string(t.voyage.Status))
	}
}

// Ingest evaluates the event under the voyage's lock and, when
// accepted, appends it, updates the cached current state, and applies
// any implied voyage status transition. Holding the lock across
// decision and append is what makes the per-voyage ordering invariant
// hold under concurrent producers.
//
// The returned event is the stored copy (id and sequence assigned)
// and is only meaningful when the decision is accepted.
func (s *Store) Ingest(ev *models.PositionEvent, ing *ingest.Ingestor) (ingest.Decision, models.PositionEvent) {
	if ev == nil {
		return ing.Evaluate(nil, nil), models.PositionEvent{}
	}

	t := s.track(ev.VoyageID)
	if t == nil {
		// Run validation anyway so a malformed event on an unknown
		// voyage reports rejected_invalid, not voyage_not_found.
		return ing.Evaluate(ev, nil), models.PositionEvent{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	decision := ing.Evaluate(ev, (*lockedView)(t))
	if !decision.Accepted() {
		return decision, models.PositionEvent{}
	}

	stored := *ev
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	stored.Seq = s.seq.Add(1)

	t.insert(stored)
	t.applyTransition(stored)

	return decision, stored
}

// CurrentState returns the latest accepted position event.
func (s *Store) CurrentState(voyageID string) (models.PositionEvent, error) {
	t := s.track(voyageID)
	if t == nil {
		return models.PositionEvent{}, ErrVoyageNotFound
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.events) == 0 {
		return models.PositionEvent{}, ErrNoData
	}
	return t.events[len(t.events)-1], nil
}

// History returns a lazy, restartable sequence of the voyage's events
// with timestamps in [from, to], ascending. Zero bounds are open. The
// sequence iterates over a snapshot; appends after the call do not
// appear.
func (s *Store) History(voyageID string, from, to time.Time) (iter.Seq[models.PositionEvent], error) {
	t := s.track(voyageID)
	if t == nil {
		return nil, ErrVoyageNotFound
	}

	t.mu.RLock()
	snapshot := make([]models.PositionEvent, len(t.events))
	copy(snapshot, t.events)
	t.mu.RUnlock()

	return func(yield func(models.PositionEvent) bool) {
		for _, ev := range snapshot {
			if !from.IsZero() && ev.Timestamp.Before(from) {
				continue
			}
			if !to.IsZero() && ev.Timestamp.After(to) {
				return
			}
			if !yield(ev) {
				return
			}
		}
	}, nil
}

// track returns the voyage's state or nil.
func (s *Store) track(id string) *voyageTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tracks[id]
}

// lockedView adapts a voyageTrack whose lock is already held into the
// ingestor's read-only view.
type lockedView voyageTrack

func (v *lockedView) HeadTimestamp() (time.Time, bool) {
	if len(v.events) == 0 {
		return time.Time{}, false
	}
	return v.events[len(v.events)-1].Timestamp, true
}

func (v *lockedView) HasEvent(ts time.Time, kind models.EventKind) bool {
	_, ok := v.seen[eventKey{tsNano: ts.UnixNano(), kind: kind}]
	return ok
}

// insert places the event at its sorted position. The common case is
// a tail append; a within-tolerance regression binary-searches its
// slot so history stays non-decreasing by (timestamp, seq).
func (t *voyageTrack) insert(ev models.PositionEvent) {
	t.seen[eventKey{tsNano: ev.Timestamp.UnixNano(), kind: ev.Kind}] = struct{}{}

	n := len(t.events)
	if n == 0 || !ev.Timestamp.Before(t.events[n-1].Timestamp) {
		t.events = append(t.events, ev)
		return
	}

	i := sort.Search(n, func(i int) bool {
		return t.events[i].Timestamp.After(ev.Timestamp)
	})
	t.events = append(t.events, models.PositionEvent{})
	copy(t.events[i+1:], t.events[i:])
	t.events[i] = ev
}

// applyTransition updates voyage status for kinds that imply one.
func (t *voyageTrack) applyTransition(ev models.PositionEvent) {
	switch ev.Kind {
	case models.KindDeparture:
		if t.voyage.Status == models.VoyageScheduled {
			t.voyage.Status = models.VoyageInProgress
			ts := ev.Timestamp
			t.voyage.StartedAt = &ts
		}
	case models.KindArrival:
		if t.voyage.Status == models.VoyageScheduled || t.voyage.Status == models.VoyageInProgress {
			t.voyage.Status = models.VoyageCompleted
			ts := ev.Timestamp
			t.voyage.EndedAt = &ts
		}
	}
}
