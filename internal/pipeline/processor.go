// Pelorus - Voyage Tracking and Maritime Risk-Zone Alerting
// Copyright 2026 Pelorus Maritime
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pelorus-maritime/pelorus

// Package pipeline moves position events from the API edge to the
// tracking core over a Watermill message bus. The transport is
// in-process by default and NATS JetStream when configured; the
// processing semantics are identical on both.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/pelorus-maritime/pelorus/internal/alerts"
	"github.com/pelorus-maritime/pelorus/internal/analytics"
	"github.com/pelorus-maritime/pelorus/internal/ingest"
	"github.com/pelorus-maritime/pelorus/internal/logging"
	"github.com/pelorus-maritime/pelorus/internal/metrics"
	"github.com/pelorus-maritime/pelorus/internal/models"
	"github.com/pelorus-maritime/pelorus/internal/track"
	"github.com/pelorus-maritime/pelorus/internal/zones"
)

const archiveTimeout = 5 * time.Second

// Archive is the durable store behind the processor. Archive failures
// never fail event processing; the in-memory state is authoritative.
type Archive interface {
	InsertEvent(ctx context.Context, ev models.PositionEvent) error
	UpsertVoyage(ctx context.Context, v models.Voyage) error
}

// Processor consumes position events and drives the tracking core:
// intake evaluation, track append, zone matching, alert transitions,
// and analytics counters, in that order.
type Processor struct {
	tracks    *track.Store
	ingestor  *ingest.Ingestor
	zones     *zones.Index
	alerts    *alerts.Engine
	analytics *analytics.Aggregator
	archive   Archive
}

// NewProcessor wires the processor. archive may be nil.
func NewProcessor(
	tracks *track.Store,
	ingestor *ingest.Ingestor,
	zoneIndex *zones.Index,
	engine *alerts.Engine,
	agg *analytics.Aggregator,
	archive Archive,
) *Processor {
	return &Processor{
		tracks:    tracks,
		ingestor:  ingestor,
		zones:     zoneIndex,
		alerts:    engine,
		analytics: agg,
		archive:   archive,
	}
}

// Handle processes one position event message. A malformed payload
// returns an error so the router's retry and poison queue take over;
// a rejected event (stale, duplicate, invalid, unknown voyage) is a
// terminal outcome and acks cleanly.
func (p *Processor) Handle(msg *message.Message) error {
	var ev models.PositionEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return fmt.Errorf("decode position event: %w", err)
	}
	p.Process(ev)
	return nil
}

// Process runs one event through the full intake path and returns
// the decision plus the stored event (meaningful only on accept).
// Called by the message handler and directly by the synchronous API
// intake.
func (p *Processor) Process(ev models.PositionEvent) (ingest.Decision, models.PositionEvent) {
	start := time.Now()

	decision, stored := p.tracks.Ingest(&ev, p.ingestor)
	metrics.RecordIngestOutcome(string(decision.Outcome), time.Since(start))

	if !decision.Accepted() {
		logging.Debug().
			Str("voyage_id", ev.VoyageID).
			Str("outcome", string(decision.Outcome)).
			Str("reason", decision.Reason).
			Msg("Position event rejected")
		return decision, stored
	}

	hits := p.zones.Query(stored.Position, stored.Timestamp)
	p.alerts.HandleEvent(stored, hits)
	p.analytics.EventAccepted(stored)
	p.archiveEvent(stored)

	logging.Debug().
		Str("voyage_id", stored.VoyageID).
		Str("event_id", stored.ID).
		Int("zone_hits", len(hits)).
		Msg("Position event accepted")
	return decision, stored
}

// archiveEvent persists the accepted event and, on a lifecycle event,
// the updated voyage row. Failures are logged; redelivered events
// would be rejected as duplicates upstream, so nacking gains nothing.
func (p *Processor) archiveEvent(ev models.PositionEvent) {
	if p.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	if err := p.archive.InsertEvent(ctx, ev); err != nil {
		logging.Error().Err(err).
			Str("event_id", ev.ID).
			Msg("Failed to archive position event")
	}

	if ev.Kind == models.KindDeparture || ev.Kind == models.KindArrival {
		v, err := p.tracks.Voyage(ev.VoyageID)
		if err != nil {
			return
		}
		if err := p.archive.UpsertVoyage(ctx, v); err != nil {
			logging.Error().Err(err).
				Str("voyage_id", v.ID).
				Msg("Failed to archive voyage state")
		}
	}
}

// PublishEvent encodes the event and publishes it to the positions
// topic. Event IDs are assigned at intake; the message UUID is fresh
// per publish.
func PublishEvent(pub message.Publisher, ev models.PositionEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode position event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := pub.Publish(TopicPositions, msg); err != nil {
		return fmt.Errorf("publish position event: %w", err)
	}
	return nil
}
