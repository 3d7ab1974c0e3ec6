// Pelorus - Voyage Tracking and Maritime Risk-Zone Alerting
// Copyright 2026 Pelorus Maritime
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pelorus-maritime/pelorus

// Package api exposes the HTTP surface: event intake, voyage and zone
// administration, alert queries and transitions, analytics, and the
// live WebSocket feed.
package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pelorus-maritime/pelorus/internal/alerts"
	"github.com/pelorus-maritime/pelorus/internal/analytics"
	"github.com/pelorus-maritime/pelorus/internal/config"
	"github.com/pelorus-maritime/pelorus/internal/geo"
	"github.com/pelorus-maritime/pelorus/internal/ingest"
	"github.com/pelorus-maritime/pelorus/internal/models"
	"github.com/pelorus-maritime/pelorus/internal/pipeline"
	"github.com/pelorus-maritime/pelorus/internal/track"
	"github.com/pelorus-maritime/pelorus/internal/zones"
)

var validate = validator.New()

// AlertArchive reads historical alerts from the durable store. Nil
// when the archive is disabled; queries then fall back to the
// in-memory engine.
type AlertArchive interface {
	AlertHistory(ctx context.Context, voyageID string) ([]models.Alert, error)
}

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	cfg       config.APIConfig
	tracks    *track.Store
	zones     *zones.Index
	alerts    *alerts.Engine
	analytics *analytics.Aggregator
	proc      *pipeline.Processor
	publisher message.Publisher
	archive   AlertArchive
}

// NewHandlers wires the handler set. publisher feeds the batch intake
// endpoint; archive may be nil.
func NewHandlers(
	cfg config.APIConfig,
	tracks *track.Store,
	zoneIndex *zones.Index,
	engine *alerts.Engine,
	agg *analytics.Aggregator,
	proc *pipeline.Processor,
	publisher message.Publisher,
	archive AlertArchive,
) *Handlers {
	return &Handlers{
		cfg:       cfg,
		tracks:    tracks,
		zones:     zoneIndex,
		alerts:    engine,
		analytics: agg,
		proc:      proc,
		publisher: publisher,
		archive:   archive,
	}
}

// --- event intake ---

type eventRequest struct {
	ID         string    `json:"id"`
	VoyageID   string    `json:"voyage_id" validate:"required"`
	Timestamp  time.Time `json:"timestamp" validate:"required"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	SpeedKnots float64   `json:"speed_knots"`
	HeadingDeg float64   `json:"heading_deg"`
	Kind       string    `json:"kind" validate:"required"`
}

func (r eventRequest) model() models.PositionEvent {
	return models.PositionEvent{
		ID:         r.ID,
		VoyageID:   r.VoyageID,
		Timestamp:  r.Timestamp,
		Position:   geo.Point{Lat: r.Lat, Lon: r.Lon},
		SpeedKnots: r.SpeedKnots,
		HeadingDeg: r.HeadingDeg,
		Kind:       models.EventKind(r.Kind),
	}
}

type eventResponse struct {
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
	EventID string `json:"event_id,omitempty"`
}

func ingestStatus(o ingest.Outcome) int {
	switch o {
	case ingest.OutcomeAccepted:
		return http.StatusAccepted
	case ingest.OutcomeVoyageNotFound:
		return http.StatusNotFound
	case ingest.OutcomeRejectedInvalid:
		return http.StatusUnprocessableEntity
	default: // stale, duplicate
		return http.StatusConflict
	}
}

// IntakeEvent runs a position event through the full intake path
// synchronously and reports the decision.
func (h *Handlers) IntakeEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	decision, stored := h.proc.Process(req.model())

	resp := eventResponse{
		Outcome: string(decision.Outcome),
		Reason:  decision.Reason,
	}
	if decision.Accepted() {
		resp.EventID = stored.ID
	}
	respondJSON(w, ingestStatus(decision.Outcome), resp)
}

type batchItemResponse struct {
	Index  int    `json:"index"`
	Queued bool   `json:"queued"`
	Error  string `json:"error,omitempty"`
}

type batchResponse struct {
	Queued int                 `json:"queued"`
	Items  []batchItemResponse `json:"items"`
}

// IntakeEventsBatch queues a batch of position events on the event
// bus for the feed-adapter path. Only structurally invalid events are
// rejected here; intake evaluation happens in the pipeline consumer,
// so individual outcomes are not reported.
func (h *Handlers) IntakeEventsBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []eventRequest
	if !decodeJSON(w, r, &reqs) {
		return
	}

	resp := batchResponse{Items: make([]batchItemResponse, 0, len(reqs))}
	for i, req := range reqs {
		if err := validate.Struct(req); err != nil {
			resp.Items = append(resp.Items, batchItemResponse{Index: i, Error: err.Error()})
			continue
		}
		if err := pipeline.PublishEvent(h.publisher, req.model()); err != nil {
			respondError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		resp.Queued++
		resp.Items = append(resp.Items, batchItemResponse{Index: i, Queued: true})
	}
	respondJSON(w, http.StatusAccepted, resp)
}

// --- voyages ---

type voyageRequest struct {
	ID                string `json:"id" validate:"required"`
	VesselID          string `json:"vessel_id" validate:"required"`
	OriginPortID      string `json:"origin_port_id"`
	DestinationPortID string `json:"destination_port_id"`
}

func (h *Handlers) ListVoyages(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.tracks.Voyages())
}

func (h *Handlers) RegisterVoyage(w http.ResponseWriter, r *http.Request) {
	var req voyageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.tracks.RegisterVoyage(models.Voyage{
		ID:                req.ID,
		VesselID:          req.VesselID,
		OriginPortID:      req.OriginPortID,
		DestinationPortID: req.DestinationPortID,
	})
	switch {
	case errors.Is(err, track.ErrVoyageExists):
		respondError(w, http.StatusConflict, err.Error())
	case err != nil:
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		v, _ := h.tracks.Voyage(req.ID)
		respondJSON(w, http.StatusCreated, v)
	}
}

func (h *Handlers) GetVoyage(w http.ResponseWriter, r *http.Request) {
	v, err := h.tracks.Voyage(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, v)
}

func (h *Handlers) CancelVoyage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.tracks.CancelVoyage(id); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	v, _ := h.tracks.Voyage(id)
	respondJSON(w, http.StatusOK, v)
}

// CurrentTrack returns the voyage's latest known position.
func (h *Handlers) CurrentTrack(w http.ResponseWriter, r *http.Request) {
	state, err := h.tracks.CurrentState(chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, track.ErrVoyageNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, track.ErrNoData):
		respondError(w, http.StatusNotFound, err.Error())
	case err != nil:
		respondError(w, http.StatusInternalServerError, err.Error())
	default:
		respondJSON(w, http.StatusOK, state)
	}
}

// History returns the voyage's events in track order, optionally
// bounded by from/to (RFC 3339) and capped by limit.
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	var from, to time.Time
	var err error
	if s := r.URL.Query().Get("from"); s != "" {
		if from, err = time.Parse(time.RFC3339, s); err != nil {
			respondError(w, http.StatusBadRequest, "invalid from: "+err.Error())
			return
		}
	}
	if s := r.URL.Query().Get("to"); s != "" {
		if to, err = time.Parse(time.RFC3339, s); err != nil {
			respondError(w, http.StatusBadRequest, "invalid to: "+err.Error())
			return
		}
	}
	limit := h.cfg.DefaultPageSize
	if s := r.URL.Query().Get("limit"); s != "" {
		limit, err = strconv.Atoi(s)
		if err != nil || limit < 1 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if limit > h.cfg.MaxPageSize {
			limit = h.cfg.MaxPageSize
		}
	}

	seq, err := h.tracks.History(chi.URLParam(r, "id"), from, to)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	events := make([]models.PositionEvent, 0, limit)
	for ev := range seq {
		events = append(events, ev)
		if len(events) >= limit {
			break
		}
	}
	respondJSON(w, http.StatusOK, events)
}

// VoyageAlerts returns the voyage's archived alert history, falling
// back to the in-memory engine when no archive is configured.
func (h *Handlers) VoyageAlerts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.archive != nil {
		history, err := h.archive.AlertHistory(r.Context(), id)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondJSON(w, http.StatusOK, history)
		return
	}
	respondJSON(w, http.StatusOK, h.alerts.Alerts(alerts.Filter{VoyageID: id}))
}

// --- zones ---

type zoneRequest struct {
	ID       string       `json:"id" validate:"required"`
	Name     string       `json:"name" validate:"required"`
	Geometry geo.Geometry `json:"geometry"`
	Severity string       `json:"severity" validate:"required,oneof=low medium high critical"`

	ActiveFrom  *time.Time `json:"active_from"`
	ActiveUntil *time.Time `json:"active_until"`
	Enabled     bool       `json:"enabled"`
}

type zoneLoadResponse struct {
	ZoneID   string `json:"zone_id"`
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

func (h *Handlers) ListZones(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.zones.Zones())
}

// LoadZones replaces the active zone set. Each zone is validated
// independently; rejected zones are reported and left out of the new
// set rather than failing the whole load.
func (h *Handlers) LoadZones(w http.ResponseWriter, r *http.Request) {
	var reqs []zoneRequest
	if !decodeJSON(w, r, &reqs) {
		return
	}

	zoneModels := make([]models.RiskZone, 0, len(reqs))
	var resp []zoneLoadResponse
	for _, zr := range reqs {
		if err := validate.Struct(zr); err != nil {
			resp = append(resp, zoneLoadResponse{ZoneID: zr.ID, Error: err.Error()})
			continue
		}
		zoneModels = append(zoneModels, models.RiskZone{
			ID:          zr.ID,
			Name:        zr.Name,
			Geometry:    zr.Geometry,
			Severity:    models.Severity(zr.Severity),
			ActiveFrom:  zr.ActiveFrom,
			ActiveUntil: zr.ActiveUntil,
			Enabled:     zr.Enabled,
		})
	}

	for _, res := range h.zones.Load(zoneModels) {
		out := zoneLoadResponse{ZoneID: res.ZoneID, Accepted: res.Accepted}
		if res.Err != nil {
			out.Error = res.Err.Error()
		}
		resp = append(resp, out)
	}
	if resp == nil {
		resp = []zoneLoadResponse{}
	}
	respondJSON(w, http.StatusOK, resp)
}

// --- alerts ---

func (h *Handlers) ListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := alerts.Filter{
		VoyageID: q.Get("voyage_id"),
		ZoneID:   q.Get("zone_id"),
		Severity: models.Severity(q.Get("severity")),
		Status:   models.AlertStatus(q.Get("status")),
		LiveOnly: q.Get("live") == "true",
	}
	respondJSON(w, http.StatusOK, h.alerts.Alerts(f))
}

func (h *Handlers) GetAlert(w http.ResponseWriter, r *http.Request) {
	a, ok := h.alerts.Alert(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusNotFound, "alert not found")
		return
	}
	respondJSON(w, http.StatusOK, a)
}

func (h *Handlers) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	h.applyAlertOp(w, chi.URLParam(r, "id"), h.alerts.Acknowledge)
}

func (h *Handlers) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	h.applyAlertOp(w, chi.URLParam(r, "id"), h.alerts.Resolve)
}

func (h *Handlers) applyAlertOp(w http.ResponseWriter, id string, op func(string) alerts.OpResult) {
	switch op(id) {
	case alerts.OpNotFound:
		respondError(w, http.StatusNotFound, "alert not found")
	case alerts.OpInvalidTransition:
		respondError(w, http.StatusConflict, "invalid alert transition")
	default:
		a, _ := h.alerts.Alert(id)
		respondJSON(w, http.StatusOK, a)
	}
}

// --- analytics ---

func (h *Handlers) AnalyticsSnapshot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.analytics.Snapshot())
}

type dashboardResponse struct {
	Snapshot   models.AnalyticsSnapshot `json:"snapshot"`
	LiveAlerts []models.Alert           `json:"live_alerts"`
	Voyages    map[string]int           `json:"voyages_by_status"`
	ZoneCount  int                      `json:"zone_count"`
}

// Dashboard bundles the operator landing-page view: the analytics
// snapshot, live alerts newest first, and voyage/zone counts.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	live := h.alerts.Alerts(alerts.Filter{LiveOnly: true})
	sort.Slice(live, func(i, j int) bool {
		return live[i].CreatedAt.After(live[j].CreatedAt)
	})
	if len(live) > h.cfg.DefaultPageSize {
		live = live[:h.cfg.DefaultPageSize]
	}

	byStatus := make(map[string]int)
	for _, v := range h.tracks.Voyages() {
		byStatus[string(v.Status)]++
	}

	respondJSON(w, http.StatusOK, dashboardResponse{
		Snapshot:   h.analytics.Snapshot(),
		LiveAlerts: live,
		Voyages:    byStatus,
		ZoneCount:  h.zones.Len(),
	})
}

// --- health ---

func (h *Handlers) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) HealthReady(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
