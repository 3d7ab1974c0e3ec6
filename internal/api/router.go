// Pelorus - Voyage Tracking and Maritime Risk-Zone Alerting
// Copyright 2026 Pelorus Maritime
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pelorus-maritime/pelorus

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the chi router. wsHandler serves the live alert
// feed; pass nil to disable the endpoint.
func NewRouter(h *Handlers, wsHandler http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         86400,
	}))

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/api/v1/health/live", h.HealthLive)
	r.Get("/api/v1/health/ready", h.HealthReady)

	r.Route("/api/v1", func(r chi.Router) {
		if h.cfg.RateLimitReqs > 0 {
			window := h.cfg.RateLimitWindow
			if window <= 0 {
				window = time.Minute
			}
			r.Use(httprate.Limit(
				h.cfg.RateLimitReqs,
				window,
				httprate.WithKeyFuncs(httprate.KeyByIP),
			))
		}
		r.Use(requestMetrics)

		r.Post("/events", h.IntakeEvent)
		if h.publisher != nil {
			r.Post("/events/batch", h.IntakeEventsBatch)
		}

		r.Get("/voyages", h.ListVoyages)
		r.Post("/voyages", h.RegisterVoyage)
		r.Get("/voyages/{id}", h.GetVoyage)
		r.Post("/voyages/{id}/cancel", h.CancelVoyage)
		r.Get("/voyages/{id}/track", h.CurrentTrack)
		r.Get("/voyages/{id}/history", h.History)
		r.Get("/voyages/{id}/alerts", h.VoyageAlerts)

		r.Get("/zones", h.ListZones)
		r.Put("/zones", h.LoadZones)

		r.Get("/alerts", h.ListAlerts)
		r.Get("/alerts/{id}", h.GetAlert)
		r.Post("/alerts/{id}/acknowledge", h.AcknowledgeAlert)
		r.Post("/alerts/{id}/resolve", h.ResolveAlert)

		r.Get("/analytics/snapshot", h.AnalyticsSnapshot)
		r.Get("/dashboard", h.Dashboard)

		if wsHandler != nil {
			r.Get("/ws", wsHandler.ServeHTTP)
		}
	})

	return r
}
