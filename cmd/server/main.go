// Pelorus - Voyage Tracking and Maritime Risk-Zone Alerting
// Copyright 2026 Pelorus Maritime
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pelorus-maritime/pelorus

// Package main is the entry point for the Pelorus server.
//
// Pelorus ingests vessel position events, maintains per-voyage
// tracks, matches positions against administered risk zones, and
// raises deduplicated alerts with a full lifecycle (open,
// acknowledged, resolved, expired). Operators consume the state over
// a REST API, a live WebSocket feed, and Prometheus metrics.
//
// Startup order:
//
//  1. Configuration (koanf: defaults, optional YAML, environment)
//  2. Logging (zerolog)
//  3. DuckDB archive
//  4. Tracking core: track store, zone index, alert engine, analytics
//  5. Event pipeline (Watermill; GoChannel or NATS JetStream)
//  6. Supervision tree (suture) with pipeline, sweeper, hub, and
//     HTTP server as supervised services
//
// Shutdown on SIGINT/SIGTERM cancels the tree's context; the HTTP
// server drains in-flight requests and the pipeline router closes
// its subscriptions before the process exits.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pelorus-maritime/pelorus/internal/alerts"
	"github.com/pelorus-maritime/pelorus/internal/analytics"
	"github.com/pelorus-maritime/pelorus/internal/api"
	"github.com/pelorus-maritime/pelorus/internal/config"
	"github.com/pelorus-maritime/pelorus/internal/database"
	"github.com/pelorus-maritime/pelorus/internal/ingest"
	"github.com/pelorus-maritime/pelorus/internal/logging"
	"github.com/pelorus-maritime/pelorus/internal/models"
	"github.com/pelorus-maritime/pelorus/internal/pipeline"
	"github.com/pelorus-maritime/pelorus/internal/supervisor"
	"github.com/pelorus-maritime/pelorus/internal/track"
	ws "github.com/pelorus-maritime/pelorus/internal/websocket"
	"github.com/pelorus-maritime/pelorus/internal/zones"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Dur("staleness_tolerance", cfg.Engine.StalenessTolerance).
		Dur("alert_cooldown", cfg.Engine.AlertCooldown).
		Msg("Starting Pelorus")

	archive, err := database.New(cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open archive database")
	}
	defer func() {
		if err := archive.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing archive database")
		}
	}()

	// Tracking core.
	tracks := track.NewStore()
	zoneIndex := zones.NewIndex()
	ingestor := ingest.New(cfg.Engine.StalenessTolerance)
	engine := alerts.NewEngine(alerts.Config{
		Cooldown:    cfg.Engine.AlertCooldown,
		MaxAlertAge: cfg.Engine.MaxAlertAge,
	})
	agg := analytics.NewAggregator(analytics.Config{Window: cfg.Engine.AnalyticsWindow})

	hub := ws.NewHub()
	engine.AddListener(agg)
	engine.AddListener(archive)
	engine.AddListener(hub)

	var notifier *alerts.WebhookNotifier
	if cfg.Notify.WebhookURL != "" {
		notifier = alerts.NewWebhookNotifier(alerts.WebhookConfig{
			WebhookURL:    cfg.Notify.WebhookURL,
			Timeout:       cfg.Notify.Timeout,
			RatePerMinute: cfg.Notify.RatePerMinute,
			MinSeverity:   models.Severity(cfg.Notify.MinSeverity),
		})
		engine.AddListener(notifier)
	}

	// Event pipeline.
	wmLogger := pipeline.NewLoggerAdapter()
	transport, err := pipeline.NewTransport(cfg.NATS, wmLogger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create event transport")
	}
	defer func() {
		if err := transport.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event transport")
		}
	}()

	proc := pipeline.NewProcessor(tracks, ingestor, zoneIndex, engine, agg, archive)
	router, err := pipeline.NewRouter(cfg.NATS, transport, proc, wmLogger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create pipeline router")
	}

	// HTTP surface.
	handlers := api.NewHandlers(cfg.API, tracks, zoneIndex, engine, agg, proc, transport.Publisher, archive)
	httpServer := api.NewServer(cfg.Server, api.NewRouter(handlers, hub))

	// Supervision tree.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddEngineService(pipeline.NewService(router))
	tree.AddEngineService(alerts.NewSweeper(engine, cfg.Engine.SweepInterval))
	if notifier != nil {
		tree.AddEngineService(notifier)
	}
	tree.AddFeedService(hub)
	tree.AddAPIService(httpServer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := tree.ServeBackground(ctx)
	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("Shutting down")
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			logging.Error().Err(err).Msg("Supervisor tree terminated")
		}
	}

	logging.Info().Msg("Pelorus stopped")
}
