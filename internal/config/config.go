// Pelorus - Voyage Tracking and Maritime Risk-Zone Alerting
// Copyright 2026 Pelorus Maritime
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pelorus-maritime/pelorus

// Package config holds all application configuration, loaded with
// Koanf v2 from three layered sources:
//
//  1. Defaults: built-in sensible defaults for every setting
//  2. Config file: optional YAML file (config.yaml)
//  3. Environment variables: override any setting
//
// Config is immutable after Load() and safe for concurrent reads.
package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	NATS     NATSConfig     `koanf:"nats"`
	Engine   EngineConfig   `koanf:"engine"`
	API      APIConfig      `koanf:"api"`
	Notify   NotifyConfig   `koanf:"notify"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
//
// Environment Variables:
//   - HTTP_PORT: Listen port (default: 3857)
//   - HTTP_HOST: Bind address (default: 0.0.0.0)
//   - HTTP_TIMEOUT: Read/write timeout (default: 30s)
type ServerConfig struct {
	Port    int           `koanf:"port"`
	Host    string        `koanf:"host"`
	Timeout time.Duration `koanf:"timeout"`
}

// DatabaseConfig holds DuckDB settings for the alert and track
// archive. The engine itself runs in memory; DuckDB is the durable
// record behind the read API.
//
// Environment Variables:
//   - DUCKDB_PATH: Database file path (default: /data/pelorus.duckdb)
//   - DUCKDB_MAX_MEMORY: DuckDB memory limit (default: 2GB)
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`

	// Threads is the DuckDB worker thread count. 0 means
	// runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// NATSConfig holds event pipeline settings. When Enabled is false the
// pipeline runs on an in-process Watermill GoChannel transport, which
// is the right choice for a single-node deployment; NATS JetStream
// adds durable, horizontally consumable event delivery.
//
// Environment Variables:
//   - NATS_ENABLED: Use NATS JetStream transport (default: false)
//   - NATS_URL: NATS server URL (default: nats://127.0.0.1:4222)
type NATSConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`

	DurableName string `koanf:"durable_name"`
	QueueGroup  string `koanf:"queue_group"`

	// Router middleware tuning (Watermill Router).
	RouterRetryCount           int           `koanf:"router_retry_count"`
	RouterRetryInitialInterval time.Duration `koanf:"router_retry_initial_interval"`
	RouterThrottlePerSecond    int           `koanf:"router_throttle_per_second"`
	RouterPoisonQueueEnabled   bool          `koanf:"router_poison_queue_enabled"`
	RouterPoisonQueueTopic     string        `koanf:"router_poison_queue_topic"`
	RouterCloseTimeout         time.Duration `koanf:"router_close_timeout"`
}

// EngineConfig holds the tuning knobs of the tracking and alerting
// core. The staleness tolerance and cooldown window are operational
// constants by nature; they are configuration so deployments (and
// tests) can override them.
//
// Environment Variables:
//   - ENGINE_STALENESS_TOLERANCE: Max timestamp regression before an
//     event is rejected as stale (default: 2m)
//   - ENGINE_ALERT_COOLDOWN: Quiet period after resolution before the
//     same (voyage, zone) pair may reopen (default: 5m)
//   - ENGINE_MAX_ALERT_AGE: Age without updates after which a live
//     alert is expired by the sweep (default: 24h)
//   - ENGINE_SWEEP_INTERVAL: Expiry sweep period (default: 1m)
//   - ENGINE_ANALYTICS_WINDOW: Rolling analytics window (default: 1h)
type EngineConfig struct {
	StalenessTolerance time.Duration `koanf:"staleness_tolerance"`
	AlertCooldown      time.Duration `koanf:"alert_cooldown"`
	MaxAlertAge        time.Duration `koanf:"max_alert_age"`
	SweepInterval      time.Duration `koanf:"sweep_interval"`
	AnalyticsWindow    time.Duration `koanf:"analytics_window"`
}

// APIConfig holds API behavior settings.
//
// Environment Variables:
//   - API_DEFAULT_PAGE_SIZE: Default list page size (default: 50)
//   - API_MAX_PAGE_SIZE: Maximum list page size (default: 500)
//   - API_RATE_LIMIT_REQUESTS / API_RATE_LIMIT_WINDOW: Per-IP rate limit
//   - API_CORS_ORIGINS: Comma-separated allowed origins (default: *)
type APIConfig struct {
	DefaultPageSize int           `koanf:"default_page_size"`
	MaxPageSize     int           `koanf:"max_page_size"`
	RateLimitReqs   int           `koanf:"rate_limit_requests"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// NotifyConfig holds outbound alert notification settings. When
// WebhookURL is empty no notifications are sent.
//
// Environment Variables:
//   - NOTIFY_WEBHOOK_URL: Webhook endpoint for alert notifications
//   - NOTIFY_RATE_PER_MINUTE: Max notifications per minute (default: 30)
//   - NOTIFY_MIN_SEVERITY: Lowest severity to notify (default: low)
type NotifyConfig struct {
	WebhookURL    string        `koanf:"webhook_url"`
	Timeout       time.Duration `koanf:"timeout"`
	RatePerMinute int           `koanf:"rate_per_minute"`
	MinSeverity   string        `koanf:"min_severity"`
}

// LoggingConfig holds log output settings.
//
// Environment Variables:
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json or console (default: json)
//   - LOG_CALLER: Include caller file:line (default: false)
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for values that would make the
// process misbehave at runtime. It is called by Load; call it
// directly when constructing a Config by hand.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %v", c.Server.Timeout)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Engine.StalenessTolerance < 0 {
		return fmt.Errorf("engine.staleness_tolerance must not be negative, got %v", c.Engine.StalenessTolerance)
	}
	if c.Engine.AlertCooldown < 0 {
		return fmt.Errorf("engine.alert_cooldown must not be negative, got %v", c.Engine.AlertCooldown)
	}
	if c.Engine.MaxAlertAge <= 0 {
		return fmt.Errorf("engine.max_alert_age must be positive, got %v", c.Engine.MaxAlertAge)
	}
	if c.Engine.SweepInterval <= 0 {
		return fmt.Errorf("engine.sweep_interval must be positive, got %v", c.Engine.SweepInterval)
	}
	if c.Engine.AnalyticsWindow <= 0 {
		return fmt.Errorf("engine.analytics_window must be positive, got %v", c.Engine.AnalyticsWindow)
	}
	if c.API.DefaultPageSize < 1 || c.API.DefaultPageSize > c.API.MaxPageSize {
		return fmt.Errorf("api.default_page_size must be 1-%d, got %d", c.API.MaxPageSize, c.API.DefaultPageSize)
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats.enabled is true")
	}
	return nil
}
