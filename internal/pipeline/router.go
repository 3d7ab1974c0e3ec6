// Pelorus - Voyage Tracking and Maritime Risk-Zone Alerting
// Copyright 2026 Pelorus Maritime
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pelorus-maritime/pelorus

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/pelorus-maritime/pelorus/internal/config"
)

// NewRouter builds the Watermill router with the standard middleware
// chain, outer to inner: panic recovery, exponential-backoff retry,
// optional throttle, poison queue. The processor is registered as the
// single consumer of the positions topic.
func NewRouter(
	cfg config.NATSConfig,
	transport *Transport,
	proc *Processor,
	logger watermill.LoggerAdapter,
) (*message.Router, error) {
	closeTimeout := cfg.RouterCloseTimeout
	if closeTimeout <= 0 {
		closeTimeout = 30 * time.Second
	}

	router, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: closeTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}

	router.AddMiddleware(middleware.Recoverer)

	retryCount := cfg.RouterRetryCount
	if retryCount <= 0 {
		retryCount = 3
	}
	retryInterval := cfg.RouterRetryInitialInterval
	if retryInterval <= 0 {
		retryInterval = time.Second
	}
	retry := middleware.Retry{
		MaxRetries:      retryCount,
		InitialInterval: retryInterval,
		MaxInterval:     time.Minute,
		Multiplier:      2.0,
		Logger:          logger,
	}
	router.AddMiddleware(retry.Middleware)

	if cfg.RouterThrottlePerSecond > 0 {
		throttle := middleware.NewThrottle(int64(cfg.RouterThrottlePerSecond), time.Second)
		router.AddMiddleware(throttle.Middleware)
	}

	if cfg.RouterPoisonQueueEnabled && cfg.RouterPoisonQueueTopic != "" {
		poison, err := middleware.PoisonQueue(transport.Publisher, cfg.RouterPoisonQueueTopic)
		if err != nil {
			return nil, fmt.Errorf("create poison queue middleware: %w", err)
		}
		router.AddMiddleware(poison)
	}

	router.AddNoPublisherHandler(
		"position-processor",
		TopicPositions,
		transport.Subscriber,
		proc.Handle,
	)

	return router, nil
}

// Service adapts a Watermill router to the supervision tree.
type Service struct {
	router *message.Router
}

// NewService wraps the router as a supervised service.
func NewService(router *message.Router) *Service {
	return &Service{router: router}
}

// Serve runs the router until the context is cancelled.
func (s *Service) Serve(ctx context.Context) error {
	return s.router.Run(ctx)
}

func (s *Service) String() string { return "event-pipeline" }
