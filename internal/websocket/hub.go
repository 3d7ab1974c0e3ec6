// Pelorus - Voyage Tracking and Maritime Risk-Zone Alerting
// Copyright 2026 Pelorus Maritime
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pelorus-maritime/pelorus

// Package websocket pushes alert transitions to connected dashboard
// clients. The hub fans broadcasts out to all clients; a client that
// cannot keep up is dropped rather than allowed to stall the rest.
package websocket

import (
	"context"

	"github.com/pelorus-maritime/pelorus/internal/alerts"
	"github.com/pelorus-maritime/pelorus/internal/logging"
	"github.com/pelorus-maritime/pelorus/internal/metrics"
	"github.com/pelorus-maritime/pelorus/internal/models"
)

// Message types sent over the wire.
const (
	MessageTypeAlert = "alert"
	MessageTypePing  = "ping"
	MessageTypePong  = "pong"
)

// Message is the envelope for all WebSocket traffic.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// AlertUpdate is the payload of an alert message.
type AlertUpdate struct {
	Alert      models.Alert      `json:"alert"`
	Transition alerts.Transition `json:"transition"`
}

// Hub maintains the set of connected clients and fans out broadcasts.
type Hub struct {
	clients    map[*Client]struct{}
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
}

// NewHub creates a hub. Run Serve before connecting clients.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// OnAlert implements alerts.Listener. The enqueue is non-blocking;
// when the broadcast buffer is full the transition is dropped and
// counted, never allowed to stall the alert engine.
func (h *Hub) OnAlert(alert models.Alert, transition alerts.Transition) {
	msg := Message{
		Type: MessageTypeAlert,
		Data: AlertUpdate{Alert: alert, Transition: transition},
	}
	select {
	case h.broadcast <- msg:
	default:
		metrics.WSMessagesDropped.Inc()
	}
}

// Serve runs the hub loop until the context is cancelled. Lifecycle
// events are drained before broadcasts so client state is consistent
// when a message fans out.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		default:
		}

		select {
		case c := <-h.register:
			h.addClient(c)
			continue
		case c := <-h.unregister:
			h.removeClient(c)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

func (h *Hub) String() string { return "websocket-hub" }

func (h *Hub) addClient(c *Client) {
	h.clients[c] = struct{}{}
	metrics.WSClients.Set(float64(len(h.clients)))
	logging.Debug().Int("clients", len(h.clients)).Msg("WebSocket client connected")
}

func (h *Hub) removeClient(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	metrics.WSClients.Set(float64(len(h.clients)))
	logging.Debug().Int("clients", len(h.clients)).Msg("WebSocket client disconnected")
}

func (h *Hub) fanOut(msg Message) {
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// Slow client; drop it.
			delete(h.clients, c)
			close(c.send)
			metrics.WSMessagesDropped.Inc()
		}
	}
	metrics.WSClients.Set(float64(len(h.clients)))
}

func (h *Hub) closeAll() {
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	metrics.WSClients.Set(0)
	logging.Info().Msg("WebSocket hub stopped")
}
