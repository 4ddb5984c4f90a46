// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

// Package pushgateway is the concrete transport for spec §1.c's "listener
// fan-out (push notifications)": it subscribes to the engine's EventBus as
// its sole Observer and re-broadcasts every dispatched Event as JSON over
// any number of WebSocket connections, so a UI process never has to poll.
package pushgateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sage-x-project/dna-messenger-core/internal/eventbus"
	"github.com/sage-x-project/dna-messenger-core/internal/logger"
)

// wireEvent is the JSON-over-the-wire shape of an eventbus.Event.
type wireEvent struct {
	Kind         string `json:"kind"`
	Fingerprint  string `json:"fingerprint,omitempty"`
	RecipientFP  string `json:"recipient_fp,omitempty"`
	SeqNum       uint64 `json:"seq_num,omitempty"`
	MessageID    uint64 `json:"message_id,omitempty"`
	NewStatus    int    `json:"new_status,omitempty"`
	TimestampSec int64  `json:"timestamp_sec,omitempty"`
}

func toWireEvent(evt eventbus.Event) wireEvent {
	return wireEvent{
		Kind:         evt.Kind.String(),
		Fingerprint:  evt.Fingerprint,
		RecipientFP:  evt.RecipientFP,
		SeqNum:       evt.SeqNum,
		MessageID:    evt.MessageID,
		NewStatus:    evt.NewStatus,
		TimestampSec: evt.TimestampSec,
	}
}

// Gateway fans out EventBus dispatches to every connected WebSocket client.
type Gateway struct {
	log          logger.Logger
	upgrader     websocket.Upgrader
	writeTimeout time.Duration

	connMu      sync.RWMutex
	connections map[*websocket.Conn]bool
}

// New creates a Gateway. AuthorizeOrigin left nil accepts every origin,
// matching the teacher's own placeholder CheckOrigin (the control API's
// JWT guard in front of this handler is the real access boundary).
func New(log logger.Logger, authorizeOrigin func(r *http.Request) bool) *Gateway {
	if authorizeOrigin == nil {
		authorizeOrigin = func(r *http.Request) bool { return true }
	}
	return &Gateway{
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin:     authorizeOrigin,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		writeTimeout: 30 * time.Second,
		connections:  make(map[*websocket.Conn]bool),
	}
}

// Subscribe registers the Gateway as bus's sole Observer. Only one Gateway
// may be subscribed to a given Bus at a time, matching C3's "at most one
// registered Observer" invariant.
func (g *Gateway) Subscribe(bus *eventbus.Bus) {
	bus.Subscribe(func(evt eventbus.Event, userData interface{}) {
		g.Broadcast(evt)
	}, nil)
}

// Handler upgrades incoming requests to WebSocket connections and holds
// them open purely as a push sink; clients are not expected to send
// anything back over the socket.
func (g *Gateway) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := g.upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, fmt.Sprintf("websocket upgrade failed: %v", err), http.StatusBadRequest)
			return
		}

		g.addConnection(conn)
		defer g.removeConnection(conn)
		defer func() { _ = conn.Close() }()

		g.drain(r.Context(), conn)
	})
}

// drain reads (and discards) frames until the client disconnects, so a
// dead connection is detected and pruned rather than leaking.
func (g *Gateway) drain(ctx context.Context, conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.log.Warn("pushgateway connection closed unexpectedly", logger.Error(err))
			}
			return
		}
	}
}

// Broadcast sends evt to every currently connected client, pruning any
// connection that fails to accept the write.
func (g *Gateway) Broadcast(evt eventbus.Event) {
	wire := toWireEvent(evt)

	g.connMu.RLock()
	conns := make([]*websocket.Conn, 0, len(g.connections))
	for c := range g.connections {
		conns = append(conns, c)
	}
	g.connMu.RUnlock()

	for _, conn := range conns {
		if err := conn.SetWriteDeadline(time.Now().Add(g.writeTimeout)); err != nil {
			g.removeConnection(conn)
			continue
		}
		if err := conn.WriteJSON(wire); err != nil {
			g.log.Warn("pushgateway broadcast failed, dropping connection", logger.Error(err))
			g.removeConnection(conn)
			_ = conn.Close()
		}
	}
}

func (g *Gateway) addConnection(conn *websocket.Conn) {
	g.connMu.Lock()
	defer g.connMu.Unlock()
	g.connections[conn] = true
}

func (g *Gateway) removeConnection(conn *websocket.Conn) {
	g.connMu.Lock()
	defer g.connMu.Unlock()
	delete(g.connections, conn)
}

// ConnectionCount reports the number of currently connected clients.
func (g *Gateway) ConnectionCount() int {
	g.connMu.RLock()
	defer g.connMu.RUnlock()
	return len(g.connections)
}

// Close closes every active connection, e.g. on daemon shutdown.
func (g *Gateway) Close() error {
	g.connMu.Lock()
	defer g.connMu.Unlock()

	for conn := range g.connections {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}
	g.connections = make(map[*websocket.Conn]bool)
	return nil
}
