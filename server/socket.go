// Copyright 2026 The Pairchat Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pairchat/pairchat/identity"
	"github.com/pairchat/pairchat/lib/clock"
	"github.com/pairchat/pairchat/pairing"
	"github.com/pairchat/pairchat/sanitize"
	"github.com/pairchat/pairchat/transcript"
)

const (
	// writeWait bounds each outbound frame write.
	writeWait = 10 * time.Second

	// pongWait is how long a session may stay silent before it is
	// considered dead. Pings go out at pingPeriod, comfortably inside
	// the window.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// maxInboundBytes caps one inbound frame. Rendered notebook cells
	// are the largest legitimate payload.
	maxInboundBytes = 1 << 20

	// sendBuffer is the per-session outbound queue. A consumer that
	// falls this far behind starts losing events.
	sendBuffer = 64
)

// SocketHandler upgrades chat connections and binds them to the
// pairing engine. One handler serves every session.
type SocketHandler struct {
	verifier    identity.Verifier
	engine      *pairing.Engine
	broadcaster *pairing.Broadcaster
	feed        *pairing.ObserverFeed
	clock       clock.Clock
	logger      *slog.Logger
	upgrader    websocket.Upgrader
}

// SocketHandlerConfig configures a SocketHandler. Verifier, Engine,
// Broadcaster, and Feed are required.
type SocketHandlerConfig struct {
	Verifier    identity.Verifier
	Engine      *pairing.Engine
	Broadcaster *pairing.Broadcaster
	Feed        *pairing.ObserverFeed
	Clock       clock.Clock
	Logger      *slog.Logger
}

// NewSocketHandler creates a handler.
func NewSocketHandler(cfg SocketHandlerConfig) *SocketHandler {
	if cfg.Verifier == nil {
		panic("server.SocketHandler: Verifier is required")
	}
	if cfg.Engine == nil {
		panic("server.SocketHandler: Engine is required")
	}
	if cfg.Broadcaster == nil {
		panic("server.SocketHandler: Broadcaster is required")
	}
	if cfg.Feed == nil {
		panic("server.SocketHandler: Feed is required")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SocketHandler{
		verifier:    cfg.Verifier,
		engine:      cfg.Engine,
		broadcaster: cfg.Broadcaster,
		feed:        cfg.Feed,
		clock:       clk,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The notebook extension connects from the hub origin;
			// identity is established by the hub token, not the
			// Origin header.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Register mounts the chat endpoint on a mux.
func (h *SocketHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", h.handleSocket)
}

// inboundEnvelope is one client frame. Type is either a message kind
// or a pairing command.
type inboundEnvelope struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Target  string `json:"target,omitempty"`
}

func (h *SocketHandler) handleSocket(writer http.ResponseWriter, request *http.Request) {
	credential := request.Header.Get("hubtoken")
	if credential == "" {
		credential = request.URL.Query().Get("hubtoken")
	}

	socket, err := h.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Info("websocket upgrade failed", "error", err)
		return
	}

	// The handshake verdict is the first and, on rejection, only frame
	// the client receives. The cause stays server-side.
	ident, err := h.verifier.Resolve(request.Context(), credential)
	if err != nil {
		socket.SetWriteDeadline(time.Now().Add(writeWait))
		socket.WriteJSON(pairing.AcceptedEvent(false))
		socket.Close()
		h.logger.Info("connection rejected", "error", err)
		return
	}

	session := &session{
		name:   ident.Name,
		socket: socket,
		send:   make(chan pairing.Event, sendBuffer),
		closed: make(chan struct{}),
		logger: h.logger.With("participant", ident.Name),
	}
	session.Deliver(pairing.AcceptedEvent(true))
	go session.writePump()

	h.logger.Info("participant connected",
		"participant", ident.Name,
		"privileged", ident.Privileged,
	)

	h.engine.Join(request.Context(), ident.Name, session, ident.Privileged)
	if ident.Privileged {
		watchCtx, stopWatch := context.WithCancel(request.Context())
		defer stopWatch()
		go h.feed.Watch(watchCtx, session)
	}

	h.readLoop(request.Context(), session, ident)

	h.engine.Disconnect(ident.Name, session)
	session.close()
	h.logger.Info("participant disconnected", "participant", ident.Name)
}

// readLoop consumes inbound frames until the connection drops. Runs in
// the handler goroutine; dispatch is serial per connection, so a
// client's own events keep their order.
func (h *SocketHandler) readLoop(ctx context.Context, session *session, ident identity.Identity) {
	socket := session.socket
	socket.SetReadLimit(maxInboundBytes)
	socket.SetReadDeadline(time.Now().Add(pongWait))
	socket.SetPongHandler(func(string) error {
		return socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				session.logger.Info("connection dropped", "error", err)
			}
			return
		}

		var envelope inboundEnvelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			session.logger.Info("discarding malformed frame", "error", err)
			continue
		}
		if ident.Privileged {
			// Observers only listen.
			continue
		}
		h.dispatch(ctx, session, envelope)
	}
}

// dispatch routes one inbound frame from a non-privileged participant.
// Unknown types are discarded.
func (h *SocketHandler) dispatch(ctx context.Context, session *session, envelope inboundEnvelope) {
	if kind := transcript.MessageKind(envelope.Type); kind.Valid() {
		h.broadcaster.Relay(session.name, transcript.Message{
			Kind:    kind,
			Sender:  session.name,
			Content: sanitize.Clean(kind, envelope.Content),
			SentAt:  h.clock.Now(),
		})
		return
	}

	switch envelope.Type {
	case "pairWithUser":
		h.engine.PairWith(ctx, session.name, envelope.Target, session)
	case "requestRandomPair":
		h.engine.RequestRandomPair(ctx, session.name)
	case "unpair":
		h.engine.Unpair(session.name)
	default:
		session.logger.Info("discarding unknown frame type", "type", envelope.Type)
	}
}

// session is one live WebSocket bound to a participant. It implements
// pairing.Conn; Deliver never blocks the engine.
type session struct {
	name   string
	socket *websocket.Conn
	send   chan pairing.Event
	logger *slog.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// Deliver queues an event for the write pump. Events for a closed or
// saturated session are dropped; the engine never stalls on a slow
// consumer.
func (s *session) Deliver(event pairing.Event) {
	select {
	case <-s.closed:
	case s.send <- event:
	default:
		s.logger.Warn("dropping event for slow consumer", "type", event.Type)
	}
}

// writePump owns all writes to the socket: queued events plus keepalive
// pings. Exits when the session closes or a write fails.
func (s *session) writePump() {
	pings := time.NewTicker(pingPeriod)
	defer pings.Stop()

	for {
		select {
		case <-s.closed:
			s.socket.SetWriteDeadline(time.Now().Add(writeWait))
			s.socket.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			s.socket.Close()
			return
		case event := <-s.send:
			s.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.socket.WriteJSON(event); err != nil {
				s.logger.Info("write failed", "error", err)
				s.socket.Close()
				return
			}
		case <-pings.C:
			s.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.socket.Close()
				return
			}
		}
	}
}

// close shuts the session down exactly once. Safe to call from any
// goroutine.
func (s *session) close() {
	s.closeOnce.Do(func() { close(s.closed) })
}
