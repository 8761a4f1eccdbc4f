// Copyright 2026 The Pairchat Authors
// SPDX-License-Identifier: Apache-2.0

package pairing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pairchat/pairchat/transcript"
)

// Broadcaster fans relayed messages out to both sides of a pair and
// forwards persistent kinds to the transcript store. Live delivery is
// decoupled from persistence: an append failure is logged, never
// surfaced to the chat.
type Broadcaster struct {
	registry *Registry
	engine   *Engine
	store    transcript.Store
	logger   *slog.Logger

	// appendTimeout bounds each asynchronous transcript append.
	appendTimeout time.Duration

	appends sync.WaitGroup
}

// BroadcasterConfig configures a Broadcaster. Registry, Engine, and
// Store are required.
type BroadcasterConfig struct {
	Registry *Registry
	Engine   *Engine
	Store    transcript.Store
	Logger   *slog.Logger

	// AppendTimeout bounds each transcript append round trip.
	// Defaults to 5 seconds.
	AppendTimeout time.Duration
}

// NewBroadcaster creates a broadcaster.
func NewBroadcaster(cfg BroadcasterConfig) *Broadcaster {
	if cfg.Registry == nil {
		panic("pairing.Broadcaster: Registry is required")
	}
	if cfg.Engine == nil {
		panic("pairing.Broadcaster: Engine is required")
	}
	if cfg.Store == nil {
		panic("pairing.Broadcaster: Store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	timeout := cfg.AppendTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Broadcaster{
		registry:      cfg.Registry,
		engine:        cfg.Engine,
		store:         cfg.Store,
		logger:        logger,
		appendTimeout: timeout,
	}
}

// Relay delivers a message to every live connection of the sender (so
// the sender's other tabs see the echo) and, when the sender is
// paired, every live connection of the partner. Connection sets are
// resolved at delivery time. Non-ephemeral messages are appended to
// the pair's discussion asynchronously.
//
// An unpaired sender still hears their own echo; nothing is persisted
// since there is no discussion to append to.
func (b *Broadcaster) Relay(sender string, message transcript.Message) {
	event := messageEvent(message)
	for _, conn := range b.registry.Connections(sender) {
		conn.Deliver(event)
	}

	partner, paired := b.engine.PartnerOf(sender)
	if !paired {
		return
	}
	for _, conn := range b.registry.Connections(partner) {
		conn.Deliver(event)
	}

	if message.Kind.Ephemeral() {
		return
	}
	b.appends.Add(1)
	go func() {
		defer b.appends.Done()
		ctx, cancel := context.WithTimeout(context.Background(), b.appendTimeout)
		defer cancel()
		if err := b.store.AppendMessage(ctx, sender, partner, message); err != nil {
			b.logger.Error("transcript append failed",
				"sender", sender,
				"partner", partner,
				"kind", message.Kind,
				"error", err,
			)
		}
	}()
}

// Flush blocks until all in-flight transcript appends complete. Called
// during graceful shutdown so accepted messages reach the store before
// the pool closes.
func (b *Broadcaster) Flush() {
	b.appends.Wait()
}
