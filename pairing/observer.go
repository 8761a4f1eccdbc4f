// Copyright 2026 The Pairchat Authors
// SPDX-License-Identifier: Apache-2.0

package pairing

import (
	"context"
	"log/slog"
	"time"

	"github.com/pairchat/pairchat/lib/clock"
)

// ObserverFeed pushes periodic pairing-state snapshots to privileged
// connections. Each watched connection gets its own interval timer,
// created when the observer joins and cancelled exactly once when the
// watch context ends.
type ObserverFeed struct {
	engine   *Engine
	clock    clock.Clock
	interval time.Duration
	logger   *slog.Logger
}

// NewObserverFeed creates a feed over the engine's state. A
// non-positive interval defaults to 1 second.
func NewObserverFeed(engine *Engine, clk clock.Clock, interval time.Duration, logger *slog.Logger) *ObserverFeed {
	if engine == nil {
		panic("pairing.ObserverFeed: engine is required")
	}
	if clk == nil {
		clk = clock.Real()
	}
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ObserverFeed{
		engine:   engine,
		clock:    clk,
		interval: interval,
		logger:   logger,
	}
}

// Watch delivers an immediate snapshot and then one per interval until
// ctx is cancelled. Blocks; the transport layer runs it in the
// connection's goroutine and cancels ctx on disconnect.
func (f *ObserverFeed) Watch(ctx context.Context, conn Conn) {
	ticker := f.clock.NewTicker(f.interval)
	defer ticker.Stop()

	conn.Deliver(snapshotEvent(f.engine.Snapshot()))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.Deliver(snapshotEvent(f.engine.Snapshot()))
		}
	}
}
