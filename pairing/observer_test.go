// Copyright 2026 The Pairchat Authors
// SPDX-License-Identifier: Apache-2.0

package pairing

import (
	"context"
	"testing"
	"time"

	"github.com/pairchat/pairchat/lib/clock"
)

// chanConn delivers events to a channel so tests can block on delivery
// without sleeping.
type chanConn struct {
	events chan Event
}

func newChanConn() *chanConn {
	return &chanConn{events: make(chan Event, 16)}
}

func (c *chanConn) Deliver(event Event) { c.events <- event }

// next waits for the next delivered event.
func (c *chanConn) next(t *testing.T) Event {
	t.Helper()
	select {
	case event := <-c.events:
		return event
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestObserverFeedSnapshots(t *testing.T) {
	engine, _ := newTestEngine(newFakeStore())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fakeClock := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	feed := NewObserverFeed(engine, fakeClock, time.Second, nil)

	observer := newChanConn()
	done := make(chan struct{})
	go func() {
		defer close(done)
		feed.Watch(ctx, observer)
	}()

	// The first snapshot arrives immediately, before any tick.
	first := observer.next(t)
	if first.Type != EventObserverSnapshot {
		t.Fatalf("first event: got %q, want observerSnapshot", first.Type)
	}
	if len(first.Snapshot.Pairs) != 0 {
		t.Errorf("initial snapshot not empty: %+v", first.Snapshot)
	}

	engine.Join(ctx, "alice", &fakeConn{}, false)

	fakeClock.WaitForTickers(1)
	fakeClock.Advance(time.Second)
	second := observer.next(t)
	if second.Type != EventObserverSnapshot {
		t.Fatalf("tick event: got %q, want observerSnapshot", second.Type)
	}
	if len(second.Snapshot.Waiting) != 1 || second.Snapshot.Waiting[0] != "alice" {
		t.Errorf("tick snapshot waiting: got %v, want [alice]", second.Snapshot.Waiting)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestObserverFeedStopsOnCancel(t *testing.T) {
	engine, _ := newTestEngine(newFakeStore())
	ctx, cancel := context.WithCancel(context.Background())
	fakeClock := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	feed := NewObserverFeed(engine, fakeClock, time.Second, nil)

	observer := newChanConn()
	done := make(chan struct{})
	go func() {
		defer close(done)
		feed.Watch(ctx, observer)
	}()
	observer.next(t) // initial snapshot
	fakeClock.WaitForTickers(1)

	cancel()
	<-done

	// The ticker is stopped; advancing delivers nothing further.
	fakeClock.Advance(3 * time.Second)
	select {
	case event := <-observer.events:
		t.Errorf("event after cancel: %+v", event)
	default:
	}
}
