// Copyright 2026 The Pairchat Authors
// SPDX-License-Identifier: Apache-2.0

package pairing

import (
	"sync"
	"testing"
)

// fakeConn records delivered events for assertions.
type fakeConn struct {
	mu     sync.Mutex
	events []Event
}

func (c *fakeConn) Deliver(event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

// Events returns a snapshot of everything delivered so far.
func (c *fakeConn) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// Types returns just the event types, in delivery order.
func (c *fakeConn) Types() []EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	types := make([]EventType, len(c.events))
	for i, event := range c.events {
		types[i] = event.Type
	}
	return types
}

func TestRegistryFirstConnection(t *testing.T) {
	registry := NewRegistry()
	tab1 := &fakeConn{}
	tab2 := &fakeConn{}

	if first := registry.Register("alice", tab1, false); !first {
		t.Error("Register: first connection not reported as first")
	}
	if first := registry.Register("alice", tab2, false); first {
		t.Error("Register: second connection reported as first")
	}
	if got := len(registry.Connections("alice")); got != 2 {
		t.Errorf("Connections: got %d, want 2", got)
	}
}

func TestRegistryUnregister(t *testing.T) {
	registry := NewRegistry()
	tab1 := &fakeConn{}
	tab2 := &fakeConn{}
	registry.Register("alice", tab1, false)
	registry.Register("alice", tab2, false)

	if empty := registry.Unregister("alice", tab1); empty {
		t.Error("Unregister: reported empty with a connection remaining")
	}
	if !registry.Connected("alice") {
		t.Error("Connected: false with one connection remaining")
	}
	if empty := registry.Unregister("alice", tab2); !empty {
		t.Error("Unregister: last connection not reported as empty")
	}
	if registry.Connected("alice") {
		t.Error("Connected: true after last connection left")
	}
	if conns := registry.Connections("alice"); conns != nil {
		t.Errorf("Connections after empty: got %v, want nil", conns)
	}
}

func TestRegistryUnknownIdentifier(t *testing.T) {
	registry := NewRegistry()
	if !registry.Unregister("ghost", &fakeConn{}) {
		t.Error("Unregister of unknown identifier: want empty")
	}
	if registry.Connected("ghost") {
		t.Error("Connected: true for unknown identifier")
	}
	if registry.Privileged("ghost") {
		t.Error("Privileged: true for unknown identifier")
	}
}

func TestRegistryPrivileged(t *testing.T) {
	registry := NewRegistry()
	registry.Register("teacher", &fakeConn{}, true)
	registry.Register("alice", &fakeConn{}, false)

	if !registry.Privileged("teacher") {
		t.Error("Privileged: false for observer")
	}
	if registry.Privileged("alice") {
		t.Error("Privileged: true for participant")
	}
}
