// Copyright 2026 The Pairchat Authors
// SPDX-License-Identifier: Apache-2.0

package pairing

import "sync"

// Registry tracks every live connection per participant identifier. A
// participant may hold several connections at once (multiple notebook
// tabs); the entry for an identifier exists exactly while its
// connection set is non-empty.
//
// Registry is safe for concurrent use. It has no error conditions:
// absent identifiers yield empty results.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	conns      map[Conn]struct{}
	privileged bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*registryEntry)}
}

// Register adds a connection to the identifier's set, creating the
// entry if absent. Returns whether this identifier had no prior live
// connection — the engine uses this to distinguish a first join from
// an additional tab.
func (r *Registry) Register(name string, conn Conn, privileged bool) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[name]
	if !ok {
		entry = &registryEntry{
			conns:      make(map[Conn]struct{}),
			privileged: privileged,
		}
		r.entries[name] = entry
	}
	entry.conns[conn] = struct{}{}
	return !ok
}

// Unregister removes a connection from the identifier's set. Returns
// whether the identifier has no remaining connections; when true, the
// entry has been removed. Unknown identifiers or connections are
// no-ops reported as empty only if the entry is actually gone.
func (r *Registry) Unregister(name string, conn Conn) (empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[name]
	if !ok {
		return true
	}
	delete(entry.conns, conn)
	if len(entry.conns) > 0 {
		return false
	}
	delete(r.entries, name)
	return true
}

// Connections returns the identifier's live connections, possibly
// empty. The slice is a copy: callers re-resolve at use time rather
// than holding connection sets across suspend points.
func (r *Registry) Connections(name string) []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[name]
	if !ok {
		return nil
	}
	conns := make([]Conn, 0, len(entry.conns))
	for conn := range entry.conns {
		conns = append(conns, conn)
	}
	return conns
}

// Connected reports whether the identifier has at least one live
// connection.
func (r *Registry) Connected(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[name]
	return ok
}

// Privileged reports whether the identifier joined as an observer.
// False for identifiers with no live connections.
func (r *Registry) Privileged(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[name]
	return ok && entry.privileged
}
