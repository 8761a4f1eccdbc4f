// Copyright 2026 The Pairchat Authors
// SPDX-License-Identifier: Apache-2.0

package pairing

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/pairchat/pairchat/transcript"
)

// Engine owns the matching state: the pair assignment relation and the
// waiting queue. No other component mutates them; the transport layer
// drives the engine through Join, PairWith, RequestRandomPair, Unpair,
// and Disconnect.
//
// Every mutation of pairs and waiting happens under mu. The one
// operation that cannot stay under the lock is discussion
// creation — a store round trip — so pairing is split into a tentative
// reservation (under the lock) and a commit that re-validates the
// reservation and re-resolves connection sets after the round trip.
// Competing events that land during the round trip (a party
// disconnecting, mostly) invalidate the reservation and the commit
// backs out without any visible state change.
type Engine struct {
	registry *Registry
	store    transcript.Store
	logger   *slog.Logger

	mu sync.Mutex

	// pairs is the committed pair assignment. Symmetric: if
	// pairs[a] == b then pairs[b] == a.
	pairs map[string]string

	// waiting is the FIFO queue of unmatched participants. An
	// identifier appears at most once and never while present in
	// pairs or reserved.
	waiting []string

	// reserved holds in-flight pairings: both parties map to each
	// other from reservation until commit or abort. Reserved
	// identifiers are neither WAITING nor PAIRED; a disconnect clears
	// only the disconnecting side's entry, which is how the commit
	// path detects the loss.
	reserved map[string]string
}

// EngineConfig configures an Engine. Registry and Store are required.
type EngineConfig struct {
	Registry *Registry
	Store    transcript.Store
	Logger   *slog.Logger
}

// NewEngine creates an engine with empty matching state.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Registry == nil {
		panic("pairing.Engine: Registry is required")
	}
	if cfg.Store == nil {
		panic("pairing.Engine: Store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		registry: cfg.Registry,
		store:    cfg.Store,
		logger:   logger,
		pairs:    make(map[string]string),
		reserved: make(map[string]string),
	}
}

// Join handles a new connection for a verified participant. Privileged
// identities register but never enter the queue or pair. For a first
// connection the participant is matched against the queue head or
// enqueued; for an additional connection the new tab silently joins
// the existing state, replaying the current pairing (with discussion
// history) to the new connection only.
func (e *Engine) Join(ctx context.Context, name string, conn Conn, privileged bool) {
	first := e.registry.Register(name, conn, privileged)
	if privileged {
		return
	}

	e.mu.Lock()
	if partner, ok := e.pairs[name]; ok {
		e.mu.Unlock()
		e.replayPairing(ctx, name, partner, conn)
		return
	}
	if !first || e.waitingIndexLocked(name) >= 0 || e.reserved[name] != "" {
		// Additional tab for a WAITING participant, or a pairing is
		// already in flight. Nothing to announce; the queue must not
		// gain a duplicate.
		e.mu.Unlock()
		return
	}
	e.matchLocked(ctx, name, "")
}

// replayPairing delivers the existing pairing to one connection,
// without re-broadcasting to the partner.
func (e *Engine) replayPairing(ctx context.Context, name, partner string, conn Conn) {
	discussion, err := e.store.Discussion(ctx, name, partner)
	if err != nil {
		e.logger.Error("pairing replay failed",
			"participant", name,
			"partner", partner,
			"error", err,
		)
		return
	}
	conn.Deliver(foundPairEvent(partner, discussion))
}

// PairWith handles an explicit pair request naming a target. Valid
// only when the requester is an unpaired non-privileged participant
// and the target is currently waiting; anything else answers the
// requesting connection with targetUnavailable and mutates nothing.
func (e *Engine) PairWith(ctx context.Context, requester, target string, conn Conn) {
	if e.registry.Privileged(requester) || requester == target {
		conn.Deliver(targetUnavailableEvent())
		return
	}

	e.mu.Lock()
	_, requesterPaired := e.pairs[requester]
	if requesterPaired || e.reserved[requester] != "" || e.waitingIndexLocked(target) < 0 {
		e.mu.Unlock()
		conn.Deliver(targetUnavailableEvent())
		return
	}
	e.matchLocked(ctx, requester, target)
}

// RequestRandomPair re-runs queue matching for a waiting participant,
// used after a partner disconnect (the engine never auto-rematches).
// If no eligible partner is waiting, the participant stays queued; no
// event is sent.
func (e *Engine) RequestRandomPair(ctx context.Context, name string) {
	if e.registry.Privileged(name) || !e.registry.Connected(name) {
		return
	}

	e.mu.Lock()
	if _, paired := e.pairs[name]; paired || e.reserved[name] != "" {
		e.mu.Unlock()
		return
	}
	e.matchLocked(ctx, name, "")
}

// Unpair dissolves the requester's current pair. Both participants
// transition to WAITING, hear partner-disconnected semantics on every
// connection, and re-enter the queue at the tail. A no-op for unpaired
// requesters.
func (e *Engine) Unpair(name string) {
	e.mu.Lock()
	partner, ok := e.pairs[name]
	if !ok {
		e.mu.Unlock()
		return
	}
	delete(e.pairs, name)
	delete(e.pairs, partner)
	e.enqueueLocked(name)
	e.enqueueLocked(partner)
	e.mu.Unlock()

	e.deliverAll(name, pairDisconnectedEvent())
	e.deliverAll(partner, pairDisconnectedEvent())
	e.logger.Info("pair dissolved",
		"participant", name,
		"partner", partner,
	)
}

// Disconnect handles a connection closing. Only the loss of an
// identifier's last connection changes matching state: a waiting
// participant leaves the queue; a paired participant's partner
// transitions to WAITING (notified on every connection) while the
// disconnecting identifier's assignment is removed entirely. The
// partner is NOT matched back against the queue — re-pairing requires
// an explicit request.
func (e *Engine) Disconnect(name string, conn Conn) {
	if !e.registry.Unregister(name, conn) {
		return
	}

	e.mu.Lock()
	if index := e.waitingIndexLocked(name); index >= 0 {
		e.waiting = append(e.waiting[:index], e.waiting[index+1:]...)
	}
	// An in-flight pairing loses this side's reservation entry; the
	// commit path sees the asymmetry and backs out.
	delete(e.reserved, name)

	partner, paired := e.pairs[name]
	if paired {
		delete(e.pairs, name)
		delete(e.pairs, partner)
		e.enqueueLocked(partner)
	}
	e.mu.Unlock()

	if paired {
		e.deliverAll(partner, pairDisconnectedEvent())
		e.logger.Info("participant disconnected while paired",
			"participant", name,
			"partner", partner,
		)
	}
}

// PartnerOf returns the current partner of a participant, if any.
func (e *Engine) PartnerOf(name string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	partner, ok := e.pairs[name]
	return partner, ok
}

// Snapshot returns the full pairing state for the observer feed: every
// tracked participant with their partner (ordered by identifier) plus
// the waiting queue in FIFO order.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	seen := make(map[string]struct{}, len(e.pairs)+len(e.waiting)+len(e.reserved))
	for name := range e.pairs {
		seen[name] = struct{}{}
	}
	for _, name := range e.waiting {
		seen[name] = struct{}{}
	}
	for name := range e.reserved {
		seen[name] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	snapshot := Snapshot{
		Pairs:   make([]PairStatus, 0, len(names)),
		Waiting: append([]string(nil), e.waiting...),
	}
	for _, name := range names {
		snapshot.Pairs = append(snapshot.Pairs, PairStatus{
			Participant: name,
			Partner:     e.pairs[name],
		})
	}
	return snapshot
}

// matchLocked pairs name against an eligible waiting partner. Entered
// with mu held; released before returning. When target is empty the
// earliest-enqueued identifier different from name is taken; with no
// candidate, name joins the queue tail. When target is non-empty the
// caller has already verified it is waiting.
//
// The discussion round trip runs outside the lock; see the reservation
// discipline on Engine.
func (e *Engine) matchLocked(ctx context.Context, name, target string) {
	partner := target
	partnerIndex := -1
	if target == "" {
		for index, candidate := range e.waiting {
			if candidate != name {
				partner = candidate
				partnerIndex = index
				break
			}
		}
		if partnerIndex < 0 {
			e.enqueueLocked(name)
			e.mu.Unlock()
			return
		}
	} else {
		partnerIndex = e.waitingIndexLocked(target)
	}

	e.waiting = append(e.waiting[:partnerIndex], e.waiting[partnerIndex+1:]...)
	if index := e.waitingIndexLocked(name); index >= 0 {
		e.waiting = append(e.waiting[:index], e.waiting[index+1:]...)
	}
	e.reserved[name] = partner
	e.reserved[partner] = name
	e.mu.Unlock()

	// Suspend point: anything can happen while the store round trip
	// is in flight. Nothing below trusts state captured above this
	// line except the reservation itself.
	discussion, err := e.store.FindOrCreateDiscussion(ctx, name, partner)

	e.mu.Lock()
	intact := e.reserved[name] == partner && e.reserved[partner] == name
	if !intact {
		// A party disconnected mid-flight and cleared its own entry.
		// Release whichever side survived back to the queue.
		e.releaseReservationLocked(name, partner)
		e.releaseReservationLocked(partner, name)
		e.mu.Unlock()
		e.logger.Info("pairing aborted by disconnect",
			"participant", name,
			"partner", partner,
		)
		return
	}
	delete(e.reserved, name)
	delete(e.reserved, partner)
	if err != nil {
		// Abandon with no visible change: the partner returns to its
		// former queue position, the requester waits at the tail.
		e.insertWaitingLocked(partner, partnerIndex)
		e.enqueueLocked(name)
		e.mu.Unlock()
		e.logger.Error("pairing abandoned: discussion unavailable",
			"participant", name,
			"partner", partner,
			"error", err,
		)
		return
	}
	e.pairs[name] = partner
	e.pairs[partner] = name
	e.mu.Unlock()

	// Connection sets are resolved now, after the suspend point, so a
	// tab that opened or closed during the round trip is respected.
	e.deliverAll(partner, foundPairEvent(name, discussion))
	e.deliverAll(name, foundPairEvent(partner, discussion))
	e.logger.Info("participants paired",
		"participant", name,
		"partner", partner,
		"discussion_id", discussion.ID,
	)
}

// releaseReservationLocked clears name's reservation on other, if
// still present, and returns name to the queue when it is still
// connected.
func (e *Engine) releaseReservationLocked(name, other string) {
	if e.reserved[name] != other {
		return
	}
	delete(e.reserved, name)
	if e.registry.Connected(name) {
		e.enqueueLocked(name)
	}
}

// enqueueLocked appends name to the waiting queue unless present.
func (e *Engine) enqueueLocked(name string) {
	if e.waitingIndexLocked(name) >= 0 {
		return
	}
	e.waiting = append(e.waiting, name)
}

// insertWaitingLocked restores name at a former queue position,
// clamped to the current queue length.
func (e *Engine) insertWaitingLocked(name string, index int) {
	if e.waitingIndexLocked(name) >= 0 {
		return
	}
	if index < 0 {
		index = 0
	}
	if index > len(e.waiting) {
		index = len(e.waiting)
	}
	e.waiting = append(e.waiting[:index], append([]string{name}, e.waiting[index:]...)...)
}

func (e *Engine) waitingIndexLocked(name string) int {
	for index, candidate := range e.waiting {
		if candidate == name {
			return index
		}
	}
	return -1
}

// deliverAll fans an event out to every live connection of name.
func (e *Engine) deliverAll(name string, event Event) {
	for _, conn := range e.registry.Connections(name) {
		conn.Deliver(event)
	}
}
