// Copyright 2026 The Pairchat Authors
// SPDX-License-Identifier: Apache-2.0

// Package pairing matches study participants into one-on-one chat
// sessions and relays messages between them.
//
// The package provides four cooperating components. [Registry] tracks
// every live connection per participant identifier — a participant may
// hold several tabs at once, and the entry lives exactly as long as
// its connection set is non-empty. [Engine] owns the matching state: a
// symmetric pair assignment, a strict-FIFO waiting queue, and the
// transition logic for joins, explicit pair requests, unpairing, and
// disconnects. [Broadcaster] fans a message out to every connection of
// the sender and their current partner and forwards persistent kinds
// to the transcript store. [ObserverFeed] pushes the full pairing
// state to privileged connections on a fixed interval.
//
// # States and transitions
//
// Per participant the engine tracks three states: absent, waiting (in
// queue, no partner), and paired. A first join matches against the
// queue head or enqueues; an additional tab silently joins the
// existing state, with the current pairing replayed to the new
// connection only. An explicit pair request succeeds only against a
// waiting target; anything else answers targetUnavailable with no
// state change. Losing a paired participant's last connection moves
// the partner back to waiting — deliberately without re-matching from
// the queue; getting a new partner requires an explicit request.
//
// # Concurrency
//
// All matching state is guarded by one mutex. Creating a discussion is
// a store round trip that cannot stay under the lock, so pairing runs
// in two phases: reserve (synchronous) and commit (after the round
// trip, re-validating the reservation and re-resolving connection
// sets). A disconnect during the round trip invalidates the
// reservation and the commit backs out, returning the surviving party
// to the queue. A store failure abandons the attempt with no visible
// state change.
//
// The wire event vocabulary is a closed set ([EventType]); clients
// never see raw errors, only named events.
package pairing
