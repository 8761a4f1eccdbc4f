// Copyright 2026 The Pairchat Authors
// SPDX-License-Identifier: Apache-2.0

package pairing

import "github.com/pairchat/pairchat/transcript"

// EventType tags outbound wire events. The set is closed: every event
// a client can receive is enumerated here, and the server never sends
// raw error payloads.
type EventType string

const (
	// EventAccepted reports the handshake verdict. Sent exactly once
	// per connection, before any other event.
	EventAccepted EventType = "accepted"

	// EventMessage delivers a relayed chat message.
	EventMessage EventType = "message"

	// EventFoundPair announces the connection's current partner along
	// with the pair's discussion (including history, for replay).
	EventFoundPair EventType = "foundPair"

	// EventPairDisconnected tells a participant their partner is gone
	// and they are back to waiting.
	EventPairDisconnected EventType = "pairDisconnected"

	// EventTargetUnavailable rejects an explicit pair request. Sent
	// only to the requesting connection; carries no reason.
	EventTargetUnavailable EventType = "targetUnavailable"

	// EventObserverSnapshot carries the periodic pairing-state
	// snapshot pushed to privileged connections.
	EventObserverSnapshot EventType = "observerSnapshot"
)

// Event is one outbound wire event. Exactly one payload field is set,
// according to Type; the rest are omitted from the JSON encoding.
type Event struct {
	Type     EventType           `json:"type"`
	Accepted *bool               `json:"accepted,omitempty"`
	Message  *transcript.Message `json:"message,omitempty"`
	Pairing  *PairingNotice      `json:"pairing,omitempty"`
	Snapshot *Snapshot           `json:"snapshot,omitempty"`
}

// PairingNotice is the payload of a foundPair event.
type PairingNotice struct {
	Partner    string                 `json:"partner"`
	Discussion *transcript.Discussion `json:"discussion"`
}

// Snapshot is the observer feed payload: the full pair assignment
// relation plus the waiting queue. Always a complete snapshot, never
// a diff.
type Snapshot struct {
	// Pairs lists every connected non-privileged participant with
	// their current partner, ordered by participant identifier.
	Pairs []PairStatus `json:"pairs"`

	// Waiting is the queue of unmatched participants in FIFO order.
	Waiting []string `json:"waiting"`
}

// PairStatus is one row of the pair assignment relation.
type PairStatus struct {
	Participant string `json:"participant"`

	// Partner is empty for participants without a current partner.
	Partner string `json:"partner,omitempty"`
}

// Conn is one live transport session bound to a participant. Deliver
// must not block: delivery to a connection that has meanwhile closed
// is a no-op, and a slow consumer drops events rather than stalling
// the engine.
type Conn interface {
	Deliver(event Event)
}

func acceptedEvent(ok bool) Event {
	return Event{Type: EventAccepted, Accepted: &ok}
}

func messageEvent(message transcript.Message) Event {
	return Event{Type: EventMessage, Message: &message}
}

func foundPairEvent(partner string, discussion *transcript.Discussion) Event {
	return Event{Type: EventFoundPair, Pairing: &PairingNotice{
		Partner:    partner,
		Discussion: discussion,
	}}
}

func pairDisconnectedEvent() Event {
	return Event{Type: EventPairDisconnected}
}

func targetUnavailableEvent() Event {
	return Event{Type: EventTargetUnavailable}
}

func snapshotEvent(snapshot Snapshot) Event {
	return Event{Type: EventObserverSnapshot, Snapshot: &snapshot}
}

// AcceptedEvent is the handshake verdict event delivered by the
// transport layer before the engine is involved.
func AcceptedEvent(ok bool) Event { return acceptedEvent(ok) }
