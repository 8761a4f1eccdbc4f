// Copyright 2026 The Pairchat Authors
// SPDX-License-Identifier: Apache-2.0

package transcript

import (
	"context"
	"errors"
	"time"
)

// MessageKind discriminates message payloads on the wire and at rest.
type MessageKind string

const (
	// KindText is a plain chat message.
	KindText MessageKind = "msg"

	// KindCell is a rendered notebook cell shared into the chat.
	KindCell MessageKind = "cell"

	// KindFlowchart is a shared flowchart snapshot.
	KindFlowchart MessageKind = "flowchart"

	// KindActivity is an ephemeral presence ping. Relayed live,
	// never persisted.
	KindActivity MessageKind = "activity"
)

// Valid reports whether k is one of the known message kinds.
func (k MessageKind) Valid() bool {
	switch k {
	case KindText, KindCell, KindFlowchart, KindActivity:
		return true
	}
	return false
}

// Ephemeral reports whether messages of this kind are excluded from
// transcript persistence.
func (k MessageKind) Ephemeral() bool {
	return k == KindActivity
}

// Message is one relayed chat payload. Content is sanitized before the
// message is constructed; the store and broadcaster treat it as safe
// to deliver verbatim.
type Message struct {
	Kind    MessageKind `json:"kind"`
	Sender  string      `json:"sender"`
	Content string      `json:"content"`
	SentAt  time.Time   `json:"sent_at"`
}

// Discussion is the persisted transcript for one unordered participant
// pair. Participants holds the pair in canonical (lexicographic)
// order. Messages are in append order and never include ephemeral
// kinds.
type Discussion struct {
	ID           string    `json:"id"`
	Participants [2]string `json:"participants"`
	Messages     []Message `json:"messages"`
}

// ErrNotFound is returned by Store.Discussion when the pair has never
// been matched.
var ErrNotFound = errors.New("transcript: discussion not found")

// ErrEphemeral is returned by Store.AppendMessage for message kinds
// that must not be persisted.
var ErrEphemeral = errors.New("transcript: refusing to persist ephemeral message")

// Store is the durable pair-keyed transcript log. All methods accept
// the two participant identifiers in either order.
type Store interface {
	// FindOrCreateDiscussion returns the discussion for the pair,
	// creating an empty one on first pairing. Idempotent.
	FindOrCreateDiscussion(ctx context.Context, a, b string) (*Discussion, error)

	// Discussion returns the existing discussion for the pair, with
	// its full message history, or ErrNotFound.
	Discussion(ctx context.Context, a, b string) (*Discussion, error)

	// AppendMessage appends one message to the pair's discussion.
	// Returns ErrEphemeral for kinds that must not be persisted and
	// ErrNotFound when the pair has no discussion.
	AppendMessage(ctx context.Context, a, b string, message Message) error
}

// PairKey canonicalizes an unordered participant pair into
// (low, high) lexicographic order, the order used as the storage key.
func PairKey(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}
