// Copyright 2026 The Pairchat Authors
// SPDX-License-Identifier: Apache-2.0

// Package transcript persists pair-keyed chat transcripts.
//
// A [Discussion] is the append-only message log for one unordered pair
// of participants, keyed by the pair in canonical lexicographic order
// ([PairKey]). Discussions are created lazily on the pair's first
// successful match and never deleted.
//
// The [Store] interface is what the pairing engine and broadcaster
// consume; [SQLiteStore] is the production implementation. Messages
// are stored as CBOR blobs (lib/codec), zstd-compressed above a size
// threshold — shared notebook cells run to kilobytes of markup while
// chat lines are tens of bytes, so compression is decided per row.
//
// Ephemeral activity pings are relayed live by the broadcaster but
// never reach this package; AppendMessage refuses them as a guard.
package transcript
