// Copyright 2026 The Pairchat Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Pairchat's standard CBOR encoding configuration.
//
// Pairchat uses two serialization formats with a clear boundary:
//
//   - JSON for external interfaces: the WebSocket wire protocol and
//     the account HTTP endpoints, where browser clients consume it.
//   - CBOR for data at rest: message bodies stored in transcript rows.
//
// This package holds the shared encoding and decoding modes so that
// every row written to the transcript database encodes identically.
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2), so the
// same logical message always produces the same bytes.
package codec
