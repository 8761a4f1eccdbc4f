// Copyright 2026 The Pairchat Authors
// SPDX-License-Identifier: Apache-2.0

// Package server is the transport layer: the HTTP listener lifecycle
// and the WebSocket chat endpoint.
//
// A chat connection upgrades at GET /ws carrying a JupyterHub token in
// the hubtoken header (or query parameter, for clients that cannot set
// headers on the upgrade request). The first frame a client receives
// is always the handshake verdict; rejected connections get
// accepted=false and nothing else, with the cause kept server-side.
//
// Each accepted connection becomes a session: a read loop in the
// handler goroutine dispatching inbound frames to the pairing engine
// and broadcaster, and a write pump owning all socket writes (queued
// events plus keepalive pings). Sessions implement pairing.Conn with a
// non-blocking Deliver, so a slow consumer drops events instead of
// stalling the engine.
package server
