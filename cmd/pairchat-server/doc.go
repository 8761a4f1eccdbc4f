// Copyright 2026 The Pairchat Authors
// SPDX-License-Identifier: Apache-2.0

// Command pairchat-server runs the anonymous pair-programming chat
// backend for a JupyterHub study deployment.
//
// It serves three surfaces on one listener: the WebSocket chat
// endpoint (GET /ws), participant enrollment (POST /users/create), and
// interaction logging (PUT /users/log/{event}). Configuration comes
// from a YAML file named by --config or PAIRCHAT_CONFIG, with
// individual flags overriding file values. The hub URL and the account
// create key have no defaults and must be provided.
//
// The server shuts down gracefully on SIGINT/SIGTERM: the listener
// stops, in-flight requests drain, and pending transcript writes land
// before the database pool closes.
package main
