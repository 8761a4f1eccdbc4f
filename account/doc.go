// Copyright 2026 The Pairchat Authors
// SPDX-License-Identifier: Apache-2.0

// Package account manages study enrollment and the notebook
// interaction log.
//
// Every study participant — experimental and control group alike — has
// an account row created through the enrollment endpoint before the
// study begins. The chat handshake admits only the experimental group
// (see the identity package); the interaction log covers everyone.
//
// The package exposes [Store] over the shared SQLite pool and
// [Handler] with the two HTTP endpoints: POST /users/create, gated by
// a shared create key compared in constant time, and
// PUT /users/log/{event}, gated by a valid hub token.
package account
