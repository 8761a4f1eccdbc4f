// Copyright 2026 The Pairchat Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity resolves connection credentials into participant
// identities.
//
// The production [Verifier] asks the JupyterHub REST API who a hub
// token belongs to and gates non-admin users on study enrollment: only
// participants in the configured study group may chat. Hub admins
// resolve as privileged (observer) identities and bypass the gate.
package identity

import (
	"context"
	"errors"
)

// Identity is a verified participant.
type Identity struct {
	// Name is the stable participant identifier (the hub username).
	Name string

	// Privileged marks observer identities: they watch pairing state
	// but never enter the waiting queue or pair via join.
	Privileged bool
}

// ErrUnauthorized is returned for credentials that do not resolve to
// an admitted participant: bad or expired tokens, unknown users, and
// users outside the admitted study group. Callers reject the
// connection before it enters any pairing state and never forward the
// underlying cause to the client.
var ErrUnauthorized = errors.New("identity: unauthorized")

// Verifier turns a connection credential into a participant identity.
type Verifier interface {
	// Resolve validates the credential. Returns an error wrapping
	// ErrUnauthorized when the credential is invalid or the user is
	// not admitted to the study.
	Resolve(ctx context.Context, credential string) (Identity, error)
}

// Resolver validates credentials without study-group gating. The
// account endpoints use it: interaction logging covers control-group
// participants that Verifier would reject.
type Resolver interface {
	Lookup(ctx context.Context, credential string) (Identity, error)
}

// Directory reports study enrollment for resolved users. Implemented
// by the account store. Group returns the empty string, not an error,
// for unknown participants.
type Directory interface {
	Group(ctx context.Context, name string) (string, error)
}
