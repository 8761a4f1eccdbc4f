// Copyright 2026 The Pairchat Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides a pooled SQLite connection layer shared
// by the transcript and account stores.
//
// It wraps zombiezen.com/go/sqlite with production defaults: WAL
// journal mode so transcript replays never block message appends,
// NORMAL synchronous for process-crash durability without
// fsync-per-commit overhead, foreign key enforcement, and a busy
// timeout to absorb write contention.
//
// The package is intentionally thin: callers [Pool.Take] a connection,
// write SQL with sqlitex.Execute, and [Pool.Put] the connection back.
// There is no query builder and no attempt to hide SQLite's
// connection model.
package sqlitepool
