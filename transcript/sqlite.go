// Copyright 2026 The Pairchat Authors
// SPDX-License-Identifier: Apache-2.0

package transcript

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/pairchat/pairchat/lib/codec"
	"github.com/pairchat/pairchat/lib/sqlitepool"
)

// Schema is the transcript store's DDL. Passed to the pool's OnConnect
// alongside the account schema so every pooled connection sees the
// tables.
//
// Message rows store the full message as a CBOR blob. The kind column
// is duplicated out of the blob for filtering without decoding.
const Schema = `
CREATE TABLE IF NOT EXISTS discussions (
	id               TEXT PRIMARY KEY,
	participant_low  TEXT NOT NULL,
	participant_high TEXT NOT NULL,
	created_at       TEXT NOT NULL,
	UNIQUE (participant_low, participant_high)
);

CREATE TABLE IF NOT EXISTS messages (
	discussion_id TEXT NOT NULL REFERENCES discussions(id),
	kind          TEXT NOT NULL,
	body          BLOB NOT NULL,
	compression   TEXT NOT NULL DEFAULT '',
	appended_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS messages_by_discussion
	ON messages (discussion_id);
`

// compressionThreshold is the body size in bytes above which message
// blobs are zstd-compressed. Plain chat lines stay raw; shared
// notebook cells and flowcharts (kilobytes of markup) compress well.
const compressionThreshold = 1024

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil)
	if err != nil {
		panic("transcript: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("transcript: zstd decoder initialization failed: " + err.Error())
	}
}

// SQLiteStore is the Store implementation backed by the shared SQLite
// pool. Safe for concurrent use.
type SQLiteStore struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// NewSQLiteStore creates a store over an open pool. The pool must have
// been opened with Schema applied in OnConnect.
func NewSQLiteStore(pool *sqlitepool.Pool, logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{pool: pool, logger: logger}
}

// FindOrCreateDiscussion returns the discussion for the unordered pair
// {a, b}, creating an empty one if the pair has never been matched.
func (s *SQLiteStore) FindOrCreateDiscussion(ctx context.Context, a, b string) (*Discussion, error) {
	low, high := PairKey(a, b)

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("transcript: find-or-create %s/%s: %w", low, high, err)
	}
	defer s.pool.Put(conn)

	discussion, err := loadDiscussion(conn, low, high)
	if err == nil {
		return discussion, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	id := uuid.NewString()
	err = sqlitex.Execute(conn, `INSERT INTO discussions
		(id, participant_low, participant_high, created_at)
		VALUES (?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{id, low, high, time.Now().UTC().Format(time.RFC3339Nano)},
	})
	if err != nil {
		return nil, fmt.Errorf("transcript: creating discussion %s/%s: %w", low, high, err)
	}

	s.logger.Info("discussion created",
		"discussion_id", id,
		"participants", []string{low, high},
	)
	return &Discussion{
		ID:           id,
		Participants: [2]string{low, high},
		Messages:     []Message{},
	}, nil
}

// Discussion returns the existing discussion for the unordered pair
// {a, b} with its full message history, or ErrNotFound.
func (s *SQLiteStore) Discussion(ctx context.Context, a, b string) (*Discussion, error) {
	low, high := PairKey(a, b)

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("transcript: load %s/%s: %w", low, high, err)
	}
	defer s.pool.Put(conn)

	return loadDiscussion(conn, low, high)
}

// AppendMessage appends one message to the pair's discussion.
func (s *SQLiteStore) AppendMessage(ctx context.Context, a, b string, message Message) error {
	if message.Kind.Ephemeral() {
		return ErrEphemeral
	}
	low, high := PairKey(a, b)

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("transcript: append to %s/%s: %w", low, high, err)
	}
	defer s.pool.Put(conn)

	id, err := discussionID(conn, low, high)
	if err != nil {
		return err
	}

	body, err := codec.Marshal(message)
	if err != nil {
		return fmt.Errorf("transcript: encoding message: %w", err)
	}
	compression := ""
	if len(body) > compressionThreshold {
		body = zstdEncoder.EncodeAll(body, nil)
		compression = "zstd"
	}

	err = sqlitex.Execute(conn, `INSERT INTO messages
		(discussion_id, kind, body, compression, appended_at)
		VALUES (?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{
			id,
			string(message.Kind),
			body,
			compression,
			message.SentAt.UTC().Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		return fmt.Errorf("transcript: appending to %s: %w", id, err)
	}
	return nil
}

// discussionID resolves the canonical pair to its discussion ID.
func discussionID(conn *sqlite.Conn, low, high string) (string, error) {
	var id string
	err := sqlitex.Execute(conn, `SELECT id FROM discussions
		WHERE participant_low = ? AND participant_high = ?`, &sqlitex.ExecOptions{
		Args: []any{low, high},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			id = stmt.ColumnText(0)
			return nil
		},
	})
	if err != nil {
		return "", fmt.Errorf("transcript: resolving discussion %s/%s: %w", low, high, err)
	}
	if id == "" {
		return "", ErrNotFound
	}
	return id, nil
}

// loadDiscussion reads the discussion row and its messages in append
// order. Message order is rowid order — appends within a discussion
// are serialized by the engine's store round trips and SQLite's single
// writer.
func loadDiscussion(conn *sqlite.Conn, low, high string) (*Discussion, error) {
	id, err := discussionID(conn, low, high)
	if err != nil {
		return nil, err
	}

	discussion := &Discussion{
		ID:           id,
		Participants: [2]string{low, high},
		Messages:     []Message{},
	}

	err = sqlitex.Execute(conn, `SELECT body, compression FROM messages
		WHERE discussion_id = ? ORDER BY rowid`, &sqlitex.ExecOptions{
		Args: []any{id},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			body := make([]byte, stmt.ColumnLen(0))
			stmt.ColumnBytes(0, body)
			if stmt.ColumnText(1) == "zstd" {
				decoded, err := zstdDecoder.DecodeAll(body, nil)
				if err != nil {
					return fmt.Errorf("decompressing message: %w", err)
				}
				body = decoded
			}
			var message Message
			if err := codec.Unmarshal(body, &message); err != nil {
				return fmt.Errorf("decoding message: %w", err)
			}
			discussion.Messages = append(discussion.Messages, message)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("transcript: loading messages for %s: %w", id, err)
	}
	return discussion, nil
}
