// Copyright 2026 The Pairchat Authors
// SPDX-License-Identifier: Apache-2.0

package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/pairchat/pairchat/lib/sqlitepool"
)

// Group is a participant's study assignment.
type Group string

const (
	// GroupExperimental participants use the chat extension.
	GroupExperimental Group = "experimental"

	// GroupControl participants are enrolled but never admitted to
	// chat.
	GroupControl Group = "control"
)

// Valid reports whether g is a known study group.
func (g Group) Valid() bool {
	return g == GroupExperimental || g == GroupControl
}

// InteractionKind names one of the notebook interaction events the
// study instruments.
type InteractionKind string

const (
	CellCreated        InteractionKind = "cellCreated"
	CellDeleted        InteractionKind = "cellDeleted"
	CellEdited         InteractionKind = "cellEdited"
	CellExecuted       InteractionKind = "cellExecuted"
	ExtensionToggled   InteractionKind = "extensionToggled"
	ExtensionUntoggled InteractionKind = "extensionUntoggled"
	FlowChartEdited    InteractionKind = "flowChartEdited"
	NotebookClosed     InteractionKind = "notebookClosed"
	NotebookOpened     InteractionKind = "notebookOpened"
	NotebookSaved      InteractionKind = "notebookSaved"
)

// Valid reports whether k is a known interaction kind.
func (k InteractionKind) Valid() bool {
	switch k {
	case CellCreated, CellDeleted, CellEdited, CellExecuted,
		ExtensionToggled, ExtensionUntoggled, FlowChartEdited,
		NotebookClosed, NotebookOpened, NotebookSaved:
		return true
	}
	return false
}

// Account is one enrolled participant.
type Account struct {
	UserName  string `json:"userName"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Group     Group  `json:"group"`
}

// Validate checks that all fields are present and the group is known.
func (a Account) Validate() error {
	for field, value := range map[string]string{
		"userName":  a.UserName,
		"firstName": a.FirstName,
		"lastName":  a.LastName,
		"email":     a.Email,
	} {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("account: %s is required", field)
		}
	}
	if !a.Group.Valid() {
		return fmt.Errorf("account: group must be %q or %q", GroupExperimental, GroupControl)
	}
	return nil
}

// ErrExists is returned by Create for an already-enrolled username.
var ErrExists = errors.New("account: username already enrolled")

// ErrNotFound is returned for usernames with no account.
var ErrNotFound = errors.New("account: not found")

// Schema is the account store's DDL, applied via the shared pool's
// OnConnect.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	user_name   TEXT PRIMARY KEY,
	first_name  TEXT NOT NULL,
	last_name   TEXT NOT NULL,
	email       TEXT NOT NULL,
	study_group TEXT NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS interaction_events (
	user_name TEXT NOT NULL REFERENCES accounts(user_name),
	event     TEXT NOT NULL,
	notebook  TEXT NOT NULL DEFAULT '',
	logged_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS interaction_events_by_user
	ON interaction_events (user_name);
`

// Store persists participant accounts and their interaction logs.
// Safe for concurrent use.
type Store struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// NewStore creates a store over an open pool. The pool must have been
// opened with Schema applied in OnConnect.
func NewStore(pool *sqlitepool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{pool: pool, logger: logger}
}

// Create enrolls a participant. Returns ErrExists for a duplicate
// username.
func (s *Store) Create(ctx context.Context, account Account) error {
	if err := account.Validate(); err != nil {
		return err
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("account: create %q: %w", account.UserName, err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `INSERT INTO accounts
		(user_name, first_name, last_name, email, study_group, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{
			account.UserName,
			account.FirstName,
			account.LastName,
			account.Email,
			string(account.Group),
			time.Now().UTC().Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		if sqlite.ErrCode(err) == sqlite.ResultConstraintPrimaryKey {
			return fmt.Errorf("account: create %q: %w", account.UserName, ErrExists)
		}
		return fmt.Errorf("account: create %q: %w", account.UserName, err)
	}

	s.logger.Info("account created",
		"participant", account.UserName,
		"group", account.Group,
	)
	return nil
}

// Get returns the account for a username, or ErrNotFound.
func (s *Store) Get(ctx context.Context, name string) (*Account, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("account: get %q: %w", name, err)
	}
	defer s.pool.Put(conn)

	var account *Account
	err = sqlitex.Execute(conn, `SELECT user_name, first_name, last_name, email, study_group
		FROM accounts WHERE user_name = ?`, &sqlitex.ExecOptions{
		Args: []any{name},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			account = &Account{
				UserName:  stmt.ColumnText(0),
				FirstName: stmt.ColumnText(1),
				LastName:  stmt.ColumnText(2),
				Email:     stmt.ColumnText(3),
				Group:     Group(stmt.ColumnText(4)),
			}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("account: get %q: %w", name, err)
	}
	if account == nil {
		return nil, fmt.Errorf("account: get %q: %w", name, ErrNotFound)
	}
	return account, nil
}

// Group implements identity.Directory: it reports the participant's
// study group, or the empty string for unknown usernames.
func (s *Store) Group(ctx context.Context, name string) (string, error) {
	account, err := s.Get(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(account.Group), nil
}

// LogInteraction appends one interaction event to the participant's
// log. Returns ErrNotFound for unknown usernames.
func (s *Store) LogInteraction(ctx context.Context, name string, kind InteractionKind, notebook string, at time.Time) error {
	if !kind.Valid() {
		return fmt.Errorf("account: unknown interaction kind %q", kind)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("account: log %s for %q: %w", kind, name, err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `INSERT INTO interaction_events
		(user_name, event, notebook, logged_at)
		VALUES (?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{name, string(kind), notebook, at.UTC().Format(time.RFC3339Nano)},
	})
	if err != nil {
		if sqlite.ErrCode(err) == sqlite.ResultConstraintForeignKey {
			return fmt.Errorf("account: log %s for %q: %w", kind, name, ErrNotFound)
		}
		return fmt.Errorf("account: log %s for %q: %w", kind, name, err)
	}
	return nil
}

// Interactions returns the participant's logged events in append
// order. Used by study tooling, not the chat path.
func (s *Store) Interactions(ctx context.Context, name string) ([]Interaction, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("account: interactions for %q: %w", name, err)
	}
	defer s.pool.Put(conn)

	var events []Interaction
	err = sqlitex.Execute(conn, `SELECT event, notebook, logged_at
		FROM interaction_events WHERE user_name = ? ORDER BY rowid`, &sqlitex.ExecOptions{
		Args: []any{name},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			loggedAt, err := time.Parse(time.RFC3339Nano, stmt.ColumnText(2))
			if err != nil {
				return fmt.Errorf("parsing logged_at: %w", err)
			}
			events = append(events, Interaction{
				Kind:     InteractionKind(stmt.ColumnText(0)),
				Notebook: stmt.ColumnText(1),
				LoggedAt: loggedAt,
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("account: interactions for %q: %w", name, err)
	}
	return events, nil
}

// Interaction is one logged notebook event.
type Interaction struct {
	Kind     InteractionKind `json:"event"`
	Notebook string          `json:"notebook,omitempty"`
	LoggedAt time.Time       `json:"logged_at"`
}
