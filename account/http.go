// Copyright 2026 The Pairchat Authors
// SPDX-License-Identifier: Apache-2.0

package account

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pairchat/pairchat/identity"
	"github.com/pairchat/pairchat/lib/clock"
)

// Handler serves the account HTTP endpoints: participant enrollment
// (gated by a shared create key) and interaction-event logging (gated
// by a valid hub token). Neither endpoint touches pairing state.
//
// Logging uses the ungated resolver: control-group participants hold
// no chat access but their notebook interactions are still study data.
type Handler struct {
	store     *Store
	resolver  identity.Resolver
	createKey []byte
	clock     clock.Clock
	logger    *slog.Logger
}

// HandlerConfig configures a Handler. Store, Resolver, and CreateKey
// are required.
type HandlerConfig struct {
	Store    *Store
	Resolver identity.Resolver

	// CreateKey is the shared secret for the enrollment endpoint.
	CreateKey string

	Clock  clock.Clock
	Logger *slog.Logger
}

// NewHandler creates a handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Store == nil {
		panic("account.Handler: Store is required")
	}
	if cfg.Resolver == nil {
		panic("account.Handler: Resolver is required")
	}
	if cfg.CreateKey == "" {
		panic("account.Handler: CreateKey is required")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		store:     cfg.Store,
		resolver:  cfg.Resolver,
		createKey: []byte(cfg.CreateKey),
		clock:     clk,
		logger:    logger,
	}
}

// Register mounts the endpoints on a mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /users/create", h.handleCreate)
	mux.HandleFunc("PUT /users/log/{event}", h.handleLog)
}

// createRequest is the enrollment request body: the account fields
// plus the shared create key.
type createRequest struct {
	Account
	Key string `json:"key"`
}

func (h *Handler) handleCreate(writer http.ResponseWriter, request *http.Request) {
	var body createRequest
	if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
		http.Error(writer, "invalid JSON body", http.StatusBadRequest)
		return
	}

	if subtle.ConstantTimeCompare([]byte(body.Key), h.createKey) != 1 {
		http.Error(writer, "invalid key", http.StatusForbidden)
		return
	}
	if err := body.Account.Validate(); err != nil {
		http.Error(writer, err.Error(), http.StatusBadRequest)
		return
	}

	err := h.store.Create(request.Context(), body.Account)
	switch {
	case errors.Is(err, ErrExists):
		http.Error(writer, "username already enrolled", http.StatusConflict)
		return
	case err != nil:
		h.logger.Error("enrollment failed",
			"participant", body.UserName,
			"error", err,
		)
		http.Error(writer, "enrollment failed", http.StatusInternalServerError)
		return
	}

	writer.Header().Set("Content-Type", "application/json")
	json.NewEncoder(writer).Encode(map[string]string{"userName": body.UserName})
}

// logRequest is the interaction-logging request body.
type logRequest struct {
	HubToken     string `json:"hubtoken"`
	NotebookName string `json:"notebookName"`
}

func (h *Handler) handleLog(writer http.ResponseWriter, request *http.Request) {
	kind := InteractionKind(request.PathValue("event"))
	if !kind.Valid() {
		http.Error(writer, "invalid event id", http.StatusBadRequest)
		return
	}

	var body logRequest
	if err := json.NewDecoder(request.Body).Decode(&body); err != nil || body.HubToken == "" {
		http.Error(writer, "invalid hub token", http.StatusForbidden)
		return
	}

	ident, err := h.resolver.Lookup(request.Context(), body.HubToken)
	if err != nil {
		// Cause withheld from the client; identity failures all look
		// the same from outside.
		http.Error(writer, "invalid hub token", http.StatusForbidden)
		return
	}

	err = h.store.LogInteraction(request.Context(), ident.Name, kind, body.NotebookName, h.clock.Now())
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(writer, "unknown participant", http.StatusNotFound)
		return
	case err != nil:
		h.logger.Error("interaction log failed",
			"participant", ident.Name,
			"event", kind,
			"error", err,
		)
		http.Error(writer, "logging failed", http.StatusInternalServerError)
		return
	}

	writer.WriteHeader(http.StatusNoContent)
}
