// Copyright 2026 The Pairchat Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// HubVerifier resolves hub tokens against the JupyterHub REST API and
// gates non-admin users on account enrollment.
type HubVerifier struct {
	baseURL      string
	allowedGroup string
	directory    Directory
	httpClient   *http.Client
	logger       *slog.Logger
}

// HubVerifierConfig configures a HubVerifier. URL, AllowedGroup, and
// Directory are required.
type HubVerifierConfig struct {
	// URL is the base URL of the JupyterHub REST API, without a
	// trailing slash (e.g. "http://hub:8081/hub/api").
	URL string

	// AllowedGroup is the study group admitted to chat.
	AllowedGroup string

	// Directory reports each participant's study group.
	Directory Directory

	// Timeout bounds each hub round trip. Defaults to 10 seconds.
	Timeout time.Duration

	Logger *slog.Logger
}

// hubUser is the subset of the JupyterHub GET /user response the
// verifier reads.
type hubUser struct {
	Name  string `json:"name"`
	Admin bool   `json:"admin"`
}

// NewHubVerifier creates a verifier.
func NewHubVerifier(cfg HubVerifierConfig) (*HubVerifier, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("identity: hub URL is required")
	}
	if cfg.AllowedGroup == "" {
		return nil, fmt.Errorf("identity: allowed group is required")
	}
	if cfg.Directory == nil {
		return nil, fmt.Errorf("identity: directory is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HubVerifier{
		baseURL:      cfg.URL,
		allowedGroup: cfg.AllowedGroup,
		directory:    cfg.Directory,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger,
	}, nil
}

// Lookup asks the hub who the token belongs to, without the study
// enrollment gate. Used by endpoints that serve all enrolled
// participants (interaction logging covers the control group too).
// Admins resolve as privileged.
func (v *HubVerifier) Lookup(ctx context.Context, credential string) (Identity, error) {
	user, err := v.hubUser(ctx, credential)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Name: user.Name, Privileged: user.Admin}, nil
}

// Resolve asks the hub who the token belongs to. Admins become
// privileged observers; everyone else must hold an account in the
// allowed study group.
func (v *HubVerifier) Resolve(ctx context.Context, credential string) (Identity, error) {
	user, err := v.hubUser(ctx, credential)
	if err != nil {
		return Identity{}, err
	}

	if user.Admin {
		return Identity{Name: user.Name, Privileged: true}, nil
	}

	group, err := v.directory.Group(ctx, user.Name)
	if err != nil {
		return Identity{}, fmt.Errorf("identity: enrollment lookup for %q: %w", user.Name, err)
	}
	if group != v.allowedGroup {
		v.logger.Info("participant not admitted",
			"participant", user.Name,
			"group", group,
		)
		return Identity{}, fmt.Errorf("identity: %q not in group %q: %w",
			user.Name, v.allowedGroup, ErrUnauthorized)
	}
	return Identity{Name: user.Name}, nil
}

// hubUser fetches the token's owner from the hub.
func (v *HubVerifier) hubUser(ctx context.Context, credential string) (hubUser, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/user", nil)
	if err != nil {
		return hubUser{}, fmt.Errorf("identity: building hub request: %w", err)
	}
	request.Header.Set("Authorization", "token "+credential)

	response, err := v.httpClient.Do(request)
	if err != nil {
		return hubUser{}, fmt.Errorf("identity: hub request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		// Read and discard so the connection can be reused; the body
		// is hub-internal and never forwarded to clients.
		io.Copy(io.Discard, io.LimitReader(response.Body, 4096))
		return hubUser{}, fmt.Errorf("identity: hub returned %d: %w",
			response.StatusCode, ErrUnauthorized)
	}

	var user hubUser
	if err := json.NewDecoder(response.Body).Decode(&user); err != nil {
		return hubUser{}, fmt.Errorf("identity: parsing hub response: %w", err)
	}
	if user.Name == "" {
		return hubUser{}, fmt.Errorf("identity: hub response has empty name: %w", ErrUnauthorized)
	}
	return user, nil
}
