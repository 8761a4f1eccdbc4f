// Copyright 2026 The Pairchat Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the Pairchat
// server.
//
// Configuration is loaded from a single YAML file specified by the
// PAIRCHAT_CONFIG environment variable or the --config flag. There are
// no fallbacks or automatic discovery; command-line flags override
// individual file values.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for the Pairchat server.
type Config struct {
	// Listen is the TCP listen address for the HTTP/WebSocket server.
	Listen string `yaml:"listen"`

	// Database configures the SQLite store shared by transcripts and
	// accounts.
	Database DatabaseConfig `yaml:"database"`

	// Hub configures the JupyterHub identity verifier.
	Hub HubConfig `yaml:"hub"`

	// Accounts configures the account creation endpoint.
	Accounts AccountsConfig `yaml:"accounts"`

	// Observer configures the privileged observer feed.
	Observer ObserverConfig `yaml:"observer"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	// Path is the database file path.
	Path string `yaml:"path"`

	// PoolSize is the connection pool size. Zero uses the pool's
	// default.
	PoolSize int `yaml:"pool_size"`
}

// HubConfig configures the JupyterHub API used to resolve hub tokens
// into participant identities.
type HubConfig struct {
	// URL is the base URL of the JupyterHub REST API
	// (e.g. "http://hub:8081/hub/api").
	URL string `yaml:"url"`

	// Timeout bounds each token resolution round trip. Zero means
	// 10 seconds.
	Timeout time.Duration `yaml:"timeout"`
}

// AccountsConfig configures the account HTTP endpoints.
type AccountsConfig struct {
	// CreateKey is the shared secret required by the account creation
	// endpoint. Required; there is no default.
	CreateKey string `yaml:"create_key"`
}

// ObserverConfig configures the observer snapshot feed.
type ObserverConfig struct {
	// Interval is the delay between pairing-state snapshots pushed to
	// each privileged connection. Zero means 1 second.
	Interval time.Duration `yaml:"interval"`
}

// Default returns the configuration used when no file is provided.
// CreateKey and Hub.URL have no defaults and must come from the file
// or flags.
func Default() Config {
	return Config{
		Listen: ":3000",
		Database: DatabaseConfig{
			Path: "pairchat.db",
		},
		Hub: HubConfig{
			Timeout: 10 * time.Second,
		},
		Observer: ObserverConfig{
			Interval: time.Second,
		},
	}
}

// Load reads the configuration file at path and merges it over the
// defaults. Unknown keys are rejected so typos fail loudly instead of
// silently using defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks structural requirements. Fields that may legally be
// supplied later by flags (Hub.URL, Accounts.CreateKey) are checked at
// startup by the server, not here.
func (c Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Observer.Interval < 0 {
		return fmt.Errorf("observer interval must not be negative")
	}
	if c.Hub.Timeout < 0 {
		return fmt.Errorf("hub timeout must not be negative")
	}
	return nil
}
