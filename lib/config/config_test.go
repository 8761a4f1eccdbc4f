// Copyright 2026 The Pairchat Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pairchat.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
listen: ":8443"
database:
  path: /var/pairchat/pairchat.db
  pool_size: 8
hub:
  url: http://hub:8081/hub/api
  timeout: 5s
accounts:
  create_key: super-secret
observer:
  interval: 2s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Listen != ":8443" {
		t.Errorf("Listen = %q, want %q", cfg.Listen, ":8443")
	}
	if cfg.Database.Path != "/var/pairchat/pairchat.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Database.PoolSize != 8 {
		t.Errorf("Database.PoolSize = %d, want 8", cfg.Database.PoolSize)
	}
	if cfg.Hub.URL != "http://hub:8081/hub/api" {
		t.Errorf("Hub.URL = %q", cfg.Hub.URL)
	}
	if cfg.Hub.Timeout != 5*time.Second {
		t.Errorf("Hub.Timeout = %v, want 5s", cfg.Hub.Timeout)
	}
	if cfg.Accounts.CreateKey != "super-secret" {
		t.Errorf("Accounts.CreateKey = %q", cfg.Accounts.CreateKey)
	}
	if cfg.Observer.Interval != 2*time.Second {
		t.Errorf("Observer.Interval = %v, want 2s", cfg.Observer.Interval)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `hub: {url: http://hub:8081/hub/api}`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Listen != ":3000" {
		t.Errorf("default Listen = %q, want %q", cfg.Listen, ":3000")
	}
	if cfg.Observer.Interval != time.Second {
		t.Errorf("default Observer.Interval = %v, want 1s", cfg.Observer.Interval)
	}
	if cfg.Hub.Timeout != 10*time.Second {
		t.Errorf("default Hub.Timeout = %v, want 10s", cfg.Hub.Timeout)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	if _, err := Load(writeConfig(t, `lisen: ":3000"`)); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	t.Run("empty listen", func(t *testing.T) {
		cfg := Default()
		cfg.Listen = ""
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error for empty listen address")
		}
	})

	t.Run("negative interval", func(t *testing.T) {
		cfg := Default()
		cfg.Observer.Interval = -time.Second
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error for negative observer interval")
		}
	})
}
