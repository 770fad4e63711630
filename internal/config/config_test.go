// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.BaseURL != "http://localhost:3000/api" {
		t.Errorf("BaseURL = %q", cfg.Server.BaseURL)
	}
	if cfg.PollInterval() != time.Second {
		t.Errorf("PollInterval() = %v, want 1s", cfg.PollInterval())
	}
	if cfg.PollDeadline() != 2*time.Minute {
		t.Errorf("PollDeadline() = %v, want 2m", cfg.PollDeadline())
	}
	if cfg.CatalogTTL() != time.Hour {
		t.Errorf("CatalogTTL() = %v, want 1h", cfg.CatalogTTL())
	}
	if cfg.Generation.ConversationRefreshEvery != 3 {
		t.Errorf("ConversationRefreshEvery = %d, want 3", cfg.Generation.ConversationRefreshEvery)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config fails validation: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"bad scheme", func(c *Config) { c.Server.BaseURL = "ftp://host/api" }, "server.base_url"},
		{"missing host", func(c *Config) { c.Server.BaseURL = "http://" }, "server.base_url"},
		{"zero poll interval", func(c *Config) { c.Generation.PollIntervalMs = 0 }, "generation.poll_interval_ms"},
		{"negative deadline", func(c *Config) { c.Generation.PollDeadlineSecs = -1 }, "generation.poll_deadline_secs"},
		{"deadline below interval", func(c *Config) {
			c.Generation.PollIntervalMs = 5000
			c.Generation.PollDeadlineSecs = 2
		}, "generation.poll_deadline_secs"},
		{"zero refresh cadence", func(c *Config) { c.Generation.ConversationRefreshEvery = 0 }, "generation.conversation_refresh_every"},
		{"bad search mode", func(c *Config) { c.Generation.WebSearchMode = "always" }, "generation.web_search_mode"},
		{"zero catalog ttl", func(c *Config) { c.Catalog.TTLMinutes = 0 }, "catalog.ttl_minutes"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}

			var verrs ValidateErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("error type = %T, want ValidateErrors", err)
			}
			found := false
			for _, ve := range verrs {
				if ve.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("no error for field %s in %v", tt.wantField, verrs)
			}
		})
	}
}

func TestSaveAndLoadTOML_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.Server.BaseURL = "https://chat.example.com/api"
	cfg.Server.APIKey = "secret-key"
	cfg.Generation.PollIntervalMs = 500
	cfg.Catalog.TTLMinutes = 30

	if err := SaveTOML(cfg, path); err != nil {
		t.Fatalf("SaveTOML() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config file permissions = %o, want 0600", perm)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}
	if loaded.Server.BaseURL != "https://chat.example.com/api" {
		t.Errorf("BaseURL = %q", loaded.Server.BaseURL)
	}
	if loaded.Server.APIKey != "secret-key" {
		t.Errorf("APIKey = %q", loaded.Server.APIKey)
	}
	if loaded.Generation.PollIntervalMs != 500 {
		t.Errorf("PollIntervalMs = %d, want 500", loaded.Generation.PollIntervalMs)
	}
	if loaded.Catalog.TTLMinutes != 30 {
		t.Errorf("TTLMinutes = %d, want 30", loaded.Catalog.TTLMinutes)
	}
}

func TestLoadFromPath_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"server": {"base_url": "https://json.example.com/api"}}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}
	if cfg.Server.BaseURL != "https://json.example.com/api" {
		t.Errorf("BaseURL = %q", cfg.Server.BaseURL)
	}
	// Unstated fields fall back to defaults.
	if cfg.Generation.PollIntervalMs != 1000 {
		t.Errorf("PollIntervalMs = %d, want default 1000", cfg.Generation.PollIntervalMs)
	}
}

func TestLoadFromPath_PartialTOMLGetsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "[server]\nbase_url = \"https://partial.example.com/api\"\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "console" {
		t.Errorf("logging defaults not filled: %+v", cfg.Logging)
	}
	if cfg.Generation.WebSearchMode != "off" {
		t.Errorf("WebSearchMode = %q, want off", cfg.Generation.WebSearchMode)
	}
}

func TestLoadFromPath_FixesInsecurePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(""), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := LoadFromPath(path); err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions after load = %o, want 0600", perm)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("NANOCHAT_BASE_URL", "https://env.example.com/api")
	t.Setenv("NANOCHAT_API_KEY", "env-key")
	t.Setenv("NANOCHAT_LOG_LEVEL", "debug")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.Server.BaseURL != "https://env.example.com/api" {
		t.Errorf("BaseURL = %q", cfg.Server.BaseURL)
	}
	if cfg.Server.APIKey != "env-key" {
		t.Errorf("APIKey = %q", cfg.Server.APIKey)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q", cfg.Logging.Level)
	}
}

func TestGetSet_DotNotation(t *testing.T) {
	cfg := Default()

	value, err := cfg.Get("server.base_url")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if value != "http://localhost:3000/api" {
		t.Errorf("Get(server.base_url) = %v", value)
	}

	if err := cfg.Set("server.base_url", "https://new.example.com/api"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if cfg.Server.BaseURL != "https://new.example.com/api" {
		t.Errorf("BaseURL after Set = %q", cfg.Server.BaseURL)
	}

	// Strings convert to the target field type.
	if err := cfg.Set("generation.poll_interval_ms", "250"); err != nil {
		t.Fatalf("Set(int from string) error = %v", err)
	}
	if cfg.Generation.PollIntervalMs != 250 {
		t.Errorf("PollIntervalMs = %d, want 250", cfg.Generation.PollIntervalMs)
	}

	if _, err := cfg.Get("nope.such.key"); err == nil {
		t.Error("Get(unknown) error = nil")
	}
	if err := cfg.Set("server.nope", "x"); err == nil {
		t.Error("Set(unknown) error = nil")
	}
	if err := cfg.Set("generation.poll_interval_ms", "not-a-number"); err == nil {
		t.Error("Set(bad int) error = nil")
	}
}

func TestGetAllKeys_AllResolvable(t *testing.T) {
	cfg := Default()
	for _, key := range GetAllKeys() {
		if _, err := cfg.Get(key); err != nil {
			t.Errorf("Get(%q) error = %v", key, err)
		}
	}
}

func TestString_RedactsAPIKey(t *testing.T) {
	cfg := Default()
	cfg.Server.APIKey = "super-secret"

	out := cfg.String()
	if strings.Contains(out, "super-secret") {
		t.Error("String() leaked the API key")
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Error("String() missing redaction marker")
	}

	// Redaction must not mutate the config itself.
	if cfg.Server.APIKey != "super-secret" {
		t.Errorf("APIKey mutated to %q", cfg.Server.APIKey)
	}
}
