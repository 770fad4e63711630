// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for
// the NanoChat client.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.nanochat/config.toml
//   - ~/.nanochat/config.json
//   - Built-in defaults
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/nanochat/nanochat-go/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete NanoChat client configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Server configuration (gateway endpoint and credentials)
	Server ServerConfig `toml:"server" json:"server"`

	// Generation configuration (send/poll cycle)
	Generation GenerationConfig `toml:"generation" json:"generation"`

	// Catalog configuration (model catalog cache)
	Catalog CatalogConfig `toml:"catalog" json:"catalog"`

	// Logging configuration
	Logging LoggingConfig `toml:"logging" json:"logging"`
}

// ServerConfig contains the remote gateway configuration.
type ServerConfig struct {
	// BaseURL is the backend API root, e.g. "https://chat.example.com/api"
	BaseURL string `toml:"base_url" json:"base_url"`
	// APIKey is sent as a bearer token when non-empty
	APIKey string `toml:"api_key" json:"api_key"`
}

// GenerationConfig contains the polling parameters for a send.
type GenerationConfig struct {
	// PollIntervalMs is the pacing between poll ticks in milliseconds
	PollIntervalMs int `toml:"poll_interval_ms" json:"poll_interval_ms"`
	// PollDeadlineSecs bounds the total polling time for one send
	PollDeadlineSecs int `toml:"poll_deadline_secs" json:"poll_deadline_secs"`
	// ConversationRefreshEvery refreshes the conversation list on every Nth poll tick
	ConversationRefreshEvery int `toml:"conversation_refresh_every" json:"conversation_refresh_every"`
	// WebSearchMode is the default web search mode: "off", "auto", "force"
	WebSearchMode string `toml:"web_search_mode" json:"web_search_mode"`
}

// CatalogConfig contains the model catalog cache configuration.
type CatalogConfig struct {
	// TTLMinutes is the catalog freshness window in minutes
	TTLMinutes int `toml:"ttl_minutes" json:"ttl_minutes"`
}

// LoggingConfig contains log output configuration.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error"
	Level string `toml:"level" json:"level"`
	// Format is "console" or "json"
	Format string `toml:"format" json:"format"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Server: ServerConfig{
			BaseURL: "http://localhost:3000/api",
			APIKey:  "",
		},

		Generation: GenerationConfig{
			PollIntervalMs:           1000,
			PollDeadlineSecs:         120,
			ConversationRefreshEvery: 3,
			WebSearchMode:            "off",
		},

		Catalog: CatalogConfig{
			TTLMinutes: 60,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// PollInterval returns the tick pacing as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Generation.PollIntervalMs) * time.Millisecond
}

// PollDeadline returns the polling deadline as a duration.
func (c *Config) PollDeadline() time.Duration {
	return time.Duration(c.Generation.PollDeadlineSecs) * time.Second
}

// CatalogTTL returns the catalog freshness window as a duration.
func (c *Config) CatalogTTL() time.Duration {
	return time.Duration(c.Catalog.TTLMinutes) * time.Minute
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the NanoChat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".nanochat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// StorePath returns the path to the preference database.
func StorePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "nanochat.db"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ensureSecurePermissions checks and fixes permissions on config files.
// Config files should be 0600 (owner read/write only) to protect API keys.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err // File doesn't exist or not accessible
	}

	mode := info.Mode().Perm()
	if mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}

	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last, then the result is validated.
func Load() (*Config, error) {
	tomlPath, err := ConfigPathTOML()
	if err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			return LoadFromPath(tomlPath)
		}
	}

	jsonPath, err := ConfigPathJSON()
	if err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			return LoadFromPath(jsonPath)
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path with full
// validation. The file format is chosen by extension; anything not named
// *.json is parsed as TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := &Config{}

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadTOML loads configuration from a TOML file.
// Checks and fixes file permissions on load.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		// Permissions might not be fixable on all systems; warn and continue.
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return fillDefaults(cfg)
}

// LoadJSON loads configuration from a JSON file.
// Checks and fixes file permissions on load.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return fillDefaults(cfg)
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) error {
	defaults := Default()

	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = defaults.Server.BaseURL
	}

	if cfg.Generation.PollIntervalMs == 0 {
		cfg.Generation.PollIntervalMs = defaults.Generation.PollIntervalMs
	}
	if cfg.Generation.PollDeadlineSecs == 0 {
		cfg.Generation.PollDeadlineSecs = defaults.Generation.PollDeadlineSecs
	}
	if cfg.Generation.ConversationRefreshEvery == 0 {
		cfg.Generation.ConversationRefreshEvery = defaults.Generation.ConversationRefreshEvery
	}
	if cfg.Generation.WebSearchMode == "" {
		cfg.Generation.WebSearchMode = defaults.Generation.WebSearchMode
	}

	if cfg.Catalog.TTLMinutes == 0 {
		cfg.Catalog.TTLMinutes = defaults.Catalog.TTLMinutes
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaults.Logging.Format
	}

	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
// The file is written atomically with 0600 permissions (owner read/write
// only) since it may carry the API key.
func SaveTOML(cfg *Config, path string) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf strings.Builder
	fmt.Fprintln(&buf, "# nanochat configuration file")
	fmt.Fprintln(&buf, "# Generated by nanochat - edit with care")
	fmt.Fprintln(&buf, "")

	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, []byte(buf.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	// Server
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil {
		errs = append(errs, ValidationError{
			Field:   "server.base_url",
			Message: fmt.Sprintf("invalid URL: %v", err),
		})
	} else {
		if u.Scheme != "http" && u.Scheme != "https" {
			errs = append(errs, ValidationError{
				Field:   "server.base_url",
				Message: fmt.Sprintf("unsupported scheme '%s', must be http or https", u.Scheme),
			})
		}
		if u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "server.base_url",
				Message: "missing host",
			})
		}
	}

	// Generation
	if c.Generation.PollIntervalMs <= 0 {
		errs = append(errs, ValidationError{
			Field:   "generation.poll_interval_ms",
			Message: fmt.Sprintf("must be positive, got %d", c.Generation.PollIntervalMs),
		})
	}
	if c.Generation.PollDeadlineSecs <= 0 {
		errs = append(errs, ValidationError{
			Field:   "generation.poll_deadline_secs",
			Message: fmt.Sprintf("must be positive, got %d", c.Generation.PollDeadlineSecs),
		})
	}
	if c.Generation.PollIntervalMs > 0 && c.Generation.PollDeadlineSecs > 0 &&
		c.PollDeadline() < c.PollInterval() {
		errs = append(errs, ValidationError{
			Field:   "generation.poll_deadline_secs",
			Message: "deadline is shorter than one poll interval",
		})
	}
	if c.Generation.ConversationRefreshEvery <= 0 {
		errs = append(errs, ValidationError{
			Field:   "generation.conversation_refresh_every",
			Message: fmt.Sprintf("must be positive, got %d", c.Generation.ConversationRefreshEvery),
		})
	}
	validSearchModes := map[string]bool{"off": true, "auto": true, "force": true}
	if !validSearchModes[strings.ToLower(c.Generation.WebSearchMode)] {
		errs = append(errs, ValidationError{
			Field:   "generation.web_search_mode",
			Message: fmt.Sprintf("invalid mode '%s', must be one of: off, auto, force", c.Generation.WebSearchMode),
		})
	}

	// Catalog
	if c.Catalog.TTLMinutes <= 0 {
		errs = append(errs, ValidationError{
			Field:   "catalog.ttl_minutes",
			Message: fmt.Sprintf("must be positive, got %d", c.Catalog.TTLMinutes),
		})
	}

	// Logging
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}
	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid format '%s', must be console or json", c.Logging.Format),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - NANOCHAT_BASE_URL: overrides server.base_url
//   - NANOCHAT_API_KEY: overrides server.api_key
//   - NANOCHAT_LOG_LEVEL: overrides logging.level
func (c *Config) ApplyEnvOverrides() {
	if baseURL := os.Getenv("NANOCHAT_BASE_URL"); baseURL != "" {
		c.Server.BaseURL = baseURL
	}
	if key := os.Getenv("NANOCHAT_API_KEY"); key != "" {
		c.Server.APIKey = key
	}
	if level := os.Getenv("NANOCHAT_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "server.base_url").
func (c *Config) Get(key string) (interface{}, error) {
	parts := strings.Split(key, ".")
	if len(parts) == 0 {
		return nil, errors.New("empty key")
	}

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)

		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})

		if !field.IsValid() {
			return nil, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}

		if i == len(parts)-1 {
			return field.Interface(), nil
		}

		if field.Kind() == reflect.Struct {
			v = field
		} else {
			return nil, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
	}

	return nil, fmt.Errorf("invalid key: %s", key)
}

// Set sets a configuration value using dot notation (e.g., "server.base_url").
func (c *Config) Set(key string, value interface{}) error {
	parts := strings.Split(key, ".")
	if len(parts) == 0 {
		return errors.New("empty key")
	}

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)

		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})

		if !field.IsValid() {
			return fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}

		if i == len(parts)-1 {
			if !field.CanSet() {
				return fmt.Errorf("cannot set field: %s", key)
			}
			return setFieldValue(field, value)
		}

		if field.Kind() == reflect.Struct {
			v = field
		} else {
			return fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
	}

	return fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}

	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	// Handle string input with type conversion
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			boolVal := strVal == "1" || strings.ToLower(strVal) == "true" || strings.ToLower(strVal) == "yes"
			field.SetBool(boolVal)
			return nil
		}
	}

	// Direct assignment for matching types
	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}

	// Type conversion for compatible types
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}

	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	return []string{
		"version",
		"server.base_url",
		"server.api_key",
		"generation.poll_interval_ms",
		"generation.poll_deadline_secs",
		"generation.conversation_refresh_every",
		"generation.web_search_mode",
		"catalog.ttl_minutes",
		"logging.level",
		"logging.format",
	}
}

// String returns a string representation of the config for debugging.
// The API key is redacted to keep it out of logs and terminal scrollback.
func (c *Config) String() string {
	safe := *c
	if safe.Server.APIKey != "" {
		safe.Server.APIKey = "[REDACTED]"
	}

	data, _ := json.MarshalIndent(&safe, "", "  ")
	return string(data)
}
