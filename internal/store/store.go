// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store provides the local preference store backing the model
// catalog cache and selection state.
//
// Everything persisted outside the remote backend lives here: the cached
// model catalog blob with its fetch timestamp, the hidden-model set, the
// last-used model id, the per-model last-provider map, and the last-used
// assistant id. Entries are key-value rows in a SQLite database guarded by
// a schema version.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/nanochat/nanochat-go/internal/model"
)

// schemaVersion is the current preference schema. Databases written by a
// newer client are refused rather than silently misread.
const schemaVersion = 1

// Preference keys.
const (
	keyCatalog          = "catalog"
	keyCatalogFetchedAt = "catalog_fetched_at"
	keyHiddenModels     = "hidden_models"
	keyLastModel        = "last_model"
	keyLastProviders    = "last_providers"
	keyLastAssistant    = "last_assistant"
)

// ErrSchemaTooNew indicates the database was written by a newer client.
var ErrSchemaTooNew = errors.New("preference store schema is newer than this client")

// =============================================================================
// STORE
// =============================================================================

// Store is a SQLite-backed key-value preference store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the preference database at the given path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the schema and enforces the version guard.
func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS prefs (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS schema_info (
			version INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	var version int
	err = s.db.QueryRow(`SELECT version FROM schema_info LIMIT 1`).Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.Exec(`INSERT INTO schema_info (version) VALUES (?)`, schemaVersion); err != nil {
			return fmt.Errorf("write schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case version > schemaVersion:
		return fmt.Errorf("%w: found %d, supported %d", ErrSchemaTooNew, version, schemaVersion)
	}

	return nil
}

// =============================================================================
// RAW KEY-VALUE ACCESS
// =============================================================================

// Get returns the value for key and whether the key exists.
func (s *Store) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM prefs WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

// Set writes the value for key, replacing any previous value.
func (s *Store) Set(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO prefs (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM prefs WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// getJSON decodes the value for key into v; ok reports key presence.
func (s *Store) getJSON(key string, v interface{}) (bool, error) {
	raw, ok, err := s.Get(key)
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return true, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

// setJSON encodes v and stores it under key.
func (s *Store) setJSON(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	return s.Set(key, string(data))
}

// =============================================================================
// CATALOG BLOB
// =============================================================================

// Catalog returns the cached model catalog, its fetch time, and whether a
// cache exists. A blob that fails to decode is reported as absent so the
// caller refetches.
func (s *Store) Catalog() ([]model.UserModel, time.Time, bool, error) {
	var models []model.UserModel
	ok, err := s.getJSON(keyCatalog, &models)
	if err != nil {
		// Corrupt blob: treat as a cache miss so the caller refetches.
		return nil, time.Time{}, false, nil
	}
	if !ok {
		return nil, time.Time{}, false, nil
	}

	fetchedAt := time.Time{}
	if raw, ok, err := s.Get(keyCatalogFetchedAt); err == nil && ok {
		if unix, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
			fetchedAt = time.Unix(unix, 0)
		}
	}

	return models, fetchedAt, true, nil
}

// SetCatalog replaces the cached catalog blob and its fetch timestamp.
func (s *Store) SetCatalog(models []model.UserModel, fetchedAt time.Time) error {
	if err := s.setJSON(keyCatalog, models); err != nil {
		return err
	}
	return s.Set(keyCatalogFetchedAt, strconv.FormatInt(fetchedAt.Unix(), 10))
}

// =============================================================================
// HIDDEN MODEL SET
// =============================================================================

// HiddenModels returns the persisted hidden-model id set and whether the
// key has ever been written. Absence means "first run": the caller seeds
// the default from server-disabled models.
func (s *Store) HiddenModels() (map[string]bool, bool, error) {
	var ids []string
	ok, err := s.getJSON(keyHiddenModels, &ids)
	if err != nil || !ok {
		return nil, ok, err
	}

	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, true, nil
}

// SetHiddenModels persists the hidden-model id set. The set is stored as a
// sorted array so the stored form is deterministic.
func (s *Store) SetHiddenModels(set map[string]bool) error {
	ids := make([]string, 0, len(set))
	for id, hidden := range set {
		if hidden {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return s.setJSON(keyHiddenModels, ids)
}

// =============================================================================
// SELECTION STATE
// =============================================================================

// LastModelID returns the persisted last-used model id, if any.
func (s *Store) LastModelID() (string, bool, error) {
	return s.Get(keyLastModel)
}

// SetLastModelID persists the last-used model id.
func (s *Store) SetLastModelID(id string) error {
	return s.Set(keyLastModel, id)
}

// LastProvider returns the persisted last-used provider for a model, if any.
func (s *Store) LastProvider(modelID string) (string, bool, error) {
	providers, err := s.lastProviders()
	if err != nil {
		return "", false, err
	}
	p, ok := providers[modelID]
	return p, ok, nil
}

// SetLastProvider records the provider last used for a model.
func (s *Store) SetLastProvider(modelID, provider string) error {
	providers, err := s.lastProviders()
	if err != nil {
		return err
	}
	providers[modelID] = provider
	return s.setJSON(keyLastProviders, providers)
}

// lastProviders loads the per-model provider map, empty when unset.
func (s *Store) lastProviders() (map[string]string, error) {
	providers := make(map[string]string)
	if _, err := s.getJSON(keyLastProviders, &providers); err != nil {
		return nil, err
	}
	return providers, nil
}

// LastAssistantID returns the persisted last-used assistant id, if any.
func (s *Store) LastAssistantID() (string, bool, error) {
	return s.Get(keyLastAssistant)
}

// SetLastAssistantID persists the last-used assistant id.
func (s *Store) SetLastAssistantID(id string) error {
	return s.Set(keyLastAssistant, id)
}
