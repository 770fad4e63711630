// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package catalog maintains the locally cached model catalog.
//
// The catalog is fetched from the backend, cached in the preference store
// with a freshness timestamp, and overlaid with a user-controlled hidden
// set. Selection defaults follow a fixed priority: persisted last-used
// model, then the first visible server-pinned model, then the first
// visible model in catalog order.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nanochat/nanochat-go/internal/model"
	"github.com/nanochat/nanochat-go/internal/store"
)

// DefaultTTL is the freshness window: a cache younger than this skips the
// network fetch entirely.
const DefaultTTL = time.Hour

// =============================================================================
// BACKEND INTERFACE
// =============================================================================

// Backend is the slice of the gateway the catalog needs.
type Backend interface {
	ListModels(ctx context.Context) ([]model.UserModel, error)
	ListModelProviders(ctx context.Context, modelID string) ([]model.ModelProvider, error)
}

// =============================================================================
// CATALOG
// =============================================================================

// Catalog holds the in-memory model catalog and its derived projections.
// All methods are safe for concurrent use.
type Catalog struct {
	mu      sync.RWMutex
	backend Backend
	prefs   *store.Store
	logger  zerolog.Logger
	ttl     time.Duration

	models   []model.UserModel
	hidden   map[string]bool
	groups   []model.ModelGroup
	selected string
}

// New creates a catalog backed by the given gateway slice and preference
// store. A zero ttl means DefaultTTL.
func New(backend Backend, prefs *store.Store, logger zerolog.Logger, ttl time.Duration) *Catalog {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Catalog{
		backend: backend,
		prefs:   prefs,
		logger:  logger.With().Str("component", "catalog").Logger(),
		ttl:     ttl,
		hidden:  make(map[string]bool),
	}
}

// LoadStatus reports how a Load populated the catalog.
type LoadStatus struct {
	// FromCache is true when the catalog was populated from the local cache.
	FromCache bool

	// Fetched is true when a network fetch was performed.
	Fetched bool

	// FetchErr carries a non-fatal fetch failure: the cached data remains
	// in place and the error is surfaced here instead of failing the load.
	FetchErr error
}

// Load populates the catalog, cache-first.
//
// With forceRefresh false, an existing decodable cache populates the
// catalog immediately, and a cache younger than the TTL skips the network
// fetch entirely. Otherwise the full catalog is fetched, replaced
// wholesale, and persisted with a fresh timestamp.
//
// A fetch failure after a successful cache population is non-fatal and
// reported in LoadStatus.FetchErr; with no usable cache it fails the load.
func (c *Catalog) Load(ctx context.Context, forceRefresh bool) (LoadStatus, error) {
	var status LoadStatus

	c.mu.Lock()
	defer c.mu.Unlock()

	if !forceRefresh {
		cached, fetchedAt, ok, err := c.prefs.Catalog()
		if err != nil {
			return status, err
		}
		if ok {
			c.populateLocked(cached)
			status.FromCache = true

			if time.Since(fetchedAt) < c.ttl {
				c.logger.Debug().Time("fetched_at", fetchedAt).Msg("catalog cache fresh, skipping fetch")
				return status, nil
			}
		}
	}

	status.Fetched = true
	fetched, err := c.backend.ListModels(ctx)
	if err != nil {
		if status.FromCache {
			c.logger.Warn().Err(err).Msg("catalog refresh failed, keeping cached data")
			status.FetchErr = err
			return status, nil
		}
		return status, err
	}

	c.populateLocked(fetched)
	if err := c.prefs.SetCatalog(fetched, time.Now()); err != nil {
		c.logger.Warn().Err(err).Msg("failed to persist catalog cache")
	}

	return status, nil
}

// populateLocked replaces the in-memory catalog wholesale and recomputes
// everything derived from it.
func (c *Catalog) populateLocked(models []model.UserModel) {
	c.models = models
	c.ensureHiddenLocked()
	c.regroupLocked()
	c.applySelectionLocked()
}

// =============================================================================
// HIDDEN SET
// =============================================================================

// ensureHiddenLocked loads the persisted hidden set, seeding it on first
// run from the models the server marked disabled. After the first run the
// persisted set is authoritative and never recomputed from server flags.
func (c *Catalog) ensureHiddenLocked() {
	persisted, ok, err := c.prefs.HiddenModels()
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to load hidden set")
		return
	}
	if ok {
		c.hidden = persisted
		return
	}

	seed := make(map[string]bool)
	for _, m := range c.models {
		if !m.Enabled {
			seed[m.ModelID] = true
		}
	}
	c.hidden = seed
	if err := c.prefs.SetHiddenModels(seed); err != nil {
		c.logger.Warn().Err(err).Msg("failed to persist hidden set")
	}
}

// ToggleVisibility flips a model in or out of the hidden set, persists the
// set, and recomputes the visible grouping. When the currently selected
// model becomes hidden, the default-selection policy is reapplied.
func (c *Catalog) ToggleVisibility(modelID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hidden[modelID] {
		delete(c.hidden, modelID)
	} else {
		c.hidden[modelID] = true
	}

	if err := c.prefs.SetHiddenModels(c.hidden); err != nil {
		return err
	}

	c.regroupLocked()
	if c.hidden[c.selected] {
		c.applySelectionLocked()
	}
	return nil
}

// IsHidden reports whether a model is currently hidden.
func (c *Catalog) IsHidden(modelID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hidden[modelID]
}

// =============================================================================
// DERIVED STATE
// =============================================================================

// visibleLocked returns the non-hidden models in catalog order.
func (c *Catalog) visibleLocked() []model.UserModel {
	visible := make([]model.UserModel, 0, len(c.models))
	for _, m := range c.models {
		if !c.hidden[m.ModelID] {
			visible = append(visible, m)
		}
	}
	return visible
}

// regroupLocked recomputes the provider grouping of visible models.
func (c *Catalog) regroupLocked() {
	c.groups = model.GroupByProvider(c.visibleLocked())
}

// Models returns the full catalog, hidden entries included.
func (c *Catalog) Models() []model.UserModel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.UserModel, len(c.models))
	copy(out, c.models)
	return out
}

// Visible returns the non-hidden models in catalog order.
func (c *Catalog) Visible() []model.UserModel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.visibleLocked()
}

// Groups returns the visible models grouped by provider.
func (c *Catalog) Groups() []model.ModelGroup {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.groups
}

// Lookup returns the catalog entry for a model id.
func (c *Catalog) Lookup(modelID string) (model.UserModel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.models {
		if m.ModelID == modelID {
			return m, true
		}
	}
	return model.UserModel{}, false
}

// =============================================================================
// SELECTION
// =============================================================================

// applySelectionLocked applies the default-selection priority:
// persisted last-used id if visible, else first visible pinned model,
// else first visible model, else no selection.
func (c *Catalog) applySelectionLocked() {
	visible := c.visibleLocked()

	if id, ok, err := c.prefs.LastModelID(); err == nil && ok {
		for _, m := range visible {
			if m.ModelID == id {
				c.selected = id
				return
			}
		}
	}

	for _, m := range visible {
		if m.Pinned {
			c.selected = m.ModelID
			return
		}
	}

	if len(visible) > 0 {
		c.selected = visible[0].ModelID
		return
	}

	c.selected = ""
}

// Selected returns the currently selected model id, empty when none.
func (c *Catalog) Selected() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selected
}

// ErrUnknownModel indicates a selection of a model that is absent from the
// catalog or currently hidden.
var ErrUnknownModel = errors.New("model is not visible in the catalog")

// Select marks a visible model as the active selection and persists it as
// the last-used model.
func (c *Catalog) Select(modelID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	found := false
	for _, m := range c.visibleLocked() {
		if m.ModelID == modelID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}

	c.selected = modelID
	return c.prefs.SetLastModelID(modelID)
}

// =============================================================================
// PROVIDER RESTORE
// =============================================================================

// ProviderFor returns the provider to preselect when reopening a model:
// the persisted last-used provider, but only if it is still present in the
// model's currently available provider list. Empty means auto.
func (c *Catalog) ProviderFor(ctx context.Context, modelID string) (string, error) {
	last, ok, err := c.prefs.LastProvider(modelID)
	if err != nil || !ok {
		return "", err
	}

	providers, err := c.backend.ListModelProviders(ctx, modelID)
	if err != nil {
		return "", err
	}
	if model.ContainsProvider(providers, last) {
		return last, nil
	}
	return "", nil
}

// RecordProvider persists the provider just used for a model.
func (c *Catalog) RecordProvider(modelID, provider string) error {
	return c.prefs.SetLastProvider(modelID, provider)
}
