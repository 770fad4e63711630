// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nanochat/nanochat-go/internal/model"
	"github.com/nanochat/nanochat-go/internal/store"
)

// fakeBackend serves a scripted model list.
type fakeBackend struct {
	models    []model.UserModel
	listErr   error
	providers []model.ModelProvider
	listCalls int
}

func (f *fakeBackend) ListModels(ctx context.Context) ([]model.UserModel, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.models, nil
}

func (f *fakeBackend) ListModelProviders(ctx context.Context, modelID string) ([]model.ModelProvider, error) {
	return f.providers, nil
}

func testModels() []model.UserModel {
	return []model.UserModel{
		{ModelID: "alpha", Provider: "openai", Enabled: true},
		{ModelID: "beta", Provider: "openai", Enabled: true, Pinned: true},
		{ModelID: "gamma", Provider: "anthropic", Enabled: true},
		{ModelID: "delta", Provider: "anthropic", Enabled: false},
	}
}

func newTestCatalog(t *testing.T, backend Backend, ttl time.Duration) (*Catalog, *store.Store) {
	t.Helper()
	prefs, err := store.Open(filepath.Join(t.TempDir(), "prefs.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { prefs.Close() })
	return New(backend, prefs, zerolog.Nop(), ttl), prefs
}

func TestLoad_FetchesOnEmptyCache(t *testing.T) {
	backend := &fakeBackend{models: testModels()}
	c, prefs := newTestCatalog(t, backend, time.Hour)

	status, err := c.Load(context.Background(), false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if status.FromCache || !status.Fetched {
		t.Errorf("status = %+v, want fetched without cache", status)
	}
	if len(c.Models()) != 4 {
		t.Errorf("Models() count = %d, want 4", len(c.Models()))
	}

	// The fetch must have persisted the catalog blob.
	cached, _, ok, err := prefs.Catalog()
	if err != nil || !ok {
		t.Fatalf("prefs.Catalog() = ok %v, err %v; want persisted", ok, err)
	}
	if len(cached) != 4 {
		t.Errorf("persisted models = %d, want 4", len(cached))
	}
}

func TestLoad_FreshCacheSkipsFetch(t *testing.T) {
	backend := &fakeBackend{models: testModels()}
	c, prefs := newTestCatalog(t, backend, time.Hour)

	if err := prefs.SetCatalog(testModels(), time.Now()); err != nil {
		t.Fatalf("SetCatalog() error = %v", err)
	}

	status, err := c.Load(context.Background(), false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !status.FromCache || status.Fetched {
		t.Errorf("status = %+v, want cache-only", status)
	}
	if backend.listCalls != 0 {
		t.Errorf("ListModels called %d times, want 0", backend.listCalls)
	}
}

func TestLoad_StaleCacheRefetches(t *testing.T) {
	backend := &fakeBackend{models: testModels()}
	c, prefs := newTestCatalog(t, backend, time.Hour)

	if err := prefs.SetCatalog(testModels()[:1], time.Now().Add(-2*time.Hour)); err != nil {
		t.Fatalf("SetCatalog() error = %v", err)
	}

	status, err := c.Load(context.Background(), false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !status.FromCache || !status.Fetched {
		t.Errorf("status = %+v, want cache populated then fetched", status)
	}
	if len(c.Models()) != 4 {
		t.Errorf("Models() count = %d, want refetched 4", len(c.Models()))
	}
}

func TestLoad_FetchFailureKeepsCache(t *testing.T) {
	backend := &fakeBackend{listErr: errors.New("backend down")}
	c, prefs := newTestCatalog(t, backend, time.Hour)

	if err := prefs.SetCatalog(testModels(), time.Now().Add(-2*time.Hour)); err != nil {
		t.Fatalf("SetCatalog() error = %v", err)
	}

	status, err := c.Load(context.Background(), false)
	if err != nil {
		t.Fatalf("Load() error = %v, want non-fatal with cache", err)
	}
	if status.FetchErr == nil {
		t.Error("status.FetchErr = nil, want fetch error surfaced")
	}
	if len(c.Models()) != 4 {
		t.Errorf("Models() count = %d, want cached 4", len(c.Models()))
	}
}

func TestLoad_FetchFailureWithoutCacheFails(t *testing.T) {
	backend := &fakeBackend{listErr: errors.New("backend down")}
	c, _ := newTestCatalog(t, backend, time.Hour)

	_, err := c.Load(context.Background(), false)
	if err == nil {
		t.Fatal("Load() error = nil, want failure with no cache")
	}
}

func TestLoad_ForceRefreshBypassesFreshCache(t *testing.T) {
	backend := &fakeBackend{models: testModels()}
	c, prefs := newTestCatalog(t, backend, time.Hour)

	if err := prefs.SetCatalog(testModels()[:1], time.Now()); err != nil {
		t.Fatalf("SetCatalog() error = %v", err)
	}

	status, err := c.Load(context.Background(), true)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !status.Fetched {
		t.Errorf("status = %+v, want fetched", status)
	}
	if len(c.Models()) != 4 {
		t.Errorf("Models() count = %d, want 4", len(c.Models()))
	}
}

func TestHiddenSet_FirstRunSeedsFromDisabled(t *testing.T) {
	backend := &fakeBackend{models: testModels()}
	c, prefs := newTestCatalog(t, backend, time.Hour)

	if _, err := c.Load(context.Background(), false); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !c.IsHidden("delta") {
		t.Error("server-disabled model not seeded into hidden set")
	}
	if c.IsHidden("alpha") {
		t.Error("enabled model seeded into hidden set")
	}

	// Seeding persists, so the key now exists.
	if _, ok, err := prefs.HiddenModels(); err != nil || !ok {
		t.Errorf("HiddenModels() = ok %v, err %v; want persisted", ok, err)
	}
}

func TestHiddenSet_PersistedSetIsAuthoritative(t *testing.T) {
	backend := &fakeBackend{models: testModels()}
	c, prefs := newTestCatalog(t, backend, time.Hour)

	// A user previously unhid delta and hid alpha; server flags must not
	// recompute this on later loads.
	if err := prefs.SetHiddenModels(map[string]bool{"alpha": true}); err != nil {
		t.Fatalf("SetHiddenModels() error = %v", err)
	}

	if _, err := c.Load(context.Background(), false); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !c.IsHidden("alpha") {
		t.Error("persisted hidden model not honored")
	}
	if c.IsHidden("delta") {
		t.Error("server-disabled model re-seeded over persisted set")
	}
}

func TestToggleVisibility_ReappliesSelection(t *testing.T) {
	backend := &fakeBackend{models: testModels()}
	c, _ := newTestCatalog(t, backend, time.Hour)

	if _, err := c.Load(context.Background(), false); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Pinned beta wins the default selection.
	if got := c.Selected(); got != "beta" {
		t.Fatalf("Selected() = %q, want beta", got)
	}

	if err := c.ToggleVisibility("beta"); err != nil {
		t.Fatalf("ToggleVisibility() error = %v", err)
	}
	if !c.IsHidden("beta") {
		t.Error("beta not hidden after toggle")
	}

	// Hiding the selected model falls back to the first visible model.
	if got := c.Selected(); got != "alpha" {
		t.Errorf("Selected() after hiding beta = %q, want alpha", got)
	}

	if err := c.ToggleVisibility("beta"); err != nil {
		t.Fatalf("ToggleVisibility() unhide error = %v", err)
	}
	if c.IsHidden("beta") {
		t.Error("beta still hidden after second toggle")
	}
}

func TestSelection_Priority(t *testing.T) {
	t.Run("persisted last-used wins when visible", func(t *testing.T) {
		backend := &fakeBackend{models: testModels()}
		c, prefs := newTestCatalog(t, backend, time.Hour)

		if err := prefs.SetLastModelID("gamma"); err != nil {
			t.Fatalf("SetLastModelID() error = %v", err)
		}
		if _, err := c.Load(context.Background(), false); err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got := c.Selected(); got != "gamma" {
			t.Errorf("Selected() = %q, want gamma", got)
		}
	})

	t.Run("hidden last-used falls through to pinned", func(t *testing.T) {
		backend := &fakeBackend{models: testModels()}
		c, prefs := newTestCatalog(t, backend, time.Hour)

		if err := prefs.SetLastModelID("gamma"); err != nil {
			t.Fatalf("SetLastModelID() error = %v", err)
		}
		if err := prefs.SetHiddenModels(map[string]bool{"gamma": true}); err != nil {
			t.Fatalf("SetHiddenModels() error = %v", err)
		}
		if _, err := c.Load(context.Background(), false); err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got := c.Selected(); got != "beta" {
			t.Errorf("Selected() = %q, want pinned beta", got)
		}
	})

	t.Run("no pinned falls through to first visible", func(t *testing.T) {
		models := []model.UserModel{
			{ModelID: "one", Provider: "p", Enabled: true},
			{ModelID: "two", Provider: "p", Enabled: true},
		}
		backend := &fakeBackend{models: models}
		c, _ := newTestCatalog(t, backend, time.Hour)

		if _, err := c.Load(context.Background(), false); err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got := c.Selected(); got != "one" {
			t.Errorf("Selected() = %q, want one", got)
		}
	})

	t.Run("empty catalog selects nothing", func(t *testing.T) {
		backend := &fakeBackend{}
		c, _ := newTestCatalog(t, backend, time.Hour)

		if _, err := c.Load(context.Background(), false); err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got := c.Selected(); got != "" {
			t.Errorf("Selected() = %q, want empty", got)
		}
	})
}

func TestSelect_RejectsUnknownAndHidden(t *testing.T) {
	backend := &fakeBackend{models: testModels()}
	c, prefs := newTestCatalog(t, backend, time.Hour)

	if _, err := c.Load(context.Background(), false); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if err := c.Select("nonexistent"); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("Select(nonexistent) error = %v, want ErrUnknownModel", err)
	}
	if err := c.Select("delta"); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("Select(hidden) error = %v, want ErrUnknownModel", err)
	}

	if err := c.Select("gamma"); err != nil {
		t.Fatalf("Select(gamma) error = %v", err)
	}
	if got := c.Selected(); got != "gamma" {
		t.Errorf("Selected() = %q, want gamma", got)
	}

	// Selection persists as last-used.
	id, ok, err := prefs.LastModelID()
	if err != nil || !ok || id != "gamma" {
		t.Errorf("LastModelID() = %q, %v, %v; want gamma", id, ok, err)
	}
}

func TestGroups_VisibleOnly(t *testing.T) {
	backend := &fakeBackend{models: testModels()}
	c, _ := newTestCatalog(t, backend, time.Hour)

	if _, err := c.Load(context.Background(), false); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	groups := c.Groups()
	if len(groups) != 2 {
		t.Fatalf("Groups() count = %d, want 2", len(groups))
	}
	if groups[0].Provider != "openai" || len(groups[0].Models) != 2 {
		t.Errorf("groups[0] = %s with %d models", groups[0].Provider, len(groups[0].Models))
	}
	// delta is hidden, so anthropic has only gamma.
	if groups[1].Provider != "anthropic" || len(groups[1].Models) != 1 {
		t.Errorf("groups[1] = %s with %d models", groups[1].Provider, len(groups[1].Models))
	}
}

func TestProviderFor_RestoreGuard(t *testing.T) {
	backend := &fakeBackend{
		models: testModels(),
		providers: []model.ModelProvider{
			{ID: "openrouter", Name: "OpenRouter"},
		},
	}
	c, _ := newTestCatalog(t, backend, time.Hour)
	ctx := context.Background()

	// No persisted provider: empty restore, no error.
	p, err := c.ProviderFor(ctx, "alpha")
	if err != nil || p != "" {
		t.Fatalf("ProviderFor() = %q, %v; want empty", p, err)
	}

	// Persisted and still available: restored.
	if err := c.RecordProvider("alpha", "openrouter"); err != nil {
		t.Fatalf("RecordProvider() error = %v", err)
	}
	p, err = c.ProviderFor(ctx, "alpha")
	if err != nil || p != "openrouter" {
		t.Fatalf("ProviderFor() = %q, %v; want openrouter", p, err)
	}

	// Persisted but no longer offered: falls back to auto.
	backend.providers = []model.ModelProvider{{ID: "direct"}}
	p, err = c.ProviderFor(ctx, "alpha")
	if err != nil || p != "" {
		t.Fatalf("ProviderFor() after provider removal = %q, %v; want empty", p, err)
	}
}
