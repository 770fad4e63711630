// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
)

// =============================================================================
// USER MODEL TYPE
// =============================================================================

// Capabilities describes what a catalog model can do.
type Capabilities struct {
	Vision    bool `json:"vision"`
	Reasoning bool `json:"reasoning"`
	Images    bool `json:"images"`
	Video     bool `json:"video"`
}

// UserModel is one selectable entry in the backend's model catalog.
//
// ModelID is unique within a catalog. Enabled and Pinned are server-declared
// defaults; user-side visibility lives in the catalog's hidden set, not here.
type UserModel struct {
	ModelID     string `json:"model_id"`
	Provider    string `json:"provider"`
	Enabled     bool   `json:"enabled"`
	Pinned      bool   `json:"pinned"`
	DisplayName string `json:"display_name"`
	Description string `json:"description,omitempty"`

	Capabilities Capabilities `json:"capabilities"`

	// Cost is an estimated cost per turn in dollars.
	Cost float64 `json:"cost,omitempty"`

	// Resolutions lists the output resolutions image/video models accept.
	Resolutions []string `json:"resolutions,omitempty"`

	// Params is the model-specific generation parameter schema, keyed by
	// parameter name.
	Params map[string]ParamValue `json:"params,omitempty"`
}

// Name returns the display name, falling back to the model id.
func (m UserModel) Name() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.ModelID
}

// CostString returns a formatted cost string for display.
func (m UserModel) CostString() string {
	if m.Cost == 0 {
		return "Free"
	}
	return fmt.Sprintf("$%.4f/turn", m.Cost)
}

// =============================================================================
// MODEL PROVIDER TYPE
// =============================================================================

// ModelProvider is one backend route able to serve a given model.
type ModelProvider struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ContainsProvider reports whether the provider id appears in the list.
func ContainsProvider(providers []ModelProvider, id string) bool {
	for _, p := range providers {
		if p.ID == id {
			return true
		}
	}
	return false
}

// =============================================================================
// MODEL GROUPS
// =============================================================================

// ModelGroup groups catalog models by provider for display.
// Groups are derived and never persisted.
type ModelGroup struct {
	Provider string      `json:"provider"`
	Models   []UserModel `json:"models"`
}

// GroupByProvider partitions models into provider groups, preserving catalog
// order both across groups (by first appearance) and within each group.
func GroupByProvider(models []UserModel) []ModelGroup {
	var groups []ModelGroup
	index := make(map[string]int)

	for _, m := range models {
		i, ok := index[m.Provider]
		if !ok {
			i = len(groups)
			index[m.Provider] = i
			groups = append(groups, ModelGroup{Provider: m.Provider})
		}
		groups[i].Models = append(groups[i].Models, m)
	}

	return groups
}
