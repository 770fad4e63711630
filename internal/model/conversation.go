// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"
)

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is a thread of messages tracked by the backend.
//
// The Generating flag is server-reported and indicates an assistant turn is
// still in flight; the generation session controller polls it until it clears.
type Conversation struct {
	// Identity
	ID    string `json:"id"`
	Title string `json:"title"`

	// ProjectID associates the conversation with a project, if any.
	ProjectID string `json:"project_id,omitempty"`

	// Pinned keeps the conversation at the top of listings.
	Pinned bool `json:"pinned"`

	// Generating is true while the backend is producing an assistant turn.
	Generating bool `json:"generating"`

	// Cost is the accumulated generation cost in dollars, when reported.
	Cost float64 `json:"cost,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayTitle returns the title or a placeholder for untitled conversations.
func (c *Conversation) DisplayTitle() string {
	if strings.TrimSpace(c.Title) != "" {
		return c.Title
	}
	return "New Conversation"
}

// =============================================================================
// LOOKUP HELPERS
// =============================================================================

// FindConversation returns the conversation with the given id from a list,
// or nil if it is not present.
func FindConversation(convs []Conversation, id string) *Conversation {
	for i := range convs {
		if convs[i].ID == id {
			return &convs[i]
		}
	}
	return nil
}

// SortKey orders pinned conversations first, then by most recent update.
// Intended for use with sort.Slice.
func SortKey(a, b *Conversation) bool {
	if a.Pinned != b.Pinned {
		return a.Pinned
	}
	return a.UpdatedAt.After(b.UpdatedAt)
}
