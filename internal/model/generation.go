// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// =============================================================================
// WEB SEARCH MODE
// =============================================================================

// WebSearchMode controls whether the backend may augment a turn with search.
type WebSearchMode string

const (
	WebSearchOff   WebSearchMode = "off"
	WebSearchAuto  WebSearchMode = "auto"
	WebSearchForce WebSearchMode = "force"
)

// =============================================================================
// GENERATION REQUEST / RESPONSE
// =============================================================================

// GenerationRequest submits one user turn for generation.
//
// The response only acknowledges the submission; the assistant message is
// observed later by polling the conversation's message list.
type GenerationRequest struct {
	// Text is the user's message. A request is valid with empty text only
	// when at least one attachment is present.
	Text string `json:"text"`

	// ModelID selects the generation model.
	ModelID string `json:"model_id"`

	// ConversationID continues an existing conversation when set; when
	// empty the backend creates a new conversation and reports its id.
	ConversationID string `json:"conversation_id,omitempty"`

	// AssistantID selects a configured assistant persona, if any.
	AssistantID string `json:"assistant_id,omitempty"`

	// ProjectID associates a newly created conversation with a project.
	ProjectID string `json:"project_id,omitempty"`

	// Web search settings for this turn.
	WebSearchMode     WebSearchMode `json:"web_search_mode,omitempty"`
	WebSearchProvider string        `json:"web_search_provider,omitempty"`

	// Provider overrides the backend route serving the model.
	Provider string `json:"provider,omitempty"`

	// Attachments previously uploaded via the storage endpoint.
	Images    []ImageAttachment    `json:"images,omitempty"`
	Documents []DocumentAttachment `json:"documents,omitempty"`

	// Model-specific dynamic parameters.
	ImageParams map[string]ParamValue `json:"image_params,omitempty"`
	VideoParams map[string]ParamValue `json:"video_params,omitempty"`
}

// HasContent reports whether the request carries text or attachments.
func (r *GenerationRequest) HasContent() bool {
	return r.Text != "" || len(r.Images) > 0 || len(r.Documents) > 0
}

// GenerationResponse acknowledges a submitted turn.
type GenerationResponse struct {
	OK             bool   `json:"ok"`
	ConversationID string `json:"conversation_id"`
}
