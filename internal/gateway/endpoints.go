// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"net/http"
	"net/url"

	"github.com/nanochat/nanochat-go/internal/model"
)

// =============================================================================
// CONVERSATIONS
// =============================================================================

// ConversationListOptions filters the conversation listing.
type ConversationListOptions struct {
	// ProjectID restricts the listing to one project when non-empty.
	ProjectID string

	// Search restricts the listing to titles matching the query.
	Search string
}

// conversationList is the wire shape of the conversations listing.
type conversationList struct {
	Conversations []model.Conversation `json:"conversations"`
}

// ListConversations fetches the conversation list, optionally filtered.
func (c *Client) ListConversations(ctx context.Context, opts ConversationListOptions) ([]model.Conversation, error) {
	query := url.Values{}
	if opts.ProjectID != "" {
		query.Set("projectId", opts.ProjectID)
	}
	if opts.Search != "" {
		query.Set("search", opts.Search)
	}

	list, err := doJSON[conversationList](ctx, c, http.MethodGet, "conversations", query, nil)
	if err != nil {
		return nil, err
	}
	return list.Conversations, nil
}

// conversationAction is the POST body for conversation mutations.
type conversationAction struct {
	Action          string `json:"action"`
	ConversationID  string `json:"conversation_id,omitempty"`
	Title           string `json:"title,omitempty"`
	ProjectID       string `json:"project_id,omitempty"`
	SourceMessageID string `json:"source_message_id,omitempty"`
}

// conversationResult is the wire shape of a conversation mutation response.
type conversationResult struct {
	Conversation model.Conversation `json:"conversation"`
}

// CreateConversation creates an empty conversation, optionally under a project.
func (c *Client) CreateConversation(ctx context.Context, title, projectID string) (model.Conversation, error) {
	body := conversationAction{Action: "create", Title: title, ProjectID: projectID}
	res, err := doJSON[conversationResult](ctx, c, http.MethodPost, "conversations", nil, body)
	if err != nil {
		return model.Conversation{}, err
	}
	return res.Conversation, nil
}

// BranchConversation forks a conversation at the given message.
func (c *Client) BranchConversation(ctx context.Context, conversationID, sourceMessageID string) (model.Conversation, error) {
	body := conversationAction{Action: "branch", ConversationID: conversationID, SourceMessageID: sourceMessageID}
	res, err := doJSON[conversationResult](ctx, c, http.MethodPost, "conversations", nil, body)
	if err != nil {
		return model.Conversation{}, err
	}
	return res.Conversation, nil
}

// SetConversationProject moves a conversation into a project. An empty
// projectID removes the association.
func (c *Client) SetConversationProject(ctx context.Context, conversationID, projectID string) error {
	body := conversationAction{Action: "setProject", ConversationID: conversationID, ProjectID: projectID}
	return c.doStatus(ctx, http.MethodPost, "conversations", nil, body)
}

// ToggleConversationPin flips the pinned flag of a conversation.
func (c *Client) ToggleConversationPin(ctx context.Context, conversationID string) error {
	body := conversationAction{Action: "togglePin", ConversationID: conversationID}
	return c.doStatus(ctx, http.MethodPost, "conversations", nil, body)
}

// UpdateConversationTitle renames a conversation.
func (c *Client) UpdateConversationTitle(ctx context.Context, conversationID, title string) error {
	body := conversationAction{Action: "updateTitle", ConversationID: conversationID, Title: title}
	return c.doStatus(ctx, http.MethodPost, "conversations", nil, body)
}

// DeleteConversation removes a conversation. Message deletion cascades
// server-side.
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	return c.doStatus(ctx, http.MethodDelete, "conversations/"+conversationID, nil, nil)
}

// =============================================================================
// MESSAGES
// =============================================================================

// messageList is the wire shape of the messages listing.
type messageList struct {
	Messages []model.Message `json:"messages"`
}

// ListMessages fetches all messages of a conversation in server order.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	query := url.Values{}
	query.Set("conversationId", conversationID)

	list, err := doJSON[messageList](ctx, c, http.MethodGet, "messages", query, nil)
	if err != nil {
		return nil, err
	}
	return list.Messages, nil
}

// messageAction is the POST body for message mutations.
type messageAction struct {
	Action         string `json:"action"`
	MessageID      string `json:"message_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Role           string `json:"role,omitempty"`
	Content        string `json:"content,omitempty"`
	Starred        *bool  `json:"starred,omitempty"`
}

// messageResult is the wire shape of a message mutation response.
type messageResult struct {
	Message model.Message `json:"message"`
}

// CreateMessage appends a message to a conversation without triggering
// generation.
func (c *Client) CreateMessage(ctx context.Context, conversationID string, role model.Role, content string) (model.Message, error) {
	body := messageAction{Action: "create", ConversationID: conversationID, Role: role.String(), Content: content}
	res, err := doJSON[messageResult](ctx, c, http.MethodPost, "messages", nil, body)
	if err != nil {
		return model.Message{}, err
	}
	return res.Message, nil
}

// UpdateMessageContent edits a message's text.
func (c *Client) UpdateMessageContent(ctx context.Context, messageID, content string) error {
	body := messageAction{Action: "updateContent", MessageID: messageID, Content: content}
	return c.doStatus(ctx, http.MethodPost, "messages", nil, body)
}

// SetMessageStarred stars or unstars a message.
func (c *Client) SetMessageStarred(ctx context.Context, messageID string, starred bool) error {
	body := messageAction{Action: "setStarred", MessageID: messageID, Starred: &starred}
	return c.doStatus(ctx, http.MethodPost, "messages", nil, body)
}

// =============================================================================
// GENERATION
// =============================================================================

// GenerateMessage submits one user turn. The response acknowledges the
// submission and resolves the conversation id; the assistant message itself
// is observed by polling ListMessages.
func (c *Client) GenerateMessage(ctx context.Context, req model.GenerationRequest) (model.GenerationResponse, error) {
	return doJSON[model.GenerationResponse](ctx, c, http.MethodPost, "generate-message", nil, req)
}

// =============================================================================
// MODELS
// =============================================================================

// modelList is the wire shape of the model catalog.
type modelList struct {
	Models []model.UserModel `json:"models"`
}

// ListModels fetches the full model catalog with capabilities and pricing.
func (c *Client) ListModels(ctx context.Context) ([]model.UserModel, error) {
	list, err := doJSON[modelList](ctx, c, http.MethodGet, "models", nil, nil)
	if err != nil {
		return nil, err
	}
	return list.Models, nil
}

// providerList is the wire shape of the model-providers listing.
type providerList struct {
	Providers []model.ModelProvider `json:"providers"`
}

// ListModelProviders fetches the backend providers currently able to serve
// the given model.
func (c *Client) ListModelProviders(ctx context.Context, modelID string) ([]model.ModelProvider, error) {
	query := url.Values{}
	query.Set("modelId", modelID)

	list, err := doJSON[providerList](ctx, c, http.MethodGet, "model-providers", query, nil)
	if err != nil {
		return nil, err
	}
	return list.Providers, nil
}

// =============================================================================
// STORAGE & TRANSCRIPTION
// =============================================================================

// StorageObject references an uploaded file.
type StorageObject struct {
	StorageID string `json:"storageId"`
	URL       string `json:"url"`
}

// UploadFile uploads raw file bytes to the storage endpoint. The filename
// travels in the x-filename header; the MIME type is sniffed for images and
// derived from the filename otherwise.
func (c *Client) UploadFile(ctx context.Context, filename string, data []byte) (StorageObject, error) {
	mime := model.SniffImageMIME(data)
	return doBinary[StorageObject](ctx, c, "storage", filename, mime, data)
}

// Transcription is the result of an audio transcription upload.
type Transcription struct {
	Text string `json:"text"`
}

// TranscribeAudio uploads recorded audio as multipart/form-data and returns
// the transcribed text.
func (c *Client) TranscribeAudio(ctx context.Context, filename, mime string, data []byte) (Transcription, error) {
	file := MultipartFile{Field: "file", Filename: filename, MIME: mime, Data: data}
	return doMultipart[Transcription](ctx, c, "transcribe", file, nil)
}
