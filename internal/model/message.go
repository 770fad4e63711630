// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"bytes"
	"strings"
	"time"

	"github.com/nanochat/nanochat-go/internal/util"
)

// =============================================================================
// ROLES
// =============================================================================

// Role identifies the author of a message.
type Role string

const (
	// RoleUser is a message written by the user.
	RoleUser Role = "user"

	// RoleAssistant is a message produced by the backend model.
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is one turn inside a conversation.
//
// While the backend is still generating an assistant turn, the message exists
// with role "assistant" and empty content; content becomes non-empty exactly
// once when generation completes.
type Message struct {
	// Identity
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`

	// Content
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Reasoning string `json:"reasoning,omitempty"`

	// Model is the model id that produced an assistant message, if reported.
	Model string `json:"model,omitempty"`

	// Attachments
	Images    []ImageAttachment    `json:"images,omitempty"`
	Documents []DocumentAttachment `json:"documents,omitempty"`

	// Starred marks a message the user flagged for later.
	Starred bool `json:"starred,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// IsComplete reports whether this message is a finished assistant turn.
func (m *Message) IsComplete() bool {
	return m.Role == RoleAssistant && m.Content != ""
}

// HasAttachments reports whether the message references any uploads.
func (m *Message) HasAttachments() bool {
	return len(m.Images) > 0 || len(m.Documents) > 0
}

// Preview returns the first maxRunes characters of the content with newlines
// collapsed, suitable for list display.
func (m *Message) Preview(maxRunes int) string {
	content := strings.ReplaceAll(m.Content, "\n", " ")
	content = strings.ReplaceAll(content, "\r", "")
	return util.TruncateRunes(content, maxRunes)
}

// LatestMessage returns the most recent message in a server-ordered list,
// or nil if the list is empty.
func LatestMessage(msgs []Message) *Message {
	if len(msgs) == 0 {
		return nil
	}
	return &msgs[len(msgs)-1]
}

// LastUserMessage returns the most recent user message, or nil if none exists.
func LastUserMessage(msgs []Message) *Message {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			return &msgs[i]
		}
	}
	return nil
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

// ImageAttachment references an image stored server-side.
// The storage object is shared; deleting a message does not delete it.
type ImageAttachment struct {
	StorageID string `json:"storage_id"`
	URL       string `json:"url"`
	Filename  string `json:"filename"`
}

// DocumentType tags the format of a document attachment.
type DocumentType string

const (
	DocumentPDF      DocumentType = "pdf"
	DocumentMarkdown DocumentType = "markdown"
	DocumentText     DocumentType = "text"
	DocumentEPUB     DocumentType = "epub"
)

// DocumentAttachment references a document stored server-side.
type DocumentAttachment struct {
	StorageID string       `json:"storage_id"`
	URL       string       `json:"url"`
	Filename  string       `json:"filename"`
	Type      DocumentType `json:"type"`
}

// DetectDocumentType maps a filename extension to a document type.
// Unknown extensions fall back to plain text.
func DetectDocumentType(filename string) DocumentType {
	name := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(name, ".pdf"):
		return DocumentPDF
	case strings.HasSuffix(name, ".md"), strings.HasSuffix(name, ".markdown"):
		return DocumentMarkdown
	case strings.HasSuffix(name, ".epub"):
		return DocumentEPUB
	default:
		return DocumentText
	}
}

// =============================================================================
// IMAGE MIME SNIFFING
// =============================================================================

// Magic byte prefixes for the image formats the backend accepts.
var (
	magicPNG  = []byte{0x89, 0x50, 0x4E, 0x47}
	magicJPEG = []byte{0xFF, 0xD8, 0xFF}
	magicGIF  = []byte("GIF8")
	magicRIFF = []byte("RIFF")
	magicWEBP = []byte("WEBP")
)

// SniffImageMIME returns the MIME type for known image magic bytes.
// Returns "application/octet-stream" when the prefix is not recognized.
func SniffImageMIME(data []byte) string {
	switch {
	case bytes.HasPrefix(data, magicPNG):
		return "image/png"
	case bytes.HasPrefix(data, magicJPEG):
		return "image/jpeg"
	case bytes.HasPrefix(data, magicGIF):
		return "image/gif"
	case bytes.HasPrefix(data, magicRIFF) && len(data) >= 12 && bytes.Equal(data[8:12], magicWEBP):
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
