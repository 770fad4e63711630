// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "testing"

func TestMessage_IsComplete(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want bool
	}{
		{"finished assistant turn", Message{Role: RoleAssistant, Content: "hi"}, true},
		{"assistant placeholder still generating", Message{Role: RoleAssistant, Content: ""}, false},
		{"user message never completes a turn", Message{Role: RoleUser, Content: "hi"}, false},
		{"empty user message", Message{Role: RoleUser}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.IsComplete(); got != tt.want {
				t.Errorf("IsComplete() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMessage_Preview(t *testing.T) {
	msg := Message{Content: "line one\nline two\r\nline three"}
	got := msg.Preview(100)
	want := "line one line two line three"
	if got != want {
		t.Errorf("Preview() = %q, want %q", got, want)
	}

	long := Message{Content: "abcdefghij"}
	if got := long.Preview(6); got != "abc..." {
		t.Errorf("Preview(6) = %q, want abc...", got)
	}
}

func TestLatestMessage(t *testing.T) {
	if LatestMessage(nil) != nil {
		t.Error("LatestMessage(nil) != nil")
	}

	msgs := []Message{
		{ID: "m1", Role: RoleUser},
		{ID: "m2", Role: RoleAssistant},
	}
	got := LatestMessage(msgs)
	if got == nil || got.ID != "m2" {
		t.Errorf("LatestMessage() = %+v, want m2", got)
	}
}

func TestLastUserMessage(t *testing.T) {
	msgs := []Message{
		{ID: "m1", Role: RoleUser, Content: "first"},
		{ID: "m2", Role: RoleAssistant, Content: "reply"},
		{ID: "m3", Role: RoleUser, Content: "second"},
		{ID: "m4", Role: RoleAssistant, Content: "reply2"},
	}

	got := LastUserMessage(msgs)
	if got == nil || got.ID != "m3" {
		t.Errorf("LastUserMessage() = %+v, want m3", got)
	}

	if LastUserMessage([]Message{{Role: RoleAssistant}}) != nil {
		t.Error("LastUserMessage() found a user message in assistant-only list")
	}
}

func TestDetectDocumentType(t *testing.T) {
	tests := []struct {
		filename string
		want     DocumentType
	}{
		{"paper.pdf", DocumentPDF},
		{"REPORT.PDF", DocumentPDF},
		{"notes.md", DocumentMarkdown},
		{"notes.markdown", DocumentMarkdown},
		{"book.epub", DocumentEPUB},
		{"raw.txt", DocumentText},
		{"no-extension", DocumentText},
	}

	for _, tt := range tests {
		if got := DetectDocumentType(tt.filename); got != tt.want {
			t.Errorf("DetectDocumentType(%q) = %v, want %v", tt.filename, got, tt.want)
		}
	}
}

func TestSniffImageMIME(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A}, "image/png"},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, "image/jpeg"},
		{"gif", []byte("GIF89a"), "image/gif"},
		{"webp", append([]byte("RIFF\x00\x00\x00\x00"), []byte("WEBP")...), "image/webp"},
		{"riff but not webp", []byte("RIFF\x00\x00\x00\x00WAVE"), "application/octet-stream"},
		{"unknown", []byte("plain text"), "application/octet-stream"},
		{"empty", nil, "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SniffImageMIME(tt.data); got != tt.want {
				t.Errorf("SniffImageMIME() = %q, want %q", got, tt.want)
			}
		})
	}
}
