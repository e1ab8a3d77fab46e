// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/mforge/claudechat/internal/util"
)

// =============================================================================
// SESSION TYPE
// =============================================================================

// Session holds one conversation: its generation parameters as recorded at
// creation time and the ordered message history. Messages are strictly
// append-ordered; nothing reorders or edits them after the fact.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Model        string  `json:"model"`
	MaxTokens    int     `json:"max_tokens"`
	Temperature  float64 `json:"temperature"`
	SystemPrompt string  `json:"system_prompt,omitempty"`

	Messages []Message `json:"messages"`
}

// Params are the generation parameters captured when a session is created.
// They are a snapshot of the live config, not a reference to it.
type Params struct {
	Model        string
	MaxTokens    int
	Temperature  float64
	SystemPrompt string
}

// Append adds a message to the end of the history.
func (s *Session) Append(msg Message) {
	s.Messages = append(s.Messages, msg)
}

// MessageCount returns the number of messages.
func (s *Session) MessageCount() int {
	return len(s.Messages)
}

// IsEmpty returns true if there are no messages.
func (s *Session) IsEmpty() bool {
	return len(s.Messages) == 0
}

// FirstUserMessage returns the first user message, or nil.
func (s *Session) FirstUserMessage() *Message {
	for i := range s.Messages {
		if s.Messages[i].Role == RoleUser {
			return &s.Messages[i]
		}
	}
	return nil
}

// Preview returns a short preview of the session, taken from the first user
// message the way the history sidebar titles a chat.
func (s *Session) Preview(maxLen int) string {
	first := s.FirstUserMessage()
	if first == nil {
		return "Empty chat"
	}
	return first.Preview(maxLen)
}

// Meta returns lightweight metadata for listing.
func (s *Session) Meta() SessionMeta {
	return SessionMeta{
		ID:           s.ID,
		CreatedAt:    s.CreatedAt,
		Model:        s.Model,
		MessageCount: len(s.Messages),
		Preview:      s.Preview(80),
	}
}

// Clone creates a deep copy of the session.
func (s *Session) Clone() *Session {
	clone := *s
	clone.Messages = make([]Message, len(s.Messages))
	copy(clone.Messages, s.Messages)
	return &clone
}

// SessionMeta holds lightweight metadata for the history list.
type SessionMeta struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Model        string    `json:"model"`
	MessageCount int       `json:"message_count"`
	Preview      string    `json:"preview"`
}

// =============================================================================
// EXPORT
// =============================================================================

// ExportMarkdown renders the session as a Markdown document.
func (s *Session) ExportMarkdown() string {
	var sb strings.Builder
	sb.WriteString("# Session " + s.ID + "\n\n")
	sb.WriteString("Created: " + s.CreatedAt.Format(time.RFC3339) + "\n")
	sb.WriteString("Model: " + s.Model + "\n\n---\n\n")

	for i := range s.Messages {
		msg := &s.Messages[i]
		sb.WriteString("**" + msg.Role.DisplayName() + "** (" + msg.Timestamp.Format("15:04") + "):\n\n")
		sb.WriteString(msg.Content)
		if msg.Error != "" {
			sb.WriteString("\n\n> Error: " + msg.Error)
		}
		sb.WriteString("\n\n---\n\n")
	}

	return sb.String()
}

// ExportJSON renders the session as pretty-printed JSON.
func (s *Session) ExportJSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// TotalTokens sums the token counts recorded on all messages.
func (s *Session) TotalTokens() (inputTokens, outputTokens int) {
	for i := range s.Messages {
		inputTokens += s.Messages[i].InputTokens
		outputTokens += s.Messages[i].OutputTokens
	}
	return inputTokens, outputTokens
}

// Title returns the preview with a fixed sidebar width, matching the
// original history list's 48-character titles.
func (s *Session) Title() string {
	return util.TruncateRunes(s.Preview(48), 48)
}
