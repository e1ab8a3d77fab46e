// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for sessions and messages.
package model

import (
	"strings"
	"time"

	"github.com/mforge/claudechat/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Claude"
	default:
		return string(r)
	}
}

// =============================================================================
// STOP REASONS
// =============================================================================

// Stop reason values recorded on assistant messages. StopEndTurn is the
// provider's normal-completion code; anything else signals truncated or
// abnormal termination. StopCancelled is synthetic — it never comes from the
// provider and marks a user-cancelled stream whose partial text was kept.
const (
	StopEndTurn   = "end_turn"
	StopMaxTokens = "max_tokens"
	StopCancelled = "cancelled"
)

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single turn in a session.
//
// Token accounting is one-sided: InputTokens is populated only on assistant
// messages (the prompt tokens the provider reported for that exchange) and
// OutputTokens only on assistant messages as well; user messages carry zero
// counts. The ledger is re-derivable from session files because every billed
// token lands on exactly one message.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`

	// StopReason is set only on assistant messages.
	StopReason string `json:"stop_reason,omitempty"`

	// Error carries the transport error description for a failed exchange.
	// A message with Error set may still hold partial content.
	Error string `json:"error,omitempty"`
}

// NewUserMessage creates a user message stamped with the current time.
func NewUserMessage(content string) Message {
	return Message{
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// NewAssistantMessage creates a completed assistant message.
func NewAssistantMessage(content, stopReason string, inputTokens, outputTokens int) Message {
	return Message{
		Role:         RoleAssistant,
		Content:      content,
		Timestamp:    time.Now().UTC(),
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		StopReason:   stopReason,
	}
}

// IsError reports whether the message records a failed exchange.
func (m *Message) IsError() bool {
	return m.Error != ""
}

// Preview returns a single-line truncated preview of the message content.
func (m *Message) Preview(maxLen int) string {
	content := strings.ReplaceAll(m.Content, "\n", " ")
	content = strings.ReplaceAll(content, "\r", "")
	return util.TruncateRunes(content, maxLen)
}

// =============================================================================
// STREAMING BUILDER
// =============================================================================

// AssistantBuilder accumulates a streaming assistant message.
// PERFORMANCE: strings.Builder avoids quadratic allocations during streaming.
type AssistantBuilder struct {
	buf          strings.Builder
	inputTokens  int
	outputTokens int
}

// Append adds a text fragment to the growing message.
func (b *AssistantBuilder) Append(text string) {
	b.buf.WriteString(text)
}

// SetUsage records the token counts reported by the transport so far.
// Counts only move forward; a stale usage event never lowers them.
func (b *AssistantBuilder) SetUsage(inputTokens, outputTokens int) {
	if inputTokens > b.inputTokens {
		b.inputTokens = inputTokens
	}
	if outputTokens > b.outputTokens {
		b.outputTokens = outputTokens
	}
}

// Len returns the number of bytes accumulated so far.
func (b *AssistantBuilder) Len() int {
	return b.buf.Len()
}

// Content returns the text accumulated so far.
func (b *AssistantBuilder) Content() string {
	return b.buf.String()
}

// Usage returns the token counts reported so far.
func (b *AssistantBuilder) Usage() (inputTokens, outputTokens int) {
	return b.inputTokens, b.outputTokens
}

// Finalize produces the assistant message for a normally completed stream.
func (b *AssistantBuilder) Finalize(stopReason string) Message {
	return NewAssistantMessage(b.buf.String(), stopReason, b.inputTokens, b.outputTokens)
}

// FinalizeError produces the assistant message for a failed exchange,
// preserving whatever partial content was accumulated.
func (b *AssistantBuilder) FinalizeError(errDesc string) Message {
	msg := Message{
		Role:         RoleAssistant,
		Content:      b.buf.String(),
		Timestamp:    time.Now().UTC(),
		InputTokens:  b.inputTokens,
		OutputTokens: b.outputTokens,
		Error:        errDesc,
	}
	return msg
}
