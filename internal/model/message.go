// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures shared between the sync engine,
// the transport, and the UI: messages, sessions, and configuration.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"

	// RoleSystem is reserved for client-synthesized error notices. It is
	// never sent to the backend as user input.
	RoleSystem Role = "system"
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
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// Valid reports whether the role is one of the three known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant || r == RoleSystem
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a session. Within a session's
// message list, position is the conversational order; there is no sequence
// number. Content is mutable only while the message is the in-flight
// assistant placeholder being filled by streamed deltas.
type Message struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`

	// LocalID identifies the message within this process only.
	// The backend has no message identity; it is not serialized.
	LocalID string `json:"-"`
}

// NewMessage creates a new message stamped with the current client time.
func NewMessage(role Role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().Format(time.RFC3339),
		LocalID:   uuid.NewString(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantPlaceholder creates the empty assistant message appended
// immediately on send, filled in by subsequent streamed deltas.
func NewAssistantPlaceholder() Message {
	return NewMessage(RoleAssistant, "")
}

// NewSystemNotice creates a client-synthesized system message.
func NewSystemNotice(content string) Message {
	return NewMessage(RoleSystem, content)
}

// IsEmptyAssistant reports whether the message is an assistant message with
// no content yet, i.e. an unfilled streaming placeholder.
func (m Message) IsEmptyAssistant() bool {
	return m.Role == RoleAssistant && m.Content == ""
}

// Preview returns the first maxLen runes of the content, single-line.
func (m Message) Preview(maxLen int) string {
	content := strings.Join(strings.Fields(m.Content), " ")
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	return string(runes[:maxLen]) + "..."
}
