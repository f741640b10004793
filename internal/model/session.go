// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// =============================================================================
// SESSION TYPE
// =============================================================================

// Session holds one conversation thread: server-assigned identity, metadata,
// an optional per-session config override, and a lazily loaded message list.
type Session struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`

	// Config is a sparse override of the global config. Nil means every
	// field falls back to the global value.
	Config *SessionConfig `json:"config,omitempty"`

	// Messages is empty until the session is selected and its history is
	// fetched. Append-only except for explicit truncation (revoke).
	Messages []Message `json:"messages"`

	// MessageCount is the authoritative count from the metadata endpoint,
	// used for display before Messages has been loaded.
	MessageCount int `json:"message_count,omitempty"`

	// Loaded marks that Messages reflects a completed history fetch.
	// Distinguishes "no messages yet" from "not fetched yet".
	Loaded bool `json:"-"`
}

// LastMessage returns the trailing message, or false if the list is empty.
func (s *Session) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// DisplayCount returns the number of messages to show in listings: the live
// list length once loaded, the server-reported count before that.
func (s *Session) DisplayCount() int {
	if s.Loaded {
		return len(s.Messages)
	}
	return s.MessageCount
}

// DisplayTitle returns the session title or a fallback.
func (s *Session) DisplayTitle() string {
	if s.Title != "" {
		return s.Title
	}
	return "New Conversation"
}

// Clone returns a deep copy of the session. The store hands clones to
// readers so cache internals are never aliased outside the mutation API.
func (s *Session) Clone() *Session {
	clone := *s
	clone.Messages = make([]Message, len(s.Messages))
	copy(clone.Messages, s.Messages)
	if s.Config != nil {
		cfg := *s.Config
		clone.Config = &cfg
	}
	return &clone
}

// =============================================================================
// WIRE ENVELOPES
// =============================================================================

// SessionList is the response envelope of the session metadata endpoint.
type SessionList struct {
	Sessions []Session `json:"sessions"`
	Total    int       `json:"total,omitempty"`
}

// MessageList is the response envelope of the message history endpoint.
type MessageList struct {
	Messages []Message `json:"messages"`
}
