// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import "github.com/jeranaias/tidal-tui/internal/model"

// =============================================================================
// WIRE FRAMES
// =============================================================================

// Frame type discriminators used by the backend.
const (
	// FrameUserMessageSaved acknowledges that the user message reached the
	// server. The engine applied it optimistically already, so this is
	// informational only.
	FrameUserMessageSaved = "user_message_saved"

	// FrameStream carries one text delta of the assistant reply.
	FrameStream = "stream"

	// FrameDone terminates a request/response cycle successfully.
	FrameDone = "done"

	// FrameError terminates a cycle with a backend-reported failure.
	FrameError = "error"
)

// Frame is one discrete unit received over the streaming connection.
type Frame struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// Terminal reports whether the frame ends a generation cycle.
func (f Frame) Terminal() bool {
	return f.Type == FrameDone || f.Type == FrameError
}

// ChatRequest is the outbound frame that starts a generation. Config is the
// fully-resolved merge of session overrides over the global config.
type ChatRequest struct {
	SessionID string              `json:"session_id"`
	Message   string              `json:"message"`
	Config    model.RequestConfig `json:"config"`
}
