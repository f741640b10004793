// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/jeranaias/tidal-tui/internal/engine"
)

// =============================================================================
// TEA MESSAGES
// =============================================================================

// EngineEventMsg wraps an engine event: the store changed or a notice
// should be shown.
type EngineEventMsg engine.Event

// OpDoneMsg reports the outcome of a backend operation started from a key
// binding or slash command.
type OpDoneMsg struct {
	Notice string
	Err    error
}

// NoticeExpiredMsg clears a transient status notice.
type NoticeExpiredMsg struct{}
