// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/tidal-tui/internal/transport"
	"github.com/jeranaias/tidal-tui/internal/ui/styles"
	"github.com/jeranaias/tidal-tui/internal/util"
)

// =============================================================================
// STATUS BAR
// =============================================================================

// Shortcut is one key hint shown in the status bar.
type Shortcut struct {
	Key  string
	Desc string
}

// StatusBar renders the bottom bar: connection state, session info, and
// key hints.
type StatusBar struct {
	Theme *styles.Theme
}

// Render builds the bar at the given width.
func (s StatusBar) Render(width int, state transport.State, info string, shortcuts []Shortcut) string {
	var indicator string
	switch state {
	case transport.Open:
		indicator = s.Theme.StatusConnected.Render("● " + state.String())
	case transport.Connecting:
		indicator = s.Theme.StatusConnecting.Render("◌ " + state.String())
	default:
		indicator = s.Theme.StatusOffline.Render("○ " + state.String())
	}

	var hints []string
	for _, sc := range shortcuts {
		hints = append(hints,
			s.Theme.ShortcutKey.Render(sc.Key)+" "+s.Theme.ShortcutDesc.Render(sc.Desc))
	}

	left := indicator
	if info != "" {
		left += "  " + s.Theme.SessionMeta.Render(info)
	}
	right := strings.Join(hints, "  ")

	gap := width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	bar := left + util.PadWidth("", gap) + right
	return s.Theme.StatusBar.Width(width).Render(bar)
}
