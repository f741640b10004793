// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides utility functions for the tidal application.
package util

import (
	"time"

	"github.com/mattn/go-runewidth"
)

// UNICODE: Session titles and message previews regularly contain CJK text,
// so display truncation uses column width, not rune count.

// TruncateWidth truncates a string to a maximum display width, accounting
// for double-width (CJK) characters.
func TruncateWidth(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	return runewidth.Truncate(s, maxWidth, "...")
}

// PadWidth pads a string with spaces to the given display width.
func PadWidth(s string, width int) string {
	return runewidth.FillRight(s, width)
}

// FormatTimestamp renders an RFC 3339 timestamp for display. Malformed or
// missing timestamps render as an empty string rather than an error.
func FormatTimestamp(ts string) string {
	if ts == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		// The backend stamps with bare ISO format (no zone).
		t, err = time.Parse("2006-01-02T15:04:05", ts[:min(len(ts), 19)])
		if err != nil {
			return ""
		}
	}
	return t.Format("15:04")
}
