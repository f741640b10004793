// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"
	"testing"

	"github.com/jeranaias/tidal-tui/internal/transport"
	"github.com/jeranaias/tidal-tui/internal/ui/styles"
)

func TestParseCodeBlocksPassesPlainTextThrough(t *testing.T) {
	in := "no fences here\njust text"
	if got := ParseCodeBlocks(in, 80); got != in {
		t.Errorf("ParseCodeBlocks() = %q, want input unchanged", got)
	}
}

func TestParseCodeBlocksRendersFencedCode(t *testing.T) {
	in := "before\n```go\nfmt.Println(\"hi\")\n```\nafter"
	got := ParseCodeBlocks(in, 80)

	if !strings.Contains(got, "before") || !strings.Contains(got, "after") {
		t.Errorf("surrounding text lost: %q", got)
	}
	if !strings.Contains(got, "fmt.Println") {
		t.Errorf("code content lost: %q", got)
	}
	if strings.Contains(got, "```") {
		t.Errorf("fence markers should be consumed: %q", got)
	}
}

func TestParseCodeBlocksRendersUnclosedFence(t *testing.T) {
	// Mid-stream: the closing fence has not arrived yet.
	in := "```python\nprint(1)"
	got := ParseCodeBlocks(in, 80)
	if !strings.Contains(got, "print(1)") {
		t.Errorf("partial code block not rendered: %q", got)
	}
}

func TestHighlightUnknownLanguageKeepsCode(t *testing.T) {
	code := "some opaque text with no obvious language"
	got := Highlight(code, "nosuchlang")
	if !strings.Contains(got, "opaque text") {
		t.Errorf("Highlight() lost the code: %q", got)
	}
}

func TestStatusBarShowsConnectionState(t *testing.T) {
	bar := StatusBar{Theme: styles.NewTheme()}
	shortcuts := []Shortcut{{Key: "tab", Desc: "focus"}, {Key: "^c", Desc: "quit"}}

	got := bar.Render(100, transport.Open, "math help", shortcuts)
	if !strings.Contains(got, "connected") {
		t.Errorf("open connection not indicated: %q", got)
	}
	if !strings.Contains(got, "math help") {
		t.Errorf("session info missing: %q", got)
	}
	if !strings.Contains(got, "tab") || !strings.Contains(got, "quit") {
		t.Errorf("shortcut hints missing: %q", got)
	}

	got = bar.Render(100, transport.Disconnected, "", nil)
	if !strings.Contains(got, "disconnected") {
		t.Errorf("disconnected state not indicated: %q", got)
	}
}
