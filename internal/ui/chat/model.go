// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat implements the main TUI view: session sidebar, transcript
// viewport, input line, and status bar, all driven by the sync engine.
package chat

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/tidal-tui/internal/engine"
	"github.com/jeranaias/tidal-tui/internal/model"
	"github.com/jeranaias/tidal-tui/internal/store"
	"github.com/jeranaias/tidal-tui/internal/ui/components"
	"github.com/jeranaias/tidal-tui/internal/ui/styles"
)

// focusArea is which pane receives key input.
type focusArea int

const (
	focusInput focusArea = iota
	focusSidebar
)

// Layout constants.
const (
	sidebarWidth    = 28
	headerHeight    = 1
	inputHeight     = 3
	statusBarHeight = 1
)

// =============================================================================
// MODEL
// =============================================================================

// Model is the bubbletea model for the chat view.
type Model struct {
	eng   *engine.Engine
	st    *store.Store
	theme *styles.Theme

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	markdown *components.MarkdownRenderer
	status   components.StatusBar

	width  int
	height int
	ready  bool

	focus  focusArea
	cursor int // sidebar row

	notice string
}

// New creates the chat model.
func New(eng *engine.Engine, st *store.Store, theme *styles.Theme) Model {
	input := textinput.New()
	input.Placeholder = "Type a message, or /help"
	input.Prompt = theme.InputPrompt.Render("> ")
	input.CharLimit = 0
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.Spinner

	return Model{
		eng:      eng,
		st:       st,
		theme:    theme,
		input:    input,
		spinner:  sp,
		markdown: components.NewMarkdownRenderer(80),
		status:   components.StatusBar{Theme: theme},
		focus:    focusInput,
	}
}

// Init starts the initial sync and the event pump.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.bootstrapCmd(),
		m.waitForEvent(),
	)
}

// waitForEvent blocks on the engine's event channel and re-arms itself
// after every message, so store changes from any goroutine wake the UI.
func (m Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		return EngineEventMsg(<-m.eng.Events())
	}
}

// currentSession returns the selected session, nil when none.
func (m Model) currentSession() *model.Session {
	sess, ok := m.st.Current()
	if !ok {
		return nil
	}
	return sess
}
