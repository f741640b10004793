// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/tidal-tui/internal/engine"
)

// Update is the bubbletea update loop.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case EngineEventMsg:
		if msg.Notice != "" {
			m.notice = msg.Notice
			cmds = append(cmds, noticeExpiryCmd())
		}
		m.refreshViewport()
		cmds = append(cmds, m.waitForEvent())

	case OpDoneMsg:
		if msg.Err != nil {
			m.notice = msg.Err.Error()
		} else if msg.Notice != "" {
			m.notice = msg.Notice
		}
		if m.notice != "" {
			cmds = append(cmds, noticeExpiryCmd())
		}
		m.refreshViewport()

	case NoticeExpiredMsg:
		m.notice = ""

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	if m.ready {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// resize lays the panes out for a new terminal size.
func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.theme.SetSize(width, height)

	chatWidth := width - sidebarWidth - 2
	chatHeight := height - headerHeight - inputHeight - statusBarHeight
	if chatHeight < 3 {
		chatHeight = 3
	}
	if !m.ready {
		m.viewport = newViewport(chatWidth, chatHeight)
		m.ready = true
	} else {
		m.viewport.Width = chatWidth
		m.viewport.Height = chatHeight
	}
	m.input.Width = width - 6
	m.markdown.SetWidth(chatWidth - 4)
	m.refreshViewport()
}

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.eng.Shutdown()
		return m, tea.Quit

	case "tab":
		if m.focus == focusInput {
			m.focus = focusSidebar
			m.input.Blur()
		} else {
			m.focus = focusInput
			m.input.Focus()
		}
		return m, nil

	case "ctrl+n":
		return m, m.createCmd()

	case "ctrl+r":
		return m.resendLast()

	case "ctrl+u":
		return m.revokeLast()
	}

	if m.focus == focusSidebar {
		return m.handleSidebarKey(msg)
	}
	return m.handleInputKey(msg)
}

func (m Model) handleSidebarKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	sessions := m.st.List()

	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(sessions)-1 {
			m.cursor++
		}
	case "enter":
		if m.cursor < len(sessions) {
			m.eng.Select(sessions[m.cursor].ID)
			m.focus = focusInput
			m.input.Focus()
		}
	case "n":
		return m, m.createCmd()
	case "d":
		if m.cursor < len(sessions) {
			return m, m.deleteCmd(sessions[m.cursor].ID)
		}
	case "esc":
		m.focus = focusInput
		m.input.Focus()
	}
	return m, nil
}

func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.focus = focusSidebar
		m.input.Blur()
		return m, nil

	case "enter":
		line := strings.TrimSpace(m.input.Value())
		if line == "" {
			return m, nil
		}
		if cmd, handled := m.handleSlashCommand(line); handled {
			m.input.Reset()
			return m, cmd
		}
		return m.sendMessage(line)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// =============================================================================
// SEND / REVOKE / RESEND
// =============================================================================

// sendMessage enforces the one-in-flight rule, then hands the text to the
// engine. The optimistic append is synchronous; the transcript updates
// before the backend answers.
func (m Model) sendMessage(text string) (tea.Model, tea.Cmd) {
	if m.st.Generating() {
		m.notice = "wait for the current reply to finish"
		return m, noticeExpiryCmd()
	}
	if err := m.eng.SendUserMessage(text); err != nil {
		if errors.Is(err, engine.ErrTransportUnavailable) {
			m.notice = "not connected, retry in a moment"
		} else {
			m.notice = err.Error()
		}
		return m, noticeExpiryCmd()
	}
	m.input.Reset()
	m.refreshViewport()
	m.viewport.GotoBottom()
	return m, nil
}

func (m Model) resendLast() (tea.Model, tea.Cmd) {
	if m.st.Generating() {
		m.notice = "wait for the current reply to finish"
		return m, noticeExpiryCmd()
	}
	sess := m.currentSession()
	if sess == nil {
		return m, nil
	}
	idx := lastUserIndex(sess)
	if idx < 0 {
		m.notice = "nothing to resend"
		return m, noticeExpiryCmd()
	}
	return m, m.resendCmd(idx)
}

func (m Model) revokeLast() (tea.Model, tea.Cmd) {
	if m.st.Generating() {
		m.notice = "wait for the current reply to finish"
		return m, noticeExpiryCmd()
	}
	sess := m.currentSession()
	if sess == nil {
		return m, nil
	}
	idx := lastUserIndex(sess)
	if idx < 0 {
		m.notice = "nothing to revoke"
		return m, noticeExpiryCmd()
	}
	return m, m.revokeCmd(idx)
}
