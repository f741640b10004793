// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/tidal-tui/internal/model"
	"github.com/jeranaias/tidal-tui/internal/ui/components"
	"github.com/jeranaias/tidal-tui/internal/util"
)

func newViewport(width, height int) viewport.Model {
	vp := viewport.New(width, height)
	vp.MouseWheelEnabled = true
	return vp
}

// View renders the full screen.
func (m Model) View() string {
	if !m.ready {
		return "loading..."
	}

	header := m.theme.Header.Width(m.width).Render("tidal")
	body := lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderSidebar(),
		m.viewport.View(),
	)
	input := m.theme.InputContainer.Width(m.width - 2).Render(m.input.View())
	status := m.renderStatus()

	return lipgloss.JoinVertical(lipgloss.Left, header, body, input, status)
}

// =============================================================================
// SIDEBAR
// =============================================================================

func (m Model) renderSidebar() string {
	sessions := m.st.List()
	currentID := m.st.CurrentID()
	height := m.viewport.Height

	var rows []string
	for i, sess := range sessions {
		if len(rows) >= height {
			break
		}
		title := util.TruncateWidth(sess.DisplayTitle(), sidebarWidth-6)
		row := fmt.Sprintf("%s %s", title, m.theme.SessionMeta.Render(fmt.Sprintf("(%d)", sess.DisplayCount())))
		switch {
		case m.focus == focusSidebar && i == m.cursor:
			row = m.theme.SessionItemSelected.Render(row)
		case sess.ID == currentID:
			row = m.theme.SessionItem.Bold(true).Render(row)
		default:
			row = m.theme.SessionItem.Render(row)
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		rows = append(rows, m.theme.SessionMeta.Render("no sessions"))
	}

	content := strings.Join(rows, "\n")
	return m.theme.Sidebar.Width(sidebarWidth).Height(height).Render(content)
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// refreshViewport rebuilds the transcript from the store. Called on every
// engine event; the store owns the truth, the view just draws it.
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderTranscript())
	if atBottom || m.st.Generating() {
		m.viewport.GotoBottom()
	}
}

func (m *Model) renderTranscript() string {
	sess := m.currentSession()
	if sess == nil {
		return m.theme.SessionMeta.Render("\n  ctrl+n starts a new session")
	}
	if m.st.Loading() {
		return m.theme.ThinkingText.Render("\n  loading history...")
	}

	width := m.viewport.Width - 2
	var parts []string
	for i, msg := range sess.Messages {
		parts = append(parts, m.renderMessage(msg, width, i == len(sess.Messages)-1))
	}
	return strings.Join(parts, "\n")
}

func (m *Model) renderMessage(msg model.Message, width int, last bool) string {
	label := m.theme.RoleLabel.Render(msg.Role.DisplayName())
	if msg.Timestamp != "" {
		label += " " + m.theme.Timestamp.Render(util.FormatTimestamp(msg.Timestamp))
	}

	switch msg.Role {
	case model.RoleAssistant:
		if msg.Content == "" && last && m.st.Generating() {
			return label + "\n" + m.spinner.View() + m.theme.ThinkingText.Render(" thinking...")
		}
		body := m.markdown.Render(msg.Content)
		return label + "\n" + m.theme.AssistantBubble.MaxWidth(width).Render(strings.TrimRight(body, "\n"))

	case model.RoleSystem:
		return label + "\n" + m.theme.SystemBubble.MaxWidth(width).Render(msg.Content)

	default:
		body := components.ParseCodeBlocks(msg.Content, width-4)
		return label + "\n" + m.theme.UserBubble.MaxWidth(width).Render(body)
	}
}

// =============================================================================
// STATUS BAR
// =============================================================================

func (m Model) renderStatus() string {
	info := m.notice
	if info == "" {
		if sess := m.currentSession(); sess != nil {
			info = util.TruncateWidth(sess.DisplayTitle(), 30)
			if m.st.Generating() {
				info += " · generating"
			}
		}
	}
	shortcuts := []components.Shortcut{
		{Key: "tab", Desc: "sessions"},
		{Key: "^n", Desc: "new"},
		{Key: "^r", Desc: "resend"},
		{Key: "^u", Desc: "revoke"},
		{Key: "^c", Desc: "quit"},
	}
	return m.status.Render(m.width, m.eng.ConnState(), info, shortcuts)
}
