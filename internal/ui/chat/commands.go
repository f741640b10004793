// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/tidal-tui/internal/export"
	"github.com/jeranaias/tidal-tui/internal/model"
)

const opTimeout = 30 * time.Second

// =============================================================================
// BACKEND COMMANDS
// =============================================================================

// bootstrapCmd loads the chat config and the session list, then selects
// the newest session.
func (m Model) bootstrapCmd() tea.Cmd {
	eng, st := m.eng, m.st
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()

		if err := eng.LoadChatConfig(ctx); err != nil {
			return OpDoneMsg{Err: err}
		}
		if err := eng.RefreshAll(ctx); err != nil {
			return OpDoneMsg{Err: err}
		}
		if list := st.List(); len(list) > 0 {
			eng.Select(list[0].ID)
		}
		eng.Connect()
		return OpDoneMsg{}
	}
}

func (m Model) refreshCmd() tea.Cmd {
	eng := m.eng
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if err := eng.RefreshAll(ctx); err != nil {
			return OpDoneMsg{Err: err}
		}
		return OpDoneMsg{Notice: "sessions refreshed"}
	}
}

func (m Model) createCmd() tea.Cmd {
	eng := m.eng
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if _, err := eng.Create(ctx); err != nil {
			return OpDoneMsg{Err: err}
		}
		return OpDoneMsg{Notice: "new session"}
	}
}

func (m Model) deleteCmd(id string) tea.Cmd {
	eng := m.eng
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if err := eng.Remove(ctx, id); err != nil {
			return OpDoneMsg{Err: err}
		}
		return OpDoneMsg{Notice: "session deleted"}
	}
}

func (m Model) renameCmd(id, title string) tea.Cmd {
	eng := m.eng
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if err := eng.Rename(ctx, id, title); err != nil {
			return OpDoneMsg{Notice: "renamed locally, server rejected", Err: err}
		}
		return OpDoneMsg{Notice: "renamed"}
	}
}

func (m Model) revokeCmd(index int) tea.Cmd {
	eng := m.eng
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if err := eng.Revoke(ctx, index); err != nil {
			return OpDoneMsg{Err: err}
		}
		return OpDoneMsg{Notice: "history truncated"}
	}
}

func (m Model) resendCmd(index int) tea.Cmd {
	eng := m.eng
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if err := eng.Resend(ctx, index); err != nil {
			return OpDoneMsg{Err: err}
		}
		return OpDoneMsg{}
	}
}

// sessionConfigCmd merges a sparse override into one session's config.
func (m Model) sessionConfigCmd(id string, patch *model.SessionConfig, notice string) tea.Cmd {
	eng := m.eng
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if err := eng.SetSessionConfig(ctx, id, patch); err != nil {
			return OpDoneMsg{Notice: notice + " locally, server rejected", Err: err}
		}
		return OpDoneMsg{Notice: notice}
	}
}

// chatConfigCmd replaces the global chat config.
func (m Model) chatConfigCmd(cfg *model.Config, notice string) tea.Cmd {
	eng := m.eng
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if err := eng.UpdateChatConfig(ctx, cfg); err != nil {
			return OpDoneMsg{Notice: notice + " locally, server rejected", Err: err}
		}
		return OpDoneMsg{Notice: notice}
	}
}

func (m Model) exportCmd(sess *model.Session, format string) tea.Cmd {
	return func() tea.Msg {
		var exporter export.Exporter
		switch format {
		case "json":
			exporter = export.NewJSONExporter()
		default:
			exporter = export.NewMarkdownExporter(nil)
		}
		path, err := export.ExportToFile(sess, exporter, nil)
		if err != nil {
			return OpDoneMsg{Err: err}
		}
		return OpDoneMsg{Notice: "exported to " + path}
	}
}

// noticeExpiryCmd clears the status notice after a short delay.
func noticeExpiryCmd() tea.Cmd {
	return tea.Tick(4*time.Second, func(time.Time) tea.Msg {
		return NoticeExpiredMsg{}
	})
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand interprets "/..." input. Returns the command to run
// and whether the input was consumed.
func (m *Model) handleSlashCommand(line string) (tea.Cmd, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return nil, false
	}

	switch fields[0] {
	case "/new":
		return m.createCmd(), true

	case "/rename":
		if len(fields) < 2 {
			m.notice = "usage: /rename <title>"
			return noticeExpiryCmd(), true
		}
		sess := m.currentSession()
		if sess == nil {
			m.notice = "no session selected"
			return noticeExpiryCmd(), true
		}
		title := strings.TrimSpace(strings.TrimPrefix(line, "/rename"))
		return m.renameCmd(sess.ID, title), true

	case "/export":
		sess := m.currentSession()
		if sess == nil || len(sess.Messages) == 0 {
			m.notice = "nothing to export"
			return noticeExpiryCmd(), true
		}
		format := "md"
		if len(fields) > 1 {
			format = fields[1]
		}
		return m.exportCmd(sess, format), true

	case "/model":
		if len(fields) < 2 {
			m.notice = "usage: /model <name>"
			return noticeExpiryCmd(), true
		}
		sess := m.currentSession()
		if sess == nil {
			m.notice = "no session selected"
			return noticeExpiryCmd(), true
		}
		name := fields[1]
		return m.sessionConfigCmd(sess.ID, &model.SessionConfig{Model: name}, "model set to "+name), true

	case "/temp":
		if len(fields) < 2 {
			m.notice = "usage: /temp <0..2>"
			return noticeExpiryCmd(), true
		}
		sess := m.currentSession()
		if sess == nil {
			m.notice = "no session selected"
			return noticeExpiryCmd(), true
		}
		temp, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || temp < 0 || temp > 2 {
			m.notice = "usage: /temp <0..2>"
			return noticeExpiryCmd(), true
		}
		return m.sessionConfigCmd(sess.ID, &model.SessionConfig{Temperature: &temp}, "temperature set to "+fields[1]), true

	case "/sysprompt":
		if len(fields) < 2 {
			m.notice = "usage: /sysprompt <text>"
			return noticeExpiryCmd(), true
		}
		sess := m.currentSession()
		if sess == nil {
			m.notice = "no session selected"
			return noticeExpiryCmd(), true
		}
		prompt := strings.TrimSpace(strings.TrimPrefix(line, "/sysprompt"))
		return m.sessionConfigCmd(sess.ID, &model.SessionConfig{SystemPrompt: prompt}, "system prompt set"), true

	case "/provider":
		if len(fields) < 2 {
			m.notice = "usage: /provider <DeepSeek|SiliconFlow|Volcengine>"
			return noticeExpiryCmd(), true
		}
		name := fields[1]
		switch name {
		case model.ProviderDeepSeek, model.ProviderSiliconFlow, model.ProviderVolcengine:
		default:
			m.notice = "usage: /provider <DeepSeek|SiliconFlow|Volcengine>"
			return noticeExpiryCmd(), true
		}
		cfg := m.eng.ChatConfig()
		if cfg == nil {
			m.notice = "chat config not loaded yet"
			return noticeExpiryCmd(), true
		}
		cfg.Provider = name
		return m.chatConfigCmd(cfg, "provider set to "+name), true

	case "/refresh":
		return m.refreshCmd(), true

	case "/help":
		m.notice = "/new /rename <title> /model <name> /temp <t> /sysprompt <text> /provider <name> /export [md|json] /refresh · tab: sidebar · ctrl+r: resend · ctrl+u: revoke"
		return noticeExpiryCmd(), true

	default:
		m.notice = fmt.Sprintf("unknown command %s", fields[0])
		return noticeExpiryCmd(), true
	}
}

// lastUserIndex finds the index of the trailing user message, -1 when the
// session has none.
func lastUserIndex(sess *model.Session) int {
	for i := len(sess.Messages) - 1; i >= 0; i-- {
		if sess.Messages[i].Role == model.RoleUser {
			return i
		}
	}
	return -1
}
