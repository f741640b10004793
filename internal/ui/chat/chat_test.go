// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/tidal-tui/internal/api"
	"github.com/jeranaias/tidal-tui/internal/engine"
	"github.com/jeranaias/tidal-tui/internal/model"
	"github.com/jeranaias/tidal-tui/internal/store"
	"github.com/jeranaias/tidal-tui/internal/transport"
	"github.com/jeranaias/tidal-tui/internal/ui/styles"
)

type stubConn struct{ open bool }

func (c *stubConn) Connect() {}

func (c *stubConn) Close() {}

func (c *stubConn) IsOpen() bool { return c.open }

func (c *stubConn) Send(transport.ChatRequest) error { return nil }

func newTestModel(t *testing.T, open bool) (Model, *store.Store) {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	st := store.New()
	eng := engine.New(st, api.NewClient(srv.URL), engine.Options{})
	eng.AttachTransport(&stubConn{open: open})

	m := New(eng, st, styles.NewTheme())
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model), st
}

func TestLastUserIndex(t *testing.T) {
	sess := &model.Session{Messages: []model.Message{
		{Role: model.RoleUser, Content: "a"},
		{Role: model.RoleAssistant, Content: "b"},
		{Role: model.RoleUser, Content: "c"},
		{Role: model.RoleAssistant, Content: "d"},
	}}
	if got := lastUserIndex(sess); got != 2 {
		t.Errorf("lastUserIndex = %d, want 2", got)
	}
	if got := lastUserIndex(&model.Session{}); got != -1 {
		t.Errorf("lastUserIndex(empty) = %d, want -1", got)
	}
}

func TestSendBlockedWhileGenerating(t *testing.T) {
	m, st := newTestModel(t, true)
	st.Upsert(model.Session{ID: "s1"})
	st.SetCurrent("s1")
	st.SetGenerating(true)

	next, _ := m.sendMessage("another question")
	got := next.(Model)
	if got.notice == "" {
		t.Error("no notice shown for a send during generation")
	}
	sess, _ := st.Current()
	if len(sess.Messages) != 0 {
		t.Errorf("messages mutated while generating: %+v", sess.Messages)
	}
}

func TestSendWhileDisconnectedShowsNotice(t *testing.T) {
	m, st := newTestModel(t, false)
	st.Upsert(model.Session{ID: "s1"})
	st.SetCurrent("s1")

	next, _ := m.sendMessage("hello")
	got := next.(Model)
	if !strings.Contains(got.notice, "not connected") {
		t.Errorf("notice = %q, want transport-unavailable hint", got.notice)
	}
}

func TestSlashCommandUsageNotices(t *testing.T) {
	m, _ := newTestModel(t, true)

	if _, handled := m.handleSlashCommand("plain text"); handled {
		t.Error("plain text treated as slash command")
	}
	if cmd, handled := m.handleSlashCommand("/rename"); !handled || cmd == nil {
		t.Error("/rename without args not handled with a usage notice")
	}
	if !strings.Contains(m.notice, "usage: /rename") {
		t.Errorf("notice = %q", m.notice)
	}
	if _, handled := m.handleSlashCommand("/bogus"); !handled {
		t.Error("/bogus not consumed")
	}
}

func TestModelSlashCommandPatchesSessionConfig(t *testing.T) {
	m, st := newTestModel(t, true)
	st.Upsert(model.Session{ID: "s1"})
	st.SetCurrent("s1")

	cmd, handled := m.handleSlashCommand("/model deepseek-coder")
	if !handled || cmd == nil {
		t.Fatal("/model <name> not handled")
	}
	// The backend rejects the write (404 stub); the local merge stays.
	if _, ok := cmd().(OpDoneMsg); !ok {
		t.Fatal("config command did not report completion")
	}
	sess, _ := st.Get("s1")
	if sess.Config == nil || sess.Config.Model != "deepseek-coder" {
		t.Errorf("session config = %+v, want the model override applied", sess.Config)
	}
}

func TestTempSlashCommandValidatesAndPatches(t *testing.T) {
	m, st := newTestModel(t, true)
	st.Upsert(model.Session{ID: "s1"})
	st.SetCurrent("s1")

	if cmd, handled := m.handleSlashCommand("/temp nine"); !handled || cmd == nil {
		t.Fatal("/temp with a bad value not handled with a usage notice")
	}
	if !strings.Contains(m.notice, "usage: /temp") {
		t.Errorf("notice = %q", m.notice)
	}

	cmd, _ := m.handleSlashCommand("/temp 0.3")
	if cmd == nil {
		t.Fatal("/temp 0.3 produced no command")
	}
	cmd()
	sess, _ := st.Get("s1")
	if sess.Config == nil || sess.Config.Temperature == nil || *sess.Config.Temperature != 0.3 {
		t.Errorf("session config = %+v, want temperature 0.3", sess.Config)
	}
}

func TestProviderSlashCommandUpdatesChatConfig(t *testing.T) {
	m, _ := newTestModel(t, true)

	if _, handled := m.handleSlashCommand("/provider SiliconFlow"); !handled {
		t.Fatal("/provider not consumed")
	}
	if !strings.Contains(m.notice, "not loaded") {
		t.Errorf("notice = %q, want a config-not-loaded hint", m.notice)
	}

	// Seed a global config; the 404 stub rejects the persist but the
	// local value wins.
	_ = m.eng.UpdateChatConfig(context.Background(), &model.Config{Provider: model.ProviderDeepSeek})

	if _, handled := m.handleSlashCommand("/provider Bogus"); !handled {
		t.Fatal("/provider with an unknown name not consumed")
	}
	if !strings.Contains(m.notice, "usage: /provider") {
		t.Errorf("notice = %q", m.notice)
	}

	cmd, _ := m.handleSlashCommand("/provider SiliconFlow")
	if cmd == nil {
		t.Fatal("/provider SiliconFlow produced no command")
	}
	cmd()
	if got := m.eng.ChatConfig(); got == nil || got.Provider != model.ProviderSiliconFlow {
		t.Errorf("chat config = %+v, want provider switched", got)
	}
}

func TestSidebarNavigation(t *testing.T) {
	m, st := newTestModel(t, true)
	st.Upsert(model.Session{ID: "s2", Title: "two"})
	st.Upsert(model.Session{ID: "s1", Title: "one"})

	m.focus = focusSidebar
	next, _ := m.handleSidebarKey(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(Model)
	if m.cursor != 1 {
		t.Errorf("cursor = %d after down, want 1", m.cursor)
	}
	next, _ = m.handleSidebarKey(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	if got := st.CurrentID(); got != "s2" {
		t.Errorf("selected %q, want s2 (second row)", got)
	}
	if m.focus != focusInput {
		t.Error("focus did not return to input after selection")
	}
}
