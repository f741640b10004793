// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"testing"

	"github.com/jeranaias/tidal-tui/internal/model"
)

func meta(id, title string) model.Session {
	return model.Session{ID: id, Title: title}
}

// =============================================================================
// STRUCTURAL INVARIANTS
// =============================================================================

func TestUpsert_InsertsAtFront(t *testing.T) {
	s := New()
	s.Upsert(meta("a", "first"))
	s.Upsert(meta("b", "second"))

	list := s.List()
	if len(list) != 2 {
		t.Fatalf("Len = %d, want 2", len(list))
	}
	if list[0].ID != "b" || list[1].ID != "a" {
		t.Errorf("order = [%s %s], want newest first", list[0].ID, list[1].ID)
	}
}

func TestUpsert_SameIDReplacesInPlace(t *testing.T) {
	s := New()
	s.Upsert(meta("a", "old"))
	s.Upsert(meta("b", "other"))
	s.Upsert(meta("a", "new"))

	if s.Len() != 2 {
		t.Fatalf("duplicate id must not create a second entry, Len = %d", s.Len())
	}
	got, _ := s.Get("a")
	if got.Title != "new" {
		t.Errorf("Title = %q, want replacement applied", got.Title)
	}
}

func TestReplaceAll_DropsDuplicateIDs(t *testing.T) {
	s := New()
	s.ReplaceAll([]model.Session{meta("a", "one"), meta("a", "two"), meta("b", "three")})

	if s.Len() != 2 {
		t.Errorf("Len = %d, want duplicates collapsed to one entry per id", s.Len())
	}
}

func TestReplaceAll_PreservesLoadedMessages(t *testing.T) {
	s := New()
	s.Upsert(meta("a", "chat"))
	s.PatchMessages("a", []model.Message{model.NewUserMessage("hi")})

	// A metadata refresh carries no messages.
	s.ReplaceAll([]model.Session{{ID: "a", Title: "chat renamed", MessageCount: 1}})

	got, ok := s.Get("a")
	if !ok {
		t.Fatal("session lost across refresh")
	}
	if got.Title != "chat renamed" {
		t.Error("metadata fields should be replaced")
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "hi" {
		t.Error("refresh must never discard loaded message history")
	}
	if !got.Loaded {
		t.Error("loaded flag must survive refresh")
	}
}

func TestReplaceAll_ClearsVanishedSelection(t *testing.T) {
	s := New()
	s.Upsert(meta("a", ""))
	s.SetCurrent("a")

	s.ReplaceAll([]model.Session{meta("b", "")})
	if s.CurrentID() != "" {
		t.Errorf("CurrentID = %q, want cleared when session vanishes", s.CurrentID())
	}
}

func TestMutations_MissingIDIsNoOp(t *testing.T) {
	s := New()
	s.Upsert(meta("a", "keep"))

	s.Remove("ghost")
	s.PatchMessages("ghost", []model.Message{model.NewUserMessage("x")})
	s.SetTitle("ghost", "x")
	s.AppendMessage("ghost", model.NewUserMessage("x"))
	s.TruncateMessages("ghost", 0)
	s.MergeSessionConfig("ghost", &model.SessionConfig{Model: "m"})

	if s.Len() != 1 {
		t.Error("mutations on a missing id must leave the cache untouched")
	}
	if got, _ := s.Get("a"); got.Title != "keep" {
		t.Error("unrelated session must be untouched")
	}
}

func TestGet_ReturnsClone(t *testing.T) {
	s := New()
	s.Upsert(meta("a", "title"))
	s.PatchMessages("a", []model.Message{model.NewUserMessage("hi")})

	got, _ := s.Get("a")
	got.Messages[0].Content = "mutated"
	got.Title = "mutated"

	fresh, _ := s.Get("a")
	if fresh.Messages[0].Content != "hi" || fresh.Title != "title" {
		t.Error("reads must return clones, not cache internals")
	}
}

// =============================================================================
// SELECTION AND FLAGS
// =============================================================================

func TestSetCurrent_UnknownIDClearsSelection(t *testing.T) {
	s := New()
	s.Upsert(meta("a", ""))
	s.SetCurrent("a")
	s.SetCurrent("ghost")

	if s.CurrentID() != "" {
		t.Errorf("CurrentID = %q, want empty", s.CurrentID())
	}
}

func TestRemove_CurrentClearsSelection(t *testing.T) {
	s := New()
	s.Upsert(meta("a", ""))
	s.Upsert(meta("b", ""))
	s.SetCurrent("a")

	s.Remove("a")
	if s.CurrentID() != "" {
		t.Error("removing the current session must clear the selection")
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestFlags(t *testing.T) {
	s := New()
	s.SetGenerating(true)
	if !s.Generating() {
		t.Error("Generating should be true")
	}
	s.SetLoading(true)
	if !s.Loading() {
		t.Error("Loading should be true")
	}
}

// =============================================================================
// MESSAGE MUTATIONS
// =============================================================================

func TestAppendToLastAssistant(t *testing.T) {
	s := New()
	s.Upsert(meta("a", ""))
	s.AppendMessage("a", model.NewUserMessage("q"))
	s.AppendMessage("a", model.NewAssistantPlaceholder())

	if !s.AppendToLastAssistant("a", "4") {
		t.Fatal("delta should apply to trailing assistant placeholder")
	}
	if !s.AppendToLastAssistant("a", "2") {
		t.Fatal("second delta should apply")
	}

	got, _ := s.Get("a")
	last, _ := got.LastMessage()
	if last.Content != "42" {
		t.Errorf("content = %q, want deltas concatenated in order", last.Content)
	}
}

func TestAppendToLastAssistant_DropsWhenTrailingNotAssistant(t *testing.T) {
	s := New()
	s.Upsert(meta("a", ""))
	s.AppendMessage("a", model.NewUserMessage("q"))

	if s.AppendToLastAssistant("a", "stray") {
		t.Error("delta must be dropped when trailing message is not assistant")
	}
	got, _ := s.Get("a")
	if got.Messages[0].Content != "q" {
		t.Error("dropped delta must not touch the wrong message")
	}
}

func TestTruncateMessages(t *testing.T) {
	s := New()
	s.Upsert(meta("a", ""))
	for _, c := range []string{"one", "two", "three"} {
		s.AppendMessage("a", model.NewUserMessage(c))
	}

	s.TruncateMessages("a", 1)
	got, _ := s.Get("a")
	if len(got.Messages) != 1 || got.Messages[0].Content != "one" {
		t.Errorf("messages = %v, want only the first kept", got.Messages)
	}

	// Truncating to full length or beyond is a no-op.
	s.TruncateMessages("a", 5)
	got, _ = s.Get("a")
	if len(got.Messages) != 1 {
		t.Error("truncation beyond length must be a no-op")
	}
}

func TestDropTrailingEmptyAssistant(t *testing.T) {
	s := New()
	s.Upsert(meta("a", ""))
	s.AppendMessage("a", model.NewUserMessage("q"))
	s.AppendMessage("a", model.NewAssistantPlaceholder())

	if !s.DropTrailingEmptyAssistant("a") {
		t.Fatal("empty trailing placeholder should be removed")
	}
	got, _ := s.Get("a")
	if last, ok := got.LastMessage(); !ok || last.Role != model.RoleUser {
		t.Error("after removal the user message should be trailing")
	}

	// A filled assistant message is kept.
	s.AppendMessage("a", model.NewMessage(model.RoleAssistant, "partial"))
	if s.DropTrailingEmptyAssistant("a") {
		t.Error("assistant message with content must not be removed")
	}
}

func TestOnChange_FiresOnMutation(t *testing.T) {
	s := New()
	count := 0
	s.SetOnChange(func() { count++ })

	s.Upsert(meta("a", ""))
	s.AppendMessage("a", model.NewUserMessage("hi"))

	if count < 2 {
		t.Errorf("onChange fired %d times, want one per mutation", count)
	}
}
