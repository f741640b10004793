// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package archive

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/tidal-tui/internal/model"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func record(t *testing.T, a *Archive, session, prompt, reply string) {
	t.Helper()
	err := a.RecordExchange(session, "title of "+session,
		model.NewUserMessage(prompt),
		model.NewMessage(model.RoleAssistant, reply))
	require.NoError(t, err)
}

func TestRecordAndRecent(t *testing.T) {
	a := openTestArchive(t)
	record(t, a, "s1", "2+2?", "4")
	record(t, a, "s1", "3+3?", "6")
	record(t, a, "s2", "capital of france", "Paris")

	got, err := a.Recent(10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, "capital of france", got[0].Prompt, "newest exchange should come first")

	st, err := a.Stats()
	require.NoError(t, err)
	require.Equal(t, 3, st.ExchangeCount)
	require.Greater(t, st.DatabaseSize, int64(0))
}

func TestSearchMatchesPromptAndReply(t *testing.T) {
	a := openTestArchive(t)
	record(t, a, "s1", "what is the capital of france", "Paris")
	record(t, a, "s1", "2+2?", "4")

	got, err := a.Search("paris", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Paris", got[0].Reply)

	got, err = a.Search("", 10)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestSearchEscapesLikeMetacharacters(t *testing.T) {
	a := openTestArchive(t)
	record(t, a, "s1", "use 100% cpu", "sure")
	record(t, a, "s1", "use some cpu", "ok")

	got, err := a.Search("100%", 10)
	require.NoError(t, err)
	require.Len(t, got, 1, "%% must match literally, not as a wildcard")
	require.Equal(t, "use 100% cpu", got[0].Prompt)
}

func TestBySessionOrdersOldestFirst(t *testing.T) {
	a := openTestArchive(t)
	record(t, a, "s1", "first", "one")
	record(t, a, "s1", "second", "two")
	record(t, a, "s2", "other", "thing")

	got, err := a.BySession("s1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "first", got[0].Prompt)
	require.Equal(t, "second", got[1].Prompt)
}

func TestClosedArchiveRejectsWrites(t *testing.T) {
	a := openTestArchive(t)
	a.Close()

	err := a.RecordExchange("s1", "t", model.NewUserMessage("x"), model.NewMessage(model.RoleAssistant, "y"))
	require.ErrorIs(t, err, ErrClosed)

	_, err = a.Recent(1)
	require.ErrorIs(t, err, ErrClosed)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	a, err := Open(path)
	require.NoError(t, err)
	record(t, a, "s1", "persisted?", "yes")
	require.NoError(t, a.Close())

	b, err := Open(path)
	require.NoError(t, err)
	defer b.Close()

	got, err := b.Recent(10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "yes", got[0].Reply)
}
