// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store holds the in-memory session cache: the single source of
// truth every other component reads and the only place session state is
// mutated. Mutations go through typed methods, never direct field access,
// so the structural invariants (unique ids, well-formed records) are
// enforced in one place.
//
// Every mutation is total: a missing session id is a no-op, not an error,
// and the cache is left structurally valid no matter what.
package store

import (
	"sync"

	"github.com/jeranaias/tidal-tui/internal/model"
)

// =============================================================================
// STORE
// =============================================================================

// Store is the owned state container for sessions and the process-wide
// engine flags. A mutex serializes writers (the UI loop, the socket read
// goroutine, fetch goroutines); each mutation runs to completion under it.
type Store struct {
	mu sync.Mutex

	// sessions in creation order, newest first. index maps id to the same
	// record; exactly one entry per id.
	sessions []*model.Session
	index    map[string]*model.Session

	// currentID is the selected session, "" when none.
	currentID string

	// generating is true from send until a terminal done/error frame.
	generating bool

	// loading is true while the current session's history fetch is in
	// flight. Process-wide, like generating.
	loading bool

	// onChange is invoked (outside the lock) after every mutation.
	onChange func()
}

// New creates an empty store.
func New() *Store {
	return &Store{index: make(map[string]*model.Session)}
}

// SetOnChange registers the change notification callback. Only one
// subscriber is supported; the UI coalesces.
func (s *Store) SetOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Store) notify() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// =============================================================================
// READS
// =============================================================================

// List returns the sessions in order, as clones. Callers can hold the
// result across mutations without observing them.
func (s *Store) List() []*model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Session, len(s.sessions))
	for i, sess := range s.sessions {
		out[i] = sess.Clone()
	}
	return out
}

// Get returns a clone of the session with the given id.
func (s *Store) Get(id string) (*model.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return sess.Clone(), true
}

// Len returns the number of cached sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// CurrentID returns the selected session id, "" when none.
func (s *Store) CurrentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentID
}

// Current returns a clone of the selected session.
func (s *Store) Current() (*model.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.index[s.currentID]
	if !ok {
		return nil, false
	}
	return sess.Clone(), true
}

// =============================================================================
// SELECTION AND FLAGS
// =============================================================================

// SetCurrent selects a session. Selecting an id not in the cache clears the
// selection (the caller reconciles afterwards).
func (s *Store) SetCurrent(id string) {
	s.mu.Lock()
	if _, ok := s.index[id]; ok {
		s.currentID = id
	} else {
		s.currentID = ""
	}
	s.mu.Unlock()
	s.notify()
}

// SetGenerating sets the process-wide generation flag.
func (s *Store) SetGenerating(v bool) {
	s.mu.Lock()
	changed := s.generating != v
	s.generating = v
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// Generating reports the generation flag.
func (s *Store) Generating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generating
}

// SetLoading sets the process-wide history-loading flag.
func (s *Store) SetLoading(v bool) {
	s.mu.Lock()
	changed := s.loading != v
	s.loading = v
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// Loading reports the history-loading flag.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// =============================================================================
// SESSION MUTATIONS
// =============================================================================

// ReplaceAll swaps in a fresh metadata list from the server, preserving the
// already-loaded message arrays of sessions present in both old and new
// results. A refresh must never discard in-memory history the user is
// viewing.
func (s *Store) ReplaceAll(metas []model.Session) {
	s.mu.Lock()
	fresh := make([]*model.Session, 0, len(metas))
	index := make(map[string]*model.Session, len(metas))
	for i := range metas {
		meta := metas[i]
		if _, dup := index[meta.ID]; dup {
			continue // one entry per id, first wins
		}
		sess := meta.Clone()
		if old, ok := s.index[meta.ID]; ok && old.Loaded {
			sess.Messages = old.Messages
			sess.Loaded = true
		} else if sess.Messages == nil {
			sess.Messages = []model.Message{}
		}
		fresh = append(fresh, sess)
		index[sess.ID] = sess
	}
	s.sessions = fresh
	s.index = index
	if _, ok := index[s.currentID]; !ok {
		s.currentID = ""
	}
	s.mu.Unlock()
	s.notify()
}

// Upsert inserts a session at the front of the ordered list, or replaces an
// existing record with the same id in place.
func (s *Store) Upsert(sess model.Session) {
	s.mu.Lock()
	clone := sess.Clone()
	if clone.Messages == nil {
		clone.Messages = []model.Message{}
	}
	if existing, ok := s.index[clone.ID]; ok {
		*existing = *clone
	} else {
		s.sessions = append([]*model.Session{clone}, s.sessions...)
		s.index[clone.ID] = clone
	}
	s.mu.Unlock()
	s.notify()
}

// Remove deletes a session from the cache. Removing the current session
// clears the selection; reselection is the caller's policy.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	if _, ok := s.index[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.index, id)
	for i, sess := range s.sessions {
		if sess.ID == id {
			s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)
			break
		}
	}
	if s.currentID == id {
		s.currentID = ""
	}
	s.mu.Unlock()
	s.notify()
}

// PatchMessages replaces a session's message list. It only ever touches its
// own id's record regardless of the current selection, which is what makes
// a stale history fetch harmless.
func (s *Store) PatchMessages(id string, messages []model.Message) {
	s.mu.Lock()
	sess, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	sess.Messages = append([]model.Message(nil), messages...)
	sess.Loaded = true
	s.mu.Unlock()
	s.notify()
}

// SetTitle renames a session.
func (s *Store) SetTitle(id, title string) {
	s.mu.Lock()
	if sess, ok := s.index[id]; ok {
		sess.Title = title
	}
	s.mu.Unlock()
	s.notify()
}

// MergeSessionConfig merges a sparse config patch into a session's config.
func (s *Store) MergeSessionConfig(id string, patch *model.SessionConfig) {
	s.mu.Lock()
	if sess, ok := s.index[id]; ok {
		sess.Config = sess.Config.Merge(patch)
	}
	s.mu.Unlock()
	s.notify()
}

// =============================================================================
// MESSAGE MUTATIONS (engine only)
// =============================================================================

// AppendMessage appends a message to a session.
func (s *Store) AppendMessage(id string, msg model.Message) {
	s.mu.Lock()
	if sess, ok := s.index[id]; ok {
		sess.Messages = append(sess.Messages, msg)
	}
	s.mu.Unlock()
	s.notify()
}

// AppendToLastAssistant appends a streamed delta to the trailing message of
// the session, but only when that message's role is assistant. Reports
// whether the delta was applied; a violated invariant drops the delta
// rather than corrupting another message.
func (s *Store) AppendToLastAssistant(id, delta string) bool {
	s.mu.Lock()
	sess, ok := s.index[id]
	if !ok || len(sess.Messages) == 0 {
		s.mu.Unlock()
		return false
	}
	last := &sess.Messages[len(sess.Messages)-1]
	if last.Role != model.RoleAssistant {
		s.mu.Unlock()
		return false
	}
	last.Content += delta
	s.mu.Unlock()
	s.notify()
	return true
}

// TruncateMessages keeps the first n messages of a session, dropping the
// rest. Counts beyond the list length are a no-op.
func (s *Store) TruncateMessages(id string, n int) {
	s.mu.Lock()
	if sess, ok := s.index[id]; ok && n >= 0 && n < len(sess.Messages) {
		sess.Messages = sess.Messages[:n:n]
	}
	s.mu.Unlock()
	s.notify()
}

// DropTrailingEmptyAssistant removes the trailing message when it is an
// assistant placeholder with empty content, so a failed generation leaves
// no empty bubble. Reports whether a message was removed.
func (s *Store) DropTrailingEmptyAssistant(id string) bool {
	s.mu.Lock()
	sess, ok := s.index[id]
	if !ok || len(sess.Messages) == 0 {
		s.mu.Unlock()
		return false
	}
	last := sess.Messages[len(sess.Messages)-1]
	if !last.IsEmptyAssistant() {
		s.mu.Unlock()
		return false
	}
	sess.Messages = sess.Messages[:len(sess.Messages)-1]
	s.mu.Unlock()
	s.notify()
	return true
}
