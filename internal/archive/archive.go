// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package archive keeps a local SQLite record of completed exchanges, so
// conversations remain searchable offline. The archive is additive only;
// it is never a source of truth for the session cache.
package archive

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/tidal-tui/internal/model"
)

var (
	ErrClosed        = errors.New("archive closed")
	ErrDatabaseError = errors.New("database error")
)

// Schema for the exchange archive.
const Schema = `
CREATE TABLE IF NOT EXISTS exchanges (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    session_title TEXT,
    prompt TEXT NOT NULL,
    reply TEXT NOT NULL,
    created_at INTEGER NOT NULL  -- Unix timestamp
);

CREATE INDEX IF NOT EXISTS idx_exchanges_session ON exchanges(session_id);
CREATE INDEX IF NOT EXISTS idx_exchanges_created ON exchanges(created_at);
`

// Exchange is one archived prompt/reply pair.
type Exchange struct {
	ID           int64
	SessionID    string
	SessionTitle string
	Prompt       string
	Reply        string
	CreatedAt    time.Time
}

// =============================================================================
// ARCHIVE
// =============================================================================

// Archive is the on-disk exchange store.
type Archive struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	closed bool
}

// Open opens (or creates) the archive database at path.
func Open(path string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Archive{db: db, path: path}, nil
}

// Close releases the database handle.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.db.Close()
}

// =============================================================================
// RECORDING
// =============================================================================

// RecordExchange appends one completed prompt/reply pair. Satisfies the
// engine's archiver hook.
func (a *Archive) RecordExchange(sessionID, title string, user, assistant model.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}

	_, err := a.db.Exec(`
		INSERT INTO exchanges (session_id, session_title, prompt, reply, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, sessionID, title, user.Content, assistant.Content, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// =============================================================================
// QUERIES
// =============================================================================

// Recent returns the newest exchanges, most recent first.
func (a *Archive) Recent(limit int) ([]Exchange, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := a.db.Query(`
		SELECT id, session_id, session_title, prompt, reply, created_at
		FROM exchanges
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	return scanExchanges(rows)
}

// Search returns exchanges whose prompt or reply contains the query text,
// newest first. An empty query returns nothing.
func (a *Archive) Search(query string, limit int) ([]Exchange, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return []Exchange{}, nil
	}
	if limit <= 0 {
		limit = 50
	}

	pattern := "%" + escapeLike(query) + "%"
	rows, err := a.db.Query(`
		SELECT id, session_id, session_title, prompt, reply, created_at
		FROM exchanges
		WHERE prompt LIKE ? ESCAPE '\' OR reply LIKE ? ESCAPE '\'
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	return scanExchanges(rows)
}

// BySession returns all exchanges of one session, oldest first.
func (a *Archive) BySession(sessionID string) ([]Exchange, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}

	rows, err := a.db.Query(`
		SELECT id, session_id, session_title, prompt, reply, created_at
		FROM exchanges
		WHERE session_id = ?
		ORDER BY created_at ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	return scanExchanges(rows)
}

// Stats reports archive size.
type Stats struct {
	ExchangeCount int
	DatabaseSize  int64
}

// Stats returns current archive statistics.
func (a *Archive) Stats() (Stats, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return Stats{}, ErrClosed
	}

	var st Stats
	if err := a.db.QueryRow("SELECT COUNT(*) FROM exchanges").Scan(&st.ExchangeCount); err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if info, err := os.Stat(a.path); err == nil {
		st.DatabaseSize = info.Size()
	}
	return st, nil
}

func scanExchanges(rows *sql.Rows) ([]Exchange, error) {
	var out []Exchange
	for rows.Next() {
		var ex Exchange
		var created int64
		if err := rows.Scan(&ex.ID, &ex.SessionID, &ex.SessionTitle, &ex.Prompt, &ex.Reply, &created); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		ex.CreatedAt = time.Unix(created, 0)
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return out, nil
}

// escapeLike escapes LIKE metacharacters in user input.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
