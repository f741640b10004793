// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine is the client-side synchronization core. It owns the
// optimistic update flow (send, revoke, resend), reconciles the session
// cache against the backend's metadata endpoints, lazily loads message
// histories, and folds streamed frames from the transport back into the
// cache.
//
// All mutations flow through the store; the engine never touches session
// state directly. The transport calls back into the engine from its own
// goroutines; the store's mutex keeps each mutation coherent.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jeranaias/tidal-tui/internal/api"
	"github.com/jeranaias/tidal-tui/internal/model"
	"github.com/jeranaias/tidal-tui/internal/store"
	"github.com/jeranaias/tidal-tui/internal/transport"
)

// DefaultGenerationTimeout bounds how long a generation may go without a
// frame before the engine surfaces a local timeout error.
const DefaultGenerationTimeout = 120 * time.Second

var (
	// ErrTransportUnavailable indicates a send was attempted while the
	// streaming connection is not open. No state is mutated.
	ErrTransportUnavailable = errors.New("not connected to server")

	// ErrNoSession indicates an operation that needs a current session ran
	// without one.
	ErrNoSession = errors.New("no session selected")

	// ErrInvalidTarget indicates a revoke or resend aimed at an index that
	// is out of range or not a user message.
	ErrInvalidTarget = errors.New("target is not a user message")
)

// Archiver records completed exchanges off the hot path. Implementations
// must tolerate concurrent calls.
type Archiver interface {
	RecordExchange(sessionID, title string, user, assistant model.Message) error
}

// Transport is the streaming connection surface the engine drives.
type Transport interface {
	Connect()
	Close()
	IsOpen() bool
	Send(transport.ChatRequest) error
}

// Event is pushed to the UI whenever state changed or a transient notice
// should be shown. A zero Event just means "redraw from the store".
type Event struct {
	Notice string
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine wires the store, the REST client, and the streaming transport
// into the synchronization core.
type Engine struct {
	store  *store.Store
	client *api.Client

	mu        sync.Mutex
	conn      Transport
	chatCfg   *model.Config
	connState transport.State

	// watchdog fires when a generation goes silent for genTimeout.
	watchdog   *time.Timer
	genTimeout time.Duration

	archiver Archiver

	events chan Event
}

// Options configures optional engine behavior.
type Options struct {
	// GenerationTimeout overrides DefaultGenerationTimeout; zero keeps the
	// default, negative disables the watchdog.
	GenerationTimeout time.Duration

	// Archiver, when set, receives each completed exchange.
	Archiver Archiver
}

// New creates an engine over the given store and REST client. The
// streaming transport is attached separately because it needs the engine
// as its frame handler.
func New(st *store.Store, client *api.Client, opts Options) *Engine {
	timeout := opts.GenerationTimeout
	if timeout == 0 {
		timeout = DefaultGenerationTimeout
	}
	e := &Engine{
		store:      st,
		client:     client,
		genTimeout: timeout,
		archiver:   opts.Archiver,
		events:     make(chan Event, 64),
	}
	st.SetOnChange(func() { e.push(Event{}) })
	return e
}

// AttachTransport hands the engine its streaming connection.
func (e *Engine) AttachTransport(conn Transport) {
	e.mu.Lock()
	e.conn = conn
	e.mu.Unlock()
}

// Connect asks the transport to open its connection.
func (e *Engine) Connect() {
	if conn := e.transport(); conn != nil {
		conn.Connect()
	}
}

// Shutdown tears down the streaming connection and stops its reconnect
// loop.
func (e *Engine) Shutdown() {
	e.stopWatchdog()
	if conn := e.transport(); conn != nil {
		conn.Close()
	}
}

// Events returns the channel the UI drains for redraws and notices.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// ConnState returns the last observed transport state.
func (e *Engine) ConnState() transport.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connState
}

// ChatConfig returns the last loaded global chat configuration, nil when
// it has not been fetched yet.
func (e *Engine) ChatConfig() *model.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.chatCfg == nil {
		return nil
	}
	cfg := *e.chatCfg
	return &cfg
}

// push delivers an event without blocking; the UI redraws from the store,
// so a dropped event coalesces into the next one.
func (e *Engine) push(ev Event) {
	select {
	case e.events <- ev:
	default:
	}
}

func (e *Engine) transport() Transport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn
}

// =============================================================================
// METADATA SYNC
// =============================================================================

// LoadChatConfig fetches the global chat configuration from the backend.
func (e *Engine) LoadChatConfig(ctx context.Context) error {
	cfg, err := e.client.LoadConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load chat config: %w", err)
	}
	e.mu.Lock()
	e.chatCfg = cfg
	e.mu.Unlock()
	e.push(Event{})
	return nil
}

// UpdateChatConfig applies the global configuration locally and persists
// it. The local value is kept even when persistence fails.
func (e *Engine) UpdateChatConfig(ctx context.Context, cfg *model.Config) error {
	e.mu.Lock()
	e.chatCfg = cfg
	e.mu.Unlock()
	e.push(Event{})
	if err := e.client.SaveConfig(ctx, cfg); err != nil {
		log.Printf("engine: failed to persist chat config: %v", err)
		return err
	}
	return nil
}

// RefreshAll reconciles the cache against the server's session list,
// preserving already-loaded message histories.
func (e *Engine) RefreshAll(ctx context.Context) error {
	metas, err := e.client.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh sessions: %w", err)
	}
	e.store.ReplaceAll(metas)
	return nil
}

// Create asks the server for a new session, inserts it at the front, and
// selects it.
func (e *Engine) Create(ctx context.Context) (*model.Session, error) {
	sess, err := e.client.CreateSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	e.store.Upsert(*sess)
	// A fresh session has no history to fetch.
	e.store.PatchMessages(sess.ID, []model.Message{})
	e.store.SetCurrent(sess.ID)
	return sess, nil
}

// Remove deletes a session on the server and locally. When the removed
// session was selected, the first remaining one (or none) becomes current,
// then a full refresh reconciles against server truth.
func (e *Engine) Remove(ctx context.Context, id string) error {
	if err := e.client.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	wasCurrent := e.store.CurrentID() == id
	e.store.Remove(id)
	if wasCurrent {
		if remaining := e.store.List(); len(remaining) > 0 {
			e.Select(remaining[0].ID)
		}
	}
	if err := e.RefreshAll(ctx); err != nil {
		log.Printf("engine: refresh after delete failed: %v", err)
	}
	return nil
}

// Rename applies a title locally and persists it fire-and-forget. A failed
// write is reported but the local rename stays (last writer wins).
func (e *Engine) Rename(ctx context.Context, id, title string) error {
	e.store.SetTitle(id, title)
	if err := e.client.Rename(ctx, id, title); err != nil {
		log.Printf("engine: failed to persist rename of %s: %v", id, err)
		return err
	}
	return nil
}

// SetSessionConfig merges a sparse config patch into the session, locally
// and remotely. The local merge stays on a failed write.
func (e *Engine) SetSessionConfig(ctx context.Context, id string, patch *model.SessionConfig) error {
	e.store.MergeSessionConfig(id, patch)
	if err := e.client.SetSessionConfig(ctx, id, patch); err != nil {
		log.Printf("engine: failed to persist config of %s: %v", id, err)
		return err
	}
	return nil
}

// =============================================================================
// MESSAGE LOADER
// =============================================================================

// Select marks the session as current and lazily fetches its history on
// first selection. The fetch runs off the caller's goroutine; its result
// is patched by the id it was issued for, so a stale fetch can never
// overwrite another session. The loading flag is only cleared by the fetch
// whose session is still selected when it finishes.
func (e *Engine) Select(id string) {
	e.store.SetCurrent(id)
	sess, ok := e.store.Get(id)
	if !ok || sess.Loaded {
		// A fetch for a previously selected session may still be in
		// flight; it will not clear the flag once the selection moved
		// on, so switching to a loaded session clears it here.
		e.store.SetLoading(false)
		return
	}
	e.store.SetLoading(true)

	go func(id string) {
		ctx, cancel := context.WithTimeout(context.Background(), api.DefaultTimeout)
		defer cancel()

		messages, err := e.client.LoadMessages(ctx, id)
		if err != nil {
			log.Printf("engine: failed to load messages for %s: %v", id, err)
		} else {
			e.store.PatchMessages(id, messages)
		}
		if e.store.CurrentID() == id {
			e.store.SetLoading(false)
		}
	}(id)
}

// =============================================================================
// OPTIMISTIC UPDATE CONTROLLER
// =============================================================================

// SendUserMessage appends the user message and an empty assistant
// placeholder to the current session before any network round-trip, sets
// the generation flag, and hands the resolved request to the transport.
// When the transport is not open it fails without mutating anything.
func (e *Engine) SendUserMessage(text string) error {
	conn := e.transport()
	if conn == nil || !conn.IsOpen() {
		return ErrTransportUnavailable
	}
	sess, ok := e.store.Current()
	if !ok {
		return ErrNoSession
	}

	e.store.AppendMessage(sess.ID, model.NewUserMessage(text))
	e.store.AppendMessage(sess.ID, model.NewAssistantPlaceholder())
	e.store.SetGenerating(true)
	e.armWatchdog()

	req := transport.ChatRequest{
		SessionID: sess.ID,
		Message:   text,
		Config:    model.ResolveRequestConfig(e.ChatConfig(), sess.Config),
	}
	if err := conn.Send(req); err != nil {
		// The socket dropped between the check and the write. Release the
		// generation the same way a transport drop would.
		e.stopWatchdog()
		e.store.SetGenerating(false)
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Revoke truncates the current session's history to everything strictly
// before index and persists the truncated list. Persistence failures are
// reported but never roll the local truncation back.
func (e *Engine) Revoke(ctx context.Context, index int) error {
	sess, ok := e.store.Current()
	if !ok {
		return ErrNoSession
	}
	if index < 0 || index >= len(sess.Messages) || sess.Messages[index].Role != model.RoleUser {
		return ErrInvalidTarget
	}

	e.store.TruncateMessages(sess.ID, index)
	if err := e.client.OverwriteMessages(ctx, sess.ID, sess.Messages[:index]); err != nil {
		log.Printf("engine: failed to persist revoke on %s: %v", sess.ID, err)
		return err
	}
	return nil
}

// Resend revokes back to index and re-sends that user message's text.
// History editing is modeled as exactly this round-trip; there is no
// in-place message edit.
func (e *Engine) Resend(ctx context.Context, index int) error {
	conn := e.transport()
	if conn == nil || !conn.IsOpen() {
		return ErrTransportUnavailable
	}
	sess, ok := e.store.Current()
	if !ok {
		return ErrNoSession
	}
	if index < 0 || index >= len(sess.Messages) || sess.Messages[index].Role != model.RoleUser {
		return ErrInvalidTarget
	}
	text := sess.Messages[index].Content

	if err := e.Revoke(ctx, index); err != nil {
		// Local truncation already happened; the send still proceeds so
		// local history stays the source of truth.
		log.Printf("engine: resend continuing after revoke error: %v", err)
	}
	return e.SendUserMessage(text)
}

// =============================================================================
// FRAME DISPATCH
// =============================================================================

// HandleFrame folds one inbound frame into the cache. Called from the
// transport's read goroutine.
func (e *Engine) HandleFrame(f transport.Frame) {
	switch f.Type {
	case transport.FrameUserMessageSaved:
		// The optimistic append already happened.
		log.Printf("engine: user message saved")

	case transport.FrameStream:
		e.armWatchdog()
		id := e.store.CurrentID()
		if id == "" {
			return
		}
		if !e.store.AppendToLastAssistant(id, f.Content) {
			// No trailing assistant placeholder; the delta belongs to a
			// request whose session state moved on. Drop it.
			log.Printf("engine: dropped stray stream delta for %s", id)
		}

	case transport.FrameDone:
		e.stopWatchdog()
		e.store.SetGenerating(false)
		e.archiveLastExchange()

	case transport.FrameError:
		e.stopWatchdog()
		if id := e.store.CurrentID(); id != "" {
			e.store.DropTrailingEmptyAssistant(id)
			e.store.AppendMessage(id, model.NewSystemNotice("❌ "+f.Content))
		}
		e.store.SetGenerating(false)

	default:
		log.Printf("engine: unknown frame type %q", f.Type)
	}
}

// HandleStateChange records the transport state for the UI. Called with
// the transport's lock held, so it must not call back into the transport.
func (e *Engine) HandleStateChange(s transport.State) {
	e.mu.Lock()
	e.connState = s
	e.mu.Unlock()
	e.push(Event{})
}

// HandleDrop releases a half-finished generation the moment the connection
// is lost, before any reconnect delay, so the UI never sticks in
// "thinking".
func (e *Engine) HandleDrop(err error) {
	e.stopWatchdog()
	e.store.SetGenerating(false)
	e.push(Event{Notice: "connection lost, reconnecting"})
}

// =============================================================================
// GENERATION WATCHDOG
// =============================================================================

// armWatchdog starts or rearms the silence timer for the in-flight
// generation. Each stream frame rearms it.
func (e *Engine) armWatchdog() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.watchdog != nil {
		e.watchdog.Stop()
		e.watchdog = nil
	}
	if e.genTimeout < 0 {
		return
	}
	e.watchdog = time.AfterFunc(e.genTimeout, e.watchdogFired)
}

func (e *Engine) stopWatchdog() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.watchdog != nil {
		e.watchdog.Stop()
		e.watchdog = nil
	}
}

// watchdogFired synthesizes a local error frame when the backend went
// silent without a terminal event.
func (e *Engine) watchdogFired() {
	if !e.store.Generating() {
		return
	}
	log.Printf("engine: generation timed out after %s", e.genTimeout)
	e.HandleFrame(transport.Frame{
		Type:    transport.FrameError,
		Content: "generation timed out",
	})
}

// =============================================================================
// ARCHIVE HOOK
// =============================================================================

// archiveLastExchange records the just-completed user/assistant pair off
// the frame-handling path. Archival is additive; failures only log.
func (e *Engine) archiveLastExchange() {
	if e.archiver == nil {
		return
	}
	sess, ok := e.store.Current()
	if !ok || len(sess.Messages) < 2 {
		return
	}
	user := sess.Messages[len(sess.Messages)-2]
	assistant := sess.Messages[len(sess.Messages)-1]
	if user.Role != model.RoleUser || assistant.Role != model.RoleAssistant {
		return
	}
	go func() {
		if err := e.archiver.RecordExchange(sess.ID, sess.Title, user, assistant); err != nil {
			log.Printf("engine: failed to archive exchange: %v", err)
		}
	}()
}
