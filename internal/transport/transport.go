// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transport owns the persistent duplex connection to the backend's
// streaming chat endpoint. It serializes outgoing chat requests,
// demultiplexes incoming event frames to a handler, and reconnects with
// bounded exponential backoff after a drop.
//
// At most one logical connection exists at a time; Connect while already
// open or connecting is a no-op.
package transport

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Reconnect policy constants.
const (
	// reconnectBaseDelay is the first retry delay after a drop.
	reconnectBaseDelay = 3 * time.Second

	// reconnectMaxDelay caps the exponential backoff.
	reconnectMaxDelay = 60 * time.Second

	// dialTimeout bounds a single connection attempt.
	dialTimeout = 10 * time.Second
)

// ErrNotOpen indicates a send was attempted while the connection is not
// open. No state is mutated; the caller informs the user to retry.
var ErrNotOpen = errors.New("streaming connection not open")

// =============================================================================
// CONNECTION STATE
// =============================================================================

// State is the transport state machine position:
// Disconnected → Connecting → Open → Disconnected (…loop).
type State int

const (
	Disconnected State = iota
	Connecting
	Open
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "connected"
	default:
		return "disconnected"
	}
}

// =============================================================================
// HANDLER
// =============================================================================

// Handler receives transport callbacks. Calls arrive from the transport's
// goroutines; implementations synchronize their own state.
type Handler interface {
	// HandleFrame is called for each inbound frame.
	HandleFrame(Frame)

	// HandleStateChange is called on every state transition.
	HandleStateChange(State)

	// HandleDrop is called when an open connection is lost, before the
	// reconnect timer is armed. A half-finished generation must be
	// released here so the UI never sticks in "thinking".
	HandleDrop(err error)
}

// =============================================================================
// CONN
// =============================================================================

// Conn is the single logical streaming connection.
type Conn struct {
	url     string
	handler Handler
	dialer  *websocket.Dialer

	// dialLimiter coalesces overlapping manual reconnect requests with
	// the timer-driven ones.
	dialLimiter *rate.Limiter

	// baseDelay seeds the backoff; tests shrink it.
	baseDelay time.Duration

	mu               sync.Mutex
	ws               *websocket.Conn
	state            State
	attempt          int
	reconnectPending bool
	closed           bool
}

// New creates a transport for the given ws:// or wss:// endpoint.
func New(url string, handler Handler) *Conn {
	return &Conn{
		url:         url,
		handler:     handler,
		dialer:      &websocket.Dialer{HandshakeTimeout: dialTimeout},
		dialLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
		baseDelay:   reconnectBaseDelay,
	}
}

// State returns the current transport state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsOpen reports whether the connection is open and ready for frames.
func (c *Conn) IsOpen() bool {
	return c.State() == Open
}

// =============================================================================
// CONNECT / CLOSE
// =============================================================================

// Connect opens the connection unless one is already open or an attempt is
// outstanding. The dial happens off the caller's goroutine; the handler
// observes progress through state changes.
func (c *Conn) Connect() {
	c.mu.Lock()
	if c.closed || c.state != Disconnected {
		c.mu.Unlock()
		return
	}
	if !c.dialLimiter.Allow() {
		// A dial just happened; fall back to the retry timer instead of
		// hammering the endpoint.
		c.mu.Unlock()
		c.scheduleReconnect()
		return
	}
	c.setStateLocked(Connecting)
	c.mu.Unlock()

	go c.dial()
}

// Close tears the connection down and stops the reconnect loop for good.
func (c *Conn) Close() {
	c.mu.Lock()
	c.closed = true
	ws := c.ws
	c.ws = nil
	c.setStateLocked(Disconnected)
	c.mu.Unlock()

	if ws != nil {
		ws.Close()
	}
}

func (c *Conn) dial() {
	ws, _, err := c.dialer.Dial(c.url, nil)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		if ws != nil {
			ws.Close()
		}
		return
	}
	if err != nil {
		c.setStateLocked(Disconnected)
		c.mu.Unlock()
		log.Printf("transport: dial failed: %v", err)
		c.scheduleReconnect()
		return
	}

	c.ws = ws
	c.attempt = 0
	c.setStateLocked(Open)
	c.mu.Unlock()

	go c.readLoop(ws)
}

// setStateLocked transitions the state and notifies the handler.
// Caller holds c.mu; the notification is synchronous by design so tests
// and the engine observe transitions in order.
func (c *Conn) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if c.handler != nil {
		c.handler.HandleStateChange(s)
	}
}

// =============================================================================
// SEND
// =============================================================================

// Send writes a chat request frame. Returns ErrNotOpen when the connection
// is not open; nothing is mutated in that case.
func (c *Conn) Send(req ChatRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Open || c.ws == nil {
		return ErrNotOpen
	}
	// WriteJSON is not safe for concurrent writers; the mutex serializes.
	return c.ws.WriteJSON(req)
}

// =============================================================================
// READ LOOP
// =============================================================================

func (c *Conn) readLoop(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.handleDrop(ws, err)
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			// Skip malformed frames rather than dropping the connection.
			log.Printf("transport: malformed frame: %v", err)
			continue
		}
		if c.handler != nil {
			c.handler.HandleFrame(frame)
		}
	}
}

func (c *Conn) handleDrop(ws *websocket.Conn, err error) {
	ws.Close()

	c.mu.Lock()
	if c.ws != ws {
		// A stale read loop from a superseded connection; nothing to do.
		c.mu.Unlock()
		return
	}
	c.ws = nil
	closed := c.closed
	c.setStateLocked(Disconnected)
	c.mu.Unlock()

	if closed {
		return
	}

	log.Printf("transport: connection lost: %v", err)
	if c.handler != nil {
		c.handler.HandleDrop(err)
	}
	c.scheduleReconnect()
}

// =============================================================================
// RECONNECT
// =============================================================================

// scheduleReconnect arms exactly one retry timer. The delay grows
// exponentially from reconnectBaseDelay up to reconnectMaxDelay and resets
// on a successful open.
func (c *Conn) scheduleReconnect() {
	c.mu.Lock()
	if c.closed || c.reconnectPending || c.state != Disconnected {
		c.mu.Unlock()
		return
	}
	c.reconnectPending = true
	delay := c.backoffDelay(c.attempt)
	c.attempt++
	c.mu.Unlock()

	time.AfterFunc(delay, func() {
		c.mu.Lock()
		c.reconnectPending = false
		c.mu.Unlock()
		c.Connect()
	})
}

// backoffDelay returns the retry delay for the given attempt.
func (c *Conn) backoffDelay(attempt int) time.Duration {
	if attempt > 6 {
		return reconnectMaxDelay
	}
	delay := c.baseDelay * time.Duration(1<<uint(attempt))
	if delay > reconnectMaxDelay {
		return reconnectMaxDelay
	}
	return delay
}
