// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/jeranaias/tidal-tui/internal/model"
)

// recordingHandler buffers callbacks onto channels so tests can wait for
// them without blocking the transport's goroutines.
type recordingHandler struct {
	frames chan Frame
	states chan State
	drops  chan error
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		frames: make(chan Frame, 32),
		states: make(chan State, 32),
		drops:  make(chan error, 32),
	}
}

func (h *recordingHandler) HandleFrame(f Frame) { h.frames <- f }

func (h *recordingHandler) HandleStateChange(s State) { h.states <- s }

func (h *recordingHandler) HandleDrop(err error) { h.drops <- err }

// waitForState consumes state changes until the wanted one arrives.
func waitForState(t *testing.T, h *recordingHandler, want State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-h.states:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %v", want)
		}
	}
}

// newWSServer runs a websocket echo point. serve is invoked per accepted
// connection; the counter tracks total upgrades.
func newWSServer(t *testing.T, serve func(ws *websocket.Conn)) (string, *atomic.Int64, func()) {
	t.Helper()
	var upgrader websocket.Upgrader
	var count atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		count.Add(1)
		serve(ws)
	}))
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	return url, &count, srv.Close
}

// newTestConn builds a Conn with the backoff and dial limiter shrunk so
// reconnect tests finish quickly.
func newTestConn(url string, h Handler) *Conn {
	c := New(url, h)
	c.baseDelay = 20 * time.Millisecond
	c.dialLimiter = rate.NewLimiter(rate.Inf, 1)
	return c
}

func TestSendBeforeConnect(t *testing.T) {
	c := newTestConn("ws://127.0.0.1:0/ws/chat", newRecordingHandler())
	err := c.Send(ChatRequest{SessionID: "s1", Message: "hi"})
	if !errors.Is(err, ErrNotOpen) {
		t.Errorf("Send() error = %v, want ErrNotOpen", err)
	}
}

func TestConnectAndSend(t *testing.T) {
	received := make(chan ChatRequest, 1)
	url, _, stop := newWSServer(t, func(ws *websocket.Conn) {
		defer ws.Close()
		var req ChatRequest
		if err := ws.ReadJSON(&req); err != nil {
			return
		}
		received <- req
	})
	defer stop()

	h := newRecordingHandler()
	c := newTestConn(url, h)
	defer c.Close()

	c.Connect()
	waitForState(t, h, Open)

	req := ChatRequest{
		SessionID: "sess-1",
		Message:   "hello there",
		Config:    model.RequestConfig{Model: "deepseek-chat", MaxTokens: 2048},
	}
	if err := c.Send(req); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case got := <-received:
		if got.SessionID != "sess-1" || got.Message != "hello there" {
			t.Errorf("server received %+v", got)
		}
		if got.Config.Model != "deepseek-chat" {
			t.Errorf("config model = %q, want deepseek-chat", got.Config.Model)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the request")
	}
}

func TestConnectWhileOpenIsNoOp(t *testing.T) {
	url, count, stop := newWSServer(t, func(ws *websocket.Conn) {
		defer ws.Close()
		ws.ReadMessage()
	})
	defer stop()

	h := newRecordingHandler()
	c := newTestConn(url, h)
	defer c.Close()

	c.Connect()
	waitForState(t, h, Open)
	c.Connect()
	c.Connect()

	time.Sleep(100 * time.Millisecond)
	if got := count.Load(); got != 1 {
		t.Errorf("server saw %d connections, want 1", got)
	}
	if got := c.State(); got != Open {
		t.Errorf("State() = %v, want Open", got)
	}
}

func TestFrameDispatch(t *testing.T) {
	url, _, stop := newWSServer(t, func(ws *websocket.Conn) {
		defer ws.Close()
		ws.WriteJSON(Frame{Type: FrameUserMessageSaved})
		ws.WriteJSON(Frame{Type: FrameStream, Content: "Hel"})
		ws.WriteJSON(Frame{Type: FrameStream, Content: "lo"})
		ws.WriteJSON(Frame{Type: FrameDone})
		ws.ReadMessage()
	})
	defer stop()

	h := newRecordingHandler()
	c := newTestConn(url, h)
	defer c.Close()

	c.Connect()
	waitForState(t, h, Open)

	want := []Frame{
		{Type: FrameUserMessageSaved},
		{Type: FrameStream, Content: "Hel"},
		{Type: FrameStream, Content: "lo"},
		{Type: FrameDone},
	}
	for i, w := range want {
		select {
		case got := <-h.frames:
			if got != w {
				t.Errorf("frame %d = %+v, want %+v", i, got, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for frame %d", i)
		}
	}
}

func TestMalformedFrameSkipped(t *testing.T) {
	url, _, stop := newWSServer(t, func(ws *websocket.Conn) {
		defer ws.Close()
		ws.WriteMessage(websocket.TextMessage, []byte("not json at all"))
		ws.WriteJSON(Frame{Type: FrameStream, Content: "still here"})
		ws.ReadMessage()
	})
	defer stop()

	h := newRecordingHandler()
	c := newTestConn(url, h)
	defer c.Close()

	c.Connect()
	waitForState(t, h, Open)

	select {
	case got := <-h.frames:
		if got.Type != FrameStream || got.Content != "still here" {
			t.Errorf("frame = %+v, want the stream frame after the garbage", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("valid frame never arrived after malformed one")
	}
	if got := c.State(); got != Open {
		t.Errorf("State() = %v after malformed frame, want Open", got)
	}
}

func TestDropTriggersReconnect(t *testing.T) {
	url, count, stop := newWSServer(t, func(ws *websocket.Conn) {
		// First connection is slammed shut; later ones are held open.
		if count.Load() == 1 {
			ws.Close()
			return
		}
		defer ws.Close()
		ws.ReadMessage()
	})
	defer stop()

	h := newRecordingHandler()
	c := newTestConn(url, h)
	defer c.Close()

	c.Connect()
	waitForState(t, h, Open)

	select {
	case <-h.drops:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleDrop never fired")
	}

	// The reconnect timer re-dials and the transport opens again.
	waitForState(t, h, Open)
	if got := count.Load(); got < 2 {
		t.Errorf("server saw %d connections, want at least 2", got)
	}
}

func TestCloseStopsReconnect(t *testing.T) {
	url, count, stop := newWSServer(t, func(ws *websocket.Conn) {
		ws.Close()
	})
	defer stop()

	h := newRecordingHandler()
	c := newTestConn(url, h)

	c.Connect()
	waitForState(t, h, Open)
	c.Close()

	// Let any dial that was already in flight land before snapshotting.
	time.Sleep(100 * time.Millisecond)
	settled := count.Load()
	time.Sleep(200 * time.Millisecond)
	if got := count.Load(); got != settled {
		t.Errorf("server saw %d connections after Close, want %d", got, settled)
	}
	if got := c.State(); got != Disconnected {
		t.Errorf("State() = %v after Close, want Disconnected", got)
	}
}

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	c := New("ws://example/ws/chat", nil)
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 3 * time.Second},
		{1, 6 * time.Second},
		{2, 12 * time.Second},
		{3, 24 * time.Second},
		{4, 48 * time.Second},
		{5, 60 * time.Second},
		{100, 60 * time.Second},
	}
	for _, tt := range tests {
		if got := c.backoffDelay(tt.attempt); got != tt.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
