// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api implements the HTTP client for the backend's session
// metadata and CRUD endpoints. Chat itself flows over the streaming
// transport; everything listed here is plain request/response.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jeranaias/tidal-tui/internal/model"
)

// Configuration constants for the backend API.
const (
	// DefaultTimeout is the default timeout for API requests.
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	// SECURITY: Response size limit prevents memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB
)

// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
// Shared HTTP client for all backend requests.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	},
	Timeout: DefaultTimeout,
}

// Error variables for common backend errors.
var (
	// ErrNotFound indicates the session does not exist on the server.
	ErrNotFound = errors.New("session not found")

	// ErrServer indicates the backend reported an internal failure.
	ErrServer = errors.New("server error")
)

// APIError represents a non-2xx response from the backend.
type APIError struct {
	Status int
	Body   string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("backend error (HTTP %d): %s", e.Status, e.Body)
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the backend's REST surface.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the given server origin.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: sharedHTTPClient,
	}
}

// WithHTTPClient sets a custom HTTP client (tests).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// =============================================================================
// CONFIG ENDPOINTS
// =============================================================================

// LoadConfig fetches the process-wide chat configuration.
func (c *Client) LoadConfig(ctx context.Context) (*model.Config, error) {
	var cfg model.Config
	if err := c.do(ctx, http.MethodGet, "/api/config", nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveConfig persists the process-wide chat configuration.
func (c *Client) SaveConfig(ctx context.Context, cfg *model.Config) error {
	return c.do(ctx, http.MethodPost, "/api/config", cfg, nil)
}

// =============================================================================
// SESSION ENDPOINTS
// =============================================================================

// ListSessions fetches session metadata for all sessions. The results carry
// message counts but no message bodies.
func (c *Client) ListSessions(ctx context.Context) ([]model.Session, error) {
	var list model.SessionList
	if err := c.do(ctx, http.MethodGet, "/api/sessions", nil, &list); err != nil {
		return nil, err
	}
	return list.Sessions, nil
}

// CreateSession asks the server for a new empty session.
func (c *Client) CreateSession(ctx context.Context) (*model.Session, error) {
	var sess model.Session
	if err := c.do(ctx, http.MethodPost, "/api/sessions", nil, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// DeleteSession removes a session on the server.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/sessions/"+url.PathEscape(id), nil, nil)
}

// LoadMessages fetches the full message history of one session.
func (c *Client) LoadMessages(ctx context.Context, id string) ([]model.Message, error) {
	var list model.MessageList
	path := "/api/sessions/" + url.PathEscape(id) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list.Messages, nil
}

// Rename persists a session title. The title travels as a query parameter,
// matching the backend's route shape.
func (c *Client) Rename(ctx context.Context, id, title string) error {
	path := "/api/sessions/" + url.PathEscape(id) + "/title?title=" + url.QueryEscape(title)
	return c.do(ctx, http.MethodPut, path, nil, nil)
}

// SetSessionConfig persists a session's sparse config override.
func (c *Client) SetSessionConfig(ctx context.Context, id string, cfg *model.SessionConfig) error {
	path := "/api/sessions/" + url.PathEscape(id) + "/config"
	return c.do(ctx, http.MethodPut, path, cfg, nil)
}

// OverwriteMessages replaces a session's stored message list, used to
// persist a revoke truncation.
func (c *Client) OverwriteMessages(ctx context.Context, id string, messages []model.Message) error {
	path := "/api/sessions/" + url.PathEscape(id) + "/messages"
	if messages == nil {
		messages = []model.Message{}
	}
	return c.do(ctx, http.MethodPut, path, messages, nil)
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// do performs one request. body is marshaled as JSON when non-nil; out is
// unmarshaled from the response when non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	// SECURITY: Read response with size limit to prevent memory exhaustion.
	data, err := readResponse(resp)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.handleErrorResponse(resp.StatusCode, data)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// readResponse reads the response body with a size limit.
func readResponse(resp *http.Response) ([]byte, error) {
	limited := io.LimitReader(resp.Body, MaxResponseSize)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(data)) == MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", int64(MaxResponseSize))
	}
	return data, nil
}

// handleErrorResponse converts HTTP error responses to Go errors.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	detail := string(body)

	// FastAPI-style {"detail": "..."} payloads carry the useful part.
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != "" {
		detail = payload.Detail
	}

	switch {
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, detail)
	case statusCode >= 500:
		return fmt.Errorf("%w: %s", ErrServer, detail)
	default:
		return &APIError{Status: statusCode, Body: detail}
	}
}
