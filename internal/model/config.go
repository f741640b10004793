// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// =============================================================================
// PROVIDERS
// =============================================================================

// Supported provider names. Each provider has its own credential field in
// the global config; the active provider selects which one is sent.
const (
	ProviderDeepSeek    = "DeepSeek"
	ProviderSiliconFlow = "SiliconFlow"
	ProviderVolcengine  = "Volcengine"
)

// =============================================================================
// GLOBAL CONFIG
// =============================================================================

// Config is the process-wide configuration held by the backend and loaded
// once at startup. Session-level SessionConfig sparsely overrides a subset
// of these fields.
type Config struct {
	APIKeyDeepSeek    string `json:"api_key_deepseek"`
	APIKeySiliconFlow string `json:"api_key_siliconflow"`
	APIKeyVolcengine  string `json:"api_key_volcengine"`

	Provider string `json:"provider"`
	BaseURL  string `json:"base_url"`

	Model        string  `json:"model"`
	MaxTokens    int     `json:"max_tokens"`
	Temperature  float64 `json:"temperature"`
	SystemPrompt string  `json:"system_prompt"`
	ContextLimit int     `json:"context_limit"`

	Theme        string   `json:"theme"`
	CustomModels []string `json:"custom_models,omitempty"`
	UserAvatar   string   `json:"user_avatar,omitempty"`
	AIAvatar     string   `json:"ai_avatar,omitempty"`
}

// APIKey returns the credential for the active provider. The key is never
// session-overridable.
func (c *Config) APIKey() string {
	switch c.Provider {
	case ProviderSiliconFlow:
		return c.APIKeySiliconFlow
	case ProviderVolcengine:
		return c.APIKeyVolcengine
	default:
		return c.APIKeyDeepSeek
	}
}

// =============================================================================
// SESSION CONFIG
// =============================================================================

// SessionConfig is a sparse per-session override. Model, MaxTokens, and
// SystemPrompt win over the global value only when truthy (non-zero).
// Temperature and ContextLimit use pointers so that 0 is a valid override,
// distinguishable from "not set".
type SessionConfig struct {
	Model        string   `json:"model,omitempty"`
	MaxTokens    int      `json:"max_tokens,omitempty"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	ContextLimit *int     `json:"context_limit,omitempty"`
}

// Merge overlays patch onto the receiver field by field and returns the
// result. Nil receivers are treated as empty.
func (sc *SessionConfig) Merge(patch *SessionConfig) *SessionConfig {
	merged := SessionConfig{}
	if sc != nil {
		merged = *sc
	}
	if patch == nil {
		return &merged
	}
	if patch.Model != "" {
		merged.Model = patch.Model
	}
	if patch.MaxTokens != 0 {
		merged.MaxTokens = patch.MaxTokens
	}
	if patch.SystemPrompt != "" {
		merged.SystemPrompt = patch.SystemPrompt
	}
	if patch.Temperature != nil {
		merged.Temperature = patch.Temperature
	}
	if patch.ContextLimit != nil {
		merged.ContextLimit = patch.ContextLimit
	}
	return &merged
}

// =============================================================================
// REQUEST CONFIG
// =============================================================================

// RequestConfig is the fully-resolved config carried by an outbound chat
// frame: session overrides already applied over the global config, and the
// credential selected by the active provider.
type RequestConfig struct {
	APIKey       string  `json:"api_key"`
	BaseURL      string  `json:"base_url"`
	Model        string  `json:"model"`
	MaxTokens    int     `json:"max_tokens"`
	Temperature  float64 `json:"temperature"`
	SystemPrompt string  `json:"system_prompt"`
	ContextLimit int     `json:"context_limit"`
}

// ResolveRequestConfig merges a session's sparse overrides over the global
// config. Model, max_tokens, and system_prompt take the session value when
// truthy; temperature and context_limit take it whenever set, so 0 is a
// valid session override for those two.
func ResolveRequestConfig(global *Config, session *SessionConfig) RequestConfig {
	rc := RequestConfig{}
	if global != nil {
		rc = RequestConfig{
			APIKey:       global.APIKey(),
			BaseURL:      global.BaseURL,
			Model:        global.Model,
			MaxTokens:    global.MaxTokens,
			Temperature:  global.Temperature,
			SystemPrompt: global.SystemPrompt,
			ContextLimit: global.ContextLimit,
		}
	}
	if session == nil {
		return rc
	}
	if session.Model != "" {
		rc.Model = session.Model
	}
	if session.MaxTokens != 0 {
		rc.MaxTokens = session.MaxTokens
	}
	if session.SystemPrompt != "" {
		rc.SystemPrompt = session.SystemPrompt
	}
	if session.Temperature != nil {
		rc.Temperature = *session.Temperature
	}
	if session.ContextLimit != nil {
		rc.ContextLimit = *session.ContextLimit
	}
	return rc
}
