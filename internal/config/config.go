// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides local configuration loading for tidal.
//
// This is the client's own configuration (which backend to talk to, where to
// keep local files). It is distinct from the chat configuration, which lives
// on the backend and is fetched at startup via the API.
//
// Configuration file location: ~/.tidal/config.toml, falling back to
// built-in defaults. Environment variables override file values.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURE
// =============================================================================

// Config represents the complete tidal client configuration.
type Config struct {
	// ServerURL is the origin of the chat backend. Both the REST endpoints
	// and the streaming endpoint are derived from it.
	ServerURL string `toml:"server_url"`

	// Theme overrides the backend's theme preference: "dark", "light",
	// "auto". Empty defers to the server config.
	Theme string `toml:"theme"`

	// GenerationTimeoutSecs is the maximum silence (no inbound frame) the
	// engine tolerates during a generation before surfacing a timeout.
	// 0 disables the watchdog.
	GenerationTimeoutSecs int `toml:"generation_timeout_secs"`

	// ArchivePath is the sqlite file for the local history archive.
	// Empty disables archiving.
	ArchivePath string `toml:"archive_path"`

	// LogPath receives the process log while the TUI owns the terminal.
	LogPath string `toml:"log_path"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		ServerURL:             "http://127.0.0.1:8765",
		Theme:                 "",
		GenerationTimeoutSecs: 120,
		ArchivePath:           filepath.Join(baseDir(), "archive.db"),
		LogPath:               filepath.Join(baseDir(), "tidal.log"),
	}
}

// baseDir returns ~/.tidal, or the working directory when the home
// directory cannot be resolved.
func baseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tidal"
	}
	return filepath.Join(home, ".tidal")
}

// Path returns the default config file location.
func Path() string {
	return filepath.Join(baseDir(), "config.toml")
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads the configuration from the default location, applies
// environment overrides, and validates the result. A missing file is not an
// error; defaults apply.
func Load() (*Config, error) {
	return LoadFromPath(Path())
}

// LoadFromPath reads the configuration from a specific TOML file.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies TIDAL_* environment variables over file values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TIDAL_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("TIDAL_THEME"); v != "" {
		cfg.Theme = v
	}
	if v := os.Getenv("TIDAL_GENERATION_TIMEOUT_SECS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.GenerationTimeoutSecs = secs
		}
	}
	if v := os.Getenv("TIDAL_ARCHIVE_PATH"); v != "" {
		cfg.ArchivePath = v
	}
	if v := os.Getenv("TIDAL_LOG_PATH"); v != "" {
		cfg.LogPath = v
	}
}

// Save writes the configuration to the default location in TOML format.
func Save(cfg *Config) error {
	path := Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return errors.New("server_url must not be empty")
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("server_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server_url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("server_url must include a host")
	}

	switch c.Theme {
	case "", "dark", "light", "auto":
	default:
		return fmt.Errorf("theme must be dark, light, or auto, got %q", c.Theme)
	}

	if c.GenerationTimeoutSecs < 0 {
		return errors.New("generation_timeout_secs must not be negative")
	}
	return nil
}

// StreamURL derives the streaming endpoint from the server origin, with the
// scheme upgraded to the secure variant when the origin itself is secure.
func (c *Config) StreamURL() string {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/chat"
	return u.String()
}
