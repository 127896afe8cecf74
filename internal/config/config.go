// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for quill.
//
// Configuration lives in ~/.quill/config.toml, with built-in defaults and
// environment variable overrides (QUILL_API_KEY, QUILL_BASE_URL,
// QUILL_MODEL).
package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/morganforge/quill/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete quill configuration.
type Config struct {
	// API contains chat endpoint settings.
	API APIConfig `toml:"api"`

	// Retry contains transient-failure retry settings.
	Retry RetryConfig `toml:"retry"`

	// UI contains terminal output settings.
	UI UIConfig `toml:"ui"`
}

// APIConfig contains chat endpoint configuration.
type APIConfig struct {
	// BaseURL is the OpenAI-compatible API base URL.
	BaseURL string `toml:"base_url"`
	// Key is the API key. Prefer the QUILL_API_KEY environment variable
	// over storing it in the file.
	Key string `toml:"key"`
	// Model is the model requested for completions.
	Model string `toml:"model"`
	// SystemPrompt, when set, is sent as the first message of every session.
	SystemPrompt string `toml:"system_prompt"`
	// RequestTimeoutSecs bounds the wait for response headers.
	RequestTimeoutSecs int `toml:"request_timeout_secs"`
	// Temperature is passed through to the request when non-zero.
	Temperature float64 `toml:"temperature"`
	// MaxTokens caps the response length when non-zero.
	MaxTokens int `toml:"max_tokens"`
}

// RetryConfig contains retry behavior for transient API failures.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int `toml:"max_retries"`
	// BaseDelayMs is the backoff base delay in milliseconds; the delay
	// doubles with each retry.
	BaseDelayMs int `toml:"base_delay_ms"`
}

// UIConfig contains terminal output configuration.
type UIConfig struct {
	// Markdown enables fence-aware formatting of assistant output.
	Markdown bool `toml:"markdown"`
	// Verbose includes API error bodies in failure messages.
	Verbose bool `toml:"verbose"`
}

// Default returns the built-in default configuration.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:            "https://api.openai.com/v1",
			Model:              "gpt-4o-mini",
			RequestTimeoutSecs: 30,
		},
		Retry: RetryConfig{
			MaxRetries:  3,
			BaseDelayMs: 1000,
		},
		UI: UIConfig{
			Markdown: true,
		},
	}
}

// RequestTimeout returns the request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.API.RequestTimeoutSecs) * time.Second
}

// BaseDelay returns the retry base delay as a duration.
func (c *Config) BaseDelay() time.Duration {
	return time.Duration(c.Retry.BaseDelayMs) * time.Millisecond
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns the quill configuration directory (~/.quill).
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".quill"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ensureSecurePermissions fixes permissions on the config file.
// SECURITY: the file may hold an API key, so it must be 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load loads the configuration from ~/.quill/config.toml, falling back to
// defaults when the file does not exist. Environment overrides are applied
// last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads the configuration from an explicit file path. A missing
// file is not an error; defaults are used.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if err := ensureSecurePermissions(path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
		}
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to ~/.quill/config.toml.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveToPath(cfg, path)
}

// SaveToPath writes the configuration to an explicit path.
// SECURITY: the file is written with 0600 permissions.
// RELIABILITY: the write is atomic, so a crash never leaves a torn file.
func SaveToPath(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# quill configuration file\n")
	buf.WriteString("# Generated by quill - edit with care\n")
	buf.WriteString("\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// OVERRIDES / DEFAULTS / VALIDATION
// =============================================================================

// ApplyEnvOverrides applies QUILL_* environment variables on top of the
// loaded values.
func (c *Config) ApplyEnvOverrides() {
	if key := os.Getenv("QUILL_API_KEY"); key != "" {
		c.API.Key = key
	}
	if base := os.Getenv("QUILL_BASE_URL"); base != "" {
		c.API.BaseURL = base
	}
	if model := os.Getenv("QUILL_MODEL"); model != "" {
		c.API.Model = model
	}
}

// SetDefaults fills zero values with defaults.
func (c *Config) SetDefaults() {
	def := Default()
	if c.API.BaseURL == "" {
		c.API.BaseURL = def.API.BaseURL
	}
	if c.API.Model == "" {
		c.API.Model = def.API.Model
	}
	if c.API.RequestTimeoutSecs <= 0 {
		c.API.RequestTimeoutSecs = def.API.RequestTimeoutSecs
	}
	if c.Retry.MaxRetries < 0 {
		c.Retry.MaxRetries = def.Retry.MaxRetries
	}
	if c.Retry.BaseDelayMs <= 0 {
		c.Retry.BaseDelayMs = def.Retry.BaseDelayMs
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("api.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api.base_url: scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("api.base_url: missing host")
	}
	if strings.TrimSpace(c.API.Model) == "" {
		return fmt.Errorf("api.model: must not be empty")
	}
	if c.Retry.MaxRetries > 10 {
		return fmt.Errorf("retry.max_retries: %d exceeds maximum of 10", c.Retry.MaxRetries)
	}
	if c.API.Temperature < 0 || c.API.Temperature > 2 {
		return fmt.Errorf("api.temperature: %v outside valid range [0, 2]", c.API.Temperature)
	}
	return nil
}
