// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for claudechat.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.claudechat/config.toml
//   - ~/.claudechat/config.json
//   - Built-in defaults
//
// SECURITY: The API key never lives in the config file. It belongs to the
// keystore; a key found in a loaded config is ignored by design.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/mforge/claudechat/internal/model"
	"github.com/mforge/claudechat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Generation limits. MaxTokens is clamped rather than rejected so a
// hand-edited config degrades to something usable instead of an error.
const (
	MinMaxTokens = 1
	MaxMaxTokens = 200000

	MinTemperature = 0.0
	MaxTemperature = 1.0
)

// Defaults.
const (
	DefaultModel       = "claude-sonnet-4-6"
	DefaultMaxTokens   = 8096
	DefaultTemperature = 1.0
)

// Config represents the complete claudechat configuration.
type Config struct {
	// Model is the model identifier sent on every request.
	Model string `toml:"model" json:"model"`
	// MaxTokens caps the response length per exchange.
	MaxTokens int `toml:"max_tokens" json:"max_tokens"`
	// Temperature is the sampling temperature, 0.0-1.0.
	Temperature float64 `toml:"temperature" json:"temperature"`
	// SystemPrompt is prepended to every session. Empty means none.
	SystemPrompt string `toml:"system_prompt" json:"system_prompt"`

	// UI settings.
	UI UIConfig `toml:"ui" json:"ui"`
}

// UIConfig contains terminal UI configuration.
type UIConfig struct {
	// Markdown enables rendered markdown in the chat view.
	Markdown bool `toml:"markdown" json:"markdown"`
	// Theme selects the color theme: "dark" or "light".
	Theme string `toml:"theme" json:"theme"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Model:        DefaultModel,
		MaxTokens:    DefaultMaxTokens,
		Temperature:  DefaultTemperature,
		SystemPrompt: "",
		UI: UIConfig{
			Markdown: true,
			Theme:    "dark",
		},
	}
}

// Params returns the generation parameters snapshot used when creating a
// session.
func (c *Config) Params() model.Params {
	return model.Params{
		Model:        c.Model,
		MaxTokens:    c.MaxTokens,
		Temperature:  c.Temperature,
		SystemPrompt: c.SystemPrompt,
	}
}

// =============================================================================
// DATA DIRECTORY
// =============================================================================

// DataDir returns the application data directory, honoring the
// CLAUDECHAT_DATA_DIR override.
func DataDir() (string, error) {
	if dir := os.Getenv("CLAUDECHAT_DATA_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".claudechat"), nil
}

// SessionsDir returns the directory holding session files.
func SessionsDir(dataDir string) string {
	return filepath.Join(dataDir, "sessions")
}

// UsagePath returns the usage ledger location.
func UsagePath(dataDir string) string {
	return filepath.Join(dataDir, "usage.json")
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads the configuration from dataDir, trying config.toml first and
// config.json second, then applies environment overrides and validation.
// A missing file is not an error; defaults apply.
func Load(dataDir string) (*Config, error) {
	cfg := Default()

	tomlPath := filepath.Join(dataDir, "config.toml")
	jsonPath := filepath.Join(dataDir, "config.json")

	switch {
	case fileExists(tomlPath):
		if _, err := toml.DecodeFile(tomlPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", tomlPath, err)
		}
	case fileExists(jsonPath):
		data, err := os.ReadFile(jsonPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", jsonPath, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", jsonPath, err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.Validate()
	return cfg, nil
}

// applyEnvOverrides applies CLAUDECHAT_* environment variables on top of the
// loaded file. Malformed numeric values are ignored rather than fatal.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CLAUDECHAT_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("CLAUDECHAT_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxTokens = n
		}
	}
	if v := os.Getenv("CLAUDECHAT_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Temperature = f
		}
	}
	if v := os.Getenv("CLAUDECHAT_SYSTEM_PROMPT"); v != "" {
		c.SystemPrompt = v
	}
	if v := os.Getenv("CLAUDECHAT_THEME"); v != "" {
		c.UI.Theme = v
	}
}

// Validate clamps out-of-range values to usable bounds and fills empty
// required fields with defaults.
func (c *Config) Validate() {
	if strings.TrimSpace(c.Model) == "" {
		c.Model = DefaultModel
	}
	if c.MaxTokens < MinMaxTokens || c.MaxTokens > MaxMaxTokens {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Temperature < MinTemperature {
		c.Temperature = MinTemperature
	}
	if c.Temperature > MaxTemperature {
		c.Temperature = MaxTemperature
	}
	if c.UI.Theme != "dark" && c.UI.Theme != "light" {
		c.UI.Theme = "dark"
	}
}

// =============================================================================
// SAVING
// =============================================================================

// Save writes the configuration as TOML to dataDir/config.toml.
func (c *Config) Save(dataDir string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	path := filepath.Join(dataDir, "config.toml")
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// fileExists reports whether path exists and is a regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
