// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Aegis components.
//
// Configuration is loaded from a single file specified by:
//   - AEGIS_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
// The one exception is the API key, which is never stored in the
// file: it comes from AEGIS_API_KEY.
//
// The file format follows the extension: .yaml/.yml parse as YAML,
// .json/.jsonc as JSON with comments and trailing commas permitted.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/aegis-foundation/aegis/lib/policy"
	"github.com/aegis-foundation/aegis/lib/sessionlog"
)

// Defaults used by [Default]. The model has no default: a config
// file must name one.
const (
	DefaultMaxTokens = 4096
	DefaultMaxRounds = 25
	DefaultTimeout   = 300 * time.Second
	DefaultAutonomy  = "smart_default"
	DefaultArchive   = "zstd"
)

// Config is the master configuration for an Aegis agent.
type Config struct {
	// Model is the model identifier sent on every request. Required.
	Model string `json:"model" yaml:"model"`

	// BaseURL overrides the model API endpoint. Empty means the
	// provider default.
	BaseURL string `json:"base_url" yaml:"base_url"`

	// MaxTokens caps the model's output per round.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`

	// SystemPrompt is sent as the system block of every request.
	SystemPrompt string `json:"system_prompt" yaml:"system_prompt"`

	// MaxRounds caps the number of model calls per user message.
	MaxRounds int `json:"max_rounds" yaml:"max_rounds"`

	// Timeout is the wall-clock budget for one user message, as a
	// Go duration string ("300s", "5m").
	Timeout string `json:"timeout" yaml:"timeout"`

	// Autonomy selects the policy engine's autonomy level:
	// ask_all, smart_default, or full_auto.
	Autonomy string `json:"autonomy" yaml:"autonomy"`

	// SessionLog is the path of the JSONL session log. Empty
	// disables session recording.
	SessionLog string `json:"session_log" yaml:"session_log"`

	// ArchiveCompression selects the compression used when session
	// logs are compacted: none, lz4, or zstd.
	ArchiveCompression string `json:"archive_compression" yaml:"archive_compression"`

	// APIKey is never read from the file; Load fills it from
	// AEGIS_API_KEY.
	APIKey string `json:"-" yaml:"-"`
}

// Default returns the default configuration. These defaults are the
// base the config file merges over; the file itself is required for
// anything without a default (the model name).
func Default() *Config {
	return &Config{
		MaxTokens:          DefaultMaxTokens,
		MaxRounds:          DefaultMaxRounds,
		Timeout:            DefaultTimeout.String(),
		Autonomy:           DefaultAutonomy,
		ArchiveCompression: DefaultArchive,
	}
}

// Load loads configuration from the AEGIS_CONFIG environment
// variable. There are no fallbacks — if AEGIS_CONFIG is not set,
// this fails.
func Load() (*Config, error) {
	path := os.Getenv("AEGIS_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("AEGIS_CONFIG environment variable not set; " +
			"set it to the path of your aegis config file, or use --config flag")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path. The config
// file is the single source of truth; only the API key comes from
// the environment.
func LoadFile(path string) (*Config, error) {
	configuration := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, configuration); err != nil {
			return nil, fmt.Errorf("parsing config %q: %w", path, err)
		}
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), configuration); err != nil {
			return nil, fmt.Errorf("parsing config %q: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("config %q: unsupported extension (want .yaml, .yml, .json, or .jsonc)", path)
	}

	configuration.APIKey = os.Getenv("AEGIS_API_KEY")

	if err := configuration.Validate(); err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	return configuration, nil
}

// Validate checks the configuration for errors.
func (configuration *Config) Validate() error {
	var errs []error

	if configuration.Model == "" {
		errs = append(errs, fmt.Errorf("model is required"))
	}
	if configuration.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("max_tokens must be positive"))
	}
	if configuration.MaxRounds <= 0 {
		errs = append(errs, fmt.Errorf("max_rounds must be positive"))
	}

	if _, err := configuration.TimeoutDuration(); err != nil {
		errs = append(errs, err)
	}
	if _, err := policy.ParseAutonomyLevel(configuration.Autonomy); err != nil {
		errs = append(errs, err)
	}
	if _, err := sessionlog.ParseCompressionTag(configuration.ArchiveCompression); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// TimeoutDuration parses the Timeout field.
func (configuration *Config) TimeoutDuration() (time.Duration, error) {
	duration, err := time.ParseDuration(configuration.Timeout)
	if err != nil {
		return 0, fmt.Errorf("timeout %q: %w", configuration.Timeout, err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("timeout must be positive")
	}
	return duration, nil
}

// AutonomyLevel parses the Autonomy field. Call after Validate.
func (configuration *Config) AutonomyLevel() policy.AutonomyLevel {
	level, _ := policy.ParseAutonomyLevel(configuration.Autonomy)
	return level
}

// ArchiveTag parses the ArchiveCompression field. Call after Validate.
func (configuration *Config) ArchiveTag() sessionlog.CompressionTag {
	tag, _ := sessionlog.ParseCompressionTag(configuration.ArchiveCompression)
	return tag
}
