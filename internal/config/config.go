// Copyright 2025 StackVM Users
// SPDX-License-Identifier: Apache-2.0

// Package config loads stackvm's runtime configuration from environment
// variables and an optional TOML file. Env vars win, then the config
// file, then the built-in defaults.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dotandev/stackvm/internal/errors"
)

// Config holds the knobs the interpreter and CLI consult at run time.
type Config struct {
	// EntryExport is the export name the launcher invokes when the user
	// does not pass --entry explicitly.
	EntryExport string `json:"entry_export,omitempty"`
	// MaxMemoryPages overrides a module's declared memory maximum. Zero
	// means "use the module's own declaration, or unbounded if it has none".
	MaxMemoryPages uint32 `json:"max_memory_pages,omitempty"`
	// StrictIndirectCallTypes verifies call_indirect's declared type
	// against the callee's actual signature and traps on mismatch.
	// Defaults to true rather than mirroring an unchecked-call-indirect
	// prototype's behavior.
	StrictIndirectCallTypes bool `json:"strict_indirect_call_types"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty"`
	// HistoryDBPath is where the SQLite run-history database lives.
	HistoryDBPath string `json:"history_db_path,omitempty"`
	// TelemetryEnabled turns on OpenTelemetry tracing of runs and host calls.
	TelemetryEnabled bool `json:"telemetry_enabled,omitempty"`
	// TelemetryEndpoint is the OTLP/HTTP collector endpoint.
	TelemetryEndpoint string `json:"telemetry_endpoint,omitempty"`
	// ColorOutput controls ANSI coloring of CLI diagnostics.
	ColorOutput bool `json:"color_output"`
}

var defaultConfig = &Config{
	EntryExport:             "_start",
	MaxMemoryPages:          0,
	StrictIndirectCallTypes: true,
	LogLevel:                "info",
	HistoryDBPath:           filepath.Join(os.ExpandEnv("$HOME"), ".stackvm", "history.db"),
	TelemetryEnabled:        false,
	TelemetryEndpoint:       "localhost:4318",
	ColorOutput:             true,
}

// DefaultConfig returns a copy of the built-in defaults.
func DefaultConfig() *Config {
	cfg := *defaultConfig
	return &cfg
}

// Load builds a Config from environment variables, then a TOML config
// file, falling back to DefaultConfig for anything unset. Env vars take
// precedence over the file; the file takes precedence over defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.loadFromFile(); err != nil {
		return nil, err
	}

	cfg.EntryExport = getEnv("STACKVM_ENTRY", cfg.EntryExport)
	cfg.LogLevel = getEnv("STACKVM_LOG_LEVEL", cfg.LogLevel)
	cfg.HistoryDBPath = getEnv("STACKVM_HISTORY_DB", cfg.HistoryDBPath)
	cfg.TelemetryEndpoint = getEnv("STACKVM_TELEMETRY_ENDPOINT", cfg.TelemetryEndpoint)

	if v := os.Getenv("STACKVM_MAX_MEMORY_PAGES"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.MaxMemoryPages = uint32(n)
		}
	}
	if v := os.Getenv("STACKVM_STRICT_INDIRECT_CALLS"); v != "" {
		cfg.StrictIndirectCallTypes = parseBool(v, cfg.StrictIndirectCallTypes)
	}
	if v := os.Getenv("STACKVM_TELEMETRY_ENABLED"); v != "" {
		cfg.TelemetryEnabled = parseBool(v, cfg.TelemetryEnabled)
	}
	if v := os.Getenv("STACKVM_COLOR"); v != "" {
		cfg.ColorOutput = parseBool(v, cfg.ColorOutput)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseBool(v string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func (c *Config) loadFromFile() error {
	paths := []string{
		".stackvm.toml",
		filepath.Join(os.ExpandEnv("$HOME"), ".stackvm.toml"),
		"/etc/stackvm/config.toml",
	}
	for _, path := range paths {
		if err := c.loadTOML(path); err == nil {
			return nil
		}
	}
	return nil
}

func (c *Config) loadTOML(path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return c.parseTOML(string(data))
}

// parseTOML implements a deliberately small subset of TOML: bare
// "key = value" lines, comments starting with '#', and quoted or bare
// scalar values.
func (c *Config) parseTOML(content string) error {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), "\"'")

		switch key {
		case "entry_export":
			c.EntryExport = value
		case "max_memory_pages":
			if n, err := strconv.ParseUint(value, 10, 32); err == nil {
				c.MaxMemoryPages = uint32(n)
			}
		case "strict_indirect_call_types":
			c.StrictIndirectCallTypes = value == "true" || value == "1"
		case "log_level":
			c.LogLevel = value
		case "history_db_path":
			c.HistoryDBPath = value
		case "telemetry_enabled":
			c.TelemetryEnabled = value == "true" || value == "1"
		case "telemetry_endpoint":
			c.TelemetryEndpoint = value
		case "color_output":
			c.ColorOutput = value == "true" || value == "1"
		}
	}
	return nil
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate rejects configurations the rest of the program cannot act on.
func (c *Config) Validate() error {
	if c.EntryExport == "" {
		return errors.WrapConfigInvalid("entry_export cannot be empty")
	}
	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		return errors.WrapConfigInvalid("log_level must be one of debug, info, warn, error, got " + c.LogLevel)
	}
	return nil
}

// Save writes the configuration as JSON to the given path.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.WrapConfigInvalid("failed to create config directory: " + err.Error())
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errors.WrapConfigInvalid("failed to marshal config: " + err.Error())
	}
	return os.WriteFile(path, data, 0600)
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
