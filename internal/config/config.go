// eventstore - file-backed signal/emission event store
// Copyright 2026 The eventstore Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads the event store's small configuration surface:
// the workspace root and logging options. Precedence is defaults, then an
// optional YAML file, then environment variables, matching the rest of the
// codebase's koanf-based configuration layering.
package config

import (
	"fmt"
	"os"
)

// DefaultConfigPaths lists the paths searched, in order, for a config file.
var DefaultConfigPaths = []string{
	"eventstore.yaml",
	"eventstore.yml",
	"/etc/eventstore/config.yaml",
}

// ConfigPathEnvVar overrides the config file search with an explicit path.
const ConfigPathEnvVar = "EVENTSTORE_CONFIG_PATH"

// LoggingConfig controls the internal/logging package.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Config is the full configuration surface for the store and its CLI.
type Config struct {
	// Workspace is the root directory under which `store/` is created.
	Workspace string `koanf:"workspace"`

	// IndexRebuildWarnThreshold logs a warning when a lazy dedup index
	// rebuild indexes more than this many distinct ids, since it is the dominant
	// in-memory and I/O cost of the store (spec.md §5).
	IndexRebuildWarnThreshold int `koanf:"index_rebuild_warn_threshold"`

	Logging LoggingConfig `koanf:"logging"`
}

// DefaultConfig returns sane defaults for local/dev use.
func DefaultConfig() *Config {
	return &Config{
		Workspace:                 "./workspace",
		IndexRebuildWarnThreshold: 100_000,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks that required fields are usable.
func (c *Config) Validate() error {
	if c.Workspace == "" {
		return &ValidationError{Field: "workspace", Message: "must not be empty"}
	}
	if c.IndexRebuildWarnThreshold < 0 {
		return &ValidationError{Field: "index_rebuild_warn_threshold", Message: "must be >= 0"}
	}
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return &ValidationError{Field: "logging.level", Message: "must be one of trace,debug,info,warn,error"}
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return &ValidationError{Field: "logging.format", Message: "must be json or console"}
	}
	return nil
}

// ValidationError reports an invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// findConfigFile searches DefaultConfigPaths (and the override env var) for
// an existing file, returning "" if none is found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
