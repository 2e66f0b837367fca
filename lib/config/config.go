// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the Gantry engine.
//
// Configuration is loaded from a single YAML file specified by:
//   - GANTRY_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There is no automatic discovery. A small, explicit set of GANTRY_*
// environment variables may override individual values after the file
// is loaded (useful on CI hosts that inject the data directory or the
// secrets identity per job); everything else comes from the file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the engine configuration.
type Config struct {
	// DataDirectory is the base directory for engine state: the
	// artifact store and per-run logs live under it. Created by
	// EnsurePaths if missing.
	DataDirectory string `yaml:"data_directory"`

	// Runner configures command execution defaults.
	Runner RunnerConfig `yaml:"runner"`

	// Artifacts configures the artifact sink.
	Artifacts ArtifactsConfig `yaml:"artifacts"`

	// Secrets configures decryption of pipeline secrets.
	Secrets SecretsConfig `yaml:"secrets"`

	// Log configures engine logging.
	Log LogConfig `yaml:"log"`
}

// RunnerConfig configures command execution defaults. Individual
// commands in a pipeline definition may override both durations.
type RunnerConfig struct {
	// DefaultTimeout bounds a single command's execution when the
	// definition does not set one. Duration string ("30m", "1h").
	// Default: 30m
	DefaultTimeout string `yaml:"default_timeout"`

	// DefaultGracePeriod is how long a timed-out or aborted command
	// gets between SIGTERM and SIGKILL. Duration string.
	// Default: 10s
	DefaultGracePeriod string `yaml:"default_grace_period"`

	// Shell is the interpreter used for "run" shell-string commands.
	// Invoked as <shell> -c <string>. Default: /bin/sh
	Shell string `yaml:"shell"`
}

// ArtifactsConfig configures the artifact sink.
type ArtifactsConfig struct {
	// Compression is the codec applied to stored blobs: "zstd",
	// "lz4", or "none". Default: zstd
	Compression string `yaml:"compression"`
}

// SecretsConfig configures decryption of pipeline secrets.
type SecretsConfig struct {
	// IdentityPath is the path to the age private key used to decrypt
	// secrets embedded in pipeline definitions. Empty means the engine
	// cannot run pipelines that declare secrets. The --identity flag
	// on "gantry run" overrides this.
	IdentityPath string `yaml:"identity_path"`
}

// LogConfig configures engine logging.
type LogConfig struct {
	// Level is the minimum level emitted: "debug", "info", "warn",
	// or "error". Default: info
	Level string `yaml:"level"`
}

// Duration defaults applied when the configured strings are absent or
// invalid. Validate reports invalid strings; the accessors fall back
// here so a command can still render a useful error report.
const (
	DefaultTimeout     = 30 * time.Minute
	DefaultGracePeriod = 10 * time.Second
)

// Default returns the default configuration. These defaults are the
// base that the config file and GANTRY_* overrides merge into; a
// default-only config is fully usable for local runs.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		DataDirectory: filepath.Join(homeDir, ".local", "share", "gantry"),
		Runner: RunnerConfig{
			DefaultTimeout:     "30m",
			DefaultGracePeriod: "10s",
			Shell:              "/bin/sh",
		},
		Artifacts: ArtifactsConfig{
			Compression: "zstd",
		},
		Secrets: SecretsConfig{
			IdentityPath: "",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the file named by GANTRY_CONFIG. When
// GANTRY_CONFIG is not set, the defaults are returned (with GANTRY_*
// overrides applied), so "gantry run" works out of the box.
func Load() (*Config, error) {
	configPath := os.Getenv("GANTRY_CONFIG")
	if configPath == "" {
		cfg := Default()
		cfg.applyEnvironmentOverrides()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, merging the
// file over the defaults, then applying GANTRY_* environment overrides
// and ${VAR} expansion in path fields.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// applyEnvironmentOverrides applies the explicit GANTRY_* overrides.
// The list is deliberately short: values a CI host injects per job.
func (c *Config) applyEnvironmentOverrides() {
	if v := os.Getenv("GANTRY_DATA_DIR"); v != "" {
		c.DataDirectory = v
	}
	if v := os.Getenv("GANTRY_IDENTITY"); v != "" {
		c.Secrets.IdentityPath = v
	}
	if v := os.Getenv("GANTRY_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in path
// fields. ${GANTRY_DATA} resolves to the data directory, letting the
// identity path live under it without repeating the location.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.DataDirectory = expandVars(c.DataDirectory, vars)
	vars["GANTRY_DATA"] = c.DataDirectory

	c.Secrets.IdentityPath = expandVars(c.Secrets.IdentityPath, vars)
	c.Runner.Shell = expandVars(c.Runner.Shell, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns. Provided
// vars win over the process environment; unset variables without a
// default expand to the empty string.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. All problems are
// reported at once via errors.Join.
func (c *Config) Validate() error {
	var errs []error

	if c.DataDirectory == "" {
		errs = append(errs, fmt.Errorf("data_directory is required"))
	}

	if d, err := time.ParseDuration(c.Runner.DefaultTimeout); err != nil {
		errs = append(errs, fmt.Errorf("runner.default_timeout %q: %w", c.Runner.DefaultTimeout, err))
	} else if d <= 0 {
		errs = append(errs, fmt.Errorf("runner.default_timeout must be positive, got %s", d))
	}

	if d, err := time.ParseDuration(c.Runner.DefaultGracePeriod); err != nil {
		errs = append(errs, fmt.Errorf("runner.default_grace_period %q: %w", c.Runner.DefaultGracePeriod, err))
	} else if d <= 0 {
		errs = append(errs, fmt.Errorf("runner.default_grace_period must be positive, got %s", d))
	}

	if c.Runner.Shell == "" {
		errs = append(errs, fmt.Errorf("runner.shell is required"))
	}

	switch c.Artifacts.Compression {
	case "zstd", "lz4", "none":
	default:
		errs = append(errs, fmt.Errorf("artifacts.compression must be one of zstd, lz4, none; got %q", c.Artifacts.Compression))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Timeout returns the parsed runner.default_timeout. Falls back to
// the package default when the configured string is invalid (Validate
// reports the invalid string).
func (c *Config) Timeout() time.Duration {
	d, err := time.ParseDuration(c.Runner.DefaultTimeout)
	if err != nil || d <= 0 {
		return DefaultTimeout
	}
	return d
}

// GracePeriod returns the parsed runner.default_grace_period, falling
// back to the package default when invalid.
func (c *Config) GracePeriod() time.Duration {
	d, err := time.ParseDuration(c.Runner.DefaultGracePeriod)
	if err != nil || d <= 0 {
		return DefaultGracePeriod
	}
	return d
}

// LogLevel returns the slog level for log.level, defaulting to Info
// for unknown strings.
func (c *Config) LogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ArtifactsDirectory returns the blob store root under the data
// directory.
func (c *Config) ArtifactsDirectory() string {
	return filepath.Join(c.DataDirectory, "artifacts")
}

// ArtifactIndexPath returns the SQLite artifact index path.
func (c *Config) ArtifactIndexPath() string {
	return filepath.Join(c.ArtifactsDirectory(), "index.db")
}

// RunsDirectory returns the directory holding per-run JSONL logs.
func (c *Config) RunsDirectory() string {
	return filepath.Join(c.DataDirectory, "runs")
}

// EnsurePaths creates the configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.DataDirectory,
		c.ArtifactsDirectory(),
		c.RunsDirectory(),
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}
