// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.DataDirectory == "" {
		t.Error("expected non-empty data_directory")
	}
	if cfg.Runner.DefaultTimeout != "30m" {
		t.Errorf("expected default_timeout=30m, got %s", cfg.Runner.DefaultTimeout)
	}
	if cfg.Runner.DefaultGracePeriod != "10s" {
		t.Errorf("expected default_grace_period=10s, got %s", cfg.Runner.DefaultGracePeriod)
	}
	if cfg.Runner.Shell != "/bin/sh" {
		t.Errorf("expected shell=/bin/sh, got %s", cfg.Runner.Shell)
	}
	if cfg.Artifacts.Compression != "zstd" {
		t.Errorf("expected compression=zstd, got %s", cfg.Artifacts.Compression)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected level=info, got %s", cfg.Log.Level)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad_WithoutGantryConfig(t *testing.T) {
	t.Setenv("GANTRY_CONFIG", "")
	os.Unsetenv("GANTRY_CONFIG")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() without GANTRY_CONFIG failed: %v", err)
	}
	if cfg.Runner.Shell != "/bin/sh" {
		t.Errorf("expected defaults when GANTRY_CONFIG unset, got shell=%s", cfg.Runner.Shell)
	}
}

func TestLoad_WithGantryConfig(t *testing.T) {
	configPath := writeConfig(t, `
data_directory: /test/gantry
runner:
  shell: /bin/bash
`)
	t.Setenv("GANTRY_CONFIG", configPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.DataDirectory != "/test/gantry" {
		t.Errorf("expected data_directory=/test/gantry, got %s", cfg.DataDirectory)
	}
	if cfg.Runner.Shell != "/bin/bash" {
		t.Errorf("expected shell=/bin/bash, got %s", cfg.Runner.Shell)
	}
}

func TestLoadFile(t *testing.T) {
	configPath := writeConfig(t, `
data_directory: /custom/gantry

runner:
  default_timeout: 2h
  default_grace_period: 30s
  shell: /bin/dash

artifacts:
  compression: lz4

secrets:
  identity_path: /etc/gantry/identity.key

log:
  level: debug
`)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.DataDirectory != "/custom/gantry" {
		t.Errorf("expected data_directory=/custom/gantry, got %s", cfg.DataDirectory)
	}
	if cfg.Runner.DefaultTimeout != "2h" {
		t.Errorf("expected default_timeout=2h, got %s", cfg.Runner.DefaultTimeout)
	}
	if cfg.Runner.DefaultGracePeriod != "30s" {
		t.Errorf("expected default_grace_period=30s, got %s", cfg.Runner.DefaultGracePeriod)
	}
	if cfg.Runner.Shell != "/bin/dash" {
		t.Errorf("expected shell=/bin/dash, got %s", cfg.Runner.Shell)
	}
	if cfg.Artifacts.Compression != "lz4" {
		t.Errorf("expected compression=lz4, got %s", cfg.Artifacts.Compression)
	}
	if cfg.Secrets.IdentityPath != "/etc/gantry/identity.key" {
		t.Errorf("expected identity_path=/etc/gantry/identity.key, got %s", cfg.Secrets.IdentityPath)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected level=debug, got %s", cfg.Log.Level)
	}
}

func TestLoadFile_PartialFileKeepsDefaults(t *testing.T) {
	configPath := writeConfig(t, `
log:
  level: warn
`)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("expected level=warn, got %s", cfg.Log.Level)
	}
	// Unset sections keep their defaults.
	if cfg.Runner.DefaultTimeout != "30m" {
		t.Errorf("expected default_timeout=30m, got %s", cfg.Runner.DefaultTimeout)
	}
	if cfg.Artifacts.Compression != "zstd" {
		t.Errorf("expected compression=zstd, got %s", cfg.Artifacts.Compression)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	configPath := writeConfig(t, `
data_directory: /file/gantry
secrets:
  identity_path: /file/identity.key
log:
  level: info
`)

	t.Setenv("GANTRY_DATA_DIR", "/env/gantry")
	t.Setenv("GANTRY_IDENTITY", "/env/identity.key")
	t.Setenv("GANTRY_LOG_LEVEL", "debug")

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.DataDirectory != "/env/gantry" {
		t.Errorf("expected data_directory=/env/gantry from GANTRY_DATA_DIR, got %s", cfg.DataDirectory)
	}
	if cfg.Secrets.IdentityPath != "/env/identity.key" {
		t.Errorf("expected identity_path=/env/identity.key from GANTRY_IDENTITY, got %s", cfg.Secrets.IdentityPath)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected level=debug from GANTRY_LOG_LEVEL, got %s", cfg.Log.Level)
	}
}

func TestExpandVariables_DataDirReference(t *testing.T) {
	configPath := writeConfig(t, `
data_directory: /var/lib/gantry
secrets:
  identity_path: ${GANTRY_DATA}/identity.key
`)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Secrets.IdentityPath != "/var/lib/gantry/identity.key" {
		t.Errorf("expected identity_path under data dir, got %s", cfg.Secrets.IdentityPath)
	}
}

func TestExpandVars(t *testing.T) {
	tests := []struct {
		input    string
		vars     map[string]string
		expected string
	}{
		{
			input:    "${HOME}/gantry",
			vars:     map[string]string{"HOME": "/home/user"},
			expected: "/home/user/gantry",
		},
		{
			input:    "${MISSING:-default}",
			vars:     map[string]string{},
			expected: "default",
		},
		{
			input:    "${PRESENT:-default}",
			vars:     map[string]string{"PRESENT": "value"},
			expected: "value",
		},
		{
			input:    "${A}/${B}",
			vars:     map[string]string{"A": "first", "B": "second"},
			expected: "first/second",
		},
		{
			input:    "no variables here",
			vars:     map[string]string{},
			expected: "no variables here",
		},
	}

	for _, tt := range tests {
		result := expandVars(tt.input, tt.vars)
		if result != tt.expected {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "empty data directory",
			modify: func(c *Config) {
				c.DataDirectory = ""
			},
			wantErr: true,
		},
		{
			name: "unparseable timeout",
			modify: func(c *Config) {
				c.Runner.DefaultTimeout = "soon"
			},
			wantErr: true,
		},
		{
			name: "negative timeout",
			modify: func(c *Config) {
				c.Runner.DefaultTimeout = "-5m"
			},
			wantErr: true,
		},
		{
			name: "unparseable grace period",
			modify: func(c *Config) {
				c.Runner.DefaultGracePeriod = "a few seconds"
			},
			wantErr: true,
		},
		{
			name: "empty shell",
			modify: func(c *Config) {
				c.Runner.Shell = ""
			},
			wantErr: true,
		},
		{
			name: "unknown compression",
			modify: func(c *Config) {
				c.Artifacts.Compression = "brotli"
			},
			wantErr: true,
		},
		{
			name: "unknown log level",
			modify: func(c *Config) {
				c.Log.Level = "verbose"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDurationAccessors(t *testing.T) {
	cfg := Default()
	cfg.Runner.DefaultTimeout = "45m"
	cfg.Runner.DefaultGracePeriod = "5s"

	if got := cfg.Timeout(); got != 45*time.Minute {
		t.Errorf("Timeout() = %s, want 45m", got)
	}
	if got := cfg.GracePeriod(); got != 5*time.Second {
		t.Errorf("GracePeriod() = %s, want 5s", got)
	}

	// Invalid strings fall back to the package defaults.
	cfg.Runner.DefaultTimeout = "garbage"
	cfg.Runner.DefaultGracePeriod = ""
	if got := cfg.Timeout(); got != DefaultTimeout {
		t.Errorf("Timeout() fallback = %s, want %s", got, DefaultTimeout)
	}
	if got := cfg.GracePeriod(); got != DefaultGracePeriod {
		t.Errorf("GracePeriod() fallback = %s, want %s", got, DefaultGracePeriod)
	}
}

func TestLogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		cfg := Default()
		cfg.Log.Level = tt.level
		if got := cfg.LogLevel(); got != tt.want {
			t.Errorf("LogLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := Default()
	cfg.DataDirectory = "/var/lib/gantry"

	if got := cfg.ArtifactsDirectory(); got != "/var/lib/gantry/artifacts" {
		t.Errorf("ArtifactsDirectory() = %s", got)
	}
	if got := cfg.ArtifactIndexPath(); got != "/var/lib/gantry/artifacts/index.db" {
		t.Errorf("ArtifactIndexPath() = %s", got)
	}
	if got := cfg.RunsDirectory(); got != "/var/lib/gantry/runs" {
		t.Errorf("RunsDirectory() = %s", got)
	}
}

func TestEnsurePaths(t *testing.T) {
	cfg := Default()
	cfg.DataDirectory = filepath.Join(t.TempDir(), "gantry")

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths failed: %v", err)
	}

	for _, path := range []string{cfg.DataDirectory, cfg.ArtifactsDirectory(), cfg.RunsDirectory()} {
		info, err := os.Stat(path)
		if err != nil {
			t.Errorf("path %s not created: %v", path, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("path %s is not a directory", path)
		}
	}
}

// writeConfig writes a YAML config to a temp file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gantry.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}
