// Package unit contains unit tests for individual components of the
// broadcast server.
//
// These tests focus on configuration, registry, and lifecycle behavior in
// isolation, without exercising real client traffic.
package unit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Tyrowin/wscast/internal/server"
)

// TestNewConfigDefaults verifies the documented default tuning values.
func TestNewConfigDefaults(t *testing.T) {
	cfg := server.NewConfig()

	if cfg.MaxMessageSize != 16*1024*1024 {
		t.Errorf("Expected 16 MiB MaxMessageSize, got %d", cfg.MaxMessageSize)
	}
	if cfg.MaxBackpressure != 1*1024*1024 {
		t.Errorf("Expected 1 MiB MaxBackpressure, got %d", cfg.MaxBackpressure)
	}
	if cfg.SendQueueSize != 256 {
		t.Errorf("Expected send queue of 256, got %d", cfg.SendQueueSize)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Errorf("Expected allow-all origins by default, got %v", cfg.AllowedOrigins)
	}
}

// TestNewConfigFromEnv verifies environment overrides and fallback to
// defaults for unparsable values.
func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("WSCAST_MAX_MESSAGE_SIZE", "2048")
	t.Setenv("WSCAST_MAX_BACKPRESSURE", "1024")
	t.Setenv("WSCAST_PING_INTERVAL", "10s")
	t.Setenv("WSCAST_WRITE_TIMEOUT", "not-a-duration")
	t.Setenv("WSCAST_ALLOWED_ORIGINS", "http://localhost:9001, http://example.com")

	cfg := server.NewConfigFromEnv()

	if cfg.MaxMessageSize != 2048 {
		t.Errorf("Expected MaxMessageSize 2048, got %d", cfg.MaxMessageSize)
	}
	if cfg.MaxBackpressure != 1024 {
		t.Errorf("Expected MaxBackpressure 1024, got %d", cfg.MaxBackpressure)
	}
	if cfg.PingInterval != 10*time.Second {
		t.Errorf("Expected PingInterval 10s, got %s", cfg.PingInterval)
	}
	if cfg.WriteTimeout != 10*time.Second {
		t.Errorf("Expected default WriteTimeout for bad value, got %s", cfg.WriteTimeout)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://example.com" {
		t.Errorf("Expected two parsed origins, got %v", cfg.AllowedOrigins)
	}
}

// TestLoadConfigFile verifies YAML overrides merge over defaults.
func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wscast.yaml")
	content := []byte("max_backpressure: 4096\nping_interval: 30s\nallowed_origins:\n  - http://localhost:9001\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := server.LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile failed: %v", err)
	}

	if cfg.MaxBackpressure != 4096 {
		t.Errorf("Expected MaxBackpressure 4096, got %d", cfg.MaxBackpressure)
	}
	if cfg.PingInterval != 30*time.Second {
		t.Errorf("Expected PingInterval 30s, got %s", cfg.PingInterval)
	}
	if cfg.MaxMessageSize != 16*1024*1024 {
		t.Errorf("Expected default MaxMessageSize, got %d", cfg.MaxMessageSize)
	}
}

// TestLoadConfigFileBadDuration verifies malformed durations are rejected.
func TestLoadConfigFileBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wscast.yaml")
	if err := os.WriteFile(path, []byte("ping_interval: soon\n"), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := server.LoadConfigFile(path); err == nil {
		t.Error("Expected error for invalid duration, got nil")
	}
}

// TestLoadConfigFileMissing verifies a missing file is an error.
func TestLoadConfigFileMissing(t *testing.T) {
	if _, err := server.LoadConfigFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Expected error for missing config file, got nil")
	}
}
