// Package server provides configuration helpers that define runtime
// defaults, validation, and tuning parameters for broadcast servers.
package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// Config holds the tuning parameters shared by every broadcast server a
// caller creates. The zero value is not usable directly; obtain one via
// NewConfig, NewConfigFromEnv, or LoadConfigFile.
type Config struct {
	// MaxMessageSize limits incoming frames, in bytes.
	MaxMessageSize int64

	// MaxBackpressure is the per-client buffered-outbound-bytes threshold
	// past which further broadcasts to that client are dropped. The
	// connection is never closed for exceeding it.
	MaxBackpressure int64

	// SendQueueSize is the number of queued outbound frames per client.
	SendQueueSize int

	// WriteTimeout bounds a single frame write to one client.
	WriteTimeout time.Duration

	// PingInterval is the keepalive ping period; PongWait is how long a
	// client may go without any traffic (including pongs) before its
	// connection is reaped.
	PingInterval time.Duration
	PongWait     time.Duration

	// AllowedOrigins restricts WebSocket upgrades by Origin header.
	// An entry of "*" (the default) allows every origin; requests without
	// an Origin header are always allowed, since local overlay clients
	// often send none.
	AllowedOrigins []string
}

func defaultConfig() Config {
	return Config{
		MaxMessageSize:  16 * 1024 * 1024,
		MaxBackpressure: 1 * 1024 * 1024,
		SendQueueSize:   256,
		WriteTimeout:    10 * time.Second,
		PingInterval:    54 * time.Second,
		PongWait:        60 * time.Second,
		AllowedOrigins:  []string{"*"},
	}
}

func sanitizeConfig(cfg Config) Config {
	def := defaultConfig()

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.MaxBackpressure <= 0 {
		cfg.MaxBackpressure = def.MaxBackpressure
	}
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = def.SendQueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PongWait <= cfg.PingInterval {
		cfg.PongWait = cfg.PingInterval + def.PongWait - def.PingInterval
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = append([]string(nil), def.AllowedOrigins...)
	}

	return cfg
}

// NewConfig creates a Config populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config from environment variables, falling back
// to defaults for anything unset or unparsable.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	if v := os.Getenv("WSCAST_MAX_MESSAGE_SIZE"); v != "" {
		cfg.MaxMessageSize = parseByteSize(v, cfg.MaxMessageSize)
	}
	if v := os.Getenv("WSCAST_MAX_BACKPRESSURE"); v != "" {
		cfg.MaxBackpressure = parseByteSize(v, cfg.MaxBackpressure)
	}
	if v := os.Getenv("WSCAST_SEND_QUEUE_SIZE"); v != "" {
		cfg.SendQueueSize = parseIntValue(v, cfg.SendQueueSize)
	}
	if v := os.Getenv("WSCAST_WRITE_TIMEOUT"); v != "" {
		cfg.WriteTimeout = parseDurationValue(v, cfg.WriteTimeout)
	}
	if v := os.Getenv("WSCAST_PING_INTERVAL"); v != "" {
		cfg.PingInterval = parseDurationValue(v, cfg.PingInterval)
	}
	if v := os.Getenv("WSCAST_PONG_WAIT"); v != "" {
		cfg.PongWait = parseDurationValue(v, cfg.PongWait)
	}
	if v := os.Getenv("WSCAST_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = parseOriginList(v)
	}

	result := sanitizeConfig(cfg)
	return &result
}

// fileConfig mirrors Config with YAML-friendly field types; durations are
// strings in time.ParseDuration syntax.
type fileConfig struct {
	MaxMessageSize  int64    `yaml:"max_message_size"`
	MaxBackpressure int64    `yaml:"max_backpressure"`
	SendQueueSize   int      `yaml:"send_queue_size"`
	WriteTimeout    string   `yaml:"write_timeout"`
	PingInterval    string   `yaml:"ping_interval"`
	PongWait        string   `yaml:"pong_wait"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
}

// LoadConfigFile reads a YAML config file and returns a sanitized Config.
// Missing fields keep their defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg := defaultConfig()
	if fc.MaxMessageSize > 0 {
		cfg.MaxMessageSize = fc.MaxMessageSize
	}
	if fc.MaxBackpressure > 0 {
		cfg.MaxBackpressure = fc.MaxBackpressure
	}
	if fc.SendQueueSize > 0 {
		cfg.SendQueueSize = fc.SendQueueSize
	}
	if cfg.WriteTimeout, err = parseDurationField(path, "write_timeout", fc.WriteTimeout, cfg.WriteTimeout); err != nil {
		return nil, err
	}
	if cfg.PingInterval, err = parseDurationField(path, "ping_interval", fc.PingInterval, cfg.PingInterval); err != nil {
		return nil, err
	}
	if cfg.PongWait, err = parseDurationField(path, "pong_wait", fc.PongWait, cfg.PongWait); err != nil {
		return nil, err
	}
	if len(fc.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = fc.AllowedOrigins
	}

	result := sanitizeConfig(cfg)
	return &result, nil
}

func parseDurationField(path, field, raw string, defaultValue time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("config %s: %s: invalid duration %q: %w", path, field, raw, err)
	}
	if d <= 0 {
		return defaultValue, nil
	}
	return d, nil
}

func parseByteSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseDurationValue(value string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	return defaultValue
}

func parseOriginList(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
