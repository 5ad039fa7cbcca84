// Package config loads the cryptographic core's runtime settings: rotation
// and heartbeat cadence, frame and skip-window limits, the optional TLS
// wrapper, and the ambient logging/metrics/health surfaces. Values come from
// an optional YAML file, overridden by environment variables, overridden
// in turn by whatever the CLI layer sets explicitly.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete set of tunables for a session.
type Config struct {
	Environment string `yaml:"environment" json:"environment"`

	Session  SessionConfig  `yaml:"session" json:"session"`
	TLS      TLSConfig      `yaml:"tls" json:"tls"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" json:"metrics"`
	Health   HealthConfig   `yaml:"health" json:"health"`
}

// SessionConfig governs the ratchet and wire-protocol limits a session
// enforces once established.
type SessionConfig struct {
	RotationInterval  time.Duration `yaml:"rotation_interval" json:"rotation_interval"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" json:"heartbeat_interval"`
	MaxFrameSize      int           `yaml:"max_frame_size" json:"max_frame_size"`
	MaxSkipped        int           `yaml:"max_skipped" json:"max_skipped"`
}

// TLSConfig controls the optional non-production TLS wrapper around the
// raw TCP transport.
type TLSConfig struct {
	Enabled            bool   `yaml:"enabled" json:"enabled"`
	ServerName         string `yaml:"server_name" json:"server_name"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify" json:"insecure_skip_verify"`
	CertFile           string `yaml:"cert_file" json:"cert_file"`
	KeyFile            string `yaml:"key_file" json:"key_file"`
}

// LoggingConfig controls the structured JSON logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug, info, warn, error
	Format string `yaml:"format" json:"format"` // json, text
	Output string `yaml:"output" json:"output"` // stdout, stderr, file path
}

// MetricsConfig controls the Prometheus exporter.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
	Path    string `yaml:"path" json:"path"`
}

// HealthConfig controls the liveness/readiness HTTP surface.
type HealthConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
	Path    string `yaml:"path" json:"path"`
}

// LoadFromFile reads a config file, trying YAML then JSON, and applies
// defaults to any field left unset.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return nil, fmt.Errorf("parse config file (tried YAML and JSON): %w", err)
		}
	}

	setDefaults(cfg)
	return cfg, nil
}

// SaveToFile writes cfg to path, choosing JSON or YAML by file extension.
func SaveToFile(cfg *Config, path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// setDefaults fills in the zero-value fields with the spec's defaults.
func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	if cfg.Session.RotationInterval == 0 {
		cfg.Session.RotationInterval = 60 * time.Second
	}
	if cfg.Session.HeartbeatInterval == 0 {
		cfg.Session.HeartbeatInterval = 30 * time.Second
	}
	if cfg.Session.MaxFrameSize == 0 {
		cfg.Session.MaxFrameSize = 16 * 1024 * 1024
	}
	if cfg.Session.MaxSkipped == 0 {
		cfg.Session.MaxSkipped = 128
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Health.Addr == "" {
		cfg.Health.Addr = ":9091"
	}
	if cfg.Health.Path == "" {
		cfg.Health.Path = "/healthz"
	}
}
