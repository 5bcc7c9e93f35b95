// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package config holds the YAML configuration consumed when wiring the
// broker and its transport servers.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	pkgtls "github.com/absmach/voltmq/pkg/tls"
)

// Config holds all configuration for the MQTT broker.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Broker BrokerConfig `yaml:"broker"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig holds transport-related configuration.
type ServerConfig struct {
	TCPAddr         string        `yaml:"tcp_addr"`
	TLS             pkgtls.Config `yaml:"tls"`
	WSEnabled       bool          `yaml:"ws_enabled"`
	WSAddr          string        `yaml:"ws_addr"`
	WSPath          string        `yaml:"ws_path"`
	MaxConnections  int           `yaml:"max_connections"`
	ConnectRate     float64       `yaml:"connect_rate"`
	ConnectBurst    int           `yaml:"connect_burst"`
	TCPKeepAlive    time.Duration `yaml:"tcp_keepalive"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// BrokerConfig holds broker-specific settings.
type BrokerConfig struct {
	// Maximum QoS level granted on subscriptions (0, 1, or 2).
	MaxQoS byte `yaml:"max_qos"`

	// Maximum queued messages per session and QoS level.
	QueueDepth int `yaml:"queue_depth"`

	// MetricsEnabled turns on OTel instrument registration.
	MetricsEnabled bool `yaml:"metrics_enabled"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Default returns a configuration with sensible defaults applied.
func Default() Config {
	return Config{
		Server: ServerConfig{
			TCPAddr:         ":1883",
			WSAddr:          ":8083",
			WSPath:          "/mqtt",
			ShutdownTimeout: 30 * time.Second,
			TCPKeepAlive:    15 * time.Second,
		},
		Broker: BrokerConfig{
			MaxQoS:     2,
			QueueDepth: 1000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML configuration file, layering it over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Server.TCPAddr == "" {
		return fmt.Errorf("server.tcp_addr must not be empty")
	}
	if c.Broker.MaxQoS > 2 {
		return fmt.Errorf("broker.max_qos must be 0, 1, or 2, got %d", c.Broker.MaxQoS)
	}
	if c.Broker.QueueDepth < 0 {
		return fmt.Errorf("broker.queue_depth must not be negative")
	}
	if c.Server.ConnectRate < 0 {
		return fmt.Errorf("server.connect_rate must not be negative")
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	return nil
}
