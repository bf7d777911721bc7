// Package config loads rft's YAML configuration file into a Config
// struct, the same load/default/validate shape the teacher's own
// config package uses, trimmed to the knobs a reliable-file-transfer
// engine actually has.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for both rft-send and
// rft-recv; each binary only reads the sections relevant to its role.
type Config struct {
	Listen   string `yaml:"listen"`
	Dial     string `yaml:"dial"`
	LogLevel string `yaml:"log_level"`

	Transfer TransferConfig `yaml:"transfer"`
	Sender   SenderConfig   `yaml:"sender"`
	Receiver ReceiverConfig `yaml:"receiver"`
	RTT      RTTConfig      `yaml:"rtt"`
	Cubic    CubicConfig    `yaml:"cubic"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// TransferConfig covers the per-frame data unit shared by both ends.
type TransferConfig struct {
	DataSize int `yaml:"data_size"`
}

// SenderConfig covers the sending engine's tunable behavior.
type SenderConfig struct {
	LoopIdleMs  int  `yaml:"loop_idle_ms"`
	TimerDriven bool `yaml:"timer_driven"`
}

// ReceiverConfig covers the receiving engine's tunable behavior.
type ReceiverConfig struct {
	AckIdleMs int `yaml:"ack_idle_ms"`
}

// RTTConfig overrides the RTT estimator's floor/ceiling. Leaving these
// at zero keeps the estimator's own built-in defaults.
type RTTConfig struct {
	FloorMs int `yaml:"floor_ms"`
	CeilMs  int `yaml:"ceil_ms"`
}

// CubicConfig overrides the congestion controller's CUBIC constants.
// Leaving these at zero keeps the controller's own built-in defaults.
type CubicConfig struct {
	C        float64 `yaml:"c"`
	Beta     float64 `yaml:"beta"`
	MaxCwnd  int     `yaml:"max_cwnd"`
	InitCwnd int     `yaml:"init_cwnd"`
}

// MetricsConfig covers the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

// Load reads path, unmarshals it over DefaultConfig, and validates the
// result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultConfig returns a Config seeded with rft's usual defaults —
// unset fields in a loaded YAML file fall back to these.
func DefaultConfig() *Config {
	return &Config{
		Listen:   ":9700",
		LogLevel: "info",

		Transfer: TransferConfig{
			DataSize: 200,
		},
		Sender: SenderConfig{
			LoopIdleMs:  10,
			TimerDriven: false,
		},
		Receiver: ReceiverConfig{
			AckIdleMs: 200,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Listen:  ":9701",
			Path:    "/metrics",
		},
	}
}

// Validate checks that the configuration is internally consistent:
// addresses parse, and every tunable that must be positive is.
func (c *Config) Validate() error {
	if c.Listen != "" {
		if _, err := parsePort(c.Listen); err != nil {
			return fmt.Errorf("config: listen: %w", err)
		}
	}
	if c.Dial != "" {
		if _, err := parsePort(c.Dial); err != nil {
			return fmt.Errorf("config: dial: %w", err)
		}
	}
	if c.Transfer.DataSize <= 0 {
		return fmt.Errorf("config: transfer.data_size must be positive")
	}
	if c.Sender.LoopIdleMs <= 0 {
		return fmt.Errorf("config: sender.loop_idle_ms must be positive")
	}
	if c.Receiver.AckIdleMs <= 0 {
		return fmt.Errorf("config: receiver.ack_idle_ms must be positive")
	}
	if c.Metrics.Enabled {
		if _, err := parsePort(c.Metrics.Listen); err != nil {
			return fmt.Errorf("config: metrics.listen: %w", err)
		}
	}
	if c.Cubic.Beta < 0 || c.Cubic.Beta >= 1 {
		if c.Cubic.Beta != 0 {
			return fmt.Errorf("config: cubic.beta must be in [0,1)")
		}
	}
	return nil
}

func parsePort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	if port < 0 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range", port)
	}
	return port, nil
}
