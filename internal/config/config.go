// Package config loads engine configuration from YAML with environment
// overrides. The topology itself lives in a separate file referenced by
// TopologyPath; this package only handles process-level settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the root engine configuration.
type Config struct {
	TopologyPath string          `yaml:"topology_path" validate:"required"`
	Log          LogConfig       `yaml:"log"`
	Telemetry    TelemetryConfig `yaml:"telemetry"`
	Bus          BusConfig       `yaml:"bus"`
	HTTP         HTTPConfig      `yaml:"http"`
	Refresh      RefreshConfig   `yaml:"refresh"`
}

// LogConfig selects log level and output format.
type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// TelemetryConfig points at the telemetry publisher.
type TelemetryConfig struct {
	Addr  string `yaml:"addr" validate:"required"`
	Topic string `yaml:"topic"`
	// Dial connects out to a remote publisher; otherwise the engine
	// listens and publishers connect to it.
	Dial bool `yaml:"dial"`
}

// BusConfig bounds the propagation bus.
type BusConfig struct {
	QueueSize int `yaml:"queue_size" validate:"omitempty,gt=0"`
}

// HTTPConfig is the address serving /metrics and /verdicts.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// RefreshConfig drives the periodic full recomputation that reconciles
// any drift from the incremental path.
type RefreshConfig struct {
	Interval time.Duration `yaml:"interval" validate:"omitempty,gt=0"`
}

var validate = validator.New()

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML config file, fills defaults, applies environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.TopologyPath == "" {
		c.TopologyPath = "configs/topology.yaml"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Telemetry.Addr == "" {
		c.Telemetry.Addr = "tcp://127.0.0.1:9750"
	}
	if c.Bus.QueueSize == 0 {
		c.Bus.QueueSize = 256
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8090"
	}
	if c.Refresh.Interval == 0 {
		c.Refresh.Interval = 30 * time.Second
	}
}

// applyEnvOverrides lets deployments adjust settings without editing the
// config file. Only a deliberate subset is overridable.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ENGINE_TOPOLOGY_PATH"); v != "" {
		c.TopologyPath = v
	}
	if v := os.Getenv("ENGINE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("ENGINE_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("ENGINE_TELEMETRY_ADDR"); v != "" {
		c.Telemetry.Addr = v
	}
	if v := os.Getenv("ENGINE_TELEMETRY_TOPIC"); v != "" {
		c.Telemetry.Topic = v
	}
	if v := os.Getenv("ENGINE_HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("ENGINE_BUS_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Bus.QueueSize = n
		}
	}
	if v := os.Getenv("ENGINE_REFRESH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Refresh.Interval = d
		}
	}
}
