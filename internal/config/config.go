// YAML-backed configuration for the capsim server and dispatch producer.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML configs can use "5s" notation.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalYAML parses durations from Go duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// ServerConfig holds configuration for the capsim API server and its
// embedded scheduler loop.
type ServerConfig struct {
	Addr      string `yaml:"addr"`       // Listen address (default ":8080")
	LogLevel  string `yaml:"log_level"`  // Log level: debug, info, warn, error
	LogFormat string `yaml:"log_format"` // Log format: text, json
	DBPath    string `yaml:"db_path"`    // SQLite database path (":memory:" for testing)

	PollInterval Duration `yaml:"poll_interval"` // Scheduler loop cadence

	Dispatch DispatchConfig `yaml:"dispatch"`
}

// DispatchConfig holds the dispatch producer parameters. ProducerInterval
// and BlockSize are owned here and passed into the capacity planner as
// explicit arguments, never read from ambient process state.
type DispatchConfig struct {
	ProducerInterval Duration `yaml:"producer_interval"` // Claim cycle cadence
	BlockSize        int      `yaml:"block_size"`        // Claims per cycle
	Workers          int      `yaml:"workers"`           // Parallel delivery workers
	RequestTimeout   Duration `yaml:"request_timeout"`   // Per-delivery HTTP timeout
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         ":8080",
		LogLevel:     "info",
		LogFormat:    "text",
		PollInterval: Duration(2 * time.Second),
		Dispatch:     DefaultDispatchConfig(),
	}
}

// DefaultDispatchConfig returns sensible producer defaults.
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		ProducerInterval: Duration(5 * time.Second),
		BlockSize:        100,
		Workers:          8,
		RequestTimeout:   Duration(10 * time.Second),
	}
}

// Load reads a YAML config file over the defaults. An empty path returns
// plain defaults.
func Load(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects values the planner and producer cannot work with.
func (c *ServerConfig) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.Dispatch.ProducerInterval <= 0 {
		return fmt.Errorf("dispatch.producer_interval must be positive, got %s", c.Dispatch.ProducerInterval)
	}
	if c.Dispatch.BlockSize <= 0 {
		return fmt.Errorf("dispatch.block_size must be positive, got %d", c.Dispatch.BlockSize)
	}
	if c.Dispatch.Workers <= 0 {
		return fmt.Errorf("dispatch.workers must be positive, got %d", c.Dispatch.Workers)
	}
	return nil
}
