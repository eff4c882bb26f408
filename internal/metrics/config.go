// Package metrics exposes Prometheus gauges and counters describing the
// running state of the scheduler, bridge session controller, jam detector,
// and preemption subsystems.
package metrics

import (
	"errors"
	"time"
)

// DefaultCollectInterval is the default interval between metric refresh cycles.
const DefaultCollectInterval = 2 * time.Second

// DefaultListenAddr is the default address for the /metrics HTTP endpoint.
const DefaultListenAddr = "127.0.0.1:9090"

// Config holds the configuration for metrics collection and exposition.
type Config struct {
	// Enabled controls whether metrics collection and the HTTP endpoint are active.
	// Default: true (set by ApplyDefaults).
	Enabled bool `yaml:"enabled"`

	// CollectInterval is the interval between refresh cycles.
	// Must be at least 500ms. Default: 2s.
	CollectInterval time.Duration `yaml:"collect_interval"`

	// ListenAddr is the address the /metrics HTTP endpoint binds to.
	ListenAddr string `yaml:"listen_addr"`
}

// ApplyDefaults sets default values for zero-valued fields.
// On a zero-valued Config, Enabled defaults to true.
func (c *Config) ApplyDefaults() {
	if c.CollectInterval == 0 && c.ListenAddr == "" {
		c.Enabled = true
	}
	if c.CollectInterval == 0 {
		c.CollectInterval = DefaultCollectInterval
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
}

// Validate checks that configuration values are acceptable.
func (c *Config) Validate() error {
	if c.CollectInterval < 0 {
		return errors.New("metrics: config: CollectInterval must not be negative")
	}
	if c.Enabled && c.CollectInterval < 500*time.Millisecond {
		return errors.New("metrics: config: CollectInterval must be at least 500ms")
	}
	return nil
}
