package cmd

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/plexsphere/plexd/internal/bridgectl"
	"github.com/plexsphere/plexd/internal/control"
	"github.com/plexsphere/plexd/internal/jam"
	"github.com/plexsphere/plexd/internal/metrics"
	"github.com/plexsphere/plexd/internal/preemption"
	"github.com/plexsphere/plexd/internal/scheduler"
	"github.com/plexsphere/plexd/internal/transport"
)

// DefaultLogLevel is the default log level.
const DefaultLogLevel = "info"

// TrafficdConfig is the top-level configuration for the trafficd daemon. It
// aggregates every subsystem's own Config and is populated from a YAML
// configuration file by ParseConfig.
type TrafficdConfig struct {
	// LogLevel is the log level: "debug", "info", "warn", "error". Default: "info".
	LogLevel string `yaml:"log_level"`

	// TopologyFile is the path to the intersection topology document (§3).
	TopologyFile string `yaml:"topology_file"`

	Transport  transport.Config  `yaml:"transport"`
	Jam        jam.Config        `yaml:"jam"`
	Scheduler  scheduler.Config  `yaml:"scheduler"`
	Bridge     bridgectl.Config  `yaml:"bridge"`
	Preemption preemption.Config `yaml:"preemption"`
	Control    control.Config    `yaml:"control"`
	Metrics    metrics.Config    `yaml:"metrics"`
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *TrafficdConfig) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	c.Transport.ApplyDefaults()
	c.Jam.ApplyDefaults()
	c.Scheduler.ApplyDefaults()
	c.Bridge.ApplyDefaults()
	c.Preemption.ApplyDefaults()
	c.Control.ApplyDefaults()
	c.Metrics.ApplyDefaults()
}

// Validate checks that required fields are set and values are acceptable.
func (c *TrafficdConfig) Validate() error {
	if c.TopologyFile == "" {
		return fmt.Errorf("trafficd: config: topology_file is required")
	}
	if err := c.Transport.Validate(); err != nil {
		return err
	}
	if err := c.Jam.Validate(); err != nil {
		return err
	}
	if err := c.Scheduler.Validate(); err != nil {
		return err
	}
	if err := c.Bridge.Validate(); err != nil {
		return err
	}
	if err := c.Preemption.Validate(); err != nil {
		return err
	}
	if err := c.Control.Validate(); err != nil {
		return err
	}
	if err := c.Metrics.Validate(); err != nil {
		return err
	}
	return nil
}

// ParseConfig reads a YAML configuration file and returns a TrafficdConfig.
// It applies defaults and validates the configuration.
func ParseConfig(path string) (*TrafficdConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("trafficd: config: read %s: %w", path, err)
	}
	var cfg TrafficdConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("trafficd: config: parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
