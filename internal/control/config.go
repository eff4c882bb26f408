package control

import (
	"errors"
	"time"
)

// DefaultTickInterval is the primary control loop's tick period (§5 "~2 Hz").
const DefaultTickInterval = 500 * time.Millisecond

// Config holds the control loop's own timing parameters. Subsystem
// parameters live in their own packages' Config types and are aggregated by
// cmd/trafficd's top-level Config.
type Config struct {
	// TickInterval is the primary control loop period. Default: 500ms (~2 Hz).
	TickInterval time.Duration `yaml:"tick_interval"`
	// ShutdownTimeout bounds how long Run, after ctx is cancelled, keeps
	// ticking an in-flight bridge session toward DRAINING before returning.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.TickInterval == 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
}

// Validate checks that configuration values are acceptable.
func (c *Config) Validate() error {
	if c.TickInterval <= 0 {
		return errors.New("control: config: TickInterval must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("control: config: ShutdownTimeout must be positive")
	}
	return nil
}
