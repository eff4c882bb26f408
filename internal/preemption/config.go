package preemption

import (
	"errors"
	"time"
)

// DefaultOrangeDuration is the orange hold applied to directions cleared
// ahead of a priority-1 override, per spec.md §9's resolved Open Question.
const DefaultOrangeDuration = 8 * time.Second

// Config holds priority-preemption timing parameters.
type Config struct {
	// OrangeDuration is how long a direction holds orange before going red
	// while being cleared for a priority-1 activation. Default: 8s.
	OrangeDuration time.Duration `yaml:"orange_duration"`
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.OrangeDuration == 0 {
		c.OrangeDuration = DefaultOrangeDuration
	}
}

// Validate checks that configuration values are acceptable.
func (c *Config) Validate() error {
	if c.OrangeDuration <= 0 {
		return errors.New("preemption: config: OrangeDuration must be positive")
	}
	return nil
}
