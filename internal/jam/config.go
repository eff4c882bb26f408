package jam

import (
	"errors"
	"time"
)

// DefaultHoldDuration is the default continuous-reading hold period before
// jam_engaged flips (§4.4: "continuously for ≥ 10s").
const DefaultHoldDuration = 10 * time.Second

// DefaultBlockedDirections is the default jam-blocked direction set (§9
// Open Question: "hard-coded and geometry-specific"; resolved here as
// configuration, optionally overridden by topology metadata).
var DefaultBlockedDirections = []int{8, 12, 4}

// Config holds jam-detector configuration.
type Config struct {
	// HoldDuration is how long approach_jam must read continuously true (or
	// false) before jam_engaged flips. Default: 10s.
	HoldDuration time.Duration `yaml:"hold_duration"`

	// BlockedDirections is the set of direction ids excluded from candidate
	// pools while jam_engaged. Default: {8, 12, 4}. Overridden by
	// topology.Topology.JamBlocked when that slice is non-empty.
	BlockedDirections []int `yaml:"blocked_directions"`
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.HoldDuration == 0 {
		c.HoldDuration = DefaultHoldDuration
	}
	if c.BlockedDirections == nil {
		c.BlockedDirections = append([]int(nil), DefaultBlockedDirections...)
	}
}

// Validate checks that configuration values are acceptable.
func (c *Config) Validate() error {
	if c.HoldDuration <= 0 {
		return errors.New("jam: config: HoldDuration must be positive")
	}
	return nil
}
