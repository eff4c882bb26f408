package scheduler

import (
	"errors"
	"time"
)

// Default timing constants, per spec.md §9's resolved Open Question: these
// were hard-coded literals in the source drafts and are exposed here as
// configuration.
const (
	DefaultOrangeDuration     = 8 * time.Second
	DefaultBaseGreenDuration  = 10 * time.Second
	DefaultDynamicGreenBonus  = 2 * time.Second
	DefaultAgingBucket        = 7 * time.Second
	DefaultPrio2Bonus         = 10
	DefaultHighPriorityThresh = 6
	DefaultLowPriorityThresh  = 3
)

// Config holds phase scheduler timing and scoring parameters.
type Config struct {
	// OrangeDuration is how long a direction holds orange before going red.
	// Default: 8s.
	OrangeDuration time.Duration `yaml:"orange_duration"`

	// BaseGreenDuration is the default green hold before a set is cycled.
	// Default: 10s.
	BaseGreenDuration time.Duration `yaml:"base_green_duration"`

	// DynamicGreenBonus extends BaseGreenDuration when the current green
	// set's total effective priority is high (§4.1). Default: 2s.
	DynamicGreenBonus time.Duration `yaml:"dynamic_green_bonus"`

	// HighPriorityThreshold is the total effective-priority sum above which
	// BaseGreenDuration+DynamicGreenBonus applies; a sum equal to the
	// threshold keeps the base duration. Default: 6.
	HighPriorityThreshold int `yaml:"high_priority_threshold"`

	// LowPriorityThreshold is the total effective-priority sum below which
	// the short (== base) duration applies. Default: 3.
	LowPriorityThreshold int `yaml:"low_priority_threshold"`

	// AgingBucket is the time window whose multiples contribute to the
	// aging bonus. Default: 7s.
	AgingBucket time.Duration `yaml:"aging_bucket"`

	// Prio2Bonus is the effective-priority bonus for directions with a
	// queued priority-2 entry. Default: 10.
	Prio2Bonus int `yaml:"prio2_bonus"`
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.OrangeDuration == 0 {
		c.OrangeDuration = DefaultOrangeDuration
	}
	if c.BaseGreenDuration == 0 {
		c.BaseGreenDuration = DefaultBaseGreenDuration
	}
	if c.DynamicGreenBonus == 0 {
		c.DynamicGreenBonus = DefaultDynamicGreenBonus
	}
	if c.HighPriorityThreshold == 0 {
		c.HighPriorityThreshold = DefaultHighPriorityThresh
	}
	if c.LowPriorityThreshold == 0 {
		c.LowPriorityThreshold = DefaultLowPriorityThresh
	}
	if c.AgingBucket == 0 {
		c.AgingBucket = DefaultAgingBucket
	}
	if c.Prio2Bonus == 0 {
		c.Prio2Bonus = DefaultPrio2Bonus
	}
}

// Validate checks that configuration values are acceptable.
func (c *Config) Validate() error {
	if c.OrangeDuration <= 0 {
		return errors.New("scheduler: config: OrangeDuration must be positive")
	}
	if c.BaseGreenDuration <= 0 {
		return errors.New("scheduler: config: BaseGreenDuration must be positive")
	}
	if c.DynamicGreenBonus < 0 {
		return errors.New("scheduler: config: DynamicGreenBonus must not be negative")
	}
	if c.AgingBucket <= 0 {
		return errors.New("scheduler: config: AgingBucket must be positive")
	}
	if c.LowPriorityThreshold > c.HighPriorityThreshold {
		return errors.New("scheduler: config: LowPriorityThreshold must not exceed HighPriorityThreshold")
	}
	return nil
}
