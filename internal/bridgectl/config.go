package bridgectl

import (
	"errors"
	"time"
)

// Default timing constants, per spec.md §9's resolved Open Question: these
// were inconsistent hard-coded literals across the source drafts and are
// exposed here as configuration, following the spec's "most complete draft".
const (
	DefaultOrangeDuration       = 8 * time.Second
	DefaultDeckClearMaxReads    = 60
	DefaultBarrierCloseDelay    = 5 * time.Second
	DefaultOpeningMaxReads      = 240
	DefaultBridgeGreenDuration  = 20 * time.Second
	DefaultBridgeOrangeDuration = 10 * time.Second
	DefaultBridgeOrangeGrace    = 3 * time.Second
	DefaultDrainMaxReads        = 180
	DefaultClosingMaxReads      = 240
	DefaultBarrierOpenDelay     = 5 * time.Second
	DefaultPostBridgeWindow     = 30 * time.Second
	DefaultCooldown             = 60 * time.Second
)

// Config holds bridge session controller timing parameters.
type Config struct {
	// OrangeDuration is the orange hold for protected-cluster directions
	// (other than A/B themselves) forced out of green during ARMING.
	// Default: 8s.
	OrangeDuration time.Duration `yaml:"orange_duration"`

	// DeckClearMaxReads caps DECK_CLEAR polling before the controller
	// proceeds on the assumption the deck is clear. Default: 60.
	DeckClearMaxReads int `yaml:"deck_clear_max_reads"`

	// BarrierCloseDelay is the barrier-lowering delay between the deck
	// clearing and commanding the bridge signal open. Default: 5s.
	BarrierCloseDelay time.Duration `yaml:"barrier_close_delay"`

	// OpeningMaxReads caps OPENING polling before the controller proceeds
	// on the assumption the bridge is open. Default: 240.
	OpeningMaxReads int `yaml:"opening_max_reads"`

	// BridgeGreenDuration is how long each bridge approach pass holds
	// green. Default: 20s.
	BridgeGreenDuration time.Duration `yaml:"bridge_green_duration"`

	// BridgeOrangeDuration and BridgeOrangeGrace together form the orange
	// hold following a pass's green (13s total in the spec's worked
	// example). Defaults: 10s + 3s.
	BridgeOrangeDuration time.Duration `yaml:"bridge_orange_duration"`
	BridgeOrangeGrace    time.Duration `yaml:"bridge_orange_grace"`

	// DrainMaxReads caps DRAINING polling before the controller proceeds
	// on the assumption the vessel has cleared. Default: 180.
	DrainMaxReads int `yaml:"drain_max_reads"`

	// ClosingMaxReads caps CLOSING polling before the controller proceeds
	// on the assumption the bridge is physically closed. Default: 240.
	ClosingMaxReads int `yaml:"closing_max_reads"`

	// BarrierOpenDelay is the barrier-raising delay between the bridge
	// closing and restoring road traffic. Default: 5s.
	BarrierOpenDelay time.Duration `yaml:"barrier_open_delay"`

	// PostBridgeWindow is how long cycle_used stays set after a session
	// closes, blocking a new session on this cycle. Default: 30s.
	PostBridgeWindow time.Duration `yaml:"post_bridge_window"`

	// Cooldown is the minimum interval between the end of one session and
	// the start of the next. Default: 60s.
	Cooldown time.Duration `yaml:"cooldown"`
}

// PassOrangeDuration is the total orange hold of a bridge-approach pass.
func (c Config) PassOrangeDuration() time.Duration {
	return c.BridgeOrangeDuration + c.BridgeOrangeGrace
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.OrangeDuration == 0 {
		c.OrangeDuration = DefaultOrangeDuration
	}
	if c.DeckClearMaxReads == 0 {
		c.DeckClearMaxReads = DefaultDeckClearMaxReads
	}
	if c.BarrierCloseDelay == 0 {
		c.BarrierCloseDelay = DefaultBarrierCloseDelay
	}
	if c.OpeningMaxReads == 0 {
		c.OpeningMaxReads = DefaultOpeningMaxReads
	}
	if c.BridgeGreenDuration == 0 {
		c.BridgeGreenDuration = DefaultBridgeGreenDuration
	}
	if c.BridgeOrangeDuration == 0 {
		c.BridgeOrangeDuration = DefaultBridgeOrangeDuration
	}
	if c.BridgeOrangeGrace == 0 {
		c.BridgeOrangeGrace = DefaultBridgeOrangeGrace
	}
	if c.DrainMaxReads == 0 {
		c.DrainMaxReads = DefaultDrainMaxReads
	}
	if c.ClosingMaxReads == 0 {
		c.ClosingMaxReads = DefaultClosingMaxReads
	}
	if c.BarrierOpenDelay == 0 {
		c.BarrierOpenDelay = DefaultBarrierOpenDelay
	}
	if c.PostBridgeWindow == 0 {
		c.PostBridgeWindow = DefaultPostBridgeWindow
	}
	if c.Cooldown == 0 {
		c.Cooldown = DefaultCooldown
	}
}

// Validate checks that configuration values are acceptable.
func (c *Config) Validate() error {
	if c.OrangeDuration <= 0 {
		return errors.New("bridgectl: config: OrangeDuration must be positive")
	}
	if c.DeckClearMaxReads <= 0 {
		return errors.New("bridgectl: config: DeckClearMaxReads must be positive")
	}
	if c.OpeningMaxReads <= 0 {
		return errors.New("bridgectl: config: OpeningMaxReads must be positive")
	}
	if c.BridgeGreenDuration <= 0 {
		return errors.New("bridgectl: config: BridgeGreenDuration must be positive")
	}
	if c.BridgeOrangeDuration <= 0 {
		return errors.New("bridgectl: config: BridgeOrangeDuration must be positive")
	}
	if c.DrainMaxReads <= 0 {
		return errors.New("bridgectl: config: DrainMaxReads must be positive")
	}
	if c.ClosingMaxReads <= 0 {
		return errors.New("bridgectl: config: ClosingMaxReads must be positive")
	}
	if c.PostBridgeWindow <= 0 {
		return errors.New("bridgectl: config: PostBridgeWindow must be positive")
	}
	if c.Cooldown <= 0 {
		return errors.New("bridgectl: config: Cooldown must be positive")
	}
	return nil
}
