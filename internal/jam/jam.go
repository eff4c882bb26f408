// Package jam implements the hysteretic approach-jam edge detector of §4.4:
// jam_engaged flips true after the approach_jam sensor has read true
// continuously for a hold period, and flips false after it has read false
// continuously for the same period.
package jam

import (
	"log/slog"
	"time"
)

// Detector tracks the jam_engaged flag across ticks.
type Detector struct {
	cfg    Config
	logger *slog.Logger

	engaged bool

	// trueSince/falseSince mark the start of the current continuous run of
	// the given sensor value; zero means "no run in progress".
	trueSince  time.Time
	falseSince time.Time
}

// New creates a Detector. Config defaults are applied automatically.
func New(cfg Config, logger *slog.Logger) *Detector {
	cfg.ApplyDefaults()
	return &Detector{cfg: cfg, logger: logger.With("component", "jam")}
}

// Observe feeds the latest approach_jam sensor reading at time now and
// returns the (possibly updated) jam_engaged flag.
func (d *Detector) Observe(now time.Time, approachJam bool) bool {
	if approachJam {
		d.falseSince = time.Time{}
		if d.trueSince.IsZero() {
			d.trueSince = now
		}
		if !d.engaged && now.Sub(d.trueSince) >= d.cfg.HoldDuration {
			d.engaged = true
			d.logger.Info("jam engaged", "hold_duration", d.cfg.HoldDuration)
		}
		return d.engaged
	}

	d.trueSince = time.Time{}
	if d.falseSince.IsZero() {
		d.falseSince = now
	}
	if d.engaged && now.Sub(d.falseSince) >= d.cfg.HoldDuration {
		d.engaged = false
		d.logger.Info("jam disengaged", "hold_duration", d.cfg.HoldDuration)
	}
	return d.engaged
}

// Engaged returns the current jam_engaged flag without observing a new reading.
func (d *Detector) Engaged() bool {
	return d.engaged
}

// Blocks reports whether directionID is excluded from candidate pools
// under the current jam_engaged state (§4.4).
func (d *Detector) Blocks(directionID int) bool {
	if !d.engaged {
		return false
	}
	for _, id := range d.cfg.BlockedDirections {
		if id == directionID {
			return true
		}
	}
	return false
}
