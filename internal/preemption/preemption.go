// Package preemption implements priority-vehicle handling from spec.md §4.3:
// priority-1 (emergency) single-direction override with FIFO activation, and
// priority-2 (transit) effective-priority bias consumed by internal/scheduler.
package preemption

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/plexsphere/plexd/internal/sensorstate"
	"github.com/plexsphere/plexd/internal/topology"
)

type state int

const (
	idle state = iota
	clearing
	active
)

// Controller runs the priority-1 FIFO override state machine. It is not
// concurrency-safe; it relies on serial invocation from the control loop's
// tick, same as internal/scheduler and internal/bridgectl.
type Controller struct {
	cfg    Config
	top    *topology.Topology
	logger *slog.Logger

	st         state
	activeLane string
	activeDir  int
	clearSet   map[int]struct{}
}

// New creates a Controller. Config defaults are applied automatically.
func New(cfg Config, top *topology.Topology, logger *slog.Logger) *Controller {
	cfg.ApplyDefaults()
	return &Controller{
		cfg:    cfg,
		top:    top,
		logger: logger.With("component", "preemption"),
		st:     idle,
	}
}

// Active reports whether a priority-1 override is currently in effect
// (direction holding green under override, past the clearing phase).
func (c *Controller) Active() bool { return c.st == active }

// Busy reports whether the controller is either clearing directions for an
// upcoming override or already holding one active. internal/control uses
// this to withhold internal/scheduler's Advance for the whole duration, not
// just once the override is live, so the scheduler never contends with
// preemption's own orange->red clearing over the same directions.
func (c *Controller) Busy() bool { return c.st != idle }

// ActiveDirection returns the overriding direction's id, or (0, false) when
// no override is active.
func (c *Controller) ActiveDirection() (int, bool) {
	if c.st == active {
		return c.activeDir, true
	}
	return 0, false
}

func directionIDFromLane(lane string) (int, bool) {
	parts := strings.SplitN(lane, ".", 2)
	if len(parts) == 0 {
		return 0, false
	}
	id, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	return id, true
}

// eligiblePrio1 returns queued priority-1 entries whose lane maps to a
// direction outside the protected bridge cluster, FIFO ordered (§4.3
// "protected bridge cluster and directions A, B are never granted prio-1
// green by this mechanism; such entries are ignored").
func (c *Controller) eligiblePrio1(snap sensorstate.Snapshot, protected map[int]struct{}) []sensorstate.PriorityEntry {
	var out []sensorstate.PriorityEntry
	for _, e := range snap.PriorityEntriesWithPriority(1) {
		dirID, ok := directionIDFromLane(e.Lane)
		if !ok {
			continue
		}
		if _, isProtected := protected[dirID]; isProtected {
			continue
		}
		out = append(out, e)
	}
	return out
}

func laneStillQueued(lane string, entries []sensorstate.PriorityEntry) bool {
	for _, e := range entries {
		if e.Lane == lane {
			return true
		}
	}
	return false
}

// Advance runs one tick of the priority-1 override state machine. protected
// is the bridge controller's protected cluster, if a bridge session is
// active (priority-1 never targets it). Returns whether an override is
// currently active, the overriding direction (valid only when active is
// true), and whether any direction's phase changed this tick.
func (c *Controller) Advance(now time.Time, snap sensorstate.Snapshot, protected map[int]struct{}) (overrideActive bool, dirID int, changed bool) {
	candidates := c.eligiblePrio1(snap, protected)

	switch c.st {
	case active:
		if !laneStillQueued(c.activeLane, candidates) {
			c.logger.Info("priority-1 override cleared", "lane", c.activeLane, "direction", c.activeDir)
			c.st = idle
			c.activeLane = ""
			c.activeDir = 0
			return false, 0, true
		}
		return true, c.activeDir, false

	case clearing:
		changed := false
		allRed := true
		for id := range c.clearSet {
			d := c.top.Direction(id)
			switch d.Phase {
			case topology.PhaseGreen:
				d.SetOrange(now)
				changed = true
				allRed = false
			case topology.PhaseOrange:
				if now.Sub(d.OrangeStartAt) >= c.cfg.OrangeDuration {
					d.SetRed()
					changed = true
				} else {
					allRed = false
				}
			}
		}
		if !allRed {
			return false, 0, changed
		}
		c.finishActivation(now)
		return true, c.activeDir, true

	default: // idle
		if len(candidates) == 0 {
			return false, 0, false
		}
		head := candidates[0]
		dirID, ok := directionIDFromLane(head.Lane)
		if !ok {
			return false, 0, false
		}
		if _, isProtected := protected[dirID]; isProtected {
			return false, 0, false
		}
		c.beginActivation(dirID, head.Lane, protected)
		if len(c.clearSet) == 0 {
			c.finishActivation(now)
			return true, c.activeDir, true
		}
		for id := range c.clearSet {
			if d := c.top.Direction(id); d.Phase == topology.PhaseGreen {
				d.SetOrange(now)
			}
		}
		return false, 0, true
	}
}

// beginActivation computes the set of directions that must clear to red
// before the prio-1 target can take green. This is generalized beyond the
// spec's literal "conflicting greens, or all non-protected greens as a
// fallback" split to simply "every non-protected direction not already red":
// since the scheduler only ever holds one conflict-free green set at a time,
// the two clauses describe the same set in practice, and treating them
// uniformly keeps I3 (orange owed before red) intact for every direction
// cleared, not just the ones that happen to conflict with the new target.
func (c *Controller) beginActivation(dirID int, lane string, protected map[int]struct{}) {
	clearSet := make(map[int]struct{})
	for _, d := range c.top.Directions() {
		if d.ID == dirID {
			continue
		}
		if _, isProtected := protected[d.ID]; isProtected {
			continue
		}
		if d.Phase != topology.PhaseRed {
			clearSet[d.ID] = struct{}{}
		}
	}
	c.clearSet = clearSet
	c.activeLane = lane
	c.activeDir = dirID
	c.st = clearing
	c.logger.Info("priority-1 override activating", "lane", lane, "direction", dirID, "clearing", len(clearSet))
}

func (c *Controller) finishActivation(now time.Time) {
	c.top.Direction(c.activeDir).SetGreen(now)
	c.st = active
	c.logger.Info("priority-1 override active", "lane", c.activeLane, "direction", c.activeDir)
}
