// Package bridgectl implements the bridge session state machine of
// spec.md §4.2: ARMING, DECK_CLEAR, OPENING, PASS_A, PASS_B, DRAINING,
// CLOSING, and RESTORE, including the eligibility gate, cooperative
// cancellation, and cooldown/cycle-used bookkeeping.
//
// Advance is tick-driven, not thread-blocking (§9 "suspension via blocking
// sleeps in the source is incidental"): every wait described by the spec as
// a blocking sleep-then-check loop is instead one branch of a state machine
// re-entered every control-loop tick, so a single Advance call never blocks.
// Read-count caps (e.g. "up to a 60-read cap") are counted in ticks, not
// wall-clock seconds, since the spec itself derives its "≈N s" figures from
// an assumed one read per second while the control loop ticks faster (§5).
package bridgectl

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/plexsphere/plexd/internal/sensorstate"
	"github.com/plexsphere/plexd/internal/topology"
)

// State is the bridge session controller's state.
type State int

const (
	Idle State = iota
	Arming
	DeckClear
	Opening
	PassA
	PassB
	Draining
	Closing
	Restore
)

// String renders the state name used by internal/metrics.
func (s State) String() string {
	switch s {
	case Arming:
		return "arming"
	case DeckClear:
		return "deck_clear"
	case Opening:
		return "opening"
	case PassA:
		return "pass_a"
	case PassB:
		return "pass_b"
	case Draining:
		return "draining"
	case Closing:
		return "closing"
	case Restore:
		return "restore"
	default:
		return "idle"
	}
}

// pass leg sub-states within PassA/PassB.
const (
	legGreen = iota
	legOrange
	legRecheck
)

// Controller runs the bridge session state machine. It is not
// concurrency-safe; it relies on serial invocation from the control loop's
// tick, same as internal/scheduler.
type Controller struct {
	cfg    Config
	top    *topology.Topology
	logger *slog.Logger

	state        State
	sessionID    string
	phaseStartAt time.Time

	protectedCluster map[int]struct{}

	aDemand bool
	bDemand bool

	deckClearFalseStreak int
	deckClearReads       int
	deckCleared          bool

	barrierArmed    bool
	barrierDeadline time.Time

	openingReads int

	passDir      int
	passLeg      int
	passLegStart time.Time

	drainFalseStreak int
	drainReads       int

	closingReads int

	cancelRequested bool

	lastClosedAt    time.Time
	cycleUsed       bool
	postBridgeUntil time.Time

	sessionStartedAt    time.Time
	sessionWasCancelled bool
	history             []SessionRecord
}

// maxHistory bounds the session history ring buffer (SPEC_FULL.md's
// supplemented "operational visibility" feature, mirroring the teacher's
// reconcile.stateSnapshot pattern of keeping a small amount of recent
// history alongside live state).
const maxHistory = 32

// SessionOutcome classifies how a bridge session ended.
type SessionOutcome int

const (
	OutcomeCompleted SessionOutcome = iota
	OutcomeCancelled
	OutcomeForceReset
)

// String renders the outcome name used by status introspection.
func (o SessionOutcome) String() string {
	switch o {
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeForceReset:
		return "force_reset"
	default:
		return "completed"
	}
}

// SessionRecord is one completed bridge session's summary.
type SessionRecord struct {
	SessionID string
	StartedAt time.Time
	EndedAt   time.Time
	Outcome   SessionOutcome
	ServedA   bool
	ServedB   bool
}

// History returns the most recent completed sessions, oldest first, capped
// at maxHistory entries.
func (c *Controller) History() []SessionRecord {
	out := make([]SessionRecord, len(c.history))
	copy(out, c.history)
	return out
}

func (c *Controller) recordSession(now time.Time, outcome SessionOutcome) {
	rec := SessionRecord{
		SessionID: c.sessionID,
		StartedAt: c.sessionStartedAt,
		EndedAt:   now,
		Outcome:   outcome,
		ServedA:   c.aDemand,
		ServedB:   c.bDemand,
	}
	c.history = append(c.history, rec)
	if len(c.history) > maxHistory {
		c.history = c.history[len(c.history)-maxHistory:]
	}
}

// New creates a Controller. Config defaults are applied automatically.
func New(cfg Config, top *topology.Topology, logger *slog.Logger) *Controller {
	cfg.ApplyDefaults()
	return &Controller{
		cfg:    cfg,
		top:    top,
		logger: logger.With("component", "bridgectl"),
		state:  Idle,
	}
}

// State returns the controller's current state.
func (c *Controller) State() State { return c.state }

// Active reports whether a session is in progress.
func (c *Controller) Active() bool { return c.state != Idle }

// SessionID returns the active session's correlation id, or "" when idle.
func (c *Controller) SessionID() string { return c.sessionID }

// ProtectedCluster returns the directions currently owned by the bridge
// controller (A, B, and every direction conflicting with either), or nil
// when no session is active (§3 "protected bridge cluster").
func (c *Controller) ProtectedCluster() map[int]struct{} {
	if c.state == Idle {
		return nil
	}
	return c.protectedCluster
}

// CommandedGreen reports the bridge signal's commanded state: true while
// the bridge is ordered open for vessels (§3 Bridge.commanded_state).
func (c *Controller) CommandedGreen() bool {
	switch c.state {
	case Opening, PassA, PassB, Draining:
		return true
	default:
		return false
	}
}

// SignalPhase renders the commanded state as a topology.Phase for the
// publisher; the bridge signal only ever publishes "groen" or "rood" (§4.5),
// never "oranje".
func (c *Controller) SignalPhase() topology.Phase {
	if c.CommandedGreen() {
		return topology.PhaseGreen
	}
	return topology.PhaseRed
}

func directionDemand(d *topology.Direction, snap sensorstate.Snapshot) int {
	if d == nil {
		return 0
	}
	total := 0
	for _, l := range d.Lanes {
		total += snap.LaneDemand(l.ID)
	}
	return total
}

// Eligible reports whether a new session may start this tick (§4.2
// "Eligibility gate").
func (c *Controller) Eligible(now time.Time, snap sensorstate.Snapshot, prio1Active bool) bool {
	if prio1Active || c.state != Idle {
		return false
	}
	if !c.lastClosedAt.IsZero() && now.Sub(c.lastClosedAt) < c.cfg.Cooldown {
		return false
	}
	if c.cycleUsed && now.Before(c.postBridgeUntil) {
		return false
	}
	a := directionDemand(c.top.Direction(c.top.Bridge.ApproachA), snap)
	b := directionDemand(c.top.Direction(c.top.Bridge.ApproachB), snap)
	return a > 0 || b > 0
}

// Start begins a new session: directions A and B are published red
// immediately (the I3 exception for the protected cluster), and the
// controller enters ARMING. Returns the new session's correlation id.
func (c *Controller) Start(now time.Time, snap sensorstate.Snapshot) string {
	bridge := c.top.Bridge
	c.sessionID = uuid.NewString()
	c.sessionStartedAt = now
	c.sessionWasCancelled = false
	c.protectedCluster = c.top.ProtectedBridgeCluster()
	c.aDemand = directionDemand(c.top.Direction(bridge.ApproachA), snap) > 0
	c.bDemand = directionDemand(c.top.Direction(bridge.ApproachB), snap) > 0
	c.cancelRequested = false
	c.deckClearFalseStreak = 0
	c.deckClearReads = 0
	c.deckCleared = false
	c.barrierArmed = false
	c.openingReads = 0
	c.drainFalseStreak = 0
	c.drainReads = 0
	c.closingReads = 0

	c.top.Direction(bridge.ApproachA).SetRed()
	c.top.Direction(bridge.ApproachB).SetRed()

	c.enter(Arming, now)

	c.logger.Info("bridge session started",
		"session_id", c.sessionID,
		"a_demand", c.aDemand,
		"b_demand", c.bDemand,
	)
	return c.sessionID
}

// Cancel requests cooperative cancellation of the active session (§4.2
// "Cancellation"), invoked when a priority-1 vehicle arrives.
func (c *Controller) Cancel(now time.Time) {
	if c.state != Idle && c.state != Restore {
		c.cancelRequested = true
		c.sessionWasCancelled = true
	}
}

func (c *Controller) enter(s State, now time.Time) {
	c.logger.Info("bridge session transition", "session_id", c.sessionID, "from", c.state, "to", s)
	c.state = s
	c.phaseStartAt = now
}

func (c *Controller) startPass(dir int, now time.Time) {
	c.passDir = dir
	c.passLeg = legGreen
	c.passLegStart = now
	c.top.Direction(dir).SetGreen(now)
}

// ForceReset drives the controller back to a safe state after an
// unrecoverable error (§7 "any exception during the session forces
// re-initialization: bridge red; crossing set green").
func (c *Controller) ForceReset(now time.Time) {
	bridge := c.top.Bridge
	if d := c.top.Direction(bridge.ApproachA); d != nil {
		d.SetRed()
	}
	if d := c.top.Direction(bridge.ApproachB); d != nil {
		d.SetRed()
	}
	for _, id := range c.top.CrossingSet() {
		c.top.Direction(id).SetGreen(now)
	}
	c.logger.Warn("bridge session force-reset", "session_id", c.sessionID)
	if c.sessionID != "" {
		c.recordSession(now, OutcomeForceReset)
	}
	c.state = Idle
	c.sessionID = ""
	c.protectedCluster = nil
}

func (c *Controller) doRestore(now time.Time) bool {
	for _, id := range c.top.CrossingSet() {
		c.top.Direction(id).SetGreen(now)
	}
	c.lastClosedAt = now
	c.cycleUsed = true
	c.postBridgeUntil = now.Add(c.cfg.PostBridgeWindow)
	c.logger.Info("bridge session restored", "session_id", c.sessionID)
	outcome := OutcomeCompleted
	if c.sessionWasCancelled {
		outcome = OutcomeCancelled
	}
	c.recordSession(now, outcome)
	c.state = Idle
	c.sessionID = ""
	c.protectedCluster = nil
	return true
}

// Advance runs one tick of the bridge session state machine. It is a no-op
// returning false when idle. Returns whether any direction's or the
// bridge signal's commanded phase changed.
func (c *Controller) Advance(now time.Time, snap sensorstate.Snapshot) bool {
	if c.state == Idle {
		return false
	}

	// Latch B demand the instant it appears, at any point before PASS_B is
	// decided (§4.2 PASS_B runs "if B had demand at any point, including
	// demand that appeared during A's pass").
	if c.state != Restore {
		if directionDemand(c.top.Direction(c.top.Bridge.ApproachB), snap) > 0 {
			c.bDemand = true
		}
	}

	// Cancellation redirects the session toward RESTORE, skipping any
	// remaining pass timing once the bridge is safely commanded red again
	// (§4.2 "Cancellation"). The redirect decision is made once, on the
	// tick cancellation is first observed: left as a standing check it
	// would also fire the moment a legitimate, already-in-progress CLOSING
	// reaches "dicht" on its own, short-circuiting that state's own
	// barrier-opening delay.
	if c.cancelRequested {
		c.cancelRequested = false
		if snap.BridgePhysical == sensorstate.BridgeDicht {
			return c.doRestore(now)
		}
		if c.state != Draining && c.state != Closing {
			c.enter(Draining, now)
			return true
		}
	}

	changed := false

	switch c.state {
	case Arming:
		changed = c.advanceArming(now)

	case DeckClear:
		changed = c.advanceDeckClear(now, snap)

	case Opening:
		changed = c.advanceOpening(now, snap)

	case PassA, PassB:
		changed = c.advancePass(now, snap)

	case Draining:
		changed = c.advanceDraining(now, snap)

	case Closing:
		changed = c.advanceClosing(now, snap)
	}

	return changed
}

func (c *Controller) advanceArming(now time.Time) bool {
	bridge := c.top.Bridge
	changed := false
	allRed := true
	for id := range c.protectedCluster {
		if id == bridge.ApproachA || id == bridge.ApproachB {
			continue // already forced red in Start, no orange owed (I3 exception)
		}
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
	if allRed {
		c.enter(DeckClear, now)
		changed = true
	}
	return changed
}

func (c *Controller) advanceDeckClear(now time.Time, snap sensorstate.Snapshot) bool {
	if !c.deckCleared {
		c.deckClearReads++
		if !snap.VehicleOnDeck {
			c.deckClearFalseStreak++
		} else {
			c.deckClearFalseStreak = 0
		}
		switch {
		case c.deckClearFalseStreak >= 2:
			c.deckCleared = true
		case c.deckClearReads >= c.cfg.DeckClearMaxReads:
			c.logger.Warn("deck-clear read cap exceeded, proceeding", "session_id", c.sessionID)
			c.deckCleared = true
		default:
			return false
		}
		c.barrierArmed = true
		c.barrierDeadline = now.Add(c.cfg.BarrierCloseDelay)
		return false
	}
	if now.Before(c.barrierDeadline) {
		return false
	}
	c.enter(Opening, now)
	return true
}

func (c *Controller) advanceOpening(now time.Time, snap sensorstate.Snapshot) bool {
	c.openingReads++
	if snap.BridgePhysical != sensorstate.BridgeOpen {
		if c.openingReads < c.cfg.OpeningMaxReads {
			return false
		}
		c.logger.Warn("bridge opening read cap exceeded, proceeding", "session_id", c.sessionID)
	}

	bridge := c.top.Bridge
	switch {
	case c.aDemand:
		c.enter(PassA, now)
		c.startPass(bridge.ApproachA, now)
	case c.bDemand:
		c.enter(PassB, now)
		c.startPass(bridge.ApproachB, now)
	default:
		c.enter(Draining, now)
	}
	return true
}

func (c *Controller) advancePass(now time.Time, snap sensorstate.Snapshot) bool {
	d := c.top.Direction(c.passDir)
	switch c.passLeg {
	case legGreen:
		if now.Sub(c.passLegStart) < c.cfg.BridgeGreenDuration {
			return false
		}
		d.SetOrange(now)
		c.passLeg = legOrange
		c.passLegStart = now
		return true

	case legOrange:
		if now.Sub(c.passLegStart) < c.cfg.PassOrangeDuration() {
			return false
		}
		d.SetRed()
		c.passLeg = legRecheck
		return true

	default: // legRecheck
		if snap.VesselUnderBridge {
			return false
		}
		bridge := c.top.Bridge
		if c.state == PassA && c.bDemand {
			c.enter(PassB, now)
			c.startPass(bridge.ApproachB, now)
		} else {
			c.enter(Draining, now)
		}
		return true
	}
}

func (c *Controller) advanceDraining(now time.Time, snap sensorstate.Snapshot) bool {
	c.drainReads++
	if !snap.VesselUnderBridge {
		c.drainFalseStreak++
	} else {
		c.drainFalseStreak = 0
	}
	if c.drainFalseStreak < 4 && c.drainReads < c.cfg.DrainMaxReads {
		return false
	}
	if c.drainReads >= c.cfg.DrainMaxReads && c.drainFalseStreak < 4 {
		c.logger.Warn("draining read cap exceeded, proceeding", "session_id", c.sessionID)
	}
	c.barrierArmed = false // re-armed for CLOSING's barrier-opening delay
	c.closingReads = 0
	c.enter(Closing, now)
	return true
}

func (c *Controller) advanceClosing(now time.Time, snap sensorstate.Snapshot) bool {
	if !c.barrierArmed {
		c.closingReads++
		if snap.BridgePhysical != sensorstate.BridgeDicht {
			if c.closingReads < c.cfg.ClosingMaxReads {
				return false
			}
			c.logger.Warn("bridge closing read cap exceeded, proceeding", "session_id", c.sessionID)
		}
		c.barrierArmed = true
		c.barrierDeadline = now.Add(c.cfg.BarrierOpenDelay)
		return false
	}
	if now.Before(c.barrierDeadline) {
		return false
	}
	return c.doRestore(now)
}
