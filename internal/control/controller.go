// Package control wires the topology, sensor state, scheduler, bridge
// session controller, priority preemption, and publisher into the single
// primary control loop of spec.md §5: one tick at ~2 Hz, evaluation order
// preemption -> bridge session advance -> scheduler advance -> publish.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/plexsphere/plexd/internal/bridgectl"
	"github.com/plexsphere/plexd/internal/jam"
	"github.com/plexsphere/plexd/internal/metrics"
	"github.com/plexsphere/plexd/internal/preemption"
	"github.com/plexsphere/plexd/internal/publisher"
	"github.com/plexsphere/plexd/internal/scheduler"
	"github.com/plexsphere/plexd/internal/sensorstate"
	"github.com/plexsphere/plexd/internal/topology"
)

// Controller owns one tick of the control loop and is the single point of
// synchronization between the tick goroutine and metrics collection
// (§5 "Direction phases are mutated only by the scheduler and
// preemption/bridge controllers; the publisher is read-only over them" —
// internal/metrics reads the same directions from its own goroutine, so a
// mutex is needed where the spec's own single-threaded model has none).
type Controller struct {
	cfg    Config
	top    *topology.Topology
	state  *sensorstate.State
	logger *slog.Logger

	jamDet *jam.Detector
	sched  *scheduler.Scheduler
	bridge *bridgectl.Controller
	preempt *preemption.Controller
	pub    *publisher.Publisher

	mu                sync.Mutex
	lastSessionID     string
	sessionCancelled  bool
	sessionsCompleted int
	sessionsCancelled int
	tickCount         int
	publications      int
}

// New creates a Controller. Config defaults are applied automatically.
func New(
	cfg Config,
	top *topology.Topology,
	state *sensorstate.State,
	jamDet *jam.Detector,
	sched *scheduler.Scheduler,
	bridge *bridgectl.Controller,
	preempt *preemption.Controller,
	pub *publisher.Publisher,
	logger *slog.Logger,
) *Controller {
	cfg.ApplyDefaults()
	return &Controller{
		cfg:     cfg,
		top:     top,
		state:   state,
		logger:  logger.With("component", "control"),
		jamDet:  jamDet,
		sched:   sched,
		bridge:  bridge,
		preempt: preempt,
		pub:     pub,
	}
}

// Run ticks the control loop at cfg.TickInterval until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("control loop started", "tick_interval", c.cfg.TickInterval)

	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.drainBridgeSession()
			c.logger.Info("control loop stopped")
			return ctx.Err()
		case now := <-ticker.C:
			c.safeTick(now)
		}
	}
}

// drainBridgeSession ensures an in-flight bridge session reaches at least
// DRAINING before Run returns, so road traffic already held at the bridge
// approaches is never left permanently red mid-ARMING/OPENING just because
// the process was asked to stop (graceful-shutdown supplement to §5).
// Bounded by cfg.ShutdownTimeout.
func (c *Controller) drainBridgeSession() {
	c.mu.Lock()
	active := c.bridge.Active()
	state := c.bridge.State()
	c.mu.Unlock()
	if !active || state == bridgectl.Draining || state == bridgectl.Closing || state == bridgectl.Restore {
		return
	}

	c.logger.Info("draining in-flight bridge session before shutdown", "state", state.String())
	deadline := time.Now().Add(c.cfg.ShutdownTimeout)
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()
	for {
		now := <-ticker.C
		c.mu.Lock()
		c.bridge.Cancel(now)
		c.bridge.Advance(now, c.state.Snapshot())
		reached := !c.bridge.Active() || c.bridge.State() == bridgectl.Draining
		c.mu.Unlock()
		if reached || now.After(deadline) {
			return
		}
	}
}

// safeTick runs one tick with panic recovery: an unexpected panic inside any
// subsystem forces a defensive reset rather than crashing the process (§7
// "errors inside the session or scheduler never surface to the transport;
// they are logged and either recovered locally or force a defensive reset").
func (c *Controller) safeTick(now time.Time) {
	defer func() {
		if v := recover(); v != nil {
			c.logger.Error("tick panicked, forcing defensive reset",
				"error", fmt.Sprintf("%v", v),
				"stack", string(debug.Stack()),
			)
			c.mu.Lock()
			c.bridge.ForceReset(now)
			c.sched.ResetToIdle()
			c.mu.Unlock()
		}
	}()
	c.tick(now)
}

// tick performs one full evaluation cycle (§5 ordering).
func (c *Controller) tick(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.state.Snapshot()
	c.jamDet.Observe(now, snap.ApproachJam)

	protected := c.bridge.ProtectedCluster()

	// Preemption first: a priority-1 override observed this tick must take
	// effect before any scheduler decision on the same tick (§5).
	prio1WasBusy := c.preempt.Busy()
	overrideActive, _, _ := c.preempt.Advance(now, snap, protected)

	// A priority-1 event cancels the active bridge session (§4.2
	// "Cancellation"); Cancel is a no-op once the session is idle or already
	// restoring, so calling it on every busy tick is harmless.
	if c.preempt.Busy() && c.bridge.Active() {
		c.bridge.Cancel(now)
		c.sessionCancelled = true
	}

	c.bridge.Advance(now, snap)
	c.trackBridgeSession()

	if !c.bridge.Active() && !overrideActive && c.bridge.Eligible(now, snap, overrideActive) {
		c.bridge.Start(now, snap)
		c.lastSessionID = c.bridge.SessionID()
		c.sessionCancelled = false
	}

	// The scheduler never runs while preemption is clearing directions or
	// holding its override: both mutate the same non-protected directions,
	// and running concurrently would race on Direction.Phase (internal/scheduler's
	// own doc comment: "Advance must not be called while a priority-1
	// override is active").
	if !c.preempt.Busy() {
		if prio1WasBusy {
			c.sched.ResetToIdle()
		}
		gate := scheduler.BridgeGate{
			CommandedRed:  !c.bridge.CommandedGreen(),
			PhysicalDicht: snap.BridgePhysical == sensorstate.BridgeDicht,
		}
		c.sched.Advance(now, snap, c.bridge.ProtectedCluster(), gate)
	}

	c.tickCount++

	published, err := c.pub.Publish(c.bridge.SignalPhase())
	if err != nil {
		c.logger.Error("publish failed", "error", err)
		return
	}
	if published {
		c.publications++
	}
}

// trackBridgeSession detects session-id changes and active->idle
// transitions to keep the completed/cancelled counters current. Must be
// called with c.mu held.
func (c *Controller) trackBridgeSession() {
	if id := c.bridge.SessionID(); id != "" && id != c.lastSessionID {
		c.lastSessionID = id
		c.sessionCancelled = false
	}
	if c.lastSessionID != "" && !c.bridge.Active() {
		if c.sessionCancelled {
			c.sessionsCancelled++
		} else {
			c.sessionsCompleted++
		}
		c.lastSessionID = ""
	}
}

// MetricsSnapshot implements metrics.Source.
func (c *Controller) MetricsSnapshot() metrics.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	green := 0
	for _, d := range c.top.Directions() {
		if d.Phase != topology.PhaseRed {
			green++
		}
	}

	history := c.bridge.History()
	sessions := make([]metrics.SessionSummary, len(history))
	for i, rec := range history {
		sessions[i] = metrics.SessionSummary{
			SessionID: rec.SessionID,
			StartedAt: rec.StartedAt,
			EndedAt:   rec.EndedAt,
			Outcome:   rec.Outcome.String(),
			ServedA:   rec.ServedA,
			ServedB:   rec.ServedB,
		}
	}

	return metrics.Snapshot{
		GreenCount:          green,
		SchedulerState:      c.sched.State().String(),
		BridgeSessionState:  c.bridge.State().String(),
		BridgeSessionActive: c.bridge.Active(),
		JamEngaged:          c.jamDet.Engaged(),
		PreemptionActive:    c.preempt.Active(),
		SessionsCompleted:   c.sessionsCompleted,
		SessionsCancelled:   c.sessionsCancelled,
		TickCount:           c.tickCount,
		Publications:        c.publications,
		Sessions:            sessions,
	}
}
