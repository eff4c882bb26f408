package control

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/plexsphere/plexd/internal/bridgectl"
	"github.com/plexsphere/plexd/internal/jam"
	"github.com/plexsphere/plexd/internal/preemption"
	"github.com/plexsphere/plexd/internal/publisher"
	"github.com/plexsphere/plexd/internal/scheduler"
	"github.com/plexsphere/plexd/internal/sensorstate"
	"github.com/plexsphere/plexd/internal/topology"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// doc: 1 and 2 conflict; 71 (approach A) conflicts with 5; 72 is approach B
// with no other conflicts.
const doc = `{
	"groups": {
		"1": {"intersects_with": [2], "lanes": {"1": {}}},
		"2": {"intersects_with": [1], "lanes": {"1": {}}},
		"71": {"intersects_with": [5], "lanes": {"1": {}}},
		"72": {"intersects_with": [], "lanes": {"1": {}}},
		"5": {"intersects_with": [71], "lanes": {"1": {}}}
	},
	"bridge": {"approach_a": 71, "approach_b": 72, "signal_id": "81.1"}
}`

type fakeSink struct {
	published []map[string]string
}

func (f *fakeSink) PublishSnapshot(snapshot map[string]string) error {
	cp := make(map[string]string, len(snapshot))
	for k, v := range snapshot {
		cp[k] = v
	}
	f.published = append(f.published, cp)
	return nil
}

func newTestController(t *testing.T) (*Controller, *sensorstate.State, *fakeSink) {
	t.Helper()
	top, err := topology.Load([]byte(doc))
	if err != nil {
		t.Fatalf("topology.Load() error = %v", err)
	}
	st := sensorstate.New()
	logger := discardLogger()
	jamDet := jam.New(jam.Config{}, logger)
	sched := scheduler.New(scheduler.Config{}, top, jamDet, time.Now(), logger)
	bridge := bridgectl.New(bridgectl.Config{}, top, logger)
	preempt := preemption.New(preemption.Config{}, top, logger)
	sink := &fakeSink{}
	pub := publisher.New(top, sink, logger)
	ctrl := New(Config{}, top, st, jamDet, sched, bridge, preempt, pub, logger)
	return ctrl, st, sink
}

func TestTick_SchedulerSelectsGreenAndPublishes(t *testing.T) {
	ctrl, st, sink := newTestController(t)
	st.SetLane("1.1", sensorstate.LaneDetectors{Front: true, Back: true})

	now := time.Now()
	ctrl.tick(now)

	if ctrl.top.Direction(1).Phase != topology.PhaseGreen {
		t.Fatalf("expected direction 1 green, got %v", ctrl.top.Direction(1).Phase)
	}
	if len(sink.published) == 0 {
		t.Fatal("expected at least one publish")
	}
	last := sink.published[len(sink.published)-1]
	if last["1.1"] != "groen" {
		t.Errorf("published lane 1.1 = %q, want groen", last["1.1"])
	}
}

func TestTick_PriorityOverrideSuspendsAndResumesScheduler(t *testing.T) {
	ctrl, st, _ := newTestController(t)
	st.SetLane("1.1", sensorstate.LaneDetectors{Front: true, Back: true})

	now := time.Now()
	ctrl.tick(now) // direction 1 selected green

	// Priority-1 vehicle arrives for direction 2, which conflicts with 1.
	st.SetQueue([]sensorstate.PriorityEntry{{Lane: "2.1", Priority: 1, SimTimeMs: 100}})
	now = now.Add(500 * time.Millisecond)
	ctrl.tick(now)
	if ctrl.top.Direction(1).Phase != topology.PhaseOrange {
		t.Fatalf("expected direction 1 orange while clearing for prio-1, got %v", ctrl.top.Direction(1).Phase)
	}

	now = now.Add(9 * time.Second) // past preemption.DefaultOrangeDuration
	ctrl.tick(now)
	if !ctrl.preempt.Active() {
		t.Fatal("expected priority-1 override active")
	}
	if ctrl.top.Direction(2).Phase != topology.PhaseGreen {
		t.Fatalf("expected direction 2 green under override, got %v", ctrl.top.Direction(2).Phase)
	}
	if ctrl.top.Direction(1).Phase != topology.PhaseRed {
		t.Fatalf("expected direction 1 red once override active, got %v", ctrl.top.Direction(1).Phase)
	}

	// Queue item disappears: override clears, scheduler resumes from a cold start.
	st.SetQueue(nil)
	st.SetLane("1.1", sensorstate.LaneDetectors{Front: true, Back: true})
	now = now.Add(500 * time.Millisecond)
	ctrl.tick(now)
	if ctrl.preempt.Active() {
		t.Fatal("expected override cleared")
	}
	now = now.Add(500 * time.Millisecond)
	ctrl.tick(now)
	if ctrl.top.Direction(1).Phase != topology.PhaseGreen {
		t.Fatalf("expected scheduler to resume and reselect direction 1, got %v", ctrl.top.Direction(1).Phase)
	}
}

func TestTick_PriorityOverrideCancelsBridgeSession(t *testing.T) {
	ctrl, st, _ := newTestController(t)
	st.SetLane("71.1", sensorstate.LaneDetectors{Front: true})
	st.SetLane("72.1", sensorstate.LaneDetectors{Front: true})
	st.SetBridgePhysical(sensorstate.BridgeDicht)

	now := time.Now()
	ctrl.tick(now) // bridge session becomes eligible and starts (ARMING)
	if !ctrl.bridge.Active() {
		t.Fatal("expected bridge session to have started")
	}

	// Priority-1 vehicle arrives on a non-protected direction.
	st.SetQueue([]sensorstate.PriorityEntry{{Lane: "1.1", Priority: 1, SimTimeMs: 1}})
	now = now.Add(500 * time.Millisecond)
	ctrl.tick(now)

	if ctrl.sessionCancelled && ctrl.bridge.Active() {
		t.Fatal("expected the cancelled session to restore immediately with the bridge already dicht")
	}
}

func TestDrainBridgeSession_ReachesDraining(t *testing.T) {
	ctrl, st, _ := newTestController(t)
	ctrl.cfg.TickInterval = 5 * time.Millisecond
	ctrl.cfg.ShutdownTimeout = 200 * time.Millisecond

	st.SetLane("71.1", sensorstate.LaneDetectors{Front: true})
	st.SetLane("72.1", sensorstate.LaneDetectors{Front: true})
	st.SetBridgePhysical(sensorstate.BridgeDicht)

	now := time.Now()
	ctrl.tick(now)
	if !ctrl.bridge.Active() {
		t.Fatal("expected bridge session to have started")
	}

	ctrl.drainBridgeSession()

	if ctrl.bridge.Active() && ctrl.bridge.State() != bridgectl.Draining {
		t.Fatalf("expected drain to reach Draining or complete, got state %v", ctrl.bridge.State())
	}
}

func TestDrainBridgeSession_NoopWhenIdle(t *testing.T) {
	ctrl, _, _ := newTestController(t)
	ctrl.cfg.TickInterval = 5 * time.Millisecond
	ctrl.cfg.ShutdownTimeout = 50 * time.Millisecond

	ctrl.drainBridgeSession() // must return immediately, no session active
	if ctrl.bridge.Active() {
		t.Fatal("expected no session to be started by drain")
	}
}

func TestMetricsSnapshot_TicksAndPublicationsCount(t *testing.T) {
	ctrl, _, _ := newTestController(t)
	now := time.Now()
	ctrl.tick(now)
	now = now.Add(500 * time.Millisecond)
	ctrl.tick(now)

	snap := ctrl.MetricsSnapshot()
	if snap.TickCount != 2 {
		t.Errorf("TickCount = %d, want 2", snap.TickCount)
	}
	if snap.Publications < 1 {
		t.Errorf("Publications = %d, want >= 1", snap.Publications)
	}
}
