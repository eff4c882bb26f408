// Package scheduler implements the phase scheduler of spec.md §4.1: demand
// and effective-priority scoring, conflict-free green-set selection with
// aging, the IDLE/GREEN/TRANSITION state machine, and mid-green
// augmentation.
package scheduler

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/plexsphere/plexd/internal/jam"
	"github.com/plexsphere/plexd/internal/sensorstate"
	"github.com/plexsphere/plexd/internal/topology"
)

// State is the scheduler's coarse-grained state (§4.1).
type State int

const (
	Idle State = iota
	Green
	Transition
)

// String renders the state name used by internal/metrics.
func (s State) String() string {
	switch s {
	case Green:
		return "green"
	case Transition:
		return "transition"
	default:
		return "idle"
	}
}

// BridgeGate describes the bridge's commanded/physical state as seen by the
// candidate-pool filter (§4.1 step 1). It is satisfied by internal/bridgectl.
type BridgeGate struct {
	CommandedRed  bool
	PhysicalDicht bool
}

// Scheduler drives direction phases for ordinary (non-preempted,
// non-protected) road traffic.
type Scheduler struct {
	cfg    Config
	top    *topology.Topology
	jamDet *jam.Detector
	logger *slog.Logger

	state          State
	currentSet     map[int]struct{}
	lastSwitchTime time.Time

	// currentDuration is the green hold duration decided when the current
	// set was selected. It is frozen at selection time, not recomputed on
	// every tick: effective priority grows with aging while a set waits,
	// so recomputing against "now" would tip the set over the extension
	// threshold the longer it sits green, delaying the very cutover aging
	// is meant to hasten.
	currentDuration time.Duration
}

// New creates a Scheduler. Config defaults are applied automatically.
// started is used as the initial LastGreenAt baseline for every direction,
// so aging accrues from process start rather than from the zero time.
func New(cfg Config, top *topology.Topology, jamDet *jam.Detector, started time.Time, logger *slog.Logger) *Scheduler {
	cfg.ApplyDefaults()
	for _, d := range top.Directions() {
		d.LastGreenAt = started
	}
	return &Scheduler{
		cfg:        cfg,
		top:        top,
		jamDet:     jamDet,
		logger:     logger.With("component", "scheduler"),
		state:      Idle,
		currentSet: make(map[int]struct{}),
	}
}

// State returns the scheduler's current coarse state.
func (s *Scheduler) State() State { return s.state }

// CurrentGreenCount returns the number of directions the scheduler (not
// counting protected-cluster or preemption greens) currently holds green.
func (s *Scheduler) CurrentGreenCount() int { return len(s.currentSet) }

// ResetToIdle clears scheduler bookkeeping without touching any direction's
// phase. Called by internal/control when a priority-1 override clears, so
// the next Advance performs a fresh cold-start selection (§4.3 "resumes
// IDLE → GREEN selection").
func (s *Scheduler) ResetToIdle() {
	s.state = Idle
	s.currentSet = make(map[int]struct{})
}

// prio2Directions returns the set of direction ids with a queued
// priority-2 entry (§4.3).
func prio2Directions(snap sensorstate.Snapshot) map[int]struct{} {
	out := make(map[int]struct{})
	for _, e := range snap.PriorityEntriesWithPriority(2) {
		if id, ok := directionIDFromLane(e.Lane); ok {
			out[id] = struct{}{}
		}
	}
	return out
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

// effectivePriority computes demand + aging bonus + prio-2 bonus for a direction (§4.1).
func (s *Scheduler) effectivePriority(d *topology.Direction, now time.Time, snap sensorstate.Snapshot, prio2 map[int]struct{}) int {
	demand := 0
	for _, l := range d.Lanes {
		demand += snap.LaneDemand(l.ID)
	}
	aging := int(now.Sub(d.LastGreenAt) / s.cfg.AgingBucket)
	if aging < 0 {
		aging = 0
	}
	eff := demand + aging
	if _, ok := prio2[d.ID]; ok {
		eff += s.cfg.Prio2Bonus
	}
	return eff
}

// bridgeClusterExcluded reports whether the bridge conflict cluster must be
// excluded from candidacy this tick (§4.1 step 1, I2 safety net).
func bridgeClusterExcluded(top *topology.Topology, gate BridgeGate, id int) bool {
	if gate.CommandedRed && gate.PhysicalDicht {
		return false
	}
	cluster := top.ProtectedBridgeCluster()
	_, ok := cluster[id]
	return ok
}

type candidate struct {
	id  int
	eff int
}

// candidates builds the sorted candidate pool per §4.1 step 1-2.
func (s *Scheduler) candidates(now time.Time, snap sensorstate.Snapshot, protected map[int]struct{}, gate BridgeGate, exclude map[int]struct{}) []candidate {
	prio2 := prio2Directions(snap)
	var out []candidate
	for _, d := range s.top.Directions() {
		if _, ok := protected[d.ID]; ok {
			continue
		}
		if _, ok := exclude[d.ID]; ok {
			continue
		}
		if s.jamDet.Blocks(d.ID) {
			continue
		}
		if bridgeClusterExcluded(s.top, gate, d.ID) {
			continue
		}
		demand := 0
		for _, l := range d.Lanes {
			demand += snap.LaneDemand(l.ID)
		}
		if demand <= 0 {
			continue
		}
		out = append(out, candidate{id: d.ID, eff: s.effectivePriority(d, now, snap, prio2)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].eff != out[j].eff {
			return out[i].eff > out[j].eff
		}
		return out[i].id < out[j].id
	})
	return out
}

// selectGreenSet runs the greedy conflict-free pick of §4.1 step 3 and
// returns the chosen direction ids.
func (s *Scheduler) selectGreenSet(cands []candidate) []int {
	var picked []int
	for _, c := range cands {
		d := s.top.Direction(c.id)
		conflict := false
		for _, p := range picked {
			if d.ConflictsWith(p) {
				conflict = true
				break
			}
		}
		if !conflict {
			picked = append(picked, c.id)
		}
	}
	return picked
}

func idSet(ids []int) map[int]struct{} {
	m := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

func setEqual(a map[int]struct{}, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for _, id := range b {
		if _, ok := a[id]; !ok {
			return false
		}
	}
	return true
}

// dynamicGreenDuration computes the green hold duration for the given set,
// per §4.1 "Dynamic green".
func (s *Scheduler) dynamicGreenDuration(now time.Time, ids map[int]struct{}, snap sensorstate.Snapshot) time.Duration {
	prio2 := prio2Directions(snap)
	total := 0
	for id := range ids {
		d := s.top.Direction(id)
		total += s.effectivePriority(d, now, snap, prio2)
	}
	if total > s.cfg.HighPriorityThreshold {
		return s.cfg.BaseGreenDuration + s.cfg.DynamicGreenBonus
	}
	return s.cfg.BaseGreenDuration
}

// Advance runs one tick of the phase scheduler. protected is the set of
// direction ids currently held by an active bridge session (§4.2); gate
// reports the bridge's commanded/physical state, supplied by
// internal/bridgectl. Advance must not be called while a priority-1
// override is active — the control loop skips the call and invokes
// ResetToIdle once the override clears. Advance returns whether any
// direction's phase changed.
func (s *Scheduler) Advance(now time.Time, snap sensorstate.Snapshot, protected map[int]struct{}, gate BridgeGate) bool {
	changed := false

	// Protected members are owned by the bridge controller; drop bookkeeping
	// for them without touching their phase (§4.1 "protected members of G
	// stay as they are").
	for id := range s.currentSet {
		if _, ok := protected[id]; ok {
			delete(s.currentSet, id)
		}
	}

	// Jam forces its blocked directions through orange immediately,
	// independent of the green-duration timer (§4.4: "driven through
	// orange to red at the next tick").
	for id := range s.currentSet {
		d := s.top.Direction(id)
		if d.Phase == topology.PhaseGreen && s.jamDet.Blocks(id) {
			d.SetOrange(now)
			changed = true
		}
	}

	// Clear any direction whose orange duration has elapsed, whether it
	// got there via the ordinary cycle-end transition or a jam-forced exit.
	for id := range s.currentSet {
		d := s.top.Direction(id)
		if d.Phase == topology.PhaseOrange && now.Sub(d.OrangeStartAt) >= s.cfg.OrangeDuration {
			d.SetRed()
			delete(s.currentSet, id)
			changed = true
		}
	}

	greenMembers := make(map[int]struct{})
	anyOrange := false
	for id := range s.currentSet {
		switch s.top.Direction(id).Phase {
		case topology.PhaseGreen:
			greenMembers[id] = struct{}{}
		case topology.PhaseOrange:
			anyOrange = true
		}
	}

	switch {
	case len(greenMembers) > 0 && !anyOrange:
		// Ordinary GREEN: either the whole batch times out together, or it
		// gets mid-green augmentation.
		if now.Sub(s.lastSwitchTime) >= s.currentDuration {
			cands := s.candidates(now, snap, protected, gate, nil)
			picked := s.selectGreenSet(cands)
			if setEqual(greenMembers, picked) {
				// Same set would be reselected: no flicker, just extend,
				// re-pricing the hold against the freshly observed demand.
				s.lastSwitchTime = now
				s.currentDuration = s.dynamicGreenDuration(now, greenMembers, snap)
				break
			}
			for id := range greenMembers {
				s.top.Direction(id).SetOrange(now)
			}
			changed = true
			break
		}

		cands := s.candidates(now, snap, protected, gate, s.currentSet)
		added := false
		for _, c := range cands {
			d := s.top.Direction(c.id)
			conflict := false
			for id := range s.currentSet {
				if d.ConflictsWith(id) {
					conflict = true
					break
				}
			}
			if conflict {
				continue
			}
			d.SetGreen(now)
			s.currentSet[c.id] = struct{}{}
			added = true
		}
		if added {
			s.lastSwitchTime = now
			changed = true
		}

	case len(s.currentSet) == 0:
		// Nothing green or clearing: select a fresh set (cold start, or the
		// reselection that follows the last orange clearing).
		cands := s.candidates(now, snap, protected, gate, nil)
		picked := s.selectGreenSet(cands)
		if len(picked) > 0 {
			for _, id := range picked {
				s.top.Direction(id).SetGreen(now)
			}
			s.currentSet = idSet(picked)
			s.lastSwitchTime = now
			s.currentDuration = s.dynamicGreenDuration(now, s.currentSet, snap)
			changed = true
		}
	}

	switch {
	case len(s.currentSet) == 0:
		s.state = Idle
	case anyOrangeAmong(s.top, s.currentSet):
		s.state = Transition
	default:
		s.state = Green
	}

	return changed
}

func anyOrangeAmong(top *topology.Topology, ids map[int]struct{}) bool {
	for id := range ids {
		if top.Direction(id).Phase == topology.PhaseOrange {
			return true
		}
	}
	return false
}
