// Package topology loads the static intersection graph — directions, their
// lanes, conflict relations, and the bridge identifiers — from a JSON
// resource file. The graph never changes after load; only a Direction's
// runtime phase and its last-green and orange-start timestamps (set by
// internal/scheduler, internal/bridgectl, and internal/preemption) are
// mutable.
package topology

import (
	"fmt"
	"sort"
	"time"
)

// Phase is one of the three signal phases a Direction or the bridge signal
// can be in.
type Phase int

const (
	PhaseRed Phase = iota
	PhaseOrange
	PhaseGreen
)

// String renders the Dutch phase name used on the wire (§4.5).
func (p Phase) String() string {
	switch p {
	case PhaseGreen:
		return "groen"
	case PhaseOrange:
		return "oranje"
	default:
		return "rood"
	}
}

// Lane is one traffic-light signal within a Direction.
type Lane struct {
	// ID is "{dirID}.{laneID}", e.g. "5.1".
	ID string
	// Front and Back are the two loop detectors under the lane.
	Front, Back bool
}

// Demand returns the lane's contribution to its direction's demand (§4.1):
// 5 if both detectors fire, 1 if either fires, 0 otherwise.
func (l Lane) Demand() int {
	switch {
	case l.Front && l.Back:
		return 5
	case l.Front || l.Back:
		return 1
	default:
		return 0
	}
}

// Direction is one macro-direction at the intersection. Lanes and conflicts
// are immutable after load; Phase, LastGreenAt, and OrangeStartAt are
// mutated exclusively by internal/scheduler, internal/bridgectl, and
// internal/preemption as directions transition — never read concurrently
// with a mutation, since all three run synchronously within one tick (§5).
type Direction struct {
	ID        int
	Lanes     []Lane
	conflicts map[int]struct{}

	Phase          Phase
	LastGreenAt    time.Time
	OrangeStartAt  time.Time
}

// SetGreen transitions the direction to green, stamping LastGreenAt and
// resetting the aging bonus (I4).
func (d *Direction) SetGreen(now time.Time) {
	d.Phase = PhaseGreen
	d.LastGreenAt = now
}

// SetOrange transitions the direction to orange, stamping its own
// orange-start timestamp (§4.1 "tracked individually by orange-start timestamp").
func (d *Direction) SetOrange(now time.Time) {
	d.Phase = PhaseOrange
	d.OrangeStartAt = now
}

// SetRed transitions the direction to red.
func (d *Direction) SetRed() {
	d.Phase = PhaseRed
}

// Demand is the sum of this direction's lane demands.
func (d *Direction) Demand() int {
	total := 0
	for _, l := range d.Lanes {
		total += l.Demand()
	}
	return total
}

// ConflictsWith reports whether this direction conflicts with direction id.
// Conflict is symmetric regardless of which side declared it (§3).
func (d *Direction) ConflictsWith(id int) bool {
	_, ok := d.conflicts[id]
	return ok
}

// ConflictIDs returns the sorted set of direction ids this direction conflicts with.
func (d *Direction) ConflictIDs() []int {
	ids := make([]int, 0, len(d.conflicts))
	for id := range d.conflicts {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Bridge identifies the two bridge-approach directions and the bridge's own signal.
type Bridge struct {
	// ApproachA and ApproachB are the two bridge-approach direction ids.
	ApproachA, ApproachB int
	// SignalID is the bridge signal's lane id, e.g. "81.1".
	SignalID string
}

// Topology is the immutable intersection graph.
type Topology struct {
	directions map[int]*Direction
	order      []int // insertion order, for stable iteration
	Bridge     Bridge
	// JamBlocked overrides jam.Config.BlockedDirections when non-empty (§9 Open Question).
	JamBlocked []int
}

// Direction returns the direction with the given id, or nil if unknown.
func (t *Topology) Direction(id int) *Direction {
	return t.directions[id]
}

// Directions returns all directions in stable (load) order.
func (t *Topology) Directions() []*Direction {
	out := make([]*Direction, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.directions[id])
	}
	return out
}

// LaneByID finds a lane by its "{dirID}.{laneID}" identifier across all directions.
func (t *Topology) LaneByID(laneID string) (*Direction, *Lane, bool) {
	for _, id := range t.order {
		d := t.directions[id]
		for i := range d.Lanes {
			if d.Lanes[i].ID == laneID {
				return d, &d.Lanes[i], true
			}
		}
	}
	return nil, nil, false
}

// ProtectedBridgeCluster returns the set of direction ids held by the bridge
// controller during a session: A, B, and every direction conflicting with
// either (§3 glossary, "Protected bridge cluster").
func (t *Topology) ProtectedBridgeCluster() map[int]struct{} {
	cluster := map[int]struct{}{
		t.Bridge.ApproachA: {},
		t.Bridge.ApproachB: {},
	}
	for _, id := range []int{t.Bridge.ApproachA, t.Bridge.ApproachB} {
		if d := t.directions[id]; d != nil {
			for c := range d.conflicts {
				cluster[c] = struct{}{}
			}
		}
	}
	return cluster
}

// CrossingSet returns the directions that conflict with bridge approach A —
// the set restored to green immediately once the bridge is closed (§4.2 RESTORE).
func (t *Topology) CrossingSet() []int {
	d := t.directions[t.Bridge.ApproachA]
	if d == nil {
		return nil
	}
	return d.ConflictIDs()
}

// validateReferences checks that every direction conflict id and every
// bridge reference points at a direction that actually exists.
func (t *Topology) validateReferences() error {
	for _, id := range t.order {
		d := t.directions[id]
		for c := range d.conflicts {
			if _, ok := t.directions[c]; !ok {
				return fmt.Errorf("topology: direction %d conflicts with unknown direction %d", id, c)
			}
		}
	}
	if _, ok := t.directions[t.Bridge.ApproachA]; !ok {
		return fmt.Errorf("topology: bridge approach A references unknown direction %d", t.Bridge.ApproachA)
	}
	if _, ok := t.directions[t.Bridge.ApproachB]; !ok {
		return fmt.Errorf("topology: bridge approach B references unknown direction %d", t.Bridge.ApproachB)
	}
	return nil
}
