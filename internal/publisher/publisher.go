// Package publisher implements spec.md §4.5: on any phase change, compose a
// complete {lane-id -> phase-name} snapshot (plus the bridge signal's own
// entry) and publish it exactly once per distinct snapshot.
package publisher

import (
	"log/slog"

	"github.com/plexsphere/plexd/internal/topology"
)

// Sink receives composed snapshots for delivery to the outbound transport.
// internal/transport implements this over the `stoplichten` topic.
type Sink interface {
	PublishSnapshot(snapshot map[string]string) error
}

// Publisher composes and deduplicates outbound signal snapshots.
type Publisher struct {
	top    *topology.Topology
	sink   Sink
	logger *slog.Logger

	last map[string]string
}

// New creates a Publisher bound to top's lane set and the bridge signal id.
func New(top *topology.Topology, sink Sink, logger *slog.Logger) *Publisher {
	return &Publisher{
		top:    top,
		sink:   sink,
		logger: logger.With("component", "publisher"),
	}
}

// compose builds the full lane-id -> phase-name mapping plus the bridge
// signal's own entry (§4.5), rendering every phase via topology.Phase's
// Dutch String(), including the bridge signal, whose commanded value is given
// directly by bridgeSignal and rendered as passed.
func (p *Publisher) compose(bridgeSignal topology.Phase) map[string]string {
	out := make(map[string]string)
	for _, d := range p.top.Directions() {
		for _, l := range d.Lanes {
			out[l.ID] = d.Phase.String()
		}
	}
	out[p.top.Bridge.SignalID] = bridgeSignal.String()
	return out
}

// Publish composes the current snapshot and pushes it to the sink if it
// differs from the last published snapshot (§4.5 "publish only on change").
// Returns whether a publish actually occurred.
func (p *Publisher) Publish(bridgeSignal topology.Phase) (bool, error) {
	snap := p.compose(bridgeSignal)
	if mapsEqual(p.last, snap) {
		return false, nil
	}
	if err := p.sink.PublishSnapshot(snap); err != nil {
		p.logger.Error("publish failed", "error", err)
		return false, err
	}
	p.last = snap
	return true, nil
}

func mapsEqual(a, b map[string]string) bool {
	if a == nil {
		return false
	}
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
