package transport

import (
	"encoding/json"
	"log/slog"

	"github.com/plexsphere/plexd/internal/sensorstate"
	"github.com/plexsphere/plexd/internal/topology"
)

// Decoder applies decoded inbound frames onto a sensorstate.State. A decode
// error affects only the current tick's update for that topic: the error is
// logged and the previous value is retained (§7 "Decode errors").
type Decoder struct {
	state  *sensorstate.State
	top    *topology.Topology
	logger *slog.Logger
}

// NewDecoder creates a Decoder bound to state, consulting top only to
// recognize the configured bridge signal id inside sensoren_bruggen payloads.
func NewDecoder(state *sensorstate.State, top *topology.Topology, logger *slog.Logger) *Decoder {
	return &Decoder{state: state, top: top, logger: logger.With("component", "transport.inbound")}
}

// HandleFrame dispatches one decoded [topic, payload] frame (§6).
func (d *Decoder) HandleFrame(topic string, payload []byte) {
	switch topic {
	case "sensoren_rijbaan":
		d.handleRijbaan(payload)
	case "sensoren_speciaal":
		d.handleSpeciaal(payload)
	case "sensoren_bruggen":
		d.handleBruggen(payload)
	case "voorrangsvoertuig":
		d.handleVoorrang(payload)
	case "tijd":
		// ignored (§6)
	default:
		d.logger.Warn("unknown inbound topic, ignored", "topic", topic)
	}
}

func (d *Decoder) handleRijbaan(payload []byte) {
	var doc map[string]struct {
		Voor   bool `json:"voor"`
		Achter bool `json:"achter"`
	}
	if err := json.Unmarshal(payload, &doc); err != nil {
		d.logger.Warn("sensoren_rijbaan decode error, retaining last-good state", "error", err)
		return
	}
	for laneID, v := range doc {
		d.state.SetLane(laneID, sensorstate.LaneDetectors{Front: v.Voor, Back: v.Achter})
	}
}

func (d *Decoder) handleSpeciaal(payload []byte) {
	var doc struct {
		BrugFile   bool `json:"brug_file"`
		BrugWegdek bool `json:"brug_wegdek"`
		BrugWater  bool `json:"brug_water"`
	}
	if err := json.Unmarshal(payload, &doc); err != nil {
		d.logger.Warn("sensoren_speciaal decode error, retaining last-good state", "error", err)
		return
	}
	d.state.SetSpecial(doc.BrugFile, doc.BrugWegdek, doc.BrugWater)
}

func (d *Decoder) handleBruggen(payload []byte) {
	var doc map[string]struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(payload, &doc); err != nil {
		d.logger.Warn("sensoren_bruggen decode error, retaining last-good state", "error", err)
		return
	}
	entry, ok := doc[d.top.Bridge.SignalID]
	if !ok {
		d.logger.Warn("sensoren_bruggen payload missing configured bridge signal", "signal_id", d.top.Bridge.SignalID)
		return
	}
	switch entry.State {
	case string(sensorstate.BridgeOpen):
		d.state.SetBridgePhysical(sensorstate.BridgeOpen)
	case string(sensorstate.BridgeDicht):
		d.state.SetBridgePhysical(sensorstate.BridgeDicht)
	default:
		d.logger.Warn("sensoren_bruggen unknown state value, retaining last-good state", "value", entry.State)
	}
}

func (d *Decoder) handleVoorrang(payload []byte) {
	var doc struct {
		Queue []struct {
			Baan         string `json:"baan"`
			Prioriteit   int    `json:"prioriteit"`
			SimTijdMs    uint64 `json:"simulatie_tijd_ms"`
		} `json:"queue"`
	}
	if err := json.Unmarshal(payload, &doc); err != nil {
		d.logger.Warn("voorrangsvoertuig decode error, retaining last-good state", "error", err)
		return
	}
	entries := make([]sensorstate.PriorityEntry, 0, len(doc.Queue))
	for _, q := range doc.Queue {
		if q.Prioriteit != 1 && q.Prioriteit != 2 {
			d.logger.Warn("voorrangsvoertuig entry with invalid priority ignored", "baan", q.Baan, "prioriteit", q.Prioriteit)
			continue
		}
		entries = append(entries, sensorstate.PriorityEntry{
			Lane:      q.Baan,
			Priority:  q.Prioriteit,
			SimTimeMs: q.SimTijdMs,
		})
	}
	d.state.SetQueue(entries)
}
