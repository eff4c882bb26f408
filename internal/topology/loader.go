package topology

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// docSchema is the compiled-once schema every topology document must satisfy
// before it is decoded. Only the two fields the core actually reads —
// `groups[*].intersects_with` and `groups[*].lanes` — are required (the
// optional `jam_blocked` flag and `bridge` block are type-checked); a
// document may carry additional metadata (display names, coordinates, ...)
// freely, per §6 ("Only these two fields are required by the core").
const docSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["groups"],
	"properties": {
		"groups": {
			"type": "object",
			"additionalProperties": {
				"type": "object",
				"required": ["intersects_with", "lanes"],
				"properties": {
					"intersects_with": {
						"type": "array",
						"items": {"type": "integer"}
					},
					"lanes": {
						"type": "object",
						"additionalProperties": {"type": "object"}
					},
					"jam_blocked": {
						"type": "boolean"
					}
				}
			}
		},
		"bridge": {
			"type": "object",
			"properties": {
				"approach_a": {"type": "integer"},
				"approach_b": {"type": "integer"},
				"signal_id": {"type": "string"}
			}
		}
	}
}`

// document mirrors the on-wire shape described in spec.md §6.
type document struct {
	Groups map[string]struct {
		IntersectsWith []int                     `json:"intersects_with"`
		Lanes          map[string]json.RawMessage `json:"lanes"`
		JamBlocked     bool                       `json:"jam_blocked"`
	} `json:"groups"`
	Bridge struct {
		ApproachA int    `json:"approach_a"`
		ApproachB int    `json:"approach_b"`
		SignalID  string `json:"signal_id"`
	} `json:"bridge"`
}

// LoadFile reads, schema-validates, and decodes a topology document from
// path. Any failure here is a topology error and is fatal at startup (§7).
func LoadFile(path string) (*Topology, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("topology: read %s: %w", path, err)
	}
	return Load(raw)
}

// Load schema-validates and decodes a topology document from raw JSON bytes.
func Load(raw []byte) (*Topology, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("topology.schema.json", strings.NewReader(docSchema)); err != nil {
		return nil, fmt.Errorf("topology: add schema resource: %w", err)
	}
	schema, err := compiler.Compile("topology.schema.json")
	if err != nil {
		return nil, fmt.Errorf("topology: compile schema: %w", err)
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("topology: parse json: %w", err)
	}
	if err := schema.Validate(generic); err != nil {
		return nil, fmt.Errorf("topology: schema validation: %w", err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("topology: decode: %w", err)
	}

	return build(doc)
}

func build(doc document) (*Topology, error) {
	t := &Topology{
		directions: make(map[int]*Direction, len(doc.Groups)),
		Bridge: Bridge{
			ApproachA: doc.Bridge.ApproachA,
			ApproachB: doc.Bridge.ApproachB,
			SignalID:  doc.Bridge.SignalID,
		},
	}

	ids := make([]int, 0, len(doc.Groups))
	rawGroups := make(map[int]struct {
		IntersectsWith []int
		Lanes          map[string]json.RawMessage
		JamBlocked     bool
	}, len(doc.Groups))

	for key, g := range doc.Groups {
		var id int
		if _, err := fmt.Sscanf(key, "%d", &id); err != nil {
			return nil, fmt.Errorf("topology: group key %q is not an integer direction id: %w", key, err)
		}
		ids = append(ids, id)
		rawGroups[id] = struct {
			IntersectsWith []int
			Lanes          map[string]json.RawMessage
			JamBlocked     bool
		}{g.IntersectsWith, g.Lanes, g.JamBlocked}
	}
	sort.Ints(ids)

	for _, id := range ids {
		g := rawGroups[id]
		lanes, err := decodeLanes(id, g.Lanes)
		if err != nil {
			return nil, err
		}
		t.directions[id] = &Direction{
			ID:        id,
			Lanes:     lanes,
			conflicts: make(map[int]struct{}),
		}
		t.order = append(t.order, id)
		if g.JamBlocked {
			t.JamBlocked = append(t.JamBlocked, id)
		}
	}

	// Conflict is the union of both sides' declarations (§3: "symmetry is
	// NOT assumed at input but is enforced").
	for _, id := range ids {
		for _, c := range rawGroups[id].IntersectsWith {
			if _, ok := t.directions[c]; !ok {
				return nil, fmt.Errorf("topology: direction %d intersects_with unknown direction %d", id, c)
			}
			t.directions[id].conflicts[c] = struct{}{}
			t.directions[c].conflicts[id] = struct{}{}
		}
	}

	if err := t.validateReferences(); err != nil {
		return nil, err
	}
	return t, nil
}

// laneSensorDoc is used only to check a lane entry decodes as an object;
// detector state arrives later via sensoren_rijbaan, not the topology file.
type laneSensorDoc struct{}

func decodeLanes(dirID int, raw map[string]json.RawMessage) ([]Lane, error) {
	laneIDs := make([]string, 0, len(raw))
	for k := range raw {
		laneIDs = append(laneIDs, k)
	}
	sort.Strings(laneIDs)

	lanes := make([]Lane, 0, len(laneIDs))
	for _, laneKey := range laneIDs {
		var probe laneSensorDoc
		if err := json.Unmarshal(raw[laneKey], &probe); err != nil {
			return nil, fmt.Errorf("topology: direction %d lane %q: %w", dirID, laneKey, err)
		}
		lanes = append(lanes, Lane{ID: fmt.Sprintf("%d.%s", dirID, laneKey)})
	}
	return lanes, nil
}
