package machines

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MachineState is the lifecycle state carried by every stored machine
type MachineState string

const (
	StateActive          MachineState = "ACTIVE"
	StateDecommissioning MachineState = "DECOMMISSIONING"
	StateDecommissioned  MachineState = "DECOMMISSIONED"
	StateDead            MachineState = "DEAD"
)

// Machine is the capability set the lifecycle store needs from an entity:
// identity, state, and a value-returning state transition. WithState returns
// a new value rather than mutating, so callers never alias shared state.
type Machine[T any] interface {
	GetID() string
	GetState() MachineState
	WithState(state MachineState) T
}

// Node is a cluster worker machine capable of running tasks
type Node struct {
	ID     string       `json:"id"`
	Host   string       `json:"host"`
	RackID string       `json:"rackId"`
	State  MachineState `json:"state"`
}

func (n Node) GetID() string          { return n.ID }
func (n Node) GetState() MachineState { return n.State }
func (n Node) WithState(s MachineState) Node {
	n.State = s
	return n
}

// Rack is a logical grouping of nodes derived from an offer attribute
type Rack struct {
	ID    string       `json:"id"`
	State MachineState `json:"state"`
}

func (r Rack) GetID() string          { return r.ID }
func (r Rack) GetState() MachineState { return r.State }
func (r Rack) WithState(s MachineState) Rack {
	r.State = s
	return r
}

// SafeID sanitizes an identifier for use as a store path segment
func SafeID(s string) string {
	return strings.ReplaceAll(s, "-", "_")
}

func decodeNode(id string, data []byte) (Node, error) {
	var n Node
	if err := json.Unmarshal(data, &n); err != nil {
		return Node{}, fmt.Errorf("failed to decode node %s: %w", id, err)
	}
	return n, nil
}

// decodeRack tolerates marker-only entries: racks enter the active bucket as
// empty nodes (AddToActive) and only carry a payload once decommissioned.
func decodeRack(id string, data []byte) (Rack, error) {
	if len(data) == 0 {
		return Rack{ID: id, State: StateActive}, nil
	}
	var r Rack
	if err := json.Unmarshal(data, &r); err != nil {
		return Rack{}, fmt.Errorf("failed to decode rack %s: %w", id, err)
	}
	return r, nil
}
