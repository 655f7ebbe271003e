package placement

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sparkw/Singularity/pkg/machines"
	"github.com/sparkw/Singularity/pkg/metrics"
)

// Engine makes rack-aware placement verdicts for resource offers and owns the
// node/rack discovery and loss workflow. All topology reads and writes go
// through the lifecycle stores; the engine holds no state of its own, so
// concurrent offer evaluations and resync passes interleave safely.
type Engine struct {
	rackIDAttributeKey string
	defaultRackID      string

	nodes  *machines.Store[machines.Node]
	racks  *machines.Store[machines.Rack]
	logger zerolog.Logger
}

// NewEngine creates a placement engine
func NewEngine(rackIDAttributeKey, defaultRackID string, nodes *machines.Store[machines.Node], racks *machines.Store[machines.Rack], logger zerolog.Logger) *Engine {
	return &Engine{
		rackIDAttributeKey: rackIDAttributeKey,
		defaultRackID:      defaultRackID,
		nodes:              nodes,
		racks:              racks,
		logger:             logger.With().Str("component", "placement").Logger(),
	}
}

// Host reduces a hostname to its first dot-separated label, sanitized
func Host(hostname string) string {
	return machines.SafeID(strings.SplitN(hostname, ".", 2)[0])
}

// RackID extracts the rack identifier from the offer attributes, falling back
// to the configured default
func (e *Engine) RackID(offer Offer) string {
	return e.rackIDFromAttributes(offer.Attributes)
}

func (e *Engine) rackIDFromAttributes(attributes map[string]string) string {
	if rackID, ok := attributes[e.rackIDAttributeKey]; ok {
		return machines.SafeID(rackID)
	}
	return machines.SafeID(e.defaultRackID)
}

// CheckRack evaluates one offer against one pending request. activeTasks is
// the set of currently running tasks for the request. The node/rack
// registration for this offer must already have completed (CheckOffer) so the
// verdict is never computed against half-registered topology.
func (e *Engine) CheckRack(offer Offer, taskRequest TaskRequest, activeTasks []TaskID) (RackCheckState, error) {
	verdict, err := e.checkRack(offer, taskRequest, activeTasks)
	if err == nil {
		metrics.RackChecksTotal.WithLabelValues(string(verdict)).Inc()
	}
	return verdict, err
}

func (e *Engine) checkRack(offer Offer, taskRequest TaskRequest, activeTasks []TaskID) (RackCheckState, error) {
	host := Host(offer.Hostname)
	rackID := e.RackID(offer)
	nodeID := machines.SafeID(offer.AgentID)

	decommissioning, err := e.nodes.IsDecommissioning(nodeID)
	if err != nil {
		return "", err
	}
	if decommissioning {
		return NodeDecommissioning, nil
	}

	rackDecommissioning, err := e.racks.IsDecommissioning(rackID)
	if err != nil {
		return "", err
	}
	if rackDecommissioning {
		return RackDecommissioning, nil
	}

	if !taskRequest.RackSensitive {
		return NotRackSensitive, nil
	}

	rackUsage := make(map[string]int)
	for _, taskID := range activeTasks {
		if taskID.Host == host {
			e.logger.Trace().
				Str("pendingTask", taskRequest.PendingTaskID).
				Str("host", host).
				Msg("task already running on host")
			return AlreadyOnNode, nil
		}
		rackUsage[taskID.RackID]++
	}

	numActiveRacks, err := e.racks.NumActive()
	if err != nil {
		return "", err
	}

	numPerRack := float64(taskRequest.Instances) / float64(numActiveRacks)
	numOnRack := float64(rackUsage[rackID])

	rackOK := numOnRack < numPerRack

	e.logger.Trace().
		Str("pendingTask", taskRequest.PendingTaskID).
		Str("rackId", rackID).
		Float64("numPerRack", numPerRack).
		Float64("numOnRack", numOnRack).
		Bool("rackOk", rackOK).
		Msg("rack fairness result")

	if rackOK {
		return RackOK, nil
	}
	return RackSaturated, nil
}

// initialState inherits the stored decommissioning sub-state for a node that
// is being re-registered while scheduled for retirement
func (e *Engine) initialState(nodeID string) (machines.MachineState, error) {
	decommissioning, err := e.nodes.IsDecommissioning(nodeID)
	if err != nil {
		return "", err
	}
	if !decommissioning {
		return machines.StateActive, nil
	}

	obj, ok, err := e.nodes.DecommissioningObject(nodeID)
	if err != nil {
		return "", err
	}
	if !ok {
		// vanished between the membership check and the read
		e.logger.Warn().Str("nodeId", nodeID).Msg("decommissioning record vanished")
		return machines.StateActive, nil
	}
	return obj.State, nil
}

// registerNode runs the shared discovery procedure for a node derived from an
// offer or a roster entry. A decommissioning node is never resurrected into
// the active bucket; dead markers are cleared on rediscovery.
func (e *Engine) registerNode(node machines.Node) (DiscoveryResult, error) {
	if node.State == machines.StateDecommissioned || node.State == machines.StateDecommissioning {
		return DiscoveryNodeDecommissioning, nil
	}

	nodeDead, err := e.nodes.IsDead(node.ID)
	if err != nil {
		return "", err
	}
	if nodeDead {
		if _, err := e.nodes.RemoveDead(node.ID); err != nil {
			return "", err
		}
	}

	if err := e.nodes.Save(node); err != nil {
		return "", err
	}

	rackDecommissioning, err := e.racks.IsDecommissioning(node.RackID)
	if err != nil {
		return "", err
	}
	if rackDecommissioning {
		return DiscoveryRackDecommissioning, nil
	}

	rackDead, err := e.racks.IsDead(node.RackID)
	if err != nil {
		return "", err
	}
	if rackDead {
		if _, err := e.racks.RemoveDead(node.RackID); err != nil {
			return "", err
		}
	}

	rackActive, err := e.racks.IsActive(node.RackID)
	if err != nil {
		return "", err
	}
	if rackActive {
		return DiscoveryActive, nil
	}

	if err := e.racks.AddToActive(node.RackID); err != nil {
		return "", err
	}
	return DiscoveryNewRack, nil
}

// CheckOffer registers the offering node if it is not already known. The
// common case, an offer from an active node, touches the store once.
func (e *Engine) CheckOffer(offer Offer) (DiscoveryResult, error) {
	metrics.OffersCheckedTotal.Inc()

	nodeID := machines.SafeID(offer.AgentID)

	active, err := e.nodes.IsActive(nodeID)
	if err != nil {
		return "", err
	}
	if active {
		return DiscoveryActive, nil
	}

	state, err := e.initialState(nodeID)
	if err != nil {
		return "", err
	}

	node := machines.Node{
		ID:     nodeID,
		Host:   Host(offer.Hostname),
		RackID: e.RackID(offer),
		State:  state,
	}

	result, err := e.registerNode(node)
	if err != nil {
		return "", err
	}
	metrics.DiscoveriesTotal.WithLabelValues(string(result)).Inc()

	switch result {
	case DiscoveryNewRack:
		e.logger.Info().
			Str("nodeId", node.ID).
			Str("host", node.Host).
			Str("rackId", node.RackID).
			Msg("offer revealed a new node and rack")
	case DiscoveryActive:
		e.logger.Info().
			Str("nodeId", node.ID).
			Str("host", node.Host).
			Str("rackId", node.RackID).
			Msg("offer revealed a new node")
	}

	return result, nil
}

// LoadRacksFromMaster destructively rebuilds the active topology from the
// orchestrator's full roster. Nodes classified as decommissioning are left
// out of the active bucket.
func (e *Engine) LoadRacksFromMaster(roster []MasterSlave) error {
	start := time.Now()

	racksCleared, err := e.racks.ClearActive()
	if err != nil {
		return err
	}
	nodesCleared, err := e.nodes.ClearActive()
	if err != nil {
		return err
	}

	e.logger.Info().
		Int("racksCleared", racksCleared).
		Int("nodesCleared", nodesCleared).
		Dur("elapsed", time.Since(start)).
		Msg("cleared active topology")

	racks := 0
	nodes := 0

	for _, entry := range roster {
		nodeID := machines.SafeID(entry.ID)

		state, err := e.initialState(nodeID)
		if err != nil {
			return err
		}

		node := machines.Node{
			ID:     nodeID,
			Host:   Host(entry.Hostname),
			RackID: e.rackIDFromAttributes(entry.Attributes),
			State:  state,
		}

		result, err := e.registerNode(node)
		if err != nil {
			return err
		}
		metrics.DiscoveriesTotal.WithLabelValues(string(result)).Inc()

		switch result {
		case DiscoveryNewRack:
			racks++
			nodes++
		case DiscoveryActive:
			nodes++
		}
	}

	metrics.ResyncDuration.Observe(time.Since(start).Seconds())

	e.logger.Info().
		Int("racks", racks).
		Int("nodes", nodes).
		Dur("elapsed", time.Since(start)).
		Msg("loaded topology from master")

	return nil
}

// NodeLost retires a node reported lost by the orchestrator. Duplicate loss
// notifications are no-ops. A rack dies only when its last active node does.
func (e *Engine) NodeLost(agentID string) error {
	nodeID := machines.SafeID(agentID)

	dead, err := e.nodes.IsDead(nodeID)
	if err != nil {
		return err
	}
	decommissioning, err := e.nodes.IsDecommissioning(nodeID)
	if err != nil {
		return err
	}
	active, err := e.nodes.IsActive(nodeID)
	if err != nil {
		return err
	}
	if dead || decommissioning || !active {
		return nil
	}

	node, ok, err := e.nodes.ActiveObject(nodeID)
	if err != nil {
		return err
	}
	if !ok {
		e.logger.Warn().Str("nodeId", nodeID).Msg("lost a node we did not know about")
		return nil
	}

	if err := e.nodes.MarkAsDead(nodeID); err != nil {
		return err
	}

	return e.checkRackAfterNodeLoss(node)
}

func (e *Engine) checkRackAfterNodeLoss(lost machines.Node) error {
	active, err := e.nodes.ActiveObjects()
	if err != nil {
		return err
	}

	numInRack := 0
	for _, node := range active {
		if node.RackID == lost.RackID {
			numInRack++
		}
	}

	e.logger.Info().
		Int("remaining", numInRack).
		Str("rackId", lost.RackID).
		Msg("checked rack membership after node loss")

	if numInRack == 0 {
		return e.racks.MarkAsDead(lost.RackID)
	}
	return nil
}
