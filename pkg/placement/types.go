package placement

// Offer is one unit of cluster resource availability presented by the
// orchestrator for a specific node. Only the fields this core consumes are
// modeled; resource amounts belong to the external scheduling loop.
type Offer struct {
	AgentID    string
	Hostname   string
	Attributes map[string]string
}

// MasterSlave is one entry of the orchestrator's full-roster snapshot
type MasterSlave struct {
	ID         string
	Hostname   string
	Attributes map[string]string
}

// TaskID identifies a running task together with where it runs
type TaskID struct {
	RequestID string
	Host      string
	RackID    string
}

// TaskRequest is a pending request whose placement is being evaluated
type TaskRequest struct {
	RequestID     string
	PendingTaskID string
	Instances     int
	RackSensitive bool
}

// RackCheckState is the placement verdict for one offer evaluation
type RackCheckState string

const (
	AlreadyOnNode       RackCheckState = "ALREADY_ON_NODE"
	RackSaturated       RackCheckState = "RACK_SATURATED"
	RackOK              RackCheckState = "RACK_OK"
	NotRackSensitive    RackCheckState = "NOT_RACK_SENSITIVE"
	NodeDecommissioning RackCheckState = "NODE_DECOMMISSIONING"
	RackDecommissioning RackCheckState = "RACK_DECOMMISSIONING"
)

// Acceptable reports whether the verdict permits placement
func (s RackCheckState) Acceptable() bool {
	return s == RackOK || s == NotRackSensitive
}

// DiscoveryResult classifies the outcome of registering an offered node
type DiscoveryResult string

const (
	DiscoveryNodeDecommissioning DiscoveryResult = "NODE_DECOMMISSIONING"
	DiscoveryRackDecommissioning DiscoveryResult = "RACK_DECOMMISSIONING"
	DiscoveryNewRack             DiscoveryResult = "NEW_RACK"
	DiscoveryActive              DiscoveryResult = "ACTIVE"
)
