package upstream

import "context"

// UpstreamInfo is one load-balancer-visible registration. Equality for
// reconciliation purposes is the full 3-tuple, never identity.
type UpstreamInfo struct {
	Upstream string `json:"upstream"`
	Group    string `json:"group"`
	RackID   string `json:"rackId"`
}

// Equal reports 3-tuple equality
func (u UpstreamInfo) Equal(other UpstreamInfo) bool {
	return u.Upstream == other.Upstream && u.Group == other.Group && u.RackID == other.RackID
}

// Task is a running task instance consumed read-only from the task store
type Task struct {
	ID     string `json:"id"`
	Host   string `json:"host"`
	RackID string `json:"rackId"`
	Port   int    `json:"port"`
}

// Request is a user request consumed read-only from the request store
type Request struct {
	ID           string `json:"id"`
	LoadBalanced bool   `json:"loadBalanced"`
}

// Deploy is the resolved in-use deploy for a request
type Deploy struct {
	ID                        string `json:"id"`
	LoadBalancerUpstreamGroup string `json:"loadBalancerUpstreamGroup"`
}

// UpdateState is the load balancer's reported outcome for a submitted request
type UpdateState string

const (
	UpdateSuccess UpdateState = "SUCCESS"
	UpdateWaiting UpdateState = "WAITING"
	UpdateFailed  UpdateState = "FAILED"
)

// UpdateResult is returned by the load balancer for a removal submission
type UpdateResult struct {
	State   UpdateState
	Message string
}

// TaskManager is the active-task store collaborator
type TaskManager interface {
	GetActiveTasksForRequest(ctx context.Context, requestID string) ([]Task, error)
}

// RequestManager is the request store collaborator
type RequestManager interface {
	GetActiveRequests(ctx context.Context) ([]Request, error)
}

// DeployManager is the deploy-metadata store collaborator
type DeployManager interface {
	GetInUseDeployID(ctx context.Context, requestID string) (string, bool, error)
	GetDeploy(ctx context.Context, requestID, deployID string) (Deploy, bool, error)
}

// LoadBalancerClient is the load-balancer service collaborator
type LoadBalancerClient interface {
	GetUpstreamsForTasks(ctx context.Context, tasks []Task, requestID, group string) ([]UpstreamInfo, error)
	GetRecordedUpstreams(ctx context.Context, lbRequestID string) ([]UpstreamInfo, error)
	SubmitRemoval(ctx context.Context, lbRequestID string, remove []UpstreamInfo) (UpdateResult, error)
}
