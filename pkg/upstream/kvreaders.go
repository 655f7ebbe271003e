package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sparkw/Singularity/pkg/kvstore"
	"github.com/sparkw/Singularity/pkg/machines"
)

// Read-only adapters over the coordination store for the request, task, and
// deploy metadata written by the scheduling loop. Layout:
//
//	{root}/requests/{requestId}          request JSON
//	{root}/tasks/{requestId}/{taskId}    task JSON
//	{root}/deploys/{requestId}/in-use    in-use deploy id (raw)
//	{root}/deploys/{requestId}/{deployId} deploy JSON
//
// Request and deploy ids are sanitized at this boundary before use as path
// segments, so a sanitized deploy id never contains a dash and cannot collide
// with the reserved "in-use" key.

// KVRequestManager reads requests from the coordination store
type KVRequestManager struct {
	store kvstore.Store
	root  string
}

// NewKVRequestManager creates a request reader rooted at root
func NewKVRequestManager(store kvstore.Store, root string) *KVRequestManager {
	return &KVRequestManager{store: store, root: root}
}

// GetActiveRequests lists every persisted request
func (m *KVRequestManager) GetActiveRequests(_ context.Context) ([]Request, error) {
	base := kvstore.JoinPath(m.root, "requests")

	ids, err := m.store.ListChildren(base)
	if err != nil {
		return nil, err
	}

	requests := make([]Request, 0, len(ids))
	for _, id := range ids {
		data, err := m.store.Get(kvstore.JoinPath(base, id))
		if errors.Is(err, kvstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		var request Request
		if err := json.Unmarshal(data, &request); err != nil {
			return nil, fmt.Errorf("failed to decode request %s: %w", id, err)
		}
		requests = append(requests, request)
	}
	return requests, nil
}

// KVTaskManager reads active tasks from the coordination store
type KVTaskManager struct {
	store kvstore.Store
	root  string
}

// NewKVTaskManager creates a task reader rooted at root
func NewKVTaskManager(store kvstore.Store, root string) *KVTaskManager {
	return &KVTaskManager{store: store, root: root}
}

// GetActiveTasksForRequest lists the running tasks recorded for a request
func (m *KVTaskManager) GetActiveTasksForRequest(_ context.Context, requestID string) ([]Task, error) {
	base := kvstore.JoinPath(m.root, "tasks", machines.SafeID(requestID))

	ids, err := m.store.ListChildren(base)
	if err != nil {
		return nil, err
	}

	tasks := make([]Task, 0, len(ids))
	for _, id := range ids {
		data, err := m.store.Get(kvstore.JoinPath(base, id))
		if errors.Is(err, kvstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		var task Task
		if err := json.Unmarshal(data, &task); err != nil {
			return nil, fmt.Errorf("failed to decode task %s: %w", id, err)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// KVDeployManager reads deploy metadata from the coordination store
type KVDeployManager struct {
	store kvstore.Store
	root  string
}

// NewKVDeployManager creates a deploy reader rooted at root
func NewKVDeployManager(store kvstore.Store, root string) *KVDeployManager {
	return &KVDeployManager{store: store, root: root}
}

// GetInUseDeployID resolves the request's in-use deploy id, if any
func (m *KVDeployManager) GetInUseDeployID(_ context.Context, requestID string) (string, bool, error) {
	data, err := m.store.Get(kvstore.JoinPath(m.root, "deploys", machines.SafeID(requestID), "in-use"))
	if errors.Is(err, kvstore.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if len(data) == 0 {
		return "", false, nil
	}
	return string(data), true, nil
}

// GetDeploy resolves one deploy's metadata, if present
func (m *KVDeployManager) GetDeploy(_ context.Context, requestID, deployID string) (Deploy, bool, error) {
	data, err := m.store.Get(kvstore.JoinPath(m.root, "deploys", machines.SafeID(requestID), machines.SafeID(deployID)))
	if errors.Is(err, kvstore.ErrNotFound) {
		return Deploy{}, false, nil
	}
	if err != nil {
		return Deploy{}, false, err
	}

	var deploy Deploy
	if err := json.Unmarshal(data, &deploy); err != nil {
		return Deploy{}, false, fmt.Errorf("failed to decode deploy %s/%s: %w", requestID, deployID, err)
	}
	return deploy, true, nil
}
