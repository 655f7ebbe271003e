package upstream

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/moby/locker"
	"github.com/rs/zerolog"

	"github.com/sparkw/Singularity/pkg/metrics"
)

// Checker reconciles the load balancer's recorded upstream set against the
// upstreams implied by actually running tasks, and submits removal requests
// for the stale remainder.
//
// One invocation runs one pass. No retry or inline confirmation loop exists
// here; a failed request's staleness is re-detected on the next pass. A keyed
// lock serializes overlapping passes per request id so two passes never race
// removal decisions for the same request.
type Checker struct {
	lb       LoadBalancerClient
	tasks    TaskManager
	requests RequestManager
	deploys  DeployManager

	locks  *locker.Locker
	logger zerolog.Logger
}

// NewChecker creates an upstream checker
func NewChecker(lb LoadBalancerClient, tasks TaskManager, requests RequestManager, deploys DeployManager, logger zerolog.Logger) *Checker {
	return &Checker{
		lb:       lb,
		tasks:    tasks,
		requests: requests,
		deploys:  deploys,
		locks:    locker.New(),
		logger:   logger.With().Str("component", "upstream-checker").Logger(),
	}
}

// RemoveRequestID is the canonical load-balancer identity for removal
// operations on a request
func RemoveRequestID(requestID string) string {
	return requestID + "-REMOVE"
}

// ExtraUpstreams returns the recorded entries not implied by any running
// task. Every recorded entry matching an implied entry on the full 3-tuple
// is dropped; when several recorded entries match one implied entry, all of
// them are dropped. That remove-all-matches behavior is deliberate and
// unresolved product intent, not a bug to fix here.
func ExtraUpstreams(recorded, implied []UpstreamInfo) []UpstreamInfo {
	extra := make([]UpstreamInfo, 0, len(recorded))

	for _, candidate := range recorded {
		matched := false
		for _, in := range implied {
			if candidate.Equal(in) {
				matched = true
				break
			}
		}
		if !matched {
			extra = append(extra, candidate)
		}
	}
	return extra
}

// SyncUpstreams runs one reconciliation pass over every active load-balanced
// request with a resolved in-use deploy. A failure syncing one request is
// logged and counted but does not abort the pass.
func (c *Checker) SyncUpstreams(ctx context.Context) error {
	passID := uuid.New().String()
	start := time.Now()
	logger := c.logger.With().Str("pass", passID).Logger()

	requests, err := c.requests.GetActiveRequests(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active requests: %w", err)
	}

	for _, request := range requests {
		if !request.LoadBalanced {
			continue
		}

		if err := c.syncRequest(ctx, request.ID, logger); err != nil {
			metrics.UpstreamSyncPassesTotal.WithLabelValues("error").Inc()
			logger.Error().Err(err).Str("requestId", request.ID).Msg("failed to sync upstreams")
			continue
		}
		metrics.UpstreamSyncPassesTotal.WithLabelValues("ok").Inc()
	}

	metrics.UpstreamSyncDuration.Observe(time.Since(start).Seconds())
	return nil
}

func (c *Checker) syncRequest(ctx context.Context, requestID string, logger zerolog.Logger) error {
	c.locks.Lock(requestID)
	defer c.locks.Unlock(requestID)

	deployID, ok, err := c.deploys.GetInUseDeployID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("failed to resolve in-use deploy id: %w", err)
	}
	if !ok {
		// nothing to reconcile against
		return nil
	}

	deploy, ok, err := c.deploys.GetDeploy(ctx, requestID, deployID)
	if err != nil {
		return fmt.Errorf("failed to resolve deploy %s: %w", deployID, err)
	}
	if !ok {
		return nil
	}

	lbRequestID := RemoveRequestID(requestID)

	recorded, err := c.lb.GetRecordedUpstreams(ctx, lbRequestID)
	if err != nil {
		return fmt.Errorf("failed to fetch recorded upstreams: %w", err)
	}

	tasks, err := c.tasks.GetActiveTasksForRequest(ctx, requestID)
	if err != nil {
		return fmt.Errorf("failed to list active tasks: %w", err)
	}

	implied, err := c.lb.GetUpstreamsForTasks(ctx, tasks, requestID, deploy.LoadBalancerUpstreamGroup)
	if err != nil {
		return fmt.Errorf("failed to compute implied upstreams: %w", err)
	}

	extra := ExtraUpstreams(recorded, implied)
	if len(extra) == 0 {
		logger.Debug().Str("requestId", requestID).Msg("upstreams already in sync")
		return nil
	}

	result, err := c.lb.SubmitRemoval(ctx, lbRequestID, extra)
	if err != nil {
		return fmt.Errorf("failed to submit removal: %w", err)
	}
	if result.State != UpdateSuccess {
		return fmt.Errorf("removal not confirmed: state %s: %s", result.State, result.Message)
	}

	metrics.ExtraUpstreamsRemovedTotal.Add(float64(len(extra)))
	logger.Info().
		Str("requestId", requestID).
		Int("removed", len(extra)).
		Msg("removed extra upstreams")
	return nil
}
