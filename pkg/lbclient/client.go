package lbclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethgrid/pester"

	"github.com/sparkw/Singularity/pkg/upstream"
)

// Client implements upstream.LoadBalancerClient against the load balancer's
// HTTP API. Wire-level retries live here, in the collaborator, so the core
// reconciliation logic stays retry-free.
type Client struct {
	baseURI string
	http    *pester.Client
	logger  zerolog.Logger
}

// New creates a load-balancer client
func New(baseURI string, timeout time.Duration, logger zerolog.Logger) *Client {
	httpClient := pester.NewExtendedClient(&http.Client{Timeout: timeout})
	httpClient.MaxRetries = 3
	httpClient.Backoff = pester.ExponentialBackoff

	return &Client{
		baseURI: baseURI,
		http:    httpClient,
		logger:  logger.With().Str("component", "lb-client").Logger(),
	}
}

// updateRequest is the submission body for an upstream change
type updateRequest struct {
	LoadBalancerRequestID string                  `json:"loadBalancerRequestId"`
	AddUpstreams          []upstream.UpstreamInfo `json:"addUpstreams"`
	RemoveUpstreams       []upstream.UpstreamInfo `json:"removeUpstreams"`
}

type updateResponse struct {
	State   upstream.UpdateState `json:"state"`
	Message string               `json:"message"`
}

// GetUpstreamsForTasks computes the upstream set implied by the given running
// tasks, scoped to the deploy's upstream group when one is configured.
func (c *Client) GetUpstreamsForTasks(_ context.Context, tasks []upstream.Task, _ string, group string) ([]upstream.UpstreamInfo, error) {
	upstreams := make([]upstream.UpstreamInfo, 0, len(tasks))
	for _, task := range tasks {
		upstreams = append(upstreams, upstream.UpstreamInfo{
			Upstream: fmt.Sprintf("%s:%d", task.Host, task.Port),
			Group:    group,
			RackID:   task.RackID,
		})
	}
	return upstreams, nil
}

// GetRecordedUpstreams fetches the load balancer's current upstream set for
// the given request identity. An unknown request yields an empty set.
func (c *Client) GetRecordedUpstreams(ctx context.Context, lbRequestID string) ([]upstream.UpstreamInfo, error) {
	url := fmt.Sprintf("%s/upstreams/%s", c.baseURI, lbRequestID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch upstreams for %s: %w", lbRequestID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching upstreams for %s", resp.StatusCode, lbRequestID)
	}

	var upstreams []upstream.UpstreamInfo
	if err := json.NewDecoder(resp.Body).Decode(&upstreams); err != nil {
		return nil, fmt.Errorf("failed to decode upstreams for %s: %w", lbRequestID, err)
	}
	return upstreams, nil
}

// SubmitRemoval asks the load balancer to drop the given upstreams
func (c *Client) SubmitRemoval(ctx context.Context, lbRequestID string, remove []upstream.UpstreamInfo) (upstream.UpdateResult, error) {
	body, err := json.Marshal(updateRequest{
		LoadBalancerRequestID: lbRequestID,
		AddUpstreams:          []upstream.UpstreamInfo{},
		RemoveUpstreams:       remove,
	})
	if err != nil {
		return upstream.UpdateResult{}, err
	}

	url := fmt.Sprintf("%s/request", c.baseURI)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return upstream.UpdateResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return upstream.UpdateResult{}, fmt.Errorf("failed to submit removal for %s: %w", lbRequestID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return upstream.UpdateResult{}, fmt.Errorf("unexpected status %d submitting removal for %s", resp.StatusCode, lbRequestID)
	}

	var update updateResponse
	if err := json.NewDecoder(resp.Body).Decode(&update); err != nil {
		return upstream.UpdateResult{}, fmt.Errorf("failed to decode removal response for %s: %w", lbRequestID, err)
	}

	c.logger.Debug().
		Str("lbRequestId", lbRequestID).
		Int("removed", len(remove)).
		Str("state", string(update.State)).
		Msg("submitted removal request")

	return upstream.UpdateResult{State: update.State, Message: update.Message}, nil
}
