package placement

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sethgrid/pester"
)

// MasterClient supplies the orchestrator's full roster for resync passes
type MasterClient interface {
	GetRoster(ctx context.Context) ([]MasterSlave, error)
}

// HTTPMasterClient reads the roster from the master's state endpoint
type HTTPMasterClient struct {
	masterURI string
	http      *pester.Client
}

// NewHTTPMasterClient creates a roster client for the given master URI
func NewHTTPMasterClient(masterURI string, timeout time.Duration) *HTTPMasterClient {
	httpClient := pester.NewExtendedClient(&http.Client{Timeout: timeout})
	httpClient.MaxRetries = 3
	httpClient.Backoff = pester.ExponentialBackoff

	return &HTTPMasterClient{masterURI: masterURI, http: httpClient}
}

type masterState struct {
	Slaves []struct {
		ID         string            `json:"id"`
		Hostname   string            `json:"hostname"`
		Attributes map[string]string `json:"attributes"`
	} `json:"slaves"`
}

// GetRoster fetches and decodes the master's slave list
func (c *HTTPMasterClient) GetRoster(ctx context.Context) ([]MasterSlave, error) {
	url := fmt.Sprintf("%s/master/state.json", c.masterURI)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch master state: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching master state", resp.StatusCode)
	}

	var state masterState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, fmt.Errorf("failed to decode master state: %w", err)
	}

	roster := make([]MasterSlave, 0, len(state.Slaves))
	for _, slave := range state.Slaves {
		roster = append(roster, MasterSlave{
			ID:         slave.ID,
			Hostname:   slave.Hostname,
			Attributes: slave.Attributes,
		})
	}
	return roster, nil
}
