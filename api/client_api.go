// Package api - API-Methoden des Clients.

package api

import (
	"context"
	"net/http"
	"net/url"
)

// Heartbeat checks if the server has started and is responsive; if yes, it
// returns nil, otherwise an error.
func (c *Client) Heartbeat(ctx context.Context) error {
	return c.do(ctx, http.MethodHead, "/", nil, nil, nil)
}

// ListRuns lists recorded training runs, newest first.
func (c *Client) ListRuns(ctx context.Context) (*ListRunsResponse, error) {
	var resp ListRunsResponse
	if err := c.do(ctx, http.MethodGet, "/api/runs", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ShowRun returns a single run including its config and result.
func (c *Client) ShowRun(ctx context.Context, id string) (*ShowRunResponse, error) {
	var resp ShowRunResponse
	if err := c.do(ctx, http.MethodGet, "/api/runs/"+url.PathEscape(id), nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Metrics returns the logged metrics of a run. Names restricts the result
// to the given metric names.
func (c *Client) Metrics(ctx context.Context, id string, names ...string) (*MetricsResponse, error) {
	var query url.Values
	if len(names) > 0 {
		query = url.Values{"name": names}
	}

	var resp MetricsResponse
	if err := c.do(ctx, http.MethodGet, "/api/runs/"+url.PathEscape(id)+"/metrics", query, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Probes returns the probe tables recorded for a run.
func (c *Client) Probes(ctx context.Context, id string) (*ProbesResponse, error) {
	var resp ProbesResponse
	if err := c.do(ctx, http.MethodGet, "/api/runs/"+url.PathEscape(id)+"/probes", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteRun removes a run with all of its metrics and probes.
func (c *Client) DeleteRun(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/runs/"+url.PathEscape(id), nil, nil, nil)
}
