// Package client provides an HTTP client for the somaflow server API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/somaflow/somaflow/engine"
	"github.com/somaflow/somaflow/events"
	"github.com/somaflow/somaflow/util"
	"github.com/somaflow/somaflow/wf"
)

// NewClient returns a new HTTP client for the workflow API. "address"
// is the address of the somaflow server.
func NewClient(address string) (*Client, error) {
	re := regexp.MustCompile("^(.+://)?(.[^/]+)(.+)?$")
	endpoint := re.ReplaceAllString(address, "$1$2")

	reScheme := regexp.MustCompile("^.+://")
	if reScheme.MatchString(endpoint) {
		if !strings.HasPrefix(endpoint, "http") {
			return nil, fmt.Errorf("invalid protocol: '%s'; expected: 'http://' or 'https://'", reScheme.FindString(endpoint))
		}
	} else {
		endpoint = "http://" + endpoint
	}

	return &Client{
		address: endpoint,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

// Client represents the HTTP workflow client.
type Client struct {
	address string
	client  *http.Client
}

// Submit POSTs a workflow to /v1/workflows and returns the assigned
// workflow ID.
func (c *Client) Submit(ctx context.Context, w *wf.Workflow) (string, error) {
	if err := wf.Validate(w); err != nil {
		return "", fmt.Errorf("invalid workflow: %v", err)
	}

	var b bytes.Buffer
	if err := json.NewEncoder(&b).Encode(w); err != nil {
		return "", fmt.Errorf("error marshaling workflow: %v", err)
	}

	body, err := c.do(ctx, "POST", "/v1/workflows", &b)
	if err != nil {
		return "", err
	}
	resp := struct {
		ID string `json:"id"`
	}{}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// List returns workflow status summaries from GET /v1/workflows.
func (c *Client) List(ctx context.Context) ([]*engine.WorkflowStatus, error) {
	body, err := c.do(ctx, "GET", "/v1/workflows", nil)
	if err != nil {
		return nil, err
	}
	var out []*engine.WorkflowStatus
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Status returns the status of a workflow from GET /v1/workflows/{id}.
func (c *Client) Status(ctx context.Context, id string) (*engine.WorkflowStatus, error) {
	body, err := c.do(ctx, "GET", "/v1/workflows/"+id, nil)
	if err != nil {
		return nil, err
	}
	out := &engine.WorkflowStatus{}
	if err := json.Unmarshal(body, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Definition returns the stored workflow document.
func (c *Client) Definition(ctx context.Context, id string) (*wf.Workflow, error) {
	body, err := c.do(ctx, "GET", "/v1/workflows/"+id+"/definition", nil)
	if err != nil {
		return nil, err
	}
	out := &wf.Workflow{}
	if err := json.Unmarshal(body, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Events returns the event log of a workflow.
func (c *Client) Events(ctx context.Context, id string) ([]*events.Event, error) {
	body, err := c.do(ctx, "GET", "/v1/workflows/"+id+"/events", nil)
	if err != nil {
		return nil, err
	}
	var out []*events.Event
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Stop POSTs to /v1/workflows/{id}/stop.
func (c *Client) Stop(ctx context.Context, id string) error {
	_, err := c.do(ctx, "POST", "/v1/workflows/"+id+"/stop", nil)
	return err
}

// Kill POSTs to /v1/workflows/{id}/kill.
func (c *Client) Kill(ctx context.Context, id string) error {
	_, err := c.do(ctx, "POST", "/v1/workflows/"+id+"/kill", nil)
	return err
}

// Restart POSTs to /v1/workflows/{id}/restart.
func (c *Client) Restart(ctx context.Context, id string) error {
	_, err := c.do(ctx, "POST", "/v1/workflows/"+id+"/restart", nil)
	return err
}

// Delete removes a workflow via DELETE /v1/workflows/{id}.
func (c *Client) Delete(ctx context.Context, id string) error {
	_, err := c.do(ctx, "DELETE", "/v1/workflows/"+id, nil)
	return err
}

// WaitForWorkflow polls /v1/workflows/{id} for each ID provided and
// returns once all workflows are in a terminal state.
func (c *Client) WaitForWorkflow(ctx context.Context, ids ...string) error {
	tick := time.NewTicker(time.Second * 2)
	defer tick.Stop()
	for {
		done := true
		for _, id := range ids {
			s, err := c.Status(ctx, id)
			if err != nil {
				return err
			}
			if !s.Terminal() {
				done = false
				break
			}
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body *bytes.Buffer) ([]byte, error) {
	var hreq *http.Request
	var err error
	if body != nil {
		hreq, err = http.NewRequestWithContext(ctx, method, c.address+path, body)
		if hreq != nil {
			hreq.Header.Add("Content-Type", "application/json")
		}
	} else {
		hreq, err = http.NewRequestWithContext(ctx, method, c.address+path, nil)
	}
	if err != nil {
		return nil, err
	}
	return util.CheckHTTPResponse(c.client.Do(hreq))
}
