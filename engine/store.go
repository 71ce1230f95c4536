package engine

import (
	"context"
	"time"

	"github.com/somaflow/somaflow/events"
	"github.com/somaflow/somaflow/wf"
)

// NodeRecord is the persisted state of a single workflow node.
type NodeRecord struct {
	State wf.State `json:"state"`

	// Origin is the node whose failure caused a NOT_RUN state, or a
	// short reason such as "stop".
	Origin string `json:"origin,omitempty"`

	// BackendID is the resource manager's own ID for dispatched work.
	BackendID string `json:"backendId,omitempty"`

	// Stdout and Stderr are the locations of the job's output files,
	// recorded at dispatch.
	Stdout string `json:"stdout,omitempty"`
	Stderr string `json:"stderr,omitempty"`

	Updated time.Time `json:"updated,omitempty"`
}

// Store is the interface to workflow persistence used by the engine.
// It exists so the engine can survive restarts: workflows and
// node-state snapshots are reloaded and monitoring of in-flight nodes
// resumes without re-dispatching already-dispatched work.
type Store interface {
	// CreateWorkflow stores a newly submitted workflow.
	CreateWorkflow(ctx context.Context, w *wf.Workflow) error

	// GetWorkflow returns a stored workflow, or wf.ErrNotFound.
	GetWorkflow(ctx context.Context, id string) (*wf.Workflow, error)

	// ListWorkflows returns all stored workflows.
	ListWorkflows(ctx context.Context) ([]*wf.Workflow, error)

	// DeleteWorkflow removes a workflow, its node records, and its
	// events.
	DeleteWorkflow(ctx context.Context, id string) error

	// PutNode stores the record of one node.
	PutNode(ctx context.Context, workflowID, nodeID string, rec *NodeRecord) error

	// GetNodes returns the records of all nodes of a workflow.
	GetNodes(ctx context.Context, workflowID string) (map[string]*NodeRecord, error)

	// Close releases the store.
	Close() error
}

// EventLister is implemented by stores which also keep the workflow
// event log.
type EventLister interface {
	ListEvents(ctx context.Context, workflowID string) ([]*events.Event, error)
}
