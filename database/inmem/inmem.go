// Package inmem implements workflow storage in process memory, for
// tests and throwaway deployments. Nothing survives a restart.
package inmem

import (
	"context"
	"sync"

	"github.com/somaflow/somaflow/engine"
	"github.com/somaflow/somaflow/events"
	"github.com/somaflow/somaflow/wf"
)

// InMem stores workflows, node records, and events in memory. It
// implements engine.Store, engine.EventLister, and events.Writer.
type InMem struct {
	mtx       sync.Mutex
	workflows map[string]*wf.Workflow
	nodes     map[string]map[string]*engine.NodeRecord
	events    map[string][]*events.Event
}

// NewInMem returns an empty in-memory store.
func NewInMem() *InMem {
	return &InMem{
		workflows: map[string]*wf.Workflow{},
		nodes:     map[string]map[string]*engine.NodeRecord{},
		events:    map[string][]*events.Event{},
	}
}

// CreateWorkflow stores a newly submitted workflow.
func (m *InMem) CreateWorkflow(ctx context.Context, w *wf.Workflow) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.workflows[w.ID] = w
	return nil
}

// GetWorkflow returns a stored workflow, or wf.ErrNotFound.
func (m *InMem) GetWorkflow(ctx context.Context, id string) (*wf.Workflow, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	w, ok := m.workflows[id]
	if !ok {
		return nil, wf.ErrNotFound
	}
	return w, nil
}

// ListWorkflows returns all stored workflows.
func (m *InMem) ListWorkflows(ctx context.Context) ([]*wf.Workflow, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	var out []*wf.Workflow
	for _, w := range m.workflows {
		out = append(out, w)
	}
	return out, nil
}

// DeleteWorkflow removes a workflow and everything stored about it.
func (m *InMem) DeleteWorkflow(ctx context.Context, id string) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	delete(m.workflows, id)
	delete(m.nodes, id)
	delete(m.events, id)
	return nil
}

// PutNode stores the record of one node.
func (m *InMem) PutNode(ctx context.Context, workflowID, nodeID string, rec *engine.NodeRecord) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	recs, ok := m.nodes[workflowID]
	if !ok {
		recs = map[string]*engine.NodeRecord{}
		m.nodes[workflowID] = recs
	}
	recs[nodeID] = rec
	return nil
}

// GetNodes returns the records of all nodes of a workflow.
func (m *InMem) GetNodes(ctx context.Context, workflowID string) (map[string]*engine.NodeRecord, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	out := map[string]*engine.NodeRecord{}
	for id, rec := range m.nodes[workflowID] {
		out[id] = rec
	}
	return out, nil
}

// WriteEvent appends an event to the workflow's event log.
func (m *InMem) WriteEvent(ctx context.Context, ev *events.Event) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.events[ev.WorkflowID] = append(m.events[ev.WorkflowID], ev)
	return nil
}

// ListEvents returns the events of a workflow in write order.
func (m *InMem) ListEvents(ctx context.Context, workflowID string) ([]*events.Event, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	out := make([]*events.Event, len(m.events[workflowID]))
	copy(out, m.events[workflowID])
	return out, nil
}

// Close implements engine.Store.
func (m *InMem) Close() error {
	return nil
}
