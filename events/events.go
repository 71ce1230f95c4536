// Package events defines workflow and node state-change events and
// the writers which record them.
package events

import (
	"context"
	"time"

	"github.com/somaflow/somaflow/wf"
)

// Type tags the kind of an event.
type Type string

const (
	// TypeWorkflowCreated is written once at submission.
	TypeWorkflowCreated Type = "WORKFLOW_CREATED"
	// TypeWorkflowState records a workflow-level state change.
	TypeWorkflowState Type = "WORKFLOW_STATE"
	// TypeNodeState records a node state change.
	TypeNodeState Type = "NODE_STATE"
	// TypeSystemLog records an engine-internal message about a
	// workflow or node, e.g. an escalation to unknown status.
	TypeSystemLog Type = "SYSTEM_LOG"
)

// Event describes a single state change or system message for a
// workflow or one of its nodes.
type Event struct {
	WorkflowID string            `json:"workflowId"`
	NodeID     string            `json:"nodeId,omitempty"`
	Type       Type              `json:"type"`
	State      string            `json:"state,omitempty"`
	// Origin is the node whose failure caused this change, for
	// NOT_RUN nodes.
	Origin    string            `json:"origin,omitempty"`
	Level     string            `json:"level,omitempty"`
	Msg       string            `json:"msg,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewWorkflowCreated returns a WORKFLOW_CREATED event.
func NewWorkflowCreated(workflowID string) *Event {
	return &Event{
		WorkflowID: workflowID,
		Type:       TypeWorkflowCreated,
		Timestamp:  time.Now(),
	}
}

// NewWorkflowState returns a WORKFLOW_STATE event.
func NewWorkflowState(workflowID, state string) *Event {
	return &Event{
		WorkflowID: workflowID,
		Type:       TypeWorkflowState,
		State:      state,
		Timestamp:  time.Now(),
	}
}

// NewNodeState returns a NODE_STATE event.
func NewNodeState(workflowID, nodeID string, state wf.State, origin string) *Event {
	return &Event{
		WorkflowID: workflowID,
		NodeID:     nodeID,
		Type:       TypeNodeState,
		State:      state.String(),
		Origin:     origin,
		Timestamp:  time.Now(),
	}
}

// NewSystemLog returns a SYSTEM_LOG event.
func NewSystemLog(workflowID, nodeID, level, msg string, fields map[string]string) *Event {
	return &Event{
		WorkflowID: workflowID,
		NodeID:     nodeID,
		Type:       TypeSystemLog,
		Level:      level,
		Msg:        msg,
		Fields:     fields,
		Timestamp:  time.Now(),
	}
}

// Writer provides write access to workflow events.
type Writer interface {
	WriteEvent(ctx context.Context, ev *Event) error
}

type multiwriter []Writer

// MultiWriter writes events to all the given writers.
func MultiWriter(ws ...Writer) Writer {
	return multiwriter(ws)
}

// WriteEvent writes an event to all the writers.
func (mw multiwriter) WriteEvent(ctx context.Context, ev *Event) error {
	for _, w := range mw {
		if err := w.WriteEvent(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

type discard struct{}

func (discard) WriteEvent(context.Context, *Event) error {
	return nil
}

// Discard is a writer which discards all events.
var Discard = discard{}
