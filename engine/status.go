package engine

import (
	"time"

	"github.com/somaflow/somaflow/wf"
)

// Workflow-level states derived from node states.
const (
	// WorkflowActive means nodes are pending, ready, or in flight.
	WorkflowActive = "ACTIVE"
	// WorkflowDone means every node completed successfully.
	WorkflowDone = "DONE"
	// WorkflowFailed means every node is terminal and at least one
	// failed.
	WorkflowFailed = "FAILED"
	// WorkflowKilled means every node is terminal, none failed, and
	// at least one was killed.
	WorkflowKilled = "KILLED"
	// WorkflowStopped means every node is terminal, none failed or
	// was killed, and at least one was skipped.
	WorkflowStopped = "STOPPED"
)

// NodeStatus is the observable status of one node.
type NodeStatus struct {
	ID        string   `json:"id"`
	Name      string   `json:"name,omitempty"`
	Kind      string   `json:"kind"`
	State     wf.State `json:"state"`
	Origin    string   `json:"origin,omitempty"`
	BackendID string   `json:"backendId,omitempty"`
	Stdout    string   `json:"stdout,omitempty"`
	Stderr    string   `json:"stderr,omitempty"`
}

// WorkflowStatus is the observable status of a workflow and its
// nodes.
type WorkflowStatus struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	State   string    `json:"state"`
	Created time.Time `json:"created,omitempty"`

	// Counts holds the number of nodes per state name.
	Counts map[string]int `json:"counts,omitempty"`

	Nodes []NodeStatus `json:"nodes,omitempty"`

	// Groups is the presentation tree declared at construction.
	Groups []wf.Group `json:"groups,omitempty"`
}

// Terminal returns true when the workflow is in a terminal state.
func (s *WorkflowStatus) Terminal() bool {
	switch s.State {
	case WorkflowDone, WorkflowFailed, WorkflowKilled, WorkflowStopped:
		return true
	}
	return false
}

// deriveState derives the workflow-level state from node state
// counts.
func deriveState(counts map[wf.State]int) string {
	terminal := 0
	total := 0
	for st, n := range counts {
		total += n
		if st.Terminal() {
			terminal += n
		}
	}
	if total == 0 || terminal < total {
		return WorkflowActive
	}
	switch {
	case counts[wf.Failed] > 0:
		return WorkflowFailed
	case counts[wf.Killed] > 0:
		return WorkflowKilled
	case counts[wf.NotRun] > 0:
		return WorkflowStopped
	}
	return WorkflowDone
}

func countStrings(counts map[wf.State]int) map[string]int {
	out := map[string]int{}
	for st, n := range counts {
		if n > 0 {
			out[st.String()] = n
		}
	}
	return out
}
