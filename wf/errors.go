package wf

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a workflow or node isn't found.
var ErrNotFound = errors.New("not found")

// CyclicDependencyError is returned at submission time when the
// dependency edges of a workflow contain a cycle. The workflow is
// rejected before any node is dispatched.
type CyclicDependencyError struct {
	// Cycle holds the IDs of the nodes involved in the cycle.
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("workflow dependencies contain a cycle involving: %s",
		strings.Join(e.Cycle, ", "))
}

// InvalidStateError is returned when a control operation is attempted
// in an incompatible workflow state.
type InvalidStateError struct {
	Op         string
	WorkflowID string
	Reason     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s workflow %s: %s", e.Op, e.WorkflowID, e.Reason)
}

// ValidationError is returned when a workflow fails static validation
// at submission time.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid workflow: " + e.Reason
}
