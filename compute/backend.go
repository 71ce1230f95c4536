// Package compute defines the uniform backend adapter contract the
// engine uses to drive heterogeneous resource managers. The engine
// core never branches on resource-manager identity; it only calls
// through the Backend interface.
package compute

import (
	"context"
	"fmt"

	"github.com/somaflow/somaflow/wf"
)

// Task is a dispatch-ready job specification. All symbolic paths have
// been resolved against the target resource before a Task is built.
type Task struct {
	// ID is the node ID within the workflow.
	ID         string
	WorkflowID string
	Name       string

	// Command is the fully resolved argument list.
	Command []string

	// WorkDir is the job working directory on the resource.
	WorkDir string

	Stdin  string
	Stdout string
	Stderr string

	Resources  wf.Resources
	NativeSpec string
}

// State is the resource-manager-independent status of dispatched
// backend work. Adapters map their manager's own states onto it.
type State int32

const (
	// StateUnknown means the backend could not determine the status.
	StateUnknown State = iota
	// StateQueued means the work is accepted but not yet running.
	StateQueued
	// StateRunning means the work is executing.
	StateRunning
	// StateComplete means the work finished successfully.
	StateComplete
	// StateFailed means the work finished unsuccessfully.
	StateFailed
	// StateCanceled means the work was canceled.
	StateCanceled
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "QUEUED"
	case StateRunning:
		return "RUNNING"
	case StateComplete:
		return "COMPLETE"
	case StateFailed:
		return "FAILED"
	case StateCanceled:
		return "CANCELED"
	}
	return "UNKNOWN"
}

// Terminal returns true for states which end the backend lifecycle.
func (s State) Terminal() bool {
	switch s {
	case StateComplete, StateFailed, StateCanceled:
		return true
	}
	return false
}

// Backend is the capability set implemented per resource manager:
// submit work, query its status, cancel it. Calls may block on the
// network and are always issued by the engine outside of any lock
// over graph state, with a bounded timeout.
type Backend interface {
	// Submit submits a task and returns the backend's own job ID.
	Submit(ctx context.Context, task *Task) (string, error)

	// Status queries the status of previously submitted work.
	// A query error never implies job failure.
	Status(ctx context.Context, backendID string) (State, error)

	// Cancel requests cancellation of previously submitted work.
	// Best effort; the terminal state is observed via Status.
	Cancel(ctx context.Context, backendID string) error
}

// ErrNoBackend is returned when a task targets a resource with no
// configured backend.
func ErrNoBackend(resource string) error {
	return FatalError(fmt.Errorf("no backend configured for resource %q", resource))
}
