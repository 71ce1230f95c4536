// Package noop provides a backend which accepts all work and reports
// it complete, which is useful for testing and dry runs.
package noop

import (
	"context"

	"github.com/somaflow/somaflow/compute"
)

// NewBackend returns a new noop Backend instance.
func NewBackend() *Backend {
	return &Backend{}
}

// Backend accepts everything and completes it instantly.
type Backend struct{}

// Submit accepts the task and returns its own ID as the backend ID.
func (b *Backend) Submit(ctx context.Context, task *compute.Task) (string, error) {
	return task.ID, nil
}

// Status always reports complete.
func (b *Backend) Status(ctx context.Context, backendID string) (compute.State, error) {
	return compute.StateComplete, nil
}

// Cancel is a noop and returns nil.
func (b *Backend) Cancel(ctx context.Context, backendID string) error {
	return nil
}
