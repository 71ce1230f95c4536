// Package transfer implements the file staging subsystem. Transfers
// follow the same submit/status/cancel lifecycle as compute backends,
// so the engine dispatches and monitors FileTransfer nodes exactly
// like jobs.
package transfer

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/somaflow/somaflow/compute"
	"github.com/somaflow/somaflow/logger"
	"github.com/somaflow/somaflow/util/fsutil"
	"github.com/somaflow/somaflow/wf"
)

// Spec is a dispatch-ready file transfer: both endpoints are fully
// resolved absolute paths.
type Spec struct {
	// ID is the node ID within the workflow.
	ID         string
	WorkflowID string

	Direction wf.Direction

	// ClientPath is the client-local file or directory.
	ClientPath string
	// RemotePath is the resolved location on resource storage.
	RemotePath string

	IsDirectory bool
}

// NewService returns a new transfer Service.
func NewService(log *logger.Logger) *Service {
	return &Service{
		log:    log,
		active: map[string]*state{},
	}
}

// Service stages files between client storage and resource storage.
//
// Transfer handles live only in engine memory; after an engine
// restart the status of previously started transfers is reported as
// unknown.
type Service struct {
	log    *logger.Logger
	mtx    sync.Mutex
	active map[string]*state
}

type state struct {
	cancel context.CancelFunc
	st     compute.State
}

// Submit starts the transfer in the background. The spec ID is used
// as the backend ID.
func (s *Service) Submit(ctx context.Context, spec *Spec) (string, error) {
	src, dst := spec.ClientPath, spec.RemotePath
	if spec.Direction == wf.Download {
		src, dst = dst, src
	}

	exists, err := fsutil.Exists(src)
	if err != nil {
		return "", compute.TransientError(err)
	}
	if !exists {
		// A missing source is a property of the transfer spec, not of
		// the storage being reachable.
		return "", compute.FatalError(fmt.Errorf("transfer source %s does not exist", src))
	}

	runCtx, cancel := context.WithCancel(context.Background())
	st := &state{cancel: cancel, st: compute.StateRunning}
	s.mtx.Lock()
	s.active[spec.ID] = st
	s.mtx.Unlock()

	s.log.Info("Starting transfer",
		"transferID", spec.ID, "direction", spec.Direction.String(),
		"src", src, "dst", dst)

	go func() {
		defer cancel()
		err := s.copy(runCtx, spec, src, dst)

		s.mtx.Lock()
		defer s.mtx.Unlock()
		switch {
		case runCtx.Err() != nil:
			st.st = compute.StateCanceled
		case err != nil:
			s.log.Error("Transfer failed", "transferID", spec.ID, "error", err)
			st.st = compute.StateFailed
		default:
			st.st = compute.StateComplete
		}
	}()

	return spec.ID, nil
}

func (s *Service) copy(ctx context.Context, spec *Spec, src, dst string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() || spec.IsDirectory {
		return fsutil.CopyDir(src, dst)
	}
	return fsutil.CopyFile(src, dst)
}

// Status returns the status of a transfer started by this service.
func (s *Service) Status(ctx context.Context, backendID string) (compute.State, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	st, ok := s.active[backendID]
	if !ok {
		return compute.StateUnknown, nil
	}
	return st.st, nil
}

// Cancel aborts a running transfer.
func (s *Service) Cancel(ctx context.Context, backendID string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if st, ok := s.active[backendID]; ok {
		st.cancel()
	}
	return nil
}
