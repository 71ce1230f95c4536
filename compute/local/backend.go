// Package local provides a backend which executes jobs directly on
// the engine host, without a resource manager. Useful for local
// machines and testing.
package local

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/somaflow/somaflow/compute"
	"github.com/somaflow/somaflow/logger"
	"github.com/somaflow/somaflow/util/fsutil"
)

// NewBackend returns a new local Backend instance.
func NewBackend(log *logger.Logger) *Backend {
	return &Backend{
		log:   log,
		procs: map[string]*proc{},
	}
}

// Backend executes tasks as child processes of the engine.
//
// Process handles live only in engine memory; after an engine restart
// the status of previously started processes is reported as unknown.
type Backend struct {
	log   *logger.Logger
	mtx   sync.Mutex
	procs map[string]*proc
}

type proc struct {
	cancel context.CancelFunc
	state  compute.State
}

// Submit starts the task's command in the background. The task ID is
// used as the backend ID.
func (b *Backend) Submit(ctx context.Context, task *compute.Task) (string, error) {
	if len(task.Command) == 0 {
		return "", compute.FatalError(fmt.Errorf("task %s has no command", task.ID))
	}
	if err := fsutil.EnsureDir(task.WorkDir); err != nil {
		return "", compute.FatalError(err)
	}

	stdout, err := os.Create(task.Stdout)
	if err != nil {
		return "", compute.FatalError(err)
	}
	var stderr *os.File
	if task.Stderr == task.Stdout {
		stderr = stdout
	} else {
		stderr, err = os.Create(task.Stderr)
		if err != nil {
			stdout.Close()
			return "", compute.FatalError(err)
		}
	}

	var stdin *os.File
	if task.Stdin != "" {
		stdin, err = os.Open(task.Stdin)
		if err != nil {
			stdout.Close()
			stderr.Close()
			return "", compute.FatalError(fmt.Errorf("can't open stdin file: %v", err))
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(runCtx, task.Command[0], task.Command[1:]...)
	cmd.Dir = task.WorkDir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Stdin = stdin

	if err := cmd.Start(); err != nil {
		cancel()
		stdout.Close()
		stderr.Close()
		// The command couldn't start at all, e.g. executable not
		// found. That's a property of the job spec, not the host.
		return "", compute.FatalError(err)
	}

	p := &proc{cancel: cancel, state: compute.StateRunning}
	b.mtx.Lock()
	b.procs[task.ID] = p
	b.mtx.Unlock()

	go func() {
		defer cancel()
		err := cmd.Wait()
		stdout.Close()
		if stderr != stdout {
			stderr.Close()
		}
		if stdin != nil {
			stdin.Close()
		}

		b.mtx.Lock()
		defer b.mtx.Unlock()
		switch {
		case runCtx.Err() != nil:
			p.state = compute.StateCanceled
		case err != nil:
			p.state = compute.StateFailed
		default:
			p.state = compute.StateComplete
		}
	}()

	return task.ID, nil
}

// Status returns the status of a task started by this backend.
func (b *Backend) Status(ctx context.Context, backendID string) (compute.State, error) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	p, ok := b.procs[backendID]
	if !ok {
		return compute.StateUnknown, nil
	}
	return p.state, nil
}

// Cancel kills the task's process.
func (b *Backend) Cancel(ctx context.Context, backendID string) error {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	if p, ok := b.procs[backendID]; ok {
		p.cancel()
	}
	return nil
}
