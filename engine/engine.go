// Package engine implements the workflow execution engine: it owns
// submitted workflows, schedules ready nodes onto computing resources,
// monitors dispatched work, and serializes the control operations
// (submit, stop, restart, kill, delete) per workflow.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/getlantern/deepcopy"
	"golang.org/x/time/rate"

	"github.com/somaflow/somaflow/compute"
	"github.com/somaflow/somaflow/config"
	"github.com/somaflow/somaflow/events"
	"github.com/somaflow/somaflow/graph"
	"github.com/somaflow/somaflow/logger"
	"github.com/somaflow/somaflow/metrics"
	"github.com/somaflow/somaflow/transfer"
	"github.com/somaflow/somaflow/util"
	"github.com/somaflow/somaflow/wf"
)

// Engine runs workflows. All blocking backend calls are issued on a
// bounded worker pool, outside of any lock over graph state.
type Engine struct {
	conf      config.Config
	store     Store
	backends  map[string]compute.Backend
	transfers *transfer.Service
	ev        events.Writer
	log       *logger.Logger
	pool      *workerpool.WorkerPool
	limiter   *rate.Limiter

	mtx         sync.Mutex
	controllers map[string]*controller
	inFlight    map[string]int
	runCtx      context.Context
}

// New returns a new Engine. The backends map is keyed by resource
// name; every configured resource must have an entry.
func New(conf config.Config, store Store, backends map[string]compute.Backend, ts *transfer.Service, ev events.Writer, log *logger.Logger) *Engine {
	poolSize := conf.Scheduler.PoolSize
	if poolSize < 1 {
		poolSize = 10
	}
	limit := rate.Inf
	if conf.Monitor.PollLimit > 0 {
		limit = rate.Limit(conf.Monitor.PollLimit)
	}
	if ev == nil {
		ev = events.Discard
	}
	return &Engine{
		conf:        conf,
		store:       store,
		backends:    backends,
		transfers:   ts,
		ev:          ev,
		log:         log,
		pool:        workerpool.New(poolSize),
		limiter:     rate.NewLimiter(limit, 1),
		controllers: map[string]*controller{},
		inFlight:    map[string]int{},
	}
}

// Run resumes persisted workflows and blocks until the context is
// canceled, then shuts the engine down.
func (e *Engine) Run(ctx context.Context) error {
	e.mtx.Lock()
	e.runCtx = ctx
	e.mtx.Unlock()

	if err := e.resume(ctx); err != nil {
		e.log.Error("Failed to resume workflows", "error", err)
	}

	<-ctx.Done()

	e.mtx.Lock()
	for _, c := range e.controllers {
		c.shutdown()
	}
	e.mtx.Unlock()
	e.pool.Stop()
	return nil
}

// Submit validates the workflow, builds its dependency graph, assigns
// an ID, persists it, and starts scheduling. The caller's workflow is
// copied; the engine owns all state after submission.
func (e *Engine) Submit(ctx context.Context, in *wf.Workflow) (string, error) {
	if err := wf.Validate(in); err != nil {
		return "", err
	}

	w := &wf.Workflow{}
	if err := deepcopy.Copy(w, in); err != nil {
		return "", fmt.Errorf("copying workflow: %v", err)
	}
	w.ID = util.GenID()
	w.Created = time.Now()

	if err := e.applyDefaults(w); err != nil {
		return "", err
	}

	g, err := graph.New(w)
	if err != nil {
		return "", err
	}

	if err := e.store.CreateWorkflow(ctx, w); err != nil {
		return "", fmt.Errorf("storing workflow: %v", err)
	}
	for _, id := range g.IDs() {
		rec := &NodeRecord{State: wf.Pending, Updated: time.Now()}
		if err := e.store.PutNode(ctx, w.ID, id, rec); err != nil {
			return "", fmt.Errorf("storing node records: %v", err)
		}
	}
	if err := e.ev.WriteEvent(ctx, events.NewWorkflowCreated(w.ID)); err != nil {
		e.log.Error("Failed to write event", "workflowID", w.ID, "error", err)
	}
	metrics.IncSubmitted()

	c := newController(e, w, g)
	e.mtx.Lock()
	e.controllers[w.ID] = c
	rctx := e.runCtx
	e.mtx.Unlock()

	c.mtx.Lock()
	c.apply(ctx, c.graph.Start())
	c.mtx.Unlock()

	c.start(rctx)
	c.requestTick()

	e.log.Info("Workflow submitted", "workflowID", w.ID, "name", w.Name, "nodes", g.Len())
	return w.ID, nil
}

// applyDefaults fills in engine-side defaults: the target resource of
// jobs and transfers, and transfer remote paths.
func (e *Engine) applyDefaults(w *wf.Workflow) error {
	check := func(kind, id, name string) error {
		if _, ok := e.conf.Resources[name]; !ok {
			return &wf.ValidationError{
				Reason: fmt.Sprintf("%s %q targets unconfigured resource %q", kind, id, name),
			}
		}
		return nil
	}
	for _, j := range w.Jobs {
		if j.Resource == "" {
			j.Resource = e.conf.DefaultResource
		}
		if err := check("job", j.ID, j.Resource); err != nil {
			return err
		}
	}
	for _, t := range w.Transfers {
		if t.Resource == "" {
			t.Resource = e.conf.DefaultResource
		}
		if err := check("transfer", t.ID, t.Resource); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the stored workflow definition.
func (e *Engine) Get(ctx context.Context, id string) (*wf.Workflow, error) {
	return e.store.GetWorkflow(ctx, id)
}

// Status returns the observable status of a workflow and its nodes.
func (e *Engine) Status(ctx context.Context, id string) (*WorkflowStatus, error) {
	if c, ok := e.controller(id); ok {
		return c.status(), nil
	}

	// No controller means the workflow settled before the engine last
	// started; report from the store.
	w, err := e.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	recs, err := e.store.GetNodes(ctx, id)
	if err != nil {
		return nil, err
	}

	counts := map[wf.State]int{}
	s := &WorkflowStatus{
		ID:      w.ID,
		Name:    w.Name,
		Created: w.Created,
		Groups:  w.Groups,
	}
	for _, nid := range w.NodeIDs() {
		rec := recs[nid]
		if rec == nil {
			rec = &NodeRecord{State: wf.Pending}
		}
		counts[rec.State]++
		s.Nodes = append(s.Nodes, NodeStatus{
			ID:        nid,
			Name:      nodeName(w, nid),
			Kind:      nodeKind(w, nid),
			State:     rec.State,
			Origin:    rec.Origin,
			BackendID: rec.BackendID,
			Stdout:    rec.Stdout,
			Stderr:    rec.Stderr,
		})
	}
	s.State = deriveState(counts)
	s.Counts = countStrings(counts)
	return s, nil
}

// List returns status summaries of all workflows, without per-node
// detail.
func (e *Engine) List(ctx context.Context) ([]*WorkflowStatus, error) {
	ws, err := e.store.ListWorkflows(ctx)
	if err != nil {
		return nil, err
	}
	var out []*WorkflowStatus
	for _, w := range ws {
		s, err := e.Status(ctx, w.ID)
		if err != nil {
			return nil, err
		}
		s.Nodes = nil
		s.Groups = nil
		out = append(out, s)
	}
	return out, nil
}

// Stop halts a workflow: nodes which have not been dispatched are
// skipped, and cancellation of in-flight work is requested from the
// backends. Stop is idempotent; stopping a settled workflow is a
// no-op.
func (e *Engine) Stop(ctx context.Context, id string) error {
	c, err := e.getOrLoad(ctx, id)
	if err != nil {
		return err
	}
	c.stop(ctx, "stop", false)
	return nil
}

// Kill is Stop without waiting for the backends to confirm: in-flight
// nodes are forced to the killed state immediately, with cancellation
// still requested best-effort.
func (e *Engine) Kill(ctx context.Context, id string) error {
	c, err := e.getOrLoad(ctx, id)
	if err != nil {
		return err
	}
	c.stop(ctx, "kill", true)
	return nil
}

// Restart re-runs the failed, skipped, and killed parts of a stable
// workflow. Completed nodes keep their results. Returns
// *wf.InvalidStateError while nodes are still in flight.
func (e *Engine) Restart(ctx context.Context, id string) error {
	c, err := e.getOrLoad(ctx, id)
	if err != nil {
		return err
	}
	return c.restart(ctx)
}

// Delete removes a workflow and everything the engine stored about
// it. The workflow must be settled: every node terminal, or stopped
// and fully settled. Returns *wf.InvalidStateError otherwise.
func (e *Engine) Delete(ctx context.Context, id string) error {
	if _, err := e.store.GetWorkflow(ctx, id); err != nil {
		return err
	}

	if c, ok := e.controller(id); ok {
		c.mtx.Lock()
		terminal := c.graph.Terminal()
		c.mtx.Unlock()
		if !terminal {
			return &wf.InvalidStateError{
				Op: "delete", WorkflowID: id,
				Reason: "workflow has non-terminal nodes; stop it and wait for it to settle",
			}
		}
		c.shutdown()
		e.mtx.Lock()
		delete(e.controllers, id)
		e.mtx.Unlock()
	} else {
		recs, err := e.store.GetNodes(ctx, id)
		if err != nil {
			return err
		}
		for nid, rec := range recs {
			if !rec.State.Terminal() {
				return &wf.InvalidStateError{
					Op: "delete", WorkflowID: id,
					Reason: fmt.Sprintf("node %s is not terminal", nid),
				}
			}
		}
	}

	if err := e.store.DeleteWorkflow(ctx, id); err != nil {
		return err
	}
	metrics.ClearWorkflow(id)
	e.log.Info("Workflow deleted", "workflowID", id)
	return nil
}

// Wait blocks until every listed workflow reaches a terminal state,
// the timeout expires, or the context is canceled. A zero timeout
// waits indefinitely.
func (e *Engine) Wait(ctx context.Context, ids []string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tick := time.NewTicker(time.Millisecond * 500)
	defer tick.Stop()
	for {
		settled := true
		for _, id := range ids {
			s, err := e.Status(ctx, id)
			if err != nil {
				return err
			}
			if !s.Terminal() {
				settled = false
				break
			}
		}
		if settled {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
}

// Events returns the stored event log of a workflow.
func (e *Engine) Events(ctx context.Context, id string) ([]*events.Event, error) {
	if _, err := e.store.GetWorkflow(ctx, id); err != nil {
		return nil, err
	}
	if el, ok := e.store.(EventLister); ok {
		return el.ListEvents(ctx, id)
	}
	return nil, fmt.Errorf("event listing is not supported by the %q database", e.conf.Database)
}

// Notify applies a backend status observation to a node without
// waiting for the next poll sweep. Backends with push notification
// support call this; polling remains the fallback.
func (e *Engine) Notify(ctx context.Context, workflowID, nodeID string, st compute.State) error {
	c, ok := e.controller(workflowID)
	if !ok {
		return wf.ErrNotFound
	}
	c.mtx.Lock()
	c.applyStatus(ctx, nodeID, st, nil)
	c.mtx.Unlock()
	return nil
}

// resume reloads persisted workflows after an engine restart.
// Monitoring of dispatched nodes continues against the recorded
// backend IDs; nodes which never reached a backend go back to Ready
// and are dispatched again.
func (e *Engine) resume(ctx context.Context) error {
	ws, err := e.store.ListWorkflows(ctx)
	if err != nil {
		return err
	}
	for _, w := range ws {
		c, err := e.loadController(ctx, w)
		if err != nil {
			e.log.Error("Failed to resume workflow", "workflowID", w.ID, "error", err)
			continue
		}
		if c == nil {
			// Settled before the restart; nothing to monitor.
			continue
		}
		e.log.Info("Resumed workflow", "workflowID", w.ID, "name", w.Name)
	}
	return nil
}

// loadController rebuilds a controller from the store. Returns
// (nil, nil) for settled workflows, which don't need one.
func (e *Engine) loadController(ctx context.Context, w *wf.Workflow) (*controller, error) {
	recs, err := e.store.GetNodes(ctx, w.ID)
	if err != nil {
		return nil, err
	}
	g, err := graph.New(w)
	if err != nil {
		return nil, err
	}

	states := map[string]wf.State{}
	origins := map[string]string{}
	var redispatch []string
	for id, rec := range recs {
		st := rec.State
		if st == wf.Dispatched && rec.BackendID == "" {
			// The dispatch never reached the backend before the engine
			// went down, so submitting again cannot double-run it.
			st = wf.Ready
			redispatch = append(redispatch, id)
		}
		states[id] = st
		origins[id] = rec.Origin
	}
	g.Load(states, origins)

	if g.Terminal() {
		return nil, nil
	}

	c := newController(e, w, g)
	c.mtx.Lock()
	for id, rec := range recs {
		rt := c.rt[id]
		if rt == nil {
			continue
		}
		rt.backendID = rec.BackendID
		rt.stdout = rec.Stdout
		rt.stderr = rec.Stderr
	}
	for _, id := range g.Active() {
		rt := c.rt[id]
		rt.active = true
		c.inFlight++
		e.acquire(rt.resource)
	}
	c.lastState = deriveState(g.Counts())
	c.mtx.Unlock()

	for _, id := range redispatch {
		rec := &NodeRecord{State: wf.Ready, Updated: time.Now()}
		if err := e.store.PutNode(ctx, w.ID, id, rec); err != nil {
			e.log.Error("Failed to persist node state", "workflowID", w.ID, "nodeID", id, "error", err)
		}
	}

	e.mtx.Lock()
	if prev, ok := e.controllers[w.ID]; ok {
		e.mtx.Unlock()
		return prev, nil
	}
	e.controllers[w.ID] = c
	rctx := e.runCtx
	e.mtx.Unlock()

	c.start(rctx)
	c.requestTick()
	return c, nil
}

func (e *Engine) controller(id string) (*controller, bool) {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	c, ok := e.controllers[id]
	return c, ok
}

// getOrLoad returns the live controller of a workflow, rebuilding one
// from the store for workflows which settled before the engine last
// started.
func (e *Engine) getOrLoad(ctx context.Context, id string) (*controller, error) {
	if c, ok := e.controller(id); ok {
		return c, nil
	}
	w, err := e.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	c, err := e.loadController(ctx, w)
	if err != nil {
		return nil, err
	}
	if c != nil {
		return c, nil
	}

	// Settled workflows still need a controller for stop (a no-op) and
	// restart. Build one without re-dispatch handling; every node is
	// terminal.
	recs, err := e.store.GetNodes(ctx, id)
	if err != nil {
		return nil, err
	}
	g, err := graph.New(w)
	if err != nil {
		return nil, err
	}
	states := map[string]wf.State{}
	origins := map[string]string{}
	for nid, rec := range recs {
		states[nid] = rec.State
		origins[nid] = rec.Origin
	}
	g.Load(states, origins)

	c = newController(e, w, g)
	c.mtx.Lock()
	for nid, rec := range recs {
		if rt := c.rt[nid]; rt != nil {
			rt.backendID = rec.BackendID
			rt.stdout = rec.Stdout
			rt.stderr = rec.Stderr
		}
	}
	c.lastState = deriveState(g.Counts())
	c.mtx.Unlock()

	e.mtx.Lock()
	if prev, ok := e.controllers[id]; ok {
		e.mtx.Unlock()
		return prev, nil
	}
	e.controllers[id] = c
	rctx := e.runCtx
	e.mtx.Unlock()
	c.start(rctx)
	return c, nil
}

// tryAcquire claims an in-flight slot on a resource, respecting its
// configured cap. Zero cap means unlimited.
func (e *Engine) tryAcquire(resource string) bool {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	max := e.conf.Resources[resource].MaxInFlight
	if max > 0 && e.inFlight[resource] >= max {
		return false
	}
	e.inFlight[resource]++
	metrics.SetInFlight(resource, e.inFlight[resource])
	return true
}

// acquire claims a slot unconditionally, used when restoring in-flight
// nodes at resume.
func (e *Engine) acquire(resource string) {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	e.inFlight[resource]++
	metrics.SetInFlight(resource, e.inFlight[resource])
}

func (e *Engine) release(resource string) {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	if e.inFlight[resource] > 0 {
		e.inFlight[resource]--
	}
	metrics.SetInFlight(resource, e.inFlight[resource])
}

// backendStatus queries a node's backend status, routing transfers to
// the transfer service.
func (e *Engine) backendStatus(ctx context.Context, kind graph.Kind, resource, backendID string) (compute.State, error) {
	if kind == graph.KindTransfer {
		return e.transfers.Status(ctx, backendID)
	}
	b := e.backends[resource]
	if b == nil {
		return compute.StateUnknown, compute.ErrNoBackend(resource)
	}
	return b.Status(ctx, backendID)
}

// backendCancel requests cancellation of a node's backend work.
func (e *Engine) backendCancel(ctx context.Context, kind graph.Kind, resource, backendID string) error {
	if kind == graph.KindTransfer {
		return e.transfers.Cancel(ctx, backendID)
	}
	b := e.backends[resource]
	if b == nil {
		return compute.ErrNoBackend(resource)
	}
	return b.Cancel(ctx, backendID)
}

// callCtx bounds a backend adapter call.
func (e *Engine) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := time.Duration(e.conf.Monitor.CallTimeout)
	if timeout <= 0 {
		timeout = time.Second * 30
	}
	return context.WithTimeout(ctx, timeout)
}

// newRetrier configures retries for submission calls. Only errors
// tagged transient (or untagged) are retried.
func (e *Engine) newRetrier() *util.Retrier {
	r := util.NewRetrier()
	r.MaxTries = 4
	r.MaxElapsedTime = time.Minute * 5
	r.ShouldRetry = compute.IsTransient
	r.Notify = func(err error, d time.Duration) {
		e.log.Warn("Retrying backend call", "error", err, "delay", d.String())
	}
	return r
}

func nodeName(w *wf.Workflow, id string) string {
	if j := w.GetJob(id); j != nil {
		return j.Name
	}
	if t := w.GetTransfer(id); t != nil {
		return t.Name
	}
	return ""
}

func nodeKind(w *wf.Workflow, id string) string {
	if j := w.GetJob(id); j != nil {
		if j.Barrier {
			return graph.KindBarrier.String()
		}
		return graph.KindJob.String()
	}
	return graph.KindTransfer.String()
}
