package engine

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/somaflow/somaflow/compute"
	"github.com/somaflow/somaflow/events"
	"github.com/somaflow/somaflow/graph"
	"github.com/somaflow/somaflow/logger"
	"github.com/somaflow/somaflow/metrics"
	"github.com/somaflow/somaflow/wf"
)

// controller owns the runtime state of one workflow. All graph and
// runtime mutations happen under its mutex, which serializes the
// control operations against scheduling and monitoring. Backend
// adapter calls never run under the mutex.
type controller struct {
	eng *Engine
	w   *wf.Workflow
	log *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	tickCh chan struct{}

	mtx       sync.Mutex
	graph     *graph.Graph
	rt        map[string]*nodeRT
	inFlight  int
	stopping  bool
	lastState string
}

// nodeRT is per-node runtime state not kept in the graph. The
// resource field is immutable after construction and may be read
// without the controller mutex.
type nodeRT struct {
	resource  string
	backendID string
	stdout    string
	stderr    string

	// active is true while the node holds a resource in-flight slot.
	active bool

	// failures counts consecutive failed status queries.
	failures int

	// cancelAt is when cancellation was requested, for the kill
	// timeout.
	cancelAt time.Time
}

func newController(e *Engine, w *wf.Workflow, g *graph.Graph) *controller {
	c := &controller{
		eng:    e,
		w:      w,
		log:    e.log.WithFields("workflowID", w.ID),
		tickCh: make(chan struct{}, 1),
		graph:  g,
		rt:     map[string]*nodeRT{},
	}
	for _, j := range w.Jobs {
		c.rt[j.ID] = &nodeRT{resource: j.Resource}
	}
	for _, t := range w.Transfers {
		c.rt[t.ID] = &nodeRT{resource: t.Resource}
	}
	return c
}

// start launches the controller loop. A nil parent context means the
// engine isn't running its main loop (tests); the controller then
// runs until shutdown.
func (c *controller) start(parent context.Context) {
	if parent == nil {
		parent = context.Background()
	}
	c.ctx, c.cancel = context.WithCancel(parent)
	go c.run(c.ctx)
}

func (c *controller) shutdown() {
	if c.cancel != nil {
		c.cancel()
	}
}

func (c *controller) run(ctx context.Context) {
	tickRate := time.Duration(c.eng.conf.Scheduler.TickRate)
	if tickRate <= 0 {
		tickRate = time.Second * 5
	}
	pollRate := time.Duration(c.eng.conf.Monitor.PollRate)
	if pollRate <= 0 {
		pollRate = time.Second * 30
	}

	tick := time.NewTicker(tickRate)
	defer tick.Stop()
	poll := time.NewTicker(pollRate)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.tickCh:
			c.tick(ctx)
		case <-tick.C:
			c.tick(ctx)
		case <-poll.C:
			c.poll(ctx)
		}
	}
}

// requestTick triggers a scheduling iteration without waiting for the
// next timer tick. Coalesces with a pending request.
func (c *controller) requestTick() {
	select {
	case c.tickCh <- struct{}{}:
	default:
	}
}

// tick runs one scheduling iteration: ready nodes are marked
// Dispatched under the lock, in priority order and within the
// workflow and resource in-flight caps, then submitted to their
// backends on the worker pool.
func (c *controller) tick(ctx context.Context) {
	type dispatch struct {
		id   string
		kind graph.Kind
	}
	var ds []dispatch

	c.mtx.Lock()
	if !c.stopping {
		limit := c.w.MaxConcurrent
		if limit == 0 {
			limit = c.eng.conf.Scheduler.MaxInFlight
		}
		for _, id := range c.graph.Ready() {
			if limit > 0 && c.inFlight >= limit {
				break
			}
			rt := c.rt[id]
			if !c.eng.tryAcquire(rt.resource) {
				// Resource at capacity; a later ready node may target
				// a different resource.
				continue
			}
			if err := c.graph.SetState(id, wf.Dispatched); err != nil {
				c.eng.release(rt.resource)
				continue
			}
			rt.active = true
			c.inFlight++
			c.record(ctx, id, wf.Dispatched, "")
			ds = append(ds, dispatch{id, c.graph.Kind(id)})
		}
		metrics.SetNodeStates(c.w.ID, c.graph.Counts())
	}
	c.mtx.Unlock()

	for _, d := range ds {
		d := d
		c.eng.pool.Submit(func() { c.submit(ctx, d.id, d.kind) })
	}
}

// submit issues the backend submission for a dispatched node. Runs on
// the worker pool.
func (c *controller) submit(ctx context.Context, id string, kind graph.Kind) {
	var backendID string
	var err error
	if kind == graph.KindTransfer {
		backendID, err = c.submitTransfer(ctx, id)
	} else {
		backendID, err = c.submitTask(ctx, id)
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()

	if err != nil {
		c.log.Error("Dispatch failed", "nodeID", id, "error", err)
		c.writeEvent(ctx, events.NewSystemLog(c.w.ID, id, "error",
			"dispatch failed", map[string]string{"error": err.Error()}))
		changes, merr := c.graph.MarkFailed(id)
		if merr != nil {
			// The node settled while the submission was in flight,
			// e.g. a concurrent kill.
			c.log.Debug("Dispatch failure on settled node", "nodeID", id, "error", merr)
			return
		}
		c.apply(ctx, changes)
		c.requestTick()
		return
	}

	rt := c.rt[id]
	rt.backendID = backendID
	st, _ := c.graph.State(id)
	c.record(ctx, id, st, c.graph.Origin(id))
	c.log.Debug("Node dispatched", "nodeID", id, "backendID", backendID)

	if c.stopping {
		// A stop raced with this submission; cancel what was just
		// started. The kill timeout is already running.
		c.scheduleCancel(id, kind, rt.resource, backendID)
	}
}

func (c *controller) submitTask(ctx context.Context, id string) (string, error) {
	task, resource, err := c.buildTask(id)
	if err != nil {
		return "", compute.FatalError(err)
	}
	backend := c.eng.backends[resource]
	if backend == nil {
		return "", compute.ErrNoBackend(resource)
	}

	c.mtx.Lock()
	rt := c.rt[id]
	rt.stdout = task.Stdout
	rt.stderr = task.Stderr
	c.mtx.Unlock()

	var backendID string
	retrier := c.eng.newRetrier()
	err = retrier.Retry(ctx, func() error {
		cctx, cancel := c.eng.callCtx(ctx)
		defer cancel()
		bid, serr := backend.Submit(cctx, task)
		if serr == nil {
			backendID = bid
		}
		return serr
	})
	return backendID, err
}

func (c *controller) submitTransfer(ctx context.Context, id string) (string, error) {
	spec, err := c.buildTransferSpec(id)
	if err != nil {
		return "", compute.FatalError(err)
	}
	cctx, cancel := c.eng.callCtx(ctx)
	defer cancel()
	return c.eng.transfers.Submit(cctx, spec)
}

// poll runs one monitoring sweep: status of every in-flight node is
// queried on the worker pool, rate limited, and the observations are
// applied under the lock. Nodes whose cancellation went unconfirmed
// past the kill timeout are forced to killed.
func (c *controller) poll(ctx context.Context) {
	type query struct {
		id        string
		kind      graph.Kind
		resource  string
		backendID string
	}
	var qs []query
	killTimeout := time.Duration(c.eng.conf.Monitor.KillTimeout)

	c.mtx.Lock()
	for _, id := range c.graph.Active() {
		rt := c.rt[id]
		if !rt.cancelAt.IsZero() && killTimeout > 0 && time.Since(rt.cancelAt) > killTimeout {
			if changes, err := c.graph.MarkKilled(id); err == nil {
				c.log.Warn("Forcing node to killed; cancel unconfirmed", "nodeID", id)
				c.apply(ctx, changes)
			}
			continue
		}
		if rt.backendID == "" {
			// Submission still in flight.
			continue
		}
		qs = append(qs, query{id, c.graph.Kind(id), rt.resource, rt.backendID})
	}
	c.mtx.Unlock()

	for _, q := range qs {
		q := q
		c.eng.pool.Submit(func() {
			if err := c.eng.limiter.Wait(ctx); err != nil {
				return
			}
			cctx, cancel := c.eng.callCtx(ctx)
			st, err := c.eng.backendStatus(cctx, q.kind, q.resource, q.backendID)
			cancel()

			c.mtx.Lock()
			c.applyStatus(ctx, q.id, st, err)
			c.mtx.Unlock()
		})
	}
}

// applyStatus folds one backend status observation into the graph.
// Caller holds the mutex.
func (c *controller) applyStatus(ctx context.Context, id string, st compute.State, err error) {
	cur, gerr := c.graph.State(id)
	if gerr != nil || !cur.Active() {
		// Stale observation; the node settled in the meantime.
		return
	}
	rt := c.rt[id]

	if err != nil || st == compute.StateUnknown {
		rt.failures++
		max := c.eng.conf.Monitor.MaxStatusFailures
		if max > 0 && rt.failures >= max && cur != wf.Unknown {
			c.log.Error("Node status could not be determined",
				"nodeID", id, "failures", rt.failures, "error", err)
			if serr := c.graph.SetState(id, wf.Unknown); serr == nil {
				c.record(ctx, id, wf.Unknown, "")
				f := map[string]string{"failures": strconv.Itoa(rt.failures)}
				if err != nil {
					f["error"] = err.Error()
				}
				c.writeEvent(ctx, events.NewSystemLog(c.w.ID, id, "error",
					"node status could not be determined", f))
			}
		}
		return
	}
	rt.failures = 0

	var changes []graph.Change
	var merr error
	switch st {
	case compute.StateQueued:
		// Still waiting in the remote queue.
		return
	case compute.StateRunning:
		if cur == wf.Dispatched || cur == wf.Unknown {
			if serr := c.graph.SetState(id, wf.Running); serr == nil {
				c.record(ctx, id, wf.Running, "")
			}
		}
		return
	case compute.StateComplete:
		changes, merr = c.graph.MarkDone(id)
	case compute.StateFailed:
		changes, merr = c.graph.MarkFailed(id)
	case compute.StateCanceled:
		changes, merr = c.graph.MarkKilled(id)
	default:
		return
	}
	if merr != nil {
		c.log.Debug("Ignoring stale status", "nodeID", id, "status", st.String(), "error", merr)
		return
	}
	c.apply(ctx, changes)
	c.requestTick()
}

// stop halts the workflow. Not-yet-dispatched nodes are skipped with
// the given origin; cancellation of in-flight work is requested from
// the backends. With force, in-flight nodes are killed immediately
// instead of waiting for backend confirmation. Idempotent.
func (c *controller) stop(ctx context.Context, origin string, force bool) {
	type cancelReq struct {
		id        string
		kind      graph.Kind
		resource  string
		backendID string
	}
	var cancels []cancelReq

	c.mtx.Lock()
	c.stopping = true
	changes := c.graph.MarkNotRun(origin)
	for _, id := range c.graph.Active() {
		rt := c.rt[id]
		if rt.cancelAt.IsZero() {
			rt.cancelAt = time.Now()
		}
		if rt.backendID != "" {
			cancels = append(cancels, cancelReq{id, c.graph.Kind(id), rt.resource, rt.backendID})
		}
	}
	if force {
		for _, id := range c.graph.Active() {
			if ch, err := c.graph.MarkKilled(id); err == nil {
				changes = append(changes, ch...)
			}
		}
	}
	c.apply(ctx, changes)
	c.mtx.Unlock()

	if len(changes) > 0 || len(cancels) > 0 {
		c.log.Info("Stopping workflow", "origin", origin, "canceling", len(cancels))
	}
	for _, req := range cancels {
		c.scheduleCancel(req.id, req.kind, req.resource, req.backendID)
	}
}

// scheduleCancel requests backend cancellation on the worker pool.
// Best effort; the node settles via status monitoring or the kill
// timeout.
func (c *controller) scheduleCancel(id string, kind graph.Kind, resource, backendID string) {
	c.eng.pool.Submit(func() {
		cctx, cancel := c.eng.callCtx(context.Background())
		defer cancel()
		if err := c.eng.backendCancel(cctx, kind, resource, backendID); err != nil {
			c.log.Error("Cancel failed", "nodeID", id, "backendID", backendID, "error", err)
		}
	})
}

// restart re-runs the failed, skipped, and killed parts of the
// workflow. The graph must be stable: no node with in-flight backend
// work.
func (c *controller) restart(ctx context.Context) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if !c.graph.Stable() {
		return &wf.InvalidStateError{
			Op: "restart", WorkflowID: c.w.ID,
			Reason: "workflow has nodes in flight; stop it and wait for it to settle",
		}
	}

	c.stopping = false
	changes := c.graph.Reset()
	for _, ch := range changes {
		rt := c.rt[ch.ID]
		rt.backendID = ""
		rt.stdout = ""
		rt.stderr = ""
		rt.failures = 0
		rt.cancelAt = time.Time{}
	}
	c.apply(ctx, changes)
	c.requestTick()
	c.log.Info("Workflow restarted", "reset", len(changes))
	return nil
}

// apply persists and publishes a batch of graph changes, releasing
// resource slots of nodes leaving the in-flight states. Caller holds
// the mutex.
func (c *controller) apply(ctx context.Context, changes []graph.Change) {
	for _, ch := range changes {
		rt := c.rt[ch.ID]
		if rt.active && ch.State.Terminal() {
			rt.active = false
			c.inFlight--
			c.eng.release(rt.resource)
		}
		c.record(ctx, ch.ID, ch.State, ch.Origin)
	}
	metrics.SetNodeStates(c.w.ID, c.graph.Counts())
	c.noteState(ctx)
}

// record persists one node's record and publishes the state change.
// Caller holds the mutex.
func (c *controller) record(ctx context.Context, id string, st wf.State, origin string) {
	rt := c.rt[id]
	rec := &NodeRecord{
		State:     st,
		Origin:    origin,
		BackendID: rt.backendID,
		Stdout:    rt.stdout,
		Stderr:    rt.stderr,
		Updated:   time.Now(),
	}
	if err := c.eng.store.PutNode(ctx, c.w.ID, id, rec); err != nil {
		c.log.Error("Failed to persist node state", "nodeID", id, "error", err)
	}
	c.writeEvent(ctx, events.NewNodeState(c.w.ID, id, st, origin))
}

// noteState publishes a workflow-level state event when the derived
// state changes. Caller holds the mutex.
func (c *controller) noteState(ctx context.Context) {
	st := deriveState(c.graph.Counts())
	if st == c.lastState {
		return
	}
	c.lastState = st
	c.log.Info("Workflow state changed", "state", st)
	c.writeEvent(ctx, events.NewWorkflowState(c.w.ID, st))
}

func (c *controller) writeEvent(ctx context.Context, ev *events.Event) {
	if err := c.eng.ev.WriteEvent(ctx, ev); err != nil {
		c.log.Error("Failed to write event", "eventType", string(ev.Type), "error", err)
	}
}

// status snapshots the observable workflow status.
func (c *controller) status() *WorkflowStatus {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	counts := c.graph.Counts()
	s := &WorkflowStatus{
		ID:      c.w.ID,
		Name:    c.w.Name,
		State:   deriveState(counts),
		Created: c.w.Created,
		Counts:  countStrings(counts),
		Groups:  c.w.Groups,
	}
	for _, id := range c.graph.IDs() {
		st, _ := c.graph.State(id)
		rt := c.rt[id]
		s.Nodes = append(s.Nodes, NodeStatus{
			ID:        id,
			Name:      nodeName(c.w, id),
			Kind:      c.graph.Kind(id).String(),
			State:     st,
			Origin:    c.graph.Origin(id),
			BackendID: rt.backendID,
			Stdout:    rt.stdout,
			Stderr:    rt.stderr,
		})
	}
	return s
}
