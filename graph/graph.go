// Package graph implements the workflow dependency graph engine:
// cycle detection at submission, ready-set computation, and
// success/failure propagation through the graph.
package graph

import (
	"sort"

	"github.com/somaflow/somaflow/wf"
)

// Kind is the kind of a graph node.
type Kind int

const (
	// KindJob is a regular executable job.
	KindJob Kind = iota
	// KindBarrier is a synchronization-only job with no command.
	KindBarrier
	// KindTransfer is a file transfer node.
	KindTransfer
)

func (k Kind) String() string {
	switch k {
	case KindJob:
		return "job"
	case KindBarrier:
		return "barrier"
	case KindTransfer:
		return "transfer"
	}
	return "unknown"
}

// Change records a node state change caused by a graph mutation.
// Mutations return the full list of changes they caused so the caller
// can persist and publish them.
type Change struct {
	ID     string
	State  wf.State
	Origin string
}

type node struct {
	id       string
	kind     Kind
	priority int
	order    int
	preds    []string
	succs    []string
	// unsatisfied counts the predecessors which have not completed
	// successfully. A node becomes ready when it reaches zero.
	unsatisfied int
	state       wf.State
	// origin is the ID of the originating failure for NotRun nodes,
	// or a short reason such as "stop".
	origin string
}

// Graph holds the dependency graph and per-node state for one
// workflow. It is not safe for concurrent use; the engine serializes
// access under the per-workflow critical section.
type Graph struct {
	nodes map[string]*node
	order []string
}

// New builds a dependency graph from the workflow and validates
// acyclicity. Returns *wf.CyclicDependencyError if the dependency
// edges contain a cycle; no node state is created in that case.
func New(w *wf.Workflow) (*Graph, error) {
	g := &Graph{nodes: map[string]*node{}}

	for _, j := range w.Jobs {
		kind := KindJob
		if j.Barrier {
			kind = KindBarrier
		}
		g.add(j.ID, kind, j.Priority)
	}
	for _, t := range w.Transfers {
		g.add(t.ID, KindTransfer, 0)
	}

	// Dedupe edges; the same dependency may be declared at both the
	// workflow and node level.
	seen := map[wf.Dependency]bool{}
	for _, e := range w.Edges() {
		if seen[e] {
			continue
		}
		seen[e] = true
		pre, post := g.nodes[e.Pre], g.nodes[e.Post]
		if pre == nil || post == nil {
			// Validation catches dangling references before this.
			continue
		}
		pre.succs = append(pre.succs, e.Post)
		post.preds = append(post.preds, e.Pre)
		post.unsatisfied++
	}

	if cycle := g.findCycle(); cycle != nil {
		return nil, &wf.CyclicDependencyError{Cycle: cycle}
	}
	return g, nil
}

func (g *Graph) add(id string, kind Kind, priority int) {
	g.nodes[id] = &node{
		id:       id,
		kind:     kind,
		priority: priority,
		order:    len(g.order),
		state:    wf.Pending,
	}
	g.order = append(g.order, id)
}

// findCycle runs Kahn's algorithm and returns the IDs of nodes left
// unprocessed, i.e. those involved in (or downstream of) a cycle.
// Returns nil when the graph is acyclic.
func (g *Graph) findCycle() []string {
	indegree := make(map[string]int, len(g.nodes))
	var queue []string
	for _, id := range g.order {
		indegree[id] = len(g.nodes[id].preds)
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	processed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		processed++
		for _, sid := range g.nodes[id].succs {
			indegree[sid]--
			if indegree[sid] == 0 {
				queue = append(queue, sid)
			}
		}
	}

	if processed == len(g.nodes) {
		return nil
	}
	var cycle []string
	for _, id := range g.order {
		if indegree[id] > 0 {
			cycle = append(cycle, id)
		}
	}
	return cycle
}

// Start promotes all nodes with no unsatisfied dependencies to Ready,
// auto-completing barriers. Called once after submission.
func (g *Graph) Start() []Change {
	var changes []Change
	for _, id := range g.order {
		n := g.nodes[id]
		if n.state == wf.Pending && n.unsatisfied == 0 {
			g.promote(n, &changes)
		}
	}
	return changes
}

// promote moves a pending node to Ready and, for barriers, straight
// through to Done, cascading into successors.
func (g *Graph) promote(n *node, changes *[]Change) {
	n.state = wf.Ready
	*changes = append(*changes, Change{n.id, wf.Ready, ""})
	if n.kind == KindBarrier {
		// A barrier completes as soon as all its dependencies have;
		// there is nothing to dispatch.
		n.state = wf.Done
		*changes = append(*changes, Change{n.id, wf.Done, ""})
		g.satisfy(n, changes)
	}
}

// satisfy decrements the unsatisfied count of a completed node's
// successors and promotes those that become ready.
func (g *Graph) satisfy(n *node, changes *[]Change) {
	for _, sid := range n.succs {
		s := g.nodes[sid]
		s.unsatisfied--
		if s.unsatisfied == 0 && s.state == wf.Pending {
			g.promote(s, changes)
		}
	}
}

// Ready returns the IDs of nodes in the Ready state, ordered by
// priority (higher first), then insertion order, then node ID.
// The order is deterministic for a given graph state.
func (g *Graph) Ready() []string {
	var ready []*node
	for _, id := range g.order {
		if g.nodes[id].state == wf.Ready {
			ready = append(ready, g.nodes[id])
		}
	}
	sort.SliceStable(ready, func(i, j int) bool {
		a, b := ready[i], ready[j]
		if a.priority != b.priority {
			return a.priority > b.priority
		}
		if a.order != b.order {
			return a.order < b.order
		}
		return a.id < b.id
	})
	ids := make([]string, len(ready))
	for i, n := range ready {
		ids[i] = n.id
	}
	return ids
}

// SetState applies a single validated state transition to a node.
func (g *Graph) SetState(id string, to wf.State) error {
	n := g.nodes[id]
	if n == nil {
		return wf.ErrNotFound
	}
	if err := wf.ValidateTransition(n.state, to); err != nil {
		return err
	}
	n.state = to
	return nil
}

// MarkDone marks a node as successfully completed, decrementing
// successor counts and promoting newly ready nodes. Barriers whose
// dependencies are all complete are completed in the same pass.
func (g *Graph) MarkDone(id string) ([]Change, error) {
	n := g.nodes[id]
	if n == nil {
		return nil, wf.ErrNotFound
	}
	if err := wf.ValidateTransition(n.state, wf.Done); err != nil {
		return nil, err
	}
	n.state = wf.Done
	changes := []Change{{id, wf.Done, ""}}
	g.satisfy(n, &changes)
	return changes, nil
}

// MarkFailed marks a node as failed and propagates: every transitive
// successor which has not been dispatched is marked NotRun with the
// originating failure recorded, so a user inspecting the workflow can
// trace why a branch did not run. NotRun is terminal and distinct from
// Failed; none of those nodes is ever dispatched.
func (g *Graph) MarkFailed(id string) ([]Change, error) {
	n := g.nodes[id]
	if n == nil {
		return nil, wf.ErrNotFound
	}
	if err := wf.ValidateTransition(n.state, wf.Failed); err != nil {
		return nil, err
	}
	n.state = wf.Failed
	changes := []Change{{id, wf.Failed, ""}}
	g.skipSuccessors(n, id, &changes)
	return changes, nil
}

// MarkKilled marks a node as killed and skips its successors, with the
// killed node recorded as the origin.
func (g *Graph) MarkKilled(id string) ([]Change, error) {
	n := g.nodes[id]
	if n == nil {
		return nil, wf.ErrNotFound
	}
	if err := wf.ValidateTransition(n.state, wf.Killed); err != nil {
		return nil, err
	}
	n.state = wf.Killed
	changes := []Change{{id, wf.Killed, ""}}
	g.skipSuccessors(n, id, &changes)
	return changes, nil
}

func (g *Graph) skipSuccessors(n *node, origin string, changes *[]Change) {
	for _, sid := range n.succs {
		s := g.nodes[sid]
		switch s.state {
		case wf.Pending, wf.Ready:
			s.state = wf.NotRun
			s.origin = origin
			*changes = append(*changes, Change{sid, wf.NotRun, origin})
			g.skipSuccessors(s, origin, changes)
		}
	}
}

// MarkNotRun marks all not-yet-dispatched nodes as NotRun with the
// given origin. Used by stop, which must not leave pending nodes
// behind. Idempotent.
func (g *Graph) MarkNotRun(origin string) []Change {
	var changes []Change
	for _, id := range g.order {
		n := g.nodes[id]
		switch n.state {
		case wf.Pending, wf.Ready:
			n.state = wf.NotRun
			n.origin = origin
			changes = append(changes, Change{id, wf.NotRun, origin})
		}
	}
	return changes
}

// Reset prepares the graph for a restart: terminal non-success states
// (Failed, NotRun, Killed) return to Pending, unsatisfied counts are
// recomputed against surviving Done nodes, and newly ready nodes are
// promoted. The caller must ensure the graph is stable first.
func (g *Graph) Reset() []Change {
	var changes []Change
	for _, id := range g.order {
		n := g.nodes[id]
		switch n.state {
		case wf.Failed, wf.NotRun, wf.Killed:
			n.state = wf.Pending
			n.origin = ""
			changes = append(changes, Change{id, wf.Pending, ""})
		}
	}
	g.recount()
	for _, id := range g.order {
		n := g.nodes[id]
		if n.state == wf.Pending && n.unsatisfied == 0 {
			g.promote(n, &changes)
		}
	}
	return changes
}

// Load installs persisted node states without transition validation,
// used when resuming a workflow from the store after an engine
// restart. Unsatisfied counts are recomputed.
func (g *Graph) Load(states map[string]wf.State, origins map[string]string) {
	for id, s := range states {
		if n := g.nodes[id]; n != nil {
			n.state = s
			if origins != nil {
				n.origin = origins[id]
			}
		}
	}
	g.recount()
}

func (g *Graph) recount() {
	for _, id := range g.order {
		n := g.nodes[id]
		n.unsatisfied = 0
		for _, pid := range n.preds {
			if g.nodes[pid].state != wf.Done {
				n.unsatisfied++
			}
		}
	}
}

// State returns the state of a node.
func (g *Graph) State(id string) (wf.State, error) {
	n := g.nodes[id]
	if n == nil {
		return wf.Unknown, wf.ErrNotFound
	}
	return n.state, nil
}

// Origin returns the recorded failure origin of a node, if any.
func (g *Graph) Origin(id string) string {
	if n := g.nodes[id]; n != nil {
		return n.origin
	}
	return ""
}

// Kind returns the kind of a node.
func (g *Graph) Kind(id string) Kind {
	if n := g.nodes[id]; n != nil {
		return n.kind
	}
	return KindJob
}

// IDs returns all node IDs in insertion order.
func (g *Graph) IDs() []string {
	ids := make([]string, len(g.order))
	copy(ids, g.order)
	return ids
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Active returns the IDs of nodes with in-flight backend work
// (Dispatched, Running, or Unknown), in insertion order.
func (g *Graph) Active() []string {
	var ids []string
	for _, id := range g.order {
		if g.nodes[id].state.Active() {
			ids = append(ids, id)
		}
	}
	return ids
}

// Terminal returns true when every node is in a terminal state.
func (g *Graph) Terminal() bool {
	for _, n := range g.nodes {
		if !n.state.Terminal() {
			return false
		}
	}
	return true
}

// Stable returns true when no node has in-flight backend work. A
// stable graph may still hold Pending or Ready nodes (e.g. after the
// engine restarts with dispatch suspended).
func (g *Graph) Stable() bool {
	for _, n := range g.nodes {
		if n.state.Active() {
			return false
		}
	}
	return true
}

// Counts returns the number of nodes in each state.
func (g *Graph) Counts() map[wf.State]int {
	counts := map[wf.State]int{}
	for _, n := range g.nodes {
		counts[n.state]++
	}
	return counts
}
