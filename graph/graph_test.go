package graph

import (
	"testing"

	"github.com/somaflow/somaflow/wf"
)

// chain builds a workflow of three jobs J1 -> J2 -> J3.
func chain() *wf.Workflow {
	w := wf.NewWorkflow("chain")
	w.AddJob(&wf.Job{ID: "j1", Command: []string{"a"}})
	w.AddJob(&wf.Job{ID: "j2", Command: []string{"b"}, Depends: []string{"j1"}})
	w.AddJob(&wf.Job{ID: "j3", Command: []string{"c"}, Depends: []string{"j2"}})
	return w
}

func stateOf(t *testing.T, g *Graph, id string) wf.State {
	t.Helper()
	st, err := g.State(id)
	if err != nil {
		t.Fatalf("State(%s): %v", id, err)
	}
	return st
}

func TestCycleDetection(t *testing.T) {
	w := wf.NewWorkflow("cyclic")
	w.AddJob(&wf.Job{ID: "a", Command: []string{"x"}, Depends: []string{"c"}})
	w.AddJob(&wf.Job{ID: "b", Command: []string{"x"}, Depends: []string{"a"}})
	w.AddJob(&wf.Job{ID: "c", Command: []string{"x"}, Depends: []string{"b"}})

	_, err := New(w)
	if err == nil {
		t.Fatal("expected cycle error")
	}
	cerr, ok := err.(*wf.CyclicDependencyError)
	if !ok {
		t.Fatalf("expected CyclicDependencyError, got %T", err)
	}
	if len(cerr.Cycle) != 3 {
		t.Errorf("expected 3 nodes in cycle, got %v", cerr.Cycle)
	}
}

func TestStartPromotesRoots(t *testing.T) {
	g, err := New(chain())
	if err != nil {
		t.Fatal(err)
	}

	g.Start()
	if st := stateOf(t, g, "j1"); st != wf.Ready {
		t.Errorf("j1 state: %s", st)
	}
	if st := stateOf(t, g, "j2"); st != wf.Pending {
		t.Errorf("j2 state: %s", st)
	}

	ready := g.Ready()
	if len(ready) != 1 || ready[0] != "j1" {
		t.Errorf("unexpected ready set: %v", ready)
	}
}

func TestSuccessCascade(t *testing.T) {
	g, _ := New(chain())
	g.Start()

	if err := g.SetState("j1", wf.Dispatched); err != nil {
		t.Fatal(err)
	}
	changes, err := g.MarkDone("j1")
	if err != nil {
		t.Fatal(err)
	}

	// j1 done, j2 promoted to ready.
	if len(changes) != 2 {
		t.Fatalf("unexpected changes: %v", changes)
	}
	if st := stateOf(t, g, "j2"); st != wf.Ready {
		t.Errorf("j2 state: %s", st)
	}
	if st := stateOf(t, g, "j3"); st != wf.Pending {
		t.Errorf("j3 state: %s", st)
	}
}

func TestFailurePropagation(t *testing.T) {
	g, _ := New(chain())
	g.Start()

	g.SetState("j1", wf.Dispatched)
	g.SetState("j1", wf.Running)
	changes, err := g.MarkFailed("j1")
	if err != nil {
		t.Fatal(err)
	}

	// j1 failed; j2 and j3 skipped with j1 as the origin.
	if len(changes) != 3 {
		t.Fatalf("unexpected changes: %v", changes)
	}
	for _, id := range []string{"j2", "j3"} {
		if st := stateOf(t, g, id); st != wf.NotRun {
			t.Errorf("%s state: %s", id, st)
		}
		if origin := g.Origin(id); origin != "j1" {
			t.Errorf("%s origin: %q", id, origin)
		}
	}
	if !g.Terminal() {
		t.Error("expected workflow to be terminal")
	}
}

func TestFailureSparesDispatchedBranch(t *testing.T) {
	// j1 -> j3, j2 -> j3; j2 is already running when j1 fails.
	w := wf.NewWorkflow("diamond")
	w.AddJob(&wf.Job{ID: "j1", Command: []string{"x"}})
	w.AddJob(&wf.Job{ID: "j2", Command: []string{"x"}})
	w.AddJob(&wf.Job{ID: "j3", Command: []string{"x"}, Depends: []string{"j1", "j2"}})

	g, _ := New(w)
	g.Start()
	g.SetState("j2", wf.Dispatched)
	g.SetState("j2", wf.Running)

	g.SetState("j1", wf.Dispatched)
	if _, err := g.MarkFailed("j1"); err != nil {
		t.Fatal(err)
	}

	// The running node is never skipped; only pending/ready successors.
	if st := stateOf(t, g, "j2"); st != wf.Running {
		t.Errorf("j2 state: %s", st)
	}
	if st := stateOf(t, g, "j3"); st != wf.NotRun {
		t.Errorf("j3 state: %s", st)
	}
}

func TestBarrierAutoCompletes(t *testing.T) {
	w := wf.NewWorkflow("barrier")
	w.AddJob(&wf.Job{ID: "j1", Command: []string{"x"}})
	w.AddJob(&wf.Job{ID: "sync", Barrier: true, Depends: []string{"j1"}})
	w.AddJob(&wf.Job{ID: "j2", Command: []string{"x"}, Depends: []string{"sync"}})

	g, _ := New(w)
	g.Start()

	g.SetState("j1", wf.Dispatched)
	if _, err := g.MarkDone("j1"); err != nil {
		t.Fatal(err)
	}

	// The barrier completes without ever being dispatched, and its
	// successor becomes ready in the same pass.
	if st := stateOf(t, g, "sync"); st != wf.Done {
		t.Errorf("sync state: %s", st)
	}
	if st := stateOf(t, g, "j2"); st != wf.Ready {
		t.Errorf("j2 state: %s", st)
	}
}

func TestBarrierOnlyWorkflowCompletesAtStart(t *testing.T) {
	w := wf.NewWorkflow("barriers")
	w.AddJob(&wf.Job{ID: "b1", Barrier: true})
	w.AddJob(&wf.Job{ID: "b2", Barrier: true, Depends: []string{"b1"}})

	g, _ := New(w)
	g.Start()

	if !g.Terminal() {
		t.Error("expected barrier-only workflow to complete at start")
	}
}

func TestReadyOrdering(t *testing.T) {
	w := wf.NewWorkflow("priorities")
	w.AddJob(&wf.Job{ID: "low", Command: []string{"x"}})
	w.AddJob(&wf.Job{ID: "high", Command: []string{"x"}, Priority: 10})
	w.AddJob(&wf.Job{ID: "mid", Command: []string{"x"}, Priority: 5})

	g, _ := New(w)
	g.Start()

	ready := g.Ready()
	want := []string{"high", "mid", "low"}
	for i, id := range want {
		if ready[i] != id {
			t.Fatalf("ready order %v, want %v", ready, want)
		}
	}
}

func TestTransferOrdering(t *testing.T) {
	// Upload -> job -> download, declared through Inputs/Outputs.
	w := wf.NewWorkflow("staging")
	w.AddTransfer(&wf.FileTransfer{ID: "in.txt", ClientPath: "/tmp/in.txt", Direction: wf.Upload})
	w.AddTransfer(&wf.FileTransfer{ID: "out.txt", ClientPath: "/tmp/out.txt", Direction: wf.Download})
	w.AddJob(&wf.Job{
		ID: "j1", Command: []string{"x"},
		Inputs:  []string{"in.txt"},
		Outputs: []string{"out.txt"},
	})

	g, _ := New(w)
	g.Start()

	ready := g.Ready()
	if len(ready) != 1 || ready[0] != "in.txt" {
		t.Fatalf("unexpected ready set: %v", ready)
	}

	g.SetState("in.txt", wf.Dispatched)
	g.MarkDone("in.txt")
	if st := stateOf(t, g, "j1"); st != wf.Ready {
		t.Errorf("j1 state: %s", st)
	}

	g.SetState("j1", wf.Dispatched)
	g.MarkDone("j1")
	if st := stateOf(t, g, "out.txt"); st != wf.Ready {
		t.Errorf("out.txt state: %s", st)
	}
}

func TestMarkNotRunIdempotent(t *testing.T) {
	g, _ := New(chain())
	g.Start()
	g.SetState("j1", wf.Dispatched)

	changes := g.MarkNotRun("stop")
	// j2 and j3 skipped; j1 is in flight and untouched.
	if len(changes) != 2 {
		t.Fatalf("unexpected changes: %v", changes)
	}
	if st := stateOf(t, g, "j1"); st != wf.Dispatched {
		t.Errorf("j1 state: %s", st)
	}
	if origin := g.Origin("j2"); origin != "stop" {
		t.Errorf("j2 origin: %q", origin)
	}

	if again := g.MarkNotRun("stop"); len(again) != 0 {
		t.Errorf("second stop produced changes: %v", again)
	}
}

func TestReset(t *testing.T) {
	g, _ := New(chain())
	g.Start()

	g.SetState("j1", wf.Dispatched)
	g.MarkDone("j1")
	g.SetState("j2", wf.Dispatched)
	g.MarkFailed("j2")

	if !g.Stable() {
		t.Fatal("expected stable graph")
	}

	changes := g.Reset()
	if len(changes) == 0 {
		t.Fatal("expected reset changes")
	}

	// j1 keeps its result; j2 is ready again; j3 waits on j2.
	if st := stateOf(t, g, "j1"); st != wf.Done {
		t.Errorf("j1 state: %s", st)
	}
	if st := stateOf(t, g, "j2"); st != wf.Ready {
		t.Errorf("j2 state: %s", st)
	}
	if st := stateOf(t, g, "j3"); st != wf.Pending {
		t.Errorf("j3 state: %s", st)
	}
	if origin := g.Origin("j3"); origin != "" {
		t.Errorf("j3 origin not cleared: %q", origin)
	}
}

func TestLoadRecounts(t *testing.T) {
	g, _ := New(chain())
	g.Load(map[string]wf.State{
		"j1": wf.Done,
		"j2": wf.Running,
		"j3": wf.Pending,
	}, nil)

	if g.Terminal() {
		t.Error("graph should not be terminal")
	}
	if g.Stable() {
		t.Error("graph should not be stable with j2 running")
	}

	active := g.Active()
	if len(active) != 1 || active[0] != "j2" {
		t.Errorf("unexpected active set: %v", active)
	}

	if _, err := g.MarkDone("j2"); err != nil {
		t.Fatal(err)
	}
	if st := stateOf(t, g, "j3"); st != wf.Ready {
		t.Errorf("j3 state after recount: %s", st)
	}
}

func TestDuplicateEdgesCountOnce(t *testing.T) {
	w := wf.NewWorkflow("dupes")
	w.AddJob(&wf.Job{ID: "j1", Command: []string{"x"}})
	w.AddJob(&wf.Job{ID: "j2", Command: []string{"x"}, Depends: []string{"j1"}})
	// Same edge declared again at the workflow level.
	w.AddDependency("j1", "j2")

	g, _ := New(w)
	g.Start()
	g.SetState("j1", wf.Dispatched)
	g.MarkDone("j1")

	if st := stateOf(t, g, "j2"); st != wf.Ready {
		t.Errorf("j2 state: %s", st)
	}
}
