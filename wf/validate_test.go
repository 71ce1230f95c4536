package wf

import (
	"strings"
	"testing"
)

func validWorkflow() *Workflow {
	w := NewWorkflow("test")
	w.AddTransfer(NewUpload("in.txt", "/data/in.txt"))
	w.AddJob(&Job{
		ID:      "j1",
		Command: []string{"cat", Ref("in.txt")},
		Inputs:  []string{"in.txt"},
	})
	return w
}

func errContains(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing %q", want)
	}
	if !strings.Contains(err.Error(), want) {
		t.Fatalf("error %q does not mention %q", err, want)
	}
}

func TestValidateOK(t *testing.T) {
	if err := Validate(validWorkflow()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateEmpty(t *testing.T) {
	err := Validate(NewWorkflow(""))
	errContains(t, err, "name is required")
	errContains(t, err, "no nodes")
}

func TestValidateDuplicateIDs(t *testing.T) {
	w := NewWorkflow("dupes")
	w.AddJob(&Job{ID: "x", Command: []string{"a"}})
	w.AddJob(&Job{ID: "x", Command: []string{"b"}})
	errContains(t, Validate(w), `duplicate node ID "x"`)
}

func TestValidatePathCollision(t *testing.T) {
	w := validWorkflow()
	w.AddSharedPath("j1", SharedResourcePath{Namespace: "ns", RelativePath: "p"})
	errContains(t, Validate(w), "collides with a node ID")
}

func TestValidateBarrier(t *testing.T) {
	w := NewWorkflow("barriers")
	w.AddJob(&Job{ID: "b", Barrier: true, Command: []string{"nope"}})
	errContains(t, Validate(w), "must not have a command")

	w2 := NewWorkflow("jobs")
	w2.AddJob(&Job{ID: "j"})
	errContains(t, Validate(w2), "has no command")
}

func TestValidateUnknownRef(t *testing.T) {
	w := NewWorkflow("refs")
	w.AddJob(&Job{ID: "j1", Command: []string{"cat", Ref("missing")}})
	errContains(t, Validate(w), `unknown path "missing"`)
}

func TestValidateInputMustBeTransfer(t *testing.T) {
	w := NewWorkflow("inputs")
	w.AddJob(&Job{ID: "j1", Command: []string{"a"}})
	w.AddJob(&Job{ID: "j2", Command: []string{"b"}, Inputs: []string{"j1"}})
	errContains(t, Validate(w), "is not a transfer")
}

func TestValidateSelfDependency(t *testing.T) {
	w := NewWorkflow("self")
	w.AddJob(&Job{ID: "j1", Command: []string{"a"}, Depends: []string{"j1"}})
	errContains(t, Validate(w), "depends on itself")
}

func TestValidateDanglingEdge(t *testing.T) {
	w := NewWorkflow("dangling")
	w.AddJob(&Job{ID: "j1", Command: []string{"a"}})
	w.AddDependency("ghost", "j1")
	errContains(t, Validate(w), `unknown node "ghost"`)
}

func TestValidateGroups(t *testing.T) {
	w := validWorkflow()
	w.AddGroup(Group{
		Name:     "outer",
		Elements: []string{"j1"},
		Groups: []Group{
			{Name: "inner", Elements: []string{"ghost"}},
		},
	})
	errContains(t, Validate(w), `group "inner" references unknown node "ghost"`)
}

func TestRefs(t *testing.T) {
	refs := Refs("cp ${a} ${b-2.txt} plain")
	if len(refs) != 2 || refs[0] != "a" || refs[1] != "b-2.txt" {
		t.Errorf("unexpected refs: %v", refs)
	}

	out := ResolveRefs("cp ${a} ${missing}", func(id string) (string, bool) {
		if id == "a" {
			return "/data/a", true
		}
		return "", false
	})
	// Unresolvable placeholders are left verbatim.
	if out != "cp /data/a ${missing}" {
		t.Errorf("unexpected resolution: %q", out)
	}
}
