package wf

import (
	"time"

	"github.com/somaflow/somaflow/util"
)

func genNodeID() string {
	return util.GenID()
}

// Dependency is a dependency edge: Post may not start until Pre has
// completed successfully.
type Dependency struct {
	Pre  string `json:"pre"`
	Post string `json:"post"`
}

// Workflow is the top-level owning container for a set of jobs, file
// transfers, special paths and groups, plus the dependency edges
// between them. Entities are identified uniquely within the workflow
// and do not outlive it.
//
// A workflow is built client-side, then submitted to the engine, which
// copies it into engine-owned state. After submission only the engine
// mutates workflow state.
type Workflow struct {
	// ID is assigned by the engine at submission.
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`

	Jobs      []*Job          `json:"jobs,omitempty"`
	Transfers []*FileTransfer `json:"transfers,omitempty"`

	// SharedPaths and TempPaths register special paths by reference
	// ID, usable as "${id}" placeholders in job commands.
	SharedPaths map[string]SharedResourcePath `json:"sharedPaths,omitempty"`
	TempPaths   map[string]TemporaryPath      `json:"tempPaths,omitempty"`

	Dependencies []Dependency `json:"dependencies,omitempty"`

	Groups []Group `json:"groups,omitempty"`

	// MaxConcurrent caps the number of simultaneously dispatched nodes
	// for this workflow. Zero means the engine default.
	MaxConcurrent int `json:"maxConcurrent,omitempty"`

	// Created is set by the engine at submission.
	Created time.Time `json:"created,omitempty"`
}

// NewWorkflow returns a new, empty workflow with the given name.
func NewWorkflow(name string) *Workflow {
	return &Workflow{Name: name}
}

// AddJob adds a job to the workflow, assigning an ID if the job
// doesn't have one. Returns the job for chaining.
func (w *Workflow) AddJob(j *Job) *Job {
	if j.ID == "" {
		j.ID = genNodeID()
	}
	w.Jobs = append(w.Jobs, j)
	return j
}

// AddBarrier adds a barrier job depending on the given nodes.
func (w *Workflow) AddBarrier(name string, depends ...string) *Job {
	return w.AddJob(NewBarrierJob(name, depends...))
}

// AddTransfer adds a file transfer to the workflow, assigning an ID if
// the transfer doesn't have one. Returns the transfer for chaining.
func (w *Workflow) AddTransfer(t *FileTransfer) *FileTransfer {
	if t.ID == "" {
		t.ID = genNodeID()
	}
	w.Transfers = append(w.Transfers, t)
	return t
}

// AddSharedPath registers a shared resource path under the given
// reference ID.
func (w *Workflow) AddSharedPath(id string, p SharedResourcePath) {
	if w.SharedPaths == nil {
		w.SharedPaths = map[string]SharedResourcePath{}
	}
	w.SharedPaths[id] = p
}

// AddTempPath registers a temporary path under the given reference ID.
func (w *Workflow) AddTempPath(id string, p TemporaryPath) {
	if w.TempPaths == nil {
		w.TempPaths = map[string]TemporaryPath{}
	}
	w.TempPaths[id] = p
}

// AddDependency declares that "post" may not start until "pre" has
// completed successfully.
func (w *Workflow) AddDependency(pre, post string) {
	w.Dependencies = append(w.Dependencies, Dependency{Pre: pre, Post: post})
}

// AddGroup adds a presentation group.
func (w *Workflow) AddGroup(g Group) {
	w.Groups = append(w.Groups, g)
}

// GetJob returns the job with the given ID, or nil.
func (w *Workflow) GetJob(id string) *Job {
	for _, j := range w.Jobs {
		if j.ID == id {
			return j
		}
	}
	return nil
}

// GetTransfer returns the transfer with the given ID, or nil.
func (w *Workflow) GetTransfer(id string) *FileTransfer {
	for _, t := range w.Transfers {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// NodeIDs returns the IDs of all jobs and transfers in insertion
// order: jobs first, then transfers.
func (w *Workflow) NodeIDs() []string {
	ids := make([]string, 0, len(w.Jobs)+len(w.Transfers))
	for _, j := range w.Jobs {
		ids = append(ids, j.ID)
	}
	for _, t := range w.Transfers {
		ids = append(ids, t.ID)
	}
	return ids
}

// HasNode returns true if a job or transfer with the given ID exists.
func (w *Workflow) HasNode(id string) bool {
	return w.GetJob(id) != nil || w.GetTransfer(id) != nil
}

// Edges returns all dependency edges: workflow-level Dependencies
// merged with each node's Depends list and the implicit edges from job
// Inputs (transfer -> job) and Outputs (job -> transfer).
func (w *Workflow) Edges() []Dependency {
	var edges []Dependency
	edges = append(edges, w.Dependencies...)
	for _, j := range w.Jobs {
		for _, d := range j.Depends {
			edges = append(edges, Dependency{Pre: d, Post: j.ID})
		}
		for _, in := range j.Inputs {
			edges = append(edges, Dependency{Pre: in, Post: j.ID})
		}
		for _, out := range j.Outputs {
			edges = append(edges, Dependency{Pre: j.ID, Post: out})
		}
	}
	for _, t := range w.Transfers {
		for _, d := range t.Depends {
			edges = append(edges, Dependency{Pre: d, Post: t.ID})
		}
	}
	return edges
}
