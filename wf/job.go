package wf

// Job describes a unit of remote execution: a command line run on a
// computing resource, its input/output redirection, resource
// requirements, and the dependencies which must complete before it may
// start.
type Job struct {
	// ID uniquely identifies the job within its workflow.
	// Assigned at construction if empty.
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`

	// Command is the argument list to execute. Arguments may contain
	// path placeholders of the form "${refID}" referencing a
	// FileTransfer, SharedResourcePath, or TemporaryPath registered on
	// the workflow; they are resolved at dispatch time against the
	// target resource.
	Command []string `json:"command,omitempty"`

	// Barrier marks a synchronization-only job. A barrier has no
	// command; it completes as soon as all its dependencies complete.
	Barrier bool `json:"barrier,omitempty"`

	WorkingDirectory string `json:"workingDirectory,omitempty"`

	// Stdin, Stdout and Stderr are redirection targets. Stdout and
	// Stderr default to files under the resource working directory.
	Stdin      string `json:"stdin,omitempty"`
	Stdout     string `json:"stdout,omitempty"`
	Stderr     string `json:"stderr,omitempty"`
	JoinStderr bool   `json:"joinStderr,omitempty"`

	// Resource names the computing resource this job targets.
	// Defaults to the engine's default resource.
	Resource string `json:"resource,omitempty"`

	Resources Resources `json:"resources,omitempty"`

	// NativeSpec is passed through verbatim to the resource manager
	// submission (e.g. "-q long -pe smp 4").
	NativeSpec string `json:"nativeSpec,omitempty"`

	// Priority orders dispatch among simultaneously ready nodes.
	// Higher runs first.
	Priority int `json:"priority,omitempty"`

	// DisposalTimeout is the number of hours the job's results outlive
	// the workflow before cleanup is allowed.
	DisposalTimeout int `json:"disposalTimeout,omitempty"`

	// Depends lists node IDs which must complete successfully before
	// this job may start. Workflow-level dependency edges are merged
	// with this list.
	Depends []string `json:"depends,omitempty"`

	// Inputs and Outputs reference FileTransfer IDs read and produced
	// by this job. An input transfer implies a dependency edge
	// transfer -> job; an output download transfer implies job -> transfer.
	Inputs  []string `json:"inputs,omitempty"`
	Outputs []string `json:"outputs,omitempty"`
}

// Resources describes the resources requested by a job.
type Resources struct {
	CPUCores int     `json:"cpuCores,omitempty"`
	RAMGb    float64 `json:"ramGb,omitempty"`
	DiskGb   float64 `json:"diskGb,omitempty"`
	// WallTime is the requested maximum run time, e.g. "2h30m".
	WallTime string `json:"wallTime,omitempty"`
	// Queue is the resource manager queue or partition name.
	Queue string `json:"queue,omitempty"`
	// ParallelEnv names the parallel environment (e.g. MPI
	// configuration) and Nodes the number of nodes requested for it.
	ParallelEnv string `json:"parallelEnv,omitempty"`
	Nodes       int    `json:"nodes,omitempty"`
}

// NewJob returns a new Job with the given name and command.
func NewJob(name string, command ...string) *Job {
	return &Job{Name: name, Command: command}
}

// NewBarrierJob returns a new barrier job depending on the given nodes.
// A barrier has no command and exists purely as a synchronization
// point gating its downstream nodes.
func NewBarrierJob(name string, depends ...string) *Job {
	return &Job{Name: name, Barrier: true, Depends: depends}
}
