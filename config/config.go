// Package config contains somaflow configuration structures and
// defaults.
package config

import (
	"fmt"

	"github.com/somaflow/somaflow/logger"
)

// Config describes configuration for the somaflow engine and server.
type Config struct {
	Server    Server
	Database  string
	Databases Databases
	Scheduler Scheduler
	Monitor   Monitor

	// DefaultResource names the resource used by nodes which don't
	// declare one.
	DefaultResource string

	// Resources configures the computing resources the engine may
	// dispatch to, keyed by resource name.
	Resources map[string]Resource

	// EventWriters lists the active event writers: "log", "boltdb".
	EventWriters []string

	Logger logger.Config
}

// Server describes the HTTP server configuration.
type Server struct {
	HostName string
	HTTPPort string
}

// HTTPAddress returns the HTTP address of the server.
func (s Server) HTTPAddress() string {
	if s.HostName == "" {
		return ""
	}
	return "http://" + s.HostName + ":" + s.HTTPPort
}

// Databases groups the configuration of the available database
// backends.
type Databases struct {
	BoltDB BoltDB
}

// BoltDB describes the embedded BoltDB database configuration.
type BoltDB struct {
	Path string
}

// Scheduler describes scheduling/dispatch configuration.
type Scheduler struct {
	// TickRate is the interval between scheduling iterations. Ticks
	// are also triggered immediately by graph-state changes.
	TickRate Duration

	// MaxInFlight caps the number of simultaneously dispatched nodes
	// per workflow, when the workflow doesn't set its own cap.
	MaxInFlight int

	// PoolSize bounds the number of concurrent backend adapter calls.
	PoolSize int
}

// Monitor describes status-monitoring configuration.
type Monitor struct {
	// PollRate is the interval between status poll sweeps.
	PollRate Duration

	// PollLimit rate-limits backend status queries, in queries per
	// second across all workflows.
	PollLimit float64

	// MaxStatusFailures is the number of consecutive failed status
	// queries after which a node's status becomes unknown and is
	// escalated.
	MaxStatusFailures int

	// CallTimeout bounds every backend adapter call.
	CallTimeout Duration

	// KillTimeout is how long to wait for a backend to confirm a
	// cancellation before forcing the node to killed.
	KillTimeout Duration
}

// Resource describes one computing resource the engine dispatches to.
type Resource struct {
	// Backend selects the adapter: "local", "noop", "gridengine",
	// "pbs", "slurm", "htcondor".
	Backend string

	// MaxInFlight caps the number of simultaneously dispatched nodes
	// on this resource, across workflows. Zero means unlimited.
	MaxInFlight int

	// WorkDir is the root of per-job working directories. For HPC
	// backends it must be on the shared filesystem.
	WorkDir string

	// StorageRoot is the root under which file transfers are staged
	// on this resource.
	StorageRoot string

	// Paths maps shared resource path namespaces to site-specific
	// base directories.
	Paths map[string]string

	// SubmitTemplate overrides the backend's submit file template.
	SubmitTemplate string
}

// Validate does light sanity checking of the configuration.
func (c Config) Validate() error {
	if c.DefaultResource == "" {
		return fmt.Errorf("config: DefaultResource is required")
	}
	if _, ok := c.Resources[c.DefaultResource]; !ok {
		return fmt.Errorf("config: DefaultResource %q is not configured", c.DefaultResource)
	}
	for name, res := range c.Resources {
		switch res.Backend {
		case "local", "noop", "gridengine", "pbs", "slurm", "htcondor":
		default:
			return fmt.Errorf("config: resource %q has unknown backend %q", name, res.Backend)
		}
		if res.WorkDir == "" {
			return fmt.Errorf("config: resource %q has no WorkDir", name)
		}
	}
	switch c.Database {
	case "boltdb", "inmem":
	default:
		return fmt.Errorf("config: unknown database %q", c.Database)
	}
	return nil
}
