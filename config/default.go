package config

import (
	"os"
	"path"
	"time"

	"github.com/somaflow/somaflow/logger"
)

// DefaultConfig returns configuration with simple defaults: a single
// local resource and an embedded BoltDB database under a working
// directory in the current directory.
func DefaultConfig() Config {
	cwd, _ := os.Getwd()
	workDir := path.Join(cwd, "somaflow-work-dir")

	return Config{
		Server: Server{
			HostName: "localhost",
			HTTPPort: "8070",
		},
		Database: "boltdb",
		Databases: Databases{
			BoltDB: BoltDB{
				Path: path.Join(workDir, "somaflow.db"),
			},
		},
		Scheduler: Scheduler{
			TickRate:    Duration(time.Second),
			MaxInFlight: 100,
			PoolSize:    20,
		},
		Monitor: Monitor{
			PollRate:          Duration(time.Second * 2),
			PollLimit:         50,
			MaxStatusFailures: 5,
			CallTimeout:       Duration(time.Second * 30),
			KillTimeout:       Duration(time.Minute * 2),
		},
		DefaultResource: "local",
		Resources: map[string]Resource{
			"local": {
				Backend:     "local",
				WorkDir:     path.Join(workDir, "jobs"),
				StorageRoot: path.Join(workDir, "storage"),
			},
		},
		EventWriters: []string{"log", "boltdb"},
		Logger:       logger.DefaultConfig(),
	}
}
