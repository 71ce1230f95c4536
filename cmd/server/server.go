// Package server implements the "somaflow server" command.
package server

import (
	"context"
	"fmt"
	"strings"
	"syscall"
	"time"

	"github.com/imdario/mergo"
	"github.com/spf13/cobra"

	"github.com/somaflow/somaflow/cmd/version"
	"github.com/somaflow/somaflow/compute"
	"github.com/somaflow/somaflow/compute/hpc"
	"github.com/somaflow/somaflow/compute/local"
	"github.com/somaflow/somaflow/compute/noop"
	"github.com/somaflow/somaflow/config"
	"github.com/somaflow/somaflow/database/boltdb"
	"github.com/somaflow/somaflow/database/inmem"
	"github.com/somaflow/somaflow/engine"
	"github.com/somaflow/somaflow/events"
	"github.com/somaflow/somaflow/logger"
	"github.com/somaflow/somaflow/server"
	"github.com/somaflow/somaflow/transfer"
	"github.com/somaflow/somaflow/util"
)

// NewCommand returns the "server" command.
func NewCommand() *cobra.Command {
	var configFile string
	flagConf := config.Config{}

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Runs a somaflow server.",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf := config.DefaultConfig()
			if err := config.ParseFile(configFile, &conf); err != nil {
				return err
			}

			// file vals <- cli vals
			if err := mergo.Merge(&conf, flagConf, mergo.WithOverride); err != nil {
				return err
			}
			if err := conf.Validate(); err != nil {
				return err
			}

			ctx := util.SignalContext(context.Background(), time.Millisecond*100,
				syscall.SIGINT, syscall.SIGTERM)
			return Run(ctx, conf)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&configFile, "config", "c", "", "Config file")
	f.StringVar(&flagConf.Server.HostName, "hostname", "", "Host name or IP")
	f.StringVar(&flagConf.Server.HTTPPort, "http-port", "", "HTTP port")
	f.StringVar(&flagConf.Logger.Level, "log-level", "", "Level of logging")
	f.StringVar(&flagConf.Logger.OutputFile, "log-path", "", "File path to write logs to")
	f.StringVar(&flagConf.Databases.BoltDB.Path, "db-path", "", "Database path")
	f.StringVar(&flagConf.DefaultResource, "default-resource", "", "Name of the default resource")

	return cmd
}

// Run runs a somaflow server: it opens the database, builds the
// engine with one backend per configured resource, and serves the
// workflow API. Blocks until the context is canceled.
func Run(ctx context.Context, conf config.Config) error {
	log := logger.New("somaflow")
	log.Configure(conf.Logger)
	version.Log(log)

	store, err := openStore(conf)
	if err != nil {
		return fmt.Errorf("error opening database: %v", err)
	}
	defer store.Close()

	writer, err := eventWriter(conf, store)
	if err != nil {
		return err
	}

	backends, err := buildBackends(conf, log)
	if err != nil {
		return err
	}

	eng := engine.New(conf, store, backends,
		transfer.NewService(log.Sub("transfer")), writer, log.Sub("engine"))
	srv := server.DefaultServer(eng, conf, log.Sub("server"))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var srverr error
	go func() {
		srverr = srv.Serve(ctx)
		cancel()
	}()

	if err := eng.Run(ctx); err != nil {
		return err
	}
	return srverr
}

func openStore(conf config.Config) (engine.Store, error) {
	switch strings.ToLower(conf.Database) {
	case "boltdb":
		return boltdb.NewBoltDB(conf.Databases.BoltDB)
	case "inmem":
		return inmem.NewInMem(), nil
	}
	return nil, fmt.Errorf("unknown database %q", conf.Database)
}

func eventWriter(conf config.Config, store engine.Store) (events.Writer, error) {
	var writers []events.Writer
	for _, name := range conf.EventWriters {
		switch strings.ToLower(name) {
		case "log":
			writers = append(writers, events.NewLogger("events"))
		case "boltdb", "inmem":
			w, ok := store.(events.Writer)
			if !ok {
				return nil, fmt.Errorf("database %q cannot record events", conf.Database)
			}
			writers = append(writers, w)
		default:
			return nil, fmt.Errorf("unknown event writer %q", name)
		}
	}
	if len(writers) == 0 {
		return events.Discard, nil
	}
	return events.MultiWriter(writers...), nil
}

// buildBackends creates one backend adapter per configured resource.
func buildBackends(conf config.Config, log *logger.Logger) (map[string]compute.Backend, error) {
	backends := map[string]compute.Backend{}
	for name, res := range conf.Resources {
		blog := log.Sub(res.Backend).WithFields("resource", name)
		switch strings.ToLower(res.Backend) {
		case "local":
			backends[name] = local.NewBackend(blog)
		case "noop":
			backends[name] = noop.NewBackend()
		case "gridengine":
			backends[name] = hpc.NewGridEngine(res.WorkDir, res.SubmitTemplate, blog)
		case "pbs":
			backends[name] = hpc.NewPBS(res.WorkDir, res.SubmitTemplate, blog)
		case "slurm":
			backends[name] = hpc.NewSlurm(res.WorkDir, res.SubmitTemplate, blog)
		case "htcondor":
			backends[name] = hpc.NewHTCondor(res.WorkDir, res.SubmitTemplate, blog)
		default:
			return nil, fmt.Errorf("resource %q has unknown backend %q", name, res.Backend)
		}
	}
	return backends, nil
}
