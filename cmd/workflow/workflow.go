// Package workflow implements the "somaflow workflow" CLI commands,
// which call the workflow API of a somaflow server.
package workflow

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/somaflow/somaflow/client"
)

var defaultServer = "http://localhost:8070"

// NewCommand returns the "workflow" subcommands.
func NewCommand() *cobra.Command {
	server := defaultServer

	cmd := &cobra.Command{
		Use:     "workflow",
		Aliases: []string{"workflows", "wf"},
		Short:   "Make API calls to a somaflow server.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if server == defaultServer {
				if val := os.Getenv("SOMAFLOW_SERVER"); val != "" {
					server = val
				}
			}
		},
	}
	f := pflag.NewFlagSet("workflow", pflag.ContinueOnError)
	f.StringVarP(&server, "server", "S", defaultServer, "Address of the somaflow server")
	cmd.PersistentFlags().AddFlagSet(f)

	cmd.AddCommand(
		submitCmd(&server),
		listCmd(&server),
		statusCmd(&server),
		eventsCmd(&server),
		stopCmd(&server),
		killCmd(&server),
		restartCmd(&server),
		deleteCmd(&server),
		waitCmd(&server),
	)
	return cmd
}

func newClient(server *string) (*client.Client, error) {
	return client.NewClient(*server)
}
