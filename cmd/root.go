// Package cmd contains the somaflow CLI commands.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/somaflow/somaflow/cmd/examples"
	"github.com/somaflow/somaflow/cmd/server"
	"github.com/somaflow/somaflow/cmd/version"
	"github.com/somaflow/somaflow/cmd/workflow"
)

// RootCmd represents the root command
var RootCmd = &cobra.Command{
	Use:           "somaflow",
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	RootCmd.AddCommand(examples.Cmd)
	RootCmd.AddCommand(server.NewCommand())
	RootCmd.AddCommand(version.Cmd)
	RootCmd.AddCommand(workflow.NewCommand())
}
