package workflow

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/somaflow/somaflow/client"
)

func stopCmd(server *string) *cobra.Command {
	return controlCmd(server, "stop",
		"Stop one or more workflows by ID.",
		func(cli *client.Client) func(context.Context, string) error { return cli.Stop })
}

func killCmd(server *string) *cobra.Command {
	return controlCmd(server, "kill",
		"Stop one or more workflows, forcing in-flight nodes to killed.",
		func(cli *client.Client) func(context.Context, string) error { return cli.Kill })
}

func restartCmd(server *string) *cobra.Command {
	return controlCmd(server, "restart",
		"Restart the failed and skipped parts of one or more workflows.",
		func(cli *client.Client) func(context.Context, string) error { return cli.Restart })
}

func deleteCmd(server *string) *cobra.Command {
	return controlCmd(server, "delete",
		"Delete one or more settled workflows and their stored state.",
		func(cli *client.Client) func(context.Context, string) error { return cli.Delete })
}

func controlCmd(server *string, verb, short string, op func(*client.Client) func(context.Context, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " [workflowID ...]",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := newClient(server)
			if err != nil {
				return err
			}
			for _, id := range args {
				if err := op(cli)(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}
