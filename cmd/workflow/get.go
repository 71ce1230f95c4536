package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func listCmd(server *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all workflows.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := newClient(server)
			if err != nil {
				return err
			}
			out, err := cli.List(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
}

func statusCmd(server *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status [workflowID ...]",
		Short: "Get the status of one or more workflows by ID.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := newClient(server)
			if err != nil {
				return err
			}
			for _, id := range args {
				out, err := cli.Status(cmd.Context(), id)
				if err != nil {
					return err
				}
				if err := printJSON(cmd, out); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func eventsCmd(server *string) *cobra.Command {
	return &cobra.Command{
		Use:   "events [workflowID]",
		Short: "List the event log of a workflow.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := newClient(server)
			if err != nil {
				return err
			}
			out, err := cli.Events(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}
