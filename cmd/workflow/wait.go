package workflow

import (
	"github.com/spf13/cobra"
)

func waitCmd(server *string) *cobra.Command {
	return &cobra.Command{
		Use:   "wait [workflowID ...]",
		Short: "Wait for one or more workflows to reach a terminal state.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := newClient(server)
			if err != nil {
				return err
			}
			return cli.WaitForWorkflow(cmd.Context(), args...)
		},
	}
}
