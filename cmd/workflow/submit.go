package workflow

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ghodss/yaml"
	"github.com/spf13/cobra"

	"github.com/somaflow/somaflow/wf"
)

func submitCmd(server *string) *cobra.Command {
	return &cobra.Command{
		Use:   "submit [workflow.yaml ...]",
		Short: "Submit one or more workflows to run on the server.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := newClient(server)
			if err != nil {
				return err
			}
			for _, arg := range args {
				w, err := loadWorkflow(arg)
				if err != nil {
					return err
				}
				id, err := cli.Submit(cmd.Context(), w)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

// loadWorkflow reads a workflow document from a YAML or JSON file, or
// parses the argument directly when it is inline JSON.
func loadWorkflow(arg string) (*wf.Workflow, error) {
	raw := []byte(arg)
	if !isJSON(arg) {
		b, err := os.ReadFile(arg)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	w := &wf.Workflow{}
	if err := yaml.Unmarshal(raw, w); err != nil {
		return nil, fmt.Errorf("error parsing workflow %s: %v", arg, err)
	}
	return w, nil
}

func isJSON(s string) bool {
	var js map[string]interface{}
	return json.Unmarshal([]byte(s), &js) == nil
}
