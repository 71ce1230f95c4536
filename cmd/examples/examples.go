// Package examples implements the "somaflow examples" command, which
// prints example workflow and config documents.
package examples

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/somaflow/somaflow/config"
)

var examples = map[string]string{
	"hello-world": helloWorld,
	"pipeline":    pipeline,
}

// Cmd represents the "examples" command.
var Cmd = &cobra.Command{
	Use:   "examples [name]",
	Short: "Print example workflow and config files.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			var names []string
			for name := range examples {
				names = append(names, name)
			}
			names = append(names, "config")
			sort.Strings(names)
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(names, "\n"))
			return nil
		}

		name := args[0]
		if name == "config" {
			b, err := config.ToYaml(config.DefaultConfig())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		}
		doc, ok := examples[name]
		if !ok {
			return fmt.Errorf("no example named %q", name)
		}
		fmt.Fprintln(cmd.OutOrStdout(), doc)
		return nil
	},
}

var helloWorld = `name: hello-world
jobs:
  - id: hello
    name: say hello
    command: ["echo", "hello world"]
`

var pipeline = `name: two-step-pipeline
transfers:
  - id: input.txt
    clientPath: /data/input.txt
    direction: UPLOAD
  - id: result.txt
    clientPath: /data/result.txt
    direction: DOWNLOAD
jobs:
  - id: step1
    name: transform
    command: ["transform", "${input.txt}", "${tmp1}"]
    inputs: ["input.txt"]
  - id: step2
    name: summarize
    command: ["summarize", "${tmp1}", "${result.txt}"]
    depends: ["step1"]
    outputs: ["result.txt"]
tempPaths:
  tmp1:
    suffix: .dat
`
