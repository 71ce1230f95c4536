package main

import (
	"os"

	"github.com/somaflow/somaflow/cmd"
	"github.com/somaflow/somaflow/logger"
)

func main() {
	if err := cmd.RootCmd.Execute(); err != nil {
		logger.PrintSimpleError(err)
		os.Exit(1)
	}
}
