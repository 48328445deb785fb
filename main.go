// Package main is the entry point for the tubeflow application.
package main

import (
	"github.com/samber/lo"
	"github.com/tubeflow-cli/tubeflow/cmd"
	"github.com/tubeflow-cli/tubeflow/config"
	"github.com/tubeflow-cli/tubeflow/log"
)

func main() {
	lo.Must0(config.Setup())
	lo.Must0(log.Setup())

	cmd.Execute()
}
