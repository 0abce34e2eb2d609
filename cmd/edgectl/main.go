// edgectl creates, inspects and removes edge device deployments from the
// command line.
package main

import (
	"os"

	"edge-deploy-service/cmd/edgectl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
