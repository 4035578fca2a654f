// Command rafterctl inspects a running rafter-node through its admin
// endpoint.
//
//	rafterctl -a 10.0.0.1:5090 status
//	rafterctl links -o yaml
package main

import (
	"fmt"
	"os"

	"github.com/yndnr/rafter-go/internal/cli/command"
)

func main() {
	app := command.App()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
