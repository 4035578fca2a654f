package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/rafter-go/internal/infra/buildinfo"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	// -v is taken by --verbosity.
	cli.VersionFlag = &cli.BoolFlag{Name: "version", Usage: "print the version"}

	return &cli.App{
		Name:      "rafter-node",
		Usage:     "run a rafter cluster member",
		ArgsUsage: "<node-name>",
		Version:   buildinfo.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "cluster configuration file",
				EnvVars: []string{"RAFTER_CONFIG"},
				Value:   "config.yaml",
			},
			&cli.StringFlag{
				Name:    "verbosity",
				Aliases: []string{"v"},
				Usage:   "log level override: trace, debug, info, warn, error",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("exactly one node name is required", 2)
			}
			return run(c.Context, options{
				Name:       c.Args().First(),
				ConfigPath: c.String("config"),
				Verbosity:  c.String("verbosity"),
			})
		},
	}
}

// run starts the node and blocks until a signal arrives or ctx is done.
func run(ctx context.Context, opts options) error {
	n, err := start(ctx, opts)
	if err != nil {
		return err
	}
	n.logger.Info("node started, press Ctrl+C to stop")
	if err := n.shutdown.Wait(ctx); err != nil {
		n.logger.Error("shutdown finished with errors", "error", err)
		return err
	}
	n.logger.Info("node stopped")
	return nil
}
