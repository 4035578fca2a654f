package command

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/rafter-go/internal/cli/connection"
	"github.com/yndnr/rafter-go/internal/cli/output"
	"github.com/yndnr/rafter-go/internal/infra/buildinfo"
)

// App creates the rafterctl application.
func App() *cli.App {
	return &cli.App{
		Name:    "rafterctl",
		Usage:   "inspect a rafter-node through its admin endpoint",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			StatusCommand(),
			LinksCommand(),
			HealthCommand(),
			MetricsCommand(),
		},
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "admin",
			Aliases: []string{"a"},
			Usage:   "admin address of the node (host:port or URL)",
			EnvVars: []string{"RAFTER_ADMIN"},
			Value:   "127.0.0.1:5090",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "output format: table, json, yaml",
			Value:   string(output.FormatTable),
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "request timeout",
			Value: connection.DefaultTimeout,
		},
		&cli.BoolFlag{
			Name:  "no-headers",
			Usage: "omit table headers",
		},
	}
}

// GlobalFlags defines flags available to all commands.
type GlobalFlags struct {
	Admin     string
	Output    output.Format
	NoHeaders bool
}

// ParseGlobalFlags extracts and validates global flags from context.
func ParseGlobalFlags(c *cli.Context) (*GlobalFlags, error) {
	format, err := output.ParseFormat(c.String("output"))
	if err != nil {
		return nil, err
	}
	return &GlobalFlags{
		Admin:     c.String("admin"),
		Output:    format,
		NoHeaders: c.Bool("no-headers"),
	}, nil
}

// client builds the admin client for the --admin flag.
func client(c *cli.Context) *connection.AdminClient {
	return connection.NewAdminClient(c.String("admin"), c.Duration("timeout"), "rafterctl/"+buildinfo.Version)
}

// render writes data to the app writer in the selected format.
func render(c *cli.Context, data any) error {
	flags, err := ParseGlobalFlags(c)
	if err != nil {
		return err
	}
	var w io.Writer = c.App.Writer
	if flags.Output == output.FormatTable {
		return (&output.TableFormatter{NoHeaders: flags.NoHeaders}).Format(w, data)
	}
	return output.NewFormatter(flags.Output).Format(w, data)
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
