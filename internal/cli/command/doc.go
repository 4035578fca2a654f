// Package command defines the rafterctl commands using urfave/cli/v2.
//
// Every command reads one node's admin endpoint, chosen with --admin, and
// prints the result in the format chosen with --output.
package command
