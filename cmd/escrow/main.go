// Package main implements a command-line tool to run trades described in YAML
// files and to read the journal of their outcomes.
//
//  escrow run --scenario swap.yaml --journal escrow.db --promaddr :9100
//  escrow journal show --journal escrow.db --instance XXX
package main

import (
	"fmt"
	"io"
	"os"

	"go.dedis.ch/escrow/cli"
	"go.dedis.ch/escrow/cli/urfave"
)

var printer io.Writer = os.Stderr

var out io.Writer = os.Stdout

func main() {
	err := run(os.Args)
	if err != nil {
		fmt.Fprintf(printer, "%+v\n", err)
	}
}

func run(args []string) error {
	builder := urfave.NewBuilder("escrow", nil)
	builder.SetUsage("atomic exchange of assets between parties")
	builder.SetWriter(out)

	builder.Apply(commands{out: out})

	return builder.Build().Run(args)
}

// commands is the initializer of the commands of the tool.
//
// - implements cli.Initializer
type commands struct {
	out io.Writer
}

// SetCommands implements cli.Initializer.
func (c commands) SetCommands(builder cli.Builder) {
	cmd := builder.SetCommand("run")
	cmd.SetDescription("run the trade of a scenario")
	cmd.SetFlags(
		cli.PathFlag{
			Name:     "scenario",
			Usage:    "path to the YAML scenario",
			Required: true,
		},
		cli.PathFlag{
			Name:  "journal",
			Usage: "path to the journal where the outcome is recorded",
		},
		cli.StringFlag{
			Name:  "promaddr",
			Usage: "address to serve the metrics on, disabled if empty",
		},
		cli.DurationFlag{
			Name:  "timeout",
			Usage: "cancel the trade after the delay, overrides the scenario",
		},
	)
	cmd.SetAction(runAction{out: c.out}.Execute)

	cmd = builder.SetCommand("journal")
	cmd.SetDescription("read the journal of the outcomes")

	sub := cmd.SetSubCommand("show")
	sub.SetDescription("print the outcomes recorded in a journal")
	sub.SetFlags(
		cli.PathFlag{
			Name:     "journal",
			Usage:    "path to the journal",
			Required: true,
		},
		cli.StringFlag{
			Name:  "instance",
			Usage: "only print the outcome of the instance",
		},
	)
	sub.SetAction(showAction{out: c.out}.Execute)
}
