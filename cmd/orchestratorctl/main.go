// Package main provides the orchestratorctl CLI entrypoint.
//
// orchestratorctl is a local, read-mostly operator tool: it compiles and
// validates policy specs, previews a dry-run against a fixture inventory,
// and inspects exported ledger/metrics snapshots. It never talks to a
// running orchestratord over a network — there is no such API surface.
//
// Usage:
//
//	orchestratorctl <command> [subcommand] [options]
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/haltline/haltd/cli/cmd"
)

// commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "orchestratorctl",
		Usage:          "UPS-aware orchestrator operator CLI",
		Version:        fmt.Sprintf("%s (commit: %s)", cmd.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.CompileCommand(),
			cmd.ValidateCommand(),
			cmd.DryRunCommand(),
			cmd.InspectCommand(),
			cmd.StatsCommand(),
			cmd.DebugCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

// exitErrHandler preserves exit codes from cli.Exit() while still printing
// a message for errors that weren't deliberately wrapped.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
