package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/haltline/haltd/cli/render"
	"github.com/haltline/haltd/driver/fixture"
	"github.com/haltline/haltd/selector"
	"github.com/haltline/haltd/types"
)

// DebugCommand returns the debug command with subcommands.
// Debug commands are opt-in diagnostic tools, read-only, no TUI.
func DebugCommand() *cli.Command {
	return &cli.Command{
		Name:  "debug",
		Usage: "Diagnostic tools (selector expansion, fixture connectivity)",
		Subcommands: []*cli.Command{
			debugResolveCommand(),
			debugInventoryCommand(),
		},
	}
}

func debugResolveCommand() *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Usage:     "Expand a selector against its grammar, without touching an inventory",
		ArgsUsage: "<value>",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:  "mode",
				Usage: "Selector mode: list or range",
				Value: string(types.SelectorModeList),
			},
		),
		Action: debugResolveAction,
	}
}

// ResolveSelectorResponse is the result of expanding a selector.
type ResolveSelectorResponse struct {
	Mode        string   `json:"mode"`
	Value       string   `json:"value"`
	ResolvedIDs []string `json:"resolved_ids"`
}

func debugResolveAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("selector value required", 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for debug commands", 1)
	}

	sel := types.Selector{Mode: types.SelectorMode(c.String("mode")), Value: c.Args().First()}
	ids, err := selector.Expand(sel)
	if err != nil {
		return cli.Exit(fmt.Sprintf("selector expansion failed: %v", err), 1)
	}

	return r.Render(ResolveSelectorResponse{Mode: string(sel.Mode), Value: sel.Value, ResolvedIDs: ids})
}

func debugInventoryCommand() *cli.Command {
	return &cli.Command{
		Name:      "inventory",
		Usage:     "Probe a fixture driver's connectivity, capabilities, and targets",
		ArgsUsage: "<fixture.yaml>",
		Flags:     ReadOnlyFlags(),
		Action:    debugInventoryAction,
	}
}

// InventoryProbeResponse is the result of probing a fixture driver.
type InventoryProbeResponse struct {
	Connected    bool                     `json:"connected"`
	Detail       string                   `json:"detail,omitempty"`
	Capabilities []types.HostCapability   `json:"capabilities"`
	Targets      []types.TargetDescriptor `json:"targets"`
}

func debugInventoryAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("fixture path required", 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for debug commands", 1)
	}

	fx, err := fixture.Load(c.Args().First())
	if err != nil {
		return cli.Exit(fmt.Sprintf("load fixture: %v", err), 1)
	}
	drv := fixture.New(*fx)

	ctx := context.Background()
	status, err := drv.TestConnection(ctx)
	if err != nil {
		return cli.Exit(fmt.Sprintf("connection test failed: %v", err), 1)
	}
	caps, err := drv.ListCapabilities(ctx)
	if err != nil {
		return cli.Exit(fmt.Sprintf("list capabilities failed: %v", err), 1)
	}
	targets, err := drv.Discover(ctx, "", false)
	if err != nil {
		return cli.Exit(fmt.Sprintf("discover failed: %v", err), 1)
	}

	return r.Render(InventoryProbeResponse{
		Connected:    status.OK,
		Detail:       status.Detail,
		Capabilities: caps,
		Targets:      targets,
	})
}
