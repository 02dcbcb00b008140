package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/haltline/haltd/cli/render"
	"github.com/haltline/haltd/dryrun"
	"github.com/haltline/haltd/inventory"
	"github.com/haltline/haltd/log"
)

// DryRunCommand returns the dryrun command: compiles a spec against a
// fixture inventory, then previews the resulting plan with every driver
// call routed through DryRunInvoke instead of Invoke.
func DryRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "dryrun",
		Usage:     "Preview a policy's plan against a fixture inventory without dispatching",
		ArgsUsage: "<spec.yaml>",
		Flags:     append(append([]cli.Flag{}, TUIReadOnlyFlags()...), fixtureFlag, policyIDFlag, slaFlag),
		Action:    dryRunAction,
	}
}

var slaFlag = &cli.DurationFlag{
	Name:  "sla",
	Usage: "Inventory refresh SLA for this evaluation",
	Value: inventory.DefaultConfig().InventoryRefreshSLA,
}

func dryRunAction(c *cli.Context) error {
	result, err := compileSpec(c)
	if err != nil {
		return err
	}
	if !result.OK {
		return cli.Exit(fmt.Sprintf("spec does not compile: %d schema issue(s), %d compile issue(s)", len(result.SchemaIssues), len(result.CompileIssues)), 1)
	}

	lookup, err := newFixtureLookup(c.String("fixture"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("load fixture: %v", err), 1)
	}
	inv := inventory.New(inventory.DefaultConfig(), lookup, log.New(log.Context{}))

	evaluator := dryrun.New(inv, lookup)
	evalResult, err := evaluator.Evaluate(context.Background(), *result.IR, c.Duration("sla"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return r.RenderTUI("dryrun", evalResult)
	}
	return r.Render(evalResult)
}
