package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/urfave/cli/v2"

	"github.com/haltline/haltd/cli/render"
	"github.com/haltline/haltd/cli/tui"
	"github.com/haltline/haltd/types"
)

// InspectCommand returns the inspect command: reads a ledger export file
// (a JSON array of types.ExecutionRecord, the shape orchestratord writes
// on shutdown) and renders the history for one policy, oldest first (the
// --tui ledger view lists it most recent first).
// This is the CLI's local stand-in for querying a live ledger over a
// network API.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Inspect a policy's execution ledger from an exported snapshot",
		ArgsUsage: "<policy-id>",
		Flags:     append(append([]cli.Flag{}, TUIReadOnlyFlags()...), ledgerFileFlag),
		Action:    inspectAction,
	}
}

var ledgerFileFlag = &cli.StringFlag{
	Name:     "ledger-file",
	Usage:    "Path to a ledger export (JSON array of execution records)",
	Required: true,
}

func loadLedgerExport(path string) ([]types.ExecutionRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ledger export: %w", err)
	}
	var records []types.ExecutionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse ledger export: %w", err)
	}
	return records, nil
}

func inspectAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("policy-id required", 1)
	}
	policyID := c.Args().First()

	all, err := loadLedgerExport(c.String("ledger-file"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	var matched []types.ExecutionRecord
	for _, rec := range all {
		if rec.PolicyID == policyID {
			matched = append(matched, rec)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Ts.Before(matched[j].Ts) })

	view := tui.LedgerView{PolicyID: policyID, Records: matched}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return r.RenderTUI("ledger", view)
	}
	return r.Render(view)
}
