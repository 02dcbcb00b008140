package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/haltline/haltd/cli/render"
	"github.com/haltline/haltd/metrics"
)

// StatsCommand returns the stats command: reads a metrics snapshot file
// (as written by orchestratord) and renders the pipeline-stage counters.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:      "stats",
		Usage:     "Show pipeline metrics from an exported snapshot",
		ArgsUsage: "--stats-file <snapshot.json>",
		Flags:     append(append([]cli.Flag{}, TUIReadOnlyFlags()...), statsFileFlag),
		Action:    statsAction,
	}
}

var statsFileFlag = &cli.StringFlag{
	Name:     "stats-file",
	Usage:    "Path to an exported metrics snapshot (JSON)",
	Required: true,
}

func loadSnapshot(path string) (metrics.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return metrics.Snapshot{}, fmt.Errorf("read stats file: %w", err)
	}
	var snap metrics.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return metrics.Snapshot{}, fmt.Errorf("parse stats file: %w", err)
	}
	return snap, nil
}

func statsAction(c *cli.Context) error {
	snap, err := loadSnapshot(c.String("stats-file"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return r.RenderTUI("stats", snap)
	}
	return r.Render(snap)
}
