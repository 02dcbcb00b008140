package cmd

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/haltline/haltd/metrics"
)

func TestLoadSnapshot_ParsesJSON(t *testing.T) {
	c := metrics.NewCollector("orchestrator-1")
	c.IncDispatched()
	c.IncCompileSuccess()
	data, err := json.Marshal(c.Snapshot())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := writeTempFile(t, "stats.json", string(data))

	snap, err := loadSnapshot(path)
	if err != nil {
		t.Fatalf("loadSnapshot: %v", err)
	}
	if snap.InstanceID != "orchestrator-1" {
		t.Errorf("InstanceID = %q, want orchestrator-1", snap.InstanceID)
	}
	if snap.Dispatched != 1 {
		t.Errorf("Dispatched = %d, want 1", snap.Dispatched)
	}
}

func TestStatsAction_RendersSnapshot(t *testing.T) {
	c := metrics.NewCollector("orchestrator-1")
	c.IncDispatched()
	data, err := json.Marshal(c.Snapshot())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := writeTempFile(t, "stats.json", string(data))

	app := &cli.App{
		Commands: []*cli.Command{StatsCommand()},
		Writer:   os.Stderr,
	}
	if err := app.Run([]string{"orchestratorctl", "stats", "--stats-file", path, "--format", "json"}); err != nil {
		t.Fatalf("stats action failed: %v", err)
	}
}

func TestStatsAction_MissingFile(t *testing.T) {
	app := &cli.App{
		Commands: []*cli.Command{StatsCommand()},
		Writer:   os.Stderr,
	}
	if err := app.Run([]string{"orchestratorctl", "stats", "--stats-file", "/nonexistent/path.json"}); err == nil {
		t.Error("expected error for missing stats file")
	}
}
