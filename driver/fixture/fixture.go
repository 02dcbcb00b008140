// Package fixture implements an in-memory driver.Driver backed by a static
// YAML fixture, used by the dry-run CLI and by tests that need a
// deterministic inventory without a live host.
//
// Grounded on the teacher's cli/reader stub pattern for test-double data
// sources (a struct literal standing in for a live backend, loadable from a
// fixture file).
package fixture

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/haltline/haltd/driver"
	"github.com/haltline/haltd/types"
)

// Fixture is the on-disk shape of a fixture file.
type Fixture struct {
	Capabilities []types.HostCapability   `yaml:"capabilities"`
	Targets      []types.TargetDescriptor `yaml:"targets"`
}

// Load reads and parses a fixture YAML file.
func Load(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fixture: read %s: %w", path, err)
	}
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("fixture: parse %s: %w", path, err)
	}
	return &f, nil
}

// Driver is an in-memory driver.Driver over a Fixture. Invoke fails, and
// DryRunInvoke returns a not-OK warn preview, only for a target the fixture
// does not list; a listed target's Active flag is not consulted here (only
// Discover skips inactive targets). This is simple since its only job is to exercise the orchestrator
// pipeline, not to emulate any particular vendor.
type Driver struct {
	mu     sync.Mutex
	fx     Fixture
	active bool
}

// New creates a fixture-backed driver.
func New(fx Fixture) *Driver {
	return &Driver{fx: fx, active: true}
}

// SetActive toggles whether TestConnection reports healthy. Useful for
// simulating transport failures in tests.
func (d *Driver) SetActive(active bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = active
}

func (d *Driver) TestConnection(ctx context.Context) (driver.ConnectionStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active {
		return driver.ConnectionStatus{OK: false, Detail: "fixture marked inactive"}, nil
	}
	return driver.ConnectionStatus{OK: true, LatencyMS: 1}, nil
}

func (d *Driver) ListCapabilities(ctx context.Context) ([]types.HostCapability, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]types.HostCapability, len(d.fx.Capabilities))
	copy(out, d.fx.Capabilities)
	return out, nil
}

func (d *Driver) Discover(ctx context.Context, targetType string, fast bool) ([]types.TargetDescriptor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []types.TargetDescriptor
	for _, t := range d.fx.Targets {
		if !t.Active {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (d *Driver) Invoke(ctx context.Context, req driver.InvokeRequest) (driver.InvokeResult, error) {
	if !d.targetKnown(req.Target) {
		return driver.InvokeResult{OK: false, Detail: "unknown target " + req.Target}, nil
	}
	return driver.InvokeResult{OK: true, Detail: "ok"}, nil
}

func (d *Driver) DryRunInvoke(ctx context.Context, req driver.InvokeRequest) (types.DryRunResult, error) {
	known := d.targetKnown(req.Target)
	sev := types.SeverityInfo
	if !known {
		sev = types.SeverityWarn
	}
	return types.DryRunResult{
		OK:       known,
		Severity: sev,
		Plan: types.Plan{
			Kind:    types.PlanKindAPI,
			Preview: []string{fmt.Sprintf("%s.%s -> %s", req.Capability, req.Verb, req.Target)},
		},
		Effects: types.Effects{
			Summary:   fmt.Sprintf("would invoke %s.%s on %s", req.Capability, req.Verb, req.Target),
			PerTarget: []types.TargetEffect{{ID: req.Target}},
		},
	}, nil
}

func (d *Driver) targetKnown(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range d.fx.Targets {
		if t.CanonicalID == id {
			return true
		}
	}
	return false
}

// Now is overridable for tests; defaults to the wall clock.
var Now = time.Now

var _ driver.Driver = (*Driver)(nil)
