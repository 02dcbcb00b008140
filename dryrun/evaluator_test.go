package dryrun

import (
	"context"
	"testing"
	"time"

	"github.com/haltline/haltd/driver"
	"github.com/haltline/haltd/inventory"
	"github.com/haltline/haltd/types"
)

type stubDriver struct {
	caps        []types.HostCapability
	targets     []types.TargetDescriptor
	dryRun      func(req driver.InvokeRequest) (types.DryRunResult, error)
	invokeCalls int
}

func (s *stubDriver) TestConnection(ctx context.Context) (driver.ConnectionStatus, error) {
	return driver.ConnectionStatus{OK: true}, nil
}
func (s *stubDriver) ListCapabilities(ctx context.Context) ([]types.HostCapability, error) {
	return s.caps, nil
}
func (s *stubDriver) Discover(ctx context.Context, targetType string, fast bool) ([]types.TargetDescriptor, error) {
	return s.targets, nil
}
func (s *stubDriver) Invoke(ctx context.Context, req driver.InvokeRequest) (driver.InvokeResult, error) {
	s.invokeCalls++
	return driver.InvokeResult{OK: true}, nil
}
func (s *stubDriver) DryRunInvoke(ctx context.Context, req driver.InvokeRequest) (types.DryRunResult, error) {
	if s.dryRun != nil {
		return s.dryRun(req)
	}
	return types.DryRunResult{OK: true, Severity: types.SeverityInfo}, nil
}

func newTestEvaluator(d driver.Driver) *Evaluator {
	idx := inventory.New(inventory.DefaultConfig(), func(string) (driver.Driver, error) { return d, nil }, nil)
	return New(idx, func(string) (driver.Driver, error) { return d, nil })
}

func dryRunIR(hostID string, targets ...string) types.PolicyIR {
	return types.PolicyIR{
		PolicyID: "p1",
		Targets:  types.ResolvedTargets{HostID: hostID, ResolvedIDs: targets},
		Plan:     []types.ActionSpec{{CapabilityID: "power", Verb: "shutdown"}},
	}
}

func TestEvaluate_AggregatesOverallSeverity(t *testing.T) {
	d := &stubDriver{
		caps: []types.HostCapability{{ID: "power", Verbs: []string{"shutdown"}, SupportsDryRun: true}},
		dryRun: func(req driver.InvokeRequest) (types.DryRunResult, error) {
			if req.Target == "105" {
				return types.DryRunResult{OK: true, Severity: types.SeverityWarn}, nil
			}
			return types.DryRunResult{OK: true, Severity: types.SeverityInfo}, nil
		},
	}
	e := newTestEvaluator(d)

	result, err := e.Evaluate(context.Background(), dryRunIR("ups-1", "104", "105"), 5*time.Second)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Severity != types.SeverityWarn {
		t.Fatalf("expected aggregated severity warn, got %v", result.Severity)
	}
	if len(result.Results) != 2 {
		t.Fatalf("expected one result per target, got %d", len(result.Results))
	}
	if result.TranscriptID == "" {
		t.Fatal("expected a non-empty transcript id")
	}
}

func TestEvaluate_RejectsDriverWithoutDryRunSupport(t *testing.T) {
	d := &stubDriver{
		caps: []types.HostCapability{{ID: "power", Verbs: []string{"shutdown"}, SupportsDryRun: false}},
	}
	e := newTestEvaluator(d)

	_, err := e.Evaluate(context.Background(), dryRunIR("ups-1", "104"), 5*time.Second)
	if err == nil {
		t.Fatal("expected a blocker error for a capability without dry-run support")
	}
	var blocked *BlockedError
	if ok := errorsAs(err, &blocked); !ok {
		t.Fatalf("expected a *BlockedError, got %v (%T)", err, err)
	}
}

func TestEvaluate_NeverCallsInvoke(t *testing.T) {
	d := &stubDriver{
		caps: []types.HostCapability{{ID: "power", Verbs: []string{"shutdown"}, SupportsDryRun: true}},
		dryRun: func(req driver.InvokeRequest) (types.DryRunResult, error) {
			return types.DryRunResult{OK: true}, nil
		},
	}
	e := newTestEvaluator(d)
	_, err := e.Evaluate(context.Background(), dryRunIR("ups-1", "104"), 5*time.Second)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if d.invokeCalls != 0 {
		t.Fatalf("expected Evaluate to never call Invoke, got %d calls", d.invokeCalls)
	}
}

func TestEvaluate_EmptyResolutionClampsToAtLeastWarn(t *testing.T) {
	// The stub driver discovers no targets, so the selector resolves to
	// zero targets; the evaluator clamps such a result to at least warn.
	d := &stubDriver{
		caps: []types.HostCapability{{ID: "power", Verbs: []string{"shutdown"}, SupportsDryRun: true}},
	}
	e := newTestEvaluator(d)

	result, err := e.Evaluate(context.Background(), dryRunIR("ups-1"), 5*time.Second)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Severity != types.SeverityWarn {
		t.Fatalf("expected empty resolution to clamp to warn, got %v", result.Severity)
	}
}

func errorsAs(err error, target **BlockedError) bool {
	be, ok := err.(*BlockedError)
	if !ok {
		return false
	}
	*target = be
	return true
}
