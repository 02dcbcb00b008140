// Package dryrun implements C6, the Dry-run Evaluator: it re-uses the
// compiler's IR and the inventory index exactly as C5 does, but calls
// every driver in preview mode instead of dispatching real actions, and
// aggregates the per-target results into one overall severity.
//
// Grounded on the teacher's runtime/run.go RunOrchestrator.Execute linear
// pipeline shape: validate preconditions, resolve, invoke, aggregate,
// return a single result.
package dryrun

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/haltline/haltd/driver"
	"github.com/haltline/haltd/inventory"
	"github.com/haltline/haltd/types"
)

// BlockedError reports that a driver cannot be dry-run evaluated because
// it does not advertise dry-run support for a capability the plan uses.
// Per spec.md §4.6 this is a compile-grade blocker, not a runtime error.
type BlockedError struct {
	CapabilityID string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("capability %q does not support dry-run", e.CapabilityID)
}

// TargetActionResult is one (action, target) dry-run outcome.
type TargetActionResult struct {
	CapabilityID string              `json:"capability_id"`
	Verb         string              `json:"verb"`
	Target       string              `json:"target"`
	Result       types.DryRunResult  `json:"result"`
}

// Result is the transcript produced by one Evaluate call.
type Result struct {
	TranscriptID string                `json:"transcript_id"`
	PolicyID     string                `json:"policy_id"`
	Severity     types.Severity        `json:"severity"`
	Stale        bool                  `json:"stale"`
	Results      []TargetActionResult  `json:"results"`
}

// DriverLookup resolves the driver bound to a host's integration instance.
type DriverLookup func(hostID string) (driver.Driver, error)

// Evaluator is the C6 implementation. Constructed explicitly, never a
// package-level singleton.
type Evaluator struct {
	inv     *inventory.Index
	drivers DriverLookup
}

// New constructs an Evaluator bound to an inventory index and driver
// lookup.
func New(inv *inventory.Index, drivers DriverLookup) *Evaluator {
	return &Evaluator{inv: inv, drivers: drivers}
}

// Evaluate previews ir's plan against its resolved targets without any
// side effects. sla bounds the freshness of any inventory refresh this
// call triggers (capability lookup, and selector resolution when ir is
// dynamically resolved).
func (e *Evaluator) Evaluate(ctx context.Context, ir types.PolicyIR, sla time.Duration) (Result, error) {
	d, err := e.drivers(ir.Targets.HostID)
	if err != nil {
		return Result{}, fmt.Errorf("no driver bound to host %s: %w", ir.Targets.HostID, err)
	}

	caps, capsStale, err := e.inv.Capabilities(ctx, ir.Targets.HostID, sla)
	if err != nil {
		return Result{}, fmt.Errorf("capability lookup failed: %w", err)
	}
	byID := make(map[string]types.HostCapability, len(caps))
	for _, c := range caps {
		byID[c.ID] = c
	}
	for _, action := range ir.Plan {
		c, ok := byID[action.CapabilityID]
		if !ok || !c.SupportsDryRun {
			return Result{}, &BlockedError{CapabilityID: action.CapabilityID}
		}
	}

	resolvedIDs := ir.Targets.ResolvedIDs
	stale := capsStale
	if ir.DynamicResolution {
		expansion, err := e.inv.ResolveSelector(ctx, ir.Targets.HostID, ir.Targets.TargetType, ir.Targets.Selector, sla)
		if err != nil {
			return Result{}, fmt.Errorf("dynamic resolution failed: %w", err)
		}
		resolvedIDs = expansion.ResolvedIDs
		stale = stale || expansion.Stale
	}
	sort.Strings(resolvedIDs)

	var results []TargetActionResult
	severities := make([]types.Severity, 0, len(ir.Plan)*len(resolvedIDs))
	for _, action := range ir.Plan {
		for _, targetID := range resolvedIDs {
			req := driver.InvokeRequest{
				Capability: action.CapabilityID,
				Verb:       action.Verb,
				Target:     targetID,
				Params:     action.Params,
				DryRun:     true,
			}
			dr, err := d.DryRunInvoke(ctx, req)
			if err != nil {
				dr = types.DryRunResult{OK: false, Severity: types.SeverityError, Reason: err.Error()}
			}
			results = append(results, TargetActionResult{
				CapabilityID: action.CapabilityID,
				Verb:         action.Verb,
				Target:       targetID,
				Result:       dr,
			})
			severities = append(severities, dr.Severity)
		}
	}

	overall := types.MaxSeverity(severities...)
	if len(resolvedIDs) == 0 {
		overall = types.MaxSeverity(overall, types.SeverityWarn)
	}
	if stale {
		overall = types.MaxSeverity(overall, types.SeverityWarn)
	}

	return Result{
		TranscriptID: uuid.New().String(),
		PolicyID:     ir.PolicyID,
		Severity:     overall,
		Stale:        stale,
		Results:      results,
	}, nil
}
