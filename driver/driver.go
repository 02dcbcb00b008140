// Package driver defines the integration driver boundary per spec.md §6.
//
// The orchestrator core never talks to a managed host directly; every
// mutation and every discovery call flows through a Driver bound to that
// host's integration instance. This mirrors the teacher's adapter package:
// a narrow, explicit interface that the runtime owns the lifecycle of, with
// concrete implementations living in their own subpackages.
package driver

import (
	"context"

	"github.com/haltline/haltd/types"
)

// ConnectionStatus is the result of a driver's TestConnection call.
type ConnectionStatus struct {
	OK        bool
	LatencyMS int64
	Detail    string
}

// InvokeRequest is the payload for a single capability/verb call.
type InvokeRequest struct {
	Capability string
	Verb       string
	Target     string
	Params     map[string]any
	DryRun     bool
}

// InvokeResult is the outcome of a non-dry-run Invoke call. Severity lets a
// driver report a degraded-but-OK outcome (SeverityWarn) distinct from
// outright failure (SeverityError); a driver that leaves it unset is
// treated as SeverityInfo on success and SeverityError on failure.
type InvokeResult struct {
	OK       bool
	Severity types.Severity
	Detail   string
}

// Driver is the integration boundary consumed by the inventory index,
// policy compiler (capability verification), execution engine, and dry-run
// evaluator. Every concrete driver (SSH, hypervisor API, switch API, ...)
// implements this interface; the core depends only on it.
type Driver interface {
	// TestConnection verifies reachability of the host's integration
	// instance.
	TestConnection(ctx context.Context) (ConnectionStatus, error)

	// ListCapabilities returns the capability descriptors this driver
	// advertises. Drivers declaring a capability whose name does not map
	// to an implemented Invoke path are rejected at load time by the
	// caller (a compile blocker, not a driver-internal concern).
	ListCapabilities(ctx context.Context) ([]types.HostCapability, error)

	// Discover returns the targets of the given type currently visible on
	// the host. fast requests a best-effort, possibly-incomplete scan
	// within a tight deadline.
	Discover(ctx context.Context, targetType string, fast bool) ([]types.TargetDescriptor, error)

	// Invoke applies a capability/verb against a single target. Must
	// respect ctx cancellation/deadline.
	Invoke(ctx context.Context, req InvokeRequest) (InvokeResult, error)

	// DryRunInvoke previews what Invoke would do without side effects.
	// Drivers that do not support dry-run for a capability must return an
	// error; callers (dryrun.Evaluator) reject such drivers with a
	// blocker before ever calling this.
	DryRunInvoke(ctx context.Context, req InvokeRequest) (types.DryRunResult, error)
}
