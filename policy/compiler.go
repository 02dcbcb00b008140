// Package policy implements C2, the Policy Compiler: schema validation,
// canonicalisation and hashing, capability verification, selector
// compilation, and inverse generation for user-authored policy specs.
package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haltline/haltd/inventory"
	"github.com/haltline/haltd/selector"
	"github.com/haltline/haltd/types"
)

// Issue is a single schema or compile problem, JSON-pointer addressed per
// spec.md §4.2.
type Issue struct {
	Path     string        `json:"path"`
	Message  string        `json:"message"`
	Severity types.Severity `json:"severity"`
}

func (i Issue) isBlocker() bool { return i.Severity == types.SeverityBlocker }

// Result is the public contract of Compile: compile(spec) -> {ok,
// schema_issues[], compile_issues[], ir?}; the content hash is carried on
// IR.Hash whenever IR is set.
type Result struct {
	OK            bool
	SchemaIssues  []Issue
	CompileIssues []Issue
	IR            *types.PolicyIR
}

func (r Result) AllIssues() []Issue {
	return append(append([]Issue{}, r.SchemaIssues...), r.CompileIssues...)
}

// Compiler compiles PolicySpecs into PolicyIR, verifying capabilities and
// selectors against a live inventory index. Constructed explicitly per
// spec.md §9 — never a package-level singleton.
type Compiler struct {
	inv *inventory.Index
}

// NewCompiler constructs a Compiler bound to an inventory index.
func NewCompiler(inv *inventory.Index) *Compiler {
	return &Compiler{inv: inv}
}

// Compile runs the full pipeline of spec.md §4.2. policyID is the stable
// identity to assign to the resulting IR; pass "" to mint a new one.
func (c *Compiler) Compile(ctx context.Context, spec types.PolicySpec, policyID string) (Result, error) {
	if policyID == "" {
		policyID = uuid.New().String()
	}

	schemaIssues := validateSchema(spec)
	if hasBlocker(schemaIssues) {
		return Result{OK: false, SchemaIssues: schemaIssues}, nil
	}

	var compileIssues []Issue

	windows, windowIssues := compileWindows(spec)
	compileIssues = append(compileIssues, windowIssues...)

	capIssues := c.verifyCapabilities(ctx, spec)
	compileIssues = append(compileIssues, capIssues...)

	dynamicResolution := inferDynamicResolution(spec)

	resolvedTargets, selectorIssues := c.compileSelector(ctx, spec, dynamicResolution)
	compileIssues = append(compileIssues, selectorIssues...)

	if hasBlocker(compileIssues) {
		return Result{OK: false, SchemaIssues: schemaIssues, CompileIssues: compileIssues}, nil
	}

	match := types.NormalisedMatch{
		TriggerGroup: canonicaliseTriggerGroup(spec.TriggerGroup),
		Conditions:   spec.Conditions,
	}

	ir := types.PolicyIR{
		PolicyID:          policyID,
		VersionInt:        1,
		Name:              spec.Name,
		Priority:          spec.Priority,
		StopOnMatch:       spec.StopOnMatch,
		DynamicResolution: dynamicResolution,
		Match:             match,
		Targets:           resolvedTargets,
		Plan:              spec.Actions,
		Windows:           windows,
		Enabled:           spec.Enabled,
	}

	hash, err := hashIR(ir)
	if err != nil {
		return Result{}, fmt.Errorf("policy: hashing IR: %w", err)
	}
	ir.Hash = hash

	return Result{OK: true, SchemaIssues: schemaIssues, CompileIssues: compileIssues, IR: &ir}, nil
}

// hashIR computes the deterministic content hash over the fields that
// define a policy's semantics, eliding PolicyID/VersionInt/Hash itself so
// two logically-equivalent specs always hash identically regardless of
// assigned identity or revision count.
func hashIR(ir types.PolicyIR) (string, error) {
	type hashable struct {
		Name              string               `json:"name"`
		Priority          int                  `json:"priority"`
		StopOnMatch       bool                 `json:"stop_on_match"`
		DynamicResolution bool                 `json:"dynamic_resolution"`
		Match             types.NormalisedMatch `json:"match"`
		Targets           types.ResolvedTargets `json:"targets"`
		Plan              []types.ActionSpec    `json:"plan"`
		Windows           types.Windows         `json:"windows"`
		Enabled           bool                 `json:"enabled"`
	}
	// ResolvedAt is the wall-clock time of resolution, not semantics.
	targets := ir.Targets
	targets.ResolvedAt = nil
	return canonicalHash(hashable{
		Name:              ir.Name,
		Priority:          ir.Priority,
		StopOnMatch:       ir.StopOnMatch,
		DynamicResolution: ir.DynamicResolution,
		Match:             ir.Match,
		Targets:           targets,
		Plan:              ir.Plan,
		Windows:           ir.Windows,
		Enabled:           ir.Enabled,
	})
}

func hasBlocker(issues []Issue) bool {
	for _, iss := range issues {
		if iss.isBlocker() {
			return true
		}
	}
	return false
}

// validateSchema performs step 1 of §4.2: shape/type checks against §3.
func validateSchema(spec types.PolicySpec) []Issue {
	var issues []Issue

	if spec.Name == "" {
		issues = append(issues, Issue{Path: "/name", Message: "name is required", Severity: types.SeverityBlocker})
	}
	switch spec.TriggerGroup.Logic {
	case types.TriggerLogicAll, types.TriggerLogicAny:
	default:
		issues = append(issues, Issue{Path: "/trigger_group/logic", Message: "logic must be ALL or ANY", Severity: types.SeverityBlocker})
	}
	if len(spec.TriggerGroup.Triggers) == 0 {
		issues = append(issues, Issue{Path: "/trigger_group/triggers", Message: "at least one trigger is required", Severity: types.SeverityBlocker})
	}
	for i, trig := range spec.TriggerGroup.Triggers {
		if trig.Kind == "" {
			issues = append(issues, Issue{Path: fmt.Sprintf("/trigger_group/triggers/%d/kind", i), Message: "kind is required", Severity: types.SeverityBlocker})
		}
		if trig.ForDurationS < 0 {
			issues = append(issues, Issue{Path: fmt.Sprintf("/trigger_group/triggers/%d/for_duration_s", i), Message: "for_duration_s must be >= 0", Severity: types.SeverityBlocker})
		}
	}
	for i, cond := range spec.Conditions {
		if cond.Resolver == "" {
			issues = append(issues, Issue{Path: fmt.Sprintf("/conditions/%d/resolver", i), Message: "resolver is required", Severity: types.SeverityBlocker})
		}
	}
	if spec.Targets.HostID == "" {
		issues = append(issues, Issue{Path: "/targets/host_id", Message: "host_id is required", Severity: types.SeverityBlocker})
	}
	if spec.Targets.TargetType == "" {
		issues = append(issues, Issue{Path: "/targets/target_type", Message: "target_type is required", Severity: types.SeverityBlocker})
	}
	if len(spec.Actions) == 0 {
		issues = append(issues, Issue{Path: "/actions", Message: "at least one action is required", Severity: types.SeverityBlocker})
	}
	for i, action := range spec.Actions {
		if action.CapabilityID == "" {
			issues = append(issues, Issue{Path: fmt.Sprintf("/actions/%d/capability_id", i), Message: "capability_id is required", Severity: types.SeverityBlocker})
		}
		if action.Verb == "" {
			issues = append(issues, Issue{Path: fmt.Sprintf("/actions/%d/verb", i), Message: "verb is required", Severity: types.SeverityBlocker})
		}
		switch action.OnError {
		case "", types.OnErrorContinue, types.OnErrorStop:
		default:
			issues = append(issues, Issue{Path: fmt.Sprintf("/actions/%d/on_error", i), Message: "on_error must be continue or stop", Severity: types.SeverityBlocker})
		}
	}
	return issues
}

// compileWindows parses the suppression/idempotency window duration
// strings ("5m") into integer seconds, per step 2 of §4.2.
func compileWindows(spec types.PolicySpec) (types.Windows, []Issue) {
	var issues []Issue
	var w types.Windows

	if spec.SuppressionWindow != "" {
		d, err := time.ParseDuration(spec.SuppressionWindow)
		if err != nil {
			issues = append(issues, Issue{Path: "/suppression_window", Message: "invalid duration: " + err.Error(), Severity: types.SeverityBlocker})
		} else {
			w.SuppressionS = int(d.Seconds())
		}
	}
	if spec.IdempotencyWindow != "" {
		d, err := time.ParseDuration(spec.IdempotencyWindow)
		if err != nil {
			issues = append(issues, Issue{Path: "/idempotency_window", Message: "invalid duration: " + err.Error(), Severity: types.SeverityBlocker})
		} else {
			w.IdempotencyS = int(d.Seconds())
		}
	}
	return w, issues
}

// verifyCapabilities performs step 3 of §4.2: each action's capability_id
// must exist on the target host and its verb must be in that capability's
// verb list.
func (c *Compiler) verifyCapabilities(ctx context.Context, spec types.PolicySpec) []Issue {
	var issues []Issue
	if c.inv == nil || spec.Targets.HostID == "" {
		return issues
	}

	caps, _, err := c.inv.Capabilities(ctx, spec.Targets.HostID, 0)
	if err != nil {
		issues = append(issues, Issue{Path: "/targets/host_id", Message: "capability lookup failed: " + err.Error(), Severity: types.SeverityBlocker})
		return issues
	}

	byID := make(map[string]types.HostCapability, len(caps))
	for _, cap := range caps {
		byID[cap.ID] = cap
	}

	for i, action := range spec.Actions {
		cap, ok := byID[action.CapabilityID]
		if !ok {
			issues = append(issues, Issue{Path: fmt.Sprintf("/actions/%d/capability_id", i), Message: "capability not found on host: " + action.CapabilityID, Severity: types.SeverityBlocker})
			continue
		}
		if !cap.HasVerb(action.Verb) {
			issues = append(issues, Issue{Path: fmt.Sprintf("/actions/%d/verb", i), Message: "verb not supported by capability: " + action.Verb, Severity: types.SeverityBlocker})
		}
	}
	return issues
}

// compileSelector performs step 4 of §4.2: grammar validation, and,
// when resolution is static, expansion now.
func (c *Compiler) compileSelector(ctx context.Context, spec types.PolicySpec, dynamicResolution bool) (types.ResolvedTargets, []Issue) {
	var issues []Issue
	sel := spec.Targets.Selector

	if _, err := selector.Parse(sel); err != nil {
		issues = append(issues, Issue{Path: "/targets/selector", Message: err.Error(), Severity: types.SeverityBlocker})
		return types.ResolvedTargets{HostID: spec.Targets.HostID, TargetType: spec.Targets.TargetType, Selector: sel}, issues
	}

	resolved := types.ResolvedTargets{
		HostID:     spec.Targets.HostID,
		TargetType: spec.Targets.TargetType,
		Selector:   sel,
	}

	if dynamicResolution || c.inv == nil {
		return resolved, issues
	}

	result, err := c.inv.ResolveSelector(ctx, spec.Targets.HostID, spec.Targets.TargetType, sel, 0)
	if err != nil {
		issues = append(issues, Issue{Path: "/targets/selector", Message: "selector resolution failed: " + err.Error(), Severity: types.SeverityBlocker})
		return resolved, issues
	}
	if len(result.ResolvedIDs) == 0 {
		issues = append(issues, Issue{Path: "/targets/selector", Message: "selector resolved to no targets", Severity: types.SeverityWarn})
	} else if len(result.Unresolved) > 0 {
		issues = append(issues, Issue{
			Path:     "/targets/selector",
			Message:  fmt.Sprintf("selector did not resolve %d identifier(s): %s", len(result.Unresolved), strings.Join(result.Unresolved, ", ")),
			Severity: types.SeverityWarn,
		})
	}
	now := timeNow()
	resolved.ResolvedIDs = result.ResolvedIDs
	resolved.ResolvedAt = &now
	return resolved, issues
}

// timeNow is overridable by tests that need deterministic ResolvedAt.
var timeNow = time.Now

// inferDynamicResolution performs step 5 of §4.2: when unset, resolution
// is dynamic if the selector references labels/attrs (anything other than
// a trivial single-item list or range) or the range is non-trivial
// (spans more than one identifier).
func inferDynamicResolution(spec types.PolicySpec) bool {
	if spec.DynamicResolution != nil {
		return *spec.DynamicResolution
	}
	sel := spec.Targets.Selector
	switch sel.Mode {
	case types.SelectorModeQuery:
		return true
	case types.SelectorModeRange, types.SelectorModeList:
		expanded, err := selector.Expand(sel)
		if err != nil {
			return true
		}
		return len(expanded) != 1
	default:
		return true
	}
}

// canonicaliseTriggerGroup sorts triggers for stable hashing without
// changing match semantics (trigger order never affects ALL/ANY
// evaluation).
func canonicaliseTriggerGroup(tg types.TriggerGroup) types.TriggerGroup {
	triggers := append([]types.Trigger{}, tg.Triggers...)
	sort.SliceStable(triggers, func(i, j int) bool {
		if triggers[i].Kind != triggers[j].Kind {
			return triggers[i].Kind < triggers[j].Kind
		}
		return triggers[i].Equals < triggers[j].Equals
	})
	return types.TriggerGroup{Logic: tg.Logic, Triggers: triggers}
}
