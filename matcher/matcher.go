// Package matcher implements C4, the Matcher & Windowing component: for
// each incoming event it selects candidate policies in deterministic
// priority order, evaluates their trigger groups and conditions, applies
// suppression and idempotency windows against the execution ledger, and
// submits surviving matches for execution.
//
// Grounded on the teacher's runtime/fanout.go dedup-key + "seen" map
// idiom for idempotency bookkeeping, and policy/policy.go's
// droppable-type-set pattern for the suppressed/idempotent/cancelled
// exclusion set.
package matcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haltline/haltd/ledger"
	"github.com/haltline/haltd/log"
	"github.com/haltline/haltd/metrics"
	"github.com/haltline/haltd/policy"
	"github.com/haltline/haltd/types"
)

// Resolver evaluates a Condition predicate against current system state.
// Distinct resolver names ("ups", "host", "inventory") route to distinct
// backing state; the matcher treats the interface uniformly.
type Resolver interface {
	Resolve(ctx context.Context, resolver, field string) (string, error)
}

// Executor submits a matched policy for execution and blocks until that
// run completes, returning the resulting ExecutionRecord (already
// appended to the ledger by the executor itself, with IdempotencyKey set
// to idempotencyKey so a later idempotency-window lookup can find it). A
// per-host FIFO queue means this call only blocks behind other work
// already queued for the same host, never behind unrelated hosts.
type Executor interface {
	Submit(ctx context.Context, ir types.PolicyIR, event types.Event, idempotencyKey string) (types.ExecutionRecord, error)
}

// Matcher is the C4 implementation. Constructed explicitly, never a
// package-level singleton.
type Matcher struct {
	registry *policy.Registry
	ledger   *ledger.Ledger
	executor Executor
	resolver Resolver
	logger   *log.Logger
	metrics  *metrics.Collector

	mu        sync.Mutex
	heldSince map[string]time.Time // (policyID, subject, triggerIdx) -> first-held ts
}

// New constructs a Matcher. collector may be nil.
func New(registry *policy.Registry, led *ledger.Ledger, executor Executor, resolver Resolver, logger *log.Logger, collector *metrics.Collector) *Matcher {
	return &Matcher{
		registry:  registry,
		ledger:    led,
		executor:  executor,
		resolver:  resolver,
		logger:    logger,
		metrics:   collector,
		heldSince: make(map[string]time.Time),
	}
}

// Evaluate runs the full §4.4 pipeline for one incoming event and returns
// the ExecutionRecord produced for each candidate that was evaluated to
// completion (suppressed, idempotent, dispatched, or cancelled).
func (m *Matcher) Evaluate(ctx context.Context, event types.Event) []types.ExecutionRecord {
	m.metrics.IncEventsEvaluated()
	candidates := m.candidates(event)

	var results []types.ExecutionRecord
	for _, ir := range candidates {
		if !ir.Enabled {
			continue
		}
		if !m.triggerGroupMatches(ir, event) {
			continue
		}
		if !m.conditionsHold(ctx, ir) {
			continue
		}
		m.metrics.IncMatchesFound()

		now := event.Ts
		if now.IsZero() {
			now = time.Now()
		}

		if ir.Windows.SuppressionS > 0 {
			if _, suppressed := m.ledger.RecentlyDispatched(ir.PolicyID, time.Duration(ir.Windows.SuppressionS)*time.Second, now); suppressed {
				rec := m.record(ir, event, types.OutcomeSuppressed, types.SeverityInfo, "", "suppressed: recent dispatch within suppression window")
				results = append(results, rec)
				m.metrics.IncSuppressed()
				continue
			}
		}

		idempotencyKey := computeIdempotencyKey(ir)
		if ir.Windows.IdempotencyS > 0 {
			if _, dup := m.ledger.FindByIdempotencyKey(ir.PolicyID, idempotencyKey, time.Duration(ir.Windows.IdempotencyS)*time.Second, now); dup {
				rec := m.record(ir, event, types.OutcomeIdempotent, types.SeverityInfo, idempotencyKey, "idempotent: matching execution within idempotency window")
				results = append(results, rec)
				m.metrics.IncIdempotencySkipped()
				continue
			}
		}

		rec, err := m.executor.Submit(ctx, ir, event, idempotencyKey)
		if err != nil {
			if m.logger != nil {
				m.logger.Error("execution submission failed", map[string]any{"policy_id": ir.PolicyID, "error": err.Error()})
			}
			continue
		}
		results = append(results, rec)

		if ir.StopOnMatch && rec.HasActions() {
			break
		}
	}
	return results
}

// candidates loads policies whose trigger set mentions the event's kind
// and whose subject scope includes the event's subject, sorted by
// (priority asc, policy_id asc) per spec.md §4.4 step 1.
func (m *Matcher) candidates(event types.Event) []types.PolicyIR {
	all := m.registry.All()
	out := make([]types.PolicyIR, 0, len(all))
	for _, ir := range all {
		if !mentionsKind(ir.Match.TriggerGroup, event.Kind) {
			continue
		}
		if !subjectInScope(*ir, event) {
			continue
		}
		out = append(out, *ir)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].PolicyID < out[j].PolicyID
	})
	return out
}

func mentionsKind(tg types.TriggerGroup, kind string) bool {
	for _, t := range tg.Triggers {
		if t.Kind == kind {
			return true
		}
	}
	return false
}

// subjectInScope reports whether ir's targets plausibly cover event's
// subject. A policy scoped to the same host/UPS the event originated from
// is always in scope; a policy with no host set (not expected in
// practice, but defensive) is treated as globally scoped.
func subjectInScope(ir types.PolicyIR, event types.Event) bool {
	if ir.Targets.HostID == "" {
		return true
	}
	return ir.Targets.HostID == event.Subject.ID
}

// triggerGroupMatches evaluates trigger_group per spec.md §4.4 step 2,
// including for_duration continuous-hold tracking per (policy, subject).
func (m *Matcher) triggerGroupMatches(ir types.PolicyIR, event types.Event) bool {
	tg := ir.Match.TriggerGroup
	if len(tg.Triggers) == 0 {
		return false
	}

	matchedCount := 0
	for i, trig := range tg.Triggers {
		if trig.Kind != event.Kind {
			continue
		}
		comparatorHolds := comparatorMatches(trig, event)
		held := m.trackHold(ir.PolicyID, event.Subject, i, comparatorHolds, event.Ts, trig.ForDurationS)
		if held {
			matchedCount++
		}
	}

	switch tg.Logic {
	case types.TriggerLogicAny:
		return matchedCount > 0
	default: // ALL
		return matchedCount == countTriggersForKind(tg, event.Kind) && matchedCount > 0
	}
}

func countTriggersForKind(tg types.TriggerGroup, kind string) int {
	n := 0
	for _, t := range tg.Triggers {
		if t.Kind == kind {
			n++
		}
	}
	return n
}

// trackHold applies for_duration semantics: a trigger whose comparator
// holds is recorded as "held since" the first time it's observed; it
// only counts as a match once it has held continuously for ForDurationS.
// A comparator that stops holding resets the tracked timestamp.
func (m *Matcher) trackHold(policyID string, subject types.Subject, triggerIdx int, comparatorHolds bool, ts time.Time, forDurationS int) bool {
	key := policyID + "\x00" + subject.Kind + "\x00" + subject.ID + "\x00" + strconv.Itoa(triggerIdx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if !comparatorHolds {
		delete(m.heldSince, key)
		return false
	}

	since, ok := m.heldSince[key]
	if !ok {
		m.heldSince[key] = ts
		since = ts
	}
	if forDurationS <= 0 {
		return true
	}
	return ts.Sub(since) >= time.Duration(forDurationS)*time.Second
}

// comparatorMatches evaluates a single trigger's embedded comparator
// against the event, independent of for_duration.
func comparatorMatches(trig types.Trigger, event types.Event) bool {
	switch trig.Kind {
	case "ups.state":
		return attrEquals(event.Attrs, "equals", trig.Equals)
	case "metric.threshold":
		metric, _ := event.Attrs["metric"].(string)
		if metric != trig.Metric {
			return false
		}
		value, ok := numericAttr(event.Attrs, "value")
		if !ok {
			return false
		}
		return compareThreshold(value, trig.Op, trig.Value)
	case "timer.cron", "timer.after":
		schedule, _ := event.Attrs["schedule"].(string)
		return trig.Schedule == "" || schedule == trig.Schedule
	default:
		return attrEquals(event.Attrs, "equals", trig.Equals)
	}
}

func attrEquals(attrs map[string]any, field, want string) bool {
	v, ok := attrs[field]
	if !ok {
		return false
	}
	s, ok := v.(string)
	return ok && s == want
}

func numericAttr(attrs map[string]any, field string) (float64, bool) {
	v, ok := attrs[field]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

func compareThreshold(value float64, op types.ThresholdOp, want float64) bool {
	switch op {
	case types.OpGT:
		return value > want
	case types.OpGTE:
		return value >= want
	case types.OpLT:
		return value < want
	case types.OpLTE:
		return value <= want
	case types.OpEQ:
		return value == want
	case types.OpNEQ:
		return value != want
	default:
		return false
	}
}

// conditionsHold evaluates every Condition in order; all must hold.
func (m *Matcher) conditionsHold(ctx context.Context, ir types.PolicyIR) bool {
	if m.resolver == nil {
		return len(ir.Match.Conditions) == 0
	}
	for _, cond := range ir.Match.Conditions {
		actual, err := m.resolver.Resolve(ctx, cond.Resolver, cond.Field)
		if err != nil {
			return false
		}
		if !conditionHolds(actual, cond.Op, cond.Value) {
			return false
		}
	}
	return true
}

func conditionHolds(actual string, op types.ThresholdOp, want string) bool {
	switch op {
	case types.OpEQ:
		return actual == want
	case types.OpNEQ:
		return actual != want
	default:
		// Numeric comparators on conditions compare parsed floats when
		// both sides parse; otherwise the condition cannot hold.
		af, aok := parseFloat(actual)
		wf, wok := parseFloat(want)
		if !aok || !wok {
			return false
		}
		return compareThreshold(af, op, wf)
	}
}

func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

// computeIdempotencyKey hashes policy_id, sorted resolved target IDs, and
// sorted capability:verb pairs, per spec.md §4.4 step 2 — the same
// canonical-json + sha256 pairing canonicalHash in policy/hash.go uses for
// spec hashing.
func computeIdempotencyKey(ir types.PolicyIR) string {
	targets := append([]string{}, ir.Targets.ResolvedIDs...)
	sort.Strings(targets)

	pairs := make([]string, 0, len(ir.Plan))
	for _, a := range ir.Plan {
		pairs = append(pairs, a.CapabilityID+":"+a.Verb)
	}
	sort.Strings(pairs)

	payload := struct {
		PolicyID string   `json:"policy_id"`
		Targets  []string `json:"targets"`
		Pairs    []string `json:"pairs"`
	}{PolicyID: ir.PolicyID, Targets: targets, Pairs: pairs}

	data, err := json.Marshal(payload)
	if err != nil {
		return ir.PolicyID // defensive fallback, never expected
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// record builds and appends a non-dispatched ExecutionRecord (suppressed
// or idempotent) for summaries that never reach C5.
func (m *Matcher) record(ir types.PolicyIR, event types.Event, outcome types.RunOutcomeKind, sev types.Severity, idempotencyKey, summary string) types.ExecutionRecord {
	rec := types.ExecutionRecord{
		ID:             uuid.New().String(),
		PolicyID:       ir.PolicyID,
		Ts:             event.Ts,
		Outcome:        outcome,
		Severity:       sev,
		EventSnapshot:  event,
		IdempotencyKey: idempotencyKey,
		Summary:        summary,
	}
	m.ledger.Append(rec)
	return rec
}
