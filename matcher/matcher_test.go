package matcher

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/haltline/haltd/ledger"
	"github.com/haltline/haltd/policy"
	"github.com/haltline/haltd/types"
)

type fakeExecutor struct {
	calls   []types.PolicyIR
	results func(ir types.PolicyIR) types.ExecutionRecord
	// ledger, when set, receives every record Submit returns, as the real
	// engine's Submit path does.
	ledger *ledger.Ledger
}

func (f *fakeExecutor) Submit(ctx context.Context, ir types.PolicyIR, event types.Event, idempotencyKey string) (types.ExecutionRecord, error) {
	f.calls = append(f.calls, ir)
	var rec types.ExecutionRecord
	if f.results != nil {
		rec = f.results(ir)
	} else {
		rec = types.ExecutionRecord{
			PolicyID:       ir.PolicyID,
			Ts:             event.Ts,
			Outcome:        types.OutcomeDispatched,
			IdempotencyKey: idempotencyKey,
			Actions:        []types.ActionResult{{OK: true}},
		}
	}
	if f.ledger != nil {
		f.ledger.Append(rec)
	}
	return rec, nil
}

func registerIR(t *testing.T, reg *policy.Registry, ir types.PolicyIR) {
	t.Helper()
	if ir.PolicyID == "" {
		ir.PolicyID = uuid.New().String()
	}
	if err := reg.Register(&ir); err != nil {
		t.Fatalf("register: %v", err)
	}
}

func upsIR(priority int, hostID string) types.PolicyIR {
	return types.PolicyIR{
		PolicyID: uuid.New().String(),
		Priority: priority,
		Enabled:  true,
		Match: types.NormalisedMatch{
			TriggerGroup: types.TriggerGroup{
				Logic:    types.TriggerLogicAll,
				Triggers: []types.Trigger{{Kind: "ups.state", Equals: "OB"}},
			},
		},
		Targets: types.ResolvedTargets{HostID: hostID},
		Plan:    []types.ActionSpec{{CapabilityID: "power", Verb: "shutdown"}},
	}
}

func TestEvaluate_MatchesAndDispatches(t *testing.T) {
	reg := policy.NewRegistry()
	ir := upsIR(10, "ups-1")
	registerIR(t, reg, ir)

	led := ledger.New(30)
	exec := &fakeExecutor{}
	m := New(reg, led, exec, nil, nil, nil)

	event := types.Event{
		Kind:    "ups.state",
		Subject: types.Subject{Kind: "ups", ID: "ups-1"},
		Attrs:   map[string]any{"equals": "OB"},
		Ts:      time.Now(),
	}

	results := m.Evaluate(context.Background(), event)
	if len(results) != 1 || len(exec.calls) != 1 {
		t.Fatalf("expected exactly one dispatch, got %d results, %d exec calls", len(results), len(exec.calls))
	}
}

func TestEvaluate_SortsByPriorityThenPolicyID(t *testing.T) {
	reg := policy.NewRegistry()
	irHigh := upsIR(5, "ups-1")
	irLow := upsIR(1, "ups-1")
	registerIR(t, reg, irHigh)
	registerIR(t, reg, irLow)

	led := ledger.New(30)
	var order []string
	exec := &fakeExecutor{results: func(ir types.PolicyIR) types.ExecutionRecord {
		order = append(order, ir.PolicyID)
		return types.ExecutionRecord{PolicyID: ir.PolicyID, Outcome: types.OutcomeDispatched}
	}}
	m := New(reg, led, exec, nil, nil, nil)

	event := types.Event{Kind: "ups.state", Subject: types.Subject{ID: "ups-1"}, Attrs: map[string]any{"equals": "OB"}, Ts: time.Now()}
	m.Evaluate(context.Background(), event)

	if len(order) != 2 || order[0] != irLow.PolicyID {
		t.Fatalf("expected lower priority number first, got order %v", order)
	}
}

func TestEvaluate_SuppressionWindowBlocksReexecution(t *testing.T) {
	reg := policy.NewRegistry()
	ir := upsIR(1, "ups-1")
	ir.Windows.SuppressionS = 60
	registerIR(t, reg, ir)

	led := ledger.New(30)
	now := time.Now()
	led.Append(types.ExecutionRecord{
		PolicyID: ir.PolicyID, Ts: now.Add(-10 * time.Second),
		Outcome: types.OutcomeDispatched, Actions: []types.ActionResult{{OK: true}},
	})

	exec := &fakeExecutor{}
	m := New(reg, led, exec, nil, nil, nil)

	event := types.Event{Kind: "ups.state", Subject: types.Subject{ID: "ups-1"}, Attrs: map[string]any{"equals": "OB"}, Ts: now}
	results := m.Evaluate(context.Background(), event)

	if len(exec.calls) != 0 {
		t.Fatal("expected no execution submission within suppression window")
	}
	if len(results) != 1 || results[0].Outcome != types.OutcomeSuppressed {
		t.Fatalf("expected a suppressed record, got %+v", results)
	}
}

func TestEvaluate_IdempotencyWindowCollapses(t *testing.T) {
	reg := policy.NewRegistry()
	ir := upsIR(1, "ups-1")
	ir.Windows.IdempotencyS = 60
	ir.Targets.ResolvedIDs = []string{"104"}
	registerIR(t, reg, ir)

	led := ledger.New(30)
	exec := &fakeExecutor{ledger: led}
	m := New(reg, led, exec, nil, nil, nil)

	now := time.Now()
	event := types.Event{Kind: "ups.state", Subject: types.Subject{ID: "ups-1"}, Attrs: map[string]any{"equals": "OB"}, Ts: now}

	// First evaluation dispatches for real and must stamp the computed
	// idempotency key onto the ledger entry through the normal Submit path.
	first := m.Evaluate(context.Background(), event)
	if len(exec.calls) != 1 {
		t.Fatalf("expected first evaluation to dispatch, got %d calls", len(exec.calls))
	}
	if len(first) != 1 || first[0].Outcome != types.OutcomeDispatched {
		t.Fatalf("expected a dispatched record, got %+v", first)
	}
	if first[0].IdempotencyKey == "" {
		t.Fatal("expected the dispatched record to carry a non-empty idempotency key")
	}

	// A second, identical event within the idempotency window must collapse
	// against the ledger entry the first Submit call actually wrote.
	second := m.Evaluate(context.Background(), types.Event{
		Kind: "ups.state", Subject: types.Subject{ID: "ups-1"}, Attrs: map[string]any{"equals": "OB"}, Ts: now.Add(5 * time.Second),
	})
	if len(exec.calls) != 1 {
		t.Fatal("expected no further execution submission within idempotency window")
	}
	if len(second) != 1 || second[0].Outcome != types.OutcomeIdempotent {
		t.Fatalf("expected an idempotent record, got %+v", second)
	}
}

func TestEvaluate_StopOnMatchHaltsIteration(t *testing.T) {
	reg := policy.NewRegistry()
	irFirst := upsIR(1, "ups-1")
	irFirst.StopOnMatch = true
	irSecond := upsIR(2, "ups-1")
	registerIR(t, reg, irFirst)
	registerIR(t, reg, irSecond)

	led := ledger.New(30)
	exec := &fakeExecutor{}
	m := New(reg, led, exec, nil, nil, nil)

	event := types.Event{Kind: "ups.state", Subject: types.Subject{ID: "ups-1"}, Attrs: map[string]any{"equals": "OB"}, Ts: time.Now()}
	m.Evaluate(context.Background(), event)

	if len(exec.calls) != 1 {
		t.Fatalf("expected stop_on_match to halt after the first dispatch, got %d calls", len(exec.calls))
	}
}

func TestEvaluate_ForDurationRequiresContinuousHold(t *testing.T) {
	reg := policy.NewRegistry()
	ir := upsIR(1, "ups-1")
	ir.Match.TriggerGroup.Triggers[0].ForDurationS = 30
	registerIR(t, reg, ir)

	led := ledger.New(30)
	exec := &fakeExecutor{}
	m := New(reg, led, exec, nil, nil, nil)

	base := time.Now()
	event1 := types.Event{Kind: "ups.state", Subject: types.Subject{ID: "ups-1"}, Attrs: map[string]any{"equals": "OB"}, Ts: base}
	m.Evaluate(context.Background(), event1)
	if len(exec.calls) != 0 {
		t.Fatal("expected no dispatch on first observation before for_duration elapses")
	}

	event2 := types.Event{Kind: "ups.state", Subject: types.Subject{ID: "ups-1"}, Attrs: map[string]any{"equals": "OB"}, Ts: base.Add(35 * time.Second)}
	m.Evaluate(context.Background(), event2)
	if len(exec.calls) != 1 {
		t.Fatalf("expected dispatch once held continuously past for_duration, got %d calls", len(exec.calls))
	}
}

func TestEvaluate_ForDurationResetsOnInterruption(t *testing.T) {
	reg := policy.NewRegistry()
	ir := upsIR(1, "ups-1")
	ir.Match.TriggerGroup.Triggers[0].ForDurationS = 30
	registerIR(t, reg, ir)

	led := ledger.New(30)
	exec := &fakeExecutor{}
	m := New(reg, led, exec, nil, nil, nil)

	base := time.Now()
	onBattery := types.Event{Kind: "ups.state", Subject: types.Subject{ID: "ups-1"}, Attrs: map[string]any{"equals": "OB"}, Ts: base}
	m.Evaluate(context.Background(), onBattery)

	online := types.Event{Kind: "ups.state", Subject: types.Subject{ID: "ups-1"}, Attrs: map[string]any{"equals": "OL"}, Ts: base.Add(10 * time.Second)}
	m.Evaluate(context.Background(), online)

	onBatteryAgain := types.Event{Kind: "ups.state", Subject: types.Subject{ID: "ups-1"}, Attrs: map[string]any{"equals": "OB"}, Ts: base.Add(35 * time.Second)}
	m.Evaluate(context.Background(), onBatteryAgain)

	if len(exec.calls) != 0 {
		t.Fatalf("expected interruption to reset the hold timer, got %d calls", len(exec.calls))
	}
}

func TestEvaluate_ForDurationZeroIsImmediate(t *testing.T) {
	reg := policy.NewRegistry()
	ir := upsIR(1, "ups-1") // ForDurationS defaults to 0
	registerIR(t, reg, ir)

	led := ledger.New(30)
	exec := &fakeExecutor{}
	m := New(reg, led, exec, nil, nil, nil)

	event := types.Event{Kind: "ups.state", Subject: types.Subject{ID: "ups-1"}, Attrs: map[string]any{"equals": "OB"}, Ts: time.Now()}
	m.Evaluate(context.Background(), event)

	if len(exec.calls) != 1 {
		t.Fatalf("expected immediate match with for_duration=0, got %d calls", len(exec.calls))
	}
}

func TestEvaluate_DisabledPolicyNeverMatches(t *testing.T) {
	reg := policy.NewRegistry()
	ir := upsIR(1, "ups-1")
	ir.Enabled = false
	registerIR(t, reg, ir)

	led := ledger.New(30)
	exec := &fakeExecutor{}
	m := New(reg, led, exec, nil, nil, nil)

	event := types.Event{Kind: "ups.state", Subject: types.Subject{ID: "ups-1"}, Attrs: map[string]any{"equals": "OB"}, Ts: time.Now()}
	m.Evaluate(context.Background(), event)

	if len(exec.calls) != 0 {
		t.Fatal("expected disabled policy to never be submitted")
	}
}

func TestEvaluate_UnrelatedHostNotInScope(t *testing.T) {
	reg := policy.NewRegistry()
	ir := upsIR(1, "ups-1")
	registerIR(t, reg, ir)

	led := ledger.New(30)
	exec := &fakeExecutor{}
	m := New(reg, led, exec, nil, nil, nil)

	event := types.Event{Kind: "ups.state", Subject: types.Subject{ID: "ups-2"}, Attrs: map[string]any{"equals": "OB"}, Ts: time.Now()}
	m.Evaluate(context.Background(), event)

	if len(exec.calls) != 0 {
		t.Fatal("expected a policy scoped to a different host to be out of scope")
	}
}
