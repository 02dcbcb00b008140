package policy

import (
	"errors"
	"testing"

	"github.com/haltline/haltd/types"
)

func TestInverse_Success(t *testing.T) {
	spec := basicSpec()
	spec.Actions = []types.ActionSpec{
		{CapabilityID: "power", Verb: "shutdown"},
	}
	caps := map[string]types.HostCapability{
		"power": {ID: "power", Verbs: []string{"shutdown", "poweron"}, Invertible: map[string]string{"shutdown": "poweron"}},
	}

	inverse, needsInput, err := Inverse(spec, caps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inverse.Enabled {
		t.Fatal("expected inverse to be disabled")
	}
	if inverse.Name != "Inverse of "+spec.Name {
		t.Errorf("unexpected inverse name: %q", inverse.Name)
	}
	if inverse.Actions[0].Verb != "poweron" {
		t.Errorf("expected inverted verb poweron, got %q", inverse.Actions[0].Verb)
	}
	if len(needsInput) != 0 {
		t.Errorf("expected no needs_input for a non-timer trigger, got %v", needsInput)
	}
}

func TestInverse_ReturnsAllNonInvertibleActions(t *testing.T) {
	spec := basicSpec()
	spec.Actions = []types.ActionSpec{
		{CapabilityID: "power", Verb: "shutdown"},
		{CapabilityID: "network", Verb: "isolate"},
	}
	caps := map[string]types.HostCapability{
		"power":   {ID: "power", Verbs: []string{"shutdown"}}, // no Invertible entry
		"network": {ID: "network", Verbs: []string{"isolate"}}, // no Invertible entry
	}

	_, _, err := Inverse(spec, caps)
	if err == nil {
		t.Fatal("expected InverseError")
	}
	var inverseErr *InverseError
	if !errors.As(err, &inverseErr) {
		t.Fatalf("expected *InverseError, got %T", err)
	}
	if len(inverseErr.Paths) != 2 {
		t.Fatalf("expected both offending actions reported, got %v", inverseErr.Paths)
	}
}

func TestInverse_TimerTriggerNeedsInput(t *testing.T) {
	spec := basicSpec()
	spec.TriggerGroup = types.TriggerGroup{
		Logic:    types.TriggerLogicAll,
		Triggers: []types.Trigger{{Kind: "timer.cron", Schedule: "0 3 * * *"}},
	}
	spec.Actions = []types.ActionSpec{{CapabilityID: "power", Verb: "shutdown"}}
	caps := map[string]types.HostCapability{
		"power": {ID: "power", Verbs: []string{"shutdown", "poweron"}, Invertible: map[string]string{"shutdown": "poweron"}},
	}

	_, needsInput, err := Inverse(spec, caps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(needsInput) != 1 {
		t.Fatalf("expected needs_input for timer trigger's schedule, got %v", needsInput)
	}
}
