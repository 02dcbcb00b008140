package policy

import (
	"fmt"

	"github.com/haltline/haltd/types"
)

// InverseError reports that one or more actions in a plan could not be
// inverted; it carries the full offending path list (not just the first),
// per spec.md §9's resolved open question.
type InverseError struct {
	Paths []string
}

func (e *InverseError) Error() string {
	return fmt.Sprintf("policy: %d action(s) not invertible: %v", len(e.Paths), e.Paths)
}

// Inverse produces the inverse of a compiled policy's spec per spec.md
// §4.2: every action's verb must have an entry in its capability's
// Invertible map, else the whole operation fails with every offending
// path. On success, the inverse carries the same selectors, is disabled,
// and its name is prefixed "Inverse of ".
func Inverse(spec types.PolicySpec, caps map[string]types.HostCapability) (types.PolicySpec, []string, error) {
	actions := make([]types.ActionSpec, len(spec.Actions))
	var offending []string
	var needsInput []string

	for i, action := range spec.Actions {
		path := fmt.Sprintf("/actions/%d/verb", i)
		cap, ok := caps[action.CapabilityID]
		if !ok {
			offending = append(offending, path)
			continue
		}
		inverseVerb, ok := cap.Invertible[action.Verb]
		if !ok {
			offending = append(offending, path)
			continue
		}
		actions[i] = action
		actions[i].Verb = inverseVerb

		if isTimerTrigger(spec.TriggerGroup) {
			needsInput = append(needsInput, fmt.Sprintf("/trigger_group/triggers (new schedule for %s)", action.CapabilityID))
		}
	}

	if len(offending) > 0 {
		return types.PolicySpec{}, nil, &InverseError{Paths: offending}
	}

	inverse := spec
	inverse.Name = "Inverse of " + spec.Name
	inverse.Enabled = false
	inverse.Actions = actions
	return inverse, needsInput, nil
}

// isTimerTrigger reports whether any trigger in the group is a timer
// trigger, whose inverse schedule cannot be inferred automatically and
// must be supplied by the operator.
func isTimerTrigger(tg types.TriggerGroup) bool {
	for _, t := range tg.Triggers {
		if t.Kind == "timer.cron" || t.Kind == "timer.after" {
			return true
		}
	}
	return false
}
