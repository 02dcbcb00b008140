// Package events implements C3, the Event Normaliser: it maps
// heterogeneous source payloads (UPS status transitions, threshold
// crossings, timer firings, injected admin signals) to the uniform
// types.Event record, and deduplicates by a source-provided dedupe hash.
//
// Grounded on the teacher's types/events.go discriminated envelope family
// (one payload shape per event kind feeding a single envelope type).
package events

import (
	"container/list"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haltline/haltd/types"
)

// UPS status strings map to ups.state kinds with an equals attr holding
// the raw status code, per spec.md §4.3.
const (
	UPSStatusOnline      = "OL"
	UPSStatusOnBattery   = "OB"
	UPSStatusLowBattery  = "LB"
	UPSStatusReplaceBatt = "RB"
	UPSStatusOverload    = "OVER"
)

// maxSeenEntries bounds the dedup set's memory footprint; oldest entries
// are evicted first once the bound is reached.
const maxSeenEntries = 10_000

// Normaliser converts source payloads into types.Event and drops
// duplicates by dedupe hash. Constructed explicitly, not a singleton.
type Normaliser struct {
	mu       sync.Mutex
	seen     map[string]*list.Element
	seenList *list.List // front = most recently seen
}

// New constructs an empty Normaliser.
func New() *Normaliser {
	return &Normaliser{
		seen:     make(map[string]*list.Element),
		seenList: list.New(),
	}
}

// UPSStatus builds an Event from a raw UPS status transition.
func (n *Normaliser) UPSStatus(subjectID, status string, ts time.Time, dedupeHash string) (types.Event, bool) {
	ev := types.Event{
		Type:    types.EventSourceUPS,
		Kind:    "ups.state",
		Subject: types.Subject{Kind: "ups", ID: subjectID},
		Attrs:   map[string]any{"equals": status},
		Ts:      ts,
	}
	return n.finish(ev, dedupeHash)
}

// ThresholdCrossing builds an Event from a metric threshold crossing.
func (n *Normaliser) ThresholdCrossing(subjectID, metric string, op types.ThresholdOp, value float64, ts time.Time, dedupeHash string) (types.Event, bool) {
	ev := types.Event{
		Type:    types.EventSourceMetric,
		Kind:    "metric.threshold",
		Subject: types.Subject{Kind: "metric", ID: subjectID},
		Attrs: map[string]any{
			"metric": metric,
			"op":     string(op),
			"value":  value,
		},
		Ts: ts,
	}
	return n.finish(ev, dedupeHash)
}

// TimerFiring builds an Event from a cron or interval timer firing.
func (n *Normaliser) TimerFiring(timerID, kind, schedule string, ts time.Time, dedupeHash string) (types.Event, bool) {
	if kind != "timer.cron" && kind != "timer.after" {
		kind = "timer.cron"
	}
	ev := types.Event{
		Type:    types.EventSourceTimer,
		Kind:    kind,
		Subject: types.Subject{Kind: "timer", ID: timerID},
		Attrs:   map[string]any{"schedule": schedule},
		Ts:      ts,
	}
	return n.finish(ev, dedupeHash)
}

// ExternalSignal builds an Event from an injected admin signal.
func (n *Normaliser) ExternalSignal(subjectKind, subjectID, kind string, attrs map[string]any, ts time.Time, dedupeHash string) (types.Event, bool) {
	ev := types.Event{
		Type:    types.EventSourceExternal,
		Kind:    "external." + kind,
		Subject: types.Subject{Kind: subjectKind, ID: subjectID},
		Attrs:   attrs,
		Ts:      ts,
	}
	return n.finish(ev, dedupeHash)
}

// finish stamps a correlation ID when absent and applies dedupe-hash
// filtering. The second return is false when the event is a duplicate and
// must be dropped silently.
func (n *Normaliser) finish(ev types.Event, dedupeHash string) (types.Event, bool) {
	if ev.CorrelationID == "" {
		ev.CorrelationID = uuid.New().String()
	}
	if dedupeHash == "" {
		return ev, true
	}
	if n.markSeen(dedupeHash) {
		return ev, true
	}
	return types.Event{}, false
}

// markSeen returns true the first time hash is observed, false on repeat.
func (n *Normaliser) markSeen(hash string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.seen[hash]; ok {
		return false
	}

	elem := n.seenList.PushFront(hash)
	n.seen[hash] = elem
	if n.seenList.Len() > maxSeenEntries {
		oldest := n.seenList.Back()
		if oldest != nil {
			n.seenList.Remove(oldest)
			delete(n.seen, oldest.Value.(string))
		}
	}
	return true
}
