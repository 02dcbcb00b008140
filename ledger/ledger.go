// Package ledger implements C7, the Execution Ledger: an append-only,
// per-policy bounded history of execution records, queried by the
// matcher for suppression/idempotency windowing and by the CLI for
// inspection.
//
// Grounded on the teacher's policy/policy.go statsRecorder locked/unlocked
// method-pair discipline: a mutex-guarded accumulator whose "Locked"
// variants assume the caller already holds the lock. Here a per-policy
// mutex guards a bounded ring of records instead of a stats struct.
package ledger

import (
	"sort"
	"sync"
	"time"

	"github.com/haltline/haltd/types"
)

// Ledger is the process-wide execution history, one bounded ring per
// policy ID. Persistence of audit records beyond process lifetime is out
// of scope (spec.md §1 Non-goals); this is the in-memory shape of the
// contract, optionally drained to ledger/s3sink for durable export.
type Ledger struct {
	mu           sync.Mutex
	policies     map[string]*policyLedger
	maxPerPolicy int
	onEvict      func(types.ExecutionRecord)
}

type policyLedger struct {
	mu      sync.Mutex
	records []types.ExecutionRecord // oldest first; bounded to maxPerPolicy
}

// New constructs a Ledger bounding each policy's history to maxPerPolicy
// records (spec.md §6 history_per_policy, default 30).
func New(maxPerPolicy int) *Ledger {
	if maxPerPolicy <= 0 {
		maxPerPolicy = 30
	}
	return &Ledger{
		policies:     make(map[string]*policyLedger),
		maxPerPolicy: maxPerPolicy,
	}
}

func (l *Ledger) policyFor(policyID string) *policyLedger {
	l.mu.Lock()
	defer l.mu.Unlock()
	pl, ok := l.policies[policyID]
	if !ok {
		pl = &policyLedger{}
		l.policies[policyID] = pl
	}
	return pl
}

// OnEvict registers a callback invoked synchronously with every record
// dropped off the front of a policy's ring when it exceeds maxPerPolicy.
// Intended for ledger/s3sink, which batches evicted records for durable
// export before they'd otherwise be lost to the in-memory bound. Must be
// called before any Append; not safe to change concurrently with writes.
func (l *Ledger) OnEvict(fn func(types.ExecutionRecord)) {
	l.onEvict = fn
}

// Append records an execution outcome, evicting the oldest record for
// this policy if the ring is at capacity.
func (l *Ledger) Append(rec types.ExecutionRecord) {
	pl := l.policyFor(rec.PolicyID)
	pl.mu.Lock()
	evicted, ok := pl.appendLocked(rec, l.maxPerPolicy)
	pl.mu.Unlock()
	if ok && l.onEvict != nil {
		l.onEvict(evicted)
	}
}

func (pl *policyLedger) appendLocked(rec types.ExecutionRecord, max int) (types.ExecutionRecord, bool) {
	pl.records = append(pl.records, rec)
	if len(pl.records) > max {
		evicted := pl.records[0]
		pl.records = pl.records[len(pl.records)-max:]
		return evicted, true
	}
	return types.ExecutionRecord{}, false
}

// Since returns policyID's records with Ts >= since, oldest first.
func (l *Ledger) Since(policyID string, since time.Time) []types.ExecutionRecord {
	pl := l.policyFor(policyID)
	pl.mu.Lock()
	defer pl.mu.Unlock()

	var out []types.ExecutionRecord
	for _, r := range pl.records {
		if !r.Ts.Before(since) {
			out = append(out, r)
		}
	}
	return out
}

// RecentlyDispatched reports whether policyID produced at least one
// dispatched execution (with actions) within window of now, used by the
// matcher's suppression-window check (spec.md §4.4).
func (l *Ledger) RecentlyDispatched(policyID string, window time.Duration, now time.Time) (types.ExecutionRecord, bool) {
	pl := l.policyFor(policyID)
	pl.mu.Lock()
	defer pl.mu.Unlock()

	cutoff := now.Add(-window)
	for i := len(pl.records) - 1; i >= 0; i-- {
		r := pl.records[i]
		if r.Ts.Before(cutoff) {
			break
		}
		if r.Outcome == types.OutcomeDispatched && r.HasActions() {
			return r, true
		}
	}
	return types.ExecutionRecord{}, false
}

// FindByIdempotencyKey reports whether policyID has an execution with the
// given idempotency key within window of now, used by the matcher's
// idempotency-window check (spec.md §4.4).
func (l *Ledger) FindByIdempotencyKey(policyID, key string, window time.Duration, now time.Time) (types.ExecutionRecord, bool) {
	if key == "" {
		return types.ExecutionRecord{}, false
	}
	pl := l.policyFor(policyID)
	pl.mu.Lock()
	defer pl.mu.Unlock()

	cutoff := now.Add(-window)
	for i := len(pl.records) - 1; i >= 0; i-- {
		r := pl.records[i]
		if r.Ts.Before(cutoff) {
			break
		}
		if r.IdempotencyKey == key {
			return r, true
		}
	}
	return types.ExecutionRecord{}, false
}

// Policies returns every policy ID with recorded history, sorted for
// deterministic iteration by callers (e.g. the CLI's inspect command).
func (l *Ledger) Policies() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.policies))
	for id := range l.policies {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
