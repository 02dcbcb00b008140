package ledger

import (
	"testing"
	"time"

	"github.com/haltline/haltd/types"
)

func TestAppend_BoundsHistoryPerPolicy(t *testing.T) {
	l := New(3)
	base := time.Now()
	for i := 0; i < 5; i++ {
		l.Append(types.ExecutionRecord{PolicyID: "p1", Ts: base.Add(time.Duration(i) * time.Second), Outcome: types.OutcomeDispatched})
	}
	records := l.Since("p1", base.Add(-time.Hour))
	if len(records) != 3 {
		t.Fatalf("expected ring bounded to 3, got %d", len(records))
	}
}

func TestRecentlyDispatched_FindsWithinWindow(t *testing.T) {
	l := New(30)
	now := time.Now()
	l.Append(types.ExecutionRecord{
		PolicyID: "p1", Ts: now.Add(-10 * time.Second), Outcome: types.OutcomeDispatched,
		Actions: []types.ActionResult{{OK: true}},
	})

	rec, found := l.RecentlyDispatched("p1", 30*time.Second, now)
	if !found {
		t.Fatal("expected a recently dispatched record within window")
	}
	if rec.PolicyID != "p1" {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestRecentlyDispatched_OutsideWindowNotFound(t *testing.T) {
	l := New(30)
	now := time.Now()
	l.Append(types.ExecutionRecord{
		PolicyID: "p1", Ts: now.Add(-time.Hour), Outcome: types.OutcomeDispatched,
		Actions: []types.ActionResult{{OK: true}},
	})

	_, found := l.RecentlyDispatched("p1", 30*time.Second, now)
	if found {
		t.Fatal("expected no record within a 30s window when the record is 1h old")
	}
}

func TestRecentlyDispatched_IgnoresSuppressedRecords(t *testing.T) {
	l := New(30)
	now := time.Now()
	l.Append(types.ExecutionRecord{
		PolicyID: "p1", Ts: now.Add(-1 * time.Second), Outcome: types.OutcomeSuppressed,
	})

	_, found := l.RecentlyDispatched("p1", 30*time.Second, now)
	if found {
		t.Fatal("a suppressed record must not itself satisfy the suppression window check")
	}
}

func TestFindByIdempotencyKey(t *testing.T) {
	l := New(30)
	now := time.Now()
	l.Append(types.ExecutionRecord{
		PolicyID: "p1", Ts: now.Add(-5 * time.Second), Outcome: types.OutcomeDispatched,
		IdempotencyKey: "key-1",
	})

	_, found := l.FindByIdempotencyKey("p1", "key-1", 30*time.Second, now)
	if !found {
		t.Fatal("expected idempotency key match within window")
	}

	_, found = l.FindByIdempotencyKey("p1", "key-2", 30*time.Second, now)
	if found {
		t.Fatal("expected no match for a different idempotency key")
	}
}

func TestFindByIdempotencyKey_EmptyKeyNeverMatches(t *testing.T) {
	l := New(30)
	now := time.Now()
	l.Append(types.ExecutionRecord{PolicyID: "p1", Ts: now, IdempotencyKey: ""})

	_, found := l.FindByIdempotencyKey("p1", "", time.Minute, now)
	if found {
		t.Fatal("empty idempotency key must never match")
	}
}

func TestOnEvict_FiresForRecordDroppedAtCapacity(t *testing.T) {
	l := New(2)
	var evicted []types.ExecutionRecord
	l.OnEvict(func(rec types.ExecutionRecord) { evicted = append(evicted, rec) })

	base := time.Now()
	for i := 0; i < 4; i++ {
		l.Append(types.ExecutionRecord{PolicyID: "p1", Ts: base.Add(time.Duration(i) * time.Second), IdempotencyKey: string(rune('a' + i))})
	}

	if len(evicted) != 2 {
		t.Fatalf("expected 2 evictions once the 2-record ring saw 4 appends, got %d", len(evicted))
	}
	if evicted[0].IdempotencyKey != "a" || evicted[1].IdempotencyKey != "b" {
		t.Fatalf("expected oldest-first eviction order, got %+v", evicted)
	}
}

func TestOnEvict_NotCalledWithinCapacity(t *testing.T) {
	l := New(5)
	called := false
	l.OnEvict(func(types.ExecutionRecord) { called = true })

	l.Append(types.ExecutionRecord{PolicyID: "p1"})
	if called {
		t.Fatal("eviction callback must not fire while the ring has spare capacity")
	}
}

func TestPolicies_SortedDeterministic(t *testing.T) {
	l := New(10)
	l.Append(types.ExecutionRecord{PolicyID: "zeta"})
	l.Append(types.ExecutionRecord{PolicyID: "alpha"})

	ids := l.Policies()
	if len(ids) != 2 || ids[0] != "alpha" || ids[1] != "zeta" {
		t.Fatalf("expected sorted policy IDs, got %v", ids)
	}
}
