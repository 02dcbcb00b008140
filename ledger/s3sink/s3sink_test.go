package s3sink

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/haltline/haltd/types"
)

// stubClient is a test Client that accepts PutObject calls without
// contacting S3, recording each call for assertions.
type stubClient struct {
	mu    sync.Mutex
	puts  []stubPut
	fail  bool
}

type stubPut struct {
	key  string
	body []byte
}

func (c *stubClient) PutObject(_ context.Context, key string, body []byte) error {
	if c.fail {
		return context.DeadlineExceeded
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts = append(c.puts, stubPut{key: key, body: body})
	return nil
}

func rec(policyID string, ts time.Time) types.ExecutionRecord {
	return types.ExecutionRecord{ID: "r1", PolicyID: policyID, Ts: ts, Outcome: types.OutcomeDispatched}
}

func TestFlush_NoopWhenNothingPending(t *testing.T) {
	c := &stubClient{}
	s := newSink(Config{Bucket: "b", BatchSize: 10}, c)

	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(c.puts) != 0 {
		t.Fatalf("expected no puts, got %d", len(c.puts))
	}
}

func TestFlush_UploadsBufferedBatch(t *testing.T) {
	c := &stubClient{}
	s := newSink(Config{Bucket: "b", BatchSize: 10}, c)

	now := time.Now()
	s.Append(rec("p1", now))
	s.Append(rec("p1", now.Add(time.Second)))

	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(c.puts) != 1 {
		t.Fatalf("expected a single batched put, got %d", len(c.puts))
	}

	var decoded []types.ExecutionRecord
	if err := msgpack.Unmarshal(c.puts[0].body, &decoded); err != nil {
		t.Fatalf("unmarshal batch: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected 2 records in the batch, got %d", len(decoded))
	}
}

func TestAppend_AutoFlushesAtBatchSize(t *testing.T) {
	c := &stubClient{}
	s := newSink(Config{Bucket: "b", BatchSize: 2}, c)

	now := time.Now()
	s.Append(rec("p1", now))
	s.Append(rec("p1", now)) // triggers auto-flush

	c.mu.Lock()
	n := len(c.puts)
	c.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected auto-flush once batch size reached, got %d puts", n)
	}
}

func TestFlush_ClearsBufferAfterUpload(t *testing.T) {
	c := &stubClient{}
	s := newSink(Config{Bucket: "b", BatchSize: 10}, c)

	s.Append(rec("p1", time.Now()))
	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("second flush: %v", err)
	}
	if len(c.puts) != 1 {
		t.Fatalf("second flush with nothing new pending must not upload again, got %d puts", len(c.puts))
	}
}

func TestObjectKey_PartitionsByPolicyAndDay(t *testing.T) {
	s := newSink(Config{Bucket: "b", Prefix: "exports"}, &stubClient{})
	ts := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	key := s.objectKey(rec("p1", ts))
	want := "exports/policy=p1/day=2026-07-30/"
	if len(key) < len(want) || key[:len(want)] != want {
		t.Fatalf("expected key to start with %q, got %q", want, key)
	}
}

func TestConfig_ValidateRequiresBucket(t *testing.T) {
	cfg := Config{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing bucket")
	}
}
