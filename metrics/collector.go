// Package metrics provides process-wide counters for the orchestrator's
// pipeline stages. The Collector accumulates counters for the lifetime of
// the process; it is a leaf package with no internal dependencies.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all tracked counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after
// creation.
type Snapshot struct {
	// Policy compiler
	CompileSuccess int64
	CompileBlocked int64
	CompileWarned  int64

	// Matcher
	EventsEvaluated    int64
	MatchesFound       int64
	Suppressed         int64
	IdempotencySkipped int64

	// Execution engine
	Dispatched     int64
	DriverFailures int64
	QueueOverflow  int64
	Cancelled      int64

	// Dimensions (informational, set at construction)
	InstanceID string
}

// Collector accumulates metrics for the process lifetime. Thread-safe via
// sync.Mutex. All increment methods are nil-receiver safe so callers that
// construct an Engine/Matcher without a Collector need no nil checks.
type Collector struct {
	mu sync.Mutex

	compileSuccess int64
	compileBlocked int64
	compileWarned  int64

	eventsEvaluated    int64
	matchesFound       int64
	suppressed         int64
	idempotencySkipped int64

	dispatched     int64
	driverFailures int64
	queueOverflow  int64
	cancelled      int64

	instanceID string
}

// NewCollector creates a Collector tagged with instanceID, the process's
// orchestrator identity (e.g. hostname or config-assigned name).
func NewCollector(instanceID string) *Collector {
	return &Collector{instanceID: instanceID}
}

// --- Policy compiler ---

func (c *Collector) IncCompileSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.compileSuccess++
	c.mu.Unlock()
}

func (c *Collector) IncCompileBlocked() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.compileBlocked++
	c.mu.Unlock()
}

func (c *Collector) IncCompileWarned() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.compileWarned++
	c.mu.Unlock()
}

// --- Matcher ---

func (c *Collector) IncEventsEvaluated() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.eventsEvaluated++
	c.mu.Unlock()
}

func (c *Collector) IncMatchesFound() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.matchesFound++
	c.mu.Unlock()
}

func (c *Collector) IncSuppressed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.suppressed++
	c.mu.Unlock()
}

func (c *Collector) IncIdempotencySkipped() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.idempotencySkipped++
	c.mu.Unlock()
}

// --- Execution engine ---

func (c *Collector) IncDispatched() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.dispatched++
	c.mu.Unlock()
}

func (c *Collector) IncDriverFailures() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.driverFailures++
	c.mu.Unlock()
}

func (c *Collector) IncQueueOverflow() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.queueOverflow++
	c.mu.Unlock()
}

func (c *Collector) IncCancelled() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.cancelled++
	c.mu.Unlock()
}

// Snapshot returns an immutable point-in-time view of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		CompileSuccess: c.compileSuccess,
		CompileBlocked: c.compileBlocked,
		CompileWarned:  c.compileWarned,

		EventsEvaluated:    c.eventsEvaluated,
		MatchesFound:       c.matchesFound,
		Suppressed:         c.suppressed,
		IdempotencySkipped: c.idempotencySkipped,

		Dispatched:     c.dispatched,
		DriverFailures: c.driverFailures,
		QueueOverflow:  c.queueOverflow,
		Cancelled:      c.cancelled,

		InstanceID: c.instanceID,
	}
}
