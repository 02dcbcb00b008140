// Package runtime implements C5, the Per-host Execution Engine: one FIFO
// queue per host UUID served by a lazily-spawned, idle-timeout-reaped
// worker, a global counting semaphore bounding concurrent driver calls,
// and Cartesian plan x resolved_targets dispatch.
//
// Directly adapted from the teacher's runtime/fanout.go Operator: the
// queue channel, chan struct{} semaphore, non-blocking bounded send with
// overflow accounting, and ctx.Done() drain loop are the same shapes,
// retargeted from a global fan-out work queue to one queue per host with
// per-host FIFO serialisation (no two policies against the same host ever
// run concurrently) plus a new idle-timeout worker teardown.
package runtime

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haltline/haltd/driver"
	"github.com/haltline/haltd/inventory"
	"github.com/haltline/haltd/ledger"
	"github.com/haltline/haltd/log"
	"github.com/haltline/haltd/metrics"
	"github.com/haltline/haltd/types"
)

// Config controls the engine's resource bounds, per spec.md §6.
type Config struct {
	GlobalConcurrency int           // default 10
	PerHostQueueDepth int           // default 128
	WorkerIdleTimeout time.Duration // default 120s
	ResolutionSLA     time.Duration // default 5s, freshness SLA for dynamic resolution at execution time
}

// DefaultConfig returns the spec.md-documented defaults.
func DefaultConfig() Config {
	return Config{
		GlobalConcurrency: 10,
		PerHostQueueDepth: 128,
		WorkerIdleTimeout: 120 * time.Second,
		ResolutionSLA:     5 * time.Second,
	}
}

// DriverLookup resolves the driver bound to a host's integration
// instance, the same contract the inventory index uses.
type DriverLookup func(hostID string) (driver.Driver, error)

// job is one unit of work queued against a host.
type job struct {
	ir             types.PolicyIR
	event          types.Event
	idempotencyKey string
	done           chan jobResult
}

type jobResult struct {
	rec types.ExecutionRecord
	err error
}

// hostQueue is the per-host FIFO plus its lazily-spawned worker.
type hostQueue struct {
	queue   chan *job
	mu      sync.Mutex
	running bool
}

// Engine is the C5 implementation. Implements matcher.Executor. Constructed
// explicitly, never a package-level singleton.
type Engine struct {
	cfg     Config
	inv     *inventory.Index
	ledger  *ledger.Ledger
	drivers DriverLookup
	logger  *log.Logger
	metrics *metrics.Collector
	sem     chan struct{}

	mu    sync.Mutex
	hosts map[string]*hostQueue

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs an Engine bound to an inventory index, execution ledger,
// and driver lookup. collector may be nil. The returned Engine's
// background workers run until Shutdown is called.
func New(cfg Config, inv *inventory.Index, led *ledger.Ledger, drivers DriverLookup, logger *log.Logger, collector *metrics.Collector) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:     cfg,
		inv:     inv,
		ledger:  led,
		drivers: drivers,
		logger:  logger,
		metrics: collector,
		sem:     make(chan struct{}, cfg.GlobalConcurrency),
		hosts:   make(map[string]*hostQueue),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Shutdown cancels all in-flight work. Currently-running driver calls are
// allowed to complete; anything still queued is marked cancelled.
func (e *Engine) Shutdown() {
	e.cancel()
	e.wg.Wait()
}

// Submit implements matcher.Executor: it enqueues ir for execution against
// its target host and blocks until that specific run completes (or is
// rejected for queue overflow), per spec.md §4.5's per-host FIFO
// serialisation guarantee. idempotencyKey is stamped onto the resulting
// ExecutionRecord so a later FindByIdempotencyKey lookup against this same
// run can actually find it.
func (e *Engine) Submit(ctx context.Context, ir types.PolicyIR, event types.Event, idempotencyKey string) (types.ExecutionRecord, error) {
	hq := e.hostQueueFor(ir.Targets.HostID)

	j := &job{ir: ir, event: event, idempotencyKey: idempotencyKey, done: make(chan jobResult, 1)}

	select {
	case hq.queue <- j:
	default:
		rec := types.ExecutionRecord{
			ID:             uuid.New().String(),
			PolicyID:       ir.PolicyID,
			Ts:             eventTime(event),
			Outcome:        types.OutcomeOverflow,
			Severity:       types.SeverityWarn,
			EventSnapshot:  event,
			IdempotencyKey: idempotencyKey,
			Summary:        fmt.Sprintf("per-host queue at capacity (%d) for host %s", e.cfg.PerHostQueueDepth, ir.Targets.HostID),
		}
		e.ledger.Append(rec)
		e.metrics.IncQueueOverflow()
		return rec, nil
	}

	select {
	case res := <-j.done:
		return res.rec, res.err
	case <-ctx.Done():
		return types.ExecutionRecord{}, ctx.Err()
	}
}

func (e *Engine) hostQueueFor(hostID string) *hostQueue {
	e.mu.Lock()
	defer e.mu.Unlock()

	hq, ok := e.hosts[hostID]
	if !ok {
		hq = &hostQueue{queue: make(chan *job, e.cfg.PerHostQueueDepth)}
		e.hosts[hostID] = hq
	}
	if !hq.running {
		hq.running = true
		e.wg.Add(1)
		go e.runWorker(hostID, hq)
	}
	return hq
}

// runWorker is the one long-lived worker per host queue. It processes one
// policy-run to completion before taking the next item, guaranteeing no
// two policies targeting the same host execute concurrently. It tears
// down after WorkerIdleTimeout with nothing to do.
func (e *Engine) runWorker(hostID string, hq *hostQueue) {
	defer e.wg.Done()
	idle := time.NewTimer(e.cfg.WorkerIdleTimeout)
	defer idle.Stop()

	for {
		select {
		case j := <-hq.queue:
			if !idle.Stop() {
				<-idle.C
			}
			e.process(j)
			idle.Reset(e.cfg.WorkerIdleTimeout)
		case <-idle.C:
			e.mu.Lock()
			hq.running = false
			e.mu.Unlock()
			return
		case <-e.ctx.Done():
			e.drain(hq)
			return
		}
	}
}

// drain marks every item still queued for this host as cancelled, per
// spec.md §4.5's cancellation semantics: pending items are marked
// cancelled, the currently-running action (already completed by the time
// we reach ctx.Done() in this single-threaded-per-host model) is not
// reopened.
func (e *Engine) drain(hq *hostQueue) {
	for {
		select {
		case j := <-hq.queue:
			rec := types.ExecutionRecord{
				ID:             uuid.New().String(),
				PolicyID:       j.ir.PolicyID,
				Ts:             eventTime(j.event),
				Outcome:        types.OutcomeCancelled,
				Severity:       types.SeverityWarn,
				EventSnapshot:  j.event,
				IdempotencyKey: j.idempotencyKey,
				Summary:        "cancelled: engine shutdown drained the host queue",
			}
			e.ledger.Append(rec)
			e.metrics.IncCancelled()
			j.done <- jobResult{rec: rec}
		default:
			return
		}
	}
}

// process runs one policy-run to completion: resolve targets if dynamic,
// dispatch the Cartesian product of plan x resolved_targets, aggregate
// severity, append to the ledger, and wake the submitter.
func (e *Engine) process(j *job) {
	ir := j.ir
	resolvedIDs := ir.Targets.ResolvedIDs

	if ir.DynamicResolution {
		result, err := e.inv.ResolveSelector(e.ctx, ir.Targets.HostID, ir.Targets.TargetType, ir.Targets.Selector, e.cfg.ResolutionSLA)
		if err != nil {
			rec := e.finish(j, types.OutcomeDispatched, types.SeverityError, nil, "dynamic resolution failed: "+err.Error())
			j.done <- jobResult{rec: rec, err: err}
			return
		}
		resolvedIDs = result.ResolvedIDs
	}
	sort.Strings(resolvedIDs)

	if len(resolvedIDs) == 0 {
		rec := e.finish(j, types.OutcomeDispatched, types.SeverityWarn, nil, "selector resolved to no targets at execution time")
		j.done <- jobResult{rec: rec}
		return
	}

	d, err := e.drivers(ir.Targets.HostID)
	if err != nil {
		rec := e.finish(j, types.OutcomeDispatched, types.SeverityError, nil, "no driver bound to host: "+err.Error())
		j.done <- jobResult{rec: rec, err: err}
		return
	}

	capTimeouts := e.capabilityTimeouts(ir.Targets.HostID)

	var actions []types.ActionResult
	anyFailed := false

actionLoop:
	for _, action := range ir.Plan {
		for _, targetID := range resolvedIDs {
			result, ok := e.dispatchOne(d, action, targetID, capTimeouts[action.CapabilityID])
			actions = append(actions, result)
			if !ok {
				anyFailed = true
				if action.OnError == types.OnErrorStop {
					break actionLoop
				}
			}
		}
	}

	severities := make([]types.Severity, len(actions))
	for i, a := range actions {
		severities[i] = a.Severity
	}
	severity := types.MaxSeverity(severities...)
	if anyFailed {
		e.metrics.IncDriverFailures()
	}

	rec := e.finish(j, types.OutcomeDispatched, severity, actions, "")
	e.metrics.IncDispatched()
	j.done <- jobResult{rec: rec}
}

// dispatchOne invokes the driver for one (action, target) pair under the
// global concurrency semaphore and a per-capability timeout.
func (e *Engine) dispatchOne(d driver.Driver, action types.ActionSpec, targetID string, timeout time.Duration) (types.ActionResult, bool) {
	select {
	case e.sem <- struct{}{}:
	case <-e.ctx.Done():
		return types.ActionResult{Capability: action.CapabilityID, Verb: action.Verb, Target: targetID, OK: false, Severity: types.SeverityError, Detail: "cancelled before dispatch"}, false
	}
	defer func() { <-e.sem }()

	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	callCtx, cancel := context.WithTimeout(e.ctx, timeout)
	defer cancel()

	req := driver.InvokeRequest{Capability: action.CapabilityID, Verb: action.Verb, Target: targetID, Params: action.Params}
	result, err := d.Invoke(callCtx, req)
	if err != nil {
		if e.logger != nil {
			e.logger.Warn("driver invoke failed", map[string]any{"capability": action.CapabilityID, "verb": action.Verb, "target": targetID, "error": err.Error()})
		}
		return types.ActionResult{Capability: action.CapabilityID, Verb: action.Verb, Target: targetID, OK: false, Severity: types.SeverityError, Detail: err.Error()}, false
	}
	sev := result.Severity
	if !result.OK && sev < types.SeverityError {
		sev = types.SeverityError
	}
	return types.ActionResult{Capability: action.CapabilityID, Verb: action.Verb, Target: targetID, OK: result.OK, Severity: sev, Detail: result.Detail}, result.OK
}

func (e *Engine) capabilityTimeouts(hostID string) map[string]time.Duration {
	out := make(map[string]time.Duration)
	caps, _, err := e.inv.Capabilities(e.ctx, hostID, 0)
	if err != nil {
		return out
	}
	for _, c := range caps {
		out[c.ID] = c.Timeout()
	}
	return out
}

func (e *Engine) finish(j *job, outcome types.RunOutcomeKind, sev types.Severity, actions []types.ActionResult, summary string) types.ExecutionRecord {
	rec := types.ExecutionRecord{
		ID:             uuid.New().String(),
		PolicyID:       j.ir.PolicyID,
		Ts:             eventTime(j.event),
		Outcome:        outcome,
		Severity:       sev,
		EventSnapshot:  j.event,
		IdempotencyKey: j.idempotencyKey,
		Actions:        actions,
		Summary:        summary,
	}
	e.ledger.Append(rec)
	return rec
}

func eventTime(event types.Event) time.Time {
	if event.Ts.IsZero() {
		return time.Now()
	}
	return event.Ts
}
