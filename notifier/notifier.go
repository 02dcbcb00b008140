// Package notifier defines the outbound-notification boundary per
// spec.md §6's "Outbound to clients" row: a narrow interface that
// publishes execution completions to a downstream system, so a real
// gateway (e.g. the WebSocket channel spec.md describes but places out of
// core scope) can subscribe.
//
// The orchestrator owns notifier lifecycle; callers provide configuration
// only.
package notifier

import "context"

// ExecutionNotification is the payload published when the execution
// engine (C5) finishes a policy run. Shape mirrors types.ExecutionRecord,
// flattened to the fields a downstream subscriber needs without pulling
// in the full types package.
type ExecutionNotification struct {
	PolicyID       string   `json:"policy_id"`
	ExecutionID    string   `json:"execution_id"`
	Outcome        string   `json:"outcome"` // dispatched, suppressed, idempotent, cancelled, overflow
	Severity       string   `json:"severity"`
	Timestamp      string   `json:"timestamp"` // ISO 8601
	Summary        string   `json:"summary,omitempty"`
	IdempotencyKey string   `json:"idempotency_key,omitempty"`
	ActionCount    int      `json:"action_count"`
	FailedActions  int      `json:"failed_actions"`
}

// Notifier publishes execution notifications to a downstream system.
// Implementations must be safe for concurrent use across runs.
type Notifier interface {
	// Publish sends an execution notification to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *ExecutionNotification) error

	// Close releases notifier resources.
	Close() error
}
