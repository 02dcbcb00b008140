package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/haltline/haltd/events"
	"github.com/haltline/haltd/log"
	"github.com/haltline/haltd/matcher"
	"github.com/haltline/haltd/notifier"
	"github.com/haltline/haltd/types"
)

// ingestRequest is the admin event-submission payload. This is the
// event-ingestion path spec.md §6 describes ("Inbound from UPS poller /
// metric source / timer / admin signal"), not a query API — Non-goals
// exclude a queryable HTTP surface, not an inbound event sink, which the
// matcher must have some way to receive events through.
type ingestRequest struct {
	Type        string         `json:"type"` // ups, metric, timer, external
	SubjectKind string         `json:"subject_kind,omitempty"`
	SubjectID   string         `json:"subject_id"`
	Status      string         `json:"status,omitempty"`
	Metric      string         `json:"metric,omitempty"`
	Op          string         `json:"op,omitempty"`
	Value       float64        `json:"value,omitempty"`
	TimerID     string         `json:"timer_id,omitempty"`
	TimerKind   string         `json:"timer_kind,omitempty"`
	Schedule    string         `json:"schedule,omitempty"`
	Kind        string         `json:"kind,omitempty"`
	Attrs       map[string]any `json:"attrs,omitempty"`
	DedupeHash  string         `json:"dedupe_hash,omitempty"`
}

type ingestResponse struct {
	Accepted bool                    `json:"accepted"`
	Matches  int                     `json:"matches"`
	Records  []types.ExecutionRecord `json:"records,omitempty"`
}

// eventServer wires the event normaliser, matcher, and state resolver
// behind a single admin ingestion endpoint.
type eventServer struct {
	normaliser *events.Normaliser
	matcher    *matcher.Matcher
	resolver   *stateResolver
	notif      notifier.Notifier // may be nil
	logger     *log.Logger
}

func (s *eventServer) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/admin/events", s.handleIngest)
	return mux
}

func (s *eventServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *eventServer) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	ev, ok := s.normalise(req)
	if !ok {
		json.NewEncoder(w).Encode(ingestResponse{Accepted: false})
		return
	}

	s.resolver.Observe(ev)
	records := s.matcher.Evaluate(r.Context(), ev)
	s.publish(r.Context(), records)

	json.NewEncoder(w).Encode(ingestResponse{Accepted: true, Matches: len(records), Records: records})
}

func (s *eventServer) normalise(req ingestRequest) (types.Event, bool) {
	ts := time.Now()
	switch req.Type {
	case "ups":
		return s.normaliser.UPSStatus(req.SubjectID, req.Status, ts, req.DedupeHash)
	case "metric":
		return s.normaliser.ThresholdCrossing(req.SubjectID, req.Metric, types.ThresholdOp(req.Op), req.Value, ts, req.DedupeHash)
	case "timer":
		return s.normaliser.TimerFiring(req.TimerID, req.TimerKind, req.Schedule, ts, req.DedupeHash)
	case "external":
		kind := req.SubjectKind
		if kind == "" {
			kind = "external"
		}
		return s.normaliser.ExternalSignal(kind, req.SubjectID, req.Kind, req.Attrs, ts, req.DedupeHash)
	default:
		return types.Event{}, false
	}
}

// publish fans dispatched/suppressed/idempotent/cancelled records out to
// the configured notifier, best-effort: a publish failure is logged, never
// returned to the event submitter (the ledger append already happened).
func (s *eventServer) publish(ctx context.Context, records []types.ExecutionRecord) {
	if s.notif == nil {
		return
	}
	for _, rec := range records {
		n := &notifier.ExecutionNotification{
			PolicyID:       rec.PolicyID,
			ExecutionID:    rec.ID,
			Outcome:        string(rec.Outcome),
			Severity:       rec.Severity.String(),
			Timestamp:      rec.Ts.Format(time.RFC3339Nano),
			Summary:        rec.Summary,
			IdempotencyKey: rec.IdempotencyKey,
			ActionCount:    len(rec.Actions),
			FailedActions:  countFailed(rec.Actions),
		}
		if err := s.notif.Publish(ctx, n); err != nil {
			s.logger.Warn("notifier publish failed", map[string]any{"policy_id": rec.PolicyID, "execution_id": rec.ID, "error": err.Error()})
		}
	}
}

func countFailed(actions []types.ActionResult) int {
	failed := 0
	for _, a := range actions {
		if !a.OK {
			failed++
		}
	}
	return failed
}
