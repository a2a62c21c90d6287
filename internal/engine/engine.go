// Package engine drives the review workflow: run stage, merge the update,
// checkpoint, route, repeat, until a session reaches its terminal stage or
// parks at the human suspension point. The engine holds its router and
// checkpoint store as injected dependencies; there is no process-wide
// workflow object.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/redraft-dev/redraft/internal/agent"
	"github.com/redraft-dev/redraft/internal/router"
	"github.com/redraft-dev/redraft/internal/store"
	"github.com/redraft-dev/redraft/pkg/blackboard"
)

// Engine executes review sessions against a checkpoint store, a router, and
// a set of agent slots. Safe for concurrent use; concurrent drivers for the
// same session are rejected by the session registry.
type Engine struct {
	store    store.Store
	router   *router.Router
	slots    agent.Slots
	sessions *sessionRegistry
}

// SessionHandle summarizes where a driver left a session: parked at the
// suspension point, complete, or mid-flight at the moment of a failure.
type SessionHandle struct {
	SessionID      string
	Stage          blackboard.Stage
	NextStage      blackboard.Stage
	Suspended      bool
	Complete       bool
	IterationCount int
	SafetyScore    float64
	EmpathyScore   float64
	FinalArtifact  string
}

// New constructs an engine. The store must already be verified writable by
// the caller; the engine assumes persistence works and treats store errors
// as step failures.
func New(st store.Store, r *router.Router, slots agent.Slots) (*Engine, error) {
	if st == nil {
		return nil, fmt.Errorf("checkpoint store is required")
	}
	if r == nil {
		return nil, fmt.Errorf("router is required")
	}
	if err := slots.Validate(); err != nil {
		return nil, fmt.Errorf("invalid agent slots: %w", err)
	}

	return &Engine{
		store:    st,
		router:   r,
		slots:    slots,
		sessions: newSessionRegistry(),
	}, nil
}

// StartSession begins (or, after a crash or stage failure, re-enters) a
// session and drives it until it suspends, completes, or fails. An empty
// sessionID allocates a fresh one. Starting a session that already has an
// active driver fails with ErrAlreadyRunning; starting one parked at
// AwaitHuman fails with ErrSuspended; starting a completed one fails with
// ErrSessionComplete.
func (e *Engine) StartSession(ctx context.Context, intent, model, sessionID string) (*SessionHandle, error) {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	release, err := e.sessions.acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	st, err := e.loadOrCreate(ctx, sessionID, intent, model)
	if err != nil {
		return nil, err
	}

	e.logEvent("session_started", map[string]interface{}{
		"session_id": sessionID,
		"stage":      string(st.NextStage),
		"iteration":  st.IterationCount,
	})

	return e.drive(ctx, st)
}

// loadOrCreate resumes from the latest checkpoint when the session exists,
// otherwise creates and persists the initial state so even a first-stage
// failure leaves a retryable record.
func (e *Engine) loadOrCreate(ctx context.Context, sessionID, intent, model string) (*blackboard.State, error) {
	cp, err := e.store.GetLatest(ctx, sessionID)
	if err == nil {
		st := cp.State
		if st.ActiveStage == blackboard.StageAwaitHuman {
			return nil, fmt.Errorf("session %s: %w", sessionID, ErrSuspended)
		}
		if st.ActiveStage.Terminal() {
			return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionComplete)
		}
		return st, nil
	}
	if !store.IsNotFound(err) {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	st := blackboard.NewState(sessionID, intent, model)
	if _, err := e.store.Put(ctx, st); err != nil {
		return nil, fmt.Errorf("failed to persist initial state: %w", err)
	}
	return st, nil
}

// ResumeSession re-enters a suspended session with the human decision. The
// checkpoint must show active_stage == AwaitHuman; anything else is a
// rejected operation with no state mutation. Revision content is merged
// into the intent only on reject.
func (e *Engine) ResumeSession(ctx context.Context, sessionID string, decision blackboard.Decision, revision string) (*SessionHandle, error) {
	if decision != blackboard.DecisionApprove && decision != blackboard.DecisionReject {
		return nil, fmt.Errorf("%w, got %q", ErrInvalidDecision, decision)
	}

	release, err := e.sessions.acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	cp, err := e.store.GetLatest(ctx, sessionID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, fmt.Errorf("no such session %s: %w", sessionID, err)
		}
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	st := cp.State
	if st.ActiveStage != blackboard.StageAwaitHuman {
		return nil, fmt.Errorf("session %s is at stage %s: %w", sessionID, st.ActiveStage, ErrNotSuspended)
	}

	st.HumanDecision = decision
	if decision == blackboard.DecisionReject && revision != "" {
		st.Intent = fmt.Sprintf("%s %s\n\nPREVIOUS INTENT: %s", agent.RevisionInstructionPrefix, revision, st.Intent)
	}

	// Re-evaluate the router at the suspension point with the decision in
	// place, and persist before executing anything: the decision itself is
	// a checkpointed mutation.
	next, transfers := e.router.Route(*st.Clone())
	st.NextStage = next
	st.TransferLog = append(st.TransferLog, transfers...)

	if _, err := e.store.Put(ctx, st); err != nil {
		return nil, fmt.Errorf("failed to persist resume decision: %w", err)
	}

	e.logEvent("session_resumed", map[string]interface{}{
		"session_id": sessionID,
		"decision":   string(decision),
		"next_stage": string(next),
	})

	return e.drive(ctx, st)
}

// drive is the executor loop: invoke the current stage's slot, merge its
// update, persist, route, repeat. It exits on suspension, completion, or a
// session-fatal stage failure. Stage execution is strictly sequential
// within the session; the caller holds the session's driver slot.
func (e *Engine) drive(ctx context.Context, st *blackboard.State) (*SessionHandle, error) {
	for {
		stage := st.NextStage

		switch {
		case stage == blackboard.StageAwaitHuman:
			return e.suspend(ctx, st)

		case stage.Terminal():
			return e.complete(ctx, st)

		default:
			if err := e.step(ctx, st, stage); err != nil {
				return nil, err
			}
		}
	}
}

// step executes one stage and persists the merged result. On agent failure
// the state is neither merged nor persisted: active_stage stays at its last
// successfully completed value and the failure is recorded on the session's
// status only.
func (e *Engine) step(ctx context.Context, st *blackboard.State, stage blackboard.Stage) error {
	slot, ok := e.slots[stage]
	if !ok {
		return fmt.Errorf("no agent slot for stage %s: %w", stage, ErrStageFailed)
	}

	startTime := time.Now()

	update, err := slot.Execute(ctx, *st.Clone())
	if err != nil {
		return e.failStage(ctx, st, stage, err)
	}

	if err := blackboard.MergeUpdate(st, stage, update); err != nil {
		return e.failStage(ctx, st, stage, err)
	}

	st.ActiveStage = stage

	next, transfers := e.router.Route(*st.Clone())
	st.NextStage = next
	st.TransferLog = append(st.TransferLog, transfers...)

	cp, err := e.store.Put(ctx, st)
	if err != nil {
		return e.failStage(ctx, st, stage, fmt.Errorf("checkpoint write failed: %w", err))
	}

	e.logEvent("stage_completed", map[string]interface{}{
		"session_id":    st.SessionID,
		"stage":         string(stage),
		"next_stage":    string(next),
		"iteration":     st.IterationCount,
		"checkpoint_id": cp.CheckpointID,
		"sequence":      cp.Sequence,
		"latency_ms":    time.Since(startTime).Milliseconds(),
	})

	return nil
}

// suspend parks the session at the human gate: the state is persisted with
// active_stage AwaitHuman and no decision, and the driver exits entirely.
// Nothing runs for this session again until an external actor resumes it.
func (e *Engine) suspend(ctx context.Context, st *blackboard.State) (*SessionHandle, error) {
	st.ActiveStage = blackboard.StageAwaitHuman
	st.NextStage = blackboard.StageAwaitHuman
	st.HumanDecision = blackboard.DecisionUnset

	if _, err := e.store.Put(ctx, st); err != nil {
		return nil, fmt.Errorf("failed to persist suspension checkpoint: %w", err)
	}

	e.logEvent("session_suspended", map[string]interface{}{
		"session_id": st.SessionID,
		"iteration":  st.IterationCount,
	})

	return e.handle(st), nil
}

// complete writes the terminal checkpoint marking the session closed.
func (e *Engine) complete(ctx context.Context, st *blackboard.State) (*SessionHandle, error) {
	st.ActiveStage = blackboard.StageDone
	st.NextStage = blackboard.StageDone

	if _, err := e.store.Put(ctx, st); err != nil {
		return nil, fmt.Errorf("failed to persist terminal checkpoint: %w", err)
	}

	e.logEvent("session_complete", map[string]interface{}{
		"session_id":       st.SessionID,
		"total_iterations": st.IterationCount,
		"safety_score":     st.SafetyScore,
		"empathy_score":    st.EmpathyScore,
	})

	return e.handle(st), nil
}

// failStage records a session-fatal stage error. Other sessions are
// unaffected; this one can be retried by starting it again, which re-enters
// at the failed stage from the last good checkpoint.
func (e *Engine) failStage(ctx context.Context, st *blackboard.State, stage blackboard.Stage, cause error) error {
	msg := fmt.Sprintf("stage %s: %v", stage, cause)

	if recErr := e.store.RecordFailure(ctx, st.SessionID, msg); recErr != nil {
		log.Printf("[Engine] Failed to record failure for session %s: %v", st.SessionID, recErr)
	}

	e.logEvent("stage_failed", map[string]interface{}{
		"session_id": st.SessionID,
		"stage":      string(stage),
		"error":      cause.Error(),
	})

	return fmt.Errorf("session %s stage %s: %w: %w", st.SessionID, stage, ErrStageFailed, cause)
}

func (e *Engine) handle(st *blackboard.State) *SessionHandle {
	return &SessionHandle{
		SessionID:      st.SessionID,
		Stage:          st.ActiveStage,
		NextStage:      st.NextStage,
		Suspended:      st.ActiveStage == blackboard.StageAwaitHuman,
		Complete:       st.ActiveStage.Terminal(),
		IterationCount: st.IterationCount,
		SafetyScore:    st.SafetyScore,
		EmpathyScore:   st.EmpathyScore,
		FinalArtifact:  st.FinalArtifact,
	}
}

// logEvent logs a structured event in JSON format.
func (e *Engine) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "engine"
	data["event_type"] = eventType

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Engine] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}
