// Package router implements the deterministic transition table that maps a
// blackboard state to the next workflow stage. Routing is pure and total:
// every well-formed state produces a valid next stage, and the only output
// beyond the stage itself is the audit trail of transfer entries.
package router

import (
	"fmt"

	"github.com/redraft-dev/redraft/pkg/blackboard"
)

// Default thresholds and caps. All three are config-overridable.
const (
	DefaultSafetyThreshold  = 0.85
	DefaultEmpathyThreshold = 0.70
	DefaultMaxIterations    = 20
)

// Config holds the routing thresholds.
type Config struct {
	// SafetyThreshold routes SafetyReview back to Draft while the safety
	// score is strictly below it.
	SafetyThreshold float64

	// EmpathyThreshold routes Critique back to Draft while the empathy
	// score is strictly below it.
	EmpathyThreshold float64

	// MaxIterations is the drafting-cycle cap checked at Critique after the
	// blocker and metric gates pass.
	MaxIterations int

	// UniformIterationCap extends the cap to every revision re-entry to
	// Draft (SafetyReview and Critique metric failures included), routing
	// to Finalize once the cap is reached. Off by default: the source table
	// caps only the Critique happy path, which leaves the metric-failure
	// loops unbounded.
	UniformIterationCap bool
}

// DefaultConfig returns the routing thresholds from the source workflow.
func DefaultConfig() Config {
	return Config{
		SafetyThreshold:  DefaultSafetyThreshold,
		EmpathyThreshold: DefaultEmpathyThreshold,
		MaxIterations:    DefaultMaxIterations,
	}
}

// Validate checks that thresholds are in range and the cap is positive.
func (c Config) Validate() error {
	if c.SafetyThreshold < 0.0 || c.SafetyThreshold > 1.0 {
		return fmt.Errorf("safety threshold out of range [0,1]: %v", c.SafetyThreshold)
	}
	if c.EmpathyThreshold < 0.0 || c.EmpathyThreshold > 1.0 {
		return fmt.Errorf("empathy threshold out of range [0,1]: %v", c.EmpathyThreshold)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("max iterations must be >= 1, got %d", c.MaxIterations)
	}
	return nil
}

// Router evaluates the transition table.
type Router struct {
	cfg Config
}

// New creates a router with the given thresholds.
func New(cfg Config) (*Router, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid router config: %w", err)
	}
	return &Router{cfg: cfg}, nil
}

// Route maps the state (positioned at state.ActiveStage, just merged) to the
// next stage. Redirect transitions also return transfer entries for the
// audit log; the caller appends them to the state before persisting.
//
// Tie-break order at Critique: unresolved blocker, then empathy metric, then
// the first-acceptable-draft check, then the iteration cap.
func (r *Router) Route(state blackboard.State) (blackboard.Stage, []blackboard.TransferEntry) {
	switch state.ActiveStage {
	case blackboard.StageDraft:
		return blackboard.StageSafetyReview, nil

	case blackboard.StageSafetyReview:
		return r.routeSafetyReview(state)

	case blackboard.StageCritique:
		return r.routeCritique(state)

	case blackboard.StageAwaitHuman:
		return r.routeHumanDecision(state)

	case blackboard.StageFinalize:
		return blackboard.StageDone, nil

	case blackboard.StageDone:
		return blackboard.StageDone, nil

	default:
		// Total routing: an unrecognized position parks the session at the
		// suspension point, which is always safely re-enterable.
		return blackboard.StageAwaitHuman, nil
	}
}

// routeSafetyReview applies the safety threshold. Strict comparison: a score
// exactly at the threshold passes.
func (r *Router) routeSafetyReview(state blackboard.State) (blackboard.Stage, []blackboard.TransferEntry) {
	if state.SafetyScore < r.cfg.SafetyThreshold {
		if next, entries, capped := r.capRevision(state, blackboard.StageSafetyReview); capped {
			return next, entries
		}
		return blackboard.StageDraft, []blackboard.TransferEntry{{
			From:   blackboard.StageSafetyReview,
			To:     blackboard.StageDraft,
			Intent: blackboard.IntentReviseForSafety,
			Reason: fmt.Sprintf("safety score %.4f below threshold %.2f", state.SafetyScore, r.cfg.SafetyThreshold),
		}}
	}

	return blackboard.StageCritique, nil
}

func (r *Router) routeCritique(state blackboard.State) (blackboard.Stage, []blackboard.TransferEntry) {
	// Blocker check always precedes the metric checks: an unresolved
	// blocker forces revision even when both scores pass.
	if state.HasUnresolvedBlocker() {
		if next, entries, capped := r.capRevision(state, blackboard.StageCritique); capped {
			return next, entries
		}
		return blackboard.StageDraft, []blackboard.TransferEntry{{
			From:   blackboard.StageCritique,
			To:     blackboard.StageDraft,
			Intent: blackboard.IntentReviseStructure,
			Reason: "unresolved blocker annotation on the blackboard",
		}}
	}

	if state.EmpathyScore < r.cfg.EmpathyThreshold {
		if next, entries, capped := r.capRevision(state, blackboard.StageCritique); capped {
			return next, entries
		}
		return blackboard.StageDraft, []blackboard.TransferEntry{{
			From:   blackboard.StageCritique,
			To:     blackboard.StageDraft,
			Intent: blackboard.IntentReviseForEmpathy,
			Reason: fmt.Sprintf("empathy score %.4f below threshold %.2f", state.EmpathyScore, r.cfg.EmpathyThreshold),
		}}
	}

	// First acceptable draft always goes to the human reviewer.
	if state.IterationCount == 1 {
		return blackboard.StageAwaitHuman, []blackboard.TransferEntry{{
			From:   blackboard.StageCritique,
			To:     blackboard.StageAwaitHuman,
			Intent: blackboard.IntentHumanReviewRequired,
			Reason: "first acceptable draft requires human review",
		}}
	}

	// The iteration cap is checked only after the blocker and metric gates
	// pass.
	if state.IterationCount >= r.cfg.MaxIterations {
		return blackboard.StageFinalize, []blackboard.TransferEntry{{
			From:   blackboard.StageCritique,
			To:     blackboard.StageFinalize,
			Intent: blackboard.IntentReadyToFinalize,
			Reason: fmt.Sprintf("iteration cap reached (%d)", r.cfg.MaxIterations),
		}}
	}

	return blackboard.StageAwaitHuman, []blackboard.TransferEntry{{
		From:   blackboard.StageCritique,
		To:     blackboard.StageAwaitHuman,
		Intent: blackboard.IntentHumanReviewRequired,
		Reason: "metrics passed, awaiting human decision",
	}}
}

func (r *Router) routeHumanDecision(state blackboard.State) (blackboard.Stage, []blackboard.TransferEntry) {
	switch state.HumanDecision {
	case blackboard.DecisionApprove:
		return blackboard.StageFinalize, []blackboard.TransferEntry{{
			From:   blackboard.StageAwaitHuman,
			To:     blackboard.StageFinalize,
			Intent: blackboard.IntentReadyToFinalize,
			Reason: "human approved the draft",
		}}

	case blackboard.DecisionReject:
		return blackboard.StageDraft, []blackboard.TransferEntry{{
			From:   blackboard.StageAwaitHuman,
			To:     blackboard.StageDraft,
			Intent: blackboard.IntentReviseStructure,
			Reason: "human rejected the draft, revision instruction layered into intent",
		}}

	default:
		// Unset or unrecognized decision: remain suspended. The suspension
		// point must always be safely re-enterable, so this never errors.
		return blackboard.StageAwaitHuman, nil
	}
}

// capRevision applies the uniform iteration cap when enabled. Returns
// capped=false when the cap does not apply and the caller should take the
// normal revision route.
func (r *Router) capRevision(state blackboard.State, from blackboard.Stage) (blackboard.Stage, []blackboard.TransferEntry, bool) {
	if !r.cfg.UniformIterationCap || state.IterationCount < r.cfg.MaxIterations {
		return "", nil, false
	}

	return blackboard.StageFinalize, []blackboard.TransferEntry{{
		From:   from,
		To:     blackboard.StageFinalize,
		Intent: blackboard.IntentReadyToFinalize,
		Reason: fmt.Sprintf("uniform iteration cap reached (%d), abandoning revision loop", r.cfg.MaxIterations),
	}}, true
}
