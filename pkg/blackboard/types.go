package blackboard

import (
	"fmt"

	"github.com/google/uuid"
)

// Stage identifies a position in the review workflow. The router maps the
// current state to the next stage after every merge.
type Stage string

const (
	// StageDraft produces or revises the working draft.
	StageDraft Stage = "Draft"

	// StageSafetyReview scores the draft for safety compliance.
	StageSafetyReview Stage = "SafetyReview"

	// StageCritique scores the draft for empathy and structural quality.
	StageCritique Stage = "Critique"

	// StageAwaitHuman is the suspension point: the session halts durably
	// until an external actor supplies a decision.
	StageAwaitHuman Stage = "AwaitHuman"

	// StageFinalize copies the accepted draft into the final artifact.
	StageFinalize Stage = "Finalize"

	// StageDone marks a closed session. Terminal.
	StageDone Stage = "Done"
)

// Validate checks if the Stage is a valid enum value.
func (s Stage) Validate() error {
	switch s {
	case StageDraft, StageSafetyReview, StageCritique, StageAwaitHuman, StageFinalize, StageDone:
		return nil
	default:
		return fmt.Errorf("unknown stage: %q", s)
	}
}

// Terminal reports whether the stage ends the session.
func (s Stage) Terminal() bool {
	return s == StageDone
}

// Decision is the externally supplied human verdict on a suspended session.
// It is the only field an out-of-process actor may set directly.
type Decision string

const (
	// DecisionUnset means no human verdict has been recorded yet.
	DecisionUnset Decision = ""

	// DecisionApprove accepts the current draft for finalization.
	DecisionApprove Decision = "Approve"

	// DecisionReject sends the draft back for revision.
	DecisionReject Decision = "Reject"
)

// Validate checks if the Decision is a valid enum value.
func (d Decision) Validate() error {
	switch d {
	case DecisionUnset, DecisionApprove, DecisionReject:
		return nil
	default:
		return fmt.Errorf("unknown decision: %q", d)
	}
}

// Severity classifies a reviewer annotation.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"

	// SeverityBlocker forces a revision route while unresolved, regardless
	// of metric scores.
	SeverityBlocker Severity = "blocker"
)

// Validate checks if the Severity is a valid enum value.
func (sv Severity) Validate() error {
	switch sv {
	case SeverityInfo, SeverityWarning, SeverityBlocker:
		return nil
	default:
		return fmt.Errorf("unknown severity: %q", sv)
	}
}

// Annotation is a note left on the blackboard by a reviewing stage.
// Annotations are append-only.
type Annotation struct {
	Origin   string   `json:"origin"`   // Stage or actor that wrote the note
	Severity Severity `json:"severity"` // info, warning, or blocker
	Message  string   `json:"message"`
	Resolved bool     `json:"resolved"`
}

// TransferIntent is the symbolic tag recorded when the router redirects flow.
type TransferIntent string

const (
	IntentReviseForSafety     TransferIntent = "revise_for_safety"
	IntentReviseForEmpathy    TransferIntent = "revise_for_empathy"
	IntentReviseStructure     TransferIntent = "revise_structure"
	IntentHumanReviewRequired TransferIntent = "human_review_required"
	IntentReadyToFinalize     TransferIntent = "ready_to_finalize"
)

// TransferEntry records a single routing redirect. The transfer log is an
// append-only audit trail; the router never reads it back.
type TransferEntry struct {
	From   Stage          `json:"from"`
	To     Stage          `json:"to"`
	Intent TransferIntent `json:"intent"`
	Reason string         `json:"reason"`
}

// SafetyFeedback is the structured annotation record owned by the
// SafetyReview stage. It is replaced wholesale on every run, never
// accumulated. Evidence may carry opaque bytes (base64-encoded on the wire).
type SafetyFeedback struct {
	FlaggedLines []int    `json:"flagged_lines"`
	Notes        []string `json:"notes"`
	Evidence     []byte   `json:"evidence,omitempty"`
}

// CritiqueFeedback is the structured annotation record owned by the Critique
// stage. Replaced wholesale on every run.
type CritiqueFeedback struct {
	EmpathyRevision   string `json:"empathy_revision"`
	StructureRevision string `json:"structure_revision"`
}

// State is the blackboard record for one review session. It is owned
// exclusively by the engine during a step and exposed by value to agent and
// router callbacks.
type State struct {
	SessionID string `json:"session_id"` // Immutable once created
	Model     string `json:"model"`      // Generation backend choice, immutable

	Intent       string   `json:"intent"`
	Draft        string   `json:"draft"`
	DraftHistory []string `json:"draft_history"` // Prior drafts, oldest first, append-only

	IterationCount int   `json:"iteration_count"` // +1 per drafting execution, monotonic
	ActiveStage    Stage `json:"active_stage"`
	NextStage      Stage `json:"next_stage"`

	SafetyScore  float64 `json:"safety_score"`  // [0.0, 1.0], overwritten wholesale
	EmpathyScore float64 `json:"empathy_score"` // [0.0, 1.0], overwritten wholesale

	SafetyFeedback   *SafetyFeedback   `json:"safety_feedback,omitempty"`
	CritiqueFeedback *CritiqueFeedback `json:"critique_feedback,omitempty"`

	HumanDecision Decision `json:"human_decision"`

	Annotations []Annotation    `json:"annotations"`  // Append-only
	TransferLog []TransferEntry `json:"transfer_log"` // Append-only audit trail

	FinalArtifact string `json:"final_artifact,omitempty"`
	FinalStatus   string `json:"final_status,omitempty"`
}

// NewState creates the blackboard record for a fresh session: all metrics at
// zero, history empty, positioned to run the drafting stage first.
func NewState(sessionID, intent, model string) *State {
	return &State{
		SessionID:    sessionID,
		Model:        model,
		Intent:       intent,
		DraftHistory: []string{},
		ActiveStage:  StageDraft,
		NextStage:    StageDraft,
		Annotations:  []Annotation{},
		TransferLog:  []TransferEntry{},
	}
}

// Validate checks if the State has valid field values.
func (s *State) Validate() error {
	if !isValidUUID(s.SessionID) {
		return fmt.Errorf("invalid session ID: not a valid UUID")
	}

	if err := s.ActiveStage.Validate(); err != nil {
		return fmt.Errorf("invalid active stage: %w", err)
	}

	if err := s.NextStage.Validate(); err != nil {
		return fmt.Errorf("invalid next stage: %w", err)
	}

	if err := s.HumanDecision.Validate(); err != nil {
		return fmt.Errorf("invalid human decision: %w", err)
	}

	if s.IterationCount < 0 {
		return fmt.Errorf("invalid iteration count: must be >= 0, got %d", s.IterationCount)
	}

	if s.SafetyScore < 0.0 || s.SafetyScore > 1.0 {
		return fmt.Errorf("safety score out of range [0,1]: %v", s.SafetyScore)
	}

	if s.EmpathyScore < 0.0 || s.EmpathyScore > 1.0 {
		return fmt.Errorf("empathy score out of range [0,1]: %v", s.EmpathyScore)
	}

	for i, note := range s.Annotations {
		if err := note.Severity.Validate(); err != nil {
			return fmt.Errorf("invalid annotation at index %d: %w", i, err)
		}
	}

	return nil
}

// HasUnresolvedBlocker reports whether any blocker annotation is unresolved.
// An unresolved blocker forces a revision route regardless of metric scores.
func (s *State) HasUnresolvedBlocker() bool {
	for _, note := range s.Annotations {
		if note.Severity == SeverityBlocker && !note.Resolved {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the state. The engine hands clones to agent
// and router callbacks so they can never alias the engine-owned record.
func (s *State) Clone() *State {
	out := *s

	out.DraftHistory = append([]string{}, s.DraftHistory...)
	out.Annotations = append([]Annotation{}, s.Annotations...)
	out.TransferLog = append([]TransferEntry{}, s.TransferLog...)

	if s.SafetyFeedback != nil {
		fb := *s.SafetyFeedback
		fb.FlaggedLines = append([]int{}, s.SafetyFeedback.FlaggedLines...)
		fb.Notes = append([]string{}, s.SafetyFeedback.Notes...)
		fb.Evidence = append([]byte{}, s.SafetyFeedback.Evidence...)
		out.SafetyFeedback = &fb
	}

	if s.CritiqueFeedback != nil {
		fb := *s.CritiqueFeedback
		out.CritiqueFeedback = &fb
	}

	return &out
}

// isValidUUID checks if a string is a valid UUID format.
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
