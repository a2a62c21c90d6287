package blackboard

import "fmt"

// Field names a writable slot of the blackboard record, used to express
// per-stage write-sets. History, iteration count, and decision resets are not
// fields: the merge boundary owns those mutations.
type Field string

const (
	FieldDraft            Field = "draft"
	FieldIntent           Field = "intent"
	FieldSafetyScore      Field = "safety_score"
	FieldSafetyFeedback   Field = "safety_feedback"
	FieldEmpathyScore     Field = "empathy_score"
	FieldCritiqueFeedback Field = "critique_feedback"
	FieldAnnotations      Field = "annotations"
	FieldFinalArtifact    Field = "final_artifact"
	FieldFinalStatus      Field = "final_status"
)

// Update is a stage's partial result: only non-nil (or, for annotations,
// non-empty) members are applied. Stages return Updates; they never touch the
// engine-owned State directly.
type Update struct {
	Draft            *string
	Intent           *string
	SafetyScore      *float64
	SafetyFeedback   *SafetyFeedback
	EmpathyScore     *float64
	CritiqueFeedback *CritiqueFeedback
	Annotations      []Annotation // Appended, never replacing prior notes
	FinalArtifact    *string
	FinalStatus      *string
}

// writeSets declares which fields each stage may write. Draft's history
// append, iteration increment, and decision reset are engine-applied side
// effects of a draft merge, not declared fields.
var writeSets = map[Stage]map[Field]bool{
	StageDraft: {
		FieldDraft:  true,
		FieldIntent: true, // Revision instruction layered into the intent
	},
	StageSafetyReview: {
		FieldSafetyScore:    true,
		FieldSafetyFeedback: true,
	},
	StageCritique: {
		FieldEmpathyScore:     true,
		FieldCritiqueFeedback: true,
		FieldAnnotations:      true,
	},
	StageFinalize: {
		FieldFinalArtifact: true,
		FieldFinalStatus:   true,
	},
}

// WriteSet returns the fields a stage is permitted to write. AwaitHuman and
// Done have empty write-sets: no agent runs there.
func WriteSet(stage Stage) []Field {
	set := writeSets[stage]
	fields := make([]Field, 0, len(set))
	for f := range set {
		fields = append(fields, f)
	}
	return fields
}

// Fields returns the names of the fields this update sets.
func (u *Update) Fields() []Field {
	var fields []Field
	if u.Draft != nil {
		fields = append(fields, FieldDraft)
	}
	if u.Intent != nil {
		fields = append(fields, FieldIntent)
	}
	if u.SafetyScore != nil {
		fields = append(fields, FieldSafetyScore)
	}
	if u.SafetyFeedback != nil {
		fields = append(fields, FieldSafetyFeedback)
	}
	if u.EmpathyScore != nil {
		fields = append(fields, FieldEmpathyScore)
	}
	if u.CritiqueFeedback != nil {
		fields = append(fields, FieldCritiqueFeedback)
	}
	if len(u.Annotations) > 0 {
		fields = append(fields, FieldAnnotations)
	}
	if u.FinalArtifact != nil {
		fields = append(fields, FieldFinalArtifact)
	}
	if u.FinalStatus != nil {
		fields = append(fields, FieldFinalStatus)
	}
	return fields
}

// ValidateFor checks the update against a stage's declared write-set and the
// value constraints of the fields it sets. A violation fails the whole step:
// cross-stage writes are rejected, never silently dropped.
func (u *Update) ValidateFor(stage Stage) error {
	allowed := writeSets[stage]

	for _, field := range u.Fields() {
		if !allowed[field] {
			return fmt.Errorf("stage %s may not write field %q (write-set: %v)", stage, field, WriteSet(stage))
		}
	}

	if u.SafetyScore != nil && (*u.SafetyScore < 0.0 || *u.SafetyScore > 1.0) {
		return fmt.Errorf("safety score out of range [0,1]: %v", *u.SafetyScore)
	}

	if u.EmpathyScore != nil && (*u.EmpathyScore < 0.0 || *u.EmpathyScore > 1.0) {
		return fmt.Errorf("empathy score out of range [0,1]: %v", *u.EmpathyScore)
	}

	for i, note := range u.Annotations {
		if err := note.Severity.Validate(); err != nil {
			return fmt.Errorf("invalid annotation at index %d: %w", i, err)
		}
	}

	return nil
}

// MergeUpdate applies a stage's partial result to the state, enforcing the
// stage's write-set and the structural invariants of the record.
//
// A drafting merge carries three engine-owned side effects: the prior draft
// (if any) is appended to the history, the iteration counter increments by
// exactly one, and the human decision resets to unset so a stale approval
// cannot re-apply to the new artifact.
func MergeUpdate(s *State, stage Stage, u *Update) error {
	if err := u.ValidateFor(stage); err != nil {
		return fmt.Errorf("rejected update from stage %s: %w", stage, err)
	}

	if stage == StageDraft && u.Draft != nil {
		if s.Draft != "" {
			s.DraftHistory = append(s.DraftHistory, s.Draft)
		}
		s.IterationCount++
		s.HumanDecision = DecisionUnset
	}

	if u.Draft != nil {
		s.Draft = *u.Draft
	}
	if u.Intent != nil {
		s.Intent = *u.Intent
	}
	if u.SafetyScore != nil {
		s.SafetyScore = *u.SafetyScore
	}
	if u.SafetyFeedback != nil {
		s.SafetyFeedback = u.SafetyFeedback
	}
	if u.EmpathyScore != nil {
		s.EmpathyScore = *u.EmpathyScore
	}
	if u.CritiqueFeedback != nil {
		s.CritiqueFeedback = u.CritiqueFeedback
	}
	if len(u.Annotations) > 0 {
		s.Annotations = append(s.Annotations, u.Annotations...)
	}
	if u.FinalArtifact != nil {
		s.FinalArtifact = *u.FinalArtifact
	}
	if u.FinalStatus != nil {
		s.FinalStatus = *u.FinalStatus
	}

	return nil
}
