package blackboard

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string   { return &s }
func f64Ptr(f float64) *float64 { return &f }

func TestWriteSetEnforcement(t *testing.T) {
	tests := []struct {
		name    string
		stage   Stage
		update  Update
		wantErr bool
	}{
		{
			name:   "draft may write draft and intent",
			stage:  StageDraft,
			update: Update{Draft: strPtr("text"), Intent: strPtr("revised intent")},
		},
		{
			name:    "draft may not write safety score",
			stage:   StageDraft,
			update:  Update{Draft: strPtr("text"), SafetyScore: f64Ptr(0.9)},
			wantErr: true,
		},
		{
			name:   "safety review owns its score and feedback",
			stage:  StageSafetyReview,
			update: Update{SafetyScore: f64Ptr(0.9), SafetyFeedback: &SafetyFeedback{}},
		},
		{
			name:    "safety review may not write the draft",
			stage:   StageSafetyReview,
			update:  Update{Draft: strPtr("sneaky rewrite")},
			wantErr: true,
		},
		{
			name:  "critique owns empathy, feedback, and annotations",
			stage: StageCritique,
			update: Update{
				EmpathyScore:     f64Ptr(0.8),
				CritiqueFeedback: &CritiqueFeedback{},
				Annotations:      []Annotation{{Origin: "Critique", Severity: SeverityInfo}},
			},
		},
		{
			name:    "critique may not write final fields",
			stage:   StageCritique,
			update:  Update{FinalStatus: strPtr("APPROVED")},
			wantErr: true,
		},
		{
			name:   "finalize owns the final artifact",
			stage:  StageFinalize,
			update: Update{FinalArtifact: strPtr("text"), FinalStatus: strPtr("APPROVED")},
		},
		{
			name:    "await human has an empty write-set",
			stage:   StageAwaitHuman,
			update:  Update{Draft: strPtr("text")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.update.ValidateFor(tt.stage)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUpdateValueConstraints(t *testing.T) {
	t.Run("safety score out of range", func(t *testing.T) {
		u := Update{SafetyScore: f64Ptr(1.5)}
		err := u.ValidateFor(StageSafetyReview)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "safety score out of range")
	})

	t.Run("empathy score out of range", func(t *testing.T) {
		u := Update{EmpathyScore: f64Ptr(-0.1)}
		err := u.ValidateFor(StageCritique)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empathy score out of range")
	})

	t.Run("invalid annotation severity", func(t *testing.T) {
		u := Update{Annotations: []Annotation{{Severity: "critical"}}}
		err := u.ValidateFor(StageCritique)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid annotation")
	})
}

func TestMergeUpdateRejectsCrossStageWrites(t *testing.T) {
	state := NewState(uuid.New().String(), "intent", "template")
	state.Draft = "original"

	err := MergeUpdate(state, StageSafetyReview, &Update{Draft: strPtr("rewritten")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected update")

	// A rejected merge applies nothing
	assert.Equal(t, "original", state.Draft)
	assert.Equal(t, 0, state.IterationCount)
}

func TestDraftMergeInvariants(t *testing.T) {
	t.Run("first draft leaves history empty", func(t *testing.T) {
		state := NewState(uuid.New().String(), "intent", "template")

		err := MergeUpdate(state, StageDraft, &Update{Draft: strPtr("draft one")})
		require.NoError(t, err)

		assert.Equal(t, "draft one", state.Draft)
		assert.Empty(t, state.DraftHistory)
		assert.Equal(t, 1, state.IterationCount)
	})

	t.Run("revision appends prior draft to history", func(t *testing.T) {
		state := NewState(uuid.New().String(), "intent", "template")
		require.NoError(t, MergeUpdate(state, StageDraft, &Update{Draft: strPtr("draft one")}))
		require.NoError(t, MergeUpdate(state, StageDraft, &Update{Draft: strPtr("draft two")}))

		assert.Equal(t, "draft two", state.Draft)
		assert.Equal(t, []string{"draft one"}, state.DraftHistory)
		assert.Equal(t, 2, state.IterationCount)
	})

	t.Run("new draft invalidates a stale human decision", func(t *testing.T) {
		state := NewState(uuid.New().String(), "intent", "template")
		state.Draft = "approved draft"
		state.HumanDecision = DecisionApprove

		require.NoError(t, MergeUpdate(state, StageDraft, &Update{Draft: strPtr("new draft")}))
		assert.Equal(t, DecisionUnset, state.HumanDecision,
			"an approval must never carry over to an artifact it did not cover")
	})

	t.Run("non-draft merges never touch iteration count", func(t *testing.T) {
		state := NewState(uuid.New().String(), "intent", "template")
		require.NoError(t, MergeUpdate(state, StageDraft, &Update{Draft: strPtr("draft")}))

		require.NoError(t, MergeUpdate(state, StageSafetyReview, &Update{
			SafetyScore:    f64Ptr(0.9),
			SafetyFeedback: &SafetyFeedback{FlaggedLines: []int{}, Notes: []string{}},
		}))
		require.NoError(t, MergeUpdate(state, StageCritique, &Update{
			EmpathyScore:     f64Ptr(0.8),
			CritiqueFeedback: &CritiqueFeedback{},
		}))

		assert.Equal(t, 1, state.IterationCount)
		assert.Empty(t, state.DraftHistory)
	})
}

func TestMergeUpdateAppendsAnnotations(t *testing.T) {
	state := NewState(uuid.New().String(), "intent", "template")
	state.Annotations = []Annotation{{Origin: "Critique", Severity: SeverityInfo, Message: "first"}}

	err := MergeUpdate(state, StageCritique, &Update{
		EmpathyScore:     f64Ptr(0.8),
		CritiqueFeedback: &CritiqueFeedback{},
		Annotations:      []Annotation{{Origin: "Critique", Severity: SeverityWarning, Message: "second"}},
	})
	require.NoError(t, err)

	require.Len(t, state.Annotations, 2)
	assert.Equal(t, "first", state.Annotations[0].Message)
	assert.Equal(t, "second", state.Annotations[1].Message)
}

func TestFeedbackReplacedWholesale(t *testing.T) {
	state := NewState(uuid.New().String(), "intent", "template")
	state.SafetyFeedback = &SafetyFeedback{FlaggedLines: []int{1, 2}, Notes: []string{"old"}}

	err := MergeUpdate(state, StageSafetyReview, &Update{
		SafetyScore:    f64Ptr(0.95),
		SafetyFeedback: &SafetyFeedback{FlaggedLines: []int{}, Notes: []string{}},
	})
	require.NoError(t, err)

	assert.Empty(t, state.SafetyFeedback.FlaggedLines, "feedback is replaced, not accumulated")
	assert.Empty(t, state.SafetyFeedback.Notes)
}
