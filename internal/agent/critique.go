package agent

import (
	"context"
	"math"
	"strings"

	"github.com/redraft-dev/redraft/pkg/blackboard"
)

// valence assigns a sentiment weight to lexicon words, positive for warm and
// validating language, negative for cold or alarming language.
var valence = map[string]float64{
	"gentle":         1.6,
	"kind":           1.9,
	"caring":         2.0,
	"support":        1.7,
	"supported":      1.8,
	"valid":          1.5,
	"worthy":         1.8,
	"understandable": 1.6,
	"welcome":        1.4,
	"calm":           1.3,
	"safe":           1.5,
	"okay":           1.1,
	"effort":         0.9,
	"care":           1.6,
	"alone":          -1.2,
	"failure":        -2.1,
	"wrong":          -1.4,
	"must":           -0.8,
	"never":          -1.3,
	"danger":         -2.4,
	"worthless":      -2.9,
	"hopeless":       -2.6,
}

// sentimentAlpha normalizes the summed valence into [-1, 1], following the
// VADER compound-score normalization.
const sentimentAlpha = 15.0

// CritiqueSlot scores the draft for empathy and structural quality. It owns
// empathy_score and critique_feedback (replaced each run) and may append
// annotations; a structural failure is recorded as a blocker note, which
// forces a revision route regardless of scores.
type CritiqueSlot struct{}

// NewCritiqueSlot creates the critique stage function.
func NewCritiqueSlot() *CritiqueSlot {
	return &CritiqueSlot{}
}

// Stage implements Slot.
func (c *CritiqueSlot) Stage() blackboard.Stage {
	return blackboard.StageCritique
}

// Execute implements Slot.
func (c *CritiqueSlot) Execute(_ context.Context, state blackboard.State) (*blackboard.Update, error) {
	empathy := empathyScore(state.Draft)

	feedback := &blackboard.CritiqueFeedback{}
	var notes []blackboard.Annotation

	if empathy < 0.5 {
		feedback.EmpathyRevision = "the tone reads cold; add validating, non-directive language"
	} else {
		feedback.EmpathyRevision = "tone is warm and validating"
	}

	if !hasExerciseSteps(state.Draft) {
		feedback.StructureRevision = "the draft lacks a stepwise exercise structure"
		notes = append(notes, blackboard.Annotation{
			Origin:   string(blackboard.StageCritique),
			Severity: blackboard.SeverityBlocker,
			Message:  "draft has no numbered exercise steps",
		})
	} else {
		feedback.StructureRevision = "stepwise structure is present"
	}

	if len(strings.Fields(state.Draft)) < 30 {
		notes = append(notes, blackboard.Annotation{
			Origin:   string(blackboard.StageCritique),
			Severity: blackboard.SeverityWarning,
			Message:  "draft is very short for a complete exercise",
		})
	}

	return &blackboard.Update{
		EmpathyScore:     &empathy,
		CritiqueFeedback: feedback,
		Annotations:      notes,
	}, nil
}

// empathyScore maps lexicon sentiment from [-1, 1] onto [0, 1].
func empathyScore(draft string) float64 {
	var sum float64
	for _, word := range strings.Fields(strings.ToLower(draft)) {
		word = strings.Trim(word, ".,;:!?\"'()")
		if v, ok := valence[word]; ok {
			sum += v
		}
	}

	compound := sum / math.Sqrt(sum*sum+sentimentAlpha)
	return (compound + 1) / 2
}

// hasExerciseSteps reports whether the draft contains a numbered step list.
func hasExerciseSteps(draft string) bool {
	for _, line := range strings.Split(draft, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "1.") || strings.HasPrefix(trimmed, "Step 1") {
			return true
		}
	}
	return false
}
