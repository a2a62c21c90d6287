package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/redraft-dev/redraft/pkg/blackboard"
)

// prohibitedTerms are phrases that constitute unauthorized or unsafe
// medical/clinical advice. Any occurrence caps the safety score.
var prohibitedTerms = []string{
	"take this medication",
	"discontinue treatment",
	"contact your doctor immediately",
	"prescription",
	"diagnosis",
	"dosage",
	"cure for",
}

// violationScoreCap is the maximum safety score a draft can receive once a
// prohibited term is found.
const violationScoreCap = 0.2

// baseSafetyScore is the score assigned to a clean draft by the rule-based
// reviewer. An LLM-backed slot would compute a nuanced score; the rule scan
// below still applies on top of it.
const baseSafetyScore = 0.92

// SafetySlot scores the draft for safety compliance with a deterministic
// prohibited-term scan. It owns safety_score and safety_feedback, both
// replaced wholesale each run.
type SafetySlot struct{}

// NewSafetySlot creates the safety review stage function.
func NewSafetySlot() *SafetySlot {
	return &SafetySlot{}
}

// Stage implements Slot.
func (s *SafetySlot) Stage() blackboard.Stage {
	return blackboard.StageSafetyReview
}

// Execute implements Slot.
func (s *SafetySlot) Execute(_ context.Context, state blackboard.State) (*blackboard.Update, error) {
	score := baseSafetyScore
	feedback := &blackboard.SafetyFeedback{
		FlaggedLines: []int{},
		Notes:        []string{},
	}

	lines := strings.Split(state.Draft, "\n")
	var flagged []string

	for i, line := range lines {
		normalized := strings.ToLower(line)
		for _, term := range prohibitedTerms {
			if strings.Contains(normalized, term) {
				feedback.FlaggedLines = append(feedback.FlaggedLines, i+1)
				feedback.Notes = append(feedback.Notes, fmt.Sprintf("contains prohibited phrase: %q", term))
				flagged = append(flagged, line)
				break
			}
		}
	}

	if len(feedback.FlaggedLines) > 0 {
		if score > violationScoreCap {
			score = violationScoreCap
		}
		// The offending lines travel as opaque evidence bytes so a human
		// auditor sees exactly what tripped the rule, byte for byte.
		feedback.Evidence = []byte(strings.Join(flagged, "\n"))
	}

	return &blackboard.Update{
		SafetyScore:    &score,
		SafetyFeedback: feedback,
	}, nil
}
