package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/redraft-dev/redraft/pkg/blackboard"
)

// RevisionInstructionPrefix marks an intent that was rewritten after a human
// rejection. The drafting slot prioritizes such instructions over any
// machine-generated feedback.
const RevisionInstructionPrefix = "REVISION INSTRUCTION:"

// DraftSlot produces the initial draft or revises it based on feedback.
// Prompt assembly follows a strict priority order: a human revision
// instruction overrides internal reviewer feedback, which overrides the
// plain initial intent.
type DraftSlot struct {
	gen Generator
}

// NewDraftSlot creates the drafting stage function around a generation
// backend.
func NewDraftSlot(gen Generator) *DraftSlot {
	return &DraftSlot{gen: gen}
}

// Stage implements Slot.
func (d *DraftSlot) Stage() blackboard.Stage {
	return blackboard.StageDraft
}

// Execute implements Slot. Returns only the new draft text; the engine owns
// the history append, iteration increment, and decision reset that a
// drafting merge implies.
func (d *DraftSlot) Execute(ctx context.Context, state blackboard.State) (*blackboard.Update, error) {
	prompt := d.buildPrompt(state)

	text, err := d.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generation backend %s failed: %w", d.gen.Backend(), err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("generation backend %s produced an empty draft", d.gen.Backend())
	}

	return &blackboard.Update{Draft: &text}, nil
}

func (d *DraftSlot) buildPrompt(state blackboard.State) string {
	var b strings.Builder

	switch {
	case strings.HasPrefix(state.Intent, RevisionInstructionPrefix):
		// Human override: the rejection instruction is the only task, and
		// conflicting machine feedback is explicitly set aside.
		b.WriteString("Revise the existing draft. A human reviewer rejected it; their instruction takes precedence over any prior reviewer feedback.\n\n")
		b.WriteString("Existing draft:\n")
		b.WriteString(truncate(state.Draft, 200))
		b.WriteString("\n\n")
		b.WriteString(state.Intent)

	case state.IterationCount > 0:
		// Internal revision: fold the latest safety and critique feedback
		// into the task.
		b.WriteString("Revise the draft to address all reviewer feedback for the intent: ")
		b.WriteString(state.Intent)
		b.WriteString("\n\nPrevious draft summary:\n")
		b.WriteString(truncate(state.Draft, 200))
		if state.CritiqueFeedback != nil {
			b.WriteString("\n\nCritique notes: ")
			b.WriteString(state.CritiqueFeedback.EmpathyRevision)
			b.WriteString(" ")
			b.WriteString(state.CritiqueFeedback.StructureRevision)
		}
		if state.SafetyFeedback != nil && len(state.SafetyFeedback.Notes) > 0 {
			b.WriteString("\n\nSafety notes: ")
			b.WriteString(strings.Join(state.SafetyFeedback.Notes, "; "))
		}

	default:
		b.WriteString("Generate the initial draft for the intent: ")
		b.WriteString(state.Intent)
	}

	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
