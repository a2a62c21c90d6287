// Package agent provides the pluggable stage functions consumed by the
// engine. Each slot reads the blackboard by value and returns a partial
// update bounded by its declared write-set; the engine performs the merge.
//
// The default slots here are deterministic heuristics (rule scans, lexicon
// sentiment, template generation) so the orchestration core runs and tests
// fully offline. Production deployments substitute LLM-backed slots behind
// the same interface.
package agent

import (
	"context"
	"fmt"

	"github.com/redraft-dev/redraft/pkg/blackboard"
)

// Slot is the uniform stage-function contract: consume the state, return a
// partial update. Slots never mutate the state they receive.
type Slot interface {
	// Stage names the workflow stage this slot implements.
	Stage() blackboard.Stage

	// Execute runs the stage against a snapshot of the blackboard.
	Execute(ctx context.Context, state blackboard.State) (*blackboard.Update, error)
}

// Slots is the full complement of stage functions the engine drives.
type Slots map[blackboard.Stage]Slot

// required lists the stages that must have a slot. AwaitHuman and Done have
// none: the engine handles suspension and termination itself.
var required = []blackboard.Stage{
	blackboard.StageDraft,
	blackboard.StageSafetyReview,
	blackboard.StageCritique,
	blackboard.StageFinalize,
}

// Validate checks that every executable stage has a slot and each slot is
// registered under its own stage.
func (s Slots) Validate() error {
	for _, stage := range required {
		slot, ok := s[stage]
		if !ok || slot == nil {
			return fmt.Errorf("missing agent slot for stage %s", stage)
		}
		if slot.Stage() != stage {
			return fmt.Errorf("slot registered under %s reports stage %s", stage, slot.Stage())
		}
	}
	return nil
}

// DefaultSlots builds the four default stage functions around a generation
// backend.
func DefaultSlots(gen Generator) Slots {
	return Slots{
		blackboard.StageDraft:        NewDraftSlot(gen),
		blackboard.StageSafetyReview: NewSafetySlot(),
		blackboard.StageCritique:     NewCritiqueSlot(),
		blackboard.StageFinalize:     NewFinalizeSlot(),
	}
}
