package agent

import (
	"context"
	"fmt"

	"github.com/redraft-dev/redraft/pkg/blackboard"
)

// FinalStatusApproved is the terminal status written by the finalize stage.
const FinalStatusApproved = "APPROVED"

// FinalizeSlot copies the accepted draft into the final artifact and stamps
// the approved status.
type FinalizeSlot struct{}

// NewFinalizeSlot creates the finalize stage function.
func NewFinalizeSlot() *FinalizeSlot {
	return &FinalizeSlot{}
}

// Stage implements Slot.
func (f *FinalizeSlot) Stage() blackboard.Stage {
	return blackboard.StageFinalize
}

// Execute implements Slot.
func (f *FinalizeSlot) Execute(_ context.Context, state blackboard.State) (*blackboard.Update, error) {
	if state.Draft == "" {
		return nil, fmt.Errorf("cannot finalize session %s: no draft on the blackboard", state.SessionID)
	}

	artifact := state.Draft
	status := FinalStatusApproved

	return &blackboard.Update{
		FinalArtifact: &artifact,
		FinalStatus:   &status,
	}, nil
}
