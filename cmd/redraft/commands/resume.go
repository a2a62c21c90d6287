package commands

import (
	"context"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/redraft-dev/redraft/internal/engine"
	"github.com/redraft-dev/redraft/internal/printer"
	"github.com/redraft-dev/redraft/pkg/blackboard"
)

var (
	resumeSessionID string
	resumeDecision  string
	resumeRevision  string
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a suspended session with a human decision",
	Long: `Deliver a human decision to a session that is suspended awaiting review.

Approve sends the draft to finalization. Reject sends it back for another
drafting cycle; an optional --revision instruction takes priority over all
internal feedback when the next draft is written.

Examples:
  redraft resume --session 4f1f2f3a-... --decision Approve
  redraft resume --session 4f1f2f3a-... --decision Reject --revision "Make the tone warmer"`,
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().StringVar(&resumeSessionID, "session", "", "Session ID (required)")
	resumeCmd.Flags().StringVar(&resumeDecision, "decision", "", "Human decision: Approve or Reject (required)")
	resumeCmd.Flags().StringVar(&resumeRevision, "revision", "", "Revision instruction applied on Reject")
	resumeCmd.MarkFlagRequired("session")
	resumeCmd.MarkFlagRequired("decision")
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, st, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	handle, err := eng.ResumeSession(ctx, resumeSessionID, parseDecision(resumeDecision), resumeRevision)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrInvalidDecision):
			return printer.Error(
				"invalid decision",
				"The decision must be exactly Approve or Reject.",
				[]string{"redraft resume --session " + resumeSessionID + " --decision Approve"},
			)
		case errors.Is(err, engine.ErrNotSuspended):
			return printer.Error(
				"session is not suspended",
				"Only a session parked awaiting human review can be resumed.",
				[]string{"Check its position with: redraft status --session " + resumeSessionID},
			)
		case errors.Is(err, engine.ErrAlreadyRunning):
			return printer.Error(
				"session already running",
				"Another driver is active for this session; at most one runs at a time.",
				nil,
			)
		}
		return err
	}

	printSessionOutcome(handle)
	return nil
}

// parseDecision maps user input onto the canonical decision values,
// case-insensitively. Anything unrecognized passes through and is rejected by
// the engine.
func parseDecision(input string) blackboard.Decision {
	switch strings.ToLower(input) {
	case "approve":
		return blackboard.DecisionApprove
	case "reject":
		return blackboard.DecisionReject
	default:
		return blackboard.Decision(input)
	}
}
