package commands

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/redraft-dev/redraft/internal/engine"
	"github.com/redraft-dev/redraft/internal/printer"
)

var (
	startIntent    string
	startModel     string
	startSessionID string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start or retry a review session",
	Long: `Start a new review session, or re-enter an existing one after a stage
failure. The session runs until it suspends for human review, completes,
or a stage fails.

A failed session keeps its last good checkpoint; running start again with
its --session ID retries from the failed stage.

Examples:
  # Start a fresh session
  redraft start --intent "an exercise for managing anxious thoughts"

  # Retry a failed session from its last checkpoint
  redraft start --session 4f1f2f3a-... --intent ""`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&startIntent, "intent", "", "What the drafted exercise should address")
	startCmd.Flags().StringVar(&startModel, "model", "", "Model label recorded on the session")
	startCmd.Flags().StringVar(&startSessionID, "session", "", "Session ID (allocated automatically if omitted)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if startIntent == "" && startSessionID == "" {
		return printer.Error(
			"intent is required",
			"A new session needs an --intent describing what to draft.",
			[]string{"redraft start --intent \"an exercise for managing anxious thoughts\""},
		)
	}

	eng, st, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	// The recorded model defaults to the generation backend actually in use
	model := startModel
	if model == "" {
		model = cfg.Generation.Backend
	}

	handle, err := eng.StartSession(ctx, startIntent, model, startSessionID)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrSuspended):
			return printer.Error(
				"session is suspended",
				"This session is parked awaiting a human decision.",
				[]string{"Use: redraft resume --session " + startSessionID + " --decision Approve|Reject"},
			)
		case errors.Is(err, engine.ErrSessionComplete):
			return printer.Error(
				"session is already complete",
				"This session has reached its terminal checkpoint.",
				[]string{"Use: redraft status --session " + startSessionID},
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

// printSessionOutcome reports where the driver left the session.
func printSessionOutcome(handle *engine.SessionHandle) {
	switch {
	case handle.Suspended:
		printer.Warning("Session %s suspended for human review (iteration %d)\n", handle.SessionID, handle.IterationCount)
		printer.Info("  Safety score:  %.4f\n", handle.SafetyScore)
		printer.Info("  Empathy score: %.4f\n", handle.EmpathyScore)
		printer.Info("\nResume with:\n")
		printer.Info("  redraft resume --session %s --decision Approve\n", handle.SessionID)
		printer.Info("  redraft resume --session %s --decision Reject --revision \"...\"\n", handle.SessionID)

	case handle.Complete:
		printer.Success("Session %s complete after %d iteration(s)\n", handle.SessionID, handle.IterationCount)
		if handle.FinalArtifact != "" {
			printer.Println()
			printer.Println(handle.FinalArtifact)
		}

	default:
		printer.Info("Session %s stopped at stage %s\n", handle.SessionID, handle.Stage)
	}
}
