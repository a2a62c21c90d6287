package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/redraft-dev/redraft/internal/printer"
	"github.com/redraft-dev/redraft/internal/store"
)

var checkpointsSessionID string

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints [CHECKPOINT_ID]",
	Short: "Inspect a session's checkpoint history",
	Long: `Inspect the append-only checkpoint history of a session.

List Mode (no CHECKPOINT_ID):
  Lists every checkpoint for the session in sequence order, one line each.

Get Mode (with CHECKPOINT_ID):
  Prints the full checkpoint, state included, as pretty-printed JSON.

Examples:
  # List all checkpoints for a session
  redraft checkpoints --session 4f1f2f3a-...

  # Inspect one checkpoint in full
  redraft checkpoints --session 4f1f2f3a-... 9c2d1e0b-...`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheckpoints,
}

func init() {
	checkpointsCmd.Flags().StringVar(&checkpointsSessionID, "session", "", "Session ID (required)")
	checkpointsCmd.MarkFlagRequired("session")
	rootCmd.AddCommand(checkpointsCmd)
}

func runCheckpoints(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if len(args) == 1 {
		return printCheckpoint(ctx, st, checkpointsSessionID, args[0])
	}

	ids, err := st.List(ctx, checkpointsSessionID)
	if err != nil {
		return fmt.Errorf("failed to list checkpoints: %w", err)
	}
	if len(ids) == 0 {
		return printer.Error(
			"no such session",
			fmt.Sprintf("No checkpoints exist for session %s.", checkpointsSessionID),
			nil,
		)
	}

	for _, id := range ids {
		cp, err := st.Get(ctx, checkpointsSessionID, id)
		if err != nil {
			if store.IsCorrupt(err) {
				printer.Warning("%s  <corrupt: %v>\n", id, err)
				continue
			}
			return err
		}
		ts := time.UnixMilli(cp.CreatedAtMs).UTC().Format(time.RFC3339)
		printer.Info("%3d  %s  %s  stage=%s iteration=%d\n",
			cp.Sequence, cp.CheckpointID, ts, cp.State.ActiveStage, cp.State.IterationCount)
	}

	return nil
}

func printCheckpoint(ctx context.Context, st store.Store, sessionID, checkpointID string) error {
	cp, err := st.Get(ctx, sessionID, checkpointID)
	if err != nil {
		if store.IsNotFound(err) {
			return printer.Error(
				"checkpoint not found",
				fmt.Sprintf("No checkpoint %s exists for session %s.", checkpointID, sessionID),
				nil,
			)
		}
		return err
	}

	out, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	printer.Println(string(out))
	return nil
}
