package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/redraft-dev/redraft/internal/printer"
	"github.com/redraft-dev/redraft/internal/store"
)

var (
	statusSessionID    string
	statusOutputFormat string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a session's position without running anything",
	Long: `Show where a session stands from its latest checkpoint. This is a
read-only observation: it never mutates state or triggers stage execution.

Output Formats:
  default - Human-readable summary
  json    - Complete status object for scripting

Examples:
  redraft status --session 4f1f2f3a-...
  redraft status --session 4f1f2f3a-... --output=json | jq .stage`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusSessionID, "session", "", "Session ID (required)")
	statusCmd.Flags().StringVarP(&statusOutputFormat, "output", "o", "default", "Output format: default or json")
	statusCmd.MarkFlagRequired("session")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	status, err := eng.GetStatus(ctx, statusSessionID)
	if err != nil {
		if store.IsNotFound(err) {
			return printer.Error(
				"no such session",
				fmt.Sprintf("No checkpoints exist for session %s.", statusSessionID),
				nil,
			)
		}
		return err
	}

	if statusOutputFormat == "json" {
		out, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		printer.Println(string(out))
		return nil
	}

	printer.Info("Session:    %s\n", status.SessionID)
	printer.Info("Stage:      %s (next: %s)\n", status.Stage, status.NextStage)
	printer.Info("Iteration:  %d\n", status.IterationCount)
	printer.Info("Safety:     %.4f\n", status.SafetyScore)
	printer.Info("Empathy:    %.4f\n", status.EmpathyScore)

	switch {
	case status.IsComplete:
		printer.Success("Complete (status: %s)\n", status.FinalStatus)
	case status.Suspended:
		printer.Warning("Suspended awaiting human decision\n")
	case status.Running:
		printer.Step("Driver active in this process\n")
	}

	if status.LastError != "" {
		printer.Warning("Last failure: %s\n", status.LastError)
	}

	return nil
}
