// Package watch provides read-only observation of session progress. Watching
// never mutates state and never triggers stage execution: observers consume
// checkpoint events (Redis backend) or poll the latest checkpoint (SQLite
// backend) and format what they see.
package watch

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/redraft-dev/redraft/internal/store"
	"github.com/redraft-dev/redraft/pkg/blackboard"
)

// Formatter renders checkpoint events for display.
type Formatter interface {
	FormatCheckpoint(cp *store.Checkpoint) error
}

// NewFormatter creates the default human-readable formatter.
func NewFormatter(w io.Writer) Formatter {
	return &defaultFormatter{writer: w}
}

type defaultFormatter struct {
	writer io.Writer
}

// FormatCheckpoint writes a one-line summary of the checkpoint: timestamp,
// stage marker, session, sequence, and the stage-specific detail.
func (f *defaultFormatter) FormatCheckpoint(cp *store.Checkpoint) error {
	ts := time.UnixMilli(cp.CreatedAtMs).UTC().Format("15:04:05")
	st := cp.State

	var line string
	switch st.ActiveStage {
	case blackboard.StageDraft:
		line = fmt.Sprintf("📝 Draft (iteration %d): %d chars", st.IterationCount, len(st.Draft))
	case blackboard.StageSafetyReview:
		flagged := 0
		if st.SafetyFeedback != nil {
			flagged = len(st.SafetyFeedback.FlaggedLines)
		}
		line = fmt.Sprintf("🛡️  Safety Review: score=%.4f, flagged_lines=%d", st.SafetyScore, flagged)
	case blackboard.StageCritique:
		line = fmt.Sprintf("🔍 Critique: empathy=%.4f, annotations=%d", st.EmpathyScore, len(st.Annotations))
	case blackboard.StageAwaitHuman:
		line = fmt.Sprintf("⏸️  Awaiting Human Decision (iteration %d)", st.IterationCount)
	case blackboard.StageFinalize:
		line = fmt.Sprintf("📦 Finalize: status=%s", st.FinalStatus)
	case blackboard.StageDone:
		line = fmt.Sprintf("✅ Done: status=%s after %d iteration(s)", st.FinalStatus, st.IterationCount)
	default:
		line = fmt.Sprintf("Stage %s", st.ActiveStage)
	}

	_, err := fmt.Fprintf(f.writer, "[%s] %s  session=%s seq=%d\n", ts, line, cp.SessionID, cp.Sequence)
	return err
}

// Stream consumes a checkpoint subscription and formats each event until the
// context is cancelled or the subscription closes. An empty sessionID watches
// every session in the namespace. Decode errors from the subscription are
// reported as warnings on the same writer; they never stop the stream.
func Stream(ctx context.Context, sub *store.CheckpointSubscription, sessionID string, f Formatter, w io.Writer) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err, ok := <-sub.Errors():
			if !ok {
				return nil
			}
			fmt.Fprintf(w, "warning: %v\n", err)

		case cp, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if sessionID != "" && cp.SessionID != sessionID {
				continue
			}
			if err := f.FormatCheckpoint(cp); err != nil {
				return fmt.Errorf("failed to format checkpoint: %w", err)
			}
		}
	}
}

// Poll watches a single session by re-reading its latest checkpoint every
// interval, formatting each new sequence it sees. Used for stores without an
// event channel. Returns nil once the session reaches a terminal stage.
func Poll(ctx context.Context, st store.Store, sessionID string, interval time.Duration, f Formatter) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastSeq int64

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			cp, err := st.GetLatest(ctx, sessionID)
			if err != nil {
				if store.IsNotFound(err) {
					// Not written yet, continue polling
					continue
				}
				return fmt.Errorf("failed to read latest checkpoint: %w", err)
			}

			if cp.Sequence <= lastSeq {
				continue
			}
			lastSeq = cp.Sequence

			if err := f.FormatCheckpoint(cp); err != nil {
				return fmt.Errorf("failed to format checkpoint: %w", err)
			}

			if cp.State.ActiveStage.Terminal() {
				return nil
			}
		}
	}
}
