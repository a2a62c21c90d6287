package engine

import (
	"context"
	"fmt"

	"github.com/redraft-dev/redraft/internal/store"
	"github.com/redraft-dev/redraft/pkg/blackboard"
)

// SessionStatus is the read-only view of a session for external watchers.
// Building it never mutates state or triggers stage execution.
type SessionStatus struct {
	SessionID      string            `json:"session_id"`
	Stage          blackboard.Stage  `json:"stage"`
	NextStage      blackboard.Stage  `json:"next_stage"`
	IsComplete     bool              `json:"is_complete"`
	Suspended      bool              `json:"suspended"`
	Running        bool              `json:"running"` // A driver is currently active in this process
	IterationCount int               `json:"iteration_count"`
	SafetyScore    float64           `json:"safety_score"`
	EmpathyScore   float64           `json:"empathy_score"`
	FinalStatus    string            `json:"final_status,omitempty"`
	LastError      string            `json:"last_error,omitempty"`
	UpdatedAtMs    int64             `json:"updated_at_ms"`
}

// GetStatus reads a session's position from its latest checkpoint. A
// missing session surfaces store.ErrNotFound; a corrupt record surfaces
// store.ErrCorrupt, distinctly.
func (e *Engine) GetStatus(ctx context.Context, sessionID string) (*SessionStatus, error) {
	cp, err := e.store.GetLatest(ctx, sessionID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, fmt.Errorf("no such session %s: %w", sessionID, err)
		}
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	lastErr, err := e.store.LastFailure(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read failure record for session %s: %w", sessionID, err)
	}

	st := cp.State
	return &SessionStatus{
		SessionID:      sessionID,
		Stage:          st.ActiveStage,
		NextStage:      st.NextStage,
		IsComplete:     st.ActiveStage.Terminal(),
		Suspended:      st.ActiveStage == blackboard.StageAwaitHuman,
		Running:        e.sessions.isActive(sessionID),
		IterationCount: st.IterationCount,
		SafetyScore:    st.SafetyScore,
		EmpathyScore:   st.EmpathyScore,
		FinalStatus:    st.FinalStatus,
		LastError:      lastErr,
		UpdatedAtMs:    cp.CreatedAtMs,
	}, nil
}

// ListCheckpoints returns a session's checkpoint IDs in sequence order.
// Read-only.
func (e *Engine) ListCheckpoints(ctx context.Context, sessionID string) ([]string, error) {
	return e.store.List(ctx, sessionID)
}

// GetCheckpoint returns one checkpoint snapshot. Read-only.
func (e *Engine) GetCheckpoint(ctx context.Context, sessionID, checkpointID string) (*store.Checkpoint, error) {
	return e.store.Get(ctx, sessionID, checkpointID)
}
