// Package store provides the durable, append-only checkpoint record of
// blackboard snapshots keyed by (session, sequence). The store is the sole
// source of truth for where a session is: the suspension protocol depends on
// it to survive process restarts, so every backend verifies writability at
// startup and every Put is durable before it returns.
package store

import (
	"context"
	"errors"

	"github.com/redraft-dev/redraft/pkg/blackboard"
)

// ErrNotFound is returned when a session or checkpoint does not exist.
var ErrNotFound = errors.New("checkpoint not found")

// ErrCorrupt is returned when a stored snapshot exists but is missing
// required fields or cannot be decoded. Surfaced distinctly from ErrNotFound
// so callers can tell "no such session" apart from "record is corrupt".
var ErrCorrupt = errors.New("corrupt checkpoint record")

// Checkpoint is one immutable snapshot of a session's blackboard state.
type Checkpoint struct {
	SessionID    string            `json:"session_id"`
	CheckpointID string            `json:"checkpoint_id"`
	Sequence     int64             `json:"sequence"` // Monotonic per session, starts at 1
	CreatedAtMs  int64             `json:"created_at_ms"`
	State        *blackboard.State `json:"state"`
}

// Store is the durable checkpoint contract. Implementations must support
// safe concurrent writes for distinct sessions (per-session, not global,
// contention) and must never mutate or delete a prior checkpoint.
type Store interface {
	// Put appends a snapshot for the state's session, allocating the next
	// sequence number atomically. The write is durable before Put returns.
	Put(ctx context.Context, state *blackboard.State) (*Checkpoint, error)

	// GetLatest returns the highest-sequence checkpoint for a session, or
	// ErrNotFound if the session has none.
	GetLatest(ctx context.Context, sessionID string) (*Checkpoint, error)

	// Get returns one checkpoint by ID, or ErrNotFound.
	Get(ctx context.Context, sessionID, checkpointID string) (*Checkpoint, error)

	// List returns the session's checkpoint IDs in sequence order.
	List(ctx context.Context, sessionID string) ([]string, error)

	// RecordFailure attaches a session-fatal stage error to the session's
	// status. This is a status record, not a checkpoint: it never mutates
	// the snapshot history.
	RecordFailure(ctx context.Context, sessionID, message string) error

	// LastFailure returns the most recent recorded failure message, or ""
	// when the session has none.
	LastFailure(ctx context.Context, sessionID string) (string, error)

	// Verify probes that the store is reachable and writable. Callers must
	// refuse session traffic when it fails.
	Verify(ctx context.Context) error

	// Close releases the backend connection.
	Close() error
}

// IsNotFound reports whether the error is a missing session or checkpoint.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsCorrupt reports whether the error is a data-integrity failure on an
// existing record.
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrCorrupt)
}
