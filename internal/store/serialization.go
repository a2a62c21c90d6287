package store

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redraft-dev/redraft/pkg/blackboard"
)

// Serialization helpers for converting between checkpoints and Redis hashes
//
// Redis stores data as string-to-string maps (hashes). Metadata fields are
// stored individually for queryability; the blackboard snapshot is
// JSON-encoded into a single hash field. JSON keeps the encoding lossless for
// nested annotation and transfer-log lists, and []byte evidence rides through
// as base64, so opaque binary content in feedback records survives the round
// trip.

// checkpointToHash converts a Checkpoint to Redis hash format.
func checkpointToHash(cp *Checkpoint) (map[string]interface{}, error) {
	stateJSON, err := json.Marshal(cp.State)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}

	hash := map[string]interface{}{
		"session_id":    cp.SessionID,
		"checkpoint_id": cp.CheckpointID,
		"sequence":      cp.Sequence,
		"created_at_ms": cp.CreatedAtMs,
		"state":         string(stateJSON),
	}

	return hash, nil
}

// hashToCheckpoint converts a Redis hash back to a Checkpoint. Any missing
// required field or undecodable snapshot is a data-integrity error.
func hashToCheckpoint(hash map[string]string) (*Checkpoint, error) {
	if hash["session_id"] == "" || hash["checkpoint_id"] == "" {
		return nil, fmt.Errorf("%w: missing identity fields", ErrCorrupt)
	}

	sequence, err := strconv.ParseInt(hash["sequence"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid sequence field: %v", ErrCorrupt, err)
	}

	createdAtMs, err := strconv.ParseInt(hash["created_at_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid created_at_ms field: %v", ErrCorrupt, err)
	}

	stateJSON := hash["state"]
	if stateJSON == "" {
		return nil, fmt.Errorf("%w: missing state snapshot", ErrCorrupt)
	}

	state, err := decodeState([]byte(stateJSON))
	if err != nil {
		return nil, err
	}

	return &Checkpoint{
		SessionID:    hash["session_id"],
		CheckpointID: hash["checkpoint_id"],
		Sequence:     sequence,
		CreatedAtMs:  createdAtMs,
		State:        state,
	}, nil
}

// decodeState unmarshals a stored snapshot, normalizing nil slices so a
// round-tripped state compares equal to the one that was written.
func decodeState(raw []byte) (*blackboard.State, error) {
	var state blackboard.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal state: %v", ErrCorrupt, err)
	}

	if state.SessionID == "" {
		return nil, fmt.Errorf("%w: snapshot missing session_id", ErrCorrupt)
	}

	if state.DraftHistory == nil {
		state.DraftHistory = []string{}
	}
	if state.Annotations == nil {
		state.Annotations = []blackboard.Annotation{}
	}
	if state.TransferLog == nil {
		state.TransferLog = []blackboard.TransferEntry{}
	}

	return &state, nil
}
