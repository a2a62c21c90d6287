package store

import "fmt"

// Redis key pattern helpers
//
// All keys and Pub/Sub channels are namespaced so multiple Redraft
// deployments can safely coexist on a single Redis server.
//
// Key pattern: redraft:{namespace}:{entity}:...
// Channel pattern: redraft:{namespace}:{event_type}_events

// checkpointKey returns the Redis hash key for one checkpoint.
// Pattern: redraft:{ns}:checkpoint:{session_id}:{checkpoint_id}
func checkpointKey(namespace, sessionID, checkpointID string) string {
	return fmt.Sprintf("redraft:%s:checkpoint:%s:%s", namespace, sessionID, checkpointID)
}

// sessionIndexKey returns the ZSET key ordering a session's checkpoints by
// sequence number.
// Pattern: redraft:{ns}:session:{session_id}:checkpoints
func sessionIndexKey(namespace, sessionID string) string {
	return fmt.Sprintf("redraft:%s:session:%s:checkpoints", namespace, sessionID)
}

// sessionSequenceKey returns the counter key used to allocate sequence
// numbers for a session. INCR on this key gives per-session, not global,
// write contention.
// Pattern: redraft:{ns}:session:{session_id}:seq
func sessionSequenceKey(namespace, sessionID string) string {
	return fmt.Sprintf("redraft:%s:session:%s:seq", namespace, sessionID)
}

// sessionFailureKey returns the key holding a session's last recorded stage
// failure message.
// Pattern: redraft:{ns}:session:{session_id}:last_failure
func sessionFailureKey(namespace, sessionID string) string {
	return fmt.Sprintf("redraft:%s:session:%s:last_failure", namespace, sessionID)
}

// CheckpointEventsChannel returns the Pub/Sub channel carrying checkpoint
// events for read-only observers.
// Pattern: redraft:{ns}:checkpoint_events
func CheckpointEventsChannel(namespace string) string {
	return fmt.Sprintf("redraft:%s:checkpoint_events", namespace)
}

// writeProbeKey returns the key used by Verify for its writability probe.
// Pattern: redraft:{ns}:write_probe
func writeProbeKey(namespace string) string {
	return fmt.Sprintf("redraft:%s:write_probe", namespace)
}
