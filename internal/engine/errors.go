package engine

import "errors"

// Rejected-operation errors. These fail immediately with a descriptive
// reason and cause no state mutation.
var (
	// ErrAlreadyRunning means a driver is already active for the session.
	// Sessions are single-writer: the second start is rejected, not queued.
	ErrAlreadyRunning = errors.New("session already has an active driver")

	// ErrNotSuspended means a resume was attempted against a session whose
	// latest checkpoint is not parked at AwaitHuman.
	ErrNotSuspended = errors.New("session is not suspended awaiting a human decision")

	// ErrSuspended means a start was attempted against a session parked at
	// AwaitHuman; only ResumeSession may re-enter there.
	ErrSuspended = errors.New("session is suspended awaiting a human decision, use resume")

	// ErrInvalidDecision means the supplied decision was neither approve
	// nor reject.
	ErrInvalidDecision = errors.New("invalid decision: must be Approve or Reject")

	// ErrSessionComplete means the session already reached its terminal
	// checkpoint.
	ErrSessionComplete = errors.New("session is already complete")
)

// ErrStageFailed wraps a session-fatal agent error. The failure is recorded
// on the session's status, other sessions are unaffected, and the session
// can be retried from its last good checkpoint.
var ErrStageFailed = errors.New("stage execution failed")
