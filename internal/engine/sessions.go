package engine

import (
	"fmt"
	"sync"
)

// sessionRegistry enforces the single-active-driver rule: at most one
// execution context per session identifier at a time. Distinct sessions run
// fully in parallel. A suspended session holds no slot here; the driver
// exits entirely and a later resume acquires afresh.
type sessionRegistry struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{active: make(map[string]struct{})}
}

// acquire claims the driver slot for a session. Returns a release func on
// success, or ErrAlreadyRunning when a driver is already active.
func (r *sessionRegistry) acquire(sessionID string) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.active[sessionID]; exists {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrAlreadyRunning)
	}

	r.active[sessionID] = struct{}{}

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.active, sessionID)
	}, nil
}

// isActive reports whether a driver currently holds the session.
func (r *sessionRegistry) isActive(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.active[sessionID]
	return exists
}
