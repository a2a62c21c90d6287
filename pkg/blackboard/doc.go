// Package blackboard defines the shared state record threaded through every
// stage of a Redraft review session, together with the rules that keep it
// consistent.
//
// The blackboard is the single source of truth for a session: the draft under
// review, its revision history, the latest safety and empathy metrics, reviewer
// annotations, the pending human decision, and the audit trail of routing
// redirects. Exactly one stage mutates the state at a time, and it does so
// indirectly: a stage returns an Update (a partial record), and the engine
// merges it through MergeUpdate, which enforces each stage's declared
// write-set. A stage that tries to write a field it does not own fails the
// step; nothing is ever silently dropped.
//
// Structural invariants are applied at the merge boundary rather than trusted
// to stage implementations: a drafting merge appends the prior draft to the
// history, increments the iteration counter by exactly one, and clears any
// stale human decision so an old approval can never re-apply to a new
// artifact. Fields are only ever overwritten or appended, never removed.
package blackboard
