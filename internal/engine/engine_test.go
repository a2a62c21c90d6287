package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redraft-dev/redraft/internal/agent"
	"github.com/redraft-dev/redraft/internal/router"
	"github.com/redraft-dev/redraft/internal/store"
	"github.com/redraft-dev/redraft/pkg/blackboard"
)

// stubSlot is a programmable stage function for driving the engine through
// exact scenarios.
type stubSlot struct {
	stage blackboard.Stage
	fn    func(ctx context.Context, state blackboard.State) (*blackboard.Update, error)
}

func (s *stubSlot) Stage() blackboard.Stage { return s.stage }

func (s *stubSlot) Execute(ctx context.Context, state blackboard.State) (*blackboard.Update, error) {
	return s.fn(ctx, state)
}

// passingSlots builds stubs where every draft passes both reviews: drafting
// emits a versioned draft, safety scores 0.9, critique scores 0.8 with no
// annotations, finalize copies the draft.
func passingSlots() agent.Slots {
	return agent.Slots{
		blackboard.StageDraft: &stubSlot{
			stage: blackboard.StageDraft,
			fn: func(_ context.Context, state blackboard.State) (*blackboard.Update, error) {
				draft := fmt.Sprintf("draft v%d", state.IterationCount+1)
				return &blackboard.Update{Draft: &draft}, nil
			},
		},
		blackboard.StageSafetyReview: &stubSlot{
			stage: blackboard.StageSafetyReview,
			fn: func(_ context.Context, _ blackboard.State) (*blackboard.Update, error) {
				score := 0.9
				return &blackboard.Update{
					SafetyScore:    &score,
					SafetyFeedback: &blackboard.SafetyFeedback{FlaggedLines: []int{}, Notes: []string{}},
				}, nil
			},
		},
		blackboard.StageCritique: &stubSlot{
			stage: blackboard.StageCritique,
			fn: func(_ context.Context, _ blackboard.State) (*blackboard.Update, error) {
				score := 0.8
				return &blackboard.Update{
					EmpathyScore:     &score,
					CritiqueFeedback: &blackboard.CritiqueFeedback{},
				}, nil
			},
		},
		blackboard.StageFinalize: &stubSlot{
			stage: blackboard.StageFinalize,
			fn: func(_ context.Context, state blackboard.State) (*blackboard.Update, error) {
				artifact := state.Draft
				status := agent.FinalStatusApproved
				return &blackboard.Update{FinalArtifact: &artifact, FinalStatus: &status}, nil
			},
		},
	}
}

func newTestEngine(t *testing.T, slots agent.Slots) (*Engine, store.Store) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	st, err := store.NewRedisStore(&redis.Options{Addr: mr.Addr()}, "test")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	r, err := router.New(router.DefaultConfig())
	require.NoError(t, err)

	eng, err := New(st, r, slots)
	require.NoError(t, err)

	return eng, st
}

func TestNewValidatesDependencies(t *testing.T) {
	r, err := router.New(router.DefaultConfig())
	require.NoError(t, err)

	_, err = New(nil, r, passingSlots())
	assert.Error(t, err)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	st, err := store.NewRedisStore(&redis.Options{Addr: mr.Addr()}, "test")
	require.NoError(t, err)
	defer st.Close()

	_, err = New(st, nil, passingSlots())
	assert.Error(t, err)

	incomplete := passingSlots()
	delete(incomplete, blackboard.StageCritique)
	_, err = New(st, r, incomplete)
	assert.Error(t, err)
}

func TestStartSessionSuspendsAtHumanGate(t *testing.T) {
	eng, st := newTestEngine(t, passingSlots())
	ctx := context.Background()

	handle, err := eng.StartSession(ctx, "an exercise for anxious thoughts", "template", "")
	require.NoError(t, err)

	assert.True(t, handle.Suspended)
	assert.False(t, handle.Complete)
	assert.Equal(t, blackboard.StageAwaitHuman, handle.Stage)
	assert.Equal(t, 1, handle.IterationCount, "one drafting cycle before the gate")
	assert.Equal(t, 0.9, handle.SafetyScore)
	assert.Equal(t, 0.8, handle.EmpathyScore)
	assert.NotEmpty(t, handle.SessionID, "empty session ID allocates a fresh one")

	// The suspension checkpoint is durable with no decision recorded
	cp, err := st.GetLatest(ctx, handle.SessionID)
	require.NoError(t, err)
	assert.Equal(t, blackboard.StageAwaitHuman, cp.State.ActiveStage)
	assert.Equal(t, blackboard.DecisionUnset, cp.State.HumanDecision)
	assert.Equal(t, "draft v1", cp.State.Draft)
}

func TestStartGuards(t *testing.T) {
	eng, _ := newTestEngine(t, passingSlots())
	ctx := context.Background()

	handle, err := eng.StartSession(ctx, "intent", "template", "")
	require.NoError(t, err)
	require.True(t, handle.Suspended)

	t.Run("starting a suspended session is rejected", func(t *testing.T) {
		_, err := eng.StartSession(ctx, "intent", "template", handle.SessionID)
		assert.ErrorIs(t, err, ErrSuspended)
	})

	t.Run("starting a completed session is rejected", func(t *testing.T) {
		_, err := eng.ResumeSession(ctx, handle.SessionID, blackboard.DecisionApprove, "")
		require.NoError(t, err)

		_, err = eng.StartSession(ctx, "intent", "template", handle.SessionID)
		assert.ErrorIs(t, err, ErrSessionComplete)
	})
}

func TestResumeGuards(t *testing.T) {
	eng, _ := newTestEngine(t, passingSlots())
	ctx := context.Background()

	t.Run("invalid decision is rejected before anything loads", func(t *testing.T) {
		_, err := eng.ResumeSession(ctx, uuid.New().String(), "Maybe", "")
		assert.ErrorIs(t, err, ErrInvalidDecision)

		_, err = eng.ResumeSession(ctx, uuid.New().String(), blackboard.DecisionUnset, "")
		assert.ErrorIs(t, err, ErrInvalidDecision)
	})

	t.Run("resuming an unknown session is rejected", func(t *testing.T) {
		_, err := eng.ResumeSession(ctx, uuid.New().String(), blackboard.DecisionApprove, "")
		require.Error(t, err)
		assert.True(t, store.IsNotFound(err))
	})

	t.Run("resuming a session that is not suspended is rejected", func(t *testing.T) {
		handle, err := eng.StartSession(ctx, "intent", "template", "")
		require.NoError(t, err)

		_, err = eng.ResumeSession(ctx, handle.SessionID, blackboard.DecisionApprove, "")
		require.NoError(t, err)

		// Now complete; a second decision has nothing to attach to
		_, err = eng.ResumeSession(ctx, handle.SessionID, blackboard.DecisionApprove, "")
		assert.ErrorIs(t, err, ErrNotSuspended)
	})
}

func TestRejectReviseApproveScenario(t *testing.T) {
	eng, st := newTestEngine(t, passingSlots())
	ctx := context.Background()

	handle, err := eng.StartSession(ctx, "an exercise for anxious thoughts", "template", "")
	require.NoError(t, err)
	require.True(t, handle.Suspended)
	sessionID := handle.SessionID

	// Reject with a revision instruction: one more drafting cycle, then
	// back to the gate.
	handle, err = eng.ResumeSession(ctx, sessionID, blackboard.DecisionReject, "Make the tone warmer")
	require.NoError(t, err)
	assert.True(t, handle.Suspended)
	assert.Equal(t, 2, handle.IterationCount)

	cp, err := st.GetLatest(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, []string{"draft v1"}, cp.State.DraftHistory)
	assert.Equal(t, "draft v2", cp.State.Draft)
	assert.True(t, strings.HasPrefix(cp.State.Intent, agent.RevisionInstructionPrefix),
		"the rejection instruction is layered into the intent")
	assert.Contains(t, cp.State.Intent, "Make the tone warmer")
	assert.Contains(t, cp.State.Intent, "PREVIOUS INTENT: an exercise for anxious thoughts")
	assert.Equal(t, blackboard.DecisionUnset, cp.State.HumanDecision,
		"the new draft invalidated the recorded decision")

	// Approve: finalize and close.
	handle, err = eng.ResumeSession(ctx, sessionID, blackboard.DecisionApprove, "")
	require.NoError(t, err)
	assert.True(t, handle.Complete)
	assert.Equal(t, blackboard.StageDone, handle.Stage)
	assert.Equal(t, "draft v2", handle.FinalArtifact, "the approved draft is the one finalized")
	assert.Equal(t, 2, handle.IterationCount)

	cp, err = st.GetLatest(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, agent.FinalStatusApproved, cp.State.FinalStatus)

	// The transfer log recorded the redirects in order
	var intents []blackboard.TransferIntent
	for _, entry := range cp.State.TransferLog {
		intents = append(intents, entry.Intent)
	}
	assert.Equal(t, []blackboard.TransferIntent{
		blackboard.IntentHumanReviewRequired,
		blackboard.IntentReviseStructure,
		blackboard.IntentHumanReviewRequired,
		blackboard.IntentReadyToFinalize,
	}, intents)
}

func TestCheckpointHistoryIsAppendOnly(t *testing.T) {
	eng, st := newTestEngine(t, passingSlots())
	ctx := context.Background()

	handle, err := eng.StartSession(ctx, "intent", "template", "")
	require.NoError(t, err)

	ids, err := st.List(ctx, handle.SessionID)
	require.NoError(t, err)
	// initial + draft + safety + critique + suspension
	require.Len(t, ids, 5)

	// Every checkpoint remains readable after later writes, and sequences
	// are strictly increasing.
	var lastSeq int64
	for _, id := range ids {
		cp, err := st.Get(ctx, handle.SessionID, id)
		require.NoError(t, err)
		assert.Greater(t, cp.Sequence, lastSeq)
		lastSeq = cp.Sequence
	}
}

func TestConcurrentDriverRejected(t *testing.T) {
	slots := passingSlots()

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	sessionID := uuid.New().String()
	slots[blackboard.StageDraft] = &stubSlot{
		stage: blackboard.StageDraft,
		fn: func(_ context.Context, state blackboard.State) (*blackboard.Update, error) {
			// Only the contended session blocks; other sessions draft freely
			if state.SessionID == sessionID {
				once.Do(func() { close(entered) })
				<-release
			}
			draft := "draft v1"
			return &blackboard.Update{Draft: &draft}, nil
		},
	}

	eng, _ := newTestEngine(t, slots)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := eng.StartSession(ctx, "intent", "template", sessionID)
		done <- err
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("driver never reached the drafting stage")
	}

	// Second driver for the same session: rejected, not queued
	_, err := eng.StartSession(ctx, "intent", "template", sessionID)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	// A different session is unaffected
	other, err := eng.StartSession(ctx, "intent", "template", "")
	require.NoError(t, err)
	assert.True(t, other.Suspended)

	close(release)
	require.NoError(t, <-done)

	// With the first driver gone, the slot is free again
	_, err = eng.StartSession(ctx, "intent", "template", sessionID)
	assert.ErrorIs(t, err, ErrSuspended, "the driver slot is released, only the suspension guard remains")
}

func TestStageFailureIsolation(t *testing.T) {
	slots := passingSlots()

	var draftRuns int
	failSafety := true

	slots[blackboard.StageDraft] = &stubSlot{
		stage: blackboard.StageDraft,
		fn: func(_ context.Context, state blackboard.State) (*blackboard.Update, error) {
			draftRuns++
			draft := fmt.Sprintf("draft v%d", state.IterationCount+1)
			return &blackboard.Update{Draft: &draft}, nil
		},
	}
	slots[blackboard.StageSafetyReview] = &stubSlot{
		stage: blackboard.StageSafetyReview,
		fn: func(_ context.Context, _ blackboard.State) (*blackboard.Update, error) {
			if failSafety {
				return nil, fmt.Errorf("reviewer backend unavailable")
			}
			score := 0.9
			return &blackboard.Update{
				SafetyScore:    &score,
				SafetyFeedback: &blackboard.SafetyFeedback{FlaggedLines: []int{}, Notes: []string{}},
			}, nil
		},
	}

	eng, st := newTestEngine(t, slots)
	ctx := context.Background()
	sessionID := uuid.New().String()

	_, err := eng.StartSession(ctx, "intent", "template", sessionID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStageFailed)
	assert.Contains(t, err.Error(), "reviewer backend unavailable")

	t.Run("failure leaves the last good checkpoint untouched", func(t *testing.T) {
		cp, err := st.GetLatest(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, blackboard.StageDraft, cp.State.ActiveStage,
			"active stage stays at the last successfully completed stage")
		assert.Equal(t, "draft v1", cp.State.Draft)
	})

	t.Run("failure is visible on the session status", func(t *testing.T) {
		status, err := eng.GetStatus(ctx, sessionID)
		require.NoError(t, err)
		assert.Contains(t, status.LastError, "reviewer backend unavailable")
		assert.False(t, status.Running)
	})

	t.Run("other sessions are unaffected", func(t *testing.T) {
		failSafety = false
		defer func() { failSafety = true }()

		handle, err := eng.StartSession(ctx, "intent", "template", "")
		require.NoError(t, err)
		assert.True(t, handle.Suspended)
	})

	t.Run("retry re-enters at the failed stage", func(t *testing.T) {
		failSafety = false
		runsBefore := draftRuns

		handle, err := eng.StartSession(ctx, "intent", "template", sessionID)
		require.NoError(t, err)
		assert.True(t, handle.Suspended)
		assert.Equal(t, runsBefore, draftRuns,
			"the draft checkpoint is reused, drafting does not run again")
	})
}

func TestWriteSetViolationFailsTheStep(t *testing.T) {
	slots := passingSlots()
	slots[blackboard.StageSafetyReview] = &stubSlot{
		stage: blackboard.StageSafetyReview,
		fn: func(_ context.Context, _ blackboard.State) (*blackboard.Update, error) {
			// A reviewer trying to rewrite the draft is a contract violation
			rewrite := "reviewer-authored draft"
			return &blackboard.Update{Draft: &rewrite}, nil
		},
	}

	eng, st := newTestEngine(t, slots)
	ctx := context.Background()
	sessionID := uuid.New().String()

	_, err := eng.StartSession(ctx, "intent", "template", sessionID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStageFailed)
	assert.Contains(t, err.Error(), "may not write")

	cp, err := st.GetLatest(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, "draft v1", cp.State.Draft, "the rejected write applied nothing")
}

func TestRevisionLoopUntilPassing(t *testing.T) {
	slots := passingSlots()

	// Safety fails the first draft and passes revisions
	slots[blackboard.StageSafetyReview] = &stubSlot{
		stage: blackboard.StageSafetyReview,
		fn: func(_ context.Context, state blackboard.State) (*blackboard.Update, error) {
			score := 0.95
			if state.IterationCount == 1 {
				score = 0.2
			}
			return &blackboard.Update{
				SafetyScore:    &score,
				SafetyFeedback: &blackboard.SafetyFeedback{FlaggedLines: []int{}, Notes: []string{}},
			}, nil
		},
	}

	eng, st := newTestEngine(t, slots)
	ctx := context.Background()

	handle, err := eng.StartSession(ctx, "intent", "template", "")
	require.NoError(t, err)

	assert.True(t, handle.Suspended)
	assert.Equal(t, 2, handle.IterationCount, "one failed cycle plus one passing cycle")

	cp, err := st.GetLatest(ctx, handle.SessionID)
	require.NoError(t, err)
	assert.Equal(t, []string{"draft v1"}, cp.State.DraftHistory)

	var sawSafetyRevision bool
	for _, entry := range cp.State.TransferLog {
		if entry.Intent == blackboard.IntentReviseForSafety {
			sawSafetyRevision = true
			assert.Equal(t, blackboard.StageSafetyReview, entry.From)
			assert.Equal(t, blackboard.StageDraft, entry.To)
		}
	}
	assert.True(t, sawSafetyRevision, "the redirect left an audit entry")
}

func TestGetStatusReadsWithoutExecuting(t *testing.T) {
	slots := passingSlots()

	var draftRuns int
	slots[blackboard.StageDraft] = &stubSlot{
		stage: blackboard.StageDraft,
		fn: func(_ context.Context, state blackboard.State) (*blackboard.Update, error) {
			draftRuns++
			draft := fmt.Sprintf("draft v%d", state.IterationCount+1)
			return &blackboard.Update{Draft: &draft}, nil
		},
	}

	eng, _ := newTestEngine(t, slots)
	ctx := context.Background()

	handle, err := eng.StartSession(ctx, "intent", "template", "")
	require.NoError(t, err)
	runsAfterStart := draftRuns

	status, err := eng.GetStatus(ctx, handle.SessionID)
	require.NoError(t, err)
	assert.Equal(t, blackboard.StageAwaitHuman, status.Stage)
	assert.True(t, status.Suspended)
	assert.False(t, status.IsComplete)
	assert.Equal(t, 1, status.IterationCount)
	assert.Equal(t, runsAfterStart, draftRuns, "observation never triggers execution")

	_, err = eng.GetStatus(ctx, uuid.New().String())
	require.Error(t, err)
	assert.True(t, store.IsNotFound(err))
}
