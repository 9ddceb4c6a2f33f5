package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/runhub/run-community-hub/internal/domain/run"
	"github.com/runhub/run-community-hub/internal/domain/shared"
)

func TestVerifyRunRanksAndAwardsPoints(t *testing.T) {
	pending := testRun("run-1", "00:08:00", "imported", "Speedy")
	pending.Verified = false
	env := newTestEnv([]*run.Run{
		pending,
		testRun("run-2", "00:09:00", "imported", "Rival"),
	})
	handler := NewVerifyRunHandler(env.rec)

	result, err := handler.Handle(context.Background(), VerifyRunCommand{
		RunID: "run-1", ModeratorID: "mod-1",
	})

	assert.NoError(t, err)
	assert.False(t, result.AlreadyVerified)
	assert.Equal(t, 1, result.Rank)
	assert.Equal(t, 110.0, result.Points)
	assert.Equal(t, 2, env.runs.runs["run-2"].Rank, "displaced run drops to second")
	assert.Len(t, env.bus.byType(shared.EventRunVerified), 1)
	assert.Len(t, env.bus.byType(shared.EventRankChanged), 1)
}

// The store serves stale reads after a write; the freshly verified run must
// still rank immediately through the overlay.
func TestVerifyRunVisibleDespiteReadLag(t *testing.T) {
	staleR1 := testRun("run-1", "00:08:00", "imported", "Speedy")
	staleR1.Verified = false
	r2 := testRun("run-2", "00:09:00", "imported", "Rival")
	r2.Rank = 1
	r2.Points = 110
	r3 := testRun("run-3", "00:09:30", "imported", "Third")
	r3.Rank = 2
	r3.Points = 60

	env := newTestEnv([]*run.Run{staleR1, r2, r3})
	env.runs.stale = true
	handler := NewVerifyRunHandler(env.rec)

	result, err := handler.Handle(context.Background(), VerifyRunCommand{
		RunID: "run-1", ModeratorID: "mod-1",
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, result.Rank, "fresh run ranks first even before the store read catches up")
	assert.Equal(t, 1, result.Position)
	assert.Equal(t, 110.0, result.Points)
	assert.Equal(t, 2, env.runs.runs["run-2"].Rank)
	assert.Equal(t, 60.0, env.runs.runs["run-2"].Points)
	assert.Equal(t, 3, env.runs.runs["run-3"].Rank)
	assert.Equal(t, 35.0, env.runs.runs["run-3"].Points)
}

// Imported runs may carry only a fallback category name with no registry
// ref. They form their own cohort and must verify and rank like any other
// run instead of being stranded verified but rankless.
func TestVerifyRunWithFallbackCategoryNameOnly(t *testing.T) {
	pending := testRun("run-1", "00:08:00", "imported", "Speedy")
	pending.Verified = false
	pending.CategoryRef = ""
	pending.CategoryName = "Any%"
	rival := testRun("run-2", "00:09:00", "imported", "Rival")
	rival.CategoryRef = ""
	rival.CategoryName = "Any%"
	env := newTestEnv([]*run.Run{pending, rival})
	handler := NewVerifyRunHandler(env.rec)

	result, err := handler.Handle(context.Background(), VerifyRunCommand{
		RunID: "run-1", ModeratorID: "mod-1",
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, result.Rank)
	assert.Equal(t, 110.0, result.Points)
	assert.True(t, env.runs.runs["run-1"].Verified)
	assert.Equal(t, 1, env.runs.runs["run-1"].Rank)
	assert.Equal(t, 2, env.runs.runs["run-2"].Rank, "ref-less cohort reranks as a whole")
}

func TestVerifyRunIdempotent(t *testing.T) {
	verified := testRun("run-1", "00:08:00", "imported", "Speedy")
	verified.Rank = 1
	verified.Points = 110
	env := newTestEnv([]*run.Run{verified})
	handler := NewVerifyRunHandler(env.rec)

	result, err := handler.Handle(context.Background(), VerifyRunCommand{
		RunID: "run-1", ModeratorID: "mod-1",
	})

	assert.NoError(t, err)
	assert.True(t, result.AlreadyVerified)
	assert.Empty(t, env.bus.events, "a no-op verification publishes nothing")
}

func TestVerifyRunRecomputesOwnerTotals(t *testing.T) {
	owner := testPlayer("acct-1", "Speedy")
	pending := testRun("run-1", "00:08:00", "acct-1", "Speedy")
	pending.Verified = false
	env := newTestEnv([]*run.Run{pending}, owner)
	handler := NewVerifyRunHandler(env.rec)

	_, err := handler.Handle(context.Background(), VerifyRunCommand{
		RunID: "run-1", ModeratorID: "mod-1",
	})

	assert.NoError(t, err)
	assert.Equal(t, 110.0, env.players.players["acct-1"].CachedTotalPoints)
	assert.Equal(t, 1, env.players.players["acct-1"].CachedTotalRuns)
	assert.Len(t, env.bus.byType(shared.EventTotalsRecomputed), 1)
}

// A failing totals rebuild must never fail the verification itself.
func TestVerifyRunSurvivesRecomputeFailure(t *testing.T) {
	pending := testRun("run-1", "00:08:00", "acct-missing", "Speedy")
	pending.Verified = false
	env := newTestEnv([]*run.Run{pending}) // owner account does not exist
	handler := NewVerifyRunHandler(env.rec)

	result, err := handler.Handle(context.Background(), VerifyRunCommand{
		RunID: "run-1", ModeratorID: "mod-1",
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, result.Rank)
}

func TestVerifyRunNotFound(t *testing.T) {
	env := newTestEnv(nil)
	handler := NewVerifyRunHandler(env.rec)

	_, err := handler.Handle(context.Background(), VerifyRunCommand{
		RunID: "run-x", ModeratorID: "mod-1",
	})

	assert.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
}

func TestVerifyRunValidation(t *testing.T) {
	env := newTestEnv(nil)
	handler := NewVerifyRunHandler(env.rec)

	_, err := handler.Handle(context.Background(), VerifyRunCommand{RunID: "run-1"})
	assert.Error(t, err)

	_, err = handler.Handle(context.Background(), VerifyRunCommand{ModeratorID: "mod-1"})
	assert.Error(t, err)
}

func TestUnverifyRunRemovesContribution(t *testing.T) {
	owner := testPlayer("acct-1", "Speedy")
	first := testRun("run-1", "00:08:00", "acct-1", "Speedy")
	first.Rank = 1
	first.Points = 110
	second := testRun("run-2", "00:09:00", "imported", "Rival")
	second.Rank = 2
	second.Points = 60
	owner.CachedTotalPoints = 110
	owner.CachedTotalRuns = 1

	env := newTestEnv([]*run.Run{first, second}, owner)
	env.runs.stale = true // the retraction itself must not depend on read-after-write
	handler := NewUnverifyRunHandler(env.rec)

	result, err := handler.Handle(context.Background(), UnverifyRunCommand{
		RunID: "run-1", ModeratorID: "mod-1",
	})

	assert.NoError(t, err)
	assert.False(t, result.AlreadyUnverified)
	assert.Zero(t, env.runs.runs["run-1"].Rank, "retracted run loses its rank")
	assert.Zero(t, env.runs.runs["run-1"].Points)
	assert.Equal(t, 1, env.runs.runs["run-2"].Rank, "runner-up inherits first place")
	assert.Equal(t, 110.0, env.runs.runs["run-2"].Points)
	assert.Zero(t, env.players.players["acct-1"].CachedTotalPoints)
	assert.Zero(t, env.players.players["acct-1"].CachedTotalRuns)
}

func TestUnverifyRunIdempotent(t *testing.T) {
	unverified := testRun("run-1", "00:08:00", "imported", "Speedy")
	unverified.Verified = false
	env := newTestEnv([]*run.Run{unverified})
	handler := NewUnverifyRunHandler(env.rec)

	result, err := handler.Handle(context.Background(), UnverifyRunCommand{
		RunID: "run-1", ModeratorID: "mod-1",
	})

	assert.NoError(t, err)
	assert.True(t, result.AlreadyUnverified)
}
