package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/runhub/run-community-hub/internal/domain/run"
	"github.com/runhub/run-community-hub/internal/domain/shared"
)

func TestDeleteRunRecomputesOwners(t *testing.T) {
	owner := testPlayer("acct-1", "Speedy")
	owner.CachedTotalPoints = 170
	owner.CachedTotalRuns = 2
	doomed := testRun("run-1", "00:08:00", "acct-1", "Speedy")
	doomed.Rank = 1
	doomed.Points = 110
	surviving := testRun("run-2", "00:09:00", "acct-1", "Speedy")
	surviving.Rank = 2
	surviving.Points = 60

	env := newTestEnv([]*run.Run{doomed, surviving}, owner)
	handler := NewDeleteRunHandler(env.rec, true)

	result, err := handler.Handle(context.Background(), DeleteRunCommand{
		RunID: "run-1", ModeratorID: "mod-1",
	})

	assert.NoError(t, err)
	assert.True(t, result.OwnersRecomputed)
	assert.NotContains(t, env.runs.runs, "run-1")
	assert.Equal(t, 1, env.runs.runs["run-2"].Rank, "survivor moves up")
	assert.Equal(t, 110.0, env.players.players["acct-1"].CachedTotalPoints,
		"deleted run's points leave the cached total")
	assert.Equal(t, 1, env.players.players["acct-1"].CachedTotalRuns)
	assert.Len(t, env.bus.byType(shared.EventRunDeleted), 1)
}

// With owner recomputation disabled the deleted run's points linger in the
// cached total until the next backfill touches the player.
func TestDeleteRunWithoutRecomputeLeavesTotals(t *testing.T) {
	owner := testPlayer("acct-1", "Speedy")
	owner.CachedTotalPoints = 110
	owner.CachedTotalRuns = 1
	doomed := testRun("run-1", "00:08:00", "acct-1", "Speedy")
	doomed.Rank = 1
	doomed.Points = 110

	env := newTestEnv([]*run.Run{doomed}, owner)
	handler := NewDeleteRunHandler(env.rec, false)

	result, err := handler.Handle(context.Background(), DeleteRunCommand{
		RunID: "run-1", ModeratorID: "mod-1",
	})

	assert.NoError(t, err)
	assert.False(t, result.OwnersRecomputed)
	assert.Equal(t, 110.0, env.players.players["acct-1"].CachedTotalPoints,
		"stale total preserved by configuration")
}

func TestDeleteRunNotFound(t *testing.T) {
	env := newTestEnv(nil)
	handler := NewDeleteRunHandler(env.rec, true)

	_, err := handler.Handle(context.Background(), DeleteRunCommand{
		RunID: "run-x", ModeratorID: "mod-1",
	})
	assert.True(t, shared.IsNotFound(err))
}

func TestBackfillRepairsDriftedCorpus(t *testing.T) {
	owner := testPlayer("acct-1", "Speedy")
	owner.CachedTotalPoints = 1 // drifted

	// Ranks and points are all wrong; the pass must rebuild everything.
	r1 := testRun("run-1", "00:08:00", "acct-1", "Speedy")
	r1.Rank = 3
	r1.Points = 1
	r2 := testRun("run-2", "00:09:00", "imported", "Rival")
	r2.Rank = 1
	r2.Points = 999
	other := testRun("run-3", "00:05:00", "unlinked_abcdef0123456789", "Speedy")
	other.CategoryRef = "cat-glitchless"

	env := newTestEnv([]*run.Run{r1, r2, other}, owner)
	handler := NewBackfillHandler(env.rec, 2) // small pages to exercise the cursor

	result, err := handler.Handle(context.Background(), BackfillCommand{})

	assert.NoError(t, err)
	assert.True(t, result.OK())
	assert.Equal(t, 3, result.RunsScanned)
	assert.Equal(t, 2, result.GroupsProcessed)
	assert.Equal(t, 1, env.runs.runs["run-1"].Rank)
	assert.Equal(t, 110.0, env.runs.runs["run-1"].Points)
	assert.Equal(t, 2, env.runs.runs["run-2"].Rank)
	assert.Equal(t, 60.0, env.runs.runs["run-2"].Points)
	assert.Equal(t, 1, env.runs.runs["run-3"].Rank)
	assert.Equal(t, 1, result.PlayersRecounted, "only the one resolvable account recounts")
	assert.Equal(t, 220.0, env.players.players["acct-1"].CachedTotalPoints,
		"owned run plus name-matched run")
	assert.Len(t, env.bus.byType(shared.EventBackfillCompleted), 1)
}

func TestBackfillIdempotent(t *testing.T) {
	owner := testPlayer("acct-1", "Speedy")
	env := newTestEnv([]*run.Run{
		testRun("run-1", "00:08:00", "acct-1", "Speedy"),
		testRun("run-2", "00:09:00", "imported", "Rival"),
	}, owner)
	handler := NewBackfillHandler(env.rec, 100)

	first, err := handler.Handle(context.Background(), BackfillCommand{})
	assert.NoError(t, err)
	assert.Positive(t, first.RunsUpdated)

	second, err := handler.Handle(context.Background(), BackfillCommand{})
	assert.NoError(t, err)
	assert.Zero(t, second.RunsUpdated, "second pass finds nothing to change")
	assert.Equal(t, first.RunsScanned, second.RunsScanned)
}

func TestBackfillContinuesPastFailures(t *testing.T) {
	r1 := testRun("run-1", "00:08:00", "imported", "Speedy")
	r2 := testRun("run-2", "00:09:00", "imported", "Rival")
	r2.CategoryRef = "cat-glitchless"

	env := newTestEnv([]*run.Run{r1, r2})
	env.batch.failIDs["run-1"] = true
	handler := NewBackfillHandler(env.rec, 100)

	result, err := handler.Handle(context.Background(), BackfillCommand{})

	assert.NoError(t, err)
	assert.False(t, result.OK())
	assert.Len(t, result.Errors, 1)
	assert.Equal(t, 1, env.runs.runs["run-2"].Rank, "other group still reconciled")
}

func TestBackfillRejectsNegativePageSize(t *testing.T) {
	env := newTestEnv(nil)
	handler := NewBackfillHandler(env.rec, 100)

	result, err := handler.Handle(context.Background(), BackfillCommand{PageSize: -1})

	assert.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestBackfillEmptyCorpus(t *testing.T) {
	env := newTestEnv(nil)
	handler := NewBackfillHandler(env.rec, 100)

	result, err := handler.Handle(context.Background(), BackfillCommand{})

	assert.NoError(t, err)
	assert.Zero(t, result.RunsScanned)
	assert.Zero(t, result.GroupsProcessed)
}
