package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/runhub/run-community-hub/internal/domain/run"
	"github.com/runhub/run-community-hub/internal/domain/shared"
)

func strPtr(s string) *string { return &s }

func TestEditRunReordersWithinGroup(t *testing.T) {
	first := testRun("run-1", "00:08:00", "imported", "Speedy")
	first.Rank = 1
	first.Points = 110
	second := testRun("run-2", "00:09:00", "imported", "Rival")
	second.Rank = 2
	second.Points = 60

	env := newTestEnv([]*run.Run{first, second})
	env.runs.stale = true
	handler := NewEditRunHandler(env.rec)

	result, err := handler.Handle(context.Background(), EditRunCommand{
		RunID:       "run-1",
		ModeratorID: "mod-1",
		Time:        strPtr("00:09:45"),
	})

	assert.NoError(t, err)
	assert.False(t, result.GroupMoved)
	assert.Equal(t, 2, result.Rank, "slowed run drops behind its rival")
	assert.Equal(t, 60.0, result.Points)
	assert.Equal(t, 1, env.runs.runs["run-2"].Rank)
	assert.Len(t, env.bus.byType(shared.EventRunEdited), 1)
}

func TestEditRunMovesBetweenGroups(t *testing.T) {
	moving := testRun("run-1", "00:08:00", "imported", "Speedy")
	moving.Rank = 1
	moving.Points = 110
	oldRival := testRun("run-2", "00:09:00", "imported", "Rival")
	oldRival.Rank = 2
	oldRival.Points = 60
	newRival := testRun("run-3", "00:07:00", "imported", "Other")
	newRival.CategoryRef = "cat-glitchless"
	newRival.Rank = 1
	newRival.Points = 110

	env := newTestEnv([]*run.Run{moving, oldRival, newRival})
	env.runs.stale = true
	handler := NewEditRunHandler(env.rec)

	result, err := handler.Handle(context.Background(), EditRunCommand{
		RunID:       "run-1",
		ModeratorID: "mod-1",
		CategoryRef: strPtr("cat-glitchless"),
	})

	assert.NoError(t, err)
	assert.True(t, result.GroupMoved)
	assert.NotEqual(t, result.OldGroupKey, result.NewGroupKey)
	assert.Equal(t, 2, result.Rank, "slower than the incumbent in the new group")
	assert.Equal(t, 1, env.runs.runs["run-2"].Rank, "old group closes the gap")
	assert.Equal(t, 110.0, env.runs.runs["run-2"].Points)
	assert.Equal(t, 1, env.runs.runs["run-3"].Rank, "incumbent keeps first place")
}

func TestEditRunNormalizesTime(t *testing.T) {
	target := testRun("run-1", "00:08:00", "imported", "Speedy")
	env := newTestEnv([]*run.Run{target})
	handler := NewEditRunHandler(env.rec)

	_, err := handler.Handle(context.Background(), EditRunCommand{
		RunID:       "run-1",
		ModeratorID: "mod-1",
		Time:        strPtr("7:30"),
	})

	assert.NoError(t, err)
	assert.Equal(t, "00:07:30", env.runs.runs["run-1"].Time)
}

func TestEditRunRejectsInvalidTime(t *testing.T) {
	target := testRun("run-1", "00:08:00", "imported", "Speedy")
	env := newTestEnv([]*run.Run{target})
	handler := NewEditRunHandler(env.rec)

	_, err := handler.Handle(context.Background(), EditRunCommand{
		RunID:       "run-1",
		ModeratorID: "mod-1",
		Time:        strPtr("99:99:99"),
	})

	assert.Error(t, err)
	assert.Equal(t, "00:08:00", env.runs.runs["run-1"].Time, "rejected edit leaves the run untouched")
}

func TestEditRunNoFields(t *testing.T) {
	env := newTestEnv(nil)
	handler := NewEditRunHandler(env.rec)

	_, err := handler.Handle(context.Background(), EditRunCommand{
		RunID: "run-1", ModeratorID: "mod-1",
	})
	assert.Error(t, err)
}

func TestToggleObsoleteRetiresRun(t *testing.T) {
	owner := testPlayer("acct-1", "Speedy")
	best := testRun("run-1", "00:08:00", "acct-1", "Speedy")
	best.Rank = 1
	best.Points = 110
	second := testRun("run-2", "00:09:00", "imported", "Rival")
	second.Rank = 2
	second.Points = 60
	owner.CachedTotalPoints = 110
	owner.CachedTotalRuns = 1

	env := newTestEnv([]*run.Run{best, second}, owner)
	env.runs.stale = true
	handler := NewToggleObsoleteHandler(env.rec)

	result, err := handler.Handle(context.Background(), ToggleObsoleteCommand{
		RunID: "run-1", ModeratorID: "mod-1", Obsolete: true,
	})

	assert.NoError(t, err)
	assert.True(t, result.Obsolete)
	assert.Zero(t, env.runs.runs["run-1"].Rank, "obsolete run leaves the standings")
	assert.Equal(t, 10.0, env.runs.runs["run-1"].Points, "but keeps its base points")
	assert.Equal(t, 1, env.runs.runs["run-2"].Rank)
	assert.Equal(t, 10.0, env.players.players["acct-1"].CachedTotalPoints)
	assert.Equal(t, 1, env.players.players["acct-1"].CachedTotalRuns,
		"the retired run still counts in the totals")
	assert.Len(t, env.bus.byType(shared.EventRunObsoleteToggle), 1)
}

func TestToggleObsoleteUnchanged(t *testing.T) {
	target := testRun("run-1", "00:08:00", "imported", "Speedy")
	env := newTestEnv([]*run.Run{target})
	handler := NewToggleObsoleteHandler(env.rec)

	result, err := handler.Handle(context.Background(), ToggleObsoleteCommand{
		RunID: "run-1", ModeratorID: "mod-1", Obsolete: false,
	})

	assert.NoError(t, err)
	assert.True(t, result.Unchanged)
	assert.Empty(t, env.bus.events)
}

func TestToggleObsoleteRestore(t *testing.T) {
	retired := testRun("run-1", "00:08:00", "imported", "Speedy")
	retired.Obsolete = true
	retired.Points = 10
	rival := testRun("run-2", "00:09:00", "imported", "Rival")
	rival.Rank = 1
	rival.Points = 110

	env := newTestEnv([]*run.Run{retired, rival})
	env.runs.stale = true
	handler := NewToggleObsoleteHandler(env.rec)

	result, err := handler.Handle(context.Background(), ToggleObsoleteCommand{
		RunID: "run-1", ModeratorID: "mod-1", Obsolete: false,
	})

	assert.NoError(t, err)
	assert.False(t, result.Obsolete)
	assert.Equal(t, 1, env.runs.runs["run-1"].Rank, "restored run rejoins the standings")
	assert.Equal(t, 110.0, env.runs.runs["run-1"].Points)
	assert.Equal(t, 2, env.runs.runs["run-2"].Rank)
}
