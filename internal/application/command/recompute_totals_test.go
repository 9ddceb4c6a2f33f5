package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/runhub/run-community-hub/internal/domain/run"
)

func TestRecomputeTotalsFromScratch(t *testing.T) {
	owner := testPlayer("acct-1", "Speedy")
	owner.CachedTotalPoints = 9999 // garbage: must be overwritten, not adjusted
	owner.CachedTotalRuns = 42

	first := testRun("run-1", "00:08:00", "acct-1", "Speedy")
	unlinked := testRun("run-2", "00:09:00", "unlinked_abcdef0123456789", "Speedy")
	unlinked.CategoryRef = "cat-glitchless"
	other := testRun("run-3", "00:07:00", "imported", "SomeoneElse")

	env := newTestEnv([]*run.Run{first, unlinked, other}, owner)
	handler := NewRecomputeTotalsHandler(env.rec)

	result, err := handler.Handle(context.Background(), RecomputeTotalsCommand{AccountID: "acct-1"})

	assert.NoError(t, err)
	// Two groups, both with a single eligible run: 110 each.
	assert.Equal(t, 220.0, result.Totals.Points)
	assert.Equal(t, 2, result.Totals.Runs)
	assert.Equal(t, 220.0, env.players.players["acct-1"].CachedTotalPoints)
}

func TestRecomputeTotalsIdempotent(t *testing.T) {
	owner := testPlayer("acct-1", "Speedy")
	env := newTestEnv([]*run.Run{
		testRun("run-1", "00:08:00", "acct-1", "Speedy"),
	}, owner)
	handler := NewRecomputeTotalsHandler(env.rec)

	first, err := handler.Handle(context.Background(), RecomputeTotalsCommand{AccountID: "acct-1"})
	assert.NoError(t, err)
	second, err := handler.Handle(context.Background(), RecomputeTotalsCommand{AccountID: "acct-1"})
	assert.NoError(t, err)

	assert.Equal(t, first.Totals, second.Totals, "running twice must not change the result")
	assert.Equal(t, 110.0, env.players.players["acct-1"].CachedTotalPoints)
}

// A run gathered through both the ownership index and the name index must
// count exactly once.
func TestRecomputeTotalsNoDoubleCount(t *testing.T) {
	owner := testPlayer("acct-1", "Speedy")
	linked := testRun("run-1", "00:08:00", "acct-1", "Speedy") // owned AND name-matched

	env := newTestEnv([]*run.Run{linked}, owner)
	handler := NewRecomputeTotalsHandler(env.rec)

	result, err := handler.Handle(context.Background(), RecomputeTotalsCommand{AccountID: "acct-1"})

	assert.NoError(t, err)
	assert.Equal(t, 1, result.Totals.Runs)
	assert.Equal(t, 110.0, result.Totals.Points)
}

// Co-op points arrive pre-split: each side credits the derived share as-is.
func TestRecomputeTotalsCoOpShares(t *testing.T) {
	primary := testPlayer("acct-1", "Speedy")
	partner := testPlayer("acct-2", "Wingman")

	coop := testRun("run-1", "00:08:00", "acct-1", "Speedy")
	coop.Mode = run.ModeCoOp
	coop.CoOwnerDisplayName = "Wingman"

	env := newTestEnv([]*run.Run{coop}, primary, partner)
	handler := NewRecomputeTotalsHandler(env.rec)

	first, err := handler.Handle(context.Background(), RecomputeTotalsCommand{AccountID: "acct-1"})
	assert.NoError(t, err)
	second, err := handler.Handle(context.Background(), RecomputeTotalsCommand{AccountID: "acct-2"})
	assert.NoError(t, err)

	assert.Equal(t, 55.0, first.Totals.Points, "(10+100)/2 half share, never split again")
	assert.Equal(t, 55.0, second.Totals.Points, "secondary slot earns the same pre-split share")
	assert.Equal(t, 1, first.Totals.Runs)
	assert.Equal(t, 1, second.Totals.Runs)
}

// Obsolete runs keep their base points in the totals even though they hold
// no rank.
func TestRecomputeTotalsIncludesObsolete(t *testing.T) {
	owner := testPlayer("acct-1", "Speedy")
	current := testRun("run-1", "00:09:00", "acct-1", "Speedy")
	retired := testRun("run-2", "00:08:00", "acct-1", "Speedy")
	retired.Obsolete = true

	env := newTestEnv([]*run.Run{current, retired}, owner)
	handler := NewRecomputeTotalsHandler(env.rec)

	result, err := handler.Handle(context.Background(), RecomputeTotalsCommand{AccountID: "acct-1"})

	assert.NoError(t, err)
	assert.Equal(t, 120.0, result.Totals.Points, "110 ranked + 10 obsolete base")
	assert.Equal(t, 2, result.Totals.Runs)
}

// Unverified runs never contribute.
func TestRecomputeTotalsSkipsUnverified(t *testing.T) {
	owner := testPlayer("acct-1", "Speedy")
	pending := testRun("run-1", "00:08:00", "acct-1", "Speedy")
	pending.Verified = false

	env := newTestEnv([]*run.Run{pending}, owner)
	handler := NewRecomputeTotalsHandler(env.rec)

	result, err := handler.Handle(context.Background(), RecomputeTotalsCommand{AccountID: "acct-1"})

	assert.NoError(t, err)
	assert.Zero(t, result.Totals.Points)
	assert.Zero(t, result.Totals.Runs)
}

// A permission-denied totals write retries exactly once as a merge upsert.
func TestRecomputeTotalsPermissionDeniedFallsBackToMerge(t *testing.T) {
	owner := testPlayer("acct-1", "Speedy")
	env := newTestEnv([]*run.Run{
		testRun("run-1", "00:08:00", "acct-1", "Speedy"),
	}, owner)
	env.players.denyUpdate["acct-1"] = true
	handler := NewRecomputeTotalsHandler(env.rec)

	result, err := handler.Handle(context.Background(), RecomputeTotalsCommand{AccountID: "acct-1"})

	assert.NoError(t, err)
	assert.Equal(t, 110.0, result.Totals.Points)
	assert.Equal(t, 1, env.players.merged["acct-1"], "fallback path merges exactly once")
	assert.Zero(t, env.players.updated["acct-1"])
	assert.Equal(t, 110.0, env.players.players["acct-1"].CachedTotalPoints)
}

// A run linked to a different account must not leak into a name-matching
// player's totals through the primary slot.
func TestRecomputeTotalsRespectsForeignOwnership(t *testing.T) {
	impostor := testPlayer("acct-2", "Speedy")
	linked := testRun("run-1", "00:08:00", "acct-1", "Speedy")

	env := newTestEnv([]*run.Run{linked}, impostor)
	handler := NewRecomputeTotalsHandler(env.rec)

	result, err := handler.Handle(context.Background(), RecomputeTotalsCommand{AccountID: "acct-2"})

	assert.NoError(t, err)
	assert.Zero(t, result.Totals.Runs)
}
