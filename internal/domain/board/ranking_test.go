package board

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/runhub/run-community-hub/internal/domain/run"
)

func groupKey() run.GroupKey {
	return run.GroupKey{
		BoardKind:   run.BoardRegular,
		CategoryRef: "cat-anypercent",
		PlatformRef: "plat-pc",
		Mode:        run.ModeSolo,
	}
}

func groupRun(id, clock string) *run.Run {
	return &run.Run{
		ID:               id,
		OwnerDisplayName: "Runner-" + id,
		BoardKind:        run.BoardRegular,
		CategoryRef:      "cat-anypercent",
		PlatformRef:      "plat-pc",
		Mode:             run.ModeSolo,
		Time:             clock,
		Verified:         true,
	}
}

func TestRankOrdersByTimeAscending(t *testing.T) {
	candidates := []*run.Run{
		groupRun("run-b", "00:09:30"),
		groupRun("run-a", "00:09:00"),
		groupRun("run-c", "00:10:00"),
	}

	standings := Rank(groupKey(), candidates, nil)

	assert.Len(t, standings.Ranked, 3)
	assert.Equal(t, "run-a", standings.Ranked[0].Run.ID)
	assert.Equal(t, "run-b", standings.Ranked[1].Run.ID)
	assert.Equal(t, "run-c", standings.Ranked[2].Run.ID)
	assert.Equal(t, 1, standings.Ranked[0].Position)
	assert.Equal(t, 2, standings.Ranked[1].Position)
	assert.Equal(t, 3, standings.Ranked[2].Position)
}

func TestRankTiesBreakByID(t *testing.T) {
	candidates := []*run.Run{
		groupRun("run-b", "00:09:00"),
		groupRun("run-a", "00:09:00"),
	}

	standings := Rank(groupKey(), candidates, nil)

	assert.Equal(t, "run-a", standings.Ranked[0].Run.ID)
	assert.Equal(t, "run-b", standings.Ranked[1].Run.ID)
}

func TestRankFiltersIneligible(t *testing.T) {
	unverified := groupRun("run-u", "00:01:00")
	unverified.Verified = false
	obsolete := groupRun("run-o", "00:01:30")
	obsolete.Obsolete = true

	standings := Rank(groupKey(), []*run.Run{
		unverified,
		obsolete,
		groupRun("run-a", "00:09:00"),
	}, nil)

	assert.Len(t, standings.Ranked, 1)
	assert.Equal(t, "run-a", standings.Ranked[0].Run.ID)
	assert.Equal(t, 1, standings.Ranked[0].Position)
}

func TestRankExcludesUnparseableTime(t *testing.T) {
	broken := groupRun("run-x", "not-a-time")

	standings := Rank(groupKey(), []*run.Run{
		broken,
		groupRun("run-a", "00:09:00"),
	}, nil)

	assert.Len(t, standings.Ranked, 1)
	assert.Len(t, standings.Excluded, 1)
	assert.Equal(t, "run-x", standings.Excluded[0].ID)
	assert.Zero(t, standings.PositionOf("run-x"))
}

// The overlay masks store read-lag: a freshly verified run must rank
// immediately even while the stored copy still reads as unverified.
func TestRankOverlayReplacesStaleStoredCopy(t *testing.T) {
	staleR1 := groupRun("run-1", "00:10:00")
	staleR1.Verified = false
	r2 := groupRun("run-2", "00:09:00")
	r3 := groupRun("run-3", "00:09:30")

	freshR1 := groupRun("run-1", "00:08:00")

	standings := Rank(groupKey(), []*run.Run{staleR1, r2, r3}, freshR1)

	assert.Equal(t, 1, standings.PositionOf("run-1"))
	assert.Equal(t, 2, standings.PositionOf("run-2"))
	assert.Equal(t, 3, standings.PositionOf("run-3"))
}

// An overlay that no longer belongs to the group (edited away, or freshly
// unverified) must drop its stale stored copy without rejoining the pool.
func TestRankOverlayRemovesRunLeavingGroup(t *testing.T) {
	staleR1 := groupRun("run-1", "00:08:00")
	r2 := groupRun("run-2", "00:09:00")

	movedR1 := groupRun("run-1", "00:08:00")
	movedR1.CategoryRef = "cat-glitchless"

	standings := Rank(groupKey(), []*run.Run{staleR1, r2}, movedR1)

	assert.Zero(t, standings.PositionOf("run-1"))
	assert.Equal(t, 1, standings.PositionOf("run-2"))
}

func TestRankOverlayUnverifiedExcluded(t *testing.T) {
	staleR1 := groupRun("run-1", "00:08:00")
	r2 := groupRun("run-2", "00:09:00")

	unverifiedR1 := groupRun("run-1", "00:08:00")
	unverifiedR1.Verified = false

	standings := Rank(groupKey(), []*run.Run{staleR1, r2}, unverifiedR1)

	assert.Zero(t, standings.PositionOf("run-1"))
	assert.Equal(t, 1, standings.PositionOf("run-2"))
}

func TestPersistedRankCeiling(t *testing.T) {
	candidates := []*run.Run{
		groupRun("run-1", "00:01:00"),
		groupRun("run-2", "00:02:00"),
		groupRun("run-3", "00:03:00"),
		groupRun("run-4", "00:04:00"),
		groupRun("run-5", "00:05:00"),
	}

	standings := Rank(groupKey(), candidates, nil)

	assert.Equal(t, 1, standings.Ranked[0].PersistedRank())
	assert.Equal(t, 3, standings.Ranked[2].PersistedRank())
	assert.Zero(t, standings.Ranked[3].PersistedRank(), "position 4 must not be persisted")
	assert.Zero(t, standings.Ranked[4].PersistedRank())
}

func TestRankEmptyGroup(t *testing.T) {
	standings := Rank(groupKey(), nil, nil)
	assert.Empty(t, standings.Ranked)
	assert.Empty(t, standings.Excluded)
}
