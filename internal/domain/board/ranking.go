// Package board contains the ranking core: ordering a comparison group's
// runs into dense positions and deriving per-run points.
package board

import (
	"sort"

	"github.com/runhub/run-community-hub/internal/domain/run"
)

// ══════════════════════════════════════════════════════════════════════════════
// RANKING
// ══════════════════════════════════════════════════════════════════════════════

// RankedRun pairs a run with its computed position in the group.
type RankedRun struct {
	Run *run.Run

	// Position is 1-based and dense. It is the computed position;
	// whether it gets persisted on the run document is a separate
	// decision gated by run.RankCeiling.
	Position int

	// TimeKey is the parsed millisecond key used for ordering.
	TimeKey int64
}

// PersistedRank returns the rank value to store on the run document:
// the position when it is within the ceiling, zero otherwise.
func (r RankedRun) PersistedRank() int {
	if r.Position <= run.RankCeiling {
		return r.Position
	}
	return 0
}

// Standings is the computed order of one comparison group.
type Standings struct {
	Key    run.GroupKey
	Ranked []RankedRun

	// Excluded are runs that could not be ordered (unparseable time).
	// They keep no rank and earn rankless points.
	Excluded []*run.Run
}

// PositionOf returns the computed position for a run id, or zero when the
// run is not ranked in this group.
func (s *Standings) PositionOf(runID string) int {
	for _, rr := range s.Ranked {
		if rr.Run.ID == runID {
			return rr.Position
		}
	}
	return 0
}

// Rank orders a comparison group. candidates are the stored runs of the
// group; overlay, when non-nil, is an in-flight write whose stored copy may
// be stale, so any candidate with the overlay's id is replaced by the
// overlay, and the overlay itself participates only if it still belongs to
// the group and is eligible. Eligible runs are sorted by ascending parsed
// time, ties broken by run id, and given dense 1-based positions.
func Rank(key run.GroupKey, candidates []*run.Run, overlay *run.Run) *Standings {
	standings := &Standings{Key: key}

	pool := make([]*run.Run, 0, len(candidates)+1)
	for _, c := range candidates {
		if overlay != nil && c.ID == overlay.ID {
			continue
		}
		pool = append(pool, c)
	}
	if overlay != nil && overlay.GroupKey() == key {
		pool = append(pool, overlay)
	}

	ranked := make([]RankedRun, 0, len(pool))
	for _, r := range pool {
		if !r.RankEligible() {
			continue
		}
		timeKey, err := r.TimeKey()
		if err != nil {
			standings.Excluded = append(standings.Excluded, r)
			continue
		}
		ranked = append(ranked, RankedRun{Run: r, TimeKey: timeKey})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].TimeKey != ranked[j].TimeKey {
			return ranked[i].TimeKey < ranked[j].TimeKey
		}
		return ranked[i].Run.ID < ranked[j].Run.ID
	})

	for i := range ranked {
		ranked[i].Position = i + 1
	}
	standings.Ranked = ranked
	return standings
}
