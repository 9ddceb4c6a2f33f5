package board

import (
	"context"

	"github.com/runhub/run-community-hub/internal/domain/run"
	"github.com/runhub/run-community-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GROUP CALCULATOR
// ══════════════════════════════════════════════════════════════════════════════

// Field names written back to run documents during reconciliation.
const (
	FieldRank     = "rank"
	FieldPoints   = "points"
	FieldOwnerRef = "owner_ref"
)

// NameLookup resolves registry refs to display names. Unknown refs resolve
// to the empty string, never an error: imported runs carry fallback names.
type NameLookup interface {
	CategoryName(ctx context.Context, ref string) string
	PlatformName(ctx context.Context, ref string) string
	LevelName(ctx context.Context, ref string) string
}

// Desired is the rank/points pair a run document should carry after
// reconciliation.
type Desired struct {
	Rank   int
	Points float64
}

// GroupState is the fully computed state of one comparison group: the
// merged run pool, the standings, and the desired rank/points per run.
type GroupState struct {
	Key       run.GroupKey
	Pool      []*run.Run
	Standings *Standings
	Desired   map[string]Desired
}

// Diff compares the desired state against what each pooled run currently
// carries and returns the minimal set of field updates. Unchanged runs
// produce no update.
func (g *GroupState) Diff() []shared.FieldUpdate {
	var updates []shared.FieldUpdate
	for _, r := range g.Pool {
		want, ok := g.Desired[r.ID]
		if !ok {
			continue
		}
		fields := make(map[string]interface{})
		if r.Rank != want.Rank {
			if want.Rank == 0 {
				fields[FieldRank] = nil
			} else {
				fields[FieldRank] = want.Rank
			}
		}
		if r.Points != want.Points {
			fields[FieldPoints] = want.Points
		}
		if len(fields) > 0 {
			updates = append(updates, shared.FieldUpdate{TargetID: r.ID, Fields: fields})
		}
	}
	return updates
}

// Calculator computes group standings and desired run state. It is the
// read-modify core of every reconciliation: load the group, merge the
// in-flight overlay over possibly stale stored copies, rank, derive points.
type Calculator struct {
	runs       run.Repository
	deriver    PointsDeriver
	names      NameLookup
	fetchLimit int
}

// NewCalculator creates a calculator. fetchLimit bounds how many stored
// runs a single group load may return; zero means the repository default.
func NewCalculator(runs run.Repository, deriver PointsDeriver, names NameLookup, fetchLimit int) *Calculator {
	return &Calculator{
		runs:       runs,
		deriver:    deriver,
		names:      names,
		fetchLimit: fetchLimit,
	}
}

// ComputeGroup loads a comparison group and computes its full state.
// overlay, when non-nil, is the authoritative copy of an in-flight write:
// it replaces any stored run with the same id and joins the pool only if
// it still belongs to this group.
func (c *Calculator) ComputeGroup(ctx context.Context, key run.GroupKey, overlay *run.Run) (*GroupState, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	candidates, err := c.runs.ListGroup(ctx, key, run.DefaultListOptions().WithLimit(c.fetchLimit))
	if err != nil {
		return nil, shared.WrapError("board", "ComputeGroup", shared.ErrExternalService,
			"loading group runs", err)
	}

	pool := make([]*run.Run, 0, len(candidates)+1)
	for _, r := range candidates {
		if overlay != nil && r.ID == overlay.ID {
			continue
		}
		pool = append(pool, r)
	}
	if overlay != nil && overlay.GroupKey() == key {
		pool = append(pool, overlay)
	}

	return c.computeState(ctx, key, pool)
}

// ComputePool computes group state over an already loaded pool. Backfill
// uses this after grouping the full corpus in memory.
func (c *Calculator) ComputePool(ctx context.Context, key run.GroupKey, pool []*run.Run) (*GroupState, error) {
	return c.computeState(ctx, key, pool)
}

func (c *Calculator) computeState(ctx context.Context, key run.GroupKey, pool []*run.Run) (*GroupState, error) {
	standings := Rank(key, pool, nil)

	// Registry refs are fixed per group; resolve names once.
	categoryName := c.names.CategoryName(ctx, key.CategoryRef)
	platformName := c.names.PlatformName(ctx, key.PlatformRef)
	levelName := c.names.LevelName(ctx, key.LevelRef)

	desired := make(map[string]Desired, len(pool))
	for _, r := range pool {
		if !r.Verified {
			// Unverified runs carry neither rank nor points.
			desired[r.ID] = Desired{}
			continue
		}

		position := standings.PositionOf(r.ID)
		timeMillis, err := r.TimeKey()
		if err != nil {
			// Unparseable time: rankless, and points derive from a
			// zero duration.
			timeMillis = 0
		}

		points, err := c.deriver.Derive(ctx, PointsInput{
			Position:     position,
			TimeMillis:   timeMillis,
			BoardKind:    r.BoardKind,
			Mode:         r.Mode,
			CategoryName: FallbackName(categoryName, r.CategoryName),
			PlatformName: FallbackName(platformName, r.PlatformName),
			LevelName:    levelName,
			Obsolete:     r.Obsolete,
		})
		if err != nil {
			return nil, shared.WrapError("board", "ComputeGroup", shared.ErrExternalService,
				"deriving points for run "+r.ID, err)
		}

		rank := 0
		if position > 0 && position <= run.RankCeiling {
			rank = position
		}
		desired[r.ID] = Desired{Rank: rank, Points: points}
	}

	return &GroupState{
		Key:       key,
		Pool:      pool,
		Standings: standings,
		Desired:   desired,
	}, nil
}
