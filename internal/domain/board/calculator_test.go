package board

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/runhub/run-community-hub/internal/domain/run"
	"github.com/runhub/run-community-hub/internal/domain/shared"
)

// ─────────────────────────────────────────────────────────────────────────────
// Test doubles
// ─────────────────────────────────────────────────────────────────────────────

type fakeRunRepo struct {
	runs []*run.Run
}

func (f *fakeRunRepo) GetByID(_ context.Context, id string) (*run.Run, error) {
	for _, r := range f.runs {
		if r.ID == id {
			return r.Clone(), nil
		}
	}
	return nil, shared.ErrRunNotFound
}

func (f *fakeRunRepo) ListGroup(_ context.Context, key run.GroupKey, _ run.ListOptions) ([]*run.Run, error) {
	var out []*run.Run
	for _, r := range f.runs {
		if r.Verified && r.GroupKey() == key {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (f *fakeRunRepo) ListByOwner(_ context.Context, accountID string, _ run.ListOptions) ([]*run.Run, error) {
	var out []*run.Run
	for _, r := range f.runs {
		if r.Verified && r.OwnedBy(accountID) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (f *fakeRunRepo) ListByDisplayName(_ context.Context, normalized string, opts run.ListOptions) ([]*run.Run, error) {
	name := shared.DisplayName(normalized)
	var out []*run.Run
	for _, r := range f.runs {
		if !r.Verified && !opts.IncludeUnverified {
			continue
		}
		if r.PrimaryNameMatches(name) || r.SecondaryNameMatches(name) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (f *fakeRunRepo) ListVerified(_ context.Context, opts run.ListOptions) ([]*run.Run, error) {
	var out []*run.Run
	for _, r := range f.runs {
		if r.Verified && r.ID > opts.AfterID {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (f *fakeRunRepo) Insert(_ context.Context, r *run.Run) error {
	f.runs = append(f.runs, r.Clone())
	return nil
}

func (f *fakeRunRepo) Update(_ context.Context, updated *run.Run) error {
	for i, r := range f.runs {
		if r.ID == updated.ID {
			f.runs[i] = updated.Clone()
			return nil
		}
	}
	return shared.ErrRunNotFound
}

func (f *fakeRunRepo) Delete(_ context.Context, id string) error {
	for i, r := range f.runs {
		if r.ID == id {
			f.runs = append(f.runs[:i], f.runs[i+1:]...)
			return nil
		}
	}
	return shared.ErrRunNotFound
}

// testDeriver awards a flat base plus a podium bonus. Obsolete runs earn
// only the base.
func testDeriver() PointsDeriver {
	return DeriverFunc(func(_ context.Context, in PointsInput) (float64, error) {
		points := 10.0
		if in.Obsolete {
			return points, nil
		}
		switch in.Position {
		case 1:
			points += 100
		case 2:
			points += 50
		case 3:
			points += 25
		}
		return points, nil
	})
}

type staticNames struct{}

func (staticNames) CategoryName(_ context.Context, ref string) string {
	if ref == "cat-anypercent" {
		return "Any%"
	}
	return ""
}
func (staticNames) PlatformName(_ context.Context, _ string) string { return "" }
func (staticNames) LevelName(_ context.Context, _ string) string    { return "" }

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestComputeGroupWithOverlay(t *testing.T) {
	staleR1 := groupRun("run-1", "00:10:00")
	staleR1.Verified = false
	repo := &fakeRunRepo{runs: []*run.Run{
		staleR1,
		groupRun("run-2", "00:09:00"),
		groupRun("run-3", "00:09:30"),
	}}
	calc := NewCalculator(repo, testDeriver(), staticNames{}, 0)

	freshR1 := groupRun("run-1", "00:08:00")
	state, err := calc.ComputeGroup(context.Background(), groupKey(), freshR1)

	assert.NoError(t, err)
	assert.Equal(t, Desired{Rank: 1, Points: 110}, state.Desired["run-1"])
	assert.Equal(t, Desired{Rank: 2, Points: 60}, state.Desired["run-2"])
	assert.Equal(t, Desired{Rank: 3, Points: 35}, state.Desired["run-3"])
}

func TestComputeGroupObsoleteEarnsBaseOnly(t *testing.T) {
	obsolete := groupRun("run-o", "00:01:00")
	obsolete.Obsolete = true
	repo := &fakeRunRepo{runs: []*run.Run{
		obsolete,
		groupRun("run-a", "00:09:00"),
	}}
	calc := NewCalculator(repo, testDeriver(), staticNames{}, 0)

	state, err := calc.ComputeGroup(context.Background(), groupKey(), nil)

	assert.NoError(t, err)
	assert.Equal(t, Desired{Rank: 0, Points: 10}, state.Desired["run-o"],
		"obsolete run keeps base points but no rank despite its faster time")
	assert.Equal(t, Desired{Rank: 1, Points: 110}, state.Desired["run-a"])
}

func TestComputeGroupRankCeiling(t *testing.T) {
	repo := &fakeRunRepo{runs: []*run.Run{
		groupRun("run-1", "00:01:00"),
		groupRun("run-2", "00:02:00"),
		groupRun("run-3", "00:03:00"),
		groupRun("run-4", "00:04:00"),
	}}
	calc := NewCalculator(repo, testDeriver(), staticNames{}, 0)

	state, err := calc.ComputeGroup(context.Background(), groupKey(), nil)

	assert.NoError(t, err)
	assert.Equal(t, 3, state.Desired["run-3"].Rank)
	assert.Zero(t, state.Desired["run-4"].Rank, "position 4 stores no rank field")
	assert.Equal(t, 10.0, state.Desired["run-4"].Points)
}

func TestComputeGroupUnverifiedOverlayClearsState(t *testing.T) {
	stale := groupRun("run-1", "00:08:00")
	stale.Rank = 1
	stale.Points = 110
	repo := &fakeRunRepo{runs: []*run.Run{
		stale,
		groupRun("run-2", "00:09:00"),
	}}
	calc := NewCalculator(repo, testDeriver(), staticNames{}, 0)

	unverified := stale.Clone()
	unverified.Verified = false
	state, err := calc.ComputeGroup(context.Background(), groupKey(), unverified)

	assert.NoError(t, err)
	assert.Equal(t, Desired{}, state.Desired["run-1"])
	assert.Equal(t, Desired{Rank: 1, Points: 110}, state.Desired["run-2"],
		"runner-up inherits first place once the leader unverifies")
}

func TestGroupStateDiffMinimal(t *testing.T) {
	r1 := groupRun("run-1", "00:08:00")
	r1.Rank = 1
	r1.Points = 110
	r2 := groupRun("run-2", "00:09:00")
	r2.Rank = 1 // stale: should be 2
	r2.Points = 60

	repo := &fakeRunRepo{runs: []*run.Run{r1, r2}}
	calc := NewCalculator(repo, testDeriver(), staticNames{}, 0)

	state, err := calc.ComputeGroup(context.Background(), groupKey(), nil)
	assert.NoError(t, err)

	updates := state.Diff()
	assert.Len(t, updates, 1, "run-1 is already correct, only run-2 needs a write")
	assert.Equal(t, "run-2", updates[0].TargetID)
	assert.Equal(t, 2, updates[0].Fields[FieldRank])
	_, pointsTouched := updates[0].Fields[FieldPoints]
	assert.False(t, pointsTouched)
}

func TestGroupStateDiffClearsRankField(t *testing.T) {
	r1 := groupRun("run-1", "00:04:00")
	r1.Rank = 3 // group grew; this run fell to position 4
	r1.Points = 10
	repo := &fakeRunRepo{runs: []*run.Run{
		r1,
		groupRun("run-a", "00:01:00"),
		groupRun("run-b", "00:02:00"),
		groupRun("run-c", "00:03:00"),
	}}
	calc := NewCalculator(repo, testDeriver(), staticNames{}, 0)

	state, err := calc.ComputeGroup(context.Background(), groupKey(), nil)
	assert.NoError(t, err)

	var update *shared.FieldUpdate
	for _, u := range state.Diff() {
		if u.TargetID == "run-1" {
			u := u
			update = &u
		}
	}
	assert.NotNil(t, update)
	val, ok := update.Fields[FieldRank]
	assert.True(t, ok)
	assert.Nil(t, val, "rank clears by writing nil, not zero")
}
