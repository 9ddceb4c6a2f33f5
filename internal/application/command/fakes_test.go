package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/runhub/run-community-hub/internal/domain/board"
	"github.com/runhub/run-community-hub/internal/domain/player"
	"github.com/runhub/run-community-hub/internal/domain/run"
	"github.com/runhub/run-community-hub/internal/domain/shared"
	"github.com/runhub/run-community-hub/pkg/logger"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fake run store. With stale=true, writes land in a pending set that reads
// do not serve, simulating the store's read lag after a write.
// ─────────────────────────────────────────────────────────────────────────────

type fakeRunRepo struct {
	runs    map[string]*run.Run
	pending map[string]*run.Run
	stale   bool
}

func newFakeRunRepo(runs ...*run.Run) *fakeRunRepo {
	repo := &fakeRunRepo{
		runs:    make(map[string]*run.Run),
		pending: make(map[string]*run.Run),
	}
	for _, r := range runs {
		repo.runs[r.ID] = r.Clone()
	}
	return repo
}

// flush makes pending writes visible, ending the simulated read lag.
func (f *fakeRunRepo) flush() {
	for id, r := range f.pending {
		f.runs[id] = r
	}
	f.pending = make(map[string]*run.Run)
}

func (f *fakeRunRepo) visible() []*run.Run {
	out := make([]*run.Run, 0, len(f.runs))
	for _, r := range f.runs {
		out = append(out, r.Clone())
	}
	return out
}

func (f *fakeRunRepo) GetByID(_ context.Context, id string) (*run.Run, error) {
	if r, ok := f.runs[id]; ok {
		return r.Clone(), nil
	}
	return nil, shared.ErrRunNotFound
}

func (f *fakeRunRepo) ListGroup(_ context.Context, key run.GroupKey, _ run.ListOptions) ([]*run.Run, error) {
	var out []*run.Run
	for _, r := range f.visible() {
		if r.Verified && r.GroupKey() == key {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRunRepo) ListByOwner(_ context.Context, accountID string, _ run.ListOptions) ([]*run.Run, error) {
	var out []*run.Run
	for _, r := range f.visible() {
		if r.Verified && r.OwnedBy(accountID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRunRepo) ListByDisplayName(_ context.Context, normalized string, opts run.ListOptions) ([]*run.Run, error) {
	name := shared.DisplayName(normalized)
	var out []*run.Run
	for _, r := range f.visible() {
		if !r.Verified && !opts.IncludeUnverified {
			continue
		}
		if r.PrimaryNameMatches(name) || r.SecondaryNameMatches(name) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRunRepo) ListVerified(_ context.Context, opts run.ListOptions) ([]*run.Run, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 1000
	}
	var out []*run.Run
	for _, r := range f.visible() {
		if r.Verified && r.ID > opts.AfterID {
			out = append(out, r)
		}
	}
	// Stable cursor order.
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].ID < out[i].ID {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRunRepo) Insert(_ context.Context, r *run.Run) error {
	if _, ok := f.runs[r.ID]; ok {
		return shared.ErrRunAlreadyExists
	}
	f.runs[r.ID] = r.Clone()
	return nil
}

func (f *fakeRunRepo) Update(_ context.Context, r *run.Run) error {
	if _, ok := f.runs[r.ID]; !ok {
		return shared.ErrRunNotFound
	}
	if f.stale {
		f.pending[r.ID] = r.Clone()
		return nil
	}
	f.runs[r.ID] = r.Clone()
	return nil
}

func (f *fakeRunRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.runs[id]; !ok {
		return shared.ErrRunNotFound
	}
	delete(f.runs, id)
	delete(f.pending, id)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Fake player store
// ─────────────────────────────────────────────────────────────────────────────

type fakePlayerRepo struct {
	players    map[string]*player.Player
	denyUpdate map[string]bool
	merged     map[string]int
	updated    map[string]int
}

func newFakePlayerRepo(players ...*player.Player) *fakePlayerRepo {
	repo := &fakePlayerRepo{
		players:    make(map[string]*player.Player),
		denyUpdate: make(map[string]bool),
		merged:     make(map[string]int),
		updated:    make(map[string]int),
	}
	for _, p := range players {
		copied := *p
		repo.players[p.ID] = &copied
	}
	return repo
}

func (f *fakePlayerRepo) Create(_ context.Context, p *player.Player) error {
	if _, ok := f.players[p.ID]; ok {
		return shared.ErrPlayerAlreadyExists
	}
	copied := *p
	f.players[p.ID] = &copied
	return nil
}

func (f *fakePlayerRepo) GetByID(_ context.Context, id string) (*player.Player, error) {
	if p, ok := f.players[id]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, shared.ErrPlayerNotFound
}

func (f *fakePlayerRepo) GetByDisplayName(_ context.Context, name shared.DisplayName) (*player.Player, error) {
	for _, p := range f.players {
		if p.DisplayName.Matches(name) {
			copied := *p
			return &copied, nil
		}
	}
	return nil, shared.ErrPlayerNotFound
}

func (f *fakePlayerRepo) Update(_ context.Context, p *player.Player) error {
	if _, ok := f.players[p.ID]; !ok {
		return shared.ErrPlayerNotFound
	}
	copied := *p
	f.players[p.ID] = &copied
	return nil
}

func (f *fakePlayerRepo) UpdateTotals(_ context.Context, id string, totals player.Totals) error {
	if f.denyUpdate[id] {
		return shared.ErrPermissionDenied
	}
	p, ok := f.players[id]
	if !ok {
		return shared.ErrPlayerNotFound
	}
	p.ApplyTotals(totals)
	f.updated[id]++
	return nil
}

func (f *fakePlayerRepo) MergeTotals(_ context.Context, id string, totals player.Totals) error {
	p, ok := f.players[id]
	if !ok {
		p = &player.Player{ID: id}
		f.players[id] = p
	}
	p.ApplyTotals(totals)
	f.merged[id]++
	return nil
}

func (f *fakePlayerRepo) GetByIDs(_ context.Context, ids []string) ([]*player.Player, error) {
	var out []*player.Player
	for _, id := range ids {
		if p, ok := f.players[id]; ok {
			copied := *p
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakePlayerRepo) Count(_ context.Context) (int, error) {
	return len(f.players), nil
}

// fakeResolver resolves display names against the fake player store.
type fakeResolver struct {
	repo *fakePlayerRepo
}

func (f *fakeResolver) ResolveName(ctx context.Context, name shared.DisplayName) (*player.Player, error) {
	p, err := f.repo.GetByDisplayName(ctx, name)
	if shared.IsNotFound(err) {
		return nil, nil
	}
	return p, err
}

// ─────────────────────────────────────────────────────────────────────────────
// Fake batch writer: applies run field updates directly to the fake store,
// bypassing the staleness simulation (batched writes are the reconciled
// output, not the triggering write).
// ─────────────────────────────────────────────────────────────────────────────

type fakeBatch struct {
	runs    *fakeRunRepo
	failIDs map[string]bool
	applied int
}

func newFakeBatch(runs *fakeRunRepo) *fakeBatch {
	return &fakeBatch{runs: runs, failIDs: make(map[string]bool)}
}

func (b *fakeBatch) ApplyUpdates(_ context.Context, collection string, updates []shared.FieldUpdate) shared.BatchResult {
	result := shared.BatchResult{Attempted: len(updates)}
	if collection != shared.CollectionRuns {
		result.Errors = append(result.Errors, fmt.Errorf("unexpected collection %s", collection))
		return result
	}
	for _, u := range updates {
		if b.failIDs[u.TargetID] {
			result.Errors = append(result.Errors, fmt.Errorf("write to %s failed", u.TargetID))
			continue
		}
		target, ok := b.runs.runs[u.TargetID]
		if !ok {
			result.Errors = append(result.Errors, fmt.Errorf("document %s missing", u.TargetID))
			continue
		}
		for field, value := range u.Fields {
			switch field {
			case board.FieldRank:
				if value == nil {
					target.Rank = 0
				} else {
					target.Rank = value.(int)
				}
			case board.FieldPoints:
				target.Points = value.(float64)
			case board.FieldOwnerRef:
				target.Owner = run.ParseOwnerRef(value.(string))
			}
		}
		b.applied++
		result.Committed++
	}
	return result
}

// fakePublisher records published events.
type fakePublisher struct {
	events []shared.Event
	fail   bool
}

func (f *fakePublisher) Publish(event shared.Event) error {
	if f.fail {
		return errors.New("bus down")
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) byType(t shared.EventType) []shared.Event {
	var out []shared.Event
	for _, e := range f.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Environment wiring
// ─────────────────────────────────────────────────────────────────────────────

// testDeriver awards 10 base points plus a 100/50/25 podium bonus.
// Obsolete runs earn the base only. Co-op runs earn half shares.
func testDeriver() board.PointsDeriver {
	return board.DeriverFunc(func(_ context.Context, in board.PointsInput) (float64, error) {
		points := 10.0
		if !in.Obsolete {
			switch in.Position {
			case 1:
				points += 100
			case 2:
				points += 50
			case 3:
				points += 25
			}
		}
		if in.Mode == run.ModeCoOp {
			points /= 2
		}
		return points, nil
	})
}

type noNames struct{}

func (noNames) CategoryName(context.Context, string) string { return "" }
func (noNames) PlatformName(context.Context, string) string { return "" }
func (noNames) LevelName(context.Context, string) string    { return "" }

type testEnv struct {
	runs    *fakeRunRepo
	players *fakePlayerRepo
	batch   *fakeBatch
	bus     *fakePublisher
	rec     *Reconciler
}

func newTestEnv(runs []*run.Run, players ...*player.Player) *testEnv {
	runRepo := newFakeRunRepo(runs...)
	playerRepo := newFakePlayerRepo(players...)
	batch := newFakeBatch(runRepo)
	bus := &fakePublisher{}
	calc := board.NewCalculator(runRepo, testDeriver(), noNames{}, 0)
	log := logger.New(logger.Options{Output: io.Discard, Level: logger.LevelFatal})

	rec := NewReconciler(runRepo, playerRepo, &fakeResolver{repo: playerRepo}, calc, batch, bus, log)
	return &testEnv{runs: runRepo, players: playerRepo, batch: batch, bus: bus, rec: rec}
}

// ─────────────────────────────────────────────────────────────────────────────
// Builders
// ─────────────────────────────────────────────────────────────────────────────

func testRun(id, clock, ownerRef, ownerName string) *run.Run {
	return &run.Run{
		ID:               id,
		Owner:            run.ParseOwnerRef(ownerRef),
		OwnerDisplayName: ownerName,
		BoardKind:        run.BoardRegular,
		CategoryRef:      "cat-anypercent",
		PlatformRef:      "plat-pc",
		Mode:             run.ModeSolo,
		Time:             clock,
		SubmittedDate:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Verified:         true,
	}
}

func testPlayer(id, name string) *player.Player {
	return &player.Player{ID: id, DisplayName: shared.DisplayName(name)}
}
