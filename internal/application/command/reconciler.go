// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"

	"github.com/runhub/run-community-hub/internal/domain/board"
	"github.com/runhub/run-community-hub/internal/domain/player"
	"github.com/runhub/run-community-hub/internal/domain/run"
	"github.com/runhub/run-community-hub/internal/domain/shared"
	"github.com/runhub/run-community-hub/pkg/logger"
	"github.com/runhub/run-community-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILER
// The shared core behind every moderation command: after any run mutation,
// re-rank the affected comparison group, persist the minimal diff, and
// rebuild the cached totals of every player the run attributes to.
// ══════════════════════════════════════════════════════════════════════════════

// Reconciler bundles the dependencies every reconciliation step needs.
type Reconciler struct {
	runs        run.Repository
	players     player.Repository
	resolver    player.LinkResolver
	calc        *board.Calculator
	batch       shared.BatchWriter
	publisher   shared.EventPublisher
	playerRetry *retry.Retrier
	log         *logger.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(
	runs run.Repository,
	players player.Repository,
	resolver player.LinkResolver,
	calc *board.Calculator,
	batch shared.BatchWriter,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *Reconciler {
	return &Reconciler{
		runs:        runs,
		players:     players,
		resolver:    resolver,
		calc:        calc,
		batch:       batch,
		publisher:   publisher,
		playerRetry: retry.PlayerWriteRetrier(),
		log:         log.With(logger.Component("reconciler")),
	}
}

// RerankGroup recomputes one comparison group and persists the minimal
// rank/points diff. overlay is the authoritative in-flight copy of the run
// that triggered the pass; it masks store read-lag. excludeID, when set,
// drops that run's own update from the diff (used after a hard delete,
// where the document no longer exists to write to).
func (r *Reconciler) RerankGroup(ctx context.Context, key run.GroupKey, overlay *run.Run, excludeID string) (*board.GroupState, int, error) {
	state, err := r.calc.ComputeGroup(ctx, key, overlay)
	if err != nil {
		return nil, 0, err
	}

	updates := state.Diff()
	if excludeID != "" {
		filtered := updates[:0]
		for _, u := range updates {
			if u.TargetID != excludeID {
				filtered = append(filtered, u)
			}
		}
		updates = filtered
	}
	if len(updates) == 0 {
		return state, 0, nil
	}

	result := r.batch.ApplyUpdates(ctx, shared.CollectionRuns, updates)
	for _, batchErr := range result.Errors {
		r.log.Error("group rerank chunk failed",
			logger.GroupKey(key.String()),
			logger.Err(batchErr),
		)
	}
	r.log.Info("group reranked",
		logger.GroupKey(key.String()),
		logger.Int("updates_committed", result.Committed),
		logger.Int("updates_attempted", result.Attempted),
	)

	r.publish(shared.NewRankChangedEvent(key.String(), result.Committed))
	return state, result.Committed, nil
}

// RecomputeTotals rebuilds one player's cached totals from scratch: gather
// every attributed run, re-derive each run's points through its group, sum,
// and overwrite the stored aggregates. The result does not depend on the
// previously stored totals, so running it twice is harmless.
func (r *Reconciler) RecomputeTotals(ctx context.Context, accountID string, overlay *run.Run) (player.Totals, error) {
	p, err := r.players.GetByID(ctx, accountID)
	if err != nil {
		return player.Totals{}, shared.WrapError("player", "RecomputeTotals", shared.ErrRecomputeFailed,
			"loading player "+accountID, err)
	}

	attributed, err := r.gatherAttributed(ctx, p, overlay)
	if err != nil {
		return player.Totals{}, err
	}

	// Rank each distinct group once; runs of the same group share the pass.
	states := make(map[string]*board.GroupState)
	totals := player.Totals{}
	for _, ar := range attributed {
		keyStr := ar.GroupKey().String()
		state, ok := states[keyStr]
		if !ok {
			state, err = r.calc.ComputeGroup(ctx, ar.GroupKey(), overlay)
			if err != nil {
				return player.Totals{}, shared.WrapError("player", "RecomputeTotals", shared.ErrRecomputeFailed,
					"ranking group "+keyStr, err)
			}
			states[keyStr] = state
		}

		points := ar.Points
		if want, ok := state.Desired[ar.ID]; ok {
			points = want.Points
		}
		// Co-op points arrive pre-split per owner: credit as-is.
		totals.Points += points
		totals.Runs++
	}

	if err := r.writeTotals(ctx, accountID, totals); err != nil {
		return player.Totals{}, err
	}

	r.log.Info("player totals recomputed",
		logger.PlayerID(accountID),
		logger.Points(totals.Points),
		logger.Int("total_runs", totals.Runs),
	)
	r.publish(shared.NewTotalsRecomputedEvent(accountID, totals.Points, totals.Runs))
	return totals, nil
}

// gatherAttributed collects the deduplicated set of verified runs that
// count toward the player's totals: runs linked to the account plus runs
// matching the display name in either slot.
func (r *Reconciler) gatherAttributed(ctx context.Context, p *player.Player, overlay *run.Run) ([]*run.Run, error) {
	owned, err := r.runs.ListByOwner(ctx, p.ID, run.DefaultListOptions())
	if err != nil {
		return nil, shared.WrapError("player", "RecomputeTotals", shared.ErrRecomputeFailed,
			"listing owned runs", err)
	}
	named, err := r.runs.ListByDisplayName(ctx, p.DisplayName.Normalized(), run.DefaultListOptions())
	if err != nil {
		return nil, shared.WrapError("player", "RecomputeTotals", shared.ErrRecomputeFailed,
			"listing name-matched runs", err)
	}

	byID := make(map[string]*run.Run, len(owned)+len(named))
	for _, candidate := range append(owned, named...) {
		byID[candidate.ID] = candidate
	}
	if overlay != nil {
		// The in-flight copy wins over whatever the store returned.
		byID[overlay.ID] = overlay
	}

	attributed := make([]*run.Run, 0, len(byID))
	for _, candidate := range byID {
		if candidate.Verified && candidate.AttributedTo(p.ID, p.DisplayName) {
			attributed = append(attributed, candidate)
		}
	}
	return attributed, nil
}

// writeTotals persists the aggregates. Player documents may carry a
// restrictive owner rule that rejects plain updates; a permission-denied
// write falls back to a single merge upsert.
func (r *Reconciler) writeTotals(ctx context.Context, accountID string, totals player.Totals) error {
	merge := false
	err := r.playerRetry.Do(ctx, func(ctx context.Context) error {
		if merge {
			return r.players.MergeTotals(ctx, accountID, totals)
		}
		if err := r.players.UpdateTotals(ctx, accountID, totals); err != nil {
			if shared.IsPermissionDenied(err) {
				merge = true
				r.log.Warn("totals update denied, retrying as merge",
					logger.PlayerID(accountID),
				)
				return retry.Retryable(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return shared.WrapError("player", "RecomputeTotals", shared.ErrRecomputeFailed,
			"writing totals for "+accountID, err)
	}
	return nil
}

// SideEffectRecompute runs a totals recompute triggered by another
// operation. Failures are logged and swallowed: a stale cached total is a
// display problem the next recompute fixes, never a reason to fail the
// moderation action that triggered it.
func (r *Reconciler) SideEffectRecompute(ctx context.Context, accountID, op string, overlay *run.Run) {
	if _, err := r.RecomputeTotals(ctx, accountID, overlay); err != nil {
		r.log.Warn("side-effect totals recompute failed",
			logger.PlayerID(accountID),
			logger.Operation(op),
			logger.Err(err),
		)
	}
}

// RecomputeForRun rebuilds totals for every account the run attributes to:
// its real owner, and for co-op runs the resolved partner account.
func (r *Reconciler) RecomputeForRun(ctx context.Context, mutated *run.Run, op string) {
	recomputed := make(map[string]bool)

	if mutated.Owner.IsReal() {
		r.SideEffectRecompute(ctx, mutated.Owner.ID, op, mutated)
		recomputed[mutated.Owner.ID] = true
	}

	for _, rawName := range []string{mutated.OwnerDisplayName, mutated.CoOwnerDisplayName} {
		name, err := shared.NewDisplayName(rawName)
		if err != nil {
			continue
		}
		partner, err := r.resolver.ResolveName(ctx, name)
		if err != nil {
			r.log.Warn("partner resolution failed",
				logger.RunID(mutated.ID),
				logger.String("display_name", name.String()),
				logger.Err(err),
			)
			continue
		}
		if partner == nil || recomputed[partner.ID] {
			continue
		}
		r.SideEffectRecompute(ctx, partner.ID, op, mutated)
		recomputed[partner.ID] = true
	}
}

// publish sends an event, logging instead of failing: event delivery is
// observability plumbing, not part of the write path's contract.
func (r *Reconciler) publish(event shared.Event) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(event); err != nil {
		r.log.Warn("event publish failed",
			logger.String("event_type", string(event.EventType())),
			logger.Err(err),
		)
	}
}

// loadRun fetches a run and wraps the not-found case with the command name.
func (r *Reconciler) loadRun(ctx context.Context, op, runID string) (*run.Run, error) {
	loaded, err := r.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("%s: loading run %s: %w", op, runID, err)
	}
	return loaded, nil
}
