package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/runhub/run-community-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DELETE RUN COMMAND
// A hard delete removes the document, then re-ranks the vacated group. The
// deleted run rides through the pass as an unverified tombstone overlay:
// that drops it from the standings even if the store still returns the
// stale copy, while the exclude filter keeps the batch writer from trying
// to update a document that no longer exists.
// ══════════════════════════════════════════════════════════════════════════════

// DeleteRunCommand hard-deletes a run.
type DeleteRunCommand struct {
	// RunID is the run to delete.
	RunID string

	// ModeratorID identifies who deleted the run.
	ModeratorID string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c DeleteRunCommand) Validate() error {
	if c.RunID == "" {
		return errors.New("delete_run: run_id is required")
	}
	if c.ModeratorID == "" {
		return errors.New("delete_run: moderator_id is required")
	}
	return nil
}

// DeleteRunResult contains the outcome of a deletion.
type DeleteRunResult struct {
	// GroupUpdates is how many surviving run documents the re-rank rewrote.
	GroupUpdates int

	// OwnersRecomputed is true when totals recomputation ran for the
	// deleted run's owners.
	OwnersRecomputed bool
}

// DeleteRunHandler handles the DeleteRunCommand.
type DeleteRunHandler struct {
	rec *Reconciler

	// recomputeOwners controls whether deletion rebuilds the owner's
	// cached totals. Off, the deleted run's points linger in the cached
	// total until the next recompute or backfill touches the player.
	recomputeOwners bool
}

// NewDeleteRunHandler creates a new DeleteRunHandler.
func NewDeleteRunHandler(rec *Reconciler, recomputeOwners bool) *DeleteRunHandler {
	return &DeleteRunHandler{rec: rec, recomputeOwners: recomputeOwners}
}

// Handle executes the delete run command.
func (h *DeleteRunHandler) Handle(ctx context.Context, cmd DeleteRunCommand) (*DeleteRunResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("delete_run: validation failed: %w", err)
	}

	target, err := h.rec.loadRun(ctx, "delete_run", cmd.RunID)
	if err != nil {
		return nil, err
	}

	if err := h.rec.runs.Delete(ctx, cmd.RunID); err != nil {
		return nil, fmt.Errorf("delete_run: deleting run %s: %w", cmd.RunID, err)
	}

	committed := 0
	if target.Verified {
		tombstone := target.Clone()
		tombstone.Verified = false
		_, committed, err = h.rec.RerankGroup(ctx, target.GroupKey(), tombstone, target.ID)
		if err != nil {
			return nil, fmt.Errorf("delete_run: reranking group: %w", err)
		}
	}

	recomputed := false
	if h.recomputeOwners && target.Verified {
		// The overlay is the tombstone: the deleted run must not count
		// toward anyone's totals even on a stale read.
		tombstone := target.Clone()
		tombstone.Verified = false
		h.rec.RecomputeForRun(ctx, tombstone, "delete_run")
		recomputed = true
	}

	h.rec.publish(shared.NewRunDeletedEvent(
		target.ID,
		target.GroupKey().String(),
		target.Owner.Ref(),
	))

	return &DeleteRunResult{GroupUpdates: committed, OwnersRecomputed: recomputed}, nil
}
