package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/runhub/run-community-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// UNVERIFY RUN COMMAND
// Retracting verification pulls the run out of ranking. The unverified
// copy rides through as the overlay so the stale verified stored copy can
// never sneak back into the standings, and the runner-up inherits the
// vacated position in the same pass.
// ══════════════════════════════════════════════════════════════════════════════

// UnverifyRunCommand retracts a run's verification.
type UnverifyRunCommand struct {
	// RunID is the run to unverify.
	RunID string

	// ModeratorID identifies who retracted the verification.
	ModeratorID string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c UnverifyRunCommand) Validate() error {
	if c.RunID == "" {
		return errors.New("unverify_run: run_id is required")
	}
	if c.ModeratorID == "" {
		return errors.New("unverify_run: moderator_id is required")
	}
	return nil
}

// UnverifyRunResult contains the outcome of an unverification.
type UnverifyRunResult struct {
	// AlreadyUnverified is true when the run was not verified.
	AlreadyUnverified bool

	// GroupUpdates is how many run documents the re-rank rewrote,
	// including clearing this run's own rank and points.
	GroupUpdates int
}

// UnverifyRunHandler handles the UnverifyRunCommand.
type UnverifyRunHandler struct {
	rec *Reconciler
}

// NewUnverifyRunHandler creates a new UnverifyRunHandler.
func NewUnverifyRunHandler(rec *Reconciler) *UnverifyRunHandler {
	return &UnverifyRunHandler{rec: rec}
}

// Handle executes the unverify run command.
func (h *UnverifyRunHandler) Handle(ctx context.Context, cmd UnverifyRunCommand) (*UnverifyRunResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("unverify_run: validation failed: %w", err)
	}

	target, err := h.rec.loadRun(ctx, "unverify_run", cmd.RunID)
	if err != nil {
		return nil, err
	}

	if !target.Verified {
		return &UnverifyRunResult{AlreadyUnverified: true}, nil
	}

	target.Verified = false
	if err := h.rec.runs.Update(ctx, target); err != nil {
		return nil, fmt.Errorf("unverify_run: persisting run %s: %w", cmd.RunID, err)
	}

	_, committed, err := h.rec.RerankGroup(ctx, target.GroupKey(), target, "")
	if err != nil {
		return nil, fmt.Errorf("unverify_run: reranking group: %w", err)
	}

	h.rec.RecomputeForRun(ctx, target, "unverify_run")

	h.rec.publish(shared.NewRunUnverifiedEvent(
		target.ID,
		target.GroupKey().String(),
		target.Owner.Ref(),
	))

	return &UnverifyRunResult{GroupUpdates: committed}, nil
}
