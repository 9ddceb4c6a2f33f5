package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/runhub/run-community-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VERIFY RUN COMMAND
// Verification is the gate into ranking: the run joins its comparison
// group, the group re-ranks, and every affected player's totals rebuild.
// The freshly written run is threaded through the whole pass as an overlay
// so the re-rank sees it even before the store's own reads catch up.
// ══════════════════════════════════════════════════════════════════════════════

// VerifyRunCommand marks a submitted run as verified.
type VerifyRunCommand struct {
	// RunID is the run to verify.
	RunID string

	// ModeratorID identifies who verified the run (for the audit event).
	ModeratorID string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c VerifyRunCommand) Validate() error {
	if c.RunID == "" {
		return errors.New("verify_run: run_id is required")
	}
	if c.ModeratorID == "" {
		return errors.New("verify_run: moderator_id is required")
	}
	return nil
}

// VerifyRunResult contains the outcome of a verification.
type VerifyRunResult struct {
	// AlreadyVerified is true when the run was verified before this call.
	AlreadyVerified bool

	// Rank is the persisted rank after re-ranking (0 outside the top three).
	Rank int

	// Position is the full computed position in the group.
	Position int

	// Points is the derived points value for the run.
	Points float64

	// GroupUpdates is how many run documents the re-rank rewrote.
	GroupUpdates int

	// VerifiedAt is when the verification was processed.
	VerifiedAt time.Time
}

// VerifyRunHandler handles the VerifyRunCommand.
type VerifyRunHandler struct {
	rec *Reconciler
}

// NewVerifyRunHandler creates a new VerifyRunHandler.
func NewVerifyRunHandler(rec *Reconciler) *VerifyRunHandler {
	return &VerifyRunHandler{rec: rec}
}

// Handle executes the verify run command.
func (h *VerifyRunHandler) Handle(ctx context.Context, cmd VerifyRunCommand) (*VerifyRunResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("verify_run: validation failed: %w", err)
	}

	target, err := h.rec.loadRun(ctx, "verify_run", cmd.RunID)
	if err != nil {
		return nil, err
	}

	if target.Verified {
		return &VerifyRunResult{
			AlreadyVerified: true,
			Rank:            target.Rank,
			Points:          target.Points,
			VerifiedAt:      time.Now(),
		}, nil
	}

	target.Verified = true
	if err := target.Normalize(); err != nil {
		return nil, fmt.Errorf("verify_run: %w", err)
	}
	if err := target.Validate(); err != nil {
		return nil, fmt.Errorf("verify_run: %w", err)
	}

	if err := h.rec.runs.Update(ctx, target); err != nil {
		return nil, fmt.Errorf("verify_run: persisting run %s: %w", cmd.RunID, err)
	}

	state, committed, err := h.rec.RerankGroup(ctx, target.GroupKey(), target, "")
	if err != nil {
		return nil, fmt.Errorf("verify_run: reranking group: %w", err)
	}

	desired := state.Desired[target.ID]
	position := state.Standings.PositionOf(target.ID)

	h.rec.RecomputeForRun(ctx, target, "verify_run")

	h.rec.publish(shared.NewRunVerifiedEvent(
		target.ID,
		target.GroupKey().String(),
		target.Owner.Ref(),
		cmd.ModeratorID,
		desired.Points,
		desired.Rank,
	))

	return &VerifyRunResult{
		Rank:         desired.Rank,
		Position:     position,
		Points:       desired.Points,
		GroupUpdates: committed,
		VerifiedAt:   time.Now(),
	}, nil
}
