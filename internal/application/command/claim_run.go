package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/runhub/run-community-hub/internal/domain/run"
	"github.com/runhub/run-community-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CLAIM RUN COMMAND
// Claiming reassigns a run from a sentinel ownership state to a real
// account. A run linked to a different real account can never be claimed.
// Unclaimed-sentinel runs are open to any account; other sentinel states
// require the claimant's display name to match the run's attributed name
// (unless a moderator forces it).
// ══════════════════════════════════════════════════════════════════════════════

// ClaimRunCommand links a run to a player account.
type ClaimRunCommand struct {
	// RunID is the run to claim.
	RunID string

	// AccountID is the claiming player account.
	AccountID string

	// Force bypasses the name-match check (moderator action).
	Force bool

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c ClaimRunCommand) Validate() error {
	if c.RunID == "" {
		return errors.New("claim_run: run_id is required")
	}
	if c.AccountID == "" {
		return errors.New("claim_run: account_id is required")
	}
	return nil
}

// ClaimRunResult contains the outcome of a claim.
type ClaimRunResult struct {
	// AlreadyOwned is true when the account already owned the run.
	AlreadyOwned bool

	// PreviousOwner is the ownership reference before the claim.
	PreviousOwner string
}

// ClaimRunHandler handles the ClaimRunCommand.
type ClaimRunHandler struct {
	rec *Reconciler
}

// NewClaimRunHandler creates a new ClaimRunHandler.
func NewClaimRunHandler(rec *Reconciler) *ClaimRunHandler {
	return &ClaimRunHandler{rec: rec}
}

// Handle executes the claim run command.
func (h *ClaimRunHandler) Handle(ctx context.Context, cmd ClaimRunCommand) (*ClaimRunResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("claim_run: validation failed: %w", err)
	}

	target, err := h.rec.loadRun(ctx, "claim_run", cmd.RunID)
	if err != nil {
		return nil, err
	}

	claimant, err := h.rec.players.GetByID(ctx, cmd.AccountID)
	if err != nil {
		return nil, fmt.Errorf("claim_run: loading claimant %s: %w", cmd.AccountID, err)
	}

	if target.OwnedBy(cmd.AccountID) {
		return &ClaimRunResult{AlreadyOwned: true, PreviousOwner: target.Owner.Ref()}, nil
	}
	if target.Owner.IsReal() {
		return nil, shared.ErrRunNotClaimable
	}
	// Moderators park nameless submissions in the unclaimed state; those
	// runs are open to whichever account steps forward.
	openClaim := cmd.Force || target.Owner.Kind == run.OwnerUnclaimed
	if !openClaim && !target.PrimaryNameMatches(claimant.DisplayName) {
		return nil, shared.ErrClaimNameMismatch
	}

	previous := target.Owner.Ref()
	target.Owner = run.RealOwner(cmd.AccountID)
	if err := h.rec.runs.Update(ctx, target); err != nil {
		return nil, fmt.Errorf("claim_run: persisting run %s: %w", cmd.RunID, err)
	}

	// Ownership does not affect ranking, only attribution: no re-rank,
	// just rebuild the new owner's totals with the claimed copy overlaid.
	if target.Verified {
		h.rec.SideEffectRecompute(ctx, cmd.AccountID, "claim_run", target)
	}

	h.rec.publish(shared.NewRunClaimedEvent(target.ID, cmd.AccountID, previous))

	return &ClaimRunResult{PreviousOwner: previous}, nil
}
