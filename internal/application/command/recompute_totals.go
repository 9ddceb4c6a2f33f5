package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/runhub/run-community-hub/internal/domain/player"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECOMPUTE TOTALS COMMAND
// The direct entry point to the from-scratch totals rebuild. Most callers
// get this as a side effect of a moderation command; this command exists
// for explicit repair (support tooling, the worker, the HTTP surface).
// ══════════════════════════════════════════════════════════════════════════════

// RecomputeTotalsCommand rebuilds one player's cached totals.
type RecomputeTotalsCommand struct {
	// AccountID is the player to recompute.
	AccountID string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c RecomputeTotalsCommand) Validate() error {
	if c.AccountID == "" {
		return errors.New("recompute_totals: account_id is required")
	}
	return nil
}

// RecomputeTotalsResult contains the rebuilt aggregates.
type RecomputeTotalsResult struct {
	Totals player.Totals
}

// RecomputeTotalsHandler handles the RecomputeTotalsCommand.
type RecomputeTotalsHandler struct {
	rec *Reconciler
}

// NewRecomputeTotalsHandler creates a new RecomputeTotalsHandler.
func NewRecomputeTotalsHandler(rec *Reconciler) *RecomputeTotalsHandler {
	return &RecomputeTotalsHandler{rec: rec}
}

// Handle executes the recompute totals command.
func (h *RecomputeTotalsHandler) Handle(ctx context.Context, cmd RecomputeTotalsCommand) (*RecomputeTotalsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("recompute_totals: validation failed: %w", err)
	}

	totals, err := h.rec.RecomputeTotals(ctx, cmd.AccountID, nil)
	if err != nil {
		return nil, err
	}
	return &RecomputeTotalsResult{Totals: totals}, nil
}
