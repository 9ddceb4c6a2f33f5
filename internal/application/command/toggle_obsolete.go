package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/runhub/run-community-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// TOGGLE OBSOLETE COMMAND
// Obsolete is a one-flag retirement: the run leaves the standings but its
// base points survive in the owner's totals. Flipping the flag either way
// re-ranks the group and rebuilds the affected totals.
// ══════════════════════════════════════════════════════════════════════════════

// ToggleObsoleteCommand sets or clears a run's obsolete flag.
type ToggleObsoleteCommand struct {
	// RunID is the run to toggle.
	RunID string

	// ModeratorID identifies who toggled the flag.
	ModeratorID string

	// Obsolete is the target value of the flag.
	Obsolete bool

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c ToggleObsoleteCommand) Validate() error {
	if c.RunID == "" {
		return errors.New("toggle_obsolete: run_id is required")
	}
	if c.ModeratorID == "" {
		return errors.New("toggle_obsolete: moderator_id is required")
	}
	return nil
}

// ToggleObsoleteResult contains the outcome of the toggle.
type ToggleObsoleteResult struct {
	// Unchanged is true when the flag already had the target value.
	Unchanged bool

	// Obsolete is the run's flag after the command.
	Obsolete bool

	// GroupUpdates is how many run documents the re-rank rewrote.
	GroupUpdates int
}

// ToggleObsoleteHandler handles the ToggleObsoleteCommand.
type ToggleObsoleteHandler struct {
	rec *Reconciler
}

// NewToggleObsoleteHandler creates a new ToggleObsoleteHandler.
func NewToggleObsoleteHandler(rec *Reconciler) *ToggleObsoleteHandler {
	return &ToggleObsoleteHandler{rec: rec}
}

// Handle executes the toggle obsolete command.
func (h *ToggleObsoleteHandler) Handle(ctx context.Context, cmd ToggleObsoleteCommand) (*ToggleObsoleteResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("toggle_obsolete: validation failed: %w", err)
	}

	target, err := h.rec.loadRun(ctx, "toggle_obsolete", cmd.RunID)
	if err != nil {
		return nil, err
	}

	if target.Obsolete == cmd.Obsolete {
		return &ToggleObsoleteResult{Unchanged: true, Obsolete: target.Obsolete}, nil
	}

	target.Obsolete = cmd.Obsolete
	if err := h.rec.runs.Update(ctx, target); err != nil {
		return nil, fmt.Errorf("toggle_obsolete: persisting run %s: %w", cmd.RunID, err)
	}

	committed := 0
	if target.Verified {
		_, committed, err = h.rec.RerankGroup(ctx, target.GroupKey(), target, "")
		if err != nil {
			return nil, fmt.Errorf("toggle_obsolete: reranking group: %w", err)
		}
		h.rec.RecomputeForRun(ctx, target, "toggle_obsolete")
	}

	h.rec.publish(shared.NewRunObsoleteToggledEvent(target.ID, target.GroupKey().String(), target.Obsolete))

	return &ToggleObsoleteResult{Obsolete: target.Obsolete, GroupUpdates: committed}, nil
}
